package ledger

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

const (
	// MetricsSubsystem is a subsystem shared by all metrics exposed by this
	// package.
	MetricsSubsystem = "ledger"
)

// Metrics contains metrics exposed by this package.
type Metrics struct {
	// Number of channels with a ledger entry.
	Channels metrics.Gauge
	// Number of clients refused service for lack of payment.
	UnpaidClients metrics.Gauge
	// Number of vouchers adopted as the best voucher of their channel.
	VouchersAccepted metrics.Counter
	// Number of vouchers ignored, labeled by reason.
	VouchersRejected metrics.Counter
	// Characters of content recorded as served.
	ServedChars metrics.Counter
}

// PrometheusMetrics returns Metrics build using Prometheus client library.
// Optionally, labels can be provided along with their values ("foo",
// "fooValue").
func PrometheusMetrics(namespace string, labelsAndValues ...string) *Metrics {
	labels := []string{}
	for i := 0; i < len(labelsAndValues); i += 2 {
		labels = append(labels, labelsAndValues[i])
	}
	return &Metrics{
		Channels: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "channels",
			Help:      "Number of channels with a ledger entry.",
		}, labels).With(labelsAndValues...),
		UnpaidClients: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "unpaid_clients",
			Help:      "Number of clients refused service for lack of payment.",
		}, labels).With(labelsAndValues...),
		VouchersAccepted: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "vouchers_accepted",
			Help:      "Number of vouchers adopted as the best voucher of their channel.",
		}, labels).With(labelsAndValues...),
		VouchersRejected: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "vouchers_rejected",
			Help:      "Number of vouchers ignored, by reason.",
		}, append(labels, "reason")).With(labelsAndValues...),
		ServedChars: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "served_chars",
			Help:      "Characters of content recorded as served.",
		}, labels).With(labelsAndValues...),
	}
}

// NopMetrics returns no-op Metrics.
func NopMetrics() *Metrics {
	return &Metrics{
		Channels:         discard.NewGauge(),
		UnpaidClients:    discard.NewGauge(),
		VouchersAccepted: discard.NewCounter(),
		VouchersRejected: discard.NewCounter(),
		ServedChars:      discard.NewCounter(),
	}
}
