package client

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

const (
	// MetricsSubsystem is a subsystem shared by all metrics exposed by this
	// package.
	MetricsSubsystem = "client"
)

// Metrics contains metrics exposed by this package.
type Metrics struct {
	// Characters of content received.
	ReceivedChars metrics.Counter
	// Number of vouchers signed and sent.
	VouchersSent metrics.Counter
	// Number of times the signing capability declined or failed.
	SigningFailures metrics.Counter
	// Remaining balance of the last voucher sent, in ether.
	RemainingBalance metrics.Gauge
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
		ReceivedChars: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "received_chars",
			Help:      "Characters of content received.",
		}, labels).With(labelsAndValues...),
		VouchersSent: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "vouchers_sent",
			Help:      "Number of vouchers signed and sent.",
		}, labels).With(labelsAndValues...),
		SigningFailures: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "signing_failures",
			Help:      "Number of times the signing capability declined or failed.",
		}, labels).With(labelsAndValues...),
		RemainingBalance: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "remaining_balance_ether",
			Help:      "Remaining balance of the last voucher sent, in ether.",
		}, labels).With(labelsAndValues...),
	}
}

// NopMetrics returns no-op Metrics.
func NopMetrics() *Metrics {
	return &Metrics{
		ReceivedChars:    discard.NewCounter(),
		VouchersSent:     discard.NewCounter(),
		SigningFailures:  discard.NewCounter(),
		RemainingBalance: discard.NewGauge(),
	}
}
