package provider

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

const (
	// MetricsSubsystem is a subsystem shared by all metrics exposed by this
	// package.
	MetricsSubsystem = "provider"
)

// Metrics contains metrics exposed by this package.
type Metrics struct {
	// Number of channels the provider listens on.
	Subscriptions metrics.Gauge
	// Number of content messages sent.
	ContentSent metrics.Counter
	// Number of service requests refused for lack of payment.
	ServiceRefused metrics.Counter
	// Number of frames that could not be decoded.
	MalformedMessages metrics.Counter
	// Total wei redeemed from vouchers.
	Earnings metrics.Counter
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
		Subscriptions: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "subscriptions",
			Help:      "Number of channels the provider listens on.",
		}, labels).With(labelsAndValues...),
		ContentSent: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "content_sent",
			Help:      "Number of content messages sent.",
		}, labels).With(labelsAndValues...),
		ServiceRefused: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "service_refused",
			Help:      "Number of service requests refused for lack of payment.",
		}, labels).With(labelsAndValues...),
		MalformedMessages: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "malformed_messages",
			Help:      "Number of frames that could not be decoded.",
		}, labels).With(labelsAndValues...),
		Earnings: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "earnings_wei",
			Help:      "Total wei redeemed from vouchers.",
		}, labels).With(labelsAndValues...),
	}
}

// NopMetrics returns no-op Metrics.
func NopMetrics() *Metrics {
	return &Metrics{
		Subscriptions:     discard.NewGauge(),
		ContentSent:       discard.NewCounter(),
		ServiceRefused:    discard.NewCounter(),
		MalformedMessages: discard.NewCounter(),
		Earnings:          discard.NewCounter(),
	}
}
