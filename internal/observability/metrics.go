package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

type Metrics struct {
	registry *prometheus.Registry

	quotes      *prometheus.CounterVec
	quoteErrors *prometheus.CounterVec
	renewals    *prometheus.CounterVec
	duration    prometheus.Histogram
}

func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func NewMetrics(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		registry: reg,
		quotes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "renewal",
			Name:      "quotes_total",
			Help:      "Renewal quotes computed, by period.",
		}, []string{"period"}),
		quoteErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "renewal",
			Name:      "quote_errors_total",
			Help:      "Rejected renewal quote requests, by reason.",
		}, []string{"reason"}),
		renewals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "renewal",
			Name:      "renewals_total",
			Help:      "Renewal attempts, by outcome.",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "renewal",
			Name:      "renew_duration_seconds",
			Help:      "Time spent processing a renewal, including the payment call.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.quotes, m.quoteErrors, m.renewals, m.duration)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) QuoteComputed(period string) {
	if m == nil {
		return
	}
	m.quotes.WithLabelValues(period).Inc()
}

func (m *Metrics) QuoteRejected(reason string) {
	if m == nil {
		return
	}
	m.quoteErrors.WithLabelValues(reason).Inc()
}

func (m *Metrics) RenewalFinished(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.renewals.WithLabelValues(outcome).Inc()
	m.duration.Observe(seconds)
}
