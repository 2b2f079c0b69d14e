package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type ProberMetrics struct {
	registry *prometheus.Registry

	probeTotal    *prometheus.CounterVec
	probeDuration *prometheus.HistogramVec
	publishTotal  *prometheus.CounterVec
}

func NewProberMetrics(service string) *ProberMetrics {
	registry := prometheus.NewRegistry()

	probeTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sb",
			Subsystem: "health",
			Name:      "probe_total",
			Help:      "Total provider probes by resulting status.",
		},
		[]string{"service", "provider", "status"},
	)
	probeDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sb",
			Subsystem: "health",
			Name:      "probe_duration_seconds",
			Help:      "Provider probe duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 0.75, 1, 2, 3},
		},
		[]string{"service", "provider"},
	)
	publishTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sb",
			Subsystem: "health",
			Name:      "snapshot_publish_total",
			Help:      "Total snapshot publications by outcome.",
		},
		[]string{"service", "outcome"},
	)

	registry.MustRegister(probeTotal, probeDuration, publishTotal)

	return &ProberMetrics{
		registry:      registry,
		probeTotal:    probeTotal,
		probeDuration: probeDuration,
		publishTotal:  publishTotal,
	}
}

func (m *ProberMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *ProberMetrics) RecordProbe(service, provider, status string, duration time.Duration) {
	m.probeTotal.WithLabelValues(service, provider, status).Inc()
	m.probeDuration.WithLabelValues(service, provider).Observe(duration.Seconds())
}

func (m *ProberMetrics) RecordPublish(service string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.publishTotal.WithLabelValues(service, outcome).Inc()
}
