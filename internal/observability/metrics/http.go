package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	retrievalTotal          *prometheus.CounterVec
	retrievalDuration       *prometheus.HistogramVec
	retrievalCandidates     *prometheus.HistogramVec
	overrideRejectionsTotal *prometheus.CounterVec
	providerFailuresTotal   *prometheus.CounterVec
	rerankBypassTotal       *prometheus.CounterVec
	entityResolveTotal      *prometheus.CounterVec
	scenarioRunsTotal       *prometheus.CounterVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sb",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sb",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "sb",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	retrievalTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sb",
			Subsystem: "retrieval",
			Name:      "requests_total",
			Help:      "Total completed retrievals by mode, provider and branch.",
		},
		[]string{"service", "mode", "provider", "branch"},
	)
	retrievalDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sb",
			Subsystem: "retrieval",
			Name:      "duration_seconds",
			Help:      "Retrieval execution duration in seconds by mode.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "mode"},
	)
	retrievalCandidates := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sb",
			Subsystem: "retrieval",
			Name:      "candidates",
			Help:      "Distribution of candidates in the final context packet.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
		[]string{"service", "mode"},
	)
	overrideRejectionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sb",
			Subsystem: "retrieval",
			Name:      "override_rejections_total",
			Help:      "Total provider override requests rejected by routing.",
		},
		[]string{"service", "provider", "reason"},
	)
	providerFailuresTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sb",
			Subsystem: "retrieval",
			Name:      "provider_failures_total",
			Help:      "Total provider searches excluded for error or timeout.",
		},
		[]string{"service", "provider"},
	)
	rerankBypassTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sb",
			Subsystem: "retrieval",
			Name:      "rerank_bypass_total",
			Help:      "Total retrievals that bypassed the external reranker.",
		},
		[]string{"service", "reason"},
	)
	entityResolveTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sb",
			Subsystem: "entity",
			Name:      "resolve_total",
			Help:      "Total entity resolutions by outcome.",
		},
		[]string{"service", "outcome"},
	)
	scenarioRunsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sb",
			Subsystem: "scenario",
			Name:      "runs_total",
			Help:      "Total branch scenario runs by result.",
		},
		[]string{"service", "result"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		retrievalTotal,
		retrievalDuration,
		retrievalCandidates,
		overrideRejectionsTotal,
		providerFailuresTotal,
		rerankBypassTotal,
		entityResolveTotal,
		scenarioRunsTotal,
	)

	return &HTTPServerMetrics{
		registry:                registry,
		requestTotal:            requestTotal,
		requestDuration:         requestDuration,
		requestInFlight:         requestInFlight,
		retrievalTotal:          retrievalTotal,
		retrievalDuration:       retrievalDuration,
		retrievalCandidates:     retrievalCandidates,
		overrideRejectionsTotal: overrideRejectionsTotal,
		providerFailuresTotal:   providerFailuresTotal,
		rerankBypassTotal:       rerankBypassTotal,
		entityResolveTotal:      entityResolveTotal,
		scenarioRunsTotal:       scenarioRunsTotal,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/scenarios/"):
		return "/v1/scenarios/{scenario_id}"
	default:
		return path
	}
}

func (m *HTTPServerMetrics) RecordRetrieval(service, mode, provider, branch string, candidates int, duration time.Duration) {
	if mode == "" {
		mode = "unknown"
	}
	if provider == "" {
		provider = "none"
	}
	if branch == "" {
		branch = "unknown"
	}
	m.retrievalTotal.WithLabelValues(service, mode, provider, branch).Inc()
	m.retrievalDuration.WithLabelValues(service, mode).Observe(duration.Seconds())
	m.retrievalCandidates.WithLabelValues(service, mode).Observe(float64(candidates))
}

func (m *HTTPServerMetrics) RecordOverrideRejection(service, provider, reason string) {
	if provider == "" {
		provider = "unknown"
	}
	if reason == "" {
		reason = "unknown"
	}
	m.overrideRejectionsTotal.WithLabelValues(service, provider, reason).Inc()
}

func (m *HTTPServerMetrics) RecordProviderFailure(service, provider string) {
	if provider == "" {
		provider = "unknown"
	}
	m.providerFailuresTotal.WithLabelValues(service, provider).Inc()
}

func (m *HTTPServerMetrics) RecordRerankBypass(service, reason string) {
	if reason == "" {
		return
	}
	m.rerankBypassTotal.WithLabelValues(service, reason).Inc()
}

func (m *HTTPServerMetrics) RecordEntityResolve(service string, matches int) {
	outcome := "hit"
	if matches == 0 {
		outcome = "miss"
	}
	m.entityResolveTotal.WithLabelValues(service, outcome).Inc()
}

func (m *HTTPServerMetrics) RecordScenarioRun(service string, success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	m.scenarioRunsTotal.WithLabelValues(service, result).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}

func (w *statusRecorder) Push(target string, opts *http.PushOptions) error {
	pusher, ok := w.ResponseWriter.(http.Pusher)
	if !ok {
		return http.ErrNotSupported
	}
	return pusher.Push(target, opts)
}
