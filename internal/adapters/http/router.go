package httpadapter

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/second-brain/internal/core/domain"
	"github.com/kirillkom/second-brain/internal/core/ports"
	"github.com/kirillkom/second-brain/internal/core/usecase"
	"github.com/kirillkom/second-brain/internal/observability/metrics"
)

type Router struct {
	retriever ports.ContextRetriever
	resolver  ports.EntityResolver
	runner    *usecase.ScenarioRunner
	health    ports.HealthSource
	metrics   *metrics.HTTPServerMetrics
	opts      Options
}

type Options struct {
	Service        string
	RateLimitRPS   float64
	RateLimitBurst int
	MaxInFlight    int

	EntityThreshold float64
	EntityLimit     int
}

func (o Options) normalize() Options {
	if o.Service == "" {
		o.Service = "api"
	}
	if o.RateLimitRPS <= 0 {
		o.RateLimitRPS = 25
	}
	if o.RateLimitBurst <= 0 {
		o.RateLimitBurst = 50
	}
	if o.MaxInFlight <= 0 {
		o.MaxInFlight = 64
	}
	if o.EntityThreshold <= 0 {
		o.EntityThreshold = 0.3
	}
	if o.EntityLimit <= 0 {
		o.EntityLimit = 10
	}
	return o
}

func NewRouter(
	retriever ports.ContextRetriever,
	resolver ports.EntityResolver,
	runner *usecase.ScenarioRunner,
	health ports.HealthSource,
	serverMetrics *metrics.HTTPServerMetrics,
	opts Options,
) *Router {
	return &Router{
		retriever: retriever,
		resolver:  resolver,
		runner:    runner,
		health:    health,
		metrics:   serverMetrics,
		opts:      opts.normalize(),
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/health", rt.fleetHealth)
	mux.HandleFunc("/v1/retrieve", rt.retrieve)
	mux.HandleFunc("/v1/entities/resolve", rt.resolveEntity)
	mux.HandleFunc("/v1/scenarios", rt.listScenarios)
	mux.HandleFunc("/v1/scenarios/", rt.runScenario)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	handler = backpressureMiddleware(handler, rt.opts.MaxInFlight, 50*time.Millisecond)
	handler = rateLimitMiddleware(handler, rt.opts.RateLimitRPS, rt.opts.RateLimitBurst)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(rt.opts.Service, handler)
	}
	handler = accessLogMiddleware(handler)
	handler = requestIDMiddleware(handler)
	return handler
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) fleetHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"snapshot":      rt.health.Snapshot(),
		"feature_flags": rt.health.Flags(),
	})
}

func (rt *Router) retrieve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req domain.RetrievalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	start := time.Now()
	response, err := rt.retriever.Retrieve(r.Context(), req)
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}

	if rt.metrics != nil {
		rt.metrics.RecordRetrieval(
			rt.opts.Service,
			string(response.Routing.Mode),
			response.Routing.Provider,
			string(response.ContextPacket.Summary.Branch),
			len(response.ContextPacket.Candidates),
			time.Since(start),
		)
		if response.Routing.OverrideRejected {
			rt.metrics.RecordOverrideRejection(rt.opts.Service, req.ProviderOverride, response.Routing.RejectReason)
		}
		rt.metrics.RecordRerankBypass(rt.opts.Service, response.ContextPacket.RerankBypassReason)
	}

	writeJSON(w, http.StatusOK, response)
}

func (rt *Router) resolveEntity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req struct {
		Name      string  `json:"name"`
		Threshold float64 `json:"threshold"`
		Limit     int     `json:"limit"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}
	if req.Threshold <= 0 {
		req.Threshold = rt.opts.EntityThreshold
	}
	if req.Limit <= 0 {
		req.Limit = rt.opts.EntityLimit
	}

	matches, err := rt.resolver.ResolveEntity(r.Context(), req.Name, req.Threshold, req.Limit)
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}
	if matches == nil {
		matches = []domain.EntityMatch{}
	}
	if rt.metrics != nil {
		rt.metrics.RecordEntityResolve(rt.opts.Service, len(matches))
	}

	writeJSON(w, http.StatusOK, map[string]any{"matches": matches})
}

func (rt *Router) listScenarios(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	scenarios := rt.runner.Scenarios(r.URL.Query().Get("tag"))
	writeJSON(w, http.StatusOK, map[string]any{"scenarios": scenarios})
}

func (rt *Router) runScenario(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/v1/scenarios/")
	id, ok := strings.CutSuffix(rest, "/run")
	if !ok || id == "" || strings.Contains(id, "/") {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}

	debugEnabled := rt.health.Flags().DebugScenariosEnabled
	result, err := rt.runner.Run(r.Context(), id, debugEnabled)
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordScenarioRun(rt.opts.Service, result.Success)
	}

	status := http.StatusOK
	if result.Gated {
		status = http.StatusForbidden
	}
	writeJSON(w, status, result)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
