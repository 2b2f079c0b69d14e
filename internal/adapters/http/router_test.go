package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kirillkom/second-brain/internal/core/domain"
	"github.com/kirillkom/second-brain/internal/core/ports"
	"github.com/kirillkom/second-brain/internal/core/usecase"
	"github.com/kirillkom/second-brain/internal/observability/metrics"
)

type stubProvider struct {
	caps    ports.ProviderCapabilities
	byQuery map[string][]domain.Candidate
}

func (s *stubProvider) Capabilities() ports.ProviderCapabilities { return s.caps }

func (s *stubProvider) Search(_ context.Context, req domain.RetrievalRequest) ([]domain.Candidate, error) {
	return s.byQuery[req.Query], nil
}

type stubResolver struct {
	matches []domain.EntityMatch
	err     error
	gotName string
}

func (s *stubResolver) ResolveEntity(_ context.Context, name string, _ float64, _ int) ([]domain.EntityMatch, error) {
	s.gotName = name
	return s.matches, s.err
}

type stubHealth struct {
	flags    domain.FeatureFlags
	snapshot domain.HealthSnapshot
}

func (s *stubHealth) Flags() domain.FeatureFlags      { return s.flags }
func (s *stubHealth) Snapshot() domain.HealthSnapshot { return s.snapshot }

func newTestRouter(t *testing.T, debug bool) (*Router, *stubResolver) {
	t.Helper()

	memhub := &stubProvider{
		caps: ports.ProviderCapabilities{Name: domain.ProviderMemHub, HasNativeRerank: true},
		byQuery: map[string][]domain.Candidate{
			"scenario: high confidence": {
				{ID: "m1", Content: "decision record", Source: domain.ProviderMemHub, Confidence: 0.9},
			},
			"scenario: low confidence": {
				{ID: "m2", Content: "vague note", Source: domain.ProviderMemHub, Confidence: 0.2},
			},
		},
	}
	pgstore := &stubProvider{
		caps: ports.ProviderCapabilities{Name: domain.ProviderPGStore, SupportsLexicalSearch: true},
		byQuery: map[string][]domain.Candidate{
			"scenario: high confidence": {
				{ID: "p1", Content: "project plan", Source: domain.ProviderPGStore, Confidence: 0.8},
				{ID: "p2", Content: "meeting notes", Source: domain.ProviderPGStore, Confidence: 0.7},
			},
		},
	}

	health := &stubHealth{
		flags: domain.FeatureFlags{
			MemHubEnabled:         true,
			PGStoreEnabled:        true,
			DebugScenariosEnabled: debug,
		},
		snapshot: domain.HealthSnapshot{
			Statuses: map[string]domain.ProviderStatus{
				domain.ProviderMemHub:  domain.StatusAvailable,
				domain.ProviderPGStore: domain.StatusAvailable,
			},
		},
	}

	retriever := usecase.NewRetrieveUseCase(map[string]ports.ContextProvider{
		domain.ProviderMemHub:  memhub,
		domain.ProviderPGStore: pgstore,
	}, nil, health, nil, usecase.RetrieveLimits{})

	resolver := &stubResolver{
		matches: []domain.EntityMatch{
			{ID: "e1", Name: "Acme Corp", EntityType: "organization", Similarity: 0.82},
		},
	}

	router := NewRouter(
		retriever,
		resolver,
		usecase.NewScenarioRunner(retriever),
		health,
		metrics.NewHTTPServerMetrics("api-test"),
		Options{Service: "api-test"},
	)
	return router, resolver
}

func postJSONRequest(t *testing.T, handler http.Handler, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	return res
}

func TestRetrieveEndpointReturnsEnvelope(t *testing.T) {
	router, _ := newTestRouter(t, false)
	handler := router.Handler()

	res := postJSONRequest(t, handler, "/v1/retrieve", domain.RetrievalRequest{
		Query: "scenario: high confidence",
		Mode:  domain.ModeConversation,
	})
	if res.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", res.Code, res.Body.String())
	}

	var response domain.RetrievalResponse
	if err := json.NewDecoder(res.Body).Decode(&response); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if response.ContextPacket.Summary.Branch != domain.BranchRerankBypassed {
		t.Fatalf("branch = %s, want RERANK_BYPASSED", response.ContextPacket.Summary.Branch)
	}
	if response.NextAction.BranchCode != response.ContextPacket.Summary.Branch {
		t.Fatal("branch_code must mirror summary branch")
	}
	if response.Routing.Mode != domain.ModeConversation {
		t.Fatalf("routing mode = %s", response.Routing.Mode)
	}
	if res.Header().Get("X-Request-Id") == "" {
		t.Fatal("expected request id header")
	}
}

func TestRetrieveEndpointRejectsInvalidMode(t *testing.T) {
	router, _ := newTestRouter(t, false)
	handler := router.Handler()

	res := postJSONRequest(t, handler, "/v1/retrieve", map[string]string{
		"query": "anything",
		"mode":  "turbo",
	})
	if res.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", res.Code)
	}
}

func TestRetrieveEndpointRejectsBadJSON(t *testing.T) {
	router, _ := newTestRouter(t, false)
	handler := router.Handler()

	req := httptest.NewRequest(http.MethodPost, "/v1/retrieve", strings.NewReader("{not json"))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", res.Code)
	}
}

func TestRetrieveEndpointMethodNotAllowed(t *testing.T) {
	router, _ := newTestRouter(t, false)
	handler := router.Handler()

	req := httptest.NewRequest(http.MethodGet, "/v1/retrieve", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", res.Code)
	}
}

func TestResolveEntityEndpoint(t *testing.T) {
	router, resolver := newTestRouter(t, false)
	handler := router.Handler()

	res := postJSONRequest(t, handler, "/v1/entities/resolve", map[string]any{"name": "acme"})
	if res.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", res.Code, res.Body.String())
	}
	if resolver.gotName != "acme" {
		t.Fatalf("resolver got %q", resolver.gotName)
	}

	var response struct {
		Matches []domain.EntityMatch `json:"matches"`
	}
	if err := json.NewDecoder(res.Body).Decode(&response); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(response.Matches) != 1 || response.Matches[0].Name != "Acme Corp" {
		t.Fatalf("unexpected matches %v", response.Matches)
	}
}

func TestResolveEntityRequiresName(t *testing.T) {
	router, _ := newTestRouter(t, false)
	handler := router.Handler()

	res := postJSONRequest(t, handler, "/v1/entities/resolve", map[string]any{"name": "  "})
	if res.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", res.Code)
	}
}

func TestListScenariosFiltersByTag(t *testing.T) {
	router, _ := newTestRouter(t, false)
	handler := router.Handler()

	req := httptest.NewRequest(http.MethodGet, "/v1/scenarios?tag=smoke", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("status = %d", res.Code)
	}

	var response struct {
		Scenarios []usecase.BranchScenario `json:"scenarios"`
	}
	if err := json.NewDecoder(res.Body).Decode(&response); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(response.Scenarios) == 0 {
		t.Fatal("expected smoke scenarios")
	}
	for _, scenario := range response.Scenarios {
		found := false
		for _, tag := range scenario.Tags {
			if tag == "smoke" {
				found = true
			}
		}
		if !found {
			t.Fatalf("scenario %s missing smoke tag", scenario.ID)
		}
	}
}

func TestRunScenarioEndpoint(t *testing.T) {
	router, _ := newTestRouter(t, false)
	handler := router.Handler()

	res := postJSONRequest(t, handler, "/v1/scenarios/S001/run", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", res.Code, res.Body.String())
	}

	var result usecase.ScenarioResult
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if !result.Success {
		t.Fatalf("scenario S001 failed: %s", result.Message)
	}
}

func TestRunScenarioUnknownID(t *testing.T) {
	router, _ := newTestRouter(t, false)
	handler := router.Handler()

	res := postJSONRequest(t, handler, "/v1/scenarios/NOPE/run", nil)
	if res.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", res.Code)
	}
}

func TestRunValidationScenarioGatedWithoutDebug(t *testing.T) {
	router, _ := newTestRouter(t, false)
	handler := router.Handler()

	res := postJSONRequest(t, handler, "/v1/scenarios/V001/run", nil)
	if res.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", res.Code)
	}

	var result usecase.ScenarioResult
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if !result.Gated {
		t.Fatal("result must be gated")
	}
}

func TestRunValidationScenarioWithDebug(t *testing.T) {
	router, _ := newTestRouter(t, true)
	handler := router.Handler()

	res := postJSONRequest(t, handler, "/v1/scenarios/V001/run", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", res.Code)
	}

	var result usecase.ScenarioResult
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.ForcedBranch != domain.BranchChannelMismatch {
		t.Fatalf("forced branch = %s", result.ForcedBranch)
	}
}

func TestFleetHealthEndpoint(t *testing.T) {
	router, _ := newTestRouter(t, false)
	handler := router.Handler()

	req := httptest.NewRequest(http.MethodGet, "/v1/health", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("status = %d", res.Code)
	}

	var response struct {
		Snapshot domain.HealthSnapshot `json:"snapshot"`
		Flags    domain.FeatureFlags   `json:"feature_flags"`
	}
	if err := json.NewDecoder(res.Body).Decode(&response); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if response.Snapshot.Statuses[domain.ProviderMemHub] != domain.StatusAvailable {
		t.Fatal("snapshot must be exposed")
	}
	if !response.Flags.MemHubEnabled {
		t.Fatal("flags must be exposed")
	}
}
