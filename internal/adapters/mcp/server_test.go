package mcpadapter

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kirillkom/second-brain/internal/core/domain"
	"github.com/kirillkom/second-brain/internal/core/ports"
	"github.com/kirillkom/second-brain/internal/core/usecase"
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
}

func (s *stubResolver) ResolveEntity(context.Context, string, float64, int) ([]domain.EntityMatch, error) {
	return s.matches, nil
}

type stubHealth struct {
	flags    domain.FeatureFlags
	snapshot domain.HealthSnapshot
}

func (s *stubHealth) Flags() domain.FeatureFlags      { return s.flags }
func (s *stubHealth) Snapshot() domain.HealthSnapshot { return s.snapshot }

func newTestServer(t *testing.T) *Server {
	t.Helper()

	provider := &stubProvider{
		caps: ports.ProviderCapabilities{Name: domain.ProviderMemHub, HasNativeRerank: true},
		byQuery: map[string][]domain.Candidate{
			"what did we decide": {
				{ID: "m1", Content: "use postgres", Source: domain.ProviderMemHub, Confidence: 0.85},
			},
		},
	}
	health := &stubHealth{
		flags: domain.FeatureFlags{MemHubEnabled: true},
		snapshot: domain.HealthSnapshot{
			Statuses: map[string]domain.ProviderStatus{
				domain.ProviderMemHub: domain.StatusAvailable,
			},
		},
	}
	retriever := usecase.NewRetrieveUseCase(map[string]ports.ContextProvider{
		domain.ProviderMemHub: provider,
	}, nil, health, nil, usecase.RetrieveLimits{})

	return NewServer(retriever, &stubResolver{
		matches: []domain.EntityMatch{{ID: "e1", Name: "Postgres", EntityType: "technology", Similarity: 0.9}},
	}, usecase.NewScenarioRunner(retriever), health, "test")
}

func callRequest(name string, args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func textContent(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("empty tool result")
	}
	text, ok := mcp.AsTextContent(result.Content[0])
	if !ok {
		t.Fatalf("expected text content, got %T", result.Content[0])
	}
	return text.Text
}

func TestRetrieveContextTool(t *testing.T) {
	srv := newTestServer(t)

	result, err := srv.retrieveContext(context.Background(), callRequest("retrieve_context", map[string]any{
		"query": "what did we decide",
		"mode":  "conversation",
	}))
	if err != nil {
		t.Fatalf("retrieveContext: %v", err)
	}
	if result.IsError {
		t.Fatalf("tool error: %s", textContent(t, result))
	}

	var response domain.RetrievalResponse
	if err := json.Unmarshal([]byte(textContent(t, result)), &response); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if response.ContextPacket.Summary.Branch != domain.BranchRerankBypassed {
		t.Fatalf("branch = %s", response.ContextPacket.Summary.Branch)
	}
}

func TestRetrieveContextToolRequiresQuery(t *testing.T) {
	srv := newTestServer(t)

	result, err := srv.retrieveContext(context.Background(), callRequest("retrieve_context", map[string]any{}))
	if err != nil {
		t.Fatalf("retrieveContext: %v", err)
	}
	if !result.IsError {
		t.Fatal("missing query must be a tool error")
	}
}

func TestResolveEntityTool(t *testing.T) {
	srv := newTestServer(t)

	result, err := srv.resolveEntity(context.Background(), callRequest("resolve_entity", map[string]any{
		"name": "postgres",
	}))
	if err != nil {
		t.Fatalf("resolveEntity: %v", err)
	}
	text := textContent(t, result)
	if !strings.Contains(text, "Postgres") {
		t.Fatalf("expected match in %s", text)
	}
}

func TestRunScenarioToolGatesValidation(t *testing.T) {
	srv := newTestServer(t)

	result, err := srv.runScenario(context.Background(), callRequest("run_branch_scenario", map[string]any{
		"scenario_id": "V001",
	}))
	if err != nil {
		t.Fatalf("runScenario: %v", err)
	}

	var run usecase.ScenarioResult
	if err := json.Unmarshal([]byte(textContent(t, result)), &run); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if !run.Gated {
		t.Fatal("validation scenario must be gated without debug mode")
	}
}

func TestListScenariosToolFiltersByTag(t *testing.T) {
	srv := newTestServer(t)

	result, err := srv.listScenarios(context.Background(), callRequest("list_branch_scenarios", map[string]any{
		"tag": "smoke",
	}))
	if err != nil {
		t.Fatalf("listScenarios: %v", err)
	}

	var payload struct {
		Scenarios []usecase.BranchScenario `json:"scenarios"`
	}
	if err := json.Unmarshal([]byte(textContent(t, result)), &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if len(payload.Scenarios) == 0 {
		t.Fatal("expected smoke scenarios")
	}
}
