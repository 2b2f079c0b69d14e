package voyage

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kirillkom/second-brain/internal/core/domain"
)

func TestEmbedQuery(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Fatalf("authorization header = %q", got)
		}
		var req struct {
			Model     string   `json:"model"`
			Input     []string `json:"input"`
			InputType string   `json:"input_type"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.InputType != "query" {
			t.Fatalf("input_type = %q, want query", req.InputType)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"embedding": []float32{0.1, 0.2, 0.3}}},
		})
	}))
	defer server.Close()

	client := New(server.URL, "test-key", "voyage-3", "rerank-2", nil)
	vector, err := client.EmbedQuery(context.Background(), "what did we decide")
	if err != nil {
		t.Fatalf("EmbedQuery: %v", err)
	}
	if len(vector) != 3 || vector[0] != 0.1 {
		t.Fatalf("unexpected vector %v", vector)
	}
}

func TestRerankOrdersByRelevance(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/rerank" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		var req struct {
			Query     string   `json:"query"`
			Documents []string `json:"documents"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if len(req.Documents) != 3 {
			t.Fatalf("documents = %d, want 3", len(req.Documents))
		}
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"index": 2, "relevance_score": 0.91},
				{"index": 0, "relevance_score": 0.44},
				{"index": 1, "relevance_score": 0.12},
			},
		})
	}))
	defer server.Close()

	client := New(server.URL, "k", "voyage-3", "rerank-2", nil)
	candidates := []domain.Candidate{
		{ID: "a", Content: "alpha", Confidence: 0.5},
		{ID: "b", Content: "beta", Confidence: 0.6},
		{ID: "c", Content: "gamma", Confidence: 0.4},
	}

	reranked, err := client.Rerank(context.Background(), "gamma things", candidates, 0)
	if err != nil {
		t.Fatalf("Rerank: %v", err)
	}
	if len(reranked) != 3 {
		t.Fatalf("reranked len = %d", len(reranked))
	}
	if reranked[0].ID != "c" || reranked[1].ID != "a" || reranked[2].ID != "b" {
		t.Fatalf("order = %s,%s,%s", reranked[0].ID, reranked[1].ID, reranked[2].ID)
	}
	if reranked[0].Confidence != 0.91 {
		t.Fatalf("confidence not replaced by relevance: %v", reranked[0].Confidence)
	}
	if reranked[0].Content != "gamma" {
		t.Fatalf("content must pass through, got %q", reranked[0].Content)
	}
}

func TestRerankEmptyInput(t *testing.T) {
	client := New("http://unused", "k", "voyage-3", "rerank-2", nil)
	got, err := client.Rerank(context.Background(), "q", nil, 5)
	if err != nil {
		t.Fatalf("Rerank: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("want empty non-nil slice, got %v", got)
	}
}

func TestRerankRejectsOutOfRangeIndex(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"index": 5, "relevance_score": 0.9}},
		})
	}))
	defer server.Close()

	client := New(server.URL, "k", "voyage-3", "rerank-2", nil)
	_, err := client.Rerank(context.Background(), "q", []domain.Candidate{{ID: "a", Content: "x"}}, 0)
	if err == nil {
		t.Fatal("expected error for out of range index")
	}
}

func TestServerErrorIsHTTPStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := New(server.URL, "k", "voyage-3", "rerank-2", nil)
	_, err := client.EmbedQuery(context.Background(), "q")
	if err == nil {
		t.Fatal("expected error")
	}
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("retryable status must wrap as temporary, got %v", err)
	}
	var statusErr *HTTPStatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected HTTPStatusError in chain, got %v", err)
	}
	if statusErr.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status code = %d", statusErr.StatusCode)
	}
}

func TestClassifyVoyageError(t *testing.T) {
	if class := classifyVoyageError(context.Canceled); class.RecordFailure {
		t.Fatal("cancellation must not count as breaker failure")
	}
	retryable := classifyVoyageError(&HTTPStatusError{StatusCode: http.StatusBadGateway})
	if !retryable.Retryable || !retryable.RecordFailure {
		t.Fatalf("502 should be retryable failure, got %+v", retryable)
	}
	permanent := classifyVoyageError(&HTTPStatusError{StatusCode: http.StatusUnprocessableEntity})
	if permanent.Retryable || permanent.RecordFailure {
		t.Fatalf("422 should be permanent and unrecorded, got %+v", permanent)
	}
}

func TestAvailableWithoutExecutor(t *testing.T) {
	client := New("http://unused", "k", "voyage-3", "rerank-2", nil)
	if !client.Available(context.Background()) {
		t.Fatal("client without breaker must report available")
	}
}
