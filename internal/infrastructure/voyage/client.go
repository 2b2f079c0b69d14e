package voyage

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/kirillkom/second-brain/internal/core/domain"
	"github.com/kirillkom/second-brain/internal/infrastructure/resilience"
)

// Client talks to the Voyage AI API for query embeddings and external
// reranking. Calls run through the resilience executor so a flapping
// upstream trips the breaker instead of stalling retrieval.
type Client struct {
	baseURL     string
	apiKey      string
	embedModel  string
	rerankModel string
	httpClient  *http.Client
	executor    *resilience.Executor
}

func New(baseURL, apiKey, embedModel, rerankModel string, executor *resilience.Executor) *Client {
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		apiKey:      apiKey,
		embedModel:  embedModel,
		rerankModel: rerankModel,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		executor:    executor,
	}
}

func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	request := map[string]any{
		"model":      c.embedModel,
		"input":      []string{text},
		"input_type": "query",
	}

	var response struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}

	err := c.execute(ctx, "embed", func(ctx context.Context) error {
		return c.postJSON(ctx, "/v1/embeddings", request, &response, "embed")
	})
	if err != nil {
		return nil, wrapTemporaryIfNeeded("embed query", err)
	}
	if len(response.Data) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	return response.Data[0].Embedding, nil
}

// Rerank reorders candidates by relevance to the query. Returned candidates
// carry the rerank relevance as confidence; candidate identity and content
// pass through untouched.
func (c *Client) Rerank(ctx context.Context, query string, candidates []domain.Candidate, topK int) ([]domain.Candidate, error) {
	if len(candidates) == 0 {
		return []domain.Candidate{}, nil
	}
	documents := make([]string, len(candidates))
	for i, cand := range candidates {
		documents[i] = cand.Content
	}

	request := map[string]any{
		"model":     c.rerankModel,
		"query":     query,
		"documents": documents,
	}
	if topK > 0 && topK < len(documents) {
		request["top_k"] = topK
	}

	var response struct {
		Data []struct {
			Index          int     `json:"index"`
			RelevanceScore float64 `json:"relevance_score"`
		} `json:"data"`
	}

	err := c.execute(ctx, "rerank", func(ctx context.Context) error {
		return c.postJSON(ctx, "/v1/rerank", request, &response, "rerank")
	})
	if err != nil {
		return nil, wrapTemporaryIfNeeded("rerank", err)
	}

	sort.SliceStable(response.Data, func(i, j int) bool {
		return response.Data[i].RelevanceScore > response.Data[j].RelevanceScore
	})

	reranked := make([]domain.Candidate, 0, len(response.Data))
	for _, item := range response.Data {
		if item.Index < 0 || item.Index >= len(candidates) {
			return nil, fmt.Errorf("rerank index %d out of range", item.Index)
		}
		cand := candidates[item.Index]
		cand.Confidence = clamp01(item.RelevanceScore)
		reranked = append(reranked, cand)
	}
	return reranked, nil
}

// Available reports whether the reranker should be offered to the policy
// engine. The breaker state is the signal: once the circuit is open the
// service is treated as absent until it recovers.
func (c *Client) Available(ctx context.Context) bool {
	if c.executor == nil {
		return true
	}
	return !c.executor.CircuitOpen("rerank")
}

func (c *Client) execute(ctx context.Context, operation string, fn func(context.Context) error) error {
	if c.executor == nil {
		return fn(ctx)
	}
	return c.executor.Execute(ctx, operation, fn, classifyVoyageError)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
