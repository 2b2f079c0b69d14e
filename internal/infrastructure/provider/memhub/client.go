package memhub

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/second-brain/internal/core/domain"
	"github.com/kirillkom/second-brain/internal/core/ports"
)

// Client talks to the managed memory service. The service reranks results
// natively, which is why the rerank policy bypasses the external pass for
// this provider by default.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) Capabilities() ports.ProviderCapabilities {
	return ports.ProviderCapabilities{
		Name:            domain.ProviderMemHub,
		HasNativeRerank: true,
	}
}

type searchRequest struct {
	Query   string            `json:"query"`
	TopK    int               `json:"top_k"`
	Rerank  bool              `json:"rerank"`
	Filters map[string]string `json:"filters,omitempty"`
}

type searchResult struct {
	ID       string            `json:"id"`
	Memory   string            `json:"memory"`
	Score    float64           `json:"score"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type searchResponse struct {
	Results []searchResult `json:"results"`
}

// Search queries the memory service. Conversation-scoped filters (user id,
// conversation id) pass through verbatim.
func (c *Client) Search(ctx context.Context, req domain.RetrievalRequest) ([]domain.Candidate, error) {
	payload := searchRequest{
		Query:   req.Query,
		TopK:    req.TopK,
		Rerank:  true,
		Filters: req.Filters,
	}

	var response searchResponse
	if err := c.postJSON(ctx, "/v1/memories/search", payload, &response); err != nil {
		return nil, domain.WrapError(domain.ErrProviderUnavailable, "memhub search", err)
	}

	candidates := make([]domain.Candidate, 0, len(response.Results))
	for _, result := range response.Results {
		candidates = append(candidates, domain.Candidate{
			ID:         result.ID,
			Content:    result.Memory,
			Source:     domain.ProviderMemHub,
			Confidence: clamp01(result.Score),
			Metadata:   result.Metadata,
		})
	}
	return candidates, nil
}

// Ping lets the health prober measure reachability.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/health", nil)
	if err != nil {
		return fmt.Errorf("create health request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("memhub health: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("memhub health status: %s", resp.Status)
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("post %s status %s: %s", path, resp.Status, strings.TrimSpace(string(raw)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
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
