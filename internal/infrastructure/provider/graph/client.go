package graph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/kirillkom/second-brain/internal/core/domain"
	"github.com/kirillkom/second-brain/internal/core/ports"
)

// Client retrieves candidates from the knowledge graph. Scores come from
// the graph's full-text index and are squashed into confidence space before
// leaving this package.
type Client struct {
	driver   neo4j.DriverWithContext
	database string
}

func New(uri, user, password, database string) (*Client, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	return &Client{driver: driver, database: database}, nil
}

func (c *Client) Capabilities() ports.ProviderCapabilities {
	return ports.ProviderCapabilities{
		Name:                   domain.ProviderGraph,
		SupportsGraphTraversal: true,
	}
}

const searchCypher = `
CALL db.index.fulltext.queryNodes('knowledge_text', $query) YIELD node, score
WHERE node.status = 'active'
RETURN node.id AS id, node.content AS content, node.kind AS kind, score
ORDER BY score DESC, id ASC
LIMIT $limit
`

func (c *Client) Search(ctx context.Context, req domain.RetrievalRequest) ([]domain.Candidate, error) {
	session := c.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: c.database,
	})
	defer session.Close(ctx)

	records, err := session.Run(ctx, searchCypher, map[string]any{
		"query": req.Query,
		"limit": req.TopK,
	})
	if err != nil {
		return nil, domain.WrapError(domain.ErrProviderUnavailable, "graph search", err)
	}

	var candidates []domain.Candidate
	for records.Next(ctx) {
		record := records.Record()
		id, _ := record.Get("id")
		content, _ := record.Get("content")
		kind, _ := record.Get("kind")
		score, _ := record.Get("score")

		candidates = append(candidates, domain.Candidate{
			ID:         asString(id),
			Content:    asString(content),
			Source:     domain.ProviderGraph,
			Confidence: normalizeScore(asFloat(score)),
			Metadata:   map[string]string{"kind": asString(kind)},
		})
	}
	if err := records.Err(); err != nil {
		return nil, domain.WrapError(domain.ErrProviderUnavailable, "graph search", err)
	}
	return candidates, nil
}

// Ping lets the health prober measure reachability.
func (c *Client) Ping(ctx context.Context) error {
	return c.driver.VerifyConnectivity(ctx)
}

func (c *Client) Close(ctx context.Context) error {
	return c.driver.Close(ctx)
}

// normalizeScore squashes the unbounded lucene score into [0,1). Keeps
// ordering intact while staying comparable with confidence thresholds.
func normalizeScore(score float64) float64 {
	if score <= 0 {
		return 0
	}
	return score / (1 + score)
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	}
	return 0
}
