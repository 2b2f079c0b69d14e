package pgstore

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/second-brain/internal/core/domain"
	"github.com/kirillkom/second-brain/internal/core/ports"
)

// Provider is the store-backed retrieval provider: pgvector similarity plus
// full-text ranking, fused inside postgres by reciprocal rank scoring.
type Provider struct {
	db       *sql.DB
	embedder ports.Embedder
	opts     Options
}

// Options tunes the hybrid search primitive. Zero values fall back to the
// documented defaults.
type Options struct {
	PoolSize     int
	VectorWeight float64
	TextWeight   float64
	RRFK         int
}

func (o Options) normalize() Options {
	out := o
	if out.PoolSize <= 0 {
		out.PoolSize = 50
	}
	if out.VectorWeight == 0 {
		out.VectorWeight = 1.0
	}
	if out.TextWeight == 0 {
		out.TextWeight = 1.0
	}
	if out.RRFK <= 0 {
		out.RRFK = 60
	}
	return out
}

func New(db *sql.DB, embedder ports.Embedder, opts Options) *Provider {
	return &Provider{db: db, embedder: embedder, opts: opts.normalize()}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (p *Provider) Capabilities() ports.ProviderCapabilities {
	return ports.ProviderCapabilities{
		Name:                  domain.ProviderPGStore,
		SupportsLexicalSearch: true,
	}
}

// HybridRow is one ranked row from the hybrid search primitive. VectorRank
// and TextRank are nullable: a row absent from one ranking carries no rank
// for it.
type HybridRow struct {
	ID            string
	Content       string
	KnowledgeType string
	FusedScore    float64
	Similarity    float64
	VectorRank    sql.NullInt64
	TextRank      sql.NullInt64
}

// Two ranked CTEs full-outer-joined on id. Only active rows participate:
// soft-deleted, superseded and archived chunks never surface. Ordering is
// fused score descending with id as the deterministic tie-break.
const hybridSearchSQL = `
WITH vector_results AS (
	SELECT kc.id,
	       1 - (kc.embedding <=> $1::vector) AS similarity,
	       ROW_NUMBER() OVER (ORDER BY kc.embedding <=> $1::vector, kc.id) AS vector_rank
	FROM knowledge_chunks kc
	WHERE kc.status = 'active'
	  AND ($6 = '' OR kc.knowledge_type = $6)
	ORDER BY kc.embedding <=> $1::vector, kc.id
	LIMIT $4
),
text_results AS (
	SELECT kc.id,
	       ROW_NUMBER() OVER (ORDER BY ts_rank_cd(kc.content_tsv, plainto_tsquery('english', $2)) DESC, kc.id) AS text_rank
	FROM knowledge_chunks kc
	WHERE kc.status = 'active'
	  AND ($6 = '' OR kc.knowledge_type = $6)
	  AND kc.content_tsv @@ plainto_tsquery('english', $2)
	ORDER BY ts_rank_cd(kc.content_tsv, plainto_tsquery('english', $2)) DESC, kc.id
	LIMIT $4
),
combined AS (
	SELECT COALESCE(v.id, t.id) AS id,
	       COALESCE($7 / ($5 + v.vector_rank), 0) + COALESCE($8 / ($5 + t.text_rank), 0) AS rrf_score,
	       COALESCE(v.similarity, 0) AS similarity,
	       v.vector_rank,
	       t.text_rank
	FROM vector_results v
	FULL OUTER JOIN text_results t ON v.id = t.id
)
SELECT c.id, kc.content, kc.knowledge_type, c.rrf_score, c.similarity, c.vector_rank, c.text_rank
FROM combined c
JOIN knowledge_chunks kc ON kc.id = c.id
ORDER BY c.rrf_score DESC, c.id ASC
LIMIT $3
`

// HybridSearch runs the rank-fusion primitive over the knowledge corpus.
func (p *Provider) HybridSearch(ctx context.Context, embedding []float32, query string, limit int, typeFilter string) ([]HybridRow, error) {
	if limit <= 0 {
		limit = domain.DefaultTopK
	}

	rows, err := p.db.QueryContext(ctx, hybridSearchSQL,
		vectorLiteral(embedding),
		query,
		limit,
		p.opts.PoolSize,
		float64(p.opts.RRFK),
		typeFilter,
		p.opts.VectorWeight,
		p.opts.TextWeight,
	)
	if err != nil {
		return nil, domain.WrapError(domain.ErrProviderUnavailable, "pgstore hybrid search", err)
	}
	defer rows.Close()

	var out []HybridRow
	for rows.Next() {
		var row HybridRow
		if err := rows.Scan(&row.ID, &row.Content, &row.KnowledgeType, &row.FusedScore, &row.Similarity, &row.VectorRank, &row.TextRank); err != nil {
			return nil, fmt.Errorf("scan hybrid row: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.WrapError(domain.ErrProviderUnavailable, "pgstore hybrid search", err)
	}
	return out, nil
}

// Search implements the provider contract: embed the query, run hybrid
// search, map rows to candidates. Confidence is the clamped vector
// similarity, so downstream thresholds work in the same space as other
// providers.
func (p *Provider) Search(ctx context.Context, req domain.RetrievalRequest) ([]domain.Candidate, error) {
	embedding, err := p.embedder.EmbedQuery(ctx, req.Query)
	if err != nil {
		return nil, domain.WrapError(domain.ErrProviderUnavailable, "pgstore embed query", err)
	}

	typeFilter := ""
	if req.Filters != nil {
		typeFilter = req.Filters["knowledge_type"]
	}

	rows, err := p.HybridSearch(ctx, embedding, req.Query, req.TopK, typeFilter)
	if err != nil {
		return nil, err
	}

	candidates := make([]domain.Candidate, 0, len(rows))
	for _, row := range rows {
		metadata := map[string]string{
			"knowledge_type": row.KnowledgeType,
			"fused_score":    strconv.FormatFloat(row.FusedScore, 'f', -1, 64),
		}
		if row.VectorRank.Valid {
			metadata["vector_rank"] = strconv.FormatInt(row.VectorRank.Int64, 10)
		}
		if row.TextRank.Valid {
			metadata["text_rank"] = strconv.FormatInt(row.TextRank.Int64, 10)
		}
		candidates = append(candidates, domain.Candidate{
			ID:         row.ID,
			Content:    row.Content,
			Source:     domain.ProviderPGStore,
			Confidence: clamp01(row.Similarity),
			Metadata:   metadata,
		})
	}
	return candidates, nil
}

const trigramSearchSQL = `
SELECT e.id, e.name, e.entity_type, similarity(e.name, $1) AS sim
FROM entities e
WHERE e.status = 'active'
  AND similarity(e.name, $1) >= $2
ORDER BY sim DESC, e.id ASC
LIMIT $3
`

// ResolveEntity is the fuzzy name-match primitive: trigram similarity over
// entity names, independent of the hybrid search path.
func (p *Provider) ResolveEntity(ctx context.Context, name string, threshold float64, limit int) ([]domain.EntityMatch, error) {
	if name == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "resolve entity", fmt.Errorf("name must be non-empty"))
	}
	if threshold <= 0 {
		threshold = 0.3
	}
	if limit <= 0 {
		limit = 10
	}

	rows, err := p.db.QueryContext(ctx, trigramSearchSQL, name, threshold, limit)
	if err != nil {
		return nil, domain.WrapError(domain.ErrProviderUnavailable, "pgstore trigram search", err)
	}
	defer rows.Close()

	var out []domain.EntityMatch
	for rows.Next() {
		var match domain.EntityMatch
		if err := rows.Scan(&match.ID, &match.Name, &match.EntityType, &match.Similarity); err != nil {
			return nil, fmt.Errorf("scan entity row: %w", err)
		}
		out = append(out, match)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.WrapError(domain.ErrProviderUnavailable, "pgstore trigram search", err)
	}
	return out, nil
}

// Ping lets the health prober measure reachability.
func (p *Provider) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func vectorLiteral(embedding []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range embedding {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(v), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
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
