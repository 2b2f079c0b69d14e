package ports

import (
	"context"

	"github.com/kirillkom/second-brain/internal/core/domain"
)

// ProviderCapabilities declares what a backend can do natively. The router
// and the rerank policy dispatch on these flags, not on provider identity
// strings.
type ProviderCapabilities struct {
	Name                   string
	HasNativeRerank        bool
	SupportsGraphTraversal bool
	SupportsLexicalSearch  bool
}

// ContextProvider returns ranked candidates for a query. Implementations
// must honor ctx cancellation; a timeout is a routing input, not an error
// the orchestrator propagates.
type ContextProvider interface {
	Capabilities() ProviderCapabilities
	Search(ctx context.Context, req domain.RetrievalRequest) ([]domain.Candidate, error)
}

// ExternalReranker reorders candidates by relevance to the query via an
// external model service.
type ExternalReranker interface {
	Rerank(ctx context.Context, query string, candidates []domain.Candidate, topK int) ([]domain.Candidate, error)
	Available(ctx context.Context) bool
}

// Embedder builds a query vector for store-backed providers.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// EntityResolver is the fuzzy name-match primitive, independent of the
// hybrid search path.
type EntityResolver interface {
	ResolveEntity(ctx context.Context, name string, threshold float64, limit int) ([]domain.EntityMatch, error)
}

// HealthSource exposes the current snapshot and flags. Implementations swap
// whole values atomically; a returned snapshot is never mutated.
type HealthSource interface {
	Snapshot() domain.HealthSnapshot
	Flags() domain.FeatureFlags
}

// HealthPublisher pushes a fresh snapshot to interested processes.
type HealthPublisher interface {
	PublishSnapshot(ctx context.Context, snapshot domain.HealthSnapshot) error
}
