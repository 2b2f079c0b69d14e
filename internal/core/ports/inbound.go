package ports

import (
	"context"

	"github.com/kirillkom/second-brain/internal/core/domain"
)

// ContextRetriever is the inbound contract consumed by the planning module.
// Every recoverable condition yields a complete envelope; only contract
// violations come back as errors.
type ContextRetriever interface {
	Retrieve(ctx context.Context, req domain.RetrievalRequest) (*domain.RetrievalResponse, error)
}

// EntityResolutionService is the inbound contract for trigram entity lookup.
type EntityResolutionService interface {
	Resolve(ctx context.Context, name string, threshold float64, limit int) ([]domain.EntityMatch, error)
}
