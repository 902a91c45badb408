package retrieve

import (
	"context"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/index"
)

// Index defines the embedding index query contract.
type Index interface {
	Query(ctx context.Context, vector []float32, topK int, f index.Filter) ([]index.Entry, error)
}

// Embedder vectorizes the query text.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}
