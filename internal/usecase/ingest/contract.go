package ingest

import (
	"context"

	"github.com/kailas-cloud/ragdex/internal/domain"
)

// Catalog defines the document metadata storage contract.
type Catalog interface {
	Get(ctx context.Context, id string) (domain.Document, error)
	Save(ctx context.Context, doc *domain.Document) error
	SetVersionStatus(ctx context.Context, id string, version int, status domain.DocumentStatus) error
}

// Index defines the embedding index contract for staged version writes.
type Index interface {
	Upsert(ctx context.Context, chunks []domain.Chunk) error
	Commit(ctx context.Context, documentID string, version int) error
	Discard(ctx context.Context, documentID string, version int) error
}

// Chunker splits document text into bounded retrievable segments.
type Chunker interface {
	Split(text string) []string
}

// Embedder vectorizes chunk texts in batches.
type Embedder interface {
	BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error)
}
