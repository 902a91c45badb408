package ingest

import (
	"context"
	"strings"
	"testing"

	"github.com/kailas-cloud/ragdex/internal/domain"
)

type mockCatalog struct {
	getFn              func(ctx context.Context, id string) (domain.Document, error)
	saveFn             func(ctx context.Context, doc *domain.Document) error
	setVersionStatusFn func(ctx context.Context, id string, version int, status domain.DocumentStatus) error
}

func (m *mockCatalog) Get(ctx context.Context, id string) (domain.Document, error) {
	if m.getFn != nil {
		return m.getFn(ctx, id)
	}
	return domain.Document{}, domain.ErrDocumentNotFound
}

func (m *mockCatalog) Save(ctx context.Context, doc *domain.Document) error {
	if m.saveFn != nil {
		return m.saveFn(ctx, doc)
	}
	return nil
}

func (m *mockCatalog) SetVersionStatus(ctx context.Context, id string, version int, status domain.DocumentStatus) error {
	if m.setVersionStatusFn != nil {
		return m.setVersionStatusFn(ctx, id, version, status)
	}
	return nil
}

type mockIndex struct {
	upsertFn  func(ctx context.Context, chunks []domain.Chunk) error
	commitFn  func(ctx context.Context, documentID string, version int) error
	discardFn func(ctx context.Context, documentID string, version int) error
}

func (m *mockIndex) Upsert(ctx context.Context, chunks []domain.Chunk) error {
	if m.upsertFn != nil {
		return m.upsertFn(ctx, chunks)
	}
	return nil
}

func (m *mockIndex) Commit(ctx context.Context, documentID string, version int) error {
	if m.commitFn != nil {
		return m.commitFn(ctx, documentID, version)
	}
	return nil
}

func (m *mockIndex) Discard(ctx context.Context, documentID string, version int) error {
	if m.discardFn != nil {
		return m.discardFn(ctx, documentID, version)
	}
	return nil
}

// sentenceChunker splits on ". " so tests control chunk counts with plain prose.
type sentenceChunker struct{}

func (sentenceChunker) Split(text string) []string {
	var out []string
	for _, part := range strings.Split(text, ". ") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

type mockEmbedder struct {
	batchFn func(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error)
}

func (m *mockEmbedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if m.batchFn != nil {
		return m.batchFn(ctx, texts)
	}
	embeddings := make([][]float32, len(texts))
	for i := range texts {
		embeddings[i] = []float32{1, 0, 0}
	}
	return domain.BatchEmbeddingResult{Embeddings: embeddings}, nil
}

func newTestService(t *testing.T) (*Service, *mockCatalog, *mockIndex, *mockEmbedder) {
	t.Helper()
	catalog := &mockCatalog{}
	idx := &mockIndex{}
	embed := &mockEmbedder{}
	return New(catalog, idx, sentenceChunker{}, embed), catalog, idx, embed
}

func testRequest() *Request {
	return &Request{
		ID:        "setup-guide",
		Title:     "Setup Guide",
		Text:      "Install the package. Configure the gateway. Restart the service.",
		Format:    "markdown",
		Audiences: []string{"customer"},
	}
}
