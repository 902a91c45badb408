package ingest

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"
	"testing"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/index/memory"
	"github.com/kailas-cloud/ragdex/internal/usecase/retrieve"
)

// mapCatalog keeps the latest document per ID, enough for the version walk.
type mapCatalog struct {
	docs    map[string]domain.Document
	saveErr error
}

func newMapCatalog() *mapCatalog {
	return &mapCatalog{docs: make(map[string]domain.Document)}
}

func (c *mapCatalog) Get(_ context.Context, id string) (domain.Document, error) {
	doc, ok := c.docs[id]
	if !ok {
		return domain.Document{}, domain.ErrDocumentNotFound
	}
	return doc, nil
}

func (c *mapCatalog) Save(_ context.Context, doc *domain.Document) error {
	if c.saveErr != nil {
		return c.saveErr
	}
	c.docs[doc.ID()] = *doc
	return nil
}

func (c *mapCatalog) SetVersionStatus(_ context.Context, id string, version int, status domain.DocumentStatus) error {
	return nil
}

// wordEmbedder hashes tokens into a fixed-size bag-of-words vector, so texts
// sharing words land close under cosine similarity.
type wordEmbedder struct {
	failOn string
}

func (e *wordEmbedder) vector(text string) []float32 {
	v := make([]float32, 16)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		tok = strings.Trim(tok, ".,!?")
		h := fnv.New32a()
		_, _ = h.Write([]byte(tok))
		v[h.Sum32()%16]++
	}
	return v
}

func (e *wordEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	return domain.EmbeddingResult{Embedding: e.vector(text)}, nil
}

func (e *wordEmbedder) BatchEmbed(_ context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	embeddings := make([][]float32, len(texts))
	for i, t := range texts {
		if e.failOn != "" && strings.Contains(t, e.failOn) {
			return domain.BatchEmbeddingResult{}, &domain.BatchItemError{Index: i, Err: errors.New("provider down")}
		}
		embeddings[i] = e.vector(t)
	}
	return domain.BatchEmbeddingResult{Embeddings: embeddings}, nil
}

func newPipeline(embed *wordEmbedder) (*Service, *retrieve.Service, *memory.Index) {
	idx := memory.New()
	ingestSvc := New(newMapCatalog(), idx, sentenceChunker{}, embed)
	retrieveSvc := retrieve.New(idx, embed, retrieve.Options{MaxPerDocument: 2})
	return ingestSvc, retrieveSvc, idx
}

func TestPipelineIngestThenRetrieve(t *testing.T) {
	embed := &wordEmbedder{}
	ingestSvc, retrieveSvc, _ := newPipeline(embed)
	ctx := context.Background()

	res, err := ingestSvc.Ingest(ctx, &Request{
		ID:        "setup-guide",
		Title:     "Setup Guide",
		Text:      "Install the package. Configure the gateway address. Restart the service.",
		Audiences: []string{"customer"},
	})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if res.Version != 1 || res.Chunks != 3 {
		t.Fatalf("unexpected result: %+v", res)
	}

	hits, err := retrieveSvc.Retrieve(ctx, &retrieve.Request{
		Query:    "configure gateway address",
		Audience: "customer",
		TopK:     1,
	})
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected 1 hit, got %d", len(hits))
	}
	if hits[0].Text != "Configure the gateway address" {
		t.Errorf("wrong chunk retrieved: %q", hits[0].Text)
	}
}

func TestPipelineNewVersionSupersedesOld(t *testing.T) {
	embed := &wordEmbedder{}
	ingestSvc, retrieveSvc, _ := newPipeline(embed)
	ctx := context.Background()

	if _, err := ingestSvc.Ingest(ctx, &Request{
		ID:        "setup-guide",
		Title:     "Setup Guide",
		Text:      "Configure the gateway address manually.",
		Audiences: []string{"customer"},
	}); err != nil {
		t.Fatalf("ingest v1: %v", err)
	}

	res, err := ingestSvc.Ingest(ctx, &Request{
		ID:        "setup-guide",
		Title:     "Setup Guide",
		Text:      "Configure the gateway address through the admin console.",
		Audiences: []string{"customer"},
	})
	if err != nil {
		t.Fatalf("ingest v2: %v", err)
	}
	if res.Version != 2 {
		t.Fatalf("expected version 2, got %d", res.Version)
	}

	hits, err := retrieveSvc.Retrieve(ctx, &retrieve.Request{
		Query:    "configure gateway address",
		Audience: "customer",
		TopK:     5,
	})
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	for _, h := range hits {
		if h.Version != 2 {
			t.Errorf("superseded chunk %s (v%d) served by default retrieval", h.ChunkID, h.Version)
		}
	}

	// The old version stays reachable for citation replay.
	historical, err := retrieveSvc.Retrieve(ctx, &retrieve.Request{
		Query:             "configure gateway address",
		Audience:          "customer",
		DocumentID:        "setup-guide",
		Version:           1,
		IncludeHistorical: true,
	})
	if err != nil {
		t.Fatalf("historical retrieve: %v", err)
	}
	if len(historical) == 0 {
		t.Fatal("expected superseded version to remain resolvable")
	}
}

func TestPipelineUnchangedResubmitIsNoop(t *testing.T) {
	embed := &wordEmbedder{}
	ingestSvc, _, _ := newPipeline(embed)
	ctx := context.Background()

	req := &Request{
		ID:        "setup-guide",
		Title:     "Setup Guide",
		Text:      "Configure the gateway address.",
		Audiences: []string{"customer"},
	}
	if _, err := ingestSvc.Ingest(ctx, req); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	res, err := ingestSvc.Ingest(ctx, req)
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if !res.Unchanged || res.Version != 1 {
		t.Fatalf("expected unchanged v1, got %+v", res)
	}
}

func TestPipelineFailedIngestKeepsPriorVersionLive(t *testing.T) {
	embed := &wordEmbedder{}
	ingestSvc, retrieveSvc, _ := newPipeline(embed)
	ctx := context.Background()

	if _, err := ingestSvc.Ingest(ctx, &Request{
		ID:        "setup-guide",
		Title:     "Setup Guide",
		Text:      "Configure the gateway address.",
		Audiences: []string{"customer"},
	}); err != nil {
		t.Fatalf("ingest v1: %v", err)
	}

	embed.failOn = "poison"
	_, err := ingestSvc.Ingest(ctx, &Request{
		ID:        "setup-guide",
		Title:     "Setup Guide",
		Text:      "Configure the gateway address. This poison sentence fails embedding.",
		Audiences: []string{"customer"},
	})
	if !errors.Is(err, domain.ErrIngestionFailed) {
		t.Fatalf("expected ErrIngestionFailed, got %v", err)
	}
	embed.failOn = ""

	hits, err := retrieveSvc.Retrieve(ctx, &retrieve.Request{
		Query:    "configure gateway address",
		Audience: "customer",
	})
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(hits) == 0 {
		t.Fatal("prior version must stay live after a failed ingestion")
	}
	for _, h := range hits {
		if h.Version != 1 {
			t.Errorf("expected only v1 chunks, got v%d", h.Version)
		}
	}
}

func TestPipelineCatalogFailureKeepsPriorVersionLive(t *testing.T) {
	embed := &wordEmbedder{}
	catalog := newMapCatalog()
	idx := memory.New()
	ingestSvc := New(catalog, idx, sentenceChunker{}, embed)
	retrieveSvc := retrieve.New(idx, embed, retrieve.Options{MaxPerDocument: 2})
	ctx := context.Background()

	if _, err := ingestSvc.Ingest(ctx, &Request{
		ID:        "setup-guide",
		Title:     "Setup Guide",
		Text:      "Configure the gateway address.",
		Audiences: []string{"customer"},
	}); err != nil {
		t.Fatalf("ingest v1: %v", err)
	}

	catalog.saveErr = errors.New("catalog write failed")
	_, err := ingestSvc.Ingest(ctx, &Request{
		ID:        "setup-guide",
		Title:     "Setup Guide",
		Text:      "Configure the gateway address with new body text.",
		Audiences: []string{"customer"},
	})
	if err == nil {
		t.Fatal("expected catalog error")
	}
	catalog.saveErr = nil

	// The version the caller was told failed must not be the one serving.
	hits, err := retrieveSvc.Retrieve(ctx, &retrieve.Request{
		Query:    "configure gateway address",
		Audience: "customer",
	})
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(hits) == 0 {
		t.Fatal("prior version must stay live after a failed ingestion")
	}
	for _, h := range hits {
		if h.Version != 1 {
			t.Errorf("uncataloged chunk %s (v%d) served by retrieval", h.ChunkID, h.Version)
		}
	}
	doc, err := catalog.Get(ctx, "setup-guide")
	if err != nil {
		t.Fatalf("catalog get: %v", err)
	}
	if doc.Version() != 1 {
		t.Errorf("catalog current version %d, want 1", doc.Version())
	}
}

func TestPipelineAudienceBoundary(t *testing.T) {
	embed := &wordEmbedder{}
	ingestSvc, retrieveSvc, _ := newPipeline(embed)
	ctx := context.Background()

	if _, err := ingestSvc.Ingest(ctx, &Request{
		ID:        "service-manual",
		Title:     "Service Manual",
		Text:      "Replace the thermal fuse behind the relay.",
		Audiences: []string{"field-engineer"},
	}); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	hits, err := retrieveSvc.Retrieve(ctx, &retrieve.Request{
		Query:    "replace the thermal fuse",
		Audience: "customer",
	})
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(hits) != 0 {
		t.Fatalf("customer must not see field-engineer chunks, got %d hits", len(hits))
	}
}
