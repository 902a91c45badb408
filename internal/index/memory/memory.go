// Package memory implements the embedding index with brute-force cosine
// similarity. It backs tests and single-process deployments without Redis.
package memory

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/index"
)

// Compile-time check: Index implements index.Index.
var _ index.Index = (*Index)(nil)

type record struct {
	chunk domain.Chunk
	state index.State
}

// Index is an in-memory embedding index.
type Index struct {
	mu      sync.RWMutex
	records map[string]*record
}

// New creates an empty in-memory index.
func New() *Index {
	return &Index{records: make(map[string]*record)}
}

// Upsert stages chunks invisibly to queries. One embedding per chunk
// identity; re-staging an identity overwrites it.
func (x *Index) Upsert(_ context.Context, chunks []domain.Chunk) error {
	for i := range chunks {
		if len(chunks[i].Vector()) == 0 {
			return fmt.Errorf("chunk %s has no vector: %w", chunks[i].ID(), domain.ErrValidation)
		}
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	for i := range chunks {
		c := chunks[i]
		x.records[c.ID()] = &record{chunk: c, state: index.StateStaged}
	}
	return nil
}

// Commit flips a staged version live and demotes earlier live versions of
// the same document, all under one lock so readers never see a mix.
func (x *Index) Commit(_ context.Context, documentID string, version int) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	for _, r := range x.records {
		if r.chunk.DocumentID() != documentID {
			continue
		}
		switch {
		case r.chunk.Version() == version && r.state == index.StateStaged:
			r.state = index.StateLive
		case r.chunk.Version() != version && r.state == index.StateLive:
			r.state = index.StateSuperseded
		}
	}
	return nil
}

// Discard drops a staged version's chunks (ingestion rollback).
func (x *Index) Discard(_ context.Context, documentID string, version int) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	for id, r := range x.records {
		if r.chunk.DocumentID() == documentID && r.chunk.Version() == version && r.state == index.StateStaged {
			delete(x.records, id)
		}
	}
	return nil
}

// Retire soft-retires a version; its chunks stay resolvable for historical
// queries but never appear in default retrieval.
func (x *Index) Retire(_ context.Context, documentID string, version int) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	for _, r := range x.records {
		if r.chunk.DocumentID() == documentID && r.chunk.Version() == version {
			r.state = index.StateRetired
		}
	}
	return nil
}

// Query returns up to topK entries by cosine similarity. An empty index
// yields an empty result.
func (x *Index) Query(_ context.Context, vector []float32, topK int, f index.Filter) ([]index.Entry, error) {
	if topK <= 0 || len(vector) == 0 {
		return nil, nil
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	var entries []index.Entry
	for _, r := range x.records {
		if !matches(r, f) {
			continue
		}
		c := &r.chunk
		entries = append(entries, index.Entry{
			ChunkID:    c.ID(),
			Score:      cosine(vector, c.Vector()),
			DocumentID: c.DocumentID(),
			Version:    c.Version(),
			Seq:        c.Seq(),
			Text:       c.Text(),
			Audiences:  c.Audiences(),
		})
	}

	index.SortEntries(entries)
	if len(entries) > topK {
		entries = entries[:topK]
	}
	return entries, nil
}

func matches(r *record, f index.Filter) bool {
	// Staged chunks are never visible.
	if r.state == index.StateStaged {
		return false
	}
	if f.Audience != "" && !r.chunk.Audiences().Contains(f.Audience) {
		return false
	}
	if f.DocumentID != "" && r.chunk.DocumentID() != f.DocumentID {
		return false
	}
	if f.Version > 0 {
		return r.chunk.Version() == f.Version
	}
	if f.IncludeHistorical {
		return true
	}
	return r.state == index.StateLive
}

func cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
