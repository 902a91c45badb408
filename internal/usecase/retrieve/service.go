// Package retrieve implements audience-scoped candidate retrieval: over-fetch
// from the embedding index, enforce the audience boundary, dedupe per
// document, re-rank, and truncate.
package retrieve

import (
	"context"
	"fmt"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/index"
	"github.com/kailas-cloud/ragdex/internal/metrics"
)

const (
	// DefaultTopK is the result count when the caller does not specify one.
	DefaultTopK = 5
	// overFetchFactor widens the index query so post-filtering has candidates
	// to drop.
	overFetchFactor = 3
)

// Request describes one retrieval.
type Request struct {
	Query    string
	Audience domain.Audience
	TopK     int

	// DocumentID and Version pin retrieval to one document version, used for
	// citation replay. IncludeHistorical admits superseded and retired
	// versions.
	DocumentID        string
	Version           int
	IncludeHistorical bool
}

// Options tune ranking behavior.
type Options struct {
	// MaxPerDocument caps how many chunks of a single document survive
	// deduplication. Zero means 2.
	MaxPerDocument int
	// VersionBoost is added to the score of chunks from the newest retrieved
	// version of their document. Zero disables the boost.
	VersionBoost float64
}

// Service is the retrieval engine.
type Service struct {
	index  Index
	embed  Embedder
	maxPer int
	boost  float64
}

// New creates a retrieval service.
func New(idx Index, embed Embedder, opts Options) *Service {
	maxPer := opts.MaxPerDocument
	if maxPer <= 0 {
		maxPer = 2
	}
	return &Service{index: idx, embed: embed, maxPer: maxPer, boost: opts.VersionBoost}
}

// Retrieve returns ranked, deduplicated chunks visible to the request's
// audience. Fewer than TopK results is a valid outcome, never padded.
func (s *Service) Retrieve(ctx context.Context, req *Request) ([]index.Entry, error) {
	if _, err := domain.ParseAudience(string(req.Audience)); err != nil {
		metrics.RetrievalRequestsTotal.WithLabelValues(string(req.Audience), "error").Inc()
		return nil, err
	}
	if req.Query == "" {
		metrics.RetrievalRequestsTotal.WithLabelValues(string(req.Audience), "error").Inc()
		return nil, fmt.Errorf("query text is required: %w", domain.ErrValidation)
	}
	if req.Version > 0 && req.DocumentID == "" {
		metrics.RetrievalRequestsTotal.WithLabelValues(string(req.Audience), "error").Inc()
		return nil, fmt.Errorf("version pin requires a document ID: %w", domain.ErrValidation)
	}
	topK := req.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}

	embRes, err := s.embed.Embed(ctx, req.Query)
	if err != nil {
		metrics.RetrievalRequestsTotal.WithLabelValues(string(req.Audience), "error").Inc()
		return nil, fmt.Errorf("vectorize query: %w", err)
	}

	candidates, err := s.index.Query(ctx, embRes.Embedding, topK*overFetchFactor, index.Filter{
		Audience:          req.Audience,
		DocumentID:        req.DocumentID,
		Version:           req.Version,
		IncludeHistorical: req.IncludeHistorical,
	})
	if err != nil {
		metrics.RetrievalRequestsTotal.WithLabelValues(string(req.Audience), "error").Inc()
		return nil, fmt.Errorf("query index: %w", err)
	}

	// The index already filters by audience; a hit outside the requester's
	// scope means the boundary failed somewhere and the request must die.
	for i := range candidates {
		if !candidates[i].Audiences.Contains(req.Audience) {
			metrics.RetrievalRequestsTotal.WithLabelValues(string(req.Audience), "error").Inc()
			return nil, fmt.Errorf("chunk %s not visible to audience %s: %w",
				candidates[i].ChunkID, req.Audience, domain.ErrScopeViolation)
		}
	}

	results := s.rerank(dedupe(candidates, s.maxPer))
	if len(results) > topK {
		results = results[:topK]
	}

	metrics.RetrievalRequestsTotal.WithLabelValues(string(req.Audience), "success").Inc()
	metrics.RetrievalChunksReturned.Observe(float64(len(results)))
	return results, nil
}

// dedupe keeps at most maxPer chunks per document, preferring the
// higher-ranked ones. Input order is the index ranking.
func dedupe(entries []index.Entry, maxPer int) []index.Entry {
	perDoc := make(map[string]int, len(entries))
	out := entries[:0:0]
	for _, e := range entries {
		if perDoc[e.DocumentID] >= maxPer {
			continue
		}
		perDoc[e.DocumentID]++
		out = append(out, e)
	}
	return out
}

// rerank applies the version boost and restores the canonical ordering.
func (s *Service) rerank(entries []index.Entry) []index.Entry {
	if s.boost > 0 {
		newest := make(map[string]int, len(entries))
		for _, e := range entries {
			if e.Version > newest[e.DocumentID] {
				newest[e.DocumentID] = e.Version
			}
		}
		for i := range entries {
			if entries[i].Version == newest[entries[i].DocumentID] {
				entries[i].Score += s.boost
			}
		}
	}

	index.SortEntries(entries)
	return entries
}
