// Package index defines the embedding index capability: vector storage for
// chunks with metadata-filtered nearest-neighbor queries. Backends implement
// Index; the retrieval engine stays testable against the in-memory one.
package index

import (
	"context"

	"github.com/kailas-cloud/ragdex/internal/domain"
)

// State is the visibility state of an indexed chunk batch.
type State string

// Chunk batch states. Staged chunks are invisible to queries until the
// version commits, so readers see either the fully-previous or fully-new
// version, never a mix.
const (
	StateStaged     State = "staged"
	StateLive       State = "live"
	StateSuperseded State = "superseded"
	StateRetired    State = "retired"
)

// Filter restricts a query to an audience scope and version selection.
type Filter struct {
	// Audience scopes the query; chunks without this tag never match.
	Audience domain.Audience
	// DocumentID restricts the query to one document when non-empty.
	DocumentID string
	// Version pins a specific document version (> 0 implies historical
	// lookup, used for citation replay). Requires DocumentID.
	Version int
	// IncludeHistorical makes superseded and retired versions visible.
	IncludeHistorical bool
}

// Entry is a single query hit, ordered by similarity score descending with
// ties broken by most-recent version, then lowest sequence index.
type Entry struct {
	ChunkID    string
	Score      float64
	DocumentID string
	Version    int
	Seq        int
	Text       string
	Audiences  domain.AudienceSet
}

// Index is the embedding index contract. Upsert stages a version's chunks
// invisibly; Commit makes the version live and demotes earlier live
// versions of the same document; Discard drops a staged version during
// rollback; Retire soft-retires a live version.
//
// Query against an empty or uninitialized index returns an empty result,
// not an error. Exactly one embedding exists per chunk identity; Upsert of
// an existing identity overwrites it.
type Index interface {
	Upsert(ctx context.Context, chunks []domain.Chunk) error
	Commit(ctx context.Context, documentID string, version int) error
	Discard(ctx context.Context, documentID string, version int) error
	Retire(ctx context.Context, documentID string, version int) error
	Query(ctx context.Context, vector []float32, topK int, f Filter) ([]Entry, error)
}
