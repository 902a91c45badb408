// Package redis implements the embedding index over Redis FT.SEARCH with an
// HNSW vector field. Chunks live in hashes under one key prefix; version
// visibility is tracked in a state tag so staged batches stay invisible
// until commit.
package redis

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/kailas-cloud/ragdex/internal/db"
	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/index"
)

const (
	keyPrefix = "ragdex:chunk:"
	indexName = "ragdex:chunks:idx"
)

// store is the consumer interface for the Redis index backend (ISP).
type store interface {
	HSetMulti(ctx context.Context, items []db.HashSetItem) error
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
	DelMulti(ctx context.Context, keys []string) error
	Scan(ctx context.Context, pattern string) ([]string, error)
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	IndexExists(ctx context.Context, name string) (bool, error)
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
}

// Compile-time check: Index implements index.Index.
var _ index.Index = (*Index)(nil)

// HNSWConfig holds HNSW build parameters for the vector field.
type HNSWConfig struct {
	M           int
	EFConstruct int
}

// Index is the Redis-backed embedding index.
type Index struct {
	store store
	dim   int
	hnsw  HNSWConfig
}

// New creates a Redis index backend for vectors of the given dimension.
func New(s store, dim int) *Index {
	return &Index{store: s, dim: dim}
}

// WithHNSW overrides HNSW build parameters.
func (x *Index) WithHNSW(cfg HNSWConfig) *Index {
	x.hnsw = cfg
	return x
}

// EnsureIndex creates the FT index if it does not exist yet.
func (x *Index) EnsureIndex(ctx context.Context) error {
	exists, err := x.store.IndexExists(ctx, indexName)
	if err != nil {
		return fmt.Errorf("check index: %w", err)
	}
	if exists {
		return nil
	}

	def := &db.IndexDefinition{
		Name:     indexName,
		Prefixes: []string{keyPrefix},
		Fields: []db.IndexField{
			{Name: "doc", Type: db.IndexFieldTag},
			{Name: "version", Type: db.IndexFieldNumeric},
			{Name: "seq", Type: db.IndexFieldNumeric},
			{Name: "audiences", Type: db.IndexFieldTag, TagSeparator: ","},
			{Name: "state", Type: db.IndexFieldTag},
			{
				Name:              "vector",
				Type:              db.IndexFieldVector,
				VectorAlgo:        db.VectorHNSW,
				VectorDim:         x.dim,
				VectorDistance:    db.DistanceCosine,
				VectorM:           x.hnsw.M,
				VectorEFConstruct: x.hnsw.EFConstruct,
			},
		},
	}
	if err := x.store.CreateIndex(ctx, def); err != nil && !errors.Is(err, db.ErrIndexExists) {
		return fmt.Errorf("create index: %w", err)
	}
	return nil
}

// Upsert stages a version's chunks in a single pipelined write.
func (x *Index) Upsert(ctx context.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	items := make([]db.HashSetItem, 0, len(chunks))
	for i := range chunks {
		c := &chunks[i]
		if len(c.Vector()) == 0 {
			return fmt.Errorf("chunk %s has no vector: %w", c.ID(), domain.ErrValidation)
		}
		if x.dim > 0 && len(c.Vector()) != x.dim {
			return fmt.Errorf("chunk %s: got %d dimensions, want %d: %w",
				c.ID(), len(c.Vector()), x.dim, domain.ErrVectorDimMismatch)
		}
		items = append(items, db.HashSetItem{
			Key: keyPrefix + c.ID(),
			Fields: map[string]string{
				"__text":    c.Text(),
				"vector":    vectorToBytes(c.Vector()),
				"doc":       c.DocumentID(),
				"version":   strconv.Itoa(c.Version()),
				"seq":       strconv.Itoa(c.Seq()),
				"audiences": c.Audiences().String(),
				"state":     string(index.StateStaged),
			},
		})
	}

	if err := x.store.HSetMulti(ctx, items); err != nil {
		return fmt.Errorf("stage chunks: %w", err)
	}
	return nil
}

// Commit makes a staged version live and demotes earlier live versions of
// the same document.
func (x *Index) Commit(ctx context.Context, documentID string, version int) error {
	keys, err := x.documentKeys(ctx, documentID)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}

	states, err := x.store.HGetAllMulti(ctx, keys)
	if err != nil {
		return fmt.Errorf("read chunk states: %w", err)
	}

	var items []db.HashSetItem
	for i, key := range keys {
		v, ok := keyVersion(key)
		if !ok {
			continue
		}
		state := index.State(states[i]["state"])
		switch {
		case v == version && state == index.StateStaged:
			items = append(items, stateItem(key, index.StateLive))
		case v != version && state == index.StateLive:
			items = append(items, stateItem(key, index.StateSuperseded))
		}
	}

	if err := x.store.HSetMulti(ctx, items); err != nil {
		return fmt.Errorf("commit version %d: %w", version, err)
	}
	return nil
}

// Discard deletes a staged version's chunks during ingestion rollback.
// Committed versions are never discarded, only retired.
func (x *Index) Discard(ctx context.Context, documentID string, version int) error {
	keys, err := x.versionKeys(ctx, documentID, version)
	if err != nil {
		return err
	}
	if err := x.store.DelMulti(ctx, keys); err != nil {
		return fmt.Errorf("discard version %d: %w", version, err)
	}
	return nil
}

// Retire soft-retires a version; chunks stay resolvable for historical
// queries only.
func (x *Index) Retire(ctx context.Context, documentID string, version int) error {
	keys, err := x.versionKeys(ctx, documentID, version)
	if err != nil {
		return err
	}

	items := make([]db.HashSetItem, 0, len(keys))
	for _, key := range keys {
		items = append(items, stateItem(key, index.StateRetired))
	}
	if err := x.store.HSetMulti(ctx, items); err != nil {
		return fmt.Errorf("retire version %d: %w", version, err)
	}
	return nil
}

// Query runs a prefiltered KNN search and returns entries in the canonical
// order. An absent index yields an empty result.
func (x *Index) Query(ctx context.Context, vector []float32, topK int, f index.Filter) ([]index.Entry, error) {
	if topK <= 0 || len(vector) == 0 {
		return nil, nil
	}

	q := &db.KNNQuery{
		IndexName:    indexName,
		Prefilter:    buildPrefilter(f),
		Vector:       vector,
		K:            topK,
		ReturnFields: []string{"__text", "doc", "version", "seq", "audiences", "__vector_score"},
	}

	sr, err := x.store.SearchKNN(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("search knn: %w", err)
	}
	if sr == nil || len(sr.Entries) == 0 {
		return nil, nil
	}

	entries := make([]index.Entry, 0, len(sr.Entries))
	for _, e := range sr.Entries {
		entry, err := parseEntry(e)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	index.SortEntries(entries)
	return entries, nil
}

// buildPrefilter translates an index.Filter into an FT.SEARCH pre-filter.
func buildPrefilter(f index.Filter) string {
	var parts []string

	if f.Audience != "" {
		parts = append(parts, "@audiences:{"+escapeTag(string(f.Audience))+"}")
	}
	if f.DocumentID != "" {
		parts = append(parts, "@doc:{"+escapeTag(f.DocumentID)+"}")
	}

	switch {
	case f.Version > 0:
		parts = append(parts, fmt.Sprintf("@version:[%d %d]", f.Version, f.Version))
		parts = append(parts, committedStates())
	case f.IncludeHistorical:
		parts = append(parts, committedStates())
	default:
		parts = append(parts, "@state:{"+string(index.StateLive)+"}")
	}

	return strings.Join(parts, " ")
}

// committedStates matches every state except staged.
func committedStates() string {
	return fmt.Sprintf("@state:{%s|%s|%s}",
		index.StateLive, index.StateSuperseded, index.StateRetired)
}

func parseEntry(e db.SearchEntry) (index.Entry, error) {
	chunkID := strings.TrimPrefix(e.Key, keyPrefix)
	documentID, version, seq, err := domain.ParseChunkID(chunkID)
	if err != nil {
		return index.Entry{}, fmt.Errorf("parse hit key %q: %w", e.Key, err)
	}

	var audiences domain.AudienceSet
	if raw := e.Fields["audiences"]; raw != "" {
		audiences, err = domain.NewAudienceSet(strings.Split(raw, ",")...)
		if err != nil {
			return index.Entry{}, fmt.Errorf("parse hit audiences %q: %w", raw, err)
		}
	}

	return index.Entry{
		ChunkID:    chunkID,
		Score:      e.Score,
		DocumentID: documentID,
		Version:    version,
		Seq:        seq,
		Text:       e.Fields["__text"],
		Audiences:  audiences,
	}, nil
}

func (x *Index) documentKeys(ctx context.Context, documentID string) ([]string, error) {
	keys, err := x.store.Scan(ctx, keyPrefix+documentID+":v*")
	if err != nil {
		return nil, fmt.Errorf("scan document keys: %w", err)
	}
	return keys, nil
}

func (x *Index) versionKeys(ctx context.Context, documentID string, version int) ([]string, error) {
	pattern := fmt.Sprintf("%s%s:v%d:*", keyPrefix, documentID, version)
	keys, err := x.store.Scan(ctx, pattern)
	if err != nil {
		return nil, fmt.Errorf("scan version keys: %w", err)
	}
	return keys, nil
}

// keyVersion extracts the version number encoded in a chunk key.
func keyVersion(key string) (int, bool) {
	_, version, _, err := domain.ParseChunkID(strings.TrimPrefix(key, keyPrefix))
	if err != nil {
		return 0, false
	}
	return version, true
}

func stateItem(key string, state index.State) db.HashSetItem {
	return db.HashSetItem{Key: key, Fields: map[string]string{"state": string(state)}}
}

var tagEscaper = strings.NewReplacer(
	`-`, `\-`,
	`.`, `\.`,
	`:`, `\:`,
	`{`, `\{`,
	`}`, `\}`,
	`(`, `\(`,
	`)`, `\)`,
	`|`, `\|`,
	`@`, `\@`,
	` `, `\ `,
)

func escapeTag(s string) string {
	return tagEscaper.Replace(s)
}

func vectorToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}
