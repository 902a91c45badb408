// Package catalog persists document metadata and per-document version
// history in Redis hashes. Versions are soft-retired, never deleted.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/kailas-cloud/ragdex/internal/db"
	"github.com/kailas-cloud/ragdex/internal/domain"
)

const (
	metaPrefix    = "ragdex:doc:"
	versionSuffix = ":versions"
)

// store is the consumer interface for the catalog (ISP).
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	Exists(ctx context.Context, key string) (bool, error)
	Scan(ctx context.Context, pattern string) ([]string, error)
}

// VersionRecord is one entry of a document's version history.
type VersionRecord struct {
	Version    int
	UploadedAt time.Time
	ContentSum string
	Status     domain.DocumentStatus
}

// Repo implements the document catalog over hash storage.
type Repo struct {
	store store
}

// New creates a catalog repository.
func New(s store) *Repo {
	return &Repo{store: s}
}

// Save stores a document version as the current one and appends it to the
// version history.
func (r *Repo) Save(ctx context.Context, doc *domain.Document) error {
	if err := r.store.HSet(ctx, metaKey(doc.ID()), buildMetaFields(doc)); err != nil {
		return fmt.Errorf("save document %s: %w", doc.ID(), err)
	}

	rec := VersionRecord{
		Version:    doc.Version(),
		UploadedAt: doc.UploadedAt(),
		ContentSum: doc.ContentSum(),
		Status:     doc.Status(),
	}
	field, value, err := buildVersionField(rec)
	if err != nil {
		return fmt.Errorf("encode version record: %w", err)
	}
	if err := r.store.HSet(ctx, versionsKey(doc.ID()), map[string]string{field: value}); err != nil {
		return fmt.Errorf("save version %d of %s: %w", doc.Version(), doc.ID(), err)
	}
	return nil
}

// Get returns the current version of a document.
func (r *Repo) Get(ctx context.Context, id string) (domain.Document, error) {
	fields, err := r.store.HGetAll(ctx, metaKey(id))
	if err != nil {
		return domain.Document{}, fmt.Errorf("get document %s: %w", id, err)
	}
	if len(fields) == 0 {
		return domain.Document{}, domain.ErrDocumentNotFound
	}
	return parseMetaFields(id, fields)
}

// Exists reports whether a document is known to the catalog.
func (r *Repo) Exists(ctx context.Context, id string) (bool, error) {
	ok, err := r.store.Exists(ctx, metaKey(id))
	if err != nil {
		return false, fmt.Errorf("check document %s: %w", id, err)
	}
	return ok, nil
}

// Versions returns a document's version history ordered oldest-first.
func (r *Repo) Versions(ctx context.Context, id string) ([]VersionRecord, error) {
	fields, err := r.store.HGetAll(ctx, versionsKey(id))
	if err != nil {
		return nil, fmt.Errorf("get versions of %s: %w", id, err)
	}
	if len(fields) == 0 {
		return nil, domain.ErrDocumentNotFound
	}

	records := make([]VersionRecord, 0, len(fields))
	for _, raw := range fields {
		rec, err := parseVersionRecord(raw)
		if err != nil {
			return nil, fmt.Errorf("decode version record of %s: %w", id, err)
		}
		records = append(records, rec)
	}

	sort.Slice(records, func(i, j int) bool { return records[i].Version < records[j].Version })
	return records, nil
}

// GetVersion returns one record from a document's history.
func (r *Repo) GetVersion(ctx context.Context, id string, version int) (VersionRecord, error) {
	records, err := r.Versions(ctx, id)
	if err != nil {
		return VersionRecord{}, err
	}
	for _, rec := range records {
		if rec.Version == version {
			return rec, nil
		}
	}
	return VersionRecord{}, fmt.Errorf("document %s has no version %d: %w", id, version, domain.ErrVersionNotFound)
}

// SetVersionStatus updates the lifecycle state of one version. The current
// meta record follows when it points at the same version.
func (r *Repo) SetVersionStatus(ctx context.Context, id string, version int, status domain.DocumentStatus) error {
	rec, err := r.GetVersion(ctx, id, version)
	if err != nil {
		return err
	}
	rec.Status = status

	field, value, err := buildVersionField(rec)
	if err != nil {
		return fmt.Errorf("encode version record: %w", err)
	}
	if err := r.store.HSet(ctx, versionsKey(id), map[string]string{field: value}); err != nil {
		return fmt.Errorf("update version %d of %s: %w", version, id, err)
	}

	doc, err := r.Get(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrDocumentNotFound) {
			return nil
		}
		return err
	}
	if doc.Version() != version {
		return nil
	}
	if err := r.store.HSet(ctx, metaKey(id), map[string]string{"status": string(status)}); err != nil {
		return fmt.Errorf("update status of %s: %w", id, err)
	}
	return nil
}

// List returns the current version of every cataloged document, ordered by ID.
func (r *Repo) List(ctx context.Context) ([]domain.Document, error) {
	keys, err := r.store.Scan(ctx, metaPrefix+"*")
	if err != nil {
		return nil, fmt.Errorf("scan documents: %w", err)
	}

	docs := make([]domain.Document, 0, len(keys))
	for _, key := range keys {
		if strings.HasSuffix(key, versionSuffix) {
			continue
		}
		id := strings.TrimPrefix(key, metaPrefix)
		doc, err := r.Get(ctx, id)
		if err != nil {
			if errors.Is(err, db.ErrKeyNotFound) || errors.Is(err, domain.ErrDocumentNotFound) {
				continue
			}
			return nil, err
		}
		docs = append(docs, doc)
	}

	sort.Slice(docs, func(i, j int) bool { return docs[i].ID() < docs[j].ID() })
	return docs, nil
}

func metaKey(id string) string {
	return metaPrefix + id
}

func versionsKey(id string) string {
	return metaPrefix + id + versionSuffix
}

func buildVersionField(rec VersionRecord) (field, value string, err error) {
	value, err = encodeVersionRecord(rec)
	if err != nil {
		return "", "", err
	}
	return strconv.Itoa(rec.Version), value, nil
}
