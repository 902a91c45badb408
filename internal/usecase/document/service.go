// Package document manages the corpus catalog: listing documents, inspecting
// version history, and retiring versions from retrieval.
package document

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/logger"
	"github.com/kailas-cloud/ragdex/internal/repository/catalog"
)

// Service handles corpus catalog operations.
type Service struct {
	catalog Catalog
	index   Index
}

// New creates a document service.
func New(c Catalog, idx Index) *Service {
	return &Service{catalog: c, index: idx}
}

// Get returns the current state of a document.
func (s *Service) Get(ctx context.Context, id string) (domain.Document, error) {
	doc, err := s.catalog.Get(ctx, id)
	if err != nil {
		return domain.Document{}, fmt.Errorf("get document %s: %w", id, err)
	}
	return doc, nil
}

// List returns all cataloged documents ordered by ID.
func (s *Service) List(ctx context.Context) ([]domain.Document, error) {
	docs, err := s.catalog.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return docs, nil
}

// Versions returns the version history of a document, oldest first.
func (s *Service) Versions(ctx context.Context, id string) ([]catalog.VersionRecord, error) {
	records, err := s.catalog.Versions(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("document versions %s: %w", id, err)
	}
	return records, nil
}

// Retire removes a document version from default retrieval. Its chunks stay
// in the index for historical lookups and citation replay. Retiring an
// already-retired version is a no-op.
func (s *Service) Retire(ctx context.Context, id string, version int) error {
	record, err := s.catalog.GetVersion(ctx, id, version)
	if err != nil {
		return fmt.Errorf("retire %s v%d: %w", id, version, err)
	}
	if record.Status == domain.StatusRetired {
		return nil
	}

	if err := s.index.Retire(ctx, id, version); err != nil {
		return fmt.Errorf("retire %s v%d in index: %w", id, version, err)
	}
	if err := s.catalog.SetVersionStatus(ctx, id, version, domain.StatusRetired); err != nil {
		return fmt.Errorf("retire %s v%d in catalog: %w", id, version, err)
	}

	logger.FromContext(ctx).Info("Document version retired",
		zap.String("document_id", id),
		zap.Int("version", version),
	)
	return nil
}
