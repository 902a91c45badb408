package document

import (
	"context"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/repository/catalog"
)

// Catalog is the document metadata store.
type Catalog interface {
	Get(ctx context.Context, id string) (domain.Document, error)
	List(ctx context.Context) ([]domain.Document, error)
	Versions(ctx context.Context, id string) ([]catalog.VersionRecord, error)
	GetVersion(ctx context.Context, id string, version int) (catalog.VersionRecord, error)
	SetVersionStatus(ctx context.Context, id string, version int, status domain.DocumentStatus) error
}

// Index retires chunk batches in the embedding index.
type Index interface {
	Retire(ctx context.Context, documentID string, version int) error
}
