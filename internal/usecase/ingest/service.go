// Package ingest implements the document ingestion pipeline: validate,
// version, chunk, embed, and atomically publish a new document version.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/logger"
	"github.com/kailas-cloud/ragdex/internal/metrics"
)

// Request is a document submitted for ingestion.
type Request struct {
	ID        string
	Title     string
	Text      string
	Format    string
	Audiences []string
}

// Result reports the outcome of an ingestion.
type Result struct {
	DocumentID string
	Version    int
	Chunks     int
	Unchanged  bool
}

// Service runs the ingestion pipeline.
type Service struct {
	catalog Catalog
	index   Index
	chunker Chunker
	embed   Embedder
	now     func() time.Time
}

// New creates an ingestion service.
func New(catalog Catalog, idx Index, chunker Chunker, embed Embedder) *Service {
	return &Service{
		catalog: catalog,
		index:   idx,
		chunker: chunker,
		embed:   embed,
		now:     time.Now,
	}
}

// Ingest validates and publishes a document. Re-submitting unchanged content
// is a no-op returning the current version. A mid-pipeline failure discards
// the staged version; the prior version stays authoritative throughout.
func (s *Service) Ingest(ctx context.Context, req *Request) (Result, error) {
	start := time.Now()
	log := logger.FromContext(ctx)

	audiences, err := domain.NewAudienceSet(req.Audiences...)
	if err != nil {
		metrics.IngestDocumentsTotal.WithLabelValues("error").Inc()
		return Result{}, err
	}
	doc, err := domain.NewDocument(req.ID, req.Title, req.Text, req.Format, audiences)
	if err != nil {
		metrics.IngestDocumentsTotal.WithLabelValues("error").Inc()
		return Result{}, err
	}

	sum := contentSum(req.Text, req.Title, audiences)

	version := 1
	var prior *domain.Document
	current, err := s.catalog.Get(ctx, req.ID)
	switch {
	case err == nil:
		if current.ContentSum() == sum && current.Status() == domain.StatusActive {
			metrics.IngestDocumentsTotal.WithLabelValues("unchanged").Inc()
			return Result{DocumentID: req.ID, Version: current.Version(), Unchanged: true}, nil
		}
		version = current.Version() + 1
		prior = &current
	case errors.Is(err, domain.ErrDocumentNotFound):
	default:
		metrics.IngestDocumentsTotal.WithLabelValues("error").Inc()
		return Result{}, fmt.Errorf("look up document %s: %w", req.ID, err)
	}

	doc = doc.AtVersion(version, s.now().UTC(), sum)

	chunks, err := s.buildChunks(ctx, &doc)
	if err != nil {
		metrics.IngestDocumentsTotal.WithLabelValues("error").Inc()
		return Result{}, err
	}

	if err := s.publish(ctx, &doc, chunks, prior); err != nil {
		metrics.IngestDocumentsTotal.WithLabelValues("error").Inc()
		return Result{}, err
	}

	metrics.IngestDocumentsTotal.WithLabelValues("success").Inc()
	metrics.IngestChunksTotal.Add(float64(len(chunks)))
	metrics.IngestDuration.Observe(time.Since(start).Seconds())

	log.Info("Document ingested",
		zap.String("document_id", doc.ID()),
		zap.Int("version", doc.Version()),
		zap.Int("chunks", len(chunks)),
	)

	return Result{DocumentID: doc.ID(), Version: doc.Version(), Chunks: len(chunks)}, nil
}

// buildChunks splits the text and embeds every segment in one batch.
func (s *Service) buildChunks(ctx context.Context, doc *domain.Document) ([]domain.Chunk, error) {
	texts := s.chunker.Split(doc.Text())
	if len(texts) == 0 {
		return nil, fmt.Errorf("document %s yields no chunks: %w", doc.ID(), domain.ErrValidation)
	}

	res, err := s.embed.BatchEmbed(ctx, texts)
	if err != nil {
		return nil, domain.NewIngestionError(doc.ID(), failingSeq(err), err)
	}
	if len(res.Embeddings) != len(texts) {
		return nil, domain.NewIngestionError(doc.ID(), len(res.Embeddings),
			fmt.Errorf("embedded %d of %d chunks", len(res.Embeddings), len(texts)))
	}

	chunks := make([]domain.Chunk, len(texts))
	for i, text := range texts {
		c := domain.NewChunk(doc.ID(), doc.Version(), i, text, doc.Audiences())
		chunks[i] = c.WithVector(res.Embeddings[i])
	}
	return chunks, nil
}

// publish stages and catalogs the new version, then commits it in the index
// as the last irreversible step. A failure before commit discards the staged
// chunks and restores the catalog, so an error return always means the prior
// version is still the one serving queries. After a successful commit the
// version is published; the prior-version status update is bookkeeping and
// never fails the ingest.
func (s *Service) publish(ctx context.Context, doc *domain.Document, chunks []domain.Chunk, prior *domain.Document) error {
	if err := s.index.Upsert(ctx, chunks); err != nil {
		s.discard(ctx, doc)
		return fmt.Errorf("stage version %d of %s: %w", doc.Version(), doc.ID(), err)
	}

	if err := s.catalog.Save(ctx, doc); err != nil {
		s.discard(ctx, doc)
		return fmt.Errorf("catalog version %d of %s: %w", doc.Version(), doc.ID(), err)
	}

	if err := s.index.Commit(ctx, doc.ID(), doc.Version()); err != nil {
		s.discard(ctx, doc)
		s.unpublish(ctx, doc, prior)
		return fmt.Errorf("commit version %d of %s: %w", doc.Version(), doc.ID(), err)
	}

	if prior != nil {
		if err := s.catalog.SetVersionStatus(ctx, doc.ID(), prior.Version(), domain.StatusSuperseded); err != nil {
			logger.FromContext(ctx).Warn("Failed to mark prior version superseded",
				zap.String("document_id", doc.ID()),
				zap.Int("version", prior.Version()),
				zap.Error(err),
			)
		}
	}
	return nil
}

// unpublish restores the catalog after a failed commit: the prior version
// becomes current again and the record of the version that never served is
// soft-retired. Best effort; failures are logged.
func (s *Service) unpublish(ctx context.Context, doc *domain.Document, prior *domain.Document) {
	log := logger.FromContext(ctx)
	if prior != nil {
		if err := s.catalog.Save(ctx, prior); err != nil {
			log.Warn("Failed to restore prior catalog version",
				zap.String("document_id", doc.ID()),
				zap.Int("version", prior.Version()),
				zap.Error(err),
			)
			return
		}
	}
	if err := s.catalog.SetVersionStatus(ctx, doc.ID(), doc.Version(), domain.StatusRetired); err != nil {
		log.Warn("Failed to retire uncommitted catalog version",
			zap.String("document_id", doc.ID()),
			zap.Int("version", doc.Version()),
			zap.Error(err),
		)
	}
}

func (s *Service) discard(ctx context.Context, doc *domain.Document) {
	if err := s.index.Discard(ctx, doc.ID(), doc.Version()); err != nil {
		logger.FromContext(ctx).Warn("Failed to discard staged version",
			zap.String("document_id", doc.ID()),
			zap.Int("version", doc.Version()),
			zap.Error(err),
		)
	}
}

// failingSeq extracts the failing chunk index from a batch embedding error.
func failingSeq(err error) int {
	var item *domain.BatchItemError
	if errors.As(err, &item) {
		return item.Index
	}
	return 0
}

// contentSum hashes the fields that define a version's content, so
// re-ingesting identical content is detected regardless of submission order.
func contentSum(text, title string, audiences domain.AudienceSet) string {
	h := sha256.New()
	h.Write([]byte(title))
	h.Write([]byte{0})
	h.Write([]byte(text))
	for _, a := range audiences.Slice() {
		h.Write([]byte{0})
		h.Write([]byte(a))
	}
	return hex.EncodeToString(h.Sum(nil))
}
