package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation signals a malformed document or misconfigured parameters,
	// rejected before any index mutation.
	ErrValidation = errors.New("validation failed")
	// ErrDocumentNotFound signals a missing document.
	ErrDocumentNotFound = errors.New("document not found")
	// ErrVersionNotFound signals a missing document version.
	ErrVersionNotFound = errors.New("document version not found")
	// ErrIngestionFailed signals a mid-batch ingestion failure; the version
	// under ingestion was rolled back and the prior version stays authoritative.
	ErrIngestionFailed = errors.New("ingestion failed")
	// ErrModelInvocation signals that the generative model stayed unreachable
	// after bounded retries.
	ErrModelInvocation = errors.New("model invocation failed")
	// ErrScopeViolation signals an attempted cross-audience retrieval.
	// Fatal for the request, never downgraded to partial results.
	ErrScopeViolation = errors.New("audience scope violation")
	// ErrEmbeddingProvider signals an embedding provider failure.
	ErrEmbeddingProvider = errors.New("embedding provider error")
	// ErrEmbeddingQuotaExceeded signals that the configured token budget for
	// the embedding provider is exhausted.
	ErrEmbeddingQuotaExceeded = errors.New("embedding token budget exceeded")
	// ErrVectorDimMismatch signals a vector dimension mismatch.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")
	// ErrSessionBusy signals a concurrent turn on a session already
	// processing one.
	ErrSessionBusy = errors.New("session busy")
)

// IngestionError wraps ErrIngestionFailed with the sequence index of the
// chunk whose embedding failed.
type IngestionError struct {
	DocumentID string
	SeqIndex   int
	Err        error
}

func (e *IngestionError) Error() string {
	return fmt.Sprintf("%s: document %s chunk %d: %v",
		ErrIngestionFailed.Error(), e.DocumentID, e.SeqIndex, e.Err)
}

func (e *IngestionError) Unwrap() error { return ErrIngestionFailed }

// NewIngestionError creates an ingestion error for a failing chunk.
func NewIngestionError(documentID string, seqIndex int, err error) error {
	return &IngestionError{DocumentID: documentID, SeqIndex: seqIndex, Err: err}
}
