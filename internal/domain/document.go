package domain

import (
	"fmt"
	"regexp"
	"time"
)

var docIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// MaxDocumentSize is the maximum document text size in bytes.
const MaxDocumentSize = 1 << 20 // 1MB

// DocumentStatus is the lifecycle state of a document version.
type DocumentStatus string

// Document version lifecycle states. Versions are soft-retired, never
// physically deleted, so stale citations stay resolvable.
const (
	StatusActive     DocumentStatus = "active"
	StatusSuperseded DocumentStatus = "superseded"
	StatusRetired    DocumentStatus = "retired"
)

// Document is one version of a knowledge-base entry (immutable value object).
type Document struct {
	id         string
	title      string
	text       string
	audiences  AudienceSet
	version    int
	uploadedAt time.Time
	format     string
	contentSum string
	status     DocumentStatus
}

// NewDocument validates and creates a version-1 document.
// ID: ^[a-zA-Z0-9_-]+$, 1-256 chars. Text: non-empty, max 1MB.
// The version number is assigned by the ingestion pipeline.
func NewDocument(id, title, text, format string, audiences AudienceSet) (Document, error) {
	if id == "" {
		return Document{}, fmt.Errorf("document ID is required: %w", ErrValidation)
	}
	if len(id) > 256 {
		return Document{}, fmt.Errorf("document ID too long (max 256): %w", ErrValidation)
	}
	if !docIDRegex.MatchString(id) {
		return Document{}, fmt.Errorf(
			"document ID must be alphanumeric with underscores and hyphens: %w", ErrValidation)
	}
	if title == "" {
		return Document{}, fmt.Errorf("title is required: %w", ErrValidation)
	}
	if text == "" {
		return Document{}, fmt.Errorf("document text is required: %w", ErrValidation)
	}
	if len(text) > MaxDocumentSize {
		return Document{}, fmt.Errorf("document too large (max %d bytes): %w", MaxDocumentSize, ErrValidation)
	}
	if len(audiences) == 0 {
		return Document{}, fmt.Errorf("at least one audience tag is required: %w", ErrValidation)
	}

	return Document{
		id:        id,
		title:     title,
		text:      text,
		audiences: audiences.Clone(),
		version:   1,
		format:    format,
		status:    StatusActive,
	}, nil
}

// ReconstructDocument creates a Document without validation (storage hydration).
func ReconstructDocument(
	id, title, text, format, contentSum string, audiences AudienceSet,
	version int, uploadedAt time.Time, status DocumentStatus,
) Document {
	return Document{
		id: id, title: title, text: text, format: format, contentSum: contentSum,
		audiences: audiences, version: version, uploadedAt: uploadedAt, status: status,
	}
}

// ID returns the stable document identity shared by all versions.
func (d *Document) ID() string { return d.id }

// Title returns the document title.
func (d *Document) Title() string { return d.title }

// Text returns the extracted document text.
func (d *Document) Text() string { return d.text }

// Audiences returns the audience tag set.
func (d *Document) Audiences() AudienceSet { return d.audiences }

// Version returns the monotonically increasing version number.
func (d *Document) Version() int { return d.version }

// UploadedAt returns the ingestion timestamp.
func (d *Document) UploadedAt() time.Time { return d.uploadedAt }

// Format returns the source format (markdown, pdf, ...).
func (d *Document) Format() string { return d.format }

// ContentSum returns the content hash used for idempotent re-ingestion.
func (d *Document) ContentSum() string { return d.contentSum }

// Status returns the version lifecycle state.
func (d *Document) Status() DocumentStatus { return d.status }

// AtVersion returns a copy stamped with the given version number,
// upload time, and content hash. Used by the ingestion pipeline.
func (d *Document) AtVersion(version int, uploadedAt time.Time, contentSum string) Document {
	c := *d
	c.version = version
	c.uploadedAt = uploadedAt
	c.contentSum = contentSum
	return c
}

// WithStatus returns a copy in the given lifecycle state.
func (d *Document) WithStatus(status DocumentStatus) Document {
	c := *d
	c.status = status
	return c
}
