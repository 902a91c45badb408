package catalog

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kailas-cloud/ragdex/internal/domain"
)

// buildMetaFields flattens the current document version into hash fields.
func buildMetaFields(doc *domain.Document) map[string]string {
	return map[string]string{
		"title":       doc.Title(),
		"__text":      doc.Text(),
		"audiences":   doc.Audiences().String(),
		"version":     strconv.Itoa(doc.Version()),
		"status":      string(doc.Status()),
		"format":      doc.Format(),
		"uploaded_at": doc.UploadedAt().UTC().Format(time.RFC3339Nano),
		"content_sum": doc.ContentSum(),
	}
}

// parseMetaFields hydrates a document from its hash fields.
func parseMetaFields(id string, m map[string]string) (domain.Document, error) {
	version, err := strconv.Atoi(m["version"])
	if err != nil {
		return domain.Document{}, fmt.Errorf("document %s has malformed version %q: %w", id, m["version"], err)
	}

	var audiences domain.AudienceSet
	if raw := m["audiences"]; raw != "" {
		audiences, err = domain.NewAudienceSet(strings.Split(raw, ",")...)
		if err != nil {
			return domain.Document{}, fmt.Errorf("document %s has malformed audiences %q: %w", id, raw, err)
		}
	}

	var uploadedAt time.Time
	if raw := m["uploaded_at"]; raw != "" {
		uploadedAt, err = time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return domain.Document{}, fmt.Errorf("document %s has malformed timestamp %q: %w", id, raw, err)
		}
	}

	return domain.ReconstructDocument(
		id, m["title"], m["__text"], m["format"], m["content_sum"],
		audiences, version, uploadedAt, domain.DocumentStatus(m["status"]),
	), nil
}

// versionDTO is the JSON form of one version-history entry.
type versionDTO struct {
	Version    int       `json:"version"`
	UploadedAt time.Time `json:"uploaded_at"`
	ContentSum string    `json:"content_sum"`
	Status     string    `json:"status"`
}

func encodeVersionRecord(rec VersionRecord) (string, error) {
	data, err := json.Marshal(versionDTO{
		Version:    rec.Version,
		UploadedAt: rec.UploadedAt.UTC(),
		ContentSum: rec.ContentSum,
		Status:     string(rec.Status),
	})
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func parseVersionRecord(raw string) (VersionRecord, error) {
	var dto versionDTO
	if err := json.Unmarshal([]byte(raw), &dto); err != nil {
		return VersionRecord{}, err
	}
	return VersionRecord{
		Version:    dto.Version,
		UploadedAt: dto.UploadedAt,
		ContentSum: dto.ContentSum,
		Status:     domain.DocumentStatus(dto.Status),
	}, nil
}
