// Package httpapi exposes the pipeline over HTTP: document ingestion and
// catalog management, scoped retrieval, conversational ask, health and
// metrics.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/index"
	askuc "github.com/kailas-cloud/ragdex/internal/usecase/ask"
	documentuc "github.com/kailas-cloud/ragdex/internal/usecase/document"
	healthuc "github.com/kailas-cloud/ragdex/internal/usecase/health"
	ingestuc "github.com/kailas-cloud/ragdex/internal/usecase/ingest"
	retrieveuc "github.com/kailas-cloud/ragdex/internal/usecase/retrieve"
	usageuc "github.com/kailas-cloud/ragdex/internal/usecase/usage"
)

// ErrorCode identifies an error category in responses.
type ErrorCode string

// Error codes returned by the API.
const (
	CodeBadRequest        ErrorCode = "bad_request"
	CodeValidationFailed  ErrorCode = "validation_failed"
	CodeDocumentNotFound  ErrorCode = "document_not_found"
	CodeVersionNotFound   ErrorCode = "version_not_found"
	CodeSessionBusy       ErrorCode = "session_busy"
	CodeScopeViolation    ErrorCode = "scope_violation"
	CodeIngestionFailed   ErrorCode = "ingestion_failed"
	CodeEmbeddingProvider ErrorCode = "embedding_provider_error"
	CodeQuotaExceeded     ErrorCode = "embedding_quota_exceeded"
	CodeModelInvocation   ErrorCode = "model_invocation_failed"
	CodeInternalError     ErrorCode = "internal_error"
)

// ErrorResponse is the JSON error body.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server holds the use case services behind the HTTP API.
type Server struct {
	ingest    *ingestuc.Service
	documents *documentuc.Service
	retrieve  *retrieveuc.Service
	ask       *askuc.Service
	usage     *usageuc.Service
	health    *healthuc.Service
	logger    *zap.Logger

	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	ingest *ingestuc.Service,
	documents *documentuc.Service,
	retrieve *retrieveuc.Service,
	ask *askuc.Service,
	usage *usageuc.Service,
	health *healthuc.Service,
	logger *zap.Logger,
) *Server {
	s := &Server{
		ingest:    ingest,
		documents: documents,
		retrieve:  retrieve,
		ask:       ask,
		usage:     usage,
		health:    health,
		logger:    logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrValidation, http.StatusBadRequest, CodeValidationFailed),
		sentinelHandler(domain.ErrVectorDimMismatch, http.StatusBadRequest, CodeValidationFailed),
		sentinelHandler(domain.ErrDocumentNotFound, http.StatusNotFound, CodeDocumentNotFound),
		sentinelHandler(domain.ErrVersionNotFound, http.StatusNotFound, CodeVersionNotFound),
		sentinelHandler(domain.ErrSessionBusy, http.StatusConflict, CodeSessionBusy),
		sentinelHandler(domain.ErrScopeViolation, http.StatusForbidden, CodeScopeViolation),
		sentinelHandler(domain.ErrEmbeddingQuotaExceeded, http.StatusTooManyRequests, CodeQuotaExceeded),
		sentinelHandler(domain.ErrIngestionFailed, http.StatusBadGateway, CodeIngestionFailed),
		sentinelHandler(domain.ErrEmbeddingProvider, http.StatusBadGateway, CodeEmbeddingProvider),
		sentinelHandler(domain.ErrModelInvocation, http.StatusBadGateway, CodeModelInvocation),
	}
	return s
}

// Routes mounts all API routes on the router.
func (s *Server) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/documents", s.IngestDocument)
		r.Get("/documents", s.ListDocuments)
		r.Get("/documents/{id}", s.GetDocument)
		r.Get("/documents/{id}/versions", s.ListVersions)
		r.Delete("/documents/{id}/versions/{version}", s.RetireVersion)
		r.Post("/search", s.Search)
		r.Post("/ask", s.Ask)
		r.Get("/usage", s.Usage)
	})
	r.Get("/health", s.Health)
	r.Get("/metrics", s.Metrics)
}

// IngestRequest is the POST /documents body.
type IngestRequest struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Text      string   `json:"text"`
	Format    string   `json:"format,omitempty"`
	Audiences []string `json:"audiences"`
}

// IngestResponse reports an ingestion outcome.
type IngestResponse struct {
	DocumentID string `json:"document_id"`
	Version    int    `json:"version"`
	Chunks     int    `json:"chunks"`
	Unchanged  bool   `json:"unchanged"`
}

// IngestDocument handles POST /api/v1/documents.
func (s *Server) IngestDocument(w http.ResponseWriter, r *http.Request) {
	var req IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	res, err := s.ingest.Ingest(r.Context(), &ingestuc.Request{
		ID:        req.ID,
		Title:     req.Title,
		Text:      req.Text,
		Format:    req.Format,
		Audiences: req.Audiences,
	})
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	status := http.StatusCreated
	if res.Unchanged {
		status = http.StatusOK
	}
	writeJSON(w, status, IngestResponse{
		DocumentID: res.DocumentID,
		Version:    res.Version,
		Chunks:     res.Chunks,
		Unchanged:  res.Unchanged,
	})
}

// DocumentResponse describes a cataloged document.
type DocumentResponse struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Version    int      `json:"version"`
	Status     string   `json:"status"`
	Format     string   `json:"format,omitempty"`
	Audiences  []string `json:"audiences"`
	UploadedAt string   `json:"uploaded_at"`
}

// ListDocuments handles GET /api/v1/documents.
func (s *Server) ListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.documents.List(r.Context())
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	items := make([]DocumentResponse, len(docs))
	for i := range docs {
		items[i] = documentResponse(&docs[i])
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// GetDocument handles GET /api/v1/documents/{id}.
func (s *Server) GetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.documents.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, documentResponse(&doc))
}

// VersionResponse describes one entry of a document's version history.
type VersionResponse struct {
	Version    int    `json:"version"`
	Status     string `json:"status"`
	UploadedAt string `json:"uploaded_at"`
}

// ListVersions handles GET /api/v1/documents/{id}/versions.
func (s *Server) ListVersions(w http.ResponseWriter, r *http.Request) {
	records, err := s.documents.Versions(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	items := make([]VersionResponse, len(records))
	for i, rec := range records {
		items[i] = VersionResponse{
			Version:    rec.Version,
			Status:     string(rec.Status),
			UploadedAt: rec.UploadedAt.UTC().Format(time.RFC3339),
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// RetireVersion handles DELETE /api/v1/documents/{id}/versions/{version}.
func (s *Server) RetireVersion(w http.ResponseWriter, r *http.Request) {
	version, err := strconv.Atoi(chi.URLParam(r, "version"))
	if err != nil || version <= 0 {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "version must be a positive integer")
		return
	}

	if err := s.documents.Retire(r.Context(), chi.URLParam(r, "id"), version); err != nil {
		s.handleDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SearchRequest is the POST /search body.
type SearchRequest struct {
	Query             string `json:"query"`
	Audience          string `json:"audience"`
	TopK              int    `json:"top_k,omitempty"`
	DocumentID        string `json:"document_id,omitempty"`
	Version           int    `json:"version,omitempty"`
	IncludeHistorical bool   `json:"include_historical,omitempty"`
}

// ChunkResponse is one retrieval hit.
type ChunkResponse struct {
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id"`
	Version    int     `json:"version"`
	Seq        int     `json:"seq"`
	Score      float64 `json:"score"`
	Text       string  `json:"text"`
}

// Search handles POST /api/v1/search.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	entries, err := s.retrieve.Retrieve(r.Context(), &retrieveuc.Request{
		Query:             req.Query,
		Audience:          domain.Audience(req.Audience),
		TopK:              req.TopK,
		DocumentID:        req.DocumentID,
		Version:           req.Version,
		IncludeHistorical: req.IncludeHistorical,
	})
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"items": chunkResponses(entries)})
}

// AskRequest is the POST /ask body.
type AskRequest struct {
	SessionID string `json:"session_id"`
	Audience  string `json:"audience"`
	Query     string `json:"query"`
	TopK      int    `json:"top_k,omitempty"`
}

// CitationResponse links an answer marker to its source.
type CitationResponse struct {
	Marker     string `json:"marker"`
	ChunkID    string `json:"chunk_id"`
	DocumentID string `json:"document_id"`
	Title      string `json:"title,omitempty"`
	Version    int    `json:"version"`
}

// AskResponse is the outcome of one conversational turn.
type AskResponse struct {
	Answer       string             `json:"answer"`
	Citations    []CitationResponse `json:"citations"`
	Reformulated string             `json:"reformulated_query,omitempty"`
	SessionID    string             `json:"session_id"`
}

// Ask handles POST /api/v1/ask.
func (s *Server) Ask(w http.ResponseWriter, r *http.Request) {
	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	res, err := s.ask.Ask(r.Context(), &askuc.Request{
		SessionID: req.SessionID,
		Audience:  req.Audience,
		Query:     req.Query,
		TopK:      req.TopK,
	})
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	citations := make([]CitationResponse, len(res.Citations))
	for i := range res.Citations {
		c := &res.Citations[i]
		citations[i] = CitationResponse{
			Marker:     c.Marker(),
			ChunkID:    c.ChunkID(),
			DocumentID: c.DocumentID(),
			Title:      c.Title(),
			Version:    c.Version(),
		}
	}

	reformulated := res.Reformulated
	if reformulated == req.Query {
		reformulated = ""
	}
	writeJSON(w, http.StatusOK, AskResponse{
		Answer:       res.Answer,
		Citations:    citations,
		Reformulated: reformulated,
		SessionID:    res.SessionID,
	})
}

// UsageResponse reports embedding token consumption for one period.
type UsageResponse struct {
	Period      string `json:"period"`
	PeriodStart int64  `json:"period_start_ms"`
	PeriodEnd   int64  `json:"period_end_ms"`
	Limit       int64  `json:"limit"`
	Used        int64  `json:"used"`
	Remaining   int64  `json:"remaining"`
	Exhausted   bool   `json:"exhausted"`
}

// Usage handles GET /api/v1/usage.
func (s *Server) Usage(w http.ResponseWriter, r *http.Request) {
	period := usageuc.Period(r.URL.Query().Get("period"))
	report := s.usage.GetReport(r.Context(), period)

	writeJSON(w, http.StatusOK, UsageResponse{
		Period:      string(report.Period),
		PeriodStart: report.PeriodStart,
		PeriodEnd:   report.PeriodEnd,
		Limit:       report.Limit,
		Used:        report.Used,
		Remaining:   report.Remaining,
		Exhausted:   report.Exhausted,
	})
}

// Health handles GET /health.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	status := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{
		"status": report.Status,
		"checks": report.Checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func documentResponse(doc *domain.Document) DocumentResponse {
	return DocumentResponse{
		ID:         doc.ID(),
		Title:      doc.Title(),
		Version:    doc.Version(),
		Status:     string(doc.Status()),
		Format:     doc.Format(),
		Audiences:  doc.Audiences().Slice(),
		UploadedAt: doc.UploadedAt().UTC().Format(time.RFC3339),
	}
}

func chunkResponses(entries []index.Entry) []ChunkResponse {
	items := make([]ChunkResponse, len(entries))
	for i := range entries {
		e := &entries[i]
		items[i] = ChunkResponse{
			ChunkID:    e.ChunkID,
			DocumentID: e.DocumentID,
			Version:    e.Version,
			Seq:        e.Seq,
			Score:      e.Score,
			Text:       e.Text,
		}
	}
	return items
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrValidation,
		domain.ErrDocumentNotFound,
		domain.ErrVersionNotFound,
		domain.ErrSessionBusy,
		domain.ErrScopeViolation,
		domain.ErrIngestionFailed,
		domain.ErrEmbeddingProvider,
		domain.ErrEmbeddingQuotaExceeded,
		domain.ErrModelInvocation,
		domain.ErrVectorDimMismatch,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
}
