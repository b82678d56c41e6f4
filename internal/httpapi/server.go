// Package httpapi exposes the tenant-scoped operations over HTTP. The caller
// identity arrives in the X-Tenant-ID header, set by an authenticating proxy.
// No handler can reach the cross-tenant maintenance operations.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-logr/logr"

	"agentiq/internal/audit"
	"agentiq/internal/domain"
	"agentiq/internal/service"
)

// TenantHeader carries the authenticated tenant id.
const TenantHeader = "X-Tenant-ID"

// Service is the set of use cases served over HTTP.
type Service interface {
	Ingest(ctx context.Context, tenantID, filename string, data []byte) (service.IngestResult, error)
	Ask(ctx context.Context, tenantID, query string, topK int) (domain.RetrievalResult, error)
	Preview(ctx context.Context, tenantID, query string, topK int) ([]domain.ContextPreview, error)
	Sources(tenantID string) (service.SourceList, error)
	DeleteSource(ctx context.Context, tenantID, source string) (int, error)
}

// History is the optional query log with feedback.
type History interface {
	Recent(ctx context.Context, tenantID string, limit int) ([]audit.LoggedQuery, error)
	Feedback(ctx context.Context, tenantID string, id int64, helpful bool) error
}

// Server holds the handlers' dependencies.
type Server struct {
	svc       Service
	history   History
	maxUpload int64
	logger    logr.Logger
}

// NewServer builds the server. history may be nil, which disables the
// query history and feedback endpoints.
func NewServer(svc Service, history History, maxUploadBytes int64, logger logr.Logger) *Server {
	if maxUploadBytes <= 0 {
		maxUploadBytes = 10 << 20
	}
	return &Server{svc: svc, history: history, maxUpload: maxUploadBytes, logger: logger.WithName("http")}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.healthHandler)
	mux.HandleFunc("POST /v1/documents", s.tenant(s.uploadHandler))
	mux.HandleFunc("GET /v1/documents/sources", s.tenant(s.sourcesHandler))
	mux.HandleFunc("DELETE /v1/documents/{source}", s.tenant(s.deleteHandler))
	mux.HandleFunc("POST /v1/query", s.tenant(s.queryHandler))
	mux.HandleFunc("POST /v1/query/preview", s.tenant(s.previewHandler))
	mux.HandleFunc("GET /v1/queries", s.tenant(s.historyHandler))
	mux.HandleFunc("POST /v1/feedback", s.tenant(s.feedbackHandler))
	return s.logRequests(mux)
}

type tenantHandler func(w http.ResponseWriter, r *http.Request, tenantID string)

// tenant rejects requests without a tenant header.
func (s *Server) tenant(next tenantHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(TenantHeader)
		if id == "" {
			s.writeError(w, domain.ErrTenantRequired)
			return
		}
		next(w, r, id)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.V(1).Info("request", "method", r.Method, "path", r.URL.Path,
			"status", rec.status, "tenant", r.Header.Get(TenantHeader), "duration", time.Since(start))
	})
}

func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// POST /v1/documents  multipart form with a "file" field
func (s *Server) uploadHandler(w http.ResponseWriter, r *http.Request, tenantID string) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(s.maxUpload); err != nil {
		writeDetail(w, http.StatusBadRequest, "failed to parse form")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "failed to read upload")
		return
	}

	res, err := s.svc.Ingest(r.Context(), tenantID, header.Filename, data)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":        "Document uploaded successfully",
		"source":         res.Source,
		"chunks_created": res.Chunks,
	})
}

func (s *Server) sourcesHandler(w http.ResponseWriter, _ *http.Request, tenantID string) {
	list, err := s.svc.Sources(tenantID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) deleteHandler(w http.ResponseWriter, r *http.Request, tenantID string) {
	source := r.PathValue("source")
	removed, err := s.svc.DeleteSource(r.Context(), tenantID, source)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Document deleted", "source": source, "chunks_deleted": removed})
}

type queryRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

func (s *Server) decodeQuery(w http.ResponseWriter, r *http.Request) (queryRequest, bool) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid json")
		return req, false
	}
	return req, true
}

// POST /v1/query  {"query": "...", "top_k": 5}
func (s *Server) queryHandler(w http.ResponseWriter, r *http.Request, tenantID string) {
	req, ok := s.decodeQuery(w, r)
	if !ok {
		return
	}
	res, err := s.svc.Ask(r.Context(), tenantID, req.Query, req.TopK)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// POST /v1/query/preview  {"query": "...", "top_k": 3}
func (s *Server) previewHandler(w http.ResponseWriter, r *http.Request, tenantID string) {
	req, ok := s.decodeQuery(w, r)
	if !ok {
		return
	}
	chunks, err := s.svc.Preview(r.Context(), tenantID, req.Query, req.TopK)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if chunks == nil {
		chunks = []domain.ContextPreview{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"query": req.Query, "matching_chunks": chunks})
}

// GET /v1/queries?limit=20
func (s *Server) historyHandler(w http.ResponseWriter, r *http.Request, tenantID string) {
	if s.history == nil {
		writeDetail(w, http.StatusNotImplemented, "query history is disabled")
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeDetail(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	entries, err := s.history.Recent(r.Context(), tenantID, limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if entries == nil {
		entries = []audit.LoggedQuery{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"queries": entries})
}

type feedbackRequest struct {
	QueryID    int64 `json:"query_id"`
	WasHelpful bool  `json:"was_helpful"`
}

// POST /v1/feedback  {"query_id": 1, "was_helpful": true}
func (s *Server) feedbackHandler(w http.ResponseWriter, r *http.Request, tenantID string) {
	if s.history == nil {
		writeDetail(w, http.StatusNotImplemented, "query history is disabled")
		return
	}
	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := s.history.Feedback(r.Context(), tenantID, req.QueryID, req.WasHelpful); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Feedback recorded", "query_id": req.QueryID})
}

// statusFor maps error kinds to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrTenantRequired):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrEmptyQuery),
		errors.Is(err, domain.ErrUnsupportedFormat),
		errors.Is(err, domain.ErrEmptyContent):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrSourceNotFound), errors.Is(err, audit.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrDimensionMismatch):
		return http.StatusConflict
	case errors.Is(err, domain.ErrExternalService):
		return http.StatusBadGateway
	case errors.Is(err, domain.ErrNotConfigured):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= 500 {
		s.logger.Error(err, "request failed", "status", status)
	}
	writeDetail(w, status, err.Error())
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
