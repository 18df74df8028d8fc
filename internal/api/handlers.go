package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/legaldoc/engine/internal/core"
	"github.com/legaldoc/engine/internal/index"
	"github.com/legaldoc/engine/internal/store"
)

type contextKey string

const ownerIDKey contextKey = "ownerID"

// APIHandler exposes the document pipeline over HTTP.
type APIHandler struct {
	ingest    *core.IngestService
	query     *core.QueryService
	analysis  *core.AnalysisService
	maxUpload int64
	// retryAfter is the cooldown advertised on rate-limited responses. It
	// matches the LLM client's rate-limit cooldown.
	retryAfter time.Duration
	log        *zap.Logger
}

func NewAPIHandler(ingest *core.IngestService, query *core.QueryService, analysis *core.AnalysisService, maxUpload int64, retryAfter time.Duration, log *zap.Logger) *APIHandler {
	return &APIHandler{
		ingest:     ingest,
		query:      query,
		analysis:   analysis,
		maxUpload:  maxUpload,
		retryAfter: retryAfter,
		log:        log,
	}
}

// OwnerMiddleware requires the X-Owner-ID header set by the upstream auth
// layer and stashes it in the request context.
func (h *APIHandler) OwnerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ownerID := r.Header.Get("X-Owner-ID")
		if ownerID == "" {
			h.writeError(w, http.StatusUnauthorized, "X-Owner-ID header is required")
			return
		}
		ctx := context.WithValue(r.Context(), ownerIDKey, ownerID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func ownerID(r *http.Request) string {
	id, _ := r.Context().Value(ownerIDKey).(string)
	return id
}

func (h *APIHandler) UploadDocumentHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			h.writeError(w, http.StatusRequestEntityTooLarge, "uploaded file is too large")
			return
		}
		h.writeError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "multipart field 'file' is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "failed to read uploaded file")
		return
	}

	declaredType := header.Header.Get("Content-Type")
	receipt, err := h.ingest.Ingest(r.Context(), ownerID(r), header.Filename, data, declaredType)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	status := http.StatusCreated
	if receipt.Status == core.IngestDuplicate {
		status = http.StatusOK
	}
	h.writeJSON(w, status, receipt)
}

func (h *APIHandler) DeleteDocumentHandler(w http.ResponseWriter, r *http.Request) {
	documentID := chi.URLParam(r, "documentID")

	if err := h.ingest.Delete(r.Context(), documentID); err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type AskRequest struct {
	Question   string `json:"question"`
	DocumentID string `json:"document_id,omitempty"`
	InlineText string `json:"inline_text,omitempty"`
}

func (h *APIHandler) AskHandler(w http.ResponseWriter, r *http.Request) {
	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Question == "" {
		h.writeError(w, http.StatusBadRequest, "question cannot be empty")
		return
	}

	answer, err := h.query.Ask(r.Context(), ownerID(r), req.Question, core.Scope{DocumentID: req.DocumentID}, req.InlineText)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, answer)
}

type AnalyzeRequest struct {
	Kind string `json:"kind"`
}

func (h *APIHandler) AnalyzeDocumentHandler(w http.ResponseWriter, r *http.Request) {
	documentID := chi.URLParam(r, "documentID")

	var req AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	kind, err := core.ParseAnalysisKind(req.Kind)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	analysis, err := h.analysis.Analyze(r.Context(), documentID, kind)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, analysis)
}

func (h *APIHandler) HealthHandler(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleServiceError maps the service error taxonomy onto HTTP statuses.
func (h *APIHandler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "document not found")
	case errors.Is(err, core.ErrBudgetExceeded):
		h.writeError(w, http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, core.ErrRateLimited):
		if h.retryAfter > 0 {
			// Retry-After is whole seconds; round sub-second cooldowns up.
			secs := int((h.retryAfter + time.Second - 1) / time.Second)
			w.Header().Set("Retry-After", strconv.Itoa(secs))
		}
		h.writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, core.ErrUpstreamTimeout):
		h.writeError(w, http.StatusGatewayTimeout, err.Error())
	case errors.Is(err, core.ErrUpstreamError):
		h.writeError(w, http.StatusBadGateway, err.Error())
	case errors.Is(err, index.ErrUnavailable):
		h.writeError(w, http.StatusServiceUnavailable, "search index is temporarily unavailable")
	default:
		h.log.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func (h *APIHandler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("failed to encode response", zap.Error(err))
	}
}

func (h *APIHandler) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
