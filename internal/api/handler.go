package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/eugenenazirov/safeconfig/internal/storage"
	"github.com/eugenenazirov/safeconfig/internal/yamlloader"
)

type contextKey string

const requestIDContextKey contextKey = "requestID"

const defaultMaxDocumentBytes = 1 << 20

// Handler wires loader and storage dependencies into HTTP handlers.
type Handler struct {
	loader  yamlloader.Loader
	storage storage.Storage
	logger  *zap.Logger

	clock            func() time.Time
	maxDocumentBytes int64
	allowedSources   *yamlloader.Regexp
}

// HandlerOption configures Handler behaviour.
type HandlerOption func(*Handler)

// WithClock overrides the time source, primarily for tests.
func WithClock(clock func() time.Time) HandlerOption {
	return func(h *Handler) {
		h.clock = clock
	}
}

// WithLogger sets the logger used to report rejected documents.
func WithLogger(logger *zap.Logger) HandlerOption {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithMaxDocumentBytes caps the size of uploaded documents.
func WithMaxDocumentBytes(limit int64) HandlerOption {
	return func(h *Handler) {
		if limit > 0 {
			h.maxDocumentBytes = limit
		}
	}
}

// WithAllowedSources restricts accepted source labels to those matching re.
func WithAllowedSources(re *yamlloader.Regexp) HandlerOption {
	return func(h *Handler) {
		h.allowedSources = re
	}
}

// NewHandler constructs a Handler with the provided dependencies.
func NewHandler(loader yamlloader.Loader, store storage.Storage, opts ...HandlerOption) *Handler {
	h := &Handler{
		loader:  loader,
		storage: store,
		logger:  zap.NewNop(),
		clock: func() time.Time {
			return time.Now().UTC()
		},
		maxDocumentBytes: defaultMaxDocumentBytes,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	_ = r
	resp := healthResponse{
		Status:    "ok",
		Timestamp: h.clock(),
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleLoadDocument(w http.ResponseWriter, r *http.Request) {
	source := r.PathValue("source")
	if !h.sourceAllowed(source) {
		writeError(w, http.StatusBadRequest, "Invalid source", fmt.Sprintf("source label %q is not accepted", source))
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxDocumentBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Document too large",
				fmt.Sprintf("documents are limited to %d bytes", tooLarge.Limit))
			return
		}
		writeError(w, http.StatusBadRequest, "Invalid request", "unable to read request body")
		return
	}

	tree, err := h.loader.Load(body, source)
	if err != nil {
		h.logRejection(r.Context(), source, err)
		writeLoadError(w, err)
		return
	}

	doc := storage.Document{
		Source:   source,
		Tree:     tree,
		LoadedAt: h.clock(),
	}
	if err := h.storage.Put(doc); err != nil {
		if errors.Is(err, storage.ErrInvalidSource) {
			writeError(w, http.StatusBadRequest, "Invalid source", err.Error())
			return
		}
		writeInternalError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, newDocumentResponse(doc))
}

func (h *Handler) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := h.storage.Get(r.PathValue("source"))
	if err != nil {
		writeStorageError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newDocumentResponse(doc))
}

func (h *Handler) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	if err := h.storage.Delete(r.PathValue("source")); err != nil {
		writeStorageError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	_ = r
	docs, err := h.storage.List()
	if err != nil {
		writeInternalError(w, err)
		return
	}

	resp := listResponse{Documents: make([]documentSummary, 0, len(docs))}
	for _, doc := range docs {
		resp.Documents = append(resp.Documents, documentSummary{
			Source:   doc.Source,
			LoadedAt: doc.LoadedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) sourceAllowed(source string) bool {
	if strings.TrimSpace(source) == "" {
		return false
	}
	return h.allowedSources == nil || h.allowedSources.MatchString(source)
}

func (h *Handler) logRejection(ctx context.Context, source string, err error) {
	fields := []zap.Field{
		zap.String("source", source),
		zap.String("request_id", requestIDFromContext(ctx)),
		zap.Error(err),
	}

	var typeErr *yamlloader.DisallowedTypeError
	var malformed *yamlloader.MalformedInputError
	switch {
	case errors.As(err, &typeErr):
		fields = append(fields, zap.String("tag", typeErr.Tag), zap.Int("line", typeErr.Line))
		h.logger.Warn("document rejected", fields...)
	case errors.As(err, &malformed):
		fields = append(fields, zap.Int("line", malformed.Line))
		h.logger.Info("document malformed", fields...)
	default:
		h.logger.Error("document load failed", fields...)
	}
}

func requestIDFromContext(ctx context.Context) string {
	if v := ctx.Value(requestIDContextKey); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

type documentResponse struct {
	Source   string    `json:"source"`
	Document any       `json:"document"`
	LoadedAt time.Time `json:"loadedAt"`
}

func newDocumentResponse(doc storage.Document) documentResponse {
	return documentResponse{
		Source:   doc.Source,
		Document: yamlloader.Render(doc.Tree),
		LoadedAt: doc.LoadedAt,
	}
}

type documentSummary struct {
	Source   string    `json:"source"`
	LoadedAt time.Time `json:"loadedAt"`
}

type listResponse struct {
	Documents []documentSummary `json:"documents"`
}

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

type errorResponse struct {
	Error      string `json:"error"`
	Details    string `json:"details,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
	Tag        string `json:"tag,omitempty"`
	Line       int    `json:"line,omitempty"`
	Column     int    `json:"column,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if status != 0 {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message, details string, suggestion ...string) {
	resp := errorResponse{
		Error:   message,
		Details: details,
	}
	if len(suggestion) > 0 {
		resp.Suggestion = suggestion[0]
	}
	writeJSON(w, status, resp)
}

func writeLoadError(w http.ResponseWriter, err error) {
	var typeErr *yamlloader.DisallowedTypeError
	if errors.As(err, &typeErr) {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Error:      "Disallowed type",
			Details:    err.Error(),
			Suggestion: "Only !ruby/regexp and !ruby/symbol tags may be used in configuration files",
			Tag:        typeErr.Tag,
			Line:       typeErr.Line,
			Column:     typeErr.Column,
		})
		return
	}

	var malformed *yamlloader.MalformedInputError
	if errors.As(err, &malformed) {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:   "Malformed document",
			Details: err.Error(),
			Line:    malformed.Line,
			Column:  malformed.Column,
		})
		return
	}

	writeInternalError(w, err)
}

func writeStorageError(w http.ResponseWriter, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Not found", err.Error())
		return
	}
	writeInternalError(w, err)
}

func writeInternalError(w http.ResponseWriter, err error) {
	writeError(w, http.StatusInternalServerError, "Internal error", err.Error())
}
