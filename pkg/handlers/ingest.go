package handlers

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/datakiln/ingest-engine/pkg/apperrors"
	"github.com/datakiln/ingest-engine/pkg/models"
	"github.com/datakiln/ingest-engine/pkg/repositories"
	"github.com/datakiln/ingest-engine/pkg/services"
)

// maxUploadMemoryBytes bounds how much of a multipart body is held in memory
// before the runtime spills to temp files.
const maxUploadMemoryBytes = 32 << 20

// IngestResponse is the payload for a single successful ingestion.
type IngestResponse struct {
	Table    *models.Table        `json:"table"`
	Metadata *models.FileMetadata `json:"metadata"`
}

// CombineRequest selects the merge method for multi-file combination.
type CombineRequest struct {
	Method string `json:"method"`
}

// IngestHandler handles file upload and ingestion endpoints.
type IngestHandler struct {
	processor   services.FormatProcessor
	coordinator services.BatchCoordinator
	history     repositories.IngestionRepository
	cache       *redis.Client
	cacheTTL    time.Duration
	logger      *zap.Logger
}

// NewIngestHandler creates a new IngestHandler. The history repository and
// cache client are optional; pass nil to disable persistence or caching.
func NewIngestHandler(
	processor services.FormatProcessor,
	coordinator services.BatchCoordinator,
	history repositories.IngestionRepository,
	cache *redis.Client,
	cacheTTL time.Duration,
	logger *zap.Logger,
) *IngestHandler {
	return &IngestHandler{
		processor:   processor,
		coordinator: coordinator,
		history:     history,
		cache:       cache,
		cacheTTL:    cacheTTL,
		logger:      logger.Named("ingest-handler"),
	}
}

// RegisterRoutes registers the ingest handler's routes on the given mux.
func (h *IngestHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/ingest", h.Ingest)
	mux.HandleFunc("POST /api/ingest/batch", h.IngestBatch)
	mux.HandleFunc("POST /api/ingest/archive", h.IngestArchive)
	mux.HandleFunc("POST /api/ingest/combine", h.IngestCombine)
	mux.HandleFunc("GET /api/ingest/history", h.History)
}

// Ingest handles POST /api/ingest requests.
// Accepts a single multipart "file" field plus optional "encoding",
// "delimiter", and "sheet" hint fields.
func (h *IngestHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	data, name, err := readUploadedFile(r, "file")
	if err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	hints := models.IngestHints{
		Encoding:  r.FormValue("encoding"),
		Delimiter: r.FormValue("delimiter"),
		SheetName: r.FormValue("sheet"),
	}

	// Cache hits are only valid for hint-free requests: hints change the
	// parse result for identical bytes.
	cacheKey := ""
	if h.cache != nil && hints == (models.IngestHints{}) {
		sum := sha256.Sum256(data)
		cacheKey = "ingest:" + hex.EncodeToString(sum[:])

		if cached, err := h.cache.Get(r.Context(), cacheKey).Bytes(); err == nil {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("X-Cache", "hit")
			_, _ = w.Write(cached)
			return
		}
	}

	table, meta, err := h.processor.Process(r.Context(), data, name, hints)
	if err != nil {
		h.writeProcessError(w, name, err)
		return
	}

	if h.history != nil {
		if err := h.history.Record(r.Context(), meta); err != nil {
			h.logger.Warn("Failed to record ingestion history",
				zap.String("file", name), zap.Error(err))
		}
	}

	// Surfaced for the request logger, which folds it into the access line.
	w.Header().Set("X-Content-Hash", meta.ContentHash)

	response := IngestResponse{Table: table, Metadata: meta}

	if cacheKey != "" {
		if payload, err := json.Marshal(response); err == nil {
			if err := h.cache.Set(r.Context(), cacheKey, payload, h.cacheTTL).Err(); err != nil {
				h.logger.Warn("Failed to cache ingest result", zap.Error(err))
			}
		}
	}

	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to encode ingest response", zap.Error(err))
	}
}

// IngestBatch handles POST /api/ingest/batch requests.
// Accepts repeated multipart "files" fields and returns a batch report.
func (h *IngestHandler) IngestBatch(w http.ResponseWriter, r *http.Request) {
	files, err := readUploadedFiles(r, "files")
	if err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	report := h.coordinator.ProcessBatch(r.Context(), files)
	h.recordBatch(r, report)

	if err := WriteJSON(w, http.StatusOK, report); err != nil {
		h.logger.Error("Failed to encode batch response", zap.Error(err))
	}
}

// IngestArchive handles POST /api/ingest/archive requests.
// Accepts a single multipart "file" field containing a zip, tar, or tar.gz
// archive and returns a batch report over its supported entries.
func (h *IngestHandler) IngestArchive(w http.ResponseWriter, r *http.Request) {
	data, name, err := readUploadedFile(r, "file")
	if err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	if !services.ArchiveExtension(name) {
		_ = ErrorResponse(w, http.StatusUnsupportedMediaType, "unsupported_format",
			fmt.Sprintf("%s is not a supported archive", name))
		return
	}

	report := h.coordinator.ProcessArchive(r.Context(), data, name)
	h.recordBatch(r, report)

	if err := WriteJSON(w, http.StatusOK, report); err != nil {
		h.logger.Error("Failed to encode archive response", zap.Error(err))
	}
}

// IngestCombine handles POST /api/ingest/combine requests.
// Processes the uploaded files as a batch, then merges all successful tables
// using the "method" form field (concat, union, or intersect).
func (h *IngestHandler) IngestCombine(w http.ResponseWriter, r *http.Request) {
	files, err := readUploadedFiles(r, "files")
	if err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	method := services.CombineMethod(r.FormValue("method"))
	switch method {
	case services.CombineConcat, services.CombineUnion, services.CombineIntersect:
	case "":
		method = services.CombineConcat
	default:
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request",
			fmt.Sprintf("unknown combine method %q", method))
		return
	}

	report := h.coordinator.ProcessBatch(r.Context(), files)
	h.recordBatch(r, report)

	var tables []*models.Table
	for _, path := range report.EntryOrder() {
		entry := report.Entries[path]
		if entry.Table != nil {
			tables = append(tables, entry.Table)
		}
	}

	combined, err := h.coordinator.Combine(tables, method)
	if err != nil {
		if errors.Is(err, apperrors.ErrNoTables) {
			_ = ErrorResponse(w, http.StatusUnprocessableEntity, "no_tables",
				"no files could be processed")
			return
		}
		_ = ErrorResponse(w, http.StatusInternalServerError, "combine_failed", err.Error())
		return
	}

	response := struct {
		Table  *models.Table       `json:"table"`
		Report *models.BatchReport `json:"report"`
	}{Table: combined, Report: report}

	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to encode combine response", zap.Error(err))
	}
}

// History handles GET /api/ingest/history requests.
func (h *IngestHandler) History(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		_ = ErrorResponse(w, http.StatusNotImplemented, "history_disabled",
			"ingestion history is not configured")
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 1000 {
			_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request",
				"limit must be a positive integer up to 1000")
			return
		}
		limit = n
	}

	entries, err := h.history.List(r.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to list ingestion history", zap.Error(err))
		_ = ErrorResponse(w, http.StatusInternalServerError, "internal_error",
			"failed to list ingestion history")
		return
	}

	if err := WriteJSON(w, http.StatusOK, map[string]any{"files": entries}); err != nil {
		h.logger.Error("Failed to encode history response", zap.Error(err))
	}
}

// recordBatch persists metadata for every successful entry of a batch report.
func (h *IngestHandler) recordBatch(r *http.Request, report *models.BatchReport) {
	if h.history == nil {
		return
	}
	for _, path := range report.EntryOrder() {
		entry := report.Entries[path]
		if entry.Metadata == nil {
			continue
		}
		if err := h.history.Record(r.Context(), entry.Metadata); err != nil {
			h.logger.Warn("Failed to record ingestion history",
				zap.String("file", path), zap.Error(err))
		}
	}
}

// writeProcessError maps pipeline errors onto HTTP status codes. Sentinel
// matches run first: a validation failure whose finding wraps
// ErrFileTooLarge is a 413, not a generic 422.
func (h *IngestHandler) writeProcessError(w http.ResponseWriter, name string, err error) {
	switch {
	case errors.Is(err, apperrors.ErrFileTooLarge):
		_ = IngestErrorResponse(w, http.StatusRequestEntityTooLarge, "file_too_large", err)
	case errors.Is(err, apperrors.ErrUnsupportedFormat):
		_ = IngestErrorResponse(w, http.StatusUnsupportedMediaType, "unsupported_format", err)
	default:
		var valErr *apperrors.ValidationError
		var parseErr *apperrors.ParseError
		if errors.As(err, &valErr) || errors.As(err, &parseErr) {
			_ = IngestErrorResponse(w, http.StatusUnprocessableEntity, "ingest_failed", err)
			return
		}
		h.logger.Error("Ingestion failed", zap.String("file", name), zap.Error(err))
		_ = ErrorResponse(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func readUploadedFile(r *http.Request, field string) ([]byte, string, error) {
	if err := r.ParseMultipartForm(maxUploadMemoryBytes); err != nil {
		return nil, "", fmt.Errorf("invalid multipart form: %w", err)
	}

	file, header, err := r.FormFile(field)
	if err != nil {
		return nil, "", fmt.Errorf("missing %q field: %w", field, err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read upload: %w", err)
	}

	return data, header.Filename, nil
}

func readUploadedFiles(r *http.Request, field string) ([]services.BatchFile, error) {
	if err := r.ParseMultipartForm(maxUploadMemoryBytes); err != nil {
		return nil, fmt.Errorf("invalid multipart form: %w", err)
	}

	headers := r.MultipartForm.File[field]
	if len(headers) == 0 {
		return nil, fmt.Errorf("missing %q fields", field)
	}

	files := make([]services.BatchFile, 0, len(headers))
	for _, header := range headers {
		f, err := header.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", header.Filename, err)
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", header.Filename, err)
		}
		files = append(files, services.BatchFile{Name: header.Filename, Data: data})
	}

	return files, nil
}
