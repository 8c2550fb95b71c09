package handlers

import (
	"context"
	"net/http"
	"os"
	"runtime"
	"time"

	"go.uber.org/zap"

	"github.com/datakiln/ingest-engine/pkg/config"
	"github.com/datakiln/ingest-engine/pkg/database"
	"github.com/datakiln/ingest-engine/pkg/services"
)

// healthPingTimeout bounds the history-store probe on /health.
const healthPingTimeout = 2 * time.Second

// PingResponse contains service status and version information.
type PingResponse struct {
	Status           string   `json:"status"`
	Version          string   `json:"version"`
	Service          string   `json:"service"`
	GoVersion        string   `json:"go_version"`
	Hostname         string   `json:"hostname"`
	Environment      string   `json:"environment"`
	SupportedFormats []string `json:"supported_formats"`
}

// HealthHandler handles health check and ping endpoints.
type HealthHandler struct {
	cfg    *config.Config
	db     *database.DB // nil when the history store is disabled
	logger *zap.Logger
}

// NewHealthHandler creates a new HealthHandler. The database is optional;
// pass nil when ingestion history is not configured.
func NewHealthHandler(cfg *config.Config, db *database.DB, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{cfg: cfg, db: db, logger: logger}
}

// RegisterRoutes registers the health handler's routes on the given mux.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.Health)
	mux.HandleFunc("/ping", h.Ping)
}

// Health handles GET /health requests. When the history store is configured
// it is probed too, so load balancers stop routing to an instance that can
// no longer record ingestions.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthPingTimeout)
		defer cancel()
		if err := h.db.Ping(ctx); err != nil {
			h.logger.Warn("History store unreachable", zap.Error(err))
			http.Error(w, "history store unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ping handles GET /ping requests.
// Returns service information including version, environment and the file
// formats this instance accepts.
func (h *HealthHandler) Ping(w http.ResponseWriter, r *http.Request) {
	hostname, err := os.Hostname()
	if err != nil {
		http.Error(w, "failed to get hostname", http.StatusInternalServerError)
		return
	}

	response := PingResponse{
		Status:           "ok",
		Version:          h.cfg.Version,
		Service:          "ingest-engine",
		GoVersion:        runtime.Version(),
		Hostname:         hostname,
		Environment:      h.cfg.Env,
		SupportedFormats: services.SupportedExtensions(),
	}

	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to encode ping response", zap.Error(err))
	}
}
