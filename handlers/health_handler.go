package handlers

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/digitechhorizons/portal/utils"
	"go.uber.org/zap"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// BackendChecker reports whether the hosted auth backend answers
type BackendChecker interface {
	Health(ctx context.Context) error
}

// HealthHandler handles liveness and readiness probes
type HealthHandler struct {
	backend BackendChecker
	db      *sql.DB
	logger  *zap.Logger
}

// NewHealthHandler creates a new HealthHandler. db is nil when records
// are read through the backend's REST API.
func NewHealthHandler(backend BackendChecker, db *sql.DB, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		backend: backend,
		db:      db,
		logger:  logger,
	}
}

// HandleHealth handles GET /healthz
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteOK(w, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// HandleReadiness handles GET /readyz
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)
	allHealthy := true

	record := func(name string, err error) {
		if err != nil {
			h.logger.Warn("readiness check failed", zap.String("check", name), zap.Error(err))
			checks[name] = "unhealthy"
			allHealthy = false
			return
		}
		checks[name] = "healthy"
	}

	if h.backend != nil {
		record("backend", h.backend.Health(ctx))
	}
	if h.db != nil {
		record("database", h.checkDatabase(ctx))
	}

	status := "healthy"
	httpStatus := http.StatusOK
	if !allHealthy {
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	response := HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
	}
	if err := utils.WriteJSON(w, httpStatus, utils.SuccessResponse{Data: response}); err != nil {
		h.logger.Error("failed to write readiness response", zap.Error(err))
	}
}

func (h *HealthHandler) checkDatabase(ctx context.Context) error {
	if err := h.db.PingContext(ctx); err != nil {
		return err
	}
	var result int
	return h.db.QueryRowContext(ctx, "SELECT 1").Scan(&result)
}
