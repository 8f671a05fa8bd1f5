package handlers

import (
	"context"
	"net/http"

	"github.com/digitechhorizons/portal/middleware"
	"github.com/digitechhorizons/portal/models"
	"github.com/digitechhorizons/portal/repositories"
	"github.com/digitechhorizons/portal/utils"
	"go.uber.org/zap"
)

// DashboardService loads dashboard data
type DashboardService interface {
	Admin(ctx context.Context) (*models.AdminOverview, error)
	User(ctx context.Context, userID string) (*models.UserOverview, error)
}

// DashboardHandler serves the two dashboards. Routes are behind a Guard,
// which leaves the admitted snapshot in the context.
type DashboardHandler struct {
	service DashboardService
	logger  *zap.Logger
}

// NewDashboardHandler creates a new DashboardHandler
func NewDashboardHandler(service DashboardService, logger *zap.Logger) *DashboardHandler {
	return &DashboardHandler{service: service, logger: logger}
}

// HandleAdmin handles GET /api/v1/dashboard/admin
func (h *DashboardHandler) HandleAdmin(w http.ResponseWriter, r *http.Request) {
	ctx, ok := h.readContext(w, r)
	if !ok {
		return
	}

	overview, err := h.service.Admin(ctx)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, overview)
}

// HandleUser handles GET /api/v1/dashboard/user
func (h *DashboardHandler) HandleUser(w http.ResponseWriter, r *http.Request) {
	ctx, ok := h.readContext(w, r)
	if !ok {
		return
	}

	snap := middleware.GetSnapshotFromContext(r.Context())
	overview, err := h.service.User(ctx, snap.Session.SubjectID)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, overview)
}

// readContext scopes record reads to the signed-in subject
func (h *DashboardHandler) readContext(w http.ResponseWriter, r *http.Request) (context.Context, bool) {
	snap := middleware.GetSnapshotFromContext(r.Context())
	if snap == nil || snap.Session == nil {
		_ = utils.WriteUnauthorized(w, "")
		return nil, false
	}
	ctx := repositories.WithAccessToken(r.Context(), snap.Session.AccessToken)
	ctx = repositories.WithSubject(ctx, snap.Session.SubjectID)
	return ctx, true
}
