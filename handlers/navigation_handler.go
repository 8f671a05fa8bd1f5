package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/digitechhorizons/portal/auth"
	"github.com/digitechhorizons/portal/session"
	"github.com/digitechhorizons/portal/utils"
	"go.uber.org/zap"
)

// NavigationHandler exposes the route guard to the browser router
type NavigationHandler struct {
	readyTimeout time.Duration
	logger       *zap.Logger
}

// NewNavigationHandler creates a new NavigationHandler
func NewNavigationHandler(readyTimeout time.Duration, logger *zap.Logger) *NavigationHandler {
	if readyTimeout == 0 {
		readyTimeout = 5 * time.Second
	}
	return &NavigationHandler{readyTimeout: readyTimeout, logger: logger}
}

// HandleNavigate handles GET /api/v1/navigate?path=. Paths the guard
// does not cover are always allowed.
func (h *NavigationHandler) HandleNavigate(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		_ = utils.WriteBadRequest(w, "path is required", map[string]interface{}{"field": "path"})
		return
	}

	required, guarded := auth.RequiredRole(path)
	if !guarded {
		_ = utils.WriteOK(w, auth.Decision{Allow: true})
		return
	}

	visitor, ok := session.VisitorFromContext(r.Context())
	if !ok {
		_ = utils.WriteInternalServerError(w, "")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.readyTimeout)
	defer cancel()
	if err := visitor.Store.WaitReady(ctx); err != nil {
		_ = utils.WriteError(w, http.StatusServiceUnavailable, "Session is still loading. Please try again.", nil)
		return
	}

	snap := visitor.Store.Snapshot()
	_ = utils.WriteOK(w, auth.Decide(snap.Session, snap.Role, required))
}
