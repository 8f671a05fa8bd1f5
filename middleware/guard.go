package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/digitechhorizons/portal/auth"
	"github.com/digitechhorizons/portal/internal/observability"
	"github.com/digitechhorizons/portal/models"
	"github.com/digitechhorizons/portal/session"
	"github.com/digitechhorizons/portal/utils"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Guard applies the route guard to protected routes. It waits for the
// visitor's store to finish loading before deciding.
type Guard struct {
	readyTimeout time.Duration
	metrics      *observability.Metrics
	logger       *zap.Logger
}

// NewGuard creates a new Guard
func NewGuard(readyTimeout time.Duration, metrics *observability.Metrics, logger *zap.Logger) *Guard {
	if readyTimeout == 0 {
		readyTimeout = 5 * time.Second
	}
	return &Guard{
		readyTimeout: readyTimeout,
		metrics:      metrics,
		logger:       logger,
	}
}

// Require guards a page: a refused visitor gets a 302 to the path the
// guard decided on
func (g *Guard) Require(role models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			snap, decision, ok := g.decide(w, r, role)
			if !ok {
				return
			}
			if !decision.Allow {
				http.Redirect(w, r, decision.RedirectTo, http.StatusFound)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithSnapshot(r.Context(), snap)))
		})
	}
}

// RequireAPI guards an API route: no session is a 401, the wrong role a
// 403, both carrying redirect_to
func (g *Guard) RequireAPI(role models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			snap, decision, ok := g.decide(w, r, role)
			if !ok {
				return
			}
			if !decision.Allow {
				details := map[string]interface{}{"redirect_to": decision.RedirectTo}
				if snap.Session == nil {
					_ = utils.WriteError(w, http.StatusUnauthorized, "Authentication required", details)
				} else {
					_ = utils.WriteError(w, http.StatusForbidden, "Insufficient permissions", details)
				}
				return
			}
			next.ServeHTTP(w, r.WithContext(WithSnapshot(r.Context(), snap)))
		})
	}
}

func (g *Guard) decide(w http.ResponseWriter, r *http.Request, role models.Role) (*session.Snapshot, auth.Decision, bool) {
	requestID := chimw.GetReqID(r.Context())

	visitor, ok := session.VisitorFromContext(r.Context())
	if !ok {
		g.logger.Error("visitor not found in context", zap.String("request_id", requestID))
		_ = utils.WriteInternalServerError(w, "")
		return nil, auth.Decision{}, false
	}

	ctx, cancel := context.WithTimeout(r.Context(), g.readyTimeout)
	defer cancel()
	if err := visitor.Store.WaitReady(ctx); err != nil {
		g.logger.Warn("session store not ready",
			zap.String("request_id", requestID),
			zap.Error(err))
		_ = utils.WriteError(w, http.StatusServiceUnavailable, "Session is still loading. Please try again.", nil)
		return nil, auth.Decision{}, false
	}

	snap := visitor.Store.Snapshot()
	decision := auth.Decide(snap.Session, snap.Role, role)

	result := "allow"
	if !decision.Allow {
		result = "redirect"
		g.logger.Debug("guard refused",
			zap.String("request_id", requestID),
			zap.String("required_role", string(role)),
			zap.String("redirect_to", decision.RedirectTo))
	}
	if g.metrics != nil {
		g.metrics.GuardDecisions.WithLabelValues(string(role), result).Inc()
	}
	return &snap, decision, true
}
