package middleware

import (
	"net/http"

	"github.com/digitechhorizons/portal/session"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// VisitorMiddleware binds every request to the visitor named by its
// cookie, creating a visitor (and cookie) on first contact
type VisitorMiddleware struct {
	manager    *session.Manager
	cookieName string
	secure     bool
	logger     *zap.Logger
}

// NewVisitorMiddleware creates a new VisitorMiddleware
func NewVisitorMiddleware(manager *session.Manager, cookieName string, secure bool, logger *zap.Logger) *VisitorMiddleware {
	if cookieName == "" {
		cookieName = "dh_visitor"
	}
	return &VisitorMiddleware{
		manager:    manager,
		cookieName: cookieName,
		secure:     secure,
		logger:     logger,
	}
}

// Attach puts the request's visitor in the context
func (m *VisitorMiddleware) Attach(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var id string
		if cookie, err := r.Cookie(m.cookieName); err == nil {
			id = cookie.Value
		}

		visitor, created := m.manager.Get(id)
		if created {
			http.SetCookie(w, &http.Cookie{
				Name:     m.cookieName,
				Value:    visitor.ID,
				Path:     "/",
				HttpOnly: true,
				Secure:   m.secure,
				SameSite: http.SameSiteLaxMode,
			})
			m.logger.Debug("new visitor",
				zap.String("request_id", chimw.GetReqID(r.Context())),
				zap.String("visitor_id", visitor.ID))
		}

		next.ServeHTTP(w, r.WithContext(session.WithVisitor(r.Context(), visitor)))
	})
}
