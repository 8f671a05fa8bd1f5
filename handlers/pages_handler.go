package handlers

import (
	"net/http"
	"strings"

	"github.com/digitechhorizons/portal/auth"
	"github.com/digitechhorizons/portal/forms"
	"github.com/digitechhorizons/portal/middleware"
	"github.com/digitechhorizons/portal/models"
	"github.com/digitechhorizons/portal/session"
	"github.com/digitechhorizons/portal/utils"
	"go.uber.org/zap"
)

// Page describes what the SPA shell renders for a path
type Page struct {
	Path      string                  `json:"path"`
	Title     string                  `json:"title"`
	Component string                  `json:"component"`
	Role      models.Role             `json:"role,omitempty"`
	Session   *session.Snapshot       `json:"session,omitempty"`
	Forms     map[string]forms.Status `json:"forms,omitempty"`
}

// PublicPages lists the pages anyone can open. Several paths share the
// home component.
var PublicPages = []Page{
	{Path: "/", Title: "DigiTech Horizons", Component: "home"},
	{Path: "/about", Title: "About Us", Component: "about"},
	{Path: "/services", Title: "Services", Component: "home"},
	{Path: "/services/development", Title: "Development Services", Component: "development_services"},
	{Path: "/developers", Title: "Developers", Component: "developers"},
	{Path: "/meta-ads", Title: "Meta Ads", Component: "meta_ads"},
	{Path: "/careers", Title: "Careers", Component: "home"},
	{Path: "/blog", Title: "Blog", Component: "home"},
	{Path: "/privacy", Title: "Privacy Policy", Component: "home"},
	{Path: "/terms", Title: "Terms of Service", Component: "home"},
	{Path: "/cookies", Title: "Cookie Policy", Component: "home"},
	{Path: "/login", Title: "Sign In", Component: "login"},
	{Path: "/register", Title: "Create Account", Component: "register"},
	{Path: "/forgot-password", Title: "Forgot Password", Component: "forgot_password"},
	{Path: "/reset-password", Title: "Reset Password", Component: "reset_password"},
}

// GuardedPages lists the dashboards
var GuardedPages = []Page{
	{Path: "/dashboard", Title: "Admin Dashboard", Component: "admin_dashboard", Role: models.RoleAdmin},
	{Path: "/user-dashboard", Title: "Dashboard", Component: "user_dashboard", Role: models.RoleUser},
}

// PagesHandler serves page descriptors
type PagesHandler struct {
	pixel  PixelTracker
	logger *zap.Logger
}

// NewPagesHandler creates a new PagesHandler. pixel may be nil.
func NewPagesHandler(pixel PixelTracker, logger *zap.Logger) *PagesHandler {
	return &PagesHandler{pixel: pixel, logger: logger}
}

// Public returns the handler for one public page
func (h *PagesHandler) Public(page Page) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		visitor, _ := session.VisitorFromContext(r.Context())
		desc := page

		if visitor != nil {
			switch page.Path {
			case "/forgot-password":
				// every visit starts a new attempt budget
				visitor.Forms.OpenResetRequest()
				desc.Forms = visitor.Forms.Statuses()
			case "/login", "/register", "/reset-password":
				desc.Forms = visitor.Forms.Statuses()
			}
		}

		h.track(r, page)
		_ = utils.WriteOK(w, desc)
	}
}

// Guarded returns the handler for a dashboard page. It must run behind
// Guard.Require, which stores the admitted snapshot.
func (h *PagesHandler) Guarded(page Page) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		desc := page
		desc.Session = middleware.GetSnapshotFromContext(r.Context())
		if desc.Session == nil {
			http.Redirect(w, r, auth.LoginPath, http.StatusFound)
			return
		}
		_ = utils.WriteOK(w, desc)
	}
}

func (h *PagesHandler) track(r *http.Request, page Page) {
	if h.pixel == nil {
		return
	}
	h.pixel.Track(pixelEvent(r, models.PixelEventPageView, false, map[string]interface{}{
		"page_title": page.Title,
	}))
	if page.Path == "/meta-ads" {
		h.pixel.Track(pixelEvent(r, models.PixelEventViewContent, false, map[string]interface{}{
			"content_name": strings.TrimPrefix(page.Path, "/"),
		}))
	}
}
