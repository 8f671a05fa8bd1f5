package auth

import (
	"net/http"

	"github.com/digitechhorizons/portal/models"
	"github.com/digitechhorizons/portal/session"
	"github.com/digitechhorizons/portal/supabase"
	"github.com/digitechhorizons/portal/utils"
	"go.uber.org/zap"
)

// LinkTypeRecovery marks a password recovery email link
const LinkTypeRecovery = "recovery"

// CallbackRequest carries the tokens of an email link redirect, read by
// the browser from the URL fragment
type CallbackRequest struct {
	AccessToken  string `json:"access_token" validate:"required"`
	RefreshToken string `json:"refresh_token" validate:"required"`
	Type         string `json:"type" validate:"omitempty,oneof=signup recovery invite magiclink email_change"`
}

// CallbackResponse tells the browser where to go after the callback
type CallbackResponse struct {
	RedirectTo string      `json:"redirect_to"`
	Role       models.Role `json:"role"`
}

// Handler handles the session lifecycle endpoints that bypass the forms:
// the email link callback and sign-out.
type Handler struct {
	logger *zap.Logger
}

// NewHandler creates a new auth handler
func NewHandler(logger *zap.Logger) *Handler {
	return &Handler{logger: logger}
}

// HandleCallback installs the session carried by a confirmation or
// recovery link. A recovery link leads to the reset-password page.
func (h *Handler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	visitor, ok := session.VisitorFromContext(r.Context())
	if !ok {
		_ = utils.WriteInternalServerError(w, "")
		return
	}

	var req CallbackRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		_ = utils.WriteBadRequest(w, "Invalid callback parameters", utils.ValidationDetails(err))
		return
	}

	err := visitor.Client.SetSessionFromRedirect(r.Context(), req.AccessToken, req.RefreshToken, req.Type)
	if err != nil {
		h.logger.Warn("email link callback failed",
			zap.String("type", req.Type),
			zap.String("kind", supabase.KindOf(err).String()))
		if supabase.KindOf(err) == supabase.KindUnauthorized {
			_ = utils.WriteUnauthorized(w, "This link is invalid or has expired.")
			return
		}
		_ = utils.WriteError(w, http.StatusBadGateway, "Could not verify the link. Please try again.", nil)
		return
	}

	role := visitor.Store.Role()
	redirect := LandingPath(role)
	if req.Type == LinkTypeRecovery {
		redirect = "/reset-password"
	}
	_ = utils.WriteOK(w, CallbackResponse{RedirectTo: redirect, Role: role})
}

// HandleSignOut ends the visitor's session. The local session is cleared
// even when revoking it with the auth service fails.
func (h *Handler) HandleSignOut(w http.ResponseWriter, r *http.Request) {
	visitor, ok := session.VisitorFromContext(r.Context())
	if !ok {
		_ = utils.WriteInternalServerError(w, "")
		return
	}

	if err := visitor.Client.SignOut(r.Context()); err != nil {
		h.logger.Warn("sign-out revoke failed", zap.Error(err))
	}
	_ = utils.WriteOK(w, CallbackResponse{RedirectTo: LoginPath})
}
