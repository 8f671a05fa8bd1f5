package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/digitechhorizons/portal/auth"
	"github.com/digitechhorizons/portal/forms"
	"github.com/digitechhorizons/portal/session"
	"github.com/digitechhorizons/portal/utils"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// CredentialsRequest is the body of sign-in and sign-up
type CredentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// EmailRequest is the body of resend-confirmation and reset-request
type EmailRequest struct {
	Email string `json:"email"`
}

// ResetPasswordRequest is the body of the reset completion
type ResetPasswordRequest struct {
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

// SessionResponse describes the visitor's auth state
type SessionResponse struct {
	session.Snapshot
	LandingPath string                  `json:"landing_path,omitempty"`
	Forms       map[string]forms.Status `json:"forms,omitempty"`
}

// AuthHandler handles the credential form endpoints
type AuthHandler struct {
	readyTimeout time.Duration
	logger       *zap.Logger
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(readyTimeout time.Duration, logger *zap.Logger) *AuthHandler {
	if readyTimeout == 0 {
		readyTimeout = 5 * time.Second
	}
	return &AuthHandler{readyTimeout: readyTimeout, logger: logger}
}

// HandleSession handles GET /api/v1/auth/session
func (h *AuthHandler) HandleSession(w http.ResponseWriter, r *http.Request) {
	visitor, ok := h.visitor(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.readyTimeout)
	defer cancel()
	// a store still loading is reported as such
	_ = visitor.Store.WaitReady(ctx)

	_ = utils.WriteOK(w, h.sessionResponse(visitor))
}

// HandleSignIn handles POST /api/v1/auth/sign-in
func (h *AuthHandler) HandleSignIn(w http.ResponseWriter, r *http.Request) {
	visitor, ok := h.visitor(w, r)
	if !ok {
		return
	}

	var req CredentialsRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	if err := visitor.Forms.SignIn.Submit(r.Context(), req.Email, req.Password); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, h.sessionResponse(visitor))
}

// HandleSignUp handles POST /api/v1/auth/sign-up
func (h *AuthHandler) HandleSignUp(w http.ResponseWriter, r *http.Request) {
	visitor, ok := h.visitor(w, r)
	if !ok {
		return
	}

	var req CredentialsRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	outcome, err := visitor.Forms.SignUp.Submit(r.Context(), req.Email, req.Password)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	message := "Please check your email to verify your account."
	if outcome.SignedIn {
		message = "Account created."
	}
	_ = utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse{Data: outcome, Message: message})
}

// HandleResendConfirmation handles POST /api/v1/auth/resend-confirmation
func (h *AuthHandler) HandleResendConfirmation(w http.ResponseWriter, r *http.Request) {
	visitor, ok := h.visitor(w, r)
	if !ok {
		return
	}

	var req EmailRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	if err := visitor.Forms.SignIn.Resend(r.Context(), req.Email); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteMessage(w, forms.MsgResendSent, nil)
}

// HandleResetRequest handles POST /api/v1/auth/password/reset-request
func (h *AuthHandler) HandleResetRequest(w http.ResponseWriter, r *http.Request) {
	visitor, ok := h.visitor(w, r)
	if !ok {
		return
	}

	var req EmailRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	form := visitor.Forms.ResetRequest()
	if err := form.Submit(r.Context(), req.Email); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteMessage(w, "Check your email for a link to reset your password.", map[string]interface{}{
		"attempts_remaining": forms.MaxResetAttempts - form.Attempts(),
	})
}

// HandleResetPassword handles POST /api/v1/auth/password/reset
func (h *AuthHandler) HandleResetPassword(w http.ResponseWriter, r *http.Request) {
	visitor, ok := h.visitor(w, r)
	if !ok {
		return
	}

	var req ResetPasswordRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	if err := visitor.Forms.ResetCompletion.Submit(r.Context(), req.Password, req.ConfirmPassword); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteMessage(w, "Your password has been reset.", map[string]interface{}{
		"redirect_to": auth.LoginPath,
	})
}

// HandleFormEdit handles POST /api/v1/auth/forms/{form}/edit, returning a
// failed form to idle
func (h *AuthHandler) HandleFormEdit(w http.ResponseWriter, r *http.Request) {
	visitor, ok := h.visitor(w, r)
	if !ok {
		return
	}

	switch chi.URLParam(r, "form") {
	case "sign-in":
		visitor.Forms.SignIn.Edit()
	case "sign-up":
		visitor.Forms.SignUp.Edit()
	case "reset-request":
		visitor.Forms.ResetRequest().Edit()
	case "reset":
		visitor.Forms.ResetCompletion.Edit()
	default:
		_ = utils.WriteNotFound(w, "Unknown form")
		return
	}
	_ = utils.WriteOK(w, visitor.Forms.Statuses())
}

func (h *AuthHandler) visitor(w http.ResponseWriter, r *http.Request) (*session.Visitor, bool) {
	visitor, ok := session.VisitorFromContext(r.Context())
	if !ok {
		h.logger.Error("visitor not found in context")
		_ = utils.WriteInternalServerError(w, "")
	}
	return visitor, ok
}

func (h *AuthHandler) sessionResponse(v *session.Visitor) SessionResponse {
	snap := v.Store.Snapshot()
	resp := SessionResponse{Snapshot: snap, Forms: v.Forms.Statuses()}
	if snap.Session != nil {
		resp.LandingPath = auth.LandingPath(snap.Role)
	}
	return resp
}

// AuthDeps provides the session lifecycle handler for route wiring
type AuthDeps interface {
	AuthHandler() *auth.Handler
}

// AuthCallbackHandler returns an http.HandlerFunc for the email link callback
func AuthCallbackHandler(deps AuthDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h := deps.AuthHandler(); h != nil {
			h.HandleCallback(w, r)
			return
		}
		_ = utils.WriteInternalServerError(w, "Authentication not configured")
	}
}

// AuthSignOutHandler returns an http.HandlerFunc for sign-out
func AuthSignOutHandler(deps AuthDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h := deps.AuthHandler(); h != nil {
			h.HandleSignOut(w, r)
			return
		}
		_ = utils.WriteInternalServerError(w, "Authentication not configured")
	}
}
