package forms

import (
	"context"
	"sync/atomic"

	"github.com/digitechhorizons/portal/internal/observability"
	"github.com/digitechhorizons/portal/services"
	"github.com/digitechhorizons/portal/supabase"
	"github.com/digitechhorizons/portal/utils"
	"go.uber.org/zap"
)

// SignInForm signs a visitor in with email and password
type SignInForm struct {
	*machine
	client    AuthClient
	resending atomic.Bool
}

// NewSignInForm creates a sign-in form
func NewSignInForm(client AuthClient, metrics *observability.Metrics, logger *zap.Logger) *SignInForm {
	return &SignInForm{
		machine: newMachine("sign_in", metrics, logger),
		client:  client,
	}
}

// Submit signs in. A failure never changes the current session; an
// unconfirmed email fails with details["can_resend"] set.
func (f *SignInForm) Submit(ctx context.Context, email, password string) error {
	if err := utils.ValidateRequired(email, "email"); err != nil {
		return f.reject(services.NewValidationError("email", "Email is required."))
	}
	if err := utils.ValidateRequired(password, "password"); err != nil {
		return f.reject(services.NewValidationError("password", "Password is required."))
	}

	if err := f.begin(); err != nil {
		return err
	}

	err := f.client.SignInWithPassword(ctx, utils.NormalizeEmail(email), password)
	if err != nil {
		f.logger.Info("sign-in failed", zap.String("kind", supabase.KindOf(err).String()))
		return f.finish(translateSignIn(err))
	}
	return f.finish(nil)
}

func translateSignIn(err error) error {
	switch supabase.KindOf(err) {
	case supabase.KindEmailNotConfirmed:
		return services.NewDomainError(services.ErrorTypeEmailNotConfirmed, MsgEmailNotConfirmed, err).
			WithDetail("can_resend", true)
	case supabase.KindInvalidCredentials:
		return services.NewDomainError(services.ErrorTypeInvalidCredentials, MsgInvalidCredentials, err)
	default:
		return authFailure(err, MsgSignInFailed)
	}
}

// Resend asks for a new confirmation email. Only one resend runs at a
// time; a second one while the first is in flight is rejected without a
// call. It does not change the form state.
func (f *SignInForm) Resend(ctx context.Context, email string) error {
	if err := utils.ValidateEmail(utils.NormalizeEmail(email)); err != nil {
		return services.NewValidationError("email", err.Error())
	}
	if !f.resending.CompareAndSwap(false, true) {
		f.count("resend_busy")
		return services.NewDomainError(services.ErrorTypeBusy, MsgBusy, nil)
	}
	defer f.resending.Store(false)

	if err := f.client.ResendConfirmation(ctx, utils.NormalizeEmail(email)); err != nil {
		f.logger.Warn("resend confirmation failed", zap.Error(err))
		f.count("resend_failed")
		return authFailure(err, MsgResendFailed)
	}
	f.count("resend_sent")
	return nil
}

// Resending reports whether a resend is in flight
func (f *SignInForm) Resending() bool {
	return f.resending.Load()
}
