package forms

import (
	"context"
	"sync"

	"github.com/digitechhorizons/portal/internal/observability"
	"github.com/digitechhorizons/portal/services"
	"github.com/digitechhorizons/portal/utils"
	"go.uber.org/zap"
)

// MaxResetAttempts is the number of reset emails one form instance sends
const MaxResetAttempts = 3

// ResetRequestForm sends password recovery emails. A new instance is
// created every time the forgot-password page opens.
type ResetRequestForm struct {
	*machine
	client AuthClient

	attemptsMu sync.Mutex
	attempts   int
}

// NewResetRequestForm creates a reset request form with a fresh attempt count
func NewResetRequestForm(client AuthClient, metrics *observability.Metrics, logger *zap.Logger) *ResetRequestForm {
	return &ResetRequestForm{
		machine: newMachine("reset_request", metrics, logger),
		client:  client,
	}
}

// Submit sends a recovery email. Attempts past MaxResetAttempts are
// rejected without a call.
func (f *ResetRequestForm) Submit(ctx context.Context, email string) error {
	email = utils.NormalizeEmail(email)
	if email == "" {
		return f.reject(services.NewValidationError("email", "Email is required."))
	}

	f.attemptsMu.Lock()
	if f.attempts >= MaxResetAttempts {
		f.attemptsMu.Unlock()
		return f.reject(services.NewDomainError(services.ErrorTypeRateLimit, MsgTooManyAttempts, nil).
			WithDetail("attempts", MaxResetAttempts))
	}
	f.attemptsMu.Unlock()

	if err := f.begin(); err != nil {
		return err
	}

	f.attemptsMu.Lock()
	f.attempts++
	f.attemptsMu.Unlock()

	if err := f.client.ResetPasswordForEmail(ctx, email); err != nil {
		f.logger.Warn("password reset request failed", zap.Error(err))
		return f.finish(authFailure(err, MsgResetRequestFailed))
	}
	return f.finish(nil)
}

// Attempts returns how many reset emails were requested through this form
func (f *ResetRequestForm) Attempts() int {
	f.attemptsMu.Lock()
	defer f.attemptsMu.Unlock()
	return f.attempts
}

// ResetCompletionForm sets a new password for the visitor who followed a
// recovery link
type ResetCompletionForm struct {
	*machine
	client AuthClient
}

// NewResetCompletionForm creates a reset completion form
func NewResetCompletionForm(client AuthClient, metrics *observability.Metrics, logger *zap.Logger) *ResetCompletionForm {
	return &ResetCompletionForm{
		machine: newMachine("reset_completion", metrics, logger),
		client:  client,
	}
}

// Submit checks the password rules, then the confirmation, then updates
// the password.
func (f *ResetCompletionForm) Submit(ctx context.Context, password, confirmation string) error {
	if err := utils.ValidatePassword(password); err != nil {
		return f.reject(services.NewValidationError("password", err.Error()))
	}
	if password != confirmation {
		return f.reject(services.NewValidationError("confirm_password", utils.MsgPasswordMismatch))
	}

	if err := f.begin(); err != nil {
		return err
	}

	if err := f.client.UpdatePassword(ctx, password); err != nil {
		f.logger.Warn("password update failed", zap.Error(err))
		return f.finish(authFailure(err, MsgResetFailed))
	}
	return f.finish(nil)
}
