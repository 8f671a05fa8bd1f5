package forms

import (
	"context"

	"github.com/digitechhorizons/portal/internal/observability"
	"github.com/digitechhorizons/portal/models"
	"github.com/digitechhorizons/portal/services"
	"github.com/digitechhorizons/portal/supabase"
	"github.com/digitechhorizons/portal/utils"
	"go.uber.org/zap"
)

// SignUpOutcome reports what a successful sign-up led to
type SignUpOutcome struct {
	ConfirmationSent bool `json:"confirmation_sent"`
	SignedIn         bool `json:"signed_in"`
}

// SignUpForm registers a new account
type SignUpForm struct {
	*machine
	client AuthClient
}

// NewSignUpForm creates a sign-up form
func NewSignUpForm(client AuthClient, metrics *observability.Metrics, logger *zap.Logger) *SignUpForm {
	return &SignUpForm{
		machine: newMachine("sign_up", metrics, logger),
		client:  client,
	}
}

// Submit checks the email shape and the password rules in order, then
// registers the account with role "user".
func (f *SignUpForm) Submit(ctx context.Context, email, password string) (*SignUpOutcome, error) {
	email = utils.NormalizeEmail(email)
	if err := utils.ValidateEmail(email); err != nil {
		return nil, f.reject(services.NewValidationError("email", err.Error()))
	}
	if err := utils.ValidatePassword(password); err != nil {
		return nil, f.reject(services.NewValidationError("password", err.Error()))
	}

	if err := f.begin(); err != nil {
		return nil, err
	}

	res, err := f.client.SignUp(ctx, email, password, map[string]interface{}{
		"role": string(models.RoleUser),
	})
	if err != nil {
		f.logger.Info("sign-up failed", zap.String("kind", supabase.KindOf(err).String()))
		if supabase.KindOf(err) == supabase.KindAlreadyRegistered {
			return nil, f.finish(services.NewDomainError(services.ErrorTypeDuplicateRegistration, MsgAlreadyRegistered, err))
		}
		return nil, f.finish(authFailure(err, MsgSignUpFailed))
	}

	return &SignUpOutcome{
		ConfirmationSent: res.Session == nil,
		SignedIn:         res.Session != nil,
	}, f.finish(nil)
}
