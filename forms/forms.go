// Package forms implements the credential forms of one visitor: sign-in,
// sign-up, password reset request and password reset completion.
//
// Each form validates locally, then makes at most one call to the auth
// service and translates its failure into a services.DomainError carrying
// the message shown to the user.
package forms

import (
	"context"
	"sync"

	"github.com/digitechhorizons/portal/internal/observability"
	"github.com/digitechhorizons/portal/services"
	"github.com/digitechhorizons/portal/supabase"
	"go.uber.org/zap"
)

// AuthClient is the part of the auth service the forms call
type AuthClient interface {
	SignInWithPassword(ctx context.Context, email, password string) error
	SignUp(ctx context.Context, email, password string, metadata map[string]interface{}) (*supabase.SignUpResult, error)
	ResendConfirmation(ctx context.Context, email string) error
	ResetPasswordForEmail(ctx context.Context, email string) error
	UpdatePassword(ctx context.Context, password string) error
}

// Messages shown for failed submissions
const (
	MsgEmailNotConfirmed  = "Please verify your email address before logging in. Check your inbox for the confirmation link."
	MsgInvalidCredentials = "Invalid email or password. Please check your credentials and try again."
	MsgSignInFailed       = "An error occurred while signing in. Please try again."
	MsgAlreadyRegistered  = "This email is already registered. Please try logging in instead."
	MsgSignUpFailed       = "An unexpected error occurred during sign up. Please try again."
	MsgTooManyAttempts    = "Too many attempts. Please try again later."
	MsgResetRequestFailed = "Failed to send reset instructions. Please try again."
	MsgResetFailed        = "Failed to reset password. Please try again."
	MsgResendSent         = "Confirmation email has been resent. Please check your inbox and spam folder."
	MsgResendFailed       = "Failed to resend confirmation email. Please try again later."
	MsgBusy               = "A submission is already in progress."
)

// State is the lifecycle state of a form
type State string

const (
	StateIdle       State = "idle"
	StateSubmitting State = "submitting"
	StateSuccess    State = "success"
	StateFailed     State = "failed"
)

// machine is the submit lifecycle shared by every form. A submit while
// another one is in flight is rejected without touching the state.
type machine struct {
	name    string
	metrics *observability.Metrics
	logger  *zap.Logger

	mu      sync.Mutex
	state   State
	message string
}

func newMachine(name string, metrics *observability.Metrics, logger *zap.Logger) *machine {
	return &machine{name: name, metrics: metrics, logger: logger.With(zap.String("form", name)), state: StateIdle}
}

// begin moves the form to Submitting, or fails with a busy error
func (m *machine) begin() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateSubmitting {
		m.count("busy")
		return services.NewDomainError(services.ErrorTypeBusy, MsgBusy, nil)
	}
	m.state = StateSubmitting
	m.message = ""
	return nil
}

// finish records the outcome of a submit started with begin
func (m *machine) finish(err error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err != nil {
		m.state = StateFailed
		m.message = services.GetErrorMessage(err)
		m.count(string(services.GetErrorType(err)))
		return err
	}
	m.state = StateSuccess
	m.count("success")
	return nil
}

// reject fails a submit locally without a call. It never interrupts an
// in-flight submit.
func (m *machine) reject(err error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateSubmitting {
		m.count("busy")
		return services.NewDomainError(services.ErrorTypeBusy, MsgBusy, nil)
	}
	m.state = StateFailed
	m.message = services.GetErrorMessage(err)
	m.count(string(services.GetErrorType(err)))
	return err
}

func (m *machine) count(outcome string) {
	if m.metrics != nil {
		m.metrics.FormSubmissions.WithLabelValues(m.name, outcome).Inc()
	}
}

// State returns the current state
func (m *machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Message returns the message of the last failure, if the form is Failed
func (m *machine) Message() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateFailed {
		return ""
	}
	return m.message
}

// Edit returns a failed form to Idle
func (m *machine) Edit() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateFailed {
		m.state = StateIdle
		m.message = ""
	}
}

// Status is the externally visible state of one form
type Status struct {
	State   State  `json:"state"`
	Message string `json:"message,omitempty"`
}

func (m *machine) status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := Status{State: m.state}
	if m.state == StateFailed {
		st.Message = m.message
	}
	return st
}

// authFailure wraps an auth service error the form has no specific
// message for
func authFailure(err error, message string) *services.DomainError {
	if supabase.KindOf(err) == supabase.KindRateLimited {
		return services.NewDomainError(services.ErrorTypeRateLimit, message, err)
	}
	return services.NewDomainError(services.ErrorTypeExternal, message, err)
}
