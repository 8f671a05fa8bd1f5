package forms

import (
	"sync"

	"github.com/digitechhorizons/portal/internal/observability"
	"go.uber.org/zap"
)

// Set holds the forms of one visitor
type Set struct {
	client  AuthClient
	metrics *observability.Metrics
	logger  *zap.Logger

	SignIn          *SignInForm
	SignUp          *SignUpForm
	ResetCompletion *ResetCompletionForm

	mu           sync.Mutex
	resetRequest *ResetRequestForm
}

// NewSet creates the forms of one visitor
func NewSet(client AuthClient, metrics *observability.Metrics, logger *zap.Logger) *Set {
	return &Set{
		client:          client,
		metrics:         metrics,
		logger:          logger,
		SignIn:          NewSignInForm(client, metrics, logger),
		SignUp:          NewSignUpForm(client, metrics, logger),
		ResetCompletion: NewResetCompletionForm(client, metrics, logger),
		resetRequest:    NewResetRequestForm(client, metrics, logger),
	}
}

// OpenResetRequest replaces the reset request form with a fresh one, as
// happens when the forgot-password page is opened.
func (s *Set) OpenResetRequest() *ResetRequestForm {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetRequest = NewResetRequestForm(s.client, s.metrics, s.logger)
	return s.resetRequest
}

// ResetRequest returns the current reset request form
func (s *Set) ResetRequest() *ResetRequestForm {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resetRequest
}

// Statuses reports the state of every form, keyed by form name
func (s *Set) Statuses() map[string]Status {
	return map[string]Status{
		"sign_in":          s.SignIn.status(),
		"sign_up":          s.SignUp.status(),
		"reset_request":    s.ResetRequest().status(),
		"reset_completion": s.ResetCompletion.status(),
	}
}
