package models

import "time"

// Role is the authorization level attached to an authenticated subject.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// ParseRole maps a stored role value to a Role. Anything other than
// "admin" yields RoleUser so an unknown value never grants privileges.
func ParseRole(value string) Role {
	if Role(value) == RoleAdmin {
		return RoleAdmin
	}
	return RoleUser
}

// IsAdmin returns true for the admin role
func (r Role) IsAdmin() bool {
	return r == RoleAdmin
}

// Session is the proof of authentication issued by the hosted auth service.
// Tokens are opaque to this service.
type Session struct {
	SubjectID    string    `json:"subject_id"`
	Email        string    `json:"email"`
	AccessToken  string    `json:"-"`
	RefreshToken string    `json:"-"`
	IssuedAt     time.Time `json:"issued_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Expired reports whether the access token is past its expiry at now.
// A zero expiry never expires.
func (s *Session) Expired(now time.Time) bool {
	if s == nil {
		return true
	}
	if s.ExpiresAt.IsZero() {
		return false
	}
	return !now.Before(s.ExpiresAt)
}

// Clone returns a copy so callers cannot mutate the owner's session.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

// AuthEventKind names an auth-state change reported by the auth service.
type AuthEventKind string

const (
	AuthEventInitialSession   AuthEventKind = "INITIAL_SESSION"
	AuthEventSignedIn         AuthEventKind = "SIGNED_IN"
	AuthEventSignedOut        AuthEventKind = "SIGNED_OUT"
	AuthEventTokenRefreshed   AuthEventKind = "TOKEN_REFRESHED"
	AuthEventUserUpdated      AuthEventKind = "USER_UPDATED"
	AuthEventPasswordRecovery AuthEventKind = "PASSWORD_RECOVERY"
)

// AuthEvent is one entry of the auth-state event stream. Seq increases
// monotonically per stream; consumers keep only the highest Seq.
type AuthEvent struct {
	Seq     uint64
	Kind    AuthEventKind
	Session *Session
}
