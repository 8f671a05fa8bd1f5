package repositories

import (
	"context"
	"errors"

	"github.com/digitechhorizons/portal/models"
)

// ErrNotFound is returned when a lookup matches no record
var ErrNotFound = errors.New("record not found")

// TransactionManager manages database transactions
type TransactionManager interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) (Transaction, error)

	// InTransaction executes a function within a transaction
	// Automatically commits if function succeeds, rolls back on error
	InTransaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error
}

// Transaction represents a database transaction
type Transaction interface {
	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error

	// Context returns the transaction context
	Context() context.Context
}

// ProfileRepository reads the profiles table
type ProfileRepository interface {
	// GetRole returns the raw role value stored for a subject.
	// Returns ErrNotFound when the subject has no profile.
	GetRole(ctx context.Context, subjectID string) (string, error)

	// Count returns the total number of profiles
	Count(ctx context.Context) (int, error)
}

// ProtectionRepository reads per-user protection metrics and content scans
type ProtectionRepository interface {
	// GetMetrics returns the metrics row of a user.
	// Returns ErrNotFound when the user has none yet.
	GetMetrics(ctx context.Context, userID string) (*models.ProtectionMetrics, error)

	// ListRecentScans returns up to limit scans, newest first
	ListRecentScans(ctx context.Context, userID string, limit int) ([]*models.ContentScan, error)
}

// Repositories is a container for all repositories
type Repositories struct {
	Profiles   ProfileRepository
	Protection ProtectionRepository
}

type accessTokenContextKey struct{}

// WithAccessToken attaches the caller's access token so record reads run
// with the caller's row-level permissions.
func WithAccessToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, accessTokenContextKey{}, token)
}

// AccessTokenFromContext returns the token set by WithAccessToken
func AccessTokenFromContext(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(accessTokenContextKey{}).(string)
	return token, ok && token != ""
}

type subjectContextKey struct{}

// WithSubject attaches the authenticated subject id for repositories that
// enforce row ownership themselves (direct database access).
func WithSubject(ctx context.Context, subjectID string) context.Context {
	return context.WithValue(ctx, subjectContextKey{}, subjectID)
}

// SubjectFromContext returns the subject set by WithSubject
func SubjectFromContext(ctx context.Context) (string, bool) {
	sub, ok := ctx.Value(subjectContextKey{}).(string)
	return sub, ok && sub != ""
}
