package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/digitechhorizons/portal/repositories"
	"go.uber.org/zap"
)

// ProfileRepository implements the repositories.ProfileRepository interface
type ProfileRepository struct {
	db     *DB
	txm    *TransactionManager
	logger *zap.Logger
}

// NewProfileRepository creates a new profile repository
func NewProfileRepository(db *DB, txm *TransactionManager, logger *zap.Logger) repositories.ProfileRepository {
	return &ProfileRepository{
		db:     db,
		txm:    txm,
		logger: logger,
	}
}

// GetRole retrieves the stored role of a subject
func (r *ProfileRepository) GetRole(ctx context.Context, subjectID string) (string, error) {
	query := `SELECT role FROM profiles WHERE id = $1`

	var role string
	err := r.txm.InTransaction(ctx, func(ctx context.Context, _ repositories.Transaction) error {
		return GetExecutor(ctx, r.db).QueryRowContext(ctx, query, subjectID).Scan(&role)
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("profile %s: %w", subjectID, repositories.ErrNotFound)
		}
		return "", fmt.Errorf("failed to get profile role: %w", err)
	}

	r.logger.Debug("profile role loaded", zap.String("subject_id", subjectID))
	return role, nil
}

// Count returns the number of profiles
func (r *ProfileRepository) Count(ctx context.Context) (int, error) {
	query := `SELECT COUNT(*) FROM profiles`

	var count int
	err := r.txm.InTransaction(ctx, func(ctx context.Context, _ repositories.Transaction) error {
		return GetExecutor(ctx, r.db).QueryRowContext(ctx, query).Scan(&count)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count profiles: %w", err)
	}

	return count, nil
}
