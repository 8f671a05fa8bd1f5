package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/digitechhorizons/portal/models"
	"github.com/digitechhorizons/portal/repositories"
	"go.uber.org/zap"
)

// ProtectionRepository implements the repositories.ProtectionRepository interface
type ProtectionRepository struct {
	db     *DB
	txm    *TransactionManager
	logger *zap.Logger
}

// NewProtectionRepository creates a new protection repository
func NewProtectionRepository(db *DB, txm *TransactionManager, logger *zap.Logger) repositories.ProtectionRepository {
	return &ProtectionRepository{
		db:     db,
		txm:    txm,
		logger: logger,
	}
}

// GetMetrics retrieves the protection metrics of a user
func (r *ProtectionRepository) GetMetrics(ctx context.Context, userID string) (*models.ProtectionMetrics, error) {
	query := `
		SELECT user_id, protected_content_count, monitoring_uptime, threats_blocked, last_scan
		FROM protection_metrics
		WHERE user_id = $1
	`

	m := &models.ProtectionMetrics{}
	var lastScan sql.NullTime

	err := r.txm.InTransaction(ctx, func(ctx context.Context, _ repositories.Transaction) error {
		return GetExecutor(ctx, r.db).QueryRowContext(ctx, query, userID).Scan(
			&m.UserID,
			&m.ProtectedContentCount,
			&m.MonitoringUptime,
			&m.ThreatsBlocked,
			&lastScan,
		)
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("protection metrics for %s: %w", userID, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get protection metrics: %w", err)
	}

	if lastScan.Valid {
		m.LastScan = lastScan.Time
	}
	return m, nil
}

// ListRecentScans retrieves the newest content scans of a user
func (r *ProtectionRepository) ListRecentScans(ctx context.Context, userID string, limit int) ([]*models.ContentScan, error) {
	query := `
		SELECT id, user_id, scan_date, status, findings
		FROM content_scans
		WHERE user_id = $1
		ORDER BY scan_date DESC
		LIMIT $2
	`

	var scans []*models.ContentScan
	err := r.txm.InTransaction(ctx, func(ctx context.Context, _ repositories.Transaction) error {
		rows, err := GetExecutor(ctx, r.db).QueryContext(ctx, query, userID, limit)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			scan := &models.ContentScan{}
			var findings []byte
			if err := rows.Scan(&scan.ID, &scan.UserID, &scan.ScanDate, &scan.Status, &findings); err != nil {
				return fmt.Errorf("failed to scan content_scans row: %w", err)
			}
			if len(findings) > 0 {
				if err := json.Unmarshal(findings, &scan.Findings); err != nil {
					r.logger.Warn("malformed scan findings", zap.String("scan_id", scan.ID), zap.Error(err))
				}
			}
			scans = append(scans, scan)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list content scans: %w", err)
	}

	return scans, nil
}
