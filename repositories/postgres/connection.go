package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/digitechhorizons/portal/config"
	_ "github.com/lib/pq" // PostgreSQL driver
	"go.uber.org/zap"
)

// DB wraps the sql.DB connection pool
type DB struct {
	*sql.DB
	logger *zap.Logger
}

// NewDB creates a new database connection pool
func NewDB(cfg config.DatabaseConfig, logger *zap.Logger) (*DB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("database connection established",
		zap.String("connection", cfg.LogString()))

	return &DB{
		DB:     db,
		logger: logger,
	}, nil
}

// Close closes the database connection pool
func (db *DB) Close() error {
	db.logger.Info("closing database connection")
	return db.DB.Close()
}

// HealthCheck performs a health check on the database
func (db *DB) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	var result int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}

	return nil
}

// InitSchema creates the record tables for local development. Hosted
// deployments own their schema; this only fills an empty database.
func (db *DB) InitSchema(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS profiles (
			id UUID PRIMARY KEY,
			role VARCHAR(20) NOT NULL DEFAULT 'user',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);

		CREATE TABLE IF NOT EXISTS protection_metrics (
			user_id UUID PRIMARY KEY REFERENCES profiles(id) ON DELETE CASCADE,
			protected_content_count INTEGER NOT NULL DEFAULT 0,
			monitoring_uptime NUMERIC(5, 2) NOT NULL DEFAULT 0,
			threats_blocked INTEGER NOT NULL DEFAULT 0,
			last_scan TIMESTAMPTZ
		);

		CREATE TABLE IF NOT EXISTS content_scans (
			id UUID PRIMARY KEY,
			user_id UUID NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
			scan_date TIMESTAMPTZ NOT NULL DEFAULT now(),
			status VARCHAR(20) NOT NULL,
			findings JSONB NOT NULL DEFAULT '{}'::jsonb
		);

		CREATE INDEX IF NOT EXISTS idx_content_scans_user_date ON content_scans(user_id, scan_date DESC);
	`

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	db.logger.Info("database schema initialized successfully")
	return nil
}
