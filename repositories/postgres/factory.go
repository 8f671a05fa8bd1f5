package postgres

import (
	"github.com/digitechhorizons/portal/config"
	"github.com/digitechhorizons/portal/repositories"
	"go.uber.org/zap"
)

// RepositoryFactory creates and manages all repositories
type RepositoryFactory struct {
	db      *DB
	rlsRole string
	logger  *zap.Logger
}

// NewRepositoryFactory creates a new repository factory
func NewRepositoryFactory(cfg config.DatabaseConfig, logger *zap.Logger) (*RepositoryFactory, error) {
	db, err := NewDB(cfg, logger)
	if err != nil {
		return nil, err
	}
	return &RepositoryFactory{db: db, rlsRole: cfg.RLSRole, logger: logger}, nil
}

// NewRepositories creates all repository instances
func (f *RepositoryFactory) NewRepositories() *repositories.Repositories {
	txm := NewTransactionManager(f.db, f.rlsRole, f.logger)
	return &repositories.Repositories{
		Profiles:   NewProfileRepository(f.db, txm, f.logger),
		Protection: NewProtectionRepository(f.db, txm, f.logger),
	}
}

// GetDB returns the database connection
func (f *RepositoryFactory) GetDB() *DB {
	return f.db
}

// Close closes the database connection
func (f *RepositoryFactory) Close() error {
	return f.db.Close()
}
