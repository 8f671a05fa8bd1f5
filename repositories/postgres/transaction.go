package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/digitechhorizons/portal/repositories"
	"go.uber.org/zap"
)

// transactionContextKey is the context key for storing transactions
type transactionContextKey struct{}

// TransactionManager implements the TransactionManager interface.
// Every transaction it opens carries the caller's subject as
// request.jwt.claims. Row-level security only applies when rlsRole is set:
// the transaction then switches to that role (SET LOCAL ROLE). Without it
// queries run with the connecting user's privileges, and a table owner or
// superuser bypasses the policies.
type TransactionManager struct {
	db      *DB
	rlsRole string
	logger  *zap.Logger
}

// NewTransactionManager creates a new transaction manager. rlsRole may be
// empty.
func NewTransactionManager(db *DB, rlsRole string, logger *zap.Logger) *TransactionManager {
	return &TransactionManager{
		db:      db,
		rlsRole: rlsRole,
		logger:  logger,
	}
}

// Begin starts a new read-only transaction scoped to the subject in ctx
func (tm *TransactionManager) Begin(ctx context.Context) (repositories.Transaction, error) {
	sqlTx, err := tm.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	if tm.rlsRole != "" {
		if _, err := sqlTx.ExecContext(ctx, `SELECT set_config('role', $1, true)`, tm.rlsRole); err != nil {
			_ = sqlTx.Rollback()
			return nil, fmt.Errorf("failed to set role %q: %w", tm.rlsRole, err)
		}
	}

	if sub, ok := repositories.SubjectFromContext(ctx); ok {
		claims, _ := json.Marshal(map[string]string{"sub": sub, "role": "authenticated"})
		if _, err := sqlTx.ExecContext(ctx, `SELECT set_config('request.jwt.claims', $1, true)`, string(claims)); err != nil {
			_ = sqlTx.Rollback()
			return nil, fmt.Errorf("failed to set request claims: %w", err)
		}
	}

	tm.logger.Debug("transaction started")

	return &Transaction{
		tx:     sqlTx,
		ctx:    ctx,
		logger: tm.logger,
	}, nil
}

// InTransaction executes a function within a transaction
// Automatically commits if function succeeds, rolls back on error
func (tm *TransactionManager) InTransaction(ctx context.Context, fn func(ctx context.Context, tx repositories.Transaction) error) error {
	tx, err := tm.Begin(ctx)
	if err != nil {
		return err
	}

	// Create a new context with the transaction
	txCtx := context.WithValue(ctx, transactionContextKey{}, tx)

	if err := fn(txCtx, tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			tm.logger.Error("failed to rollback transaction",
				zap.Error(rbErr),
				zap.NamedError("original_error", err),
			)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Transaction implements the Transaction interface
type Transaction struct {
	tx     *sql.Tx
	ctx    context.Context
	logger *zap.Logger
}

// Commit commits the transaction
func (t *Transaction) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	t.logger.Debug("transaction committed")
	return nil
}

// Rollback rolls back the transaction
func (t *Transaction) Rollback() error {
	if err := t.tx.Rollback(); err != nil {
		// Ignore error if transaction is already closed
		if err == sql.ErrTxDone {
			return nil
		}
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}
	t.logger.Debug("transaction rolled back")
	return nil
}

// Context returns the transaction context
func (t *Transaction) Context() context.Context {
	return t.ctx
}

// Executor is an interface that can execute queries (both *sql.DB and *sql.Tx)
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// GetExecutor returns the transaction stored in ctx, or the pool
func GetExecutor(ctx context.Context, db *DB) Executor {
	if tx, ok := ctx.Value(transactionContextKey{}).(*Transaction); ok {
		return tx.tx
	}
	return db.DB
}
