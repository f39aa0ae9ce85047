package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/workpulse/workpulse-backend/pkg/config"
	"github.com/workpulse/workpulse-backend/pkg/errors"
	"github.com/workpulse/workpulse-backend/pkg/logger"
)

// DB wraps sqlx.DB with transaction helpers used by the repositories.
type DB struct {
	*sqlx.DB
	logger     *logger.Logger
	txTimeout  time.Duration
	maxRetries int
}

// New creates a new database connection
func New(cfg *config.DatabaseConfig, log *logger.Logger) (*DB, error) {
	db, err := sqlx.Connect("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	return &DB{
		DB:         db,
		logger:     log,
		txTimeout:  cfg.TxTimeout,
		maxRetries: cfg.TxMaxRetries,
	}, nil
}

// NewFromSqlx wraps an existing sqlx.DB. Used by tests with sqlmock.
func NewFromSqlx(db *sqlx.DB, log *logger.Logger) *DB {
	return &DB{
		DB:         db,
		logger:     log,
		txTimeout:  5 * time.Second,
		maxRetries: 3,
	}
}

// Ping checks the database connection
func (db *DB) Ping(ctx context.Context) error {
	return db.PingContext(ctx)
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}

// Health returns the health status of the database
func (db *DB) Health(ctx context.Context) map[string]string {
	status := map[string]string{
		"status": "up",
	}

	ctx, cancel := context.WithTimeout(ctx, 1*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		status["status"] = "down"
		status["error"] = err.Error()
	}

	return status
}

// Transaction executes a function within a transaction. The transaction is
// bounded by the configured timeout so no caller blocks indefinitely.
func (db *DB) Transaction(ctx context.Context, fn func(*sqlx.Tx) error) error {
	if db.txTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, db.txTimeout)
		defer cancel()
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			db.logger.Error().Err(rbErr).Msg("failed to rollback transaction")
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// TransactionWithRetry runs fn in a transaction, retrying a bounded number of
// times with backoff when Postgres reports a serialization failure, deadlock
// or lock timeout. After the retries are exhausted the caller receives a
// Retryable error instead of hanging.
func (db *DB) TransactionWithRetry(ctx context.Context, fn func(*sqlx.Tx) error) error {
	var err error
	backoff := 25 * time.Millisecond

	for attempt := 0; attempt <= db.maxRetries; attempt++ {
		if attempt > 0 {
			db.logger.Warn().
				Int("attempt", attempt).
				Err(err).
				Msg("retrying transaction after transient conflict")

			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff *= 2
		}

		err = db.Transaction(ctx, fn)
		if err == nil || !IsRetryable(err) {
			return err
		}
	}

	return errors.Retryable("operation timed out under concurrent load")
}
