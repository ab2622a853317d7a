package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"
)

// SQLStore is the storage backend adapter. All entity, edge, and role-binding
// persistence goes through it; backend differences live in the Dialect.
type SQLStore struct {
	db      *sql.DB
	dialect *Dialect
	logger  *slog.Logger
	queries
}

// Tx wraps a single database transaction. It exposes the same query surface
// as the store; everything executed through it commits or rolls back as one
// unit.
type Tx struct {
	queries
}

// openAttempts bounds connection pings at startup. Connectivity errors are
// retryable; anything after the last attempt is surfaced to the caller.
const openAttempts = 3

// Open connects to the configured backend and verifies the connection.
// An empty connection string selects the backend's default (sqlite falls
// back to a throwaway file under the temp directory).
func Open(ctx context.Context, backend, connStr string, logger *slog.Logger) (*SQLStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	d, ok := GetDialect(backend)
	if !ok {
		return nil, &UnknownDialectError{Name: backend, Available: ListDialects()}
	}

	dsn, err := d.NormalizeDSN(connStr)
	if err != nil {
		return nil, fmt.Errorf("invalid connection string for %s: %w", d.Name, err)
	}

	db, err := sql.Open(d.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", d.Name, err)
	}

	backoff := retry.WithMaxRetries(openAttempts-1, retry.NewExponential(time.Second))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		if pingErr := db.PingContext(ctx); pingErr != nil {
			logger.Warn("database ping failed, retrying", "backend", d.Name, "error", pingErr)
			return retry.RetryableError(pingErr)
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to %s database: %w", d.Name, err)
	}

	s := &SQLStore{db: db, dialect: d, logger: logger}
	s.queries = queries{db: db, d: d}
	logger.Debug("database connected", "backend", d.Name)
	return s, nil
}

// DB exposes the underlying connection pool (used by migrations and tests).
func (s *SQLStore) DB() *sql.DB { return s.db }

// Dialect returns the store's dialect.
func (s *SQLStore) Dialect() *Dialect { return s.dialect }

// Close closes the connection pool.
func (s *SQLStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// WithTx runs fn inside a transaction. The transaction is rolled back if fn
// returns an error or panics, committed otherwise.
func (s *SQLStore) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	done := false
	defer func() {
		if !done {
			_ = sqlTx.Rollback()
		}
	}()

	if err := fn(&Tx{queries: queries{db: sqlTx, d: s.dialect}}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	done = true
	return nil
}

// dbtx is the subset of database/sql shared by *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries implements the store's operation surface against either a pool or
// a transaction.
type queries struct {
	db dbtx
	d  *Dialect
}
