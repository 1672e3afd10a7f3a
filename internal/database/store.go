package database

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Params holds named statement parameters.
type Params map[string]any

// Scanner is the row interface handed to All callbacks.
type Scanner interface {
	Scan(dest ...any) error
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Store is the credential store gateway. It executes catalog statements by
// logical key and owns the process-wide transaction gate. One Store is built
// at startup and shared by every request handler.
type Store struct {
	db        *sql.DB
	catalog   *Catalog
	gate      chan struct{}
	txTimeout time.Duration
}

// NewStore creates a gateway over db using the given statement catalog.
// txTimeout bounds how long RunInTx waits for the transaction gate.
func NewStore(db *sql.DB, catalog *Catalog, txTimeout time.Duration) *Store {
	if txTimeout <= 0 {
		txTimeout = 10 * time.Second
	}
	return &Store{
		db:        db,
		catalog:   catalog,
		gate:      make(chan struct{}, 1),
		txTimeout: txTimeout,
	}
}

// DB exposes the underlying pool for migrations and health checks.
func (s *Store) DB() *sql.DB {
	return s.db
}

// conn returns the transaction carried by ctx, or the shared pool.
func (s *Store) conn(ctx context.Context) querier {
	if tx := txFromContext(ctx); tx != nil {
		return tx
	}
	return s.db
}

// Get runs a single-row statement and scans it into dest. It returns false
// with a nil error when no row matched.
func (s *Store) Get(ctx context.Context, key string, params Params, dest ...any) (bool, error) {
	query, args, err := s.catalog.Resolve(key, params)
	if err != nil {
		return false, newStatementError("Store.Get", key, query, params, err)
	}

	err = s.conn(ctx).QueryRowContext(context.WithoutCancel(ctx), query, args...).Scan(dest...)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, newStatementError("Store.Get", key, query, params, err)
	}
	return true, nil
}

// All runs a multi-row statement and calls scan once per row. The callback
// must not issue further store calls.
func (s *Store) All(ctx context.Context, key string, params Params, scan func(Scanner) error) error {
	query, args, err := s.catalog.Resolve(key, params)
	if err != nil {
		return newStatementError("Store.All", key, query, params, err)
	}

	rows, err := s.conn(ctx).QueryContext(context.WithoutCancel(ctx), query, args...)
	if err != nil {
		return newStatementError("Store.All", key, query, params, err)
	}
	defer rows.Close()

	for rows.Next() {
		if err := scan(rows); err != nil {
			return newStatementError("Store.All", key, query, params, err)
		}
	}
	if err := rows.Err(); err != nil {
		return newStatementError("Store.All", key, query, params, err)
	}
	return nil
}

// Exec runs a write statement and returns the number of affected rows.
func (s *Store) Exec(ctx context.Context, key string, params Params) (int64, error) {
	query, args, err := s.catalog.Resolve(key, params)
	if err != nil {
		return 0, newStatementError("Store.Exec", key, query, params, err)
	}

	result, err := s.conn(ctx).ExecContext(context.WithoutCancel(ctx), query, args...)
	if err != nil {
		return 0, newStatementError("Store.Exec", key, query, params, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, newStatementError("Store.Exec", key, query, params, err)
	}
	return n, nil
}

// Ping verifies the store is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the underlying pool.
func (s *Store) Close() error {
	return s.db.Close()
}
