package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/keyxmakerx/sentinel/internal/apperror"
)

type txKey struct{}

func txFromContext(ctx context.Context) *sql.Tx {
	tx, _ := ctx.Value(txKey{}).(*sql.Tx)
	return tx
}

// InTx reports whether ctx carries an open transaction.
func (s *Store) InTx(ctx context.Context) bool {
	return txFromContext(ctx) != nil
}

// RunInTx runs fn inside a transaction. Only one transaction may be open per
// process: later callers queue on the gate until it frees up or the
// configured timeout elapses. fn receives a context bound to the transaction
// and every store call made with it joins that transaction.
//
// fn's error triggers a rollback and is returned unchanged. Rollback failures
// are logged, never substituted for the original error.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if s.InTx(ctx) {
		return apperror.NewInternal(ErrNestedTransaction)
	}

	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()

	// Client disconnects must not roll back work that already began.
	txCtx := context.WithoutCancel(ctx)

	tx, err := s.db.BeginTx(txCtx, nil)
	if err != nil {
		return apperror.NewInternal(newStatementError("Store.Begin", "", "BEGIN", nil, err))
	}

	defer func() {
		if p := recover(); p != nil {
			s.rollback(tx, fmt.Errorf("panic: %v", p))
			panic(p)
		}
	}()

	if err := fn(context.WithValue(txCtx, txKey{}, tx)); err != nil {
		s.rollback(tx, err)
		return err
	}

	if err := tx.Commit(); err != nil {
		return apperror.NewInternal(newStatementError("Store.Commit", "", "COMMIT", nil, err))
	}
	return nil
}

// acquire takes the transaction gate, waiting at most txTimeout.
func (s *Store) acquire(ctx context.Context) error {
	select {
	case s.gate <- struct{}{}:
		return nil
	default:
	}

	start := time.Now()
	timer := time.NewTimer(s.txTimeout)
	defer timer.Stop()

	select {
	case s.gate <- struct{}{}:
		slog.Debug("transaction gate acquired after wait",
			slog.Duration("waited", time.Since(start)),
		)
		return nil
	case <-timer.C:
		return apperror.NewTransactionTimeout(
			fmt.Errorf("transaction begin timed out after %s", s.txTimeout),
		)
	case <-ctx.Done():
		return apperror.NewInternal(fmt.Errorf("waiting for transaction: %w", ctx.Err()))
	}
}

func (s *Store) release() {
	<-s.gate
}

func (s *Store) rollback(tx *sql.Tx, cause error) {
	if err := tx.Rollback(); err != nil {
		slog.Error("transaction rollback failed",
			slog.Any("error", err),
			slog.Any("cause", cause),
		)
	}
}
