package database

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/keyxmakerx/sentinel/internal/apperror"
	"github.com/keyxmakerx/sentinel/internal/config"
)

// newSQLiteStore returns a migrated in-memory store.
func newSQLiteStore(t *testing.T, txTimeout time.Duration) *Store {
	t.Helper()
	db, err := NewSQLite(MemoryPath)
	if err != nil {
		t.Fatalf("opening sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := RunMigrations(db, config.DriverSQLite); err != nil {
		t.Fatalf("migrating: %v", err)
	}
	catalog, err := DefaultCatalog()
	if err != nil {
		t.Fatalf("loading catalog: %v", err)
	}
	return NewStore(db, catalog, txTimeout)
}

func addUser(ctx context.Context, s *Store, id string) error {
	_, err := s.Exec(ctx, "addUser", Params{
		"userId": id, "name": id, "pass": "x", "permissions": 0,
		"githubUserName": nil, "secret": "",
	})
	return err
}

func countUsers(t *testing.T, s *Store) int {
	t.Helper()
	var n int
	if _, err := s.Get(context.Background(), "countUsers", nil, &n); err != nil {
		t.Fatalf("counting users: %v", err)
	}
	return n
}

func TestRunInTx_CommitsWrites(t *testing.T) {
	s := newSQLiteStore(t, time.Second)

	err := s.RunInTx(context.Background(), func(ctx context.Context) error {
		if !s.InTx(ctx) {
			t.Error("expected ctx to carry the transaction")
		}
		return addUser(ctx, s, "alice")
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := countUsers(t, s); n != 1 {
		t.Errorf("expected 1 user, got %d", n)
	}
}

func TestRunInTx_ConcurrentSerializesAndRollbackIsInvisible(t *testing.T) {
	s := newSQLiteStore(t, 5*time.Second)

	firstStarted := make(chan struct{})
	releaseFirst := make(chan struct{})
	firstDone := make(chan error, 1)
	var secondRunning atomic.Bool
	var sawUsers atomic.Int64

	go func() {
		firstDone <- s.RunInTx(context.Background(), func(ctx context.Context) error {
			if err := addUser(ctx, s, "doomed"); err != nil {
				return err
			}
			close(firstStarted)
			<-releaseFirst
			return apperror.NewValidation("abort")
		})
	}()
	<-firstStarted

	secondDone := make(chan error, 1)
	go func() {
		secondDone <- s.RunInTx(context.Background(), func(ctx context.Context) error {
			secondRunning.Store(true)
			var n int
			if _, err := s.Get(ctx, "countUsers", nil, &n); err != nil {
				return err
			}
			sawUsers.Store(int64(n))
			return nil
		})
	}()

	time.Sleep(50 * time.Millisecond)
	if secondRunning.Load() {
		t.Fatal("second transaction started while the first was open")
	}

	close(releaseFirst)
	if err := <-firstDone; !apperror.Is(err, apperror.KindValidation) {
		t.Errorf("expected first transaction's own error, got %v", err)
	}
	if err := <-secondDone; err != nil {
		t.Fatalf("second transaction failed: %v", err)
	}
	if sawUsers.Load() != 0 {
		t.Errorf("expected rolled back insert to be invisible, saw %d users", sawUsers.Load())
	}
}

func TestRunInTx_Timeout(t *testing.T) {
	s := newSQLiteStore(t, 30*time.Millisecond)

	holding := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- s.RunInTx(context.Background(), func(context.Context) error {
			close(holding)
			<-release
			return nil
		})
	}()
	<-holding

	err := s.RunInTx(context.Background(), func(context.Context) error {
		t.Error("unit of work must not run after a timeout")
		return nil
	})
	if !apperror.Is(err, apperror.KindTransactionTimeout) {
		t.Errorf("expected transaction timeout, got %v", err)
	}
	if status, msg := apperror.Classify(err); status != 500 || msg != apperror.SystemErrorMessage {
		t.Errorf("expected generic 500, got %d %q", status, msg)
	}

	close(release)
	if err := <-done; err != nil {
		t.Errorf("holder failed: %v", err)
	}
}

func TestRunInTx_RejectsNesting(t *testing.T) {
	s := newSQLiteStore(t, time.Second)

	err := s.RunInTx(context.Background(), func(ctx context.Context) error {
		return s.RunInTx(ctx, func(context.Context) error { return nil })
	})
	if !errors.Is(err, ErrNestedTransaction) {
		t.Errorf("expected nested transaction error, got %v", err)
	}
}

func TestRunInTx_PanicRollsBackAndReleases(t *testing.T) {
	s := newSQLiteStore(t, time.Second)

	func() {
		defer func() {
			if recover() == nil {
				t.Error("expected panic to propagate")
			}
		}()
		_ = s.RunInTx(context.Background(), func(ctx context.Context) error {
			if err := addUser(ctx, s, "ghost"); err != nil {
				return err
			}
			panic("boom")
		})
	}()

	if n := countUsers(t, s); n != 0 {
		t.Errorf("expected panic to roll back, got %d users", n)
	}
	if err := s.RunInTx(context.Background(), func(context.Context) error { return nil }); err != nil {
		t.Errorf("expected gate released after panic, got %v", err)
	}
}

func TestRunInTx_CanceledWaiter(t *testing.T) {
	s := newSQLiteStore(t, 5*time.Second)

	holding := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = s.RunInTx(context.Background(), func(context.Context) error {
			close(holding)
			<-release
			return nil
		})
	}()
	<-holding
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := s.RunInTx(ctx, func(context.Context) error { return nil })
	if !apperror.Is(err, apperror.KindInternal) || !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected canceled wait, got %v", err)
	}
}

func TestIsUniqueViolation_SQLite(t *testing.T) {
	s := newSQLiteStore(t, time.Second)
	ctx := context.Background()

	if err := addUser(ctx, s, "alice"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := addUser(ctx, s, "alice")
	if !IsUniqueViolation(err) {
		t.Errorf("expected unique violation, got %v", err)
	}
}

func TestRunMigrations_Idempotent(t *testing.T) {
	s := newSQLiteStore(t, time.Second)
	if err := RunMigrations(s.DB(), config.DriverSQLite); err != nil {
		t.Errorf("expected second run to be a no-op, got %v", err)
	}
	if err := RunMigrations(s.DB(), "postgres"); err == nil {
		t.Error("expected error for unknown driver")
	}
}

func TestOpen_UnknownDriver(t *testing.T) {
	if _, err := Open(config.DatabaseConfig{Driver: "oracle"}); err == nil {
		t.Error("expected error for unknown driver")
	}
}
