package database

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/keyxmakerx/sentinel/internal/apperror"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("creating sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	catalog, err := DefaultCatalog()
	if err != nil {
		t.Fatalf("loading catalog: %v", err)
	}
	return NewStore(db, catalog, time.Second), mock
}

func TestStoreGet_WrapsDriverError(t *testing.T) {
	store, mock := newMockStore(t)
	boom := errors.New("connection reset")

	mock.ExpectQuery(`SELECT session_id, user_id, token\s+FROM sessions`).
		WithArgs("sess-abc", "secret-token").
		WillReturnError(boom)

	var a, b, c string
	_, err := store.Get(context.Background(), "findSession", Params{"sessionId": "sess-abc", "token": "secret-token"}, &a, &b, &c)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, boom) {
		t.Errorf("expected wrapped driver error, got %v", err)
	}

	var stmtErr *StatementError
	if !errors.As(err, &stmtErr) {
		t.Fatalf("expected *StatementError, got %T", err)
	}
	if stmtErr.Key != "findSession" || stmtErr.Method != "Store.Get" {
		t.Errorf("unexpected statement error fields: %+v", stmtErr)
	}
	if stmtErr.Caller == "" {
		t.Error("expected call site to be recorded")
	}
	if strings.Contains(err.Error(), "secret-token") || strings.Contains(err.Error(), "sess-abc") {
		t.Errorf("expected credentials redacted, got %s", err.Error())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestStoreGet_NoRows(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`FROM users WHERE user_id = \?`).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}))

	var id string
	found, err := store.Get(context.Background(), "findUser", Params{"userId": "ghost"}, &id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found {
		t.Error("expected not found")
	}
}

func TestStoreExec_RedactsPassword(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`INSERT INTO users`).WillReturnError(errors.New("disk full"))

	_, err := store.Exec(context.Background(), "addUser", Params{
		"userId": "alice", "name": "Alice", "pass": "$2a$12$hash", "permissions": 0,
		"githubUserName": nil, "secret": "JBSWY3DPEHPK3PXP",
	})
	if err == nil {
		t.Fatal("expected error")
	}
	msg := err.Error()
	if strings.Contains(msg, "$2a$12$hash") || strings.Contains(msg, "JBSWY3DPEHPK3PXP") {
		t.Errorf("expected sensitive params redacted, got %s", msg)
	}
	if !strings.Contains(msg, "userId=alice") {
		t.Errorf("expected non-sensitive params in message, got %s", msg)
	}
}

func TestStoreExec_UnknownStatement(t *testing.T) {
	store, _ := newMockStore(t)

	_, err := store.Exec(context.Background(), "truncateUsers", nil)
	var stmtErr *StatementError
	if !errors.As(err, &stmtErr) {
		t.Fatalf("expected *StatementError, got %v", err)
	}
}

func TestStoreAll_ScanError(t *testing.T) {
	store, mock := newMockStore(t)
	scanErr := errors.New("bad row")

	mock.ExpectQuery(`FROM users ORDER BY user_id`).
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow("a").AddRow("b"))

	err := store.All(context.Background(), "listUsers", nil, func(Scanner) error { return scanErr })
	if !errors.Is(err, scanErr) {
		t.Errorf("expected scan error to propagate, got %v", err)
	}
}

func TestRunInTx_RollsBackOnError(t *testing.T) {
	store, mock := newMockStore(t)
	opErr := apperror.NewConflict("already registered.")

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM sessions WHERE user_id`).WithArgs("alice").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectRollback().WillReturnError(errors.New("rollback failed"))

	err := store.RunInTx(context.Background(), func(ctx context.Context) error {
		if _, err := store.Exec(ctx, "removeUserSessions", Params{"userId": "alice"}); err != nil {
			return err
		}
		return opErr
	})
	if err != opErr {
		t.Errorf("expected original error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestRunInTx_CommitFailureIsInternal(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectCommit().WillReturnError(errors.New("commit failed"))

	err := store.RunInTx(context.Background(), func(context.Context) error { return nil })
	if !apperror.Is(err, apperror.KindInternal) {
		t.Errorf("expected internal error, got %v", err)
	}
}

func TestRunInTx_BeginFailureReleasesGate(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin().WillReturnError(errors.New("too many connections"))
	mock.ExpectBegin()
	mock.ExpectCommit()

	if err := store.RunInTx(context.Background(), func(context.Context) error { return nil }); err == nil {
		t.Fatal("expected begin failure")
	}
	if err := store.RunInTx(context.Background(), func(context.Context) error { return nil }); err != nil {
		t.Fatalf("expected gate to be free after failed begin, got %v", err)
	}
}

func TestIsUniqueViolation_Plain(t *testing.T) {
	if IsUniqueViolation(errors.New("UNIQUE constraint failed")) {
		t.Error("plain errors must not be classified by message text")
	}
	if IsUniqueViolation(nil) {
		t.Error("nil is not a violation")
	}
}
