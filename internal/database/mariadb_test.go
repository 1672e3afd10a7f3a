package database

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/keyxmakerx/sentinel/internal/config"
)

var fastRetry = retryPolicy{
	Attempts:    3,
	Backoff:     time.Millisecond,
	MaxBackoff:  2 * time.Millisecond,
	PingTimeout: time.Second,
}

func TestWaitReady_RetriesUntilServerAnswers(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("creating sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	mock.ExpectPing()

	if err := waitReady(context.Background(), db, fastRetry, slog.Default()); err != nil {
		t.Fatalf("expected success on third ping, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestWaitReady_GivesUp(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("creating sqlmock: %v", err)
	}
	defer db.Close()

	for i := 0; i < fastRetry.Attempts; i++ {
		mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	}

	err = waitReady(context.Background(), db, fastRetry, slog.Default())
	if err == nil || !strings.Contains(err.Error(), "3 attempts") {
		t.Fatalf("expected give-up error, got %v", err)
	}
}

func TestWaitReady_StopsOnCancel(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("creating sqlmock: %v", err)
	}
	defer db.Close()
	mock.ExpectPing().WillReturnError(errors.New("connection refused"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	slow := fastRetry
	slow.Backoff = time.Hour
	err = waitReady(ctx, db, slow, slog.Default())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}

func TestNewMariaDB_RejectsMalformedDSN(t *testing.T) {
	_, err := NewMariaDB(config.DatabaseConfig{DSNOverride: "not a dsn"})
	if err == nil || !strings.Contains(err.Error(), "parsing mariadb dsn") {
		t.Fatalf("expected DSN parse error, got %v", err)
	}
}
