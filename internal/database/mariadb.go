package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/keyxmakerx/sentinel/internal/config"
)

// retryPolicy bounds how long startup waits for a database server.
type retryPolicy struct {
	Attempts    int
	Backoff     time.Duration
	MaxBackoff  time.Duration
	PingTimeout time.Duration
}

var mariaDBRetry = retryPolicy{
	Attempts:    10,
	Backoff:     time.Second,
	MaxBackoff:  30 * time.Second,
	PingTimeout: 5 * time.Second,
}

// NewMariaDB opens the MariaDB pool described by cfg and waits until the
// server answers. The DSN is parsed up front so a malformed DATABASE_URL
// fails immediately instead of after the retry budget.
func NewMariaDB(cfg config.DatabaseConfig) (*sql.DB, error) {
	dsn, err := mysql.ParseDSN(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parsing mariadb dsn: %w", err)
	}
	connector, err := mysql.NewConnector(dsn)
	if err != nil {
		return nil, fmt.Errorf("creating mariadb connector: %w", err)
	}

	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	logger := slog.With(slog.String("addr", dsn.Addr), slog.String("database", dsn.DBName))
	if err := waitReady(context.Background(), db, mariaDBRetry, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("mariadb: %w", err)
	}
	logger.Info("connected to mariadb")
	return db, nil
}

// waitReady pings db until it answers, the attempts run out or ctx ends.
// The server may still be starting when the service container launches.
func waitReady(ctx context.Context, db *sql.DB, p retryPolicy, logger *slog.Logger) error {
	backoff := p.Backoff
	var err error
	for attempt := 1; attempt <= p.Attempts; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, p.PingTimeout)
		err = db.PingContext(pingCtx)
		cancel()
		if err == nil {
			return nil
		}
		if attempt == p.Attempts {
			break
		}

		logger.Warn("database not ready, retrying",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", p.Attempts),
			slog.Duration("backoff", backoff),
			slog.Any("error", err),
		)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return fmt.Errorf("waiting for database: %w", ctx.Err())
		}
		backoff = min(backoff*2, p.MaxBackoff)
	}
	return fmt.Errorf("no answer after %d attempts: %w", p.Attempts, err)
}
