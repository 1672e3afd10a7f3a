// Package database provides the credential store gateway and the
// connections it runs on: MariaDB or SQLite for users and sessions, and
// Redis for shared counters. Connections are created once at startup and
// shared across the application via dependency injection. This package owns
// the connection lifecycle (open, configure pool, ping, migrate, close).
package database

import (
	"database/sql"
	"fmt"

	"github.com/keyxmakerx/sentinel/internal/config"
)

// Open connects to the configured driver.
func Open(cfg config.DatabaseConfig) (*sql.DB, error) {
	switch cfg.Driver {
	case config.DriverMySQL:
		return NewMariaDB(cfg)
	case config.DriverSQLite:
		return NewSQLite(cfg.Path)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// NewStoreFromConfig opens the database, optionally migrates it, loads the
// statement catalog and wraps everything in a Store.
func NewStoreFromConfig(cfg config.DatabaseConfig) (*Store, error) {
	db, err := Open(cfg)
	if err != nil {
		return nil, err
	}

	if cfg.Migrate {
		if err := RunMigrations(db, cfg.Driver); err != nil {
			db.Close()
			return nil, err
		}
	}

	catalog, err := LoadCatalog(cfg.StatementsPath)
	if err != nil {
		db.Close()
		return nil, err
	}

	return NewStore(db, catalog, cfg.TxTimeout), nil
}
