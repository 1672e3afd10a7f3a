// Package config handles loading application configuration from environment
// variables. All config is centralized here so no other package reads env
// vars directly. Sensible defaults are provided for development.
package config

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-sql-driver/mysql"
	"golang.org/x/crypto/bcrypt"
)

// Supported values for DatabaseConfig.Driver.
const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

// Config holds all application configuration. Populated from environment
// variables at startup. Passed to other packages via dependency injection.
type Config struct {
	// Env is the runtime environment: "development" or "production".
	Env string `env:"ENV" envDefault:"development"`

	// Port is the HTTP listen port.
	Port int `env:"PORT" envDefault:"8080"`

	// BaseURL is the public-facing URL used for CORS and redirects.
	BaseURL string `env:"BASE_URL" envDefault:"http://localhost:8080"`

	// LogLevel controls log verbosity: "debug", "info", "warn", "error".
	// Empty picks debug in development and info in production.
	LogLevel string `env:"LOG_LEVEL"`

	// TrustedProxies lists the reverse proxy ranges whose forwarding headers
	// identify the client.
	TrustedProxies []string `env:"TRUSTED_PROXIES" envSeparator:"," envDefault:"127.0.0.0/8,10.0.0.0/8,172.16.0.0/12,192.168.0.0/16,fd00::/8"`

	Database DatabaseConfig
	Redis    RedisConfig
	Auth     AuthConfig
	GitHub   GitHubConfig
}

// DatabaseConfig holds the credential store connection parameters. SQLite is
// the default so a single binary runs without external services; MariaDB is
// selected with DB_DRIVER=mysql.
type DatabaseConfig struct {
	Driver string `env:"DB_DRIVER" envDefault:"sqlite"`

	// Path is the SQLite database file (":memory:" for an ephemeral store).
	Path string `env:"DB_PATH" envDefault:"sentinel.db"`

	Host     string `env:"DB_HOST" envDefault:"localhost:3306"`
	User     string `env:"DB_USER" envDefault:"sentinel"`
	Password string `env:"DB_PASSWORD" envDefault:"sentinel"`
	Name     string `env:"DB_NAME" envDefault:"sentinel"`

	// DSNOverride is set when DATABASE_URL is provided, bypassing individual fields.
	DSNOverride string `env:"DATABASE_URL"`

	MaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"5m"`

	// Migrate applies pending schema migrations at startup.
	Migrate bool `env:"DB_MIGRATE" envDefault:"true"`

	// StatementsPath optionally points at a YAML statement catalog that
	// replaces the embedded default.
	StatementsPath string `env:"DB_STATEMENTS_PATH"`

	// TxTimeout bounds how long a caller waits for the transaction gate.
	TxTimeout time.Duration `env:"TX_TIMEOUT" envDefault:"10s"`
}

// DSN returns the go-sql-driver/mysql connection string. If DATABASE_URL was
// set, it is returned as-is. Otherwise the DSN is built from the individual
// fields using the driver's Config.FormatDSN() to safely handle special
// characters in passwords.
func (d DatabaseConfig) DSN() string {
	if d.DSNOverride != "" {
		return d.DSNOverride
	}
	cfg := mysql.NewConfig()
	cfg.User = d.User
	cfg.Passwd = d.Password
	cfg.Net = "tcp"
	cfg.Addr = ensurePort(d.Host, "3306")
	cfg.DBName = d.Name
	cfg.ParseTime = true
	// Migration files hold several statements each.
	cfg.MultiStatements = true
	return cfg.FormatDSN()
}

// ensurePort appends the default port if the host string doesn't include one.
func ensurePort(host, defaultPort string) string {
	_, _, err := net.SplitHostPort(host)
	if err != nil {
		return net.JoinHostPort(host, defaultPort)
	}
	return host
}

// RedisConfig holds Redis connection parameters. Redis is optional: without
// it, rate limiting falls back to an in-process counter.
type RedisConfig struct {
	URL string `env:"REDIS_URL"`
}

// AuthConfig holds authentication settings.
type AuthConfig struct {
	BcryptCost int `env:"BCRYPT_COST" envDefault:"12"`

	// CookieSecure forces the Secure flag on the session cookie.
	CookieSecure bool `env:"COOKIE_SECURE" envDefault:"false"`

	// LoginRateLimit is the number of login attempts allowed per IP per minute.
	LoginRateLimit int `env:"LOGIN_RATE_LIMIT" envDefault:"10"`

	// RotationStrict fails authentication when token rotation cannot be
	// persisted instead of degrading to the unrotated token.
	RotationStrict bool `env:"ROTATION_STRICT" envDefault:"false"`

	// SecretKey encrypts TOTP secrets at rest. Empty stores them in plaintext.
	SecretKey string `env:"SECRET_ENCRYPTION_KEY"`

	BootstrapAdminID       string `env:"BOOTSTRAP_ADMIN_ID"`
	BootstrapAdminPassword string `env:"BOOTSTRAP_ADMIN_PASSWORD"`
}

// GitHubConfig holds the OAuth application registered with GitHub.
type GitHubConfig struct {
	ClientID     string `env:"GITHUB_CLIENT_ID"`
	ClientSecret string `env:"GITHUB_CLIENT_SECRET"`
	CallbackURL  string `env:"GITHUB_CALLBACK_URL" envDefault:"http://localhost:8080/auth/github_callback"`
}

// Enabled reports whether GitHub login is configured.
func (g GitHubConfig) Enabled() bool {
	return g.ClientID != ""
}

// Load reads configuration from environment variables with sensible defaults.
// Returns an error if the environment is malformed or unsafe for production.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	switch cfg.Database.Driver {
	case DriverSQLite, DriverMySQL:
	default:
		return nil, fmt.Errorf("DB_DRIVER must be %q or %q, got %q", DriverSQLite, DriverMySQL, cfg.Database.Driver)
	}

	if cfg.Database.TxTimeout <= 0 {
		return nil, fmt.Errorf("TX_TIMEOUT must be positive")
	}

	if cfg.Auth.BcryptCost < bcrypt.MinCost || cfg.Auth.BcryptCost > bcrypt.MaxCost {
		return nil, fmt.Errorf("BCRYPT_COST must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}

	if !cfg.IsDevelopment() {
		if cfg.Auth.BcryptCost < bcrypt.DefaultCost {
			return nil, fmt.Errorf("BCRYPT_COST must be at least %d in production", bcrypt.DefaultCost)
		}
		if cfg.GitHub.Enabled() && cfg.GitHub.ClientSecret == "" {
			return nil, fmt.Errorf("GITHUB_CLIENT_SECRET is required when GITHUB_CLIENT_ID is set")
		}
	}

	return cfg, nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	env := strings.ToLower(c.Env)
	return env == "development" || env == "dev"
}
