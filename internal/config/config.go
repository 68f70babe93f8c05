// Package config loads application settings from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

const minJWTSecretLength = 32

// Database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds every setting the application reads from the environment.
type Config struct {
	// Port is the TCP port the HTTP server listens on.
	Port string `env:"PORT" env-default:"8080"`

	Database struct {
		// Driver selects the storage backend: sqlite or postgres.
		Driver string `env:"DATABASE_DRIVER" env-default:"sqlite"`
		// Path is the SQLite database file.
		Path string `env:"DATABASE_PATH" env-default:"accounts.db"`
		// URL is the PostgreSQL connection string.
		URL string `env:"DATABASE_URL"`
	}

	// JWTSecret signs session tokens. Required by the server.
	JWTSecret string `env:"JWT_SECRET"`
	// CookieSecure marks cookies Secure; disable only for local development.
	CookieSecure bool `env:"COOKIE_SECURE" env-default:"true"`
	BcryptCost   int  `env:"BCRYPT_COST" env-default:"12"`

	RateLimit struct {
		// Rate is the number of form submissions per second each client regains.
		Rate float64 `env:"LOGIN_RATE" env-default:"0.2"`
		// Burst is how many submissions a client may make back to back.
		Burst float64 `env:"LOGIN_BURST" env-default:"5"`
	}

	UserCacheTTL    time.Duration `env:"USER_CACHE_TTL" env-default:"30s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" env-default:"5s"`
	LogLevel        string        `env:"LOG_LEVEL" env-default:"info"`
}

// Load reads an optional dotenv file into the process environment, then
// fills a Config from the environment and validates it. A missing envFile is
// not an error; variables already set in the environment win over the file.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	}

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks settings needed by every command.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			return errors.New("DATABASE_PATH is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.Database.URL == "" {
			return errors.New("DATABASE_URL is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown DATABASE_DRIVER %q", c.Database.Driver)
	}

	if c.BcryptCost < 4 || c.BcryptCost > 14 {
		return fmt.Errorf("BCRYPT_COST must be between 4 and 14, got %d", c.BcryptCost)
	}
	if c.RateLimit.Rate < 0 || c.RateLimit.Burst < 1 {
		return errors.New("LOGIN_RATE must be >= 0 and LOGIN_BURST >= 1")
	}
	if c.UserCacheTTL <= 0 {
		return errors.New("USER_CACHE_TTL must be positive")
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// ValidateServer checks the extra settings the HTTP server needs.
func (c *Config) ValidateServer() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET environment variable is required")
	}
	if len(c.JWTSecret) < minJWTSecretLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters for HMAC-SHA256 security", minJWTSecretLength)
	}
	return nil
}

// SlogLevel returns the configured log level.
func (c *Config) SlogLevel() slog.Level {
	level, _ := parseLevel(c.LogLevel)
	return level
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q", s)
	}
	return level, nil
}
