// Package config loads daemon and CLI settings from a .env file, the
// environment and command-line flags, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

// Storage backends.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendRedis  = "redis"
	BackendSQL    = "sql"
	BackendRemote = "remote"
)

type Config struct {
	// Storage
	Backend    string `env:"CELERIX_BACKEND" env-default:"file" validate:"oneof=memory file redis sql remote"`
	DataDir    string `env:"CELERIX_DATA_DIR" env-default:"./data" validate:"required_if=Backend file"`
	Origin     string `env:"CELERIX_ORIGIN" env-default:"default" validate:"required,printascii,excludesall=/\\"`
	QuotaBytes int    `env:"CELERIX_QUOTA_BYTES" env-default:"5242880" validate:"gte=0"`
	VaultKey   string `env:"CELERIX_VAULT_KEY" validate:"omitempty,hexadecimal,len=64"`

	RedisAddr     string `env:"CELERIX_REDIS_ADDR" env-default:"localhost:6379"`
	RedisPassword string `env:"CELERIX_REDIS_PASSWORD"`
	RedisDB       int    `env:"CELERIX_REDIS_DB" env-default:"0" validate:"gte=0"`
	// RedisURL overrides the address, password and DB when set.
	RedisURL string `env:"CELERIX_REDIS_URL"`

	SQLDriver string `env:"CELERIX_SQL_DRIVER" env-default:"sqlite3" validate:"oneof=sqlite3 pgx"`
	SQLDSN    string `env:"CELERIX_SQL_DSN" validate:"required_if=Backend sql"`

	StoreAddr  string `env:"CELERIX_STORE_ADDR" validate:"required_if=Backend remote"`
	DisableTLS bool   `env:"CELERIX_DISABLE_TLS"`

	// Daemon
	TCPPort     string `env:"CELERIX_PORT" env-default:"7001" validate:"numeric"`
	HTTPPort    string `env:"CELERIX_HTTP_PORT" env-default:"7002" validate:"numeric"`
	CORSOrigins string `env:"CELERIX_CORS_ORIGINS" env-default:"*"`

	// Users and sessions
	AdminPassword  string        `env:"CELERIX_ADMIN_PASSWORD" env-default:"admin123" validate:"required"`
	PasswordScheme string        `env:"CELERIX_PASSWORD_SCHEME" env-default:"plain" validate:"oneof=plain bcrypt"`
	SessionTimeout time.Duration `env:"CELERIX_SESSION_TIMEOUT" env-default:"30m" validate:"gt=0"`
	SessionPoll    time.Duration `env:"CELERIX_SESSION_POLL" env-default:"1m" validate:"gt=0"`

	// Logging
	LogLevel  string `env:"CELERIX_LOG_LEVEL" env-default:"info" validate:"oneof=debug info warn error"`
	LogFormat string `env:"CELERIX_LOG_FORMAT" env-default:"text" validate:"oneof=text json"`
}

// Load reads .env from the working directory (if present), then the
// environment, then flags from args, and validates the result. Flags that
// are not config options are left for the caller in the returned slice.
func Load(name string, args []string) (*Config, []string, error) {
	if err := LoadDotEnv(os.Getwd); err != nil {
		return nil, nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{}
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, nil, fmt.Errorf("read env: %w", err)
	}

	rest, err := cfg.ParseFlags(name, args)
	if err != nil {
		return nil, nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	return cfg, rest, nil
}

// LoadDotEnv exports variables from '.env' in the working directory.
// Variables already set in the environment win.
func LoadDotEnv(getwd func() (string, error)) error {
	wd, err := getwd()
	if err != nil {
		return err
	}

	err = godotenv.Load(filepath.Join(wd, ".env"))
	if err == nil || errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// ParseFlags overrides fields from command-line flags and returns the
// positional arguments.
func (c *Config) ParseFlags(name string, args []string) ([]string, error) {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)

	fs.StringVarP(&c.Backend, "backend", "b", c.Backend, "Storage backend (memory, file, redis, sql, remote)")
	fs.StringVarP(&c.DataDir, "data-dir", "d", c.DataDir, "Directory for the file backend")
	fs.StringVarP(&c.Origin, "origin", "o", c.Origin, "Storage namespace")
	fs.IntVar(&c.QuotaBytes, "quota", c.QuotaBytes, "File/memory backend quota in bytes (0 disables)")
	fs.StringVar(&c.RedisAddr, "redis-addr", c.RedisAddr, "Redis address")
	fs.StringVar(&c.SQLDriver, "sql-driver", c.SQLDriver, "SQL driver (sqlite3, pgx)")
	fs.StringVar(&c.SQLDSN, "sql-dsn", c.SQLDSN, "SQL connection string")
	fs.StringVar(&c.StoreAddr, "store-addr", c.StoreAddr, "Remote storage daemon address")
	fs.BoolVar(&c.DisableTLS, "disable-tls", c.DisableTLS, "Use plain TCP for the storage protocol")
	fs.StringVar(&c.TCPPort, "port", c.TCPPort, "TCP storage port")
	fs.StringVar(&c.HTTPPort, "http-port", c.HTTPPort, "HTTP API port")
	fs.StringVar(&c.PasswordScheme, "password-scheme", c.PasswordScheme, "Password storage scheme (plain, bcrypt)")
	fs.DurationVar(&c.SessionTimeout, "session-timeout", c.SessionTimeout, "Inactivity window before a session expires")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.StringVar(&c.LogFormat, "log-format", c.LogFormat, "Log format (text, json)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return fs.Args(), nil
}

// Validate checks the combined configuration.
func (c *Config) Validate() error {
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
