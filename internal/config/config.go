// Package config holds process configuration for the eca binary.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

// Store backends.
const (
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
	StoreMemory = "memory"
)

// Config is read from ECA_* environment variables; command-line flags
// override individual fields.
type Config struct {
	Store         string `env:"ECA_STORE" envDefault:"sqlite" validate:"oneof=sqlite redis memory"`
	DBPath        string `env:"ECA_DB_PATH" envDefault:"eca.db" validate:"required_if=Store sqlite"`
	RedisAddr     string `env:"ECA_REDIS_ADDR" envDefault:"localhost:6379" validate:"required_if=Store redis"`
	RedisPrefix   string `env:"ECA_REDIS_PREFIX" envDefault:"eca:"`
	ModelsDir     string `env:"ECA_MODELS_DIR"`
	MaxNodeVisits int    `env:"ECA_MAX_NODE_VISITS" envDefault:"1000" validate:"gte=1"`
	HTTPAddr      string `env:"ECA_HTTP_ADDR" envDefault:":8080" validate:"required"`
	LogLevel      string `env:"ECA_LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn error"`
	LogFormat     string `env:"ECA_LOG_FORMAT" envDefault:"text" validate:"oneof=text json"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load parses the environment into a Config and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var validate = validator.New()

// Validate checks field values and combinations.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("validate config: %w", err)
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q (got %v)", fe.Field(), fe.Tag(), fe.Value()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

// Level returns the slog level for LogLevel. Unknown names map to info.
func (c Config) Level() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// Logger builds a logger writing to w in the configured format and level.
func (c Config) Logger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.Level()}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
