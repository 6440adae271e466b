package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"tavern/internal/db"
)

type Config struct {
	// Server
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// Database: a SQLite path or a postgres:// URL.
	Database string `yaml:"database"`

	// Logging
	LogFormat string `yaml:"log_format"`
	LogLevel  string `yaml:"log_level"`

	// AdminKeyOut receives the bootstrap admin key when no admin exists.
	AdminKeyOut string `yaml:"admin_key_out"`

	Limits db.Limits `yaml:"limits"`
}

func Default() Config {
	return Config{
		Addr:            ":8080",
		ReadTimeout:     10 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		Database:        "./tavern.db",
		LogFormat:       "text",
		LogLevel:        "info",
		Limits:          db.DefaultLimits(),
	}
}

// Load starts from Default, applies the YAML file at path when it exists
// and then the TAVERN_* environment variables. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(raw, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() error {
	c.Addr = getEnv("TAVERN_ADDR", c.Addr)
	c.Database = getEnv("TAVERN_DB", c.Database)
	c.LogFormat = getEnv("TAVERN_LOG_FORMAT", c.LogFormat)
	c.LogLevel = getEnv("TAVERN_LOG_LEVEL", c.LogLevel)
	c.AdminKeyOut = getEnv("TAVERN_ADMIN_KEY_OUT", c.AdminKeyOut)

	if raw := os.Getenv("TAVERN_SHUTDOWN_TIMEOUT"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("TAVERN_SHUTDOWN_TIMEOUT: %w", err)
		}
		c.ShutdownTimeout = d
	}
	return nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Addr) == "" {
		return errors.New("addr is required")
	}
	if strings.TrimSpace(c.Database) == "" {
		return errors.New("database is required")
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("log_format must be text or json, got %q", c.LogFormat)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	if c.Limits.TitleMin > c.Limits.TitleMax || c.Limits.NameMin > c.Limits.NameMax {
		return errors.New("limits: minimum above maximum")
	}
	return nil
}

func (c Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("log_level: %w", err)
	}
	return level, nil
}

// Logger builds the process logger described by LogFormat and LogLevel.
func (c Config) Logger(w io.Writer) *slog.Logger {
	level, err := c.Level()
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
