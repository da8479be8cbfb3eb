// Package config loads apogeemind settings from the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	DefaultSTMCapacity        = 20
	DefaultPromotionThreshold = 0.65
	DefaultSchedulerInterval  = 6 * time.Hour
)

var (
	ErrInvalidCapacity  = errors.New("stm capacity must be at least 1")
	ErrInvalidThreshold = errors.New("promotion threshold must be within [0, 1]")
)

// Toggle is a bool that also accepts yes/on/no/off.
type Toggle bool

func (t *Toggle) UnmarshalText(b []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(b))) {
	case "1", "true", "yes", "on", "y":
		*t = true
	case "", "0", "false", "no", "off", "n":
		*t = false
	default:
		return fmt.Errorf("invalid boolean %q", string(b))
	}
	return nil
}

// Config holds runtime settings.
type Config struct {
	DBPath             string        `env:"APOGEEMIND_DB_PATH"`
	Namespace          string        `env:"APOGEEMIND_NAMESPACE"`
	ConsciousIngest    Toggle        `env:"APOGEEMIND_CONSCIOUS" envDefault:"true"`
	AutoIngest         Toggle        `env:"APOGEEMIND_AUTO" envDefault:"true"`
	STMCapacity        int           `env:"APOGEEMIND_STM_CAPACITY" envDefault:"20"`
	PromotionThreshold float64       `env:"APOGEEMIND_PROMOTION_THRESHOLD" envDefault:"0.65"`
	SchedulerInterval  time.Duration `env:"APOGEEMIND_SCHEDULER_INTERVAL" envDefault:"6h"`
	STMTTL             string        `env:"APOGEEMIND_STM_TTL"` // e.g. 7d, 24h; empty means no expiry
	DisableFTS         Toggle        `env:"APOGEEMIND_DISABLE_FTS"`
	LogLevel           string        `env:"APOGEEMIND_LOG_LEVEL" envDefault:"info"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		DBPath:             defaultDBPath(),
		Namespace:          DefaultNamespace(),
		ConsciousIngest:    true,
		AutoIngest:         true,
		STMCapacity:        DefaultSTMCapacity,
		PromotionThreshold: DefaultPromotionThreshold,
		SchedulerInterval:  DefaultSchedulerInterval,
		LogLevel:           "info",
	}
}

// Load reads an optional .env file, then the environment, and validates the
// result.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.DBPath == "" {
		cfg.DBPath = defaultDBPath()
	}
	if cfg.Namespace == "" {
		cfg.Namespace = DefaultNamespace()
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings that would break capacity or promotion rules.
func (c Config) Validate() error {
	if c.STMCapacity < 1 {
		return fmt.Errorf("%w, got %d", ErrInvalidCapacity, c.STMCapacity)
	}
	if c.PromotionThreshold < 0 || c.PromotionThreshold > 1 {
		return fmt.Errorf("%w, got %v", ErrInvalidThreshold, c.PromotionThreshold)
	}
	if strings.TrimSpace(c.Namespace) == "" {
		return fmt.Errorf("namespace must not be empty")
	}
	if c.STMTTL != "" {
		if _, err := ParseTTL(c.STMTTL); err != nil {
			return fmt.Errorf("invalid APOGEEMIND_STM_TTL: %w", err)
		}
	}
	return nil
}

// TTL returns the parsed short-term expiry, or zero when unset.
func (c Config) TTL() time.Duration {
	if c.STMTTL == "" {
		return 0
	}
	d, _ := ParseTTL(c.STMTTL)
	return d
}

// SlogLevel maps LogLevel to a slog level, defaulting to info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// DefaultNamespace is "code:<current directory name>".
func DefaultNamespace() string {
	wd, err := os.Getwd()
	if err != nil {
		return "default"
	}
	return "code:" + filepath.Base(wd)
}

func defaultDBPath() string {
	wd, err := os.Getwd()
	if err != nil {
		wd = "."
	}
	return filepath.Join(wd, "apogeemind", "apogeemind.db")
}
