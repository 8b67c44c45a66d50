// Package config loads process settings from the environment.
//
// Variables are read with the RTD_ prefix after an optional .env file has
// been applied. Variables already set in the environment win over .env.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Prefix is prepended to every variable name.
const Prefix = "RTD_"

var (
	// ErrParsingConfig is returned when environment variables cannot be parsed.
	ErrParsingConfig = errors.New("failed to parse environment variables into config")

	// ErrInvalidConfig is returned when parsed values are out of range.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Config holds process-wide settings. CLI flags override these.
type Config struct {
	// DB is the journal path. Empty disables journalling.
	DB string `env:"DB"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// PollInterval is the minimum gap between two refreshes.
	PollInterval time.Duration `env:"POLL_INTERVAL" envDefault:"2s"`

	// MaxColumns bounds the table a refresh may allocate.
	MaxColumns int `env:"MAX_COLUMNS" envDefault:"1048576"`

	// ProducerDelay overrides a feed's first-value delay when non-zero.
	ProducerDelay time.Duration `env:"PRODUCER_DELAY"`

	// HeartbeatInterval is how often the host checks the server. Zero disables it.
	HeartbeatInterval time.Duration `env:"HEARTBEAT_INTERVAL" envDefault:"0s"`
}

// MaxHeartbeatInterval is the longest heartbeat interval a host accepts:
// the interval is passed on as int32 milliseconds.
const MaxHeartbeatInterval = math.MaxInt32 * time.Millisecond

// Load applies dotenv files and parses the environment. With no files, a
// .env in the working directory is applied if present. Named files must exist.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil {
		if len(files) > 0 || !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load dotenv: %w", err)
		}
	}

	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: Prefix}); err != nil {
		return Config{}, errors.Join(ErrParsingConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	var errs []error
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.PollInterval < 0 {
		errs = append(errs, fmt.Errorf("%sPOLL_INTERVAL %s must not be negative", Prefix, c.PollInterval))
	}
	if c.MaxColumns <= 0 {
		errs = append(errs, fmt.Errorf("%sMAX_COLUMNS %d must be positive", Prefix, c.MaxColumns))
	}
	if c.ProducerDelay < 0 {
		errs = append(errs, fmt.Errorf("%sPRODUCER_DELAY %s must not be negative", Prefix, c.ProducerDelay))
	}
	if c.HeartbeatInterval < 0 || c.HeartbeatInterval > MaxHeartbeatInterval {
		errs = append(errs, fmt.Errorf("%sHEARTBEAT_INTERVAL %s must be between 0 and %s", Prefix, c.HeartbeatInterval, MaxHeartbeatInterval))
	}
	if len(errs) > 0 {
		return errors.Join(append([]error{ErrInvalidConfig}, errs...)...)
	}
	return nil
}

// HeartbeatMillis returns the heartbeat interval in milliseconds. Validate
// guarantees it fits.
func (c Config) HeartbeatMillis() int32 {
	return int32(c.HeartbeatInterval.Milliseconds())
}

// Level returns the configured log level.
func (c Config) Level() slog.Level {
	l, err := ParseLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return l
}

// ParseLevel parses debug, info, warn or error (case-insensitive).
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("%sLOG_LEVEL: %w", Prefix, err)
	}
	return l, nil
}
