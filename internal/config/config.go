// Package config loads monitor settings from YAML, the environment and flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sdpower/ccmonitor-go/internal/calculator"
	"github.com/sdpower/ccmonitor-go/internal/output"
	"github.com/sdpower/ccmonitor-go/internal/types"
	"gopkg.in/yaml.v3"
)

// Environment variables. CLAUDE_MONITOR_REPORT_DIR is also honoured for the
// state file directory.
const (
	EnvPlan            = "CCMONITOR_PLAN"
	EnvWindowDuration  = "CCMONITOR_WINDOW_DURATION_MINUTES"
	EnvRefreshInterval = "CCMONITOR_REFRESH_INTERVAL_SECONDS"
	EnvTimezone        = "CCMONITOR_DISPLAY_TIMEZONE"
	EnvTimeFormat      = "CCMONITOR_TIME_FORMAT"
	EnvTolerance       = "CCMONITOR_OUT_OF_ORDER_TOLERANCE_SECONDS"
	EnvFloorToHour     = "CCMONITOR_FLOOR_TO_HOUR"
	EnvRetentionHours  = "CCMONITOR_RETENTION_HOURS"
	EnvFeedPath        = "CCMONITOR_FEED_PATH"
	EnvStateFileDir    = "CCMONITOR_STATE_FILE_DIR"
	EnvHistoryPath     = "CCMONITOR_HISTORY_PATH"
	EnvMetricsAddr     = "CCMONITOR_METRICS_ADDR"
	EnvLogLevel        = "CCMONITOR_LOG_LEVEL"
	EnvLogFormat       = "CCMONITOR_LOG_FORMAT"
)

// Config is the complete monitor configuration.
type Config struct {
	Plan                       string `yaml:"plan"`
	WindowDurationMinutes      int    `yaml:"window_duration_minutes"`
	RefreshIntervalSeconds     int    `yaml:"refresh_interval_seconds"`
	DisplayTimezone            string `yaml:"display_timezone"`
	TimeFormat                 string `yaml:"time_format"`
	OutOfOrderToleranceSeconds *int   `yaml:"out_of_order_tolerance_seconds"`
	FloorToHour                bool   `yaml:"floor_to_hour"`
	RetentionHours             int    `yaml:"retention_hours"` // 0 keeps every event

	Feed      FeedConfig      `yaml:"feed"`
	StateFile StateFileConfig `yaml:"state_file"`
	History   HistoryConfig   `yaml:"history"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// FeedConfig locates the JSONL event feed.
type FeedConfig struct {
	Path string `yaml:"path"` // file or directory of *.jsonl
}

// StateFileConfig controls current.json publishing.
type StateFileConfig struct {
	Dir string `yaml:"dir"` // empty disables the state file
}

// HistoryConfig controls the closed-window database.
type HistoryConfig struct {
	Path string `yaml:"path"` // empty disables persistence
}

// MetricsConfig controls the HTTP metrics server.
type MetricsConfig struct {
	Addr string `yaml:"addr"` // e.g. "127.0.0.1:9464"; empty disables
}

// LoggingConfig configures zerolog.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or console
}

// DefaultPath returns ~/.config/ccmonitor/config.yaml.
func DefaultPath() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "ccmonitor", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(home, ".config", "ccmonitor", "config.yaml")
}

// Default returns a configuration with every default applied and env
// overrides honoured.
func Default() *Config {
	var cfg Config
	applyEnvOverrides(&cfg)
	setDefaults(&cfg)
	return &cfg
}

// Load reads configuration from a YAML file, then applies environment
// overrides and defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

// LoadWithFallback loads path when given. Without an explicit path the
// default location is tried and a missing file yields Default().
func LoadWithFallback(path string) (*Config, error) {
	if path != "" {
		return Load(path)
	}

	cfg, err := Load(DefaultPath())
	if errors.Is(err, os.ErrNotExist) {
		cfg = Default()
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("validate config: %w", err)
		}
		return cfg, nil
	}
	return cfg, err
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv(EnvPlan); v != "" {
		cfg.Plan = v
	}
	if v := os.Getenv(EnvWindowDuration); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.WindowDurationMinutes = n
		}
	}
	if v := os.Getenv(EnvRefreshInterval); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RefreshIntervalSeconds = n
		}
	}
	if v := os.Getenv(EnvTimezone); v != "" {
		cfg.DisplayTimezone = v
	}
	if v := os.Getenv(EnvTimeFormat); v != "" {
		cfg.TimeFormat = v
	}
	if v := os.Getenv(EnvTolerance); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.OutOfOrderToleranceSeconds = &n
		}
	}
	if v := os.Getenv(EnvFloorToHour); v != "" {
		cfg.FloorToHour = parseBool(v)
	}
	if v := os.Getenv(EnvRetentionHours); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RetentionHours = n
		}
	}

	if v := os.Getenv(EnvFeedPath); v != "" {
		cfg.Feed.Path = v
	}
	if v := output.ReportDirFromEnv(); v != "" {
		cfg.StateFile.Dir = v
	}
	if v := os.Getenv(EnvStateFileDir); v != "" {
		cfg.StateFile.Dir = v
	}
	if v := os.Getenv(EnvHistoryPath); v != "" {
		cfg.History.Path = v
	}
	if v := os.Getenv(EnvMetricsAddr); v != "" {
		cfg.Metrics.Addr = v
	}

	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv(EnvLogFormat); v != "" {
		cfg.Logging.Format = v
	}
}

func parseBool(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "true" || v == "1" || v == "yes" || v == "on"
}

func setDefaults(cfg *Config) {
	if cfg.Plan == "" {
		cfg.Plan = "pro"
	}
	if cfg.WindowDurationMinutes == 0 {
		cfg.WindowDurationMinutes = int(calculator.DefaultSessionDuration / time.Minute)
	}
	if cfg.RefreshIntervalSeconds == 0 {
		cfg.RefreshIntervalSeconds = 10
	}
	if cfg.DisplayTimezone == "" {
		cfg.DisplayTimezone = "UTC"
	}
	if cfg.TimeFormat == "" {
		cfg.TimeFormat = string(calculator.TimeFormat12h)
	}
	if cfg.OutOfOrderToleranceSeconds == nil {
		n := int(calculator.DefaultOutOfOrderTolerance / time.Second)
		cfg.OutOfOrderToleranceSeconds = &n
	}
	if cfg.Feed.Path == "" {
		cfg.Feed.Path = defaultFeedPath()
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "console"
	}
}

func defaultFeedPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".local", "share", "ccmonitor", "events")
}

// Validate reports the first invalid setting as a types.ValidationError.
func (c *Config) Validate() error {
	if _, err := calculator.ParsePlan(c.Plan); err != nil {
		return types.ValidationError{Field: "plan", Message: err.Error()}
	}
	if c.WindowDurationMinutes <= 0 {
		return types.ValidationError{Field: "window_duration_minutes", Message: "must be positive"}
	}
	if c.RefreshIntervalSeconds <= 0 {
		return types.ValidationError{Field: "refresh_interval_seconds", Message: "must be positive"}
	}
	if c.OutOfOrderToleranceSeconds != nil && *c.OutOfOrderToleranceSeconds < 0 {
		return types.ValidationError{Field: "out_of_order_tolerance_seconds", Message: "must not be negative"}
	}
	if c.RetentionHours < 0 {
		return types.ValidationError{Field: "retention_hours", Message: "must not be negative"}
	}
	if c.RetentionHours > 0 && time.Duration(c.RetentionHours)*time.Hour < c.WindowDuration() {
		return types.ValidationError{Field: "retention_hours", Message: "must cover at least one session window"}
	}
	if _, err := calculator.ParseTimeFormat(c.TimeFormat); err != nil {
		return types.ValidationError{Field: "time_format", Message: "must be '12h' or '24h'"}
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(c.Logging.Level)); err != nil {
		return types.ValidationError{Field: "logging.level", Message: err.Error()}
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return types.ValidationError{Field: "logging.format", Message: fmt.Sprintf("must be 'json' or 'console', got %q", c.Logging.Format)}
	}
	return nil
}

// WindowDuration returns the session window length.
func (c *Config) WindowDuration() time.Duration {
	return time.Duration(c.WindowDurationMinutes) * time.Minute
}

// RefreshInterval returns the tick interval.
func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.RefreshIntervalSeconds) * time.Second
}

// Tolerance returns the out-of-order tolerance.
func (c *Config) Tolerance() time.Duration {
	if c.OutOfOrderToleranceSeconds == nil {
		return calculator.DefaultOutOfOrderTolerance
	}
	return time.Duration(*c.OutOfOrderToleranceSeconds) * time.Second
}

// Retention returns how long events are kept in memory; 0 keeps everything.
func (c *Config) Retention() time.Duration {
	return time.Duration(c.RetentionHours) * time.Hour
}

// WindowerOptions converts the window settings.
func (c *Config) WindowerOptions() calculator.WindowerOptions {
	return calculator.WindowerOptions{
		Duration:    c.WindowDuration(),
		Tolerance:   c.Tolerance(),
		FloorToHour: c.FloorToHour,
	}
}

// Location resolves the display timezone. An invalid name yields UTC and
// the lookup error.
func (c *Config) Location() (*time.Location, error) {
	return calculator.LoadLocation(c.DisplayTimezone)
}
