package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
// It is read-only after Load() returns and thread-safe for concurrent reads.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Log      LogConfig      `yaml:"log"`
	Query    QueryConfig    `yaml:"query"`
	Worker   WorkerConfig   `yaml:"worker"`

	SnapshotStorage SnapshotStorageConfig `yaml:"snapshot_storage"`
}

// DatabaseConfig contains database settings.
type DatabaseConfig struct {
	Path     string `yaml:"path"`
	InMemory bool   `yaml:"in_memory"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// QueryConfig contains live query settings.
type QueryConfig struct {
	PinnedSection string `yaml:"pinned_section"`
}

// WorkerConfig contains background worker settings.
// A zero interval disables the corresponding worker.
type WorkerConfig struct {
	RolloverSchedule  string   `yaml:"rollover_schedule"`
	ReconcileInterval Duration `yaml:"reconcile_interval"`
	SnapshotInterval  Duration `yaml:"snapshot_interval"`
	SnapshotDir       string   `yaml:"snapshot_dir"`
	SnapshotRetain    int      `yaml:"snapshot_retain"`
}

// SnapshotStorageConfig contains optional S3-compatible storage settings for
// off-site copies of snapshots. An empty bucket keeps snapshots local only.
type SnapshotStorageConfig struct {
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Prefix    string `yaml:"prefix"`
	UseSSL    *bool  `yaml:"use_ssl"`
	AccessKey string `yaml:"-"` // env-only, never in YAML
	SecretKey string `yaml:"-"` // env-only, never in YAML
}

// Duration is a wrapper around time.Duration that supports YAML string parsing.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// scheduleParser accepts the six-field form used by the worker scheduler.
var scheduleParser = cron.NewParser(
	cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Load loads configuration with precedence: defaults → YAML file → env vars.
// Returns an immutable Config suitable for concurrent read access.
func Load() (*Config, error) {
	cfg := newDefaults()

	configPath := getEnv("HABITS_CONFIG_PATH", "config/habitstore.yaml")

	// Missing file is not an error
	if err := loadYAMLFile(cfg, configPath); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromFile loads configuration from a specific path.
// Used for testing and explicit path specification.
func LoadFromFile(path string) (*Config, error) {
	cfg := newDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// newDefaults returns a Config with all default values.
func newDefaults() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path: "data/habits.db",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Query: QueryConfig{
			PinnedSection: "Pinned",
		},
		Worker: WorkerConfig{
			RolloverSchedule:  "0 0 0 * * *",
			ReconcileInterval: Duration(6 * time.Hour),
			SnapshotInterval:  Duration(24 * time.Hour),
			SnapshotDir:       "data/snapshots",
			SnapshotRetain:    7,
		},
		SnapshotStorage: SnapshotStorageConfig{
			Prefix: "habitstore",
		},
	}
}

// loadYAMLFile loads configuration from a YAML file if it exists.
func loadYAMLFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
// Only non-empty env vars override config values.
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("HABITS_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("HABITS_DB_IN_MEMORY"); v != "" {
		cfg.Database.InMemory = v == "true" || v == "1"
	}

	// Log
	if v := os.Getenv("HABITS_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("HABITS_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}

	// Query
	if v := os.Getenv("HABITS_PINNED_SECTION"); v != "" {
		cfg.Query.PinnedSection = v
	}

	// Worker
	if v := os.Getenv("HABITS_ROLLOVER_SCHEDULE"); v != "" {
		cfg.Worker.RolloverSchedule = v
	}
	if v := os.Getenv("HABITS_RECONCILE_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Worker.ReconcileInterval = Duration(d)
		}
	}
	if v := os.Getenv("HABITS_SNAPSHOT_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Worker.SnapshotInterval = Duration(d)
		}
	}
	if v := os.Getenv("HABITS_SNAPSHOT_DIR"); v != "" {
		cfg.Worker.SnapshotDir = v
	}
	if v := os.Getenv("HABITS_SNAPSHOT_RETAIN"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Worker.SnapshotRetain = n
		}
	}

	// Snapshot storage
	if v := os.Getenv("HABITS_S3_ENDPOINT"); v != "" {
		cfg.SnapshotStorage.Endpoint = v
	}
	if v := os.Getenv("HABITS_S3_BUCKET"); v != "" {
		cfg.SnapshotStorage.Bucket = v
	}
	if v := os.Getenv("HABITS_S3_REGION"); v != "" {
		cfg.SnapshotStorage.Region = v
	}
	if v := os.Getenv("HABITS_S3_PREFIX"); v != "" {
		cfg.SnapshotStorage.Prefix = v
	}
	if v := os.Getenv("HABITS_S3_USE_SSL"); v != "" {
		useSSL := v == "true" || v == "1"
		cfg.SnapshotStorage.UseSSL = &useSSL
	}
	if v := os.Getenv("HABITS_S3_ACCESS_KEY"); v != "" {
		cfg.SnapshotStorage.AccessKey = v
	}
	if v := os.Getenv("HABITS_S3_SECRET_KEY"); v != "" {
		cfg.SnapshotStorage.SecretKey = v
	}
}

// validate checks value ranges and the rollover schedule syntax.
func (c *Config) validate() error {
	var errs []error

	if !c.Database.InMemory && strings.TrimSpace(c.Database.Path) == "" {
		errs = append(errs, errors.New("database.path is required unless database.in_memory is set"))
	}
	if _, ok := logLevels[strings.ToLower(c.Log.Level)]; !ok {
		errs = append(errs, fmt.Errorf("log.level %q must be one of debug, info, warn, error", c.Log.Level))
	}
	if f := strings.ToLower(c.Log.Format); f != "json" && f != "text" {
		errs = append(errs, fmt.Errorf("log.format %q must be json or text", c.Log.Format))
	}
	if strings.TrimSpace(c.Query.PinnedSection) == "" {
		errs = append(errs, errors.New("query.pinned_section must not be empty"))
	}
	if c.Worker.RolloverSchedule != "" {
		if _, err := scheduleParser.Parse(c.Worker.RolloverSchedule); err != nil {
			errs = append(errs, fmt.Errorf("worker.rollover_schedule: %w", err))
		}
	}
	if c.Worker.ReconcileInterval < 0 {
		errs = append(errs, errors.New("worker.reconcile_interval must not be negative"))
	}
	if c.Worker.SnapshotInterval < 0 {
		errs = append(errs, errors.New("worker.snapshot_interval must not be negative"))
	}
	if c.Worker.SnapshotInterval > 0 && strings.TrimSpace(c.Worker.SnapshotDir) == "" {
		errs = append(errs, errors.New("worker.snapshot_dir is required when snapshots are enabled"))
	}
	if c.Worker.SnapshotRetain < 0 {
		errs = append(errs, errors.New("worker.snapshot_retain must not be negative"))
	}
	if c.SnapshotStorage.Bucket != "" && strings.TrimSpace(c.SnapshotStorage.Endpoint) == "" {
		errs = append(errs, errors.New("snapshot_storage.endpoint is required when a bucket is set"))
	}

	return errors.Join(errs...)
}

var logLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// SlogLevel returns the configured level, defaulting to info.
func (c LogConfig) SlogLevel() slog.Level {
	if l, ok := logLevels[strings.ToLower(c.Level)]; ok {
		return l
	}
	return slog.LevelInfo
}

// NewLogger builds the process logger writing to w.
func (c LogConfig) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.SlogLevel()}
	if strings.ToLower(c.Format) == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// getEnv returns the value of an environment variable or a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
