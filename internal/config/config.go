package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"taskcal/internal/store"
)

// Defaults applied by Normalize.
const (
	DefaultListen            = "127.0.0.1:8080"
	DefaultLogLevel          = "info"
	DefaultCreatedBy         = "CurrentUser"
	DefaultUndoWindowSeconds = 5
	DefaultMaxOccurrences    = 10000
	DefaultStorageDriver     = "file"
	DefaultStorageDir        = "data"
	DefaultStorageKey        = "tasks"
	DefaultMaxBytes          = 5 * 1024 * 1024
	DefaultBackupDir         = "backups"
	DefaultBackupKeep        = 7
)

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// RedisConfig is used when Storage.Driver is "redis".
type RedisConfig struct {
	Addr     string `yaml:"addr" json:"addr"`
	Password string `yaml:"password" json:"password"`
	DB       int    `yaml:"db" json:"db"`
	// Prefix is prepended to the storage key.
	Prefix string `yaml:"prefix" json:"prefix"`
}

// StorageConfig selects where the occurrence list is persisted.
type StorageConfig struct {
	// Driver is one of "file", "redis", "memory".
	Driver string `yaml:"driver" json:"driver"`
	// Dir holds <key>.json for the file driver.
	Dir string `yaml:"dir" json:"dir"`
	// Key names the single slot the whole list is written to.
	Key string `yaml:"key" json:"key"`
	// MaxBytes rejects writes whose serialized size exceeds it.
	MaxBytes int          `yaml:"max_bytes" json:"max_bytes"`
	Redis    *RedisConfig `yaml:"redis,omitempty" json:"redis,omitempty"`
}

// BackupConfig schedules snapshots of the store. An empty Cron disables them.
type BackupConfig struct {
	Cron string `yaml:"cron" json:"cron"`
	Dir  string `yaml:"dir" json:"dir"`
	// Keep is how many snapshots survive pruning.
	Keep int `yaml:"keep" json:"keep"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// CreatedBy is written into metadata.createdBy of new occurrences.
	CreatedBy string `yaml:"created_by" json:"created_by"`

	// UndoWindowSeconds is how long the last action stays undoable.
	UndoWindowSeconds int `yaml:"undo_window_seconds" json:"undo_window_seconds"`

	// MaxOccurrences caps a single recurrence expansion.
	MaxOccurrences int `yaml:"max_occurrences" json:"max_occurrences"`

	Storage StorageConfig `yaml:"storage" json:"storage"`
	Backup  BackupConfig  `yaml:"backup" json:"backup"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:            DefaultListen,
		LogLevel:          DefaultLogLevel,
		CreatedBy:         DefaultCreatedBy,
		UndoWindowSeconds: DefaultUndoWindowSeconds,
		MaxOccurrences:    DefaultMaxOccurrences,
		Storage: StorageConfig{
			Driver:   DefaultStorageDriver,
			Dir:      DefaultStorageDir,
			Key:      DefaultStorageKey,
			MaxBytes: DefaultMaxBytes,
		},
		Backup: BackupConfig{
			Cron: "0 3 * * *",
			Dir:  DefaultBackupDir,
			Keep: DefaultBackupKeep,
		},
	}
}

// Normalize fills in missing/zero values so partially-filled configs still
// behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = DefaultListen
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
		c.LogLevel = strings.ToLower(c.LogLevel)
	default:
		c.LogLevel = DefaultLogLevel
	}
	if strings.TrimSpace(c.CreatedBy) == "" {
		c.CreatedBy = DefaultCreatedBy
	}
	if c.UndoWindowSeconds <= 0 {
		c.UndoWindowSeconds = DefaultUndoWindowSeconds
	}
	if c.MaxOccurrences <= 0 {
		c.MaxOccurrences = DefaultMaxOccurrences
	}

	s := &c.Storage
	s.Driver = strings.ToLower(strings.TrimSpace(s.Driver))
	switch s.Driver {
	case "file", "redis", "memory":
	default:
		s.Driver = DefaultStorageDriver
	}
	if s.Dir == "" {
		s.Dir = DefaultStorageDir
	}
	if s.Key == "" {
		s.Key = DefaultStorageKey
	}
	if s.MaxBytes <= 0 {
		s.MaxBytes = DefaultMaxBytes
	}
	if s.Driver == "redis" && s.Redis == nil {
		s.Redis = &RedisConfig{Addr: "127.0.0.1:6379"}
	}

	if c.Backup.Dir == "" {
		c.Backup.Dir = DefaultBackupDir
	}
	if c.Backup.Keep <= 0 {
		c.Backup.Keep = DefaultBackupKeep
	}
}

// UndoWindow returns UndoWindowSeconds as a duration.
func (c *Config) UndoWindow() time.Duration {
	return time.Duration(c.UndoWindowSeconds) * time.Second
}

// Validate reports settings Normalize cannot repair.
func (c *Config) Validate() error {
	if c.Backup.Cron != "" {
		if _, err := cron.ParseStandard(c.Backup.Cron); err != nil {
			return fmt.Errorf("backup.cron %q: %w", c.Backup.Cron, err)
		}
	}
	if c.Storage.Driver == "redis" && (c.Storage.Redis == nil || c.Storage.Redis.Addr == "") {
		return errors.New("storage.redis.addr is required for the redis driver")
	}
	if c.BasicAuth != nil && c.BasicAuth.Username == "" {
		return errors.New("basic_auth.username is empty")
	}
	return nil
}

// Load loads configuration from the given YAML path.
//
// A missing file is first-run: the defaults are written with 0600 perms and
// returned. An existing file is unmarshalled, normalized and validated.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save normalizes cfg and writes it as YAML. The file is replaced atomically
// (temp file in the same directory, then rename) and ends up 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}
	cfg.Normalize()

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	return store.WriteFileAtomic(path, data)
}

// Save is a convenience wrapper around the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
