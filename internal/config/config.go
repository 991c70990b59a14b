package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Default config file path.
const DefaultConfigPath = "~/.local/share/trailmark/trailmark.yaml"

// Config holds all trailmark core configuration.
type Config struct {
	Storage   StorageConfig   `yaml:"storage"`
	Capture   CaptureConfig   `yaml:"capture"`
	Retention RetentionConfig `yaml:"retention"`
	Index     IndexConfig     `yaml:"index"`
	Suggest   SuggestConfig   `yaml:"suggest"`
	Session   SessionConfig   `yaml:"session"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

type StorageConfig struct {
	DataDir        string  `yaml:"data_dir"`
	SyncWrites     bool    `yaml:"sync_writes"`
	GCIntervalMins int     `yaml:"gc_interval_minutes"`
	GCDiscardRatio float64 `yaml:"gc_discard_ratio"`
}

type CaptureConfig struct {
	ExcludePrivate     bool     `yaml:"exclude_private"`
	UseDefaultDenylist bool     `yaml:"use_default_denylist"`
	DenylistDomains    []string `yaml:"denylist_domains"`
	DenylistRegex      []string `yaml:"denylist_regex"`
}

type RetentionConfig struct {
	// Days of history to keep. Zero keeps everything.
	Days int `yaml:"days"`
}

type IndexConfig struct {
	SearchLimit int     `yaml:"search_limit"`
	TitleWeight float64 `yaml:"title_weight"`
	URLWeight   float64 `yaml:"url_weight"`
}

type SuggestConfig struct {
	Limit           int  `yaml:"limit"`
	SourceTimeoutMs int  `yaml:"source_timeout_ms"`
	IncludeSessions bool `yaml:"include_sessions"`
}

type SessionConfig struct {
	SaveIntervalMs int `yaml:"save_interval_ms"`
	SaveBurst      int `yaml:"save_burst"`
	PrefixLimit    int `yaml:"prefix_limit"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// GCInterval returns the value-log GC interval as a duration.
func (s StorageConfig) GCInterval() time.Duration {
	return time.Duration(s.GCIntervalMins) * time.Minute
}

// SourceTimeout returns the per-source suggestion deadline.
func (s SuggestConfig) SourceTimeout() time.Duration {
	return time.Duration(s.SourceTimeoutMs) * time.Millisecond
}

// SaveInterval returns the minimum spacing of session snapshots.
func (s SessionConfig) SaveInterval() time.Duration {
	return time.Duration(s.SaveIntervalMs) * time.Millisecond
}

// Load reads a YAML config file at path and merges it with defaults.
// Returns an error if the file cannot be read or contains invalid YAML.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Private tabs are never captured, whatever the file says.
	cfg.Capture.ExcludePrivate = true

	dir, err := ExpandPath(cfg.Storage.DataDir)
	if err != nil {
		return nil, err
	}
	cfg.Storage.DataDir = dir

	return cfg, nil
}

// ExpandPath replaces a leading ~ with the user's home directory.
func ExpandPath(path string) (string, error) {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolving home directory: %w", err)
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

// LoadOrCreate loads the config from the default path. If the file does
// not exist, it creates the directory structure and writes defaults.
func LoadOrCreate() (*Config, error) {
	path, err := ExpandPath(DefaultConfigPath)
	if err != nil {
		return nil, err
	}
	return LoadOrCreateAt(path)
}

// LoadOrCreateAt loads the config from the given path. If the file does
// not exist, it creates the directory structure and writes defaults.
func LoadOrCreateAt(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := DefaultConfig()

		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating config directory: %w", err)
		}

		data, err := yaml.Marshal(cfg)
		if err != nil {
			return nil, fmt.Errorf("marshaling default config: %w", err)
		}

		if err := os.WriteFile(path, data, 0644); err != nil {
			return nil, fmt.Errorf("writing default config: %w", err)
		}

		expanded, err := ExpandPath(cfg.Storage.DataDir)
		if err != nil {
			return nil, err
		}
		cfg.Storage.DataDir = expanded
		return cfg, nil
	}

	return Load(path)
}
