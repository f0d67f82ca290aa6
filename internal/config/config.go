package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorhill/cronexpr"
	"gopkg.in/yaml.v3"
)

// Default config file path.
const DefaultConfigPath = "~/.config/linktrail/config.yaml"

// Config holds all linktrail configuration.
type Config struct {
	Storage  StorageConfig   `yaml:"storage"`
	Scan     ScanConfig      `yaml:"scan"`
	Browsers map[string]bool `yaml:"browsers"`
	Sources  []SourceConfig  `yaml:"sources" validate:"dive"`
	Filters  FiltersConfig   `yaml:"filters"`
	Logging  LoggingConfig   `yaml:"logging"`
	Metrics  MetricsConfig   `yaml:"metrics"`
}

type StorageConfig struct {
	Path              string `yaml:"path" validate:"required"`
	SQLiteFile        string `yaml:"sqlite_file" validate:"required"`
	SQLiteJournalMode string `yaml:"sqlite_journal_mode" validate:"oneof=wal delete truncate"`
	BusyTimeoutMS     int    `yaml:"busy_timeout_ms" validate:"min=0"`
}

type ScanConfig struct {
	IntervalSeconds      int    `yaml:"interval_seconds" validate:"min=10"`
	Schedule             string `yaml:"schedule"`
	Workers              int    `yaml:"workers" validate:"min=1,max=64"`
	SourceTimeoutSeconds int    `yaml:"source_timeout_seconds" validate:"min=1"`
	AutoScan             bool   `yaml:"auto_scan"`
	FullRescan           bool   `yaml:"full_rescan"`
	TempDir              string `yaml:"temp_dir"`
}

// SourceConfig names a profile directory scanned in addition to the
// discovered ones.
type SourceConfig struct {
	Browser string `yaml:"browser" validate:"required"`
	Profile string `yaml:"profile" validate:"required"`
	Path    string `yaml:"path" validate:"required"`
}

type FiltersConfig struct {
	SubdomainMatch  bool     `yaml:"subdomain_match"`
	SeedDefaults    bool     `yaml:"seed_defaults"`
	DenylistDomains []string `yaml:"denylist_domains"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=console json"`
	File   string `yaml:"file"`
}

type MetricsConfig struct {
	TextfilePath string `yaml:"textfile_path"`
}

// Interval returns the scan interval as a duration.
func (s ScanConfig) Interval() time.Duration {
	return time.Duration(s.IntervalSeconds) * time.Second
}

// SourceTimeout returns the per-source read budget as a duration.
func (s ScanConfig) SourceTimeout() time.Duration {
	return time.Duration(s.SourceTimeoutSeconds) * time.Second
}

// DBPath returns the expanded path of the catalog database.
func (c *Config) DBPath() (string, error) {
	dir, err := ExpandPath(c.Storage.Path)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, c.Storage.SQLiteFile), nil
}

// EnabledBrowsers returns the names of browsers switched on in the config.
func (c *Config) EnabledBrowsers() []string {
	var out []string
	for _, name := range BrowserOrder {
		if c.Browsers[name] {
			out = append(out, name)
		}
	}
	return out
}

var validate = validator.New()

func knownBrowser(name string) bool {
	for _, b := range BrowserOrder {
		if b == name {
			return true
		}
	}
	return false
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Scan.Schedule != "" {
		if _, err := cronexpr.Parse(c.Scan.Schedule); err != nil {
			return fmt.Errorf("invalid config: scan.schedule: %w", err)
		}
	}
	for name := range c.Browsers {
		if !knownBrowser(name) {
			return fmt.Errorf("invalid config: unknown browser %q", name)
		}
	}
	return nil
}

// Load reads a YAML config file at path and merges it with defaults.
// Returns an error if the file cannot be read, contains invalid YAML, or
// fails validation.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

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

		return cfg, nil
	}

	return Load(path)
}
