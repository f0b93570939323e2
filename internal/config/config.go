package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// APIKeyEnv overrides holidays.api_key so the key can stay out of the file.
const APIKeyEnv = "CHRONOSYNC_API_KEY"

const (
	defaultListen        = "127.0.0.1:8080"
	defaultTimezone      = "Africa/Johannesburg"
	defaultWeekStart     = "sunday"
	defaultRefreshCron   = "*/30 * * * *"
	defaultDatabase      = "./var/chronosync.db"
	defaultStateFile     = "./var/state.json"
	defaultHolidaysURL   = "https://calendarific.com/api/v2/"
	defaultHolidaysCache = "./var/holiday-cache"
	defaultAPITimeout    = 15
	defaultFetchTimeout  = 10
)

// HolidaysConfig describes the public-holiday REST provider.
type HolidaysConfig struct {
	BaseURL        string `yaml:"base_url" json:"base_url"`
	APIKey         string `yaml:"api_key" json:"-"`
	TimeoutSeconds int    `yaml:"timeout_seconds" json:"timeout_seconds"`
	// CacheDir holds last good responses, used when the provider is unreachable.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone decides what "today" is for the dashboard.
	Timezone string `yaml:"timezone" json:"timezone"`

	// WeekStart is the first column of the month grid: "sunday" (default) or "monday".
	WeekStart string `yaml:"week_start" json:"week_start"`

	// RefreshCron is the cron schedule for recomputing dashboard slots.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	LogLevel string `yaml:"log_level" json:"log_level"`

	// Database is the sqlite file backing users, calendars and events.
	Database string `yaml:"database" json:"database"`

	// StateFile persists dashboard slots and local preferences.
	StateFile string `yaml:"state_file" json:"state_file"`

	// FetchTimeoutSeconds bounds each single remote call made while
	// aggregating a window.
	FetchTimeoutSeconds int `yaml:"fetch_timeout_seconds" json:"fetch_timeout_seconds"`

	Holidays HolidaysConfig `yaml:"holidays" json:"holidays"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:              defaultListen,
		Timezone:            defaultTimezone,
		WeekStart:           defaultWeekStart,
		RefreshCron:         defaultRefreshCron,
		LogLevel:            "info",
		Database:            defaultDatabase,
		StateFile:           defaultStateFile,
		FetchTimeoutSeconds: defaultFetchTimeout,
		Holidays: HolidaysConfig{
			BaseURL:        defaultHolidaysURL,
			TimeoutSeconds: defaultAPITimeout,
			CacheDir:       defaultHolidaysCache,
		},
	}
}

// Normalize fills in missing/zero values so partially-filled configs still work.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	switch c.WeekStart {
	case "monday", "sunday":
	default:
		c.WeekStart = defaultWeekStart
	}
	if c.RefreshCron == "" {
		c.RefreshCron = defaultRefreshCron
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Database == "" {
		c.Database = defaultDatabase
	}
	if c.StateFile == "" {
		c.StateFile = defaultStateFile
	}
	if c.FetchTimeoutSeconds <= 0 {
		c.FetchTimeoutSeconds = defaultFetchTimeout
	}
	if c.Holidays.BaseURL == "" {
		c.Holidays.BaseURL = defaultHolidaysURL
	}
	if c.Holidays.TimeoutSeconds <= 0 {
		c.Holidays.TimeoutSeconds = defaultAPITimeout
	}
	if c.Holidays.CacheDir == "" {
		c.Holidays.CacheDir = defaultHolidaysCache
	}
}

// Location resolves Timezone, falling back to time.Local.
func (c *Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// FirstWeekday maps WeekStart to a time.Weekday.
func (c *Config) FirstWeekday() time.Weekday {
	if c.WeekStart == "monday" {
		return time.Monday
	}
	return time.Sunday
}

func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSeconds) * time.Second
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written (0600) and returned.
//   - Otherwise the YAML is read and normalized.
//   - In both cases APIKeyEnv, when set, replaces holidays.api_key in memory.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				applyEnv(cfg)
				return cfg, err
			}
			applyEnv(cfg)
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()
	applyEnv(&cfg)

	return &cfg, nil
}

func applyEnv(cfg *Config) {
	if key := os.Getenv(APIKeyEnv); key != "" {
		cfg.Holidays.APIKey = key
	}
}

// Save writes cfg to path atomically (temp file in the same directory, then
// rename) with 0600 permissions, creating the parent directory (0700).
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
	return WriteFileAtomic(path, data, ".chronosync-config-*.tmp")
}

// WriteFileAtomic writes data next to path and renames it into place.
func WriteFileAtomic(path string, data []byte, pattern string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save is a convenience method delegating to the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
