package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const dateLayout = "2006-01-02"

// Default column caps per view granularity.
const (
	DefaultDayColumns   = 6
	DefaultWeekColumns  = 5
	DefaultMonthColumns = 3
)

var ErrInvalidPlan = errors.New("config: invalid plan range")

// FeedConfig describes a single timetable ICS feed.
type FeedConfig struct {
	// URL is the ICS endpoint.
	URL string `yaml:"url" json:"url"`
	// ID is an internal identifier used for de-dup and logging.
	ID string `yaml:"id" json:"id"`
	// Name is a human-friendly label.
	Name string `yaml:"name" json:"name"`
}

// SourceID returns ID, falling back to Name and then URL.
func (f FeedConfig) SourceID() string {
	switch {
	case f.ID != "":
		return f.ID
	case f.Name != "":
		return f.Name
	default:
		return f.URL
	}
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the preview service.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// PlanConfig is the date range weekly templates are expanded over.
// Dates use YYYY-MM-DD; both ends are inclusive.
type PlanConfig struct {
	Start string `yaml:"start" json:"start"`
	End   string `yaml:"end" json:"end"`
}

// ViewConfig tunes one calendar view.
type ViewConfig struct {
	MaxVisibleColumns int `yaml:"max_visible_columns" json:"max_visible_columns"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA timezone used as canonical display zone.
	Timezone string `yaml:"timezone" json:"timezone"`

	// WeekStart is "monday" (default) or "sunday".
	WeekStart string `yaml:"week_start" json:"week_start"`

	LogLevel string `yaml:"log_level" json:"log_level"`

	// RefreshCron is a cron schedule (e.g. "*/15 * * * *") for feed refresh.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// CacheDir holds per-feed HTTP cache entries.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	// PreviewPath is where calendar snapshots are written.
	PreviewPath string `yaml:"preview_path" json:"preview_path"`

	Plan PlanConfig `yaml:"plan" json:"plan"`

	// Views maps "day", "week" and "month" to their settings.
	Views map[string]ViewConfig `yaml:"views" json:"views"`

	Feeds []FeedConfig `yaml:"feeds" json:"feeds"`

	// BasicAuth, if set, protects every endpoint except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:      "127.0.0.1:8080",
		Timezone:    "UTC",
		WeekStart:   "monday",
		LogLevel:    "info",
		RefreshCron: "*/15 * * * *",
		CacheDir:    "./var/feed-cache",
		PreviewPath: "./var/preview.png",
		Views:       defaultViews(),
		Feeds:       []FeedConfig{},
	}
}

func defaultViews() map[string]ViewConfig {
	return map[string]ViewConfig{
		"day":   {MaxVisibleColumns: DefaultDayColumns},
		"week":  {MaxVisibleColumns: DefaultWeekColumns},
		"month": {MaxVisibleColumns: DefaultMonthColumns},
	}
}

// Normalize fills in missing/zero values so partially-filled configs still
// behave.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8080"
	}
	if c.Timezone == "" {
		c.Timezone = "UTC"
	}
	switch c.WeekStart {
	case "monday", "sunday":
	default:
		c.WeekStart = "monday"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.RefreshCron == "" {
		c.RefreshCron = "*/15 * * * *"
	}
	if c.CacheDir == "" {
		c.CacheDir = "./var/feed-cache"
	}
	if c.PreviewPath == "" {
		c.PreviewPath = "./var/preview.png"
	}
	if c.Views == nil {
		c.Views = make(map[string]ViewConfig)
	}
	for name, def := range defaultViews() {
		if v, ok := c.Views[name]; !ok || v.MaxVisibleColumns <= 0 {
			c.Views[name] = def
		}
	}
	if c.Feeds == nil {
		c.Feeds = []FeedConfig{}
	}
}

// Validate reports configuration errors Normalize cannot repair.
func (c *Config) Validate() error {
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("config: timezone %q: %w", c.Timezone, err)
	}
	if _, _, err := c.PlanRange(time.UTC); err != nil {
		return err
	}
	return nil
}

// Location resolves Timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// PlanRange parses the plan dates in loc. Both results are zero when no
// plan is configured.
func (c *Config) PlanRange(loc *time.Location) (time.Time, time.Time, error) {
	if c.Plan.Start == "" && c.Plan.End == "" {
		return time.Time{}, time.Time{}, nil
	}
	start, err := time.ParseInLocation(dateLayout, c.Plan.Start, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: start: %v", ErrInvalidPlan, err)
	}
	end, err := time.ParseInLocation(dateLayout, c.Plan.End, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: end: %v", ErrInvalidPlan, err)
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: end %s before start %s", ErrInvalidPlan, c.Plan.End, c.Plan.Start)
	}
	return start, end, nil
}

// MaxVisibleColumns returns the column cap for a view, or 0 for unknown
// views.
func (c *Config) MaxVisibleColumns(view string) int {
	return c.Views[view].MaxVisibleColumns
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600
//     permissions and returned.
//   - Otherwise the YAML is unmarshalled, normalized and validated.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes cfg to path atomically via a temp file and rename, with 0600
// permissions on the result.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".schoolcal-config-*.tmp")
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

// Save is a convenience wrapper around the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
