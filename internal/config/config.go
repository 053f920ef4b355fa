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

	"weekgrid/internal/ics"
	appLog "weekgrid/internal/log"
	"weekgrid/internal/schedule"
)

const (
	DefaultPath        = "/etc/weekgrid/config.yaml"
	defaultListen      = "127.0.0.1:8080"
	defaultTimezone    = "UTC"
	defaultRefresh     = "*/15 * * * *"
	defaultWindowStart = "08:00"
	defaultCacheDir    = "/var/lib/weekgrid/feeds"
)

// FeedConfig is one ICS timetable subscription.
type FeedConfig struct {
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`
	URL  string `yaml:"url" json:"url"`
}

// LayoutConfig holds the grid constants handed to the layout engine.
type LayoutConfig struct {
	// WindowStart is the first visible clock time, "HH:MM".
	WindowStart string `yaml:"window_start" json:"window_start"`
	// WindowLength is the visible span in minutes.
	WindowLength int `yaml:"window_length" json:"window_length"`

	// Gap and Padding are pixels; 0 is a valid setting, a missing key means
	// the engine default.
	Gap         *float64 `yaml:"gap" json:"gap"`
	Padding     *float64 `yaml:"padding" json:"padding"`
	ColumnWidth float64  `yaml:"column_width" json:"column_width"`

	CompanionThreshold int    `yaml:"companion_threshold" json:"companion_threshold"`
	CompanionTag       string `yaml:"companion_tag" json:"companion_tag"`

	// ExcludeKinds lists kind tags never drawn (exams have their own view).
	// An explicit empty list disables the filter.
	ExcludeKinds []string `yaml:"exclude_kinds" json:"exclude_kinds"`
}

// CaptureConfig controls the headless browser preview.
type CaptureConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Width   int    `yaml:"width" json:"width"`
	Height  int    `yaml:"height" json:"height"`
	Output  string `yaml:"output" json:"output"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA zone meetings are displayed in and "today" is
	// computed in.
	Timezone string `yaml:"timezone" json:"timezone"`

	// WeekStart is "monday" (default) or "sunday".
	WeekStart string `yaml:"week_start" json:"week_start"`

	// RefreshCron is a standard 5-field cron spec for re-fetching feeds.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// LogLevel is debug, info, warn or error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// CacheDir stores the last good body of every feed.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	Layout  LayoutConfig  `yaml:"layout" json:"layout"`
	Feeds   []FeedConfig  `yaml:"feeds" json:"feeds"`
	Capture CaptureConfig `yaml:"capture" json:"capture"`

	// BasicAuth, if set, protects every endpoint except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	c := &Config{}
	c.Normalize()
	return c
}

// Normalize fills missing values and replaces invalid ones with defaults so
// a hand-edited file never stops the service from starting.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		appLog.Warn("unknown timezone, using default", "timezone", c.Timezone, "default", defaultTimezone)
		c.Timezone = defaultTimezone
	}

	c.WeekStart = strings.ToLower(strings.TrimSpace(c.WeekStart))
	if c.WeekStart != "monday" && c.WeekStart != "sunday" {
		c.WeekStart = "monday"
	}

	if c.RefreshCron == "" {
		c.RefreshCron = defaultRefresh
	}
	if _, err := cron.ParseStandard(c.RefreshCron); err != nil {
		appLog.Warn("invalid refresh cron, using default", "refresh", c.RefreshCron, "err", err.Error())
		c.RefreshCron = defaultRefresh
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.CacheDir == "" {
		c.CacheDir = defaultCacheDir
	}

	c.Layout.normalize()

	if c.Feeds == nil {
		c.Feeds = []FeedConfig{}
	}
	for i := range c.Feeds {
		if c.Feeds[i].ID == "" {
			c.Feeds[i].ID = fmt.Sprintf("feed%d", i+1)
		}
	}

	if c.Capture.Width <= 0 {
		c.Capture.Width = 1280
	}
	if c.Capture.Height <= 0 {
		c.Capture.Height = 900
	}
	if c.Capture.Output == "" {
		c.Capture.Output = "/var/lib/weekgrid/preview.png"
	}
}

func (l *LayoutConfig) normalize() {
	if l.WindowStart == "" {
		l.WindowStart = defaultWindowStart
	}
	if _, err := schedule.ParseClock("window_start", l.WindowStart); err != nil {
		appLog.Warn("invalid layout.window_start, using default", "window_start", l.WindowStart)
		l.WindowStart = defaultWindowStart
	}
	if l.WindowLength <= 0 {
		l.WindowLength = schedule.DefaultWindowLength
	}
	l.Gap = nonNegative("layout.gap", l.Gap, schedule.DefaultGap)
	l.Padding = nonNegative("layout.padding", l.Padding, schedule.DefaultPadding)
	if l.ColumnWidth <= 0 {
		l.ColumnWidth = schedule.DefaultColumnWidth
	}
	if l.CompanionThreshold <= 0 {
		l.CompanionThreshold = schedule.DefaultCompanionThreshold
	}
	if l.CompanionTag == "" {
		l.CompanionTag = schedule.DefaultCompanionTag
	}
	if l.ExcludeKinds == nil {
		l.ExcludeKinds = []string{"EXAM"}
	}
}

// nonNegative returns v, or a pointer to def when v is missing or negative.
func nonNegative(field string, v *float64, def float64) *float64 {
	if v != nil && *v >= 0 {
		return v
	}
	if v != nil {
		appLog.Warn("negative "+field+", using default", field, *v, "default", def)
	}
	return &def
}

// LayoutOptions converts the layout section into engine options.
func (c *Config) LayoutOptions() schedule.Options {
	start, err := schedule.ParseClock("window_start", c.Layout.WindowStart)
	if err != nil {
		start = schedule.DefaultWindowStart
	}
	return schedule.Options{
		WindowStart:        start,
		WindowLength:       c.Layout.WindowLength,
		Gap:                *nonNegative("layout.gap", c.Layout.Gap, schedule.DefaultGap),
		Padding:            *nonNegative("layout.padding", c.Layout.Padding, schedule.DefaultPadding),
		ColumnWidth:        c.Layout.ColumnWidth,
		CompanionThreshold: c.Layout.CompanionThreshold,
		CompanionTag:       c.Layout.CompanionTag,
		ExcludeKinds:       append([]string(nil), c.Layout.ExcludeKinds...),
	}
}

// Location returns the configured display zone.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// FirstWeekday returns the weekday a displayed week starts on.
func (c *Config) FirstWeekday() time.Weekday {
	if c.WeekStart == "sunday" {
		return time.Sunday
	}
	return time.Monday
}

// Sources returns the feeds as fetcher sources.
func (c *Config) Sources() []ics.Source {
	out := make([]ics.Source, 0, len(c.Feeds))
	for _, f := range c.Feeds {
		out = append(out, ics.Source{ID: f.ID, Name: f.Name, URL: f.URL})
	}
	return out
}

// Load reads the YAML file at path. On first run it writes the defaults
// there (0600) and returns them.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config: path is empty")
	}
	cfg, err := read(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg = DefaultConfig()
		if err := Save(path, cfg); err != nil {
			return cfg, fmt.Errorf("config: write defaults: %w", err)
		}
		appLog.Info("config created with defaults", "path", path)
		return cfg, nil
	}
	return cfg, err
}

func read(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.Normalize()
	return &cfg, nil
}

// Save writes cfg to path atomically (temp file in the same directory, then
// rename) with 0600 permissions.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config: path is empty")
	}
	if cfg == nil {
		return errors.New("config: nil config")
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

	tmp, err := os.CreateTemp(dir, ".weekgrid-config-*.tmp")
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

// Save is shorthand for Save(path, c).
func (c *Config) Save(path string) error {
	return Save(path, c)
}
