package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"weekplan/internal/fsutil"
	"weekplan/internal/grid"
	"weekplan/internal/layout"
	"weekplan/internal/model"
)

// NOTE: This file provides the configuration model and full YAML-based
// load/save behavior, including first-run config creation and 0600
// permissions.

// ICSConfig describes a single ICS subscription source whose events are
// treated as fixed commitments.
type ICSConfig struct {
	// URL is the ICS subscription endpoint.
	URL string `yaml:"url" json:"url"`
	// ID is an internal identifier used for record IDs and logging.
	ID string `yaml:"id" json:"id"`
	// Name is a human-friendly label.
	Name string `yaml:"name" json:"name"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the Web UI/API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// UnavailableConfig is a daily window in which nothing may be placed,
// e.g. sleep. Start may be later than End to wrap past midnight.
type UnavailableConfig struct {
	Start string `yaml:"start" json:"start"`
	End   string `yaml:"end" json:"end"`
}

// LogConfig selects log verbosity and encoding.
type LogConfig struct {
	// Level is one of "debug", "info", "error".
	Level string `yaml:"level" json:"level"`
	// Format is "console" or "json".
	Format string `yaml:"format" json:"format"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the Web UI and API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA timezone the week is planned in (e.g. "America/Toronto").
	Timezone string `yaml:"timezone" json:"timezone"`

	// WeekStart controls which weekday is day 0 of the planned week.
	// Supported values:
	//   - "monday" (default)
	//   - "sunday"
	WeekStart string `yaml:"week_start" json:"week_start"`

	// RefreshCron is a cron-style schedule string (e.g. "*/15 * * * *")
	// used to regenerate candidates while serving.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// SlotMinutes is the grid granularity; it must divide a day.
	SlotMinutes int `yaml:"slot_minutes" json:"slot_minutes"`

	// Candidates is the number of alternative schedules generated.
	Candidates int `yaml:"candidates" json:"candidates"`

	// SpreadOccurrences places repeated occurrences of a request on
	// different days when possible.
	SpreadOccurrences bool `yaml:"spread_occurrences" json:"spread_occurrences"`

	// PadDuplicates fills the candidate set with repeats when fewer
	// distinct schedules exist.
	PadDuplicates bool `yaml:"pad_duplicates" json:"pad_duplicates"`

	// Unavailable lists daily windows blocked for placement.
	Unavailable []UnavailableConfig `yaml:"unavailable" json:"unavailable"`

	// DataPath is the YAML file holding courses, fixed events and requests.
	DataPath string `yaml:"data_path" json:"data_path"`
	// SelectedPath is where the selected schedule is persisted.
	SelectedPath string `yaml:"selected_path" json:"selected_path"`
	// ExportICSPath, if set, also exports the selected schedule as .ics.
	ExportICSPath string `yaml:"export_ics_path,omitempty" json:"export_ics_path,omitempty"`
	// ExportIncludeCommitments also writes courses and fixed events to the
	// export, not only the generated events.
	ExportIncludeCommitments bool `yaml:"export_include_commitments,omitempty" json:"export_include_commitments,omitempty"`
	// CacheDir holds the ICS fetch cache.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	// ICS is the list of subscribed ICS sources.
	ICS []ICSConfig `yaml:"ics" json:"ics"`

	// Layout holds the default rendering parameters.
	Layout layout.Params `yaml:"layout" json:"layout"`

	Log LogConfig `yaml:"log" json:"log"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

const (
	defaultListen      = "127.0.0.1:8080"
	defaultTimezone    = "Local"
	defaultRefreshCron = "*/15 * * * *"
	defaultCandidates  = 3
)

func defaultLayout() layout.Params {
	return layout.Params{
		ViewportWidth:     1200,
		RowHeight:         80,
		AxisLineCount:     layout.DefaultAxisLineCount,
		HorizontalPadding: 64,
		BorderAdjustment:  1,
		BorderInset:       2,
	}
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:       defaultListen,
		Timezone:     defaultTimezone,
		WeekStart:    "monday",
		RefreshCron:  defaultRefreshCron,
		SlotMinutes:  grid.DefaultSlotMinutes,
		Candidates:   defaultCandidates,
		Unavailable:  []UnavailableConfig{{Start: "00:00", End: "07:00"}},
		DataPath:     "./var/data.yaml",
		SelectedPath: "./var/selected.yaml",
		CacheDir:     "./var/ics-cache",
		ICS:          []ICSConfig{},
		Layout:       defaultLayout(),
		Log:          LogConfig{Level: "info", Format: "console"},
		BasicAuth:    nil,
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs (e.g., older versions) still behave correctly.
func (c *Config) Normalize() {
	def := DefaultConfig()
	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.Timezone == "" {
		c.Timezone = def.Timezone
	}
	switch strings.ToLower(c.WeekStart) {
	case "monday", "sunday":
		c.WeekStart = strings.ToLower(c.WeekStart)
	default:
		// Unknown value; fall back to monday to avoid surprising layouts.
		c.WeekStart = "monday"
	}
	if c.RefreshCron == "" {
		c.RefreshCron = def.RefreshCron
	}
	if c.SlotMinutes <= 0 || model.MinutesPerDay%c.SlotMinutes != 0 {
		c.SlotMinutes = def.SlotMinutes
	}
	if c.Candidates <= 0 {
		c.Candidates = def.Candidates
	}
	if c.DataPath == "" {
		c.DataPath = def.DataPath
	}
	if c.SelectedPath == "" {
		c.SelectedPath = def.SelectedPath
	}
	if c.CacheDir == "" {
		c.CacheDir = def.CacheDir
	}
	if c.ICS == nil {
		c.ICS = []ICSConfig{}
	}
	if c.Layout.ViewportWidth <= 0 {
		c.Layout.ViewportWidth = def.Layout.ViewportWidth
	}
	if c.Layout.RowHeight <= 0 {
		c.Layout.RowHeight = def.Layout.RowHeight
	}
	if c.Layout.AxisLineCount <= 0 {
		c.Layout.AxisLineCount = def.Layout.AxisLineCount
	}
	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = def.Log.Format
	}
}

// Location resolves Timezone. "Local" and "" mean the host zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("config: timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// FirstDay returns the configured first weekday.
func (c *Config) FirstDay() time.Weekday {
	if c.WeekStart == "sunday" {
		return time.Sunday
	}
	return time.Monday
}

// UnavailableMinutes parses the unavailable windows into minute ranges
// [start, end) of a day. Wrapping windows are split in two.
func (c *Config) UnavailableMinutes() ([][2]int, error) {
	out := make([][2]int, 0, len(c.Unavailable))
	for i, u := range c.Unavailable {
		start, err := model.ParseClock(u.Start)
		if err != nil {
			return nil, fmt.Errorf("config: unavailable[%d].start: %w", i, err)
		}
		end, err := model.ParseClock(u.End)
		if err != nil {
			return nil, fmt.Errorf("config: unavailable[%d].end: %w", i, err)
		}
		switch {
		case start < end:
			out = append(out, [2]int{start, end})
		case start > end:
			out = append(out, [2]int{start, model.MinutesPerDay})
			if end > 0 {
				out = append(out, [2]int{0, end})
			}
		}
	}
	return out, nil
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
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
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the given configuration atomically to the specified path
// with 0600 permissions, since it may hold basic auth credentials.
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
	return fsutil.WriteFileAtomic(path, data, 0o600)
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
