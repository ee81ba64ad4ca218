// Package config provides configuration loading for pdf2cbz.
// Supports YAML files, a .env file, environment variables and programmatic overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const megabyte = 1000 * 1000

// Config holds all configuration for a conversion run. It is passed by value
// into the pipeline at job start; nothing reads it globally.
type Config struct {
	Work          WorkConfig          `yaml:"work"`
	Raster        RasterConfig        `yaml:"raster"`
	Transcode     TranscodeConfig     `yaml:"transcode"`
	Output        OutputConfig        `yaml:"output"`
	Settings      SettingsConfig      `yaml:"settings"`
	Events        EventsConfig        `yaml:"events"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// WorkConfig holds working-volume settings.
type WorkConfig struct {
	Root           string `yaml:"root"`
	LowWaterMarkMB uint64 `yaml:"low_water_mark_mb"`
	Continuous     bool   `yaml:"continuous"` // keep converting after a failed document
}

// RasterConfig holds rasterization stage settings.
type RasterConfig struct {
	Parallel    bool          `yaml:"parallel"`
	DPI         float64       `yaml:"dpi"`
	JPEGQuality int           `yaml:"jpeg_quality"`
	MaxWorkers  int           `yaml:"max_workers"`  // 0 = one per shard
	TaskTimeout time.Duration `yaml:"task_timeout"` // checked between pages, 0 = none
}

// TranscodeConfig holds transcode stage settings.
type TranscodeConfig struct {
	Parallel    bool          `yaml:"parallel"`
	Quality     int           `yaml:"quality"`
	Resize      bool          `yaml:"resize"`
	MaxWidth    int           `yaml:"max_width"`
	Method      int           `yaml:"method"`
	MaxWorkers  int           `yaml:"max_workers"`  // 0 = logical CPUs
	TaskTimeout time.Duration `yaml:"task_timeout"` // checked before encoding, 0 = none
}

// OutputConfig holds destination settings.
type OutputConfig struct {
	Dir          string `yaml:"dir"`
	Extension    string `yaml:"extension"`
	DeleteSource bool   `yaml:"delete_source"`
}

// SettingsConfig holds the persisted settings store location.
type SettingsConfig struct {
	Path    string `yaml:"path"`
	Enabled bool   `yaml:"enabled"`
}

// EventsConfig holds optional event publishing settings.
type EventsConfig struct {
	RedisAddr string `yaml:"redis_addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	Channel   string `yaml:"channel"`
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// Load reads configuration from an optional YAML file and applies .env and
// environment overrides.
func Load(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with the tool's stock defaults.
func DefaultConfig() *Config {
	return &Config{
		Work: WorkConfig{
			Root:           filepath.Join(os.TempDir(), "pdf2cbz"),
			LowWaterMarkMB: 100,
			Continuous:     true,
		},
		Raster: RasterConfig{
			Parallel:    true,
			DPI:         485,
			JPEGQuality: 100,
		},
		Transcode: TranscodeConfig{
			Parallel: true,
			Quality:  70,
			MaxWidth: 3840,
			Method:   6,
		},
		Output: OutputConfig{
			Extension: ".cbz",
		},
		Settings: SettingsConfig{
			Path:    defaultSettingsPath(),
			Enabled: true,
		},
		Events: EventsConfig{
			Channel: "pdf2cbz:events",
		},
		Observability: ObservabilityConfig{
			LogLevel:  "info",
			LogFormat: "console",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Work.Root == "" {
		return fmt.Errorf("work.root is required")
	}

	if c.Transcode.Quality < 0 || c.Transcode.Quality > 100 {
		return fmt.Errorf("transcode.quality must be between 0 and 100, got %d", c.Transcode.Quality)
	}

	if c.Transcode.Method < 0 || c.Transcode.Method > 6 {
		return fmt.Errorf("transcode.method must be between 0 and 6, got %d", c.Transcode.Method)
	}

	if c.Transcode.MaxWidth < 1 {
		return fmt.Errorf("transcode.max_width must be positive")
	}

	if c.Raster.JPEGQuality < 1 || c.Raster.JPEGQuality > 100 {
		return fmt.Errorf("raster.jpeg_quality must be between 1 and 100, got %d", c.Raster.JPEGQuality)
	}

	if c.Raster.DPI <= 0 {
		return fmt.Errorf("raster.dpi must be positive")
	}

	if c.Raster.MaxWorkers < 0 || c.Transcode.MaxWorkers < 0 {
		return fmt.Errorf("max_workers cannot be negative")
	}

	if !strings.HasPrefix(c.Output.Extension, ".") {
		return fmt.Errorf("output.extension must start with a dot, got %q", c.Output.Extension)
	}

	return nil
}

// LowWaterMark returns the working-volume low-water mark in bytes.
func (c *Config) LowWaterMark() uint64 {
	return c.Work.LowWaterMarkMB * megabyte
}

// DestinationFor maps a source document to its archive path. An empty
// output directory places the archive next to the source.
func (c *Config) DestinationFor(source string) string {
	base := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source)) + c.Output.Extension
	dir := c.Output.Dir
	if dir == "" {
		dir = filepath.Dir(source)
	}
	return filepath.Join(dir, base)
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PDF2CBZ_WORK_ROOT"); v != "" {
		cfg.Work.Root = v
	}

	if v := os.Getenv("PDF2CBZ_LOW_WATER_MARK_MB"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Work.LowWaterMarkMB = n
		}
	}

	if v := os.Getenv("PDF2CBZ_QUALITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Transcode.Quality = n
		}
	}

	if v := os.Getenv("PDF2CBZ_RESIZE"); v != "" {
		cfg.Transcode.Resize = parseBool(v)
	}

	if v := os.Getenv("PDF2CBZ_OUTPUT_DIR"); v != "" {
		cfg.Output.Dir = v
	}

	if v := os.Getenv("PDF2CBZ_SETTINGS_PATH"); v != "" {
		cfg.Settings.Path = v
	}

	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Events.RedisAddr = strings.TrimPrefix(v, "redis://")
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Observability.LogFormat = v
	}
}

func parseBool(v string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	return err == nil && b
}

// defaultSettingsPath returns $HOME/.pdf2cbz/settings.db, or a temp-dir path
// when the home directory is unknown.
func defaultSettingsPath() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".pdf2cbz", "settings.db")
	}
	return filepath.Join(os.TempDir(), "pdf2cbz-settings.db")
}
