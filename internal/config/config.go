package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"

	"github.com/stocky-devel/stocky/internal/events"
	"github.com/stocky-devel/stocky/internal/fsutil"
	"github.com/stocky-devel/stocky/internal/reader"
	"github.com/stocky-devel/stocky/internal/serialmux"
)

// DefaultConfigPath is where the server looks when -config is not given.
const DefaultConfigPath = "config/stocky.yaml"

// Version is the configuration schema version this build understands.
const Version = 1

const maxFileSize = 1 * 1024 * 1024 // 1MB

// Config is the server configuration file.
type Config struct {
	Version            int                   `yaml:"version"`
	DevicePath         string                `yaml:"device_path"`
	Serial             serialmux.PortOptions `yaml:"serial"`
	RegionCode         string                `yaml:"region_code"`
	TimeZone           string                `yaml:"time_zone"`
	RemoteInventoryURL string                `yaml:"remote_inventory_url"`
	DatabasePath       string                `yaml:"database_path"`
	Listen             string                `yaml:"listen"`
	RadarWindow        int                   `yaml:"radar_window"`
	RadarCalibration   reader.Calibration    `yaml:"radar_calibration"`
	Intervals          Intervals             `yaml:"intervals"`

	// PresenceWatchPath is polled for existence to detect the reader
	// coming and going. Defaults to DevicePath.
	PresenceWatchPath string `yaml:"presence_watch_path"`

	// BindCommand, if set, is run under supervision to keep the reader's
	// transport bound (e.g. an rfcomm bind for a bluetooth reader).
	BindCommand []string `yaml:"bind_command"`
}

// Intervals holds duration strings like "500ms".
type Intervals struct {
	RadarTick     string `yaml:"radar_tick"`
	Debounce      string `yaml:"debounce"`
	FileWatch     string `yaml:"file_watch"`
	ProcessPoll   string `yaml:"process_poll"`
	ReaderTimeout string `yaml:"reader_timeout"`
}

// Defaults returns a configuration with every field at its default value.
func Defaults() *Config {
	cfg := &Config{}
	cfg.Normalise()
	return cfg
}

// Load reads and validates a YAML configuration file. A nil fs reads from
// the operating system.
func Load(path string, fs fsutil.FileSystem) (*Config, error) {
	if fs == nil {
		fs = fsutil.OSFileSystem{}
	}

	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("config file must have .yaml or .yml extension, got %q", ext)
	}

	fileInfo, err := fs.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := fs.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML, rejecting unknown settings, then normalises and
// validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}

	cfg.Normalise()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Normalise fills unset fields with defaults.
func (c *Config) Normalise() {
	if c.Version == 0 {
		c.Version = Version
	}
	if c.DevicePath == "" {
		c.DevicePath = "/dev/rfcomm0"
	}
	if c.RegionCode == "" {
		c.RegionCode = "eu"
	}
	if c.TimeZone == "" {
		c.TimeZone = "UTC"
	}
	if c.DatabasePath == "" {
		c.DatabasePath = "stocky.db"
	}
	if c.Listen == "" {
		c.Listen = ":5000"
	}
	if c.RadarWindow <= 0 {
		c.RadarWindow = 3
	}
	if c.RadarCalibration == (reader.Calibration{}) {
		c.RadarCalibration = reader.DefaultCalibration
	}
	if c.PresenceWatchPath == "" {
		c.PresenceWatchPath = c.DevicePath
	}
	if c.Intervals.RadarTick == "" {
		c.Intervals.RadarTick = "1s"
	}
	if c.Intervals.Debounce == "" {
		c.Intervals.Debounce = "500ms"
	}
	if c.Intervals.FileWatch == "" {
		c.Intervals.FileWatch = "1s"
	}
	if c.Intervals.ProcessPoll == "" {
		c.Intervals.ProcessPoll = "5s"
	}
	if c.Intervals.ReaderTimeout == "" {
		c.Intervals.ReaderTimeout = "250ms"
	}
}

// Validate checks that the configuration values are usable.
func (c *Config) Validate() error {
	if c.Version != Version {
		return fmt.Errorf("version must be %d, got %d", Version, c.Version)
	}
	if len(c.RegionCode) != 2 {
		return fmt.Errorf("region_code %q must be of length 2", c.RegionCode)
	}
	if _, err := time.LoadLocation(c.TimeZone); err != nil {
		return fmt.Errorf("unknown time_zone %q: %w", c.TimeZone, err)
	}
	if _, err := c.Serial.Normalise(); err != nil {
		return fmt.Errorf("serial: %w", err)
	}
	if c.RadarCalibration.N <= 0 {
		return fmt.Errorf("radar_calibration.n must be positive, got %g", c.RadarCalibration.N)
	}

	for name, v := range map[string]string{
		"radar_tick":     c.Intervals.RadarTick,
		"debounce":       c.Intervals.Debounce,
		"file_watch":     c.Intervals.FileWatch,
		"process_poll":   c.Intervals.ProcessPoll,
		"reader_timeout": c.Intervals.ReaderTimeout,
	} {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid intervals.%s '%s': %w", name, v, err)
		}
		if d <= 0 {
			return fmt.Errorf("intervals.%s must be positive, got %s", name, v)
		}
	}
	return nil
}

// Location returns the configured time zone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func duration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// GetRadarTick returns how often a radar sample is requested.
func (c *Config) GetRadarTick() time.Duration {
	return duration(c.Intervals.RadarTick, time.Second)
}

// GetDebounce returns the quiet period before activity is reported off.
func (c *Config) GetDebounce() time.Duration {
	return duration(c.Intervals.Debounce, 500*time.Millisecond)
}

func (c *Config) GetFileWatch() time.Duration {
	return duration(c.Intervals.FileWatch, time.Second)
}

func (c *Config) GetProcessPoll() time.Duration {
	return duration(c.Intervals.ProcessPoll, 5*time.Second)
}

// GetReaderTimeout returns how long one receive waits for a frame.
func (c *Config) GetReaderTimeout() time.Duration {
	return duration(c.Intervals.ReaderTimeout, 250*time.Millisecond)
}

// Public returns the subset of settings that is sent to the client in
// response to a configuration request.
func (c *Config) Public() map[string]any {
	return map[string]any{
		"version":              c.Version,
		"vocabulary_version":   events.VocabularyVersion,
		"region_code":          c.RegionCode,
		"time_zone":            c.TimeZone,
		"remote_inventory_url": c.RemoteInventoryURL,
		"radar_window":         c.RadarWindow,
		"radar_tick":           c.GetRadarTick().String(),
	}
}
