package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stocky-devel/stocky/internal/events"
	"github.com/stocky-devel/stocky/internal/fsutil"
	"github.com/stocky-devel/stocky/internal/reader"
)

const sample = `
version: 1
device_path: /dev/ttyACM0
serial:
  baud_rate: 9600
  parity: even
region_code: us
time_zone: Europe/London
remote_inventory_url: http://qai.example/api
database_path: /var/lib/stocky/stocky.db
listen: 127.0.0.1:8080
radar_window: 5
radar_calibration:
  a: -50
  n: 2.5
intervals:
  radar_tick: 2s
  debounce: 750ms
bind_command: [rfcomm, bind, rfcomm0]
`

func writeConfig(t *testing.T, name, body string) *fsutil.MemoryFileSystem {
	t.Helper()
	fs := fsutil.NewMemoryFileSystem()
	require.NoError(t, fs.WriteFile(name, []byte(body), 0o644))
	return fs
}

func TestLoad(t *testing.T) {
	fs := writeConfig(t, "/etc/stocky/stocky.yaml", sample)

	cfg, err := Load("/etc/stocky/../stocky/stocky.yaml", fs)
	require.NoError(t, err)

	assert.Equal(t, "/dev/ttyACM0", cfg.DevicePath)
	assert.Equal(t, 9600, cfg.Serial.BaudRate)
	assert.Equal(t, "us", cfg.RegionCode)
	assert.Equal(t, "Europe/London", cfg.Location().String())
	assert.Equal(t, 5, cfg.RadarWindow)
	assert.Equal(t, reader.Calibration{A: -50, N: 2.5}, cfg.RadarCalibration)
	assert.Equal(t, 2*time.Second, cfg.GetRadarTick())
	assert.Equal(t, 750*time.Millisecond, cfg.GetDebounce())
	assert.Equal(t, []string{"rfcomm", "bind", "rfcomm0"}, cfg.BindCommand)

	// unset values fall back to defaults
	assert.Equal(t, "/dev/ttyACM0", cfg.PresenceWatchPath)
	assert.Equal(t, time.Second, cfg.GetFileWatch())
	assert.Equal(t, 5*time.Second, cfg.GetProcessPoll())
	assert.Equal(t, 250*time.Millisecond, cfg.GetReaderTimeout())
}

func TestLoadRejectsBadFiles(t *testing.T) {
	t.Run("extension", func(t *testing.T) {
		fs := writeConfig(t, "/stocky.json", sample)
		_, err := Load("/stocky.json", fs)
		require.Error(t, err)
		assert.Contains(t, err.Error(), ".yaml or .yml extension")
	})

	t.Run("missing", func(t *testing.T) {
		_, err := Load("/nowhere.yml", fsutil.NewMemoryFileSystem())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to stat config file")
	})

	t.Run("too large", func(t *testing.T) {
		fs := writeConfig(t, "/big.yaml", strings.Repeat("#", maxFileSize+1))
		_, err := Load("/big.yaml", fs)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "config file too large")
	})

	t.Run("unknown setting", func(t *testing.T) {
		fs := writeConfig(t, "/c.yaml", "version: 1\nbt_reader_adr: 00:11\n")
		_, err := Load("/c.yaml", fs)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to parse config YAML")
	})
}

func TestParseEmptyUsesDefaults(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Defaults(), cfg)
	assert.Equal(t, ":5000", cfg.Listen)
	assert.Equal(t, 3, cfg.RadarWindow)
	assert.Equal(t, reader.DefaultCalibration, cfg.RadarCalibration)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"version", func(c *Config) { c.Version = 2 }, "version must be 1"},
		{"region", func(c *Config) { c.RegionCode = "usa" }, "must be of length 2"},
		{"time zone", func(c *Config) { c.TimeZone = "Mars/Olympus" }, "unknown time_zone"},
		{"serial", func(c *Config) { c.Serial.Parity = "mark" }, "serial: unsupported parity"},
		{"calibration", func(c *Config) { c.RadarCalibration.N = 0 }, "radar_calibration.n"},
		{"bad duration", func(c *Config) { c.Intervals.Debounce = "soon" }, "invalid intervals.debounce"},
		{"negative duration", func(c *Config) { c.Intervals.RadarTick = "-1s" }, "intervals.radar_tick must be positive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	require.NoError(t, Defaults().Validate())
}

func TestDurationFallback(t *testing.T) {
	cfg := &Config{Intervals: Intervals{RadarTick: "bogus", Debounce: "0s"}}
	assert.Equal(t, time.Second, cfg.GetRadarTick())
	assert.Equal(t, 500*time.Millisecond, cfg.GetDebounce())
	assert.Equal(t, time.UTC, (&Config{TimeZone: "nope"}).Location())
}

func TestPublic(t *testing.T) {
	pub := Defaults().Public()
	assert.Equal(t, events.VocabularyVersion, pub["vocabulary_version"])
	assert.Equal(t, "eu", pub["region_code"])
	assert.Equal(t, "1s", pub["radar_tick"])
	assert.NotContains(t, pub, "database_path")
}

func TestShippedConfigLoads(t *testing.T) {
	cfg, err := Load("../../"+DefaultConfigPath, nil)
	require.NoError(t, err)
	assert.Equal(t, "eu", cfg.RegionCode)
	assert.Equal(t, cfg.DevicePath, cfg.PresenceWatchPath)
	assert.Empty(t, cfg.BindCommand)
	assert.Equal(t, time.Second, cfg.GetRadarTick())
}
