// Package config loads and validates the device configuration.
//
// Configuration is read once at startup from a YAML file; there is no
// hot-reload. Timing values are expressed in seconds in the file (matching
// the field names) and exposed as time.Duration through getters.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is where the daemon looks for its configuration when no
// -config flag is given.
const DefaultConfigPath = "config/config.yaml"

// Config is the root configuration for one spot-monitoring device.
type Config struct {
	Device   DeviceConfig   `yaml:"device"`
	Sink     SinkConfig     `yaml:"sink"`
	Sensor   SensorConfig   `yaml:"sensor"`
	Triggers TriggersConfig `yaml:"triggers"`
	Fallback FallbackConfig `yaml:"fallback"`
	Queue    QueueConfig    `yaml:"queue"`
	Camera   CameraConfig   `yaml:"camera"`
	Log      LogConfig      `yaml:"log"`
}

// DeviceConfig identifies this device. Each device instance governs exactly
// one spot.
type DeviceConfig struct {
	StationID  string `yaml:"station_id"`
	SpotNumber int    `yaml:"spot_number"`
}

// SinkConfig describes the vision-processing node that receives frames.
type SinkConfig struct {
	Protocol          string  `yaml:"protocol"`
	Host              string  `yaml:"host"`
	Port              int     `yaml:"port"`
	Endpoint          string  `yaml:"endpoint"`
	TimeoutSeconds    float64 `yaml:"timeout_seconds"`
	MaxAttempts       int     `yaml:"max_attempts"`
	BackoffSeconds    float64 `yaml:"backoff_seconds"`
	MaxBackoffSeconds float64 `yaml:"max_backoff_seconds"`
}

// URL returns the full endpoint URL for frame uploads.
func (s SinkConfig) URL() string {
	return fmt.Sprintf("%s://%s:%d%s", s.Protocol, s.Host, s.Port, s.Endpoint)
}

// Timeout returns the per-attempt request timeout.
func (s SinkConfig) Timeout() time.Duration { return secs(s.TimeoutSeconds) }

// Backoff returns the base retry backoff.
func (s SinkConfig) Backoff() time.Duration { return secs(s.BackoffSeconds) }

// MaxBackoff returns the retry backoff ceiling.
func (s SinkConfig) MaxBackoff() time.Duration { return secs(s.MaxBackoffSeconds) }

// SensorConfig describes the ToF distance sensor and classification
// thresholds.
type SensorConfig struct {
	Enabled         bool             `yaml:"enabled"`
	Port            string           `yaml:"port"`
	BaudRate        int              `yaml:"baud_rate"`
	FrequencyHz     float64          `yaml:"frequency_hz"`
	SmoothingWindow int              `yaml:"smoothing_window"`
	Thresholds      ThresholdsConfig `yaml:"thresholds"`
}

// SampleInterval returns the nominal spacing between sensor samples.
func (s SensorConfig) SampleInterval() time.Duration {
	if s.FrequencyHz <= 0 {
		return time.Second
	}
	return time.Duration(float64(time.Second) / s.FrequencyHz)
}

// ThresholdsConfig holds the hysteresis band. A vehicle is detected when the
// smoothed distance drops below VehiclePresentMM and released when it rises
// above VehicleAbsentMM; readings between the two never change state.
type ThresholdsConfig struct {
	VehiclePresentMM float64 `yaml:"vehicle_present_mm"`
	VehicleAbsentMM  float64 `yaml:"vehicle_absent_mm"`
}

// TriggersConfig holds per-policy capture timing.
type TriggersConfig struct {
	Entry    EntryTriggerConfig    `yaml:"entry"`
	Exit     ExitTriggerConfig     `yaml:"exit"`
	Periodic PeriodicTriggerConfig `yaml:"periodic"`
}

// EntryTriggerConfig configures the entry burst.
type EntryTriggerConfig struct {
	Enabled             bool    `yaml:"enabled"`
	SendDurationSeconds float64 `yaml:"send_duration_seconds"`
	SendIntervalSeconds float64 `yaml:"send_interval_seconds"`
}

// SendDuration returns how long the entry burst runs.
func (e EntryTriggerConfig) SendDuration() time.Duration { return secs(e.SendDurationSeconds) }

// SendInterval returns the spacing of entry-burst captures.
func (e EntryTriggerConfig) SendInterval() time.Duration { return secs(e.SendIntervalSeconds) }

// ExitTriggerConfig configures the exit confirmation shot.
type ExitTriggerConfig struct {
	Enabled bool `yaml:"enabled"`
}

// PeriodicTriggerConfig configures periodic re-verification while a vehicle
// stays parked.
type PeriodicTriggerConfig struct {
	Enabled             bool    `yaml:"enabled"`
	IntervalSeconds     float64 `yaml:"interval_seconds"`
	SendDurationSeconds float64 `yaml:"send_duration_seconds"`
	SendIntervalSeconds float64 `yaml:"send_interval_seconds"`
}

// Interval returns the period between verification windows.
func (p PeriodicTriggerConfig) Interval() time.Duration { return secs(p.IntervalSeconds) }

// SendDuration returns the length of one verification window.
func (p PeriodicTriggerConfig) SendDuration() time.Duration { return secs(p.SendDurationSeconds) }

// SendInterval returns the spacing of captures within a window.
func (p PeriodicTriggerConfig) SendInterval() time.Duration { return secs(p.SendIntervalSeconds) }

// FallbackConfig configures fixed-interval capture for installs without a
// working sensor.
type FallbackConfig struct {
	Enabled         bool    `yaml:"enabled"`
	IntervalSeconds float64 `yaml:"interval_seconds"`
}

// Interval returns the fallback capture period.
func (f FallbackConfig) Interval() time.Duration { return secs(f.IntervalSeconds) }

// QueueConfig bounds the outbound frame queue.
type QueueConfig struct {
	Capacity int `yaml:"capacity"`
}

// CameraConfig describes how to obtain a still frame. When Command is empty
// the daemon uses the built-in synthetic camera (simulation mode).
type CameraConfig struct {
	Command        []string `yaml:"command"`
	TimeoutSeconds float64  `yaml:"timeout_seconds"`
	Width          int      `yaml:"width"`
	Height         int      `yaml:"height"`
}

// Timeout returns how long one capture may take.
func (c CameraConfig) Timeout() time.Duration { return secs(c.TimeoutSeconds) }

// LogConfig locates the local event log database.
type LogConfig struct {
	Database string `yaml:"database"`
}

func secs(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// Default returns the configuration used when fields are omitted from the
// file. Thresholds and timing follow the original deployment values.
func Default() *Config {
	return &Config{
		Device: DeviceConfig{StationID: "station-001", SpotNumber: 1},
		Sink: SinkConfig{
			Protocol:          "http",
			Host:              "192.168.1.100",
			Port:              5000,
			Endpoint:          "/receive_image",
			TimeoutSeconds:    10,
			MaxAttempts:       5,
			BackoffSeconds:    1,
			MaxBackoffSeconds: 30,
		},
		Sensor: SensorConfig{
			Enabled:         true,
			Port:            "/dev/ttyAMA0",
			BaudRate:        115200,
			FrequencyHz:     10,
			SmoothingWindow: 5,
			Thresholds: ThresholdsConfig{
				VehiclePresentMM: 1000,
				VehicleAbsentMM:  2000,
			},
		},
		Triggers: TriggersConfig{
			Entry:    EntryTriggerConfig{Enabled: true, SendDurationSeconds: 180, SendIntervalSeconds: 1},
			Exit:     ExitTriggerConfig{Enabled: true},
			Periodic: PeriodicTriggerConfig{Enabled: true, IntervalSeconds: 300, SendDurationSeconds: 10, SendIntervalSeconds: 1},
		},
		Fallback: FallbackConfig{Enabled: false, IntervalSeconds: 60},
		Queue:    QueueConfig{Capacity: 32},
		Camera:   CameraConfig{TimeoutSeconds: 5, Width: 640, Height: 480},
		Log:      LogConfig{Database: "spot_events.db"},
	}
}

// Load reads a YAML config file over the defaults. Fields omitted from the
// file keep their default values, so partial configs are safe.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("config file must have .yaml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration values are consistent. An
// inconsistent hysteresis band is rejected outright: the no-chatter guarantee
// cannot hold with vehicle_present_mm >= vehicle_absent_mm.
func (c *Config) Validate() error {
	if c.Device.StationID == "" {
		return fmt.Errorf("device.station_id must not be empty")
	}
	if c.Device.SpotNumber < 0 {
		return fmt.Errorf("device.spot_number must be non-negative, got %d", c.Device.SpotNumber)
	}

	t := c.Sensor.Thresholds
	if t.VehiclePresentMM <= 0 || t.VehicleAbsentMM <= 0 {
		return fmt.Errorf("distance thresholds must be positive, got present=%v absent=%v",
			t.VehiclePresentMM, t.VehicleAbsentMM)
	}
	if t.VehiclePresentMM >= t.VehicleAbsentMM {
		return fmt.Errorf("vehicle_present_mm (%v) must be strictly below vehicle_absent_mm (%v)",
			t.VehiclePresentMM, t.VehicleAbsentMM)
	}

	if c.Sensor.SmoothingWindow < 1 {
		return fmt.Errorf("sensor.smoothing_window must be at least 1, got %d", c.Sensor.SmoothingWindow)
	}
	if c.Sensor.FrequencyHz <= 0 {
		return fmt.Errorf("sensor.frequency_hz must be positive, got %v", c.Sensor.FrequencyHz)
	}

	if c.Triggers.Entry.Enabled {
		if c.Triggers.Entry.SendDurationSeconds <= 0 || c.Triggers.Entry.SendIntervalSeconds <= 0 {
			return fmt.Errorf("triggers.entry duration and interval must be positive")
		}
	}
	if c.Triggers.Periodic.Enabled {
		if c.Triggers.Periodic.IntervalSeconds <= 0 ||
			c.Triggers.Periodic.SendDurationSeconds <= 0 ||
			c.Triggers.Periodic.SendIntervalSeconds <= 0 {
			return fmt.Errorf("triggers.periodic interval, duration and send interval must be positive")
		}
	}
	if c.Fallback.Enabled && c.Fallback.IntervalSeconds <= 0 {
		return fmt.Errorf("fallback.interval_seconds must be positive when fallback is enabled")
	}

	if c.Queue.Capacity < 1 {
		return fmt.Errorf("queue.capacity must be at least 1, got %d", c.Queue.Capacity)
	}
	if c.Sink.MaxAttempts < 1 {
		return fmt.Errorf("sink.max_attempts must be at least 1, got %d", c.Sink.MaxAttempts)
	}
	if c.Sink.Host == "" || c.Sink.Port <= 0 {
		return fmt.Errorf("sink.host and sink.port are required")
	}
	return nil
}
