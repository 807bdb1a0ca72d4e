// Package config loads and validates the daemon configuration.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the complete crowdsensed configuration.
type Config struct {
	InstanceID       string         `yaml:"instance_id"`
	ShutdownTimeoutS int            `yaml:"shutdown_timeout_s"` // graceful shutdown timeout (default: 5)
	Detector         DetectorConfig `yaml:"detector"`
	Stream           StreamConfig   `yaml:"stream"`
	MQTT             MQTTConfig     `yaml:"mqtt"`
	Journal          JournalConfig  `yaml:"journal"`
}

// DetectorConfig contains detection settings.
type DetectorConfig struct {
	// Sensitivity is the user-facing sensitivity, 1 (least) .. 256 (most).
	Sensitivity int `yaml:"sensitivity"`
	// DetectedAreaThreshold is the reporting threshold in percent.
	DetectedAreaThreshold float64 `yaml:"detected_area_threshold"`
	// AutoSensitivityOnStart opens a calibration window at startup.
	AutoSensitivityOnStart bool `yaml:"auto_sensitivity_on_start"`
}

// StreamConfig contains frame intake settings.
type StreamConfig struct {
	// Source is a path to an MJPEG file or FIFO; "-" reads stdin.
	Source string `yaml:"source"`
	// StatsIntervalS is the period of the stats log line (default: 10).
	StatsIntervalS int `yaml:"stats_interval_s"`
}

// MQTTConfig contains broker settings. An empty broker disables the
// emitter.
type MQTTConfig struct {
	Broker string     `yaml:"broker"`
	Topics MQTTTopics `yaml:"topics"`
	QoS    byte       `yaml:"qos"`
}

// MQTTTopics contains topic names.
type MQTTTopics struct {
	Detections      string `yaml:"detections"`
	AutoSensitivity string `yaml:"auto_sensitivity"`
}

// JournalConfig contains the on-disk event journal settings. An empty
// directory disables the journal.
type JournalConfig struct {
	Dir string `yaml:"dir"`
}

// Load reads and parses a YAML configuration file, applies defaults and
// validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.InstanceID == "" {
		c.InstanceID = "crowdsense"
	}
	if c.ShutdownTimeoutS == 0 {
		c.ShutdownTimeoutS = 5
	}
	if c.Detector.Sensitivity == 0 {
		c.Detector.Sensitivity = 1
	}
	if c.Detector.DetectedAreaThreshold == 0 {
		c.Detector.DetectedAreaThreshold = 10.0
	}
	if c.Stream.StatsIntervalS == 0 {
		c.Stream.StatsIntervalS = 10
	}
	if c.MQTT.Topics.Detections == "" {
		c.MQTT.Topics.Detections = "crowdsense/detections"
	}
	if c.MQTT.Topics.AutoSensitivity == "" {
		c.MQTT.Topics.AutoSensitivity = "crowdsense/auto_sensitivity"
	}
}
