package config

import (
	"fmt"
	"regexp"
)

var instanceIDPattern = regexp.MustCompile(`^[a-z0-9\-]+$`)

// Validate checks if the configuration is valid
func Validate(cfg *Config) error {
	if cfg.InstanceID == "" {
		return fmt.Errorf("instance_id is required")
	}
	if !instanceIDPattern.MatchString(cfg.InstanceID) {
		return fmt.Errorf("instance_id must match pattern [a-z0-9-]+")
	}

	if cfg.Detector.Sensitivity < 1 || cfg.Detector.Sensitivity > 256 {
		return fmt.Errorf("detector.sensitivity must be in 1..256, got %d", cfg.Detector.Sensitivity)
	}
	if cfg.Detector.DetectedAreaThreshold < 0.0 || cfg.Detector.DetectedAreaThreshold > 100.0 {
		return fmt.Errorf("detector.detected_area_threshold must be in 0..100, got %g",
			cfg.Detector.DetectedAreaThreshold)
	}

	if cfg.Stream.Source == "" {
		return fmt.Errorf("stream.source is required")
	}
	if cfg.Stream.StatsIntervalS <= 0 {
		return fmt.Errorf("stream.stats_interval_s must be > 0")
	}

	if cfg.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", cfg.MQTT.QoS)
	}

	return nil
}
