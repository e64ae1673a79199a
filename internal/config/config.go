// Package config loads process configuration by layering defaults, an
// optional YAML file, and MUDRA_-prefixed environment variables.
package config

import (
	"errors"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config contains process configuration.
type Config struct {
	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// CameraID selects the capture device.
	CameraID int `koanf:"camera_id"`

	// DBPath overrides the session database location. Empty uses
	// ~/.mudra/mudra.db.
	DBPath string `koanf:"db_path"`

	// TickRate is the orchestration tick frequency in Hz.
	TickRate int `koanf:"tick_rate"`

	// TargetFPS is the detection throughput the adaptive scheduler aims
	// for, independent of the tick rate.
	TargetFPS int `koanf:"target_fps"`

	// MaxHands bounds simultaneously tracked hand slots.
	MaxHands int `koanf:"max_hands"`

	// MotionThreshold is the percentage of changed pixels that counts as
	// scene motion for the idle gate.
	MotionThreshold float64 `koanf:"motion_threshold"`

	// IdleTimeoutMS is how long without motion before the pipeline
	// downshifts to its idle cadence.
	IdleTimeoutMS int `koanf:"idle_timeout_ms"`

	// SlotTimeoutMS is how long a hand slot may be absent before its
	// filter and predictor state is released.
	SlotTimeoutMS int `koanf:"slot_timeout_ms"`

	// Filter tunes the landmark smoothing channels.
	Filter FilterConfig `koanf:"filter"`

	// ROI tunes the search-region predictor.
	ROI ROIConfig `koanf:"roi"`

	// MaxFeatures bounds ORB keypoints per frame for region tracking.
	MaxFeatures int `koanf:"max_features"`

	// ArchiveBatchSize is how many frames accumulate before a session
	// archive flush.
	ArchiveBatchSize int `koanf:"archive_batch_size"`
}

// FilterConfig mirrors filter.Config for file/env loading.
type FilterConfig struct {
	MinCutoff float64 `koanf:"min_cutoff"`
	Beta      float64 `koanf:"beta"`
	DCutoff   float64 `koanf:"dcutoff"`
}

// ROIConfig mirrors roi.Config for file/env loading.
type ROIConfig struct {
	MinSize             float64 `koanf:"min_size"`
	MaxSize             float64 `koanf:"max_size"`
	VelocityMultiplier  float64 `koanf:"velocity_multiplier"`
	MovementThreshold   float64 `koanf:"movement_threshold"`
	MaxFullFrameDelayMS int     `koanf:"max_full_frame_delay_ms"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Addr:            ":8080",
		CameraID:        0,
		TickRate:        60,
		TargetFPS:       30,
		MaxHands:        2,
		MotionThreshold: 1.0,
		IdleTimeoutMS:   2000,
		SlotTimeoutMS:   1000,
		Filter: FilterConfig{
			MinCutoff: 1.0,
			Beta:      0.007,
			DCutoff:   1.0,
		},
		ROI: ROIConfig{
			MinSize:             0.2,
			MaxSize:             0.5,
			VelocityMultiplier:  0.5,
			MovementThreshold:   0.03,
			MaxFullFrameDelayMS: 500,
		},
		MaxFeatures:      500,
		ArchiveBatchSize: 30,
	}
}

// Load builds a Config by layering defaults, an optional YAML file named by
// MUDRA_CONFIG, and MUDRA_* environment variables (highest precedence).
func Load() (*Config, error) {
	base := Default()

	k := koanf.New(".")

	if path := os.Getenv("MUDRA_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, err
		}
	}

	// MUDRA_ADDR -> addr, MUDRA_FILTER.BETA is not expressible in env,
	// so nested keys use double underscores: MUDRA_FILTER__BETA.
	envProvider := env.Provider("MUDRA_", ".", func(s string) string {
		s = strings.ToLower(s)
		s = strings.TrimPrefix(s, "mudra_")
		return strings.ReplaceAll(s, "__", ".")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, err
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Addr == "" {
		return errors.New("addr must not be empty")
	}
	if c.TickRate <= 0 {
		return errors.New("tick_rate must be positive")
	}
	if c.TargetFPS <= 0 || c.TargetFPS > c.TickRate {
		return errors.New("target_fps must be positive and at most tick_rate")
	}
	if c.MaxHands <= 0 {
		return errors.New("max_hands must be positive")
	}
	if c.ROI.MinSize <= 0 || c.ROI.MaxSize < c.ROI.MinSize || c.ROI.MaxSize > 1 {
		return errors.New("roi sizes must satisfy 0 < min_size <= max_size <= 1")
	}
	return nil
}
