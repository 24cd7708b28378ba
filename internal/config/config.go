// Package config loads analyzer settings from a YAML file with environment
// overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Environment variables that override file values.
const (
	EnvENBCount    = "ANALYTICS_ENB_COUNT"
	EnvAuditFile   = "ANALYTICS_AUDIT_FILE"
	EnvMetricsAddr = "ANALYTICS_METRICS_ADDR"
)

// Config holds the shape of the state vector, the scaling constants and the
// output locations.
type Config struct {
	ENBCount           int     `yaml:"enb_count"`
	FeatureWidth       int     `yaml:"feature_width"`
	EpisodeDescriptors int     `yaml:"episode_descriptors"`
	UEUpperCount       int     `yaml:"ue_upper_count"`
	HandoverDivisor    float64 `yaml:"handover_divisor"`
	UserDivisor        float64 `yaml:"user_divisor"`
	RewardScale        float64 `yaml:"reward_scale"`

	// DistanceGapPolicy is "seed" or "skip".
	DistanceGapPolicy string `yaml:"distance_gap_policy"`

	AuditFile   string `yaml:"audit_file"`
	EventsFile  string `yaml:"events_file"`
	MetricsAddr string `yaml:"metrics_addr"`
}

// Defaults returns the configuration used when no file is given.
func Defaults() Config {
	return Config{
		ENBCount:           5,
		FeatureWidth:       11,
		EpisodeDescriptors: 4,
		UEUpperCount:       18,
		HandoverDivisor:    100,
		UserDivisor:        10,
		RewardScale:        50000,
		DistanceGapPolicy:  "seed",
		AuditFile:          "output/qualityValues.txt",
		EventsFile:         "output/simulatorFile.txt",
	}
}

// Load reads path over Defaults, applies environment overrides and
// validates the result. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %q: %w", path, err)
		}
		if err := Parse(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("config %q: %w", path, err)
		}
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse decodes YAML into cfg; keys absent from raw keep their current value.
// Unknown keys are rejected.
func Parse(raw []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		// an empty document leaves cfg untouched
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// ApplyEnv overrides fields from the ANALYTICS_* variables returned by
// getenv.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if raw := getenv(EnvENBCount); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("%w: %s=%q: %v", ErrInvalid, EnvENBCount, raw, err)
		}
		c.ENBCount = n
	}
	if raw := getenv(EnvAuditFile); raw != "" {
		c.AuditFile = raw
	}
	if raw := getenv(EnvMetricsAddr); raw != "" {
		c.MetricsAddr = raw
	}
	return nil
}

// Validate reports the first inconsistent field.
func (c Config) Validate() error {
	switch {
	case c.ENBCount <= 0:
		return fmt.Errorf("%w: enb_count must be positive, got %d", ErrInvalid, c.ENBCount)
	case c.FeatureWidth < 11:
		return fmt.Errorf("%w: feature_width must be at least 11, got %d", ErrInvalid, c.FeatureWidth)
	case c.EpisodeDescriptors != 4:
		return fmt.Errorf("%w: episode_descriptors must be 4, got %d", ErrInvalid, c.EpisodeDescriptors)
	case c.UEUpperCount <= 0:
		return fmt.Errorf("%w: ue_upper_count must be positive, got %d", ErrInvalid, c.UEUpperCount)
	case c.HandoverDivisor <= 0 || c.UserDivisor <= 0:
		return fmt.Errorf("%w: divisors must be positive", ErrInvalid)
	case c.RewardScale <= 0:
		return fmt.Errorf("%w: reward_scale must be positive, got %v", ErrInvalid, c.RewardScale)
	}
	switch c.DistanceGapPolicy {
	case "seed", "skip":
	default:
		return fmt.Errorf("%w: distance_gap_policy must be seed or skip, got %q", ErrInvalid, c.DistanceGapPolicy)
	}
	return nil
}

// StateLen is the length of the state vector this configuration produces.
func (c Config) StateLen() int {
	return c.ENBCount*c.FeatureWidth + c.EpisodeDescriptors
}
