package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	if got := cfg.StateLen(); got != 59 {
		t.Fatalf("StateLen = %d, want 59", got)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	t.Setenv(EnvENBCount, "")
	t.Setenv(EnvAuditFile, "")
	t.Setenv(EnvMetricsAddr, "")

	path := filepath.Join(t.TempDir(), "analyzer.yaml")
	body := "enb_count: 7\ndistance_gap_policy: skip\naudit_file: /tmp/q.txt\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 7, cfg.ENBCount)
	require.Equal(t, "skip", cfg.DistanceGapPolicy)
	require.Equal(t, "/tmp/q.txt", cfg.AuditFile)
	// untouched keys keep their defaults
	require.Equal(t, 11, cfg.FeatureWidth)
	require.InDelta(t, 50000, cfg.RewardScale, 0)
}

func TestLoadEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.yaml")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, Defaults().ENBCount, cfg.ENBCount)
}

func TestLoadRejectsUnknownKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("enb_cuont: 3\n"), 0o644))

	_, err := Load(path)
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv(EnvENBCount, "3")
	t.Setenv(EnvAuditFile, "audit.txt")
	t.Setenv(EnvMetricsAddr, ":9100")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 3, cfg.ENBCount)
	require.Equal(t, "audit.txt", cfg.AuditFile)
	require.Equal(t, ":9100", cfg.MetricsAddr)
}

func TestEnvOverrideBadNumber(t *testing.T) {
	t.Setenv(EnvENBCount, "five")
	if _, err := Load(""); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"zero cells":        func(c *Config) { c.ENBCount = 0 },
		"narrow block":      func(c *Config) { c.FeatureWidth = 10 },
		"descriptors":       func(c *Config) { c.EpisodeDescriptors = 3 },
		"ue upper":          func(c *Config) { c.UEUpperCount = 0 },
		"handover divisor":  func(c *Config) { c.HandoverDivisor = 0 },
		"reward scale":      func(c *Config) { c.RewardScale = -1 },
		"unknown gap value": func(c *Config) { c.DistanceGapPolicy = "interpolate" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Defaults()
			mutate(&cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
				t.Fatalf("expected ErrInvalid, got %v", err)
			}
		})
	}
}
