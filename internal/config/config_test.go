package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"riskgate/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := config.DefaultConfig()

	assert.Equal(t, 3, cfg.Ledger.MaxFailedAttempts)
	assert.Equal(t, 24*time.Hour, cfg.Ledger.BlacklistDuration)
	assert.Equal(t, 0.3, cfg.Detection.SuspicionCutoff)
	assert.Equal(t, 3*time.Second, cfg.Detection.ProbeTimeout)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfig(t *testing.T) {
	t.Run("Overrides Defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		data := []byte(`
ledger:
  max_failed_attempts: 5
  blacklist_duration: 1h
detection:
  suspicion_cutoff: 0.5
blacklisted_ips:
  - 104.164.173.0/24
  - 10.0.0.1
banned_geo_locations: [KP]
`)
		require.NoError(t, os.WriteFile(path, data, 0o600))

		cfg, err := config.LoadConfig(path)
		require.NoError(t, err)
		assert.Equal(t, 5, cfg.Ledger.MaxFailedAttempts)
		assert.Equal(t, time.Hour, cfg.Ledger.BlacklistDuration)
		assert.Equal(t, 0.5, cfg.Detection.SuspicionCutoff)
		assert.Equal(t, []string{"104.164.173.0/24", "10.0.0.1"}, cfg.BlacklistedIPs)
		assert.Equal(t, []string{"KP"}, cfg.BannedGeoLocations)
		// untouched sections keep their defaults
		assert.Equal(t, 3.0, cfg.Detection.AutomationThreshold)
	})

	t.Run("Missing File Returns Defaults", func(t *testing.T) {
		cfg, err := config.LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
		require.NotNil(t, cfg)
		assert.Equal(t, 3, cfg.Ledger.MaxFailedAttempts)
	})

	t.Run("Env Overrides", func(t *testing.T) {
		t.Setenv("RISKGATE_REDIS_ADDR", "redis:6379")
		cfg, _ := config.LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		errMsg string
	}{
		{"zero attempts", func(c *config.Config) { c.Ledger.MaxFailedAttempts = 0 }, "max_failed_attempts"},
		{"negative duration", func(c *config.Config) { c.Ledger.BlacklistDuration = -time.Second }, "blacklist_duration"},
		{"cutoff above one", func(c *config.Config) { c.Detection.SuspicionCutoff = 1.5 }, "suspicion_cutoff"},
		{"zero cutoff", func(c *config.Config) { c.Detection.SuspicionCutoff = 0 }, "suspicion_cutoff"},
		{"negative weight", func(c *config.Config) { c.Detection.Weights = map[string]float64{"webdriver": -1} }, "detection.weights.webdriver"},
		{"bad cidr", func(c *config.Config) { c.BlacklistedIPs = []string{"10.0.0.0/99"} }, "invalid CIDR"},
		{"bad ip", func(c *config.Config) { c.BlacklistedIPs = []string{"not-an-ip"} }, "invalid IP"},
		{"empty secret", func(c *config.Config) { c.Token.Secret = "" }, "token.secret"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}
