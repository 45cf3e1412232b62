package fog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fog.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfigOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
resolution = 256
temporal_amount = 0.25
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 256, cfg.Resolution)
	assert.Equal(t, float32(0.25), cfg.TemporalAmount)
	assert.Equal(t, float32(128), cfg.WorldSize)
	assert.Equal(t, 0.02, cfg.UpdateInterval)
	assert.Equal(t, MaxSights, cfg.Capacity)
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, "resolution = 513\n"))
	assert.True(t, errors.Is(err, ErrResolution))

	_, err = LoadConfig(writeConfig(t, "capacity = 100\n"))
	assert.True(t, errors.Is(err, ErrConfig))

	_, err = LoadConfig(writeConfig(t, "resolution = \"big\"\n"))
	assert.Error(t, err)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "absent.toml"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		want   error
	}{
		{"default", func(*Config) {}, nil},
		{"zero temporal", func(c *Config) { c.TemporalAmount = 0 }, nil},
		{"zero interval", func(c *Config) { c.UpdateInterval = 0 }, nil},
		{"resolution", func(c *Config) { c.Resolution = 12 }, ErrResolution},
		{"world size", func(c *Config) { c.WorldSize = 0 }, ErrConfig},
		{"temporal", func(c *Config) { c.TemporalAmount = 1.5 }, ErrConfig},
		{"interval", func(c *Config) { c.UpdateInterval = -1 }, ErrConfig},
		{"capacity", func(c *Config) { c.Capacity = 0 }, ErrConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			err := cfg.Validate()
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}
