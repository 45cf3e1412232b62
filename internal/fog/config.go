// Package fog renders a fog-of-war visibility mask on a compute device.
//
// Visibility sources are mirrored in a SightSet, rasterized each update into
// the raw mask of a MaskSet, blended into the temporal mask and resolved into
// the final mask, which a directional light projects onto the world.
package fog

import (
	"errors"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

const (
	// MaxSights is the default number of visibility slots.
	MaxSights = 128
	// TileSize is the side of the 2D work group used by the mask kernels.
	TileSize = 8
	// BatchSize is the number of sources handled by one sight work group.
	BatchSize = 64
)

var (
	ErrConfig           = errors.New("fog: invalid configuration")
	ErrResolution       = errors.New("fog: resolution must be a positive multiple of 8")
	ErrNavigationMask   = errors.New("fog: navigation mask does not match resolution")
	ErrLightType        = errors.New("fog: light must be directional")
	ErrLightOrientation = errors.New("fog: light must point straight down")
)

// Config is the fog field configuration. It is fixed at activation except
// for Resolution, which Controller.Resize may change.
type Config struct {
	// Resolution is the mask side length in texels.
	Resolution int `toml:"resolution"`
	// WorldSize is the world-space side length covered by the mask.
	WorldSize float32 `toml:"world_size"`
	// TemporalAmount is the fraction of the new raw mask blended into the
	// temporal mask per update.
	TemporalAmount float32 `toml:"temporal_amount"`
	// UpdateInterval is the minimum time in seconds between two updates.
	UpdateInterval float64 `toml:"update_interval"`
	// Capacity is the number of visibility slots.
	Capacity int `toml:"capacity"`
}

// DefaultConfig returns the stock configuration.
func DefaultConfig() Config {
	return Config{
		Resolution:     512,
		WorldSize:      128,
		TemporalAmount: 0.5,
		UpdateInterval: 0.02,
		Capacity:       MaxSights,
	}
}

// LoadConfig reads a TOML file over DefaultConfig and validates the result.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("fog: read config %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("fog: parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("fog: config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	if err := validateResolution(c.Resolution); err != nil {
		return err
	}
	if !(c.WorldSize > 0) {
		return fmt.Errorf("%w: world size %v must be positive", ErrConfig, c.WorldSize)
	}
	if !(c.TemporalAmount >= 0 && c.TemporalAmount <= 1) {
		return fmt.Errorf("%w: temporal amount %v outside [0,1]", ErrConfig, c.TemporalAmount)
	}
	if !(c.UpdateInterval >= 0) {
		return fmt.Errorf("%w: update interval %v must not be negative", ErrConfig, c.UpdateInterval)
	}
	if c.Capacity <= 0 || c.Capacity%BatchSize != 0 {
		return fmt.Errorf("%w: capacity %d must be a positive multiple of %d", ErrConfig, c.Capacity, BatchSize)
	}
	return nil
}

// Scale is the world-space size of one texel.
func (c Config) Scale() float32 {
	return c.WorldSize / float32(c.Resolution)
}

func validateResolution(resolution int) error {
	if resolution <= 0 || resolution%TileSize != 0 {
		return fmt.Errorf("%w: got %d", ErrResolution, resolution)
	}
	return nil
}
