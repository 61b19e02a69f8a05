package ibl

import (
	"errors"
	"fmt"

	"github.com/achilleasa/rtdenoise/types"
)

var (
	ErrInvalidOptions = errors.New("ibl: invalid options")
)

// Sky is a gradient environment used when no environment image is given.
type Sky struct {
	Horizon types.Vec3 `toml:"horizon"`
	Zenith  types.Vec3 `toml:"zenith"`
	Ground  types.Vec3 `toml:"ground"`
}

// Options control the environment source and the resolution of the baked
// maps.
type Options struct {
	// Path or URL of an equirectangular image. Empty selects Sky.
	Environment string  `toml:"environment"`
	Sky         Sky     `toml:"sky"`
	Intensity   float32 `toml:"intensity"`

	// Widths of the equirectangular maps; heights are half the width.
	EnvironmentWidth  uint32 `toml:"environment_width"`
	IrradianceWidth   uint32 `toml:"irradiance_width"`
	PrefilteredWidth  uint32 `toml:"prefiltered_width"`
	PrefilteredLevels uint32 `toml:"prefiltered_levels"`

	BRDFLUTSize    uint32 `toml:"brdf_lut_size"`
	BRDFLUTSamples uint32 `toml:"brdf_lut_samples"`
}

func DefaultOptions() Options {
	return Options{
		Sky: Sky{
			Horizon: types.XYZ(0.9, 0.9, 0.85),
			Zenith:  types.XYZ(0.3, 0.5, 0.9),
			Ground:  types.XYZ(0.25, 0.22, 0.2),
		},
		Intensity:         1,
		EnvironmentWidth:  128,
		IrradianceWidth:   32,
		PrefilteredWidth:  64,
		PrefilteredLevels: 5,
		BRDFLUTSize:       32,
		BRDFLUTSamples:    64,
	}
}

func (o Options) Validate() error {
	switch {
	case o.EnvironmentWidth < 8 || o.IrradianceWidth < 4 || o.PrefilteredWidth < 4:
		return fmt.Errorf("%w: map widths are too small", ErrInvalidOptions)
	case o.PrefilteredLevels == 0 || o.PrefilteredLevels > 10:
		return fmt.Errorf("%w: prefiltered_levels must be in [1, 10]; got %d", ErrInvalidOptions, o.PrefilteredLevels)
	case o.BRDFLUTSize < 2 || o.BRDFLUTSamples == 0:
		return fmt.Errorf("%w: invalid BRDF LUT resolution", ErrInvalidOptions)
	case o.Intensity < 0:
		return fmt.Errorf("%w: intensity must not be negative", ErrInvalidOptions)
	}
	return nil
}
