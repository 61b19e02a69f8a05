package rtao

import (
	"fmt"

	"github.com/achilleasa/rtdenoise/denoise/svgf"
)

// Settings configure the ambient occlusion rays and the filter that
// denoises them.
type Settings struct {
	SamplesPerPixel uint32 `toml:"samples_per_pixel"`

	// Occluders further away than this do not contribute.
	MaxRayHitTime float32 `toml:"max_ray_hit_time"`

	// Fade the contribution of distant occluders with
	// exp(-decay * (t / MaxRayHitTime)^2).
	ApplyExponentialFalloff bool    `toml:"apply_exponential_falloff"`
	FalloffDecayConstant    float32 `toml:"falloff_decay_constant"`

	// Lower bound of the traced coefficient.
	MinimumAmbientIllumination float32 `toml:"minimum_ambient_illumination"`

	Denoiser svgf.Settings `toml:"denoiser"`
}

func DefaultSettings() Settings {
	return Settings{
		SamplesPerPixel:            1,
		MaxRayHitTime:              22,
		ApplyExponentialFalloff:    true,
		FalloffDecayConstant:       20,
		MinimumAmbientIllumination: 0.07,
		Denoiser:                   svgf.DefaultSettings(),
	}
}

func (s Settings) Validate() error {
	switch {
	case s.SamplesPerPixel == 0 || s.SamplesPerPixel > 64:
		return fmt.Errorf("%w: samples_per_pixel must be in [1, 64]; got %d", ErrInvalidSettings, s.SamplesPerPixel)
	case s.MaxRayHitTime <= 0:
		return fmt.Errorf("%w: max_ray_hit_time must be positive", ErrInvalidSettings)
	case s.FalloffDecayConstant < 0:
		return fmt.Errorf("%w: falloff_decay_constant must not be negative", ErrInvalidSettings)
	case s.MinimumAmbientIllumination < 0 || s.MinimumAmbientIllumination > 1:
		return fmt.Errorf("%w: minimum_ambient_illumination must be in [0, 1]", ErrInvalidSettings)
	}
	return s.Denoiser.Validate()
}
