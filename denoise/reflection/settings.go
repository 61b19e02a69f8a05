package reflection

import (
	"fmt"

	"github.com/achilleasa/rtdenoise/denoise/svgf"
)

// Settings configure the reflection rays and their filter.
type Settings struct {
	// Maximum distance travelled by reflection rays.
	ReflectionRadius float32 `toml:"reflection_radius"`

	// Offset of shadow ray origins along the hit normal.
	ShadowRayOffset float32 `toml:"shadow_ray_offset"`

	Denoiser svgf.Settings `toml:"denoiser"`
}

func DefaultSettings() Settings {
	denoiser := svgf.DefaultSettings()
	denoiser.AtrousPasses = 2
	denoiser.NormalSigma = 128
	return Settings{
		ReflectionRadius: 100,
		ShadowRayOffset:  0.01,
		Denoiser:         denoiser,
	}
}

func (s Settings) Validate() error {
	switch {
	case s.ReflectionRadius <= 0:
		return fmt.Errorf("%w: reflection_radius must be positive", ErrInvalidSettings)
	case s.ShadowRayOffset < 0:
		return fmt.Errorf("%w: shadow_ray_offset must not be negative", ErrInvalidSettings)
	}
	return s.Denoiser.Validate()
}
