package svgf

import "fmt"

// Settings tune the filter chain. The zero value is not usable; start from
// DefaultSettings.
type Settings struct {
	// Trace half the pixels per frame in an alternating pattern. The gaps
	// are always reconstructed by the fill pass.
	CheckerboardSampling bool `toml:"checkerboard_sampling"`

	// Reverse reprojection.
	DepthTolerance     float32 `toml:"depth_tolerance"`
	NormalDotThreshold float32 `toml:"normal_dot_threshold"`

	// Local mean/variance window width in pixels (odd).
	VarianceKernelWidth uint32 `toml:"variance_kernel_width"`

	// Temporal blend.
	MinSmoothingFactor           float32 `toml:"min_smoothing_factor"`
	MaxTspp                      uint32  `toml:"max_tspp"`
	ClampCachedValues            bool    `toml:"clamp_cached_values"`
	ClampStdDevGamma             float32 `toml:"clamp_std_dev_gamma"`
	ClampMinStdDev               float32 `toml:"clamp_min_std_dev"`
	MinTsppToUseTemporalVariance uint32  `toml:"min_tspp_to_use_temporal_variance"`
	BlurStrengthMaxTspp          uint32  `toml:"blur_strength_max_tspp"`
	BlurDecayStrength            float32 `toml:"blur_decay_strength"`

	// Edge stopping wavelet filter.
	AtrousPasses         uint32  `toml:"atrous_passes"`
	ValueSigma           float32 `toml:"value_sigma"`
	DepthSigma           float32 `toml:"depth_sigma"`
	NormalSigma          float32 `toml:"normal_sigma"`
	HitDistanceSigma     float32 `toml:"hit_distance_sigma"`
	MinVarianceToDenoise float32 `toml:"min_variance_to_denoise"`

	// Disocclusion blur.
	DisocclusionBlurPasses uint32  `toml:"disocclusion_blur_passes"`
	DisocclusionDepthSigma float32 `toml:"disocclusion_depth_sigma"`
}

// DefaultSettings returns the settings used when nothing else is configured.
func DefaultSettings() Settings {
	return Settings{
		CheckerboardSampling: false,

		DepthTolerance:     0.05,
		NormalDotThreshold: 0.9,

		VarianceKernelWidth: 9,

		MinSmoothingFactor:           0.03,
		MaxTspp:                      33,
		ClampCachedValues:            true,
		ClampStdDevGamma:             0.6,
		ClampMinStdDev:               0.05,
		MinTsppToUseTemporalVariance: 4,
		BlurStrengthMaxTspp:          12,
		BlurDecayStrength:            1,

		AtrousPasses:         1,
		ValueSigma:           1,
		DepthSigma:           1,
		NormalSigma:          64,
		HitDistanceSigma:     1,
		MinVarianceToDenoise: 0,

		DisocclusionBlurPasses: 3,
		DisocclusionDepthSigma: 0.05,
	}
}

// Validate checks the settings for values the kernels cannot handle.
func (s Settings) Validate() error {
	switch {
	case s.CheckerboardSampling && s.DisocclusionBlurPasses == 0:
		return ErrCheckerboardNeedsBlur
	case s.MaxTspp == 0 || s.MaxTspp > 255:
		return fmt.Errorf("%w: max_tspp must be in [1, 255]; got %d", ErrInvalidSettings, s.MaxTspp)
	case s.BlurStrengthMaxTspp == 0:
		return fmt.Errorf("%w: blur_strength_max_tspp must be positive", ErrInvalidSettings)
	case s.MinSmoothingFactor < 0 || s.MinSmoothingFactor > 1:
		return fmt.Errorf("%w: min_smoothing_factor must be in [0, 1]; got %f", ErrInvalidSettings, s.MinSmoothingFactor)
	case s.VarianceKernelWidth == 0 || s.VarianceKernelWidth%2 == 0:
		return fmt.Errorf("%w: variance_kernel_width must be odd; got %d", ErrInvalidSettings, s.VarianceKernelWidth)
	case s.AtrousPasses > 8 || s.DisocclusionBlurPasses > 8:
		return fmt.Errorf("%w: at most 8 filter passes are supported", ErrInvalidSettings)
	case s.DepthTolerance <= 0 || s.DepthSigma <= 0 || s.ValueSigma <= 0 || s.HitDistanceSigma <= 0 || s.DisocclusionDepthSigma <= 0:
		return fmt.Errorf("%w: tolerances and sigmas must be positive", ErrInvalidSettings)
	}
	return nil
}
