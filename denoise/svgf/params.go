package svgf

// Root constant blocks, one per kernel. Fields are 32-bit so the structs
// serialize to the root constant ABI without padding.

type textureDimParams struct {
	Width  uint32
	Height uint32
}

type localMeanVarianceParams struct {
	Width        uint32
	Height       uint32
	KernelWidth  uint32
	Checkerboard uint32
	Parity       uint32
}

type fillCheckerboardParams struct {
	Width  uint32
	Height uint32
	Parity uint32
}

type reprojectParams struct {
	Width              uint32
	Height             uint32
	HasHistory         uint32
	DepthTolerance     float32
	NormalDotThreshold float32
}

type blendParams struct {
	Width                        uint32
	Height                       uint32
	Checkerboard                 uint32
	Parity                       uint32
	MinSmoothingFactor           float32
	MaxTspp                      uint32
	ClampCachedValues            uint32
	ClampStdDevGamma             float32
	ClampMinStdDev               float32
	MinTsppToUseTemporalVariance uint32
	BlurStrengthMaxTspp          uint32
	BlurDecayStrength            float32
}

type atrousParams struct {
	Width                uint32
	Height               uint32
	Step                 uint32
	ValueSigma           float32
	DepthSigma           float32
	NormalSigma          float32
	HitDistanceSigma     float32
	MinVarianceToDenoise float32
}

type disocclusionBlurParams struct {
	Width      uint32
	Height     uint32
	Step       uint32
	DepthSigma float32
}

func boolToUint(v bool) uint32 {
	if v {
		return 1
	}
	return 0
}
