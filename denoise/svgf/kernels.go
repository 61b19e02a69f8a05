package svgf

import (
	"fmt"
	"strconv"

	"github.com/achilleasa/rtdenoise/gpu/device"
	"github.com/achilleasa/rtdenoise/gpu/shader"
	"github.com/achilleasa/rtdenoise/types"
	"github.com/chewxy/math32"
)

// InvalidValue in channel 0 marks a texel without signal.
const InvalidValue float32 = -1

// Thread group edge length of every filter kernel.
const threadGroupSize = 8

type kernelID int

const (
	kernelDepthDerivative kernelID = iota
	kernelLocalMeanVariance
	kernelFillCheckerboard
	kernelGaussianMeanVariance
	kernelGaussianVariance
	kernelReproject
	kernelBlend
	kernelAtrous
	kernelDisocclusionBlur
	numKernels
)

type kernelDef struct {
	entryPoint string
	params     interface{}
	srvs, uavs int

	// Maps the filtered signal channel count to the kernel CHANNELS define.
	channels func(valueChannels int) int
}

func valueChannels(ch int) int        { return ch }
func meanVarianceChannels(ch int) int { return ch + 1 }
func scalarChannels(int) int          { return 1 }

var kernelDefs = [numKernels]kernelDef{
	kernelDepthDerivative:      {"svgf/CalculatePartialDerivatives", textureDimParams{}, 1, 1, scalarChannels},
	kernelLocalMeanVariance:    {"svgf/CalculateLocalMeanVariance", localMeanVarianceParams{}, 1, 1, valueChannels},
	kernelFillCheckerboard:     {"svgf/FillInCheckerboard", fillCheckerboardParams{}, 0, 1, valueChannels},
	kernelGaussianMeanVariance: {"svgf/GaussianFilter3x3", textureDimParams{}, 1, 1, meanVarianceChannels},
	kernelGaussianVariance:     {"svgf/GaussianFilter3x3", textureDimParams{}, 1, 1, scalarChannels},
	kernelReproject:            {"svgf/TemporalReverseReproject", reprojectParams{}, 8, 3, valueChannels},
	kernelBlend:                {"svgf/TemporalBlendWithCurrentFrame", blendParams{}, 5, 6, valueChannels},
	kernelAtrous:               {"svgf/EdgeStoppingAtrousWaveletTransform", atrousParams{}, 5, 1, valueChannels},
	kernelDisocclusionBlur:     {"svgf/DisocclusionBlur3x3", disocclusionBlurParams{}, 3, 1, valueChannels},
}

var kernelNames = [numKernels]string{
	kernelDepthDerivative:      "DepthPartialDerivative",
	kernelLocalMeanVariance:    "LocalMeanVariance",
	kernelFillCheckerboard:     "FillInCheckerboard",
	kernelGaussianMeanVariance: "SmoothMeanVariance",
	kernelGaussianVariance:     "SmoothVariance",
	kernelReproject:            "ReverseReproject",
	kernelBlend:                "BlendWithCurrentFrame",
	kernelAtrous:               "AtrousWaveletTransform",
	kernelDisocclusionBlur:     "DisocclusionBlur",
}

// Implements Stringer.
func (k kernelID) String() string {
	if k < 0 || k >= numKernels {
		panic(fmt.Sprintf("svgf: unsupported kernel %d", int(k)))
	}
	return kernelNames[k]
}

func init() {
	shader.RegisterCompute("svgf/CalculatePartialDerivatives", func(shader.Defines) (device.ComputeProgram, error) {
		return depthDerivativeKernel{}, nil
	})
	registerChannelKernel("svgf/CalculateLocalMeanVariance", 3, func(ch int) device.ComputeProgram { return localMeanVarianceKernel{channels: ch} })
	registerChannelKernel("svgf/FillInCheckerboard", 3, func(ch int) device.ComputeProgram { return fillCheckerboardKernel{channels: ch} })
	registerChannelKernel("svgf/GaussianFilter3x3", 4, func(ch int) device.ComputeProgram { return gaussianKernel{channels: ch} })
	registerChannelKernel("svgf/TemporalReverseReproject", 3, func(ch int) device.ComputeProgram { return reprojectKernel{channels: ch} })
	registerChannelKernel("svgf/TemporalBlendWithCurrentFrame", 3, func(ch int) device.ComputeProgram { return blendKernel{channels: ch} })
	registerChannelKernel("svgf/EdgeStoppingAtrousWaveletTransform", 3, func(ch int) device.ComputeProgram { return atrousKernel{channels: ch} })
	registerChannelKernel("svgf/DisocclusionBlur3x3", 3, func(ch int) device.ComputeProgram { return disocclusionBlurKernel{channels: ch} })
}

func registerChannelKernel(name string, maxChannels int, build func(ch int) device.ComputeProgram) {
	shader.RegisterCompute(name, func(defines shader.Defines) (device.ComputeProgram, error) {
		ch, err := strconv.Atoi(defines["CHANNELS"])
		if err != nil || ch < 1 || ch > maxChannels {
			return nil, fmt.Errorf("%w: CHANNELS=%q", ErrUnsupportedChannels, defines["CHANNELS"])
		}
		return build(ch), nil
	})
}

type groupSize struct{}

func (groupSize) NumThreads() [3]uint32 {
	return [3]uint32{threadGroupSize, threadGroupSize, 1}
}

// luminance of the first channels of v.
func luminance(v [4]float32, channels int) float32 {
	if channels < 3 {
		return v[0]
	}
	return types.Luminance(types.XYZ(v[0], v[1], v[2]))
}

// activePixel reports whether a checkerboard frame with the given parity
// traces a ray for pixel (x, y).
func activePixel(x, y int, parity uint32) bool {
	return (uint32(x)+uint32(y)+parity)&1 == 0
}

func invalidTexel() [4]float32 {
	return [4]float32{InvalidValue}
}

func normalOf(nd [4]float32) types.Vec3 {
	return types.XYZ(nd[0], nd[1], nd[2])
}

type kernelBindings struct {
	srvs []*device.Resource
	uavs []*device.Resource
}

// bind resolves the SRV and UAV tables that follow the root constants.
func bind(dc *device.DispatchContext, params interface{}, srvs, uavs int) (kernelBindings, error) {
	var b kernelBindings
	if err := dc.Constants(0, params); err != nil {
		return b, err
	}
	for i := 0; i < srvs; i++ {
		res, err := dc.SRV(1 + i)
		if err != nil {
			return b, err
		}
		b.srvs = append(b.srvs, res)
	}
	for i := 0; i < uavs; i++ {
		res, err := dc.UAV(1 + srvs + i)
		if err != nil {
			return b, err
		}
		b.uavs = append(b.uavs, res)
	}
	return b, nil
}

// depthDerivativeKernel computes |dz/dx| and |dz/dy| from the smaller of
// the forward and backward differences so depth edges do not bleed.
type depthDerivativeKernel struct{ groupSize }

func (depthDerivativeKernel) Prepare(dc *device.DispatchContext) (device.ThreadFunc, error) {
	var p textureDimParams
	b, err := bind(dc, &p, 1, 1)
	if err != nil {
		return nil, err
	}
	normalDepth, out := b.srvs[0], b.uavs[0]
	return func(tid [3]uint32) {
		if tid[0] >= p.Width || tid[1] >= p.Height {
			return
		}
		x, y := int(tid[0]), int(tid[1])
		d := normalDepth.Load(x, y)[3]
		if d <= 0 {
			out.Store(x, y, [4]float32{})
			return
		}
		out.Store(x, y, [4]float32{
			depthDelta(d, normalDepth.Load(x-1, y)[3], normalDepth.Load(x+1, y)[3]),
			depthDelta(d, normalDepth.Load(x, y-1)[3], normalDepth.Load(x, y+1)[3]),
		})
	}, nil
}

func depthDelta(d, prev, next float32) float32 {
	best := float32(math32.MaxFloat32)
	if prev > 0 {
		best = math32.Abs(d - prev)
	}
	if next > 0 {
		best = math32.Min(best, math32.Abs(next-d))
	}
	if best == math32.MaxFloat32 {
		return 0
	}
	return best
}

// localMeanVarianceKernel writes the mean of each signal channel and the
// variance of the signal luminance over a square window. In checkerboard
// mode only traced pixels are visited and sampled.
type localMeanVarianceKernel struct {
	groupSize
	channels int
}

func (k localMeanVarianceKernel) Prepare(dc *device.DispatchContext) (device.ThreadFunc, error) {
	var p localMeanVarianceParams
	b, err := bind(dc, &p, 1, 1)
	if err != nil {
		return nil, err
	}
	value, out := b.srvs[0], b.uavs[0]
	radius := int(p.KernelWidth / 2)
	checkerboard := p.Checkerboard != 0
	ch := k.channels

	return func(tid [3]uint32) {
		x, y := int(tid[0]), int(tid[1])
		if checkerboard {
			y = 2*y + int((tid[0]+p.Parity)&1)
		}
		if x >= int(p.Width) || y >= int(p.Height) {
			return
		}
		if value.Load(x, y)[0] < 0 {
			out.Store(x, y, invalidTexel())
			return
		}

		var sum [4]float32
		var lumSum, lumSqSum float32
		var count int
		for j := -radius; j <= radius; j++ {
			for i := -radius; i <= radius; i++ {
				sx, sy := x+i, y+j
				if sx < 0 || sy < 0 || sx >= int(p.Width) || sy >= int(p.Height) {
					continue
				}
				if checkerboard && !activePixel(sx, sy, p.Parity) {
					continue
				}
				v := value.Load(sx, sy)
				if v[0] < 0 {
					continue
				}
				for c := 0; c < ch; c++ {
					sum[c] += v[c]
				}
				l := luminance(v, ch)
				lumSum += l
				lumSqSum += l * l
				count++
			}
		}

		var res [4]float32
		inv := 1 / float32(count)
		for c := 0; c < ch; c++ {
			res[c] = sum[c] * inv
		}
		mean := lumSum * inv
		res[ch] = math32.Max(0, lumSqSum*inv-mean*mean)
		out.Store(x, y, res)
	}, nil
}

// fillCheckerboardKernel reconstructs the mean/variance of pixels skipped
// by checkerboard tracing from their four traced neighbours. It only
// writes skipped pixels and only reads traced ones so it runs in place.
type fillCheckerboardKernel struct {
	groupSize
	channels int
}

var crossOffsets = [4][2]int{{-1, 0}, {1, 0}, {0, -1}, {0, 1}}

func (k fillCheckerboardKernel) Prepare(dc *device.DispatchContext) (device.ThreadFunc, error) {
	var p fillCheckerboardParams
	b, err := bind(dc, &p, 0, 1)
	if err != nil {
		return nil, err
	}
	meanVar := b.uavs[0]
	n := k.channels + 1

	return func(tid [3]uint32) {
		x := int(tid[0])
		y := 2*int(tid[1]) + int((tid[0]+p.Parity+1)&1)
		if x >= int(p.Width) || y >= int(p.Height) {
			return
		}

		var sum [4]float32
		var count int
		for _, off := range crossOffsets {
			sx, sy := x+off[0], y+off[1]
			if sx < 0 || sy < 0 || sx >= int(p.Width) || sy >= int(p.Height) {
				continue
			}
			v := meanVar.Load(sx, sy)
			if v[0] < 0 {
				continue
			}
			for c := 0; c < n; c++ {
				sum[c] += v[c]
			}
			count++
		}
		if count == 0 {
			meanVar.Store(x, y, invalidTexel())
			return
		}
		for c := 0; c < n; c++ {
			sum[c] /= float32(count)
		}
		meanVar.Store(x, y, sum)
	}, nil
}

var gaussian3 = [3]float32{0.25, 0.5, 0.25}

// gaussianKernel applies a 3x3 binomial blur that skips invalid texels.
type gaussianKernel struct {
	groupSize
	channels int
}

func (k gaussianKernel) Prepare(dc *device.DispatchContext) (device.ThreadFunc, error) {
	var p textureDimParams
	b, err := bind(dc, &p, 1, 1)
	if err != nil {
		return nil, err
	}
	in, out := b.srvs[0], b.uavs[0]

	return func(tid [3]uint32) {
		if tid[0] >= p.Width || tid[1] >= p.Height {
			return
		}
		x, y := int(tid[0]), int(tid[1])
		center := in.Load(x, y)
		if center[0] < 0 {
			out.Store(x, y, center)
			return
		}

		var sum [4]float32
		var wsum float32
		for j := -1; j <= 1; j++ {
			for i := -1; i <= 1; i++ {
				sx, sy := x+i, y+j
				if sx < 0 || sy < 0 || sx >= int(p.Width) || sy >= int(p.Height) {
					continue
				}
				v := in.Load(sx, sy)
				if v[0] < 0 {
					continue
				}
				w := gaussian3[i+1] * gaussian3[j+1]
				for c := 0; c < k.channels; c++ {
					sum[c] += w * v[c]
				}
				wsum += w
			}
		}
		for c := 0; c < k.channels; c++ {
			sum[c] /= wsum
		}
		out.Store(x, y, sum)
	}, nil
}
