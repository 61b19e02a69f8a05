package svgf

import (
	"github.com/achilleasa/rtdenoise/gpu/device"
	"github.com/chewxy/math32"
)

// B3 spline weights of the 5 tap wavelet kernel.
var b3Spline = [5]float32{1.0 / 16, 1.0 / 4, 3.0 / 8, 1.0 / 4, 1.0 / 16}

// atrousKernel is one pass of the edge stopping a-trous wavelet transform.
// Taps are spaced Step pixels apart and weighted by depth, normal,
// luminance against the local standard deviation and ray hit distance.
type atrousKernel struct {
	groupSize
	channels int
}

func (k atrousKernel) Prepare(dc *device.DispatchContext) (device.ThreadFunc, error) {
	var p atrousParams
	b, err := bind(dc, &p, 5, 1)
	if err != nil {
		return nil, err
	}
	var (
		in          = b.srvs[0]
		normalDepth = b.srvs[1]
		varianceTex = b.srvs[2]
		hitDistance = b.srvs[3]
		ddxy        = b.srvs[4]
		out         = b.uavs[0]
	)
	ch := k.channels
	step := int(p.Step)

	return func(tid [3]uint32) {
		if tid[0] >= p.Width || tid[1] >= p.Height {
			return
		}
		x, y := int(tid[0]), int(tid[1])

		center := in.Load(x, y)
		nd := normalDepth.Load(x, y)
		variance := varianceTex.Load(x, y)[0]
		if center[0] < 0 || nd[3] <= 0 || variance < p.MinVarianceToDenoise {
			out.Store(x, y, center)
			return
		}

		depth := nd[3]
		normal := normalOf(nd)
		lum := luminance(center, ch)
		valueScale := 1 / (p.ValueSigma*math32.Sqrt(math32.Max(variance, 1e-10)) + 1e-6)
		hit := hitDistance.Load(x, y)[0]
		dd := ddxy.Load(x, y)

		var sum [4]float32
		var wsum float32
		for j := -2; j <= 2; j++ {
			for i := -2; i <= 2; i++ {
				sx, sy := x+i*step, y+j*step
				if sx < 0 || sy < 0 || sx >= int(p.Width) || sy >= int(p.Height) {
					continue
				}
				v := center
				w := b3Spline[i+2] * b3Spline[j+2]
				if i != 0 || j != 0 {
					v = in.Load(sx, sy)
					snd := normalDepth.Load(sx, sy)
					if v[0] < 0 || snd[3] <= 0 {
						continue
					}

					depthTolerance := p.DepthSigma*(float32(abs(i*step))*dd[0]+float32(abs(j*step))*dd[1]) + 1e-3*depth
					w *= math32.Exp(-math32.Abs(snd[3]-depth) / depthTolerance)
					w *= math32.Pow(math32.Max(0, normal.Dot(normalOf(snd))), p.NormalSigma)
					w *= math32.Exp(-math32.Abs(luminance(v, ch)-lum) * valueScale)

					if sh := hitDistance.Load(sx, sy)[0]; hit > 0 && sh > 0 {
						w *= math32.Exp(-math32.Abs(sh-hit) / (p.HitDistanceSigma * math32.Max(sh, hit)))
					}
				}

				for c := 0; c < ch; c++ {
					sum[c] += w * v[c]
				}
				wsum += w
			}
		}

		for c := 0; c < ch; c++ {
			sum[c] /= wsum
		}
		out.Store(x, y, sum)
	}, nil
}

// disocclusionBlurKernel blurs texels with little history. The result is
// lerped with the input by the blur strength written by the blend pass.
type disocclusionBlurKernel struct {
	groupSize
	channels int
}

func (k disocclusionBlurKernel) Prepare(dc *device.DispatchContext) (device.ThreadFunc, error) {
	var p disocclusionBlurParams
	b, err := bind(dc, &p, 3, 1)
	if err != nil {
		return nil, err
	}
	in, normalDepth, blurStrength, out := b.srvs[0], b.srvs[1], b.srvs[2], b.uavs[0]
	ch := k.channels
	step := int(p.Step)

	return func(tid [3]uint32) {
		if tid[0] >= p.Width || tid[1] >= p.Height {
			return
		}
		x, y := int(tid[0]), int(tid[1])

		center := in.Load(x, y)
		strength := blurStrength.Load(x, y)[0]
		depth := normalDepth.Load(x, y)[3]
		if center[0] < 0 || depth <= 0 || strength <= 0 {
			out.Store(x, y, center)
			return
		}

		var sum [4]float32
		var wsum float32
		for j := -1; j <= 1; j++ {
			for i := -1; i <= 1; i++ {
				sx, sy := x+i*step, y+j*step
				if sx < 0 || sy < 0 || sx >= int(p.Width) || sy >= int(p.Height) {
					continue
				}
				v := in.Load(sx, sy)
				sd := normalDepth.Load(sx, sy)[3]
				if v[0] < 0 || sd <= 0 || math32.Abs(sd-depth) > p.DepthSigma*depth {
					continue
				}
				w := gaussian3[i+1] * gaussian3[j+1]
				for c := 0; c < ch; c++ {
					sum[c] += w * v[c]
				}
				wsum += w
			}
		}

		res := center
		for c := 0; c < ch; c++ {
			res[c] = center[c] + (sum[c]/wsum-center[c])*strength
		}
		out.Store(x, y, res)
	}, nil
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
