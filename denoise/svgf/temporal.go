package svgf

import (
	"github.com/achilleasa/rtdenoise/gpu/device"
	"github.com/chewxy/math32"
)

// Bilinear weights below this are treated as a failed reprojection.
const minReprojectionWeight = 1e-4

// reprojectKernel follows the velocity buffer back into the previous frame
// and gathers the cached history with a bilinear filter whose taps are
// rejected when their normal or depth disagree with the current surface.
type reprojectKernel struct {
	groupSize
	channels int
}

func (k reprojectKernel) Prepare(dc *device.DispatchContext) (device.ThreadFunc, error) {
	var p reprojectParams
	b, err := bind(dc, &p, 8, 3)
	if err != nil {
		return nil, err
	}
	var (
		normalDepth     = b.srvs[0]
		velocity        = b.srvs[1]
		prevNormalDepth = b.srvs[2]
		ddxy            = b.srvs[3]
		prevTspp        = b.srvs[4]
		prevValue       = b.srvs[5]
		prevSquaredMean = b.srvs[6]
		prevHitDistance = b.srvs[7]

		outTspp      = b.uavs[0]
		outPacked    = b.uavs[1]
		outReproject = b.uavs[2]
	)
	w, h := float32(p.Width), float32(p.Height)

	return func(tid [3]uint32) {
		if tid[0] >= p.Width || tid[1] >= p.Height {
			return
		}
		x, y := int(tid[0]), int(tid[1])

		reset := func() {
			outTspp.Store(x, y, [4]float32{})
			outPacked.Store(x, y, [4]float32{})
			outReproject.Store(x, y, invalidTexel())
		}

		nd := normalDepth.Load(x, y)
		depth := nd[3]
		if depth <= 0 || p.HasHistory == 0 {
			reset()
			return
		}

		vel := velocity.Load(x, y)
		prevU := (float32(x)+0.5)/w - vel[0]
		prevV := (float32(y)+0.5)/h - vel[1]
		if prevU < 0 || prevU >= 1 || prevV < 0 || prevV >= 1 {
			reset()
			return
		}

		px, py := prevU*w-0.5, prevV*h-0.5
		x0, y0 := math32.Floor(px), math32.Floor(py)
		fx, fy := px-x0, py-y0
		taps := [4]struct {
			x, y int
			w    float32
		}{
			{int(x0), int(y0), (1 - fx) * (1 - fy)},
			{int(x0) + 1, int(y0), fx * (1 - fy)},
			{int(x0), int(y0) + 1, (1 - fx) * fy},
			{int(x0) + 1, int(y0) + 1, fx * fy},
		}

		dd := ddxy.Load(x, y)
		depthTolerance := p.DepthTolerance*depth + math32.Max(dd[0], dd[1])
		normal := normalOf(nd)

		var (
			wsum, tspp, sqMean, hitDist float32
			value                       [4]float32
		)
		for _, tap := range taps {
			if tap.w <= 0 || tap.x < 0 || tap.y < 0 || tap.x >= int(p.Width) || tap.y >= int(p.Height) {
				continue
			}
			cachedTspp := prevTspp.Load(tap.x, tap.y)[0]
			if cachedTspp <= 0 {
				continue
			}
			pnd := prevNormalDepth.Load(tap.x, tap.y)
			if pnd[3] <= 0 || math32.Abs(pnd[3]-depth) > depthTolerance {
				continue
			}
			if normal.Dot(normalOf(pnd)) < p.NormalDotThreshold {
				continue
			}
			v := prevValue.Load(tap.x, tap.y)
			if v[0] < 0 {
				continue
			}

			wsum += tap.w
			tspp += tap.w * cachedTspp
			sqMean += tap.w * prevSquaredMean.Load(tap.x, tap.y)[0]
			hitDist += tap.w * prevHitDistance.Load(tap.x, tap.y)[0]
			for c := 0; c < k.channels; c++ {
				value[c] += tap.w * v[c]
			}
		}

		if wsum < minReprojectionWeight {
			reset()
			return
		}
		inv := 1 / wsum
		tspp = math32.Max(1, math32.Floor(tspp*inv+0.5))
		for c := 0; c < k.channels; c++ {
			value[c] *= inv
		}

		outTspp.Store(x, y, [4]float32{tspp})
		outPacked.Store(x, y, [4]float32{tspp, sqMean * inv, hitDist * inv})
		outReproject.Store(x, y, value)
	}, nil
}

// blendKernel merges the raw signal into the reprojected history with an
// exponential moving average whose weight follows the sample count.
type blendKernel struct {
	groupSize
	channels int
}

func (k blendKernel) Prepare(dc *device.DispatchContext) (device.ThreadFunc, error) {
	var p blendParams
	b, err := bind(dc, &p, 5, 6)
	if err != nil {
		return nil, err
	}
	var (
		rawValue       = b.srvs[0]
		rawHitDistance = b.srvs[1]
		meanVariance   = b.srvs[2]
		packed         = b.srvs[3]
		reprojected    = b.srvs[4]

		outTspp         = b.uavs[0]
		outValue        = b.uavs[1]
		outSquaredMean  = b.uavs[2]
		outHitDistance  = b.uavs[3]
		outVariance     = b.uavs[4]
		outBlurStrength = b.uavs[5]
	)
	ch := k.channels

	return func(tid [3]uint32) {
		if tid[0] >= p.Width || tid[1] >= p.Height {
			return
		}
		x, y := int(tid[0]), int(tid[1])

		raw := rawValue.Load(x, y)
		rawHit := rawHitDistance.Load(x, y)[0]
		hist := packed.Load(x, y)
		cached := reprojected.Load(x, y)
		mv := meanVariance.Load(x, y)
		meanValid := mv[0] >= 0

		tspp := uint32(math32.Max(0, hist[0]) + 0.5)
		cachedSqMean, cachedHit := hist[1], hist[2]
		hasRaw := raw[0] >= 0 && (p.Checkerboard == 0 || activePixel(x, y, p.Parity))

		var (
			value          [4]float32
			sqMean, hitDis float32
			newTspp        uint32
		)
		switch {
		case hasRaw && tspp > 0:
			a := math32.Max(1/float32(tspp+1), p.MinSmoothingFactor)
			if p.ClampCachedValues != 0 && meanValid {
				stdDev := math32.Max(p.ClampStdDevGamma*math32.Sqrt(math32.Max(mv[ch], 0)), p.ClampMinStdDev)
				for c := 0; c < ch; c++ {
					cached[c] = clamp(cached[c], mv[c]-stdDev, mv[c]+stdDev)
				}
			}
			for c := 0; c < ch; c++ {
				value[c] = cached[c] + (raw[c]-cached[c])*a
			}
			lum := luminance(raw, ch)
			sqMean = cachedSqMean + (lum*lum-cachedSqMean)*a
			switch {
			case rawHit <= 0:
				hitDis = cachedHit
			case cachedHit <= 0:
				hitDis = rawHit
			default:
				hitDis = cachedHit + (rawHit-cachedHit)*a
			}
			newTspp = tspp + 1
			if newTspp > p.MaxTspp {
				newTspp = p.MaxTspp
			}
		case hasRaw:
			copy(value[:ch], raw[:ch])
			lum := luminance(raw, ch)
			sqMean = lum * lum
			hitDis = rawHit
			newTspp = 1
		case tspp > 0:
			// No new sample: keep the history as is.
			value = cached
			sqMean = cachedSqMean
			hitDis = cachedHit
			newTspp = tspp
		case meanValid:
			copy(value[:ch], mv[:ch])
		default:
			value = invalidTexel()
		}

		var variance float32
		if value[0] >= 0 {
			switch {
			case newTspp >= p.MinTsppToUseTemporalVariance:
				lum := luminance(value, ch)
				variance = sqMean - lum*lum
			case meanValid:
				variance = mv[ch]
			}
		}
		if variance < 0 || math32.IsNaN(variance) {
			variance = 0
		}

		blurStrength := float32(1)
		if newTspp > 0 {
			t := math32.Min(float32(newTspp), float32(p.BlurStrengthMaxTspp)) / float32(p.BlurStrengthMaxTspp)
			blurStrength = math32.Pow(1-t, p.BlurDecayStrength)
		}

		outTspp.Store(x, y, [4]float32{float32(newTspp)})
		outValue.Store(x, y, value)
		outSquaredMean.Store(x, y, [4]float32{sqMean})
		outHitDistance.Store(x, y, [4]float32{hitDis})
		outVariance.Store(x, y, [4]float32{variance})
		outBlurStrength.Store(x, y, [4]float32{blurStrength})
	}, nil
}

func clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
