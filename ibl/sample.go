package ibl

import (
	"github.com/achilleasa/rtdenoise/gpu/device"
	"github.com/achilleasa/rtdenoise/types"
	"github.com/chewxy/math32"
)

// sampleBand bilinearly filters rows [band*bandHeight, (band+1)*bandHeight)
// of an equirectangular texture. U wraps and v is clamped to the band.
func sampleBand(res *device.Resource, u, v float32, band, bandHeight int) types.Vec3 {
	w := res.Width()
	fx := (u-math32.Floor(u))*float32(w) - 0.5
	fy := types.Clamp(v, 0, 1)*float32(bandHeight) - 0.5
	x0, y0 := math32.Floor(fx), math32.Floor(fy)
	tx, ty := fx-x0, fy-y0

	xa := (int(x0)%w + w) % w
	xb := (xa + 1) % w
	base := band * bandHeight
	ya := base + clampInt(int(y0), 0, bandHeight-1)
	yb := base + clampInt(int(y0)+1, 0, bandHeight-1)

	c00, c10 := res.Load(xa, ya), res.Load(xb, ya)
	c01, c11 := res.Load(xa, yb), res.Load(xb, yb)
	var out types.Vec3
	for c := range out {
		top := c00[c] + (c10[c]-c00[c])*tx
		bottom := c01[c] + (c11[c]-c01[c])*tx
		out[c] = top + (bottom-top)*ty
	}
	return out
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// SampleIrradiance returns the diffuse lighting for a surface normal.
func SampleIrradiance(irradiance *device.Resource, n types.Vec3) types.Vec3 {
	u, v := DirectionToUV(n)
	return sampleBand(irradiance, u, v, 0, irradiance.Height())
}

// SamplePrefiltered returns the specular environment along dir for the
// given roughness, interpolating between the two nearest levels.
func SamplePrefiltered(prefiltered *device.Resource, dir types.Vec3, roughness float32, levels uint32) types.Vec3 {
	if levels == 0 {
		return types.Vec3{}
	}
	u, v := DirectionToUV(dir)
	bandHeight := prefiltered.Height() / int(levels)
	lod := types.Saturate(roughness) * float32(levels-1)
	lo := int(math32.Floor(lod))
	hi := min(lo+1, int(levels)-1)
	a := sampleBand(prefiltered, u, v, lo, bandHeight)
	if hi == lo {
		return a
	}
	return a.Lerp(sampleBand(prefiltered, u, v, hi, bandHeight), lod-float32(lo))
}

// SampleBRDF returns the split sum scale and bias for F0.
func SampleBRDF(lut *device.Resource, nDotV, roughness float32) (float32, float32) {
	size := lut.Width()
	x := clampInt(int(types.Saturate(nDotV)*float32(size)), 0, size-1)
	y := clampInt(int(types.Saturate(roughness)*float32(lut.Height())), 0, lut.Height()-1)
	t := lut.Load(x, y)
	return t[0], t[1]
}
