package ibl

import (
	"runtime"

	"github.com/achilleasa/rtdenoise/types"
	"github.com/chewxy/math32"
	"golang.org/x/sync/errgroup"
)

// Resolution of the radiance grid the convolutions integrate over.
const (
	convolutionWidth  = 64
	convolutionHeight = 32
)

// bitmap is a CPU side float image.
type bitmap struct {
	width, height, channels int
	data                    []float32
}

func newBitmap(width, height, channels int) *bitmap {
	return &bitmap{width: width, height: height, channels: channels, data: make([]float32, width*height*channels)}
}

func (b *bitmap) set(x, y int, v ...float32) {
	copy(b.data[(y*b.width+x)*b.channels:], v)
}

// parallelRows runs fn for every row on all CPUs.
func parallelRows(rows int, fn func(y int)) {
	var g errgroup.Group
	g.SetLimit(runtime.NumCPU())
	for y := 0; y < rows; y++ {
		y := y
		g.Go(func() error {
			fn(y)
			return nil
		})
	}
	_ = g.Wait()
}

// texelDirection returns the direction through the center of texel (x, y)
// of a width x height equirectangular map.
func texelDirection(x, y, width, height int) types.Vec3 {
	return UVToDirection((float32(x)+0.5)/float32(width), (float32(y)+0.5)/float32(height))
}

type radianceSample struct {
	dir      types.Vec3
	radiance types.Vec3

	// Solid angle covered by the sample.
	weight float32
}

// sampleGrid evaluates radiance at the texel centers of the convolution grid.
func sampleGrid(radiance Radiance) []radianceSample {
	samples := make([]radianceSample, convolutionWidth*convolutionHeight)
	dPhi := float32(2 * math32.Pi / convolutionWidth)
	dTheta := float32(math32.Pi / convolutionHeight)
	parallelRows(convolutionHeight, func(y int) {
		theta := (float32(y) + 0.5) * dTheta
		for x := 0; x < convolutionWidth; x++ {
			dir := texelDirection(x, y, convolutionWidth, convolutionHeight)
			samples[y*convolutionWidth+x] = radianceSample{
				dir:      dir,
				radiance: radiance(dir),
				weight:   math32.Sin(theta) * dPhi * dTheta,
			}
		}
	})
	return samples
}

// bakeIrradiance convolves the environment with a cosine lobe. The stored
// value is irradiance / pi so that diffuse = albedo * texel.
func bakeIrradiance(samples []radianceSample, width int) *bitmap {
	height := width / 2
	out := newBitmap(width, height, 4)
	parallelRows(height, func(y int) {
		for x := 0; x < width; x++ {
			n := texelDirection(x, y, width, height)
			var sum types.Vec3
			for _, s := range samples {
				cos := n.Dot(s.dir)
				if cos <= 0 {
					continue
				}
				sum = sum.Add(s.radiance.Mul(cos * s.weight))
			}
			sum = sum.Mul(1 / math32.Pi)
			out.set(x, y, sum[0], sum[1], sum[2], 1)
		}
	})
	return out
}

// lobePower maps a perceptual roughness to the exponent of a phong lobe
// with a similar width to the GGX distribution.
func lobePower(roughness float32) float32 {
	alpha := math32.Max(roughness*roughness, 0.01)
	return 2/(alpha*alpha) - 2
}

// bakePrefiltered stores one equirectangular band per roughness level,
// from mirror (level 0) to fully rough, stacked vertically.
func bakePrefiltered(radiance Radiance, samples []radianceSample, width, levels int) *bitmap {
	height := width / 2
	out := newBitmap(width, height*levels, 4)
	parallelRows(height*levels, func(row int) {
		level, y := row/height, row%height
		roughness := float32(0)
		if levels > 1 {
			roughness = float32(level) / float32(levels-1)
		}
		power := lobePower(roughness)
		for x := 0; x < width; x++ {
			r := texelDirection(x, y, width, height)
			var c types.Vec3
			if level == 0 {
				c = radiance(r)
			} else {
				var sum types.Vec3
				var wsum float32
				for _, s := range samples {
					cos := r.Dot(s.dir)
					if cos <= 0 {
						continue
					}
					w := math32.Pow(cos, power) * s.weight
					sum = sum.Add(s.radiance.Mul(w))
					wsum += w
				}
				if wsum > 0 {
					c = sum.Mul(1 / wsum)
				} else {
					c = radiance(r)
				}
			}
			out.set(x, row, c[0], c[1], c[2], 1)
		}
	})
	return out
}

func hammersley(i, n uint32) (float32, float32) {
	bits := i
	bits = (bits << 16) | (bits >> 16)
	bits = ((bits & 0x55555555) << 1) | ((bits & 0xAAAAAAAA) >> 1)
	bits = ((bits & 0x33333333) << 2) | ((bits & 0xCCCCCCCC) >> 2)
	bits = ((bits & 0x0F0F0F0F) << 4) | ((bits & 0xF0F0F0F0) >> 4)
	bits = ((bits & 0x00FF00FF) << 8) | ((bits & 0xFF00FF00) >> 8)
	return float32(i) / float32(n), float32(bits) * 2.3283064365386963e-10
}

// importanceSampleGGX returns a half vector around +Z.
func importanceSampleGGX(u1, u2, roughness float32) types.Vec3 {
	a := roughness * roughness
	phi := 2 * math32.Pi * u1
	cosTheta := math32.Sqrt((1 - u2) / (1 + (a*a-1)*u2))
	sinTheta := math32.Sqrt(1 - cosTheta*cosTheta)
	return types.XYZ(sinTheta*math32.Cos(phi), sinTheta*math32.Sin(phi), cosTheta)
}

func geometrySchlickGGX(nDotX, roughness float32) float32 {
	k := roughness * roughness / 2
	return nDotX / (nDotX*(1-k) + k)
}

// IntegrateBRDF returns the split sum scale and bias applied to F0 for the
// given view angle and roughness.
func IntegrateBRDF(nDotV, roughness float32, samples uint32) (float32, float32) {
	v := types.XYZ(math32.Sqrt(1-nDotV*nDotV), 0, nDotV)
	var a, b float32
	for i := uint32(0); i < samples; i++ {
		u1, u2 := hammersley(i, samples)
		h := importanceSampleGGX(u1, u2, roughness)
		vDotH := v.Dot(h)
		l := h.Mul(2 * vDotH).Sub(v)
		nDotL := l[2]
		nDotH := h[2]
		if nDotL <= 0 {
			continue
		}
		g := geometrySchlickGGX(nDotV, roughness) * geometrySchlickGGX(nDotL, roughness)
		gVis := g * math32.Max(vDotH, 0) / (nDotH * nDotV)
		fc := math32.Pow(1-math32.Max(vDotH, 0), 5)
		a += (1 - fc) * gVis
		b += fc * gVis
	}
	return a / float32(samples), b / float32(samples)
}

// bakeBRDFLUT tabulates IntegrateBRDF with n.v along x and roughness along y.
func bakeBRDFLUT(size int, samples uint32) *bitmap {
	out := newBitmap(size, size, 2)
	parallelRows(size, func(y int) {
		roughness := (float32(y) + 0.5) / float32(size)
		for x := 0; x < size; x++ {
			nDotV := (float32(x) + 0.5) / float32(size)
			a, b := IntegrateBRDF(nDotV, roughness, samples)
			out.set(x, y, a, b)
		}
	})
	return out
}
