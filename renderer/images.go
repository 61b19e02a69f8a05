package renderer

import (
	"image"
	"image/color"

	"github.com/achilleasa/rtdenoise/gpu/device"
	"github.com/achilleasa/rtdenoise/types"
	"github.com/chewxy/math32"
)

// AOImage reads back the denoised ambient occlusion as a grayscale image.
func (r *Renderer) AOImage() *image.Gray {
	return grayImage(r.AOCoefficient().Resource.Resource())
}

// ReflectionImage reads back the denoised reflection color, tone mapped
// with the given exposure and gamma corrected.
func (r *Renderer) ReflectionImage(exposure float32) *image.RGBA {
	return toneMappedImage(r.Reflection().Resource.Resource(), exposure)
}

func grayImage(res *device.Resource) *image.Gray {
	w, h := res.Width(), res.Height()
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray(x, y, color.Gray{Y: toByte(res.Load(x, y)[0])})
		}
	}
	return img
}

func toneMappedImage(res *device.Resource, exposure float32) *image.RGBA {
	w, h := res.Width(), res.Height()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := res.Load(x, y)
			var c [3]uint8
			for i := range c {
				// Reinhard followed by gamma 2.2.
				l := math32.Max(v[i], 0) * exposure
				c[i] = toByte(math32.Pow(l/(1+l), 1/2.2))
			}
			img.SetRGBA(x, y, color.RGBA{R: c[0], G: c[1], B: c[2], A: 255})
		}
	}
	return img
}

func toByte(v float32) uint8 {
	return uint8(types.Saturate(v)*255 + 0.5)
}
