package texture

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/achilleasa/rtdenoise/asset"
	"github.com/chewxy/math32"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var ErrEmptyImage = errors.New("texture: image has no pixels")

// A texture image with linear float texels stored row by row.
type Texture struct {
	Format Format

	Width  uint32
	Height uint32

	Data []float32
}

// Create a new texture from a Resource. 8-bit images are assumed to be sRGB
// encoded and are converted to linear values.
func New(res *asset.Resource) (*Texture, error) {
	img, kind, err := image.Decode(res)
	if err != nil {
		return nil, fmt.Errorf("texture: could not decode %s: %w", res.Path(), err)
	}
	tex, err := FromImage(img)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", err, res.Path())
	}
	logger.Debugf("loaded %s texture %s (%dx%d)", kind, res.Path(), tex.Width, tex.Height)
	return tex, nil
}

// FromImage converts a decoded image into a texture.
func FromImage(img image.Image) (*Texture, error) {
	bounds := img.Bounds()
	if bounds.Empty() {
		return nil, ErrEmptyImage
	}

	tex := &Texture{
		Width:  uint32(bounds.Dx()),
		Height: uint32(bounds.Dy()),
	}
	switch img.ColorModel() {
	case color.GrayModel, color.Gray16Model:
		tex.Format = Luminance32F
	default:
		tex.Format = Rgba32F
	}

	channels := tex.Format.Channels()
	tex.Data = make([]float32, int(tex.Width*tex.Height)*channels)
	offset := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, a := img.At(x, y).RGBA()
			if channels == 1 {
				tex.Data[offset] = srgbToLinear(float32(r) / 0xffff)
				offset++
				continue
			}
			alpha := float32(a) / 0xffff
			rgb := [3]float32{float32(r) / 0xffff, float32(g) / 0xffff, float32(b) / 0xffff}
			for c := range rgb {
				// Undo alpha premultiplication before decoding.
				if alpha > 0 {
					rgb[c] /= alpha
				}
				tex.Data[offset+c] = srgbToLinear(rgb[c])
			}
			tex.Data[offset+3] = alpha
			offset += 4
		}
	}
	return tex, nil
}

// At returns the texel at (x, y) expanded to RGBA.
func (t *Texture) At(x, y int) [4]float32 {
	channels := t.Format.Channels()
	off := (y*int(t.Width) + x) * channels
	if channels == 1 {
		v := t.Data[off]
		return [4]float32{v, v, v, 1}
	}
	return [4]float32{t.Data[off], t.Data[off+1], t.Data[off+2], t.Data[off+3]}
}

// Sample bilinearly filters the texture. U wraps around and v is clamped,
// which is what latitude/longitude environment maps need.
func (t *Texture) Sample(u, v float32) [4]float32 {
	fx := (u-math32.Floor(u))*float32(t.Width) - 0.5
	fy := clamp(v, 0, 1)*float32(t.Height) - 0.5
	x0, y0 := math32.Floor(fx), math32.Floor(fy)
	tx, ty := fx-x0, fy-y0

	w, h := int(t.Width), int(t.Height)
	xa := (int(x0)%w + w) % w
	xb := (xa + 1) % w
	ya := clampInt(int(y0), 0, h-1)
	yb := clampInt(int(y0)+1, 0, h-1)

	c00, c10 := t.At(xa, ya), t.At(xb, ya)
	c01, c11 := t.At(xa, yb), t.At(xb, yb)
	var out [4]float32
	for c := range out {
		top := c00[c] + (c10[c]-c00[c])*tx
		bottom := c01[c] + (c11[c]-c01[c])*tx
		out[c] = top + (bottom-top)*ty
	}
	return out
}

func srgbToLinear(v float32) float32 {
	if v <= 0.04045 {
		return v / 12.92
	}
	return math32.Pow((v+0.055)/1.055, 2.4)
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

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
