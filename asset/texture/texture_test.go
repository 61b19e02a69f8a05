package texture

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/achilleasa/rtdenoise/asset"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"
)

func TestLoadPNG(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	img.Set(0, 0, color.NRGBA{R: 255, A: 255})
	img.Set(1, 0, color.NRGBA{G: 255, B: 255, A: 128})

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	tex, err := New(asset.NewResourceFromStream("test.png", &buf))
	require.NoError(t, err)

	require.Equal(t, Rgba32F, tex.Format)
	require.Equal(t, uint32(2), tex.Width)
	require.Equal(t, uint32(1), tex.Height)
	require.Equal(t, [4]float32{1, 0, 0, 1}, tex.At(0, 0))

	c := tex.At(1, 0)
	require.InDelta(t, 0, c[0], 1e-6)
	require.InDelta(t, 1, c[1], 1e-2)
	require.InDelta(t, 1, c[2], 1e-2)
	require.InDelta(t, 128.0/255, c[3], 1e-3)
}

func TestLoadGrayBMP(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 3, 2))
	for i := range img.Pix {
		img.Pix[i] = 255
	}

	var buf bytes.Buffer
	require.NoError(t, bmp.Encode(&buf, img))
	tex, err := New(asset.NewResourceFromStream("test.bmp", &buf))
	require.NoError(t, err)
	require.Equal(t, uint32(3), tex.Width)
	require.Equal(t, uint32(2), tex.Height)
	require.Equal(t, [4]float32{1, 1, 1, 1}, tex.At(2, 1))
}

func TestSampleWrapsHorizontally(t *testing.T) {
	tex := &Texture{Format: Luminance32F, Width: 4, Height: 1, Data: []float32{0, 1, 2, 3}}

	// Texel centers sample exactly.
	require.InDelta(t, 1, tex.Sample(1.5/4, 0.5)[0], 1e-6)

	// Between the last and first texel the filter wraps.
	require.InDelta(t, 1.5, tex.Sample(0, 0.5)[0], 1e-6)
	require.InDelta(t, 1.5, tex.Sample(1, 0.5)[0], 1e-6)

	// V is clamped.
	require.InDelta(t, 2, tex.Sample(2.5/4, 7)[0], 1e-6)
}

func TestDecodeError(t *testing.T) {
	_, err := New(asset.NewResourceFromStream("bogus.png", bytes.NewReader([]byte("nope"))))
	require.Error(t, err)

	_, err = FromImage(image.NewRGBA(image.Rect(0, 0, 0, 0)))
	require.ErrorIs(t, err, ErrEmptyImage)
}
