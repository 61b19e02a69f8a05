package ibl

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/achilleasa/rtdenoise/gpu/device"
	"github.com/achilleasa/rtdenoise/types"
	"github.com/stretchr/testify/require"
)

func smallOptions() Options {
	opts := DefaultOptions()
	opts.EnvironmentWidth = 16
	opts.IrradianceWidth = 8
	opts.PrefilteredWidth = 16
	opts.PrefilteredLevels = 3
	opts.BRDFLUTSize = 8
	opts.BRDFLUTSamples = 128
	return opts
}

func TestDirectionMapping(t *testing.T) {
	for _, dir := range []types.Vec3{
		types.XYZ(0, 0, -1),
		types.XYZ(1, 0, 0),
		types.XYZ(0.3, 0.8, 0.2).Normalize(),
		types.XYZ(-0.5, -0.5, 0.7).Normalize(),
	} {
		u, v := DirectionToUV(dir)
		require.True(t, types.ApproxEqual(dir, UVToDirection(u, v), 1e-4), "direction %v", dir)
	}
	u, v := DirectionToUV(types.XYZ(0, 0, -1))
	require.InDelta(t, 0.5, u, 1e-6)
	require.InDelta(t, 0.5, v, 1e-6)
}

func TestSkyGradient(t *testing.T) {
	sky := DefaultOptions().Sky
	require.True(t, types.ApproxEqual(sky.Zenith, sky.Radiance(types.XYZ(0, 1, 0)), 1e-5))
	require.True(t, types.ApproxEqual(sky.Horizon, sky.Radiance(types.XYZ(1, 0, 0)), 1e-5))
	require.True(t, types.ApproxEqual(sky.Ground, sky.Radiance(types.XYZ(0, -1, 0)), 1e-5))
}

func TestUniformEnvironment(t *testing.T) {
	dev := device.New()
	c := types.XYZ(0.5, 0.25, 1)
	maps, err := BakeRadiance(dev, nil, func(types.Vec3) types.Vec3 { return c }, smallOptions())
	require.NoError(t, err)
	defer maps.Release()

	irradiance := maps.Irradiance.Resource.Resource()
	prefiltered := maps.Prefiltered.Resource.Resource()
	require.Equal(t, 8, irradiance.Width())
	require.Equal(t, 4, irradiance.Height())
	require.Equal(t, 8*3, prefiltered.Height())

	for _, dir := range []types.Vec3{types.XYZ(0, 1, 0), types.XYZ(0.6, -0.8, 0), types.XYZ(0, 0, 1)} {
		require.True(t, types.ApproxEqual(c, SampleIrradiance(irradiance, dir), 0.03), "irradiance along %v", dir)
		for _, roughness := range []float32{0, 0.3, 0.5, 1} {
			got := SamplePrefiltered(prefiltered, dir, roughness, maps.Levels)
			require.True(t, types.ApproxEqual(c, got, 1e-3), "prefiltered along %v at roughness %f: %v", dir, roughness, got)
		}
	}
}

func TestBRDFLUT(t *testing.T) {
	a, b := IntegrateBRDF(1, 0.1, 256)
	require.InDelta(t, 1, a+b, 0.05)

	for _, roughness := range []float32{0.2, 0.6, 1} {
		for _, nDotV := range []float32{0.1, 0.5, 0.9} {
			a, b := IntegrateBRDF(nDotV, roughness, 128)
			require.GreaterOrEqual(t, a, float32(0))
			require.GreaterOrEqual(t, b, float32(0))
			require.LessOrEqual(t, a+b, float32(1.05))
		}
	}

	maps, err := BakeRadiance(device.New(), nil, DefaultOptions().Sky.Radiance, smallOptions())
	require.NoError(t, err)
	scale, bias := SampleBRDF(maps.BRDFLUT.Resource.Resource(), 0.99, 0.05)
	require.InDelta(t, 1, scale+bias, 0.1)
}

func TestBakeFromImage(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 16, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 16; x++ {
			img.Set(x, y, color.RGBA{R: 128, G: 128, B: 128, A: 255})
		}
	}
	path := filepath.Join(t.TempDir(), "env.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())

	dev := device.New()
	heap, err := dev.CreateDescriptorHeap(device.DescriptorHeapDesc{Name: "ibl", NumDescriptors: 8, ShaderVisible: true})
	require.NoError(t, err)
	alloc := device.NewDescriptorAllocator(heap)

	opts := smallOptions()
	opts.Environment = path
	opts.Intensity = 2
	maps, err := Bake(dev, alloc, opts)
	require.NoError(t, err)
	require.Equal(t, 6, alloc.Allocated())
	require.True(t, maps.Prefiltered.SRV.CPU.Valid())

	// 128 in sRGB is ~0.2158 linear.
	got := SampleIrradiance(maps.Irradiance.Resource.Resource(), types.XYZ(0, 1, 0))
	require.InDelta(t, 2*0.2158, got[0], 0.02)

	maps.Release()
	require.Zero(t, dev.LiveResources())
}

func TestInvalidOptions(t *testing.T) {
	opts := DefaultOptions()
	opts.PrefilteredLevels = 0
	_, err := Bake(device.New(), nil, opts)
	require.ErrorIs(t, err, ErrInvalidOptions)

	opts = DefaultOptions()
	opts.Environment = filepath.Join(t.TempDir(), "missing.png")
	_, err = Bake(device.New(), nil, opts)
	require.Error(t, err)
}
