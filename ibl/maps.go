// Package ibl bakes the image based lighting textures sampled by the
// reflection shaders: a diffuse irradiance map, a prefiltered specular
// environment and the split sum BRDF lookup table.
package ibl

import (
	"fmt"
	"time"

	"github.com/achilleasa/rtdenoise/denoise/svgf"
	"github.com/achilleasa/rtdenoise/gpu/device"
	"github.com/achilleasa/rtdenoise/gpu/resource"
)

// Maps holds the baked textures. They are read only shader resources.
type Maps struct {
	Irradiance  svgf.View
	Prefiltered svgf.View
	BRDFLUT     svgf.View

	// Number of roughness levels stacked in Prefiltered.
	Levels uint32
}

// Bake loads the environment selected by opts and bakes the maps.
func Bake(dev *device.Device, alloc *device.DescriptorAllocator, opts Options) (*Maps, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	radiance, err := LoadEnvironment(opts)
	if err != nil {
		return nil, err
	}
	return BakeRadiance(dev, alloc, radiance, opts)
}

// BakeRadiance bakes the maps for an arbitrary environment.
func BakeRadiance(dev *device.Device, alloc *device.DescriptorAllocator, radiance Radiance, opts Options) (*Maps, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	samples := sampleGrid(radiance)
	irradiance := bakeIrradiance(samples, int(opts.IrradianceWidth))
	prefiltered := bakePrefiltered(radiance, samples, int(opts.PrefilteredWidth), int(opts.PrefilteredLevels))
	lut := bakeBRDFLUT(int(opts.BRDFLUTSize), opts.BRDFLUTSamples)
	logger.Debugf("baked environment maps in %d ms", time.Since(start).Nanoseconds()/1e6)

	maps := &Maps{Levels: opts.PrefilteredLevels}
	uploads := []struct {
		view   *svgf.View
		name   string
		format device.Format
		bitmap *bitmap
	}{
		{&maps.Irradiance, "ibl/Irradiance", device.FormatR32G32B32A32Float, irradiance},
		{&maps.Prefiltered, "ibl/Prefiltered", device.FormatR32G32B32A32Float, prefiltered},
		{&maps.BRDFLUT, "ibl/BRDFLUT", device.FormatR32G32Float, lut},
	}
	for _, u := range uploads {
		if err := upload(dev, u.view, u.name, u.format, u.bitmap); err != nil {
			maps.Release()
			return nil, err
		}
		if alloc == nil {
			continue
		}
		if err := svgf.CreateViews(dev, alloc, u.view); err != nil {
			maps.Release()
			return nil, fmt.Errorf("ibl: %w", err)
		}
	}
	return maps, nil
}

func upload(dev *device.Device, v *svgf.View, name string, format device.Format, b *bitmap) error {
	v.Resource = &resource.GpuResource{}
	err := v.Resource.Initialize(
		dev,
		device.HeapProperties{Type: device.HeapTypeDefault},
		device.HeapFlagNone,
		device.Tex2DDesc(format, uint32(b.width), uint32(b.height), device.ResourceFlagNone),
		device.StateNonPixelShaderResource,
		nil,
	)
	if err != nil {
		return fmt.Errorf("ibl: allocate %q: %w", name, err)
	}
	v.Resource.SetName(name)
	if err = v.Resource.Resource().WriteTexels(b.data); err != nil {
		return fmt.Errorf("ibl: upload %q: %w", name, err)
	}
	return nil
}

// Release frees the baked textures.
func (m *Maps) Release() {
	for _, v := range []*svgf.View{&m.Irradiance, &m.Prefiltered, &m.BRDFLUT} {
		if v.Resource != nil {
			v.Resource.Release()
		}
	}
}
