package svgf

import (
	"fmt"

	"github.com/achilleasa/rtdenoise/gpu/device"
	"github.com/achilleasa/rtdenoise/gpu/resource"
)

// View pairs a resource with its shader visible descriptors. Resources
// without unordered access leave UAV unset.
type View struct {
	Resource *resource.GpuResource
	SRV      device.DescriptorHandle
	UAV      device.DescriptorHandle
}

// GBuffer holds the per-frame geometry inputs produced upstream.
type GBuffer struct {
	// RGBA: world normal in xyz, linear depth in w (0 = no geometry).
	NormalDepth View

	// RGBA: world position in xyz, w = 1 when valid.
	Position View

	// RG: uv_current - uv_previous.
	Velocity View
}

// Inputs are the per-frame signals handed to Denoise.
type Inputs struct {
	GBuffer GBuffer

	// Raw noisy signal written by the ray dispatch.
	Value View

	// Ray hit distance written by the ray dispatch.
	HitDistance View
}

// TemporalCache is one side of the double-buffered temporal history.
type TemporalCache struct {
	Tspp        *View
	HitDistance *View
	SquaredMean *View
}

// allocViews reserves an SRV and a UAV slot for each view.
func allocViews(alloc *device.DescriptorAllocator, views ...*View) error {
	for _, v := range views {
		h, err := alloc.Allocate(2)
		if err != nil {
			return err
		}
		v.SRV = h
		v.UAV = h.Offset(1)
	}
	return nil
}

// writeDescriptors (re)creates the views of a texture in its slots.
func writeDescriptors(dev *device.Device, v *View) error {
	res := v.Resource.Resource()
	if res == nil {
		return ErrNotInitialized
	}
	if v.SRV.CPU.Valid() {
		if err := dev.CreateShaderResourceView(res, nil, v.SRV.CPU); err != nil {
			return fmt.Errorf("svgf: SRV for %s: %w", res, err)
		}
	}
	if v.UAV.CPU.Valid() && res.Desc().Flags&device.ResourceFlagAllowUnorderedAccess != 0 {
		if err := dev.CreateUnorderedAccessView(res, nil, v.UAV.CPU); err != nil {
			return fmt.Errorf("svgf: UAV for %s: %w", res, err)
		}
	}
	return nil
}

// AllocateTexture creates a 2D texture with unordered access in the UAV state.
func AllocateTexture(dev *device.Device, v *View, name string, format device.Format, width, height uint32) error {
	if v.Resource == nil {
		v.Resource = &resource.GpuResource{}
	}
	err := v.Resource.Initialize(
		dev,
		device.HeapProperties{Type: device.HeapTypeDefault},
		device.HeapFlagNone,
		device.Tex2DDesc(format, width, height, device.ResourceFlagAllowUnorderedAccess),
		device.StateUnorderedAccess,
		nil,
	)
	if err != nil {
		return fmt.Errorf("svgf: allocate %q: %w", name, err)
	}
	v.Resource.SetName(name)
	return nil
}

// CreateViews reserves descriptor slots for v and writes its views.
func CreateViews(dev *device.Device, alloc *device.DescriptorAllocator, v *View) error {
	if err := allocViews(alloc, v); err != nil {
		return err
	}
	return writeDescriptors(dev, v)
}

// RefreshViews rewrites the views of v into its existing slots, typically
// after the resource was reallocated.
func RefreshViews(dev *device.Device, v *View) error {
	return writeDescriptors(dev, v)
}
