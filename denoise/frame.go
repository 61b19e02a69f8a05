// Package denoise holds the inputs shared by the ray traced signal
// denoisers.
package denoise

import (
	"github.com/achilleasa/rtdenoise/denoise/svgf"
	"github.com/achilleasa/rtdenoise/gpu/device"
)

// Frame carries the per-frame inputs a denoiser consumes. The referenced
// resources are owned by the caller and must stay valid until the command
// list recorded with them has executed.
type Frame struct {
	GBuffer svgf.GBuffer

	// Address of the top level acceleration structure buffer.
	AccelerationStructure device.GPUVirtualAddress

	// Address of the scene.PassConstants buffer of this frame.
	PassConstants device.GPUVirtualAddress
}
