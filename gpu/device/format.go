package device

import (
	"fmt"

	"github.com/chewxy/math32"
)

// Format describes the texel layout of a texture resource. Texels are
// stored as float32 channels; integer and normalized formats are quantized
// on store so kernels observe the same values real hardware would return.
type Format uint8

const (
	FormatUnknown Format = iota
	FormatR8Uint
	FormatR8Unorm
	FormatR16Float
	FormatR32Float
	FormatR16G16Float
	FormatR32G32Float
	FormatR8G8B8A8Unorm
	FormatR16G16B16A16Float
	FormatR32G32B32A32Float
	numFormats
)

// Channels returns the number of channels in a texel.
func (f Format) Channels() int {
	switch f {
	case FormatR8Uint, FormatR8Unorm, FormatR16Float, FormatR32Float:
		return 1
	case FormatR16G16Float, FormatR32G32Float:
		return 2
	case FormatR8G8B8A8Unorm, FormatR16G16B16A16Float, FormatR32G32B32A32Float:
		return 4
	}
	return 0
}

// BytesPerTexel returns the size of a texel as it would be laid out in
// device memory. It is used for memory budget accounting.
func (f Format) BytesPerTexel() int {
	switch f {
	case FormatR8Uint, FormatR8Unorm:
		return 1
	case FormatR16Float:
		return 2
	case FormatR32Float, FormatR16G16Float, FormatR8G8B8A8Unorm:
		return 4
	case FormatR32G32Float, FormatR16G16B16A16Float:
		return 8
	case FormatR32G32B32A32Float:
		return 16
	}
	return 0
}

func (f Format) valid() bool {
	return f > FormatUnknown && f < numFormats
}

// quantize maps a value to what the format can represent.
func (f Format) quantize(v float32) float32 {
	switch f {
	case FormatR8Uint:
		if v < 0 || math32.IsNaN(v) {
			return 0
		}
		if v > 255 {
			return 255
		}
		return math32.Floor(v + 0.5)
	case FormatR8Unorm, FormatR8G8B8A8Unorm:
		if v < 0 || math32.IsNaN(v) {
			return 0
		}
		if v > 1 {
			return 1
		}
		return math32.Floor(v*255+0.5) / 255
	}
	return v
}

// Implements Stringer.
func (f Format) String() string {
	switch f {
	case FormatUnknown:
		return "UNKNOWN"
	case FormatR8Uint:
		return "R8_UINT"
	case FormatR8Unorm:
		return "R8_UNORM"
	case FormatR16Float:
		return "R16_FLOAT"
	case FormatR32Float:
		return "R32_FLOAT"
	case FormatR16G16Float:
		return "R16G16_FLOAT"
	case FormatR32G32Float:
		return "R32G32_FLOAT"
	case FormatR8G8B8A8Unorm:
		return "R8G8B8A8_UNORM"
	case FormatR16G16B16A16Float:
		return "R16G16B16A16_FLOAT"
	case FormatR32G32B32A32Float:
		return "R32G32B32A32_FLOAT"
	}
	return fmt.Sprintf("Format(%d)", uint8(f))
}
