package scene

import (
	"encoding/binary"

	"github.com/go-gl/mathgl/mgl32"
)

// Constant buffer views must start on this boundary.
const ConstantBufferAlignment = 256

// PassConstants is the per-frame constant buffer shared by every pass.
type PassConstants struct {
	View         mgl32.Mat4
	InvView      mgl32.Mat4
	Proj         mgl32.Mat4
	InvProj      mgl32.Mat4
	ViewProj     mgl32.Mat4
	InvViewProj  mgl32.Mat4
	PrevViewProj mgl32.Mat4

	// World space rays through the TL, TR, BL and BR frustum corners.
	FrustumRays [4]mgl32.Vec4

	EyePosW          mgl32.Vec3
	NearZ            float32
	EyeForwardW      mgl32.Vec3
	FarZ             float32
	RenderTargetSize mgl32.Vec2
	TotalTime        float32
	DeltaTime        float32

	LightDirection mgl32.Vec3
	FrameIndex     uint32
	LightStrength  mgl32.Vec3
	Pad0           float32
	AmbientLight   mgl32.Vec4
}

// ObjectConstants holds the per render item transforms.
type ObjectConstants struct {
	World     mgl32.Mat4
	PrevWorld mgl32.Mat4

	MaterialIndex uint32
	Pad           [3]uint32
}

// MaterialConstants is the shading input of a material.
type MaterialConstants struct {
	Albedo    mgl32.Vec4
	FresnelR0 mgl32.Vec3
	Roughness float32
	Metalness float32
	Pad       [3]float32
}

// ConstantBufferStride returns the aligned size of one element of v.
func ConstantBufferStride(v interface{}) uint64 {
	size := uint64(binary.Size(v))
	return (size + ConstantBufferAlignment - 1) &^ (ConstantBufferAlignment - 1)
}
