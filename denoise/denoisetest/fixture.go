// Package denoisetest provides a software device populated with the
// per-frame inputs of the denoisers, for use in tests.
package denoisetest

import (
	"testing"

	"github.com/achilleasa/rtdenoise/denoise"
	"github.com/achilleasa/rtdenoise/denoise/svgf"
	"github.com/achilleasa/rtdenoise/gpu/accel"
	"github.com/achilleasa/rtdenoise/gpu/device"
	"github.com/achilleasa/rtdenoise/gpu/shader"
	"github.com/achilleasa/rtdenoise/scene"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/require"
)

// Fixture owns a validating device, a shader visible heap, a G-buffer and a
// pass constant buffer.
type Fixture struct {
	Dev     *device.Device
	Heap    *device.DescriptorHeap
	Alloc   *device.DescriptorAllocator
	Shaders *shader.Manager

	GBuffer svgf.GBuffer
	PassCB  *device.Resource
	TLAS    *device.Resource

	Width, Height uint32
}

// New creates a fixture whose G-buffer sees a camera facing wall at
// distance 5 and whose TLAS is empty.
func New(t testing.TB, width, height uint32) *Fixture {
	dev := device.New(device.WithDebugLayer(true), device.WithWorkers(4))
	heap, err := dev.CreateDescriptorHeap(device.DescriptorHeapDesc{Name: "test", NumDescriptors: 256, ShaderVisible: true})
	require.NoError(t, err)

	fx := &Fixture{
		Dev:     dev,
		Heap:    heap,
		Alloc:   device.NewDescriptorAllocator(heap),
		Shaders: shader.NewManager(nil),
		Width:   width,
		Height:  height,
	}
	inputs := []struct {
		view   *svgf.View
		name   string
		format device.Format
	}{
		{&fx.GBuffer.NormalDepth, "normalDepth", device.FormatR32G32B32A32Float},
		{&fx.GBuffer.Position, "position", device.FormatR32G32B32A32Float},
		{&fx.GBuffer.Velocity, "velocity", device.FormatR32G32Float},
	}
	for _, in := range inputs {
		require.NoError(t, svgf.AllocateTexture(dev, in.view, in.name, in.format, width, height))
		require.NoError(t, svgf.CreateViews(dev, fx.Alloc, in.view))
	}
	fx.SetWall(5)

	fx.PassCB, err = dev.CreateCommittedResource(
		device.HeapProperties{Type: device.HeapTypeUpload},
		device.HeapFlagNone,
		device.BufferDesc(scene.ConstantBufferStride(scene.PassConstants{}), device.ResourceFlagNone),
		device.StateGenericRead,
		nil,
	)
	require.NoError(t, err)
	fx.SetPassConstants(t, scene.PassConstants{
		View:           mgl32.Ident4(),
		EyePosW:        mgl32.Vec3{0, 0, 0},
		EyeForwardW:    mgl32.Vec3{0, 0, -1},
		LightDirection: mgl32.Vec3{0, -1, 0},
		LightStrength:  mgl32.Vec3{1, 1, 1},
	})

	fx.SetTLAS(t, accel.NewTopLevel(nil))
	return fx
}

// SetWall fills the G-buffer with a wall at z = -depth facing the camera.
func (fx *Fixture) SetWall(depth float32) {
	nd := fx.GBuffer.NormalDepth.Resource.Resource()
	pos := fx.GBuffer.Position.Resource.Resource()
	for y := 0; y < int(fx.Height); y++ {
		for x := 0; x < int(fx.Width); x++ {
			nd.Store(x, y, [4]float32{0, 0, 1, depth})
			pos.Store(x, y, [4]float32{float32(x) * 0.01, float32(y) * 0.01, -depth, 1})
		}
	}
}

// SetSky clears the G-buffer so that no texel sees geometry.
func (fx *Fixture) SetSky() {
	fx.GBuffer.NormalDepth.Resource.Resource().Fill([4]float32{})
	fx.GBuffer.Position.Resource.Resource().Fill([4]float32{})
}

func (fx *Fixture) SetPassConstants(t testing.TB, pc scene.PassConstants) {
	require.NoError(t, fx.PassCB.WriteStruct(0, pc))
}

// SetTLAS uploads tlas, replacing the current structure.
func (fx *Fixture) SetTLAS(t testing.TB, tlas *accel.TopLevel) {
	res, err := tlas.Upload(fx.Dev, "tlas")
	require.NoError(t, err)
	fx.TLAS.Release()
	fx.TLAS = res
}

// Frame returns the per-frame inputs referencing the fixture resources.
func (fx *Fixture) Frame() denoise.Frame {
	return denoise.Frame{
		GBuffer:               fx.GBuffer,
		AccelerationStructure: fx.TLAS.GPUVirtualAddress(),
		PassConstants:         fx.PassCB.GPUVirtualAddress(),
	}
}

// Execute records a command list with record and runs it.
func (fx *Fixture) Execute(t testing.TB, record func(cmd *device.CommandList)) *device.ExecutionReport {
	cmd := fx.Dev.CreateCommandList("test")
	record(cmd)
	require.NoError(t, cmd.Close())
	report, err := fx.Dev.ExecuteCommandList(cmd)
	require.NoError(t, err)
	return report
}

// ForEachTexel calls fn for every texel of the fixture resolution.
func (fx *Fixture) ForEachTexel(fn func(x, y int)) {
	for y := 0; y < int(fx.Height); y++ {
		for x := 0; x < int(fx.Width); x++ {
			fn(x, y)
		}
	}
}
