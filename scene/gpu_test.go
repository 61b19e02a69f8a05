package scene

import (
	"testing"

	"github.com/achilleasa/rtdenoise/gpu/device"
	"github.com/achilleasa/rtdenoise/types"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/require"
)

func TestUploadDefaultScene(t *testing.T) {
	dev := device.New(device.WithDebugLayer(true))
	sc := DefaultScene()
	gs, err := Upload(dev, sc)
	require.NoError(t, err)
	require.NoError(t, gs.Update(1.0/60, 64, 32))

	pass := gs.PassConstants()
	require.Equal(t, mgl32.Vec2{64, 32}, pass.RenderTargetSize)
	require.Equal(t, pass.ViewProj, pass.PrevViewProj, "first frame has no camera motion")
	require.Zero(t, pass.FrameIndex)

	var oc ObjectConstants
	col := sc.Items[1]
	require.NoError(t, gs.objectCB.ReadStruct(int(col.ObjCBIndex*uint32(gs.ObjectCBStride)), &oc))
	require.Equal(t, col.World, oc.World)

	var rec InstanceRecord
	require.NoError(t, gs.instanceTable.ReadStruct(int(col.ObjCBIndex)*32, &rec))
	require.Equal(t, col.Geometry.VertexBuffer.GPUVirtualAddress(), rec.VertexBuffer)
	require.Equal(t, gs.MaterialCBAddress(col.MaterialIndex), rec.MaterialCB)

	// A ray straight down near the origin hits the top of the column.
	hit, ok := gs.TLAS().AccelerationStructure().Intersect(device.Ray{
		Origin:    types.XYZ(0.2, 10, 0.1),
		Direction: types.XYZ(0, -1, 0),
		TMax:      100,
	}, device.RayFlagNone, 0xff)
	require.True(t, ok)
	require.InDelta(t, 6, hit.T, 1e-4)
	require.Equal(t, col.ObjCBIndex, hit.InstanceID)
	require.Equal(t, col.ObjCBIndex*HitGroupsPerItem, hit.HitGroupOffset)

	vb, err := col.Geometry.VertexBuffer.Map()
	require.NoError(t, err)
	ib, err := col.Geometry.IndexBuffer.Map()
	require.NoError(t, err)
	surf, err := InterpolateSurface(vb, ib, hit.PrimitiveIndex, hit.Barycentrics, hit.ObjectToWorld)
	require.NoError(t, err)
	require.InDelta(t, 4, surf.Position[1], 1e-4)
	require.True(t, types.ApproxEqual(types.XYZ(0, 1, 0), surf.Normal, 1e-4), "normal %v", surf.Normal)

	live := dev.LiveResources()
	require.NotZero(t, live)
	gs.Release()
	require.Zero(t, dev.LiveResources())
}

func TestUpdateTracksPreviousViewProjection(t *testing.T) {
	dev := device.New()
	sc := DefaultScene()
	gs, err := Upload(dev, sc)
	require.NoError(t, err)
	defer gs.Release()

	require.NoError(t, gs.Update(0.1, 32, 32))
	first := gs.PassConstants().ViewProj

	sc.Camera.Position = mgl32.Vec3{1, 4, 10}
	require.NoError(t, gs.Update(0.1, 32, 32))
	pass := gs.PassConstants()
	require.Equal(t, first, pass.PrevViewProj)
	require.NotEqual(t, first, pass.ViewProj)
	require.Equal(t, uint32(1), pass.FrameIndex)
	require.InDelta(t, 0.2, pass.TotalTime, 1e-6)
}

func TestInterpolateSurfaceBounds(t *testing.T) {
	_, err := InterpolateSurface(make([]byte, 32), make([]byte, 12), 1, types.XY(0, 0), [12]float32{})
	require.Error(t, err)
	_, err = InterpolateSurface(make([]byte, 32), []byte{0, 0, 0, 0, 5, 0, 0, 0, 0, 0, 0, 0}, 0, types.XY(0, 0), [12]float32{})
	require.Error(t, err)
}
