package accel

import (
	"testing"

	"github.com/achilleasa/rtdenoise/gpu/device"
	"github.com/achilleasa/rtdenoise/types"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/require"
)

// A unit quad in the XZ plane facing +Y.
func quad(t *testing.T) *BottomLevel {
	blas, err := NewBottomLevel("quad",
		[]types.Vec3{{-1, 0, -1}, {1, 0, -1}, {1, 0, 1}, {-1, 0, 1}},
		[]uint32{0, 2, 1, 0, 3, 2},
	)
	require.NoError(t, err)
	return blas
}

func downRay(x, z float32) device.Ray {
	return device.Ray{Origin: types.XYZ(x, 10, z), Direction: types.XYZ(0, -1, 0), TMax: 100}
}

func TestTopLevelIntersect(t *testing.T) {
	blas := quad(t)
	tlas := NewTopLevel([]Instance{
		{BLAS: blas, Transform: mgl32.Translate3D(0, 2, 0), InstanceID: 7, Mask: 0x02, HitGroupOffset: 2},
		{BLAS: blas, Transform: mgl32.Translate3D(0, 0, 0), InstanceID: 9, Mask: 0x01},
	})
	require.Equal(t, 2, tlas.NumInstances())

	hit, ok := tlas.Intersect(downRay(0.25, 0.25), device.RayFlagNone, 0xff)
	require.True(t, ok)
	require.InDelta(t, 8, hit.T, 1e-4)
	require.Equal(t, uint32(7), hit.InstanceID)
	require.Equal(t, uint32(2), hit.HitGroupOffset)
	require.True(t, hit.FrontFace)
	require.InDelta(t, 2, hit.ObjectToWorld[7], 1e-6)

	// Masked out top instance reveals the lower one.
	hit, ok = tlas.Intersect(downRay(0.25, 0.25), device.RayFlagNone, 0x01)
	require.True(t, ok)
	require.Equal(t, uint32(9), hit.InstanceID)
	require.InDelta(t, 10, hit.T, 1e-4)

	_, ok = tlas.Intersect(downRay(3, 0), device.RayFlagNone, 0xff)
	require.False(t, ok)

	// TMax shorter than the distance to the surface.
	ray := downRay(0, 0)
	ray.TMax = 5
	_, ok = tlas.Intersect(ray, device.RayFlagNone, 0xff)
	require.False(t, ok)

	// Back faces can be culled.
	up := device.Ray{Origin: types.XYZ(0.1, -5, 0.1), Direction: types.XYZ(0, 1, 0), TMax: 100}
	_, ok = tlas.Intersect(up, device.RayFlagCullBackFacingTriangles, 0xff)
	require.False(t, ok)
	_, ok = tlas.Intersect(up, device.RayFlagAcceptFirstHitAndEndSearch, 0xff)
	require.True(t, ok)
}

func TestEmptyTopLevel(t *testing.T) {
	tlas := NewTopLevel(nil)
	_, ok := tlas.Intersect(downRay(0, 0), device.RayFlagNone, 0xff)
	require.False(t, ok)

	dev := device.New()
	res, err := tlas.Upload(dev, "tlas")
	require.NoError(t, err)
	require.Equal(t, device.AccelerationStructure(tlas), res.AccelerationStructure())
}

func TestBottomLevelValidation(t *testing.T) {
	_, err := NewBottomLevel("empty", nil, nil)
	require.ErrorIs(t, err, ErrEmptyGeometry)

	_, err = NewBottomLevel("bad", []types.Vec3{{0, 0, 0}}, []uint32{0, 1, 2})
	require.ErrorIs(t, err, ErrBadIndices)
}

func TestLargeMeshTraversal(t *testing.T) {
	// A grid of 16x16 quads exercises interior BVH nodes.
	const n = 16
	var positions []types.Vec3
	var indices []uint32
	for z := 0; z <= n; z++ {
		for x := 0; x <= n; x++ {
			positions = append(positions, types.XYZ(float32(x), 0, float32(z)))
		}
	}
	for z := 0; z < n; z++ {
		for x := 0; x < n; x++ {
			i0 := uint32(z*(n+1) + x)
			indices = append(indices, i0, i0+uint32(n+1), i0+1, i0+1, i0+uint32(n+1), i0+uint32(n+2))
		}
	}
	blas, err := NewBottomLevel("grid", positions, indices)
	require.NoError(t, err)
	require.Equal(t, 2*n*n, blas.NumTriangles())

	tlas := NewTopLevel([]Instance{{BLAS: blas, Transform: mgl32.Ident4(), Mask: 0xff}})
	for z := 0; z < n; z++ {
		for x := 0; x < n; x++ {
			hit, ok := tlas.Intersect(downRay(float32(x)+0.3, float32(z)+0.6), device.RayFlagNone, 0xff)
			require.True(t, ok, "cell (%d, %d)", x, z)
			require.InDelta(t, 10, hit.T, 1e-4)
			require.Equal(t, uint32(2*(z*n+x)), hit.PrimitiveIndex&^1, "cell (%d, %d)", x, z)
		}
	}
}
