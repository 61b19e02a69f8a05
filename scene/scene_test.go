package scene

import (
	"testing"

	"github.com/achilleasa/rtdenoise/types"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/require"
)

func TestAddItemValidation(t *testing.T) {
	sc := NewScene()
	box := NewBox("box", 1, 1, 1)

	err := sc.AddItem(&RenderItem{Name: "orphan", Geometry: box})
	require.ErrorIs(t, err, ErrUnknownMesh)

	require.NoError(t, sc.AddMesh(box))
	require.ErrorIs(t, sc.AddMesh(box), ErrDuplicate)

	err = sc.AddItem(&RenderItem{Name: "nomat", Geometry: box})
	require.ErrorIs(t, err, ErrUnknownMaterial)

	matIndex, err := sc.AddMaterial(DefaultMaterial())
	require.NoError(t, err)
	item := &RenderItem{Name: "ok", Geometry: box, MaterialIndex: matIndex, World: mgl32.Translate3D(1, 0, 0)}
	require.NoError(t, sc.AddItem(item))
	require.Equal(t, item.World, item.PrevWorld)
	require.ErrorIs(t, sc.AddItem(item), ErrDuplicate)

	require.ErrorIs(t, sc.Validate(), ErrNoCamera)
}

func TestDefaultSceneIsConsistent(t *testing.T) {
	var sc *Scene
	require.NotPanics(t, func() { sc = DefaultScene() })
	require.NoError(t, sc.Validate())
	require.Len(t, sc.Meshes, 3)
	require.Len(t, sc.Materials, 3)
	require.Len(t, sc.Items, 6)
	for idx, item := range sc.Items {
		require.Equal(t, uint32(idx), item.ObjCBIndex)
		require.Contains(t, sc.Meshes, item.Geometry)
		require.Less(t, int(item.MaterialIndex), len(sc.Materials))
	}

	// A rejected add surfaces as a panic instead of a silently broken scene.
	require.Panics(t, func() { must(sc.AddMesh(sc.Meshes[0])) })
	require.Panics(t, func() { mustIndex(sc.AddMaterial(sc.Materials[0])) })
}

func TestAnimateKeepsPreviousTransform(t *testing.T) {
	sc := DefaultScene()
	var spinning *RenderItem
	for _, item := range sc.Items {
		if item.Spin != 0 {
			spinning = item
		}
	}
	require.NotNil(t, spinning)

	before := spinning.World
	sc.Animate(0.5)
	require.Equal(t, before, spinning.PrevWorld)
	require.NotEqual(t, before, spinning.World)
}

func TestMeshGenerators(t *testing.T) {
	plane := NewPlane("plane", 2, 4, 2, 3)
	require.Len(t, plane.Vertices, 3*4)
	require.Len(t, plane.Indices, 2*3*6)
	bbox := plane.BBox()
	require.Equal(t, types.XYZ(-1, 0, -2), bbox[0])
	require.Equal(t, types.XYZ(1, 0, 2), bbox[1])

	// The plane winding must agree with its +Y normals.
	plane.GenerateNormals()
	for _, v := range plane.Vertices {
		require.True(t, types.ApproxEqual(types.XYZ(0, 1, 0), v.Normal, 1e-5), "normal %v", v.Normal)
	}

	box := NewBox("box", 2, 2, 2)
	require.Len(t, box.Vertices, 24)
	require.Len(t, box.Indices, 36)
	for i := 0; i < len(box.Indices); i += 3 {
		v0 := box.Vertices[box.Indices[i]]
		e1 := box.Vertices[box.Indices[i+1]].Position.Sub(v0.Position)
		e2 := box.Vertices[box.Indices[i+2]].Position.Sub(v0.Position)
		require.Greater(t, e1.Cross(e2).Dot(v0.Normal), float32(0), "triangle %d faces inwards", i/3)
	}
}

func TestCameraFrustum(t *testing.T) {
	cam := NewCamera(90)
	cam.Position = mgl32.Vec3{0, 0, 5}
	cam.LookAt = mgl32.Vec3{0, 0, 0}
	cam.SetupProjection(1)

	require.InDelta(t, 0, cam.Forward()[0], 1e-6)
	require.InDelta(t, -1, cam.Forward()[2], 1e-6)

	// With a 90 degree fov the corner rays form 45 degree angles.
	tl := cam.Frustum[0].Vec3()
	require.InDelta(t, -tl[2], tl[1], 1e-3)
	require.InDelta(t, tl[2], tl[0], 1e-3)
	br := cam.Frustum[3].Vec3()
	require.InDelta(t, -br[2], br[0], 1e-3)
	require.InDelta(t, br[2], br[1], 1e-3)
}
