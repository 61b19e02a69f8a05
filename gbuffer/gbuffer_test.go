package gbuffer

import (
	"testing"

	"github.com/achilleasa/rtdenoise/gpu/device"
	"github.com/achilleasa/rtdenoise/gpu/shader"
	"github.com/achilleasa/rtdenoise/scene"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/require"
)

const (
	width  = 8
	height = 6
)

type fixture struct {
	dev  *device.Device
	sc   *scene.Scene
	gs   *scene.GpuScene
	pass *Pass
}

// newFixture looks down -z at an optional wall 5 units away.
func newFixture(t *testing.T, withWall bool) *fixture {
	dev := device.New(device.WithDebugLayer(true), device.WithWorkers(2))
	heap, err := dev.CreateDescriptorHeap(device.DescriptorHeapDesc{Name: "test", NumDescriptors: 16, ShaderVisible: true})
	require.NoError(t, err)

	sc := scene.NewScene()
	sc.SetCamera(scene.NewCamera(60))
	if withWall {
		wall := scene.NewPlane("wall", 20, 20, 1, 1)
		require.NoError(t, sc.AddMesh(wall))
		mat, err := sc.AddMaterial(scene.DefaultMaterial())
		require.NoError(t, err)
		require.NoError(t, sc.AddItem(&scene.RenderItem{
			Name:          "wall",
			Geometry:      wall,
			MaterialIndex: mat,
			World:         wallTransform(0),
		}))
	}

	fx := &fixture{dev: dev, sc: sc, pass: New()}
	fx.gs, err = scene.Upload(dev, sc)
	require.NoError(t, err)
	require.NoError(t, fx.gs.Update(0, width, height))

	require.NoError(t, fx.pass.Initialize(dev, shader.NewManager(nil), width, height))
	require.NoError(t, fx.pass.CompileShaders())
	require.NoError(t, fx.pass.BuildRootSignature())
	require.NoError(t, fx.pass.BuildPSO())
	require.NoError(t, fx.pass.BuildDescriptors(device.NewDescriptorAllocator(heap)))
	return fx
}

// The plane faces +z; the offset keeps pixel rays off its diagonal.
func wallTransform(dx float32) mgl32.Mat4 {
	return mgl32.Translate3D(0.37+dx, 0.23, -5).Mul4(mgl32.HomogRotate3DX(mgl32.DegToRad(90)))
}

func (fx *fixture) run(t *testing.T) {
	cmd := fx.dev.CreateCommandList("gbuffer")
	fx.pass.Run(cmd, fx.gs)
	require.NoError(t, cmd.Close())
	_, err := fx.dev.ExecuteCommandList(cmd)
	require.NoError(t, err)
}

func forEachPixel(fn func(x, y int)) {
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			fn(x, y)
		}
	}
}

func TestWallAttributes(t *testing.T) {
	fx := newFixture(t, true)
	fx.run(t)

	gbuf := fx.pass.GBuffer()
	nd := gbuf.NormalDepth.Resource.Resource()
	pos := gbuf.Position.Resource.Resource()
	vel := gbuf.Velocity.Resource.Resource()
	forEachPixel(func(x, y int) {
		n := nd.Load(x, y)
		require.InDelta(t, 1, n[2], 1e-4, "normal at (%d, %d)", x, y)
		require.InDelta(t, 5, n[3], 1e-3, "depth at (%d, %d)", x, y)
		p := pos.Load(x, y)
		require.InDelta(t, -5, p[2], 1e-3)
		require.Equal(t, float32(1), p[3])
		v := vel.Load(x, y)
		require.InDelta(t, 0, v[0], 1e-5)
		require.InDelta(t, 0, v[1], 1e-5)
	})

	// Rows go top to bottom and columns left to right.
	require.Greater(t, pos.Load(0, 0)[1], pos.Load(0, height-1)[1])
	require.Less(t, pos.Load(0, 0)[0], pos.Load(width-1, 0)[0])
}

func TestEmptySceneClearsGBuffer(t *testing.T) {
	fx := newFixture(t, false)
	fx.pass.GBuffer().NormalDepth.Resource.Resource().Fill([4]float32{1, 1, 1, 1})
	fx.run(t)

	nd := fx.pass.GBuffer().NormalDepth.Resource.Resource()
	forEachPixel(func(x, y int) {
		require.Equal(t, [4]float32{}, nd.Load(x, y))
	})
}

func TestInstanceMotionVelocity(t *testing.T) {
	fx := newFixture(t, true)
	fx.run(t)

	item := fx.sc.Items[0]
	item.PrevWorld = item.World
	item.World = wallTransform(0.5)
	require.NoError(t, fx.gs.Update(0.016, width, height))
	fx.run(t)

	pc := fx.gs.PassConstants()
	pos := fx.pass.GBuffer().Position.Resource.Resource()
	vel := fx.pass.GBuffer().Velocity.Resource.Resource()
	forEachPixel(func(x, y int) {
		p := pos.Load(x, y)
		prev := pc.PrevViewProj.Mul4x1(mgl32.Vec4{p[0] - 0.5, p[1], p[2], 1})
		prevU := prev[0]/prev[3]*0.5 + 0.5
		u := (float32(x) + 0.5) / width

		v := vel.Load(x, y)
		require.InDelta(t, u-prevU, v[0], 1e-4, "velocity at (%d, %d)", x, y)
		require.InDelta(t, 0, v[1], 1e-4)
		require.Greater(t, v[0], float32(0))
	})
}

func TestCameraMotionVelocity(t *testing.T) {
	fx := newFixture(t, true)
	fx.run(t)

	cam := fx.sc.Camera
	cam.Position = cam.Position.Add(mgl32.Vec3{0, 0.2, 0})
	cam.LookAt = cam.LookAt.Add(mgl32.Vec3{0, 0.2, 0})
	require.NoError(t, fx.gs.Update(0.016, width, height))
	fx.run(t)

	// The camera moved up so the wall moved down the screen, towards larger v.
	vel := fx.pass.GBuffer().Velocity.Resource.Resource()
	forEachPixel(func(x, y int) {
		v := vel.Load(x, y)
		require.InDelta(t, 0, v[0], 1e-4)
		require.Greater(t, v[1], float32(0), "velocity at (%d, %d)", x, y)
	})
}

func TestOnResize(t *testing.T) {
	fx := newFixture(t, true)
	before := fx.pass.GBuffer().Position.Resource.Resource()
	require.NoError(t, fx.pass.OnResize(width, height))
	require.Same(t, before, fx.pass.GBuffer().Position.Resource.Resource())

	require.NoError(t, fx.pass.OnResize(4, 4))
	after := fx.pass.GBuffer().Position.Resource.Resource()
	require.True(t, before.Released())
	require.Equal(t, 4, after.Width())
}
