package reflection

import (
	"strings"
	"testing"

	"github.com/achilleasa/rtdenoise/denoise"
	"github.com/achilleasa/rtdenoise/denoise/denoisetest"
	"github.com/achilleasa/rtdenoise/gpu/device"
	"github.com/achilleasa/rtdenoise/ibl"
	"github.com/achilleasa/rtdenoise/scene"
	"github.com/achilleasa/rtdenoise/types"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/require"
)

var skyColor = types.XYZ(0.5, 0.25, 1)

type fixture struct {
	*denoisetest.Fixture
	refl *Reflection
	env  *ibl.Maps
	gs   *scene.GpuScene
}

// newFixture renders the denoisetest wall reflecting sc under a uniform
// environment.
func newFixture(t *testing.T, width, height uint32, sc *scene.Scene, configure func(*Settings)) *fixture {
	fx := &fixture{Fixture: denoisetest.New(t, width, height)}

	opts := ibl.DefaultOptions()
	opts.IrradianceWidth = 8
	opts.PrefilteredWidth = 16
	opts.PrefilteredLevels = 3
	opts.BRDFLUTSize = 8
	var err error
	fx.env, err = ibl.BakeRadiance(fx.Dev, fx.Alloc, func(types.Vec3) types.Vec3 { return skyColor }, opts)
	require.NoError(t, err)

	fx.gs, err = scene.Upload(fx.Dev, sc)
	require.NoError(t, err)

	fx.refl, err = New()
	require.NoError(t, err)
	s := fx.refl.Settings()
	s.Denoiser.CheckerboardSampling = false
	if configure != nil {
		configure(&s)
	}
	require.NoError(t, fx.refl.SetSettings(s))
	fx.refl.SetEnvironment(fx.env)

	require.NoError(t, fx.refl.Initialize(fx.Dev, fx.Shaders, width, height))
	require.NoError(t, fx.refl.CompileShaders())
	require.NoError(t, fx.refl.BuildRootSignatures())
	require.NoError(t, fx.refl.BuildPSO())
	require.NoError(t, fx.refl.BuildDescriptors(fx.Alloc))
	require.NoError(t, fx.refl.BuildShaderTables(fx.gs))
	return fx
}

func (fx *fixture) frame() denoise.Frame {
	frame := fx.Frame()
	frame.AccelerationStructure = fx.gs.TLAS().GPUVirtualAddress()
	return frame
}

func (fx *fixture) runFrame(t *testing.T) {
	fx.Execute(t, func(cmd *device.CommandList) {
		fx.refl.Run(cmd, fx.frame())
	})
	_, err := fx.refl.MoveToNextFrame()
	require.NoError(t, err)
	_, err = fx.refl.MoveToNextFrameTemporalReflection()
	require.NoError(t, err)
}

func emptyScene() *scene.Scene {
	sc := scene.NewScene()
	sc.SetCamera(scene.NewCamera(60))
	return sc
}

// mirrorScene places a plane at z = 3 facing the fixture wall.
func mirrorScene(t *testing.T, mat *scene.Material) *scene.Scene {
	sc := emptyScene()
	plane := scene.NewPlane("mirror", 20, 20, 1, 1)
	require.NoError(t, sc.AddMesh(plane))
	idx, err := sc.AddMaterial(mat)
	require.NoError(t, err)
	require.NoError(t, sc.AddItem(&scene.RenderItem{
		Name:          "mirror",
		Geometry:      plane,
		MaterialIndex: idx,
		// Offset so that the traced rays stay clear of the quad diagonal.
		World: mgl32.Translate3D(0.37, 0.23, 3).Mul4(mgl32.HomogRotate3DX(mgl32.DegToRad(90))),
	}))
	return sc
}

func requireColor(t *testing.T, exp types.Vec3, got [4]float32, delta float64, msgAndArgs ...interface{}) {
	for c := 0; c < 3; c++ {
		require.InDelta(t, exp[c], got[c], delta, msgAndArgs...)
	}
}

func TestMissReturnsEnvironment(t *testing.T) {
	fx := newFixture(t, 8, 6, emptyScene(), nil)
	fx.runFrame(t)

	raw := fx.refl.RawReflection().Resource.Resource()
	dist := fx.refl.RayHitDistance().Resource.Resource()
	out := fx.refl.Reflection().Resource.Resource()
	fx.ForEachTexel(func(x, y int) {
		requireColor(t, skyColor, raw.Load(x, y), 1e-2, "raw texel (%d, %d)", x, y)
		requireColor(t, skyColor, out.Load(x, y), 1e-2, "denoised texel (%d, %d)", x, y)
		require.InDelta(t, 100, dist.Load(x, y)[0], 0.1)
	})
}

func TestSkyTexelsAreBlack(t *testing.T) {
	fx := newFixture(t, 4, 4, emptyScene(), nil)
	fx.SetSky()
	fx.Execute(t, func(cmd *device.CommandList) {
		fx.refl.RunCalculatingReflections(cmd, fx.frame())
	})

	raw := fx.refl.RawReflection().Resource.Resource()
	fx.ForEachTexel(func(x, y int) {
		requireColor(t, types.Vec3{}, raw.Load(x, y), 0)
		require.Zero(t, fx.refl.RayHitDistance().Resource.Resource().Load(x, y)[0])
	})
}

func TestMirrorHitIsShaded(t *testing.T) {
	mat := &scene.Material{Name: "red", Albedo: types.XYZ(0.8, 0.1, 0.1), FresnelR0: types.XYZ(0.04, 0.04, 0.04), Roughness: 0.5}
	fx := newFixture(t, 4, 4, mirrorScene(t, mat), nil)
	fx.Execute(t, func(cmd *device.CommandList) {
		fx.refl.RunCalculatingReflections(cmd, fx.frame())
	})

	env := environment{
		irradiance:  fx.env.Irradiance.Resource.Resource(),
		prefiltered: fx.env.Prefiltered.Resource.Resource(),
		brdfLUT:     fx.env.BRDFLUT.Resource.Resource(),
		levels:      fx.env.Levels,
	}
	// The light points down so the plane facing the wall is unlit.
	back := types.XYZ(0, 0, -1)
	exp := shade(env, mat.Constants(), back, back, types.XYZ(0, 1, 0), types.XYZ(1, 1, 1), false)

	raw := fx.refl.RawReflection().Resource.Resource()
	requireColor(t, exp, raw.Load(0, 0), 1e-2)
	require.InDelta(t, 8, fx.refl.RayHitDistance().Resource.Resource().Load(0, 0)[0], 1e-2)
	require.Greater(t, raw.Load(0, 0)[0], raw.Load(0, 0)[1])
}

func TestShadowRaysGateDirectLight(t *testing.T) {
	mat := &scene.Material{Name: "white", Albedo: types.XYZ(1, 1, 1), Roughness: 1}
	sc := mirrorScene(t, mat)
	fx := newFixture(t, 2, 2, sc, nil)

	// Light travelling towards +z reaches the side of the plane that faces
	// the wall.
	pc := scene.PassConstants{LightDirection: mgl32.Vec3{0, 0, 1}, LightStrength: mgl32.Vec3{2, 2, 2}}
	fx.SetPassConstants(t, pc)
	fx.Execute(t, func(cmd *device.CommandList) {
		fx.refl.RunCalculatingReflections(cmd, fx.frame())
	})
	lit := fx.refl.RawReflection().Resource.Resource().Load(0, 0)[0]

	// Block the light with a second plane behind the wall.
	blocker := scene.NewPlane("blocker", 20, 20, 1, 1)
	require.NoError(t, sc.AddMesh(blocker))
	require.NoError(t, sc.AddItem(&scene.RenderItem{
		Name:     "blocker",
		Geometry: blocker,
		World:    mgl32.Translate3D(0.37, 0.23, -10).Mul4(mgl32.HomogRotate3DX(mgl32.DegToRad(90))),
	}))
	fx.gs.Release()
	var err error
	fx.gs, err = scene.Upload(fx.Dev, sc)
	require.NoError(t, err)
	require.NoError(t, fx.refl.BuildShaderTables(fx.gs))
	fx.Execute(t, func(cmd *device.CommandList) {
		fx.refl.RunCalculatingReflections(cmd, fx.frame())
	})
	shadowed := fx.refl.RawReflection().Resource.Resource().Load(0, 0)[0]

	require.InDelta(t, 2/3.14159265, lit-shadowed, 1e-2)
}

func TestShaderTables(t *testing.T) {
	mat := scene.DefaultMaterial()
	fx := newFixture(t, 2, 2, mirrorScene(t, mat), nil)

	require.Equal(t, 1, fx.refl.rayGenTable.Len())
	require.Equal(t, 2, fx.refl.missTable.Len())
	require.Equal(t, scene.HitGroupsPerItem, fx.refl.hitTable.Len())
	require.Equal(t, uint64(64), fx.refl.hitTable.Stride())

	info := fx.refl.ShaderTableInfo()
	for _, export := range []string{rayGenShaderName, radianceMissName, shadowMissName, radianceHitGroupName, shadowHitGroupName} {
		require.True(t, strings.Contains(info, export), "missing %s", export)
	}

	empty := newFixture(t, 2, 2, emptyScene(), nil)
	require.Zero(t, empty.refl.hitTable.Len())
}

func TestRunWithoutEnvironmentPanics(t *testing.T) {
	fx := newFixture(t, 2, 2, emptyScene(), nil)
	fx.refl.SetEnvironment(nil)
	cmd := fx.Dev.CreateCommandList("test")
	require.PanicsWithValue(t, ErrNoEnvironment, func() {
		fx.refl.RunCalculatingReflections(cmd, fx.frame())
	})
}

func TestMoveToNextFrameAlternates(t *testing.T) {
	fx := newFixture(t, 4, 4, emptyScene(), nil)
	for _, exp := range []int{1, 0, 1} {
		fx.Execute(t, func(cmd *device.CommandList) {
			fx.refl.Run(cmd, fx.frame())
		})
		idx, err := fx.refl.MoveToNextFrame()
		require.NoError(t, err)
		require.Equal(t, exp, idx)
		idx, err = fx.refl.MoveToNextFrameTemporalReflection()
		require.NoError(t, err)
		require.Equal(t, exp, idx)
	}
}

func TestOnResize(t *testing.T) {
	fx := newFixture(t, 4, 4, emptyScene(), nil)
	fx.runFrame(t)

	raw := fx.refl.RawReflection().Resource.Resource()
	require.NoError(t, fx.refl.OnResize(4, 4))
	require.Same(t, raw, fx.refl.RawReflection().Resource.Resource())

	require.NoError(t, fx.refl.OnResize(6, 3))
	require.True(t, raw.Released())
	resized := fx.refl.RawReflection().Resource.Resource()
	require.Equal(t, 6, resized.Width())
	require.Equal(t, 3, resized.Height())
	require.Zero(t, fx.refl.Filter().Temporal().Frames())
}

func TestSettingsValidation(t *testing.T) {
	require.NoError(t, DefaultSettings().Validate())

	s := DefaultSettings()
	s.ReflectionRadius = 0
	require.ErrorIs(t, s.Validate(), ErrInvalidSettings)

	s = DefaultSettings()
	s.ShadowRayOffset = -1
	require.ErrorIs(t, s.Validate(), ErrInvalidSettings)

	r, err := New()
	require.NoError(t, err)
	require.ErrorIs(t, r.CompileShaders(), ErrNotInitialized)
	require.ErrorIs(t, r.BuildShaderTables(nil), ErrNotInitialized)
}
