package reflection

import (
	"github.com/achilleasa/rtdenoise/denoise"
	"github.com/achilleasa/rtdenoise/gpu/device"
	"github.com/achilleasa/rtdenoise/gpu/shader"
	"github.com/achilleasa/rtdenoise/ibl"
	"github.com/achilleasa/rtdenoise/scene"
	"github.com/achilleasa/rtdenoise/types"
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

const (
	libraryEntryPoint = "reflection/Raytracing"

	rayGenShaderName           = "RayGenShader"
	radianceClosestHitName     = "RadianceClosestHitShader"
	radianceMissName           = "RadianceMissShader"
	shadowClosestHitName       = "ShadowClosestHitShader"
	shadowMissName             = "ShadowMissShader"
	radianceHitGroupName       = "RadianceHitGroup"
	shadowHitGroupName         = "ShadowHitGroup"
	radianceRayIndex    uint32 = 0
	shadowRayIndex      uint32 = 1
)

// Global root signature layout.
const (
	paramConstants = iota
	paramAccelerationStructure
	paramPassConstants
	paramNormalDepth
	paramPosition
	paramIrradiance
	paramPrefiltered
	paramBRDFLUT
	paramColor
	paramRayHitDistance
	numParams
)

// Local root signature layout of the hit groups.
const (
	localObjectCB = iota
	localMaterialCB
	localVertexBuffer
	localIndexBuffer
	numLocalParams
)

type rayGenParams struct {
	Width             uint32
	Height            uint32
	Checkerboard      uint32
	Parity            uint32
	ReflectionRadius  float32
	ShadowRayOffset   float32
	PrefilteredLevels uint32
}

type radiancePayload struct {
	Color [3]float32
	THit  float32
}

type shadowPayload struct {
	Visible uint32
}

func init() {
	shader.RegisterLibrary(libraryEntryPoint, func(shader.Defines) (device.RayLibrary, error) {
		return device.RayLibrary{
			rayGenShaderName:       {Kind: device.RayGenerationShader, RayGeneration: rayGenShader},
			radianceClosestHitName: {Kind: device.ClosestHitShader, ClosestHit: radianceClosestHit},
			radianceMissName:       {Kind: device.MissShader, Miss: radianceMiss},
			shadowClosestHitName: {Kind: device.ClosestHitShader, ClosestHit: func(rc *device.RayContext, payload interface{}) error {
				payload.(*shadowPayload).Visible = 0
				return nil
			}},
			shadowMissName: {Kind: device.MissShader, Miss: func(rc *device.RayContext, payload interface{}) error {
				payload.(*shadowPayload).Visible = 1
				return nil
			}},
		}, nil
	})
}

// environment holds the IBL textures bound to the dispatch.
type environment struct {
	irradiance  *device.Resource
	prefiltered *device.Resource
	brdfLUT     *device.Resource
	levels      uint32
}

func bindEnvironment(dc *device.DispatchContext, levels uint32) (environment, error) {
	env := environment{levels: levels}
	var err error
	if env.irradiance, err = dc.SRV(paramIrradiance); err != nil {
		return env, err
	}
	if env.prefiltered, err = dc.SRV(paramPrefiltered); err != nil {
		return env, err
	}
	env.brdfLUT, err = dc.SRV(paramBRDFLUT)
	return env, err
}

// rayGenShader traces one mirror reflection ray per pixel and writes the
// incoming radiance and the distance to the reflected surface.
func rayGenShader(dc *device.DispatchContext) (func(rc *device.RayContext) error, error) {
	var p rayGenParams
	if err := dc.Constants(paramConstants, &p); err != nil {
		return nil, err
	}
	tlas, err := dc.AccelerationStructure(paramAccelerationStructure)
	if err != nil {
		return nil, err
	}
	var pass scene.PassConstants
	if err = dc.ConstantBuffer(paramPassConstants, &pass); err != nil {
		return nil, err
	}
	normalDepth, err := dc.SRV(paramNormalDepth)
	if err != nil {
		return nil, err
	}
	position, err := dc.SRV(paramPosition)
	if err != nil {
		return nil, err
	}
	colorOut, err := dc.UAV(paramColor)
	if err != nil {
		return nil, err
	}
	hitDistanceOut, err := dc.UAV(paramRayHitDistance)
	if err != nil {
		return nil, err
	}
	eye := types.Vec3(pass.EyePosW)

	return func(rc *device.RayContext) error {
		idx := rc.DispatchRaysIndex()
		x, y := idx[0], idx[1]
		if p.Checkerboard != 0 {
			y = 2*y + ((x + p.Parity) & 1)
		}
		if x >= p.Width || y >= p.Height {
			return nil
		}
		px, py := int(x), int(y)

		nd := normalDepth.Load(px, py)
		if nd[3] <= 0 {
			colorOut.Store(px, py, [4]float32{0, 0, 0, 1})
			hitDistanceOut.Store(px, py, [4]float32{0})
			return nil
		}
		n := types.XYZ(nd[0], nd[1], nd[2]).Normalize()
		pos := position.Load(px, py)
		p3 := types.XYZ(pos[0], pos[1], pos[2])
		view := p3.Sub(eye).Normalize()
		if view.Dot(n) > 0 {
			n = n.Mul(-1)
		}

		payload := radiancePayload{}
		ray := device.Ray{
			Origin:    p3.Add(n.Mul(denoise.RayOriginOffset)),
			Direction: view.Reflect(n).Normalize(),
			TMax:      p.ReflectionRadius,
		}
		if err := rc.TraceRay(tlas, device.RayFlagNone, 0xff, radianceRayIndex, scene.HitGroupsPerItem, radianceRayIndex, ray, &payload); err != nil {
			return err
		}
		colorOut.Store(px, py, [4]float32{payload.Color[0], payload.Color[1], payload.Color[2], 1})
		hitDistanceOut.Store(px, py, [4]float32{payload.THit})
		return nil
	}, nil
}

// radianceMiss returns the mirror environment. The hit distance is the ray
// extent so that distant reflections are filtered as such.
func radianceMiss(rc *device.RayContext, payload interface{}) error {
	var p rayGenParams
	if err := rc.Constants(paramConstants, &p); err != nil {
		return err
	}
	env, err := bindEnvironment(rc.DispatchContext, p.PrefilteredLevels)
	if err != nil {
		return err
	}
	c := ibl.SamplePrefiltered(env.prefiltered, rc.WorldRay.Direction.Normalize(), 0, env.levels)
	out := payload.(*radiancePayload)
	out.Color = [3]float32{c[0], c[1], c[2]}
	out.THit = rc.WorldRay.TMax
	return nil
}

// radianceClosestHit shades the reflected surface with the image based
// lighting plus the directional light when a shadow ray reaches it.
func radianceClosestHit(rc *device.RayContext, payload interface{}) error {
	var p rayGenParams
	if err := rc.Constants(paramConstants, &p); err != nil {
		return err
	}
	var pass scene.PassConstants
	if err := rc.ConstantBuffer(paramPassConstants, &pass); err != nil {
		return err
	}
	var object scene.ObjectConstants
	if err := rc.LocalConstantBuffer(localObjectCB, &object); err != nil {
		return err
	}
	var material scene.MaterialConstants
	if err := rc.LocalConstantBuffer(localMaterialCB, &material); err != nil {
		return err
	}
	vb, err := rc.LocalBuffer(localVertexBuffer)
	if err != nil {
		return err
	}
	ib, err := rc.LocalBuffer(localIndexBuffer)
	if err != nil {
		return err
	}
	surface, err := scene.InterpolateSurface(vb, ib, rc.Hit.PrimitiveIndex, rc.Hit.Barycentrics, rowMajor3x4(object.World))
	if err != nil {
		return err
	}
	env, err := bindEnvironment(rc.DispatchContext, p.PrefilteredLevels)
	if err != nil {
		return err
	}

	v := rc.WorldRay.Direction.Mul(-1).Normalize()
	n := surface.Normal
	if n.Dot(v) < 0 {
		n = n.Mul(-1)
	}
	l := types.Vec3(pass.LightDirection).Mul(-1).Normalize()

	lit := false
	if n.Dot(l) > 0 {
		tlas, err := rc.AccelerationStructure(paramAccelerationStructure)
		if err != nil {
			return err
		}
		shadow := shadowPayload{}
		ray := device.Ray{
			Origin:    surface.Position.Add(n.Mul(p.ShadowRayOffset)),
			Direction: l,
			TMax:      math32.MaxFloat32,
		}
		flags := device.RayFlagAcceptFirstHitAndEndSearch | device.RayFlagSkipClosestHitShader
		if err := rc.TraceRay(tlas, flags, 0xff, shadowRayIndex, scene.HitGroupsPerItem, shadowRayIndex, ray, &shadow); err != nil {
			return err
		}
		lit = shadow.Visible != 0
	}

	c := shade(env, material, n, v, l, types.Vec3(pass.LightStrength), lit)
	out := payload.(*radiancePayload)
	out.Color = [3]float32{c[0], c[1], c[2]}
	out.THit = rc.Hit.T
	return nil
}

// shade evaluates the split sum approximation of the environment lighting
// and a lambertian term for the directional light.
func shade(env environment, m scene.MaterialConstants, n, v, l, lightStrength types.Vec3, lit bool) types.Vec3 {
	albedo := types.XYZ(m.Albedo[0], m.Albedo[1], m.Albedo[2])
	f0 := types.Vec3(m.FresnelR0).Lerp(albedo, m.Metalness)
	diffuse := albedo.Mul(1 - m.Metalness)
	nDotV := math32.Max(n.Dot(v), 1e-4)

	irradiance := ibl.SampleIrradiance(env.irradiance, n)
	specular := ibl.SamplePrefiltered(env.prefiltered, v.Mul(-1).Reflect(n), m.Roughness, env.levels)
	scale, bias := ibl.SampleBRDF(env.brdfLUT, nDotV, m.Roughness)
	specularWeight := f0.Mul(scale).Add(types.XYZ(bias, bias, bias))

	color := diffuse.MulVec(irradiance).Add(specular.MulVec(specularWeight))
	if lit {
		color = color.Add(diffuse.MulVec(lightStrength).Mul(n.Dot(l) / math32.Pi))
	}
	return color
}

func rowMajor3x4(m mgl32.Mat4) [12]float32 {
	var out [12]float32
	for r := 0; r < 3; r++ {
		for c := 0; c < 4; c++ {
			out[r*4+c] = m.At(r, c)
		}
	}
	return out
}
