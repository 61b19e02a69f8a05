package rtao

import (
	"github.com/achilleasa/rtdenoise/denoise"
	"github.com/achilleasa/rtdenoise/gpu/device"
	"github.com/achilleasa/rtdenoise/gpu/shader"
	"github.com/achilleasa/rtdenoise/scene"
	"github.com/achilleasa/rtdenoise/types"
	"github.com/chewxy/math32"
)

const (
	libraryEntryPoint = "rtao/AmbientOcclusion"

	rayGenShaderName     = "RayGenShader"
	closestHitShaderName = "ClosestHitShader"
	missShaderName       = "MissShader"
	hitGroupName         = "HitGroup"
)

// Global root signature layout.
const (
	paramConstants = iota
	paramAccelerationStructure
	paramPassConstants
	paramNormalDepth
	paramPosition
	paramAOCoefficient
	paramRayHitDistance
	numParams
)

type rayGenParams struct {
	Width                      uint32
	Height                     uint32
	Checkerboard               uint32
	Parity                     uint32
	SamplesPerPixel            uint32
	MaxRayHitTime              float32
	ApplyExponentialFalloff    uint32
	FalloffDecayConstant       float32
	MinimumAmbientIllumination float32
}

// occlusion weight of an occluder hit at distance t.
func (p *rayGenParams) occlusion(t float32) float32 {
	if p.ApplyExponentialFalloff == 0 {
		return 1
	}
	x := t / p.MaxRayHitTime
	return math32.Exp(-p.FalloffDecayConstant * x * x)
}

// Payload of occlusion rays. Misses leave THit at 0.
type aoPayload struct {
	THit float32
}

func init() {
	shader.RegisterLibrary(libraryEntryPoint, func(shader.Defines) (device.RayLibrary, error) {
		return device.RayLibrary{
			rayGenShaderName: {Kind: device.RayGenerationShader, RayGeneration: rayGenShader},
			closestHitShaderName: {Kind: device.ClosestHitShader, ClosestHit: func(rc *device.RayContext, payload interface{}) error {
				payload.(*aoPayload).THit = rc.Hit.T
				return nil
			}},
			missShaderName: {Kind: device.MissShader, Miss: func(rc *device.RayContext, payload interface{}) error {
				payload.(*aoPayload).THit = 0
				return nil
			}},
		}, nil
	})
}

// rayGenShader traces SamplesPerPixel cosine distributed rays per pixel and
// writes the ambient coefficient and the average occluder distance. Pixels
// without geometry are fully lit.
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
	aoOut, err := dc.UAV(paramAOCoefficient)
	if err != nil {
		return nil, err
	}
	hitDistanceOut, err := dc.UAV(paramRayHitDistance)
	if err != nil {
		return nil, err
	}

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
			aoOut.Store(px, py, [4]float32{1})
			hitDistanceOut.Store(px, py, [4]float32{0})
			return nil
		}
		n := types.XYZ(nd[0], nd[1], nd[2]).Normalize()
		pos := position.Load(px, py)
		origin := types.XYZ(pos[0], pos[1], pos[2]).Add(n.Mul(denoise.RayOriginOffset))

		rng := denoise.NewRng(x, y, pass.FrameIndex)
		var occlusion, hitDistance float32
		var hits int
		for s := uint32(0); s < p.SamplesPerPixel; s++ {
			payload := aoPayload{}
			ray := device.Ray{
				Origin:    origin,
				Direction: denoise.CosineSampleHemisphere(n, rng.Float(), rng.Float()),
				TMax:      p.MaxRayHitTime,
			}
			if err := rc.TraceRay(tlas, device.RayFlagNone, 0xff, 0, 0, 0, ray, &payload); err != nil {
				return err
			}
			if payload.THit <= 0 {
				continue
			}
			hits++
			hitDistance += payload.THit
			occlusion += p.occlusion(payload.THit)
		}

		ao := 1 - occlusion/float32(p.SamplesPerPixel)
		aoOut.Store(px, py, [4]float32{math32.Max(ao, p.MinimumAmbientIllumination)})
		if hits > 0 {
			hitDistance /= float32(hits)
		}
		hitDistanceOut.Store(px, py, [4]float32{hitDistance})
		return nil
	}, nil
}
