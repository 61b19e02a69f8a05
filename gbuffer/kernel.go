package gbuffer

import (
	"fmt"

	"github.com/achilleasa/rtdenoise/gpu/device"
	"github.com/achilleasa/rtdenoise/gpu/shader"
	"github.com/achilleasa/rtdenoise/scene"
	"github.com/achilleasa/rtdenoise/types"
	"github.com/go-gl/mathgl/mgl32"
)

const (
	programName     = "gbuffer/PrimaryRays"
	threadGroupSize = 8
)

// Root signature layout.
const (
	paramConstants = iota
	paramAccelerationStructure
	paramPassConstants
	paramInstanceTable
	paramNormalDepth
	paramPosition
	paramVelocity
	numParams
)

type primaryRayParams struct {
	Width        uint32
	Height       uint32
	NumInstances uint32
}

func init() {
	shader.RegisterCompute(programName, func(shader.Defines) (device.ComputeProgram, error) {
		return primaryRayKernel{}, nil
	})
}

// instanceData is the decoded instance table entry of one render item.
type instanceData struct {
	vb, ib     []byte
	worldToObj mgl32.Mat4
	prevWorld  mgl32.Mat4
}

func bufferAt(dev *device.Device, addr device.GPUVirtualAddress) ([]byte, *device.Resource, uint64, error) {
	res, offset, err := dev.Resolve(addr)
	if err != nil {
		return nil, nil, 0, err
	}
	data, err := res.Map()
	if err != nil {
		return nil, nil, 0, err
	}
	return data[offset:], res, offset, nil
}

func loadInstances(dev *device.Device, table []byte, count uint32) ([]instanceData, error) {
	out := make([]instanceData, count)
	for i := range out {
		rec, err := scene.DecodeInstanceRecord(table[i*scene.InstanceRecordSize:])
		if err != nil {
			return nil, fmt.Errorf("gbuffer: instance %d: %w", i, err)
		}
		vb, _, _, err := bufferAt(dev, rec.VertexBuffer)
		if err != nil {
			return nil, fmt.Errorf("gbuffer: instance %d vertex buffer: %w", i, err)
		}
		ib, _, _, err := bufferAt(dev, rec.IndexBuffer)
		if err != nil {
			return nil, fmt.Errorf("gbuffer: instance %d index buffer: %w", i, err)
		}
		_, cb, offset, err := bufferAt(dev, rec.ObjectCB)
		if err != nil {
			return nil, fmt.Errorf("gbuffer: instance %d object constants: %w", i, err)
		}
		var oc scene.ObjectConstants
		if err = cb.ReadStruct(int(offset), &oc); err != nil {
			return nil, err
		}
		out[i] = instanceData{vb: vb, ib: ib, worldToObj: oc.World.Inv(), prevWorld: oc.PrevWorld}
	}
	return out, nil
}

// primaryRayKernel traces one camera ray per pixel and writes the surface
// attributes of the closest hit. Pixels without geometry are cleared.
type primaryRayKernel struct{}

func (primaryRayKernel) NumThreads() [3]uint32 {
	return [3]uint32{threadGroupSize, threadGroupSize, 1}
}

func (primaryRayKernel) Prepare(dc *device.DispatchContext) (device.ThreadFunc, error) {
	var p primaryRayParams
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
	table, err := dc.Buffer(paramInstanceTable)
	if err != nil {
		return nil, err
	}
	instances, err := loadInstances(dc.Device(), table, p.NumInstances)
	if err != nil {
		return nil, err
	}
	normalDepth, err := dc.UAV(paramNormalDepth)
	if err != nil {
		return nil, err
	}
	position, err := dc.UAV(paramPosition)
	if err != nil {
		return nil, err
	}
	velocity, err := dc.UAV(paramVelocity)
	if err != nil {
		return nil, err
	}

	eye := types.Vec3(pass.EyePosW)
	forward := types.Vec3(pass.EyeForwardW)
	corner := func(i int) types.Vec3 {
		return types.XYZ(pass.FrustumRays[i][0], pass.FrustumRays[i][1], pass.FrustumRays[i][2])
	}
	tl, tr, bl, br := corner(0), corner(1), corner(2), corner(3)

	return func(tid [3]uint32) {
		if tid[0] >= p.Width || tid[1] >= p.Height {
			return
		}
		x, y := int(tid[0]), int(tid[1])
		u := (float32(x) + 0.5) / float32(p.Width)
		v := (float32(y) + 0.5) / float32(p.Height)
		dir := tl.Lerp(tr, u).Lerp(bl.Lerp(br, u), v).Normalize()

		ray := device.Ray{Origin: eye, Direction: dir, TMin: pass.NearZ, TMax: pass.FarZ}
		hit, ok := tlas.Intersect(ray, device.RayFlagNone, 0xff)
		if !ok || hit.InstanceID >= uint32(len(instances)) {
			clearTexel(normalDepth, position, velocity, x, y)
			return
		}
		in := &instances[hit.InstanceID]
		surface, err := scene.InterpolateSurface(in.vb, in.ib, hit.PrimitiveIndex, hit.Barycentrics, hit.ObjectToWorld)
		if err != nil {
			clearTexel(normalDepth, position, velocity, x, y)
			return
		}
		n := surface.Normal
		if n.Dot(dir) > 0 {
			n = n.Mul(-1)
		}
		depth := surface.Position.Sub(eye).Dot(forward)
		normalDepth.Store(x, y, [4]float32{n[0], n[1], n[2], depth})
		position.Store(x, y, [4]float32{surface.Position[0], surface.Position[1], surface.Position[2], 1})

		// Where the point was last frame, seen through last frame's camera.
		p3 := surface.Position
		obj := in.worldToObj.Mul4x1(mgl32.Vec4{p3[0], p3[1], p3[2], 1})
		prev := pass.PrevViewProj.Mul4x1(in.prevWorld.Mul4x1(obj))
		if prev[3] <= 0 {
			velocity.Store(x, y, [4]float32{})
			return
		}
		prevU := prev[0]/prev[3]*0.5 + 0.5
		prevV := (1 - prev[1]/prev[3]) * 0.5
		velocity.Store(x, y, [4]float32{u - prevU, v - prevV})
	}, nil
}

func clearTexel(normalDepth, position, velocity *device.Resource, x, y int) {
	normalDepth.Store(x, y, [4]float32{})
	position.Store(x, y, [4]float32{})
	velocity.Store(x, y, [4]float32{})
}
