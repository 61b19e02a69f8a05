package accel

import (
	"github.com/achilleasa/rtdenoise/gpu/device"
	"github.com/achilleasa/rtdenoise/types"
	"github.com/go-gl/mathgl/mgl32"
)

// Instance places a bottom level structure in the world.
type Instance struct {
	BLAS      *BottomLevel
	Transform mgl32.Mat4

	// Exposed to hit shaders.
	InstanceID uint32

	// Rays skip instances whose mask does not intersect the ray mask.
	Mask uint8

	// Added to the hit group index computed for rays hitting this instance.
	HitGroupOffset uint32
}

type instance struct {
	Instance
	worldToObject mgl32.Mat4
	bbox          [2]types.Vec3
	center        types.Vec3
	index         uint32
}

func (in *instance) BBox() [2]types.Vec3 {
	return in.bbox
}

func (in *instance) Center() types.Vec3 {
	return in.center
}

// TopLevel is a BVH over instances. An empty top level structure is valid
// and never reports a hit.
type TopLevel struct {
	instances []instance
	nodes     []Node
}

// NewTopLevel builds a BVH over the given instances. Instances without a
// BLAS are skipped.
func NewTopLevel(instances []Instance) *TopLevel {
	tlas := &TopLevel{}
	workList := make([]BoundedVolume, 0, len(instances))
	for idx, in := range instances {
		if in.BLAS == nil {
			continue
		}
		bbox := transformBounds(in.Transform, in.BLAS.Bounds())
		workList = append(workList, &instance{
			Instance:      in,
			worldToObject: in.Transform.Inv(),
			bbox:          bbox,
			center:        bbox[0].Add(bbox[1]).Mul(0.5),
			index:         uint32(idx),
		})
	}
	if len(workList) == 0 {
		return tlas
	}

	tlas.nodes = Build(workList, 1, func(leaf *Node, itemList []BoundedVolume) {
		leaf.SetPrimitives(uint32(len(tlas.instances)), uint32(len(itemList)))
		for _, item := range itemList {
			tlas.instances = append(tlas.instances, *item.(*instance))
		}
	}, SurfaceAreaHeuristic)
	return tlas
}

func (t *TopLevel) NumInstances() int {
	return len(t.instances)
}

// SizeInBytes estimates the device memory the structure occupies.
func (t *TopLevel) SizeInBytes() uint64 {
	return uint64(len(t.nodes))*32 + uint64(len(t.instances))*64
}

// Intersect implements device.AccelerationStructure.
func (t *TopLevel) Intersect(ray device.Ray, flags device.RayFlags, mask uint8) (device.Hit, bool) {
	var best device.Hit
	if len(t.nodes) == 0 {
		return best, false
	}

	found := false
	tMax := ray.TMax
	invDir := types.XYZ(1/ray.Direction[0], 1/ray.Direction[1], 1/ray.Direction[2])
	cullBack := flags&device.RayFlagCullBackFacingTriangles != 0
	acceptFirst := flags&device.RayFlagAcceptFirstHitAndEndSearch != 0

	var stack [64]uint32
	sp := 0
	stack[sp] = 0
	sp++
	for sp > 0 {
		sp--
		node := &t.nodes[stack[sp]]
		if _, ok := node.intersectBox(ray.Origin, invDir, ray.TMin, tMax); !ok {
			continue
		}
		if !node.IsLeaf() {
			if sp+2 > len(stack) {
				continue
			}
			stack[sp] = uint32(node.LData)
			stack[sp+1] = uint32(node.RData)
			sp += 2
			continue
		}

		first, count := node.Primitives()
		for i := first; i < first+count; i++ {
			in := &t.instances[i]
			if in.Mask&mask == 0 {
				continue
			}
			origin := mulPoint(in.worldToObject, ray.Origin)
			dir := mulDir(in.worldToObject, ray.Direction)
			hit, ok := in.BLAS.intersect(origin, dir, ray.TMin, tMax, cullBack, acceptFirst)
			if !ok {
				continue
			}
			tMax = hit.t
			found = true
			best = device.Hit{
				T:              hit.t,
				InstanceIndex:  in.index,
				InstanceID:     in.InstanceID,
				HitGroupOffset: in.HitGroupOffset,
				PrimitiveIndex: hit.primitive,
				Barycentrics:   types.XY(hit.u, hit.v),
				FrontFace:      hit.frontFace,
				ObjectToWorld:  rowMajor3x4(in.Transform),
			}
			if acceptFirst {
				return best, true
			}
		}
	}
	return best, found
}

func mulPoint(m mgl32.Mat4, p types.Vec3) types.Vec3 {
	v := m.Mul4x1(mgl32.Vec4{p[0], p[1], p[2], 1})
	return types.XYZ(v[0], v[1], v[2])
}

func mulDir(m mgl32.Mat4, d types.Vec3) types.Vec3 {
	v := m.Mul4x1(mgl32.Vec4{d[0], d[1], d[2], 0})
	return types.XYZ(v[0], v[1], v[2])
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

func transformBounds(m mgl32.Mat4, bounds [2]types.Vec3) [2]types.Vec3 {
	out := emptyBounds()
	for corner := 0; corner < 8; corner++ {
		p := types.XYZ(
			bounds[corner&1][0],
			bounds[(corner>>1)&1][1],
			bounds[(corner>>2)&1][2],
		)
		wp := mulPoint(m, p)
		out[0] = types.MinVec3(out[0], wp)
		out[1] = types.MaxVec3(out[1], wp)
	}
	return out
}

// TransformPoint applies a row-major 3x4 transform, as found in Hit, to a point.
func TransformPoint(m [12]float32, p types.Vec3) types.Vec3 {
	return types.XYZ(
		m[0]*p[0]+m[1]*p[1]+m[2]*p[2]+m[3],
		m[4]*p[0]+m[5]*p[1]+m[6]*p[2]+m[7],
		m[8]*p[0]+m[9]*p[1]+m[10]*p[2]+m[11],
	)
}

// TransformNormal applies the rotation part of a row-major 3x4 transform
// to a direction and renormalizes it. Non-uniform scales are not handled.
func TransformNormal(m [12]float32, n types.Vec3) types.Vec3 {
	return types.XYZ(
		m[0]*n[0]+m[1]*n[1]+m[2]*n[2],
		m[4]*n[0]+m[5]*n[1]+m[6]*n[2],
		m[8]*n[0]+m[9]*n[1]+m[10]*n[2],
	).Normalize()
}
