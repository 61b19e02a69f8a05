package accel

import (
	"errors"
	"fmt"

	"github.com/achilleasa/rtdenoise/types"
	"github.com/chewxy/math32"
)

var (
	ErrEmptyGeometry = errors.New("accel: geometry has no triangles")
	ErrBadIndices    = errors.New("accel: index buffer references a missing vertex")
)

// Triangles with a determinant below this are treated as parallel to the ray.
const intersectEpsilon float32 = 1e-8

// Primitives per BLAS leaf.
const minLeafTriangles = 4

type triangle struct {
	index  uint32
	v0     types.Vec3
	e1, e2 types.Vec3
	bbox   [2]types.Vec3
	center types.Vec3
}

func (t *triangle) BBox() [2]types.Vec3 {
	return t.bbox
}

func (t *triangle) Center() types.Vec3 {
	return t.center
}

// BottomLevel is a BVH over the triangles of a single geometry.
type BottomLevel struct {
	name      string
	triangles []triangle
	nodes     []Node
}

// NewBottomLevel builds a BVH over an indexed triangle list.
func NewBottomLevel(name string, positions []types.Vec3, indices []uint32) (*BottomLevel, error) {
	if len(indices) < 3 {
		return nil, fmt.Errorf("%w: %q", ErrEmptyGeometry, name)
	}

	workList := make([]BoundedVolume, 0, len(indices)/3)
	for i := 0; i+2 < len(indices); i += 3 {
		i0, i1, i2 := indices[i], indices[i+1], indices[i+2]
		if int(i0) >= len(positions) || int(i1) >= len(positions) || int(i2) >= len(positions) {
			return nil, fmt.Errorf("%w: %q triangle %d", ErrBadIndices, name, i/3)
		}
		v0, v1, v2 := positions[i0], positions[i1], positions[i2]
		tri := &triangle{
			index:  uint32(i / 3),
			v0:     v0,
			e1:     v1.Sub(v0),
			e2:     v2.Sub(v0),
			bbox:   [2]types.Vec3{types.MinVec3(v0, types.MinVec3(v1, v2)), types.MaxVec3(v0, types.MaxVec3(v1, v2))},
			center: v0.Add(v1).Add(v2).Mul(1.0 / 3.0),
		}
		workList = append(workList, tri)
	}

	blas := &BottomLevel{name: name, triangles: make([]triangle, 0, len(workList))}
	blas.nodes = Build(workList, minLeafTriangles, func(leaf *Node, itemList []BoundedVolume) {
		leaf.SetPrimitives(uint32(len(blas.triangles)), uint32(len(itemList)))
		for _, item := range itemList {
			blas.triangles = append(blas.triangles, *item.(*triangle))
		}
	}, SurfaceAreaHeuristic)
	return blas, nil
}

func (b *BottomLevel) Name() string {
	return b.name
}

func (b *BottomLevel) NumTriangles() int {
	return len(b.triangles)
}

// Bounds returns the object space bounding box.
func (b *BottomLevel) Bounds() [2]types.Vec3 {
	return [2]types.Vec3{b.nodes[0].Min, b.nodes[0].Max}
}

// SizeInBytes estimates the device memory the structure occupies.
func (b *BottomLevel) SizeInBytes() uint64 {
	return uint64(len(b.nodes))*32 + uint64(len(b.triangles))*40
}

type triangleHit struct {
	t         float32
	primitive uint32
	u, v      float32
	frontFace bool
}

// intersect finds the closest triangle hit in (tMin, tMax). Directions are
// not normalized so distances match the caller's space.
func (b *BottomLevel) intersect(origin, dir types.Vec3, tMin, tMax float32, cullBack, acceptFirst bool) (triangleHit, bool) {
	var best triangleHit
	found := false
	invDir := types.XYZ(1/dir[0], 1/dir[1], 1/dir[2])

	var stack [64]uint32
	sp := 0
	stack[sp] = 0
	sp++
	for sp > 0 {
		sp--
		node := &b.nodes[stack[sp]]
		if _, ok := node.intersectBox(origin, invDir, tMin, tMax); !ok {
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
			tri := &b.triangles[i]
			hit, ok := tri.intersect(origin, dir, tMin, tMax, cullBack)
			if !ok {
				continue
			}
			best = hit
			found = true
			tMax = hit.t
			if acceptFirst {
				return best, true
			}
		}
	}
	return best, found
}

// Möller-Trumbore ray/triangle intersection.
func (tri *triangle) intersect(origin, dir types.Vec3, tMin, tMax float32, cullBack bool) (triangleHit, bool) {
	pvec := dir.Cross(tri.e2)
	det := tri.e1.Dot(pvec)
	frontFace := det > 0
	if cullBack && !frontFace {
		return triangleHit{}, false
	}
	if math32.Abs(det) < intersectEpsilon {
		return triangleHit{}, false
	}
	invDet := 1 / det

	tvec := origin.Sub(tri.v0)
	u := tvec.Dot(pvec) * invDet
	if u < 0 || u > 1 {
		return triangleHit{}, false
	}
	qvec := tvec.Cross(tri.e1)
	v := dir.Dot(qvec) * invDet
	if v < 0 || u+v > 1 {
		return triangleHit{}, false
	}
	t := tri.e2.Dot(qvec) * invDet
	if t <= tMin || t >= tMax {
		return triangleHit{}, false
	}
	return triangleHit{t: t, primitive: tri.index, u: u, v: v, frontFace: frontFace}, true
}
