package accel

import "github.com/achilleasa/rtdenoise/types"

// Node is a BVH node stored in a flat array. Interior nodes hold the
// indices of their children; leaves hold a primitive range encoded as
// (-first, count).
type Node struct {
	Min   types.Vec3
	LData int32

	Max   types.Vec3
	RData int32
}

// Set left and right child node indices.
func (n *Node) SetChildNodes(left, right uint32) {
	n.LData = int32(left)
	n.RData = int32(right)
}

// Set primitive index and count.
func (n *Node) SetPrimitives(firstPrimIndex, count uint32) {
	n.LData = -int32(firstPrimIndex)
	n.RData = int32(count)
}

// Get primitive index and count.
func (n *Node) Primitives() (firstPrimIndex, count uint32) {
	return uint32(-n.LData), uint32(n.RData)
}

// Child node indices are always greater than the root index so a
// non-positive LData identifies a leaf.
func (n *Node) IsLeaf() bool {
	return n.LData <= 0
}

// intersectBox runs a slab test against the node bounds and returns the
// entry distance.
func (n *Node) intersectBox(origin, invDir types.Vec3, tMin, tMax float32) (float32, bool) {
	for axis := 0; axis < 3; axis++ {
		t0 := (n.Min[axis] - origin[axis]) * invDir[axis]
		t1 := (n.Max[axis] - origin[axis]) * invDir[axis]
		if invDir[axis] < 0 {
			t0, t1 = t1, t0
		}
		if t0 > tMin {
			tMin = t0
		}
		if t1 < tMax {
			tMax = t1
		}
		if tMax < tMin {
			return 0, false
		}
	}
	return tMin, true
}
