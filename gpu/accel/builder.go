package accel

import (
	"runtime"
	"time"

	"github.com/achilleasa/rtdenoise/log"
	"github.com/achilleasa/rtdenoise/types"
	"github.com/chewxy/math32"
	"golang.org/x/sync/errgroup"
)

type Axis uint8

const (
	XAxis Axis = iota
	YAxis
	ZAxis

	// The BVH builder will not attempt to calculate split candidates
	// if the node bbox along an axis is less than this threshold.
	minSideLength float32 = 1e-3

	// If the split step (calculated as side length / (splitCandidates / depth+1))
	// is less than this threshold the BVH builder will not evaluate
	// split candidates.
	minSplitStep float32 = 1e-5

	// Number of split candidates evaluated per axis at the root.
	splitCandidates = 256
)

var (
	// A split scoring strategy that uses the surface area heuristic (SAH).
	SurfaceAreaHeuristic = surfaceAreaHeuristic{}
)

// The BoundedVolume interface is implemented by all primitives that can
// be partitioned by the bvh builder.
type BoundedVolume interface {
	BBox() [2]types.Vec3
	Center() types.Vec3
}

// A callback that is called whenever the BVH builder creates a new leaf.
type LeafCallback func(leaf *Node, itemList []BoundedVolume)

// A split scoring strategy.
type ScoreStrategy interface {
	// Calculate a score for splitting workList at splitPoint along a particular Axis.
	ScoreSplit(workList []BoundedVolume, splitAxis Axis, splitPoint float32) (leftCount, rightCount int, score float32)

	// Calculate a score for all items in workList.
	ScorePartition(workList []BoundedVolume) (score float32)
}

type splitScore struct {
	axis       Axis
	splitPoint float32

	leftCount, rightCount int
	score                 float32
}

type stats struct {
	partitionedItems int
	nodes            int
	leafs            int
	maxDepth         int
}

type builder struct {
	nodes         []Node
	leafCb        LeafCallback
	minLeafItems  int
	scoreStrategy ScoreStrategy
	stats         stats
}

var logger = log.New("accel")

// Build constructs a BVH from a set of bounded volumes. Leaves are created
// when a work list has at most minLeafItems items or when no split improves
// on the score of the unsplit list.
func Build(workList []BoundedVolume, minLeafItems int, leafCb LeafCallback, scoreStrategy ScoreStrategy) []Node {
	b := &builder{
		leafCb:        leafCb,
		minLeafItems:  minLeafItems,
		scoreStrategy: scoreStrategy,
	}

	start := time.Now()
	b.partition(workList, 0)
	logger.Debugf(
		"BVH build time: %d ms, items: %d, maxDepth: %d, nodes: %d, leafs: %d",
		time.Since(start).Nanoseconds()/1e6,
		len(workList), b.stats.maxDepth, b.stats.nodes, b.stats.leafs,
	)
	return b.nodes
}

func emptyBounds() [2]types.Vec3 {
	return [2]types.Vec3{
		{math32.MaxFloat32, math32.MaxFloat32, math32.MaxFloat32},
		{-math32.MaxFloat32, -math32.MaxFloat32, -math32.MaxFloat32},
	}
}

func surfaceArea(min, max types.Vec3) float32 {
	side := max.Sub(min)
	return side[0]*side[1] + side[1]*side[2] + side[0]*side[2]
}

// Partition worklist and return node index.
func (b *builder) partition(workList []BoundedVolume, depth int) uint32 {
	if depth > b.stats.maxDepth {
		b.stats.maxDepth = depth
	}

	bounds := emptyBounds()
	for _, item := range workList {
		itemBBox := item.BBox()
		bounds[0] = types.MinVec3(bounds[0], itemBBox[0])
		bounds[1] = types.MaxVec3(bounds[1], itemBBox[1])
	}
	node := Node{Min: bounds[0], Max: bounds[1]}

	if len(workList) <= b.minLeafItems {
		return b.createLeaf(&node, workList)
	}

	bestSplit := b.bestSplit(workList, node, depth)
	if bestSplit == nil {
		return b.createLeaf(&node, workList)
	}

	leftWorkList := make([]BoundedVolume, 0, bestSplit.leftCount)
	rightWorkList := make([]BoundedVolume, 0, bestSplit.rightCount)
	for _, item := range workList {
		if item.Center()[bestSplit.axis] < bestSplit.splitPoint {
			leftWorkList = append(leftWorkList, item)
		} else {
			rightWorkList = append(rightWorkList, item)
		}
	}

	nodeIndex := len(b.nodes)
	b.nodes = append(b.nodes, node)
	b.stats.nodes++

	leftNodeIndex := b.partition(leftWorkList, depth+1)
	rightNodeIndex := b.partition(rightWorkList, depth+1)
	b.nodes[nodeIndex].SetChildNodes(leftNodeIndex, rightNodeIndex)

	return uint32(nodeIndex)
}

// bestSplit scores candidate split planes along each axis in parallel and
// returns the one that beats the unsplit score, if any.
func (b *builder) bestSplit(workList []BoundedVolume, node Node, depth int) *splitScore {
	var candidates []splitScore
	side := node.Max.Sub(node.Min)
	for axis := XAxis; axis <= ZAxis; axis++ {
		if side[axis] < minSideLength {
			continue
		}

		// Split steps become more granular the deeper we go
		splitStep := side[axis] / (float32(splitCandidates) / float32(depth+1))
		if splitStep < minSplitStep {
			continue
		}
		for splitPoint := node.Min[axis] + splitStep; splitPoint < node.Max[axis]; splitPoint += splitStep {
			candidates = append(candidates, splitScore{axis: axis, splitPoint: splitPoint})
		}
	}

	var g errgroup.Group
	g.SetLimit(runtime.NumCPU())
	for idx := range candidates {
		c := &candidates[idx]
		g.Go(func() error {
			c.leftCount, c.rightCount, c.score = b.scoreStrategy.ScoreSplit(workList, c.axis, c.splitPoint)
			return nil
		})
	}
	_ = g.Wait()

	bestScore := b.scoreStrategy.ScorePartition(workList)
	var best *splitScore
	for idx := range candidates {
		if candidates[idx].score < bestScore {
			bestScore = candidates[idx].score
			best = &candidates[idx]
		}
	}
	return best
}

// Setup the given node as a leaf containing all items in the work list.
// Returns the index of the node in the bvh node array.
func (b *builder) createLeaf(node *Node, workList []BoundedVolume) uint32 {
	b.leafCb(node, workList)

	nodeIndex := len(b.nodes)
	b.nodes = append(b.nodes, *node)

	b.stats.leafs++
	b.stats.partitionedItems += len(workList)

	return uint32(nodeIndex)
}

// A score implementation that uses surface area heuristic for calculating split scores.
type surfaceAreaHeuristic struct{}

// Score a BVH split based on the surface area heuristic (lower is better):
//
// left count * left BBOX area + rightCount * right BBOX area.
//
// Splits that generate empty partitions get the worst possible score.
func (h surfaceAreaHeuristic) ScoreSplit(workList []BoundedVolume, axis Axis, splitPoint float32) (leftCount, rightCount int, score float32) {
	left, right := emptyBounds(), emptyBounds()
	for _, item := range workList {
		itemBBox := item.BBox()
		if item.Center()[axis] < splitPoint {
			leftCount++
			left[0] = types.MinVec3(left[0], itemBBox[0])
			left[1] = types.MaxVec3(left[1], itemBBox[1])
		} else {
			rightCount++
			right[0] = types.MinVec3(right[0], itemBBox[0])
			right[1] = types.MaxVec3(right[1], itemBBox[1])
		}
	}

	if leftCount == 0 || rightCount == 0 {
		return leftCount, rightCount, math32.MaxFloat32
	}

	score = float32(leftCount)*surfaceArea(left[0], left[1]) + float32(rightCount)*surfaceArea(right[0], right[1])
	return leftCount, rightCount, score
}

// Score a work list as count * BBOX area. Empty lists get the worst
// possible score.
func (h surfaceAreaHeuristic) ScorePartition(workList []BoundedVolume) (score float32) {
	if len(workList) == 0 {
		return math32.MaxFloat32
	}

	bounds := emptyBounds()
	for _, item := range workList {
		itemBBox := item.BBox()
		bounds[0] = types.MinVec3(bounds[0], itemBBox[0])
		bounds[1] = types.MaxVec3(bounds[1], itemBBox[1])
	}
	return float32(len(workList)) * surfaceArea(bounds[0], bounds[1])
}
