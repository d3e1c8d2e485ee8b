package bvh

import (
	"cmp"
	"slices"
	"time"

	"github.com/Carmen-Shannon/oxy-trace/common"
	"github.com/chewxy/math32"
)

const (
	traversalCost    = 1.0
	intersectionCost = 1.0
	numBins          = 16
	numSpatialBins   = 32
	maxBuildDepth    = 64
)

type ref struct {
	bounds common.BoundingBox
	prim   uint32
}

type split struct {
	valid   bool
	spatial bool
	axis    int
	cost    float32
	// object sweep: number of sorted refs going left
	count int
	// binned object split: first bin going right
	bin int
	// spatial split plane
	pos         float32
	left, right common.BoundingBox
}

type builder struct {
	prims    []Prim
	s        Settings
	nodes    []Node
	indices  []uint32
	rootArea float32

	leaves        int
	maxDepth      int
	spatialSplits int
}

// Build constructs a hierarchy over prims using the surface area heuristic.
// Nodes are emitted depth first with the root at index 0, so a left child always directly
// follows its parent. Leaves index into the returned reference list, which holds indices
// into prims; spatial splits may reference one primitive from several leaves.
// Primitives with empty bounds are never referenced. An empty input yields a single empty leaf.
//
// Parameters:
//   - prims: the build inputs
//   - s: the build settings
//
// Returns:
//   - []Node: the flattened nodes
//   - []uint32: the primitive references of the leaves
func Build(prims []Prim, s Settings) ([]Node, []uint32) {
	start := time.Now()
	if s.MaxLeafPrims < 1 {
		s.MaxLeafPrims = DefaultMaxLeafPrims
	}

	b := &builder{
		prims:   prims,
		s:       s,
		nodes:   make([]Node, 0, 2*len(prims)),
		indices: make([]uint32, 0, len(prims)),
	}

	refs := make([]ref, 0, len(prims))
	root := common.EmptyBoundingBox()
	for i, p := range prims {
		if p.Bounds.IsEmpty() {
			continue
		}
		refs = append(refs, ref{bounds: p.Bounds, prim: uint32(i)})
		root.Extend(p.Bounds)
	}

	if len(refs) == 0 {
		return []Node{newLeaf(common.BoundingBox{}, 0, 0)}, nil
	}

	b.rootArea = root.SurfaceArea()
	b.split(refs, 0)

	common.Logger().Debug("bvh built",
		"prims", len(prims),
		"refs", len(b.indices),
		"nodes", len(b.nodes),
		"leaves", b.leaves,
		"depth", b.maxDepth,
		"spatial_splits", b.spatialSplits,
		"duration", time.Since(start),
	)
	return b.nodes, b.indices
}

func boundsOf(refs []ref) (bounds, centroids common.BoundingBox) {
	bounds, centroids = common.EmptyBoundingBox(), common.EmptyBoundingBox()
	for _, r := range refs {
		bounds.Extend(r.bounds)
		centroids.ExtendPoint(r.bounds.Center())
	}
	return bounds, centroids
}

func (b *builder) split(refs []ref, depth int) int {
	b.maxDepth = max(b.maxDepth, depth)

	idx := len(b.nodes)
	b.nodes = append(b.nodes, Node{})

	bounds, centroids := boundsOf(refs)
	n := len(refs)
	if n <= 1 || depth >= maxBuildDepth {
		return b.leaf(idx, bounds, refs)
	}

	var best split
	if b.s.UseFastBuild {
		best = b.binnedSplit(refs, bounds, centroids)
	} else {
		best = b.sweepSplit(refs, bounds)
	}

	if b.s.AllowSpatialSplits && best.valid {
		overlap := common.Intersect(best.left, best.right)
		if !overlap.IsEmpty() && overlap.SurfaceArea() > SpatialSplitAlpha*b.rootArea {
			if sp := b.spatialSplit(refs, bounds); sp.valid && sp.cost < best.cost {
				best = sp
			}
		}
	}

	leafCost := float32(n) * intersectionCost
	if n <= b.s.MaxLeafPrims && (!best.valid || best.cost >= leafCost) {
		return b.leaf(idx, bounds, refs)
	}

	var left, right []ref
	axis := best.axis
	if best.valid {
		left, right = b.partition(refs, best)
	}
	if len(left) == 0 || len(right) == 0 {
		// Degenerate split, halve the list along the largest axis instead.
		axis = bounds.LargestAxis()
		sortByCentroid(refs, axis)
		left, right = refs[:n/2], refs[n/2:]
	} else if best.spatial {
		b.spatialSplits++
	}

	l := b.split(left, depth+1)
	r := b.split(right, depth+1)
	b.nodes[idx] = Node{
		BBoxMin:   bounds.Min,
		PrimIndex: uint32(l),
		BBoxMax:   bounds.Max,
		PrimCount: uint32(r) | uint32(axis)<<30,
	}
	return idx
}

func (b *builder) leaf(idx int, bounds common.BoundingBox, refs []ref) int {
	b.nodes[idx] = newLeaf(bounds, len(b.indices), len(refs))
	for _, r := range refs {
		b.indices = append(b.indices, r.prim)
	}
	b.leaves++
	return idx
}

// sortByCentroid orders refs along axis. Ties fall back to the other axes and then the primitive
// index, so the order does not depend on the order refs arrive in.
func sortByCentroid(refs []ref, axis int) {
	slices.SortFunc(refs, func(a, c ref) int {
		for k := range 3 {
			ax := (axis + k) % 3
			ca := a.bounds.Min[ax] + a.bounds.Max[ax]
			cc := c.bounds.Min[ax] + c.bounds.Max[ax]
			switch {
			case ca < cc:
				return -1
			case ca > cc:
				return 1
			}
		}
		return cmp.Compare(a.prim, c.prim)
	})
}

func sahCost(parentArea float32, left common.BoundingBox, nl int, right common.BoundingBox, nr int) float32 {
	if parentArea <= 0 {
		return traversalCost + float32(nl+nr)*intersectionCost
	}
	return traversalCost + intersectionCost*(left.SurfaceArea()*float32(nl)+right.SurfaceArea()*float32(nr))/parentArea
}

func (b *builder) sweepSplit(refs []ref, bounds common.BoundingBox) split {
	n := len(refs)
	parentArea := bounds.SurfaceArea()
	rightBounds := make([]common.BoundingBox, n)
	best := split{cost: math32.MaxFloat32}

	for axis := 0; axis < 3; axis++ {
		sortByCentroid(refs, axis)

		acc := common.EmptyBoundingBox()
		for i := n - 1; i > 0; i-- {
			acc.Extend(refs[i].bounds)
			rightBounds[i] = acc
		}

		leftAcc := common.EmptyBoundingBox()
		for i := 1; i < n; i++ {
			leftAcc.Extend(refs[i-1].bounds)
			cost := sahCost(parentArea, leftAcc, i, rightBounds[i], n-i)
			if cost < best.cost {
				best = split{
					valid: true,
					axis:  axis,
					cost:  cost,
					count: i,
					left:  leftAcc,
					right: rightBounds[i],
				}
			}
		}
	}
	return best
}

func binIndex(v, lo, scale float32, bins int) int {
	i := int((v - lo) * scale)
	return min(max(i, 0), bins-1)
}

func (b *builder) binnedSplit(refs []ref, bounds, centroids common.BoundingBox) split {
	parentArea := bounds.SurfaceArea()
	best := split{cost: math32.MaxFloat32}

	for axis := 0; axis < 3; axis++ {
		lo, hi := centroids.Min[axis], centroids.Max[axis]
		if hi-lo <= 0 {
			continue
		}
		scale := numBins / (hi - lo) * (1 - 1e-6)

		var binBounds [numBins]common.BoundingBox
		var binCount [numBins]int
		for i := range binBounds {
			binBounds[i] = common.EmptyBoundingBox()
		}
		for _, r := range refs {
			bi := binIndex(r.bounds.Center()[axis], lo, scale, numBins)
			binBounds[bi].Extend(r.bounds)
			binCount[bi]++
		}

		var rightBounds [numBins]common.BoundingBox
		var rightCount [numBins]int
		acc, cnt := common.EmptyBoundingBox(), 0
		for i := numBins - 1; i > 0; i-- {
			acc.Extend(binBounds[i])
			cnt += binCount[i]
			rightBounds[i], rightCount[i] = acc, cnt
		}

		leftAcc, leftCnt := common.EmptyBoundingBox(), 0
		for i := 1; i < numBins; i++ {
			leftAcc.Extend(binBounds[i-1])
			leftCnt += binCount[i-1]
			if leftCnt == 0 || rightCount[i] == 0 {
				continue
			}
			cost := sahCost(parentArea, leftAcc, leftCnt, rightBounds[i], rightCount[i])
			if cost < best.cost {
				best = split{
					valid: true,
					axis:  axis,
					cost:  cost,
					bin:   i,
					left:  leftAcc,
					right: rightBounds[i],
				}
			}
		}
	}
	return best
}

func (b *builder) spatialSplit(refs []ref, bounds common.BoundingBox) split {
	for _, r := range refs {
		if b.prims[r.prim].Triangle == nil {
			return split{}
		}
	}

	parentArea := bounds.SurfaceArea()
	best := split{cost: math32.MaxFloat32}

	for axis := 0; axis < 3; axis++ {
		lo, hi := bounds.Min[axis], bounds.Max[axis]
		if hi-lo <= 0 {
			continue
		}
		width := (hi - lo) / numSpatialBins
		scale := 1 / width

		var binBounds [numSpatialBins]common.BoundingBox
		var entry, exit [numSpatialBins]int
		for i := range binBounds {
			binBounds[i] = common.EmptyBoundingBox()
		}

		for _, r := range refs {
			first := binIndex(r.bounds.Min[axis], lo, scale, numSpatialBins)
			last := binIndex(r.bounds.Max[axis], lo, scale, numSpatialBins)
			entry[first]++
			exit[last]++
			tri := b.prims[r.prim].Triangle
			for bi := first; bi <= last; bi++ {
				slabLo := lo + float32(bi)*width
				slabHi := slabLo + width
				clipped := common.Intersect(clipTriangle(tri, axis, slabLo, slabHi), r.bounds)
				if !clipped.IsEmpty() {
					binBounds[bi].Extend(clipped)
				}
			}
		}

		var rightBounds [numSpatialBins]common.BoundingBox
		var rightCount [numSpatialBins]int
		acc, cnt := common.EmptyBoundingBox(), 0
		for i := numSpatialBins - 1; i > 0; i-- {
			acc.Extend(binBounds[i])
			cnt += exit[i]
			rightBounds[i], rightCount[i] = acc, cnt
		}

		leftAcc, leftCnt := common.EmptyBoundingBox(), 0
		for i := 1; i < numSpatialBins; i++ {
			leftAcc.Extend(binBounds[i-1])
			leftCnt += entry[i-1]
			if leftCnt == 0 || rightCount[i] == 0 {
				continue
			}
			cost := sahCost(parentArea, leftAcc, leftCnt, rightBounds[i], rightCount[i])
			if cost < best.cost {
				best = split{
					valid:   true,
					spatial: true,
					axis:    axis,
					cost:    cost,
					pos:     lo + float32(i)*width,
					left:    leftAcc,
					right:   rightBounds[i],
				}
			}
		}
	}
	return best
}

func (b *builder) partition(refs []ref, s split) (left, right []ref) {
	switch {
	case s.spatial:
		for _, r := range refs {
			switch {
			case r.bounds.Max[s.axis] <= s.pos:
				left = append(left, r)
			case r.bounds.Min[s.axis] >= s.pos:
				right = append(right, r)
			default:
				tri := b.prims[r.prim].Triangle
				lb := common.Intersect(clipTriangle(tri, s.axis, -math32.MaxFloat32, s.pos), r.bounds)
				rb := common.Intersect(clipTriangle(tri, s.axis, s.pos, math32.MaxFloat32), r.bounds)
				if !lb.IsEmpty() {
					left = append(left, ref{bounds: lb, prim: r.prim})
				}
				if !rb.IsEmpty() {
					right = append(right, ref{bounds: rb, prim: r.prim})
				}
			}
		}
		return left, right
	case b.s.UseFastBuild:
		_, centroids := boundsOf(refs)
		lo, hi := centroids.Min[s.axis], centroids.Max[s.axis]
		scale := numBins / (hi - lo) * (1 - 1e-6)
		i, j := 0, len(refs)
		for i < j {
			if binIndex(refs[i].bounds.Center()[s.axis], lo, scale, numBins) < s.bin {
				i++
				continue
			}
			j--
			refs[i], refs[j] = refs[j], refs[i]
		}
		return refs[:i], refs[i:]
	default:
		sortByCentroid(refs, s.axis)
		return refs[:s.count], refs[s.count:]
	}
}

// clipTriangle returns the bounds of the part of tri lying between lo and hi along axis.
func clipTriangle(tri *[3][3]float32, axis int, lo, hi float32) common.BoundingBox {
	box := common.EmptyBoundingBox()
	for i := 0; i < 3; i++ {
		a, c := tri[i], tri[(i+1)%3]
		if a[axis] >= lo && a[axis] <= hi {
			box.ExtendPoint(a)
		}
		for _, plane := range [2]float32{lo, hi} {
			if (a[axis] < plane && c[axis] > plane) || (a[axis] > plane && c[axis] < plane) {
				t := (plane - a[axis]) / (c[axis] - a[axis])
				p := common.Add3(a, common.Scale3(common.Sub3(c, a), t))
				p[axis] = plane
				box.ExtendPoint(p)
			}
		}
	}
	return box
}
