// Package bvh builds flattened bounding volume hierarchies for triangle meshes and mesh instances.
package bvh

import "github.com/Carmen-Shannon/oxy-trace/common"

const (
	// LeafNodeBit marks PrimIndex of a leaf node.
	LeafNodeBit uint32 = 1 << 31
	// PrimIndexBits masks the first primitive reference of a leaf.
	PrimIndexBits = ^LeafNodeBit
	// SepAxisBits masks the split axis stored in the top two bits of PrimCount on internal nodes.
	SepAxisBits uint32 = 3 << 30
	// RightChildBits masks the right child index on internal nodes.
	RightChildBits = ^SepAxisBits
)

// Node is one flattened BVH node.
// Leaves store the first primitive reference (with LeafNodeBit) and the reference count.
// Internal nodes store the left child in PrimIndex and the right child plus the split axis
// in PrimCount.
type Node struct {
	BBoxMin   [3]float32
	PrimIndex uint32
	BBoxMax   [3]float32
	PrimCount uint32
}

// IsLeaf reports whether the node is a leaf.
func (n Node) IsLeaf() bool {
	return n.PrimIndex&LeafNodeBit != 0
}

// FirstPrim returns the offset of the first primitive reference of a leaf.
func (n Node) FirstPrim() uint32 {
	return n.PrimIndex & PrimIndexBits
}

// LeftChild returns the left child index of an internal node.
func (n Node) LeftChild() uint32 {
	return n.PrimIndex
}

// RightChild returns the right child index of an internal node.
func (n Node) RightChild() uint32 {
	return n.PrimCount & RightChildBits
}

// SepAxis returns the split axis of an internal node.
func (n Node) SepAxis() int {
	return int(n.PrimCount >> 30)
}

// Bounds returns the node box.
func (n Node) Bounds() common.BoundingBox {
	return common.BoundingBox{Min: n.BBoxMin, Max: n.BBoxMax}
}

// Offset shifts every child and primitive reference of the node. It is used when a node
// list is appended to a larger pool.
//
// Parameters:
//   - nodeOffset: added to child indices
//   - primOffset: added to leaf primitive offsets
//
// Returns:
//   - Node: the shifted node
func (n Node) Offset(nodeOffset, primOffset uint32) Node {
	if n.IsLeaf() {
		n.PrimIndex = LeafNodeBit | (n.FirstPrim() + primOffset)
		return n
	}
	n.PrimIndex += nodeOffset
	n.PrimCount = (n.PrimCount & SepAxisBits) | (n.RightChild() + nodeOffset)
	return n
}

// Prim is one build input. Triangle, when set, lets spatial splits clip the primitive
// against split planes; primitives without it are only moved whole.
type Prim struct {
	Bounds   common.BoundingBox
	Triangle *[3][3]float32
}

func newLeaf(b common.BoundingBox, first, count int) Node {
	return Node{
		BBoxMin:   b.Min,
		PrimIndex: LeafNodeBit | uint32(first),
		BBoxMax:   b.Max,
		PrimCount: uint32(count),
	}
}
