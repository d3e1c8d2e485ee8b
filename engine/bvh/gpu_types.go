package bvh

import (
	_ "embed"
	"encoding/binary"
	"math"
	"unsafe"
)

// GPUNodeSource is the canonical WGSL definition of the BvhNode struct.
// Matches Node layout exactly (32 bytes, std430 aligned).
//
//go:embed assets/bvh_node.wgsl
var GPUNodeSource string

// GPUTriAccelSource is the canonical WGSL definition of the TriAccel struct.
// Matches TriAccel layout exactly (40 bytes, std430 aligned).
//
//go:embed assets/tri_accel.wgsl
var GPUTriAccelSource string

const (
	// NodeSize is the byte size of one serialized Node.
	NodeSize = 32
	// TriAccelSize is the byte size of one serialized TriAccel.
	TriAccelSize = 40
)

// Size returns the size of the Node struct in bytes.
//
// Returns:
//   - int: the size of the struct in bytes.
func (n *Node) Size() int {
	return int(unsafe.Sizeof(*n))
}

// Marshal serializes the node into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 32-byte buffer ready for GPU upload.
func (n *Node) Marshal() []byte {
	buf := make([]byte, NodeSize)
	binary.LittleEndian.PutUint32(buf[0:4], math.Float32bits(n.BBoxMin[0]))
	binary.LittleEndian.PutUint32(buf[4:8], math.Float32bits(n.BBoxMin[1]))
	binary.LittleEndian.PutUint32(buf[8:12], math.Float32bits(n.BBoxMin[2]))
	binary.LittleEndian.PutUint32(buf[12:16], n.PrimIndex)
	binary.LittleEndian.PutUint32(buf[16:20], math.Float32bits(n.BBoxMax[0]))
	binary.LittleEndian.PutUint32(buf[20:24], math.Float32bits(n.BBoxMax[1]))
	binary.LittleEndian.PutUint32(buf[24:28], math.Float32bits(n.BBoxMax[2]))
	binary.LittleEndian.PutUint32(buf[28:32], n.PrimCount)
	return buf
}

// Size returns the size of the TriAccel struct in bytes.
//
// Returns:
//   - int: the size of the struct in bytes.
func (t *TriAccel) Size() int {
	return int(unsafe.Sizeof(*t))
}

// Marshal serializes the triangle into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 40-byte buffer ready for GPU upload.
func (t *TriAccel) Marshal() []byte {
	buf := make([]byte, TriAccelSize)
	words := [10]uint32{
		math.Float32bits(t.NU),
		math.Float32bits(t.NV),
		math.Float32bits(t.NP),
		math.Float32bits(t.PU),
		math.Float32bits(t.PV),
		t.CI,
		math.Float32bits(t.E0U),
		math.Float32bits(t.E0V),
		math.Float32bits(t.E1U),
		math.Float32bits(t.E1V),
	}
	for i, w := range words {
		binary.LittleEndian.PutUint32(buf[i*4:], w)
	}
	return buf
}

// MarshalNodes serializes a node list back to back.
//
// Parameters:
//   - nodes: the nodes to serialize
//
// Returns:
//   - []byte: len(nodes)*NodeSize bytes
func MarshalNodes(nodes []Node) []byte {
	buf := make([]byte, 0, len(nodes)*NodeSize)
	for i := range nodes {
		buf = append(buf, nodes[i].Marshal()...)
	}
	return buf
}

// MarshalTriangles serializes a triangle list back to back.
//
// Parameters:
//   - tris: the triangles to serialize
//
// Returns:
//   - []byte: len(tris)*TriAccelSize bytes
func MarshalTriangles(tris []TriAccel) []byte {
	buf := make([]byte, 0, len(tris)*TriAccelSize)
	for i := range tris {
		buf = append(buf, tris[i].Marshal()...)
	}
	return buf
}
