package scene

import (
	"fmt"
	"slices"

	"github.com/Carmen-Shannon/oxy-trace/common"
	"github.com/Carmen-Shannon/oxy-trace/engine/bvh"
	"github.com/Carmen-Shannon/oxy-trace/engine/material"
	"github.com/chewxy/math32"
)

// MeshHandle identifies a mesh in the scene.
type MeshHandle uint32

// InvalidMeshHandle marks an absent mesh.
const InvalidMeshHandle MeshHandle = 0xFFFFFFFF

// Layout is the interleaving of a mesh's vertex attributes. P is the position, N the normal,
// B the tangent and T a texture coordinate set.
type Layout uint8

const (
	LayoutPxyzNxyzTuv Layout = iota
	LayoutPxyzNxyzTuvTuv
	LayoutPxyzNxyzBxyzTuv
	LayoutPxyzNxyzBxyzTuvTuv
)

// Stride returns the number of floats per vertex, or 0 for an unknown layout.
func (l Layout) Stride() int {
	switch l {
	case LayoutPxyzNxyzTuv:
		return 8
	case LayoutPxyzNxyzTuvTuv:
		return 10
	case LayoutPxyzNxyzBxyzTuv:
		return 11
	case LayoutPxyzNxyzBxyzTuvTuv:
		return 13
	default:
		return 0
	}
}

// HasTangent reports whether the layout carries a tangent.
func (l Layout) HasTangent() bool {
	return l == LayoutPxyzNxyzBxyzTuv || l == LayoutPxyzNxyzBxyzTuvTuv
}

// HasSecondUV reports whether the layout carries two texture coordinate sets.
func (l Layout) HasSecondUV() bool {
	return l == LayoutPxyzNxyzTuvTuv || l == LayoutPxyzNxyzBxyzTuvTuv
}

func (l Layout) String() string {
	switch l {
	case LayoutPxyzNxyzTuv:
		return "PxyzNxyzTuv"
	case LayoutPxyzNxyzTuvTuv:
		return "PxyzNxyzTuvTuv"
	case LayoutPxyzNxyzBxyzTuv:
		return "PxyzNxyzBxyzTuv"
	case LayoutPxyzNxyzBxyzTuvTuv:
		return "PxyzNxyzBxyzTuvTuv"
	default:
		return fmt.Sprintf("Layout(%d)", uint8(l))
	}
}

// Shape binds a range of the index buffer to a front and back material. First and Count are
// in indices and must be multiples of three.
type Shape struct {
	Front material.Handle
	Back  material.Handle
	First uint32
	Count uint32
}

// Mesh is an immutable mesh record locating its data in the scene pools.
type Mesh struct {
	Layout Layout
	BBox   common.BoundingBox
	Shapes []Shape

	// Bottom-level hierarchy, empty in hardware ray tracing mode. NodeOffset is the root.
	NodeOffset     uint32
	NodeCount      uint32
	TriIndexOffset uint32
	TriIndexCount  uint32

	// Triangles share their index with the material records and the vertex index triples.
	TriOffset uint32
	TriCount  uint32

	VertexOffset uint32
	VertexCount  uint32
}

// Vertex is one entry of the vertex pool. Tangent is computed when the layout has none.
type Vertex struct {
	Position [3]float32
	Normal   [3]float32
	Tangent  [3]float32
	UV0      [2]float32
	UV1      [2]float32
}

// Per-triangle material record bits.
const (
	TriMaterialSolidBit   uint16 = 0x8000
	TriMaterialIndexBits  uint16 = 0x3FFF
	TriMaterialNoMaterial        = TriMaterialIndexBits
)

// TriMaterial holds the front and back material of a triangle. Each side stores a 14-bit node
// index plus TriMaterialSolidBit when no transparent node is reachable from it.
type TriMaterial struct {
	Front uint16
	Back  uint16
}

// FrontSolid reports whether the front material is opaque.
func (t TriMaterial) FrontSolid() bool {
	return t.Front&TriMaterialSolidBit != 0
}

// BackSolid reports whether the back material is opaque.
func (t TriMaterial) BackSolid() bool {
	return t.Back&TriMaterialSolidBit != 0
}

// FrontMaterial returns the front node index.
func (t TriMaterial) FrontMaterial() material.Handle {
	return material.Handle(t.Front & TriMaterialIndexBits)
}

// BackMaterial returns the back node index.
func (t TriMaterial) BackMaterial() material.Handle {
	return material.Handle(t.Back & TriMaterialIndexBits)
}

func (s *scene) AddMesh(desc MeshDesc) (MeshHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stride := desc.Layout.Stride()
	if stride == 0 {
		return InvalidMeshHandle, fmt.Errorf("layout %v: %w", desc.Layout, ErrInvalidMesh)
	}
	if len(desc.Attributes) == 0 || len(desc.Attributes)%stride != 0 {
		return InvalidMeshHandle, fmt.Errorf("%d attribute floats for stride %d: %w", len(desc.Attributes), stride, ErrInvalidMesh)
	}
	if len(desc.Indices) == 0 || len(desc.Indices)%3 != 0 {
		return InvalidMeshHandle, fmt.Errorf("%d indices: %w", len(desc.Indices), ErrInvalidMesh)
	}

	vertexCount := len(desc.Attributes) / stride
	indices := make([]uint32, len(desc.Indices))
	for i, idx := range desc.Indices {
		v := uint64(idx) + uint64(desc.BaseVertex)
		if v >= uint64(vertexCount) {
			return InvalidMeshHandle, fmt.Errorf("index %d references vertex %d of %d: %w", i, v, vertexCount, ErrInvalidMesh)
		}
		indices[i] = uint32(v)
	}

	triCount := len(indices) / 3
	records := make([]TriMaterial, triCount)
	for i := range records {
		records[i] = TriMaterial{Front: TriMaterialNoMaterial, Back: TriMaterialNoMaterial}
	}
	for i, sh := range desc.Shapes {
		if sh.First%3 != 0 || sh.Count%3 != 0 || uint64(sh.First)+uint64(sh.Count) > uint64(len(indices)) {
			return InvalidMeshHandle, fmt.Errorf("shape %d range [%d, +%d) of %d indices: %w", i, sh.First, sh.Count, len(indices), ErrInvalidShape)
		}
		front, err := s.materialRecord(sh.Front)
		if err != nil {
			return InvalidMeshHandle, fmt.Errorf("shape %d front: %w", i, err)
		}
		back, err := s.materialRecord(sh.Back)
		if err != nil {
			return InvalidMeshHandle, fmt.Errorf("shape %d back: %w", i, err)
		}
		for t := sh.First / 3; t < (sh.First+sh.Count)/3; t++ {
			records[t] = TriMaterial{Front: front, Back: back}
		}
	}

	verts := unpackVertices(desc.Layout, desc.Attributes)
	bbox := indexedBounds(verts, indices)
	if !desc.Layout.HasTangent() {
		computeTangents(verts, indices)
	}

	s.touch()
	mesh := Mesh{
		Layout:       desc.Layout,
		BBox:         bbox,
		Shapes:       slices.Clone(desc.Shapes),
		TriOffset:    uint32(len(s.triMaterials)),
		TriCount:     uint32(triCount),
		VertexOffset: uint32(len(s.vertices)),
		VertexCount:  uint32(vertexCount),
	}

	if !s.hardwareRT {
		settings := s.bvhSettings
		if desc.BVH.MaxLeafPrims > 0 {
			settings = desc.BVH
		}
		tris, nodes, refs := bvh.PreprocessMesh(desc.Attributes, stride, indices, settings)

		nodeOffset := uint32(len(s.nodes))
		primOffset := uint32(len(s.triIndices))
		for _, n := range nodes {
			s.nodes = append(s.nodes, n.Offset(nodeOffset, primOffset))
		}
		for _, r := range refs {
			s.triIndices = append(s.triIndices, r+mesh.TriOffset)
		}
		s.triangles = append(s.triangles, tris...)

		mesh.NodeOffset = nodeOffset
		mesh.NodeCount = uint32(len(nodes))
		mesh.TriIndexOffset = primOffset
		mesh.TriIndexCount = uint32(len(refs))
	}

	s.triMaterials = append(s.triMaterials, records...)
	for _, idx := range indices {
		s.vertexIndices = append(s.vertexIndices, idx+mesh.VertexOffset)
	}
	s.vertices = append(s.vertices, verts...)

	h := MeshHandle(s.meshes.Insert(mesh))
	s.logger.Debug("scene: mesh added",
		"mesh", h,
		"layout", desc.Layout,
		"triangles", triCount,
		"vertices", vertexCount,
		"nodes", mesh.NodeCount)
	return h, nil
}

// materialRecord validates one side of a shape and returns its record bits.
func (s *scene) materialRecord(h material.Handle) (uint16, error) {
	if !s.materials.Exists(h) {
		return 0, fmt.Errorf("material %d: %w: %w", h, ErrInvalidShape, material.ErrInvalidHandle)
	}
	if h > material.MaxIndex {
		return 0, fmt.Errorf("material %d exceeds %d: %w", h, material.MaxIndex, ErrInvalidShape)
	}
	solid, err := s.materials.IsSolid(h)
	if err != nil {
		return 0, fmt.Errorf("material %d: %w", h, err)
	}
	rec := uint16(h)
	if solid {
		rec |= TriMaterialSolidBit
	}
	return rec, nil
}

func (s *scene) RemoveMesh(h MeshHandle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.meshes.Exists(uint32(h)) {
		return fmt.Errorf("mesh %d: %w", h, ErrInvalidHandle)
	}
	for ih, inst := range s.instances.All() {
		if inst.Mesh == h {
			return fmt.Errorf("mesh %d used by instance %d: %w", h, ih, ErrMeshInUse)
		}
	}
	s.touch()
	s.meshes.Erase(uint32(h))
	return nil
}

// unpackVertices converts interleaved attributes into pool vertices.
func unpackVertices(layout Layout, attrs []float32) []Vertex {
	stride := layout.Stride()
	uv := 6
	if layout.HasTangent() {
		uv = 9
	}

	verts := make([]Vertex, len(attrs)/stride)
	for i := range verts {
		a := attrs[i*stride : (i+1)*stride]
		v := Vertex{
			Position: [3]float32{a[0], a[1], a[2]},
			Normal:   [3]float32{a[3], a[4], a[5]},
			UV0:      [2]float32{a[uv], a[uv+1]},
		}
		if layout.HasTangent() {
			v.Tangent = [3]float32{a[6], a[7], a[8]}
		}
		if layout.HasSecondUV() {
			v.UV1 = [2]float32{a[uv+2], a[uv+3]}
		}
		verts[i] = v
	}
	return verts
}

// indexedBounds returns the box around the vertices the triangles reference. Unreferenced
// vertices do not widen it.
func indexedBounds(verts []Vertex, indices []uint32) common.BoundingBox {
	bbox := common.EmptyBoundingBox()
	for _, idx := range indices {
		bbox.ExtendPoint(verts[idx].Position)
	}
	return bbox
}

// computeTangents accumulates the texture space U direction of every triangle onto its
// vertices, then orthogonalizes it against the normal. Vertices without a usable UV gradient
// get an arbitrary tangent perpendicular to the normal.
func computeTangents(verts []Vertex, indices []uint32) {
	acc := make([][3]float32, len(verts))
	for t := 0; t+2 < len(indices); t += 3 {
		a, b, c := &verts[indices[t]], &verts[indices[t+1]], &verts[indices[t+2]]
		e1 := common.Sub3(b.Position, a.Position)
		e2 := common.Sub3(c.Position, a.Position)
		du1, dv1 := b.UV0[0]-a.UV0[0], b.UV0[1]-a.UV0[1]
		du2, dv2 := c.UV0[0]-a.UV0[0], c.UV0[1]-a.UV0[1]

		r := du1*dv2 - du2*dv1
		if math32.Abs(r) < 1e-12 {
			continue
		}
		tangent := common.Scale3(common.Sub3(common.Scale3(e1, dv2), common.Scale3(e2, dv1)), 1/r)
		for _, i := range indices[t : t+3] {
			acc[i] = common.Add3(acc[i], tangent)
		}
	}

	for i := range verts {
		n := common.Normalize3(verts[i].Normal)
		t := common.Sub3(acc[i], common.Scale3(n, common.Dot3(n, acc[i])))
		if common.Length3(t) < 1e-8 {
			t = perpendicular(n)
		}
		verts[i].Tangent = common.Normalize3(t)
	}
}

func perpendicular(n [3]float32) [3]float32 {
	if math32.Abs(n[0]) > 0.9 {
		return common.Normalize3(common.Cross3(n, [3]float32{0, 1, 0}))
	}
	return common.Normalize3(common.Cross3(n, [3]float32{1, 0, 0}))
}
