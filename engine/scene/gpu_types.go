package scene

import (
	_ "embed"
	"encoding/binary"
	"math"
	"unsafe"

	"github.com/Carmen-Shannon/oxy-trace/engine/bvh"
	"github.com/Carmen-Shannon/oxy-trace/engine/environment"
	"github.com/Carmen-Shannon/oxy-trace/engine/light"
)

// GPUSceneSource holds the canonical WGSL definitions of the Vertex, MeshInstance and
// Transform structs. Each matches its Go counterpart exactly (std430 aligned).
//
//go:embed assets/scene.wgsl
var GPUSceneSource string

// Serialized record sizes.
const (
	GPUVertexSize       = 64
	GPUMeshInstanceSize = 32
	GPUTransformSize    = 128
	GPUTriMaterialSize  = 4
)

// GPUVertex is the GPU-aligned representation of a pool vertex. The first texture coordinate
// set rides in the w components of the position and normal.
//
// Size: 64 bytes (std430 / WGSL aligned).
type GPUVertex struct {
	Position [3]float32 // offset  0
	U0       float32    // offset 12
	Normal   [3]float32 // offset 16
	V0       float32    // offset 28
	Tangent  [3]float32 // offset 32
	_        float32    // offset 44: padding
	UV1      [2]float32 // offset 48
	_        [2]float32 // offset 56: padding
}

// NewGPUVertex converts a pool vertex into its GPU-aligned layout.
func NewGPUVertex(v Vertex) GPUVertex {
	return GPUVertex{
		Position: v.Position,
		U0:       v.UV0[0],
		Normal:   v.Normal,
		V0:       v.UV0[1],
		Tangent:  v.Tangent,
		UV1:      v.UV1,
	}
}

// Size returns the size of the GPUVertex struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (64)
func (g *GPUVertex) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUVertex struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 64-byte buffer ready for GPU upload
func (g *GPUVertex) Marshal() []byte {
	buf := make([]byte, GPUVertexSize)
	putFloats(buf[0:], g.Position[:]...)
	putFloats(buf[12:], g.U0)
	putFloats(buf[16:], g.Normal[:]...)
	putFloats(buf[28:], g.V0)
	putFloats(buf[32:], g.Tangent[:]...)
	putFloats(buf[48:], g.UV1[:]...)
	return buf
}

// GPUMeshInstance is the GPU-aligned representation of a mesh instance.
//
// Size: 32 bytes (std430 / WGSL aligned).
type GPUMeshInstance struct {
	BBoxMin   [3]float32 // offset  0: world box
	BLASRoot  uint32     // offset 12: root node of the mesh hierarchy
	BBoxMax   [3]float32 // offset 16
	Transform uint32     // offset 28: transform slot
}

// Size returns the size of the GPUMeshInstance struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (32)
func (g *GPUMeshInstance) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUMeshInstance struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 32-byte buffer ready for GPU upload
func (g *GPUMeshInstance) Marshal() []byte {
	buf := make([]byte, GPUMeshInstanceSize)
	putFloats(buf[0:], g.BBoxMin[:]...)
	binary.LittleEndian.PutUint32(buf[12:16], g.BLASRoot)
	putFloats(buf[16:], g.BBoxMax[:]...)
	binary.LittleEndian.PutUint32(buf[28:32], g.Transform)
	return buf
}

// GPUTransform is the GPU-aligned representation of a transform.
//
// Size: 128 bytes (std430 / WGSL aligned).
type GPUTransform struct {
	Matrix  [16]float32 // offset  0: column-major
	Inverse [16]float32 // offset 64
}

// Size returns the size of the GPUTransform struct in bytes.
func (g *GPUTransform) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUTransform struct into a byte buffer suitable for GPU upload.
func (g *GPUTransform) Marshal() []byte {
	buf := make([]byte, GPUTransformSize)
	putFloats(buf[0:], g.Matrix[:]...)
	putFloats(buf[64:], g.Inverse[:]...)
	return buf
}

func putFloats(buf []byte, vs ...float32) {
	for i, v := range vs {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
}

func (s *scene) MarshalNodes() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return bvh.MarshalNodes(s.nodes)
}

func (s *scene) MarshalTriangles() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return bvh.MarshalTriangles(s.triangles)
}

func (s *scene) MarshalTriMaterials() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	buf := make([]byte, len(s.triMaterials)*GPUTriMaterialSize)
	for i, t := range s.triMaterials {
		binary.LittleEndian.PutUint16(buf[i*4:], t.Front)
		binary.LittleEndian.PutUint16(buf[i*4+2:], t.Back)
	}
	return buf
}

func (s *scene) MarshalVertices() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	buf := make([]byte, 0, len(s.vertices)*GPUVertexSize)
	for _, v := range s.vertices {
		g := NewGPUVertex(v)
		buf = append(buf, g.Marshal()...)
	}
	return buf
}

func (s *scene) MarshalMaterials() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.materials.Marshal()
}

func (s *scene) MarshalLights() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return light.MarshalLights(slotted(s.lights))
}

func (s *scene) MarshalInstances() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	buf := make([]byte, s.instances.Capacity()*GPUMeshInstanceSize)
	for h, inst := range s.instances.All() {
		g := GPUMeshInstance{
			BBoxMin:   inst.BBox.Min,
			BBoxMax:   inst.BBox.Max,
			Transform: inst.Transform,
		}
		if s.meshes.Exists(uint32(inst.Mesh)) {
			g.BLASRoot = s.meshes.Get(uint32(inst.Mesh)).NodeOffset
		}
		copy(buf[int(h)*GPUMeshInstanceSize:], g.Marshal())
	}
	return buf
}

func (s *scene) MarshalTransforms() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	buf := make([]byte, s.transforms.Capacity()*GPUTransformSize)
	for h, t := range s.transforms.All() {
		g := GPUTransform{Matrix: t.Matrix, Inverse: t.Inverse}
		copy(buf[int(h)*GPUTransformSize:], g.Marshal())
	}
	return buf
}

func (s *scene) MarshalEnvironment() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g := environment.NewGPUEnvironment(s.env, len(s.qtree.Levels), s.envLight)
	return g.Marshal()
}
