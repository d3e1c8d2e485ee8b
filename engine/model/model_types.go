package model

import (
	"github.com/Carmen-Shannon/oxy-trace/common"
)

// NoIndex marks an absent material, texture or mesh reference.
const NoIndex = -1

// Transform is a decomposed node transform.
type Transform struct {
	// Translation is the position offset.
	Translation [3]float32

	// Rotation is the orientation as a quaternion (x, y, z, w).
	Rotation [4]float32

	// Scale is the scale factor along each axis.
	Scale [3]float32
}

// IdentityTransform returns a transform that leaves points in place.
func IdentityTransform() Transform {
	return Transform{Rotation: [4]float32{0, 0, 0, 1}, Scale: [3]float32{1, 1, 1}}
}

// Matrix composes the transform into a column-major matrix in T * R * S order.
func (t Transform) Matrix() [16]float32 {
	return common.ComposeTRS(t.Translation, t.Rotation, t.Scale)
}

// AlphaMode is how a material's alpha is interpreted.
type AlphaMode uint8

const (
	AlphaOpaque AlphaMode = iota
	AlphaMask
	AlphaBlend
)

// ImportedImage is a decoded image in tightly packed RGBA8.
type ImportedImage struct {
	// Name is the image identifier, possibly empty.
	Name string

	// MimeType is the declared or sniffed encoding of the source bytes.
	MimeType string

	Width  int
	Height int

	// Pixels holds Width*Height RGBA texels.
	Pixels []byte
}

// ImportedMaterial holds the metallic-roughness parameters of a material. Texture fields index
// ImportedModel.Images, NoIndex when absent.
type ImportedMaterial struct {
	Name string

	BaseColor        [4]float32
	BaseColorTexture int

	Metallic  float32
	Roughness float32
	// MetallicRoughnessTexture stores roughness in G and metallic in B.
	MetallicRoughnessTexture int

	NormalTexture int
	NormalScale   float32

	Emissive         [3]float32
	EmissiveStrength float32
	EmissiveTexture  int

	AlphaMode   AlphaMode
	AlphaCutoff float32
	DoubleSided bool

	Transmission float32
	IOR          float32
}

// DefaultMaterial returns the material used by primitives that reference none.
func DefaultMaterial() ImportedMaterial {
	return ImportedMaterial{
		Name:                     "default",
		BaseColor:                [4]float32{1, 1, 1, 1},
		BaseColorTexture:         NoIndex,
		Metallic:                 1,
		Roughness:                1,
		MetallicRoughnessTexture: NoIndex,
		NormalTexture:            NoIndex,
		NormalScale:              1,
		EmissiveStrength:         1,
		EmissiveTexture:          NoIndex,
		AlphaCutoff:              0.5,
		IOR:                      1.5,
	}
}

// Primitive is a range of an ImportedMesh's index buffer drawn with one material.
type Primitive struct {
	// First and Count are in indices.
	First uint32
	Count uint32

	// Material indexes ImportedModel.Materials, NoIndex for the default material.
	Material int
}

// VertexStride is the float count of one vertex: position, normal and one UV set.
const VertexStride = 8

// ImportedMesh holds every primitive of one source mesh in a shared vertex and index buffer.
type ImportedMesh struct {
	// Name is the mesh identifier.
	Name string

	// Attributes interleaves VertexStride floats per vertex.
	Attributes []float32

	// Indices are the triangle indices.
	Indices []uint32

	Primitives []Primitive

	// BBox is the object space bounding box.
	BBox common.BoundingBox
}

// VertexCount returns the number of vertices.
func (m ImportedMesh) VertexCount() int {
	return len(m.Attributes) / VertexStride
}

// ImportedNode places a mesh in the world.
type ImportedNode struct {
	Name string

	// Mesh indexes ImportedModel.Meshes.
	Mesh int

	// World is the column-major node-to-world matrix.
	World [16]float32
}

// ImportedModel represents a 3D model loaded from an external format.
// This is the universal format that importers produce.
type ImportedModel struct {
	// Name is the model identifier.
	Name string

	Meshes    []ImportedMesh
	Materials []ImportedMaterial
	Images    []ImportedImage

	// Nodes are the mesh-carrying nodes of the active scene, flattened.
	Nodes []ImportedNode
}
