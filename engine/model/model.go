// Package model holds imported models: meshes, materials, decoded images and placed nodes,
// ready to be compiled into a scene.
package model

import (
	"github.com/Carmen-Shannon/oxy-trace/common"
)

// model is the implementation of the Model interface.
type model struct {
	name      string
	meshes    []ImportedMesh
	materials []ImportedMaterial
	images    []ImportedImage
	nodes     []ImportedNode
}

// Model defines the interface for a loaded 3D model.
// A Model is a read-only container produced by the Loader after importing a model file.
type Model interface {
	// Name retrieves the model identifier.
	//
	// Returns:
	//   - string: the model name
	Name() string

	// Meshes retrieves the meshes, one per source mesh.
	//
	// Returns:
	//   - []ImportedMesh: the meshes
	Meshes() []ImportedMesh

	// Materials retrieves the imported materials.
	//
	// Returns:
	//   - []ImportedMaterial: the materials
	Materials() []ImportedMaterial

	// Images retrieves the decoded images referenced by the materials.
	//
	// Returns:
	//   - []ImportedImage: the images
	Images() []ImportedImage

	// Nodes retrieves the placed meshes.
	//
	// Returns:
	//   - []ImportedNode: the nodes
	Nodes() []ImportedNode

	// TriangleCount returns the number of triangles over all meshes, counted once per mesh.
	TriangleCount() int

	// Bounds returns the world space bounding box of every placed mesh.
	//
	// Returns:
	//   - common.BoundingBox: the box, empty when nothing is placed
	Bounds() common.BoundingBox
}

var _ Model = &model{}

// NewModel creates a new Model with the provided options applied.
//
// Parameters:
//   - options: a variadic list of ModelBuilderOption functions
//
// Returns:
//   - Model: the new model
func NewModel(options ...ModelBuilderOption) Model {
	m := &model{}
	for _, option := range options {
		option(m)
	}
	return m
}

// FromImported wraps an ImportedModel.
func FromImported(imp *ImportedModel) Model {
	return NewModel(
		WithName(imp.Name),
		WithMeshes(imp.Meshes),
		WithMaterials(imp.Materials),
		WithImages(imp.Images),
		WithNodes(imp.Nodes),
	)
}

func (m *model) Name() string {
	return m.name
}

func (m *model) Meshes() []ImportedMesh {
	return m.meshes
}

func (m *model) Materials() []ImportedMaterial {
	return m.materials
}

func (m *model) Images() []ImportedImage {
	return m.images
}

func (m *model) Nodes() []ImportedNode {
	return m.nodes
}

func (m *model) TriangleCount() int {
	n := 0
	for _, mesh := range m.meshes {
		n += len(mesh.Indices) / 3
	}
	return n
}

func (m *model) Bounds() common.BoundingBox {
	b := common.EmptyBoundingBox()
	for _, node := range m.nodes {
		if node.Mesh < 0 || node.Mesh >= len(m.meshes) {
			continue
		}
		b.Extend(common.TransformBoundingBox(node.World[:], m.meshes[node.Mesh].BBox))
	}
	return b
}
