package scene

import (
	"github.com/Carmen-Shannon/oxy-trace/engine/bvh"
	"github.com/Carmen-Shannon/oxy-trace/engine/material"
)

// MeshDesc describes a mesh to add. Indices are relative to BaseVertex. A zero BVH uses the
// scene's build settings.
type MeshDesc struct {
	Layout     Layout
	Attributes []float32
	Indices    []uint32
	BaseVertex uint32
	Shapes     []Shape
	BVH        bvh.Settings
}

// MeshOption is a function that configures a MeshDesc during construction.
type MeshOption func(*MeshDesc)

// NewMeshDesc creates a mesh descriptor.
//
// Parameters:
//   - layout: the vertex attribute interleaving
//   - attrs: the interleaved vertex attributes
//   - indices: three vertex indices per triangle
//   - opts: options applied in order
//
// Returns:
//   - MeshDesc: the descriptor
func NewMeshDesc(layout Layout, attrs []float32, indices []uint32, opts ...MeshOption) MeshDesc {
	d := MeshDesc{Layout: layout, Attributes: attrs, Indices: indices}
	for _, opt := range opts {
		opt(&d)
	}
	return d
}

// WithShape is an option builder that appends a shape.
//
// Parameters:
//   - front, back: the materials of each side
//   - first: the first index of the range
//   - count: the number of indices in the range
//
// Returns:
//   - MeshOption: a function that applies the option
func WithShape(front, back material.Handle, first, count uint32) MeshOption {
	return func(d *MeshDesc) {
		d.Shapes = append(d.Shapes, Shape{Front: front, Back: back, First: first, Count: count})
	}
}

// WithBaseVertex is an option builder that offsets every index into the attribute array.
func WithBaseVertex(base uint32) MeshOption {
	return func(d *MeshDesc) {
		d.BaseVertex = base
	}
}

// WithMeshBVH is an option builder that overrides the scene's build settings for this mesh.
func WithMeshBVH(settings bvh.Settings) MeshOption {
	return func(d *MeshDesc) {
		d.BVH = settings
	}
}
