package model

// ModelBuilderOption is a functional option for configuring a Model via NewModel.
type ModelBuilderOption func(*model)

// WithName is an option builder that sets the model name.
//
// Parameters:
//   - name: the model identifier
//
// Returns:
//   - ModelBuilderOption: a function that applies the name option to a model
func WithName(name string) ModelBuilderOption {
	return func(m *model) {
		m.name = name
	}
}

// WithMeshes is an option builder that sets the model meshes.
//
// Parameters:
//   - meshes: the meshes
//
// Returns:
//   - ModelBuilderOption: a function that applies the meshes option to a model
func WithMeshes(meshes []ImportedMesh) ModelBuilderOption {
	return func(m *model) {
		m.meshes = meshes
	}
}

// WithMaterials is an option builder that sets the model materials.
func WithMaterials(materials []ImportedMaterial) ModelBuilderOption {
	return func(m *model) {
		m.materials = materials
	}
}

// WithImages is an option builder that sets the decoded images.
func WithImages(images []ImportedImage) ModelBuilderOption {
	return func(m *model) {
		m.images = images
	}
}

// WithNodes is an option builder that sets the placed meshes.
//
// Parameters:
//   - nodes: the nodes, each with a world matrix
//
// Returns:
//   - ModelBuilderOption: a function that applies the nodes option to a model
func WithNodes(nodes []ImportedNode) ModelBuilderOption {
	return func(m *model) {
		m.nodes = nodes
	}
}
