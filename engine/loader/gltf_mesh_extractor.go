package loader

import (
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/oxy-trace/common"
	"github.com/Carmen-Shannon/oxy-trace/engine/model"
	"github.com/chewxy/math32"
)

// gltfMeshExtractorImpl is the implementation of the gltfMeshExtractor interface.
type gltfMeshExtractorImpl struct {
	parser gltfParser
}

// gltfMeshExtractor defines the interface for extracting mesh data from a parsed glTF document.
// It converts raw glTF accessor data into ImportedMesh structs with interleaved
// position, normal and UV attributes.
type gltfMeshExtractor interface {
	// ExtractMesh extracts a single mesh by index. Every triangle primitive becomes one
	// model.Primitive over the mesh's shared vertex and index buffers; other topologies are
	// skipped.
	//
	// Parameters:
	//   - meshIndex: the index of the mesh to extract
	//
	// Returns:
	//   - model.ImportedMesh: the mesh
	//   - error: error if extraction fails
	ExtractMesh(meshIndex int) (model.ImportedMesh, error)

	// ExtractAllMeshes extracts all meshes from the document, keeping document order.
	//
	// Returns:
	//   - []model.ImportedMesh: all meshes
	//   - error: error if extraction fails
	ExtractAllMeshes() ([]model.ImportedMesh, error)
}

var _ gltfMeshExtractor = &gltfMeshExtractorImpl{}

func newGLTFMeshExtractor(parser gltfParser) gltfMeshExtractor {
	return &gltfMeshExtractorImpl{parser: parser}
}

func (e *gltfMeshExtractorImpl) ExtractMesh(meshIndex int) (model.ImportedMesh, error) {
	doc := e.parser.Document()
	if doc == nil {
		return model.ImportedMesh{}, errors.New("no document loaded")
	}
	if meshIndex < 0 || meshIndex >= len(doc.Meshes) {
		return model.ImportedMesh{}, fmt.Errorf("mesh index %d out of range", meshIndex)
	}

	src := &doc.Meshes[meshIndex]
	mesh := model.ImportedMesh{Name: src.Name, BBox: common.EmptyBoundingBox()}
	if mesh.Name == "" {
		mesh.Name = fmt.Sprintf("mesh_%d", meshIndex)
	}

	for primIdx := range src.Primitives {
		prim := &src.Primitives[primIdx]
		if prim.Mode != nil && *prim.Mode != gltfPrimitiveModeTriangles {
			common.Logger().Warn("loader: skipping non-triangle primitive",
				"mesh", mesh.Name, "primitive", primIdx, "mode", *prim.Mode)
			continue
		}
		if err := e.appendPrimitive(&mesh, prim, len(doc.Materials)); err != nil {
			return model.ImportedMesh{}, fmt.Errorf("mesh %d primitive %d: %w", meshIndex, primIdx, err)
		}
	}
	return mesh, nil
}

func (e *gltfMeshExtractorImpl) ExtractAllMeshes() ([]model.ImportedMesh, error) {
	doc := e.parser.Document()
	if doc == nil {
		return nil, errors.New("no document loaded")
	}

	meshes := make([]model.ImportedMesh, len(doc.Meshes))
	for i := range doc.Meshes {
		m, err := e.ExtractMesh(i)
		if err != nil {
			return nil, err
		}
		meshes[i] = m
	}
	return meshes, nil
}

// appendPrimitive appends the vertices and rebased indices of prim to mesh.
func (e *gltfMeshExtractorImpl) appendPrimitive(mesh *model.ImportedMesh, prim *gltfPrimitive, materialCount int) error {
	posAccessor, ok := prim.Attributes["POSITION"]
	if !ok {
		return errors.New("primitive has no POSITION attribute")
	}
	positions, err := e.parser.ReadFloatAccessor(posAccessor, gltfAccessorTypeVec3)
	if err != nil {
		return fmt.Errorf("failed to read positions: %w", err)
	}
	vertexCount := len(positions) / 3

	var normals, uvs []float32
	if acc, ok := prim.Attributes["NORMAL"]; ok {
		if normals, err = e.parser.ReadFloatAccessor(acc, gltfAccessorTypeVec3); err != nil {
			return fmt.Errorf("failed to read normals: %w", err)
		}
		if len(normals) != len(positions) {
			return fmt.Errorf("%d normals for %d positions", len(normals)/3, vertexCount)
		}
	}
	if acc, ok := prim.Attributes["TEXCOORD_0"]; ok {
		if uvs, err = e.parser.ReadFloatAccessor(acc, gltfAccessorTypeVec2); err != nil {
			return fmt.Errorf("failed to read texcoords: %w", err)
		}
		if len(uvs)/2 != vertexCount {
			return fmt.Errorf("%d texcoords for %d positions", len(uvs)/2, vertexCount)
		}
	}

	var indices []uint32
	if prim.Indices != nil {
		if indices, err = e.parser.ReadIndicesAccessor(*prim.Indices); err != nil {
			return fmt.Errorf("failed to read indices: %w", err)
		}
	} else {
		indices = make([]uint32, vertexCount)
		for i := range indices {
			indices[i] = uint32(i)
		}
	}
	if len(indices)%3 != 0 {
		return fmt.Errorf("%d indices is not a whole number of triangles", len(indices))
	}
	for _, idx := range indices {
		if int(idx) >= vertexCount {
			return fmt.Errorf("index %d out of range for %d vertices", idx, vertexCount)
		}
	}

	materialIndex := model.NoIndex
	if prim.Material != nil {
		if *prim.Material < 0 || *prim.Material >= materialCount {
			return fmt.Errorf("material index %d out of range", *prim.Material)
		}
		materialIndex = *prim.Material
	}

	if normals == nil {
		normals = generateNormals(positions, indices)
	}

	base := uint32(mesh.VertexCount())
	for v := 0; v < vertexCount; v++ {
		p := [3]float32{positions[v*3], positions[v*3+1], positions[v*3+2]}
		mesh.BBox.ExtendPoint(p)
		mesh.Attributes = append(mesh.Attributes, p[0], p[1], p[2], normals[v*3], normals[v*3+1], normals[v*3+2])
		if uvs != nil {
			mesh.Attributes = append(mesh.Attributes, uvs[v*2], uvs[v*2+1])
		} else {
			mesh.Attributes = append(mesh.Attributes, 0, 0)
		}
	}

	first := uint32(len(mesh.Indices))
	for _, idx := range indices {
		mesh.Indices = append(mesh.Indices, base+idx)
	}
	mesh.Primitives = append(mesh.Primitives, model.Primitive{
		First:    first,
		Count:    uint32(len(indices)),
		Material: materialIndex,
	})
	return nil
}

// generateNormals computes smooth vertex normals from the triangle geometry when the
// glTF file does not provide a NORMAL attribute. Face normals are accumulated area-weighted
// onto their vertices and normalized; vertices on no triangle point up.
//
// Parameters:
//   - positions: three floats per vertex
//   - indices: the triangle index buffer, already validated
//
// Returns:
//   - []float32: three floats per vertex
func generateNormals(positions []float32, indices []uint32) []float32 {
	n := len(positions) / 3
	accum := make([][3]float32, n)
	pos := func(i uint32) [3]float32 {
		return [3]float32{positions[i*3], positions[i*3+1], positions[i*3+2]}
	}

	for i := 0; i+2 < len(indices); i += 3 {
		i0, i1, i2 := indices[i], indices[i+1], indices[i+2]
		p0 := pos(i0)
		face := common.Cross3(common.Sub3(pos(i1), p0), common.Sub3(pos(i2), p0))
		for _, idx := range [3]uint32{i0, i1, i2} {
			accum[idx] = common.Add3(accum[idx], face)
		}
	}

	out := make([]float32, len(positions))
	for i, a := range accum {
		nrm := [3]float32{0, 1, 0}
		if l := math32.Sqrt(common.Dot3(a, a)); l >= 1e-12 {
			nrm = common.Scale3(a, 1/l)
		}
		copy(out[i*3:], nrm[:])
	}
	return out
}
