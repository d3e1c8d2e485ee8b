package loader

import (
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/oxy-trace/common"
	"github.com/Carmen-Shannon/oxy-trace/engine/model"
)

// gltfNodeExtractorImpl is the implementation of the gltfNodeExtractor interface.
type gltfNodeExtractorImpl struct {
	parser gltfParser
}

// gltfNodeExtractor flattens the node hierarchy of the active scene into placed meshes.
type gltfNodeExtractor interface {
	// ExtractNodes walks the hierarchy from the active scene's roots, or from every node
	// without a parent when the document has no scenes. A document without nodes places each
	// mesh once at the origin.
	//
	// Returns:
	//   - []model.ImportedNode: one entry per mesh-carrying node, in traversal order
	//   - error: error on a cycle or an out of range reference
	ExtractNodes() ([]model.ImportedNode, error)
}

var _ gltfNodeExtractor = &gltfNodeExtractorImpl{}

func newGLTFNodeExtractor(parser gltfParser) gltfNodeExtractor {
	return &gltfNodeExtractorImpl{parser: parser}
}

func (e *gltfNodeExtractorImpl) ExtractNodes() ([]model.ImportedNode, error) {
	doc := e.parser.Document()
	if doc == nil {
		return nil, errors.New("no document loaded")
	}

	if len(doc.Nodes) == 0 {
		nodes := make([]model.ImportedNode, len(doc.Meshes))
		for i := range doc.Meshes {
			nodes[i] = model.ImportedNode{Name: doc.Meshes[i].Name, Mesh: i, World: common.IdentityMatrix()}
		}
		return nodes, nil
	}

	roots, err := e.roots(doc)
	if err != nil {
		return nil, err
	}

	var out []model.ImportedNode
	visiting := make([]bool, len(doc.Nodes))
	var walk func(idx int, parent [16]float32) error
	walk = func(idx int, parent [16]float32) error {
		if idx < 0 || idx >= len(doc.Nodes) {
			return fmt.Errorf("node index %d out of range", idx)
		}
		if visiting[idx] {
			return fmt.Errorf("node %d is its own ancestor", idx)
		}
		visiting[idx] = true
		defer func() { visiting[idx] = false }()

		n := &doc.Nodes[idx]
		local := gltfLocalMatrix(n)
		var world [16]float32
		common.Mul4(world[:], parent[:], local[:])

		if n.Mesh != nil {
			if *n.Mesh < 0 || *n.Mesh >= len(doc.Meshes) {
				return fmt.Errorf("node %d: mesh index %d out of range", idx, *n.Mesh)
			}
			name := n.Name
			if name == "" {
				name = fmt.Sprintf("node_%d", idx)
			}
			out = append(out, model.ImportedNode{Name: name, Mesh: *n.Mesh, World: world})
		}
		for _, child := range n.Children {
			if err := walk(child, world); err != nil {
				return err
			}
		}
		return nil
	}

	for _, r := range roots {
		if err := walk(r, common.IdentityMatrix()); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// roots returns the root nodes of the default scene, the first scene, or every parentless node.
func (e *gltfNodeExtractorImpl) roots(doc *gltfDocument) ([]int, error) {
	if len(doc.Scenes) > 0 {
		s := 0
		if doc.Scene != nil {
			s = *doc.Scene
		}
		if s < 0 || s >= len(doc.Scenes) {
			return nil, fmt.Errorf("scene index %d out of range", s)
		}
		return doc.Scenes[s].Nodes, nil
	}

	isChild := make([]bool, len(doc.Nodes))
	for _, n := range doc.Nodes {
		for _, c := range n.Children {
			if c >= 0 && c < len(isChild) {
				isChild[c] = true
			}
		}
	}
	var roots []int
	for i, child := range isChild {
		if !child {
			roots = append(roots, i)
		}
	}
	return roots, nil
}

// gltfLocalMatrix returns a node's matrix, composing TRS when no matrix is given.
func gltfLocalMatrix(n *gltfNode) [16]float32 {
	if n.Matrix != nil {
		return *n.Matrix
	}
	t := model.IdentityTransform()
	if n.Translation != nil {
		t.Translation = *n.Translation
	}
	if n.Rotation != nil {
		t.Rotation = *n.Rotation
	}
	if n.Scale != nil {
		t.Scale = *n.Scale
	}
	return t.Matrix()
}
