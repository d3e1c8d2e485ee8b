package scene

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-trace/common"
	"github.com/Carmen-Shannon/oxy-trace/engine/bvh"
	"github.com/Carmen-Shannon/oxy-trace/engine/light"
	"github.com/Carmen-Shannon/oxy-trace/engine/material"
)

// InstanceHandle identifies a mesh instance in the scene.
type InstanceHandle uint32

// InvalidInstanceHandle marks an absent instance.
const InvalidInstanceHandle InstanceHandle = 0xFFFFFFFF

// Transform is a column-major placement matrix and its inverse.
type Transform struct {
	Matrix  [16]float32
	Inverse [16]float32
}

// MeshInstance places a mesh in the world. BBox is the world box of the mesh under the
// transform, recomputed on every transform write. Lights lists the triangle lights registered
// for the instance's emissive triangles.
type MeshInstance struct {
	Mesh      MeshHandle
	Transform uint32
	BBox      common.BoundingBox
	Lights    []light.Handle
}

func newTransform(xform [16]float32) (Transform, error) {
	t := Transform{Matrix: xform}
	if !common.Invert4(t.Inverse[:], xform[:]) {
		return Transform{}, ErrSingularTransform
	}
	return t, nil
}

func (s *scene) AddMeshInstance(mesh MeshHandle, xform [16]float32) (InstanceHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.meshes.Exists(uint32(mesh)) {
		return InvalidInstanceHandle, fmt.Errorf("mesh %d: %w", mesh, ErrInvalidHandle)
	}
	t, err := newTransform(xform)
	if err != nil {
		return InvalidInstanceHandle, fmt.Errorf("instance of mesh %d: %w", mesh, err)
	}

	s.touch()
	m := s.meshes.Get(uint32(mesh))
	inst := MeshInstance{
		Mesh:      mesh,
		Transform: s.transforms.Insert(t),
		BBox:      common.TransformBoundingBox(xform[:], m.BBox),
	}
	inst.Lights = s.registerTriangleLights(m, inst.Transform)
	h := InstanceHandle(s.instances.Insert(inst))

	s.rebuildTLAS()
	return h, nil
}

// registerTriangleLights adds one light per triangle whose front material is an importance
// sampled emissive node.
func (s *scene) registerTriangleLights(m Mesh, xform uint32) []light.Handle {
	var out []light.Handle
	for _, sh := range m.Shapes {
		if !s.materials.Exists(sh.Front) {
			continue
		}
		node := s.materials.Get(sh.Front)
		if node.Kind != material.KindEmissive || node.Flags&material.FlagMultipleImportance == 0 {
			continue
		}
		color := common.Scale3(node.BaseColor, node.Strength)
		for t := sh.First / 3; t < (sh.First+sh.Count)/3; t++ {
			out = append(out, s.addLight(light.NewTriangle(color, m.TriOffset+t, xform)))
		}
	}
	return out
}

func (s *scene) SetMeshInstanceTransform(h InstanceHandle, xform [16]float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.instances.Exists(uint32(h)) {
		return fmt.Errorf("instance %d: %w", h, ErrInvalidHandle)
	}
	t, err := newTransform(xform)
	if err != nil {
		return fmt.Errorf("instance %d: %w", h, err)
	}

	s.touch()
	inst := s.instances.Ptr(uint32(h))
	s.transforms.Set(inst.Transform, t)
	inst.BBox = common.TransformBoundingBox(xform[:], s.meshes.Get(uint32(inst.Mesh)).BBox)

	s.rebuildTLAS()
	return nil
}

func (s *scene) RemoveMeshInstance(h InstanceHandle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.instances.Exists(uint32(h)) {
		return fmt.Errorf("instance %d: %w", h, ErrInvalidHandle)
	}

	s.touch()
	inst := s.instances.Get(uint32(h))
	for _, l := range inst.Lights {
		s.removeLight(l)
	}
	s.transforms.Erase(inst.Transform)
	s.instances.Erase(uint32(h))

	s.rebuildTLAS()
	return nil
}

// rebuildTLAS replaces the top-level hierarchy with a full SAH build over the instance boxes.
// The previous range is reclaimed when it is the tail of the node pool.
func (s *scene) rebuildTLAS() {
	if s.tlasEnd > s.tlasStart && s.tlasEnd == len(s.nodes) {
		s.nodes = s.nodes[:s.tlasStart]
	}
	s.tlasStart, s.tlasEnd = len(s.nodes), len(s.nodes)
	s.tlasRoot = InvalidRoot
	s.instanceIndices = s.instanceIndices[:0]

	var handles []uint32
	var prims []bvh.Prim
	for h, inst := range s.instances.All() {
		handles = append(handles, h)
		prims = append(prims, bvh.Prim{Bounds: inst.BBox})
	}
	if len(prims) == 0 {
		return
	}

	nodes, refs := bvh.Build(prims, s.bvhSettings)
	offset := uint32(len(s.nodes))
	for _, n := range nodes {
		s.nodes = append(s.nodes, n.Offset(offset, 0))
	}
	for _, r := range refs {
		s.instanceIndices = append(s.instanceIndices, handles[r])
	}

	s.tlasRoot = offset
	s.tlasEnd = len(s.nodes)
	s.logger.Debug("scene: tlas rebuilt", "instances", len(prims), "nodes", len(nodes), "root", s.tlasRoot)
}
