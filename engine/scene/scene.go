// Package scene owns every store of a path-traced scene and compiles descriptors into the
// pools the shading kernels consume.
package scene

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"slices"
	"sync"

	"github.com/Carmen-Shannon/oxy-trace/common"
	"github.com/Carmen-Shannon/oxy-trace/engine/bvh"
	"github.com/Carmen-Shannon/oxy-trace/engine/compute_pool"
	"github.com/Carmen-Shannon/oxy-trace/engine/environment"
	"github.com/Carmen-Shannon/oxy-trace/engine/gpu"
	"github.com/Carmen-Shannon/oxy-trace/engine/light"
	"github.com/Carmen-Shannon/oxy-trace/engine/material"
	"github.com/Carmen-Shannon/oxy-trace/engine/profiler"
	"github.com/Carmen-Shannon/oxy-trace/engine/storage"
	"github.com/Carmen-Shannon/oxy-trace/engine/texture"
)

// Default scene settings.
const (
	DefaultAtlasPageSize = 2048
	DefaultAtlasMaxPages = 16
)

// InvalidRoot is the TLAS root of a scene without instances.
const InvalidRoot uint32 = 0xFFFFFFFF

var (
	ErrInvalidHandle     = errors.New("scene: invalid handle")
	ErrInvalidMesh       = errors.New("scene: invalid mesh")
	ErrInvalidShape      = errors.New("scene: invalid shape")
	ErrSingularTransform = errors.New("scene: singular transform")
	ErrMeshInUse         = errors.New("scene: mesh is referenced by an instance")
	ErrInvalidEnvMap     = errors.New("scene: environment map is not an RGBA8 texture")
)

// State is the build state of a scene.
type State uint8

const (
	// StateBuilding means derived data may be stale. Every mutation returns the scene here.
	StateBuilding State = iota
	// StateFinalized means the pools, textures and environment data are render ready.
	StateFinalized
)

func (s State) String() string {
	switch s {
	case StateBuilding:
		return "Building"
	case StateFinalized:
		return "Finalized"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// Stats summarizes the size of a scene's stores and pools.
type Stats struct {
	State          State
	Meshes         int
	Instances      int
	Materials      int
	Textures       int
	Lights         int
	VisibleLights  int
	BlockerLights  int
	Nodes          int
	Triangles      int
	Vertices       int
	TLASNodes      int
	AtlasPages     [texture.NumAtlases]int
	QTreeLevels    int
	EnvLightActive bool
}

// Scene is the mutable store of a path-traced scene. Mutations take an exclusive lock for their
// whole duration, readers share a lock. Every mutation returns the scene to StateBuilding;
// Finalize builds the derived data and moves it to StateFinalized.
// Thread-safe for concurrent access.
type Scene interface {
	// AddMaterial inserts one primitive shading node.
	//
	// Parameters:
	//   - desc: the node descriptor
	//
	// Returns:
	//   - material.Handle: the new node
	//   - error: material.ErrInvalidKind or material.ErrInvalidHandle for bad mix children
	AddMaterial(desc material.ShadingNodeDesc) (material.Handle, error)

	// AddPrincipledMaterial decomposes a principled descriptor into shading nodes.
	//
	// Parameters:
	//   - desc: the principled descriptor
	//
	// Returns:
	//   - material.Handle: the root node of the synthesized graph
	AddPrincipledMaterial(desc material.PrincipledDesc) material.Handle

	// RemoveMaterial frees a material node. Triangles already stamped with it keep their records.
	//
	// Parameters:
	//   - h: the node to free
	//
	// Returns:
	//   - error: ErrInvalidHandle if h is not live
	RemoveMaterial(h material.Handle) error

	// AddMesh validates a mesh, builds its bottom-level hierarchy and appends it to the pools.
	//
	// Parameters:
	//   - desc: the mesh descriptor
	//
	// Returns:
	//   - MeshHandle: the new mesh
	//   - error: ErrInvalidMesh, ErrInvalidShape or material.ErrGraphTooDeep, with nothing appended
	AddMesh(desc MeshDesc) (MeshHandle, error)

	// RemoveMesh frees a mesh record. Its pool ranges are not reclaimed.
	//
	// Parameters:
	//   - h: the mesh to free
	//
	// Returns:
	//   - error: ErrInvalidHandle, or ErrMeshInUse while an instance references it
	RemoveMesh(h MeshHandle) error

	// AddMeshInstance places a mesh in the world, registers a light for every importance
	// sampled emissive triangle and rebuilds the top-level hierarchy.
	//
	// Parameters:
	//   - mesh: the mesh to place
	//   - xform: a column-major placement matrix
	//
	// Returns:
	//   - InstanceHandle: the new instance
	//   - error: ErrInvalidHandle or ErrSingularTransform
	AddMeshInstance(mesh MeshHandle, xform [16]float32) (InstanceHandle, error)

	// SetMeshInstanceTransform moves an instance and rebuilds the top-level hierarchy.
	//
	// Parameters:
	//   - h: the instance
	//   - xform: a column-major placement matrix
	//
	// Returns:
	//   - error: ErrInvalidHandle or ErrSingularTransform, leaving the instance unchanged
	SetMeshInstanceTransform(h InstanceHandle, xform [16]float32) error

	// RemoveMeshInstance frees an instance, its transform and its triangle lights.
	//
	// Parameters:
	//   - h: the instance
	//
	// Returns:
	//   - error: ErrInvalidHandle if h is not live
	RemoveMeshInstance(h InstanceHandle) error

	// AddTexture stores a texture in the atlas or as a bindless image.
	// Failures are logged and yield texture.InvalidHandle with nothing stored.
	//
	// Parameters:
	//   - desc: the texture descriptor
	//
	// Returns:
	//   - texture.Handle: the new texture, or texture.InvalidHandle
	AddTexture(desc texture.Desc) texture.Handle

	// AddDirectionalLight registers a distant light.
	//
	// Parameters:
	//   - desc: the light descriptor
	//
	// Returns:
	//   - light.Handle: the new light
	//   - error: light.ErrInvalidDesc
	AddDirectionalLight(desc light.DirectionalDesc) (light.Handle, error)

	// AddSphereLight registers a sphere light.
	AddSphereLight(desc light.SphereDesc) (light.Handle, error)

	// AddSpotLight registers a spot light.
	AddSpotLight(desc light.SpotDesc) (light.Handle, error)

	// AddRectLight registers a rectangle light placed by xform.
	//
	// Parameters:
	//   - desc: the light descriptor
	//   - xform: a column-major placement matrix
	//
	// Returns:
	//   - light.Handle: the new light
	//   - error: light.ErrInvalidDesc
	AddRectLight(desc light.RectDesc, xform [16]float32) (light.Handle, error)

	// AddDiskLight registers a disk light placed by xform.
	AddDiskLight(desc light.DiskDesc, xform [16]float32) (light.Handle, error)

	// AddLineLight registers a line light placed by xform.
	AddLineLight(desc light.LineDesc, xform [16]float32) (light.Handle, error)

	// RemoveLight frees a light and retracts it from the light, visible and blocker lists.
	//
	// Parameters:
	//   - h: the light
	//
	// Returns:
	//   - error: ErrInvalidHandle if h is not live
	RemoveLight(h light.Handle) error

	// GetEnvironment returns the environment as last set, or as rewritten by Finalize.
	GetEnvironment() environment.Desc

	// SetEnvironment replaces the environment. The importance data is rebuilt by Finalize.
	SetEnvironment(desc environment.Desc)

	// Finalize builds the derived data: the physical sky, the environment quadtree and light,
	// deferred atlas mips, atlas page uploads and the top-level hierarchy.
	//
	// Returns:
	//   - error: a device or environment map error; the scene stays in StateBuilding
	Finalize() error

	// State returns the build state.
	State() State

	// Stats returns the current store and pool sizes.
	Stats() Stats

	// Nodes returns a copy of the node pool, bottom-level ranges first and the TLAS last.
	Nodes() []bvh.Node

	// Triangles returns a copy of the precomputed triangle pool.
	Triangles() []bvh.TriAccel

	// TriMaterials returns a copy of the per-triangle material records.
	TriMaterials() []TriMaterial

	// TriIndices returns a copy of the leaf triangle references.
	TriIndices() []uint32

	// Vertices returns a copy of the vertex pool.
	Vertices() []Vertex

	// VertexIndices returns a copy of the vertex index pool, three per triangle.
	VertexIndices() []uint32

	// Mesh returns a mesh record.
	//
	// Parameters:
	//   - h: the mesh
	//
	// Returns:
	//   - Mesh: the record
	//   - error: ErrInvalidHandle if h is not live
	Mesh(h MeshHandle) (Mesh, error)

	// Meshes returns the live mesh handles in slot order.
	Meshes() []MeshHandle

	// MeshInstance returns an instance record.
	MeshInstance(h InstanceHandle) (MeshInstance, error)

	// MeshInstances returns the live instance handles in slot order.
	MeshInstances() []InstanceHandle

	// InstanceIndices returns the instance references of the TLAS leaves.
	InstanceIndices() []uint32

	// Transforms returns every transform slot, zero for free ones.
	Transforms() []Transform

	// Lights returns every light slot, zero for free ones.
	Lights() []light.Light

	// LightIndices returns the handles of every sampled light.
	LightIndices() []light.Handle

	// VisibleLights returns the handles of the lights camera rays can hit.
	VisibleLights() []light.Handle

	// BlockerLights returns the handles of the sky portals.
	BlockerLights() []light.Handle

	// TLASRoot returns the index of the top-level root node, or InvalidRoot.
	TLASRoot() uint32

	// EnvQTree returns the environment importance quadtree built by the last Finalize.
	EnvQTree() environment.QTree

	// EnvLight returns the environment light registered by the last Finalize, or light.InvalidHandle.
	EnvLight() light.Handle

	// Material returns a compiled shading node.
	//
	// Parameters:
	//   - h: the node
	//
	// Returns:
	//   - material.Node: the node
	//   - error: ErrInvalidHandle if h is not live
	Material(h material.Handle) (material.Node, error)

	// MaterialCount returns the number of live shading nodes.
	MaterialCount() int

	// AtlasTexture returns the atlas record of a texture stored in atlas mode.
	//
	// Parameters:
	//   - h: the texture
	//
	// Returns:
	//   - texture.AtlasTexture: the record
	//   - error: ErrInvalidHandle if h is not an atlas texture
	AtlasTexture(h texture.Handle) (texture.AtlasTexture, error)

	// AtlasTextures returns every atlas record slot, zero for free ones.
	AtlasTextures() []texture.AtlasTexture

	// AtlasImage returns the device image of one atlas page set, nil before it was uploaded.
	AtlasImage(set int) gpu.Image

	// BindlessImage returns the device image of a bindless texture.
	BindlessImage(h texture.Handle) (gpu.Image, error)

	// EnvQTreeImage returns the device image of the environment quadtree, nil before Finalize.
	EnvQTreeImage() gpu.Image

	// MarshalNodes serializes the node pool.
	MarshalNodes() []byte

	// MarshalTriangles serializes the triangle pool.
	MarshalTriangles() []byte

	// MarshalTriMaterials serializes the per-triangle material records.
	MarshalTriMaterials() []byte

	// MarshalVertices serializes the vertex pool.
	MarshalVertices() []byte

	// MarshalMaterials serializes the shading nodes in slot order.
	MarshalMaterials() []byte

	// MarshalLights serializes every light slot.
	MarshalLights() []byte

	// MarshalInstances serializes every instance slot.
	MarshalInstances() []byte

	// MarshalTransforms serializes every transform slot.
	MarshalTransforms() []byte

	// MarshalEnvironment serializes the environment record.
	MarshalEnvironment() []byte
}

type scene struct {
	mu *sync.RWMutex

	logger  *slog.Logger
	prof    *profiler.Profiler
	pool    compute_pool.ComputePool
	workers int
	device  gpu.Device
	state   State

	bindless    bool
	compress    bool
	hardwareRT  bool
	bvhSettings bvh.Settings
	pageSize    int
	maxPages    int

	materials  material.Library
	meshes     storage.Storage[Mesh]
	instances  storage.Storage[MeshInstance]
	transforms storage.Storage[Transform]
	lights     storage.Storage[light.Light]

	// Append-only pools shared by every mesh.
	nodes         []bvh.Node
	triangles     []bvh.TriAccel
	triMaterials  []TriMaterial
	triIndices    []uint32
	vertices      []Vertex
	vertexIndices []uint32

	lightIndices  []light.Handle
	visibleLights []light.Handle
	blockerLights []light.Handle

	// Top-level hierarchy, stored at nodes[tlasStart:tlasEnd].
	tlasRoot        uint32
	tlasStart       int
	tlasEnd         int
	instanceIndices []uint32

	atlases        texture.AtlasSet
	atlasTextures  storage.Storage[texture.AtlasTexture]
	deferredMips   []uint32
	atlasImages    [texture.NumAtlases]gpu.Image
	bindlessImages storage.Storage[gpu.Image]

	env        environment.Desc
	envLight   light.Handle
	qtree      environment.QTree
	qtreeImage gpu.Image
	sky        texture.Handle
}

var _ Scene = &scene{}

// NewScene creates an empty scene in StateBuilding. Without WithDevice the scene compiles into
// a host memory device.
//
// Parameters:
//   - options: functional options applied in order
//
// Returns:
//   - Scene: the new scene
func NewScene(options ...SceneBuilderOption) Scene {
	s := &scene{
		mu:          &sync.RWMutex{},
		logger:      common.Logger(),
		workers:     max(runtime.NumCPU()-1, 1),
		device:      gpu.NewMemoryDevice(),
		compress:    true,
		bvhSettings: bvh.NewSettings(),
		pageSize:    DefaultAtlasPageSize,
		maxPages:    DefaultAtlasMaxPages,
		materials:   material.NewLibrary(64),
		meshes:      storage.NewSparseStorage[Mesh](16),
		instances:   storage.NewSparseStorage[MeshInstance](16),
		transforms:  storage.NewSparseStorage[Transform](16),
		lights:      storage.NewSparseStorage[light.Light](16),
		tlasRoot:    InvalidRoot,
		env:         environment.NewDesc(),
		envLight:    light.InvalidHandle,
		sky:         texture.InvalidHandle,
	}

	for _, option := range options {
		option(s)
	}

	if s.device == nil {
		panic("scene: NewScene requires a non-nil Device")
	}
	if s.pageSize < 4*texture.MinAtlasTextureSize {
		panic(fmt.Sprintf("scene: NewScene requires an atlas page size of at least %d", 4*texture.MinAtlasTextureSize))
	}
	if s.maxPages < 1 || s.maxPages > texture.MaxAtlasPages {
		panic(fmt.Sprintf("scene: NewScene requires between 1 and %d atlas pages", texture.MaxAtlasPages))
	}

	// The pool is created after options so WithWorkerCount can override the default.
	s.pool = compute_pool.NewComputePool(s.workers)
	s.atlases = texture.NewAtlasSet(s.pageSize, s.maxPages)
	s.atlasTextures = storage.NewSparseStorage[texture.AtlasTexture](64)
	s.bindlessImages = storage.NewSparseStorage[gpu.Image](64)
	return s
}

// touch returns the scene to StateBuilding. Callers hold the write lock.
func (s *scene) touch() {
	s.state = StateBuilding
}

func (s *scene) AddMaterial(desc material.ShadingNodeDesc) (material.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	return s.materials.AddNode(desc)
}

func (s *scene) AddPrincipledMaterial(desc material.PrincipledDesc) material.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	return s.materials.AddPrincipled(desc)
}

func (s *scene) RemoveMaterial(h material.Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.materials.Exists(h) {
		return fmt.Errorf("material %d: %w", h, ErrInvalidHandle)
	}
	s.touch()
	s.materials.Remove(h)
	return nil
}

func (s *scene) GetEnvironment() environment.Desc {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.env
}

func (s *scene) SetEnvironment(desc environment.Desc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	s.env = desc
}

func (s *scene) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *scene) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Stats{
		State:          s.state,
		Meshes:         s.meshes.Len(),
		Instances:      s.instances.Len(),
		Materials:      s.materials.Len(),
		Textures:       s.atlasTextures.Len() + s.bindlessImages.Len(),
		Lights:         s.lights.Len(),
		VisibleLights:  len(s.visibleLights),
		BlockerLights:  len(s.blockerLights),
		Nodes:          len(s.nodes),
		Triangles:      len(s.triMaterials),
		Vertices:       len(s.vertices),
		TLASNodes:      s.tlasEnd - s.tlasStart,
		QTreeLevels:    len(s.qtree.Levels),
		EnvLightActive: s.envLight != light.InvalidHandle,
	}
	for i := range st.AtlasPages {
		st.AtlasPages[i] = s.atlases.Atlas(i).PageCount()
	}
	return st
}

func (s *scene) Nodes() []bvh.Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.nodes)
}

func (s *scene) Triangles() []bvh.TriAccel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.triangles)
}

func (s *scene) TriMaterials() []TriMaterial {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.triMaterials)
}

func (s *scene) TriIndices() []uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.triIndices)
}

func (s *scene) Vertices() []Vertex {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.vertices)
}

func (s *scene) VertexIndices() []uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.vertexIndices)
}

func (s *scene) Mesh(h MeshHandle) (Mesh, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.meshes.Exists(uint32(h)) {
		return Mesh{}, fmt.Errorf("mesh %d: %w", h, ErrInvalidHandle)
	}
	return s.meshes.Get(uint32(h)), nil
}

func (s *scene) Meshes() []MeshHandle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]MeshHandle, 0, s.meshes.Len())
	for h := range s.meshes.All() {
		out = append(out, MeshHandle(h))
	}
	return out
}

func (s *scene) MeshInstance(h InstanceHandle) (MeshInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.instances.Exists(uint32(h)) {
		return MeshInstance{}, fmt.Errorf("instance %d: %w", h, ErrInvalidHandle)
	}
	inst := s.instances.Get(uint32(h))
	inst.Lights = slices.Clone(inst.Lights)
	return inst, nil
}

func (s *scene) MeshInstances() []InstanceHandle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]InstanceHandle, 0, s.instances.Len())
	for h := range s.instances.All() {
		out = append(out, InstanceHandle(h))
	}
	return out
}

func (s *scene) InstanceIndices() []uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.instanceIndices)
}

func (s *scene) Transforms() []Transform {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slotted(s.transforms)
}

func (s *scene) Lights() []light.Light {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slotted(s.lights)
}

func (s *scene) LightIndices() []light.Handle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.lightIndices)
}

func (s *scene) VisibleLights() []light.Handle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.visibleLights)
}

func (s *scene) BlockerLights() []light.Handle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.blockerLights)
}

func (s *scene) TLASRoot() uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tlasRoot
}

func (s *scene) EnvQTree() environment.QTree {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.qtree
}

func (s *scene) EnvLight() light.Handle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.envLight
}

func (s *scene) Material(h material.Handle) (material.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.materials.Exists(h) {
		return material.Node{}, fmt.Errorf("material %d: %w", h, ErrInvalidHandle)
	}
	return s.materials.Get(h), nil
}

func (s *scene) MaterialCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.materials.Len()
}

func (s *scene) AtlasTexture(h texture.Handle) (texture.AtlasTexture, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.bindless || h == texture.InvalidHandle || !s.atlasTextures.Exists(h.Index()) {
		return texture.AtlasTexture{}, fmt.Errorf("texture %d: %w", h, ErrInvalidHandle)
	}
	return s.atlasTextures.Get(h.Index()), nil
}

func (s *scene) AtlasTextures() []texture.AtlasTexture {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slotted(s.atlasTextures)
}

func (s *scene) AtlasImage(set int) gpu.Image {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.atlasImages[set]
}

func (s *scene) BindlessImage(h texture.Handle) (gpu.Image, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.bindless || h == texture.InvalidHandle || !s.bindlessImages.Exists(h.Index()) {
		return nil, fmt.Errorf("texture %d: %w", h, ErrInvalidHandle)
	}
	return s.bindlessImages.Get(h.Index()), nil
}

func (s *scene) EnvQTreeImage() gpu.Image {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.qtreeImage
}

// slotted expands a store into a dense slice indexed by handle, zero for free slots.
func slotted[T any](st storage.Storage[T]) []T {
	out := make([]T, st.Capacity())
	for h, v := range st.All() {
		out[h] = v
	}
	return out
}
