package material

import (
	"errors"
	"fmt"
	"iter"

	"github.com/Carmen-Shannon/oxy-trace/engine/storage"
	"github.com/chewxy/math32"

	"github.com/Carmen-Shannon/oxy-trace/common"
)

// Handle identifies a material node in a Library.
type Handle uint32

// InvalidHandle marks an absent material reference.
const InvalidHandle Handle = 0xFFFFFFFF

// Kind identifies the shading node variant.
type Kind uint8

const (
	KindDiffuse Kind = iota
	KindGlossy
	KindRefractive
	KindEmissive
	KindMix
	KindTransparent
	KindPrincipled
)

func (k Kind) String() string {
	switch k {
	case KindDiffuse:
		return "Diffuse"
	case KindGlossy:
		return "Glossy"
	case KindRefractive:
		return "Refractive"
	case KindEmissive:
		return "Emissive"
	case KindMix:
		return "Mix"
	case KindTransparent:
		return "Transparent"
	case KindPrincipled:
		return "Principled"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Flags are per-node bit flags.
type Flags uint8

const (
	// FlagMultipleImportance marks an emissive node whose geometry is light-sampled.
	FlagMultipleImportance Flags = 1 << 0
	// FlagMixAdd makes a Mix node sum its children instead of blending them.
	FlagMixAdd Flags = 1 << 1
)

// Texture slots of a node. Mix nodes keep their two children in the metallic and
// specular slots, which they never sample.
const (
	BaseTexture = iota
	NormalsTexture
	RoughnessTexture
	MetallicTexture
	SpecularTexture
	AlphaTexture
	MaxTextures

	MixMat1 = MetallicTexture
	MixMat2 = SpecularTexture
)

// MaxGraphDepth bounds the Mix nesting that the solidity walk (and the shading kernels) accept.
const MaxGraphDepth = 32

// MaxIndex is the largest node index a per-triangle material record can reference.
const MaxIndex = 1<<14 - 1

var (
	ErrInvalidHandle = errors.New("material: invalid handle")
	ErrInvalidKind   = errors.New("material: invalid node kind")
	ErrGraphTooDeep  = errors.New("material: mix graph exceeds maximum depth")
)

// Node is one compiled shading node. Scalar parameters are stored as unorm16.
type Node struct {
	Kind     Kind
	Flags    Flags
	Textures [MaxTextures]uint32

	BaseColor       [3]float32
	Strength        float32
	IOR             float32
	TangentRotation float32

	Roughness             uint16
	Sheen                 uint16
	SheenTint             uint16
	Tint                  uint16
	Metallic              uint16
	Transmission          uint16
	TransmissionRoughness uint16
	Specular              uint16
	SpecularTint          uint16
	Clearcoat             uint16
	ClearcoatRoughness    uint16
	Anisotropic           uint16
	NormalMapStrength     uint16
}

// Children returns the two child handles of a Mix node.
func (n Node) Children() [2]Handle {
	return [2]Handle{Handle(n.Textures[MixMat1]), Handle(n.Textures[MixMat2])}
}

// Library compiles material descriptors into shading nodes and answers graph queries.
// A Library is not safe for concurrent use; the owning scene serializes access.
type Library interface {
	// AddNode inserts one primitive shading node.
	//
	// Parameters:
	//   - desc: the node descriptor
	//
	// Returns:
	//   - Handle: the new node
	//   - error: ErrInvalidKind for a Principled kind, ErrInvalidHandle for a Mix child that does not exist
	AddNode(desc ShadingNodeDesc) (Handle, error)

	// AddPrincipled decomposes a principled descriptor into a base node plus optional emissive
	// and transparent nodes joined by Mix nodes, and returns the root of that graph.
	//
	// Parameters:
	//   - desc: the principled descriptor
	//
	// Returns:
	//   - Handle: the graph root
	AddPrincipled(desc PrincipledDesc) Handle

	// Remove frees a node. Graphs still referencing it become dangling.
	//
	// Parameters:
	//   - h: the node to free
	Remove(h Handle)

	// Get returns the node stored at h. It panics if h is not live.
	Get(h Handle) Node

	// Exists reports whether h names a live node.
	Exists(h Handle) bool

	// IsSolid walks the Mix graph rooted at root and reports whether no Transparent node is
	// reachable from it.
	//
	// Parameters:
	//   - root: the graph root
	//
	// Returns:
	//   - bool: true if the graph is solid
	//   - error: ErrInvalidHandle for dangling references, ErrGraphTooDeep for deep or cyclic graphs
	IsSolid(root Handle) (bool, error)

	// Len returns the number of live nodes.
	Len() int

	// All iterates live nodes in slot order.
	All() iter.Seq2[Handle, Node]

	// Marshal serializes every slot (free slots zeroed) into the GPU node layout.
	Marshal() []byte
}

type library struct {
	nodes storage.Storage[Node]
}

var _ Library = &library{}

// NewLibrary creates an empty material library.
//
// Parameters:
//   - capacity: initial node capacity hint
//
// Returns:
//   - Library: the new library
func NewLibrary(capacity int) Library {
	return &library{nodes: storage.NewSparseStorage[Node](capacity)}
}

func (l *library) AddNode(d ShadingNodeDesc) (Handle, error) {
	n := Node{
		Kind:              d.Kind,
		BaseColor:         d.BaseColor,
		IOR:               d.IOR,
		Roughness:         common.PackUnorm16(d.Roughness),
		NormalMapStrength: common.PackUnorm16(d.NormalMapIntensity),
	}
	for i := range n.Textures {
		n.Textures[i] = uint32(InvalidHandle)
	}
	n.Textures[BaseTexture] = uint32(d.BaseTexture)
	n.Textures[RoughnessTexture] = uint32(d.RoughnessTexture)
	n.Textures[NormalsTexture] = uint32(d.NormalMap)

	switch d.Kind {
	case KindDiffuse:
		n.Sheen = common.PackUnorm16(0.5 * d.Sheen)
		n.SheenTint = common.PackUnorm16(d.Tint)
		n.Textures[MetallicTexture] = uint32(d.MetallicTexture)
	case KindGlossy:
		n.TangentRotation = 2 * math32.Pi * d.AnisotropicRotation
		n.Tint = common.PackUnorm16(d.Tint)
		n.Textures[MetallicTexture] = uint32(d.MetallicTexture)
	case KindRefractive, KindTransparent:
	case KindEmissive:
		n.Strength = d.Strength
		if d.MultipleImportance {
			n.Flags |= FlagMultipleImportance
		}
	case KindMix:
		for _, c := range d.MixMaterials {
			if !l.Exists(c) {
				return InvalidHandle, fmt.Errorf("mix child %d: %w", c, ErrInvalidHandle)
			}
		}
		n.Strength = d.Strength
		n.Textures[MixMat1] = uint32(d.MixMaterials[0])
		n.Textures[MixMat2] = uint32(d.MixMaterials[1])
		if d.MixAdd {
			n.Flags |= FlagMixAdd
		}
	default:
		return InvalidHandle, fmt.Errorf("%v: %w", d.Kind, ErrInvalidKind)
	}

	return Handle(l.nodes.Insert(n)), nil
}

func (l *library) AddPrincipled(d PrincipledDesc) Handle {
	base := Node{
		Kind:                  KindPrincipled,
		BaseColor:             d.BaseColor,
		IOR:                   d.IOR,
		TangentRotation:       2 * math32.Pi * common.Clamp(d.AnisotropicRotation, 0, 1),
		Sheen:                 common.PackUnorm16(0.5 * d.Sheen),
		SheenTint:             common.PackUnorm16(d.SheenTint),
		Roughness:             common.PackUnorm16(d.Roughness),
		Metallic:              common.PackUnorm16(d.Metallic),
		Transmission:          common.PackUnorm16(d.Transmission),
		TransmissionRoughness: common.PackUnorm16(d.TransmissionRoughness),
		NormalMapStrength:     common.PackUnorm16(d.NormalMapIntensity),
		Anisotropic:           common.PackUnorm16(d.Anisotropic),
		Specular:              common.PackUnorm16(d.Specular),
		SpecularTint:          common.PackUnorm16(d.SpecularTint),
		Clearcoat:             common.PackUnorm16(d.Clearcoat),
		ClearcoatRoughness:    common.PackUnorm16(d.ClearcoatRoughness),
	}
	base.Textures = [MaxTextures]uint32{
		BaseTexture:      uint32(d.BaseTexture),
		NormalsTexture:   uint32(d.NormalMap),
		RoughnessTexture: uint32(d.RoughnessTexture),
		MetallicTexture:  uint32(d.MetallicTexture),
		SpecularTexture:  uint32(d.SpecularTexture),
		AlphaTexture:     uint32(d.AlphaTexture),
	}
	root := Handle(l.nodes.Insert(base))

	emissive, transparent := InvalidHandle, InvalidHandle

	ec := d.EmissionColor
	if d.EmissionStrength > 0 && (ec[0] > 0 || ec[1] > 0 || ec[2] > 0) {
		e := NewShadingNodeDesc(KindEmissive,
			WithBaseColor(ec),
			WithBaseTexture(d.EmissionTexture),
			WithStrength(d.EmissionStrength),
			WithMultipleImportance(d.EmissionImportanceSampled),
		)
		emissive, _ = l.AddNode(e)
	}

	if d.Alpha != 1 || d.AlphaTexture != invalidTexture {
		transparent, _ = l.AddNode(NewShadingNodeDesc(KindTransparent))
	}

	// Emission is joined first so transparency ends up outermost.
	if emissive != InvalidHandle {
		mix := NewShadingNodeDesc(KindMix,
			WithStrength(0.5),
			WithIOR(0),
			WithMixChildren(root, emissive),
			WithMixAdd(true),
		)
		root, _ = l.AddNode(mix)
	}

	if transparent != InvalidHandle {
		if d.Alpha == 0 {
			root = transparent
		} else {
			mix := NewShadingNodeDesc(KindMix,
				WithStrength(common.Clamp(d.Alpha, 0, 1)),
				WithIOR(0),
				WithBaseTexture(d.AlphaTexture),
				WithMixChildren(transparent, root),
			)
			root, _ = l.AddNode(mix)
		}
	}

	return root
}

func (l *library) Remove(h Handle) {
	l.nodes.Erase(uint32(h))
}

func (l *library) Get(h Handle) Node {
	return l.nodes.Get(uint32(h))
}

func (l *library) Exists(h Handle) bool {
	return h != InvalidHandle && l.nodes.Exists(uint32(h))
}

func (l *library) IsSolid(root Handle) (bool, error) {
	type frame struct {
		h        Handle
		children [2]Handle
		next     int
		height   int
	}
	const (
		onPath uint8 = iota + 1
		done
	)

	// Each node is expanded once; finished nodes keep the height of their Mix subtree so a
	// deeper revisit is still held to the depth limit.
	state := make(map[Handle]uint8)
	heights := make(map[Handle]int)
	var stack [MaxGraphDepth]frame
	count := 0

	// visit resolves h at the given depth. It reports the finished subtree height, or pushes
	// a frame for an unvisited Mix.
	visit := func(h Handle, depth int) (height int, pushed, transparent bool, err error) {
		if !l.Exists(h) {
			return 0, false, false, fmt.Errorf("node %d: %w", h, ErrInvalidHandle)
		}
		switch state[h] {
		case onPath:
			return 0, false, false, fmt.Errorf("root %d: node %d revisited: %w", root, h, ErrGraphTooDeep)
		case done:
			if depth+heights[h] >= MaxGraphDepth {
				return 0, false, false, fmt.Errorf("root %d: %w", root, ErrGraphTooDeep)
			}
			return heights[h], false, false, nil
		}

		n := l.nodes.Get(uint32(h))
		switch n.Kind {
		case KindMix:
			if depth+1 >= MaxGraphDepth {
				return 0, false, false, fmt.Errorf("root %d: %w", root, ErrGraphTooDeep)
			}
			state[h] = onPath
			stack[count] = frame{h: h, children: n.Children()}
			count++
			return 0, true, false, nil
		case KindTransparent:
			return 0, false, true, nil
		}
		state[h] = done
		return 0, false, false, nil
	}

	if _, _, transparent, err := visit(root, 0); err != nil || transparent {
		return false, err
	}

	for count > 0 {
		top := &stack[count-1]
		if top.next == len(top.children) {
			count--
			state[top.h] = done
			heights[top.h] = top.height
			if count > 0 {
				parent := &stack[count-1]
				parent.height = max(parent.height, top.height+1)
			}
			continue
		}

		child := top.children[top.next]
		top.next++
		height, pushed, transparent, err := visit(child, count)
		if err != nil {
			return false, err
		}
		if transparent {
			return false, nil
		}
		if !pushed {
			top.height = max(top.height, height+1)
		}
	}

	return true, nil
}

func (l *library) Len() int {
	return l.nodes.Len()
}

func (l *library) All() iter.Seq2[Handle, Node] {
	return func(yield func(Handle, Node) bool) {
		for h, n := range l.nodes.All() {
			if !yield(Handle(h), n) {
				return
			}
		}
	}
}

func (l *library) Marshal() []byte {
	size := GPUMaterialSize
	buf := make([]byte, l.nodes.Capacity()*size)
	for h, n := range l.nodes.All() {
		g := NewGPUMaterial(n)
		copy(buf[int(h)*size:], g.Marshal())
	}
	return buf
}
