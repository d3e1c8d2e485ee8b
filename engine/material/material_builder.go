package material

import "github.com/Carmen-Shannon/oxy-trace/engine/texture"

const invalidTexture = texture.InvalidHandle

// ShadingNodeDesc describes one primitive shading node.
type ShadingNodeDesc struct {
	Kind                Kind
	BaseColor           [3]float32
	BaseTexture         texture.Handle
	Roughness           float32
	RoughnessTexture    texture.Handle
	AnisotropicRotation float32
	Sheen               float32
	Tint                float32
	MetallicTexture     texture.Handle
	IOR                 float32
	Strength            float32
	MultipleImportance  bool
	MixAdd              bool
	MixMaterials        [2]Handle
	NormalMap           texture.Handle
	NormalMapIntensity  float32
}

// PrincipledDesc describes a principled (Disney-style) surface. It is never stored as is;
// Library.AddPrincipled decomposes it into a small node graph.
type PrincipledDesc struct {
	BaseColor             [3]float32
	BaseTexture           texture.Handle
	Metallic              float32
	MetallicTexture       texture.Handle
	Specular              float32
	SpecularTexture       texture.Handle
	SpecularTint          float32
	Roughness             float32
	RoughnessTexture      texture.Handle
	Anisotropic           float32
	AnisotropicRotation   float32
	Sheen                 float32
	SheenTint             float32
	Clearcoat             float32
	ClearcoatRoughness    float32
	IOR                   float32
	Transmission          float32
	TransmissionRoughness float32

	EmissionColor             [3]float32
	EmissionTexture           texture.Handle
	EmissionStrength          float32
	EmissionImportanceSampled bool

	Alpha        float32
	AlphaTexture texture.Handle

	NormalMap          texture.Handle
	NormalMapIntensity float32
}

// NodeOption configures a ShadingNodeDesc during construction.
type NodeOption func(*ShadingNodeDesc)

// PrincipledOption configures a PrincipledDesc during construction.
type PrincipledOption func(*PrincipledDesc)

// NewShadingNodeDesc creates a node descriptor of the given kind with default parameters
// (white, IOR 1, strength 1, no textures) and applies the provided options.
//
// Parameters:
//   - kind: the node kind
//   - opts: options applied in order
//
// Returns:
//   - ShadingNodeDesc: the descriptor
func NewShadingNodeDesc(kind Kind, opts ...NodeOption) ShadingNodeDesc {
	d := ShadingNodeDesc{
		Kind:               kind,
		BaseColor:          [3]float32{1, 1, 1},
		BaseTexture:        invalidTexture,
		RoughnessTexture:   invalidTexture,
		MetallicTexture:    invalidTexture,
		IOR:                1,
		Strength:           1,
		MixMaterials:       [2]Handle{InvalidHandle, InvalidHandle},
		NormalMap:          invalidTexture,
		NormalMapIntensity: 1,
	}
	for _, opt := range opts {
		opt(&d)
	}
	return d
}

// NewPrincipledDesc creates a principled descriptor with the usual defaults (white base,
// roughness 0.5, specular 0.5, IOR 1.45, opaque, no emission) and applies the options.
//
// Parameters:
//   - opts: options applied in order
//
// Returns:
//   - PrincipledDesc: the descriptor
func NewPrincipledDesc(opts ...PrincipledOption) PrincipledDesc {
	d := PrincipledDesc{
		BaseColor:          [3]float32{1, 1, 1},
		BaseTexture:        invalidTexture,
		MetallicTexture:    invalidTexture,
		Specular:           0.5,
		SpecularTexture:    invalidTexture,
		Roughness:          0.5,
		RoughnessTexture:   invalidTexture,
		SheenTint:          0.5,
		IOR:                1.45,
		EmissionTexture:    invalidTexture,
		Alpha:              1,
		AlphaTexture:       invalidTexture,
		NormalMap:          invalidTexture,
		NormalMapIntensity: 1,
	}
	for _, opt := range opts {
		opt(&d)
	}
	return d
}

// WithBaseColor is an option builder that sets the node color.
//
// Parameters:
//   - c: linear RGB color
//
// Returns:
//   - NodeOption: a function that applies the color
func WithBaseColor(c [3]float32) NodeOption {
	return func(d *ShadingNodeDesc) {
		d.BaseColor = c
	}
}

// WithBaseTexture is an option builder that sets the base texture. On Mix nodes the base
// texture modulates the mix weight.
//
// Parameters:
//   - t: the texture handle
//
// Returns:
//   - NodeOption: a function that applies the texture
func WithBaseTexture(t texture.Handle) NodeOption {
	return func(d *ShadingNodeDesc) {
		d.BaseTexture = t
	}
}

// WithRoughness is an option builder that sets roughness and an optional roughness texture.
//
// Parameters:
//   - r: roughness in [0,1]
//   - t: roughness texture, or texture.InvalidHandle
//
// Returns:
//   - NodeOption: a function that applies the roughness
func WithRoughness(r float32, t texture.Handle) NodeOption {
	return func(d *ShadingNodeDesc) {
		d.Roughness = r
		d.RoughnessTexture = t
	}
}

// WithSheen is an option builder that sets the sheen amount and its tint (diffuse nodes).
//
// Parameters:
//   - sheen: sheen amount in [0,1]
//   - tint: sheen tint in [0,1]
//
// Returns:
//   - NodeOption: a function that applies the sheen
func WithSheen(sheen, tint float32) NodeOption {
	return func(d *ShadingNodeDesc) {
		d.Sheen = sheen
		d.Tint = tint
	}
}

// WithTint is an option builder that sets the specular tint (glossy nodes).
func WithTint(tint float32) NodeOption {
	return func(d *ShadingNodeDesc) {
		d.Tint = tint
	}
}

// WithAnisotropicRotation is an option builder that sets the tangent rotation as a fraction of a full turn.
func WithAnisotropicRotation(r float32) NodeOption {
	return func(d *ShadingNodeDesc) {
		d.AnisotropicRotation = r
	}
}

// WithMetallicTexture is an option builder that sets the metallic texture.
func WithMetallicTexture(t texture.Handle) NodeOption {
	return func(d *ShadingNodeDesc) {
		d.MetallicTexture = t
	}
}

// WithIOR is an option builder that sets the index of refraction.
func WithIOR(ior float32) NodeOption {
	return func(d *ShadingNodeDesc) {
		d.IOR = ior
	}
}

// WithStrength is an option builder that sets the emission strength, or the weight of a Mix node.
//
// Parameters:
//   - s: the strength
//
// Returns:
//   - NodeOption: a function that applies the strength
func WithStrength(s float32) NodeOption {
	return func(d *ShadingNodeDesc) {
		d.Strength = s
	}
}

// WithMultipleImportance is an option builder that marks an emissive node for light sampling.
// Instances of meshes using it register one triangle light per emissive triangle.
//
// Parameters:
//   - on: whether the node is light-sampled
//
// Returns:
//   - NodeOption: a function that applies the flag
func WithMultipleImportance(on bool) NodeOption {
	return func(d *ShadingNodeDesc) {
		d.MultipleImportance = on
	}
}

// WithMixChildren is an option builder that sets the two children of a Mix node.
//
// Parameters:
//   - a: the first child, weighted by 1-strength
//   - b: the second child, weighted by strength
//
// Returns:
//   - NodeOption: a function that applies the children
func WithMixChildren(a, b Handle) NodeOption {
	return func(d *ShadingNodeDesc) {
		d.MixMaterials = [2]Handle{a, b}
	}
}

// WithMixAdd is an option builder that makes a Mix node add its children.
func WithMixAdd(on bool) NodeOption {
	return func(d *ShadingNodeDesc) {
		d.MixAdd = on
	}
}

// WithNormalMap is an option builder that sets the normal map and its intensity.
//
// Parameters:
//   - t: the normal map texture
//   - intensity: blend factor in [0,1]
//
// Returns:
//   - NodeOption: a function that applies the normal map
func WithNormalMap(t texture.Handle, intensity float32) NodeOption {
	return func(d *ShadingNodeDesc) {
		d.NormalMap = t
		d.NormalMapIntensity = intensity
	}
}

// WithPrincipledBase is an option builder that sets the base color and texture of a principled surface.
//
// Parameters:
//   - c: linear RGB base color
//   - t: base color texture, or texture.InvalidHandle
//
// Returns:
//   - PrincipledOption: a function that applies the base color
func WithPrincipledBase(c [3]float32, t texture.Handle) PrincipledOption {
	return func(d *PrincipledDesc) {
		d.BaseColor = c
		d.BaseTexture = t
	}
}

// WithPrincipledMetallicRoughness is an option builder that sets metallic and roughness factors.
//
// Parameters:
//   - metallic: metallic factor in [0,1]
//   - roughness: roughness factor in [0,1]
//
// Returns:
//   - PrincipledOption: a function that applies both factors
func WithPrincipledMetallicRoughness(metallic, roughness float32) PrincipledOption {
	return func(d *PrincipledDesc) {
		d.Metallic = metallic
		d.Roughness = roughness
	}
}

// WithPrincipledEmission is an option builder that makes a principled surface emissive.
//
// Parameters:
//   - c: emission color
//   - strength: emission strength, zero disables emission
//   - importanceSampled: whether the emitter is light-sampled
//
// Returns:
//   - PrincipledOption: a function that applies the emission
func WithPrincipledEmission(c [3]float32, strength float32, importanceSampled bool) PrincipledOption {
	return func(d *PrincipledDesc) {
		d.EmissionColor = c
		d.EmissionStrength = strength
		d.EmissionImportanceSampled = importanceSampled
	}
}

// WithPrincipledAlpha is an option builder that sets coverage. Any alpha other than one, or an
// alpha texture, adds a transparent branch to the compiled graph.
//
// Parameters:
//   - alpha: coverage in [0,1]
//   - t: alpha texture, or texture.InvalidHandle
//
// Returns:
//   - PrincipledOption: a function that applies the coverage
func WithPrincipledAlpha(alpha float32, t texture.Handle) PrincipledOption {
	return func(d *PrincipledDesc) {
		d.Alpha = alpha
		d.AlphaTexture = t
	}
}

// WithPrincipledTransmission is an option builder that sets transmission and its roughness.
func WithPrincipledTransmission(transmission, roughness float32) PrincipledOption {
	return func(d *PrincipledDesc) {
		d.Transmission = transmission
		d.TransmissionRoughness = roughness
	}
}

// WithPrincipledClearcoat is an option builder that sets the clearcoat layer.
func WithPrincipledClearcoat(clearcoat, roughness float32) PrincipledOption {
	return func(d *PrincipledDesc) {
		d.Clearcoat = clearcoat
		d.ClearcoatRoughness = roughness
	}
}

// WithPrincipledNormalMap is an option builder that sets the normal map and its intensity.
func WithPrincipledNormalMap(t texture.Handle, intensity float32) PrincipledOption {
	return func(d *PrincipledDesc) {
		d.NormalMap = t
		d.NormalMapIntensity = intensity
	}
}
