package loader

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-trace/common"
	"github.com/Carmen-Shannon/oxy-trace/engine/material"
	"github.com/Carmen-Shannon/oxy-trace/engine/model"
	"github.com/Carmen-Shannon/oxy-trace/engine/scene"
	"github.com/Carmen-Shannon/oxy-trace/engine/texture"
)

// Import lists the scene objects created for one model.
type Import struct {
	// Textures are every texture added, in creation order. Rejected textures are not listed.
	Textures []texture.Handle

	// Materials holds the root of each model material by index. When a primitive has no
	// material, a default white material is appended last.
	Materials []material.Handle

	// Meshes holds the scene mesh of each model mesh by index, scene.InvalidMeshHandle for
	// meshes without triangles.
	Meshes []scene.MeshHandle

	// Instances are the instances of the model's nodes, in node order.
	Instances []scene.InstanceHandle
}

// textureRole is the way an image is used by a material. One image can back several roles.
type textureRole uint8

const (
	roleBaseColor textureRole = iota
	roleAlpha
	roleAlphaMask
	roleMetallic
	roleRoughness
	roleNormal
	roleEmission
)

func (r textureRole) String() string {
	return [...]string{"base", "alpha", "mask", "metallic", "roughness", "normal", "emission"}[r]
}

type textureKey struct {
	image  int
	role   textureRole
	cutoff float32
}

// instantiation holds the per-call state of Instantiate.
type instantiation struct {
	sc       scene.Scene
	images   []model.ImportedImage
	textures map[textureKey]texture.Handle
	out      *Import
}

func (l *loader) Instantiate(sc scene.Scene, m model.Model) (*Import, error) {
	inst := &instantiation{
		sc:       sc,
		images:   m.Images(),
		textures: make(map[textureKey]texture.Handle),
		out:      &Import{},
	}

	for i, mat := range m.Materials() {
		h, err := inst.material(mat)
		if err != nil {
			return inst.out, fmt.Errorf("loader: material %d %q: %w", i, mat.Name, err)
		}
		inst.out.Materials = append(inst.out.Materials, h)
	}
	defaultMaterial := material.InvalidHandle

	for i, mesh := range m.Meshes() {
		if len(mesh.Primitives) == 0 {
			inst.out.Meshes = append(inst.out.Meshes, scene.InvalidMeshHandle)
			continue
		}

		opts := make([]scene.MeshOption, 0, len(mesh.Primitives))
		for _, prim := range mesh.Primitives {
			var h material.Handle
			if prim.Material == model.NoIndex {
				if defaultMaterial == material.InvalidHandle {
					defaultMaterial = sc.AddPrincipledMaterial(inst.principled(model.DefaultMaterial()))
					inst.out.Materials = append(inst.out.Materials, defaultMaterial)
				}
				h = defaultMaterial
			} else {
				h = inst.out.Materials[prim.Material]
			}
			opts = append(opts, scene.WithShape(h, h, prim.First, prim.Count))
		}

		mh, err := sc.AddMesh(scene.NewMeshDesc(scene.LayoutPxyzNxyzTuv, mesh.Attributes, mesh.Indices, opts...))
		if err != nil {
			return inst.out, fmt.Errorf("loader: mesh %d %q: %w", i, mesh.Name, err)
		}
		inst.out.Meshes = append(inst.out.Meshes, mh)
	}

	for _, node := range m.Nodes() {
		if node.Mesh < 0 || node.Mesh >= len(inst.out.Meshes) {
			return inst.out, fmt.Errorf("loader: node %q: mesh index %d out of range", node.Name, node.Mesh)
		}
		mh := inst.out.Meshes[node.Mesh]
		if mh == scene.InvalidMeshHandle {
			continue
		}
		ih, err := sc.AddMeshInstance(mh, node.World)
		if err != nil {
			return inst.out, fmt.Errorf("loader: node %q: %w", node.Name, err)
		}
		inst.out.Instances = append(inst.out.Instances, ih)
	}

	l.logger.Info("loader: model instantiated",
		"model", m.Name(),
		"textures", len(inst.out.Textures),
		"materials", len(inst.out.Materials),
		"meshes", len(inst.out.Meshes),
		"instances", len(inst.out.Instances))
	return inst.out, nil
}

// material adds mat to the scene. A black, opaque material that only emits becomes a plain
// emissive node so its triangles are light-sampled.
func (inst *instantiation) material(mat model.ImportedMaterial) (material.Handle, error) {
	black := mat.BaseColor[0] == 0 && mat.BaseColor[1] == 0 && mat.BaseColor[2] == 0
	emits := mat.EmissiveStrength > 0 && (mat.Emissive[0] > 0 || mat.Emissive[1] > 0 || mat.Emissive[2] > 0)
	if !black || !emits || mat.BaseColorTexture != model.NoIndex || mat.AlphaMode != model.AlphaOpaque {
		return inst.sc.AddPrincipledMaterial(inst.principled(mat)), nil
	}
	return inst.sc.AddMaterial(material.NewShadingNodeDesc(material.KindEmissive,
		material.WithBaseColor(mat.Emissive),
		material.WithBaseTexture(inst.texture(mat.EmissiveTexture, roleEmission, 0)),
		material.WithStrength(mat.EmissiveStrength),
		material.WithMultipleImportance(true),
	))
}

// principled maps a metallic-roughness material onto a principled surface.
func (inst *instantiation) principled(mat model.ImportedMaterial) material.PrincipledDesc {
	base := [3]float32{mat.BaseColor[0], mat.BaseColor[1], mat.BaseColor[2]}
	d := material.NewPrincipledDesc(
		material.WithPrincipledBase(base, inst.texture(mat.BaseColorTexture, roleBaseColor, 0)),
		material.WithPrincipledMetallicRoughness(mat.Metallic, mat.Roughness),
		material.WithPrincipledTransmission(mat.Transmission, mat.Roughness),
	)
	d.IOR = mat.IOR

	if mat.MetallicRoughnessTexture != model.NoIndex {
		d.MetallicTexture = inst.texture(mat.MetallicRoughnessTexture, roleMetallic, 0)
		d.RoughnessTexture = inst.texture(mat.MetallicRoughnessTexture, roleRoughness, 0)
	}

	if mat.NormalTexture != model.NoIndex {
		material.WithPrincipledNormalMap(
			inst.texture(mat.NormalTexture, roleNormal, 0),
			common.Clamp(mat.NormalScale, 0, 1),
		)(&d)
	}

	if mat.EmissiveStrength > 0 {
		material.WithPrincipledEmission(mat.Emissive, mat.EmissiveStrength, true)(&d)
		d.EmissionTexture = inst.texture(mat.EmissiveTexture, roleEmission, 0)
	}

	switch mat.AlphaMode {
	case model.AlphaBlend:
		d.Alpha = common.Clamp(mat.BaseColor[3], 0, 1)
		if inst.hasAlpha(mat.BaseColorTexture) {
			d.AlphaTexture = inst.texture(mat.BaseColorTexture, roleAlpha, 0)
		}
	case model.AlphaMask:
		switch {
		case inst.hasAlpha(mat.BaseColorTexture):
			d.AlphaTexture = inst.texture(mat.BaseColorTexture, roleAlphaMask, mat.AlphaCutoff/max(mat.BaseColor[3], 1e-6))
		case mat.BaseColor[3] < mat.AlphaCutoff:
			d.Alpha = 0
		}
	}
	return d
}

// hasAlpha reports whether an image has any texel that is not fully opaque.
func (inst *instantiation) hasAlpha(image int) bool {
	if image == model.NoIndex || inst.images[image].Width == 0 {
		return false
	}
	pix := inst.images[image].Pixels
	for i := 3; i < len(pix); i += 4 {
		if pix[i] != 0xFF {
			return true
		}
	}
	return false
}

// texture adds the texture for an image used in a role once, returning InvalidHandle when
// the image is absent or the scene rejects it.
func (inst *instantiation) texture(image int, role textureRole, cutoff float32) texture.Handle {
	if image == model.NoIndex || inst.images[image].Width == 0 {
		return texture.InvalidHandle
	}
	key := textureKey{image: image, role: role, cutoff: cutoff}
	if h, ok := inst.textures[key]; ok {
		return h
	}

	img := inst.images[image]
	name := fmt.Sprintf("%s/%s", img.Name, role)
	var desc texture.Desc
	switch role {
	case roleBaseColor, roleEmission:
		if inst.hasAlpha(image) && role == roleBaseColor {
			desc = texture.NewDesc(texture.FormatRGBA8, img.Width, img.Height, img.Pixels)
		} else {
			desc = texture.NewDesc(texture.FormatRGB8, img.Width, img.Height, dropAlpha(img.Pixels))
		}
		desc.SRGB = true
	case roleAlpha:
		desc = texture.NewDesc(texture.FormatR8, img.Width, img.Height, channel(img.Pixels, 3))
	case roleAlphaMask:
		mask := channel(img.Pixels, 3)
		threshold := cutoff * 255
		for i, a := range mask {
			mask[i] = 0
			if float32(a) >= threshold {
				mask[i] = 0xFF
			}
		}
		desc = texture.NewDesc(texture.FormatR8, img.Width, img.Height, mask, texture.WithoutCompression())
	case roleRoughness:
		desc = texture.NewDesc(texture.FormatR8, img.Width, img.Height, channel(img.Pixels, 1))
	case roleMetallic:
		desc = texture.NewDesc(texture.FormatR8, img.Width, img.Height, channel(img.Pixels, 2))
	case roleNormal:
		desc = texture.NewDesc(texture.FormatRGB8, img.Width, img.Height, dropAlpha(img.Pixels), texture.WithNormalMap(true))
	}
	desc.Name = name
	desc.GenerateMipmaps = true

	h := inst.sc.AddTexture(desc)
	inst.textures[key] = h
	if h != texture.InvalidHandle {
		inst.out.Textures = append(inst.out.Textures, h)
	}
	return h
}

// channel extracts one channel of RGBA texels.
func channel(pix []byte, c int) []byte {
	out := make([]byte, len(pix)/4)
	for i := range out {
		out[i] = pix[i*4+c]
	}
	return out
}

// dropAlpha converts RGBA texels to RGB.
func dropAlpha(pix []byte) []byte {
	out := make([]byte, len(pix)/4*3)
	for i := 0; i < len(pix)/4; i++ {
		copy(out[i*3:i*3+3], pix[i*4:i*4+3])
	}
	return out
}
