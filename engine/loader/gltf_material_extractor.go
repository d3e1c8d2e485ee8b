package loader

import (
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/oxy-trace/engine/model"
)

// gltfMaterialExtractorImpl is the implementation of the gltfMaterialExtractor interface.
type gltfMaterialExtractorImpl struct {
	parser gltfParser
}

// gltfMaterialExtractor defines the interface for extracting material parameters
// from a parsed glTF document into ImportedMaterial structs.
type gltfMaterialExtractor interface {
	// ExtractMaterial extracts a single material by index. Texture references are resolved to
	// image indices.
	//
	// Parameters:
	//   - materialIndex: the index of the material in the document
	//
	// Returns:
	//   - model.ImportedMaterial: the extracted material
	//   - error: error if an index is out of range
	ExtractMaterial(materialIndex int) (model.ImportedMaterial, error)

	// ExtractAllMaterials extracts all materials from the document.
	//
	// Returns:
	//   - []model.ImportedMaterial: all extracted materials
	//   - error: error if extraction fails
	ExtractAllMaterials() ([]model.ImportedMaterial, error)
}

var _ gltfMaterialExtractor = &gltfMaterialExtractorImpl{}

func newGLTFMaterialExtractor(parser gltfParser) gltfMaterialExtractor {
	return &gltfMaterialExtractorImpl{parser: parser}
}

func (e *gltfMaterialExtractorImpl) ExtractMaterial(materialIndex int) (model.ImportedMaterial, error) {
	doc := e.parser.Document()
	if doc == nil {
		return model.ImportedMaterial{}, errors.New("no document loaded")
	}
	if materialIndex < 0 || materialIndex >= len(doc.Materials) {
		return model.ImportedMaterial{}, fmt.Errorf("material index %d out of range", materialIndex)
	}

	mat := &doc.Materials[materialIndex]
	result := model.DefaultMaterial()
	result.Name = mat.Name
	if result.Name == "" {
		result.Name = fmt.Sprintf("material_%d", materialIndex)
	}

	var err error
	if pbr := mat.PbrMetallicRoughness; pbr != nil {
		if pbr.BaseColorFactor != nil {
			result.BaseColor = *pbr.BaseColorFactor
		}
		if pbr.MetallicFactor != nil {
			result.Metallic = *pbr.MetallicFactor
		}
		if pbr.RoughnessFactor != nil {
			result.Roughness = *pbr.RoughnessFactor
		}
		if result.BaseColorTexture, err = e.resolveTexture(pbr.BaseColorTexture); err != nil {
			return result, fmt.Errorf("material %q: base color texture: %w", result.Name, err)
		}
		if result.MetallicRoughnessTexture, err = e.resolveTexture(pbr.MetallicRoughnessTexture); err != nil {
			return result, fmt.Errorf("material %q: metallic-roughness texture: %w", result.Name, err)
		}
	}

	if mat.NormalTexture != nil {
		if result.NormalTexture, err = e.resolveTexture(&mat.NormalTexture.gltfTextureInfo); err != nil {
			return result, fmt.Errorf("material %q: normal texture: %w", result.Name, err)
		}
		if mat.NormalTexture.Scale != nil {
			result.NormalScale = *mat.NormalTexture.Scale
		}
	}

	if mat.EmissiveFactor != nil {
		result.Emissive = *mat.EmissiveFactor
	}
	if result.EmissiveTexture, err = e.resolveTexture(mat.EmissiveTexture); err != nil {
		return result, fmt.Errorf("material %q: emissive texture: %w", result.Name, err)
	}
	// A texture without a factor emits at the texture's color.
	if result.EmissiveTexture != model.NoIndex && mat.EmissiveFactor == nil {
		result.Emissive = [3]float32{1, 1, 1}
	}

	switch mat.AlphaMode {
	case "MASK":
		result.AlphaMode = model.AlphaMask
	case "BLEND":
		result.AlphaMode = model.AlphaBlend
	}
	if mat.AlphaCutoff != nil {
		result.AlphaCutoff = *mat.AlphaCutoff
	}
	result.DoubleSided = mat.DoubleSided

	ext := mat.Extensions
	if ext.EmissiveStrength != nil && ext.EmissiveStrength.EmissiveStrength != nil {
		result.EmissiveStrength = *ext.EmissiveStrength.EmissiveStrength
	}
	if ext.Transmission != nil && ext.Transmission.TransmissionFactor != nil {
		result.Transmission = *ext.Transmission.TransmissionFactor
	}
	if ext.IOR != nil && ext.IOR.IOR != nil {
		result.IOR = *ext.IOR.IOR
	}

	return result, nil
}

func (e *gltfMaterialExtractorImpl) ExtractAllMaterials() ([]model.ImportedMaterial, error) {
	doc := e.parser.Document()
	if doc == nil {
		return nil, errors.New("no document loaded")
	}

	materials := make([]model.ImportedMaterial, len(doc.Materials))
	for i := range doc.Materials {
		mat, err := e.ExtractMaterial(i)
		if err != nil {
			return nil, err
		}
		materials[i] = mat
	}
	return materials, nil
}

// resolveTexture maps a texture reference to the index of its image, NoIndex when absent.
func (e *gltfMaterialExtractorImpl) resolveTexture(info *gltfTextureInfo) (int, error) {
	if info == nil {
		return model.NoIndex, nil
	}
	doc := e.parser.Document()
	if info.Index < 0 || info.Index >= len(doc.Textures) {
		return model.NoIndex, fmt.Errorf("texture index %d out of range", info.Index)
	}
	src := doc.Textures[info.Index].Source
	if src == nil {
		return model.NoIndex, nil
	}
	if *src < 0 || *src >= len(doc.Images) {
		return model.NoIndex, fmt.Errorf("image index %d out of range", *src)
	}
	return *src, nil
}
