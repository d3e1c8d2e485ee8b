package material

import (
	_ "embed"
	"encoding/binary"
	"math"
	"unsafe"
)

// GPUMaterialSource is the canonical WGSL definition of the Material struct.
// Matches GPUMaterial layout exactly (80 bytes, std430 aligned).
//
//go:embed assets/material.wgsl
var GPUMaterialSource string

// GPUMaterialSize is the byte size of one serialized GPUMaterial.
const GPUMaterialSize = 80

// GPUMaterial is the GPU-aligned shading node record consumed by the path-tracing kernels.
// Pairs of unorm16 parameters share one u32, low half first.
// Size: 80 bytes.
type GPUMaterial struct {
	Textures                      [MaxTextures]uint32 // offset 0: texture handles, or mix children in slots 3 and 4 (24 bytes)
	BaseColor                     [3]float32          // offset 24: linear RGB color (12 bytes)
	KindFlags                     uint32              // offset 36: kind in bits 0-7, flags in bits 8-15
	IOR                           float32             // offset 40
	TangentRotation               float32             // offset 44
	Strength                      float32             // offset 48: emission strength or mix weight
	RoughnessSheen                uint32              // offset 52
	SheenTintTint                 uint32              // offset 56
	MetallicTransmission          uint32              // offset 60
	TransmissionRoughnessSpecular uint32              // offset 64
	SpecularTintClearcoat         uint32              // offset 68
	ClearcoatRoughnessAnisotropic uint32              // offset 72
	NormalMapStrength             uint32              // offset 76
}

// NewGPUMaterial packs a compiled node into its GPU record.
//
// Parameters:
//   - n: the node to pack
//
// Returns:
//   - GPUMaterial: the packed record
func NewGPUMaterial(n Node) GPUMaterial {
	pair := func(lo, hi uint16) uint32 { return uint32(lo) | uint32(hi)<<16 }
	return GPUMaterial{
		Textures:                      n.Textures,
		BaseColor:                     n.BaseColor,
		KindFlags:                     uint32(n.Kind) | uint32(n.Flags)<<8,
		IOR:                           n.IOR,
		TangentRotation:               n.TangentRotation,
		Strength:                      n.Strength,
		RoughnessSheen:                pair(n.Roughness, n.Sheen),
		SheenTintTint:                 pair(n.SheenTint, n.Tint),
		MetallicTransmission:          pair(n.Metallic, n.Transmission),
		TransmissionRoughnessSpecular: pair(n.TransmissionRoughness, n.Specular),
		SpecularTintClearcoat:         pair(n.SpecularTint, n.Clearcoat),
		ClearcoatRoughnessAnisotropic: pair(n.ClearcoatRoughness, n.Anisotropic),
		NormalMapStrength:             uint32(n.NormalMapStrength),
	}
}

// Size returns the size of the GPUMaterial struct in bytes.
//
// Returns:
//   - int: the size of the struct in bytes.
func (g *GPUMaterial) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUMaterial struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 80-byte buffer ready for GPU upload.
func (g *GPUMaterial) Marshal() []byte {
	buf := make([]byte, GPUMaterialSize)
	for i, t := range g.Textures {
		binary.LittleEndian.PutUint32(buf[i*4:], t)
	}
	binary.LittleEndian.PutUint32(buf[24:28], math.Float32bits(g.BaseColor[0]))
	binary.LittleEndian.PutUint32(buf[28:32], math.Float32bits(g.BaseColor[1]))
	binary.LittleEndian.PutUint32(buf[32:36], math.Float32bits(g.BaseColor[2]))
	binary.LittleEndian.PutUint32(buf[36:40], g.KindFlags)
	binary.LittleEndian.PutUint32(buf[40:44], math.Float32bits(g.IOR))
	binary.LittleEndian.PutUint32(buf[44:48], math.Float32bits(g.TangentRotation))
	binary.LittleEndian.PutUint32(buf[48:52], math.Float32bits(g.Strength))
	binary.LittleEndian.PutUint32(buf[52:56], g.RoughnessSheen)
	binary.LittleEndian.PutUint32(buf[56:60], g.SheenTintTint)
	binary.LittleEndian.PutUint32(buf[60:64], g.MetallicTransmission)
	binary.LittleEndian.PutUint32(buf[64:68], g.TransmissionRoughnessSpecular)
	binary.LittleEndian.PutUint32(buf[68:72], g.SpecularTintClearcoat)
	binary.LittleEndian.PutUint32(buf[72:76], g.ClearcoatRoughnessAnisotropic)
	binary.LittleEndian.PutUint32(buf[76:80], g.NormalMapStrength)
	return buf
}
