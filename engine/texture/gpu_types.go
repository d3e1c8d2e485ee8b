package texture

import (
	_ "embed"
	"encoding/binary"
	"unsafe"
)

// GPUAtlasTextureSource is the canonical WGSL definition of the AtlasTexture struct.
// Matches GPUAtlasTexture layout exactly (80 bytes, std430 aligned).
//
//go:embed assets/atlas_texture.wgsl
var GPUAtlasTextureSource string

// GPUAtlasTextureSize is the byte size of one serialized GPUAtlasTexture.
const GPUAtlasTextureSize = 80

// GPUAtlasTexture is the GPU-aligned atlas texture record.
// Size: 80 bytes.
type GPUAtlasTexture struct {
	Extent uint32               // offset 0: width with sRGB and reconstruct-Z bits low, height with mips bit high
	Atlas  uint32               // offset 4: page set index
	Page   [4]uint32            // offset 8: one byte per mip slot (16 bytes)
	Pos    [NumMipLevels]uint32 // offset 24: x low, y high per mip slot (56 bytes)
}

// NewGPUAtlasTexture packs an atlas record into its GPU layout.
//
// Parameters:
//   - t: the record to pack
//
// Returns:
//   - GPUAtlasTexture: the packed record
func NewGPUAtlasTexture(t AtlasTexture) GPUAtlasTexture {
	g := GPUAtlasTexture{
		Extent: uint32(t.Width) | uint32(t.Height)<<16,
		Atlas:  uint32(t.Atlas),
	}
	for i := 0; i < NumMipLevels; i++ {
		g.Page[i/4] |= uint32(t.Page[i]) << (8 * (i % 4))
		g.Pos[i] = uint32(t.Pos[i][0]) | uint32(t.Pos[i][1])<<16
	}
	return g
}

// Size returns the size of the GPUAtlasTexture struct in bytes.
//
// Returns:
//   - int: the size of the struct in bytes.
func (g *GPUAtlasTexture) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUAtlasTexture struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 80-byte buffer ready for GPU upload.
func (g *GPUAtlasTexture) Marshal() []byte {
	buf := make([]byte, GPUAtlasTextureSize)
	binary.LittleEndian.PutUint32(buf[0:4], g.Extent)
	binary.LittleEndian.PutUint32(buf[4:8], g.Atlas)
	for i, p := range g.Page {
		binary.LittleEndian.PutUint32(buf[8+i*4:], p)
	}
	for i, p := range g.Pos {
		binary.LittleEndian.PutUint32(buf[24+i*4:], p)
	}
	return buf
}

// MarshalAtlasTextures serializes records back to back.
func MarshalAtlasTextures(ts []AtlasTexture) []byte {
	buf := make([]byte, 0, len(ts)*GPUAtlasTextureSize)
	for _, t := range ts {
		g := NewGPUAtlasTexture(t)
		buf = append(buf, g.Marshal()...)
	}
	return buf
}
