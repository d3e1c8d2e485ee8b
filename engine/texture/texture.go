// Package texture ingests 8-bit textures into atlas pages or standalone bindless images.
package texture

import (
	"errors"
	"fmt"
)

// Handle identifies a texture. Bindless handles carry flag bits above TexIndexBits.
type Handle uint32

// InvalidHandle marks an absent texture reference or a failed ingestion.
const InvalidHandle Handle = 0xFFFFFFFF

// Bindless handle flags.
const (
	TexSRGBBit         uint32 = 1 << 24
	TexReconstructZBit uint32 = 1 << 25
	TexYCoCgBit        uint32 = 1 << 26
	TexIndexBits       uint32 = 1<<24 - 1
)

// Index strips the flag bits of a bindless handle.
func (h Handle) Index() uint32 {
	return uint32(h) & TexIndexBits
}

// Flags returns the flag bits of a bindless handle.
func (h Handle) Flags() uint32 {
	return uint32(h) &^ TexIndexBits
}

const (
	// NumMipLevels is the number of mip slots of an atlas texture.
	NumMipLevels = 14
	// MinAtlasTextureSize is the smallest mip dimension generated for atlas textures.
	MinAtlasTextureSize = 4
	// MinBindlessMipSize is the smallest mip dimension generated for bindless images.
	MinBindlessMipSize = 4
	// TextureDataPitchAlignment is the row pitch of bindless staging data.
	TextureDataPitchAlignment = 256
	// TextureMipOffsetAlignment is the alignment of every mip level inside bindless staging data.
	TextureMipOffsetAlignment = 4096
)

var (
	ErrInvalidFormat = errors.New("texture: invalid format")
	ErrInvalidSize   = errors.New("texture: invalid size")
	ErrShortData     = errors.New("texture: data shorter than width*height*channels")
	ErrAtlasFull     = errors.New("texture: atlas has no room left")
)

// Format is the texel layout of source data. All formats are 8 bits per channel.
type Format uint8

const (
	FormatUndefined Format = iota
	FormatRGBA8
	FormatRGB8
	FormatRG8
	FormatR8
)

func (f Format) String() string {
	switch f {
	case FormatRGBA8:
		return "RGBA8"
	case FormatRGB8:
		return "RGB8"
	case FormatRG8:
		return "RG8"
	case FormatR8:
		return "R8"
	default:
		return fmt.Sprintf("Format(%d)", uint8(f))
	}
}

// Channels returns the bytes per texel, or zero for an invalid format.
func (f Format) Channels() int {
	switch f {
	case FormatRGBA8:
		return 4
	case FormatRGB8:
		return 3
	case FormatRG8:
		return 2
	case FormatR8:
		return 1
	default:
		return 0
	}
}

// Desc describes one texture to ingest. Data holds Width*Height tightly packed texels.
type Desc struct {
	Name               string
	Format             Format
	Width              int
	Height             int
	Data               []byte
	SRGB               bool
	NormalMap          bool
	GenerateMipmaps    bool
	ForceNoCompression bool
}

// Validate checks the descriptor for a usable format, size and data length. Normal maps need at
// least the X and Y channels.
//
// Parameters:
//   - maxSize: the largest allowed dimension, zero for no limit
//
// Returns:
//   - error: ErrInvalidFormat, ErrInvalidSize or ErrShortData
func (d Desc) Validate(maxSize int) error {
	ch := d.Format.Channels()
	if ch == 0 {
		return fmt.Errorf("%q: %v: %w", d.Name, d.Format, ErrInvalidFormat)
	}
	if d.NormalMap && ch < 2 {
		return fmt.Errorf("%q: %v normal map: %w", d.Name, d.Format, ErrInvalidFormat)
	}
	if d.Width <= 0 || d.Height <= 0 || (maxSize > 0 && (d.Width > maxSize || d.Height > maxSize)) {
		return fmt.Errorf("%q: %dx%d: %w", d.Name, d.Width, d.Height, ErrInvalidSize)
	}
	if len(d.Data) < d.Width*d.Height*ch {
		return fmt.Errorf("%q: %d bytes: %w", d.Name, len(d.Data), ErrShortData)
	}
	return nil
}

// Atlas texture record flags, stored in the top bits of the width and height.
const (
	AtlasTexSRGBBit         uint16 = 0x8000
	AtlasTexReconstructZBit uint16 = 0x4000
	AtlasTexWidthBits       uint16 = 0x3FFF
	AtlasTexMipsBit         uint16 = 0x8000
	AtlasTexHeightBits      uint16 = 0x7FFF
)

// AtlasTexture locates every mip level of an atlas-resident texture.
type AtlasTexture struct {
	Width  uint16
	Height uint16
	Atlas  uint8
	Page   [NumMipLevels]uint8
	Pos    [NumMipLevels][2]uint16
}

// Size returns the texture dimensions without flag bits.
func (t AtlasTexture) Size() (int, int) {
	return int(t.Width & AtlasTexWidthBits), int(t.Height & AtlasTexHeightBits)
}

// HasMips reports whether the texture is sampled with mips.
func (t AtlasTexture) HasMips() bool {
	return t.Height&AtlasTexMipsBit != 0
}

// ReconstructZ reports whether the shader must rebuild the normal's Z from X and Y.
func (t AtlasTexture) ReconstructZ() bool {
	return t.Width&AtlasTexReconstructZBit != 0
}

// SRGB reports whether the texels are sRGB encoded.
func (t AtlasTexture) SRGB() bool {
	return t.Width&AtlasTexSRGBBit != 0
}
