// Package gpu is the narrow device interface the scene compiler uploads images through.
package gpu

import (
	"errors"
	"fmt"
)

var (
	ErrUnsupportedFormat = errors.New("gpu: unsupported image format")
	ErrInvalidRegion     = errors.New("gpu: upload region out of bounds")
	ErrImageReleased     = errors.New("gpu: image has been released")
	ErrReadbackFailed    = errors.New("gpu: readback failed")
)

// Format is the storage format of a device image.
type Format uint8

const (
	FormatUndefined Format = iota
	FormatRGBA8
	FormatRGB8
	FormatRG8
	FormatR8
	FormatBC3
	FormatBC4
	FormatBC5
	FormatRGBA32F
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
	case FormatBC3:
		return "BC3"
	case FormatBC4:
		return "BC4"
	case FormatBC5:
		return "BC5"
	case FormatRGBA32F:
		return "RGBA32F"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(f))
	}
}

// Compressed reports whether the format stores 4x4 texel blocks.
func (f Format) Compressed() bool {
	return f == FormatBC3 || f == FormatBC4 || f == FormatBC5
}

// BlockBytes returns the bytes per texel, or per 4x4 block for compressed formats.
func (f Format) BlockBytes() int {
	switch f {
	case FormatRGBA8:
		return 4
	case FormatRGB8:
		return 3
	case FormatRG8:
		return 2
	case FormatR8:
		return 1
	case FormatBC4:
		return 8
	case FormatBC3, FormatBC5, FormatRGBA32F:
		return 16
	default:
		return 0
	}
}

// RowBytes returns the tightly packed byte length of one row of texels, or of blocks for
// compressed formats.
//
// Parameters:
//   - w: the row width in texels
//
// Returns:
//   - int: the row length in bytes
func (f Format) RowBytes(w int) int {
	if f.Compressed() {
		return (w + 3) / 4 * f.BlockBytes()
	}
	return w * f.BlockBytes()
}

// Rows returns the number of texel rows, or block rows for compressed formats.
func (f Format) Rows(h int) int {
	if f.Compressed() {
		return (h + 3) / 4
	}
	return h
}

// MipExtent returns the size of mip level mip of a w x h image.
func MipExtent(w, h, mip int) (int, int) {
	return max(w>>mip, 1), max(h>>mip, 1)
}

// Caps describes optional device capabilities.
type Caps struct {
	// BlitSupported means the device can build mip chains itself, so CPU mips can be deferred.
	BlitSupported bool
	// RGB8Supported means three-channel 8-bit images are native.
	RGB8Supported bool
	// TextureCompression means BC3, BC4 and BC5 images can be created.
	TextureCompression bool
	// MaxImageSize is the largest image dimension.
	MaxImageSize int
}

// ImageDesc describes a device image.
type ImageDesc struct {
	Label    string
	Width    int
	Height   int
	Layers   int
	MipCount int
	Format   Format
	SRGB     bool
}

// Region locates one mip level of one layer inside a staging buffer.
type Region struct {
	Mip         int
	Layer       int
	Offset      int
	BytesPerRow int
}

// Image is a device-resident image.
type Image interface {
	// Desc returns the descriptor the image was created with.
	Desc() ImageDesc
}

// Device is the external GPU collaborator. Every call is blocking.
type Device interface {
	// Caps returns the capabilities of the device.
	Caps() Caps

	// CreateImage allocates an image.
	//
	// Parameters:
	//   - desc: the image descriptor
	//
	// Returns:
	//   - Image: the new image
	//   - error: ErrUnsupportedFormat if the device cannot store desc.Format
	CreateImage(desc ImageDesc) (Image, error)

	// Upload copies mip levels from a staging buffer into img in one blocking submission.
	//
	// Parameters:
	//   - img: the destination image
	//   - stage: the staging bytes
	//   - regions: one entry per written mip level and layer
	//
	// Returns:
	//   - error: ErrInvalidRegion if a region lies outside stage or img
	Upload(img Image, stage []byte, regions []Region) error

	// Readback copies one mip level of one layer back to host memory with tightly packed rows.
	//
	// Parameters:
	//   - img: the source image
	//   - mip: the mip level
	//   - layer: the array layer
	//
	// Returns:
	//   - []byte: the texel data
	//   - error: any device error
	Readback(img Image, mip, layer int) ([]byte, error)

	// Release frees img. Releasing twice is a no-op.
	Release(img Image)
}

// CheckRegion validates a region against an image descriptor and a staging buffer.
//
// Parameters:
//   - d: the destination image descriptor
//   - stageLen: the staging buffer length
//   - r: the region
//
// Returns:
//   - int: the byte length of the region inside the stage
//   - error: ErrInvalidRegion if the region does not fit
func CheckRegion(d ImageDesc, stageLen int, r Region) (int, error) {
	if r.Mip < 0 || r.Mip >= max(d.MipCount, 1) || r.Layer < 0 || r.Layer >= max(d.Layers, 1) {
		return 0, fmt.Errorf("mip %d layer %d: %w", r.Mip, r.Layer, ErrInvalidRegion)
	}
	w, h := MipExtent(d.Width, d.Height, r.Mip)
	row := d.Format.RowBytes(w)
	if r.BytesPerRow < row {
		return 0, fmt.Errorf("row pitch %d < %d: %w", r.BytesPerRow, row, ErrInvalidRegion)
	}
	size := r.BytesPerRow*(d.Format.Rows(h)-1) + row
	if r.Offset < 0 || r.Offset+size > stageLen {
		return 0, fmt.Errorf("offset %d size %d stage %d: %w", r.Offset, size, stageLen, ErrInvalidRegion)
	}
	return size, nil
}
