package texture

import (
	"github.com/Carmen-Shannon/oxy-trace/common"
	"github.com/Carmen-Shannon/oxy-trace/engine/compute_pool"
	"github.com/Carmen-Shannon/oxy-trace/engine/gpu"
)

// Staged is a standalone image ready for upload: its description, staging bytes with one
// region per mip, and the flag bits to merge into the texture handle.
type Staged struct {
	Image   gpu.ImageDesc
	Stage   []byte
	Regions []gpu.Region
	Flags   uint32
}

// CanBeBlockCompressed reports whether every mip of a w x h image spans whole 4x4 blocks.
func CanBeBlockCompressed(w, h, mipCount int) bool {
	for i := 0; i < mipCount; i++ {
		mw, mh := gpu.MipExtent(w, h, i)
		if mw%4 != 0 || mh%4 != 0 {
			return false
		}
	}
	return true
}

// hasSRGBFormat reports whether the device can decode sRGB texels of f in hardware.
func hasSRGBFormat(f gpu.Format) bool {
	return f == gpu.FormatRGBA8 || f == gpu.FormatBC3
}

// StageBindless converts a texture into a standalone image. Three channel data becomes BC3 in
// the CoCg_Y layout when compressing, RGB8 when the device stores it, and RGBA8 otherwise.
// One and two channel data and normal maps become BC4 and BC5, or R8 and RG8.
//
// Parameters:
//   - desc: the texture to stage
//   - caps: the target device capabilities
//   - compress: whether the scene compresses textures
//   - pool: runs block compression in parallel, nil for serial
//
// Returns:
//   - Staged: the image, staging data and handle flags
//   - error: a validation error
func StageBindless(desc Desc, caps gpu.Caps, compress bool, pool compute_pool.ComputePool) (Staged, error) {
	if err := desc.Validate(caps.MaxImageSize); err != nil {
		return Staged{}, err
	}

	w, h := desc.Width, desc.Height
	ch := desc.Format.Channels()
	data := desc.Data[:w*h*ch]

	mipCount := 1
	if desc.GenerateMipmaps {
		mipCount = MipCount(w, h, MinBindlessMipSize)
	}
	compress = compress && caps.TextureCompression && !desc.ForceNoCompression &&
		CanBeBlockCompressed(w, h, mipCount)

	var flags uint32
	if desc.NormalMap {
		var reconstruct bool
		data, reconstruct = RepackNormalMap(data, w, h, ch)
		ch = 2
		if reconstruct {
			flags |= TexReconstructZBit
		}
	}

	var format gpu.Format
	ycocg := false
	switch ch {
	case 4:
		format = gpu.FormatRGBA8
	case 3:
		switch {
		case compress:
			format = gpu.FormatBC3
			ycocg = true
		case caps.RGB8Supported:
			format = gpu.FormatRGB8
		default:
			format = gpu.FormatRGBA8
			data = ExpandChannels(data, w, h, 3, 4, 255)
			ch = 4
		}
	case 2:
		format = gpu.FormatRG8
		if compress {
			format = gpu.FormatBC5
		}
	case 1:
		format = gpu.FormatR8
		if compress {
			format = gpu.FormatBC4
		}
	}
	if ycocg {
		flags |= TexYCoCgBit
	}

	manualSRGB := desc.SRGB && (ycocg || !hasSRGBFormat(format))
	if manualSRGB {
		flags |= TexSRGBBit
	}

	levels := BuildMipChain(data, w, h, ch, mipCount)
	regions := make([]gpu.Region, len(levels))
	total := 0
	for i, l := range levels {
		pitch := common.RoundUp(format.RowBytes(l.Width), TextureDataPitchAlignment)
		regions[i] = gpu.Region{Mip: i, Offset: total, BytesPerRow: pitch}
		total += common.RoundUp(pitch*format.Rows(l.Height), TextureMipOffsetAlignment)
	}

	stage := make([]byte, total)
	for i, l := range levels {
		r := regions[i]
		if format.Compressed() {
			src, srcCh := l.Data, ch
			if ycocg {
				src, srcCh = ConvertRGBToCoCgxY(l.Data, l.Width, l.Height, ch), 4
			}
			Compress(format, src, l.Width, l.Height, srcCh, stage[r.Offset:], r.BytesPerRow, pool)
			continue
		}
		row := format.RowBytes(l.Width)
		for y := 0; y < l.Height; y++ {
			copy(stage[r.Offset+y*r.BytesPerRow:], l.Data[y*row:(y+1)*row])
		}
	}

	return Staged{
		Image: gpu.ImageDesc{
			Label:    desc.Name,
			Width:    w,
			Height:   h,
			Layers:   1,
			MipCount: mipCount,
			Format:   format,
			SRGB:     desc.SRGB && !manualSRGB,
		},
		Stage:   stage,
		Regions: regions,
		Flags:   flags,
	}, nil
}
