package texture

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-trace/engine/compute_pool"
)

// IngestOptions controls how AtlasSet.Add stores a texture.
type IngestOptions struct {
	// Compress selects the block compressed page sets for three, two and one channel data.
	Compress bool
	// DeferMips stores only the top level of uncompressed textures. The chain is built later
	// by FinishMips from the stored texels.
	DeferMips bool
	// Pool runs block compression in parallel, nil for serial.
	Pool compute_pool.ComputePool
}

// AtlasSet owns one atlas per page set and turns texture descriptors into atlas records.
type AtlasSet interface {
	// Atlas returns the page set at index i, one of AtlasRGBA through AtlasBC5.
	Atlas(i int) Atlas

	// Add stores a texture and every requested mip level.
	//
	// Parameters:
	//   - desc: the texture to store
	//   - opts: compression and mip options
	//
	// Returns:
	//   - AtlasTexture: the record locating every mip slot
	//   - bool: true when the mip chain was deferred to FinishMips
	//   - error: a validation error or ErrAtlasFull, in which case nothing was stored
	Add(desc Desc, opts IngestOptions) (AtlasTexture, bool, error)

	// FinishMips builds the deferred mip chain of t from its stored top level and fills mip
	// slots 1 and up.
	//
	// Parameters:
	//   - t: the record returned by Add with the deferred flag set
	//   - pool: unused for raw pages, kept for symmetry with Add
	//
	// Returns:
	//   - error: ErrAtlasFull if the chain does not fit, leaving t unchanged
	FinishMips(t *AtlasTexture, pool compute_pool.ComputePool) error
}

type atlasSet struct {
	atlases [NumAtlases]Atlas
}

var _ AtlasSet = &atlasSet{}

// NewAtlasSet creates all seven page sets with the same page size and page limit.
//
// Parameters:
//   - pageSize: the page width and height in texels
//   - maxPages: the page limit per set
//
// Returns:
//   - AtlasSet: the new set
func NewAtlasSet(pageSize, maxPages int) AtlasSet {
	s := &atlasSet{}
	for i := range s.atlases {
		s.atlases[i] = NewAtlas(AtlasFormats[i], pageSize, maxPages)
	}
	return s
}

func (s *atlasSet) Atlas(i int) Atlas {
	return s.atlases[i]
}

// atlasMipCount counts levels whose smaller side stays at or above MinAtlasTextureSize.
func atlasMipCount(w, h int) int {
	count := 1
	for count < NumMipLevels && min(w>>count, h>>count) >= MinAtlasTextureSize {
		count++
	}
	return count
}

func (s *atlasSet) Add(desc Desc, opts IngestOptions) (AtlasTexture, bool, error) {
	maxSize := s.atlases[AtlasRGBA].PageSize() - 2
	if err := desc.Validate(min(maxSize, int(AtlasTexWidthBits))); err != nil {
		return AtlasTexture{}, false, err
	}

	w, h := desc.Width, desc.Height
	ch := desc.Format.Channels()
	data := desc.Data[:w*h*ch]
	compress := opts.Compress && !desc.ForceNoCompression

	var rec AtlasTexture
	set := AtlasRGBA
	switch {
	case desc.NormalMap:
		var reconstruct bool
		data, reconstruct = RepackNormalMap(data, w, h, ch)
		ch = 2
		if reconstruct {
			rec.Width |= AtlasTexReconstructZBit
		}
		set = AtlasRG
		if compress {
			set = AtlasBC5
		}
	case ch == 4:
		set = AtlasRGBA
	case ch == 3:
		set = AtlasRGB
		if compress {
			set = AtlasBC3
		}
	case ch == 2:
		set = AtlasRG
		if compress {
			set = AtlasBC5
		}
	case ch == 1:
		set = AtlasR
		if compress {
			set = AtlasBC4
		}
	}

	mips := desc.GenerateMipmaps && w > MinAtlasTextureSize && h > MinAtlasTextureSize
	levelCount := 1
	deferred := false
	if mips {
		if opts.DeferMips && !compress {
			deferred = true
		} else {
			levelCount = atlasMipCount(w, h)
		}
	}

	levels := BuildMipChain(data, w, h, ch, levelCount)
	regions, err := s.atlases[set].AllocateChain(levels, ch, opts.Pool)
	if err != nil {
		return AtlasTexture{}, false, fmt.Errorf("%q: %w", desc.Name, err)
	}

	rec.Width |= uint16(w)
	rec.Height = uint16(h)
	if desc.SRGB {
		rec.Width |= AtlasTexSRGBBit
	}
	if mips {
		rec.Height |= AtlasTexMipsBit
	}
	rec.Atlas = uint8(set)
	for i := 0; i < NumMipLevels; i++ {
		r := regions[min(i, len(regions)-1)]
		rec.Page[i] = uint8(r.Page)
		rec.Pos[i] = [2]uint16{uint16(r.Pos[0]), uint16(r.Pos[1])}
	}
	return rec, deferred, nil
}

func (s *atlasSet) FinishMips(t *AtlasTexture, pool compute_pool.ComputePool) error {
	a := s.atlases[t.Atlas]
	w, h := t.Size()
	count := atlasMipCount(w, h)
	if count <= 1 {
		return nil
	}

	base, err := a.ReadRegion(Region{Page: int(t.Page[0]), Pos: [2]int{int(t.Pos[0][0]), int(t.Pos[0][1])}}, w, h)
	if err != nil {
		return err
	}
	ch := a.Format().BlockBytes()
	levels := BuildMipChain(base, w, h, ch, count)[1:]
	regions, err := a.AllocateChain(levels, ch, pool)
	if err != nil {
		return err
	}
	for i := 1; i < NumMipLevels; i++ {
		r := regions[min(i, len(regions))-1]
		t.Page[i] = uint8(r.Page)
		t.Pos[i] = [2]uint16{uint16(r.Pos[0]), uint16(r.Pos[1])}
	}
	return nil
}
