package texture

import (
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-trace/common"
	"github.com/Carmen-Shannon/oxy-trace/engine/compute_pool"
	"github.com/Carmen-Shannon/oxy-trace/engine/gpu"
)

// Atlas page sets, one per storage format.
const (
	AtlasRGBA = iota
	AtlasRGB
	AtlasRG
	AtlasR
	AtlasBC3
	AtlasBC4
	AtlasBC5
	NumAtlases
)

// AtlasFormats maps each page set to its storage format.
var AtlasFormats = [NumAtlases]gpu.Format{
	AtlasRGBA: gpu.FormatRGBA8,
	AtlasRGB:  gpu.FormatRGB8,
	AtlasRG:   gpu.FormatRG8,
	AtlasR:    gpu.FormatR8,
	AtlasBC3:  gpu.FormatBC3,
	AtlasBC4:  gpu.FormatBC4,
	AtlasBC5:  gpu.FormatBC5,
}

// MaxAtlasPages is the page limit imposed by the 8-bit page index of AtlasTexture.
const MaxAtlasPages = 255

// Region is the position of one stored image inside an atlas.
type Region struct {
	Page int
	Pos  [2]int
}

// Atlas is a growable array of square pages of one format. Raw pages surround every image with
// a one texel border copied from its edge. Compressed pages place images on 4 texel blocks.
type Atlas interface {
	// Format returns the storage format of every page.
	Format() gpu.Format

	// PageSize returns the width and height of a page in texels.
	PageSize() int

	// PageCount returns the number of allocated pages.
	PageCount() int

	// AllocateChain stores every level or none of them.
	//
	// Parameters:
	//   - levels: the images to store
	//   - ch: bytes per source texel, which must match the format for raw pages
	//   - pool: runs block compression in parallel, nil for serial
	//
	// Returns:
	//   - []Region: one region per level
	//   - error: ErrAtlasFull if any level does not fit
	AllocateChain(levels []Level, ch int, pool compute_pool.ComputePool) ([]Region, error)

	// ReadRegion copies w x h texels back out of a raw page.
	//
	// Parameters:
	//   - r: the region returned by AllocateChain
	//   - w, h: the image size
	//
	// Returns:
	//   - []byte: the tightly packed texels
	//   - error: if the atlas is compressed or the region is out of range
	ReadRegion(r Region, w, h int) ([]byte, error)

	// Page returns the bytes of page i. Raw pages are tightly packed rows, compressed pages
	// are tightly packed block rows.
	Page(i int) []byte

	// DirtyPages returns the pages written since the last MarkClean, in ascending order.
	DirtyPages() []int

	// MarkClean clears the dirty set.
	MarkClean()

	// Utilization returns the used fraction of every allocated page.
	Utilization() float64
}

type atlas struct {
	mu       *sync.Mutex
	format   gpu.Format
	pageSize int
	maxPages int

	pages      [][]byte
	allocators []*ShelfAllocator
	dirty      []bool
}

var _ Atlas = &atlas{}

// NewAtlas creates an empty atlas. Compressed page sizes are rounded up to whole blocks.
//
// Parameters:
//   - format: the page storage format
//   - pageSize: the page width and height in texels
//   - maxPages: the page limit, capped at MaxAtlasPages
//
// Returns:
//   - Atlas: the new atlas
func NewAtlas(format gpu.Format, pageSize, maxPages int) Atlas {
	if format.BlockBytes() == 0 || format == gpu.FormatRGBA32F {
		panic("texture: NewAtlas requires an 8-bit or block compressed format")
	}
	if pageSize <= 2 || pageSize > 0xFFFF {
		panic("texture: NewAtlas requires a page size between 3 and 65535")
	}
	if format.Compressed() {
		pageSize = common.RoundUp(pageSize, 4)
	}
	return &atlas{
		mu:       &sync.Mutex{},
		format:   format,
		pageSize: pageSize,
		maxPages: min(max(maxPages, 1), MaxAtlasPages),
	}
}

func (a *atlas) Format() gpu.Format {
	return a.format
}

func (a *atlas) PageSize() int {
	return a.pageSize
}

func (a *atlas) PageCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pages)
}

func (a *atlas) pageBytes() int {
	return a.format.RowBytes(a.pageSize) * a.format.Rows(a.pageSize)
}

func (a *atlas) footprint(w, h int) (int, int) {
	if a.format.Compressed() {
		return common.RoundUp(w, 4), common.RoundUp(h, 4)
	}
	return w + 2, h + 2
}

func (a *atlas) reserve(w, h int) (Region, bool) {
	fw, fh := a.footprint(w, h)
	if fw > a.pageSize || fh > a.pageSize {
		return Region{}, false
	}
	for i, alloc := range a.allocators {
		if x, y, ok := alloc.Allocate(fw, fh); ok {
			return a.region(i, x, y), true
		}
	}
	if len(a.pages) >= a.maxPages {
		return Region{}, false
	}
	alloc := NewShelfAllocator(a.pageSize, a.pageSize)
	x, y, _ := alloc.Allocate(fw, fh)
	a.allocators = append(a.allocators, alloc)
	a.pages = append(a.pages, make([]byte, a.pageBytes()))
	a.dirty = append(a.dirty, false)
	return a.region(len(a.pages)-1, x, y), true
}

func (a *atlas) region(page, x, y int) Region {
	if a.format.Compressed() {
		return Region{Page: page, Pos: [2]int{x, y}}
	}
	return Region{Page: page, Pos: [2]int{x + 1, y + 1}}
}

func (a *atlas) AllocateChain(levels []Level, ch int, pool compute_pool.ComputePool) ([]Region, error) {
	if !a.format.Compressed() && ch != a.format.BlockBytes() {
		return nil, fmt.Errorf("%v atlas given %d channel texels: %w", a.format, ch, ErrInvalidFormat)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	pageCount := len(a.pages)
	snaps := make([]shelfState, pageCount)
	for i := range snaps {
		snaps[i] = a.allocators[i].snapshot()
	}

	regions := make([]Region, len(levels))
	for i, l := range levels {
		r, ok := a.reserve(l.Width, l.Height)
		if !ok {
			for j := range snaps {
				a.allocators[j].restore(snaps[j])
			}
			a.pages = a.pages[:pageCount]
			a.allocators = a.allocators[:pageCount]
			a.dirty = a.dirty[:pageCount]
			return nil, fmt.Errorf("%v atlas, level %d %dx%d: %w", a.format, i, l.Width, l.Height, ErrAtlasFull)
		}
		regions[i] = r
	}

	for i, l := range levels {
		if a.format.Compressed() {
			a.writeBlocks(regions[i], l, ch, pool)
		} else {
			a.writeBordered(regions[i], l, ch)
		}
		a.dirty[regions[i].Page] = true
	}
	return regions, nil
}

func (a *atlas) writeBordered(r Region, l Level, ch int) {
	page := a.pages[r.Page]
	for y := -1; y <= l.Height; y++ {
		sy := min(max(y, 0), l.Height-1)
		dst := ((r.Pos[1]+y)*a.pageSize + r.Pos[0] - 1) * ch
		for x := -1; x <= l.Width; x++ {
			sx := min(max(x, 0), l.Width-1)
			copy(page[dst:dst+ch], l.Data[(sy*l.Width+sx)*ch:])
			dst += ch
		}
	}
}

func (a *atlas) writeBlocks(r Region, l Level, ch int, pool compute_pool.ComputePool) {
	size, pitch := BCRequiredMemory(a.format, l.Width, l.Height, 1)
	tmp := make([]byte, size)
	Compress(a.format, l.Data, l.Width, l.Height, ch, tmp, pitch, pool)

	page := a.pages[r.Page]
	pagePitch := a.format.RowBytes(a.pageSize)
	col := r.Pos[0] / 4 * a.format.BlockBytes()
	for row := 0; row < a.format.Rows(l.Height); row++ {
		dst := (r.Pos[1]/4+row)*pagePitch + col
		copy(page[dst:dst+pitch], tmp[row*pitch:(row+1)*pitch])
	}
}

func (a *atlas) ReadRegion(r Region, w, h int) ([]byte, error) {
	if a.format.Compressed() {
		return nil, fmt.Errorf("read back of %v atlas: %w", a.format, ErrInvalidFormat)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if r.Page < 0 || r.Page >= len(a.pages) || r.Pos[0]+w > a.pageSize || r.Pos[1]+h > a.pageSize {
		return nil, fmt.Errorf("region %+v %dx%d: %w", r, w, h, ErrInvalidSize)
	}
	ch := a.format.BlockBytes()
	page := a.pages[r.Page]
	out := make([]byte, w*h*ch)
	for y := 0; y < h; y++ {
		src := ((r.Pos[1]+y)*a.pageSize + r.Pos[0]) * ch
		copy(out[y*w*ch:(y+1)*w*ch], page[src:src+w*ch])
	}
	return out, nil
}

func (a *atlas) Page(i int) []byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pages[i]
}

func (a *atlas) DirtyPages() []int {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []int
	for i, d := range a.dirty {
		if d {
			out = append(out, i)
		}
	}
	return out
}

func (a *atlas) MarkClean() {
	a.mu.Lock()
	defer a.mu.Unlock()
	clear(a.dirty)
}

func (a *atlas) Utilization() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.allocators) == 0 {
		return 0
	}
	var sum float64
	for _, alloc := range a.allocators {
		sum += alloc.Utilization()
	}
	return sum / float64(len(a.allocators))
}
