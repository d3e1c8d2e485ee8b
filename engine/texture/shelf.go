package texture

// ShelfAllocator packs rectangles into horizontal shelves of one page.
// Items are placed left to right on the first shelf that can hold them. The last shelf may
// grow taller while space remains below it, otherwise a new shelf opens under the last one.
type ShelfAllocator struct {
	width   int
	height  int
	shelves []shelf

	usedArea int
}

type shelf struct {
	y      int
	height int
	x      int
}

// NewShelfAllocator creates an allocator for a width x height page.
func NewShelfAllocator(width, height int) *ShelfAllocator {
	return &ShelfAllocator{
		width:   width,
		height:  height,
		shelves: make([]shelf, 0, 16),
	}
}

// Allocate finds space for a w x h rectangle.
//
// Parameters:
//   - w, h: the rectangle size
//
// Returns:
//   - x, y: the top-left corner, or -1, -1
//   - ok: false if the page has no room
func (a *ShelfAllocator) Allocate(w, h int) (x, y int, ok bool) {
	if w <= 0 || h <= 0 || w > a.width || h > a.height {
		return -1, -1, false
	}

	for i := range a.shelves {
		s := &a.shelves[i]
		if s.x+w > a.width {
			continue
		}
		if h > s.height {
			if i != len(a.shelves)-1 || s.y+h > a.height {
				continue
			}
			s.height = h
		}
		x, y = s.x, s.y
		s.x += w
		a.usedArea += w * h
		return x, y, true
	}

	newY := 0
	if n := len(a.shelves); n > 0 {
		newY = a.shelves[n-1].y + a.shelves[n-1].height
	}
	if newY+h > a.height {
		return -1, -1, false
	}
	a.shelves = append(a.shelves, shelf{y: newY, height: h, x: w})
	a.usedArea += w * h
	return 0, newY, true
}

// Utilization returns the used fraction of the page.
func (a *ShelfAllocator) Utilization() float64 {
	if a.width <= 0 || a.height <= 0 {
		return 0
	}
	return float64(a.usedArea) / float64(a.width*a.height)
}

// Reset clears every allocation.
func (a *ShelfAllocator) Reset() {
	a.shelves = a.shelves[:0]
	a.usedArea = 0
}

type shelfState struct {
	shelves  []shelf
	usedArea int
}

func (a *ShelfAllocator) snapshot() shelfState {
	return shelfState{shelves: append([]shelf(nil), a.shelves...), usedArea: a.usedArea}
}

func (a *ShelfAllocator) restore(s shelfState) {
	a.shelves = append(a.shelves[:0], s.shelves...)
	a.usedArea = s.usedArea
}
