package storage

import (
	"container/heap"
	"fmt"
	"iter"
)

// Storage is a sparse container that hands out stable integer handles to inserted records.
// Freed slots are recycled, lowest index first, so a handle must not be used after the slot
// it names has been erased.
type Storage[T any] interface {
	// Insert stores v in a free slot (or a new one) and returns its handle.
	//
	// Parameters:
	//   - v: the record to store
	//
	// Returns:
	//   - uint32: the slot index of the stored record
	Insert(v T) uint32

	// Erase frees the slot named by h. Erasing a free slot is a no-op.
	//
	// Parameters:
	//   - h: the handle to free
	Erase(h uint32)

	// Get returns the record stored at h. It panics if h does not name a live slot.
	//
	// Parameters:
	//   - h: the handle to read
	//
	// Returns:
	//   - T: the stored record
	Get(h uint32) T

	// Ptr returns a pointer to the record stored at h for in-place updates. The pointer is
	// invalidated by the next Insert. It panics if h does not name a live slot.
	//
	// Parameters:
	//   - h: the handle to address
	//
	// Returns:
	//   - *T: pointer into the backing array
	Ptr(h uint32) *T

	// Set replaces the record stored at h. It panics if h does not name a live slot.
	//
	// Parameters:
	//   - h: the handle to write
	//   - v: the new record
	Set(h uint32, v T)

	// Exists reports whether h names a live slot.
	//
	// Parameters:
	//   - h: the handle to test
	//
	// Returns:
	//   - bool: true if the slot is allocated
	Exists(h uint32) bool

	// Len returns the number of live records.
	Len() int

	// Capacity returns the number of slots, live or free.
	Capacity() int

	// All iterates live slots in slot order.
	All() iter.Seq2[uint32, T]

	// Clear frees every slot.
	Clear()
}

type sparseStorage[T any] struct {
	values []T
	live   []bool
	free   freeList
	count  int
}

var _ Storage[int] = &sparseStorage[int]{}

// NewSparseStorage creates an empty Storage with room for capacity records before growing.
//
// Parameters:
//   - capacity: initial slot capacity hint
//
// Returns:
//   - Storage[T]: the new store
func NewSparseStorage[T any](capacity int) Storage[T] {
	return &sparseStorage[T]{
		values: make([]T, 0, capacity),
		live:   make([]bool, 0, capacity),
	}
}

func (s *sparseStorage[T]) Insert(v T) uint32 {
	s.count++
	if s.free.Len() > 0 {
		h := heap.Pop(&s.free).(uint32)
		s.values[h] = v
		s.live[h] = true
		return h
	}
	s.values = append(s.values, v)
	s.live = append(s.live, true)
	return uint32(len(s.values) - 1)
}

func (s *sparseStorage[T]) Erase(h uint32) {
	if !s.Exists(h) {
		return
	}
	var zero T
	s.values[h] = zero
	s.live[h] = false
	s.count--
	heap.Push(&s.free, h)
}

func (s *sparseStorage[T]) Get(h uint32) T {
	s.mustExist(h)
	return s.values[h]
}

func (s *sparseStorage[T]) Ptr(h uint32) *T {
	s.mustExist(h)
	return &s.values[h]
}

func (s *sparseStorage[T]) Set(h uint32, v T) {
	s.mustExist(h)
	s.values[h] = v
}

func (s *sparseStorage[T]) Exists(h uint32) bool {
	return int64(h) < int64(len(s.live)) && s.live[h]
}

func (s *sparseStorage[T]) Len() int {
	return s.count
}

func (s *sparseStorage[T]) Capacity() int {
	return len(s.values)
}

func (s *sparseStorage[T]) All() iter.Seq2[uint32, T] {
	return func(yield func(uint32, T) bool) {
		for i := range s.values {
			if !s.live[i] {
				continue
			}
			if !yield(uint32(i), s.values[i]) {
				return
			}
		}
	}
}

func (s *sparseStorage[T]) Clear() {
	s.values = s.values[:0]
	s.live = s.live[:0]
	s.free = s.free[:0]
	s.count = 0
}

func (s *sparseStorage[T]) mustExist(h uint32) {
	if !s.Exists(h) {
		panic(fmt.Sprintf("storage: slot %d is not allocated", h))
	}
}

// freeList is a min-heap of free slot indices.
type freeList []uint32

func (f freeList) Len() int           { return len(f) }
func (f freeList) Less(i, j int) bool { return f[i] < f[j] }
func (f freeList) Swap(i, j int)      { f[i], f[j] = f[j], f[i] }
func (f *freeList) Push(x any)        { *f = append(*f, x.(uint32)) }
func (f *freeList) Pop() any {
	old := *f
	n := len(old)
	x := old[n-1]
	*f = old[:n-1]
	return x
}
