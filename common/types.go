// package common contains common types that are used throughout this engine. They are not interface-wrapped structs, just plain structs that express
// commonly used data-types.
package common

import (
	"github.com/chewxy/math32"
)

// BoundingBox is an axis-aligned box described by its minimum and maximum corners.
type BoundingBox struct {
	Min [3]float32
	Max [3]float32
}

// EmptyBoundingBox returns an inverted box that any Extend call will replace.
func EmptyBoundingBox() BoundingBox {
	return BoundingBox{
		Min: [3]float32{math32.MaxFloat32, math32.MaxFloat32, math32.MaxFloat32},
		Max: [3]float32{-math32.MaxFloat32, -math32.MaxFloat32, -math32.MaxFloat32},
	}
}

// IsEmpty reports whether the box encloses nothing.
func (b BoundingBox) IsEmpty() bool {
	return b.Min[0] > b.Max[0] || b.Min[1] > b.Max[1] || b.Min[2] > b.Max[2]
}

// ExtendPoint grows the box to contain p.
func (b *BoundingBox) ExtendPoint(p [3]float32) {
	b.Min = Min3(b.Min, p)
	b.Max = Max3(b.Max, p)
}

// Extend grows the box to contain o.
func (b *BoundingBox) Extend(o BoundingBox) {
	b.Min = Min3(b.Min, o.Min)
	b.Max = Max3(b.Max, o.Max)
}

// Intersect returns the overlap of a and b, which may be empty.
func Intersect(a, b BoundingBox) BoundingBox {
	return BoundingBox{Min: Max3(a.Min, b.Min), Max: Min3(a.Max, b.Max)}
}

// Center returns the midpoint of the box.
func (b BoundingBox) Center() [3]float32 {
	return Scale3(Add3(b.Min, b.Max), 0.5)
}

// Extent returns Max - Min.
func (b BoundingBox) Extent() [3]float32 {
	return Sub3(b.Max, b.Min)
}

// SurfaceArea returns the area of the six faces, or zero for an empty box.
func (b BoundingBox) SurfaceArea() float32 {
	if b.IsEmpty() {
		return 0
	}
	d := b.Extent()
	return 2 * (d[0]*d[1] + d[1]*d[2] + d[0]*d[2])
}

// LargestAxis returns the index of the longest extent.
func (b BoundingBox) LargestAxis() int {
	d := b.Extent()
	if d[0] >= d[1] && d[0] >= d[2] {
		return 0
	}
	if d[1] >= d[2] {
		return 1
	}
	return 2
}

// Contains reports whether o lies within b, allowing eps of slack on each side.
func (b BoundingBox) Contains(o BoundingBox, eps float32) bool {
	for i := 0; i < 3; i++ {
		if o.Min[i] < b.Min[i]-eps || o.Max[i] > b.Max[i]+eps {
			return false
		}
	}
	return true
}
