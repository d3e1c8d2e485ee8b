package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPackUnorm16(t *testing.T) {
	tests := []struct {
		in   float32
		want uint16
	}{
		{-1, 0},
		{0, 0},
		{0.5, 32768},
		{1, 65535},
		{3, 65535},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, PackUnorm16(tt.in), "PackUnorm16(%v)", tt.in)
	}
}

func TestRGBERoundTrip(t *testing.T) {
	colors := [][3]float32{
		{1, 1, 1},
		{0.25, 0.5, 0.75},
		{120, 3, 0.01},
		{0.001, 0.002, 0.0005},
	}
	for _, c := range colors {
		got := RGBEToRGB(RGBToRGBE(c))
		m := max(c[0], c[1], c[2])
		for i := 0; i < 3; i++ {
			// one mantissa step of the largest component
			assert.InDelta(t, c[i], got[i], float64(m)/128)
		}
	}
}

func TestRGBEBlack(t *testing.T) {
	assert.Equal(t, [4]uint8{}, RGBToRGBE([3]float32{}))
	assert.Equal(t, [3]float32{}, RGBEToRGB([4]uint8{}))
}

func TestBoundingBox(t *testing.T) {
	b := EmptyBoundingBox()
	assert.True(t, b.IsEmpty())
	assert.Zero(t, b.SurfaceArea())

	b.ExtendPoint([3]float32{-1, 0, -1})
	b.ExtendPoint([3]float32{1, 2, 1})
	assert.False(t, b.IsEmpty())
	assert.Equal(t, float32(2*(2*2+2*2+2*2)), b.SurfaceArea())
	assert.Equal(t, 0, b.LargestAxis())
	assert.Equal(t, [3]float32{0, 1, 0}, b.Center())

	inner := BoundingBox{Min: [3]float32{0, 0, 0}, Max: [3]float32{1, 1, 1}}
	assert.True(t, b.Contains(inner, 0))
	assert.False(t, inner.Contains(b, 0))
}
