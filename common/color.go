package common

import (
	"github.com/chewxy/math32"
)

// PackUnorm16 quantizes v, clamped to [0,1], into a 16-bit normalized integer.
func PackUnorm16(v float32) uint16 {
	return uint16(Clamp(v, 0, 1)*65535 + 0.5)
}

// UnpackUnorm16 is the inverse of PackUnorm16.
func UnpackUnorm16(v uint16) float32 {
	return float32(v) / 65535
}

// RGBToRGBE encodes a linear HDR color into Ward's shared-exponent format.
// Colors whose largest component is below 1e-32 encode to all zeros.
func RGBToRGBE(c [3]float32) [4]uint8 {
	m := max(c[0], c[1], c[2])
	if m < 1e-32 {
		return [4]uint8{}
	}

	frac, exp := math32.Frexp(m)
	f := frac * 256 / m

	return [4]uint8{
		uint8(min(c[0]*f, 255)),
		uint8(min(c[1]*f, 255)),
		uint8(min(c[2]*f, 255)),
		uint8(exp + 128),
	}
}

// RGBEToRGB decodes a shared-exponent color. A zero exponent decodes to black.
func RGBEToRGB(rgbe [4]uint8) [3]float32 {
	if rgbe[3] == 0 {
		return [3]float32{}
	}
	f := math32.Ldexp(1, int(rgbe[3])-(128+8))
	return [3]float32{float32(rgbe[0]) * f, float32(rgbe[1]) * f, float32(rgbe[2]) * f}
}
