package texture

// MipCount returns the number of mip levels of a w x h image, halving until the smaller side
// drops below minSize. The result is at least one.
func MipCount(w, h, minSize int) int {
	count := 0
	for res := min(w, h); res >= minSize; res /= 2 {
		count++
	}
	return max(count, 1)
}

// Downsample builds the next mip level with a 2x2 box filter. Odd edges clamp to the last
// texel, so a 5 texel row averages texels 3 and 4 then 4 and 4.
//
// Parameters:
//   - src: w*h texels of ch bytes
//   - w, h: the source size
//   - ch: bytes per texel
//
// Returns:
//   - []byte: the downsampled texels
//   - int, int: the new size
func Downsample(src []byte, w, h, ch int) ([]byte, int, int) {
	nw, nh := max(w/2, 1), max(h/2, 1)
	dst := make([]byte, nw*nh*ch)
	for y := 0; y < nh; y++ {
		y0 := min(2*y, h-1)
		y1 := min(2*y+1, h-1)
		for x := 0; x < nw; x++ {
			x0 := min(2*x, w-1)
			x1 := min(2*x+1, w-1)
			for c := 0; c < ch; c++ {
				sum := int(src[(y0*w+x0)*ch+c]) +
					int(src[(y0*w+x1)*ch+c]) +
					int(src[(y1*w+x0)*ch+c]) +
					int(src[(y1*w+x1)*ch+c])
				dst[(y*nw+x)*ch+c] = uint8(sum / 4)
			}
		}
	}
	return dst, nw, nh
}

// Level is one mip level of tightly packed texels.
type Level struct {
	Data   []byte
	Width  int
	Height int
}

// BuildMipChain returns count levels starting with the source image.
func BuildMipChain(src []byte, w, h, ch, count int) []Level {
	levels := make([]Level, 0, count)
	levels = append(levels, Level{Data: src, Width: w, Height: h})
	for i := 1; i < count; i++ {
		prev := levels[i-1]
		data, nw, nh := Downsample(prev.Data, prev.Width, prev.Height, ch)
		levels = append(levels, Level{Data: data, Width: nw, Height: nh})
	}
	return levels
}

// ExpandChannels widens texels from src to dst channels, filling new channels with fill.
func ExpandChannels(src []byte, w, h, srcCh, dstCh int, fill byte) []byte {
	if srcCh == dstCh {
		return src
	}
	out := make([]byte, w*h*dstCh)
	for i := 0; i < w*h; i++ {
		for c := 0; c < dstCh; c++ {
			if c < srcCh {
				out[i*dstCh+c] = src[i*srcCh+c]
			} else {
				out[i*dstCh+c] = fill
			}
		}
	}
	return out
}
