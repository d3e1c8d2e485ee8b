package texture

import (
	"encoding/binary"
	"math"

	"github.com/Carmen-Shannon/oxy-trace/common"
	"github.com/Carmen-Shannon/oxy-trace/engine/compute_pool"
	"github.com/Carmen-Shannon/oxy-trace/engine/gpu"
)

// BCRequiredMemory returns the size of w x h texels compressed to f with rows padded to align.
//
// Parameters:
//   - f: a block compressed format
//   - w, h: the image size in texels
//   - align: the row pitch alignment, one for tight rows
//
// Returns:
//   - int: the byte size
//   - int: the row pitch
func BCRequiredMemory(f gpu.Format, w, h, align int) (int, int) {
	pitch := common.RoundUp(f.RowBytes(w), max(align, 1))
	return pitch * f.Rows(h), pitch
}

// CompressBC3 encodes texels into BC3 blocks. Alpha comes from the fourth channel, or is opaque
// when ch is below four. Partial edge blocks repeat the last row and column.
//
// Parameters:
//   - src: w*h texels of ch bytes
//   - w, h: the image size
//   - ch: bytes per texel, three or four
//   - dst: the output, at least pitch * block rows long
//   - pitch: the byte distance between block rows
//   - pool: runs block rows in parallel, nil for serial
func CompressBC3(src []byte, w, h, ch int, dst []byte, pitch int, pool compute_pool.ComputePool) {
	compressBlocks(w, h, pitch, 16, dst, pool, func(bx, by int, out []byte) {
		var rgb [16][3]byte
		var alpha [16]byte
		for i := 0; i < 16; i++ {
			o := texelOffset(w, h, ch, bx*4+i%4, by*4+i/4)
			rgb[i] = [3]byte{src[o], src[o+1], src[o+2]}
			alpha[i] = 255
			if ch >= 4 {
				alpha[i] = src[o+3]
			}
		}
		encodeAlphaBlock(alpha, out[0:8])
		encodeColorBlock(rgb, out[8:16])
	})
}

// CompressBC4 encodes the first channel of texels into BC4 blocks.
func CompressBC4(src []byte, w, h, ch int, dst []byte, pitch int, pool compute_pool.ComputePool) {
	compressBlocks(w, h, pitch, 8, dst, pool, func(bx, by int, out []byte) {
		encodeAlphaBlock(fetchChannel(src, w, h, ch, bx, by, 0), out[0:8])
	})
}

// CompressBC5 encodes the first two channels of texels into BC5 blocks.
func CompressBC5(src []byte, w, h, ch int, dst []byte, pitch int, pool compute_pool.ComputePool) {
	compressBlocks(w, h, pitch, 16, dst, pool, func(bx, by int, out []byte) {
		encodeAlphaBlock(fetchChannel(src, w, h, ch, bx, by, 0), out[0:8])
		encodeAlphaBlock(fetchChannel(src, w, h, ch, bx, by, 1), out[8:16])
	})
}

// Compress encodes texels into f, dispatching to the matching block encoder.
func Compress(f gpu.Format, src []byte, w, h, ch int, dst []byte, pitch int, pool compute_pool.ComputePool) {
	switch f {
	case gpu.FormatBC3:
		CompressBC3(src, w, h, ch, dst, pitch, pool)
	case gpu.FormatBC4:
		CompressBC4(src, w, h, ch, dst, pitch, pool)
	case gpu.FormatBC5:
		CompressBC5(src, w, h, ch, dst, pitch, pool)
	default:
		panic("texture: Compress requires a block compressed format")
	}
}

// Decompress decodes block compressed data back to texels: four channels for BC3, one for BC4
// and two for BC5.
//
// Parameters:
//   - f: the block compressed format
//   - src: the blocks, pitch bytes per block row
//   - w, h: the image size in texels
//   - pitch: the byte distance between block rows
//
// Returns:
//   - []byte: w*h decoded texels
//   - int: bytes per decoded texel
func Decompress(f gpu.Format, src []byte, w, h, pitch int) ([]byte, int) {
	var ch int
	switch f {
	case gpu.FormatBC3:
		ch = 4
	case gpu.FormatBC4:
		ch = 1
	case gpu.FormatBC5:
		ch = 2
	default:
		panic("texture: Decompress requires a block compressed format")
	}

	out := make([]byte, w*h*ch)
	bs := f.BlockBytes()
	for by := 0; by < (h+3)/4; by++ {
		for bx := 0; bx < (w+3)/4; bx++ {
			block := src[by*pitch+bx*bs:]
			var texels [16][4]byte
			switch f {
			case gpu.FormatBC3:
				a := decodeAlphaBlock(block[0:8])
				c := decodeColorBlock(block[8:16])
				for i := range texels {
					texels[i] = [4]byte{c[i][0], c[i][1], c[i][2], a[i]}
				}
			case gpu.FormatBC4:
				r := decodeAlphaBlock(block[0:8])
				for i := range texels {
					texels[i][0] = r[i]
				}
			case gpu.FormatBC5:
				r := decodeAlphaBlock(block[0:8])
				g := decodeAlphaBlock(block[8:16])
				for i := range texels {
					texels[i][0], texels[i][1] = r[i], g[i]
				}
			}
			for i, t := range texels {
				x, y := bx*4+i%4, by*4+i/4
				if x >= w || y >= h {
					continue
				}
				copy(out[(y*w+x)*ch:(y*w+x+1)*ch], t[:ch])
			}
		}
	}
	return out, ch
}

// ConvertRGBToCoCgxY converts texels to the CoCg_Y layout used with BC3: chroma in red and
// green, luma in alpha where BC3 keeps the most precision.
//
// Parameters:
//   - src: w*h texels of ch bytes, ch of at least three
//   - w, h: the image size
//   - ch: bytes per texel
//
// Returns:
//   - []byte: w*h RGBA texels
func ConvertRGBToCoCgxY(src []byte, w, h, ch int) []byte {
	out := make([]byte, w*h*4)
	for i := 0; i < w*h; i++ {
		r, g, b := int(src[i*ch]), int(src[i*ch+1]), int(src[i*ch+2])
		out[i*4+0] = clampByte((r-b)/2 + 128)
		out[i*4+1] = clampByte((-r+2*g-b)/4 + 128)
		out[i*4+2] = 0
		out[i*4+3] = clampByte((r + 2*g + b + 2) / 4)
	}
	return out
}

// ConvertCoCgxYToRGB reverses ConvertRGBToCoCgxY into RGBA texels with opaque alpha.
func ConvertCoCgxYToRGB(src []byte, w, h int) []byte {
	out := make([]byte, w*h*4)
	for i := 0; i < w*h; i++ {
		co := int(src[i*4+0]) - 128
		cg := int(src[i*4+1]) - 128
		y := int(src[i*4+3])
		out[i*4+0] = clampByte(y + co - cg)
		out[i*4+1] = clampByte(y + cg)
		out[i*4+2] = clampByte(y - co - cg)
		out[i*4+3] = 255
	}
	return out
}

func compressBlocks(w, h, pitch, blockBytes int, dst []byte, pool compute_pool.ComputePool, enc func(bx, by int, out []byte)) {
	bw, bh := (w+3)/4, (h+3)/4
	compute_pool.Or(pool).ForEach(bh, func(by int) {
		row := dst[by*pitch:]
		for bx := 0; bx < bw; bx++ {
			enc(bx, by, row[bx*blockBytes:(bx+1)*blockBytes])
		}
	})
}

func texelOffset(w, h, ch, x, y int) int {
	return (min(y, h-1)*w + min(x, w-1)) * ch
}

func fetchChannel(src []byte, w, h, ch, bx, by, c int) [16]byte {
	var out [16]byte
	for i := range out {
		out[i] = src[texelOffset(w, h, ch, bx*4+i%4, by*4+i/4)+c]
	}
	return out
}

func clampByte(v int) byte {
	return byte(min(max(v, 0), 255))
}

func alphaPalette(a0, a1 int) [8]int {
	p := [8]int{a0, a1}
	if a0 > a1 {
		for i := 1; i <= 6; i++ {
			p[i+1] = ((7-i)*a0 + i*a1 + 3) / 7
		}
	} else {
		for i := 1; i <= 4; i++ {
			p[i+1] = ((5-i)*a0 + i*a1 + 2) / 5
		}
		p[6], p[7] = 0, 255
	}
	return p
}

// encodeAlphaBlock writes a single channel block in eight value mode.
func encodeAlphaBlock(vals [16]byte, out []byte) {
	lo, hi := vals[0], vals[0]
	for _, v := range vals[1:] {
		lo, hi = min(lo, v), max(hi, v)
	}
	out[0], out[1] = hi, lo

	var bits uint64
	if hi != lo {
		p := alphaPalette(int(hi), int(lo))
		for i, v := range vals {
			best, bestErr := 0, math.MaxInt
			for j, pv := range p {
				if e := abs(int(v) - pv); e < bestErr {
					best, bestErr = j, e
				}
			}
			bits |= uint64(best) << (3 * i)
		}
	}
	for i := 0; i < 6; i++ {
		out[2+i] = byte(bits >> (8 * i))
	}
}

func decodeAlphaBlock(block []byte) [16]byte {
	p := alphaPalette(int(block[0]), int(block[1]))
	var bits uint64
	for i := 0; i < 6; i++ {
		bits |= uint64(block[2+i]) << (8 * i)
	}
	var out [16]byte
	for i := range out {
		out[i] = byte(p[(bits>>(3*i))&7])
	}
	return out
}

func to565(c [3]float32) uint16 {
	r := uint16(common.Clamp(c[0]*31/255+0.5, 0, 31))
	g := uint16(common.Clamp(c[1]*63/255+0.5, 0, 63))
	b := uint16(common.Clamp(c[2]*31/255+0.5, 0, 31))
	return r<<11 | g<<5 | b
}

func from565(v uint16) [3]int {
	r, g, b := int(v>>11&31), int(v>>5&63), int(v&31)
	return [3]int{r<<3 | r>>2, g<<2 | g>>4, b<<3 | b>>2}
}

func colorPalette(c0, c1 uint16) [4][3]int {
	a, b := from565(c0), from565(c1)
	p := [4][3]int{a, b}
	for k := 0; k < 3; k++ {
		if c0 > c1 {
			p[2][k] = (2*a[k] + b[k]) / 3
			p[3][k] = (a[k] + 2*b[k]) / 3
		} else {
			p[2][k] = (a[k] + b[k]) / 2
			p[3][k] = 0
		}
	}
	return p
}

// encodeColorBlock fits endpoints along the principal axis of the block's colors.
func encodeColorBlock(rgb [16][3]byte, out []byte) {
	var mean [3]float32
	for _, c := range rgb {
		for k := 0; k < 3; k++ {
			mean[k] += float32(c[k])
		}
	}
	mean = common.Scale3(mean, 1.0/16)

	var cov [6]float32
	for _, c := range rgb {
		d := [3]float32{float32(c[0]) - mean[0], float32(c[1]) - mean[1], float32(c[2]) - mean[2]}
		cov[0] += d[0] * d[0]
		cov[1] += d[0] * d[1]
		cov[2] += d[0] * d[2]
		cov[3] += d[1] * d[1]
		cov[4] += d[1] * d[2]
		cov[5] += d[2] * d[2]
	}

	axis := [3]float32{1, 1, 1}
	for i := 0; i < 8; i++ {
		next := [3]float32{
			cov[0]*axis[0] + cov[1]*axis[1] + cov[2]*axis[2],
			cov[1]*axis[0] + cov[3]*axis[1] + cov[4]*axis[2],
			cov[2]*axis[0] + cov[4]*axis[1] + cov[5]*axis[2],
		}
		l := common.Length3(next)
		if l < 1e-6 {
			break
		}
		axis = common.Scale3(next, 1/l)
	}

	lo, hi := float32(math.MaxFloat32), float32(-math.MaxFloat32)
	for _, c := range rgb {
		t := common.Dot3(common.Sub3([3]float32{float32(c[0]), float32(c[1]), float32(c[2])}, mean), axis)
		lo, hi = min(lo, t), max(hi, t)
	}
	c0 := to565(common.Add3(mean, common.Scale3(axis, hi)))
	c1 := to565(common.Add3(mean, common.Scale3(axis, lo)))
	if c0 < c1 {
		c0, c1 = c1, c0
	}
	binary.LittleEndian.PutUint16(out[0:2], c0)
	binary.LittleEndian.PutUint16(out[2:4], c1)

	var bits uint32
	if c0 != c1 {
		p := colorPalette(c0, c1)
		for i, c := range rgb {
			best, bestErr := 0, math.MaxInt
			for j, pc := range p {
				e := 0
				for k := 0; k < 3; k++ {
					d := int(c[k]) - pc[k]
					e += d * d
				}
				if e < bestErr {
					best, bestErr = j, e
				}
			}
			bits |= uint32(best) << (2 * i)
		}
	}
	binary.LittleEndian.PutUint32(out[4:8], bits)
}

func decodeColorBlock(block []byte) [16][3]byte {
	c0 := binary.LittleEndian.Uint16(block[0:2])
	c1 := binary.LittleEndian.Uint16(block[2:4])
	bits := binary.LittleEndian.Uint32(block[4:8])
	p := colorPalette(c0, c1)
	var out [16][3]byte
	for i := range out {
		c := p[(bits>>(2*i))&3]
		out[i] = [3]byte{byte(c[0]), byte(c[1]), byte(c[2])}
	}
	return out
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
