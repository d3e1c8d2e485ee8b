package environment

import (
	"encoding/binary"
	"math"

	"github.com/Carmen-Shannon/oxy-trace/common"
	"github.com/Carmen-Shannon/oxy-trace/engine/compute_pool"
	"github.com/Carmen-Shannon/oxy-trace/engine/gpu"
	"github.com/Carmen-Shannon/oxy-trace/engine/texture"
	"github.com/chewxy/math32"
)

// LumFractThreshold is the share of the total luminance a quadtree value must exceed for its
// level to need a finer one.
const LumFractThreshold = 0.01

// QTree is a luminance quadtree over the canonical square of the environment map. Level 0 is
// the finest. Level i holds ((Res>>i)/2)^2 cells, each storing the values of its four quadrants
// in x + 2*y order.
type QTree struct {
	Res    int
	Levels [][][4]float32
	Total  float32
}

// BuildQTree builds the importance quadtree of an RGBE encoded equirectangular map.
// Level 0 keeps the brightest texel per quadrant, coarser levels sum their children. Finer
// levels that hold no value above LumFractThreshold of the total are dropped.
//
// Parameters:
//   - rgbe: RGBA8 texels, alpha holding the shared exponent
//   - w, h: the map size
//   - pitch: the distance between rows in texels
//   - pool: runs rows in parallel, nil for serial
//
// Returns:
//   - QTree: the trimmed quadtree
func BuildQTree(rgbe []byte, w, h, pitch int, pool compute_pool.ComputePool) QTree {
	res := 1
	for 2*res < min(w, h) {
		res *= 2
	}
	res = max(res, 2)

	// Rows map texels to quadrant cells in parallel, the max reduction runs after the barrier.
	cells := make([]int32, w*h)
	lums := make([]float32, w*h)
	compute_pool.Or(pool).ForEach(h, func(y int) {
		theta := math32.Pi * float32(y) / float32(h)
		sinTheta, cosTheta := math32.Sincos(theta)
		for x := 0; x < w; x++ {
			phi := 2 * math32.Pi * float32(x) / float32(w)
			sinPhi, cosPhi := math32.Sincos(phi)

			o := 4 * (y*pitch + x)
			c := common.RGBEToRGB([4]uint8{rgbe[o], rgbe[o+1], rgbe[o+2], rgbe[o+3]})

			q := common.DirToCanonical([3]float32{sinTheta * cosPhi, cosTheta, sinTheta * sinPhi}, 0)
			qx := min(max(int(float32(res)*q[0]), 0), res-1)
			qy := min(max(int(float32(res)*q[1]), 0), res-1)

			quadrant := (qx & 1) | (qy&1)<<1
			cell := (qy/2)*(res/2) + qx/2
			cells[y*w+x] = int32(cell*4 + quadrant)
			lums[y*w+x] = c[0] + c[1] + c[2]
		}
	})

	level0 := make([][4]float32, (res/2)*(res/2))
	for i, c := range cells {
		v := &level0[c/4][c%4]
		*v = max(*v, lums[i])
	}

	var total float32
	for _, v := range level0 {
		total += v[0] + v[1] + v[2] + v[3]
	}

	levels := [][][4]float32{level0}
	for cur := res / 2; cur > 1; cur /= 2 {
		prev := levels[len(levels)-1]
		next := make([][4]float32, (cur/2)*(cur/2))
		for y := 0; y < cur; y++ {
			for x := 0; x < cur; x++ {
				p := prev[y*cur+x]
				next[(y/2)*(cur/2)+x/2][(x&1)|(y&1)<<1] = p[0] + p[1] + p[2] + p[3]
			}
		}
		levels = append(levels, next)
	}

	lastRequired := 0
	for lod := len(levels) - 1; lod >= 0; lod-- {
		lastRequired = lod
		required := false
		for _, v := range levels[lod] {
			if v[0] > LumFractThreshold*total || v[1] > LumFractThreshold*total ||
				v[2] > LumFractThreshold*total || v[3] > LumFractThreshold*total {
				required = true
				break
			}
		}
		if !required {
			break
		}
	}
	levels = levels[lastRequired:]
	res >>= lastRequired

	return QTree{Res: res, Levels: levels, Total: total}
}

// LevelSize returns the cell grid width of level i.
func (q QTree) LevelSize(i int) int {
	return max((q.Res>>i)/2, 1)
}

// Stage lays the quadtree out as an RGBA32F image with one mip per level. An empty quadtree
// stages a single black texel, which the kernels treat as no importance map.
//
// Returns:
//   - gpu.ImageDesc: the image description
//   - []byte: the staging data
//   - []gpu.Region: one region per mip
func (q QTree) Stage() (gpu.ImageDesc, []byte, []gpu.Region) {
	levels := q.Levels
	if len(levels) == 0 {
		levels = [][][4]float32{{{}}}
	}

	regions := make([]gpu.Region, len(levels))
	total := 0
	for i := range levels {
		n := q.LevelSize(i)
		if len(q.Levels) == 0 {
			n = 1
		}
		pitch := common.RoundUp(n*16, texture.TextureDataPitchAlignment)
		regions[i] = gpu.Region{Mip: i, Offset: total, BytesPerRow: pitch}
		total += common.RoundUp(pitch*n, texture.TextureMipOffsetAlignment)
	}

	stage := make([]byte, total)
	for i, level := range levels {
		r := regions[i]
		n := int(math.Sqrt(float64(len(level))))
		for y := 0; y < n; y++ {
			for x := 0; x < n; x++ {
				o := r.Offset + y*r.BytesPerRow + x*16
				for c, v := range level[y*n+x] {
					binary.LittleEndian.PutUint32(stage[o+c*4:], math.Float32bits(v))
				}
			}
		}
	}

	size := 1
	if len(q.Levels) > 0 {
		size = q.LevelSize(0)
	}
	return gpu.ImageDesc{
		Label:    "Env map qtree",
		Width:    size,
		Height:   size,
		Layers:   1,
		MipCount: len(levels),
		Format:   gpu.FormatRGBA32F,
	}, stage, regions
}
