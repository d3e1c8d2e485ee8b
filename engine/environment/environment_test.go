package environment

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/Carmen-Shannon/oxy-trace/common"
	"github.com/Carmen-Shannon/oxy-trace/engine/compute_pool"
	"github.com/Carmen-Shannon/oxy-trace/engine/gpu"
	"github.com/Carmen-Shannon/oxy-trace/engine/light"
	"github.com/Carmen-Shannon/oxy-trace/engine/texture"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solidRGBE(w, h int, c [3]float32) []byte {
	texel := common.RGBToRGBE(c)
	out := make([]byte, w*h*4)
	for i := 0; i < w*h; i++ {
		copy(out[i*4:], texel[:])
	}
	return out
}

func levelSum(level [][4]float32) float32 {
	var s float32
	for _, v := range level {
		s += v[0] + v[1] + v[2] + v[3]
	}
	return s
}

// assertCellsConserve checks that every cell of a coarser level holds the sum of its four
// children one level finer.
func assertCellsConserve(t *testing.T, q QTree) {
	t.Helper()
	for i := 0; i+1 < len(q.Levels); i++ {
		n := q.LevelSize(i)
		require.Len(t, q.Levels[i], n*n)
		for y := 0; y < n; y++ {
			for x := 0; x < n; x++ {
				c := q.Levels[i][y*n+x]
				p := q.Levels[i+1][(y/2)*(n/2)+x/2][(x&1)|(y&1)<<1]
				assert.InDelta(t, c[0]+c[1]+c[2]+c[3], p, 1e-3, "level %d cell (%d, %d)", i+1, x, y)
			}
		}
	}
}

func TestNewDescDefaults(t *testing.T) {
	d := NewDesc()
	assert.Equal(t, texture.InvalidHandle, d.EnvMap)
	assert.Equal(t, texture.InvalidHandle, d.BackMap)
	assert.True(t, d.MultipleImportance)
	assert.False(t, d.EnvLit())

	d = NewDesc(WithEnvColor(1, 1, 0), WithEnvMap(3, 0.5), WithPhysicalSky(true, false))
	assert.False(t, d.EnvLit(), "every channel must be positive")
	assert.Equal(t, texture.Handle(3), d.EnvMap)
	assert.Equal(t, float32(0.5), d.EnvMapRotation)
	assert.True(t, d.PhysicalSky)
	assert.False(t, d.BackPhysicalSky)
	assert.True(t, NewDesc(WithEnvColor(1, 1, 1)).EnvLit())
}

func TestQTreeUniformMapIsTrimmed(t *testing.T) {
	w, h := 256, 128
	q := BuildQTree(solidRGBE(w, h, [3]float32{1, 1, 1}), w, h, w, compute_pool.NewComputePool(4))

	// 64 cells per side build six levels; only the four coarsest carry more than 1% each.
	assert.Equal(t, 16, q.Res)
	require.Len(t, q.Levels, 4)
	assert.InDelta(t, 64*64*3, q.Total, 1)

	for i, level := range q.Levels {
		n := q.LevelSize(i)
		assert.Len(t, level, n*n, "level %d", i)
		assert.InDelta(t, q.Total, levelSum(level), 1, "level %d conserves the total", i)
	}
	assert.Equal(t, 1, q.LevelSize(len(q.Levels)-1))
	assertCellsConserve(t, q)
}

func TestQTreeSpikeKeepsEveryLevel(t *testing.T) {
	w, h := 256, 128
	img := make([]byte, w*h*4)
	spike := common.RGBToRGBE([3]float32{100, 100, 100})
	copy(img[4*(40*w+17):], spike[:])

	q := BuildQTree(img, w, h, w, nil)
	assert.Equal(t, 64, q.Res)
	require.Len(t, q.Levels, 6)
	assert.InDelta(t, 300, q.Total, 1)
	for i, level := range q.Levels {
		assert.InDelta(t, q.Total, levelSum(level), 1e-3, "level %d", i)
	}
	assertCellsConserve(t, q)
}

func TestQTreeGradientCellsConserve(t *testing.T) {
	w, h := 128, 64
	img := make([]byte, w*h*4)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			texel := common.RGBToRGBE([3]float32{float32(x) / 16, float32(y) / 8, float32((x*7+y*3)%11) / 4})
			copy(img[4*(y*w+x):], texel[:])
		}
	}
	q := BuildQTree(img, w, h, w, compute_pool.NewComputePool(2))
	require.Greater(t, len(q.Levels), 1)
	assertCellsConserve(t, q)
}

func TestQTreeHonorsPitch(t *testing.T) {
	w, h, pitch := 8, 4, 16
	img := make([]byte, pitch*h*4)
	one := common.RGBToRGBE([3]float32{1, 1, 1})
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			copy(img[4*(y*pitch+x):], one[:])
		}
	}
	q := BuildQTree(img, w, h, pitch, nil)
	assert.Equal(t, 2, q.Res)
	require.Len(t, q.Levels, 1)
	assert.InDelta(t, 4*3, q.Total, 1e-3)
}

func TestQTreeTinyMap(t *testing.T) {
	q := BuildQTree(solidRGBE(2, 2, [3]float32{0.5, 0.5, 0.5}), 2, 2, 2, nil)
	assert.Equal(t, 2, q.Res)
	require.Len(t, q.Levels, 1)
	assert.Len(t, q.Levels[0], 1)
}

func TestQTreeStageLayout(t *testing.T) {
	w, h := 256, 128
	q := BuildQTree(solidRGBE(w, h, [3]float32{1, 1, 1}), w, h, w, nil)
	desc, stage, regions := q.Stage()

	assert.Equal(t, gpu.FormatRGBA32F, desc.Format)
	assert.Equal(t, 8, desc.Width)
	assert.Equal(t, 8, desc.Height)
	assert.Equal(t, 4, desc.MipCount)
	require.Len(t, regions, 4)
	for i, r := range regions {
		assert.Equal(t, i, r.Mip)
		assert.Equal(t, 256, r.BytesPerRow)
		assert.Equal(t, i*4096, r.Offset)
	}
	assert.Len(t, stage, 4*4096)

	first := math.Float32frombits(binary.LittleEndian.Uint32(stage[0:4]))
	assert.Equal(t, q.Levels[0][0][0], first)
	last := math.Float32frombits(binary.LittleEndian.Uint32(stage[regions[3].Offset:]))
	assert.Equal(t, q.Levels[3][0][0], last)

	empty, data, regs := QTree{}.Stage()
	assert.Equal(t, 1, empty.Width)
	assert.Equal(t, 1, empty.MipCount)
	require.Len(t, regs, 1)
	assert.Len(t, data, 4096)
}

func TestBakeSkyWithoutSuns(t *testing.T) {
	sphere, err := light.NewSphere(light.NewSphereDesc([3]float32{0, 10, 0}, 1))
	require.NoError(t, err)

	out := BakeSky([]light.Light{sphere}, 32, 16, nil)
	assert.Len(t, out, 32*16*4)
	for _, b := range out {
		require.Zero(t, b)
	}
}

func TestBakeSkyIsBlueAboveTheHorizon(t *testing.T) {
	sunLight, err := light.NewDirectional(light.NewDirectionalDesc([3]float32{0, -1, 0}, 0, light.WithColor(20, 20, 20)))
	require.NoError(t, err)

	w, h := 32, 16
	out := BakeSky([]light.Light{sunLight}, w, h, compute_pool.NewComputePool(2))

	// Row 4 looks 45 degrees above the horizon.
	o := 4 * (4*w + 3)
	c := common.RGBEToRGB([4]uint8{out[o], out[o+1], out[o+2], out[o+3]})
	assert.Greater(t, c[0], float32(0))
	assert.Greater(t, c[2], c[0], "rayleigh scattering favors blue")
}

func TestBakeSkyUndoesSunNormalization(t *testing.T) {
	hard, err := light.NewDirectional(light.NewDirectionalDesc([3]float32{0, -1, -1}, 0, light.WithColor(5, 5, 5)))
	require.NoError(t, err)
	soft, err := light.NewDirectional(light.NewDirectionalDesc([3]float32{0, -1, -1}, 2, light.WithColor(5, 5, 5)))
	require.NoError(t, err)

	w, h := 16, 8
	a := BakeSky([]light.Light{hard}, w, h, nil)
	b := BakeSky([]light.Light{soft}, w, h, nil)
	o := 4 * (2*w + 5)
	ca := common.RGBEToRGB([4]uint8{a[o], a[o+1], a[o+2], a[o+3]})
	cb := common.RGBEToRGB([4]uint8{b[o], b[o+1], b[o+2], b[o+3]})
	for i := range ca {
		assert.InEpsilon(t, ca[i], cb[i], 0.02)
	}
}

func TestGPUEnvironmentLayout(t *testing.T) {
	d := NewDesc(WithEnvColor(1, 2, 3), WithEnvMap(5, 0.25), WithBackMap(6, 0.5))
	g := NewGPUEnvironment(d, 4, light.Handle(9))
	assert.Equal(t, GPUEnvironmentSize, g.Size())

	buf := g.Marshal()
	require.Len(t, buf, GPUEnvironmentSize)
	assert.Equal(t, float32(2), math.Float32frombits(binary.LittleEndian.Uint32(buf[4:8])))
	assert.Equal(t, uint32(5), binary.LittleEndian.Uint32(buf[12:16]))
	assert.Equal(t, uint32(6), binary.LittleEndian.Uint32(buf[28:32]))
	assert.Equal(t, float32(0.5), math.Float32frombits(binary.LittleEndian.Uint32(buf[36:40])))
	assert.Equal(t, GPUEnvironmentMultipleImportanceBit, binary.LittleEndian.Uint32(buf[40:44]))
	assert.Equal(t, uint32(4), binary.LittleEndian.Uint32(buf[44:48]))
	assert.Equal(t, uint32(9), binary.LittleEndian.Uint32(buf[48:52]))

	g = NewGPUEnvironment(d, 0, light.InvalidHandle)
	assert.Zero(t, g.Flags)
}
