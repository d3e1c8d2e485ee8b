package light

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/Carmen-Shannon/oxy-trace/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const eps = 1e-5

func translation(x, y, z float32) [16]float32 {
	m := common.IdentityMatrix()
	m[12], m[13], m[14] = x, y, z
	return m
}

func TestDirectionalNormalization(t *testing.T) {
	hard, err := NewDirectional(NewDirectionalDesc([3]float32{0, -1, 0}, 0, WithColor(2, 2, 2)))
	require.NoError(t, err)
	assert.Equal(t, KindDirectional, hard.Kind)
	assert.Equal(t, [3]float32{0, 1, 0}, hard.Direction)
	assert.Equal(t, [3]float32{2, 2, 2}, hard.Color)
	assert.False(t, hard.Visible, "directional lights are never visible")
	assert.Zero(t, hard.Angle)

	sun, err := NewDirectional(NewDirectionalDesc([3]float32{0, -1, 0}, 10, WithColor(1, 1, 1)))
	require.NoError(t, err)
	angle := 10 * math.Pi / 360
	assert.InDelta(t, angle, sun.Angle, eps)
	tan := math.Tan(angle)
	assert.InDelta(t, 1/(math.Pi*tan*tan), sun.Color[0], 1e-2)

	_, err = NewDirectional(NewDirectionalDesc([3]float32{0, -1, 0}, -1))
	assert.ErrorIs(t, err, ErrInvalidDesc)
}

func TestSphereAndSpotNormalization(t *testing.T) {
	s, err := NewSphere(NewSphereDesc([3]float32{1, 2, 3}, 0.5))
	require.NoError(t, err)
	assert.InDelta(t, 4*math.Pi*0.25, s.Area, eps)
	assert.Equal(t, float32(-1), s.Spot)
	assert.Equal(t, float32(-1), s.Blend)
	assert.True(t, s.Visible)
	assert.True(t, s.CastShadow)

	sp, err := NewSpot(NewSpotDesc([3]float32{}, [3]float32{0, -1, 0}, 0.5, 90, 0.5, WithVisible(false)))
	require.NoError(t, err)
	assert.Equal(t, KindSpot, sp.Kind)
	assert.InDelta(t, 0.25*math.Pi, sp.Spot, eps)
	assert.InDelta(t, 0.25, sp.Blend, eps)
	assert.InDelta(t, s.Area, sp.Area, eps)
	assert.False(t, sp.Visible)

	_, err = NewSphere(NewSphereDesc([3]float32{}, float32(math.NaN())))
	assert.ErrorIs(t, err, ErrInvalidDesc)
}

func TestAreaLightNormalization(t *testing.T) {
	xf := translation(1, 2, 3)

	r, err := NewRect(NewRectDesc(2, 3, WithSkyPortal(true)), xf)
	require.NoError(t, err)
	assert.Equal(t, [3]float32{1, 2, 3}, r.Position)
	assert.InDelta(t, 6, r.Area, eps)
	assert.Equal(t, [3]float32{2, 0, 0}, r.U)
	assert.Equal(t, [3]float32{0, 0, 3}, r.V)
	assert.True(t, r.SkyPortal)

	d, err := NewDisk(NewDiskDesc(2, 4), xf)
	require.NoError(t, err)
	assert.InDelta(t, 0.25*math.Pi*8, d.Area, eps)
	assert.Equal(t, [3]float32{2, 0, 0}, d.U)
	assert.Equal(t, [3]float32{0, 0, 4}, d.V)

	l, err := NewLine(NewLineDesc(0.1, 2), xf)
	require.NoError(t, err)
	assert.InDelta(t, 2*math.Pi*0.1*2, l.Area, eps)
	assert.Equal(t, [3]float32{1, 0, 0}, l.U)
	assert.Equal(t, [3]float32{0, 1, 0}, l.V)
	assert.Equal(t, float32(0.1), l.Radius)
	assert.Equal(t, float32(2), l.Height)

	_, err = NewRect(NewRectDesc(-1, 1), xf)
	assert.ErrorIs(t, err, ErrInvalidDesc)
}

func TestGPULightLayout(t *testing.T) {
	tri := NewTriangle([3]float32{3, 2, 1}, 42, 7)
	g := ToGPULight(tri)
	assert.Equal(t, GPULightSize, g.Size())
	buf := g.Marshal()
	require.Len(t, buf, GPULightSize)
	assert.Equal(t, uint32(KindTriangle)|GPULightCastShadowBit, binary.LittleEndian.Uint32(buf[0:4]))
	assert.Equal(t, float32(3), math.Float32frombits(binary.LittleEndian.Uint32(buf[4:8])))
	assert.Equal(t, uint32(42), binary.LittleEndian.Uint32(buf[16:20]))
	assert.Equal(t, uint32(7), binary.LittleEndian.Uint32(buf[20:24]))

	line, err := NewLine(NewLineDesc(0.5, 4, WithSkyPortal(true)), translation(0, 1, 0))
	require.NoError(t, err)
	buf = MarshalLights([]Light{{}, line})
	require.Len(t, buf, 2*GPULightSize)
	flags := binary.LittleEndian.Uint32(buf[64:68])
	assert.Equal(t, uint32(KindLine), flags&0x1F)
	assert.NotZero(t, flags&GPULightSkyPortalBit)
	assert.NotZero(t, flags&GPULightVisibleBit)
	assert.Equal(t, float32(1), math.Float32frombits(binary.LittleEndian.Uint32(buf[64+20:])), "position y")
	assert.Equal(t, float32(0.5), math.Float32frombits(binary.LittleEndian.Uint32(buf[64+44:])), "radius")
	assert.Equal(t, float32(4), math.Float32frombits(binary.LittleEndian.Uint32(buf[64+60:])), "height")
}
