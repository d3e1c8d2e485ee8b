package material

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustAdd(t *testing.T, l Library, d ShadingNodeDesc) Handle {
	t.Helper()
	h, err := l.AddNode(d)
	require.NoError(t, err)
	return h
}

func TestIsSolid(t *testing.T) {
	l := NewLibrary(0)
	a := mustAdd(t, l, NewShadingNodeDesc(KindDiffuse))
	b := mustAdd(t, l, NewShadingNodeDesc(KindDiffuse, WithBaseColor([3]float32{0, 1, 0})))
	tr := mustAdd(t, l, NewShadingNodeDesc(KindTransparent))

	solid := mustAdd(t, l, NewShadingNodeDesc(KindMix, WithStrength(0.5), WithMixChildren(a, b)))
	holed := mustAdd(t, l, NewShadingNodeDesc(KindMix, WithStrength(0.5), WithMixChildren(a, tr)))

	tests := []struct {
		name string
		root Handle
		want bool
	}{
		{"diffuse", a, true},
		{"transparent", tr, false},
		{"mix of two diffuse", solid, true},
		{"mix with transparent", holed, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := l.IsSolid(tt.root)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsSolidNestedTransparent(t *testing.T) {
	l := NewLibrary(0)
	a := mustAdd(t, l, NewShadingNodeDesc(KindGlossy))
	tr := mustAdd(t, l, NewShadingNodeDesc(KindTransparent))
	inner := mustAdd(t, l, NewShadingNodeDesc(KindMix, WithMixChildren(tr, a)))
	outer := mustAdd(t, l, NewShadingNodeDesc(KindMix, WithMixChildren(a, inner)))

	got, err := l.IsSolid(outer)
	require.NoError(t, err)
	assert.False(t, got)
}

func TestIsSolidDanglingChild(t *testing.T) {
	l := NewLibrary(0)
	a := mustAdd(t, l, NewShadingNodeDesc(KindDiffuse))
	b := mustAdd(t, l, NewShadingNodeDesc(KindDiffuse))
	m := mustAdd(t, l, NewShadingNodeDesc(KindMix, WithMixChildren(a, b)))
	l.Remove(b)

	_, err := l.IsSolid(m)
	assert.ErrorIs(t, err, ErrInvalidHandle)
}

func TestIsSolidCycle(t *testing.T) {
	l := NewLibrary(0)
	a := mustAdd(t, l, NewShadingNodeDesc(KindDiffuse))
	m := mustAdd(t, l, NewShadingNodeDesc(KindMix, WithMixChildren(a, a)))

	// The freed slot of a is reused by a Mix pointing back at m.
	l.Remove(a)
	back := mustAdd(t, l, NewShadingNodeDesc(KindMix, WithMixChildren(m, m)))
	require.Equal(t, a, back)

	_, err := l.IsSolid(m)
	assert.ErrorIs(t, err, ErrGraphTooDeep)
}

// diamondChain stacks n Mix nodes, each using the previous one as both children.
func diamondChain(t *testing.T, l Library, leaf Handle, n int) Handle {
	t.Helper()
	h := leaf
	for range n {
		h = mustAdd(t, l, NewShadingNodeDesc(KindMix, WithMixChildren(h, h)))
	}
	return h
}

func TestIsSolidSharedChildren(t *testing.T) {
	l := NewLibrary(0)
	leaf := mustAdd(t, l, NewShadingNodeDesc(KindDiffuse))

	deep := diamondChain(t, l, leaf, 30)
	start := time.Now()
	solid, err := l.IsSolid(deep)
	require.NoError(t, err)
	assert.True(t, solid)
	assert.Less(t, time.Since(start), time.Second, "shared children are expanded once")

	tr := mustAdd(t, l, NewShadingNodeDesc(KindTransparent))
	holed := diamondChain(t, l, tr, 30)
	solid, err = l.IsSolid(holed)
	require.NoError(t, err)
	assert.False(t, solid)

	_, err = l.IsSolid(diamondChain(t, l, leaf, 31))
	assert.NoError(t, err, "the deepest Mix sits at depth 30")
	_, err = l.IsSolid(diamondChain(t, l, leaf, 32))
	assert.ErrorIs(t, err, ErrGraphTooDeep)
}

func TestIsSolidSharedChildReachedDeeper(t *testing.T) {
	l := NewLibrary(0)
	leaf := mustAdd(t, l, NewShadingNodeDesc(KindDiffuse))
	shared := diamondChain(t, l, leaf, 30)

	// The first visit of shared fits the limit; the second one, one level lower, does not.
	lower := mustAdd(t, l, NewShadingNodeDesc(KindMix, WithMixChildren(shared, shared)))
	root := mustAdd(t, l, NewShadingNodeDesc(KindMix, WithMixChildren(shared, lower)))

	_, err := l.IsSolid(root)
	assert.ErrorIs(t, err, ErrGraphTooDeep)

	ok := mustAdd(t, l, NewShadingNodeDesc(KindMix, WithMixChildren(shared, leaf)))
	solid, err := l.IsSolid(ok)
	require.NoError(t, err)
	assert.True(t, solid)
}

func TestAddNodeRejectsMissingMixChild(t *testing.T) {
	l := NewLibrary(0)
	a := mustAdd(t, l, NewShadingNodeDesc(KindDiffuse))

	_, err := l.AddNode(NewShadingNodeDesc(KindMix, WithMixChildren(a, Handle(7))))
	assert.ErrorIs(t, err, ErrInvalidHandle)

	_, err = l.AddNode(NewShadingNodeDesc(KindMix))
	assert.ErrorIs(t, err, ErrInvalidHandle)
	assert.Equal(t, 1, l.Len(), "failed adds leave no nodes behind")
}

func TestAddNodeRejectsPrincipledKind(t *testing.T) {
	l := NewLibrary(0)
	_, err := l.AddNode(NewShadingNodeDesc(KindPrincipled))
	assert.ErrorIs(t, err, ErrInvalidKind)
}

func TestAddNodeQuantizesAndClamps(t *testing.T) {
	l := NewLibrary(0)
	h := mustAdd(t, l, NewShadingNodeDesc(KindDiffuse,
		WithRoughness(-1, invalidTexture),
		WithSheen(4, 0.5),
	))
	n := l.Get(h)
	assert.Equal(t, uint16(0), n.Roughness)
	assert.Equal(t, uint16(65535), n.Sheen)
	assert.Equal(t, uint16(32768), n.SheenTint)
	assert.Equal(t, uint16(65535), n.NormalMapStrength)

	e := mustAdd(t, l, NewShadingNodeDesc(KindEmissive, WithStrength(10), WithMultipleImportance(true)))
	assert.Equal(t, float32(10), l.Get(e).Strength)
	assert.NotZero(t, l.Get(e).Flags&FlagMultipleImportance)
}

func TestPrincipledPlain(t *testing.T) {
	l := NewLibrary(0)
	root := l.AddPrincipled(NewPrincipledDesc())

	assert.Equal(t, 1, l.Len())
	n := l.Get(root)
	assert.Equal(t, KindPrincipled, n.Kind)
	assert.InDelta(t, 1.45, n.IOR, 1e-6)
	assert.Equal(t, uint16(32768), n.Roughness)
	assert.Equal(t, uint16(32768), n.Specular)

	solid, err := l.IsSolid(root)
	require.NoError(t, err)
	assert.True(t, solid)
}

func TestPrincipledAlphaAndEmission(t *testing.T) {
	l := NewLibrary(0)
	root := l.AddPrincipled(NewPrincipledDesc(
		WithPrincipledBase([3]float32{1, 0, 0}, invalidTexture),
		WithPrincipledAlpha(0.5, invalidTexture),
		WithPrincipledEmission([3]float32{1, 1, 1}, 1, false),
	))

	counts := map[Kind]int{}
	for _, n := range l.All() {
		counts[n.Kind]++
	}
	assert.Equal(t, map[Kind]int{KindPrincipled: 1, KindEmissive: 1, KindTransparent: 1, KindMix: 2}, counts)

	top := l.Get(root)
	require.Equal(t, KindMix, top.Kind)
	assert.InDelta(t, 0.5, top.Strength, 1e-6)
	assert.Zero(t, top.Flags&FlagMixAdd)

	children := top.Children()
	assert.Equal(t, KindTransparent, l.Get(children[0]).Kind)

	add := l.Get(children[1])
	require.Equal(t, KindMix, add.Kind)
	assert.NotZero(t, add.Flags&FlagMixAdd)
	inner := add.Children()
	assert.Equal(t, KindPrincipled, l.Get(inner[0]).Kind)
	assert.Equal(t, KindEmissive, l.Get(inner[1]).Kind)
	assert.Equal(t, [3]float32{1, 0, 0}, l.Get(inner[0]).BaseColor)

	solid, err := l.IsSolid(root)
	require.NoError(t, err)
	assert.False(t, solid)
}

func TestPrincipledZeroAlphaIsTransparent(t *testing.T) {
	l := NewLibrary(0)
	root := l.AddPrincipled(NewPrincipledDesc(WithPrincipledAlpha(0, invalidTexture)))

	assert.Equal(t, KindTransparent, l.Get(root).Kind)
	assert.Equal(t, 2, l.Len())
}

func TestPrincipledEmissionNeedsColor(t *testing.T) {
	l := NewLibrary(0)
	l.AddPrincipled(NewPrincipledDesc(WithPrincipledEmission([3]float32{}, 5, true)))
	assert.Equal(t, 1, l.Len())
}

func TestMarshal(t *testing.T) {
	l := NewLibrary(0)
	a := mustAdd(t, l, NewShadingNodeDesc(KindDiffuse))
	b := mustAdd(t, l, NewShadingNodeDesc(KindGlossy))
	mustAdd(t, l, NewShadingNodeDesc(KindMix, WithMixChildren(a, b), WithMixAdd(true)))
	l.Remove(b)

	buf := l.Marshal()
	require.Len(t, buf, 3*GPUMaterialSize)

	var g GPUMaterial
	assert.Equal(t, GPUMaterialSize, g.Size())

	assert.Equal(t, uint32(KindDiffuse), binary.LittleEndian.Uint32(buf[36:]))
	assert.Equal(t, make([]byte, GPUMaterialSize), buf[GPUMaterialSize:2*GPUMaterialSize], "freed slot is zeroed")

	mix := buf[2*GPUMaterialSize:]
	assert.Equal(t, uint32(KindMix)|uint32(FlagMixAdd)<<8, binary.LittleEndian.Uint32(mix[36:]))
	assert.Equal(t, uint32(a), binary.LittleEndian.Uint32(mix[MixMat1*4:]))
	assert.Equal(t, uint32(b), binary.LittleEndian.Uint32(mix[MixMat2*4:]))
}
