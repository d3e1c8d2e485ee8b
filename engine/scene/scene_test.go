package scene

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-trace/common"
	"github.com/Carmen-Shannon/oxy-trace/engine/environment"
	"github.com/Carmen-Shannon/oxy-trace/engine/gpu"
	"github.com/Carmen-Shannon/oxy-trace/engine/light"
	"github.com/Carmen-Shannon/oxy-trace/engine/material"
	"github.com/Carmen-Shannon/oxy-trace/engine/texture"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func translation(x, y, z float32) [16]float32 {
	m := common.IdentityMatrix()
	m[12], m[13], m[14] = x, y, z
	return m
}

// twoTriangles returns two separate triangles spanning (-1,0,-1) to (1,2,1) in the
// PxyzNxyzTuv layout.
func twoTriangles() ([]float32, []uint32) {
	attrs := []float32{
		-1, 0, -1, 0, 0, 1, 0, 0,
		1, 0, -1, 0, 0, 1, 1, 0,
		0, 2, -1, 0, 0, 1, 0.5, 1,
		-1, 0, 1, 0, 0, 1, 0, 0,
		1, 0, 1, 0, 0, 1, 1, 0,
		0, 2, 1, 0, 0, 1, 0.5, 1,
	}
	return attrs, []uint32{0, 1, 2, 3, 4, 5}
}

func newTestScene(t *testing.T, opts ...SceneBuilderOption) Scene {
	t.Helper()
	opts = append([]SceneBuilderOption{WithAtlasPageSize(256), WithWorkerCount(2)}, opts...)
	return NewScene(opts...)
}

func addDiffuse(t *testing.T, s Scene) material.Handle {
	t.Helper()
	h, err := s.AddMaterial(material.NewShadingNodeDesc(material.KindDiffuse))
	require.NoError(t, err)
	return h
}

func addTwoTriangleMesh(t *testing.T, s Scene, front, back material.Handle) MeshHandle {
	t.Helper()
	attrs, indices := twoTriangles()
	h, err := s.AddMesh(NewMeshDesc(LayoutPxyzNxyzTuv, attrs, indices, WithShape(front, back, 0, 6)))
	require.NoError(t, err)
	return h
}

func rgbaFill(w, h int, px [4]byte) []byte {
	out := make([]byte, w*h*4)
	for i := 0; i < w*h; i++ {
		copy(out[i*4:], px[:])
	}
	return out
}

func TestNewSceneDefaults(t *testing.T) {
	s := NewScene()
	assert.Equal(t, StateBuilding, s.State())
	assert.Equal(t, InvalidRoot, s.TLASRoot())
	assert.Equal(t, light.InvalidHandle, s.EnvLight())
	assert.Nil(t, s.EnvQTreeImage())
	assert.Equal(t, texture.InvalidHandle, s.GetEnvironment().EnvMap)
	assert.Zero(t, s.Stats().Nodes)
}

func TestNewScenePanics(t *testing.T) {
	assert.PanicsWithValue(t, "scene: NewScene requires a non-nil Device", func() {
		NewScene(WithDevice(nil))
	})
	assert.Panics(t, func() { NewScene(WithAtlasPageSize(8)) })
	assert.Panics(t, func() { NewScene(WithAtlasMaxPages(0)) })
	assert.Panics(t, func() { NewScene(WithAtlasMaxPages(texture.MaxAtlasPages + 1)) })
}

func TestAddMeshEndToEnd(t *testing.T) {
	s := newTestScene(t)
	diffuse := addDiffuse(t, s)
	mh := addTwoTriangleMesh(t, s, diffuse, diffuse)

	m, err := s.Mesh(mh)
	require.NoError(t, err)
	assert.Equal(t, [3]float32{-1, 0, -1}, m.BBox.Min)
	assert.Equal(t, [3]float32{1, 2, 1}, m.BBox.Max)
	assert.Equal(t, uint32(2), m.TriCount)
	assert.Equal(t, uint32(6), m.VertexCount)
	assert.NotZero(t, m.NodeCount)

	recs := s.TriMaterials()
	require.Len(t, recs, 2)
	for _, r := range recs {
		assert.True(t, r.FrontSolid())
		assert.True(t, r.BackSolid())
		assert.Equal(t, diffuse, r.FrontMaterial())
		assert.Equal(t, diffuse, r.BackMaterial())
	}

	nodes := s.Nodes()
	require.Len(t, nodes, int(m.NodeCount))
	assert.True(t, nodes[m.NodeOffset].Bounds().Contains(m.BBox, 1e-5))
	assert.Len(t, s.TriIndices(), 2)
	assert.Len(t, s.Triangles(), 2)
	assert.Len(t, s.VertexIndices(), 6)

	for _, v := range s.Vertices() {
		assert.InDelta(t, 1, common.Length3(v.Tangent), 1e-4)
		assert.InDelta(t, 0, common.Dot3(v.Tangent, v.Normal), 1e-4)
	}

	ih, err := s.AddMeshInstance(mh, common.IdentityMatrix())
	require.NoError(t, err)
	require.NoError(t, s.Finalize())
	assert.Equal(t, StateFinalized, s.State())
	assert.Equal(t, uint32(m.NodeCount), s.TLASRoot())
	assert.Equal(t, []uint32{uint32(ih)}, s.InstanceIndices())

	_, err = s.AddSphereLight(light.NewSphereDesc([3]float32{}, 1))
	require.NoError(t, err)
	assert.Equal(t, StateBuilding, s.State(), "mutations return the scene to building")
}

func TestAddMeshTransparentSide(t *testing.T) {
	s := newTestScene(t)
	diffuse := addDiffuse(t, s)
	glass := s.AddPrincipledMaterial(material.NewPrincipledDesc(material.WithPrincipledAlpha(0.5, texture.InvalidHandle)))
	addTwoTriangleMesh(t, s, glass, diffuse)

	for _, r := range s.TriMaterials() {
		assert.False(t, r.FrontSolid())
		assert.True(t, r.BackSolid())
		assert.Equal(t, glass, r.FrontMaterial())
	}
}

func TestAddMeshUncoveredTriangles(t *testing.T) {
	s := newTestScene(t)
	diffuse := addDiffuse(t, s)
	attrs, indices := twoTriangles()
	_, err := s.AddMesh(NewMeshDesc(LayoutPxyzNxyzTuv, attrs, indices, WithShape(diffuse, diffuse, 3, 3)))
	require.NoError(t, err)

	recs := s.TriMaterials()
	require.Len(t, recs, 2)
	assert.Equal(t, TriMaterial{Front: TriMaterialNoMaterial, Back: TriMaterialNoMaterial}, recs[0])
	assert.Equal(t, diffuse, recs[1].FrontMaterial())
}

func TestAddMeshValidation(t *testing.T) {
	s := newTestScene(t)
	diffuse := addDiffuse(t, s)
	attrs, indices := twoTriangles()

	tests := []struct {
		name string
		desc MeshDesc
		err  error
	}{
		{"unknown layout", NewMeshDesc(Layout(9), attrs, indices), ErrInvalidMesh},
		{"ragged attributes", NewMeshDesc(LayoutPxyzNxyzTuv, attrs[:7], indices), ErrInvalidMesh},
		{"partial triangle", NewMeshDesc(LayoutPxyzNxyzTuv, attrs, indices[:4]), ErrInvalidMesh},
		{"index out of range", NewMeshDesc(LayoutPxyzNxyzTuv, attrs, []uint32{0, 1, 6}), ErrInvalidMesh},
		{"base vertex out of range", NewMeshDesc(LayoutPxyzNxyzTuv, attrs, indices, WithBaseVertex(1)), ErrInvalidMesh},
		{"shape past end", NewMeshDesc(LayoutPxyzNxyzTuv, attrs, indices, WithShape(diffuse, diffuse, 3, 6)), ErrInvalidShape},
		{"unaligned shape", NewMeshDesc(LayoutPxyzNxyzTuv, attrs, indices, WithShape(diffuse, diffuse, 1, 3)), ErrInvalidShape},
		{"missing material", NewMeshDesc(LayoutPxyzNxyzTuv, attrs, indices, WithShape(diffuse, material.Handle(99), 0, 6)), material.ErrInvalidHandle},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := s.AddMesh(tt.desc)
			assert.ErrorIs(t, err, tt.err)
			assert.Equal(t, InvalidMeshHandle, h)
		})
	}

	st := s.Stats()
	assert.Zero(t, st.Meshes)
	assert.Zero(t, st.Triangles)
	assert.Zero(t, st.Nodes)
	assert.Zero(t, st.Vertices)
}

func TestAddMeshPoolOffsets(t *testing.T) {
	s := newTestScene(t)
	diffuse := addDiffuse(t, s)
	first := addTwoTriangleMesh(t, s, diffuse, diffuse)
	second := addTwoTriangleMesh(t, s, diffuse, diffuse)

	a, err := s.Mesh(first)
	require.NoError(t, err)
	b, err := s.Mesh(second)
	require.NoError(t, err)

	assert.Equal(t, a.NodeOffset+a.NodeCount, b.NodeOffset)
	assert.Equal(t, a.TriIndexOffset+a.TriIndexCount, b.TriIndexOffset)
	assert.Equal(t, uint32(2), b.TriOffset)
	assert.Equal(t, uint32(6), b.VertexOffset)

	refs := s.TriIndices()
	for _, r := range refs[b.TriIndexOffset : b.TriIndexOffset+b.TriIndexCount] {
		assert.GreaterOrEqual(t, r, b.TriOffset)
	}
	for _, v := range s.VertexIndices()[6:] {
		assert.GreaterOrEqual(t, v, b.VertexOffset)
	}
	assert.Equal(t, []MeshHandle{first, second}, s.Meshes())
}

func TestHardwareRTSkipsBottomLevel(t *testing.T) {
	s := newTestScene(t, WithHardwareRT(true))
	diffuse := addDiffuse(t, s)
	mh := addTwoTriangleMesh(t, s, diffuse, diffuse)

	m, err := s.Mesh(mh)
	require.NoError(t, err)
	assert.Zero(t, m.NodeCount)
	assert.Equal(t, [3]float32{1, 2, 1}, m.BBox.Max)
	assert.Empty(t, s.Nodes())
	assert.Len(t, s.TriMaterials(), 2)
}

func TestMeshBoundsIgnoreUnreferencedVertices(t *testing.T) {
	for _, hwrt := range []bool{false, true} {
		s := newTestScene(t, WithHardwareRT(hwrt))
		diffuse := addDiffuse(t, s)
		attrs, indices := twoTriangles()
		attrs = append(attrs, 50, 50, 50, 0, 1, 0, 0, 0)

		mh, err := s.AddMesh(NewMeshDesc(LayoutPxyzNxyzTuv, attrs, indices, WithShape(diffuse, diffuse, 0, 6)))
		require.NoError(t, err)
		m, err := s.Mesh(mh)
		require.NoError(t, err)
		assert.Equal(t, uint32(7), m.VertexCount)
		assert.Equal(t, [3]float32{-1, 0, -1}, m.BBox.Min, "hardware rt=%v", hwrt)
		assert.Equal(t, [3]float32{1, 2, 1}, m.BBox.Max, "hardware rt=%v", hwrt)
		if !hwrt {
			assert.Equal(t, m.BBox, s.Nodes()[m.NodeOffset].Bounds())
		}
	}
}

func TestRemoveMeshInUse(t *testing.T) {
	s := newTestScene(t)
	diffuse := addDiffuse(t, s)
	mh := addTwoTriangleMesh(t, s, diffuse, diffuse)
	ih, err := s.AddMeshInstance(mh, common.IdentityMatrix())
	require.NoError(t, err)

	assert.ErrorIs(t, s.RemoveMesh(mh), ErrMeshInUse)
	require.NoError(t, s.RemoveMeshInstance(ih))
	require.NoError(t, s.RemoveMesh(mh))
	assert.ErrorIs(t, s.RemoveMesh(mh), ErrInvalidHandle)
	_, err = s.Mesh(mh)
	assert.ErrorIs(t, err, ErrInvalidHandle)
}

func TestInstanceTransformRebuildsTLAS(t *testing.T) {
	s := newTestScene(t)
	diffuse := addDiffuse(t, s)
	mh := addTwoTriangleMesh(t, s, diffuse, diffuse)

	a, err := s.AddMeshInstance(mh, common.IdentityMatrix())
	require.NoError(t, err)
	b, err := s.AddMeshInstance(mh, translation(0, 5, 0))
	require.NoError(t, err)
	nodeCount := len(s.Nodes())

	require.NoError(t, s.SetMeshInstanceTransform(b, translation(10, 0, 0)))
	inst, err := s.MeshInstance(b)
	require.NoError(t, err)
	assert.Equal(t, [3]float32{9, 0, -1}, inst.BBox.Min)
	assert.Equal(t, [3]float32{11, 2, 1}, inst.BBox.Max)

	nodes := s.Nodes()
	assert.Len(t, nodes, nodeCount, "the previous top level is reclaimed")
	root := nodes[s.TLASRoot()].Bounds()
	assert.True(t, root.Contains(inst.BBox, 1e-4))
	assert.ElementsMatch(t, []uint32{uint32(a), uint32(b)}, s.InstanceIndices())

	xf := s.Transforms()[inst.Transform]
	assert.Equal(t, translation(10, 0, 0), xf.Matrix)
	assert.InDelta(t, -10, xf.Inverse[12], 1e-5)

	var singular [16]float32
	assert.ErrorIs(t, s.SetMeshInstanceTransform(b, singular), ErrSingularTransform)
	unchanged, err := s.MeshInstance(b)
	require.NoError(t, err)
	assert.Equal(t, inst.BBox, unchanged.BBox)

	_, err = s.AddMeshInstance(mh, singular)
	assert.ErrorIs(t, err, ErrSingularTransform)
	_, err = s.AddMeshInstance(MeshHandle(42), common.IdentityMatrix())
	assert.ErrorIs(t, err, ErrInvalidHandle)

	require.NoError(t, s.RemoveMeshInstance(a))
	require.NoError(t, s.RemoveMeshInstance(b))
	assert.Equal(t, InvalidRoot, s.TLASRoot())
	assert.Empty(t, s.InstanceIndices())
}

func TestEmissiveTrianglesBecomeLights(t *testing.T) {
	s := newTestScene(t)
	diffuse := addDiffuse(t, s)
	emissive, err := s.AddMaterial(material.NewShadingNodeDesc(material.KindEmissive,
		material.WithBaseColor([3]float32{1, 0.5, 0.25}),
		material.WithStrength(4),
		material.WithMultipleImportance(true)))
	require.NoError(t, err)
	mh := addTwoTriangleMesh(t, s, emissive, diffuse)

	ih, err := s.AddMeshInstance(mh, translation(0, 1, 0))
	require.NoError(t, err)
	inst, err := s.MeshInstance(ih)
	require.NoError(t, err)
	require.Len(t, inst.Lights, 2)

	lights := s.Lights()
	for i, h := range inst.Lights {
		l := lights[h]
		assert.Equal(t, light.KindTriangle, l.Kind)
		assert.Equal(t, uint32(i), l.TriIndex)
		assert.Equal(t, inst.Transform, l.XformIndex)
		assert.Equal(t, [3]float32{4, 2, 1}, l.Color)
	}
	assert.ElementsMatch(t, inst.Lights, s.LightIndices())
	assert.Empty(t, s.VisibleLights())

	// Removing one triangle light by hand detaches it from the instance.
	require.NoError(t, s.RemoveLight(inst.Lights[0]))
	inst, err = s.MeshInstance(ih)
	require.NoError(t, err)
	assert.Len(t, inst.Lights, 1)

	require.NoError(t, s.RemoveMeshInstance(ih))
	assert.Empty(t, s.LightIndices())
	assert.Zero(t, s.Stats().Lights)
}

func TestEmissiveWithoutImportanceAddsNoLights(t *testing.T) {
	s := newTestScene(t)
	emissive, err := s.AddMaterial(material.NewShadingNodeDesc(material.KindEmissive, material.WithStrength(2)))
	require.NoError(t, err)
	mh := addTwoTriangleMesh(t, s, emissive, emissive)

	ih, err := s.AddMeshInstance(mh, common.IdentityMatrix())
	require.NoError(t, err)
	inst, err := s.MeshInstance(ih)
	require.NoError(t, err)
	assert.Empty(t, inst.Lights)
	assert.Empty(t, s.LightIndices())
}

func TestLightLists(t *testing.T) {
	s := newTestScene(t)

	sun, err := s.AddDirectionalLight(light.NewDirectionalDesc([3]float32{0, -2, 0}, 0))
	require.NoError(t, err)
	sphere, err := s.AddSphereLight(light.NewSphereDesc([3]float32{0, 1, 0}, 0.5))
	require.NoError(t, err)
	portal, err := s.AddRectLight(light.NewRectDesc(1, 1, light.WithSkyPortal(true), light.WithVisible(false)), translation(0, 3, 0))
	require.NoError(t, err)
	spot, err := s.AddSpotLight(light.NewSpotDesc([3]float32{}, [3]float32{0, -1, 0}, 0.1, 45, 0.2))
	require.NoError(t, err)
	disk, err := s.AddDiskLight(light.NewDiskDesc(1, 1), common.IdentityMatrix())
	require.NoError(t, err)
	line, err := s.AddLineLight(light.NewLineDesc(0.1, 1), common.IdentityMatrix())
	require.NoError(t, err)

	assert.Equal(t, []light.Handle{sun, sphere, portal, spot, disk, line}, s.LightIndices())
	assert.Equal(t, []light.Handle{sphere, spot, disk, line}, s.VisibleLights())
	assert.Equal(t, []light.Handle{portal}, s.BlockerLights())
	assert.Equal(t, [3]float32{0, 1, 0}, s.Lights()[sun].Direction)
	assert.Equal(t, light.KindSpot, s.Lights()[spot].Kind)

	require.NoError(t, s.RemoveLight(sphere))
	require.NoError(t, s.RemoveLight(portal))
	assert.Equal(t, []light.Handle{sun, spot, disk, line}, s.LightIndices())
	assert.Equal(t, []light.Handle{spot, disk, line}, s.VisibleLights())
	assert.Empty(t, s.BlockerLights())
	assert.Zero(t, s.Lights()[sphere], "freed slots marshal as zero")

	assert.ErrorIs(t, s.RemoveLight(sphere), ErrInvalidHandle)

	_, err = s.AddSphereLight(light.NewSphereDesc([3]float32{}, -1))
	assert.ErrorIs(t, err, light.ErrInvalidDesc)
	assert.Len(t, s.LightIndices(), 4)
}

func TestAtlasOverflow(t *testing.T) {
	s := NewScene(WithAtlasPageSize(16), WithAtlasMaxPages(1), WithWorkerCount(1))

	first := s.AddTexture(texture.NewDesc(texture.FormatRGBA8, 14, 14, rgbaFill(14, 14, [4]byte{255, 0, 0, 255})))
	require.NotEqual(t, texture.InvalidHandle, first)
	second := s.AddTexture(texture.NewDesc(texture.FormatRGBA8, 14, 14, rgbaFill(14, 14, [4]byte{0, 255, 0, 255})))
	assert.Equal(t, texture.InvalidHandle, second)
	assert.Equal(t, 1, s.Stats().Textures)

	tooBig := s.AddTexture(texture.NewDesc(texture.FormatRGBA8, 32, 32, rgbaFill(32, 32, [4]byte{})))
	assert.Equal(t, texture.InvalidHandle, tooBig)

	_, err := s.AtlasTexture(second)
	assert.ErrorIs(t, err, ErrInvalidHandle)
	rec, err := s.AtlasTexture(first)
	require.NoError(t, err)
	w, h := rec.Size()
	assert.Equal(t, 14, w)
	assert.Equal(t, 14, h)
}

func TestAtlasUpload(t *testing.T) {
	dev := gpu.NewMemoryDevice()
	s := newTestScene(t, WithDevice(dev), WithTextureCompression(false))

	rgba := s.AddTexture(texture.NewDesc(texture.FormatRGBA8, 8, 8, rgbaFill(8, 8, [4]byte{1, 2, 3, 4})))
	rgb := s.AddTexture(texture.NewDesc(texture.FormatRGB8, 4, 4, make([]byte, 48), texture.WithSRGB(true)))
	require.NotEqual(t, texture.InvalidHandle, rgba)
	require.NotEqual(t, texture.InvalidHandle, rgb)

	rec, err := s.AtlasTexture(rgb)
	require.NoError(t, err)
	assert.Equal(t, uint8(texture.AtlasRGB), rec.Atlas)
	assert.True(t, rec.SRGB())

	assert.Nil(t, s.AtlasImage(texture.AtlasRGBA))
	require.NoError(t, s.Finalize())

	img := s.AtlasImage(texture.AtlasRGBA)
	require.NotNil(t, img)
	assert.Equal(t, 1, img.Desc().Layers)
	assert.Equal(t, 256, img.Desc().Width)
	assert.Equal(t, gpu.FormatRGBA8, s.AtlasImage(texture.AtlasRGB).Desc().Format, "RGB pages are widened")
	assert.Nil(t, s.AtlasImage(texture.AtlasR))
	uploads := dev.Uploads()
	assert.Equal(t, 2, uploads)

	// Clean pages are not uploaded again.
	require.NoError(t, s.Finalize())
	assert.Equal(t, uploads, dev.Uploads())
	assert.Len(t, s.AtlasTextures(), 2)
}

func TestDeferredAtlasMips(t *testing.T) {
	dev := gpu.NewMemoryDevice(gpu.WithCaps(gpu.Caps{BlitSupported: true, MaxImageSize: 16384}))
	s := newTestScene(t, WithDevice(dev))

	h := s.AddTexture(texture.NewDesc(texture.FormatRGBA8, 16, 16, rgbaFill(16, 16, [4]byte{9, 9, 9, 255}), texture.WithMipmaps(true)))
	require.NotEqual(t, texture.InvalidHandle, h)

	before, err := s.AtlasTexture(h)
	require.NoError(t, err)
	assert.True(t, before.HasMips())
	assert.Equal(t, before.Pos[0], before.Pos[1], "mips are deferred to Finalize")

	require.NoError(t, s.Finalize())
	after, err := s.AtlasTexture(h)
	require.NoError(t, err)
	assert.NotEqual(t, after.Pos[0], after.Pos[1])
}

func TestBindlessTextures(t *testing.T) {
	dev := gpu.NewMemoryDevice()
	s := newTestScene(t, WithDevice(dev), WithBindlessTextures(true))

	rgb := s.AddTexture(texture.NewDesc(texture.FormatRGB8, 8, 8, make([]byte, 8*8*3), texture.WithSRGB(true)))
	require.NotEqual(t, texture.InvalidHandle, rgb)
	assert.Equal(t, texture.TexYCoCgBit|texture.TexSRGBBit, rgb.Flags())

	img, err := s.BindlessImage(rgb)
	require.NoError(t, err)
	assert.Equal(t, gpu.FormatBC3, img.Desc().Format)

	plain := s.AddTexture(texture.NewDesc(texture.FormatRGBA8, 8, 8, rgbaFill(8, 8, [4]byte{}), texture.WithoutCompression()))
	require.NotEqual(t, texture.InvalidHandle, plain)
	assert.Zero(t, plain.Flags())
	assert.Equal(t, uint32(1), plain.Index())
	assert.Equal(t, 2, dev.LiveImages())

	_, err = s.AtlasTexture(plain)
	assert.ErrorIs(t, err, ErrInvalidHandle)
	_, err = s.BindlessImage(texture.InvalidHandle)
	assert.ErrorIs(t, err, ErrInvalidHandle)

	bad := s.AddTexture(texture.NewDesc(texture.FormatRGBA8, 8, 8, nil))
	assert.Equal(t, texture.InvalidHandle, bad)
	assert.Equal(t, 2, dev.LiveImages())
}

func TestSingleChannelNormalMapIsRejected(t *testing.T) {
	for _, bindless := range []bool{false, true} {
		s := newTestScene(t, WithBindlessTextures(bindless))
		h := s.AddTexture(texture.NewDesc(texture.FormatR8, 8, 8, make([]byte, 64), texture.WithNormalMap(true)))
		assert.Equal(t, texture.InvalidHandle, h, "bindless=%v", bindless)
		assert.Zero(t, s.Stats().Textures)

		rg := s.AddTexture(texture.NewDesc(texture.FormatRG8, 8, 8, make([]byte, 128), texture.WithNormalMap(true)))
		assert.NotEqual(t, texture.InvalidHandle, rg, "bindless=%v", bindless)
	}
}

func TestFinalizeEnvironmentWithoutMap(t *testing.T) {
	dev := gpu.NewMemoryDevice()
	s := newTestScene(t, WithDevice(dev))
	s.SetEnvironment(environment.NewDesc(environment.WithEnvColor(1, 1, 1)))

	require.NoError(t, s.Finalize())
	env := s.EnvLight()
	require.NotEqual(t, light.InvalidHandle, env)
	assert.Equal(t, light.KindEnvironment, s.Lights()[env].Kind)
	assert.Empty(t, s.EnvQTree().Levels)

	img := s.EnvQTreeImage()
	require.NotNil(t, img)
	assert.Equal(t, 1, img.Desc().Width)
	assert.Equal(t, 1, img.Desc().MipCount)
	assert.Equal(t, gpu.FormatRGBA32F, img.Desc().Format)

	// Refinalizing replaces the light and the image instead of accumulating them.
	require.NoError(t, s.Finalize())
	assert.Len(t, s.LightIndices(), 1)
	assert.Equal(t, 1, dev.LiveImages())
	assert.True(t, s.Stats().EnvLightActive)

	s.SetEnvironment(environment.NewDesc(environment.WithEnvColor(1, 0, 1)))
	require.NoError(t, s.Finalize())
	assert.Equal(t, light.InvalidHandle, s.EnvLight(), "an environment with a black channel is not sampled")
	assert.Nil(t, s.EnvQTreeImage())
	assert.Empty(t, s.LightIndices())
}

func TestFinalizeEnvironmentMap(t *testing.T) {
	s := newTestScene(t)
	envMap := s.AddTexture(texture.NewDesc(texture.FormatRGBA8, 64, 32, rgbaFill(64, 32, [4]byte{128, 128, 128, 129})))
	require.NotEqual(t, texture.InvalidHandle, envMap)
	s.SetEnvironment(environment.NewDesc(
		environment.WithEnvColor(1, 1, 1),
		environment.WithEnvMap(envMap, 0)))

	require.NoError(t, s.Finalize())
	q := s.EnvQTree()
	assert.NotEmpty(t, q.Levels)
	assert.Positive(t, q.Total)
	assert.Equal(t, len(q.Levels), s.Stats().QTreeLevels)
	assert.Equal(t, len(q.Levels), s.EnvQTreeImage().Desc().MipCount)

	buf := s.MarshalEnvironment()
	require.Len(t, buf, environment.GPUEnvironmentSize)
}

func TestFinalizeRejectsNonRGBAEnvMap(t *testing.T) {
	s := newTestScene(t, WithTextureCompression(false))
	gray := s.AddTexture(texture.NewDesc(texture.FormatR8, 8, 8, make([]byte, 64)))
	require.NotEqual(t, texture.InvalidHandle, gray)
	s.SetEnvironment(environment.NewDesc(environment.WithEnvColor(1, 1, 1), environment.WithEnvMap(gray, 0)))

	assert.ErrorIs(t, s.Finalize(), ErrInvalidEnvMap)
	assert.Equal(t, StateBuilding, s.State())
}

func TestFinalizePhysicalSky(t *testing.T) {
	s := newTestScene(t, WithAtlasPageSize(1024))
	env := environment.NewDesc(environment.WithEnvColor(1, 1, 1))
	env.PhysicalSky = true
	env.BackPhysicalSky = true
	s.SetEnvironment(env)

	// Without a sun the requested maps are cleared.
	require.NoError(t, s.Finalize())
	assert.Equal(t, texture.InvalidHandle, s.GetEnvironment().EnvMap)
	assert.Empty(t, s.EnvQTree().Levels)

	_, err := s.AddDirectionalLight(light.NewDirectionalDesc([3]float32{0, -1, -1}, 0.5))
	require.NoError(t, err)
	require.NoError(t, s.Finalize())

	got := s.GetEnvironment()
	require.NotEqual(t, texture.InvalidHandle, got.EnvMap)
	assert.Equal(t, got.EnvMap, got.BackMap)
	rec, err := s.AtlasTexture(got.EnvMap)
	require.NoError(t, err)
	w, h := rec.Size()
	assert.Equal(t, environment.SkyWidth, w)
	assert.Equal(t, environment.SkyHeight, h)
	assert.NotEmpty(t, s.EnvQTree().Levels)

	// Rebaking replaces the previous sky texture.
	require.NoError(t, s.Finalize())
	assert.Equal(t, 1, s.Stats().Textures)
}

func TestMarshalSizes(t *testing.T) {
	s := newTestScene(t)
	diffuse := addDiffuse(t, s)
	mh := addTwoTriangleMesh(t, s, diffuse, diffuse)
	_, err := s.AddMeshInstance(mh, common.IdentityMatrix())
	require.NoError(t, err)
	_, err = s.AddSphereLight(light.NewSphereDesc([3]float32{}, 1))
	require.NoError(t, err)
	require.NoError(t, s.Finalize())

	assert.Len(t, s.MarshalTriMaterials(), 2*GPUTriMaterialSize)
	assert.Len(t, s.MarshalVertices(), 6*GPUVertexSize)
	assert.Len(t, s.MarshalInstances(), GPUMeshInstanceSize)
	assert.Len(t, s.MarshalTransforms(), GPUTransformSize)
	assert.Len(t, s.MarshalLights(), light.GPULightSize)
	assert.Len(t, s.MarshalMaterials(), material.GPUMaterialSize)
	assert.NotEmpty(t, s.MarshalNodes())
	assert.NotEmpty(t, s.MarshalTriangles())
	assert.Len(t, s.MarshalEnvironment(), environment.GPUEnvironmentSize)
}

func TestRemoveMaterial(t *testing.T) {
	s := newTestScene(t)
	h := addDiffuse(t, s)
	assert.Equal(t, 1, s.MaterialCount())
	require.NoError(t, s.RemoveMaterial(h))
	assert.ErrorIs(t, s.RemoveMaterial(h), ErrInvalidHandle)
	_, err := s.Material(h)
	assert.ErrorIs(t, err, ErrInvalidHandle)
}
