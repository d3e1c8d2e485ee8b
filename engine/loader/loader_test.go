package loader

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Carmen-Shannon/oxy-trace/engine/light"
	"github.com/Carmen-Shannon/oxy-trace/engine/material"
	"github.com/Carmen-Shannon/oxy-trace/engine/model"
	"github.com/Carmen-Shannon/oxy-trace/engine/scene"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// triangleDoc places one triangle at (1,0,5) through a parent and a child node. Primitive 0
// is a pure emitter, primitive 1 a blended surface with a 2x2 texture. The buffer and image
// fields are filled by format.
const triangleDoc = `{
  "asset": {"version": "2.0"},
  "scene": 0,
  "scenes": [{"name": "triangle", "nodes": [0]}],
  "nodes": [
    {"name": "root", "translation": [0, 0, 5], "children": [1]},
    {"name": "tri", "mesh": 0, "translation": [1, 0, 0]}
  ],
  "meshes": [{"name": "tri", "primitives": [
    {"attributes": {"POSITION": 0, "TEXCOORD_0": 1}, "indices": 2, "material": 0},
    {"attributes": {"POSITION": 0, "TEXCOORD_0": 1}, "indices": 2, "material": 1}
  ]}],
  "materials": [
    {"name": "lamp", "pbrMetallicRoughness": {"baseColorFactor": [0, 0, 0, 1]},
     "emissiveFactor": [1, 0.5, 0.25],
     "extensions": {"KHR_materials_emissive_strength": {"emissiveStrength": 4}}},
    {"name": "leaf", "alphaMode": "BLEND", "doubleSided": true,
     "pbrMetallicRoughness": {"baseColorTexture": {"index": 0}, "metallicFactor": 0, "roughnessFactor": 0.7}}
  ],
  "textures": [{"source": 0}],
  "images": [{%s}],
  "accessors": [
    {"bufferView": 0, "componentType": 5126, "count": 3, "type": "VEC3"},
    {"bufferView": 1, "componentType": 5126, "count": 3, "type": "VEC2"},
    {"bufferView": 2, "componentType": 5123, "count": 3, "type": "SCALAR"}
  ],
  "bufferViews": [
    {"buffer": 0, "byteOffset": 0, "byteLength": 36},
    {"buffer": 0, "byteOffset": 36, "byteLength": 24},
    {"buffer": 0, "byteOffset": 60, "byteLength": 6}
  ],
  "buffers": [{"byteLength": 68%s}]
}`

func triangleBuffer(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	floats := []float32{
		0, 0, 0, 1, 0, 0, 0, 1, 0,
		0, 0, 1, 0, 0, 1,
	}
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, floats))
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, []uint16{0, 1, 2, 0}))
	return buf.Bytes()
}

// leafPNG is 2x2 white with one half-transparent texel.
func leafPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	for y := range 2 {
		for x := range 2 {
			img.SetNRGBA(x, y, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
		}
	}
	img.SetNRGBA(1, 1, color.NRGBA{R: 255, G: 255, B: 255, A: 128})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func dataURI(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// embeddedTriangle returns the document with the buffer and image inlined. The image URI
// carries no MIME type so it has to be sniffed.
func embeddedTriangle(t *testing.T) string {
	return fmt.Sprintf(triangleDoc,
		fmt.Sprintf(`"uri": %q`, dataURI("", leafPNG(t))),
		fmt.Sprintf(`, "uri": %q`, dataURI("application/octet-stream", triangleBuffer(t))))
}

func glbContainer(jsonData, bin []byte) []byte {
	pad := func(b []byte, with byte) []byte {
		for len(b)%4 != 0 {
			b = append(b, with)
		}
		return b
	}
	jsonData = pad(append([]byte(nil), jsonData...), ' ')
	bin = pad(append([]byte(nil), bin...), 0)

	le := binary.LittleEndian
	out := le.AppendUint32(nil, gltfGLBMagic)
	out = le.AppendUint32(out, gltfGLBVersion)
	out = le.AppendUint32(out, uint32(gltfGLBHeaderSize+2*gltfGLBChunkHeaderSize+len(jsonData)+len(bin)))
	out = le.AppendUint32(out, uint32(len(jsonData)))
	out = le.AppendUint32(out, gltfGLBChunkJSON)
	out = append(out, jsonData...)
	out = le.AppendUint32(out, uint32(len(bin)))
	out = le.AppendUint32(out, gltfGLBChunkBIN)
	return append(out, bin...)
}

func assertTriangleModel(t *testing.T, m model.Model) {
	t.Helper()
	assert.Equal(t, "triangle", m.Name())

	require.Len(t, m.Meshes(), 1)
	mesh := m.Meshes()[0]
	assert.Equal(t, 6, mesh.VertexCount())
	assert.Equal(t, []uint32{0, 1, 2, 3, 4, 5}, mesh.Indices)
	assert.Equal(t, []model.Primitive{
		{First: 0, Count: 3, Material: 0},
		{First: 3, Count: 3, Material: 1},
	}, mesh.Primitives)
	// Missing normals are generated from the winding.
	assert.Equal(t, []float32{1, 0, 0, 0, 0, 1, 1, 0}, mesh.Attributes[8:16])
	assert.Equal(t, [3]float32{0, 0, 0}, mesh.BBox.Min)
	assert.Equal(t, [3]float32{1, 1, 0}, mesh.BBox.Max)
	assert.Equal(t, 2, m.TriangleCount())

	require.Len(t, m.Nodes(), 1)
	node := m.Nodes()[0]
	assert.Equal(t, "tri", node.Name)
	assert.Equal(t, []float32{1, 0, 5}, node.World[12:15])
	b := m.Bounds()
	assert.InDeltaSlice(t, []float32{1, 0, 5}, b.Min[:], 1e-6)
	assert.InDeltaSlice(t, []float32{2, 1, 5}, b.Max[:], 1e-6)

	require.Len(t, m.Materials(), 2)
	lamp, leaf := m.Materials()[0], m.Materials()[1]
	assert.Equal(t, [3]float32{1, 0.5, 0.25}, lamp.Emissive)
	assert.Equal(t, float32(4), lamp.EmissiveStrength)
	assert.Equal(t, model.AlphaBlend, leaf.AlphaMode)
	assert.Equal(t, 0, leaf.BaseColorTexture)
	assert.True(t, leaf.DoubleSided)
	assert.Equal(t, float32(0.7), leaf.Roughness)
	assert.Zero(t, leaf.Metallic)

	require.Len(t, m.Images(), 1)
	img := m.Images()[0]
	assert.Equal(t, "image/png", img.MimeType)
	assert.Equal(t, 2, img.Width)
	require.Len(t, img.Pixels, 16)
	assert.Equal(t, byte(128), img.Pixels[15])
}

func TestLoadReaderTriangle(t *testing.T) {
	l := NewLoader(BackendTypeGLTF, WithDecodeWorkers(2))
	m, err := l.LoadReader("tri", strings.NewReader(embeddedTriangle(t)), false)
	require.NoError(t, err)
	assertTriangleModel(t, m)

	// The cache answers without reading.
	again, err := l.LoadReader("tri", strings.NewReader("not gltf"), false)
	require.NoError(t, err)
	assert.Same(t, m, again)
	assert.Same(t, m, l.Get("tri"))
	assert.Len(t, l.Models(), 1)
}

func TestLoadReaderGLB(t *testing.T) {
	doc := fmt.Sprintf(triangleDoc, fmt.Sprintf(`"uri": %q`, dataURI("image/png", leafPNG(t))), "")
	glb := glbContainer([]byte(doc), triangleBuffer(t))
	require.True(t, IsGLB(glb))

	l := NewLoader(BackendTypeGLTF)
	m, err := l.LoadReader("tri.glb", bytes.NewReader(glb), true)
	require.NoError(t, err)
	assertTriangleModel(t, m)
}

func TestLoadFileWithExternalResources(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tri.bin"), triangleBuffer(t), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "leaf.png"), leafPNG(t), 0o644))
	path := filepath.Join(dir, "tri.gltf")
	doc := fmt.Sprintf(triangleDoc, `"uri": "leaf.png"`, `, "uri": "tri.bin"`)
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	l := NewLoader(BackendTypeGLTF)
	m, err := l.Load(path)
	require.NoError(t, err)
	assertTriangleModel(t, m)

	again, err := l.Load(path)
	require.NoError(t, err)
	assert.Same(t, m, again)

	r, isGLB, err := ReadModelFile(path)
	require.NoError(t, err)
	assert.False(t, isGLB)
	fromReader, err := NewLoader(BackendTypeGLTF).LoadReader("copy", r, isGLB)
	assert.Error(t, err, "relative URIs resolve against the working directory")
	assert.Nil(t, fromReader)

	_, err = l.Load(filepath.Join(dir, "tri.obj"))
	assert.Error(t, err)
	_, err = l.Load(filepath.Join(dir, "missing.gltf"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadRejects(t *testing.T) {
	valid := embeddedTriangle(t)
	tests := []struct {
		name string
		doc  string
	}{
		{"bad json", "{"},
		{"old version", `{"asset": {"version": "1.0"}}`},
		{"accessor past buffer", strings.Replace(valid, `"count": 3, "type": "VEC3"`, `"count": 30, "type": "VEC3"`, 1)},
		{"attribute count mismatch", strings.Replace(valid, `"count": 3, "type": "VEC3"`, `"count": 2, "type": "VEC3"`, 1)},
		{"index past vertices", strings.NewReplacer(
			`"count": 3, "type": "VEC3"`, `"count": 2, "type": "VEC3"`,
			`"count": 3, "type": "VEC2"`, `"count": 2, "type": "VEC2"`,
		).Replace(valid)},
		{"material out of range", strings.Replace(valid, `"indices": 2, "material": 1`, `"indices": 2, "material": 9`, 1)},
		{"missing image", strings.Replace(valid, `"textures": [{"source": 0}]`, `"textures": [{"source": 3}]`, 1)},
		{"node cycle", strings.Replace(valid, `"mesh": 0, "translation"`, `"mesh": 0, "children": [0], "translation"`, 1)},
		{"undecodable image", fmt.Sprintf(triangleDoc,
			fmt.Sprintf(`"uri": %q`, dataURI("image/png", []byte("not a png"))),
			fmt.Sprintf(`, "uri": %q`, dataURI("application/octet-stream", triangleBuffer(t))))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewLoader(BackendTypeGLTF)
			_, err := l.LoadReader(tt.name, strings.NewReader(tt.doc), false)
			assert.Error(t, err)
			assert.Nil(t, l.Get(tt.name))
		})
	}

	_, err := NewLoader(BackendTypeGLTF).LoadReader("short glb", bytes.NewReader([]byte("glTF")), true)
	assert.Error(t, err)
}

func TestInstantiateTriangle(t *testing.T) {
	l := NewLoader(BackendTypeGLTF)
	m, err := l.LoadReader("tri", strings.NewReader(embeddedTriangle(t)), false)
	require.NoError(t, err)

	sc := scene.NewScene(scene.WithWorkerCount(1))
	imp, err := l.Instantiate(sc, m)
	require.NoError(t, err)

	require.Len(t, imp.Materials, 2)
	require.Len(t, imp.Meshes, 1)
	require.Len(t, imp.Instances, 1)
	// Base color keeps its alpha, and the alpha channel gets its own texture.
	assert.Len(t, imp.Textures, 2)

	lamp, err := sc.Material(imp.Materials[0])
	require.NoError(t, err)
	assert.Equal(t, material.KindEmissive, lamp.Kind)
	leaf, err := sc.Material(imp.Materials[1])
	require.NoError(t, err)
	assert.Equal(t, material.KindMix, leaf.Kind)

	// The emitter primitive becomes one triangle light.
	inst, err := sc.MeshInstance(imp.Instances[0])
	require.NoError(t, err)
	require.Len(t, inst.Lights, 1)
	l0 := sc.Lights()[inst.Lights[0]]
	assert.Equal(t, light.KindTriangle, l0.Kind)
	assert.Equal(t, [3]float32{4, 2, 1}, l0.Color)

	for _, h := range imp.Textures {
		_, err := sc.AtlasTexture(h)
		assert.NoError(t, err)
	}

	require.NoError(t, sc.Finalize())
	st := sc.Stats()
	assert.Equal(t, 1, st.Meshes)
	assert.Equal(t, 1, st.Instances)
	assert.Equal(t, 2, st.Textures)

	// A second instantiation creates independent objects.
	imp2, err := l.Instantiate(sc, m)
	require.NoError(t, err)
	assert.NotEqual(t, imp.Meshes[0], imp2.Meshes[0])
	assert.Equal(t, 2, sc.Stats().Instances)
}

func TestImportIntoDefaults(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, []float32{0, 0, 0, 1, 0, 0, 0, 1, 0}))
	doc := fmt.Sprintf(`{
  "asset": {"version": "2.0"},
  "meshes": [
    {"primitives": [{"attributes": {"POSITION": 0}}]},
    {"primitives": [{"attributes": {"POSITION": 0}, "mode": 1}]}
  ],
  "accessors": [{"bufferView": 0, "componentType": 5126, "count": 3, "type": "VEC3"}],
  "bufferViews": [{"buffer": 0, "byteLength": 36}],
  "buffers": [{"byteLength": 36, "uri": %q}]
}`, dataURI("application/octet-stream", buf.Bytes()))

	dir := t.TempDir()
	path := filepath.Join(dir, "plain.gltf")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	l := NewLoader(BackendTypeGLTF)
	sc := scene.NewScene(scene.WithWorkerCount(1))
	imp, err := l.ImportInto(sc, path)
	require.NoError(t, err)

	m := l.Get(path)
	require.NotNil(t, m)
	assert.Equal(t, "plain", m.Name())
	require.Len(t, m.Meshes(), 2)
	assert.Equal(t, []uint32{0, 1, 2}, m.Meshes()[0].Indices)
	assert.Empty(t, m.Meshes()[1].Primitives, "line primitives are skipped")

	// Without nodes every mesh is placed once; the empty mesh is not added.
	require.Len(t, m.Nodes(), 2)
	assert.Equal(t, scene.InvalidMeshHandle, imp.Meshes[1])
	assert.Len(t, imp.Instances, 1)
	assert.Empty(t, imp.Textures)

	require.Len(t, imp.Materials, 1, "a default material is added for primitives without one")
	def, err := sc.Material(imp.Materials[0])
	require.NoError(t, err)
	assert.Equal(t, material.KindPrincipled, def.Kind)
	assert.Equal(t, [3]float32{1, 1, 1}, def.BaseColor)

	require.NoError(t, sc.Finalize())
}

func TestMaxTextureSizeScalesImages(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 64, 16))
	for i := range img.Pix {
		img.Pix[i] = 0xFF
	}
	var pngData bytes.Buffer
	require.NoError(t, png.Encode(&pngData, img))
	doc := fmt.Sprintf(triangleDoc,
		fmt.Sprintf(`"uri": %q`, dataURI("image/png", pngData.Bytes())),
		fmt.Sprintf(`, "uri": %q`, dataURI("application/octet-stream", triangleBuffer(t))))

	l := NewLoader(BackendTypeGLTF, WithMaxTextureSize(16))
	m, err := l.LoadReader("big", strings.NewReader(doc), false)
	require.NoError(t, err)
	got := m.Images()[0]
	assert.Equal(t, 16, got.Width)
	assert.Equal(t, 4, got.Height)
	assert.Len(t, got.Pixels, 16*4*4)
}

func TestSparseAccessor(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, []float32{0, 0, 0, 1, 0, 0, 0, 1, 0}))
	buf.Write([]byte{2, 0, 0, 0})
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, []float32{0, 2, 0}))
	doc := fmt.Sprintf(`{
  "asset": {"version": "2.0"},
  "meshes": [{"primitives": [{"attributes": {"POSITION": 0}}]}],
  "accessors": [{"bufferView": 0, "componentType": 5126, "count": 3, "type": "VEC3",
    "sparse": {"count": 1, "indices": {"bufferView": 1, "componentType": 5121}, "values": {"bufferView": 2}}}],
  "bufferViews": [
    {"buffer": 0, "byteLength": 36},
    {"buffer": 0, "byteOffset": 36, "byteLength": 1},
    {"buffer": 0, "byteOffset": 40, "byteLength": 12}
  ],
  "buffers": [{"byteLength": 52, "uri": %q}]
}`, dataURI("application/octet-stream", buf.Bytes()))

	m, err := NewLoader(BackendTypeGLTF).LoadReader("sparse", strings.NewReader(doc), false)
	require.NoError(t, err)
	mesh := m.Meshes()[0]
	assert.Equal(t, []float32{0, 2, 0}, mesh.Attributes[16:19])
	assert.Equal(t, [3]float32{1, 2, 0}, mesh.BBox.Max)

	bad := strings.Replace(doc, `"componentType": 5121}`, `"componentType": 5126}`, 1)
	_, err = NewLoader(BackendTypeGLTF).LoadReader("bad sparse", strings.NewReader(bad), false)
	assert.Error(t, err)
}
