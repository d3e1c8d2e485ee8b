package engine

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/Carmen-Shannon/oxy-trace/engine/config"
	"github.com/Carmen-Shannon/oxy-trace/engine/scene"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeLamp writes a glTF file holding one emissive triangle and returns its path.
func writeLamp(t *testing.T) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, []float32{0, 0, 0, 1, 0, 0, 0, 1, 0}))
	doc := fmt.Sprintf(`{
  "asset": {"version": "2.0"},
  "nodes": [{"mesh": 0}],
  "meshes": [{"primitives": [{"attributes": {"POSITION": 0}, "material": 0}]}],
  "materials": [{"pbrMetallicRoughness": {"baseColorFactor": [0, 0, 0, 1]}, "emissiveFactor": [1, 1, 1]}],
  "accessors": [{"bufferView": 0, "componentType": 5126, "count": 3, "type": "VEC3"}],
  "bufferViews": [{"buffer": 0, "byteLength": 36}],
  "buffers": [{"byteLength": 36, "uri": "data:application/octet-stream;base64,%s"}]
}`, base64.StdEncoding.EncodeToString(buf.Bytes()))

	path := filepath.Join(t.TempDir(), "lamp.gltf")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	return path
}

func TestCompile(t *testing.T) {
	path := writeLamp(t)
	e := NewEngine(WithProfiling(true))

	report, err := e.Compile(context.Background(), 3, path, path)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Key)
	require.Len(t, report.Imports, 2)
	assert.Equal(t, scene.StateFinalized, report.Stats.State)
	assert.Equal(t, 2, report.Stats.Instances)
	assert.Equal(t, 2, report.Stats.Meshes)
	assert.Equal(t, 2, report.Stats.Lights)

	assert.Equal(t, []int{3}, e.Keys())
	assert.Len(t, e.Loader().Models(), 1, "both paths share one cached model")

	// Compiling again extends the registered scene.
	report, err = e.Compile(context.Background(), 3, path)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Stats.Instances)
}

func TestCompileErrors(t *testing.T) {
	e := NewEngine()

	_, err := e.Compile(context.Background(), 0, filepath.Join(t.TempDir(), "missing.glb"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = e.Compile(ctx, 1, writeLamp(t))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewSceneAppliesSettings(t *testing.T) {
	s := config.Default()
	s.Workers = 1
	s.Suns = []config.SunSettings{{Direction: [3]float32{0, -1, 0}, Angle: 0.5}}

	e := NewEngine(WithSettings(s))
	assert.Equal(t, 1, e.Settings().Workers)

	sc, err := e.NewScene(7)
	require.NoError(t, err)
	assert.Same(t, sc, e.Scene(7))
	assert.Equal(t, 1, sc.Stats().Lights)
}

func TestSceneRegistry(t *testing.T) {
	a := scene.NewScene(scene.WithWorkerCount(1))
	b := scene.NewScene(scene.WithWorkerCount(1))
	e := NewEngine(WithScene(2, a))
	e.AddScene(-1, b)

	assert.Equal(t, []int{-1, 2}, e.Keys())
	assert.Same(t, a, e.Scene(2))
	assert.Nil(t, e.Scene(5))

	scenes := e.Scenes()
	delete(scenes, 2)
	assert.NotNil(t, e.Scene(2), "Scenes returns a copy")

	e.RemoveScene(2)
	assert.Equal(t, []int{-1}, e.Keys())
}
