package main

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeLamp(t *testing.T, dir string) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, []float32{0, 0, 0, 1, 0, 0, 0, 1, 0}))
	doc := fmt.Sprintf(`{
  "asset": {"version": "2.0"},
  "meshes": [{"primitives": [{"attributes": {"POSITION": 0}, "material": 0}]}],
  "materials": [{"pbrMetallicRoughness": {"baseColorFactor": [0, 0, 0, 1]}, "emissiveFactor": [1, 1, 1]}],
  "accessors": [{"bufferView": 0, "componentType": 5126, "count": 3, "type": "VEC3"}],
  "bufferViews": [{"buffer": 0, "byteLength": 36}],
  "buffers": [{"byteLength": 36, "uri": "data:application/octet-stream;base64,%s"}]
}`, base64.StdEncoding.EncodeToString(buf.Bytes()))
	path := filepath.Join(dir, "lamp.gltf")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	return path
}

func execute(args ...string) (string, string, error) {
	cmd := newRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestCompileWithConfig(t *testing.T) {
	dir := t.TempDir()
	model := writeLamp(t, dir)
	cfg := filepath.Join(dir, "oxyc.toml")
	require.NoError(t, os.WriteFile(cfg, []byte("workers = 1\nlog_level = \"warn\"\n\n[atlas]\npage_size = 256\n"), 0o644))

	out, _, err := execute("--config", cfg, "--log-level", "debug", "--json", model, model)
	require.NoError(t, err)
	assert.Regexp(t, `(?m)^state\s+Finalized$`, out)
	assert.Regexp(t, `(?m)^instances\s+2$`, out)
	assert.Regexp(t, `(?m)^lights\s+2$`, out)
}

func TestCompileRejects(t *testing.T) {
	dir := t.TempDir()
	model := writeLamp(t, dir)

	_, _, err := execute()
	assert.Error(t, err, "at least one model is required")

	_, _, err = execute("--config", filepath.Join(dir, "oxyc.ini"), model)
	assert.Error(t, err)

	_, _, err = execute("--log-level", "loud", model)
	assert.Error(t, err)

	_, _, err = execute(filepath.Join(dir, "missing.gltf"))
	assert.Error(t, err)
}
