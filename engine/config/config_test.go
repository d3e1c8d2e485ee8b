package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/Carmen-Shannon/oxy-trace/engine/environment"
	"github.com/Carmen-Shannon/oxy-trace/engine/light"
	"github.com/Carmen-Shannon/oxy-trace/engine/scene"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tomlSettings = `
bindless = true
workers = 3
log_level = "debug"

[atlas]
page_size = 512

[bvh]
fast_build = true
max_leaf_prims = 4

[environment]
env_color = [0.5, 0.5, 0.5]
physical_sky = true

[[suns]]
direction = [0, -1, 0]
angle = 0.5
`

const yamlSettings = `
compression: false
hardware_rt: true
atlas:
  max_pages: 4
environment:
  env_color: [1, 1, 1]
  multiple_importance: false
suns:
  - direction: [1, -1, 0]
    color: [2, 2, 2]
`

func TestParseTOML(t *testing.T) {
	s, err := Parse([]byte(tomlSettings), FormatTOML)
	require.NoError(t, err)

	assert.True(t, s.Bindless)
	assert.True(t, s.Compression, "absent keys keep their defaults")
	assert.Equal(t, 3, s.Workers)
	assert.Equal(t, 512, s.Atlas.PageSize)
	assert.Equal(t, scene.DefaultAtlasMaxPages, s.Atlas.MaxPages)
	assert.True(t, s.BVH.FastBuild)
	assert.Equal(t, 4, s.BVH.MaxLeafPrims)
	assert.Equal(t, [3]float32{0.5, 0.5, 0.5}, s.Environment.EnvColor)
	assert.True(t, s.Environment.PhysicalSky)
	assert.True(t, s.Environment.MultipleImportance)
	require.Len(t, s.Suns, 1)
	assert.Equal(t, float32(0.5), s.Suns[0].Angle)

	l, err := s.Level()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, l)
}

func TestParseYAML(t *testing.T) {
	s, err := Parse([]byte(yamlSettings), FormatYAML)
	require.NoError(t, err)

	assert.False(t, s.Compression)
	assert.True(t, s.HardwareRT)
	assert.Equal(t, 4, s.Atlas.MaxPages)
	assert.Equal(t, scene.DefaultAtlasPageSize, s.Atlas.PageSize)
	assert.False(t, s.Environment.MultipleImportance)
	require.Len(t, s.Suns, 1)
	assert.Equal(t, [3]float32{2, 2, 2}, s.Suns[0].Color)

	empty, err := Parse(nil, FormatYAML)
	require.NoError(t, err)
	assert.Equal(t, Default(), empty)
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name   string
		data   string
		format Format
	}{
		{"unknown toml key", "colour = 1", FormatTOML},
		{"unknown yaml key", "colour: 1", FormatYAML},
		{"small page", "[atlas]\npage_size = 8", FormatTOML},
		{"too many pages", "atlas:\n  max_pages: 300", FormatYAML},
		{"negative workers", "workers = -1", FormatTOML},
		{"zero leaf size", "[bvh]\nmax_leaf_prims = 0", FormatTOML},
		{"bad log level", `log_level = "loud"`, FormatTOML},
		{"sun without direction", "suns:\n  - angle: 1", FormatYAML},
		{"broken toml", "bindless = ", FormatTOML},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data), tt.format)
			assert.Error(t, err)
		})
	}

	_, err := Parse([]byte("workers = -1"), FormatTOML)
	assert.ErrorIs(t, err, ErrInvalid)
	_, err = Parse(nil, Format(7))
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestLoadByExtension(t *testing.T) {
	dir := t.TempDir()
	tomlPath := filepath.Join(dir, "scene.toml")
	yamlPath := filepath.Join(dir, "scene.YML")
	require.NoError(t, os.WriteFile(tomlPath, []byte(tomlSettings), 0o644))
	require.NoError(t, os.WriteFile(yamlPath, []byte(yamlSettings), 0o644))

	s, err := Load(tomlPath)
	require.NoError(t, err)
	assert.True(t, s.Bindless)

	s, err = Load(yamlPath)
	require.NoError(t, err)
	assert.True(t, s.HardwareRT)

	_, err = Load(filepath.Join(dir, "scene.json"))
	assert.ErrorIs(t, err, ErrUnknownFormat)
	_, err = Load(filepath.Join(dir, "missing.toml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestApplyToScene(t *testing.T) {
	s, err := Parse([]byte(tomlSettings), FormatTOML)
	require.NoError(t, err)

	sc := scene.NewScene(s.SceneOptions(scene.WithWorkerCount(1))...)
	require.NoError(t, s.Apply(sc))

	env := sc.GetEnvironment()
	assert.Equal(t, [3]float32{0.5, 0.5, 0.5}, env.EnvColor)
	assert.True(t, env.PhysicalSky)
	assert.Equal(t, environment.NewDesc().EnvMap, env.EnvMap)

	idx := sc.LightIndices()
	require.Len(t, idx, 1)
	sun := sc.Lights()[idx[0]]
	assert.Equal(t, light.KindDirectional, sun.Kind)
	assert.Equal(t, [3]float32{0, 1, 0}, sun.Direction)
}

func TestSunDescsDefaultColor(t *testing.T) {
	s := Default()
	s.Suns = []SunSettings{{Direction: [3]float32{0, 0, -1}}}
	descs := s.SunDescs()
	require.Len(t, descs, 1)
	assert.Equal(t, [3]float32{1, 1, 1}, descs[0].Color)
	assert.Zero(t, descs[0].Angle)
}
