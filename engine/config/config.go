// Package config reads scene compiler settings from TOML or YAML files.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/Carmen-Shannon/oxy-trace/engine/bvh"
	"github.com/Carmen-Shannon/oxy-trace/engine/environment"
	"github.com/Carmen-Shannon/oxy-trace/engine/light"
	"github.com/Carmen-Shannon/oxy-trace/engine/scene"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

var (
	ErrUnknownFormat = errors.New("config: unknown file format")
	ErrInvalid       = errors.New("config: invalid settings")
)

// Format is the encoding of a settings file.
type Format uint8

const (
	FormatTOML Format = iota
	FormatYAML
)

// Settings configures how a scene is compiled. Keys a file leaves out keep their Default value.
type Settings struct {
	Bindless    bool   `toml:"bindless" yaml:"bindless"`
	Compression bool   `toml:"compression" yaml:"compression"`
	HardwareRT  bool   `toml:"hardware_rt" yaml:"hardware_rt"`
	Workers     int    `toml:"workers" yaml:"workers"`
	LogLevel    string `toml:"log_level" yaml:"log_level"`
	Profile     bool   `toml:"profile" yaml:"profile"`

	Atlas       AtlasSettings       `toml:"atlas" yaml:"atlas"`
	BVH         BVHSettings         `toml:"bvh" yaml:"bvh"`
	Environment EnvironmentSettings `toml:"environment" yaml:"environment"`
	Suns        []SunSettings       `toml:"suns" yaml:"suns"`
}

// AtlasSettings sizes the atlas page sets.
type AtlasSettings struct {
	PageSize int `toml:"page_size" yaml:"page_size"`
	MaxPages int `toml:"max_pages" yaml:"max_pages"`
}

// BVHSettings mirrors bvh.Settings.
type BVHSettings struct {
	SpatialSplits bool `toml:"spatial_splits" yaml:"spatial_splits"`
	FastBuild     bool `toml:"fast_build" yaml:"fast_build"`
	MaxLeafPrims  int  `toml:"max_leaf_prims" yaml:"max_leaf_prims"`
}

// EnvironmentSettings holds the map-less part of environment.Desc.
type EnvironmentSettings struct {
	EnvColor           [3]float32 `toml:"env_color" yaml:"env_color"`
	BackColor          [3]float32 `toml:"back_color" yaml:"back_color"`
	MultipleImportance bool       `toml:"multiple_importance" yaml:"multiple_importance"`
	PhysicalSky        bool       `toml:"physical_sky" yaml:"physical_sky"`
	BackPhysicalSky    bool       `toml:"back_physical_sky" yaml:"back_physical_sky"`
}

// SunSettings describes a directional light added before the scene is finalized.
type SunSettings struct {
	Direction [3]float32 `toml:"direction" yaml:"direction"`
	Angle     float32    `toml:"angle" yaml:"angle"`
	Color     [3]float32 `toml:"color" yaml:"color"`
}

// Default returns the settings used for keys a file leaves out.
func Default() Settings {
	return Settings{
		Compression: true,
		LogLevel:    "info",
		Atlas: AtlasSettings{
			PageSize: scene.DefaultAtlasPageSize,
			MaxPages: scene.DefaultAtlasMaxPages,
		},
		BVH: BVHSettings{MaxLeafPrims: bvh.DefaultMaxLeafPrims},
		Environment: EnvironmentSettings{
			MultipleImportance: true,
		},
	}
}

// FormatOf picks the decoder for a file from its extension.
//
// Parameters:
//   - path: the settings file path
//
// Returns:
//   - Format: the file format
//   - error: ErrUnknownFormat for anything but .toml, .yaml and .yml
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return 0, fmt.Errorf("%q: %w", path, ErrUnknownFormat)
	}
}

// Load reads a settings file, decoding it over Default.
//
// Parameters:
//   - path: a .toml, .yaml or .yml file
//
// Returns:
//   - Settings: the validated settings
//   - error: a read, decode or validation error
func Load(path string) (Settings, error) {
	format, err := FormatOf(path)
	if err != nil {
		return Settings{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("config: %w", err)
	}
	s, err := Parse(data, format)
	if err != nil {
		return Settings{}, fmt.Errorf("%q: %w", path, err)
	}
	return s, nil
}

// Parse decodes settings over Default and validates them. Unknown keys are rejected.
//
// Parameters:
//   - data: the encoded settings
//   - format: the encoding
//
// Returns:
//   - Settings: the validated settings
//   - error: a decode error or ErrInvalid
func Parse(data []byte, format Format) (Settings, error) {
	s := Default()
	switch format {
	case FormatTOML:
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&s); err != nil {
			return Settings{}, fmt.Errorf("config: toml: %w", err)
		}
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		// An empty document leaves the defaults in place.
		if err := dec.Decode(&s); err != nil && !errors.Is(err, io.EOF) {
			return Settings{}, fmt.Errorf("config: yaml: %w", err)
		}
	default:
		return Settings{}, fmt.Errorf("format %d: %w", format, ErrUnknownFormat)
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Validate checks ranges the scene constructor would otherwise panic on.
func (s Settings) Validate() error {
	if s.Workers < 0 {
		return fmt.Errorf("workers %d: %w", s.Workers, ErrInvalid)
	}
	if s.Atlas.PageSize < 16 || s.Atlas.PageSize > 0xFFFF {
		return fmt.Errorf("atlas page size %d: %w", s.Atlas.PageSize, ErrInvalid)
	}
	if s.Atlas.MaxPages < 1 || s.Atlas.MaxPages > 255 {
		return fmt.Errorf("atlas max pages %d: %w", s.Atlas.MaxPages, ErrInvalid)
	}
	if s.BVH.MaxLeafPrims < 1 {
		return fmt.Errorf("bvh max leaf prims %d: %w", s.BVH.MaxLeafPrims, ErrInvalid)
	}
	if _, err := s.Level(); err != nil {
		return err
	}
	for i, sun := range s.Suns {
		if sun.Direction == [3]float32{} {
			return fmt.Errorf("sun %d has no direction: %w", i, ErrInvalid)
		}
		if sun.Angle < 0 {
			return fmt.Errorf("sun %d angle %v: %w", i, sun.Angle, ErrInvalid)
		}
	}
	return nil
}

// Level parses LogLevel. An empty level means info.
func (s Settings) Level() (slog.Level, error) {
	var l slog.Level
	if s.LogLevel == "" {
		return slog.LevelInfo, nil
	}
	if err := l.UnmarshalText([]byte(s.LogLevel)); err != nil {
		return 0, fmt.Errorf("log level %q: %w", s.LogLevel, ErrInvalid)
	}
	return l, nil
}

// SceneOptions turns the settings into scene options. Extra options are appended, so callers
// can supply a device, logger or profiler.
//
// Parameters:
//   - extra: options applied after the settings
//
// Returns:
//   - []scene.SceneBuilderOption: the options for scene.NewScene
func (s Settings) SceneOptions(extra ...scene.SceneBuilderOption) []scene.SceneBuilderOption {
	opts := []scene.SceneBuilderOption{
		scene.WithBindlessTextures(s.Bindless),
		scene.WithTextureCompression(s.Compression),
		scene.WithHardwareRT(s.HardwareRT),
		scene.WithAtlasPageSize(s.Atlas.PageSize),
		scene.WithAtlasMaxPages(s.Atlas.MaxPages),
		scene.WithBVHSettings(bvh.NewSettings(
			bvh.WithSpatialSplits(s.BVH.SpatialSplits),
			bvh.WithFastBuild(s.BVH.FastBuild),
			bvh.WithMaxLeafPrims(s.BVH.MaxLeafPrims),
		)),
	}
	if s.Workers > 0 {
		opts = append(opts, scene.WithWorkerCount(s.Workers))
	}
	return append(opts, extra...)
}

// EnvironmentDesc returns the environment described by the settings, without maps.
func (s Settings) EnvironmentDesc() environment.Desc {
	e := s.Environment
	d := environment.NewDesc(
		environment.WithEnvColor(e.EnvColor[0], e.EnvColor[1], e.EnvColor[2]),
		environment.WithBackColor(e.BackColor[0], e.BackColor[1], e.BackColor[2]),
	)
	d.MultipleImportance = e.MultipleImportance
	d.PhysicalSky = e.PhysicalSky
	d.BackPhysicalSky = e.BackPhysicalSky
	return d
}

// SunDescs returns a directional light descriptor per configured sun. Suns without a color
// are white.
func (s Settings) SunDescs() []light.DirectionalDesc {
	out := make([]light.DirectionalDesc, 0, len(s.Suns))
	for _, sun := range s.Suns {
		c := sun.Color
		if c == [3]float32{} {
			c = [3]float32{1, 1, 1}
		}
		out = append(out, light.NewDirectionalDesc(sun.Direction, sun.Angle, light.WithColor(c[0], c[1], c[2])))
	}
	return out
}

// Apply sets the environment and adds the suns to sc.
//
// Parameters:
//   - sc: the scene to configure
//
// Returns:
//   - error: the first light error
func (s Settings) Apply(sc scene.Scene) error {
	sc.SetEnvironment(s.EnvironmentDesc())
	for i, d := range s.SunDescs() {
		if _, err := sc.AddDirectionalLight(d); err != nil {
			return fmt.Errorf("sun %d: %w", i, err)
		}
	}
	return nil
}
