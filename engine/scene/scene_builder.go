package scene

import (
	"log/slog"

	"github.com/Carmen-Shannon/oxy-trace/engine/bvh"
	"github.com/Carmen-Shannon/oxy-trace/engine/gpu"
	"github.com/Carmen-Shannon/oxy-trace/engine/profiler"
)

// SceneBuilderOption is a functional option for configuring a Scene.
// Use the With* functions to create options.
type SceneBuilderOption func(s *scene)

// WithDevice sets the device textures and the environment quadtree are uploaded to.
// NewScene panics if the device is nil.
//
// Parameters:
//   - d: the device
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithDevice(d gpu.Device) SceneBuilderOption {
	return func(s *scene) {
		s.device = d
	}
}

// WithBindlessTextures stores every texture as a standalone device image instead of packing
// it into atlas pages.
//
// Parameters:
//   - on: true for bindless storage
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithBindlessTextures(on bool) SceneBuilderOption {
	return func(s *scene) {
		s.bindless = on
	}
}

// WithTextureCompression enables BC3, BC4 and BC5 storage when the device supports it.
// Enabled by default.
//
// Parameters:
//   - on: whether textures are block compressed
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithTextureCompression(on bool) SceneBuilderOption {
	return func(s *scene) {
		s.compress = on
	}
}

// WithHardwareRT leaves bottom-level hierarchies to the device. AddMesh then only computes
// the mesh bounding box.
//
// Parameters:
//   - on: true when ray tracing hardware builds the hierarchies
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithHardwareRT(on bool) SceneBuilderOption {
	return func(s *scene) {
		s.hardwareRT = on
	}
}

// WithBVHSettings sets the build settings used for meshes that do not carry their own and for
// the top-level hierarchy.
func WithBVHSettings(settings bvh.Settings) SceneBuilderOption {
	return func(s *scene) {
		s.bvhSettings = settings
	}
}

// WithAtlasPageSize sets the width and height of atlas pages in texels. Defaults to
// DefaultAtlasPageSize.
//
// Parameters:
//   - size: the page size
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithAtlasPageSize(size int) SceneBuilderOption {
	return func(s *scene) {
		s.pageSize = size
	}
}

// WithAtlasMaxPages sets the page limit of every atlas page set. Defaults to
// DefaultAtlasMaxPages.
func WithAtlasMaxPages(n int) SceneBuilderOption {
	return func(s *scene) {
		s.maxPages = n
	}
}

// WithWorkerCount sets the number of goroutines used for mips, block compression and the
// environment passes. Defaults to runtime.NumCPU()-1.
//
// Parameters:
//   - n: the worker count (minimum 1)
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithWorkerCount(n int) SceneBuilderOption {
	return func(s *scene) {
		s.workers = max(n, 1)
	}
}

// WithLogger sets the logger diagnostics are written to. Defaults to common.Logger().
func WithLogger(l *slog.Logger) SceneBuilderOption {
	return func(s *scene) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithProfiler records the duration of each Finalize stage. The profiler reports after every
// Finalize.
func WithProfiler(p *profiler.Profiler) SceneBuilderOption {
	return func(s *scene) {
		s.prof = p
	}
}
