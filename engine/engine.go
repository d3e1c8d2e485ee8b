// Package engine drives scene compilation: it builds scenes from settings, imports models into
// them and finalizes the result.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/Carmen-Shannon/oxy-trace/common"
	"github.com/Carmen-Shannon/oxy-trace/engine/config"
	"github.com/Carmen-Shannon/oxy-trace/engine/gpu"
	"github.com/Carmen-Shannon/oxy-trace/engine/loader"
	"github.com/Carmen-Shannon/oxy-trace/engine/model"
	"github.com/Carmen-Shannon/oxy-trace/engine/profiler"
	"github.com/Carmen-Shannon/oxy-trace/engine/scene"
	"golang.org/x/sync/errgroup"
)

// engine implements the Engine interface.
type engine struct {
	mu sync.RWMutex

	settings config.Settings
	logger   *slog.Logger
	device   gpu.Device
	loader   loader.Loader

	profiler         *profiler.Profiler
	profilingEnabled bool

	scenes map[int]scene.Scene
}

// Report summarizes one Compile call.
type Report struct {
	// Key is the scene the models were compiled into.
	Key int

	// Imports holds the scene objects created per model, in argument order.
	Imports []*loader.Import

	// Stats are the scene statistics after Finalize.
	Stats scene.Stats
}

// Engine is the main entry point for compiling scenes.
// It owns a model loader shared by every scene and the scenes themselves, keyed by an integer.
type Engine interface {
	// Settings returns the settings scenes are built with.
	//
	// Returns:
	//   - config.Settings: the engine settings
	Settings() config.Settings

	// Loader returns the model loader. Models stay cached across compiles.
	//
	// Returns:
	//   - loader.Loader: the shared loader
	Loader() loader.Loader

	// EnableProfiler enables stage timing reports for scenes created afterwards.
	EnableProfiler()

	// DisableProfiler disables stage timing reports for scenes created afterwards.
	DisableProfiler()

	// NewScene builds a scene from the settings, applies the configured environment and suns,
	// and registers it at key, replacing any previous scene.
	//
	// Parameters:
	//   - key: the key to register the scene at
	//
	// Returns:
	//   - scene.Scene: the new scene
	//   - error: error if a configured light is rejected
	NewScene(key int) (scene.Scene, error)

	// AddScene registers an existing scene at the given key.
	//
	// Parameters:
	//   - key: the scene key
	//   - s: the Scene to register
	AddScene(key int, s scene.Scene)

	// RemoveScene removes the scene at the given key.
	//
	// Parameters:
	//   - key: the key of the scene to remove
	RemoveScene(key int)

	// Scene retrieves the scene registered at the given key.
	// Returns nil if no scene exists at that key.
	//
	// Parameters:
	//   - key: the key of the scene to retrieve
	//
	// Returns:
	//   - scene.Scene: the scene at the key, or nil if not found
	Scene(key int) scene.Scene

	// Scenes returns a copy of all registered scenes keyed by their key.
	//
	// Returns:
	//   - map[int]scene.Scene: a copy of the scenes map
	Scenes() map[int]scene.Scene

	// Keys returns the registered scene keys in ascending order.
	//
	// Returns:
	//   - []int: the sorted keys
	Keys() []int

	// Compile loads model files concurrently, adds them to the scene at key in argument order
	// and finalizes the scene. A scene is created with NewScene when none is registered.
	//
	// Parameters:
	//   - ctx: cancels loading and stops before the next model is added
	//   - key: the scene key
	//   - paths: the .gltf or .glb files to import
	//
	// Returns:
	//   - *Report: the created handles and final statistics
	//   - error: the first load, scene or finalize error
	Compile(ctx context.Context, key int, paths ...string) (*Report, error)
}

var _ Engine = &engine{}

// NewEngine creates a new Engine instance with the provided options.
// Without options the engine uses config.Default, the engine-wide logger and an in-memory device.
//
// Parameters:
//   - options: functional options for engine configuration
//
// Returns:
//   - Engine: the newly created engine
func NewEngine(options ...EngineBuilderOption) Engine {
	e := &engine{
		settings: config.Default(),
		logger:   common.Logger(),
		profiler: profiler.NewProfiler(),
		scenes:   make(map[int]scene.Scene),
	}

	for _, opt := range options {
		opt(e)
	}

	if e.device == nil {
		e.device = gpu.NewMemoryDevice()
	}
	if e.loader == nil {
		opts := []loader.LoaderBuilderOption{loader.WithLogger(e.logger)}
		if e.settings.Workers > 0 {
			opts = append(opts, loader.WithDecodeWorkers(e.settings.Workers))
		}
		// Atlas textures keep a one texel border on each side.
		if !e.settings.Bindless {
			opts = append(opts, loader.WithMaxTextureSize(e.settings.Atlas.PageSize-2))
		}
		e.loader = loader.NewLoader(loader.BackendTypeGLTF, opts...)
	}

	return e
}

func (e *engine) Settings() config.Settings {
	return e.settings
}

func (e *engine) Loader() loader.Loader {
	return e.loader
}

func (e *engine) EnableProfiler() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.profilingEnabled = true
}

func (e *engine) DisableProfiler() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.profilingEnabled = false
}

// activeProfiler returns the profiler when profiling is enabled, nil otherwise.
func (e *engine) activeProfiler() *profiler.Profiler {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.profilingEnabled {
		return nil
	}
	return e.profiler
}

func (e *engine) NewScene(key int) (scene.Scene, error) {
	sc := scene.NewScene(e.settings.SceneOptions(
		scene.WithDevice(e.device),
		scene.WithLogger(e.logger),
		scene.WithProfiler(e.activeProfiler()),
	)...)
	if err := e.settings.Apply(sc); err != nil {
		return nil, fmt.Errorf("engine: scene %d: %w", key, err)
	}
	e.AddScene(key, sc)
	return sc, nil
}

func (e *engine) Compile(ctx context.Context, key int, paths ...string) (*Report, error) {
	sc := e.Scene(key)
	if sc == nil {
		var err error
		if sc, err = e.NewScene(key); err != nil {
			return nil, err
		}
	}
	prof := e.activeProfiler()

	done := prof.Begin("load")
	models := make([]model.Model, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	for i, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			m, err := e.loader.Load(path)
			if err != nil {
				return err
			}
			models[i] = m
			return nil
		})
	}
	err := g.Wait()
	done()
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	report := &Report{Key: key}
	done = prof.Begin("instantiate")
	for i, m := range models {
		if err := ctx.Err(); err != nil {
			done()
			return report, err
		}
		imp, err := e.loader.Instantiate(sc, m)
		if err != nil {
			done()
			return report, fmt.Errorf("engine: %s: %w", paths[i], err)
		}
		report.Imports = append(report.Imports, imp)
	}
	done()

	if err := sc.Finalize(); err != nil {
		return report, fmt.Errorf("engine: finalize scene %d: %w", key, err)
	}
	report.Stats = sc.Stats()
	// Scenes built with profiling report during Finalize; this covers scenes that were not.
	prof.Report()

	e.logger.Info("engine: scene compiled",
		"key", key,
		"models", len(paths),
		"instances", report.Stats.Instances,
		"triangles", report.Stats.Triangles,
		"lights", report.Stats.Lights)
	return report, nil
}

func (e *engine) AddScene(key int, s scene.Scene) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.scenes[key] = s
}

func (e *engine) RemoveScene(key int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.scenes, key)
}

func (e *engine) Scene(key int) scene.Scene {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.scenes[key]
}

func (e *engine) Scenes() map[int]scene.Scene {
	e.mu.RLock()
	defer e.mu.RUnlock()
	cp := make(map[int]scene.Scene, len(e.scenes))
	for k, v := range e.scenes {
		cp[k] = v
	}
	return cp
}

func (e *engine) Keys() []int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	keys := make([]int, 0, len(e.scenes))
	for k := range e.scenes {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
