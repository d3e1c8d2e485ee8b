// Package loader imports glTF 2.0 models and compiles them into a scene.
package loader

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/Carmen-Shannon/oxy-trace/common"
	"github.com/Carmen-Shannon/oxy-trace/engine/model"
	"github.com/Carmen-Shannon/oxy-trace/engine/scene"
)

// LoaderBackendType identifies the model file format backend to use.
type LoaderBackendType int

const (
	// BackendTypeGLTF selects the glTF/GLB loader backend.
	BackendTypeGLTF LoaderBackendType = iota
)

// loader is the implementation of the Loader interface.
type loader struct {
	mu sync.RWMutex

	logger *slog.Logger

	decodeWorkers  int
	maxTextureSize int

	modelCache map[string]model.Model

	backend loaderBackend
}

// Loader defines the public-facing interface for loading and caching 3D models.
// It abstracts the file format (glTF, GLB, etc.) behind a generic backend and
// manages a cache of previously loaded models.
type Loader interface {
	// Load imports a model file and caches the result.
	// If the model is already cached (by file path), the cached version is returned.
	// The backend is selected based on the file extension (.gltf/.glb → glTF backend).
	//
	// Parameters:
	//   - path: the file path to the model file
	//
	// Returns:
	//   - model.Model: the loaded and cached model
	//   - error: error if loading fails
	Load(path string) (model.Model, error)

	// LoadReader imports a model from a reader stream and caches it by the given name.
	// External URIs resolve against the working directory.
	//
	// Parameters:
	//   - name: the cache key for the loaded model
	//   - r: the reader providing model data
	//   - isGLB: true if the reader provides GLB binary data
	//
	// Returns:
	//   - model.Model: the loaded model
	//   - error: error if loading fails
	LoadReader(name string, r io.Reader, isGLB bool) (model.Model, error)

	// Get retrieves a cached model by name. Returns nil if not found.
	//
	// Parameters:
	//   - name: the cache key to look up
	//
	// Returns:
	//   - model.Model: the cached model or nil
	Get(name string) model.Model

	// Models returns the full model cache.
	//
	// Returns:
	//   - map[string]model.Model: all cached models keyed by name
	Models() map[string]model.Model

	// ImportInto loads a model file (or reuses the cached one) and adds it to a scene.
	//
	// Parameters:
	//   - sc: the scene to add textures, materials, meshes and instances to
	//   - path: the file path to the model file
	//
	// Returns:
	//   - *Import: the handles created in sc
	//   - error: error if loading or a scene operation fails
	ImportInto(sc scene.Scene, path string) (*Import, error)

	// Instantiate adds an already loaded model to a scene. Every call creates new scene
	// objects, so a model can be added to several scenes.
	//
	// Parameters:
	//   - sc: the scene to add to
	//   - m: the model
	//
	// Returns:
	//   - *Import: the handles created in sc
	//   - error: the first failing scene operation
	Instantiate(sc scene.Scene, m model.Model) (*Import, error)
}

var _ Loader = &loader{}

// NewLoader creates a new Loader instance with the specified backend type and options applied.
//
// Parameters:
//   - backendType: the type of loader backend to use (e.g., BackendTypeGLTF)
//   - options: a variadic list of LoaderBuilderOption functions to configure the Loader
//
// Returns:
//   - Loader: a new instance of Loader configured with the provided backend and options
func NewLoader(backendType LoaderBackendType, options ...LoaderBuilderOption) Loader {
	l := &loader{
		mu:            sync.RWMutex{},
		logger:        common.Logger(),
		decodeWorkers: max(runtime.NumCPU()-1, 1),
		modelCache:    make(map[string]model.Model),
	}

	for _, option := range options {
		option(l)
	}

	switch backendType {
	case BackendTypeGLTF:
		l.backend = newGLTFLoaderBackend(l.decodeWorkers, l.maxTextureSize)
	default:
		panic(fmt.Sprintf("loader: NewLoader unknown backend type %d", backendType))
	}
	return l
}

func (l *loader) Load(path string) (model.Model, error) {
	if cached := l.Get(path); cached != nil {
		return cached, nil
	}

	backend, err := l.resolveBackend(path)
	if err != nil {
		return nil, err
	}

	imported, err := backend.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	return l.store(path, imported), nil
}

func (l *loader) LoadReader(name string, r io.Reader, isGLB bool) (model.Model, error) {
	if cached := l.Get(name); cached != nil {
		return cached, nil
	}

	imported, err := l.backend.LoadReader(r, isGLB, "")
	if err != nil {
		return nil, fmt.Errorf("failed to load from reader %q: %w", name, err)
	}
	return l.store(name, imported), nil
}

// store caches imported under key. A concurrent load of the same key keeps the first model.
func (l *loader) store(key string, imported *model.ImportedModel) model.Model {
	m := model.FromImported(imported)

	l.mu.Lock()
	defer l.mu.Unlock()
	if cached, ok := l.modelCache[key]; ok {
		return cached
	}
	l.modelCache[key] = m

	l.logger.Info("loader: model loaded",
		"key", key,
		"meshes", len(imported.Meshes),
		"materials", len(imported.Materials),
		"images", len(imported.Images),
		"nodes", len(imported.Nodes),
		"triangles", m.TriangleCount())
	return m
}

func (l *loader) Get(name string) model.Model {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.modelCache[name]
}

func (l *loader) Models() map[string]model.Model {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make(map[string]model.Model, len(l.modelCache))
	for k, v := range l.modelCache {
		result[k] = v
	}
	return result
}

func (l *loader) ImportInto(sc scene.Scene, path string) (*Import, error) {
	m, err := l.Load(path)
	if err != nil {
		return nil, err
	}
	return l.Instantiate(sc, m)
}

// resolveBackend selects an appropriate loader backend based on the file extension.
// Currently only glTF/GLB is supported.
func (l *loader) resolveBackend(path string) (loaderBackend, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".gltf", ".glb":
		return l.backend, nil
	default:
		return nil, fmt.Errorf("unsupported model format: %s", ext)
	}
}

// IsGLB reports whether data starts with the GLB magic.
func IsGLB(data []byte) bool {
	return len(data) >= 4 && bytes.Equal(data[:4], []byte("glTF"))
}

// ReadModelFile reads a model file for LoadReader, reporting whether it is binary.
//
// Parameters:
//   - path: the file path
//
// Returns:
//   - io.Reader: the file content
//   - bool: whether the content is GLB
//   - error: a read error
func ReadModelFile(path string) (io.Reader, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false, fmt.Errorf("loader: %w", err)
	}
	return bytes.NewReader(data), IsGLB(data), nil
}
