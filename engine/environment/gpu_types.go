package environment

import (
	_ "embed"
	"encoding/binary"
	"math"
	"unsafe"

	"github.com/Carmen-Shannon/oxy-trace/engine/light"
)

// GPUEnvironmentSource is the canonical WGSL definition of the Environment struct.
// Matches GPUEnvironment layout exactly (64 bytes, std430 aligned).
//
//go:embed assets/environment.wgsl
var GPUEnvironmentSource string

// GPUEnvironmentSize is the byte size of a serialized GPUEnvironment.
const GPUEnvironmentSize = 64

// GPUEnvironmentMultipleImportanceBit is set in Flags when the environment light is registered.
const GPUEnvironmentMultipleImportanceBit uint32 = 1 << 0

// GPUEnvironment is the GPU-aligned representation of the scene environment.
//
// Size: 64 bytes (std430 / WGSL aligned).
type GPUEnvironment struct {
	EnvCol          [3]float32 // offset  0
	EnvMap          uint32     // offset 12: texture handle or 0xFFFFFFFF
	BackCol         [3]float32 // offset 16
	BackMap         uint32     // offset 28
	EnvMapRotation  float32    // offset 32
	BackMapRotation float32    // offset 36
	Flags           uint32     // offset 40
	QTreeLevels     uint32     // offset 44: mip count of the importance quadtree
	LightIndex      uint32     // offset 48: slot of the environment light
	_               [3]uint32  // offset 52: padding
}

// NewGPUEnvironment converts an environment into its GPU-aligned layout.
//
// Parameters:
//   - d: the environment as it stands after finalization
//   - qtreeLevels: the number of quadtree levels uploaded
//   - envLight: the environment light handle, or light.InvalidHandle when it is not sampled
//
// Returns:
//   - GPUEnvironment: the GPU-aligned representation
func NewGPUEnvironment(d Desc, qtreeLevels int, envLight light.Handle) GPUEnvironment {
	g := GPUEnvironment{
		EnvCol:          d.EnvColor,
		EnvMap:          uint32(d.EnvMap),
		BackCol:         d.BackColor,
		BackMap:         uint32(d.BackMap),
		EnvMapRotation:  d.EnvMapRotation,
		BackMapRotation: d.BackMapRotation,
		QTreeLevels:     uint32(qtreeLevels),
		LightIndex:      uint32(envLight),
	}
	if envLight != light.InvalidHandle {
		g.Flags |= GPUEnvironmentMultipleImportanceBit
	}
	return g
}

// Size returns the size of the GPUEnvironment struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (64)
func (g *GPUEnvironment) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUEnvironment struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 64-byte buffer ready for GPU upload
func (g *GPUEnvironment) Marshal() []byte {
	buf := make([]byte, GPUEnvironmentSize)
	for i, c := range g.EnvCol {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(c))
	}
	binary.LittleEndian.PutUint32(buf[12:16], g.EnvMap)
	for i, c := range g.BackCol {
		binary.LittleEndian.PutUint32(buf[16+i*4:], math.Float32bits(c))
	}
	binary.LittleEndian.PutUint32(buf[28:32], g.BackMap)
	binary.LittleEndian.PutUint32(buf[32:36], math.Float32bits(g.EnvMapRotation))
	binary.LittleEndian.PutUint32(buf[36:40], math.Float32bits(g.BackMapRotation))
	binary.LittleEndian.PutUint32(buf[40:44], g.Flags)
	binary.LittleEndian.PutUint32(buf[44:48], g.QTreeLevels)
	binary.LittleEndian.PutUint32(buf[48:52], g.LightIndex)
	return buf
}
