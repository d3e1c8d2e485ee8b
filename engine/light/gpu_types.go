package light

import (
	_ "embed"
	"encoding/binary"
	"math"
	"unsafe"
)

// GPULightSource is the canonical WGSL definition of the Light struct.
// Matches GPULight layout exactly (64 bytes, std430 aligned).
//
//go:embed assets/light.wgsl
var GPULightSource string

// GPULightSize is the byte size of one serialized GPULight.
const GPULightSize = 64

// Flag bits packed above the kind in GPULight.TypeFlags.
const (
	GPULightVisibleBit    uint32 = 1 << 5
	GPULightCastShadowBit uint32 = 1 << 6
	GPULightSkyPortalBit  uint32 = 1 << 7
)

// GPULight is the GPU-aligned representation of a single light source.
// The three parameter vectors are interpreted per kind:
//
//	sphere, spot:  pos.xyz area | dir.xyz radius | spot blend
//	directional:   dir.xyz angle
//	rect, disk:    pos.xyz area | u.xyz         | v.xyz
//	line:          pos.xyz area | u.xyz radius  | v.xyz height
//	triangle:      tri_index xform_index as raw bits
//
// Size: 64 bytes (std430 / WGSL aligned).
type GPULight struct {
	TypeFlags uint32     // offset  0: kind in bits 0-4, then visible, cast shadow, sky portal
	Color     [3]float32 // offset  4: RGB radiance
	Param1    [4]float32 // offset 16
	Param2    [4]float32 // offset 32
	Param3    [4]float32 // offset 48
}

// ToGPULight converts a light record into its GPU-aligned layout.
//
// Parameters:
//   - l: the light to convert
//
// Returns:
//   - GPULight: the GPU-aligned representation
func ToGPULight(l Light) GPULight {
	g := GPULight{TypeFlags: uint32(l.Kind), Color: l.Color}
	if l.Visible {
		g.TypeFlags |= GPULightVisibleBit
	}
	if l.CastShadow {
		g.TypeFlags |= GPULightCastShadowBit
	}
	if l.SkyPortal {
		g.TypeFlags |= GPULightSkyPortalBit
	}

	vec := func(v [3]float32, w float32) [4]float32 { return [4]float32{v[0], v[1], v[2], w} }
	switch l.Kind {
	case KindSphere, KindSpot:
		g.Param1 = vec(l.Position, l.Area)
		g.Param2 = vec(l.Direction, l.Radius)
		g.Param3 = [4]float32{l.Spot, l.Blend}
	case KindDirectional:
		g.Param1 = vec(l.Direction, l.Angle)
	case KindRect, KindDisk:
		g.Param1 = vec(l.Position, l.Area)
		g.Param2 = vec(l.U, 0)
		g.Param3 = vec(l.V, 0)
	case KindLine:
		g.Param1 = vec(l.Position, l.Area)
		g.Param2 = vec(l.U, l.Radius)
		g.Param3 = vec(l.V, l.Height)
	case KindTriangle:
		g.Param1[0] = math.Float32frombits(l.TriIndex)
		g.Param1[1] = math.Float32frombits(l.XformIndex)
	}
	return g
}

// Size returns the size of the GPULight struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (64)
func (g *GPULight) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPULight struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 64-byte buffer ready for GPU upload
func (g *GPULight) Marshal() []byte {
	buf := make([]byte, GPULightSize)
	binary.LittleEndian.PutUint32(buf[0:4], g.TypeFlags)
	for i, c := range g.Color {
		binary.LittleEndian.PutUint32(buf[4+i*4:], math.Float32bits(c))
	}
	for i, p := range [3][4]float32{g.Param1, g.Param2, g.Param3} {
		for j, v := range p {
			binary.LittleEndian.PutUint32(buf[16+i*16+j*4:], math.Float32bits(v))
		}
	}
	return buf
}

// MarshalLights serializes lights back to back, so light i starts at byte 64*i.
//
// Parameters:
//   - lights: the lights in slot order, zero records for free slots
//
// Returns:
//   - []byte: the buffer ready for GPU upload
func MarshalLights(lights []Light) []byte {
	buf := make([]byte, 0, len(lights)*GPULightSize)
	for _, l := range lights {
		g := ToGPULight(l)
		buf = append(buf, g.Marshal()...)
	}
	return buf
}
