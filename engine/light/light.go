// Package light turns light descriptors into the normalized records sampled by the path tracer.
package light

import (
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/oxy-trace/common"
	"github.com/chewxy/math32"
)

// Handle identifies a light in the scene's light store.
type Handle uint32

// InvalidHandle marks an absent light.
const InvalidHandle Handle = 0xFFFFFFFF

// ErrInvalidDesc reports a negative or non-finite light dimension.
var ErrInvalidDesc = errors.New("light: invalid descriptor")

// Kind identifies the shape of a light source.
type Kind uint32

const (
	// KindSphere emits from a sphere around a position.
	KindSphere Kind = iota

	// KindDirectional is a distant source with an optional angular size, like the sun.
	// It has no position and is never directly visible.
	KindDirectional

	// KindSpot is a sphere light restricted to a cone around its direction.
	KindSpot

	// KindRect emits from one side of a rectangle spanned by U and V.
	KindRect

	// KindDisk emits from one side of an ellipse spanned by U and V.
	KindDisk

	// KindLine emits from a cylinder of the stored radius and height along V.
	KindLine

	// KindTriangle is an emissive mesh triangle registered by the scene.
	KindTriangle

	// KindEnvironment samples the environment map through its importance quadtree.
	KindEnvironment
)

func (k Kind) String() string {
	switch k {
	case KindSphere:
		return "Sphere"
	case KindDirectional:
		return "Directional"
	case KindSpot:
		return "Spot"
	case KindRect:
		return "Rect"
	case KindDisk:
		return "Disk"
	case KindLine:
		return "Line"
	case KindTriangle:
		return "Triangle"
	case KindEnvironment:
		return "Environment"
	default:
		return fmt.Sprintf("Kind(%d)", uint32(k))
	}
}

// Light is a normalized light record. Fields that do not apply to the Kind stay zero.
type Light struct {
	Kind       Kind
	Visible    bool
	CastShadow bool
	SkyPortal  bool
	Color      [3]float32

	// Position of sphere, spot, rect, disk and line lights.
	Position [3]float32
	// Direction toward a directional light, or the cone axis of a spot light.
	Direction [3]float32
	// U and V span rect and disk lights. Line lights store their unit axes.
	U [3]float32
	V [3]float32

	Radius float32
	Height float32
	Area   float32
	// Angle is the angular radius of a directional light in radians.
	Angle float32
	// Spot is the cone half-angle in radians, or -1 for an unrestricted sphere.
	Spot float32
	// Blend is the squared spot edge softness, or -1 for an unrestricted sphere.
	Blend float32

	TriIndex   uint32
	XformIndex uint32
}

func checkDims(kind Kind, dims ...float32) error {
	for _, d := range dims {
		if d < 0 || math32.IsNaN(d) || math32.IsInf(d, 0) {
			return fmt.Errorf("%v light dimension %v: %w", kind, d, ErrInvalidDesc)
		}
	}
	return nil
}

// NewDirectional normalizes a directional light. The direction is negated so it points toward
// the light. A non-zero angle spreads the color over the solid angle of the sun disk.
//
// Parameters:
//   - d: the light descriptor, with Angle in degrees of full diameter
//
// Returns:
//   - Light: the normalized record
//   - error: ErrInvalidDesc for a negative or non-finite angle
func NewDirectional(d DirectionalDesc) (Light, error) {
	if err := checkDims(KindDirectional, d.Angle); err != nil {
		return Light{}, err
	}
	l := Light{
		Kind:       KindDirectional,
		CastShadow: d.CastShadow,
		Color:      d.Color,
		Direction:  common.Scale3(d.Direction, -1),
		Angle:      d.Angle * math32.Pi / 360,
	}
	if l.Angle != 0 {
		radius := math32.Tan(l.Angle)
		l.Color = common.Scale3(l.Color, 1/(math32.Pi*radius*radius))
	}
	return l, nil
}

// NewSphere normalizes a sphere light.
func NewSphere(d SphereDesc) (Light, error) {
	if err := checkDims(KindSphere, d.Radius); err != nil {
		return Light{}, err
	}
	return Light{
		Kind:       KindSphere,
		Visible:    d.Visible,
		CastShadow: d.CastShadow,
		Color:      d.Color,
		Position:   d.Position,
		Radius:     d.Radius,
		Area:       4 * math32.Pi * d.Radius * d.Radius,
		Spot:       -1,
		Blend:      -1,
	}, nil
}

// NewSpot normalizes a spot light: a sphere light whose emission is limited to a cone.
//
// Parameters:
//   - d: the light descriptor, with SpotSize in degrees of full cone angle
//
// Returns:
//   - Light: the normalized record
//   - error: ErrInvalidDesc for a negative or non-finite dimension
func NewSpot(d SpotDesc) (Light, error) {
	if err := checkDims(KindSpot, d.Radius, d.SpotSize, d.SpotBlend); err != nil {
		return Light{}, err
	}
	return Light{
		Kind:       KindSpot,
		Visible:    d.Visible,
		CastShadow: d.CastShadow,
		Color:      d.Color,
		Position:   d.Position,
		Direction:  d.Direction,
		Radius:     d.Radius,
		Area:       4 * math32.Pi * d.Radius * d.Radius,
		Spot:       0.5 * math32.Pi * d.SpotSize / 180,
		Blend:      d.SpotBlend * d.SpotBlend,
	}, nil
}

// NewRect normalizes a rectangle light placed by xform. The rectangle spans the transformed
// X and Z axes scaled by its width and height.
//
// Parameters:
//   - d: the light descriptor
//   - xform: a column-major placement matrix
//
// Returns:
//   - Light: the normalized record
//   - error: ErrInvalidDesc for a negative or non-finite dimension
func NewRect(d RectDesc, xform [16]float32) (Light, error) {
	if err := checkDims(KindRect, d.Width, d.Height); err != nil {
		return Light{}, err
	}
	return Light{
		Kind:       KindRect,
		Visible:    d.Visible,
		CastShadow: d.CastShadow,
		SkyPortal:  d.SkyPortal,
		Color:      d.Color,
		Position:   [3]float32{xform[12], xform[13], xform[14]},
		Area:       d.Width * d.Height,
		U:          common.Scale3(common.TransformDirection(xform[:], [3]float32{1, 0, 0}), d.Width),
		V:          common.Scale3(common.TransformDirection(xform[:], [3]float32{0, 0, 1}), d.Height),
	}, nil
}

// NewDisk normalizes an elliptical disk light placed by xform.
func NewDisk(d DiskDesc, xform [16]float32) (Light, error) {
	if err := checkDims(KindDisk, d.SizeX, d.SizeY); err != nil {
		return Light{}, err
	}
	return Light{
		Kind:       KindDisk,
		Visible:    d.Visible,
		CastShadow: d.CastShadow,
		SkyPortal:  d.SkyPortal,
		Color:      d.Color,
		Position:   [3]float32{xform[12], xform[13], xform[14]},
		Area:       0.25 * math32.Pi * d.SizeX * d.SizeY,
		U:          common.Scale3(common.TransformDirection(xform[:], [3]float32{1, 0, 0}), d.SizeX),
		V:          common.Scale3(common.TransformDirection(xform[:], [3]float32{0, 0, 1}), d.SizeY),
	}, nil
}

// NewLine normalizes a line light placed by xform. The cylinder axis is the transformed Y axis.
func NewLine(d LineDesc, xform [16]float32) (Light, error) {
	if err := checkDims(KindLine, d.Radius, d.Height); err != nil {
		return Light{}, err
	}
	return Light{
		Kind:       KindLine,
		Visible:    d.Visible,
		CastShadow: d.CastShadow,
		SkyPortal:  d.SkyPortal,
		Color:      d.Color,
		Position:   [3]float32{xform[12], xform[13], xform[14]},
		Area:       2 * math32.Pi * d.Radius * d.Height,
		U:          common.TransformDirection(xform[:], [3]float32{1, 0, 0}),
		V:          common.TransformDirection(xform[:], [3]float32{0, 1, 0}),
		Radius:     d.Radius,
		Height:     d.Height,
	}, nil
}

// NewTriangle creates the implicit light of an emissive mesh triangle.
//
// Parameters:
//   - color: the emitted radiance, base color times strength
//   - tri: the global triangle index
//   - xform: the transform index of the owning instance
//
// Returns:
//   - Light: a shadow casting, invisible triangle light
func NewTriangle(color [3]float32, tri, xform uint32) Light {
	return Light{
		Kind:       KindTriangle,
		CastShadow: true,
		Color:      color,
		TriIndex:   tri,
		XformIndex: xform,
	}
}

// NewEnvironment creates the light that importance samples the environment map.
func NewEnvironment() Light {
	return Light{
		Kind:       KindEnvironment,
		CastShadow: true,
		Color:      [3]float32{1, 1, 1},
	}
}
