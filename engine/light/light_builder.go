package light

// Common holds the fields shared by every light descriptor.
type Common struct {
	Color      [3]float32
	CastShadow bool
	Visible    bool
	SkyPortal  bool
}

// DirectionalDesc describes a distant light. Angle is the full angular diameter in degrees.
type DirectionalDesc struct {
	Common
	Direction [3]float32
	Angle     float32
}

// SphereDesc describes a spherical light.
type SphereDesc struct {
	Common
	Position [3]float32
	Radius   float32
}

// SpotDesc describes a spot light. SpotSize is the full cone angle in degrees and SpotBlend
// the edge softness in [0, 1].
type SpotDesc struct {
	Common
	Position  [3]float32
	Direction [3]float32
	Radius    float32
	SpotSize  float32
	SpotBlend float32
}

// RectDesc describes a rectangle light, placed by a transform at registration.
type RectDesc struct {
	Common
	Width  float32
	Height float32
}

// DiskDesc describes an elliptical disk light, placed by a transform at registration.
type DiskDesc struct {
	Common
	SizeX float32
	SizeY float32
}

// LineDesc describes a cylindrical line light, placed by a transform at registration.
type LineDesc struct {
	Common
	Radius float32
	Height float32
}

// CommonOption is a function that configures the shared light fields during construction.
type CommonOption func(*Common)

// newCommon returns white, visible, shadow casting defaults with opts applied.
func newCommon(opts []CommonOption) Common {
	c := Common{
		Color:      [3]float32{1, 1, 1},
		CastShadow: true,
		Visible:    true,
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// WithColor is an option builder that sets the emitted radiance of the light.
//
// Parameters:
//   - r, g, b: color components, unbounded
//
// Returns:
//   - CommonOption: a function that applies the color option
func WithColor(r, g, b float32) CommonOption {
	return func(c *Common) {
		c.Color = [3]float32{r, g, b}
	}
}

// WithCastShadow is an option builder that sets whether the light is occluded by geometry.
func WithCastShadow(on bool) CommonOption {
	return func(c *Common) {
		c.CastShadow = on
	}
}

// WithVisible is an option builder that sets whether camera rays can hit the light.
func WithVisible(on bool) CommonOption {
	return func(c *Common) {
		c.Visible = on
	}
}

// WithSkyPortal is an option builder that marks an area light as a portal through which the
// environment is sampled. Only rect, disk and line lights honor it.
//
// Parameters:
//   - on: true to make the light a portal
//
// Returns:
//   - CommonOption: a function that applies the portal option
func WithSkyPortal(on bool) CommonOption {
	return func(c *Common) {
		c.SkyPortal = on
	}
}

// NewDirectionalDesc creates a directional light descriptor.
//
// Parameters:
//   - dir: the direction the light travels in
//   - angle: the angular diameter in degrees, zero for a hard sun
//   - opts: shared options applied in order
//
// Returns:
//   - DirectionalDesc: the descriptor
func NewDirectionalDesc(dir [3]float32, angle float32, opts ...CommonOption) DirectionalDesc {
	return DirectionalDesc{Common: newCommon(opts), Direction: dir, Angle: angle}
}

// NewSphereDesc creates a sphere light descriptor.
func NewSphereDesc(pos [3]float32, radius float32, opts ...CommonOption) SphereDesc {
	return SphereDesc{Common: newCommon(opts), Position: pos, Radius: radius}
}

// NewSpotDesc creates a spot light descriptor.
//
// Parameters:
//   - pos: the light position
//   - dir: the cone axis
//   - radius: the emitter radius
//   - size: the full cone angle in degrees
//   - blend: the edge softness in [0, 1]
//   - opts: shared options applied in order
//
// Returns:
//   - SpotDesc: the descriptor
func NewSpotDesc(pos, dir [3]float32, radius, size, blend float32, opts ...CommonOption) SpotDesc {
	return SpotDesc{
		Common:    newCommon(opts),
		Position:  pos,
		Direction: dir,
		Radius:    radius,
		SpotSize:  size,
		SpotBlend: blend,
	}
}

// NewRectDesc creates a rectangle light descriptor.
func NewRectDesc(w, h float32, opts ...CommonOption) RectDesc {
	return RectDesc{Common: newCommon(opts), Width: w, Height: h}
}

// NewDiskDesc creates a disk light descriptor.
func NewDiskDesc(sx, sy float32, opts ...CommonOption) DiskDesc {
	return DiskDesc{Common: newCommon(opts), SizeX: sx, SizeY: sy}
}

// NewLineDesc creates a line light descriptor.
func NewLineDesc(radius, height float32, opts ...CommonOption) LineDesc {
	return LineDesc{Common: newCommon(opts), Radius: radius, Height: height}
}
