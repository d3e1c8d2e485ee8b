package environment

import "github.com/Carmen-Shannon/oxy-trace/engine/texture"

// DescOption is a function that configures a Desc during construction.
type DescOption func(*Desc)

// NewDesc creates an environment descriptor. The defaults are a black environment with no
// maps and multiple importance sampling enabled.
//
// Parameters:
//   - opts: options applied in order
//
// Returns:
//   - Desc: the descriptor
func NewDesc(opts ...DescOption) Desc {
	d := Desc{
		EnvMap:             texture.InvalidHandle,
		BackMap:            texture.InvalidHandle,
		MultipleImportance: true,
	}
	for _, opt := range opts {
		opt(&d)
	}
	return d
}

// WithEnvColor is an option builder that sets the environment radiance multiplier.
//
// Parameters:
//   - r, g, b: color components
//
// Returns:
//   - DescOption: a function that applies the option
func WithEnvColor(r, g, b float32) DescOption {
	return func(d *Desc) {
		d.EnvColor = [3]float32{r, g, b}
	}
}

// WithEnvMap is an option builder that sets the lighting map and its rotation around Y in radians.
func WithEnvMap(h texture.Handle, rotation float32) DescOption {
	return func(d *Desc) {
		d.EnvMap = h
		d.EnvMapRotation = rotation
	}
}

// WithBackColor is an option builder that sets the background radiance multiplier.
func WithBackColor(r, g, b float32) DescOption {
	return func(d *Desc) {
		d.BackColor = [3]float32{r, g, b}
	}
}

// WithBackMap is an option builder that sets the background map and its rotation around Y in radians.
func WithBackMap(h texture.Handle, rotation float32) DescOption {
	return func(d *Desc) {
		d.BackMap = h
		d.BackMapRotation = rotation
	}
}

// WithMultipleImportance is an option builder that toggles explicit environment sampling.
func WithMultipleImportance(on bool) DescOption {
	return func(d *Desc) {
		d.MultipleImportance = on
	}
}

// WithPhysicalSky is an option builder that requests a sky baked from the directional lights.
//
// Parameters:
//   - env: use the sky as the lighting map
//   - back: use the sky as the background map
//
// Returns:
//   - DescOption: a function that applies the option
func WithPhysicalSky(env, back bool) DescOption {
	return func(d *Desc) {
		d.PhysicalSky = env
		d.BackPhysicalSky = back
	}
}
