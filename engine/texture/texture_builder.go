package texture

// DescOption is a function that configures a Desc during construction.
type DescOption func(*Desc)

// NewDesc creates a texture descriptor over tightly packed 8-bit texels.
//
// Parameters:
//   - format: the texel layout of data
//   - w, h: the texture size
//   - data: w*h texels
//   - opts: options applied in order
//
// Returns:
//   - Desc: the descriptor
func NewDesc(format Format, w, h int, data []byte, opts ...DescOption) Desc {
	d := Desc{Format: format, Width: w, Height: h, Data: data}
	for _, opt := range opts {
		opt(&d)
	}
	return d
}

// WithName is an option builder that sets the diagnostic name of the texture.
func WithName(name string) DescOption {
	return func(d *Desc) {
		d.Name = name
	}
}

// WithSRGB is an option builder that marks the texels as sRGB encoded.
func WithSRGB(on bool) DescOption {
	return func(d *Desc) {
		d.SRGB = on
	}
}

// WithNormalMap is an option builder that marks the texture as a tangent-space normal map.
// Normal maps are repacked to two channels and Z is rebuilt at shading time.
//
// Parameters:
//   - on: whether the texture is a normal map
//
// Returns:
//   - DescOption: a function that applies the option
func WithNormalMap(on bool) DescOption {
	return func(d *Desc) {
		d.NormalMap = on
	}
}

// WithMipmaps is an option builder that requests a mip chain.
func WithMipmaps(on bool) DescOption {
	return func(d *Desc) {
		d.GenerateMipmaps = on
	}
}

// WithoutCompression is an option builder that keeps the texture uncompressed even when the
// scene compresses textures.
func WithoutCompression() DescOption {
	return func(d *Desc) {
		d.ForceNoCompression = true
	}
}
