package bvh

// Default build parameters.
const (
	DefaultMaxLeafPrims = 8
	// SpatialSplitAlpha is the fraction of the root surface area that the overlap of the best
	// object split children must exceed before spatial splits are evaluated.
	SpatialSplitAlpha = 1e-5
)

// Settings controls how a hierarchy is built.
type Settings struct {
	AllowSpatialSplits bool
	UseFastBuild       bool
	MaxLeafPrims       int
}

// SettingsOption configures Settings during construction.
type SettingsOption func(*Settings)

// NewSettings creates build settings with spatial splits off, the full SAH sweep, and
// DefaultMaxLeafPrims, then applies the provided options.
//
// Parameters:
//   - opts: options applied in order
//
// Returns:
//   - Settings: the build settings
func NewSettings(opts ...SettingsOption) Settings {
	s := Settings{MaxLeafPrims: DefaultMaxLeafPrims}
	for _, opt := range opts {
		opt(&s)
	}
	if s.MaxLeafPrims < 1 {
		s.MaxLeafPrims = 1
	}
	return s
}

// WithSpatialSplits is an option builder that enables reference splitting of triangles that
// straddle a split plane. It trades build time and reference count for tighter nodes.
//
// Parameters:
//   - on: whether spatial splits are considered
//
// Returns:
//   - SettingsOption: a function that applies the option
func WithSpatialSplits(on bool) SettingsOption {
	return func(s *Settings) {
		s.AllowSpatialSplits = on
	}
}

// WithFastBuild is an option builder that replaces the full SAH sweep with binned SAH.
//
// Parameters:
//   - on: whether the binned builder is used
//
// Returns:
//   - SettingsOption: a function that applies the option
func WithFastBuild(on bool) SettingsOption {
	return func(s *Settings) {
		s.UseFastBuild = on
	}
}

// WithMaxLeafPrims is an option builder that sets the primitive count above which a node is
// always split.
//
// Parameters:
//   - n: the leaf size limit, at least 1
//
// Returns:
//   - SettingsOption: a function that applies the option
func WithMaxLeafPrims(n int) SettingsOption {
	return func(s *Settings) {
		s.MaxLeafPrims = n
	}
}
