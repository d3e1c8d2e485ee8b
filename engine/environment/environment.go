// Package environment describes the scene's distant lighting and builds the quadtree used to
// importance sample it.
package environment

import (
	"github.com/Carmen-Shannon/oxy-trace/engine/texture"
)

// Desc describes the environment. EnvMap lights the scene, BackMap is what camera rays see.
// Maps are RGBE encoded RGBA8 textures in an equirectangular layout.
type Desc struct {
	EnvColor        [3]float32
	EnvMap          texture.Handle
	EnvMapRotation  float32
	BackColor       [3]float32
	BackMap         texture.Handle
	BackMapRotation float32

	// MultipleImportance enables explicit sampling of the environment through its quadtree.
	MultipleImportance bool

	// PhysicalSky replaces EnvMap with a sky baked from the directional lights at Finalize.
	PhysicalSky bool
	// BackPhysicalSky replaces BackMap with the same baked sky.
	BackPhysicalSky bool
}

// EnvLit reports whether the environment contributes light for importance sampling.
func (d Desc) EnvLit() bool {
	return d.EnvColor[0] > 0 && d.EnvColor[1] > 0 && d.EnvColor[2] > 0
}
