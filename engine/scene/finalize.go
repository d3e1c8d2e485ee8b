package scene

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-trace/engine/environment"
	"github.com/Carmen-Shannon/oxy-trace/engine/light"
	"github.com/Carmen-Shannon/oxy-trace/engine/texture"
)

func (s *scene) Finalize() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.prof.Report()
	defer s.prof.Begin("finalize")()

	s.state = StateBuilding
	if s.envLight != light.InvalidHandle {
		s.removeLight(s.envLight)
		s.envLight = light.InvalidHandle
	}
	s.qtree = environment.QTree{}
	if s.qtreeImage != nil {
		s.device.Release(s.qtreeImage)
		s.qtreeImage = nil
	}

	if s.env.PhysicalSky || s.env.BackPhysicalSky {
		done := s.prof.Begin("sky")
		s.bakeSky()
		done()
	}

	if s.env.MultipleImportance && s.env.EnvLit() {
		done := s.prof.Begin("env qtree")
		err := s.buildEnvImportance()
		done()
		if err != nil {
			return fmt.Errorf("finalize: %w", err)
		}
	}

	done := s.prof.Begin("mips")
	s.finishDeferredMips()
	done()

	done = s.prof.Begin("atlas upload")
	err := s.uploadAtlasPages()
	done()
	if err != nil {
		return fmt.Errorf("finalize: %w", err)
	}

	done = s.prof.Begin("tlas")
	s.rebuildTLAS()
	done()

	s.state = StateFinalized
	s.logger.Info("scene: finalized",
		"meshes", s.meshes.Len(),
		"instances", s.instances.Len(),
		"lights", s.lights.Len(),
		"nodes", len(s.nodes),
		"qtree_levels", len(s.qtree.Levels),
		"env_light", s.envLight != light.InvalidHandle)
	return nil
}

// bakeSky replaces the requested environment maps with a sky lit by the directional lights.
// Without directional lights the requested maps are cleared.
func (s *scene) bakeSky() {
	s.removeTexture(s.sky)
	s.sky = texture.InvalidHandle

	var suns []light.Light
	for _, l := range s.lights.All() {
		if l.Kind == light.KindDirectional {
			suns = append(suns, l)
		}
	}

	if len(suns) > 0 {
		data := environment.BakeSky(suns, environment.SkyWidth, environment.SkyHeight, s.pool)
		s.sky = s.addTexture(texture.NewDesc(texture.FormatRGBA8, environment.SkyWidth, environment.SkyHeight, data,
			texture.WithName("Physical sky"),
			texture.WithoutCompression()))
	}
	if s.env.PhysicalSky {
		s.env.EnvMap = s.sky
	}
	if s.env.BackPhysicalSky {
		s.env.BackMap = s.sky
	}
}

// buildEnvImportance uploads the quadtree of the environment map, or a single black texel
// when there is no map, and registers the environment light.
func (s *scene) buildEnvImportance() error {
	var q environment.QTree
	if s.env.EnvMap != texture.InvalidHandle {
		data, w, h, err := s.readEnvMap(s.env.EnvMap)
		if err != nil {
			return err
		}
		q = environment.BuildQTree(data, w, h, w, s.pool)
	}

	desc, stage, regions := q.Stage()
	img, err := s.device.CreateImage(desc)
	if err != nil {
		return fmt.Errorf("env qtree: %w", err)
	}
	if err := s.device.Upload(img, stage, regions); err != nil {
		s.device.Release(img)
		return fmt.Errorf("env qtree: %w", err)
	}

	s.qtree = q
	s.qtreeImage = img
	s.envLight = s.addLight(light.NewEnvironment())
	s.logger.Debug("scene: env qtree built", "res", q.Res, "levels", len(q.Levels), "total", q.Total)
	return nil
}
