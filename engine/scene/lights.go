package scene

import (
	"fmt"
	"slices"

	"github.com/Carmen-Shannon/oxy-trace/engine/light"
)

func (s *scene) AddDirectionalLight(desc light.DirectionalDesc) (light.Handle, error) {
	return s.addNormalized(light.NewDirectional(desc))
}

func (s *scene) AddSphereLight(desc light.SphereDesc) (light.Handle, error) {
	return s.addNormalized(light.NewSphere(desc))
}

func (s *scene) AddSpotLight(desc light.SpotDesc) (light.Handle, error) {
	return s.addNormalized(light.NewSpot(desc))
}

func (s *scene) AddRectLight(desc light.RectDesc, xform [16]float32) (light.Handle, error) {
	return s.addNormalized(light.NewRect(desc, xform))
}

func (s *scene) AddDiskLight(desc light.DiskDesc, xform [16]float32) (light.Handle, error) {
	return s.addNormalized(light.NewDisk(desc, xform))
}

func (s *scene) AddLineLight(desc light.LineDesc, xform [16]float32) (light.Handle, error) {
	return s.addNormalized(light.NewLine(desc, xform))
}

func (s *scene) addNormalized(l light.Light, err error) (light.Handle, error) {
	if err != nil {
		return light.InvalidHandle, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	return s.addLight(l), nil
}

// addLight stores l and appends it to the index lists it belongs to. Callers hold the write lock.
func (s *scene) addLight(l light.Light) light.Handle {
	h := light.Handle(s.lights.Insert(l))
	s.lightIndices = append(s.lightIndices, h)
	if l.Visible {
		s.visibleLights = append(s.visibleLights, h)
	}
	if l.SkyPortal {
		s.blockerLights = append(s.blockerLights, h)
	}
	return h
}

func (s *scene) RemoveLight(h light.Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.lights.Exists(uint32(h)) {
		return fmt.Errorf("light %d: %w", h, ErrInvalidHandle)
	}
	s.touch()
	s.removeLight(h)

	// Instances and the environment must not keep a freed handle that a later light reuses.
	if h == s.envLight {
		s.envLight = light.InvalidHandle
	}
	for ih, inst := range s.instances.All() {
		if i := slices.Index(inst.Lights, h); i >= 0 {
			p := s.instances.Ptr(ih)
			p.Lights = slices.Delete(p.Lights, i, i+1)
		}
	}
	return nil
}

// removeLight erases h and retracts it from every index list. Callers hold the write lock.
func (s *scene) removeLight(h light.Handle) {
	if !s.lights.Exists(uint32(h)) {
		return
	}
	s.lights.Erase(uint32(h))
	match := func(v light.Handle) bool { return v == h }
	s.lightIndices = slices.DeleteFunc(s.lightIndices, match)
	s.visibleLights = slices.DeleteFunc(s.visibleLights, match)
	s.blockerLights = slices.DeleteFunc(s.blockerLights, match)
}
