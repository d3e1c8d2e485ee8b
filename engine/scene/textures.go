package scene

import (
	"fmt"
	"slices"

	"github.com/Carmen-Shannon/oxy-trace/engine/gpu"
	"github.com/Carmen-Shannon/oxy-trace/engine/texture"
)

func (s *scene) AddTexture(desc texture.Desc) texture.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	return s.addTexture(desc)
}

// addTexture stores desc in the configured mode. Callers hold the write lock.
func (s *scene) addTexture(desc texture.Desc) texture.Handle {
	var h texture.Handle
	var err error
	if s.bindless {
		h, err = s.addBindless(desc)
	} else {
		h, err = s.addAtlas(desc)
	}
	if err != nil {
		s.logger.Warn("scene: texture rejected",
			"name", desc.Name,
			"format", desc.Format,
			"width", desc.Width,
			"height", desc.Height,
			"error", err)
		return texture.InvalidHandle
	}
	s.logger.Info("scene: texture added", "name", desc.Name, "handle", h, "bindless", s.bindless)
	return h
}

func (s *scene) addAtlas(desc texture.Desc) (texture.Handle, error) {
	caps := s.device.Caps()
	rec, deferred, err := s.atlases.Add(desc, texture.IngestOptions{
		Compress:  s.compress && caps.TextureCompression,
		DeferMips: caps.BlitSupported,
		Pool:      s.pool,
	})
	if err != nil {
		return texture.InvalidHandle, err
	}
	idx := s.atlasTextures.Insert(rec)
	if deferred {
		s.deferredMips = append(s.deferredMips, idx)
	}
	return texture.Handle(idx), nil
}

func (s *scene) addBindless(desc texture.Desc) (texture.Handle, error) {
	st, err := texture.StageBindless(desc, s.device.Caps(), s.compress, s.pool)
	if err != nil {
		return texture.InvalidHandle, err
	}
	img, err := s.device.CreateImage(st.Image)
	if err != nil {
		return texture.InvalidHandle, err
	}
	if err := s.device.Upload(img, st.Stage, st.Regions); err != nil {
		s.device.Release(img)
		return texture.InvalidHandle, err
	}

	idx := s.bindlessImages.Insert(img)
	if idx > texture.TexIndexBits {
		s.bindlessImages.Erase(idx)
		s.device.Release(img)
		return texture.InvalidHandle, fmt.Errorf("bindless index %d: %w", idx, ErrInvalidHandle)
	}
	return texture.Handle(idx | st.Flags), nil
}

// removeTexture frees a texture. Atlas regions are not reclaimed. Callers hold the write lock.
func (s *scene) removeTexture(h texture.Handle) {
	if h == texture.InvalidHandle {
		return
	}
	idx := h.Index()
	if s.bindless {
		if s.bindlessImages.Exists(idx) {
			s.device.Release(s.bindlessImages.Get(idx))
			s.bindlessImages.Erase(idx)
		}
		return
	}
	if s.atlasTextures.Exists(idx) {
		s.atlasTextures.Erase(idx)
		s.deferredMips = slices.DeleteFunc(s.deferredMips, func(v uint32) bool { return v == idx })
	}
}

// finishDeferredMips builds the mip chains left to Finalize. Textures whose chain no longer
// fits keep sampling their top level.
func (s *scene) finishDeferredMips() {
	for _, idx := range s.deferredMips {
		if !s.atlasTextures.Exists(idx) {
			continue
		}
		rec := s.atlasTextures.Get(idx)
		if err := s.atlases.FinishMips(&rec, s.pool); err != nil {
			s.logger.Warn("scene: deferred mips dropped", "texture", idx, "error", err)
			continue
		}
		s.atlasTextures.Set(idx, rec)
	}
	s.deferredMips = s.deferredMips[:0]
}

// uploadAtlasPages writes every dirty page to the array image of its page set. A page set that
// grew gets a new image and uploads all its pages. RGB pages are widened to RGBA when the
// device has no three channel format.
func (s *scene) uploadAtlasPages() error {
	caps := s.device.Caps()
	for set := 0; set < texture.NumAtlases; set++ {
		a := s.atlases.Atlas(set)
		count := a.PageCount()
		if count == 0 {
			continue
		}

		format := a.Format()
		widen := format == gpu.FormatRGB8 && !caps.RGB8Supported
		if widen {
			format = gpu.FormatRGBA8
		}
		size := a.PageSize()

		pages := a.DirtyPages()
		img := s.atlasImages[set]
		if img == nil || img.Desc().Layers != count {
			if img != nil {
				s.device.Release(img)
				s.atlasImages[set] = nil
			}
			created, err := s.device.CreateImage(gpu.ImageDesc{
				Label:    fmt.Sprintf("Atlas %v", a.Format()),
				Width:    size,
				Height:   size,
				Layers:   count,
				MipCount: 1,
				Format:   format,
			})
			if err != nil {
				return fmt.Errorf("atlas %d: %w", set, err)
			}
			s.atlasImages[set] = created
			pages = make([]int, count)
			for i := range pages {
				pages[i] = i
			}
		}
		if len(pages) == 0 {
			continue
		}

		row := format.RowBytes(size)
		stage := make([]byte, 0, len(pages)*row*format.Rows(size))
		regions := make([]gpu.Region, 0, len(pages))
		for _, p := range pages {
			data := a.Page(p)
			if widen {
				data = texture.ExpandChannels(data, size, size, 3, 4, 255)
			}
			regions = append(regions, gpu.Region{Layer: p, Offset: len(stage), BytesPerRow: row})
			stage = append(stage, data...)
		}
		if err := s.device.Upload(s.atlasImages[set], stage, regions); err != nil {
			return fmt.Errorf("atlas %d: %w", set, err)
		}
		a.MarkClean()
		s.logger.Debug("scene: atlas pages uploaded", "set", set, "pages", len(pages), "utilization", a.Utilization())
	}
	return nil
}

// readEnvMap returns the top level of an RGBE environment texture.
func (s *scene) readEnvMap(h texture.Handle) ([]byte, int, int, error) {
	idx := h.Index()
	if s.bindless {
		if h == texture.InvalidHandle || !s.bindlessImages.Exists(idx) {
			return nil, 0, 0, fmt.Errorf("environment map %d: %w", h, ErrInvalidHandle)
		}
		img := s.bindlessImages.Get(idx)
		d := img.Desc()
		if d.Format != gpu.FormatRGBA8 {
			return nil, 0, 0, fmt.Errorf("environment map %d is %v: %w", h, d.Format, ErrInvalidEnvMap)
		}
		data, err := s.device.Readback(img, 0, 0)
		if err != nil {
			return nil, 0, 0, fmt.Errorf("environment map %d: %w", h, err)
		}
		return data, d.Width, d.Height, nil
	}

	if h == texture.InvalidHandle || !s.atlasTextures.Exists(idx) {
		return nil, 0, 0, fmt.Errorf("environment map %d: %w", h, ErrInvalidHandle)
	}
	rec := s.atlasTextures.Get(idx)
	if rec.Atlas != texture.AtlasRGBA {
		return nil, 0, 0, fmt.Errorf("environment map %d in atlas %d: %w", h, rec.Atlas, ErrInvalidEnvMap)
	}
	w, hgt := rec.Size()
	data, err := s.atlases.Atlas(texture.AtlasRGBA).ReadRegion(texture.Region{
		Page: int(rec.Page[0]),
		Pos:  [2]int{int(rec.Pos[0][0]), int(rec.Pos[0][1])},
	}, w, hgt)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("environment map %d: %w", h, err)
	}
	return data, w, hgt, nil
}
