package gpu

import (
	"fmt"
	"sync"
)

type memoryImage struct {
	desc     ImageDesc
	data     [][][]byte // [layer][mip]
	released bool
}

func (m *memoryImage) Desc() ImageDesc {
	return m.desc
}

type memoryDevice struct {
	mu      sync.Mutex
	caps    Caps
	live    int
	uploads int
}

var _ Device = &memoryDevice{}

// MemoryDevice is a host-memory Device used for tests and headless compilation. Besides the
// Device methods it reports how many images are alive and how many uploads were submitted.
type MemoryDevice interface {
	Device

	// LiveImages returns the number of created and not yet released images.
	LiveImages() int

	// Uploads returns the number of Upload calls that succeeded.
	Uploads() int
}

// NewMemoryDevice creates a Device that keeps images in host memory. By default it supports
// every format except RGB8, cannot blit, and limits images to 16384 texels per side.
//
// Parameters:
//   - options: functional options to override the capabilities
//
// Returns:
//   - MemoryDevice: the new device
func NewMemoryDevice(options ...MemoryDeviceOption) MemoryDevice {
	d := &memoryDevice{
		caps: Caps{
			TextureCompression: true,
			MaxImageSize:       16384,
		},
	}
	for _, option := range options {
		option(d)
	}
	return d
}

func (d *memoryDevice) Caps() Caps {
	return d.caps
}

func (d *memoryDevice) CreateImage(desc ImageDesc) (Image, error) {
	switch {
	case desc.Format == FormatUndefined,
		desc.Format == FormatRGB8 && !d.caps.RGB8Supported,
		desc.Format.Compressed() && !d.caps.TextureCompression:
		return nil, fmt.Errorf("%v: %w", desc.Format, ErrUnsupportedFormat)
	}
	if desc.Width <= 0 || desc.Height <= 0 || desc.Width > d.caps.MaxImageSize || desc.Height > d.caps.MaxImageSize {
		return nil, fmt.Errorf("image %q is %dx%d: %w", desc.Label, desc.Width, desc.Height, ErrInvalidRegion)
	}
	desc.Layers = max(desc.Layers, 1)
	desc.MipCount = max(desc.MipCount, 1)

	img := &memoryImage{desc: desc, data: make([][][]byte, desc.Layers)}
	for l := range img.data {
		img.data[l] = make([][]byte, desc.MipCount)
		for m := range img.data[l] {
			w, h := MipExtent(desc.Width, desc.Height, m)
			img.data[l][m] = make([]byte, desc.Format.RowBytes(w)*desc.Format.Rows(h))
		}
	}

	d.mu.Lock()
	d.live++
	d.mu.Unlock()
	return img, nil
}

func (d *memoryDevice) Upload(img Image, stage []byte, regions []Region) error {
	m, err := d.image(img)
	if err != nil {
		return err
	}

	sizes := make([]int, len(regions))
	for i, r := range regions {
		if sizes[i], err = CheckRegion(m.desc, len(stage), r); err != nil {
			return err
		}
	}

	for _, r := range regions {
		w, h := MipExtent(m.desc.Width, m.desc.Height, r.Mip)
		row := m.desc.Format.RowBytes(w)
		dst := m.data[r.Layer][r.Mip]
		for y := 0; y < m.desc.Format.Rows(h); y++ {
			copy(dst[y*row:(y+1)*row], stage[r.Offset+y*r.BytesPerRow:])
		}
	}

	d.mu.Lock()
	d.uploads++
	d.mu.Unlock()
	return nil
}

func (d *memoryDevice) Readback(img Image, mip, layer int) ([]byte, error) {
	m, err := d.image(img)
	if err != nil {
		return nil, err
	}
	if layer < 0 || layer >= len(m.data) || mip < 0 || mip >= len(m.data[layer]) {
		return nil, fmt.Errorf("mip %d layer %d: %w", mip, layer, ErrReadbackFailed)
	}
	out := make([]byte, len(m.data[layer][mip]))
	copy(out, m.data[layer][mip])
	return out, nil
}

func (d *memoryDevice) Release(img Image) {
	m, ok := img.(*memoryImage)
	if !ok || m.released {
		return
	}
	m.released = true
	m.data = nil

	d.mu.Lock()
	d.live--
	d.mu.Unlock()
}

func (d *memoryDevice) LiveImages() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.live
}

func (d *memoryDevice) Uploads() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.uploads
}

func (d *memoryDevice) image(img Image) (*memoryImage, error) {
	m, ok := img.(*memoryImage)
	if !ok || m == nil {
		return nil, fmt.Errorf("gpu: image %T does not belong to this device", img)
	}
	if m.released {
		return nil, ErrImageReleased
	}
	return m, nil
}
