package gpu

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-trace/common"
	"github.com/cogentcore/webgpu/wgpu"
)

// copyPitchAlignment is the row alignment WebGPU requires for texture to buffer copies.
const copyPitchAlignment = 256

type wgpuImage struct {
	desc     ImageDesc
	texture  *wgpu.Texture
	released bool
}

func (w *wgpuImage) Desc() ImageDesc {
	return w.desc
}

type wgpuDevice struct {
	mu     *sync.Mutex
	device *wgpu.Device
	queue  *wgpu.Queue

	instance *wgpu.Instance
	adapter  *wgpu.Adapter

	label         string
	forceFallback bool
	caps          Caps
}

var _ Device = &wgpuDevice{}

// NewWGPUDevice creates a headless WebGPU device. WebGPU has no three-channel 8-bit format, so
// the device never reports RGB8 support, and mip chains are always built on the CPU.
//
// Parameters:
//   - options: functional options to configure the adapter and device
//
// Returns:
//   - Device: the new device
//   - error: if no adapter or device could be created
func NewWGPUDevice(options ...WGPUDeviceOption) (Device, error) {
	d := &wgpuDevice{
		mu:    &sync.Mutex{},
		label: "Scene Device",
	}
	for _, option := range options {
		option(d)
	}

	d.instance = wgpu.CreateInstance(nil)
	a, err := d.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		ForceFallbackAdapter: d.forceFallback,
	})
	if err != nil {
		d.instance.Release()
		return nil, fmt.Errorf("failed to request adapter: %w", err)
	}
	d.adapter = a

	limits := wgpu.DefaultLimits()
	desc := &wgpu.DeviceDescriptor{
		Label: d.label,
		RequiredLimits: &wgpu.RequiredLimits{
			Limits: limits,
		},
	}
	if d.caps.TextureCompression {
		desc.RequiredFeatures = []wgpu.FeatureName{wgpu.FeatureNameTextureCompressionBC}
	}

	dev, err := a.RequestDevice(desc)
	if err != nil {
		a.Release()
		d.instance.Release()
		return nil, fmt.Errorf("failed to request device: %w", err)
	}
	d.device = dev
	d.queue = dev.GetQueue()
	d.caps.MaxImageSize = int(limits.MaxTextureDimension2D)

	common.Logger().Info("wgpu device created", "label", d.label, "bc", d.caps.TextureCompression)
	return d, nil
}

func (d *wgpuDevice) Caps() Caps {
	return d.caps
}

func toWGPUFormat(f Format, srgb bool) (wgpu.TextureFormat, error) {
	switch f {
	case FormatRGBA8:
		if srgb {
			return wgpu.TextureFormatRGBA8UnormSrgb, nil
		}
		return wgpu.TextureFormatRGBA8Unorm, nil
	case FormatRG8:
		return wgpu.TextureFormatRG8Unorm, nil
	case FormatR8:
		return wgpu.TextureFormatR8Unorm, nil
	case FormatBC3:
		if srgb {
			return wgpu.TextureFormatBC3RGBAUnormSrgb, nil
		}
		return wgpu.TextureFormatBC3RGBAUnorm, nil
	case FormatBC4:
		return wgpu.TextureFormatBC4RUnorm, nil
	case FormatBC5:
		return wgpu.TextureFormatBC5RGUnorm, nil
	case FormatRGBA32F:
		return wgpu.TextureFormatRGBA32Float, nil
	default:
		return wgpu.TextureFormatUndefined, fmt.Errorf("%v: %w", f, ErrUnsupportedFormat)
	}
}

func (d *wgpuDevice) CreateImage(desc ImageDesc) (Image, error) {
	format, err := toWGPUFormat(desc.Format, desc.SRGB)
	if err != nil {
		return nil, err
	}
	if desc.Format.Compressed() && !d.caps.TextureCompression {
		return nil, fmt.Errorf("%v without BC feature: %w", desc.Format, ErrUnsupportedFormat)
	}
	desc.Layers = max(desc.Layers, 1)
	desc.MipCount = max(desc.MipCount, 1)

	d.mu.Lock()
	defer d.mu.Unlock()

	tex, err := d.device.CreateTexture(&wgpu.TextureDescriptor{
		Label:     desc.Label,
		Usage:     wgpu.TextureUsageTextureBinding | wgpu.TextureUsageCopyDst | wgpu.TextureUsageCopySrc,
		Dimension: wgpu.TextureDimension2D,
		Size: wgpu.Extent3D{
			Width:              uint32(desc.Width),
			Height:             uint32(desc.Height),
			DepthOrArrayLayers: uint32(desc.Layers),
		},
		Format:        format,
		MipLevelCount: uint32(desc.MipCount),
		SampleCount:   1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create image %q: %w", desc.Label, err)
	}
	return &wgpuImage{desc: desc, texture: tex}, nil
}

func (d *wgpuDevice) Upload(img Image, stage []byte, regions []Region) error {
	w, err := d.image(img)
	if err != nil {
		return err
	}

	sizes := make([]int, len(regions))
	for i, r := range regions {
		if sizes[i], err = CheckRegion(w.desc, len(stage), r); err != nil {
			return err
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	for i, r := range regions {
		mw, mh := MipExtent(w.desc.Width, w.desc.Height, r.Mip)
		d.queue.WriteTexture(
			&wgpu.ImageCopyTexture{
				Texture:  w.texture,
				MipLevel: uint32(r.Mip),
				Origin:   wgpu.Origin3D{Z: uint32(r.Layer)},
				Aspect:   wgpu.TextureAspectAll,
			},
			stage[r.Offset:r.Offset+sizes[i]],
			&wgpu.TextureDataLayout{
				Offset:       0,
				BytesPerRow:  uint32(r.BytesPerRow),
				RowsPerImage: uint32(w.desc.Format.Rows(mh)),
			},
			&wgpu.Extent3D{
				Width:              uint32(physicalExtent(w.desc.Format, mw)),
				Height:             uint32(physicalExtent(w.desc.Format, mh)),
				DepthOrArrayLayers: 1,
			},
		)
	}

	// Writes are flushed by the next submission; wait for it so the call is blocking.
	encoder, err := d.device.CreateCommandEncoder(nil)
	if err != nil {
		return fmt.Errorf("failed to create command encoder: %w", err)
	}
	cmd, err := encoder.Finish(nil)
	if err != nil {
		encoder.Release()
		return fmt.Errorf("failed to finish upload commands: %w", err)
	}
	d.queue.Submit(cmd)
	cmd.Release()
	encoder.Release()
	d.device.Poll(true, nil)
	return nil
}

func (d *wgpuDevice) Readback(img Image, mip, layer int) ([]byte, error) {
	w, err := d.image(img)
	if err != nil {
		return nil, err
	}
	if mip < 0 || mip >= w.desc.MipCount || layer < 0 || layer >= w.desc.Layers {
		return nil, fmt.Errorf("mip %d layer %d: %w", mip, layer, ErrReadbackFailed)
	}

	mw, mh := MipExtent(w.desc.Width, w.desc.Height, mip)
	row := w.desc.Format.RowBytes(mw)
	rows := w.desc.Format.Rows(mh)
	pitch := common.RoundUp(row, copyPitchAlignment)
	size := uint64(pitch * rows)

	d.mu.Lock()
	defer d.mu.Unlock()

	buf, err := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label:            w.desc.Label + " Readback",
		Size:             size,
		Usage:            wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
		MappedAtCreation: false,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readback buffer: %w", err)
	}
	defer buf.Release()

	encoder, err := d.device.CreateCommandEncoder(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create command encoder: %w", err)
	}
	encoder.CopyTextureToBuffer(
		&wgpu.ImageCopyTexture{
			Texture:  w.texture,
			MipLevel: uint32(mip),
			Origin:   wgpu.Origin3D{Z: uint32(layer)},
			Aspect:   wgpu.TextureAspectAll,
		},
		&wgpu.ImageCopyBuffer{
			Layout: wgpu.TextureDataLayout{
				Offset:       0,
				BytesPerRow:  uint32(pitch),
				RowsPerImage: uint32(rows),
			},
			Buffer: buf,
		},
		&wgpu.Extent3D{
			Width:              uint32(physicalExtent(w.desc.Format, mw)),
			Height:             uint32(physicalExtent(w.desc.Format, mh)),
			DepthOrArrayLayers: 1,
		},
	)
	cmd, err := encoder.Finish(nil)
	if err != nil {
		encoder.Release()
		return nil, fmt.Errorf("failed to finish readback commands: %w", err)
	}
	d.queue.Submit(cmd)
	cmd.Release()
	encoder.Release()

	var status wgpu.BufferMapAsyncStatus
	if err := buf.MapAsync(wgpu.MapModeRead, 0, size, func(s wgpu.BufferMapAsyncStatus) {
		status = s
	}); err != nil {
		return nil, fmt.Errorf("failed to map readback buffer: %w", err)
	}
	d.device.Poll(true, nil)
	if status != wgpu.BufferMapAsyncStatusSuccess {
		return nil, errors.Join(ErrReadbackFailed, fmt.Errorf("map status %v", status))
	}

	mapped := buf.GetMappedRange(0, uint(size))
	out := make([]byte, row*rows)
	for y := 0; y < rows; y++ {
		copy(out[y*row:(y+1)*row], mapped[y*pitch:])
	}
	buf.Unmap()
	return out, nil
}

func (d *wgpuDevice) Release(img Image) {
	w, ok := img.(*wgpuImage)
	if !ok || w.released {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	w.released = true
	w.texture.Release()
	w.texture = nil
}

func (d *wgpuDevice) image(img Image) (*wgpuImage, error) {
	w, ok := img.(*wgpuImage)
	if !ok || w == nil {
		return nil, fmt.Errorf("gpu: image %T does not belong to this device", img)
	}
	if w.released {
		return nil, ErrImageReleased
	}
	return w, nil
}

// physicalExtent rounds a mip dimension up to whole blocks for compressed formats.
func physicalExtent(f Format, v int) int {
	if f.Compressed() {
		return (v + 3) &^ 3
	}
	return v
}
