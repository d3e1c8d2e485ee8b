package gpu

// MemoryDeviceOption is a function that configures a memory device during construction.
type MemoryDeviceOption func(*memoryDevice)

// WithCaps is an option builder that replaces the capabilities reported by a memory device.
//
// Parameters:
//   - caps: the capabilities to report
//
// Returns:
//   - MemoryDeviceOption: a function that applies the capabilities
func WithCaps(caps Caps) MemoryDeviceOption {
	return func(d *memoryDevice) {
		if caps.MaxImageSize <= 0 {
			caps.MaxImageSize = d.caps.MaxImageSize
		}
		d.caps = caps
	}
}

// WGPUDeviceOption is a function that configures a WebGPU device during construction.
type WGPUDeviceOption func(*wgpuDevice)

// WithForceFallbackAdapter is an option builder that requests the software adapter.
//
// Parameters:
//   - force: whether the fallback adapter is required
//
// Returns:
//   - WGPUDeviceOption: a function that applies the option
func WithForceFallbackAdapter(force bool) WGPUDeviceOption {
	return func(d *wgpuDevice) {
		d.forceFallback = force
	}
}

// WithBCCompression is an option builder that requests the BC texture compression feature.
// Device creation fails if the adapter does not offer it.
//
// Parameters:
//   - on: whether BC3, BC4 and BC5 images are required
//
// Returns:
//   - WGPUDeviceOption: a function that applies the option
func WithBCCompression(on bool) WGPUDeviceOption {
	return func(d *wgpuDevice) {
		d.caps.TextureCompression = on
	}
}

// WithDeviceLabel is an option builder that sets the debug label of the device.
func WithDeviceLabel(label string) WGPUDeviceOption {
	return func(d *wgpuDevice) {
		d.label = label
	}
}
