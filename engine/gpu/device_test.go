package gpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatSizes(t *testing.T) {
	tests := []struct {
		f       Format
		w, h    int
		row     int
		rows    int
		compact bool
	}{
		{FormatRGBA8, 5, 3, 20, 3, false},
		{FormatRGB8, 5, 3, 15, 3, false},
		{FormatRG8, 5, 3, 10, 3, false},
		{FormatR8, 5, 3, 5, 3, false},
		{FormatBC3, 8, 4, 32, 1, true},
		{FormatBC4, 5, 5, 16, 2, true},
		{FormatBC5, 4, 4, 16, 1, true},
		{FormatRGBA32F, 2, 2, 32, 2, false},
	}
	for _, tt := range tests {
		t.Run(tt.f.String(), func(t *testing.T) {
			assert.Equal(t, tt.row, tt.f.RowBytes(tt.w))
			assert.Equal(t, tt.rows, tt.f.Rows(tt.h))
			assert.Equal(t, tt.compact, tt.f.Compressed())
		})
	}
}

func TestMemoryDeviceRoundTrip(t *testing.T) {
	d := NewMemoryDevice()
	img, err := d.CreateImage(ImageDesc{Label: "t", Width: 4, Height: 2, MipCount: 2, Format: FormatRG8})
	require.NoError(t, err)
	assert.Equal(t, 1, d.LiveImages())

	// mip 0 rows pitched to 256 bytes, mip 1 at offset 512
	stage := make([]byte, 1024)
	for y := 0; y < 2; y++ {
		for x := 0; x < 8; x++ {
			stage[y*256+x] = byte(y*8 + x)
		}
	}
	stage[512], stage[513], stage[514], stage[515] = 1, 2, 3, 4

	require.NoError(t, d.Upload(img, stage, []Region{
		{Mip: 0, Offset: 0, BytesPerRow: 256},
		{Mip: 1, Offset: 512, BytesPerRow: 256},
	}))
	assert.Equal(t, 1, d.Uploads())

	mip0, err := d.Readback(img, 0, 0)
	require.NoError(t, err)
	want := make([]byte, 16)
	for i := range want {
		want[i] = byte(i)
	}
	assert.Equal(t, want, mip0)

	mip1, err := d.Readback(img, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, mip1)

	d.Release(img)
	d.Release(img)
	assert.Equal(t, 0, d.LiveImages())
	_, err = d.Readback(img, 0, 0)
	assert.ErrorIs(t, err, ErrImageReleased)
}

func TestMemoryDeviceRejectsUnsupportedFormats(t *testing.T) {
	d := NewMemoryDevice()
	_, err := d.CreateImage(ImageDesc{Width: 4, Height: 4, Format: FormatRGB8})
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	plain := NewMemoryDevice(WithCaps(Caps{RGB8Supported: true}))
	_, err = plain.CreateImage(ImageDesc{Width: 4, Height: 4, Format: FormatBC3})
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
	_, err = plain.CreateImage(ImageDesc{Width: 4, Height: 4, Format: FormatRGB8})
	assert.NoError(t, err)
}

func TestUploadRejectsBadRegions(t *testing.T) {
	d := NewMemoryDevice()
	img, err := d.CreateImage(ImageDesc{Width: 4, Height: 4, Format: FormatRGBA8})
	require.NoError(t, err)

	stage := make([]byte, 64)
	tests := []Region{
		{Mip: 1, BytesPerRow: 16},
		{Layer: 1, BytesPerRow: 16},
		{BytesPerRow: 8},
		{Offset: 1, BytesPerRow: 16},
	}
	for _, r := range tests {
		assert.ErrorIs(t, d.Upload(img, stage, []Region{r}), ErrInvalidRegion, "%+v", r)
	}
	assert.Zero(t, d.Uploads())
}
