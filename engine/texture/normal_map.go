package texture

// reconstructZThreshold is the blue value below which a normal map needs Z rebuilt in the shader.
const reconstructZThreshold = 250

// RepackNormalMap keeps the X and Y channels of a normal map. Z is dropped and rebuilt at
// shading time when any texel's blue channel falls below 250, or when the source has no Z.
//
// Parameters:
//   - src: w*h texels of ch bytes, ch of at least two (Desc.Validate rejects fewer)
//   - w, h: the image size
//   - ch: bytes per texel
//
// Returns:
//   - []byte: w*h two channel texels
//   - bool: whether Z must be reconstructed
func RepackNormalMap(src []byte, w, h, ch int) ([]byte, bool) {
	out := make([]byte, w*h*2)
	reconstruct := ch < 3
	for i := 0; i < w*h; i++ {
		out[i*2+0] = src[i*ch+0]
		out[i*2+1] = src[i*ch+1]
		if ch >= 3 && src[i*ch+2] < reconstructZThreshold {
			reconstruct = true
		}
	}
	return out, reconstruct
}
