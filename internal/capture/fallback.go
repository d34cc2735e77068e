package capture

// fallbackPattern generates the deterministic ARGB8888-equivalent test
// raster spec.md section 4.G specifies for the last rung of the ladder:
// R = x*255/w, G = y*255/h, B = 128, A = 255. Used when the dumb-buffer
// shadow cannot be populated from the real scanout buffer (source is not
// CPU-mappable by any available path).
func fallbackPattern(w, h int) []byte {
	out := make([]byte, w*h*4)
	for y := 0; y < h; y++ {
		g := byte(y * 255 / h)
		for x := 0; x < w; x++ {
			r := byte(x * 255 / w)
			i := (y*w + x) * 4
			// Byte order matches ARGB8888 as internal/pixfmt unpacks it:
			// B, G, R, A little-endian within the 32-bit word.
			out[i+0] = 128
			out[i+1] = g
			out[i+2] = r
			out[i+3] = 255
		}
	}
	return out
}
