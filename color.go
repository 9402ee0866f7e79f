package avimjpeg

// clamp clamps an int32 value to the valid 8-bit sample range [0, 255].
func clamp(x int32) byte {
	if x < 0 {
		return 0
	}

	if x > 255 {
		return 255
	}

	return byte(x)
}

// upsample brings a subsampled component plane to full resolution.
// Horizontal 2:1 planes use triangle filtering, any other ratio replicates samples.
func upsample(c *component, hf, vf, width, height int) {
	if hf == 1 && vf == 1 {
		c.out, c.outStride = c.pixels, c.stride

		return
	}

	if hf == 2 && vf == 1 {
		upsampleH2V1(c, height)

		return
	}

	upsampleNearest(c, hf, vf, width, height)
}

// upsampleH2V1 doubles the width of c with the fancy filter: each output sample is
// 3/4 of the nearer and 1/4 of the further input sample.
func upsampleH2V1(c *component, height int) {
	n := c.width
	c.outStride = n << 1
	c.upsampled = grow(c.upsampled, c.outStride*height)
	c.out = c.upsampled

	for y := 0; y < height; y++ {
		in := c.pixels[y*c.stride : y*c.stride+n]
		out := c.out[y*c.outStride : (y+1)*c.outStride]

		if n == 1 {
			out[0], out[1] = in[0], in[0]

			continue
		}

		v := int32(in[0])
		out[0] = in[0]
		out[1] = byte((v*3 + int32(in[1]) + 2) >> 2)

		for x := 1; x < n-1; x++ {
			v = int32(in[x]) * 3
			out[2*x] = byte((v + int32(in[x-1]) + 1) >> 2)
			out[2*x+1] = byte((v + int32(in[x+1]) + 2) >> 2)
		}

		v = int32(in[n-1]) * 3
		out[2*n-2] = byte((v + int32(in[n-2]) + 1) >> 2)
		out[2*n-1] = in[n-1]
	}
}

// upsampleNearest replicates every sample hf times across and vf times down.
func upsampleNearest(c *component, hf, vf, width, height int) {
	c.outStride = width
	c.upsampled = grow(c.upsampled, width*height)
	c.out = c.upsampled

	for y := 0; y < height; y++ {
		in := c.pixels[(y/vf)*c.stride:]
		out := c.out[y*width : (y+1)*width]

		for x := range out {
			out[x] = in[x/hf]
		}
	}
}

// ycbcrToRGB converts one row of full-resolution YCbCr samples.
func ycbcrToRGB(dst, yr, cbr, crr []byte, width int) {
	_ = dst[width*3-1]

	for x := 0; x < width; x++ {
		y := int32(yr[x]) << 8
		cb := int32(cbr[x]) - 128
		cr := int32(crr[x]) - 128

		dst[3*x] = clamp((y + 359*cr + 128) >> 8)
		dst[3*x+1] = clamp((y - 88*cb - 183*cr + 128) >> 8)
		dst[3*x+2] = clamp((y + 454*cb + 128) >> 8)
	}
}

// planarToRGB interleaves one row of R, G and B planes.
func planarToRGB(dst, r, g, b []byte, width int) {
	_ = dst[width*3-1]

	for x := 0; x < width; x++ {
		dst[3*x] = r[x]
		dst[3*x+1] = g[x]
		dst[3*x+2] = b[x]
	}
}

// grayToRGB expands one row of luma samples.
func grayToRGB(dst, lum []byte, width int) {
	_ = dst[width*3-1]

	for x := 0; x < width; x++ {
		v := lum[x]
		dst[3*x] = v
		dst[3*x+1] = v
		dst[3*x+2] = v
	}
}

// grow returns b resized to n bytes, reusing its storage when possible. The result is zeroed.
func grow(b []byte, n int) []byte {
	if cap(b) < n {
		return make([]byte, n)
	}

	b = b[:n]
	clear(b)

	return b
}
