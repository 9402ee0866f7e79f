package avimjpeg

import "fmt"

// EncodeFrame encodes f as an AVI MJPEG chunk payload into dst and returns the number of
// bytes written. Interlaced frames are split into two fields, each encoded as its own
// half-height JPEG stream, the first one limited to half of dst.
// Use MaxEncodedSize to size dst.
func (c *Codec) EncodeFrame(dst []byte, f *Frame, desc StreamDescriptor) (int, error) {
	if err := desc.validate(); err != nil {
		return 0, err
	}

	if err := f.validate(); err != nil {
		return 0, err
	}

	if f.Width != desc.Width || f.Height != desc.Height {
		return 0, fmt.Errorf("frame %dx%d, stream %dx%d: %w", f.Width, f.Height, desc.Width, desc.Height, ErrFrameSize)
	}

	ctx := c.newContext()
	w, h := desc.Width, desc.Height

	if !desc.Interlaced {
		return c.encodeStream(ctx, dst, f.Pix, w, h, desc.Quality)
	}

	fields := c.alloc.Allocate(h, w, 3, 1)
	if fields == nil {
		return 0, fmt.Errorf("field buffer %dx%d: %w", w, h, ErrAllocation)
	}
	defer c.alloc.Release(fields)

	Deinterlace(desc.FieldOrder.Parity(), fields, f.Pix, w, h)

	half := h / 2
	split := half * w * 3

	n1, err := c.encodeStream(ctx, dst[:len(dst)/2], fields[:split], w, half, desc.Quality)
	if err != nil {
		return 0, fmt.Errorf("first field: %w", err)
	}

	n2, err := c.encodeStream(ctx, dst[n1:], fields[split:], w, half, desc.Quality)
	if err != nil {
		return 0, fmt.Errorf("second field: %w", err)
	}

	ctx.logger.Debug("avimjpeg: encoded fields", "first", n1, "second", n2, "order", desc.FieldOrder)

	return n1 + n2, nil
}

// encodeStream writes one baseline JPEG stream of width x height packed RGB pixels into dst:
// SOI, the AVI1 APP0 marker, a reserved COM marker, the tables, the scan and EOI.
func (c *Codec) encodeStream(ctx *codecContext, dst, pix []byte, width, height, quality int) (int, error) {
	var n int

	err := guard(func() error {
		e := &compressor{ctx: ctx, dst: newMemoryDestination(ctx, dst)}
		e.width, e.height = width, height

		e.setDefaults()
		e.componentIDs = [3]byte{0, 1, 2}
		e.lumaV = 1
		e.writeJFIF = false
		e.setQuality(quality)

		if c.omitTables {
			setStandardTables(&e.tables, true)
		}

		if err := e.startCompress(!c.omitTables); err != nil {
			return err
		}

		if err := e.writeMarker(markerAPP0, avi1Marker()); err != nil {
			return err
		}

		if err := e.writeMarker(markerCOM, reservedComment()); err != nil {
			return err
		}

		stride := width * 3

		var line [1][]byte
		for y := 0; y < height; y++ {
			line[0] = pix[y*stride : (y+1)*stride]
			if _, err := e.writeScanlines(line[:]); err != nil {
				return err
			}
		}

		if err := e.finishCompress(); err != nil {
			return err
		}

		n = ctx.produced

		return nil
	})

	return n, err
}

// MaxEncodedSize returns a destination size that is always large enough for EncodeFrame
// with the given descriptor.
func MaxEncodedSize(desc StreamDescriptor) int {
	if desc.Width <= 0 || desc.Height <= 0 {
		return 0
	}

	fields, rows := 1, desc.Height
	if desc.Interlaced {
		fields, rows = 2, (desc.Height+1)/2
	}

	// A 16x8 MCU holds four blocks. A block needs at most 64 codes of 26 bits, doubled
	// by byte stuffing. Headers and markers fit in 1 KiB.
	mcus := ((desc.Width + 15) / 16) * ((rows + 7) / 8)

	// The first field may only use half of the destination.
	return fields * (mcus*4*420 + 1024)
}
