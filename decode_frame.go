package avimjpeg

import (
	"bytes"
	"fmt"
)

// decodeState is the progress of a frame decode.
type decodeState int

const (
	// awaitingFirstStream: nothing decoded yet.
	awaitingFirstStream decodeState = iota
	// awaitingSecondStream: the first stream covered only the first field.
	awaitingSecondStream
	// decodeDone: result holds the frame.
	decodeDone
)

func (s decodeState) String() string {
	switch s {
	case awaitingFirstStream:
		return "awaiting first stream"
	case awaitingSecondStream:
		return "awaiting second stream"
	case decodeDone:
		return "done"
	}

	return fmt.Sprintf("decodeState(%d)", int(s))
}

// frameDecoder decodes one chunk payload holding one or two concatenated JPEG streams.
type frameDecoder struct {
	codec   *Codec
	ctx     *codecContext
	desc    StreamDescriptor
	payload []byte

	state     decodeState
	scratch   *Frame
	firstRows int // rows produced by the first stream
	offset    int // start of the second stream in payload
	result    *Frame
}

// newFrameDecoder validates the descriptor and allocates the scratch frame.
func (c *Codec) newFrameDecoder(payload []byte, desc StreamDescriptor) (*frameDecoder, error) {
	if desc.Width <= 0 || desc.Height <= 0 || desc.Width >= 1<<16 || desc.Height >= 1<<16 {
		return nil, fmt.Errorf("stream dimensions %dx%d: %w", desc.Width, desc.Height, ErrInvalidArgument)
	}

	pix := c.alloc.Allocate(desc.Height, desc.Width, 3, 1)
	if pix == nil {
		return nil, fmt.Errorf("scratch frame %dx%d: %w", desc.Width, desc.Height, ErrAllocation)
	}

	return &frameDecoder{
		codec:   c,
		ctx:     c.newContext(),
		desc:    desc,
		payload: payload,
		scratch: &Frame{Pix: pix, Width: desc.Width, Height: desc.Height},
	}, nil
}

// step advances the state machine by one stream.
func (fd *frameDecoder) step() error {
	switch fd.state {
	case awaitingFirstStream:
		return fd.decodeFirstStream()
	case awaitingSecondStream:
		return fd.decodeSecondStream()
	}

	return fmt.Errorf("step in state %s: %w", fd.state, ErrInternal)
}

// run steps until the frame is complete. On failure every buffer is released.
func (fd *frameDecoder) run() (*Frame, error) {
	for fd.state != decodeDone {
		if err := fd.step(); err != nil {
			fd.abort()

			return nil, err
		}
	}

	return fd.result, nil
}

// abort releases the scratch frame.
func (fd *frameDecoder) abort() {
	if fd.scratch != nil {
		fd.codec.alloc.Release(fd.scratch.Pix)
		fd.scratch = nil
	}
}

// decodeFirstStream decodes the stream at the start of the payload. A stream at least as
// tall as the frame is the whole frame; a shorter one is the first field.
func (fd *frameDecoder) decodeFirstStream() error {
	rows, consumed, err := fd.decodeStream(fd.payload, 0)
	if err != nil {
		return err
	}

	if rows >= fd.desc.Height {
		fd.result, fd.scratch = fd.scratch, nil
		fd.state = decodeDone

		return nil
	}

	if fd.desc.Height%2 != 0 {
		return fmt.Errorf("first stream of %d rows in a frame of height %d: %w", rows, fd.desc.Height, ErrOddHeight)
	}

	fd.firstRows = rows
	fd.offset = consumed
	fd.state = awaitingSecondStream

	fd.ctx.logger.Debug("avimjpeg: field boundary", "offset", consumed, "rows", rows, "size", len(fd.payload))

	return nil
}

// decodeSecondStream decodes the second field right after the first one and merges the
// two fields into display order. When the payload ends with the first field the second
// field is missing: its rows stay empty and the frame is still returned.
func (fd *frameDecoder) decodeSecondStream() error {
	rest := fd.payload[fd.offset:]
	if len(rest) == 0 || bytes.Equal(rest, eoiStream[:]) {
		fd.ctx.warn("second field missing, its rows are left empty", "offset", fd.offset, "rows", fd.firstRows)

		return fd.merge()
	}

	rows, consumed, err := fd.decodeStream(rest, fd.firstRows)
	if err != nil {
		return fmt.Errorf("second field at offset %d: %w", fd.offset, err)
	}

	if fd.firstRows+rows < fd.desc.Height {
		fd.ctx.warn("fields shorter than frame", "rows", fd.firstRows+rows, "height", fd.desc.Height)
	}

	fd.ctx.logger.Debug("avimjpeg: second field", "offset", fd.offset, "bytes", consumed, "rows", rows)

	return fd.merge()
}

// merge interlaces the two fields held in the scratch frame into the result frame.
func (fd *frameDecoder) merge() error {
	w, h := fd.desc.Width, fd.desc.Height

	out := fd.codec.alloc.Allocate(h, w, 3, 1)
	if out == nil {
		return fmt.Errorf("output frame %dx%d: %w", w, h, ErrAllocation)
	}

	InterlaceFields(fd.desc.FieldOrder.Parity(), out, fd.scratch.Pix, w, h)

	fd.codec.alloc.Release(fd.scratch.Pix)
	fd.scratch = nil
	fd.result = &Frame{Pix: out, Width: w, Height: h}
	fd.state = decodeDone

	return nil
}

// decodeStream decodes one JPEG stream from data into the scratch frame starting at
// rowStart. Rows past the bottom of the frame are dropped. It returns the number of rows
// in the stream and the number of bytes it occupied.
func (fd *frameDecoder) decodeStream(data []byte, rowStart int) (rows, consumed int, err error) {
	err = guard(func() error {
		d := getDecompressor(fd.ctx)
		defer putDecompressor(d)

		d.setSource(data)

		if err := d.readHeader(); err != nil {
			return err
		}

		if d.width != fd.desc.Width {
			return fmt.Errorf("stream width %d, frame width %d: %w", d.width, fd.desc.Width, ErrFrameSize)
		}

		if err := d.startDecompress(); err != nil {
			return err
		}

		var line [1][]byte
		for y := 0; y < d.height; y++ {
			line[0] = nil
			if r := rowStart + y; r < fd.desc.Height {
				line[0] = fd.scratch.Row(r)
			}

			d.readScanlines(line[:])
		}

		if err := d.finishDecompress(); err != nil {
			return err
		}

		rows, consumed = d.height, fd.ctx.consumed

		return nil
	})

	return rows, consumed, err
}

// DecodeFrame decodes an AVI MJPEG chunk payload into an RGB frame of the size given by desc.
// The payload holds either one JPEG stream for the whole frame, or two concatenated streams,
// one per field, which are merged according to desc.FieldOrder. With OddFirst the first
// stream supplies the odd display rows, unlike Interlace, which always takes the even rows
// from the first field. Truncated streams are decoded as far as the data goes and are not
// an error; a payload that ends before the second field yields a frame whose second-field
// rows are empty.
func (c *Codec) DecodeFrame(payload []byte, desc StreamDescriptor) (*Frame, error) {
	fd, err := c.newFrameDecoder(payload, desc)
	if err != nil {
		return nil, err
	}

	return fd.run()
}
