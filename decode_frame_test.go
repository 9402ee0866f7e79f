package avimjpeg

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

// stripedFrame returns a frame with black even rows and white odd rows.
func stripedFrame(w, h int) *Frame {
	f := NewFrame(w, h)
	for y := 1; y < h; y += 2 {
		row := f.Row(y)
		for i := range row {
			row[i] = 255
		}
	}

	return f
}

func TestFrameRoundTrip(t *testing.T) {
	src := NewFrameFromImage(testImage(64, 48))

	tests := []struct {
		name string
		desc StreamDescriptor
	}{
		{"single stream", StreamDescriptor{Width: 64, Height: 48, Quality: 75}},
		{"even first", StreamDescriptor{Width: 64, Height: 48, Quality: 75, Interlaced: true, FieldOrder: EvenFirst}},
		{"odd first", StreamDescriptor{Width: 64, Height: 48, Quality: 75, Interlaced: true, FieldOrder: OddFirst}},
		{"omitted tables", StreamDescriptor{Width: 64, Height: 48, Quality: 75, Interlaced: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			codec, logs := newTestCodec(Options{OmitHuffmanTables: tt.name == "omitted tables"})

			payload := encodeTest(t, codec, src, tt.desc)

			f, err := codec.DecodeFrame(payload, tt.desc)
			if err != nil {
				t.Fatalf("DecodeFrame failed: %v", err)
			}

			if f.Width != 64 || f.Height != 48 || len(f.Pix) != 64*48*3 {
				t.Fatalf("decoded %dx%d frame with %d bytes", f.Width, f.Height, len(f.Pix))
			}

			if d := meanAbsDiff(f, src); d > 8 {
				t.Errorf("mean absolute difference %.2f, want <= 8", d)
			}

			boundary := strings.Contains(logs.String(), "field boundary")
			if boundary != tt.desc.Interlaced {
				t.Errorf("field boundary logged = %t, interlaced = %t", boundary, tt.desc.Interlaced)
			}
		})
	}
}

// TestInterlacedFieldStreams checks that an interlaced payload is two half-height streams
// holding the rows of each field, and that they recombine into the source frame.
func TestInterlacedFieldStreams(t *testing.T) {
	src := NewFrameFromImage(testImage(64, 48))

	for _, order := range []FieldOrder{EvenFirst, OddFirst} {
		t.Run(order.String(), func(t *testing.T) {
			desc := StreamDescriptor{Width: 64, Height: 48, Quality: 75, Interlaced: true, FieldOrder: order}
			payload := encodeTest(t, NewCodec(nil), src, desc)

			streams, err := SplitStreams(payload)
			if err != nil {
				t.Fatal(err)
			}

			if len(streams) != 2 {
				t.Fatalf("%d streams, want 2", len(streams))
			}

			fields := make([]byte, 0, len(src.Pix))
			for i, s := range streams {
				img := stdDecode(t, s)
				if b := img.Bounds(); b.Dx() != 64 || b.Dy() != 24 {
					t.Fatalf("field %d is %dx%d, want 64x24", i, b.Dx(), b.Dy())
				}

				fields = append(fields, NewFrameFromImage(img).Pix...)
			}

			merged := NewFrame(64, 48)
			InterlaceFields(order.Parity(), merged.Pix, fields, 64, 48)

			if d := meanAbsDiff(merged, src); d > 8 {
				t.Errorf("recombined fields differ from the source by %.2f", d)
			}
		})
	}
}

// TestFieldOrderMismatch checks that decoding with the wrong field order swaps the fields.
func TestFieldOrderMismatch(t *testing.T) {
	src := stripedFrame(32, 32)
	desc := StreamDescriptor{Width: 32, Height: 32, Quality: 90, Interlaced: true, FieldOrder: EvenFirst}
	payload := encodeTest(t, NewCodec(nil), src, desc)

	right, err := DecodeFrame(payload, desc)
	if err != nil {
		t.Fatal(err)
	}

	desc.FieldOrder = OddFirst

	swapped, err := DecodeFrame(payload, desc)
	if err != nil {
		t.Fatal(err)
	}

	for y := 0; y < 2; y++ {
		if r, s := right.Row(y)[0], swapped.Row(y)[0]; (r < 128) != (y == 0) || (s < 128) != (y == 1) {
			t.Errorf("row %d: right order %d, swapped order %d", y, r, s)
		}
	}
}

// TestDecodeFirstFieldOnly checks that a payload ending inside or right after the first
// field still decodes: the rows of the first field match a full decode and the rows of the
// second field are empty.
func TestDecodeFirstFieldOnly(t *testing.T) {
	src := NewFrameFromImage(testImage(64, 48))

	for _, order := range []FieldOrder{EvenFirst, OddFirst} {
		desc := StreamDescriptor{Width: 64, Height: 48, Quality: 75, Interlaced: true, FieldOrder: order}
		payload := encodeTest(t, NewCodec(nil), src, desc)

		streams, err := SplitStreams(payload)
		if err != nil {
			t.Fatal(err)
		}

		full, err := DecodeFrame(payload, desc)
		if err != nil {
			t.Fatal(err)
		}

		first := len(streams[0])

		tests := []struct {
			name string
			data []byte
			// rows is the number of first-field rows that must match the full decode.
			rows int
		}{
			{"first field", payload[:first], 24},
			{"first field without EOI", payload[:first-2], 24},
			// A cut near the end of the scan leaves the first MCU row intact.
			{"cut in scan data", payload[:first-40], 8},
		}

		for _, tt := range tests {
			t.Run(order.String()+"/"+tt.name, func(t *testing.T) {
				pool := NewPoolAllocator(0)
				codec, logs := newTestCodec(Options{Allocator: pool})

				f, err := codec.DecodeFrame(tt.data, desc)
				if err != nil {
					t.Fatalf("DecodeFrame failed: %v", err)
				}

				if f.Width != 64 || f.Height != 48 {
					t.Fatalf("decoded %dx%d frame, want 64x48", f.Width, f.Height)
				}

				p := order.Parity()
				for i := 0; i < tt.rows; i++ {
					y := 2*i + p
					if !bytes.Equal(f.Row(y), full.Row(y)) {
						t.Errorf("first-field display row %d differs from the full decode", y)
					}
				}

				for i := 0; i < 24; i++ {
					row := f.Row(2*i + 1 - p)
					if !bytes.Equal(row, make([]byte, len(row))) {
						t.Fatalf("second-field display row %d is not empty", 2*i+1-p)
					}
				}

				if !strings.Contains(logs.String(), "second field missing") {
					t.Error("missing second field was not reported")
				}

				codec.ReleaseFrame(f)

				if used := pool.MemoryUsed(); used != 0 {
					t.Errorf("MemoryUsed = %d after ReleaseFrame, want 0", used)
				}
			})
		}
	}
}

// TestDecodeSecondFieldGarbage checks that bytes after the first field which do not start
// a JPEG stream fail the decode, and that every buffer is released.
func TestDecodeSecondFieldGarbage(t *testing.T) {
	pool := NewPoolAllocator(0)
	codec := NewCodec(&Options{Allocator: pool})

	desc := StreamDescriptor{Width: 32, Height: 32, Interlaced: true, Quality: 75}
	payload := encodeTest(t, codec, NewFrame(32, 32), desc)

	streams, err := SplitStreams(payload)
	if err != nil {
		t.Fatal(err)
	}

	data := append(append([]byte(nil), streams[0]...), "garbage"...)

	_, err = codec.DecodeFrame(data, desc)
	if !errors.Is(err, ErrNoJPEG) {
		t.Fatalf("DecodeFrame error = %v, want %v", err, ErrNoJPEG)
	}

	if !strings.Contains(err.Error(), "second field") {
		t.Errorf("error %q does not name the second field", err)
	}

	if used := pool.MemoryUsed(); used != 0 {
		t.Errorf("MemoryUsed = %d, want 0", used)
	}
}

func TestDecodeFrameShapes(t *testing.T) {
	full := encodeTest(t, NewCodec(nil), NewFrameFromImage(testImage(32, 48)), StreamDescriptor{Width: 32, Height: 48, Quality: 75})
	half := encodeTest(t, NewCodec(nil), NewFrameFromImage(testImage(32, 24)), StreamDescriptor{Width: 32, Height: 24, Quality: 75})

	t.Run("taller stream is cropped", func(t *testing.T) {
		f, err := DecodeFrame(full, StreamDescriptor{Width: 32, Height: 40})
		if err != nil {
			t.Fatal(err)
		}

		ref, err := DecodeFrame(full, StreamDescriptor{Width: 32, Height: 48})
		if err != nil {
			t.Fatal(err)
		}

		if !bytes.Equal(f.Pix, ref.Pix[:32*40*3]) {
			t.Error("cropped frame differs from the top of the full frame")
		}
	})

	t.Run("odd height with half stream", func(t *testing.T) {
		_, err := DecodeFrame(half, StreamDescriptor{Width: 32, Height: 47})
		if !errors.Is(err, ErrOddHeight) {
			t.Errorf("DecodeFrame error = %v, want %v", err, ErrOddHeight)
		}
	})

	t.Run("trailing bytes", func(t *testing.T) {
		payload := append(append(append([]byte(nil), half...), half...), 0, 0, 0)

		if _, err := DecodeFrame(payload, StreamDescriptor{Width: 32, Height: 48, Interlaced: true}); err != nil {
			t.Errorf("DecodeFrame with trailing padding failed: %v", err)
		}
	})

	t.Run("truncated second field", func(t *testing.T) {
		payload := append(append([]byte(nil), half...), half[:len(half)-10]...)

		codec, logs := newTestCodec(Options{})
		if _, err := codec.DecodeFrame(payload, StreamDescriptor{Width: 32, Height: 48, Interlaced: true}); err != nil {
			t.Errorf("DecodeFrame failed: %v", err)
		}

		if !strings.Contains(logs.String(), "inserted EOI marker") {
			t.Error("truncation was not reported")
		}
	})
}

func TestDecodeAllocationFailure(t *testing.T) {
	desc := StreamDescriptor{Width: 32, Height: 32, Interlaced: true, Quality: 75}
	payload := encodeTest(t, NewCodec(nil), NewFrame(32, 32), desc)
	frameSize := int64(32 * 32 * 3)

	for _, limit := range []int64{frameSize - 1, frameSize} {
		pool := NewPoolAllocator(limit)
		codec := NewCodec(&Options{Allocator: pool})

		if _, err := codec.DecodeFrame(payload, desc); !errors.Is(err, ErrAllocation) {
			t.Errorf("limit %d: DecodeFrame error = %v, want %v", limit, err, ErrAllocation)
		}

		if used := pool.MemoryUsed(); used != 0 {
			t.Errorf("limit %d: MemoryUsed = %d, want 0", limit, used)
		}
	}

	// Two frames fit: scratch and output. Releasing the result empties the pool again.
	pool := NewPoolAllocator(2 * frameSize)
	codec := NewCodec(&Options{Allocator: pool})

	f, err := codec.DecodeFrame(payload, desc)
	if err != nil {
		t.Fatal(err)
	}

	if used := pool.MemoryUsed(); used != frameSize {
		t.Errorf("MemoryUsed = %d with one frame held, want %d", used, frameSize)
	}

	codec.ReleaseFrame(f)

	if used := pool.MemoryUsed(); used != 0 {
		t.Errorf("MemoryUsed = %d after ReleaseFrame, want 0", used)
	}
}

func TestDecodeStateString(t *testing.T) {
	for s, want := range map[decodeState]string{
		awaitingFirstStream:  "awaiting first stream",
		awaitingSecondStream: "awaiting second stream",
		decodeDone:           "done",
		decodeState(9):       "decodeState(9)",
	} {
		if got := s.String(); got != want {
			t.Errorf("String() = %q, want %q", got, want)
		}
	}
}

// FuzzDecodeFrame tests DecodeFrame for panics and internal errors with a variety of inputs.
func FuzzDecodeFrame(f *testing.F) {
	f.Add(baselineGray2x2)
	f.Add(stdEncode(f, testImage(32, 32), 75))

	desc := StreamDescriptor{Width: 32, Height: 32, Interlaced: true, Quality: 75}
	f.Add(encodeTest(f, NewCodec(nil), NewFrameFromImage(testImage(32, 32)), desc))
	f.Add(encodeTest(f, NewCodec(&Options{OmitHuffmanTables: true}), NewFrameFromImage(testImage(32, 32)), desc))

	codec := NewCodec(&Options{Logger: newDiscardLogger()})

	f.Fuzz(func(t *testing.T, data []byte) {
		for _, d := range []StreamDescriptor{desc, {Width: 32, Height: 32}, {Width: 2, Height: 2}} {
			frame, err := codec.DecodeFrame(data, d)
			if errors.Is(err, ErrInternal) {
				t.Fatalf("internal error: %v", err)
			}

			codec.ReleaseFrame(frame)
		}
	})
}
