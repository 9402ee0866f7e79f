package avimjpeg

import (
	"bytes"
	"errors"
	"image"
	"math/rand"
	"os"
	"testing"
)

// encodeTest encodes f with codec into a buffer of MaxEncodedSize bytes.
func encodeTest(t testing.TB, codec *Codec, f *Frame, desc StreamDescriptor) []byte {
	t.Helper()

	dst := make([]byte, MaxEncodedSize(desc))

	n, err := codec.EncodeFrame(dst, f, desc)
	if err != nil {
		t.Fatalf("EncodeFrame failed: %v", err)
	}

	return dst[:n]
}

// TestEncodeLayout checks the byte layout of an encoded stream: the AVI1 markers right
// after SOI, no JFIF header, component ids 0-2 with 2x1 luma sampling and explicit tables.
func TestEncodeLayout(t *testing.T) {
	f := NewFrameFromImage(testImage(64, 48))
	desc := StreamDescriptor{Width: 64, Height: 48, Quality: 75}
	data := encodeTest(t, NewCodec(nil), f, desc)

	if !bytes.HasPrefix(data, []byte{0xFF, markerSOI, 0xFF, markerAPP0, 0x00, 62}) {
		t.Fatalf("stream starts with % X", data[:6])
	}

	if !bytes.Equal(data[6:66], avi1Marker()) {
		t.Errorf("APP0 payload = %q", data[6:66])
	}

	if !bytes.Equal(data[66:70], []byte{0xFF, markerCOM, 0x00, 62}) {
		t.Errorf("COM header = % X", data[66:70])
	}

	if !bytes.Equal(data[70:130], make([]byte, MarkerPayloadSize)) {
		t.Errorf("COM payload is not zero")
	}

	if !bytes.HasSuffix(data, []byte{0xFF, markerEOI}) {
		t.Errorf("stream ends with % X", data[len(data)-2:])
	}

	if bytes.Contains(data, []byte("JFIF")) {
		t.Error("stream carries a JFIF header")
	}

	infos, err := Inspect(data)
	if err != nil {
		t.Fatal(err)
	}

	if len(infos) != 1 {
		t.Fatalf("%d streams, want 1", len(infos))
	}

	info := infos[0]

	if !bytes.Equal(info.ComponentIDs, []byte{0, 1, 2}) {
		t.Errorf("component ids = %v, want [0 1 2]", info.ComponentIDs)
	}

	if !bytes.Equal(info.Sampling, []byte{0x21, 0x11, 0x11}) {
		t.Errorf("sampling = % X, want 21 11 11", info.Sampling)
	}

	if info.Process != markerSOF0 || !info.HuffmanTables || !info.AVI1 || info.Truncated {
		t.Errorf("info = %+v", info)
	}

	want := []Marker{markerAPP0, markerCOM, markerDQT, markerSOF0, markerDHT, markerSOS}
	if len(info.Markers) != len(want) {
		t.Fatalf("markers = %v, want %v", info.Markers, want)
	}

	for i := range want {
		if info.Markers[i] != want[i] {
			t.Errorf("marker %d = %s, want %s", i, info.Markers[i], want[i])
		}
	}
}

// TestEncodeStdlibDecode checks that the standard library decoder reads our streams
// and sees the source image.
func TestEncodeStdlibDecode(t *testing.T) {
	src := testImage(61, 37)
	f := NewFrameFromImage(src)

	data := encodeTest(t, NewCodec(nil), f, StreamDescriptor{Width: 61, Height: 37, Quality: 90})
	img := stdDecode(t, data)

	if img.Bounds() != image.Rect(0, 0, 61, 37) {
		t.Fatalf("bounds = %v", img.Bounds())
	}

	got := NewFrameFromImage(img)
	if d := meanAbsDiff(got, f); d > 4 {
		t.Errorf("mean absolute difference %.2f, want <= 4", d)
	}
}

// TestEncodeOmitHuffmanTables checks that omitting the tables removes exactly the DHT
// segment and that both variants decode to the same frame.
func TestEncodeOmitHuffmanTables(t *testing.T) {
	f := NewFrameFromImage(testImage(48, 32))
	desc := StreamDescriptor{Width: 48, Height: 32, Quality: 75}

	full := encodeTest(t, NewCodec(nil), f, desc)
	omitted := encodeTest(t, NewCodec(&Options{OmitHuffmanTables: true}), f, desc)

	if !bytes.Equal(stripSegments(full, markerDHT), omitted) {
		t.Fatal("stream without tables differs from the full stream by more than its DHT segment")
	}

	infos, err := Inspect(omitted)
	if err != nil {
		t.Fatal(err)
	}

	if infos[0].HuffmanTables {
		t.Error("omitted stream reports Huffman tables")
	}

	a, err := DecodeFrame(full, desc)
	if err != nil {
		t.Fatal(err)
	}

	b, err := DecodeFrame(omitted, desc)
	if err != nil {
		t.Fatal(err)
	}

	if !bytes.Equal(a.Pix, b.Pix) {
		t.Error("streams with and without tables decode differently")
	}
}

// TestEncodeQuality checks that quality controls the stream size.
func TestEncodeQuality(t *testing.T) {
	f := NewFrameFromImage(testImage(64, 64))
	codec := NewCodec(nil)

	prev := 0
	for _, q := range []int{10, 50, 75, 95} {
		n := len(encodeTest(t, codec, f, StreamDescriptor{Width: 64, Height: 64, Quality: q}))
		if n <= prev {
			t.Errorf("quality %d: %d bytes, not larger than %d", q, n, prev)
		}
		prev = n
	}
}

// TestMaxEncodedSize checks that the bound holds for noise at the highest quality.
func TestMaxEncodedSize(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for _, desc := range []StreamDescriptor{
		{Width: 33, Height: 17, Quality: 100},
		{Width: 64, Height: 48, Quality: 100, Interlaced: true},
		{Width: 8, Height: 2, Quality: 100, Interlaced: true, FieldOrder: OddFirst},
	} {
		f := NewFrame(desc.Width, desc.Height)
		rng.Read(f.Pix)

		dst := make([]byte, MaxEncodedSize(desc))
		if _, err := NewCodec(nil).EncodeFrame(dst, f, desc); err != nil {
			t.Errorf("%+v: %v", desc, err)
		}
	}

	if MaxEncodedSize(StreamDescriptor{}) != 0 {
		t.Error("MaxEncodedSize of an empty descriptor is not 0")
	}
}

// TestEncodeErrors checks argument validation and capacity errors.
func TestEncodeErrors(t *testing.T) {
	f := NewFrame(32, 16)

	tests := []struct {
		name  string
		dst   []byte
		frame *Frame
		desc  StreamDescriptor
		want  error
	}{
		{"buffer too small", make([]byte, 100), f, StreamDescriptor{Width: 32, Height: 16}, ErrBufferTooSmall},
		{"first field does not fit in half", make([]byte, 700), f, StreamDescriptor{Width: 32, Height: 16, Interlaced: true}, ErrBufferTooSmall},
		{"odd interlaced height", make([]byte, 1<<16), NewFrame(32, 15), StreamDescriptor{Width: 32, Height: 15, Interlaced: true}, ErrOddHeight},
		{"size mismatch", make([]byte, 1<<16), f, StreamDescriptor{Width: 32, Height: 32}, ErrFrameSize},
		{"short pixel buffer", make([]byte, 1<<16), &Frame{Pix: make([]byte, 10), Width: 32, Height: 16}, StreamDescriptor{Width: 32, Height: 16}, ErrFrameSize},
		{"nil frame", make([]byte, 1<<16), nil, StreamDescriptor{Width: 32, Height: 16}, ErrInvalidArgument},
		{"zero size", make([]byte, 1<<16), f, StreamDescriptor{}, ErrInvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := EncodeFrame(tt.dst, tt.frame, tt.desc)
			if !errors.Is(err, tt.want) {
				t.Errorf("EncodeFrame error = %v, want %v", err, tt.want)
			}

			if n != 0 {
				t.Errorf("EncodeFrame returned %d bytes with an error", n)
			}
		})
	}
}

// TestEncodeAllocationFailure checks that a refused field buffer is reported.
func TestEncodeAllocationFailure(t *testing.T) {
	codec := NewCodec(&Options{Allocator: NewPoolAllocator(1024)})
	desc := StreamDescriptor{Width: 64, Height: 48, Interlaced: true}

	_, err := codec.EncodeFrame(make([]byte, MaxEncodedSize(desc)), NewFrame(64, 48), desc)
	if !errors.Is(err, ErrAllocation) {
		t.Errorf("EncodeFrame error = %v, want %v", err, ErrAllocation)
	}
}

// TestCompressorPhases checks that the compressor enforces its call order.
func TestCompressorPhases(t *testing.T) {
	ctx := NewCodec(nil).newContext()
	e := &compressor{ctx: ctx, dst: newMemoryDestination(ctx, make([]byte, 4096))}
	e.width, e.height = 8, 8
	e.setDefaults()

	if _, err := e.writeScanlines([][]byte{make([]byte, 24)}); !errors.Is(err, ErrInternal) {
		t.Errorf("writeScanlines before startCompress: %v", err)
	}

	if err := e.startCompress(true); err != nil {
		t.Fatal(err)
	}

	if err := e.startCompress(true); !errors.Is(err, ErrInternal) {
		t.Errorf("second startCompress: %v", err)
	}

	if err := e.finishCompress(); !errors.Is(err, ErrInternal) {
		t.Errorf("finishCompress before scanlines: %v", err)
	}

	rows := make([][]byte, 8)
	for i := range rows {
		rows[i] = make([]byte, 24)
	}

	if n, err := e.writeScanlines(rows); n != 8 || err != nil {
		t.Fatalf("writeScanlines = %d, %v", n, err)
	}

	if err := e.writeMarker(markerCOM, []byte("late")); !errors.Is(err, ErrInternal) {
		t.Errorf("writeMarker after scanlines: %v", err)
	}

	if err := e.finishCompress(); err != nil {
		t.Fatal(err)
	}

	// Default parameters produce a JFIF stream the standard library reads.
	data := e.dst.buf[:ctx.produced]
	if !bytes.Contains(data[:20], []byte("JFIF")) {
		t.Error("default parameters did not write a JFIF header")
	}

	stdDecode(t, data)
}

// TestQualityScale checks the IJG quality scaling.
func TestQualityScale(t *testing.T) {
	for _, tt := range []struct{ q, want int }{
		{-5, 5000}, {0, 5000}, {1, 5000}, {10, 500}, {49, 102}, {50, 100}, {75, 50}, {100, 0}, {150, 0},
	} {
		if got := qualityScale(tt.q); got != tt.want {
			t.Errorf("qualityScale(%d) = %d, want %d", tt.q, got, tt.want)
		}
	}
}

// TestDerivedFilesCopyright checks that files derived from image/jpeg keep their notices.
func TestDerivedFilesCopyright(t *testing.T) {
	for name, notices := range map[string][]string{
		"encoder.go": {"// Copyright 2011 The Go Authors. All rights reserved."},
		"fdct.go":    {"// Copyright 2011 The Go Authors. All rights reserved.", "Independent JPEG Group"},
		"LICENSE":    {"Copyright (c) 2009 The Go Authors. All rights reserved.", "Independent JPEG Group"},
	} {
		data, err := os.ReadFile(name)
		if err != nil {
			t.Fatal(err)
		}

		for _, n := range notices {
			if !bytes.Contains(data, []byte(n)) {
				t.Errorf("%s does not contain %q", name, n)
			}
		}
	}

	data, _ := os.ReadFile("encoder.go")
	if !bytes.HasPrefix(data, []byte("// Copyright 2011 The Go Authors.")) {
		t.Error("encoder.go does not start with the copyright header")
	}
}

func BenchmarkEncodeFrame(b *testing.B) {
	f := NewFrameFromImage(testImage(640, 480))
	desc := StreamDescriptor{Width: 640, Height: 480, Quality: 85}
	dst := make([]byte, MaxEncodedSize(desc))
	codec := NewCodec(nil)

	b.SetBytes(int64(len(f.Pix)))
	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if _, err := codec.EncodeFrame(dst, f, desc); err != nil {
			b.Fatal(err)
		}
	}
}
