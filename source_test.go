package avimjpeg

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestMemorySourceSynthesizesEOI(t *testing.T) {
	codec, logs := newTestCodec(Options{})
	ctx := codec.newContext()
	s := newMemorySource(ctx, []byte{0x12, 0x34})

	if v := s.readUint16(); v != 0x1234 {
		t.Fatalf("readUint16 = %#x", v)
	}

	if !s.exhausted() || s.remaining() != 0 {
		t.Fatal("source not exhausted after reading all bytes")
	}

	if ctx.warnings != 0 {
		t.Fatalf("%d warnings before reading past the end", ctx.warnings)
	}

	// Past the end the source repeats FF D9 and warns once per marker.
	got := []byte{s.readByte(), s.readByte(), s.readByte(), s.readByte()}
	if !bytes.Equal(got, []byte{0xFF, markerEOI, 0xFF, markerEOI}) {
		t.Errorf("bytes past the end = % X", got)
	}

	if ctx.warnings != 2 {
		t.Errorf("%d warnings, want 2", ctx.warnings)
	}

	if !strings.Contains(logs.String(), "inserted EOI marker") {
		t.Errorf("log %q does not report the inserted EOI", logs.String())
	}

	s.term()
	if ctx.consumed != 2 {
		t.Errorf("consumed = %d, want 2", ctx.consumed)
	}
}

func TestMemorySourcePeek(t *testing.T) {
	s := newMemorySource(NewCodec(nil).newContext(), []byte{1, 2, 3})

	if s.peek() != 1 || s.peekAt(2) != 3 || s.peekAt(3) != 0xFF || s.peekAt(4) != markerEOI {
		t.Error("peek returned unexpected bytes")
	}

	if s.remaining() != 3 {
		t.Error("peek consumed bytes")
	}
}

func TestMemorySourceTake(t *testing.T) {
	data := []byte{1, 2, 3, 4, 5}
	s := newMemorySource(NewCodec(nil).newContext(), data)
	s.skip(1)

	b := s.take(3)
	if !bytes.Equal(b, []byte{2, 3, 4}) {
		t.Fatalf("take = %v", b)
	}

	if cap(b) != 3 {
		t.Errorf("take capacity %d reaches past the segment", cap(b))
	}

	err := guard(func() error {
		s.take(2)

		return nil
	})
	if !errors.Is(err, ErrSyntax) {
		t.Errorf("take past the end: %v, want %v", err, ErrSyntax)
	}

	s.skip(10)
	if !s.exhausted() {
		t.Error("skip past the end left bytes")
	}

	s.term()
	if s.ctx.consumed != len(data) {
		t.Errorf("consumed = %d, want %d", s.ctx.consumed, len(data))
	}
}

func TestMemoryDestination(t *testing.T) {
	ctx := NewCodec(nil).newContext()
	d := newMemoryDestination(ctx, make([]byte, 4))

	if n, err := d.Write([]byte{1, 2, 3}); n != 3 || err != nil {
		t.Fatalf("Write = %d, %v", n, err)
	}

	n, err := d.Write([]byte{4, 5})
	if !errors.Is(err, ErrBufferTooSmall) {
		t.Errorf("overflowing Write error = %v, want %v", err, ErrBufferTooSmall)
	}

	if n != 1 || d.Len() != 4 {
		t.Errorf("overflowing Write stored %d bytes, length %d", n, d.Len())
	}

	if err := d.WriteByte(6); !errors.Is(err, ErrBufferTooSmall) {
		t.Errorf("WriteByte on a full buffer: %v", err)
	}

	if !bytes.Equal(d.buf, []byte{1, 2, 3, 4}) {
		t.Errorf("buffer = %v", d.buf)
	}

	d.term()
	if ctx.produced != 4 {
		t.Errorf("produced = %d, want 4", ctx.produced)
	}
}

func TestGuard(t *testing.T) {
	if err := guard(func() error { panic(errDecode{ErrUnsupported}) }); err != ErrUnsupported {
		t.Errorf("engine abort: %v", err)
	}

	var tab []int
	err := guard(func() error {
		_ = tab[3]

		return nil
	})
	if !errors.Is(err, ErrInternal) {
		t.Errorf("runtime panic: %v, want %v", err, ErrInternal)
	}
}
