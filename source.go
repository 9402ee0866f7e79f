package avimjpeg

import "fmt"

// eoiStream is returned for every read past the end of the source data.
var eoiStream = [2]byte{0xFF, markerEOI}

// memorySource is a pull source over a caller buffer. Bytes are handed out without copying.
// Reading past the end never fails: the source keeps producing EOI markers so the decoder
// terminates at the buffer boundary.
type memorySource struct {
	data []byte
	pos  int // may run past len(data) into the synthesized EOI stream
	ctx  *codecContext
}

func newMemorySource(ctx *codecContext, data []byte) *memorySource {
	return &memorySource{data: data, ctx: ctx}
}

// byteAt returns the byte at absolute position p.
func (s *memorySource) byteAt(p int) byte {
	if p < len(s.data) {
		return s.data[p]
	}

	return eoiStream[(p-len(s.data))&1]
}

// peek returns the next byte without consuming it.
func (s *memorySource) peek() byte {
	return s.byteAt(s.pos)
}

// peekAt returns the byte off positions ahead without consuming anything.
func (s *memorySource) peekAt(off int) byte {
	return s.byteAt(s.pos + off)
}

// remaining returns the number of real bytes left.
func (s *memorySource) remaining() int {
	if n := len(s.data) - s.pos; n > 0 {
		return n
	}

	return 0
}

// exhausted reports whether all real bytes have been consumed.
func (s *memorySource) exhausted() bool {
	return s.pos >= len(s.data)
}

// advance consumes n bytes. Each EOI synthesized past the end is reported as a warning.
func (s *memorySource) advance(n int) {
	if s.pos+n <= len(s.data) {
		s.pos += n

		return
	}

	for ; n > 0; n-- {
		if s.pos >= len(s.data) && (s.pos-len(s.data))&1 == 0 {
			s.ctx.warn("premature end of data, inserted EOI marker", "size", len(s.data))
		}
		s.pos++
	}
}

// readByte consumes and returns the next byte.
func (s *memorySource) readByte() byte {
	b := s.peek()
	s.advance(1)

	return b
}

// readUint16 consumes a big-endian 16-bit value.
func (s *memorySource) readUint16() int {
	hi := s.readByte()
	lo := s.readByte()

	return int(hi)<<8 | int(lo)
}

// take consumes n bytes and returns them as a sub-slice of the source buffer.
// Segments must be complete: a segment cut off by the end of data is a syntax error.
func (s *memorySource) take(n int) []byte {
	if n < 0 || n > s.remaining() {
		panic(errDecode{fmt.Errorf("segment of %d bytes at offset %d exceeds data: %w", n, s.pos, ErrSyntax)})
	}

	b := s.data[s.pos : s.pos+n : s.pos+n]
	s.pos += n

	return b
}

// skip discards n bytes. Skipping past the end stops at the end of the data.
func (s *memorySource) skip(n int) {
	if n <= 0 {
		return
	}

	if n > s.remaining() {
		if s.pos < len(s.data) {
			s.pos = len(s.data)
		}

		return
	}

	s.pos += n
}

// term records the number of bytes consumed from the buffer.
func (s *memorySource) term() {
	s.ctx.consumed = min(s.pos, len(s.data))
}
