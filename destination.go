package avimjpeg

import "fmt"

// memoryDestination is a push sink over a pre-sized caller buffer.
// Writes that do not fit fail with ErrBufferTooSmall; the buffer is never grown.
type memoryDestination struct {
	buf []byte
	n   int
	ctx *codecContext
}

func newMemoryDestination(ctx *codecContext, buf []byte) *memoryDestination {
	return &memoryDestination{buf: buf, ctx: ctx}
}

// Write implements io.Writer.
func (d *memoryDestination) Write(p []byte) (int, error) {
	if len(p) > len(d.buf)-d.n {
		k := copy(d.buf[d.n:], p)
		d.n += k

		return k, fmt.Errorf("writing %d bytes at offset %d of %d: %w", len(p), d.n-k, len(d.buf), ErrBufferTooSmall)
	}

	copy(d.buf[d.n:], p)
	d.n += len(p)

	return len(p), nil
}

// WriteByte implements io.ByteWriter.
func (d *memoryDestination) WriteByte(b byte) error {
	if d.n >= len(d.buf) {
		return fmt.Errorf("writing at offset %d of %d: %w", d.n, len(d.buf), ErrBufferTooSmall)
	}

	d.buf[d.n] = b
	d.n++

	return nil
}

// Flush is a no-op; bytes are stored as they are written.
func (d *memoryDestination) Flush() error {
	return nil
}

// Len returns the number of bytes written so far.
func (d *memoryDestination) Len() int {
	return d.n
}

// term records the number of bytes produced into the buffer.
func (d *memoryDestination) term() {
	d.ctx.produced = d.n
}
