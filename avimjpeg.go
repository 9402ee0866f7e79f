package avimjpeg

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
)

// Standard error types for frame conversion.
var (
	ErrNoJPEG          = errors.New("not a JPEG stream")
	ErrUnsupported     = errors.New("unsupported format")
	ErrSyntax          = errors.New("syntax error")
	ErrInternal        = errors.New("internal error")
	ErrAllocation      = errors.New("buffer allocation failed")
	ErrBufferTooSmall  = errors.New("output buffer too small")
	ErrOddHeight       = errors.New("interlaced frame height must be even")
	ErrFrameSize       = errors.New("frame size mismatch")
	ErrInvalidArgument = errors.New("invalid argument")
)

// Options specifies codec parameters.
type Options struct {
	// Allocator provides the frame buffers used during a conversion.
	// If nil, a shared pool allocator without a memory limit is used.
	Allocator Allocator
	// Logger receives non-fatal warnings (truncated streams, extraneous bytes)
	// and debug output about field boundaries. If nil, slog.Default() is used.
	Logger *slog.Logger
	// OmitHuffmanTables leaves the standard Huffman tables out of encoded
	// streams, as older AVI1 writers do. Decoders are expected to provision them.
	OmitHuffmanTables bool
	// Workers is the number of goroutines used by DecodeFrames and EncodeFrames.
	// Zero means runtime.GOMAXPROCS(0).
	Workers int
}

// Codec converts between raw RGB frames and AVI MJPEG chunk payloads.
// A Codec holds no per-frame state and is safe for concurrent use.
type Codec struct {
	alloc      Allocator
	logger     *slog.Logger
	omitTables bool
	workers    int
}

// defaultAllocator is shared by codecs created without an explicit allocator.
var defaultAllocator = NewPoolAllocator(0)

// NewCodec returns a Codec configured by opts. A nil opts selects the defaults.
func NewCodec(opts *Options) *Codec {
	c := &Codec{alloc: defaultAllocator}

	if opts != nil {
		if opts.Allocator != nil {
			c.alloc = opts.Allocator
		}

		if opts.Logger != nil {
			c.logger = opts.Logger
		}

		c.omitTables = opts.OmitHuffmanTables
		c.workers = opts.Workers
	}

	if c.workers <= 0 {
		c.workers = runtime.GOMAXPROCS(0)
	}

	return c
}

// decoderPool is a pool of decoder structs to reduce allocation of the large Huffman lookup tables.
var decoderPool = sync.Pool{
	New: func() interface{} {
		return newDecompressor()
	},
}

// getDecompressor takes a decompressor from the pool and binds it to ctx.
func getDecompressor(ctx *codecContext) *decompressor {
	d := decoderPool.Get().(*decompressor)
	d.ctx = ctx

	return d
}

// putDecompressor resets d and returns it to the pool.
func putDecompressor(d *decompressor) {
	d.reset()
	decoderPool.Put(d)
}

// newContext creates the per-call state for one conversion.
func (c *Codec) newContext() *codecContext {
	logger := c.logger
	if logger == nil {
		logger = slog.Default()
	}

	return &codecContext{logger: logger}
}

// codecContext is the state of a single conversion call. Nothing in it is shared
// between calls, so independent frames can be converted concurrently.
type codecContext struct {
	logger   *slog.Logger
	consumed int // bytes consumed from the source by the last finished stream
	produced int // bytes produced into the destination by the last finished stream
	warnings int
}

// warn reports a non-fatal condition.
func (c *codecContext) warn(msg string, args ...any) {
	c.warnings++
	c.logger.Warn("avimjpeg: "+msg, args...)
}

// guard runs fn and converts an engine abort (or any runtime panic) into an error,
// so a single bad frame never takes the process down.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if de, ok := r.(errDecode); ok {
				err = de.error

				return
			}

			err = fmt.Errorf("%w: %v", ErrInternal, r)
		}
	}()

	return fn()
}

// ReleaseFrame returns the buffer of a frame produced by this codec to its allocator.
// The frame must not be used afterwards.
func (c *Codec) ReleaseFrame(f *Frame) {
	if f == nil || f.Pix == nil {
		return
	}

	c.alloc.Release(f.Pix)
	f.Pix = nil
}

var defaultCodec = NewCodec(nil)

// DecodeFrame decodes an AVI MJPEG chunk payload using a codec with default options.
func DecodeFrame(payload []byte, desc StreamDescriptor) (*Frame, error) {
	return defaultCodec.DecodeFrame(payload, desc)
}

// EncodeFrame encodes f into dst using a codec with default options.
// It returns the number of bytes written.
func EncodeFrame(dst []byte, f *Frame, desc StreamDescriptor) (int, error) {
	return defaultCodec.EncodeFrame(dst, f, desc)
}
