package avimjpeg

import (
	"fmt"
	"image"
	"image/color"
)

// Frame is a raw video frame: row-major pixels, 3 bytes (R, G, B) per pixel, no row padding.
type Frame struct {
	Pix           []byte
	Width, Height int
}

// NewFrame allocates a zeroed frame of the given size.
func NewFrame(width, height int) *Frame {
	return &Frame{
		Pix:    make([]byte, width*height*3),
		Width:  width,
		Height: height,
	}
}

// Stride returns the number of bytes in one row.
func (f *Frame) Stride() int {
	return f.Width * 3
}

// Row returns the pixels of row y.
func (f *Frame) Row(y int) []byte {
	s := f.Stride()

	return f.Pix[y*s : (y+1)*s]
}

// validate checks that the pixel buffer matches the declared dimensions.
func (f *Frame) validate() error {
	if f == nil {
		return fmt.Errorf("nil frame: %w", ErrInvalidArgument)
	}

	if f.Width <= 0 || f.Height <= 0 || f.Width >= 1<<16 || f.Height >= 1<<16 {
		return fmt.Errorf("frame dimensions %dx%d: %w", f.Width, f.Height, ErrInvalidArgument)
	}

	if len(f.Pix) < f.Width*f.Height*3 {
		return fmt.Errorf("frame buffer holds %d bytes, %dx%d needs %d: %w",
			len(f.Pix), f.Width, f.Height, f.Width*f.Height*3, ErrFrameSize)
	}

	return nil
}

// Image returns the frame as an [image.RGBA]. The pixels are copied.
func (f *Frame) Image() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))

	src := 0
	for y := 0; y < f.Height; y++ {
		dst := y * img.Stride
		for x := 0; x < f.Width; x++ {
			img.Pix[dst] = f.Pix[src]
			img.Pix[dst+1] = f.Pix[src+1]
			img.Pix[dst+2] = f.Pix[src+2]
			img.Pix[dst+3] = 255
			dst += 4
			src += 3
		}
	}

	return img
}

// NewFrameFromImage converts any image to an RGB frame. Alpha is discarded.
func NewFrameFromImage(img image.Image) *Frame {
	b := img.Bounds()
	f := NewFrame(b.Dx(), b.Dy())

	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.RGBAModel.Convert(img.At(x, y)).(color.RGBA)
			f.Pix[i] = c.R
			f.Pix[i+1] = c.G
			f.Pix[i+2] = c.B
			i += 3
		}
	}

	return f
}

// FieldOrder tells which field of an interlaced frame is stored first in a chunk.
type FieldOrder int

const (
	// EvenFirst stores the field made of the even display rows (0, 2, 4, ...) first.
	EvenFirst FieldOrder = iota
	// OddFirst stores the field made of the odd display rows (1, 3, 5, ...) first.
	OddFirst
)

// Parity returns the display-row parity (0 or 1) of the first stored field.
func (o FieldOrder) Parity() int {
	if o == OddFirst {
		return 1
	}

	return 0
}

// String implements fmt.Stringer.
func (o FieldOrder) String() string {
	if o == OddFirst {
		return "odd"
	}

	return "even"
}

// StreamDescriptor carries the AVI stream metadata a conversion needs.
type StreamDescriptor struct {
	Width, Height int
	// Interlaced frames are stored as two half-height JPEG streams, one per field.
	Interlaced bool
	FieldOrder FieldOrder
	// Quality is the JPEG quality factor, 0 to 100.
	Quality int
}

// validate checks the descriptor against the conversion contract.
func (d StreamDescriptor) validate() error {
	if d.Width <= 0 || d.Height <= 0 || d.Width >= 1<<16 || d.Height >= 1<<16 {
		return fmt.Errorf("stream dimensions %dx%d: %w", d.Width, d.Height, ErrInvalidArgument)
	}

	if d.Interlaced && d.Height%2 != 0 {
		return fmt.Errorf("height %d: %w", d.Height, ErrOddHeight)
	}

	return nil
}

// QualityFromStreamHeader converts the quality stored in an AVI stream header
// (0 to 10000) to the JPEG quality factor used by the encoder.
func QualityFromStreamHeader(stored int) int {
	q := stored / 100
	if q < 0 {
		return 0
	}

	if q > 100 {
		return 100
	}

	return q
}
