// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package avimjpeg

import (
	"fmt"
	"image/color"
)

// div returns a/b rounded to the nearest integer, instead of rounded to zero.
func div(a, b int32) int32 {
	if a >= 0 {
		return (a + (b >> 1)) / b
	}

	return -((-a + (b >> 1)) / b)
}

// bitCount counts the number of bits needed to hold an integer.
var bitCount = [256]byte{
	0, 1, 2, 2, 3, 3, 3, 3, 4, 4, 4, 4, 4, 4, 4, 4,
	5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5,
	6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6,
	6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6,
	7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7,
	7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7,
	7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7,
	7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7,
	8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8,
	8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8,
	8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8,
	8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8,
	8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8,
	8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8,
	8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8,
	8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8,
}

const (
	quantLuminance = iota
	quantChrominance
)

// unscaledQuant are the unscaled quantization tables in zig-zag order. Each
// compressor copies and scales the tables according to its quality parameter.
// The values are derived from section K.1 of the JPEG standard.
var unscaledQuant = [2][64]byte{
	// Luminance.
	{
		16, 11, 12, 14, 12, 10, 16, 14,
		13, 14, 18, 17, 16, 19, 24, 40,
		26, 24, 22, 22, 24, 49, 35, 37,
		29, 40, 58, 51, 61, 60, 57, 51,
		56, 55, 64, 72, 92, 78, 64, 68,
		87, 69, 55, 56, 80, 109, 81, 87,
		95, 98, 103, 104, 103, 62, 77, 113,
		121, 112, 100, 120, 92, 101, 103, 99,
	},
	// Chrominance.
	{
		17, 18, 18, 24, 21, 24, 47, 26,
		26, 47, 99, 66, 56, 66, 99, 99,
		99, 99, 99, 99, 99, 99, 99, 99,
		99, 99, 99, 99, 99, 99, 99, 99,
		99, 99, 99, 99, 99, 99, 99, 99,
		99, 99, 99, 99, 99, 99, 99, 99,
		99, 99, 99, 99, 99, 99, 99, 99,
		99, 99, 99, 99, 99, 99, 99, 99,
	},
}

// qualityScale converts a quality rating to a percentage scaling of the standard
// quantization tables, the way the IJG library does.
func qualityScale(quality int) int {
	if quality <= 0 {
		quality = 1
	}

	if quality > 100 {
		quality = 100
	}

	if quality < 50 {
		return 5000 / quality
	}

	return 200 - quality*2
}

// compressor encodes RGB scanlines as one baseline JPEG stream into a memory destination.
// The call sequence is setDefaults, parameter changes and setQuality, startCompress,
// any writeMarker calls, writeScanlines until every row is written, and finishCompress.
type compressor struct {
	ctx *codecContext
	dst *memoryDestination
	// err is the first error encountered during writing. All attempted writes after
	// the first error become no-ops.
	err error
	// buf is a scratch buffer.
	buf [24]byte
	// bits and nBits are accumulated bits to write to dst.
	bits, nBits uint32
	// quant is the scaled quantization tables, in zig-zag order.
	quant [2][64]byte

	width, height  int
	componentIDs   [3]byte
	lumaH, lumaV   int // luma sampling factors, chroma is always 1x1
	writeJFIF      bool
	writeAllTables bool
	tables         tableSet

	started       bool
	headerWritten bool
	nextScanline  int

	mcuW, mcuH, mcuCols int
	strip               []byte // one MCU row of RGB input
	prevDC              [3]int32
	yBlocks             [4]block
	cbBlock, crBlock    block
}

// setDefaults selects quality 75, the standard Huffman tables, 2x2 luma sampling,
// component ids 1 to 3 and a JFIF header.
func (e *compressor) setDefaults() {
	e.setQuality(75)
	setStandardTables(&e.tables, false)
	e.componentIDs = [3]byte{1, 2, 3}
	e.lumaH, e.lumaV = 2, 2
	e.writeJFIF = true
}

// setQuality scales the standard quantization tables, limited to baseline values.
func (e *compressor) setQuality(quality int) {
	scale := qualityScale(quality)

	for i := range e.quant {
		for j := range e.quant[i] {
			x := (int(unscaledQuant[i][j])*scale + 50) / 100
			x = min(max(x, 1), 255)
			e.quant[i][j] = byte(x)
		}
	}
}

// startCompress writes SOI and the optional JFIF header. Unless writeAllTables is
// false, every Huffman table is written even if it was marked as sent.
func (e *compressor) startCompress(writeAllTables bool) error {
	if e.started {
		return fmt.Errorf("compression already started: %w", ErrInternal)
	}

	if e.width <= 0 || e.height <= 0 || e.width >= 1<<16 || e.height >= 1<<16 {
		return fmt.Errorf("image size %dx%d: %w", e.width, e.height, ErrInvalidArgument)
	}

	if e.lumaH < 1 || e.lumaH > 2 || e.lumaV < 1 || e.lumaV > 2 {
		return fmt.Errorf("luma sampling %dx%d: %w", e.lumaH, e.lumaV, ErrUnsupported)
	}

	e.started = true
	e.writeAllTables = writeAllTables

	if writeAllTables {
		for _, t := range []*huffmanTable{&e.tables.dc[0], &e.tables.ac[0], &e.tables.dc[1], &e.tables.ac[1]} {
			t.sent = false
		}
	}

	e.mcuW, e.mcuH = 8*e.lumaH, 8*e.lumaV
	e.mcuCols = (e.width + e.mcuW - 1) / e.mcuW
	e.strip = make([]byte, e.mcuH*e.width*3)

	e.buf[0], e.buf[1] = 0xFF, markerSOI
	e.write(e.buf[:2])

	if e.writeJFIF {
		e.writeJFIFHeader()
	}

	return e.err
}

// writeMarker writes an application or comment marker. Markers can only be written
// after startCompress and before the first scanline.
func (e *compressor) writeMarker(m Marker, payload []byte) error {
	if !e.started || e.headerWritten {
		return fmt.Errorf("%s written outside the marker phase: %w", m, ErrInternal)
	}

	if len(payload) > 65533 {
		return fmt.Errorf("%s payload of %d bytes: %w", m, len(payload), ErrInvalidArgument)
	}

	e.writeMarkerHeader(uint8(m), 2+len(payload))
	e.write(payload)

	return e.err
}

// writeScanlines encodes the next rows of packed RGB input, one row per element of rows.
// It returns the number of rows consumed.
func (e *compressor) writeScanlines(rows [][]byte) (int, error) {
	if !e.started {
		return 0, fmt.Errorf("scanlines written before compression started: %w", ErrInternal)
	}

	if !e.headerWritten {
		e.writeFrameHeader()
	}

	stride := e.width * 3
	n := 0

	for _, row := range rows {
		if e.nextScanline >= e.height || e.err != nil {
			break
		}

		if len(row) < stride {
			return n, fmt.Errorf("scanline %d holds %d bytes, need %d: %w", e.nextScanline, len(row), stride, ErrFrameSize)
		}

		copy(e.strip[(e.nextScanline%e.mcuH)*stride:], row[:stride])
		e.nextScanline++
		n++

		if e.nextScanline%e.mcuH == 0 {
			e.encodeStrip(e.mcuH)
		} else if e.nextScanline == e.height {
			e.encodeStrip(e.nextScanline % e.mcuH)
		}
	}

	return n, e.err
}

// finishCompress pads the last byte, writes EOI and records the bytes produced.
func (e *compressor) finishCompress() error {
	if e.nextScanline < e.height {
		return fmt.Errorf("%d of %d scanlines written: %w", e.nextScanline, e.height, ErrInternal)
	}

	// Pad the last byte with 1 bits.
	e.emit(0x7f, 7)
	e.bits, e.nBits = 0, 0

	e.buf[0], e.buf[1] = 0xFF, markerEOI
	e.write(e.buf[:2])
	e.flush()
	e.dst.term()

	return e.err
}

func (e *compressor) flush() {
	if e.err != nil {
		return
	}

	e.err = e.dst.Flush()
}

func (e *compressor) write(p []byte) {
	if e.err != nil {
		return
	}

	_, e.err = e.dst.Write(p)
}

func (e *compressor) writeByte(b byte) {
	if e.err != nil {
		return
	}

	e.err = e.dst.WriteByte(b)
}

// emit emits the least significant nBits bits of bits to the bit-stream.
// The precondition is bits < 1<<nBits && nBits <= 16.
func (e *compressor) emit(bits, nBits uint32) {
	nBits += e.nBits
	bits <<= 32 - nBits
	bits |= e.bits

	for nBits >= 8 {
		b := uint8(bits >> 24)
		e.writeByte(b)
		if b == 0xff {
			e.writeByte(0x00)
		}
		bits <<= 8
		nBits -= 8
	}

	e.bits, e.nBits = bits, nBits
}

// emitHuff emits the given value with the given Huffman encoder.
func (e *compressor) emitHuff(h int, value int32) {
	x := standardLUT[h][value]
	e.emit(x&(1<<24-1), x>>24)
}

// emitHuffRLE emits a run of runLength copies of value encoded with the given
// Huffman encoder.
func (e *compressor) emitHuffRLE(h int, runLength, value int32) {
	a, b := value, value
	if a < 0 {
		a, b = -value, value-1
	}

	var nBits uint32
	if a < 0x100 {
		nBits = uint32(bitCount[a])
	} else {
		nBits = 8 + uint32(bitCount[a>>8])
	}

	e.emitHuff(h, runLength<<4|int32(nBits))
	if nBits > 0 {
		e.emit(uint32(b)&(1<<nBits-1), nBits)
	}
}

// writeMarkerHeader writes the header for a marker with the given length.
func (e *compressor) writeMarkerHeader(marker uint8, markerlen int) {
	e.buf[0] = 0xff
	e.buf[1] = marker
	e.buf[2] = uint8(markerlen >> 8)
	e.buf[3] = uint8(markerlen & 0xff)
	e.write(e.buf[:4])
}

// writeJFIFHeader writes a JFIF 1.01 APP0 segment with a 1:1 pixel aspect ratio.
func (e *compressor) writeJFIFHeader() {
	e.writeMarkerHeader(markerAPP0, 16)
	e.write([]byte{'J', 'F', 'I', 'F', 0, 1, 1, 0, 0, 1, 0, 1, 0, 0})
}

// writeFrameHeader writes the tables, the frame header and the scan header.
func (e *compressor) writeFrameHeader() {
	e.headerWritten = true
	e.writeDQT()
	e.writeSOF0()
	e.writeDHT()
	e.writeSOS()
	e.prevDC = [3]int32{}
}

// writeDQT writes the Define Quantization Table marker.
func (e *compressor) writeDQT() {
	const markerlen = 2 + 2*(1+64)

	e.writeMarkerHeader(markerDQT, markerlen)
	for i := range e.quant {
		e.writeByte(uint8(i))
		e.write(e.quant[i][:])
	}
}

// writeSOF0 writes the Start Of Frame (Baseline Sequential) marker.
func (e *compressor) writeSOF0() {
	e.writeMarkerHeader(markerSOF0, 8+3*3)
	e.buf[0] = 8 // 8-bit color.
	e.buf[1] = uint8(e.height >> 8)
	e.buf[2] = uint8(e.height & 0xff)
	e.buf[3] = uint8(e.width >> 8)
	e.buf[4] = uint8(e.width & 0xff)
	e.buf[5] = 3

	for i := 0; i < 3; i++ {
		e.buf[3*i+6] = e.componentIDs[i]
		e.buf[3*i+7] = 0x11
		e.buf[3*i+8] = 1
	}

	e.buf[7] = uint8(e.lumaH<<4 | e.lumaV)
	e.buf[8] = 0
	e.write(e.buf[:15])
}

// writeDHT writes the Define Huffman Table marker for every table not yet sent.
func (e *compressor) writeDHT() {
	slots := [4]struct {
		tcth byte
		t    *huffmanTable
	}{
		{0x00, &e.tables.dc[0]},
		{0x10, &e.tables.ac[0]},
		{0x01, &e.tables.dc[1]},
		{0x11, &e.tables.ac[1]},
	}

	markerlen := 2
	for _, s := range slots {
		if s.t.present && !s.t.sent {
			markerlen += s.t.size()
		}
	}

	if markerlen == 2 {
		return
	}

	e.writeMarkerHeader(markerDHT, markerlen)
	for _, s := range slots {
		if s.t.present && !s.t.sent {
			e.writeByte(s.tcth)
			e.write(s.t.count[:])
			e.write(s.t.values)
			s.t.sent = true
		}
	}
}

// writeSOS writes the Start Of Scan marker: component 0 uses tables 0,
// components 1 and 2 use tables 1, followed by the sequential Ss, Se, Ah/Al.
func (e *compressor) writeSOS() {
	e.writeMarkerHeader(markerSOS, 6+2*3)
	e.buf[0] = 3
	e.buf[1], e.buf[2] = e.componentIDs[0], 0x00
	e.buf[3], e.buf[4] = e.componentIDs[1], 0x11
	e.buf[5], e.buf[6] = e.componentIDs[2], 0x11
	e.buf[7], e.buf[8], e.buf[9] = 0x00, 0x3f, 0x00
	e.write(e.buf[:10])
}

// writeBlock writes a block of pixel data using the given quantization table,
// returning the post-quantized DC value of the DCT-transformed block. b is in
// natural (not zig-zag) order.
func (e *compressor) writeBlock(b *block, q int, prevDC int32) int32 {
	fdct(b)

	// Emit the DC delta.
	dc := div(b[0], 8*int32(e.quant[q][0]))
	e.emitHuffRLE(2*q, 0, dc-prevDC)

	// Emit the AC components.
	h, runLength := 2*q+1, int32(0)
	for zig := 1; zig < 64; zig++ {
		ac := div(b[zz[zig]], 8*int32(e.quant[q][zig]))
		if ac == 0 {
			runLength++
		} else {
			for runLength > 15 {
				e.emitHuff(h, 0xf0)
				runLength -= 16
			}
			e.emitHuffRLE(h, runLength, ac)
			runLength = 0
		}
	}

	if runLength > 0 {
		e.emitHuff(h, 0x00)
	}

	return dc
}

// encodeStrip encodes the MCU row held in strip. Only the first rows lines are valid;
// the rest of the strip repeats the last valid line, and columns past the right edge
// repeat the last column.
func (e *compressor) encodeStrip(rows int) {
	stride := e.width * 3
	nLuma := e.lumaH * e.lumaV
	nc := int32(nLuma)

	for mx := 0; mx < e.mcuCols && e.err == nil; mx++ {
		x0 := mx * e.mcuW
		e.cbBlock, e.crBlock = block{}, block{}

		for j := 0; j < e.mcuH; j++ {
			row := e.strip[min(j, rows-1)*stride:]

			for i := 0; i < e.mcuW; i++ {
				x := min(x0+i, e.width-1)
				yy, cb, cr := color.RGBToYCbCr(row[3*x], row[3*x+1], row[3*x+2])

				e.yBlocks[(j>>3)*e.lumaH+i>>3][(j&7)<<3|i&7] = int32(yy)

				k := (j/e.lumaV)<<3 | i/e.lumaH
				e.cbBlock[k] += int32(cb)
				e.crBlock[k] += int32(cr)
			}
		}

		for k := range e.cbBlock {
			e.cbBlock[k] = (e.cbBlock[k] + nc/2) / nc
			e.crBlock[k] = (e.crBlock[k] + nc/2) / nc
		}

		for b := 0; b < nLuma; b++ {
			e.prevDC[0] = e.writeBlock(&e.yBlocks[b], quantLuminance, e.prevDC[0])
		}

		e.prevDC[1] = e.writeBlock(&e.cbBlock, quantChrominance, e.prevDC[1])
		e.prevDC[2] = e.writeBlock(&e.crBlock, quantChrominance, e.prevDC[2])
	}
}
