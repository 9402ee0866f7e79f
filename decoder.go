package avimjpeg

import (
	"fmt"
)

// component stores information about a single color component (e.g., Y, Cb, or Cr).
type component struct {
	id                 int    // Component identifier from the frame header.
	ssX, ssY           int    // Sampling factors.
	width, height      int    // Samples of this component that belong to the image.
	blocksW, blocksH   int    // Block grid of a non-interleaved scan.
	stride             int    // Bytes from one row of the plane to the next.
	qtSel              int    // Quantization table selector.
	dcTabSel, acTabSel int    // Huffman table selectors.
	dcPred             int    // DC prediction for differential coding.
	pixels             []byte // Decoded samples, padded to whole MCUs.

	upsampled []byte // Owned full-resolution buffer, reused between frames.
	out       []byte // Full-resolution view used for color conversion.
	outStride int
}

// colorMode is the color representation of the decoded components.
type colorMode int

const (
	colorGray colorMode = iota
	colorYCbCr
	colorRGB
)

// errDecode is used for internal panics during the hot decoding path.
type errDecode struct{ error }

// decompressor decodes one baseline JPEG stream from a memory source into RGB scanlines.
// A stream is decoded in four steps: readHeader, startDecompress, readScanlines
// until every row has been read, and finishDecompress.
type decompressor struct {
	ctx *codecContext
	src *memorySource

	tables      tableSet
	provisioned bool
	vlcTab      [8]*[65536]vlcCode // DC slots 0-3, AC slots 4-7
	vlcValid    [8]bool
	qtab        [4][64]uint16 // zig-zag order
	qtAvail     int

	width, height     int
	ncomp             int
	comp              [3]component
	ssxMax, ssyMax    int
	mbWidth, mbHeight int
	frameSeen         bool
	rstInterval       int
	adobe             bool
	adobeTransform    byte
	mode              colorMode

	scanComp  [3]int
	nScanComp int

	buf          uint64
	bufBits      int
	markerHit    bool
	insufficient bool
	badCode      bool
	block        [64]int32

	started        bool
	eoi            bool
	outputScanline int
}

// newDecompressor creates a decompressor and allocates the large lookup tables.
func newDecompressor() *decompressor {
	d := new(decompressor)
	for i := range d.vlcTab {
		d.vlcTab[i] = new([65536]vlcCode)
	}

	return d
}

// reset clears the decompressor for reuse, keeping the lookup tables and plane buffers.
func (d *decompressor) reset() {
	vlc := d.vlcTab

	var planes [3][2][]byte
	for i := range d.comp {
		planes[i] = [2][]byte{d.comp[i].pixels[:0], d.comp[i].upsampled[:0]}
	}

	*d = decompressor{}

	d.vlcTab = vlc
	for i := range d.comp {
		d.comp[i].pixels, d.comp[i].upsampled = planes[i][0], planes[i][1]
	}
}

// fail aborts decoding with err.
func (d *decompressor) fail(err error) {
	panic(errDecode{err})
}

// setSource attaches the stream data.
func (d *decompressor) setSource(data []byte) {
	d.src = newMemorySource(d.ctx, data)
}

// zz is the zigzag ordering table. It maps the 1D order of coefficients in the JPEG stream to their 2D position in an 8x8 block.
var zz = [64]int{
	0, 1, 8, 16, 9, 2, 3, 10, 17, 24, 32, 25, 18,
	11, 4, 5, 12, 19, 26, 33, 40, 48, 41, 34, 27, 20, 13, 6, 7, 14, 21, 28, 35,
	42, 49, 56, 57, 50, 43, 36, 29, 22, 15, 23, 30, 37, 44, 51, 58, 59, 52, 45,
	38, 31, 39, 46, 53, 60, 61, 54, 47, 55, 62, 63,
}

// Markers

// nextMarker returns the next marker code, consuming it. Bytes that are not part of a
// marker are skipped and reported.
func (d *decompressor) nextMarker() Marker {
	discarded := 0

	for {
		for d.src.peek() != 0xFF {
			d.src.advance(1)
			discarded++
		}

		// Any number of fill bytes may precede the marker code.
		for d.src.peek() == 0xFF {
			d.src.advance(1)
		}

		if c := d.src.readByte(); c != 0 {
			if discarded > 0 {
				d.ctx.warn("corrupt data: extraneous bytes before marker", "bytes", discarded, "marker", Marker(c).String())
			}

			return Marker(c)
		}

		discarded += 2
	}
}

// readSegment reads the length field of a marker segment and returns its payload.
func (d *decompressor) readSegment(m Marker) []byte {
	n := d.src.readUint16()
	if n < 2 {
		d.fail(fmt.Errorf("%s segment length %d: %w", m, n, ErrSyntax))
	}

	return d.src.take(n - 2)
}

// skipSegment skips a marker segment of no interest.
func (d *decompressor) skipSegment() {
	n := d.src.readUint16()
	if n < 2 {
		d.fail(fmt.Errorf("segment length %d: %w", n, ErrSyntax))
	}

	d.src.skip(n - 2)
}

// readHeader parses the stream up to the first scan header.
// Missing standard Huffman tables are provisioned afterwards.
func (d *decompressor) readHeader() error {
	if d.src.peek() != 0xFF || d.src.peekAt(1) != markerSOI {
		return fmt.Errorf("stream starts with 0x%02X 0x%02X: %w", d.src.peek(), d.src.peekAt(1), ErrNoJPEG)
	}

	d.src.advance(2)

	for {
		m := d.nextMarker()

		switch {
		case m == markerSOS:
			if !d.frameSeen {
				return fmt.Errorf("scan before frame header: %w", ErrSyntax)
			}

			if err := d.parseSOS(d.readSegment(m)); err != nil {
				return err
			}

			if d.provisioned = provisionStandardTables(&d.tables); d.provisioned {
				d.vlcValid = [8]bool{}
				d.ctx.logger.Debug("avimjpeg: provisioned standard Huffman tables")
			}

			return nil
		case m == markerEOI:
			return fmt.Errorf("no image before EOI: %w", ErrSyntax)
		case m == markerSOI:
			return fmt.Errorf("duplicate SOI: %w", ErrSyntax)
		default:
			if err := d.processMarker(m); err != nil {
				return err
			}
		}
	}
}

// processMarker handles the table, frame and miscellaneous segments
// allowed before and between scans.
func (d *decompressor) processMarker(m Marker) error {
	switch {
	case m == markerSOF0 || m == markerSOF1:
		if d.frameSeen {
			return fmt.Errorf("duplicate %s: %w", m, ErrSyntax)
		}

		return d.parseSOF(d.readSegment(m))
	case m >= markerSOF0 && m <= markerSOF0+0xF && m != markerDHT && m != markerJPG && m != markerDAC:
		return fmt.Errorf("%s (only baseline and extended sequential DCT are handled): %w", m, ErrUnsupported)
	case m == markerDAC:
		return fmt.Errorf("arithmetic coding: %w", ErrUnsupported)
	case m == markerDHT:
		return d.parseDHT(d.readSegment(m))
	case m == markerDQT:
		return d.parseDQT(d.readSegment(m))
	case m == markerDRI:
		return d.parseDRI(d.readSegment(m))
	case m == markerAPPE:
		d.parseAPP14(d.readSegment(m))
	case m.isStandalone():
		// Stray RSTn or TEM.
	default:
		// APPn, COM and anything else with a length field.
		d.skipSegment()
	}

	return nil
}

// parseSOF decodes the frame header: dimensions, components and their sampling factors.
func (d *decompressor) parseSOF(p []byte) error {
	if len(p) < 6 {
		return fmt.Errorf("SOF segment of %d bytes: %w", len(p), ErrSyntax)
	}

	if p[0] != 8 {
		return fmt.Errorf("%d-bit precision: %w", p[0], ErrUnsupported)
	}

	d.height = int(p[1])<<8 | int(p[2])
	d.width = int(p[3])<<8 | int(p[4])
	d.ncomp = int(p[5])

	if d.height == 0 {
		return fmt.Errorf("height defined by DNL: %w", ErrUnsupported)
	}

	if d.width == 0 {
		return fmt.Errorf("zero width: %w", ErrSyntax)
	}

	if d.ncomp != 1 && d.ncomp != 3 {
		return fmt.Errorf("%d components: %w", d.ncomp, ErrUnsupported)
	}

	if len(p) != 6+3*d.ncomp {
		return fmt.Errorf("SOF segment of %d bytes for %d components: %w", len(p), d.ncomp, ErrSyntax)
	}

	d.ssxMax, d.ssyMax = 1, 1

	for i := 0; i < d.ncomp; i++ {
		c := &d.comp[i]
		q := p[6+3*i:]

		c.id = int(q[0])
		c.ssX, c.ssY = int(q[1]>>4), int(q[1]&15)
		c.qtSel = int(q[2])

		if c.ssX < 1 || c.ssX > 4 || c.ssY < 1 || c.ssY > 4 {
			return fmt.Errorf("component %d sampling %dx%d: %w", c.id, c.ssX, c.ssY, ErrSyntax)
		}

		if c.qtSel > 3 {
			return fmt.Errorf("component %d quantization table %d: %w", c.id, c.qtSel, ErrSyntax)
		}

		d.ssxMax = max(d.ssxMax, c.ssX)
		d.ssyMax = max(d.ssyMax, c.ssY)
	}

	if d.ncomp == 1 {
		// A single component is never subsampled.
		d.comp[0].ssX, d.comp[0].ssY = 1, 1
		d.ssxMax, d.ssyMax = 1, 1
	}

	for i := 0; i < d.ncomp; i++ {
		c := &d.comp[i]
		if d.ssxMax%c.ssX != 0 || d.ssyMax%c.ssY != 0 {
			return fmt.Errorf("component %d sampling %dx%d of %dx%d: %w",
				c.id, c.ssX, c.ssY, d.ssxMax, d.ssyMax, ErrUnsupported)
		}
	}

	d.mbWidth = (d.width + 8*d.ssxMax - 1) / (8 * d.ssxMax)
	d.mbHeight = (d.height + 8*d.ssyMax - 1) / (8 * d.ssyMax)

	for i := 0; i < d.ncomp; i++ {
		c := &d.comp[i]
		c.width = (d.width*c.ssX + d.ssxMax - 1) / d.ssxMax
		c.height = (d.height*c.ssY + d.ssyMax - 1) / d.ssyMax
		c.blocksW = (c.width + 7) / 8
		c.blocksH = (c.height + 7) / 8
		c.stride = d.mbWidth * c.ssX * 8
	}

	d.frameSeen = true

	return nil
}

// parseDHT decodes the Define Huffman Table segment into the table slots.
func (d *decompressor) parseDHT(p []byte) error {
	for len(p) > 0 {
		class, id, t, n, err := parseHuffmanTable(p)
		if err != nil {
			return err
		}

		*d.tables.slot(class, id) = t
		d.vlcValid[class*4+id] = false
		p = p[n:]
	}

	return nil
}

// parseDQT decodes the Define Quantization Table segment. 16-bit tables are accepted.
func (d *decompressor) parseDQT(p []byte) error {
	for len(p) > 0 {
		pq, tq := int(p[0]>>4), int(p[0]&15)
		if tq > 3 || pq > 1 {
			return fmt.Errorf("DQT precision %d table %d: %w", pq, tq, ErrSyntax)
		}

		size := 64 << pq
		if len(p) < 1+size {
			return fmt.Errorf("DQT table %d truncated: %w", tq, ErrSyntax)
		}

		t := &d.qtab[tq]
		for k := 0; k < 64; k++ {
			if pq == 0 {
				t[k] = uint16(p[1+k])
			} else {
				t[k] = uint16(p[1+2*k])<<8 | uint16(p[2+2*k])
			}
		}

		d.qtAvail |= 1 << tq
		p = p[1+size:]
	}

	return nil
}

// parseDRI decodes the Define Restart Interval segment.
func (d *decompressor) parseDRI(p []byte) error {
	if len(p) != 2 {
		return fmt.Errorf("DRI segment of %d bytes: %w", len(p), ErrSyntax)
	}

	d.rstInterval = int(p[0])<<8 | int(p[1])

	return nil
}

// parseAPP14 looks for the Adobe segment, whose transform flag tells RGB from YCbCr.
func (d *decompressor) parseAPP14(p []byte) {
	if len(p) >= 12 && string(p[:5]) == "Adobe" {
		d.adobe = true
		d.adobeTransform = p[11]
	}
}

// parseSOS decodes a scan header.
func (d *decompressor) parseSOS(p []byte) error {
	if len(p) < 1 {
		return fmt.Errorf("empty SOS segment: %w", ErrSyntax)
	}

	ns := int(p[0])
	if ns < 1 || ns > d.ncomp || len(p) != 4+2*ns {
		return fmt.Errorf("SOS with %d components in %d bytes: %w", ns, len(p), ErrSyntax)
	}

	for i := 0; i < ns; i++ {
		cid, sel := int(p[1+2*i]), p[2+2*i]

		idx := -1
		for j := 0; j < d.ncomp; j++ {
			if d.comp[j].id == cid {
				idx = j

				break
			}
		}

		if idx < 0 {
			return fmt.Errorf("scan component id %d not in frame: %w", cid, ErrSyntax)
		}

		c := &d.comp[idx]
		c.dcTabSel, c.acTabSel = int(sel>>4), int(sel&15)
		if c.dcTabSel > 3 || c.acTabSel > 3 {
			return fmt.Errorf("scan table selector 0x%02X: %w", sel, ErrSyntax)
		}

		d.scanComp[i] = idx
	}

	d.nScanComp = ns

	if ss, se, a := p[1+2*ns], p[2+2*ns], p[3+2*ns]; ss != 0 || se != 63 || a != 0 {
		d.ctx.warn("invalid SOS parameters for sequential JPEG", "Ss", ss, "Se", se, "AhAl", a)
	}

	return nil
}

// Decompression

// startDecompress decodes all scans of the stream and prepares full-resolution planes
// for the scanline output.
func (d *decompressor) startDecompress() error {
	if d.started {
		return fmt.Errorf("decompression already started: %w", ErrInternal)
	}

	d.started = true

	for i := 0; i < d.ncomp; i++ {
		c := &d.comp[i]
		c.pixels = grow(c.pixels, c.stride*d.mbHeight*c.ssY*8)
	}

	if err := d.decodeScans(); err != nil {
		return err
	}

	switch {
	case d.ncomp == 1:
		d.mode = colorGray
	case d.adobe:
		d.mode = colorYCbCr
		if d.adobeTransform == 0 {
			d.mode = colorRGB
		}
	case d.comp[0].id == 'R' && d.comp[1].id == 'G' && d.comp[2].id == 'B':
		d.mode = colorRGB
	default:
		d.mode = colorYCbCr
	}

	for i := 0; i < d.ncomp; i++ {
		c := &d.comp[i]
		upsample(c, d.ssxMax/c.ssX, d.ssyMax/c.ssY, d.width, d.height)
	}

	return nil
}

// decodeScans decodes the scan announced by readHeader and any scans that follow,
// up to the EOI marker.
func (d *decompressor) decodeScans() error {
	for {
		if err := d.decodeScan(); err != nil {
			return err
		}

		d.resetBits()
		if !d.markerHit {
			if n := d.skipToMarker(); n > 0 {
				d.ctx.warn("corrupt data: extraneous bytes after scan", "bytes", n)
			}
		}

		for {
			m := d.nextMarker()

			switch {
			case m == markerEOI:
				d.eoi = true

				return nil
			case m == markerSOI:
				// The next stream starts without this one having been terminated.
				d.src.pos -= 2
				d.ctx.warn("missing EOI marker")

				return nil
			case m == markerSOS:
				if err := d.parseSOS(d.readSegment(m)); err != nil {
					return err
				}
			case m == markerSOF0 || m == markerSOF1:
				return fmt.Errorf("%s after first scan: %w", m, ErrSyntax)
			default:
				if err := d.processMarker(m); err != nil {
					return err
				}

				continue
			}

			break
		}
	}
}

// prepareScan checks the tables referenced by the current scan and builds their lookups.
func (d *decompressor) prepareScan() error {
	for i := 0; i < d.nScanComp; i++ {
		c := &d.comp[d.scanComp[i]]

		if d.qtAvail&(1<<c.qtSel) == 0 {
			return fmt.Errorf("quantization table %d not defined: %w", c.qtSel, ErrSyntax)
		}

		for _, sel := range [2][2]int{{classDC, c.dcTabSel}, {classAC, c.acTabSel}} {
			class, id := sel[0], sel[1]
			t := d.tables.slot(class, id)

			if !t.present {
				return fmt.Errorf("Huffman table %d/%d not defined: %w", class, id, ErrSyntax)
			}

			if class == classDC {
				for _, v := range t.values {
					if v > 15 {
						return fmt.Errorf("DC Huffman table %d holds symbol %d: %w", id, v, ErrSyntax)
					}
				}
			}

			if idx := class*4 + id; !d.vlcValid[idx] {
				if err := buildLookup(d.vlcTab[idx], t); err != nil {
					return err
				}
				d.vlcValid[idx] = true
			}
		}

		c.dcPred = 0
	}

	return nil
}

// decodeScan decodes the entropy-coded data of one scan into the component planes.
func (d *decompressor) decodeScan() error {
	if err := d.prepareScan(); err != nil {
		return err
	}

	d.resetBits()
	d.markerHit = false
	d.insufficient = false

	nextRst := 0
	mcu := 0

	if d.nScanComp == 1 {
		// Non-interleaved: one block per MCU over the component's own block grid.
		c := &d.comp[d.scanComp[0]]

		for by := 0; by < c.blocksH; by++ {
			for bx := 0; bx < c.blocksW; bx++ {
				if d.rstInterval > 0 && mcu > 0 && mcu%d.rstInterval == 0 {
					d.processRestart(&nextRst)
				}

				d.decodeBlock(c, c.pixels[by*8*c.stride+bx*8:])
				mcu++
			}
		}

		return nil
	}

	for mby := 0; mby < d.mbHeight; mby++ {
		for mbx := 0; mbx < d.mbWidth; mbx++ {
			if d.rstInterval > 0 && mcu > 0 && mcu%d.rstInterval == 0 {
				d.processRestart(&nextRst)
			}

			for i := 0; i < d.nScanComp; i++ {
				c := &d.comp[d.scanComp[i]]

				for sby := 0; sby < c.ssY; sby++ {
					for sbx := 0; sbx < c.ssX; sbx++ {
						offset := (mby*c.ssY+sby)*8*c.stride + (mbx*c.ssX+sbx)*8
						d.decodeBlock(c, c.pixels[offset:])
					}
				}
			}

			mcu++
		}
	}

	return nil
}

// processRestart reads the expected RSTn marker and resets the entropy decoder.
// A missing or wrong marker is reported; decoding continues either way.
func (d *decompressor) processRestart(next *int) {
	d.resetBits()

	if !d.markerHit {
		if n := d.skipToMarker(); n > 0 {
			d.ctx.warn("corrupt data: extraneous bytes before restart marker", "bytes", n)
		}
	}

	m := Marker(d.src.peekAt(1))

	switch {
	case m == Marker(markerRST0+*next):
		d.src.advance(2)
		d.markerHit = false
		d.insufficient = false
	case m >= markerRST0 && m <= markerRST7:
		d.ctx.warn("corrupt data: unexpected marker at restart", "found", m.String(), "expected", Marker(markerRST0+*next).String())
		d.src.advance(2)
		d.markerHit = false
		d.insufficient = false
	default:
		// Leave the marker for the segment parser; the rest of the scan decodes as empty.
		d.ctx.warn("corrupt data: unexpected marker at restart", "found", m.String(), "expected", Marker(markerRST0+*next).String())
	}

	*next = (*next + 1) & 7

	for i := 0; i < d.nScanComp; i++ {
		d.comp[d.scanComp[i]].dcPred = 0
	}
}

// decodeBlock decodes a single 8x8 block of a component. This involves
// entropy decoding of DC and AC coefficients, dequantization, and applying the IDCT.
// Once the segment has run out of data the block is left empty.
func (d *decompressor) decodeBlock(c *component, out []byte) {
	d.block = [64]int32{}

	if !d.insufficient {
		qt := &d.qtab[c.qtSel]
		dcVLC := d.vlcTab[c.dcTabSel]
		acVLC := d.vlcTab[4+c.acTabSel]

		if s := int(d.decodeHuffman(dcVLC)); s != 0 {
			c.dcPred += d.receiveExtend(s)
		}

		d.block[0] = int32(c.dcPred) * int32(qt[0])

		for k := 1; k < 64; {
			rs := d.decodeHuffman(acVLC)
			r, s := int(rs>>4), int(rs&15)

			if s == 0 {
				if r != 15 {
					break // EOB
				}

				k += 16 // ZRL

				continue
			}

			k += r
			if k > 63 {
				break
			}

			d.block[zz[k]] = int32(d.receiveExtend(s)) * int32(qt[k])
			k++
		}
	}

	idct(&d.block, out, c.stride)
}

// readScanlines converts the next rows of the image to packed RGB, one row per element
// of rows. A nil element decodes the row and drops it. It returns the number of rows read.
func (d *decompressor) readScanlines(rows [][]byte) int {
	if !d.started {
		d.fail(fmt.Errorf("scanlines read before decompression started: %w", ErrInternal))
	}

	n := 0

	for _, row := range rows {
		if d.outputScanline >= d.height {
			break
		}

		if row != nil {
			d.convertRow(row, d.outputScanline)
		}

		d.outputScanline++
		n++
	}

	return n
}

// convertRow writes image row y as RGB into dst.
func (d *decompressor) convertRow(dst []byte, y int) {
	c0 := &d.comp[0]
	r0 := c0.out[y*c0.outStride:]

	switch d.mode {
	case colorGray:
		grayToRGB(dst, r0, d.width)
	case colorRGB:
		c1, c2 := &d.comp[1], &d.comp[2]
		planarToRGB(dst, r0, c1.out[y*c1.outStride:], c2.out[y*c2.outStride:], d.width)
	default:
		c1, c2 := &d.comp[1], &d.comp[2]
		ycbcrToRGB(dst, r0, c1.out[y*c1.outStride:], c2.out[y*c2.outStride:], d.width)
	}
}

// finishDecompress completes the stream and records how many bytes it used.
func (d *decompressor) finishDecompress() error {
	if d.outputScanline < d.height {
		return fmt.Errorf("%d of %d scanlines read: %w", d.outputScanline, d.height, ErrInternal)
	}

	d.src.term()

	return nil
}
