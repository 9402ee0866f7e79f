package avimjpeg

// Entropy-coded segment reader.
//
// Valid bits sit in the low bufBits bits of buf. Filling stops at the first marker;
// the marker itself is left in the source for the segment parser. Once a marker has
// been hit, requests for more bits than are buffered are padded with zero bits.

// fill tops up the bit buffer from the source, handling 0xFF00 byte stuffing.
func (d *decompressor) fill() {
	for d.bufBits <= 56 && !d.markerHit {
		b := d.src.peek()

		if b == 0xFF {
			if d.src.peekAt(1) != 0x00 {
				// Marker (RSTn, EOI, ...) or fill bytes: end of the entropy-coded segment.
				d.markerHit = true

				return
			}

			d.src.advance(2)
		} else {
			d.src.advance(1)
		}

		d.buf = d.buf<<8 | uint64(b)
		d.bufBits += 8
	}
}

// showBits returns the next n (at most 32) bits without consuming them.
func (d *decompressor) showBits(n int) int {
	if d.bufBits < n {
		d.fill()
	}

	if d.bufBits >= n {
		return int(d.buf>>(d.bufBits-n)) & (1<<n - 1)
	}

	// Underfilled after a marker: left-align what is there and pad with zeros.
	return int(d.buf<<(n-d.bufBits)) & (1<<n - 1)
}

// skipBits consumes n bits.
func (d *decompressor) skipBits(n int) {
	if d.bufBits < n {
		d.fill()
	}

	if d.bufBits < n {
		d.outOfData()
		d.bufBits = 0

		return
	}

	d.bufBits -= n
}

// getBits reads and consumes n bits.
func (d *decompressor) getBits(n int) int {
	v := d.showBits(n)
	d.skipBits(n)

	return v
}

// receiveExtend reads an s-bit magnitude and sign-extends it (JPEG F.2.2.1).
func (d *decompressor) receiveExtend(s int) int {
	v := d.getBits(s)
	if v < 1<<(s-1) {
		v += -1<<s + 1
	}

	return v
}

// decodeHuffman decodes one symbol with the given lookup table.
// An invalid code is reported and decoded as symbol 0.
func (d *decompressor) decodeHuffman(vlc *[65536]vlcCode) uint8 {
	e := vlc[d.showBits(16)]
	if e.bits == 0 {
		if !d.badCode {
			d.badCode = true
			d.ctx.warn("corrupt data: bad Huffman code")
		}
		d.skipBits(16)

		return 0
	}

	d.skipBits(int(e.bits))

	return e.code
}

// outOfData is called when the scan needs bits beyond the end of its segment.
// Decoding goes on with zero bits and the remaining blocks of the segment are left empty.
func (d *decompressor) outOfData() {
	if !d.insufficient {
		d.insufficient = true
		d.ctx.warn("corrupt data: premature end of data segment")
	}
}

// resetBits drops the buffered bits, e.g. at a restart marker or the end of a scan.
func (d *decompressor) resetBits() {
	d.buf = 0
	d.bufBits = 0
}

// skipToMarker discards entropy-coded bytes up to the next marker and returns the
// number of bytes discarded. The source is left at the 0xFF of the marker.
func (d *decompressor) skipToMarker() int {
	n := 0

	for {
		if d.src.peek() == 0xFF {
			switch d.src.peekAt(1) {
			case 0x00:
				d.src.advance(2)
				n += 2

				continue
			case 0xFF:
				d.src.advance(1)

				continue
			}

			d.markerHit = true

			return n
		}

		d.src.advance(1)
		n++
	}
}
