package avimjpeg

// Field transforms. A field-ordered buffer holds the first field's rows in its top half
// and the second field's rows in its bottom half; a frame-ordered buffer holds the rows
// in display order. Rows are width*3 bytes. Both transforms are pure row permutations.

// Interlace merges two concatenated half-height fields from src into display order in dst:
// even rows come from the first half, odd rows from the second half.
func Interlace(dst, src []byte, width, height int) {
	InterlaceFields(0, dst, src, width, height)
}

// InterlaceFields merges two concatenated half-height fields from src into display order
// in dst. Display rows of parity firstFieldParity come from the first half of src.
// It is the inverse of Deinterlace with the same parity.
func InterlaceFields(firstFieldParity int, dst, src []byte, width, height int) {
	stride := width * 3
	half := height / 2
	p := firstFieldParity & 1

	for i := 0; i < height; i++ {
		var s int
		if i&1 == p {
			s = i / 2
		} else {
			s = i/2 + half
		}

		copy(dst[i*stride:(i+1)*stride], src[s*stride:(s+1)*stride])
	}
}

// Deinterlace splits the display-order frame in src into two concatenated fields in dst.
// Rows of parity firstFieldParity go to the first half of dst, the others to the second half.
func Deinterlace(firstFieldParity int, dst, src []byte, width, height int) {
	stride := width * 3
	half := height / 2
	p := firstFieldParity & 1

	for i := 0; i < height; i++ {
		var d int
		if i&1 == p {
			d = i / 2
		} else {
			d = i/2 + half
		}

		copy(dst[d*stride:(d+1)*stride], src[i*stride:(i+1)*stride])
	}
}
