package avimjpeg

import "fmt"

// Huffman table classes as stored in the DHT Tc field.
const (
	classDC = 0
	classAC = 1
)

// huffmanTable is one Huffman table slot.
type huffmanTable struct {
	// present is set once the slot holds a table, parsed or provisioned.
	present bool
	// sent is set once the table has been written to an output stream,
	// or when it must not be written at all.
	sent bool
	// count[i] is the number of codes of length i+1 bits.
	count [16]byte
	// values holds the decoded values in code order.
	values []byte
}

// size returns the number of bytes the table occupies in a DHT segment.
func (t *huffmanTable) size() int {
	return 1 + 16 + len(t.values)
}

// tableSet holds the DC and AC Huffman table slots of one codec context.
// Slot 0 is used for luma and slot 1 for chroma by the standard tables.
type tableSet struct {
	dc, ac [4]huffmanTable
}

// slot returns the table slot for the given class and id.
func (s *tableSet) slot(class, id int) *huffmanTable {
	if class == classDC {
		return &s.dc[id&3]
	}

	return &s.ac[id&3]
}

// Indices into standardTables.
const (
	stdLuminanceDC = iota
	stdLuminanceAC
	stdChrominanceDC
	stdChrominanceAC
)

// standardTables are the typical Huffman tables of JPEG Annex K.3.
// Streams that omit their tables were encoded with these.
var standardTables = [4]huffmanTable{
	stdLuminanceDC: {
		count:  [16]byte{0, 1, 5, 1, 1, 1, 1, 1, 1, 0, 0, 0, 0, 0, 0, 0},
		values: []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11},
	},
	stdLuminanceAC: {
		count: [16]byte{0, 2, 1, 3, 3, 2, 4, 3, 5, 5, 4, 4, 0, 0, 1, 125},
		values: []byte{
			0x01, 0x02, 0x03, 0x00, 0x04, 0x11, 0x05, 0x12,
			0x21, 0x31, 0x41, 0x06, 0x13, 0x51, 0x61, 0x07,
			0x22, 0x71, 0x14, 0x32, 0x81, 0x91, 0xa1, 0x08,
			0x23, 0x42, 0xb1, 0xc1, 0x15, 0x52, 0xd1, 0xf0,
			0x24, 0x33, 0x62, 0x72, 0x82, 0x09, 0x0a, 0x16,
			0x17, 0x18, 0x19, 0x1a, 0x25, 0x26, 0x27, 0x28,
			0x29, 0x2a, 0x34, 0x35, 0x36, 0x37, 0x38, 0x39,
			0x3a, 0x43, 0x44, 0x45, 0x46, 0x47, 0x48, 0x49,
			0x4a, 0x53, 0x54, 0x55, 0x56, 0x57, 0x58, 0x59,
			0x5a, 0x63, 0x64, 0x65, 0x66, 0x67, 0x68, 0x69,
			0x6a, 0x73, 0x74, 0x75, 0x76, 0x77, 0x78, 0x79,
			0x7a, 0x83, 0x84, 0x85, 0x86, 0x87, 0x88, 0x89,
			0x8a, 0x92, 0x93, 0x94, 0x95, 0x96, 0x97, 0x98,
			0x99, 0x9a, 0xa2, 0xa3, 0xa4, 0xa5, 0xa6, 0xa7,
			0xa8, 0xa9, 0xaa, 0xb2, 0xb3, 0xb4, 0xb5, 0xb6,
			0xb7, 0xb8, 0xb9, 0xba, 0xc2, 0xc3, 0xc4, 0xc5,
			0xc6, 0xc7, 0xc8, 0xc9, 0xca, 0xd2, 0xd3, 0xd4,
			0xd5, 0xd6, 0xd7, 0xd8, 0xd9, 0xda, 0xe1, 0xe2,
			0xe3, 0xe4, 0xe5, 0xe6, 0xe7, 0xe8, 0xe9, 0xea,
			0xf1, 0xf2, 0xf3, 0xf4, 0xf5, 0xf6, 0xf7, 0xf8,
			0xf9, 0xfa,
		},
	},
	stdChrominanceDC: {
		count:  [16]byte{0, 3, 1, 1, 1, 1, 1, 1, 1, 1, 1, 0, 0, 0, 0, 0},
		values: []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11},
	},
	stdChrominanceAC: {
		count: [16]byte{0, 2, 1, 2, 4, 4, 3, 4, 7, 5, 4, 4, 0, 1, 2, 119},
		values: []byte{
			0x00, 0x01, 0x02, 0x03, 0x11, 0x04, 0x05, 0x21,
			0x31, 0x06, 0x12, 0x41, 0x51, 0x07, 0x61, 0x71,
			0x13, 0x22, 0x32, 0x81, 0x08, 0x14, 0x42, 0x91,
			0xa1, 0xb1, 0xc1, 0x09, 0x23, 0x33, 0x52, 0xf0,
			0x15, 0x62, 0x72, 0xd1, 0x0a, 0x16, 0x24, 0x34,
			0xe1, 0x25, 0xf1, 0x17, 0x18, 0x19, 0x1a, 0x26,
			0x27, 0x28, 0x29, 0x2a, 0x35, 0x36, 0x37, 0x38,
			0x39, 0x3a, 0x43, 0x44, 0x45, 0x46, 0x47, 0x48,
			0x49, 0x4a, 0x53, 0x54, 0x55, 0x56, 0x57, 0x58,
			0x59, 0x5a, 0x63, 0x64, 0x65, 0x66, 0x67, 0x68,
			0x69, 0x6a, 0x73, 0x74, 0x75, 0x76, 0x77, 0x78,
			0x79, 0x7a, 0x82, 0x83, 0x84, 0x85, 0x86, 0x87,
			0x88, 0x89, 0x8a, 0x92, 0x93, 0x94, 0x95, 0x96,
			0x97, 0x98, 0x99, 0x9a, 0xa2, 0xa3, 0xa4, 0xa5,
			0xa6, 0xa7, 0xa8, 0xa9, 0xaa, 0xb2, 0xb3, 0xb4,
			0xb5, 0xb6, 0xb7, 0xb8, 0xb9, 0xba, 0xc2, 0xc3,
			0xc4, 0xc5, 0xc6, 0xc7, 0xc8, 0xc9, 0xca, 0xd2,
			0xd3, 0xd4, 0xd5, 0xd6, 0xd7, 0xd8, 0xd9, 0xda,
			0xe2, 0xe3, 0xe4, 0xe5, 0xe6, 0xe7, 0xe8, 0xe9,
			0xea, 0xf2, 0xf3, 0xf4, 0xf5, 0xf6, 0xf7, 0xf8,
			0xf9, 0xfa,
		},
	},
}

// provisionStandardTables fills the four standard slots when the stream carried no
// luma DC table, which means it was encoded with the standard tables left out.
// Provisioned tables are marked as not yet sent. Parsed tables are never touched.
// It reports whether the tables were provisioned.
func provisionStandardTables(s *tableSet) bool {
	if s.dc[0].present {
		return false
	}

	s.dc[0] = standardTables[stdLuminanceDC]
	s.ac[0] = standardTables[stdLuminanceAC]
	s.dc[1] = standardTables[stdChrominanceDC]
	s.ac[1] = standardTables[stdChrominanceAC]

	for _, t := range []*huffmanTable{&s.dc[0], &s.ac[0], &s.dc[1], &s.ac[1]} {
		t.present = true
		t.sent = false
	}

	return true
}

// setStandardTables installs the standard tables for encoding. When sent is true the
// tables are treated as already written and are left out of the stream.
func setStandardTables(s *tableSet, sent bool) {
	*s = tableSet{}
	provisionStandardTables(s)

	for _, t := range []*huffmanTable{&s.dc[0], &s.ac[0], &s.dc[1], &s.ac[1]} {
		t.sent = sent
	}
}

// parseHuffmanTable reads one table definition from a DHT payload.
// It returns the table class, the slot id and the number of bytes used.
func parseHuffmanTable(p []byte) (class, id int, t huffmanTable, n int, err error) {
	if len(p) < 17 {
		return 0, 0, t, 0, fmt.Errorf("DHT table header truncated: %w", ErrSyntax)
	}

	tcth := p[0]
	if tcth&0xEC != 0 {
		return 0, 0, t, 0, fmt.Errorf("DHT class/id 0x%02X: %w", tcth, ErrSyntax)
	}

	class, id = int(tcth>>4), int(tcth&3)
	copy(t.count[:], p[1:17])

	total := 0
	for _, c := range t.count {
		total += int(c)
	}

	if total > 256 || 17+total > len(p) {
		return 0, 0, t, 0, fmt.Errorf("DHT table with %d codes: %w", total, ErrSyntax)
	}

	t.values = p[17 : 17+total]
	t.present = true

	return class, id, t, 17 + total, nil
}

// vlcCode represents a single entry in the pre-calculated Huffman lookup table.
// It stores the number of bits for the code and the decoded value.
type vlcCode struct {
	bits, code uint8
}

// buildLookup builds the 16-bit decoding table for t using canonical Huffman codes.
func buildLookup(vlc *[65536]vlcCode, t *huffmanTable) error {
	*vlc = [65536]vlcCode{}

	var huffCode uint32
	k := 0

	for codeLen := 1; codeLen <= 16; codeLen++ {
		for n := 0; n < int(t.count[codeLen-1]); n++ {
			if huffCode >= 1<<codeLen {
				return fmt.Errorf("Huffman code overflow at length %d: %w", codeLen, ErrSyntax)
			}

			shift := 16 - codeLen
			base := huffCode << shift
			entry := vlcCode{bits: uint8(codeLen), code: t.values[k]}

			for j := uint32(0); j < 1<<shift; j++ {
				vlc[base+j] = entry
			}

			huffCode++
			k++
		}

		huffCode <<= 1
	}

	return nil
}

// huffmanLUT is a compiled encoding table. Each value maps to a uint32 of which the
// 8 most significant bits hold the codeword size and the 24 least significant bits
// hold the codeword.
type huffmanLUT [256]uint32

func (h *huffmanLUT) init(t *huffmanTable) {
	code, k := uint32(0), 0
	for i := 0; i < len(t.count); i++ {
		nBits := uint32(i+1) << 24
		for j := uint8(0); j < t.count[i]; j++ {
			h[t.values[k]] = nBits | code
			code++
			k++
		}
		code <<= 1
	}
}

// standardLUT holds the encoding tables compiled from standardTables.
var standardLUT [4]huffmanLUT

func init() {
	for i := range standardTables {
		standardLUT[i].init(&standardTables[i])
	}
}
