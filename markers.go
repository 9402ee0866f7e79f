package avimjpeg

import "fmt"

// JPEG marker codes (the byte following 0xFF).
const (
	markerTEM  = 0x01
	markerSOF0 = 0xC0 // SOFn = SOF0+n, n = 0-15 excluding 4, 8 and 12
	markerSOF1 = 0xC1
	markerSOF2 = 0xC2
	markerDHT  = 0xC4
	markerJPG  = 0xC8
	markerDAC  = 0xCC
	markerRST0 = 0xD0 // RSTn = RST0+n, n = 0-7
	markerRST7 = 0xD7
	markerSOI  = 0xD8
	markerEOI  = 0xD9
	markerSOS  = 0xDA
	markerDQT  = 0xDB
	markerDNL  = 0xDC
	markerDRI  = 0xDD
	markerAPP0 = 0xE0 // APPn = APP0+n, n = 0-15
	markerAPP1 = 0xE1
	markerAPPE = 0xEE
	markerJPG0 = 0xF0
	markerCOM  = 0xFE
)

// Marker is a JPEG marker code.
type Marker uint8

var markerNames [256]string

func init() {
	markerNames[0] = "NUL"
	markerNames[markerTEM] = "TEM"
	markerNames[markerDHT] = "DHT"
	markerNames[markerJPG] = "JPG"
	markerNames[markerDAC] = "DAC"
	markerNames[markerSOI] = "SOI"
	markerNames[markerEOI] = "EOI"
	markerNames[markerSOS] = "SOS"
	markerNames[markerDQT] = "DQT"
	markerNames[markerDNL] = "DNL"
	markerNames[markerDRI] = "DRI"
	markerNames[0xDE] = "DHP"
	markerNames[0xDF] = "EXP"
	markerNames[markerCOM] = "COM"
	markerNames[0xFF] = "FILL"

	for i := 0x02; i <= 0xBF; i++ {
		markerNames[i] = fmt.Sprintf("RES%.2X", i)
	}

	for i := markerSOF0; i <= markerSOF0+0xF; i++ {
		if i == markerDHT || i == markerJPG || i == markerDAC {
			continue
		}
		markerNames[i] = fmt.Sprintf("SOF%d", i-markerSOF0)
	}

	for i := markerRST0; i <= markerRST7; i++ {
		markerNames[i] = fmt.Sprintf("RST%d", i-markerRST0)
	}

	for i := markerAPP0; i <= markerAPP0+0xF; i++ {
		markerNames[i] = fmt.Sprintf("APP%d", i-markerAPP0)
	}

	for i := markerJPG0; i <= markerJPG0+0xD; i++ {
		markerNames[i] = fmt.Sprintf("JPG%d", i-markerJPG0)
	}
}

// String returns the name of the marker, e.g. "SOF0" or "APP0".
func (m Marker) String() string {
	return markerNames[m]
}

// isStandalone reports whether the marker has no length field.
func (m Marker) isStandalone() bool {
	return m == markerSOI || m == markerEOI || m == markerTEM || (m >= markerRST0 && m <= markerRST7)
}

// AVI1 marker layout.
const (
	// MarkerPayloadSize is the payload size of both AVI1 application markers.
	MarkerPayloadSize = 60
	// AVI1Tag starts the identification marker.
	AVI1Tag = "AVI1\x00"
)

// avi1Marker returns the APP0 identification payload: the AVI1 tag padded with spaces.
func avi1Marker() []byte {
	b := make([]byte, MarkerPayloadSize)
	n := copy(b, AVI1Tag)

	for i := n; i < len(b); i++ {
		b[i] = ' '
	}

	return b
}

// reservedComment returns the zero-filled COM payload that follows the identification marker.
func reservedComment() []byte {
	return make([]byte, MarkerPayloadSize)
}
