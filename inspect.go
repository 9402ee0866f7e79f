package avimjpeg

import (
	"bytes"
	"fmt"
)

// StreamInfo describes one JPEG stream inside a chunk payload.
type StreamInfo struct {
	// Offset and Length locate the stream in the payload, from SOI through EOI.
	Offset, Length int
	Width, Height  int
	Components     int
	// ComponentIDs and Sampling (H<<4 | V) are listed in frame header order.
	ComponentIDs []byte
	Sampling     []byte
	// Process is the SOF marker of the frame, e.g. SOF0 for baseline.
	Process Marker
	// HuffmanTables reports whether the stream defines its own Huffman tables.
	HuffmanTables bool
	// AVI1 reports whether the stream carries the AVI1 APP0 marker.
	AVI1 bool
	// RestartInterval is the DRI value, 0 when restarts are not used.
	RestartInterval int
	// Markers lists the segments before the entropy-coded data, in stream order.
	Markers []Marker
	// Truncated is set when the stream ends without an EOI marker.
	Truncated bool
}

// Inspect walks the marker segments of every JPEG stream concatenated in payload.
// Bytes after the last stream that do not start another one are ignored.
// It never decodes entropy-coded data.
func Inspect(payload []byte) ([]StreamInfo, error) {
	var infos []StreamInfo

	for off := 0; off+1 < len(payload) && payload[off] == 0xFF && payload[off+1] == markerSOI; {
		info, err := inspectStream(payload[off:])
		if err != nil {
			return infos, fmt.Errorf("stream %d at offset %d: %w", len(infos), off, err)
		}

		info.Offset = off
		infos = append(infos, info)
		off += info.Length
	}

	if len(infos) == 0 {
		return nil, ErrNoJPEG
	}

	return infos, nil
}

// SplitStreams returns the JPEG streams of payload as sub-slices, without copying.
func SplitStreams(payload []byte) ([][]byte, error) {
	infos, err := Inspect(payload)
	if err != nil {
		return nil, err
	}

	streams := make([][]byte, len(infos))
	for i, info := range infos {
		streams[i] = payload[info.Offset : info.Offset+info.Length : info.Offset+info.Length]
	}

	return streams, nil
}

// inspectStream walks one stream starting at its SOI.
func inspectStream(data []byte) (StreamInfo, error) {
	var info StreamInfo

	pos := 2
	inScan := false

	for {
		if inScan {
			pos = nextMarkerAfterScan(data, pos)
		}

		// Skip extraneous bytes up to the next 0xFF.
		for pos < len(data) && data[pos] != 0xFF {
			pos++
		}

		// Skip fill bytes.
		for pos+1 < len(data) && data[pos+1] == 0xFF {
			pos++
		}

		if pos+1 >= len(data) {
			info.Truncated = true
			info.Length = len(data)

			return info, nil
		}

		m := Marker(data[pos+1])

		switch {
		case m == markerEOI:
			info.Length = pos + 2

			return info, nil
		case m == markerSOI:
			// Next stream starts before this one ended.
			info.Truncated = true
			info.Length = pos

			return info, nil
		case m.isStandalone():
			pos += 2

			continue
		}

		if pos+4 > len(data) {
			info.Truncated = true
			info.Length = len(data)

			return info, nil
		}

		n := int(data[pos+2])<<8 | int(data[pos+3])
		if n < 2 {
			return info, fmt.Errorf("%s segment length %d: %w", m, n, ErrSyntax)
		}

		info.Markers = append(info.Markers, m)

		end := pos + 2 + n
		if end > len(data) {
			info.Truncated = true
			info.Length = len(data)

			return info, nil
		}

		if err := info.addSegment(m, data[pos+4:end]); err != nil {
			return info, err
		}

		pos = end
		inScan = m == markerSOS
	}
}

// nextMarkerAfterScan returns the position of the first marker after entropy-coded data
// starting at pos. Stuffed bytes and restart markers belong to the data.
func nextMarkerAfterScan(data []byte, pos int) int {
	for pos+1 < len(data) {
		if data[pos] != 0xFF {
			pos++

			continue
		}

		next := data[pos+1]
		if next == 0x00 || (next >= markerRST0 && next <= markerRST7) {
			pos += 2

			continue
		}

		if next == 0xFF {
			pos++

			continue
		}

		return pos
	}

	return len(data)
}

// addSegment records what a marker segment tells about the stream.
func (info *StreamInfo) addSegment(m Marker, p []byte) error {
	switch {
	case m >= markerSOF0 && m <= markerSOF0+0xF && m != markerDHT && m != markerJPG && m != markerDAC:
		if len(p) < 6 {
			return fmt.Errorf("%s segment too short: %w", m, ErrSyntax)
		}

		info.Process = m
		info.Height = int(p[1])<<8 | int(p[2])
		info.Width = int(p[3])<<8 | int(p[4])
		info.Components = int(p[5])

		if len(p) < 6+3*info.Components {
			return fmt.Errorf("%s segment too short for %d components: %w", m, info.Components, ErrSyntax)
		}

		info.ComponentIDs = make([]byte, info.Components)
		info.Sampling = make([]byte, info.Components)
		for i := 0; i < info.Components; i++ {
			info.ComponentIDs[i] = p[6+3*i]
			info.Sampling[i] = p[7+3*i]
		}
	case m == markerDHT:
		info.HuffmanTables = true
	case m == markerDRI:
		if len(p) >= 2 {
			info.RestartInterval = int(p[0])<<8 | int(p[1])
		}
	case m == markerAPP0:
		if bytes.HasPrefix(p, []byte(AVI1Tag)) {
			info.AVI1 = true
		}
	}

	return nil
}
