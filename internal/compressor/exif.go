package compressor

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	markerPrefix = 0xFF
	markerSOI    = 0xD8
	markerSOS    = 0xDA
	markerEOI    = 0xD9
	markerAPP0   = 0xE0
	markerAPP1   = 0xE1

	maxSegmentPayload = 0xFFFF - 2
)

var exifHeader = []byte("Exif\x00\x00")

var errNotJPEG = errors.New("missing JPEG SOI marker")

// jpegSegment locates one marker segment inside a JPEG stream.
type jpegSegment struct {
	marker byte
	start  int // offset of the first 0xFF prefix byte
	body   int // offset of the payload
	end    int // offset just past the payload
}

func (s jpegSegment) payload(data []byte) []byte {
	return data[s.body:s.end]
}

// scanSegments walks the marker segments that precede the scan data.
func scanSegments(data []byte) ([]jpegSegment, error) {
	if len(data) < 2 || data[0] != markerPrefix || data[1] != markerSOI {
		return nil, errNotJPEG
	}

	var segments []jpegSegment
	pos := 2
	for pos < len(data) {
		// Fill bytes between segments are skipped, as image/jpeg does.
		if data[pos] != markerPrefix {
			pos++
			continue
		}
		start := pos
		for pos < len(data) && data[pos] == markerPrefix {
			pos++
		}
		if pos >= len(data) {
			return nil, fmt.Errorf("truncated marker at offset %d", start)
		}
		marker := data[pos]
		pos++
		if marker == markerSOS || marker == markerEOI {
			break
		}
		// Standalone markers carry no length.
		if marker == 0x01 || (marker >= 0xD0 && marker <= 0xD7) {
			continue
		}
		if pos+2 > len(data) {
			return nil, fmt.Errorf("truncated segment length at offset %d", pos)
		}
		length := int(binary.BigEndian.Uint16(data[pos : pos+2]))
		if length < 2 || pos+length > len(data) {
			return nil, fmt.Errorf("segment 0x%02X at offset %d overruns input", marker, start)
		}
		segments = append(segments, jpegSegment{marker: marker, start: start, body: pos + 2, end: pos + length})
		pos += length
	}
	return segments, nil
}

func isExifSegment(data []byte, s jpegSegment) bool {
	return s.marker == markerAPP1 && bytes.HasPrefix(s.payload(data), exifHeader)
}

// ExtractExif returns a copy of the first APP1 Exif payload, including the
// "Exif\0\0" header, or nil when the stream carries none.
func ExtractExif(data []byte) ([]byte, error) {
	segments, err := scanSegments(data)
	if err != nil {
		return nil, err
	}
	for _, s := range segments {
		if isExifSegment(data, s) {
			return bytes.Clone(s.payload(data)), nil
		}
	}
	return nil, nil
}

// InsertExif returns data with its Exif segments replaced by block. The new
// segment follows SOI and any leading APP0 (JFIF) segment. Scan data is copied
// untouched. A nil block is a no-op.
func InsertExif(data []byte, block []byte) ([]byte, error) {
	if block == nil {
		return data, nil
	}
	if len(block) > maxSegmentPayload {
		return nil, fmt.Errorf("metadata block of %d bytes exceeds a JPEG segment", len(block))
	}
	segments, err := scanSegments(data)
	if err != nil {
		return nil, err
	}

	insertAt := 2
	for _, s := range segments {
		if s.start != insertAt || s.marker != markerAPP0 {
			break
		}
		insertAt = s.end
	}

	out := make([]byte, 0, len(data)+len(block)+4)
	out = append(out, data[:insertAt]...)
	out = append(out, markerPrefix, markerAPP1)
	out = binary.BigEndian.AppendUint16(out, uint16(len(block)+2))
	out = append(out, block...)

	pos := insertAt
	for _, s := range segments {
		if s.start < insertAt || !isExifSegment(data, s) {
			continue
		}
		out = append(out, data[pos:s.start]...)
		pos = s.end
	}
	out = append(out, data[pos:]...)
	return out, nil
}

// PreserveMetadata reinserts the source Exif block into a freshly encoded JPEG
// when the settings ask for it. Other formats and blockless sources pass
// through unchanged.
func PreserveMetadata(encoded []byte, decoded *Decoded, format Format, settings Settings) ([]byte, error) {
	if format != FormatJPEG || !settings.PreserveExif || decoded.Exif == nil {
		return encoded, nil
	}
	out, err := InsertExif(encoded, decoded.Exif)
	if err != nil {
		return nil, fmt.Errorf("%w: reinsert metadata: %v", ErrEncode, err)
	}
	return out, nil
}
