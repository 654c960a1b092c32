package compressor

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Format is a supported container format.
type Format int

const (
	FormatUnknown Format = iota
	FormatJPEG
	FormatPNG
	FormatWebP
)

// String returns the canonical tag of the format.
func (f Format) String() string {
	switch f {
	case FormatJPEG:
		return "jpeg"
	case FormatPNG:
		return "png"
	case FormatWebP:
		return "webp"
	default:
		return "unknown"
	}
}

// HasLosslessPath reports whether the format has a lossless encoder.
func (f Format) HasLosslessPath() bool {
	return f == FormatPNG || f == FormatWebP
}

// ClassifyFormat maps a declared format tag to a Format, case-insensitively.
// Content is never sniffed.
func ClassifyFormat(tag string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(tag)) {
	case "jpeg", "jpg":
		return FormatJPEG, nil
	case "png":
		return FormatPNG, nil
	case "webp":
		return FormatWebP, nil
	default:
		return FormatUnknown, fmt.Errorf("%w: %q", ErrUnsupportedFormat, tag)
	}
}

// FormatTagFromPath derives the declared format tag from a file extension.
// It returns an empty tag for extensions outside the supported set.
func FormatTagFromPath(path string) string {
	tag := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if _, err := ClassifyFormat(tag); err != nil {
		return ""
	}
	return tag
}
