package extractor

import (
	"time"
)

// MetadataExtractor is the interface for reading image metadata.
type MetadataExtractor interface {
	Extract(filePath string) (*Metadata, error)
	SupportsFile(filePath string) bool
}

// CacheStats contains statistics about cache performance.
type CacheStats struct {
	Hits         int64   `json:"hits"`
	Misses       int64   `json:"misses"`
	HitRate      float64 `json:"hitRate"`
	TotalQueries int64   `json:"totalQueries"`
}

// DateSource represents the tag a capture date was read from.
type DateSource int

const (
	DateSourceUnknown DateSource = iota
	DateSourceEXIFDateTime
	DateSourceEXIFDateTimeOriginal
	DateSourceEXIFDateTimeDigitized
)

// Metadata describes the metadata block carried by an image.
type Metadata struct {
	Path        string         `json:"path,omitempty"`
	Format      string         `json:"format"`
	HasExif     bool           `json:"hasExif"`
	ExifSize    int            `json:"exifSize"`
	Make        string         `json:"make,omitempty"`
	Model       string         `json:"model,omitempty"`
	Software    string         `json:"software,omitempty"`
	Orientation int            `json:"orientation,omitempty"`
	DateTime    *time.Time     `json:"dateTime,omitempty"`
	DateSource  DateSource     `json:"-"`
	Fields      map[string]any `json:"fields,omitempty"`
}

// String returns a human-readable description of the date source.
func (ds DateSource) String() string {
	switch ds {
	case DateSourceEXIFDateTime:
		return "EXIF DateTime"
	case DateSourceEXIFDateTimeOriginal:
		return "EXIF DateTimeOriginal"
	case DateSourceEXIFDateTimeDigitized:
		return "EXIF DateTimeDigitized"
	default:
		return "Unknown"
	}
}
