package extractor

import (
	"bytes"
	"fmt"
	"os"
	"sync"
	"time"

	"image-compress-go/internal/compressor"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/sirupsen/logrus"
)

// EXIFExtractor reads the EXIF block of an image with goexif. Results are
// cached per path, size and modification time.
type EXIFExtractor struct {
	logger *logrus.Logger
	cache  sync.Map
	stats  CacheStats
	mutex  sync.RWMutex
}

// NewEXIFExtractor returns a new EXIFExtractor.
func NewEXIFExtractor(logger *logrus.Logger) *EXIFExtractor {
	return &EXIFExtractor{logger: logger}
}

// Extract returns the metadata of the image at filePath.
func (e *EXIFExtractor) Extract(filePath string) (*Metadata, error) {
	if !e.SupportsFile(filePath) {
		return nil, fmt.Errorf("%w: %s", compressor.ErrUnsupportedFormat, filePath)
	}

	fileInfo, err := os.Stat(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	key := e.getCacheKey(filePath, fileInfo)
	if value, ok := e.cache.Load(key); ok {
		e.incrementCacheHits()
		md := value.(Metadata)
		return &md, nil
	}
	e.incrementCacheMisses()

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	md, err := e.ExtractBytes(compressor.FormatTagFromPath(filePath), data)
	if err != nil {
		return nil, err
	}
	md.Path = filePath
	e.cache.Store(key, *md)
	return md, nil
}

// ExtractBytes returns the metadata of an encoded image held in memory.
// Only JPEG inputs carry a metadata block the pipeline preserves; other
// formats report HasExif false.
func (e *EXIFExtractor) ExtractBytes(formatTag string, data []byte) (*Metadata, error) {
	format, err := compressor.ClassifyFormat(formatTag)
	if err != nil {
		return nil, err
	}

	md := &Metadata{Format: format.String()}
	if format != compressor.FormatJPEG {
		return md, nil
	}

	block, err := compressor.ExtractExif(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", compressor.ErrDecode, err)
	}
	if block == nil {
		return md, nil
	}

	md.HasExif = true
	md.ExifSize = len(block)
	if err := e.parseBlock(block, md); err != nil {
		// The raw block is still carried through compression even when
		// its tags cannot be read.
		e.logger.Debugf("Failed to parse EXIF block: %v", err)
	}
	return md, nil
}

// SupportsFile reports whether the file is supported by this extractor.
func (e *EXIFExtractor) SupportsFile(filePath string) bool {
	return compressor.FormatTagFromPath(filePath) != ""
}

// GetCacheStats returns cache statistics for this extractor.
func (e *EXIFExtractor) GetCacheStats() CacheStats {
	e.mutex.RLock()
	defer e.mutex.RUnlock()

	stats := e.stats
	if stats.TotalQueries > 0 {
		stats.HitRate = float64(stats.Hits) / float64(stats.TotalQueries)
	}
	return stats
}

// parseBlock fills md from an APP1 Exif payload.
func (e *EXIFExtractor) parseBlock(block []byte, md *Metadata) error {
	x, err := exif.Decode(bytes.NewReader(block))
	if err != nil {
		return fmt.Errorf("failed to decode EXIF: %w", err)
	}

	md.Make = stringTag(x, exif.Make)
	md.Model = stringTag(x, exif.Model)
	md.Software = stringTag(x, exif.Software)

	if tag, err := x.Get(exif.Orientation); err == nil {
		if v, err := tag.Int(0); err == nil {
			md.Orientation = v
		}
	}

	sources := []struct {
		name   exif.FieldName
		source DateSource
	}{
		{exif.DateTimeOriginal, DateSourceEXIFDateTimeOriginal},
		{exif.DateTime, DateSourceEXIFDateTime},
		{exif.DateTimeDigitized, DateSourceEXIFDateTimeDigitized},
	}
	for _, s := range sources {
		if date := e.parseEXIFDateTime(stringTag(x, s.name)); date != nil {
			md.DateTime = date
			md.DateSource = s.source
			break
		}
	}
	return nil
}

func stringTag(x *exif.Exif, name exif.FieldName) string {
	tag, err := x.Get(name)
	if err != nil {
		return ""
	}
	s, err := tag.StringVal()
	if err != nil {
		return ""
	}
	return s
}

// parseEXIFDateTime parses an EXIF date time string and returns a time.Time pointer.
// Returns nil if parsing fails.
func (e *EXIFExtractor) parseEXIFDateTime(dateStr string) *time.Time {
	if dateStr == "" {
		return nil
	}

	formats := []string{
		"2006:01:02 15:04:05",
		"2006-01-02 15:04:05",
		"2006:01:02",
		time.RFC3339,
	}

	for _, format := range formats {
		if date, err := time.Parse(format, dateStr); err == nil {
			return &date
		}
	}

	e.logger.Debugf("Failed to parse date string: %s", dateStr)
	return nil
}

func (e *EXIFExtractor) getCacheKey(filePath string, fileInfo os.FileInfo) string {
	return fmt.Sprintf("%s:%d:%d", filePath, fileInfo.Size(), fileInfo.ModTime().UnixNano())
}

func (e *EXIFExtractor) incrementCacheHits() {
	e.mutex.Lock()
	e.stats.Hits++
	e.stats.TotalQueries++
	e.mutex.Unlock()
}

func (e *EXIFExtractor) incrementCacheMisses() {
	e.mutex.Lock()
	e.stats.Misses++
	e.stats.TotalQueries++
	e.mutex.Unlock()
}
