package extractor

import (
	"fmt"

	"image-compress-go/internal/compressor"

	"github.com/barasher/go-exiftool"
	"github.com/sirupsen/logrus"
)

// ExiftoolExtractor dumps every metadata field of a file through the
// external exiftool binary. It needs exiftool on PATH.
type ExiftoolExtractor struct {
	logger *logrus.Logger
}

// NewExiftoolExtractor returns a new ExiftoolExtractor.
func NewExiftoolExtractor(logger *logrus.Logger) *ExiftoolExtractor {
	return &ExiftoolExtractor{logger: logger}
}

// Extract runs exiftool on filePath and returns its fields.
func (e *ExiftoolExtractor) Extract(filePath string) (*Metadata, error) {
	if !e.SupportsFile(filePath) {
		return nil, fmt.Errorf("%w: %s", compressor.ErrUnsupportedFormat, filePath)
	}

	et, err := exiftool.NewExiftool()
	if err != nil {
		return nil, fmt.Errorf("exiftool unavailable: %w", err)
	}
	defer et.Close()

	files := et.ExtractMetadata(filePath)
	if len(files) == 0 {
		return nil, fmt.Errorf("exiftool returned no data for %s", filePath)
	}
	if files[0].Err != nil {
		return nil, fmt.Errorf("exiftool failed: %w", files[0].Err)
	}

	format, _ := compressor.ClassifyFormat(compressor.FormatTagFromPath(filePath))
	fields := files[0].Fields
	md := &Metadata{
		Path:     filePath,
		Format:   format.String(),
		Make:     fieldString(fields, "Make"),
		Model:    fieldString(fields, "Model"),
		Software: fieldString(fields, "Software"),
		Fields:   fields,
	}
	md.HasExif = md.Make != "" || md.Model != "" || md.Software != ""
	e.logger.Debugf("exiftool returned %d fields for %s", len(fields), filePath)
	return md, nil
}

// SupportsFile reports whether the file is supported by this extractor.
func (e *ExiftoolExtractor) SupportsFile(filePath string) bool {
	return compressor.FormatTagFromPath(filePath) != ""
}

func fieldString(fields map[string]any, key string) string {
	if s, ok := fields[key].(string); ok {
		return s
	}
	return ""
}
