package compressor

import (
	"context"
	"fmt"
	"time"
)

const (
	// MinQuality is the lowest accepted per-format quality.
	MinQuality = 10
	// MaxQuality is the highest accepted per-format quality.
	MaxQuality = 100
)

// Settings is the settings snapshot shared read-only by every item of a batch.
type Settings struct {
	Lossless     bool `json:"lossless"`
	QualityJPEG  int  `json:"qualityJpg"`
	QualityWebP  int  `json:"qualityWebp"`
	QualityPNG   int  `json:"qualityPng"`
	PreserveExif bool `json:"preserveExif"`
	// OutputDirectory is empty when results overwrite their sources.
	OutputDirectory string `json:"outputDirectory,omitempty"`
}

// Validate reports a caller contract violation. It fails the whole batch.
func (s Settings) Validate() error {
	qualities := []struct {
		name  string
		value int
	}{
		{"quality_jpg", s.QualityJPEG},
		{"quality_webp", s.QualityWebP},
		{"quality_png", s.QualityPNG},
	}
	for _, q := range qualities {
		if q.value < MinQuality || q.value > MaxQuality {
			return fmt.Errorf("%w: %s=%d outside [%d,%d]",
				ErrInvalidSettings, q.name, q.value, MinQuality, MaxQuality)
		}
	}
	return nil
}

// Request is one encoded image handed to the pipeline.
type Request struct {
	Name string
	Data []byte
	// Format is the declared tag (jpeg, jpg, png, webp). It is trusted, not sniffed.
	Format string
	// SourcePath is empty when the item has no filesystem origin.
	SourcePath    string
	SequenceIndex int
	// SourceSize is the on-disk size of an item whose Data was not loaded.
	SourceSize int64
}

// inputSize is the size the item is judged and reported by.
func (r Request) inputSize() int64 {
	if len(r.Data) == 0 && r.SourceSize > 0 {
		return r.SourceSize
	}
	return int64(len(r.Data))
}

// Status is the terminal state of an item.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Result describes the outcome of compressing a single request.
type Result struct {
	Name           string    `json:"name"`
	SequenceIndex  int       `json:"sequenceIndex"`
	OriginalSize   int64     `json:"originalSize"`
	CompressedSize int64     `json:"compressedSize"`
	Status         Status    `json:"status"`
	Ratio          int       `json:"ratio"`
	Cause          ErrorKind `json:"cause,omitempty"`
	Message        string    `json:"message,omitempty"`
	OutputPath     string    `json:"outputPath,omitempty"`
	Checksum       string    `json:"checksum,omitempty"`
	KeptOriginal   bool      `json:"keptOriginal,omitempty"`
	StartedAt      time.Time `json:"startedAt"`
	FinishedAt     time.Time `json:"finishedAt"`
	Err            error     `json:"-"`
}

// Succeeded reports whether the item finished in the success state.
func (r Result) Succeeded() bool {
	return r.Status == StatusSuccess
}

// Compressor compresses a batch of in-memory images.
type Compressor interface {
	// Compress returns exactly one result per request, in request order.
	// The error is non-nil only when the settings are invalid.
	Compress(ctx context.Context, requests []Request, settings Settings) ([]Result, error)
}
