package statistics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"image-compress-go/internal/compressor"
)

// Statistics accumulates the outcome of one compression batch. Record may be
// called from several goroutines.
type Statistics struct {
	TotalFilesFound     int64
	TotalFilesProcessed int64
	FilesCompressed     int64
	FilesKeptOriginal   int64
	FilesWithErrors     int64
	FilesCancelled      int64

	BytesIn    int64
	BytesOut   int64
	BytesSaved int64

	StartTime      time.Time
	EndTime        time.Time
	Duration       time.Duration
	FilesPerSecond float64
	AverageRatio   float64

	Errors []StatError

	mutex sync.RWMutex

	CauseStats    map[compressor.ErrorKind]int64
	FileTypeStats map[string]int64
}

// StatError represents an item that failed during processing.
type StatError struct {
	FilePath  string               `json:"filePath"`
	Cause     compressor.ErrorKind `json:"cause"`
	Error     string               `json:"error"`
	Timestamp time.Time            `json:"timestamp"`
}

// Snapshot is a point-in-time copy of the counters, suitable for JSON.
type Snapshot struct {
	TotalFilesFound     int64                          `json:"totalFilesFound"`
	TotalFilesProcessed int64                          `json:"totalFilesProcessed"`
	FilesCompressed     int64                          `json:"filesCompressed"`
	FilesKeptOriginal   int64                          `json:"filesKeptOriginal"`
	FilesWithErrors     int64                          `json:"filesWithErrors"`
	FilesCancelled      int64                          `json:"filesCancelled"`
	BytesIn             int64                          `json:"bytesIn"`
	BytesOut            int64                          `json:"bytesOut"`
	BytesSaved          int64                          `json:"bytesSaved"`
	AverageRatio        float64                        `json:"averageRatio"`
	DurationMillis      int64                          `json:"durationMillis"`
	CauseStats          map[compressor.ErrorKind]int64 `json:"causeStats,omitempty"`
	FileTypeStats       map[string]int64               `json:"fileTypeStats,omitempty"`
}

// NewStatistics returns a new Statistics instance.
func NewStatistics() *Statistics {
	return &Statistics{
		StartTime:     time.Now(),
		CauseStats:    make(map[compressor.ErrorKind]int64),
		FileTypeStats: make(map[string]int64),
		Errors:        make([]StatError, 0),
	}
}

// Start marks the beginning of a run.
func (s *Statistics) Start() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.StartTime = time.Now()
}

// AddFilesFound increases the count of discovered files.
func (s *Statistics) AddFilesFound(n int) {
	atomic.AddInt64(&s.TotalFilesFound, int64(n))
}

// Record folds one finished item into the totals. fileType is the item's
// declared format tag.
func (s *Statistics) Record(res compressor.Result, fileType string) {
	atomic.AddInt64(&s.TotalFilesProcessed, 1)

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if fileType != "" {
		s.FileTypeStats[strings.ToLower(fileType)]++
	}

	if !res.Succeeded() {
		if res.Cause == compressor.KindCancelled {
			s.FilesCancelled++
		} else {
			s.FilesWithErrors++
		}
		s.CauseStats[res.Cause]++
		s.Errors = append(s.Errors, StatError{
			FilePath:  res.Name,
			Cause:     res.Cause,
			Error:     res.Message,
			Timestamp: time.Now(),
		})
		return
	}

	s.FilesCompressed++
	if res.KeptOriginal {
		s.FilesKeptOriginal++
	}
	s.BytesIn += res.OriginalSize
	s.BytesOut += res.CompressedSize
	s.BytesSaved += res.OriginalSize - res.CompressedSize
}

// Finalize calculates duration, throughput and the overall saved ratio.
func (s *Statistics) Finalize() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.EndTime = time.Now()
	s.Duration = s.EndTime.Sub(s.StartTime)

	totalProcessed := atomic.LoadInt64(&s.TotalFilesProcessed)
	if s.Duration.Seconds() > 0 {
		s.FilesPerSecond = float64(totalProcessed) / s.Duration.Seconds()
	}
	if s.BytesIn > 0 {
		s.AverageRatio = float64(s.BytesSaved) / float64(s.BytesIn) * 100
	}
}

// Snapshot returns a copy of the current counters.
func (s *Statistics) Snapshot() Snapshot {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	snap := Snapshot{
		TotalFilesFound:     atomic.LoadInt64(&s.TotalFilesFound),
		TotalFilesProcessed: atomic.LoadInt64(&s.TotalFilesProcessed),
		FilesCompressed:     s.FilesCompressed,
		FilesKeptOriginal:   s.FilesKeptOriginal,
		FilesWithErrors:     s.FilesWithErrors,
		FilesCancelled:      s.FilesCancelled,
		BytesIn:             s.BytesIn,
		BytesOut:            s.BytesOut,
		BytesSaved:          s.BytesSaved,
		AverageRatio:        s.AverageRatio,
		DurationMillis:      s.Duration.Milliseconds(),
		CauseStats:          make(map[compressor.ErrorKind]int64, len(s.CauseStats)),
		FileTypeStats:       make(map[string]int64, len(s.FileTypeStats)),
	}
	for k, v := range s.CauseStats {
		snap.CauseStats[k] = v
	}
	for k, v := range s.FileTypeStats {
		snap.FileTypeStats[k] = v
	}
	return snap
}

// GetSummary returns a formatted summary of all statistics.
func (s *Statistics) GetSummary() string {
	snap := s.Snapshot()

	s.mutex.RLock()
	duration, perSecond := s.Duration, s.FilesPerSecond
	s.mutex.RUnlock()

	return fmt.Sprintf(`Image Compression Summary:

Files:
		Total Found: %d
		Total Processed: %d
		Compressed: %d
		Kept Original: %d
		Errors: %d
		Cancelled: %d

Size:
		Input: %s
		Output: %s
		Saved: %s (%.1f%%)

Performance:
		Duration: %v
		Files/Second: %.2f`,
		snap.TotalFilesFound,
		snap.TotalFilesProcessed,
		snap.FilesCompressed,
		snap.FilesKeptOriginal,
		snap.FilesWithErrors,
		snap.FilesCancelled,
		formatBytes(snap.BytesIn),
		formatBytes(snap.BytesOut),
		formatBytes(snap.BytesSaved),
		snap.AverageRatio,
		duration,
		perSecond)
}

// GetFileTypeBreakdown returns a formatted breakdown of file types processed.
func (s *Statistics) GetFileTypeBreakdown() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if len(s.FileTypeStats) == 0 {
		return "No file type statistics available"
	}

	types := make([]string, 0, len(s.FileTypeStats))
	for fileType := range s.FileTypeStats {
		types = append(types, fileType)
	}
	sort.Strings(types)

	result := "File Type Breakdown:\n"
	for _, fileType := range types {
		result += fmt.Sprintf("  %s: %d\n", fileType, s.FileTypeStats[fileType])
	}
	return result
}

// GetErrorSummary returns a summary of errors that occurred during processing.
func (s *Statistics) GetErrorSummary() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if len(s.Errors) == 0 {
		return "No errors occurred during processing"
	}

	result := fmt.Sprintf("Errors (%d total):\n", len(s.Errors))
	for i, err := range s.Errors {
		if i >= 10 {
			result += fmt.Sprintf("  ... and %d more errors\n", len(s.Errors)-10)
			break
		}
		result += fmt.Sprintf("  [%s] %s: %s - %s\n",
			err.Timestamp.Format("15:04:05"),
			err.Cause,
			err.FilePath,
			err.Error)
	}
	return result
}

// formatBytes returns a human-readable string for a byte count.
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < 0 {
		return "-" + formatBytes(-bytes)
	}
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// GetFilesWithErrors returns the number of failed items, cancellations excluded.
func (s *Statistics) GetFilesWithErrors() int64 {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.FilesWithErrors
}

// GetDuration returns the total duration of the operation.
func (s *Statistics) GetDuration() time.Duration {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.Duration
}
