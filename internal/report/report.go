package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"image-compress-go/internal/compressor"
	"image-compress-go/internal/runner"
	"image-compress-go/internal/statistics"

	"github.com/google/uuid"
	"github.com/natefinch/atomic"
)

// SupportedReportVersion is the current schema version.
const SupportedReportVersion = 1

// Report is the JSON record of one compression batch.
type Report struct {
	Version     int                 `json:"version"`
	BatchID     string              `json:"batchId"`
	GeneratedAt string              `json:"generatedAt"`
	Settings    compressor.Settings `json:"settings"`
	BuildInfo   *BuildInfo          `json:"buildInfo,omitempty"`
	Results     []compressor.Result `json:"results"`
	Summary     statistics.Snapshot `json:"summary"`
	Plans       []runner.Plan       `json:"plans,omitempty"`
}

// BuildInfo captures run parameters for diagnostics.
type BuildInfo struct {
	Workers       int   `json:"workers"`
	MaxInputBytes int64 `json:"maxInputBytes"`
	DryRun        bool  `json:"dryRun,omitempty"`
}

// New creates an empty report. An empty batchID gets a random one.
func New(batchID string, settings compressor.Settings) *Report {
	if batchID == "" {
		batchID = uuid.NewString()
	}
	return &Report{
		Version:     SupportedReportVersion,
		BatchID:     batchID,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Settings:    settings,
		Results:     make([]compressor.Result, 0),
	}
}

// Failed returns the results that did not succeed.
func (r *Report) Failed() []compressor.Result {
	var failed []compressor.Result
	for _, res := range r.Results {
		if !res.Succeeded() {
			failed = append(failed, res)
		}
	}
	return failed
}

// WriteJSON serializes the report to path, replacing any previous file atomically.
func WriteJSON(r *Report, path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	data = append(data, '\n')
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
