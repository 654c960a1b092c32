package runner

import (
	"context"
	"fmt"

	"image-compress-go/internal/collector"
	"image-compress-go/internal/compressor"
	"image-compress-go/internal/config"
	"image-compress-go/internal/statistics"

	"github.com/sirupsen/logrus"
)

// LogHookFunc receives user-facing progress lines, for example to forward
// them over a WebSocket.
type LogHookFunc func(level, message string)

// Runner compresses images found on disk.
type Runner struct {
	config     *config.Config
	logger     *logrus.Logger
	stats      *statistics.Statistics
	collector  *collector.Collector
	compressor compressor.Compressor

	logHook LogHookFunc
}

// Plan is the destination a dry run resolved for one file.
type Plan struct {
	Source      string `json:"source"`
	Destination string `json:"destination,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Outcome is what one run produced. Results is nil for dry runs.
type Outcome struct {
	Files   []collector.FileInfo
	Results []compressor.Result
	Plans   []Plan
}

// NewRunner returns a new Runner.
func NewRunner(
	cfg *config.Config,
	logger *logrus.Logger,
	stats *statistics.Statistics,
	coll *collector.Collector,
	comp compressor.Compressor,
) *Runner {
	return NewRunnerWithLogHook(cfg, logger, stats, coll, comp, nil)
}

// NewRunnerWithLogHook is NewRunner with a hook that mirrors progress lines.
func NewRunnerWithLogHook(
	cfg *config.Config,
	logger *logrus.Logger,
	stats *statistics.Statistics,
	coll *collector.Collector,
	comp compressor.Compressor,
	logHook LogHookFunc,
) *Runner {
	return &Runner{
		config:     cfg,
		logger:     logger,
		stats:      stats,
		collector:  coll,
		compressor: comp,
		logHook:    logHook,
	}
}

// Run discovers images under paths and compresses them with the configured
// settings. Discovery problems are returned alongside whatever was found.
func (r *Runner) Run(ctx context.Context, paths []string) (*Outcome, error) {
	r.logger.Info("Starting image compression")
	r.stats.Start()
	if r.config.IsInPlace() {
		r.logger.Info("No output directory set, compressing files in place")
	} else {
		r.logger.Infof("Writing compressed files to %s", r.config.Compression.OutputDirectory)
	}

	files, discoverErr := r.collector.Discover(paths)
	if discoverErr != nil {
		r.logger.Warnf("Discovery finished with errors: %v", discoverErr)
	}
	outcome := &Outcome{Files: files}

	if len(files) == 0 {
		r.logger.Info("No images found to compress")
		r.stats.Finalize()
		return outcome, discoverErr
	}

	r.logger.Infof("Found %d images to process", len(files))
	r.stats.AddFilesFound(len(files))

	if r.config.Security.DryRun {
		r.logger.Info("Running in dry-run mode - no files will be modified")
		outcome.Plans = r.dryRun(files)
		r.stats.Finalize()
		return outcome, discoverErr
	}

	requests := r.collector.Load(files, r.config.CompressorOptions().MaxInputBytes)
	results, err := r.compressor.Compress(ctx, requests, r.config.Settings())
	if err != nil {
		return outcome, fmt.Errorf("failed to compress batch: %w", err)
	}

	for i, res := range results {
		r.stats.Record(res, files[i].Format)
		if res.Succeeded() {
			r.hook("info", fmt.Sprintf("Compressed %s: %d -> %d bytes (%d%%)", res.Name, res.OriginalSize, res.CompressedSize, res.Ratio))
		} else {
			r.hook("error", fmt.Sprintf("Failed %s: %s", res.Name, res.Message))
		}
	}
	outcome.Results = results

	r.stats.Finalize()
	r.logger.Infof("Image compression completed in %v", r.stats.GetDuration())
	return outcome, discoverErr
}

// dryRun resolves every destination without reading or writing images.
func (r *Runner) dryRun(files []collector.FileInfo) []Plan {
	settings := r.config.Settings()
	plans := make([]Plan, 0, len(files))

	for _, req := range r.collector.Plan(files) {
		dest, err := compressor.ResolveDestination(req, settings)
		if err != nil {
			plans = append(plans, Plan{Source: req.SourcePath, Error: err.Error()})
			r.hook("error", fmt.Sprintf("DRY-RUN: Would skip %s: %v", req.SourcePath, err))
			continue
		}
		plans = append(plans, Plan{Source: req.SourcePath, Destination: dest})
		r.hook("info", fmt.Sprintf("DRY-RUN: Would compress %s -> %s", req.SourcePath, dest))
	}
	return plans
}

func (r *Runner) hook(level, msg string) {
	switch level {
	case "error":
		r.logger.Warn(msg)
	default:
		r.logger.Info(msg)
	}
	if r.logHook != nil {
		r.logHook(level, msg)
	}
}
