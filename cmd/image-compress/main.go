package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"image-compress-go/internal/collector"
	"image-compress-go/internal/compressor"
	"image-compress-go/internal/config"
	"image-compress-go/internal/extractor"
	"image-compress-go/internal/logger"
	"image-compress-go/internal/report"
	"image-compress-go/internal/runner"
	"image-compress-go/internal/statistics"
	"image-compress-go/internal/web"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
)

var (
	cfgFile      string
	outputDir    string
	lossless     bool
	qualityJPG   int
	qualityWebP  int
	qualityPNG   int
	preserveExif bool
	workers      int
	dryRun       bool
	reportPath   string
	useExiftool  bool
	verbose      bool
	quiet        bool
	port         int
)

// rootCmd is the base command for the CLI.
var rootCmd = &cobra.Command{
	Use:   "image-compress [paths...]",
	Short: "Compress JPEG, PNG and WebP images in batches",
	Long: `image-compress re-encodes JPEG, PNG and WebP images to reduce their size.

Features:
- Per-format quality for JPEG, WebP and PNG (palette quantization)
- Lossless mode for PNG and WebP
- EXIF preservation for JPEG
- Output directory or atomic in-place overwrite
- Dry-run mode for safe testing
- JSON reports with checksums of written files`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCompress(cmd, args)
	},
}

// inspectCmd prints the metadata of a single image.
var inspectCmd = &cobra.Command{
	Use:   "inspect <file>",
	Short: "Show the EXIF metadata of an image",
	Long: `Shows the metadata block an image carries. With --exiftool every field
reported by the exiftool binary is printed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInspect(args[0])
	},
}

// serveCmd starts the HTTP API.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP and WebSocket API",
	Long: `Starts a web server that compresses uploaded or on-disk images and
pushes progress to WebSocket clients at /ws.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable verbose logging")
	rootCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "suppress non-error output")

	rootCmd.Flags().StringVarP(&outputDir, "output", "o", "", "write results into this directory (default: overwrite in place)")
	rootCmd.Flags().BoolVar(&lossless, "lossless", false, "use lossless encoders for PNG and WebP")
	rootCmd.Flags().IntVar(&qualityJPG, "quality-jpg", 80, "JPEG quality (10-100)")
	rootCmd.Flags().IntVar(&qualityWebP, "quality-webp", 80, "WebP quality (10-100)")
	rootCmd.Flags().IntVar(&qualityPNG, "quality-png", 80, "PNG quantization quality (10-100)")
	rootCmd.Flags().BoolVar(&preserveExif, "preserve-exif", true, "keep the EXIF block of JPEG images")
	rootCmd.Flags().IntVar(&workers, "workers", 0, "number of parallel workers (0 = number of CPUs)")
	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false, "show destinations without compressing")
	rootCmd.Flags().StringVar(&reportPath, "report", "", "write a JSON report to this file")

	inspectCmd.Flags().BoolVar(&useExiftool, "exiftool", false, "dump every field through the exiftool binary")

	serveCmd.Flags().IntVar(&port, "port", 8080, "port to run web server on")

	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(serveCmd)
}

// runCompress executes the main compression logic.
func runCompress(cmd *cobra.Command, paths []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := setupLogger(cfg)
	stats := statistics.NewStatistics()
	comp := compressor.NewBatchCompressor(log, cfg.CompressorOptions())
	coll := collector.NewCollector(log, cfg.Security.MaxFilesPerRun)
	run := runner.NewRunner(cfg, log, stats, coll, comp)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	outcome, runErr := run.Run(ctx, paths)

	if outcome.Plans != nil && !quiet {
		for _, plan := range outcome.Plans {
			if plan.Error != "" {
				fmt.Printf("SKIP  %s: %s\n", plan.Source, plan.Error)
				continue
			}
			fmt.Printf("PLAN  %s -> %s\n", plan.Source, plan.Destination)
		}
	}

	if reportPath != "" {
		rep := report.New("", cfg.Settings())
		rep.BuildInfo = &report.BuildInfo{
			Workers:       cfg.Performance.WorkerThreads,
			MaxInputBytes: cfg.CompressorOptions().MaxInputBytes,
			DryRun:        cfg.Security.DryRun,
		}
		if outcome.Results != nil {
			rep.Results = outcome.Results
		}
		rep.Plans = outcome.Plans
		rep.Summary = stats.Snapshot()
		if err := report.WriteJSON(rep, reportPath); err != nil {
			runErr = multierr.Append(runErr, err)
		} else {
			logger.WithBatch(log, rep.BatchID).Infof("Report written to %s", reportPath)
		}
	}

	if !quiet {
		fmt.Println("\n" + stats.GetSummary())
		fmt.Println("\n" + stats.GetFileTypeBreakdown())
		if stats.GetFilesWithErrors() > 0 {
			fmt.Println("\n" + stats.GetErrorSummary())
		}
	}

	return multierr.Append(runErr, failedItemsError(outcome.Results))
}

// failedItemsError combines the errors of failed items, or returns nil.
func failedItemsError(results []compressor.Result) error {
	var errs error
	for _, res := range results {
		if res.Succeeded() {
			continue
		}
		err := res.Err
		if err == nil {
			err = errors.New(res.Message)
		}
		errs = multierr.Append(errs, err)
	}
	return errs
}

// runInspect prints the metadata of a single file.
func runInspect(filePath string) error {
	if !fileExists(filePath) {
		return fmt.Errorf("file does not exist: %s", filePath)
	}

	log := logrus.New()
	log.SetOutput(os.Stderr)
	if !verbose {
		log.SetLevel(logrus.WarnLevel)
	}

	var metadataExtractor extractor.MetadataExtractor = extractor.NewEXIFExtractor(log)
	if useExiftool {
		metadataExtractor = extractor.NewExiftoolExtractor(log)
	}

	md, err := metadataExtractor.Extract(filePath)
	if err != nil {
		return fmt.Errorf("failed to read metadata: %w", err)
	}

	out, err := json.MarshalIndent(md, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

// runServe starts the web server and handles graceful shutdown.
func runServe(cmd *cobra.Command) error {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "CONFIG LOAD ERROR: %v\n", err)
		cfg = config.DefaultConfig()
	}
	if cmd.Flags().Changed("port") || cfg.Server.Port == 0 {
		cfg.Server.Port = port
	}

	log := setupLogger(cfg)
	server := web.NewServer(cfg, log)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		if err := server.Start(cfg.Server.Port); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	fmt.Printf("Image compression API listening on http://localhost:%d\n", cfg.Server.Port)
	fmt.Printf("Press Ctrl+C to stop the server\n\n")

	<-sigChan
	fmt.Println("\nShutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Stop(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	fmt.Println("Server stopped gracefully")
	return nil
}

// loadConfig loads configuration and applies CLI overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return nil, err
	}
	applyFlags(cfg, cmd)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyFlags copies explicitly set flags over the loaded configuration.
func applyFlags(cfg *config.Config, cmd *cobra.Command) {
	flags := cmd.Flags()
	if flags.Changed("output") {
		cfg.Compression.OutputDirectory = outputDir
	}
	if flags.Changed("lossless") {
		cfg.Compression.Lossless = lossless
	}
	if flags.Changed("quality-jpg") {
		cfg.Compression.QualityJPG = qualityJPG
	}
	if flags.Changed("quality-webp") {
		cfg.Compression.QualityWebP = qualityWebP
	}
	if flags.Changed("quality-png") {
		cfg.Compression.QualityPNG = qualityPNG
	}
	if flags.Changed("preserve-exif") {
		cfg.Compression.PreserveExif = preserveExif
	}
	if flags.Changed("workers") {
		cfg.Performance.WorkerThreads = workers
	}
	if dryRun {
		cfg.Security.DryRun = true
	}
}

// setupLogger configures and returns a logger.
func setupLogger(cfg *config.Config) *logrus.Logger {
	loggerCfg := logger.LoggerConfig{
		Level:      cfg.Logging.Level,
		FilePath:   cfg.Logging.FilePath,
		MaxSize:    cfg.Logging.MaxSize,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAge:     cfg.Logging.MaxAge,
		Compress:   cfg.Logging.Compress,
		Console:    !quiet,
	}

	if verbose {
		loggerCfg.Level = "debug"
	}
	if quiet {
		loggerCfg.Level = "error"
	}

	log, err := logger.NewLogger(loggerCfg)
	if err != nil {
		log = logrus.New()
		log.SetLevel(logrus.InfoLevel)
	}

	return log
}

// fileExists returns true if the given path exists and is a file.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
