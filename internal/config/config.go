package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"image-compress-go/internal/compressor"

	"github.com/spf13/viper"
)

const bytesPerMB = 1024 * 1024

// Config represents the main configuration structure
type Config struct {
	Compression CompressionConfig `mapstructure:"compression"`
	Performance PerformanceConfig `mapstructure:"performance"`
	Security    SecurityConfig    `mapstructure:"security"`
	Server      ServerConfig      `mapstructure:"server"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// CompressionConfig holds the defaults for a batch's settings snapshot
type CompressionConfig struct {
	Lossless        bool   `mapstructure:"lossless"`
	QualityJPG      int    `mapstructure:"quality_jpg"`
	QualityWebP     int    `mapstructure:"quality_webp"`
	QualityPNG      int    `mapstructure:"quality_png"`
	PreserveExif    bool   `mapstructure:"preserve_exif"`
	OutputDirectory string `mapstructure:"output_directory"`
}

// PerformanceConfig contains performance tuning settings
type PerformanceConfig struct {
	WorkerThreads        int  `mapstructure:"worker_threads"` // 0 = NumCPU
	MaxFileSizeMB        int  `mapstructure:"max_file_size_mb"`
	KeepOriginalIfLarger bool `mapstructure:"keep_original_if_larger"`
}

// SecurityConfig contains security and safety settings
type SecurityConfig struct {
	DryRun         bool `mapstructure:"dry_run"`
	MaxFilesPerRun int  `mapstructure:"max_files_per_run"`
}

// ServerConfig contains web interface settings
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"` // MB
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
	Compress   bool   `mapstructure:"compress"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Compression: CompressionConfig{
			Lossless:     false,
			QualityJPG:   80,
			QualityWebP:  80,
			QualityPNG:   80,
			PreserveExif: true,
		},
		Performance: PerformanceConfig{
			WorkerThreads: 0,
			MaxFileSizeMB: 50,
		},
		Security: SecurityConfig{
			DryRun:         false,
			MaxFilesPerRun: 0, // 0 means no limit
		},
		Server: ServerConfig{
			Port: 8080,
		},
		Logging: LoggingConfig{
			Level:      "info",
			FilePath:   "image-compress.log",
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     30,
			Compress:   true,
		},
	}
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig(configPath string) (*Config, error) {
	return load(viper.New(), configPath)
}

func load(v *viper.Viper, configPath string) (*Config, error) {
	config := DefaultConfig()

	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Look for config file in current directory and home directory
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.image-compress")
		v.AddConfigPath("/etc/image-compress")
	}

	// Enable environment variable support
	v.SetEnvPrefix("IMAGE_COMPRESS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvKeys(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults
	}

	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// bindEnvKeys registers every known key so AutomaticEnv also applies to
// Unmarshal when no config file mentions the key.
func bindEnvKeys(v *viper.Viper) {
	keys := []string{
		"compression.lossless", "compression.quality_jpg", "compression.quality_webp",
		"compression.quality_png", "compression.preserve_exif", "compression.output_directory",
		"performance.worker_threads", "performance.max_file_size_mb", "performance.keep_original_if_larger",
		"security.dry_run", "security.max_files_per_run",
		"server.port",
		"logging.level", "logging.file_path", "logging.max_size", "logging.max_backups",
		"logging.max_age", "logging.compress",
	}
	for _, key := range keys {
		_ = v.BindEnv(key)
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	qualities := map[string]int{
		"quality_jpg":  c.Compression.QualityJPG,
		"quality_webp": c.Compression.QualityWebP,
		"quality_png":  c.Compression.QualityPNG,
	}
	for name, q := range qualities {
		if q < compressor.MinQuality || q > compressor.MaxQuality {
			return fmt.Errorf("invalid %s: %d (valid: %d-%d)", name, q, compressor.MinQuality, compressor.MaxQuality)
		}
	}

	if dir := c.Compression.OutputDirectory; dir != "" {
		c.Compression.OutputDirectory = expandPath(dir)
		if info, err := os.Stat(c.Compression.OutputDirectory); err == nil && !info.IsDir() {
			return fmt.Errorf("output_directory is not a directory: %s", c.Compression.OutputDirectory)
		}
	}

	// Validate performance settings
	if c.Performance.WorkerThreads < 0 {
		c.Performance.WorkerThreads = 0
	}
	if c.Performance.MaxFileSizeMB < 0 {
		return fmt.Errorf("invalid max_file_size_mb: %d", c.Performance.MaxFileSizeMB)
	}
	if c.Security.MaxFilesPerRun < 0 {
		c.Security.MaxFilesPerRun = 0
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	// Validate logging settings
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}

	return nil
}

// Settings returns the immutable settings snapshot for one batch.
func (c *Config) Settings() compressor.Settings {
	return compressor.Settings{
		Lossless:        c.Compression.Lossless,
		QualityJPEG:     c.Compression.QualityJPG,
		QualityWebP:     c.Compression.QualityWebP,
		QualityPNG:      c.Compression.QualityPNG,
		PreserveExif:    c.Compression.PreserveExif,
		OutputDirectory: c.Compression.OutputDirectory,
	}
}

// CompressorOptions returns the pipeline tuning derived from the configuration.
func (c *Config) CompressorOptions() compressor.Options {
	return compressor.Options{
		Workers:              c.Performance.WorkerThreads,
		MaxInputBytes:        int64(c.Performance.MaxFileSizeMB) * bytesPerMB,
		KeepOriginalIfLarger: c.Performance.KeepOriginalIfLarger,
	}
}

// IsInPlace returns true if results overwrite their sources
func (c *Config) IsInPlace() bool {
	return c.Compression.OutputDirectory == ""
}

// Helper functions

func expandPath(path string) string {
	expanded := os.ExpandEnv(path)
	if strings.HasPrefix(expanded, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			expanded = filepath.Join(home, expanded[1:])
		}
	}
	return expanded
}
