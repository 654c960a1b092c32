package collector

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"image-compress-go/internal/compressor"

	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
)

// FileInfo describes an image found on disk.
type FileInfo struct {
	Path      string
	Size      int64
	ModTime   time.Time
	Extension string
	Format    string
}

// Collector turns files and directories into compression requests.
type Collector struct {
	logger   *logrus.Logger
	maxFiles int
}

// NewCollector returns a Collector that stops after maxFiles images;
// 0 means no limit.
func NewCollector(logger *logrus.Logger, maxFiles int) *Collector {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Collector{logger: logger, maxFiles: maxFiles}
}

// Discover walks paths and returns every supported image in walk order.
// Paths that cannot be read are reported in the returned error while the
// remaining paths are still walked.
func (c *Collector) Discover(paths []string) ([]FileInfo, error) {
	var (
		files []FileInfo
		errs  error
	)
	seen := make(map[string]struct{})

	add := func(path string, info fs.FileInfo) bool {
		if _, dup := seen[path]; dup {
			return true
		}
		tag := compressor.FormatTagFromPath(path)
		if tag == "" {
			return true
		}
		seen[path] = struct{}{}
		files = append(files, FileInfo{
			Path:      path,
			Size:      info.Size(),
			ModTime:   info.ModTime(),
			Extension: strings.ToLower(filepath.Ext(path)),
			Format:    tag,
		})
		if c.maxFiles > 0 && len(files) >= c.maxFiles {
			c.logger.Infof("Reached maximum files limit (%d), stopping discovery", c.maxFiles)
			return false
		}
		return true
	}

	for _, root := range paths {
		info, err := os.Stat(root)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("failed to stat %s: %w", root, err))
			continue
		}

		if !info.IsDir() {
			if !add(filepath.Clean(root), info) {
				return files, errs
			}
			continue
		}

		stopped := false
		walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				c.logger.Warnf("Error accessing path %s: %v", path, err)
				return nil
			}
			if d.IsDir() {
				return nil
			}
			fi, err := d.Info()
			if err != nil {
				c.logger.Warnf("Error reading file info %s: %v", path, err)
				return nil
			}
			if !add(path, fi) {
				stopped = true
				return filepath.SkipAll
			}
			return nil
		})
		if walkErr != nil {
			errs = multierr.Append(errs, fmt.Errorf("failed to walk %s: %w", root, walkErr))
		}
		if stopped {
			break
		}
	}

	c.logger.Debugf("Discovered %d images in %d paths", len(files), len(paths))
	return files, errs
}

// Plan returns requests without reading file contents, for dry runs.
func (c *Collector) Plan(files []FileInfo) []compressor.Request {
	requests := make([]compressor.Request, len(files))
	for i, f := range files {
		requests[i] = compressor.Request{
			Name:          filepath.Base(f.Path),
			Format:        f.Format,
			SourcePath:    f.Path,
			SequenceIndex: i,
		}
	}
	return requests
}

// Load reads every file into a request. A file that cannot be read keeps
// empty data, so it fails on its own as a decode error. Files larger than
// maxBytes are not read; their request carries only SourceSize. 0 disables
// the limit.
func (c *Collector) Load(files []FileInfo, maxBytes int64) []compressor.Request {
	requests := c.Plan(files)
	for i, f := range files {
		if maxBytes > 0 && f.Size > maxBytes {
			c.logger.WithField("file", f.Path).Debugf("Skipping read of %d byte file over the %d byte limit", f.Size, maxBytes)
			requests[i].SourceSize = f.Size
			continue
		}
		data, err := os.ReadFile(f.Path)
		if err != nil {
			c.logger.WithField("file", f.Path).Warnf("Could not read file: %v", err)
			continue
		}
		requests[i].Data = data
	}
	return requests
}
