package compressor

import (
	"context"
	"math"
	"runtime"
	"sync"
	"time"

	"image-compress-go/internal/hasher"
	"image-compress-go/internal/logger"

	"github.com/sirupsen/logrus"
)

// ProgressFunc observes finished items. Calls are serialized.
type ProgressFunc func(res Result, completed, total int)

// Options tunes a BatchCompressor.
type Options struct {
	// Workers bounds the items processed at once; 0 means runtime.NumCPU().
	Workers int
	// MaxInputBytes rejects larger inputs before decoding; 0 disables the check.
	MaxInputBytes int64
	// KeepOriginalIfLarger skips outputs that are not smaller than their input.
	KeepOriginalIfLarger bool
	OnItem               ProgressFunc
}

// BatchCompressor is the default implementation of the Compressor interface.
// It holds no per-batch state and may serve concurrent batches.
type BatchCompressor struct {
	log  *logrus.Logger
	opts Options
}

// NewBatchCompressor creates a new BatchCompressor instance.
func NewBatchCompressor(log *logrus.Logger, opts Options) *BatchCompressor {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &BatchCompressor{log: log, opts: opts}
}

// Compress processes requests on a bounded worker pool. Every request yields
// exactly one result at its own index. Items not started when ctx is done
// fail as cancelled; items already running are allowed to finish.
func (c *BatchCompressor) Compress(ctx context.Context, requests []Request, settings Settings) ([]Result, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	results := make([]Result, len(requests))
	if len(requests) == 0 {
		return results, nil
	}

	numWorkers := c.opts.Workers
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	numWorkers = min(numWorkers, len(requests))

	jobs := make(chan int, len(requests))
	for i := range requests {
		jobs <- i
	}
	close(jobs)

	c.log.WithFields(logrus.Fields{
		"items":   len(requests),
		"workers": numWorkers,
	}).Info("Starting compression batch")

	var (
		wg        sync.WaitGroup
		progress  sync.Mutex
		completed int
	)
	wg.Add(numWorkers)
	for w := 0; w < numWorkers; w++ {
		go func() {
			defer wg.Done()
			for idx := range jobs {
				var res Result
				select {
				case <-ctx.Done():
					res = c.cancelled(requests[idx], ctx.Err())
				default:
					res = c.compressOne(requests[idx], settings)
				}
				results[idx] = res

				progress.Lock()
				completed++
				if c.opts.OnItem != nil {
					c.opts.OnItem(res, completed, len(requests))
				}
				progress.Unlock()
			}
		}()
	}
	wg.Wait()

	return results, nil
}

// compressOne runs one request through classify, resolve, decode, encode,
// metadata and write. The first failing stage decides the error kind.
func (c *BatchCompressor) compressOne(req Request, settings Settings) Result {
	res := Result{
		Name:          req.Name,
		SequenceIndex: req.SequenceIndex,
		OriginalSize:  req.inputSize(),
		StartedAt:     time.Now(),
	}
	log := logger.WithFileOperation(c.log, req.Name, "compress")

	format, err := ClassifyFormat(req.Format)
	if err != nil {
		return c.fail(res, KindUnsupportedFormat, err, log)
	}

	dest, err := ResolveDestination(req, settings)
	if err != nil {
		return c.fail(res, KindNoDestination, err, log)
	}

	if c.opts.MaxInputBytes > 0 && res.OriginalSize > c.opts.MaxInputBytes {
		return c.fail(res, KindTooLarge, nil, log)
	}

	log.Debugf("Decoding %s input (%d bytes)", format, res.OriginalSize)
	decoded, err := Decode(req.Data, format)
	if err != nil {
		return c.fail(res, KindDecode, err, log)
	}
	if decoded.ExifErr != nil {
		log.WithError(decoded.ExifErr).Debug("Metadata scan failed, treating input as carrying no Exif block")
	}

	encoded, err := Encode(decoded, format, settings)
	if err != nil {
		return c.fail(res, KindEncode, err, log)
	}
	encoded, err = PreserveMetadata(encoded, decoded, format, settings)
	if err != nil {
		return c.fail(res, KindEncode, err, log)
	}

	if c.opts.KeepOriginalIfLarger && int64(len(encoded)) >= res.OriginalSize {
		log.Debugf("Encoded output (%d bytes) not smaller than input, keeping original", len(encoded))
		res.Message = "Compressed output not smaller than original, kept original"
		res.KeptOriginal = true
		encoded = req.Data
		if dest == req.SourcePath {
			return c.succeed(res, "", encoded, log)
		}
	}

	if err := writeAtomic(dest, encoded); err != nil {
		return c.fail(res, KindWrite, err, log)
	}
	return c.succeed(res, dest, encoded, log)
}

func (c *BatchCompressor) succeed(res Result, dest string, written []byte, log *logrus.Entry) Result {
	res.Status = StatusSuccess
	res.OutputPath = dest
	res.CompressedSize = int64(len(written))
	res.Ratio = savedRatio(res.OriginalSize, res.CompressedSize)
	res.Checksum = hasher.ContentHash(written, hasher.ChecksumLen)
	res.FinishedAt = time.Now()

	log.WithFields(logrus.Fields{
		"original_size":   res.OriginalSize,
		"compressed_size": res.CompressedSize,
		"ratio":           res.Ratio,
	}).Info("Image compressed")
	return res
}

func (c *BatchCompressor) fail(res Result, kind ErrorKind, err error, log *logrus.Entry) Result {
	itemErr := newItemError(kind, res.Name, err)
	res.Status = StatusError
	res.CompressedSize = 0
	res.Ratio = 0
	res.Cause = kind
	res.Err = itemErr
	res.Message = itemErr.Error()
	res.FinishedAt = time.Now()

	log.WithField("cause", kind).Warnf("Compression failed: %v", itemErr)
	return res
}

func (c *BatchCompressor) cancelled(req Request, cause error) Result {
	res := Result{
		Name:          req.Name,
		SequenceIndex: req.SequenceIndex,
		OriginalSize:  req.inputSize(),
		StartedAt:     time.Now(),
	}
	return c.fail(res, KindCancelled, cause, logger.WithFileOperation(c.log, req.Name, "compress"))
}

// savedRatio is the rounded percentage of bytes saved.
func savedRatio(original, compressed int64) int {
	if original <= 0 {
		return 0
	}
	return int(math.Round((1 - float64(compressed)/float64(original)) * 100))
}
