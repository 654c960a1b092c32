package compressor

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math"
	"math/rand"
	"os"
	"testing"

	"github.com/chai2010/webp"

	"image-compress-go/internal/logger"
)

func defaultSettings() Settings {
	return Settings{
		QualityJPEG:  80,
		QualityWebP:  80,
		QualityPNG:   80,
		PreserveExif: true,
	}
}

// makePhoto returns deterministic content with smooth gradients and grain,
// close enough to camera output for size comparisons.
func makePhoto(w, h int) *image.NRGBA {
	rng := rand.New(rand.NewSource(42))
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			wave := 60 * math.Sin(float64(x)/7) * math.Cos(float64(y)/9)
			off := img.PixOffset(x, y)
			img.Pix[off] = clamp(x*255/w + rng.Intn(21) - 10)
			img.Pix[off+1] = clamp(y*255/h + rng.Intn(21) - 10)
			img.Pix[off+2] = clamp(128 + int(wave) + rng.Intn(21) - 10)
			img.Pix[off+3] = 0xff
		}
	}
	return img
}

func makeTranslucent(w, h int) *image.NRGBA {
	img := makePhoto(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Pix[img.PixOffset(x, y)+3] = uint8(x * 255 / w)
		}
	}
	return img
}

// makeDeep returns a translucent 16-bit image whose low bytes differ from
// their high bytes, so any narrowing to 8 bits is visible.
func makeDeep(w, h int) *image.NRGBA64 {
	img := image.NewNRGBA64(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA64(x, y, color.NRGBA64{
				R: uint16(x*8191 + y*13 + 1),
				G: uint16(0xffff - x*977 - y),
				B: uint16(y*4099 + x*3 + 7),
				A: uint16(0x8000 + x*y*257 + 3),
			})
		}
	}
	return img
}

// padJPEG inserts fill bytes right after SOI. image/jpeg skips them.
func padJPEG(data []byte, pad ...byte) []byte {
	out := append([]byte{}, data[:2]...)
	out = append(out, pad...)
	return append(out, data[2:]...)
}

func makeSolid(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

func clamp(v int) uint8 {
	return uint8(min(max(v, 0), 255))
}

func jpegBytes(t *testing.T, img image.Image, quality int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		t.Fatalf("encode jpeg fixture: %v", err)
	}
	return buf.Bytes()
}

func pngBytes(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png fixture: %v", err)
	}
	return buf.Bytes()
}

func webpBytes(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := webp.Encode(&buf, img, &webp.Options{Quality: 95}); err != nil {
		t.Fatalf("encode webp fixture: %v", err)
	}
	return buf.Bytes()
}

// makeExifBlock builds an APP1 Exif payload holding a single Software tag.
func makeExifBlock(software string) []byte {
	value := append([]byte(software), 0)
	var b bytes.Buffer
	b.Write(exifHeader)
	b.WriteString("II")
	le := binary.LittleEndian
	// TIFF header, IFD0 with one ASCII entry, then the value at offset 26.
	_ = binary.Write(&b, le, uint16(42))
	_ = binary.Write(&b, le, uint32(8))
	_ = binary.Write(&b, le, uint16(1))
	_ = binary.Write(&b, le, uint16(0x0131))
	_ = binary.Write(&b, le, uint16(2))
	_ = binary.Write(&b, le, uint32(len(value)))
	_ = binary.Write(&b, le, uint32(26))
	_ = binary.Write(&b, le, uint32(0))
	b.Write(value)
	return b.Bytes()
}

func jpegWithExif(t *testing.T, img image.Image, block []byte) []byte {
	t.Helper()
	data, err := InsertExif(jpegBytes(t, img, 95), block)
	if err != nil {
		t.Fatalf("insert exif fixture: %v", err)
	}
	return data
}

func newTestCompressor(opts Options) *BatchCompressor {
	return NewBatchCompressor(logger.Discard(), opts)
}

func readFile(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return data
}
