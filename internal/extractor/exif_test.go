package extractor

import (
	"bytes"
	"encoding/binary"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"image-compress-go/internal/compressor"
	"image-compress-go/internal/logger"
)

type ifdEntry struct {
	tag   uint16
	ascii string
	short uint16
}

// buildExif assembles a little-endian APP1 Exif payload with a single IFD.
// Entries with an empty ascii value are written as SHORT.
func buildExif(entries []ifdEntry) []byte {
	le := binary.LittleEndian
	dataOff := 8 + 2 + 12*len(entries) + 4

	var ifd, data bytes.Buffer
	_ = binary.Write(&ifd, le, uint16(len(entries)))
	for _, e := range entries {
		_ = binary.Write(&ifd, le, e.tag)
		if e.ascii == "" {
			_ = binary.Write(&ifd, le, uint16(3))
			_ = binary.Write(&ifd, le, uint32(1))
			_ = binary.Write(&ifd, le, e.short)
			_ = binary.Write(&ifd, le, uint16(0))
			continue
		}
		value := append([]byte(e.ascii), 0)
		_ = binary.Write(&ifd, le, uint16(2))
		_ = binary.Write(&ifd, le, uint32(len(value)))
		if len(value) <= 4 {
			padded := make([]byte, 4)
			copy(padded, value)
			ifd.Write(padded)
			continue
		}
		_ = binary.Write(&ifd, le, uint32(dataOff+data.Len()))
		data.Write(value)
	}
	_ = binary.Write(&ifd, le, uint32(0))

	var b bytes.Buffer
	b.WriteString("Exif\x00\x00II")
	_ = binary.Write(&b, le, uint16(42))
	_ = binary.Write(&b, le, uint32(8))
	b.Write(ifd.Bytes())
	b.Write(data.Bytes())
	return b.Bytes()
}

func cameraBlock() []byte {
	return buildExif([]ifdEntry{
		{tag: 0x010f, ascii: "Acme"},
		{tag: 0x0110, ascii: "Shooter 3000"},
		{tag: 0x0112, short: 6},
		{tag: 0x0131, ascii: "Darkroom 1.2"},
		{tag: 0x0132, ascii: "2023:07:14 18:30:05"},
	})
}

func smallImage() image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	for i := range img.Pix {
		img.Pix[i] = uint8(i * 7)
	}
	return img
}

func jpegFixture(t *testing.T, block []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, smallImage(), &jpeg.Options{Quality: 90}); err != nil {
		t.Fatal(err)
	}
	if block == nil {
		return buf.Bytes()
	}
	data, err := compressor.InsertExif(buf.Bytes(), block)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func writeFixture(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestExtractBytesReadsCameraTags(t *testing.T) {
	e := NewEXIFExtractor(logger.Discard())
	block := cameraBlock()

	md, err := e.ExtractBytes("jpg", jpegFixture(t, block))
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	if !md.HasExif || md.ExifSize != len(block) {
		t.Fatalf("HasExif=%v ExifSize=%d, want true/%d", md.HasExif, md.ExifSize, len(block))
	}
	if md.Format != "jpeg" {
		t.Errorf("format = %q", md.Format)
	}
	if md.Make != "Acme" || md.Model != "Shooter 3000" || md.Software != "Darkroom 1.2" {
		t.Errorf("camera tags = %q/%q/%q", md.Make, md.Model, md.Software)
	}
	if md.Orientation != 6 {
		t.Errorf("orientation = %d, want 6", md.Orientation)
	}
	if md.DateTime == nil || md.DateTime.Year() != 2023 || md.DateSource != DateSourceEXIFDateTime {
		t.Errorf("date = %v (%s)", md.DateTime, md.DateSource)
	}
}

func TestExtractBytesWithoutExif(t *testing.T) {
	e := NewEXIFExtractor(logger.Discard())
	md, err := e.ExtractBytes("jpeg", jpegFixture(t, nil))
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	if md.HasExif || md.ExifSize != 0 {
		t.Errorf("unexpected metadata: %+v", md)
	}
}

func TestExtractBytesNonJPEG(t *testing.T) {
	var buf bytes.Buffer
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.NRGBA{R: 255, A: 255})
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	md, err := NewEXIFExtractor(logger.Discard()).ExtractBytes("PNG", buf.Bytes())
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	if md.Format != "png" || md.HasExif {
		t.Errorf("unexpected metadata: %+v", md)
	}
}

func TestExtractBytesUnsupported(t *testing.T) {
	_, err := NewEXIFExtractor(logger.Discard()).ExtractBytes("gif", []byte("GIF89a"))
	if !errors.Is(err, compressor.ErrUnsupportedFormat) {
		t.Fatalf("error = %v, want ErrUnsupportedFormat", err)
	}
}

func TestExtractUsesCache(t *testing.T) {
	e := NewEXIFExtractor(logger.Discard())
	path := writeFixture(t, "camera.jpg", jpegFixture(t, cameraBlock()))

	first, err := e.Extract(path)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	second, err := e.Extract(path)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if first.Path != path || second.Make != first.Make {
		t.Errorf("cached metadata differs: %+v vs %+v", first, second)
	}

	stats := e.GetCacheStats()
	if stats.Hits != 1 || stats.Misses != 1 || stats.HitRate != 0.5 {
		t.Errorf("cache stats = %+v", stats)
	}

	// Rewriting the file changes its size, so the old entry no longer applies.
	if err := os.WriteFile(path, jpegFixture(t, nil), 0o644); err != nil {
		t.Fatal(err)
	}
	third, err := e.Extract(path)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if third.HasExif {
		t.Error("stale cached metadata returned for rewritten file")
	}
	if stats := e.GetCacheStats(); stats.Misses != 2 || stats.TotalQueries != 3 {
		t.Errorf("cache stats after rewrite = %+v", stats)
	}
}

func TestSupportsFile(t *testing.T) {
	e := NewEXIFExtractor(logger.Discard())
	for path, want := range map[string]bool{
		"a.JPG":  true,
		"b.jpeg": true,
		"c.png":  true,
		"d.webp": true,
		"e.tiff": false,
		"f":      false,
	} {
		if got := e.SupportsFile(path); got != want {
			t.Errorf("SupportsFile(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestExiftoolExtractor(t *testing.T) {
	if _, err := exec.LookPath("exiftool"); err != nil {
		t.Skip("exiftool not installed")
	}
	path := writeFixture(t, "camera.jpg", jpegFixture(t, cameraBlock()))

	md, err := NewExiftoolExtractor(logger.Discard()).Extract(path)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if md.Make != "Acme" || !md.HasExif || len(md.Fields) == 0 {
		t.Errorf("unexpected metadata: %+v", md)
	}
}
