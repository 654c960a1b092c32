package compressor

import (
	"bytes"
	"errors"
	"image"
	"testing"
)

func TestDecodeSupportedFormats(t *testing.T) {
	img := makePhoto(40, 30)
	tests := []struct {
		name   string
		data   []byte
		format Format
	}{
		{"jpeg", jpegBytes(t, img, 90), FormatJPEG},
		{"png", pngBytes(t, img), FormatPNG},
		{"webp", webpBytes(t, img), FormatWebP},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decoded, err := Decode(tt.data, tt.format)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			b := decoded.NRGBA().Bounds()
			if b.Dx() != 40 || b.Dy() != 30 || b.Min.X != 0 || b.Min.Y != 0 {
				t.Errorf("bounds = %v, want 40x30 at origin", b)
			}
			if decoded.Exif != nil {
				t.Errorf("unexpected metadata block of %d bytes", len(decoded.Exif))
			}
		})
	}
}

func TestDecodePNGIsPixelExact(t *testing.T) {
	img := makeTranslucent(16, 16)
	decoded, err := Decode(pngBytes(t, img), FormatPNG)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(decoded.NRGBA().Pix, img.Pix) {
		t.Fatal("decoded PNG pixels differ from source")
	}
}

func TestDecodeKeepsSourceBitDepth(t *testing.T) {
	decoded, err := Decode(pngBytes(t, makeDeep(4, 4)), FormatPNG)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if _, ok := decoded.Image.(*image.NRGBA64); !ok {
		t.Fatalf("decoded image is %T, want *image.NRGBA64", decoded.Image)
	}
	if decoded.NRGBA().Bounds().Dx() != 4 {
		t.Fatal("8-bit view has wrong bounds")
	}
}

func TestDecodeJPEGWithFillBytes(t *testing.T) {
	block := makeExifBlock("Padded Writer")
	tests := []struct {
		name     string
		data     []byte
		wantExif []byte
	}{
		{"plain", padJPEG(jpegBytes(t, makePhoto(20, 20), 90), 0x00, 0x00), nil},
		{"with exif", padJPEG(jpegWithExif(t, makePhoto(20, 20), block), 0x00, 0x00), block},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decoded, err := Decode(tt.data, FormatJPEG)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if decoded.ExifErr != nil {
				t.Errorf("metadata scan failed: %v", decoded.ExifErr)
			}
			if !bytes.Equal(decoded.Exif, tt.wantExif) {
				t.Errorf("exif = %q, want %q", decoded.Exif, tt.wantExif)
			}
		})
	}
}

func TestDecodeExtractsJPEGMetadata(t *testing.T) {
	block := makeExifBlock("CameraSoft 1.0")
	decoded, err := Decode(jpegWithExif(t, makePhoto(20, 20), block), FormatJPEG)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(decoded.Exif, block) {
		t.Fatal("extracted block differs from embedded block")
	}
}

func TestDecodeFailures(t *testing.T) {
	img := makePhoto(20, 20)
	jpg := jpegBytes(t, img, 90)
	tests := []struct {
		name   string
		data   []byte
		format Format
	}{
		{"empty", nil, FormatJPEG},
		{"truncated jpeg", jpg[:len(jpg)/3], FormatJPEG},
		{"png declared as jpeg", pngBytes(t, img), FormatJPEG},
		{"jpeg declared as png", jpg, FormatPNG},
		{"jpeg declared as webp", jpg, FormatWebP},
		{"garbage", []byte("definitely not an image"), FormatPNG},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.data, tt.format)
			if !errors.Is(err, ErrDecode) {
				t.Fatalf("error = %v, want ErrDecode", err)
			}
		})
	}
}
