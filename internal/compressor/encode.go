package compressor

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
)

// jpegLosslessQuality is used for JPEG items when the batch asks for lossless
// output; JPEG has no lossless path, so the item is still encoded lossy.
const jpegLosslessQuality = 100

// Encode re-encodes a decoded image for its format under settings. Metadata
// is not carried over here; see PreserveMetadata.
func Encode(decoded *Decoded, format Format, settings Settings) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	switch format {
	case FormatJPEG:
		quality := settings.QualityJPEG
		if settings.Lossless {
			quality = jpegLosslessQuality
		}
		data, err = EncodeJPEG(decoded.NRGBA(), quality)
	case FormatPNG:
		if settings.Lossless {
			// The source frame keeps its bit depth and colour type.
			data, err = EncodePNG(decoded.Image)
			break
		}
		var quantized *image.Paletted
		quantized, err = Quantize(decoded.NRGBA(), settings.QualityPNG)
		if err == nil {
			data, err = EncodePNG(quantized)
		}
	case FormatWebP:
		if settings.Lossless {
			data, err = EncodeWebPLossless(decoded.NRGBA())
		} else {
			data, err = EncodeWebP(decoded.NRGBA(), settings.QualityWebP)
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrEncode, format, err)
	}
	return data, nil
}

// EncodeJPEG encodes img at quality [10,100].
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(256 * 1024)
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodePNG encodes img losslessly at maximum deflate effort. Row filters are
// chosen per scanline by the encoder; the output is deterministic.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(512 * 1024)
	err := imaging.Encode(&buf, img, imaging.PNG, imaging.PNGCompressionLevel(png.BestCompression))
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodeWebP encodes img with the codec's lossy mode.
func EncodeWebP(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := webp.Encode(&buf, img, &webp.Options{Quality: float32(quality)}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodeWebPLossless encodes img with the codec's lossless mode.
func EncodeWebPLossless(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := webp.Encode(&buf, img, &webp.Options{Lossless: true}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
