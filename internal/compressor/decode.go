package compressor

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"

	"github.com/disintegration/imaging"
	"golang.org/x/image/webp"
)

// Decoded is a decoded frame plus the metadata block lifted from its container.
type Decoded struct {
	// Image is the frame as the codec returned it, at the source bit depth.
	Image image.Image
	// Exif is the raw APP1 Exif payload of a JPEG, nil when absent.
	Exif []byte
	// ExifErr records why the metadata scan gave up. The pixels are still
	// usable; the item is treated as carrying no metadata block.
	ExifErr error

	nrgba *image.NRGBA
}

// NRGBA returns the frame as 8-bit non-premultiplied RGBA anchored at the
// origin, converting once on first use.
func (d *Decoded) NRGBA() *image.NRGBA {
	if d.nrgba != nil {
		return d.nrgba
	}
	if img, ok := d.Image.(*image.NRGBA); ok && img.Rect.Min == (image.Point{}) {
		d.nrgba = img
	} else {
		d.nrgba = imaging.Clone(d.Image)
	}
	return d.nrgba
}

// Decode decodes data with the codec of the declared format. A payload that
// belongs to another format fails rather than being sniffed.
func Decode(data []byte, format Format) (*Decoded, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrDecode)
	}

	var (
		img image.Image
		err error
	)
	r := bytes.NewReader(data)
	switch format {
	case FormatJPEG:
		img, err = jpeg.Decode(r)
	case FormatPNG:
		img, err = png.Decode(r)
	case FormatWebP:
		img, err = webp.Decode(r)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDecode, format, err)
	}

	decoded := &Decoded{Image: img}
	if format == FormatJPEG {
		decoded.Exif, decoded.ExifErr = ExtractExif(data)
	}
	return decoded, nil
}
