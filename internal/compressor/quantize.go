package compressor

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"sort"

	"github.com/disintegration/imaging"
)

// quantizerConfig is the palette policy derived from quality_png.
type quantizerConfig struct {
	Colors int
	Dither bool
	// SampleEdge bounds the long edge of the image the palette is built from.
	SampleEdge int
}

// quantizerConfigFor maps quality [10,100] monotonically onto palette size,
// dithering and sampling effort.
func quantizerConfigFor(quality int) quantizerConfig {
	q := min(max(quality, MinQuality), MaxQuality) - MinQuality
	span := MaxQuality - MinQuality
	return quantizerConfig{
		Colors:     16 + q*240/span,
		Dither:     quality >= 40,
		SampleEdge: 64 + q*448/span,
	}
}

// Quantize reduces img to a bounded palette for the lossy PNG path.
func Quantize(img *image.NRGBA, quality int) (*image.Paletted, error) {
	bounds := img.Bounds()
	if bounds.Empty() {
		return nil, fmt.Errorf("%w: empty image", ErrEncode)
	}
	cfg := quantizerConfigFor(quality)

	sample := img
	if bounds.Dx() > cfg.SampleEdge || bounds.Dy() > cfg.SampleEdge {
		sample = imaging.Fit(img, cfg.SampleEdge, cfg.SampleEdge, imaging.Box)
	}
	palette := medianCut(histogram(sample), cfg.Colors)

	dst := image.NewPaletted(bounds, palette)
	if cfg.Dither {
		draw.FloydSteinberg.Draw(dst, bounds, img, bounds.Min)
	} else {
		draw.Draw(dst, bounds, img, bounds.Min, draw.Src)
	}
	return dst, nil
}

type weightedColor struct {
	c     [4]uint8
	count int
}

func (w weightedColor) key() uint32 {
	return uint32(w.c[0])<<24 | uint32(w.c[1])<<16 | uint32(w.c[2])<<8 | uint32(w.c[3])
}

// histogram counts distinct colors; every fully transparent pixel counts as
// one transparent color. The result is sorted so palettes are deterministic.
func histogram(img *image.NRGBA) []weightedColor {
	counts := make(map[uint32]int)
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.Pix[img.PixOffset(b.Min.X, y):img.PixOffset(b.Max.X, y)]
		for i := 0; i < len(row); i += 4 {
			k := uint32(row[i])<<24 | uint32(row[i+1])<<16 | uint32(row[i+2])<<8 | uint32(row[i+3])
			if row[i+3] == 0 {
				k = 0
			}
			counts[k]++
		}
	}

	colors := make([]weightedColor, 0, len(counts))
	for k, n := range counts {
		colors = append(colors, weightedColor{
			c:     [4]uint8{uint8(k >> 24), uint8(k >> 16), uint8(k >> 8), uint8(k)},
			count: n,
		})
	}
	sort.Slice(colors, func(i, j int) bool { return colors[i].key() < colors[j].key() })
	return colors
}

type colorBox struct {
	colors  []weightedColor
	weight  int
	channel int // channel with the largest value range
	width   int // that range
}

func newColorBox(colors []weightedColor) colorBox {
	box := colorBox{colors: colors, width: -1}
	var lo, hi [4]int
	for ch := 0; ch < 4; ch++ {
		lo[ch], hi[ch] = 255, 0
	}
	for _, c := range colors {
		box.weight += c.count
		for ch := 0; ch < 4; ch++ {
			lo[ch] = min(lo[ch], int(c.c[ch]))
			hi[ch] = max(hi[ch], int(c.c[ch]))
		}
	}
	for ch := 0; ch < 4; ch++ {
		if hi[ch]-lo[ch] > box.width {
			box.channel, box.width = ch, hi[ch]-lo[ch]
		}
	}
	return box
}

func (b colorBox) split() (colorBox, colorBox) {
	channel := b.channel
	sort.SliceStable(b.colors, func(i, j int) bool {
		return b.colors[i].c[channel] < b.colors[j].c[channel]
	})

	half, acc, cut := b.weight/2, 0, 1
	for i, c := range b.colors {
		acc += c.count
		if acc >= half {
			cut = i + 1
			break
		}
	}
	if cut >= len(b.colors) {
		cut = len(b.colors) - 1
	}
	return newColorBox(b.colors[:cut]), newColorBox(b.colors[cut:])
}

func (b colorBox) mean() color.NRGBA {
	var sum [4]int
	for _, c := range b.colors {
		for ch := 0; ch < 4; ch++ {
			sum[ch] += int(c.c[ch]) * c.count
		}
	}
	var out [4]uint8
	for ch := 0; ch < 4; ch++ {
		out[ch] = uint8((sum[ch] + b.weight/2) / b.weight)
	}
	return color.NRGBA{R: out[0], G: out[1], B: out[2], A: out[3]}
}

// medianCut builds a palette of at most n colors. Inputs with n or fewer
// distinct colors keep them exactly.
func medianCut(colors []weightedColor, n int) color.Palette {
	if len(colors) <= n {
		palette := make(color.Palette, len(colors))
		for i, c := range colors {
			palette[i] = color.NRGBA{R: c.c[0], G: c.c[1], B: c.c[2], A: c.c[3]}
		}
		return palette
	}

	boxes := []colorBox{newColorBox(colors)}
	for len(boxes) < n {
		pick, best := -1, 0
		for i, box := range boxes {
			if len(box.colors) < 2 {
				continue
			}
			if score := box.width * box.weight; pick < 0 || score > best {
				pick, best = i, score
			}
		}
		if pick < 0 {
			break
		}
		left, right := boxes[pick].split()
		boxes[pick] = left
		boxes = append(boxes, right)
	}

	palette := make(color.Palette, len(boxes))
	for i, box := range boxes {
		palette[i] = box.mean()
	}
	return palette
}
