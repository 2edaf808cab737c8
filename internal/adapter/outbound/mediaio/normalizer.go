package mediaio

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"math"
	"strconv"
	"strings"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/canvasflow/server/internal/model"
	"github.com/canvasflow/server/internal/port/outbound"
)

const jpegQuality = 92

// resolutionHeights maps resolution labels to the short side in pixels.
var resolutionHeights = map[string]int{
	"480p":  480,
	"512p":  512,
	"720p":  720,
	"768p":  768,
	"1080p": 1080,
	"1k":    1024,
	"2k":    2048,
	"4k":    2160,
}

// Normalizer implements MediaNormalizerPort with a center crop and a Catmull-Rom resample.
type Normalizer struct{}

// NewNormalizer creates a normalizer.
func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

// Normalize crops data to aspectRatio and scales it so the short side matches resolution.
// An Auto aspect ratio keeps the source ratio; an Auto resolution keeps the cropped size.
func (n *Normalizer) Normalize(ctx context.Context, data []byte, aspectRatio, resolution string) (*model.NormalizedMedia, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, model.InvalidMedia("decode image: %v", err)
	}
	bounds := src.Bounds()
	if bounds.Dx() < 2 || bounds.Dy() < 2 {
		return nil, model.InvalidMedia("image is %dx%d", bounds.Dx(), bounds.Dy())
	}

	ratio, ok := ParseAspectRatio(aspectRatio)
	if !ok {
		ratio = float64(bounds.Dx()) / float64(bounds.Dy())
	}
	crop := centerCrop(bounds, ratio)
	w, h := targetSize(crop, ratio, ResolutionHeight(resolution))

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, crop, draw.Src, nil)

	var buf bytes.Buffer
	mime := "image/jpeg"
	if hasAlpha(src) {
		mime = "image/png"
		err = png.Encode(&buf, dst)
	} else {
		err = jpeg.Encode(&buf, dst, &jpeg.Options{Quality: jpegQuality})
	}
	if err != nil {
		return nil, fmt.Errorf("encode %s from %s: %w", mime, format, err)
	}

	return &model.NormalizedMedia{
		Data:     buf.Bytes(),
		MimeType: mime,
		Width:    w,
		Height:   h,
	}, nil
}

// ParseAspectRatio parses "W:H". Auto and malformed values report false.
func ParseAspectRatio(s string) (float64, bool) {
	if model.IsAuto(s) {
		return 0, false
	}
	ws, hs, ok := strings.Cut(s, ":")
	if !ok {
		return 0, false
	}
	w, err1 := strconv.ParseFloat(strings.TrimSpace(ws), 64)
	h, err2 := strconv.ParseFloat(strings.TrimSpace(hs), 64)
	if err1 != nil || err2 != nil || w <= 0 || h <= 0 {
		return 0, false
	}
	return w / h, true
}

// ResolutionHeight returns the short side for a resolution label, or 0 when unknown.
func ResolutionHeight(s string) int {
	return resolutionHeights[strings.ToLower(strings.TrimSpace(s))]
}

func centerCrop(b image.Rectangle, ratio float64) image.Rectangle {
	w, h := b.Dx(), b.Dy()
	if float64(w)/float64(h) > ratio {
		cw := int(math.Round(float64(h) * ratio))
		x0 := b.Min.X + (w-cw)/2
		return image.Rect(x0, b.Min.Y, x0+cw, b.Max.Y)
	}
	ch := int(math.Round(float64(w) / ratio))
	y0 := b.Min.Y + (h-ch)/2
	return image.Rect(b.Min.X, y0, b.Max.X, y0+ch)
}

func targetSize(crop image.Rectangle, ratio float64, short int) (int, int) {
	if short <= 0 {
		short = min(crop.Dx(), crop.Dy())
	}
	var w, h int
	if ratio >= 1 {
		h = short
		w = int(math.Round(float64(short) * ratio))
	} else {
		w = short
		h = int(math.Round(float64(short) / ratio))
	}
	return even(w), even(h)
}

func even(v int) int {
	v &^= 1
	if v < 2 {
		return 2
	}
	return v
}

func hasAlpha(img image.Image) bool {
	if o, ok := img.(interface{ Opaque() bool }); ok {
		return !o.Opaque()
	}
	return false
}

// Compile-time interface check
var _ outbound.MediaNormalizerPort = (*Normalizer)(nil)
