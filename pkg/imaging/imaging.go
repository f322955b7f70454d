// Package imaging turns submitted frame bytes into a normalized RGB image.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	"github.com/nfnt/resize"
)

var (
	ErrUndecodable = errors.New("image data could not be decoded")
	ErrEmptyImage  = errors.New("image has no pixels")
)

const (
	DefaultMaxDimension = 640
	// 4096x4096; the decoded RGBA buffer stays under 64 MiB
	DefaultMaxPixels = 4096 * 4096
)

// Frame is a decoded, colour-normalized image ready for landmark extraction.
type Frame struct {
	Image  *image.RGBA
	Format string
}

func (f *Frame) Width() int {
	return f.Image.Bounds().Dx()
}

func (f *Frame) Height() int {
	return f.Image.Bounds().Dy()
}

type Normalizer struct {
	maxDimension uint
	maxPixels    int
}

// NewNormalizer returns a Normalizer that downscales frames whose longest side
// exceeds maxDimension. Zero disables downscaling. Frames declaring more than
// DefaultMaxPixels are refused.
func NewNormalizer(maxDimension uint) *Normalizer {
	return NewNormalizerWithLimit(maxDimension, DefaultMaxPixels)
}

// NewNormalizerWithLimit is NewNormalizer with an explicit pixel cap. A cap
// below one falls back to DefaultMaxPixels.
func NewNormalizerWithLimit(maxDimension uint, maxPixels int) *Normalizer {
	if maxPixels < 1 {
		maxPixels = DefaultMaxPixels
	}
	return &Normalizer{maxDimension: maxDimension, maxPixels: maxPixels}
}

// Decode decodes JPEG/PNG/GIF bytes. Grayscale and alpha images are converted
// to 8-bit RGBA so every frame has the same channel layout.
func (n *Normalizer) Decode(data []byte) (*Frame, error) {
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}

	// the header is checked first so a tiny payload cannot declare a huge canvas
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, ErrEmptyImage
	}
	if int64(cfg.Width)*int64(cfg.Height) > int64(n.maxPixels) {
		return nil, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrUndecodable, cfg.Width, cfg.Height, n.maxPixels)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}

	bounds := img.Bounds()
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		return nil, ErrEmptyImage
	}

	if n.maxDimension > 0 && (uint(bounds.Dx()) > n.maxDimension || uint(bounds.Dy()) > n.maxDimension) {
		img = resize.Thumbnail(n.maxDimension, n.maxDimension, img, resize.Bilinear)
	}

	return &Frame{Image: toRGBA(img), Format: format}, nil
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Bounds().Min == (image.Point{}) {
		return rgba
	}

	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	return rgba
}

// EncodeJPEG re-encodes a frame for transport to the landmark service.
func EncodeJPEG(frame *Frame, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, frame.Image, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
