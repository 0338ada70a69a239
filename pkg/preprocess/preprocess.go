package preprocess

import (
	"VisionProxy/internal/entity"
	"VisionProxy/pkg/normalizer"
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const (
	DefaultMaxDimension = 2048
	DefaultQuality      = 80
	DefaultCropPadding  = 0.05
	cropQuality         = 90

	// MaxPixels caps width*height before the full decode allocates the bitmap.
	MaxPixels = 50_000_000
)

var (
	ErrInvalidImage = errors.New("image could not be decoded")
	ErrInvalidBox   = errors.New("crop box is empty")
)

type Result struct {
	Data           []byte
	Format         string
	Width          int
	Height         int
	OriginalWidth  int
	OriginalHeight int
}

type IPreprocessor interface {
	Prepare(data []byte) (*Result, error)
	Crop(data []byte, box entity.Box, padding float64) ([]byte, error)
}

type preprocessor struct {
	maxDimension int
	quality      int
}

func New(maxDimension, quality int) IPreprocessor {
	if maxDimension <= 0 {
		maxDimension = DefaultMaxDimension
	}
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}

	return &preprocessor{
		maxDimension: maxDimension,
		quality:      quality,
	}
}

// Prepare decodes the upload, shrinks it so neither side exceeds the maximum
// dimension and re-encodes it as JPEG. Smaller images are never enlarged.
func (p *preprocessor) Prepare(data []byte) (*Result, error) {
	img, format, err := decode(data)
	if err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	result := &Result{
		Format:         format,
		OriginalWidth:  bounds.Dx(),
		OriginalHeight: bounds.Dy(),
	}

	if bounds.Dx() > p.maxDimension || bounds.Dy() > p.maxDimension {
		if bounds.Dx() >= bounds.Dy() {
			img = imaging.Resize(img, p.maxDimension, 0, imaging.Lanczos)
		} else {
			img = imaging.Resize(img, 0, p.maxDimension, imaging.Lanczos)
		}
	}

	encoded, err := encodeJPEG(img, p.quality)
	if err != nil {
		return nil, err
	}

	result.Data = encoded
	result.Width = img.Bounds().Dx()
	result.Height = img.Bounds().Dy()

	return result, nil
}

// Crop cuts the region described by box, [ymin, xmin, ymax, xmax] on either a
// unit or a 0-1000 scale, out of the image. Padding is a fraction of the box
// size added on every side and clipped to the image.
func (p *preprocessor) Crop(data []byte, box entity.Box, padding float64) ([]byte, error) {
	img, _, err := decode(data)
	if err != nil {
		return nil, err
	}
	if padding < 0 {
		padding = 0
	}

	box = normalizer.NormalizeBox(box)
	bounds := img.Bounds()
	width, height := float64(bounds.Dx()), float64(bounds.Dy())

	left := int(box.XMin * width)
	top := int(box.YMin * height)
	right := int(box.XMax * width)
	bottom := int(box.YMax * height)

	padW := int(float64(right-left) * padding)
	padH := int(float64(bottom-top) * padding)

	rect := image.Rect(
		bounds.Min.X+left-padW,
		bounds.Min.Y+top-padH,
		bounds.Min.X+right+padW,
		bounds.Min.Y+bottom+padH,
	).Intersect(bounds)
	if rect.Empty() {
		return nil, ErrInvalidBox
	}

	return encodeJPEG(imaging.Crop(img, rect), cropQuality)
}

func decode(data []byte) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", ErrInvalidImage
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if pixels := int64(cfg.Width) * int64(cfg.Height); pixels > MaxPixels {
		return nil, "", fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrInvalidImage, cfg.Width, cfg.Height, MaxPixels)
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	return img, format, nil
}

// encodeJPEG flattens transparency onto white first; JPEG has no alpha channel.
func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	bounds := img.Bounds()
	flat := imaging.New(bounds.Dx(), bounds.Dy(), color.White)
	flat = imaging.Overlay(flat, img, image.Pt(0, 0), 1.0)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, flat, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}

	return buf.Bytes(), nil
}
