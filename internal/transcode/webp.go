// Package transcode converts intermediate page images into compressed WEBP
// files, serially or in parallel.
package transcode

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"os"

	"github.com/gen2brain/webp"
	"golang.org/x/image/draw"

	"github.com/spherical/pdf2cbz/internal/domain"
)

const (
	// DefaultMaxWidth is the width oversized pages are shrunk to when resizing is on.
	DefaultMaxWidth = 3840
	// DefaultMethod is the encoder effort; 6 is the slowest and smallest.
	DefaultMethod = 6
)

// WebP is the default transcode capability.
type WebP struct {
	MaxWidth int
	Method   int
}

// NewWebP creates a WEBP transcoder.
func NewWebP(maxWidth, method int) *WebP {
	if maxWidth <= 0 {
		maxWidth = DefaultMaxWidth
	}
	return &WebP{MaxWidth: maxWidth, Method: method}
}

// Transcode decodes task.Source, optionally downscales it and writes
// task.Dest as WEBP.
func (w *WebP) Transcode(ctx context.Context, task domain.TranscodeTask) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if task.Quality < 0 || task.Quality > 100 {
		return "", domain.ValidationError(fmt.Sprintf("quality must be between 0 and 100, got %d", task.Quality), nil)
	}

	img, err := decode(task.Source)
	if err != nil {
		return "", err
	}

	if task.Resize {
		img = Downscale(img, w.MaxWidth)
	}

	out, err := os.Create(task.Dest)
	if err != nil {
		return "", domain.IOError("Failed to create output file", err)
	}

	err = webp.Encode(out, img, webp.Options{Quality: task.Quality, Method: w.Method})
	closeErr := out.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(task.Dest)
		return "", domain.ConversionError(fmt.Sprintf("Failed to encode %s", task.Dest), err)
	}

	return task.Dest, nil
}

func decode(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, domain.IOError("Failed to open source image", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, domain.ConversionError(fmt.Sprintf("Failed to decode %s", path), err)
	}
	return img, nil
}

// Downscale shrinks img proportionally so its width equals maxWidth. Images
// that are not wider than maxWidth are returned unchanged.
func Downscale(img image.Image, maxWidth int) image.Image {
	b := img.Bounds()
	if maxWidth <= 0 || b.Dx() <= maxWidth {
		return img
	}

	height := int(math.Round(float64(b.Dy()) * float64(maxWidth) / float64(b.Dx())))
	if height < 1 {
		height = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, maxWidth, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}
