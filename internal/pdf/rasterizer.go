// Package pdf implements the rasterization and page-count capabilities on
// top of MuPDF (go-fitz) and a pure-Go PDF reader.
package pdf

import (
	"context"
	"fmt"
	"image/jpeg"
	"os"
	"path/filepath"

	"github.com/gen2brain/go-fitz"
	"github.com/spherical/pdf2cbz/internal/domain"
)

// FitzRasterizer renders page ranges to JPEG files using go-fitz.
// Every call opens its own document, so one rasterizer can serve concurrent
// tasks.
type FitzRasterizer struct {
	DPI     float64
	Quality int
}

// NewFitzRasterizer creates a rasterizer rendering at dpi with the given JPEG quality.
func NewFitzRasterizer(dpi float64, quality int) *FitzRasterizer {
	return &FitzRasterizer{DPI: dpi, Quality: quality}
}

// Rasterize renders req's page range into req.OutputDir. On any failure the
// files written by this call are removed and no paths are returned.
func (r *FitzRasterizer) Rasterize(ctx context.Context, req domain.RasterRequest) (paths []string, err error) {
	doc, err := fitz.New(req.Source)
	if err != nil {
		return nil, domain.ConversionError("Failed to open PDF", err)
	}
	defer doc.Close()

	pageCount := doc.NumPage()
	if pageCount == 0 {
		return nil, domain.ValidationError("PDF has no pages", nil)
	}

	first, last := req.FirstPage, req.LastPage
	if req.Whole() {
		first, last = 1, pageCount
	}
	if first < 1 || last > pageCount || first > last {
		return nil, domain.ValidationError(
			fmt.Sprintf("page range %d-%d outside document of %d pages", first, last, pageCount), nil)
	}

	defer func() {
		if err != nil {
			for _, p := range paths {
				_ = os.Remove(p)
			}
			paths = nil
		}
	}()

	paths = make([]string, 0, last-first+1)
	for page := first; page <= last; page++ {
		if err := ctx.Err(); err != nil {
			return paths, err
		}

		img, err := doc.ImageDPI(page-1, r.DPI)
		if err != nil {
			return paths, domain.ConversionError(fmt.Sprintf("Failed to render page %d", page), err)
		}

		outputPath := filepath.Join(req.OutputDir, domain.IntermediateName(req.Token, page))
		outputFile, err := os.Create(outputPath)
		if err != nil {
			return paths, domain.IOError(fmt.Sprintf("Failed to create output file for page %d", page), err)
		}
		paths = append(paths, outputPath)

		err = jpeg.Encode(outputFile, img, &jpeg.Options{Quality: r.Quality})
		closeErr := outputFile.Close()
		if err != nil {
			return paths, domain.ConversionError(fmt.Sprintf("Failed to encode page %d as JPG", page), err)
		}
		if closeErr != nil {
			return paths, domain.IOError(fmt.Sprintf("Failed to write page %d", page), closeErr)
		}
	}

	return paths, nil
}
