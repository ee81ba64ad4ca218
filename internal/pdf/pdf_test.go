package pdf

import (
	"context"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/pdf2cbz/internal/domain"
	"github.com/spherical/pdf2cbz/internal/pdf/pdftest"
)

func writeTestPDF(t *testing.T, dir string, pages int) string {
	return pdftest.Write(t, dir, pages)
}

func TestPageCounter(t *testing.T) {
	dir := t.TempDir()
	counter := NewPageCounter()
	ctx := context.Background()

	n, ok := counter.PageCount(ctx, writeTestPDF(t, dir, 7))
	assert.True(t, ok)
	assert.Equal(t, 7, n)

	_, ok = counter.PageCount(ctx, filepath.Join(dir, "missing.pdf"))
	assert.False(t, ok)

	garbage := filepath.Join(dir, "garbage.pdf")
	require.NoError(t, os.WriteFile(garbage, []byte("not a pdf at all"), 0o644))
	_, ok = counter.PageCount(ctx, garbage)
	assert.False(t, ok)
}

func TestFitzRasterizer_Range(t *testing.T) {
	dir := t.TempDir()
	src := writeTestPDF(t, dir, 5)
	out := t.TempDir()

	r := NewFitzRasterizer(72, 90)
	paths, err := r.Rasterize(context.Background(), domain.RasterRequest{
		Source: src, OutputDir: out, FirstPage: 2, LastPage: 4, Token: "b",
	})
	require.NoError(t, err)

	require.Equal(t, []string{
		filepath.Join(out, "b00002.jpg"),
		filepath.Join(out, "b00003.jpg"),
		filepath.Join(out, "b00004.jpg"),
	}, paths)

	f, err := os.Open(paths[0])
	require.NoError(t, err)
	defer f.Close()
	cfg, err := jpeg.DecodeConfig(f)
	require.NoError(t, err)
	assert.Equal(t, 72, cfg.Width)
}

func TestFitzRasterizer_WholeDocument(t *testing.T) {
	src := writeTestPDF(t, t.TempDir(), 3)
	out := t.TempDir()

	paths, err := NewFitzRasterizer(36, 80).Rasterize(context.Background(), domain.RasterRequest{
		Source: src, OutputDir: out, Token: domain.WholeDocumentToken,
	})
	require.NoError(t, err)
	assert.Len(t, paths, 3)
	assert.Equal(t, "p00001.jpg", filepath.Base(paths[0]))
}

func TestFitzRasterizer_Failures(t *testing.T) {
	dir := t.TempDir()
	src := writeTestPDF(t, dir, 2)
	garbage := filepath.Join(dir, "broken.pdf")
	require.NoError(t, os.WriteFile(garbage, []byte("%PDF-1.4 truncated"), 0o644))

	tests := []struct {
		name string
		req  domain.RasterRequest
	}{
		{"corrupt source", domain.RasterRequest{Source: garbage}},
		{"missing source", domain.RasterRequest{Source: filepath.Join(dir, "none.pdf")}},
		{"range past end", domain.RasterRequest{Source: src, FirstPage: 2, LastPage: 5, Token: "a"}},
		{"inverted range", domain.RasterRequest{Source: src, FirstPage: 2, LastPage: 1, Token: "a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := t.TempDir()
			tt.req.OutputDir = out

			paths, err := NewFitzRasterizer(36, 80).Rasterize(context.Background(), tt.req)
			assert.Error(t, err)
			assert.Empty(t, paths)

			entries, _ := os.ReadDir(out)
			assert.Empty(t, entries, "no partial output may remain")
		})
	}
}

func TestFitzRasterizer_Cancelled(t *testing.T) {
	src := writeTestPDF(t, t.TempDir(), 4)
	out := t.TempDir()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	paths, err := NewFitzRasterizer(36, 80).Rasterize(ctx, domain.RasterRequest{Source: src, OutputDir: out, Token: "a"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, paths)
}

func TestValidator(t *testing.T) {
	dir := t.TempDir()
	v := NewValidator()

	assert.NoError(t, v.ValidatePDFPath(writeTestPDF(t, dir, 1)))

	txt := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(txt, []byte("x"), 0o644))
	empty := filepath.Join(dir, "empty.pdf")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))

	for _, p := range []string{"", "   ", filepath.Join(dir, "nope.pdf"), dir, txt, empty} {
		err := v.ValidatePDFPath(p)
		assert.Error(t, err, p)
		assert.True(t, domain.IsType(err, domain.ErrorTypeValidation), p)
	}

	assert.NoError(t, v.ValidateQuality(0))
	assert.NoError(t, v.ValidateQuality(100))
	assert.Error(t, v.ValidateQuality(101))
}
