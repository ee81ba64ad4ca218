package pipeline

import (
	"context"
	"testing"

	"github.com/gen2brain/webp"
	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/pdf2cbz/internal/config"
	"github.com/spherical/pdf2cbz/internal/domain"
	"github.com/spherical/pdf2cbz/internal/pdf/pdftest"
)

// TestConvert_RealStack runs fitz, the WEBP encoder, gopsutil and the zip
// writer end to end on generated documents.
func TestConvert_RealStack(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping end-to-end conversion in short mode")
	}

	tests := []struct {
		name    string
		pages   int
		cores   int
		sharded bool
	}{
		{"single page stays whole", 1, 8, false},
		{"sharded document", 9, 2, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := *config.DefaultConfig()
			cfg.Work.Root = t.TempDir()
			cfg.Work.LowWaterMarkMB = 1
			cfg.Output.Dir = t.TempDir()
			cfg.Raster.DPI = 72
			cfg.Raster.JPEGQuality = 90

			cores := tt.cores
			o := New(cfg, Dependencies{Cores: func() int { return cores }}, nil)
			job := o.NewJob(pdftest.Write(t, t.TempDir(), tt.pages))

			res, err := o.Convert(context.Background(), job)
			require.NoError(t, err)
			require.True(t, res.Succeeded(), "reason: %s", res.Reason)
			assert.Equal(t, tt.sharded, res.Sharded)
			assert.Equal(t, tt.pages, res.Transcoded)

			r, err := zip.OpenReader(job.Destination)
			require.NoError(t, err)
			defer r.Close()
			require.Len(t, r.File, tt.pages)

			for i, f := range r.File {
				assert.Equal(t, domain.CompressedName(i), f.Name)
			}

			rc, err := r.File[0].Open()
			require.NoError(t, err)
			defer rc.Close()
			img, err := webp.DecodeConfig(rc)
			require.NoError(t, err)
			assert.Equal(t, 72, img.Width)
			assert.Equal(t, 72, img.Height)
		})
	}
}
