package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, uint64(100), cfg.Work.LowWaterMarkMB)
	assert.Equal(t, uint64(100_000_000), cfg.LowWaterMark())
	assert.Equal(t, 3840, cfg.Transcode.MaxWidth)
	assert.Equal(t, 70, cfg.Transcode.Quality)
	assert.Equal(t, 6, cfg.Transcode.Method)
	assert.True(t, cfg.Raster.Parallel)
	assert.True(t, cfg.Transcode.Parallel)
	assert.Equal(t, ".cbz", cfg.Output.Extension)
}

func TestLoad_YAMLAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pdf2cbz.yaml")
	yamlData := `
work:
  root: /var/tmp/pdf2cbz
  low_water_mark_mb: 250
transcode:
  quality: 55
  resize: true
  task_timeout: 30s
raster:
  parallel: false
`
	require.NoError(t, os.WriteFile(path, []byte(yamlData), 0o644))
	t.Setenv("PDF2CBZ_QUALITY", "80")
	t.Setenv("PDF2CBZ_OUTPUT_DIR", "/srv/comics")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/tmp/pdf2cbz", cfg.Work.Root)
	assert.Equal(t, uint64(250), cfg.Work.LowWaterMarkMB)
	assert.Equal(t, 80, cfg.Transcode.Quality) // env wins over file
	assert.True(t, cfg.Transcode.Resize)
	assert.Equal(t, 30*time.Second, cfg.Transcode.TaskTimeout)
	assert.False(t, cfg.Raster.Parallel)
	assert.Equal(t, "/srv/comics", cfg.Output.Dir)
	assert.Equal(t, 3840, cfg.Transcode.MaxWidth) // untouched default survives
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"quality above 100", func(c *Config) { c.Transcode.Quality = 101 }},
		{"negative quality", func(c *Config) { c.Transcode.Quality = -1 }},
		{"method out of range", func(c *Config) { c.Transcode.Method = 7 }},
		{"zero max width", func(c *Config) { c.Transcode.MaxWidth = 0 }},
		{"empty work root", func(c *Config) { c.Work.Root = "" }},
		{"zero dpi", func(c *Config) { c.Raster.DPI = 0 }},
		{"extension without dot", func(c *Config) { c.Output.Extension = "cbz" }},
		{"negative workers", func(c *Config) { c.Raster.MaxWorkers = -2 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestDestinationFor(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, filepath.Join("/books", "manual.cbz"), cfg.DestinationFor("/books/manual.pdf"))

	cfg.Output.Dir = "/out"
	assert.Equal(t, filepath.Join("/out", "manual.v2.cbz"), cfg.DestinationFor("/books/manual.v2.PDF"))
}
