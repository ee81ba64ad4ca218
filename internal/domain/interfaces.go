package domain

import "context"

// RasterRequest is one rasterization task. FirstPage and LastPage are
// inclusive and 1-based; both zero means the whole document.
type RasterRequest struct {
	Source    string
	OutputDir string
	FirstPage int
	LastPage  int
	Token     string // filename prefix, unique per task
}

// Whole reports whether the request covers the whole document.
func (r RasterRequest) Whole() bool {
	return r.FirstPage == 0 && r.LastPage == 0
}

// Rasterizer renders document pages into image files.
type Rasterizer interface {
	// Rasterize returns the produced file paths, orderable by file name. A
	// corrupt source or a missing page range yields an error and no paths.
	Rasterize(ctx context.Context, req RasterRequest) ([]string, error)
}

// TranscodeTask converts one intermediate image into the target format.
type TranscodeTask struct {
	Source  string
	Dest    string
	Quality int // 0..100
	Resize  bool
}

// Transcoder encodes images into the compressed target format.
type Transcoder interface {
	// Transcode writes task.Dest and returns its path.
	Transcode(ctx context.Context, task TranscodeTask) (string, error)
}

// PageCounter queries a document's page count. ok is false when the count is
// unavailable.
type PageCounter interface {
	PageCount(ctx context.Context, path string) (pages int, ok bool)
}

// EventSink receives stage transitions. Implementations must not block the
// pipeline for long.
type EventSink interface {
	Emit(ctx context.Context, event StageEvent)
}

// HistoryRecorder stores the outcome of finished jobs.
type HistoryRecorder interface {
	Record(ctx context.Context, result *Result) error
}
