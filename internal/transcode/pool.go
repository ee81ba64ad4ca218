package transcode

import (
	"context"
	"os"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/spherical/pdf2cbz/internal/domain"
	"github.com/spherical/pdf2cbz/internal/observability"
)

// Config holds transcode pool settings.
type Config struct {
	Parallel   bool
	MaxWorkers int // 0 = logical CPUs

	// TaskTimeout bounds each task through its context (0 = none). The
	// encoder checks it before encoding; an encode already running finishes.
	TaskTimeout time.Duration
}

// Report summarizes a transcode stage.
type Report struct {
	Succeeded int
	Failed    int
	Outputs   []domain.CompressedImage // in task order
}

// Pool is the transcode worker pool.
type Pool struct {
	transcoder domain.Transcoder
	cfg        Config
	logger     *observability.Logger
}

// NewPool creates a transcode pool.
func NewPool(transcoder domain.Transcoder, cfg Config, logger *observability.Logger) *Pool {
	if logger == nil {
		logger = observability.Nop()
	}
	return &Pool{
		transcoder: transcoder,
		cfg:        cfg,
		logger:     logger.WithOperation("transcode"),
	}
}

// Run transcodes every task. A failing task never stops its siblings.
// A task's source is deleted only once its destination exists and is
// non-empty; a failed task leaves its source in place.
func (p *Pool) Run(ctx context.Context, tasks []domain.TranscodeTask) Report {
	results := make([]*domain.CompressedImage, len(tasks))

	if p.cfg.Parallel {
		p.runParallel(ctx, tasks, results)
	} else {
		for i, task := range tasks {
			results[i] = p.runOne(ctx, task)
		}
	}

	var report Report
	for _, r := range results {
		if r == nil {
			report.Failed++
			continue
		}
		report.Succeeded++
		report.Outputs = append(report.Outputs, *r)
	}
	return report
}

func (p *Pool) runParallel(ctx context.Context, tasks []domain.TranscodeTask, results []*domain.CompressedImage) {
	limit := p.cfg.MaxWorkers
	if limit <= 0 {
		limit = runtime.NumCPU()
	}

	// Plain errgroup without a derived context: one failure must not cancel the rest.
	var g errgroup.Group
	g.SetLimit(limit)

	var mu sync.Mutex
	for i, task := range tasks {
		g.Go(func() error {
			r := p.runOne(ctx, task)
			mu.Lock()
			results[i] = r
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
}

func (p *Pool) runOne(ctx context.Context, task domain.TranscodeTask) *domain.CompressedImage {
	if p.cfg.TaskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.TaskTimeout)
		defer cancel()
	}

	// Failed output never stays in the pack directory, or the assembler
	// would count it as a page.
	dest, err := p.transcoder.Transcode(ctx, task)
	if err != nil {
		p.logger.Warn().Err(err).Str("source", task.Source).Msg("Transcode failed")
		discard(task.Dest)
		return nil
	}

	info, err := os.Stat(dest)
	if err != nil || info.Size() == 0 {
		p.logger.Warn().Err(err).Str("dest", dest).Msg("Transcode output missing or empty, keeping source")
		discard(dest)
		return nil
	}

	if err := os.Remove(task.Source); err != nil && !os.IsNotExist(err) {
		p.logger.Warn().Err(err).Str("source", task.Source).Msg("Failed to remove intermediate image")
	}

	return &domain.CompressedImage{Path: dest, Size: info.Size()}
}

func discard(path string) {
	if path != "" {
		_ = os.Remove(path)
	}
}
