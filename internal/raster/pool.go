// Package raster runs rasterization tasks in parallel, one per shard, and
// merges their output back into a single page-ordered sequence.
package raster

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/spherical/pdf2cbz/internal/diskspace"
	"github.com/spherical/pdf2cbz/internal/domain"
	"github.com/spherical/pdf2cbz/internal/observability"
	"github.com/spherical/pdf2cbz/internal/shard"
)

// Config holds raster pool settings.
type Config struct {
	LowWaterMark uint64 // bytes that must stay free on the working volume
	MaxWorkers   int    // 0 = one worker per task

	// TaskTimeout bounds each task through its context (0 = none). The
	// rasterizer checks the context between pages, so a single stalled page
	// render is not interrupted.
	TaskTimeout time.Duration
}

// Result is the outcome of a raster stage.
//
// Images is nil when the stage produced nothing usable; Err is set only for
// the fatal low-water-mark abort or parent cancellation. Cause explains an
// empty result that is not fatal.
type Result struct {
	Images []domain.IntermediateImage
	Err    error
	Cause  error
}

// Pool is the raster worker pool.
type Pool struct {
	rasterizer domain.Rasterizer
	space      diskspace.Checker
	cfg        Config
	logger     *observability.Logger
}

// NewPool creates a raster pool.
func NewPool(rasterizer domain.Rasterizer, space diskspace.Checker, cfg Config, logger *observability.Logger) *Pool {
	if logger == nil {
		logger = observability.Nop()
	}
	return &Pool{
		rasterizer: rasterizer,
		space:      space,
		cfg:        cfg,
		logger:     logger.WithOperation("raster"),
	}
}

// Run rasterizes source into outputDir, one task per shard, or as a single
// whole-document task when shards is empty.
//
// After each task the working volume is checked; dropping under the
// low-water mark cancels the remaining tasks and fails the stage with
// domain.ErrInsufficientSpace. If any task fails, the output of the whole
// stage is discarded so that a caller never consumes a document with holes.
func (p *Pool) Run(ctx context.Context, source, outputDir string, shards []shard.Shard) Result {
	reqs := requests(source, outputDir, shards)

	limit := p.cfg.MaxWorkers
	if limit <= 0 {
		limit = len(reqs)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	outputs := make([][]string, len(reqs))
	for i, req := range reqs {
		g.Go(func() error {
			start := time.Now()
			paths, err := p.rasterize(gctx, req)
			outputs[i] = paths

			if p.space.Admit(outputDir, p.cfg.LowWaterMark) == diskspace.Rejected {
				p.logger.Warn().
					Str("token", req.Token).
					Uint64("low_water_mark", p.cfg.LowWaterMark).
					Msg("Working volume below low-water mark, aborting raster stage")
				return domain.ErrInsufficientSpace
			}

			if err != nil {
				return fmt.Errorf("raster task %s (pages %d-%d): %w", req.Token, req.FirstPage, req.LastPage, err)
			}

			p.logger.Debug().
				Str("token", req.Token).
				Int("pages", len(paths)).
				Dur("took", time.Since(start)).
				Msg("Raster task complete")
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		discard(outputs)

		switch {
		case errors.Is(err, domain.ErrInsufficientSpace):
			return Result{Err: domain.ErrInsufficientSpace}
		case ctx.Err() != nil:
			return Result{Err: ctx.Err()}
		default:
			p.logger.Warn().Err(err).Msg("Raster stage produced no usable output")
			return Result{Cause: err}
		}
	}

	images, err := merge(outputs)
	if err != nil {
		discard(outputs)
		return Result{Cause: err}
	}
	if len(images) == 0 {
		return Result{Cause: errors.New("rasterizer produced no images")}
	}
	return Result{Images: images}
}

func (p *Pool) rasterize(ctx context.Context, req domain.RasterRequest) ([]string, error) {
	if p.cfg.TaskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.TaskTimeout)
		defer cancel()
	}
	return p.rasterizer.Rasterize(ctx, req)
}

func requests(source, outputDir string, shards []shard.Shard) []domain.RasterRequest {
	if len(shards) == 0 {
		return []domain.RasterRequest{{
			Source:    source,
			OutputDir: outputDir,
			Token:     domain.WholeDocumentToken,
		}}
	}

	reqs := make([]domain.RasterRequest, 0, len(shards))
	for _, s := range shards {
		reqs = append(reqs, domain.RasterRequest{
			Source:    source,
			OutputDir: outputDir,
			FirstPage: s.First(),
			LastPage:  s.Last(),
			Token:     s.Key.Token(),
		})
	}
	return reqs
}

// merge flattens per-task outputs and restores global page order regardless
// of the order in which tasks finished. Sequence numbers are assigned only
// after ordering.
func merge(outputs [][]string) ([]domain.IntermediateImage, error) {
	var images []domain.IntermediateImage
	for _, paths := range outputs {
		for _, path := range paths {
			token, page, ok := domain.ParseIntermediate(path)
			if !ok {
				return nil, fmt.Errorf("unexpected intermediate file name %q", path)
			}
			images = append(images, domain.IntermediateImage{Path: path, Page: page, Token: token})
		}
	}

	sort.Slice(images, func(i, j int) bool {
		if images[i].Page != images[j].Page {
			return images[i].Page < images[j].Page
		}
		return images[i].Path < images[j].Path
	})
	for i := range images {
		images[i].Sequence = i
	}
	return images, nil
}

func discard(outputs [][]string) {
	for _, paths := range outputs {
		for _, path := range paths {
			_ = os.Remove(path)
		}
	}
}
