// Package pipeline sequences one document conversion: shard planning,
// rasterization, transcoding and archive assembly, inside a working tree the
// job owns for its lifetime.
package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/spherical/pdf2cbz/internal/archive"
	"github.com/spherical/pdf2cbz/internal/config"
	"github.com/spherical/pdf2cbz/internal/diskspace"
	"github.com/spherical/pdf2cbz/internal/domain"
	"github.com/spherical/pdf2cbz/internal/events"
	"github.com/spherical/pdf2cbz/internal/observability"
	"github.com/spherical/pdf2cbz/internal/pdf"
	"github.com/spherical/pdf2cbz/internal/raster"
	"github.com/spherical/pdf2cbz/internal/shard"
	"github.com/spherical/pdf2cbz/internal/transcode"
)

// SourceValidator rejects sources that cannot be converted.
type SourceValidator interface {
	ValidatePDFPath(path string) error
}

// Dependencies are the capabilities an Orchestrator drives. Nil fields get
// the production implementation.
type Dependencies struct {
	Rasterizer  domain.Rasterizer
	Transcoder  domain.Transcoder
	PageCounter domain.PageCounter
	Space       diskspace.Checker
	Validator   SourceValidator
	Events      domain.EventSink
	History     domain.HistoryRecorder // optional
	Cores       func() int
	Pack        archive.PackFunc
}

// Orchestrator is the PipelineOrchestrator. It is safe to run several
// conversions at once; each gets its own working tree.
type Orchestrator struct {
	cfg       config.Config
	pages     domain.PageCounter
	space     diskspace.Checker
	validator SourceValidator
	events    domain.EventSink
	history   domain.HistoryRecorder
	cores     func() int
	raster    *raster.Pool
	transcode *transcode.Pool
	assembler *archive.Assembler
	logger    *observability.Logger
}

// New creates an orchestrator. cfg is copied; later changes to the caller's
// value do not affect running jobs.
func New(cfg config.Config, deps Dependencies, logger *observability.Logger) *Orchestrator {
	if logger == nil {
		logger = observability.Nop()
	}
	if deps.Rasterizer == nil {
		deps.Rasterizer = pdf.NewFitzRasterizer(cfg.Raster.DPI, cfg.Raster.JPEGQuality)
	}
	if deps.Transcoder == nil {
		deps.Transcoder = transcode.NewWebP(cfg.Transcode.MaxWidth, cfg.Transcode.Method)
	}
	if deps.PageCounter == nil {
		deps.PageCounter = pdf.NewPageCounter()
	}
	if deps.Space == nil {
		deps.Space = diskspace.NewGuard()
	}
	if deps.Validator == nil {
		deps.Validator = pdf.NewValidator()
	}
	if deps.Events == nil {
		deps.Events = events.Discard{}
	}
	if deps.Cores == nil {
		deps.Cores = shard.CoreCount
	}
	if deps.Pack == nil {
		deps.Pack = archive.Zip
	}

	return &Orchestrator{
		cfg:       cfg,
		pages:     deps.PageCounter,
		space:     deps.Space,
		validator: deps.Validator,
		events:    deps.Events,
		history:   deps.History,
		cores:     deps.Cores,
		raster: raster.NewPool(deps.Rasterizer, deps.Space, raster.Config{
			LowWaterMark: cfg.LowWaterMark(),
			MaxWorkers:   cfg.Raster.MaxWorkers,
			TaskTimeout:  cfg.Raster.TaskTimeout,
		}, logger),
		transcode: transcode.NewPool(deps.Transcoder, transcode.Config{
			Parallel:    cfg.Transcode.Parallel,
			MaxWorkers:  cfg.Transcode.MaxWorkers,
			TaskTimeout: cfg.Transcode.TaskTimeout,
		}, logger),
		assembler: archive.NewAssemblerWith(deps.Pack, logger),
		logger:    logger.WithOperation("pipeline"),
	}
}

// NewJob builds a job for source using the configured destination layout.
func (o *Orchestrator) NewJob(source string) domain.Job {
	return domain.Job{
		ID:          uuid.New(),
		Source:      source,
		Destination: o.cfg.DestinationFor(source),
	}
}

// Convert runs one job to completion. Expected failures (bad input, full
// disks, broken archives) come back as a failed Result with a Reason; the
// error is reserved for conditions the pipeline cannot describe that way.
// The working tree is removed before Convert returns, whatever the outcome.
func (o *Orchestrator) Convert(ctx context.Context, job domain.Job) (*domain.Result, error) {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.Destination == "" {
		job.Destination = o.cfg.DestinationFor(job.Source)
	}

	ctx = observability.ContextWithJobID(ctx, job.ID.String())
	log := o.logger.WithJob(job.ID.String())

	res := &domain.Result{
		JobID:       job.ID,
		Source:      job.Source,
		Destination: job.Destination,
		StartedAt:   time.Now(),
	}

	if err := o.validator.ValidatePDFPath(job.Source); err != nil {
		log.Warn().Err(err).Str("source", job.Source).Msg("Rejecting source")
		return o.finish(ctx, job, res, domain.ReasonInvalidSource), nil
	}

	fp, err := Fingerprint(job.Source, o.cfg.Transcode.Quality, o.cfg.Transcode.Resize)
	if err != nil {
		log.Warn().Err(err).Str("source", job.Source).Msg("Cannot read source")
		return o.finish(ctx, job, res, domain.ReasonInvalidSource), nil
	}
	res.Fingerprint = fp

	if err := os.MkdirAll(o.cfg.Work.Root, 0o755); err != nil {
		return nil, domain.IOError("Failed to create work root", err)
	}
	ws, err := newWorkspace(o.cfg.Work.Root, fp, job.ID)
	if err != nil {
		return nil, domain.IOError("Failed to create working tree", err)
	}
	defer func() {
		if err := os.RemoveAll(ws.Root); err != nil {
			log.Warn().Err(err).Str("path", ws.Root).Msg("Failed to remove working tree")
		}
	}()

	log.Info().
		Str("source", job.Source).
		Str("destination", job.Destination).
		Str("workspace", ws.Root).
		Msg("Starting conversion")

	o.emit(ctx, job, domain.StageExtracting, "")
	images, reason := o.rasterize(ctx, job, ws, res)
	if reason != "" {
		return o.finish(ctx, job, res, reason), nil
	}
	res.Pages = len(images)

	o.emit(ctx, job, domain.StageConverting, "")
	packed, reason := o.transcodeAll(ctx, images, ws)
	if reason != "" {
		return o.finish(ctx, job, res, reason), nil
	}
	res.Transcoded = len(packed)

	if reason := o.admitDestination(job.Destination, packed); reason != "" {
		return o.finish(ctx, job, res, reason), nil
	}

	o.emit(ctx, job, domain.StageRecompressing, "")
	assembled := o.assembler.Assemble(ctx, ws.PackDir, job.Destination)
	if !assembled.OK() {
		if ctx.Err() != nil {
			return o.finish(ctx, job, res, domain.ReasonCancelled), nil
		}
		return o.finish(ctx, job, res, assembled.Reason), nil
	}

	if o.cfg.Output.DeleteSource {
		if err := os.Remove(job.Source); err != nil {
			log.Warn().Err(err).Str("source", job.Source).Msg("Failed to delete source")
		}
	}

	return o.finish(ctx, job, res, ""), nil
}

// rasterize plans shards, runs the raster pool and falls back to one
// whole-document task when a sharded run yields nothing.
func (o *Orchestrator) rasterize(ctx context.Context, job domain.Job, ws domain.Workspace, res *domain.Result) ([]domain.IntermediateImage, domain.Reason) {
	log := o.logger.WithContext(ctx)

	if o.space.Admit(ws.RasterDir, o.cfg.LowWaterMark()) == diskspace.Rejected {
		log.Warn().Uint64("low_water_mark", o.cfg.LowWaterMark()).Msg("Working volume below low-water mark before raster")
		return nil, domain.ReasonInsufficientSpace
	}

	var shards []shard.Shard
	if o.cfg.Raster.Parallel {
		if pages, ok := o.pages.PageCount(ctx, job.Source); ok {
			shards, res.Sharded = shard.Plan(pages, o.cores())
			log.Debug().Int("pages", pages).Int("shards", len(shards)).Msg("Planned shards")
		} else {
			log.Debug().Msg("Page count unavailable, rasterizing unsharded")
		}
	}

	out := o.raster.Run(ctx, job.Source, ws.RasterDir, shards)
	if out.Err != nil {
		return nil, reasonFor(out.Err)
	}

	if len(out.Images) == 0 && len(shards) > 0 {
		log.Warn().Err(out.Cause).Msg("Sharded raster produced nothing, retrying whole document")
		res.Sharded = false
		out = o.raster.Run(ctx, job.Source, ws.RasterDir, nil)
		if out.Err != nil {
			return nil, reasonFor(out.Err)
		}
	}

	if len(out.Images) == 0 {
		log.Error().Err(out.Cause).Msg("No pages rasterized")
		return nil, domain.ReasonNoPages
	}
	return out.Images, ""
}

// transcodeAll converts every intermediate image into the pack directory,
// naming each output by its sequence number.
func (o *Orchestrator) transcodeAll(ctx context.Context, images []domain.IntermediateImage, ws domain.Workspace) ([]domain.CompressedImage, domain.Reason) {
	tasks := make([]domain.TranscodeTask, len(images))
	for i, img := range images {
		tasks[i] = domain.TranscodeTask{
			Source:  img.Path,
			Dest:    filepath.Join(ws.PackDir, domain.CompressedName(img.Sequence)),
			Quality: o.cfg.Transcode.Quality,
			Resize:  o.cfg.Transcode.Resize,
		}
	}

	report := o.transcode.Run(ctx, tasks)
	if ctx.Err() != nil {
		return nil, domain.ReasonCancelled
	}

	o.logger.WithContext(ctx).Info().
		Int("succeeded", report.Succeeded).
		Int("failed", report.Failed).
		Msg("Transcode stage complete")

	if report.Succeeded == 0 {
		return nil, domain.ReasonNoImages
	}
	return report.Outputs, ""
}

// admitDestination checks that the destination volume can hold the packed
// images. An unavailable reading skips the check.
func (o *Orchestrator) admitDestination(dest string, packed []domain.CompressedImage) domain.Reason {
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		o.logger.Error().Err(err).Str("dir", dir).Msg("Failed to create destination directory")
		return domain.ReasonWriteError
	}

	var need uint64
	for _, c := range packed {
		need += uint64(c.Size)
	}

	if o.space.Admit(dir, need) == diskspace.Rejected {
		o.logger.Warn().Uint64("needed", need).Str("dir", dir).Msg("Destination volume too full")
		return domain.ReasonDestinationFull
	}
	return ""
}

func (o *Orchestrator) finish(ctx context.Context, job domain.Job, res *domain.Result, reason domain.Reason) *domain.Result {
	res.CompletedAt = time.Now()
	res.Duration = res.CompletedAt.Sub(res.StartedAt)

	log := o.logger.WithJob(job.ID.String())
	if reason == "" {
		res.Status = domain.StatusSucceeded
		o.emit(ctx, job, domain.StageDone, "")
		log.Info().
			Str("destination", res.Destination).
			Int("pages", res.Pages).
			Bool("sharded", res.Sharded).
			Dur("took", res.Duration).
			Msg("Conversion complete")
	} else {
		res.Status = domain.StatusFailed
		res.Reason = reason
		o.emit(ctx, job, domain.StageFailed, reason)
		log.Warn().
			Str("source", res.Source).
			Str("reason", string(reason)).
			Dur("took", res.Duration).
			Msg("Conversion failed")
	}

	if o.history != nil {
		// Recorded even when ctx is already cancelled.
		if err := o.history.Record(context.WithoutCancel(ctx), res); err != nil {
			log.Warn().Err(err).Msg("Failed to record conversion")
		}
	}
	return res
}

func (o *Orchestrator) emit(ctx context.Context, job domain.Job, stage domain.Stage, reason domain.Reason) {
	o.events.Emit(ctx, domain.StageEvent{
		JobID:     job.ID,
		Source:    job.Source,
		Stage:     stage,
		Reason:    reason,
		Timestamp: time.Now(),
	})
}

func reasonFor(err error) domain.Reason {
	switch {
	case errors.Is(err, domain.ErrInsufficientSpace):
		return domain.ReasonInsufficientSpace
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return domain.ReasonCancelled
	default:
		return domain.ReasonNoPages
	}
}
