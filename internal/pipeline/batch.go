package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/spherical/pdf2cbz/internal/domain"
)

// Batch converts jobs one after another. Cancellation stops the batch. With
// Work.Continuous off, so does the first failed job; otherwise failures are
// collected and the batch carries on.
func (o *Orchestrator) Batch(ctx context.Context, jobs []domain.Job) ([]*domain.Result, error) {
	results := make([]*domain.Result, 0, len(jobs))
	var errs []error

	for _, job := range jobs {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		res, err := o.Convert(ctx, job)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", job.Source, err))
			if !o.cfg.Work.Continuous {
				break
			}
			continue
		}
		results = append(results, res)

		if !res.Succeeded() && !o.cfg.Work.Continuous {
			o.logger.Info().Str("source", job.Source).Msg("Stopping batch after failed document")
			break
		}
	}

	succeeded := 0
	for _, r := range results {
		if r.Succeeded() {
			succeeded++
		}
	}
	o.logger.Info().
		Int("jobs", len(jobs)).
		Int("ran", len(results)).
		Int("succeeded", succeeded).
		Msg("Batch complete")

	return results, errors.Join(errs...)
}
