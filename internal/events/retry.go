package events

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/spherical/pdf2cbz/internal/observability"
)

// RetryConfig holds retry configuration for broker connections.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 250 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
	}
}

// backoff returns InitialBackoff * 2^attempt, capped at MaxBackoff.
func backoff(attempt int, cfg RetryConfig) time.Duration {
	d := float64(cfg.InitialBackoff) * math.Pow(2, float64(attempt))
	if d > float64(cfg.MaxBackoff) {
		d = float64(cfg.MaxBackoff)
	}
	return time.Duration(d)
}

// retry calls fn until it succeeds, the retries run out or ctx ends.
func retry(ctx context.Context, cfg RetryConfig, logger *observability.Logger, op string, fn func(context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		if lastErr = fn(ctx); lastErr == nil {
			return nil
		}
		if attempt == cfg.MaxRetries {
			break
		}

		wait := backoff(attempt, cfg)
		logger.Warn().
			Err(lastErr).
			Int("attempt", attempt+1).
			Dur("backoff", wait).
			Msgf("%s failed, retrying", op)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return fmt.Errorf("%s failed after %d retries: %w", op, cfg.MaxRetries, lastErr)
}
