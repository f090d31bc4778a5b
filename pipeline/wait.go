package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/use-agent/leadscrape/models"
)

// sleepCtx waits d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return interruptedErr(ctx)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return interruptedErr(ctx)
	case <-t.C:
		return nil
	}
}

// interruptedErr returns an EXTERNAL_INTERRUPT error once ctx is done.
func interruptedErr(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return models.NewScrapeError(models.ErrCodeInterrupted, "run interrupted", err)
	}
	return nil
}

// isInterrupt reports whether err (or ctx) means the run was stopped.
func isInterrupt(ctx context.Context, err error) bool {
	return ctx.Err() != nil ||
		models.IsCode(err, models.ErrCodeInterrupted) ||
		errors.Is(err, context.Canceled)
}

// asInterrupt normalises err into an EXTERNAL_INTERRUPT error.
func asInterrupt(ctx context.Context, err error) error {
	if models.IsCode(err, models.ErrCodeInterrupted) {
		return err
	}
	if ierr := interruptedErr(ctx); ierr != nil {
		return ierr
	}
	return models.NewScrapeError(models.ErrCodeInterrupted, "run interrupted", err)
}
