package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/use-agent/leadscrape/surface"
)

// ChallengeDetector waits out anti-automation challenges. A human solves the
// challenge in the browser window; the detector only notices and waits.
type ChallengeDetector struct {
	s       surface.Surface
	marker  string
	timeout time.Duration
	poll    time.Duration
	notify  func(EventKind)
}

// NewChallengeDetector creates a detector looking for marker. notify may be nil.
func NewChallengeDetector(s surface.Surface, marker string, timeout, poll time.Duration, notify func(EventKind)) *ChallengeDetector {
	if notify == nil {
		notify = func(EventKind) {}
	}
	return &ChallengeDetector{s: s, marker: marker, timeout: timeout, poll: poll, notify: notify}
}

// Await looks for the marker for up to the detector's timeout. Without one it
// returns nil; with one it blocks until the marker is gone. The only error is
// EXTERNAL_INTERRUPT when ctx is cancelled.
func (d *ChallengeDetector) Await(ctx context.Context) error {
	if _, err := d.s.WaitElement(ctx, d.marker, d.timeout); err != nil {
		if isInterrupt(ctx, err) {
			return asInterrupt(ctx, err)
		}
		return nil
	}
	return d.block(ctx)
}

// AwaitPresent is Await without the initial wait: it checks once.
func (d *ChallengeDetector) AwaitPresent(ctx context.Context) error {
	if err := interruptedErr(ctx); err != nil {
		return err
	}
	if !d.present(ctx) {
		return interruptedErr(ctx)
	}
	return d.block(ctx)
}

// present reports whether the marker is on the page. A surface error counts
// as absent; the step that follows reports the real failure.
func (d *ChallengeDetector) present(ctx context.Context) bool {
	els, err := d.s.FindElements(ctx, d.marker)
	if err != nil {
		slog.Debug("challenge check failed", "error", err)
		return false
	}
	return len(els) > 0
}

// block waits for the marker to go away. Surfaces without a live page are
// reloaded before each check; there is no window to solve the challenge in,
// so the wait lasts until the engine stops serving it.
func (d *ChallengeDetector) block(ctx context.Context) error {
	reloader, reloads := d.s.(surface.Reloader)
	if reloads {
		slog.Warn("CAPTCHA detected and this engine has no browser window, reloading until it clears", "poll", d.poll)
	} else {
		slog.Warn("CAPTCHA detected, solve it manually in the browser to continue", "poll", d.poll)
	}
	d.notify(EventChallengeDetected)

	for {
		if err := sleepCtx(ctx, d.poll); err != nil {
			return err
		}
		if reloads {
			if err := reloader.Reload(ctx); err != nil {
				if isInterrupt(ctx, err) {
					return asInterrupt(ctx, err)
				}
				slog.Debug("reloading challenge page failed", "error", err)
			}
		}
		if !d.present(ctx) {
			if err := interruptedErr(ctx); err != nil {
				return err
			}
			slog.Info("challenge cleared, resuming")
			d.notify(EventChallengeCleared)
			return nil
		}
	}
}
