package pipeline

import (
	"context"
	"log/slog"

	"github.com/use-agent/leadscrape/config"
	"github.com/use-agent/leadscrape/models"
	"github.com/use-agent/leadscrape/surface"
)

// SearchController submits the query and waits for the first results page.
type SearchController struct {
	s          surface.Surface
	cfg        config.SearchConfig
	timing     config.TimingConfig
	challenge  *ChallengeDetector
	diagnostic string
}

// NewSearchController creates a controller. diagnostic is where a snapshot
// goes when the results never show up; empty disables it.
func NewSearchController(s surface.Surface, cfg config.SearchConfig, timing config.TimingConfig, challenge *ChallengeDetector, diagnostic string) *SearchController {
	return &SearchController{s: s, cfg: cfg, timing: timing, challenge: challenge, diagnostic: diagnostic}
}

// Search leaves the surface on the first results page. Every error it
// returns is fatal for the run.
func (c *SearchController) Search(ctx context.Context, q models.SearchQuery) error {
	if err := c.s.Navigate(ctx, c.cfg.EntryURL); err != nil {
		return err
	}
	if err := c.challenge.Await(ctx); err != nil {
		return err
	}

	input, err := c.s.WaitElement(ctx, c.cfg.QueryInput, c.timing.ResultsTimeout)
	if err != nil {
		return c.fail(ctx, "search box did not appear", err)
	}

	slog.Info("searching", "query", q.String())
	if err := input.Submit(q.String()); err != nil {
		return c.fail(ctx, "failed to submit the query", err)
	}
	if err := c.challenge.AwaitPresent(ctx); err != nil {
		return err
	}

	if _, err := c.s.WaitElement(ctx, c.cfg.ResultEntry, c.timing.ResultsTimeout); err != nil {
		return c.fail(ctx, "failed to load search results", err)
	}
	slog.Info("search results loaded")
	return nil
}

// fail logs msg, snapshots the page unless the run was interrupted, and
// returns err.
func (c *SearchController) fail(ctx context.Context, msg string, err error) error {
	if isInterrupt(ctx, err) {
		return asInterrupt(ctx, err)
	}
	slog.Error(msg, "error", err)

	if c.diagnostic != "" {
		if derr := c.s.CaptureDiagnostic(context.WithoutCancel(ctx), c.diagnostic); derr != nil {
			slog.Warn("failed to capture diagnostic snapshot", "path", c.diagnostic, "error", derr)
		} else {
			slog.Info("diagnostic snapshot saved", "path", c.diagnostic)
		}
	}
	return err
}
