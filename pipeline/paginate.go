package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/use-agent/leadscrape/surface"
)

// Paginator advances to the next results page.
type Paginator struct {
	s        surface.Surface
	selector string
	timeout  time.Duration
}

// NewPaginator creates a paginator clicking selector.
func NewPaginator(s surface.Surface, selector string, timeout time.Duration) *Paginator {
	return &Paginator{s: s, selector: selector, timeout: timeout}
}

// Next reports whether another page was loaded. A missing or broken
// control means there are no more pages; only an interrupt is an error.
func (p *Paginator) Next(ctx context.Context) (bool, error) {
	next, err := p.s.WaitElement(ctx, p.selector, p.timeout)
	if err != nil {
		if isInterrupt(ctx, err) {
			return false, asInterrupt(ctx, err)
		}
		slog.Info("no more pages available")
		return false, nil
	}

	slog.Info("navigating to the next page")
	if err := next.Click(); err != nil {
		if isInterrupt(ctx, err) {
			return false, asInterrupt(ctx, err)
		}
		slog.Warn("next page control could not be activated", "error", err)
		return false, nil
	}
	return true, nil
}
