package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/use-agent/leadscrape/models"
	"github.com/use-agent/leadscrape/phone"
	"github.com/use-agent/leadscrape/surface"
)

// Visitor reads phone numbers off a result's target page.
type Visitor struct {
	s      surface.Surface
	body   string
	settle time.Duration
}

// NewVisitor creates a visitor reading the text of body after settle.
func NewVisitor(s surface.Surface, body string, settle time.Duration) *Visitor {
	return &Visitor{s: s, body: body, settle: settle}
}

// Visit opens url in its own context and returns the phone-like strings in
// its visible text. Failures are logged and yield no numbers; only an
// interrupt is returned. The focused context is the same before and after.
func (v *Visitor) Visit(ctx context.Context, url string) ([]string, error) {
	var numbers []string
	err := surface.WithDetail(ctx, v.s, url, func(ctx context.Context) error {
		if err := sleepCtx(ctx, v.settle); err != nil {
			return err
		}
		els, err := v.s.FindElements(ctx, v.body)
		if err != nil {
			return err
		}
		if len(els) == 0 {
			return models.NewScrapeError(models.ErrCodeElementMissing, "page has no "+v.body, nil)
		}
		text, err := els[0].Text()
		if err != nil {
			return err
		}
		numbers = phone.Extract(text)
		return nil
	})
	if err != nil {
		if isInterrupt(ctx, err) {
			return nil, asInterrupt(ctx, err)
		}
		slog.Error("unable to extract numbers from URL", "url", url, "error", err)
		return nil, nil
	}
	return numbers, nil
}
