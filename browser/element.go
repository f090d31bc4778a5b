package browser

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"

	"github.com/use-agent/leadscrape/models"
	"github.com/use-agent/leadscrape/surface"
)

// element is a node located on page. Its rod handle is bound to the run
// context; each call bounds itself with the surface's timeouts.
type element struct {
	ctx      context.Context
	page     *rod.Page
	el       *rod.Element
	timeouts timeouts
}

// Text implements surface.Element. rod reads innerText, which is the
// rendered text only.
func (e *element) Text() (string, error) {
	el := e.el.Timeout(e.timeouts.action)
	defer el.CancelTimeout()

	text, err := el.Text()
	if err != nil {
		return "", categorizeError(e.ctx, err, "failed to read element text")
	}
	return text, nil
}

// Link implements surface.Element. The href property is already absolute.
func (e *element) Link() (string, error) {
	el := e.el.Timeout(e.timeouts.action)
	defer el.CancelTimeout()

	href, err := el.Property("href")
	if err != nil {
		return "", categorizeError(e.ctx, err, "failed to read href")
	}
	if link := strings.TrimSpace(href.Str()); link != "" && !href.Nil() {
		return link, nil
	}
	return "", models.NewScrapeError(models.ErrCodeElementMissing, "element has no href", nil)
}

// Find implements surface.Element without rod's implicit retry.
func (e *element) Find(selector string) (surface.Element, error) {
	el := e.el.Timeout(e.timeouts.action)
	defer el.CancelTimeout()

	found, err := el.Elements(selector)
	if err != nil {
		return nil, categorizeError(e.ctx, err, "query "+selector+" failed")
	}
	if found.Empty() {
		return nil, models.NewScrapeError(models.ErrCodeElementMissing, fmt.Sprintf("no %q inside element", selector), nil)
	}
	// Children inherit the timed context; rebind to the run context.
	return &element{ctx: e.ctx, page: e.page, el: found.First().Context(e.ctx), timeouts: e.timeouts}, nil
}

// Click implements surface.Element. A covered or detached element fails
// once the navigation timeout expires.
func (e *element) Click() error {
	return e.navigating(func(el *rod.Element) error {
		return el.Click(proto.InputMouseButtonLeft, 1)
	})
}

// Submit implements surface.Element.
func (e *element) Submit(text string) error {
	return e.navigating(func(el *rod.Element) error {
		if err := el.SelectAllText(); err != nil {
			return err
		}
		if err := el.Input(text); err != nil {
			return err
		}
		return el.Type(input.Enter)
	})
}

// navigating runs act and waits for the navigation it triggers, all within
// the navigation timeout. The listener is registered first so a fast
// navigation is not missed.
func (e *element) navigating(act func(el *rod.Element) error) error {
	p := e.page.Timeout(e.timeouts.navigation)
	defer p.CancelTimeout()

	wait := p.WaitNavigation(proto.PageLifecycleEventNameDOMContentLoaded)
	if err := act(e.el.Context(p.GetContext())); err != nil {
		return categorizeError(e.ctx, err, "element activation failed")
	}
	wait()

	if err := e.ctx.Err(); err != nil {
		return models.NewScrapeError(models.ErrCodeInterrupted, "request canceled", err)
	}
	return nil
}
