// Package htmlsurface implements surface.Surface over fetched HTML documents.
//
// No JavaScript runs: each context holds the parsed document of the last URL
// it loaded, selectors are matched with cascadia, links are followed by
// fetching their href, and forms are submitted as GET requests. It suits
// server-rendered result pages and offline replays; pages that build their
// content in script need the rod engine.
package htmlsurface

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"

	"github.com/use-agent/leadscrape/models"
	"github.com/use-agent/leadscrape/surface"
)

// pollInterval is how often a bounded wait re-checks the document.
const pollInterval = 100 * time.Millisecond

const blankPage = "<html><head></head><body></body></html>"

// tab is one browsing context.
type tab struct {
	handle    surface.Handle
	requested string // URL passed to the last load, before redirects
	url       *url.URL
	raw       []byte
	doc       *goquery.Document
}

// Surface is a document-backed browsing surface. It is not safe for
// concurrent use; the pipeline drives it from a single goroutine.
type Surface struct {
	fetcher Fetcher
	tabs    []*tab
	current surface.Handle
	seq     int
}

// New creates a surface with one blank primary context.
func New(fetcher Fetcher) *Surface {
	s := &Surface{fetcher: fetcher}
	t := s.newTab()
	s.tabs = []*tab{t}
	s.current = t.handle
	return s
}

func (s *Surface) newTab() *tab {
	s.seq++
	doc, _ := goquery.NewDocumentFromReader(strings.NewReader(blankPage))
	u, _ := url.Parse("about:blank")
	return &tab{
		handle: surface.Handle(fmt.Sprintf("tab-%d", s.seq)),
		url:    u,
		raw:    []byte(blankPage),
		doc:    doc,
	}
}

// load fetches rawURL into t.
func (s *Surface) load(ctx context.Context, t *tab, rawURL string) error {
	return s.loadWith(ctx, t, rawURL, s.fetcher.Fetch)
}

func (s *Surface) loadWith(ctx context.Context, t *tab, rawURL string, fetch fetchFunc) error {
	body, finalURL, err := fetch(ctx, rawURL)
	if err != nil {
		return categorizeError(ctx, err, "navigation to "+rawURL+" failed")
	}

	u, err := url.Parse(finalURL)
	if err != nil {
		return models.NewScrapeError(models.ErrCodeSurface, "invalid final URL "+finalURL, err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return models.NewScrapeError(models.ErrCodeSurface, "failed to parse "+finalURL, err)
	}

	t.requested, t.url, t.raw, t.doc = rawURL, u, body, doc
	slog.Debug("htmlsurface: loaded", "context", t.handle, "url", finalURL, "bytes", len(body))
	return nil
}

func (s *Surface) lookup(h surface.Handle) *tab {
	for _, t := range s.tabs {
		if t.handle == h {
			return t
		}
	}
	return nil
}

func (s *Surface) active() (*tab, error) {
	if t := s.lookup(s.current); t != nil {
		return t, nil
	}
	return nil, models.NewScrapeError(models.ErrCodeSurface, "no focused context", nil)
}

// Navigate implements surface.Surface.
func (s *Surface) Navigate(ctx context.Context, rawURL string) error {
	t, err := s.active()
	if err != nil {
		return err
	}
	return s.load(ctx, t, rawURL)
}

// Reload implements surface.Reloader. It re-requests the URL the focused
// context last asked for, so a challenge reached through a redirect is
// retried at its origin. A blank context is left as is.
func (s *Surface) Reload(ctx context.Context) error {
	t, err := s.active()
	if err != nil {
		return err
	}
	if t.requested == "" {
		return nil
	}
	fetch := s.fetcher.Fetch
	if r, ok := s.fetcher.(refetcher); ok {
		fetch = r.Refetch
	}
	return s.loadWith(ctx, t, t.requested, fetch)
}

// WaitElement implements surface.Surface.
func (s *Surface) WaitElement(ctx context.Context, selector string, timeout time.Duration) (surface.Element, error) {
	els, err := s.WaitElements(ctx, selector, timeout)
	if err != nil {
		return nil, err
	}
	return els[0], nil
}

// WaitElements implements surface.Surface.
func (s *Surface) WaitElements(ctx context.Context, selector string, timeout time.Duration) ([]surface.Element, error) {
	deadline := time.Now().Add(timeout)
	for {
		els, err := s.FindElements(ctx, selector)
		if err != nil {
			return nil, err
		}
		if len(els) > 0 {
			return els, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, models.NewScrapeError(
				models.ErrCodeNavigationTimeout,
				fmt.Sprintf("%q did not appear within %s", selector, timeout),
				context.DeadlineExceeded,
			)
		}

		select {
		case <-ctx.Done():
			return nil, models.NewScrapeError(models.ErrCodeInterrupted, "wait for "+selector+" interrupted", ctx.Err())
		case <-time.After(min(pollInterval, remaining)):
		}
	}
}

// FindElements implements surface.Surface.
func (s *Surface) FindElements(ctx context.Context, selector string) ([]surface.Element, error) {
	t, err := s.active()
	if err != nil {
		return nil, err
	}
	matches, err := match(t.doc.Selection, selector)
	if err != nil {
		return nil, err
	}

	els := make([]surface.Element, 0, matches.Length())
	matches.Each(func(_ int, sel *goquery.Selection) {
		els = append(els, &element{ctx: ctx, s: s, tab: t, sel: sel})
	})
	return els, nil
}

// OpenContext implements surface.Surface.
func (s *Surface) OpenContext(ctx context.Context, rawURL string) (surface.Handle, error) {
	t := s.newTab()
	s.tabs = append(s.tabs, t)
	if err := s.load(ctx, t, rawURL); err != nil {
		s.remove(t.handle)
		return "", err
	}
	return t.handle, nil
}

// SwitchContext implements surface.Surface.
func (s *Surface) SwitchContext(_ context.Context, h surface.Handle) error {
	if s.lookup(h) == nil {
		return models.NewScrapeError(models.ErrCodeSurface, fmt.Sprintf("no context %s", h), nil)
	}
	s.current = h
	return nil
}

// CloseContext implements surface.Surface.
func (s *Surface) CloseContext(_ context.Context, h surface.Handle) error {
	if !s.remove(h) {
		return models.NewScrapeError(models.ErrCodeSurface, fmt.Sprintf("no context %s", h), nil)
	}
	if s.current == h {
		s.current = ""
	}
	return nil
}

func (s *Surface) remove(h surface.Handle) bool {
	for i, t := range s.tabs {
		if t.handle == h {
			s.tabs = append(s.tabs[:i], s.tabs[i+1:]...)
			return true
		}
	}
	return false
}

// Current implements surface.Surface.
func (s *Surface) Current() surface.Handle { return s.current }

// Contexts implements surface.Surface.
func (s *Surface) Contexts() []surface.Handle {
	hs := make([]surface.Handle, len(s.tabs))
	for i, t := range s.tabs {
		hs[i] = t.handle
	}
	return hs
}

// CaptureDiagnostic writes the raw document of the focused context to path.
func (s *Surface) CaptureDiagnostic(_ context.Context, path string) error {
	t, err := s.active()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, t.raw, 0o644); err != nil {
		return fmt.Errorf("htmlsurface: write diagnostic: %w", err)
	}
	return nil
}

// Close drops every context and releases the fetcher.
func (s *Surface) Close() error {
	s.tabs = nil
	s.current = ""
	if c, ok := s.fetcher.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// match compiles selector and applies it below root.
func match(root *goquery.Selection, selector string) (*goquery.Selection, error) {
	m, err := cascadia.Compile(selector)
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeSurface, fmt.Sprintf("invalid selector %q", selector), err)
	}
	return root.FindMatcher(m), nil
}

// categorizeError wraps fetch errors into typed ScrapeErrors.
func categorizeError(ctx context.Context, err error, msg string) *models.ScrapeError {
	switch {
	case errors.Is(err, context.Canceled) || ctx.Err() != nil && errors.Is(ctx.Err(), context.Canceled):
		return models.NewScrapeError(models.ErrCodeInterrupted, "request canceled", context.Canceled)
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewScrapeError(models.ErrCodeNavigationTimeout, msg, err)
	default:
		return models.NewScrapeError(models.ErrCodeSurface, msg, err)
	}
}
