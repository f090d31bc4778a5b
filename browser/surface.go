package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/ysmood/gson"

	"github.com/use-agent/leadscrape/config"
	"github.com/use-agent/leadscrape/models"
	"github.com/use-agent/leadscrape/surface"
)

// timeouts bound every protocol call, so only the challenge wait in the
// pipeline can block indefinitely.
type timeouts struct {
	// navigation covers a page load, a click or a form submission and the
	// navigation it starts.
	navigation time.Duration

	// detailLoad caps the load event of a detail page. The visitor's settle
	// delay covers whatever is still loading.
	detailLoad time.Duration

	// action covers short calls: reads, focus, close, screenshots.
	action time.Duration
}

var defaultTimeouts = timeouts{
	navigation: 20 * time.Second,
	detailLoad: 10 * time.Second,
	action:     10 * time.Second,
}

// tab is a context this surface prepared: stealth, headers and hijacking are
// installed before its first navigation.
type tab struct {
	handle surface.Handle
	page   *rod.Page
	router *rod.HijackRouter
}

// Surface drives one Chrome instance. It is not safe for concurrent use.
type Surface struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
	cfg      config.BrowserConfig
	opts     Options

	tabs     map[surface.Handle]*tab
	current  surface.Handle
	timeouts timeouts
}

// track prepares page and registers it as a context.
func (s *Surface) track(page *rod.Page) *tab {
	if s.opts.Stealth {
		if _, err := page.EvalOnNewDocument(stealth.JS); err != nil {
			slog.Warn("stealth injection failed, proceeding without stealth", "error", err)
		}
	}

	if s.cfg.AcceptLanguage != "" {
		_ = proto.NetworkSetExtraHTTPHeaders{
			Headers: toHeadersMap(map[string]string{"Accept-Language": s.cfg.AcceptLanguage}),
		}.Call(page)
	}

	t := &tab{
		handle: surface.Handle(page.TargetID),
		page:   page,
		router: setupHijack(page, s.cfg.BlockedResourceTypes, s.cfg.BlockAds),
	}
	s.tabs[t.handle] = t
	return t
}

// page returns the focused page bound to ctx.
func (s *Surface) page(ctx context.Context) (*rod.Page, error) {
	t, ok := s.tabs[s.current]
	if !ok {
		return nil, models.NewScrapeError(models.ErrCodeSurface, "no focused context", nil)
	}
	return t.page.Context(ctx), nil
}

// Navigate implements surface.Surface.
func (s *Surface) Navigate(ctx context.Context, url string) error {
	navCtx, cancel := context.WithTimeout(ctx, s.timeouts.navigation)
	defer cancel()

	p, err := s.page(navCtx)
	if err != nil {
		return err
	}
	if err := p.Navigate(url); err != nil {
		return categorizeError(ctx, err, "navigation to "+url+" failed")
	}
	if err := p.WaitLoad(); err != nil {
		return categorizeError(ctx, err, "waiting for "+url+" to load failed")
	}
	return nil
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
	p, err := s.page(ctx)
	if err != nil {
		return nil, err
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := p.Context(waitCtx).WaitElementsMoreThan(selector, 0); err != nil {
		return nil, categorizeError(ctx, err, fmt.Sprintf("%q did not appear within %s", selector, timeout))
	}

	els, err := s.FindElements(ctx, selector)
	if err != nil {
		return nil, err
	}
	if len(els) == 0 {
		// Matched during the wait, gone before the read.
		return nil, models.NewScrapeError(models.ErrCodeElementMissing, fmt.Sprintf("%q vanished", selector), nil)
	}
	return els, nil
}

// FindElements implements surface.Surface.
func (s *Surface) FindElements(ctx context.Context, selector string) ([]surface.Element, error) {
	p, err := s.page(ctx)
	if err != nil {
		return nil, err
	}
	found, err := p.Elements(selector)
	if err != nil {
		return nil, categorizeError(ctx, err, "query "+selector+" failed")
	}
	els := make([]surface.Element, len(found))
	for i, el := range found {
		els[i] = &element{ctx: ctx, page: p, el: el, timeouts: s.timeouts}
	}
	return els, nil
}

// OpenContext implements surface.Surface.
func (s *Surface) OpenContext(ctx context.Context, url string) (surface.Handle, error) {
	page, err := s.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return "", categorizeError(ctx, err, "failed to open a new tab")
	}
	t := s.track(page)

	navCtx, cancelNav := context.WithTimeout(ctx, s.timeouts.navigation)
	defer cancelNav()
	if err := page.Context(navCtx).Navigate(url); err != nil {
		_ = s.CloseContext(context.WithoutCancel(ctx), t.handle)
		return "", categorizeError(ctx, err, "navigation to "+url+" failed")
	}

	loadCtx, cancelLoad := context.WithTimeout(ctx, s.timeouts.detailLoad)
	defer cancelLoad()
	if err := page.Context(loadCtx).WaitLoad(); err != nil {
		slog.Debug("detail page did not finish loading", "url", url, "error", err)
	}
	return t.handle, nil
}

// SwitchContext implements surface.Surface.
func (s *Surface) SwitchContext(ctx context.Context, h surface.Handle) error {
	t, ok := s.tabs[h]
	if !ok {
		return models.NewScrapeError(models.ErrCodeSurface, fmt.Sprintf("no context %s", h), nil)
	}
	actCtx, cancel := context.WithTimeout(ctx, s.timeouts.action)
	defer cancel()
	if _, err := t.page.Context(actCtx).Activate(); err != nil {
		return categorizeError(ctx, err, "failed to focus context")
	}
	s.current = h
	return nil
}

// CloseContext implements surface.Surface. Contexts the page opened on its
// own (popups) are closed through their target ID.
func (s *Surface) CloseContext(ctx context.Context, h surface.Handle) error {
	var page *rod.Page
	if t, ok := s.tabs[h]; ok {
		if t.router != nil {
			_ = t.router.Stop()
		}
		page = t.page
		delete(s.tabs, h)
	} else {
		p, err := s.browser.PageFromTarget(proto.TargetTargetID(h))
		if err != nil {
			return categorizeError(ctx, err, fmt.Sprintf("no context %s", h))
		}
		page = p
	}

	if s.current == h {
		s.current = ""
	}
	actCtx, cancel := context.WithTimeout(ctx, s.timeouts.action)
	defer cancel()
	if err := page.Context(actCtx).Close(); err != nil {
		return categorizeError(ctx, err, "failed to close context")
	}
	return nil
}

// Current implements surface.Surface.
func (s *Surface) Current() surface.Handle { return s.current }

// Contexts lists every page target in the browser, including popups this
// surface never opened.
func (s *Surface) Contexts() []surface.Handle {
	pages, err := s.browser.Pages()
	if err != nil {
		slog.Warn("listing browser tabs failed, using tracked contexts", "error", err)
		hs := make([]surface.Handle, 0, len(s.tabs))
		for h := range s.tabs {
			hs = append(hs, h)
		}
		return hs
	}
	hs := make([]surface.Handle, len(pages))
	for i, p := range pages {
		hs[i] = surface.Handle(p.TargetID)
	}
	return hs
}

// CaptureDiagnostic writes a full-page PNG screenshot of the focused context.
func (s *Surface) CaptureDiagnostic(ctx context.Context, path string) error {
	actCtx, cancel := context.WithTimeout(ctx, s.timeouts.action)
	defer cancel()

	p, err := s.page(actCtx)
	if err != nil {
		return err
	}
	img, err := p.Screenshot(true, nil)
	if err != nil {
		return categorizeError(ctx, err, "screenshot failed")
	}
	if err := os.WriteFile(path, img, 0o644); err != nil {
		return fmt.Errorf("browser: write diagnostic: %w", err)
	}
	return nil
}

// Close stops the interceptors and kills the browser process.
// Call this on every exit path to prevent zombie Chrome processes.
func (s *Surface) Close() error {
	for h, t := range s.tabs {
		if t.router != nil {
			_ = t.router.Stop()
		}
		delete(s.tabs, h)
	}
	s.current = ""

	var err error
	if s.browser != nil {
		err = s.browser.Close()
	}
	if s.launcher != nil {
		s.launcher.Cleanup()
	}
	slog.Info("browser shutdown complete")
	return err
}

// toHeadersMap converts a plain string map to the proto.NetworkHeaders type
// (map[string]gson.JSON) required by NetworkSetExtraHTTPHeaders.
func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}

// categorizeError wraps raw rod errors into typed ScrapeErrors. A cancelled
// run context takes precedence over whatever the browser reported.
func categorizeError(ctx context.Context, err error, msg string) *models.ScrapeError {
	switch {
	case errors.Is(ctx.Err(), context.Canceled) || errors.Is(err, context.Canceled):
		return models.NewScrapeError(models.ErrCodeInterrupted, "request canceled", context.Canceled)
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewScrapeError(models.ErrCodeNavigationTimeout, msg, err)
	default:
		return models.NewScrapeError(models.ErrCodeSurface, msg, err)
	}
}
