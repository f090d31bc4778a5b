// Package browser implements surface.Surface on a Chrome instance driven by
// go-rod.
package browser

import (
	"log/slog"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"

	"github.com/use-agent/leadscrape/config"
	"github.com/use-agent/leadscrape/models"
	"github.com/use-agent/leadscrape/surface"
)

// Options tunes a launched surface beyond the shared browser config.
type Options struct {
	// Stealth injects go-rod/stealth into every context before navigation.
	Stealth bool
}

// Launch starts Chrome and returns a surface focused on its first tab.
// The launched process is killed by Surface.Close.
func Launch(cfg config.BrowserConfig, opts Options) (*Surface, error) {
	l := launcher.New().
		Headless(cfg.Headless).
		NoSandbox(cfg.NoSandbox)

	if cfg.BrowserBin != "" {
		l = l.Bin(cfg.BrowserBin)
	}
	if cfg.DefaultProxy != "" {
		l = l.Proxy(cfg.DefaultProxy)
	}

	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-features"), "AudioServiceOutOfProcess,TranslateUI")
	l.Set(flags.Flag("disable-renderer-backgrounding"))
	l.Set(flags.Flag("disable-background-timer-throttling"))
	l.Set(flags.Flag("disable-backgrounding-occluded-windows"))
	l.Set(flags.Flag("disable-component-update"))
	l.Set(flags.Flag("disable-default-apps"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("no-first-run"))

	controlURL, err := l.Launch()
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeBrowserCrash, "failed to launch browser", err)
	}
	slog.Info("browser launched", "controlURL", controlURL, "headless", cfg.Headless)

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		l.Kill()
		return nil, models.NewScrapeError(models.ErrCodeBrowserCrash, "failed to connect to browser", err)
	}

	s := &Surface{
		browser:  b,
		launcher: l,
		cfg:      cfg,
		opts:     opts,
		tabs:     make(map[surface.Handle]*tab),
		timeouts: defaultTimeouts,
	}

	page, err := s.primaryPage()
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	t := s.track(page)
	s.current = t.handle
	return s, nil
}

// primaryPage reuses the tab Chrome opens at startup.
func (s *Surface) primaryPage() (*rod.Page, error) {
	pages, err := s.browser.Pages()
	if err == nil && len(pages) > 0 {
		return pages.First(), nil
	}
	page, err := s.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeBrowserCrash, "failed to create primary tab", err)
	}
	return page, nil
}
