// Package engine selects the browsing surface a run drives.
package engine

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/use-agent/leadscrape/browser"
	"github.com/use-agent/leadscrape/cache"
	"github.com/use-agent/leadscrape/config"
	"github.com/use-agent/leadscrape/htmlsurface"
	"github.com/use-agent/leadscrape/models"
	"github.com/use-agent/leadscrape/surface"
)

// Engine names accepted by Open.
const (
	// HTTP fetches documents without rendering (utls + goquery).
	HTTP = "http"

	// Rod drives Chrome.
	Rod = "rod"

	// RodStealth drives Chrome with go-rod/stealth injected into every tab.
	RodStealth = "rod-stealth"
)

// opener builds a surface from config.
type opener func(cfg *config.Config) (surface.Surface, error)

var engines = map[string]opener{
	HTTP: func(cfg *config.Config) (surface.Surface, error) {
		f := htmlsurface.NewHTTPFetcher(cfg.HTTP, cfg.Browser.DefaultProxy, cfg.Browser.AcceptLanguage)
		pages := cache.New(cfg.HTTP.CacheEntries, cfg.HTTP.CacheTTL)
		return htmlsurface.New(htmlsurface.NewCachingFetcher(f, pages)), nil
	},
	Rod: func(cfg *config.Config) (surface.Surface, error) {
		return launch(cfg, browser.Options{})
	},
	RodStealth: func(cfg *config.Config) (surface.Surface, error) {
		return launch(cfg, browser.Options{Stealth: true})
	},
}

// diagnostics names the default snapshot file per engine. Chrome captures a
// screenshot; the http engine only has the document to save.
var diagnostics = map[string]string{
	HTTP:       "search_error.html",
	Rod:        "search_error.png",
	RodStealth: "search_error.png",
}

// DiagnosticPath returns the default diagnostic snapshot path for the named
// engine, with an extension matching what its CaptureDiagnostic writes.
func DiagnosticPath(name string) string {
	if path, ok := diagnostics[name]; ok {
		return path
	}
	return "search_error.png"
}

func launch(cfg *config.Config, opts browser.Options) (surface.Surface, error) {
	s, err := browser.Launch(cfg.Browser, opts)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Names lists the accepted engine names in order.
func Names() []string {
	names := make([]string, 0, len(engines))
	for name := range engines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open creates the surface named by cfg.Browser.Engine.
func Open(cfg *config.Config) (surface.Surface, error) {
	open, ok := engines[cfg.Browser.Engine]
	if !ok {
		return nil, models.NewScrapeError(
			models.ErrCodeInvalidInput,
			fmt.Sprintf("unknown engine %q (want one of %v)", cfg.Browser.Engine, Names()),
			nil,
		)
	}
	slog.Info("opening browsing surface", "engine", cfg.Browser.Engine)
	return open(cfg)
}
