// Package surface defines the browsing capability the pipeline drives.
//
// A Surface owns one primary browsing context (a tab) and may transiently
// hold more. Every blocking call takes a context.Context; adapters translate
// their own failures into models.ScrapeError codes:
//
//	NAVIGATION_TIMEOUT  a bounded wait expired
//	ELEMENT_MISSING     a sub-element was absent
//	SURFACE_ERROR       the underlying engine failed
//	EXTERNAL_INTERRUPT  ctx was cancelled
package surface

import (
	"context"
	"errors"
	"time"
)

// Handle identifies one browsing context (a tab or window).
type Handle string

// Element is a located node on the page of the context it was found in.
type Element interface {
	// Text returns the element's visible text.
	Text() (string, error)

	// Link returns the absolute URL the element points to.
	Link() (string, error)

	// Find returns the first descendant matching selector, without waiting.
	Find(selector string) (Element, error)

	// Click activates the element and waits for any navigation it starts.
	Click() error

	// Submit types text into the element and submits it.
	Submit(text string) error
}

// Surface is the browsing capability consumed by the pipeline.
type Surface interface {
	// Navigate loads url in the current context.
	Navigate(ctx context.Context, url string) error

	// WaitElement waits up to timeout for selector to match in the current context.
	WaitElement(ctx context.Context, selector string, timeout time.Duration) (Element, error)

	// WaitElements waits up to timeout for at least one match and returns all of them.
	WaitElements(ctx context.Context, selector string, timeout time.Duration) ([]Element, error)

	// FindElements returns the current matches without waiting. No match is not an error.
	FindElements(ctx context.Context, selector string) ([]Element, error)

	// OpenContext opens url in a new context without focusing it.
	OpenContext(ctx context.Context, url string) (Handle, error)

	// SwitchContext focuses h.
	SwitchContext(ctx context.Context, h Handle) error

	// CloseContext closes h.
	CloseContext(ctx context.Context, h Handle) error

	// Current returns the focused context.
	Current() Handle

	// Contexts lists every open context.
	Contexts() []Handle

	// CaptureDiagnostic writes a snapshot of the current context to path.
	CaptureDiagnostic(ctx context.Context, path string) error

	// Close releases the surface and every context it holds.
	Close() error
}

// Reloader is implemented by surfaces whose documents never change on their
// own. Code that polls a page for a change reloads it before each re-check.
type Reloader interface {
	// Reload fetches the current context's page again, bypassing any cache.
	Reload(ctx context.Context) error
}

// WithDetail opens url in a new context, focuses it and runs fn there.
// Whatever happens inside (an open failure, an error from fn, a cancelled
// ctx), the origin context is the only one left open and focused when
// WithDetail returns.
func WithDetail(ctx context.Context, s Surface, url string, fn func(ctx context.Context) error) (err error) {
	origin := s.Current()

	defer func() {
		if rerr := Restore(context.WithoutCancel(ctx), s, origin); rerr != nil {
			err = errors.Join(err, rerr)
		}
	}()

	h, err := s.OpenContext(ctx, url)
	if err != nil {
		return err
	}
	if err := s.SwitchContext(ctx, h); err != nil {
		return err
	}
	return fn(ctx)
}

// Restore closes every context other than keep and focuses keep.
// Stray contexts opened by the page itself (popups) are closed too.
func Restore(ctx context.Context, s Surface, keep Handle) error {
	var errs []error
	for _, h := range s.Contexts() {
		if h == keep {
			continue
		}
		if err := s.CloseContext(ctx, h); err != nil {
			errs = append(errs, err)
		}
	}
	if s.Current() != keep {
		if err := s.SwitchContext(ctx, keep); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
