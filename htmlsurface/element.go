package htmlsurface

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/use-agent/leadscrape/models"
	"github.com/use-agent/leadscrape/surface"
)

// element is a node in the document a tab held when it was located.
type element struct {
	ctx context.Context
	s   *Surface
	tab *tab
	sel *goquery.Selection
}

// Text implements surface.Element.
func (e *element) Text() (string, error) {
	var b strings.Builder
	for _, n := range e.sel.Nodes {
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(visibleText(n))
	}
	return b.String(), nil
}

// Link implements surface.Element.
func (e *element) Link() (string, error) {
	href, ok := e.sel.Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		return "", models.NewScrapeError(models.ErrCodeElementMissing, "element has no href", nil)
	}
	return e.resolve(href)
}

// Find implements surface.Element.
func (e *element) Find(selector string) (surface.Element, error) {
	matches, err := match(e.sel, selector)
	if err != nil {
		return nil, err
	}
	if matches.Length() == 0 {
		return nil, models.NewScrapeError(models.ErrCodeElementMissing, fmt.Sprintf("no %q inside element", selector), nil)
	}
	return &element{ctx: e.ctx, s: e.s, tab: e.tab, sel: matches.First()}, nil
}

// Click follows an anchor or submits the form a submit control belongs to.
// The tab holds the new document when Click returns.
func (e *element) Click() error {
	switch goquery.NodeName(e.sel) {
	case "a":
		target, err := e.Link()
		if err != nil {
			return err
		}
		return e.s.load(e.ctx, e.tab, target)
	case "button", "input":
		if typ := strings.ToLower(e.sel.AttrOr("type", "submit")); typ == "submit" {
			return e.submitForm()
		}
	}
	return models.NewScrapeError(models.ErrCodeSurface, "element is not clickable without scripts: <"+goquery.NodeName(e.sel)+">", nil)
}

// Submit sets the element's value and submits its enclosing form.
func (e *element) Submit(text string) error {
	e.sel.SetAttr("value", text)
	return e.submitForm()
}

func (e *element) submitForm() error {
	form := e.sel.Closest("form")
	if form.Length() == 0 {
		return models.NewScrapeError(models.ErrCodeElementMissing, "element is not inside a form", nil)
	}
	if method := strings.ToLower(form.AttrOr("method", "get")); method != "get" {
		return models.NewScrapeError(models.ErrCodeSurface, "form method "+method+" is not supported", nil)
	}

	target, err := e.resolve(form.AttrOr("action", ""))
	if err != nil {
		return err
	}
	u, err := url.Parse(target)
	if err != nil {
		return models.NewScrapeError(models.ErrCodeSurface, "invalid form action", err)
	}
	u.RawQuery = formValues(form).Encode()
	u.Fragment = ""

	return e.s.load(e.ctx, e.tab, u.String())
}

// formValues collects the named, non-button controls of form.
func formValues(form *goquery.Selection) url.Values {
	values := url.Values{}
	form.Find("input, textarea, select").Each(func(_ int, c *goquery.Selection) {
		name, ok := c.Attr("name")
		if !ok || name == "" {
			return
		}
		if _, disabled := c.Attr("disabled"); disabled {
			return
		}
		switch goquery.NodeName(c) {
		case "textarea":
			if v, ok := c.Attr("value"); ok {
				values.Add(name, v)
			} else {
				values.Add(name, c.Text())
			}
		case "select":
			opt := c.Find("option[selected]").First()
			if opt.Length() == 0 {
				opt = c.Find("option").First()
			}
			if opt.Length() > 0 {
				values.Add(name, opt.AttrOr("value", strings.TrimSpace(opt.Text())))
			}
		default:
			switch strings.ToLower(c.AttrOr("type", "text")) {
			case "submit", "button", "image", "reset", "file":
				return
			case "checkbox", "radio":
				if _, checked := c.Attr("checked"); !checked {
					return
				}
				values.Add(name, c.AttrOr("value", "on"))
			default:
				values.Add(name, c.AttrOr("value", ""))
			}
		}
	})
	return values
}

// resolve makes ref absolute against the tab's current URL.
func (e *element) resolve(ref string) (string, error) {
	r, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", models.NewScrapeError(models.ErrCodeSurface, "invalid URL "+ref, err)
	}
	return e.tab.url.ResolveReference(r).String(), nil
}
