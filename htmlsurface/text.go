package htmlsurface

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// hidden lists elements whose text a reader never sees.
var hidden = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Head:     true,
	atom.Template: true,
}

// blocks lists elements rendered on their own line.
var blocks = map[atom.Atom]bool{
	atom.Address: true, atom.Article: true, atom.Aside: true, atom.Blockquote: true,
	atom.Caption: true, atom.Dd: true, atom.Details: true, atom.Dialog: true,
	atom.Div: true, atom.Dl: true, atom.Dt: true, atom.Fieldset: true,
	atom.Figcaption: true, atom.Figure: true, atom.Footer: true, atom.Form: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Header: true, atom.Hr: true, atom.Li: true, atom.Main: true, atom.Nav: true,
	atom.Ol: true, atom.Option: true, atom.P: true, atom.Pre: true, atom.Section: true,
	atom.Summary: true, atom.Table: true, atom.Tbody: true, atom.Tfoot: true,
	atom.Thead: true, atom.Tr: true, atom.Ul: true,
}

// cells are separated by a tab, as in rendered innerText.
var cells = map[atom.Atom]bool{
	atom.Td: true,
	atom.Th: true,
}

// visibleText approximates the rendered innerText below n. Inline runs are
// joined as written, so markup inside a number does not split it; whitespace
// collapses to one space; block boundaries become newlines.
func visibleText(n *html.Node) string {
	var w textWriter
	w.walk(n)
	return w.b.String()
}

type textWriter struct {
	b     strings.Builder
	space bool
	brk   string
}

func (w *textWriter) walk(n *html.Node) {
	switch n.Type {
	case html.TextNode:
		w.text(n.Data)
		return
	case html.ElementNode:
		if hidden[n.DataAtom] {
			return
		}
		if n.DataAtom == atom.Br {
			w.brk = "\n"
			return
		}
		if blocks[n.DataAtom] {
			w.brk = "\n"
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.walk(c)
	}

	if n.Type == html.ElementNode {
		switch {
		case blocks[n.DataAtom]:
			w.brk = "\n"
		case cells[n.DataAtom] && w.brk == "":
			w.brk = "\t"
		}
	}
}

// text appends s, collapsing HTML whitespace. Other spaces (U+00A0 and
// friends) are kept as written.
func (w *textWriter) text(s string) {
	for _, r := range s {
		switch r {
		case ' ', '\t', '\n', '\f', '\r':
			w.space = true
			continue
		}
		if w.b.Len() > 0 {
			switch {
			case w.brk != "":
				w.b.WriteString(w.brk)
			case w.space:
				w.b.WriteByte(' ')
			}
		}
		w.brk, w.space = "", false
		w.b.WriteRune(r)
	}
}
