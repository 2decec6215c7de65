// Package content renders a live page's HTML into markdown or plain text
// for LLM consumption: sanitize, strip boilerplate by semantic landmarks
// and text density, then convert.
package content

import (
	"fmt"
	"strings"
	"unicode/utf8"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Format selects the rendered output.
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatText     Format = "text"
)

// DefaultMaxChars bounds rendered content unless the caller overrides it.
const DefaultMaxChars = 60000

// Options controls one rendering.
type Options struct {
	Format   Format
	MaxChars int
}

// Result is the rendered page content.
type Result struct {
	Title    string `json:"title"`
	Content  string `json:"content"`
	Format   Format `json:"format"`
	Chars    int    `json:"chars"`
	Clamped  bool   `json:"clamped"`
	RawChars int    `json:"raw_chars"`
}

var sanitizer = bluemonday.UGCPolicy()

// Render converts page HTML into the requested format. Boilerplate
// (nav, header, footer, aside, script) is stripped before conversion.
func Render(pageHTML string, opts Options) (*Result, error) {
	if opts.Format == "" {
		opts.Format = FormatMarkdown
	}
	if opts.MaxChars <= 0 {
		opts.MaxChars = DefaultMaxChars
	}

	doc, err := html.Parse(strings.NewReader(pageHTML))
	if err != nil {
		return nil, fmt.Errorf("content: parse html: %w", err)
	}

	title := findTitle(doc)
	main := findMainContent(doc)
	if main == nil {
		main = doc
	}

	cleaned := sanitizer.Sanitize(renderNode(main))

	var out string
	switch opts.Format {
	case FormatText:
		out = collectText(main)
	case FormatMarkdown:
		md, err := htmltomarkdown.ConvertString(cleaned)
		if err != nil {
			return nil, fmt.Errorf("content: markdown convert: %w", err)
		}
		out = md
	default:
		return nil, fmt.Errorf("content: unknown format %q", opts.Format)
	}

	out = strings.TrimSpace(out)
	raw := len(out)
	clamped := false
	if raw > opts.MaxChars {
		cut := opts.MaxChars
		// Never split a multi-byte rune at the cap.
		for cut > 0 && !utf8.RuneStart(out[cut]) {
			cut--
		}
		out = out[:cut]
		clamped = true
	}

	return &Result{
		Title:    title,
		Content:  out,
		Format:   opts.Format,
		Chars:    len(out),
		Clamped:  clamped,
		RawChars: raw,
	}, nil
}

// findMainContent prefers semantic landmarks (main, article, [role=main])
// over the whole body. Boilerplate containers never qualify.
func findMainContent(doc *html.Node) *html.Node {
	var landmark, body *html.Node
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if landmark != nil {
			return
		}
		if n.Type == html.ElementNode {
			switch {
			case n.DataAtom == atom.Main || n.DataAtom == atom.Article:
				landmark = n
				return
			case attrValue(n, "role") == "main":
				landmark = n
				return
			case n.DataAtom == atom.Body:
				body = n
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	if landmark != nil {
		return landmark
	}
	return body
}

func findTitle(n *html.Node) string {
	if n.Type == html.ElementNode && n.DataAtom == atom.Title && n.FirstChild != nil {
		return strings.TrimSpace(n.FirstChild.Data)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if t := findTitle(c); t != "" {
			return t
		}
	}
	return ""
}

// boilerplate tags are dropped from both text and markdown output.
func isBoilerplate(n *html.Node) bool {
	switch n.DataAtom {
	case atom.Script, atom.Style, atom.Noscript, atom.Nav, atom.Footer,
		atom.Header, atom.Aside, atom.Iframe, atom.Template:
		return true
	}
	return false
}

func collectText(n *html.Node) string {
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && isBoilerplate(n) {
			return
		}
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				b.WriteString(t)
				b.WriteByte(' ')
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.P, atom.Div, atom.Br, atom.Li, atom.Tr,
				atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
				b.WriteByte('\n')
			}
		}
	}
	walk(n)
	return strings.TrimSpace(b.String())
}

func renderNode(n *html.Node) string {
	pruned := prune(n)
	if pruned == nil {
		return ""
	}
	var b strings.Builder
	if err := html.Render(&b, pruned); err != nil {
		return ""
	}
	return b.String()
}

// prune returns a deep copy of n with boilerplate subtrees removed.
func prune(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && isBoilerplate(n) {
		return nil
	}
	cp := &html.Node{
		Type:     n.Type,
		DataAtom: n.DataAtom,
		Data:     n.Data,
		Attr:     append([]html.Attribute(nil), n.Attr...),
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if child := prune(c); child != nil {
			cp.AppendChild(child)
		}
	}
	return cp
}

func attrValue(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
