// Package content turns captured page HTML into reader-friendly formats.
//
// Extraction reads the title and visible text off the raw markup and
// derives a markdown rendition from a sanitized copy. Conversion
// failures degrade to plain text rather than erroring: a page that
// rendered at all should always yield something readable.
package content

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Document is the extracted form of one page.
type Document struct {
	Title    string `json:"title"`
	Markdown string `json:"markdown"`
	Text     string `json:"text"`
}

var (
	sanitizer = bluemonday.UGCPolicy()

	md = converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(),
			table.NewTablePlugin(),
		),
	)
)

// Extract converts raw page HTML into a Document. pageURL resolves
// relative links in the markdown output and may be empty.
func Extract(rawHTML, pageURL string) (*Document, error) {
	if strings.TrimSpace(rawHTML) == "" {
		return nil, fmt.Errorf("content: empty document")
	}

	// Title and text need the raw tree: sanitization drops <head> content
	// and the style attributes the hidden-node check reads.
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("content: parse: %w", err)
	}
	title := findTitle(doc)
	text := collectText(doc)

	markdown := text
	clean := sanitizer.Sanitize(rawHTML)
	if out, err := md.ConvertString(clean, converter.WithDomain(pageURL)); err == nil {
		if s := strings.TrimSpace(out); s != "" {
			markdown = s
		}
	}

	return &Document{
		Title:    title,
		Markdown: markdown,
		Text:     text,
	}, nil
}

func findTitle(doc *html.Node) string {
	var find func(*html.Node) string
	find = func(n *html.Node) string {
		if n.Type == html.ElementNode && n.DataAtom == atom.Title {
			if n.FirstChild != nil {
				return strings.TrimSpace(n.FirstChild.Data)
			}
			return ""
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if t := find(c); t != "" {
				return t
			}
		}
		return ""
	}
	return find(doc)
}

var hiddenStylePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)display\s*:\s*none`),
	regexp.MustCompile(`(?i)visibility\s*:\s*hidden`),
}

func hasHiddenStyle(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	for _, a := range n.Attr {
		if a.Key != "style" {
			continue
		}
		for _, pat := range hiddenStylePatterns {
			if pat.MatchString(a.Val) {
				return true
			}
		}
	}
	return false
}

// collectText walks the tree and gathers visible body text, skipping the
// head, scripts, styles and hidden nodes.
func collectText(root *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				if sb.Len() > 0 {
					sb.WriteByte(' ')
				}
				sb.WriteString(t)
			}
		}
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Head, atom.Script, atom.Style, atom.Noscript:
				return
			}
			if hasHiddenStyle(n) {
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return sb.String()
}
