package extract

import (
	"bytes"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"

	"github.com/jmylchreest/docsift/internal/logger"
	"github.com/jmylchreest/docsift/pkg/cleaner"
)

// NoTitle is the title reported for pages without a title element.
const NoTitle = "No title"

// ParseHTML converts body to UTF-8 (using the charset from contentType or a
// meta tag) and parses it.
func ParseHTML(body []byte, contentType string) (*goquery.Document, error) {
	var r io.Reader = bytes.NewReader(body)
	if utf8Reader, err := charset.NewReader(r, contentType); err == nil {
		r = utf8Reader
	} else {
		logger.Debug("charset detection failed, assuming utf-8", "content_type", contentType, "error", err)
		r = bytes.NewReader(body)
	}
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, &ExtractionError{Method: "html-parse", Err: err}
	}
	return doc, nil
}

// HTMLResult is the text extracted from one page.
type HTMLResult struct {
	Title    string
	Text     string
	Markdown string
}

// HTMLExtractor pulls visible text out of parsed pages.
type HTMLExtractor struct {
	markdown cleaner.Cleaner
}

// NewHTMLExtractor creates an extractor; Markdown rendering is enabled by
// cfg.Markdown.
func NewHTMLExtractor(cfg Config) *HTMLExtractor {
	x := &HTMLExtractor{}
	if cfg.Markdown {
		x.markdown = cleaner.NewChain(cleaner.NewNoise(), cleaner.NewMarkdown())
	}
	return x
}

// Extract returns the title and visible text of doc. doc itself is not
// modified, so callers can keep using it for image discovery.
func (x *HTMLExtractor) Extract(doc *goquery.Document) (HTMLResult, error) {
	res := HTMLResult{Title: NoTitle}
	if doc == nil {
		return res, &ExtractionError{Method: "html", Err: io.ErrUnexpectedEOF}
	}
	if title := cleanText(doc.Find("title").First().Text()); title != "" {
		res.Title = title
	}

	root := doc.Selection.Clone()
	root.Find("script, style, meta, link").Remove()

	body := root.Find("body")
	if body.Length() == 0 {
		body = root
	}
	res.Text = visibleText(body)

	if x.markdown != nil {
		if h, err := goquery.OuterHtml(root); err == nil {
			md, err := x.markdown.Clean(h)
			if err != nil {
				logger.Warn("markdown rendering failed", "cleaner", x.markdown.Name(), "error", err)
			} else {
				res.Markdown = md
			}
		}
	}
	return res, nil
}

// HTMLText extracts with the default configuration.
func HTMLText(doc *goquery.Document) (HTMLResult, error) {
	return NewHTMLExtractor(DefaultConfig()).Extract(doc)
}

// visibleText joins every text node under sel with single spaces, so that
// adjacent block elements do not run together.
func visibleText(sel *goquery.Selection) string {
	var parts []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				parts = append(parts, t)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return cleanText(strings.Join(parts, " "))
}

// cleanText collapses whitespace runs to single spaces.
func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
