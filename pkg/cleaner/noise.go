package cleaner

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// noiseSelectors are elements that carry no readable content.
var noiseSelectors = []string{
	"script", "style", "noscript", "template",
	"nav", "footer", "header", "aside",
	"img", "picture", "figure", "svg", "canvas",
	"iframe", "video", "audio",
	"form", "button", "input", "select", "textarea",
	".sidebar", ".menu", ".navigation", ".ads", ".advertisement", ".cookie-banner",
}

// NoiseCleaner strips page chrome and returns the main content container.
type NoiseCleaner struct{}

// NewNoise creates a noise cleaner.
func NewNoise() *NoiseCleaner { return &NoiseCleaner{} }

// Clean removes noise elements and returns the first of <main>, <article>
// or <body> as an HTML fragment.
func (c *NoiseCleaner) Clean(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("parsing HTML: %w", err)
	}
	doc.Find(strings.Join(noiseSelectors, ", ")).Remove()

	for _, tag := range []string{"main", "article", "body"} {
		if sel := doc.Find(tag).First(); sel.Length() > 0 {
			return goquery.OuterHtml(sel)
		}
	}
	return goquery.OuterHtml(doc.Selection)
}

// Name returns the cleaner type.
func (c *NoiseCleaner) Name() string { return "noise" }
