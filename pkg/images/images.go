// Package images finds image references in parsed HTML pages.
//
// Candidates come from several independent signals: <img> attributes,
// inline CSS backgrounds and the social/meta tags pages publish for link
// previews. Every candidate is resolved against the page URL (or its
// <base href>) and reported once.
package images

import (
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/dyatlov/go-opengraph/opengraph"

	"github.com/jmylchreest/docsift/internal/logger"
)

// Signal names the page feature a candidate was discovered through.
type Signal string

const (
	SignalImgSrc     Signal = "img-src"
	SignalLazySrc    Signal = "lazy-src"
	SignalSrcset     Signal = "srcset"
	SignalBackground Signal = "css-background"
	SignalOpenGraph  Signal = "opengraph"
	SignalTwitter    Signal = "twitter-card"
	SignalMeta       Signal = "generic-meta"
)

// Candidate is an image URL believed to reference an image.
type Candidate struct {
	URL    string `json:"url" yaml:"url"`
	Signal Signal `json:"signal" yaml:"signal"`
}

var (
	imageExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".bmp", ".tiff", ".tif", ".webp", ".svg", ".avif"}
	nonImageExts    = []string{".css", ".js", ".mjs", ".html", ".htm", ".php", ".json", ".xml"}
	imageKeywords   = []string{"image", "img", "photo", "picture", "thumbnail", "avatar", "resizer", "cdn"}
	servicePaths    = []string{"/resizer/", "/resize/", "/thumb/", "/media/", "/assets/images/"}

	backgroundRe = regexp.MustCompile(`background(?:-image)?\s*:[^;]*?url\(\s*["']?([^"')]+?)["']?\s*\)`)
)

// IsImageURL reports whether the URL path ends in a known image extension.
func IsImageURL(raw string) bool {
	lower := strings.ToLower(strings.TrimSpace(raw))
	if lower == "" {
		return false
	}
	p := lower
	if u, err := url.Parse(lower); err == nil && u.Path != "" {
		p = u.Path
	}
	ext := path.Ext(p)
	for _, e := range imageExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// CouldBeImage is the permissive check: data:image URIs, URLs containing an
// image keyword, or known image-service paths. Scripts, stylesheets and
// markup are always rejected.
func CouldBeImage(raw string) bool {
	lower := strings.ToLower(strings.TrimSpace(raw))
	if lower == "" || strings.HasPrefix(lower, "javascript:") || strings.HasPrefix(lower, "data:text") {
		return false
	}
	if strings.HasPrefix(lower, "data:image/") {
		return true
	}
	if strings.HasPrefix(lower, "data:") || strings.HasPrefix(lower, "mailto:") {
		return false
	}

	p := lower
	if u, err := url.Parse(lower); err == nil {
		p = u.Path
	}
	ext := path.Ext(p)
	for _, e := range nonImageExts {
		if ext == e {
			return false
		}
	}

	for _, k := range imageKeywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	for _, s := range servicePaths {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

// Accept combines the strict and permissive checks.
func Accept(raw string) bool {
	return IsImageURL(raw) || CouldBeImage(raw)
}

// collector resolves and deduplicates candidates in discovery order.
type collector struct {
	base *url.URL
	seen map[string]bool
	out  []Candidate
}

func (c *collector) resolve(ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	if strings.HasPrefix(strings.ToLower(ref), "data:") {
		return ref
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	if c.base != nil {
		u = c.base.ResolveReference(u)
	}
	return u.String()
}

// add resolves ref and records it when it passes Accept, whatever signal
// found it.
func (c *collector) add(ref string, sig Signal) {
	abs := c.resolve(ref)
	if abs == "" || c.seen[abs] || !Accept(abs) {
		return
	}
	c.seen[abs] = true
	c.out = append(c.out, Candidate{URL: abs, Signal: sig})
}

// Discover returns the deduplicated image candidates of doc. pageURL is the
// final URL of the page and is used to resolve relative references.
func Discover(doc *goquery.Document, pageURL string) []Candidate {
	if doc == nil {
		return nil
	}
	c := &collector{seen: make(map[string]bool)}
	if u, err := url.Parse(pageURL); err == nil {
		c.base = u
	}
	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if b := c.resolve(href); b != "" {
			if u, err := url.Parse(b); err == nil {
				c.base = u
			}
		}
	}

	discoverElements(doc, c)
	discoverBackgrounds(doc, c)
	discoverMeta(doc, c)

	logger.Debug("image discovery complete", "url", pageURL, "candidates", len(c.out))
	return c.out
}

func discoverElements(doc *goquery.Document, c *collector) {
	doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		if src, ok := s.Attr("src"); ok {
			c.add(src, SignalImgSrc)
		}
		if src, ok := s.Attr("data-src"); ok {
			c.add(src, SignalLazySrc)
		}
		if set, ok := s.Attr("srcset"); ok {
			for _, ref := range ParseSrcset(set) {
				c.add(ref, SignalSrcset)
			}
		}
	})
}

func discoverBackgrounds(doc *goquery.Document, c *collector) {
	doc.Find("[style]").Each(func(_ int, s *goquery.Selection) {
		style, _ := s.Attr("style")
		if !strings.Contains(strings.ToLower(style), "url(") {
			return
		}
		for _, m := range backgroundRe.FindAllStringSubmatch(style, -1) {
			c.add(m[1], SignalBackground)
		}
	})
}

func discoverMeta(doc *goquery.Document, c *collector) {
	og := opengraph.NewOpenGraph()
	var twitter, generic, rest []string

	doc.Find("meta").Each(func(_ int, s *goquery.Selection) {
		content := strings.TrimSpace(s.AttrOr("content", ""))
		if content == "" {
			return
		}
		key := strings.ToLower(s.AttrOr("property", s.AttrOr("name", "")))
		switch key {
		case "og:image", "og:image:url", "og:image:secure_url":
			og.ProcessMeta(map[string]string{"property": "og:image", "content": content})
		case "twitter:image", "twitter:image:src":
			twitter = append(twitter, content)
		case "image", "thumbnail":
			generic = append(generic, content)
		default:
			if looksLikeURL(content) {
				rest = append(rest, content)
			}
		}
	})

	for _, img := range og.Images {
		c.add(img.URL, SignalOpenGraph)
	}
	for _, ref := range twitter {
		c.add(ref, SignalTwitter)
	}
	for _, ref := range generic {
		c.add(ref, SignalMeta)
	}
	for _, ref := range rest {
		c.add(ref, SignalMeta)
	}
}

// ParseSrcset returns the URL token of each srcset entry.
func ParseSrcset(set string) []string {
	var refs []string
	for _, entry := range strings.Split(set, ",") {
		fields := strings.Fields(entry)
		if len(fields) > 0 {
			refs = append(refs, fields[0])
		}
	}
	return refs
}

// looksLikeURL keeps free-text meta values such as descriptions out of the
// permissive sweep.
func looksLikeURL(s string) bool {
	if strings.ContainsAny(s, " \t\n") {
		return false
	}
	lower := strings.ToLower(s)
	return strings.HasPrefix(lower, "http://") ||
		strings.HasPrefix(lower, "https://") ||
		strings.HasPrefix(lower, "//") ||
		strings.HasPrefix(lower, "/") ||
		strings.HasPrefix(lower, "data:image/")
}
