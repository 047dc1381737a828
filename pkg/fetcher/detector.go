package fetcher

import (
	"bytes"
	"fmt"
	"slices"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Detector applies the blocking heuristic to outcomes.
type Detector struct {
	cfg BlockingConfig
}

// NewDetector creates a detector. Phrases are matched case-insensitively.
func NewDetector(cfg BlockingConfig) *Detector {
	phrases := make([]string, 0, len(cfg.Phrases))
	for _, p := range cfg.Phrases {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			phrases = append(phrases, p)
		}
	}
	cfg.Phrases = phrases
	return &Detector{cfg: cfg}
}

// Verdict is the detector's judgement on one outcome.
type Verdict struct {
	Blocked bool
	Reason  string
}

// Inspect judges o. PDF payloads are only judged on status, since phrase and
// size checks are meant for HTML walls.
func (d *Detector) Inspect(o *Outcome) Verdict {
	if o == nil {
		return Verdict{Blocked: true, Reason: "no response"}
	}
	if slices.Contains(d.cfg.Statuses, o.StatusCode) {
		return Verdict{Blocked: true, Reason: fmt.Sprintf("status %d", o.StatusCode)}
	}
	if isPDFPayload(o) {
		return Verdict{}
	}

	lower := strings.ToLower(string(o.Body))
	for _, phrase := range d.cfg.Phrases {
		if strings.Contains(lower, phrase) {
			return Verdict{Blocked: true, Reason: "phrase: " + phrase}
		}
	}
	if d.cfg.DetectChallenges {
		if challenge := detectChallengePage(pageTitle(lower), lower); challenge != "" {
			return Verdict{Blocked: true, Reason: "challenge: " + challenge}
		}
	}
	if len(o.Body) < d.cfg.MinBodyBytes {
		return Verdict{Blocked: true, Reason: fmt.Sprintf("short body (%d < %d bytes)", len(o.Body), d.cfg.MinBodyBytes)}
	}
	return Verdict{}
}

// Blocked is shorthand for Inspect(o).Blocked.
func (d *Detector) Blocked(o *Outcome) bool {
	return d.Inspect(o).Blocked
}

func isPDFPayload(o *Outcome) bool {
	return bytes.HasPrefix(o.Body, []byte("%PDF")) ||
		strings.Contains(strings.ToLower(o.ContentType()), "application/pdf")
}

// pageTitle pulls the title text out of lowercased HTML without a full parse.
func pageTitle(lowerHTML string) string {
	start := strings.Index(lowerHTML, "<title")
	if start == -1 {
		return ""
	}
	open := strings.Index(lowerHTML[start:], ">")
	if open == -1 {
		return ""
	}
	rest := lowerHTML[start+open+1:]
	end := strings.Index(rest, "</title>")
	if end == -1 {
		return ""
	}
	return strings.TrimSpace(rest[:end])
}

// detectChallengePage names the challenge or CAPTCHA product behind a page,
// or returns "" for ordinary content. Both arguments must be lowercase.
func detectChallengePage(title, html string) string {
	switch {
	case strings.Contains(title, "just a moment"),
		strings.Contains(title, "attention required"),
		strings.Contains(html, "cf-challenge"),
		strings.Contains(html, "cf_chl_opt"):
		return "cloudflare"
	case strings.Contains(html, "challenges.cloudflare.com/turnstile"),
		strings.Contains(html, "cf-turnstile"):
		return "cloudflare-turnstile"
	case strings.Contains(html, "hcaptcha.com"),
		strings.Contains(html, "h-captcha"):
		return "hcaptcha"
	case strings.Contains(html, "google.com/recaptcha"),
		strings.Contains(html, "g-recaptcha"):
		return "recaptcha"
	case strings.Contains(title, "access denied"),
		strings.Contains(title, "bot detection"),
		strings.Contains(html, "robot or human"):
		return "anti-bot"
	}
	return ""
}

// Framework mount points left empty until client-side code runs.
var shellMarkers = []string{
	`<div id="root"></div>`,
	`<div id="app"></div>`,
	`<app-root></app-root>`,
	`<div id="__next"></div>`,
	`<div id="__nuxt"></div>`,
	"ng-app",
	"v-cloak",
}

var jsRequiredPhrases = []string{
	"enable javascript",
	"javascript is required",
	"javascript required",
	"you need to enable javascript",
}

// LooksLikeShell reports whether an accepted HTML response is an unrendered
// single-page-app shell that needs a browser to produce content.
func LooksLikeShell(o *Outcome) bool {
	if o == nil || isPDFPayload(o) {
		return false
	}
	lower := strings.ToLower(string(o.Body))
	if !strings.Contains(lower, "<html") && !strings.Contains(lower, "<body") {
		return false
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(o.Body))
	if err != nil {
		return false
	}
	doc.Find("script, style, noscript, template").Remove()
	text := cleanText(doc.Find("body").Text())
	if len(text) >= 200 {
		return false
	}

	for _, marker := range shellMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	lowerText := strings.ToLower(text)
	for _, phrase := range jsRequiredPhrases {
		if strings.Contains(lowerText, phrase) || strings.Contains(lower, "<noscript>"+phrase) {
			return true
		}
	}
	return false
}
