package fetcher

import (
	"math/rand/v2"
	"net/http"
)

var defaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
}

// HeaderProfile is a browser fingerprint expressed as request headers.
type HeaderProfile struct {
	Name string `mapstructure:"name"`
	// UserAgent is fixed for the profile; empty means rotate through
	// Config.UserAgents.
	UserAgent string            `mapstructure:"user_agent"`
	Headers   map[string]string `mapstructure:"headers"`
}

// DesktopChromeProfile is the header set used by the direct strategy.
func DesktopChromeProfile() HeaderProfile {
	return HeaderProfile{
		Name: "desktop-chrome",
		Headers: map[string]string{
			"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8,application/signed-exchange;v=b3;q=0.7",
			"Accept-Language":           "en-US,en;q=0.9,es;q=0.8,fr;q=0.7",
			"Accept-Encoding":           "gzip, deflate",
			"Connection":                "keep-alive",
			"Upgrade-Insecure-Requests": "1",
			"Sec-Fetch-Dest":            "document",
			"Sec-Fetch-Mode":            "navigate",
			"Sec-Fetch-Site":            "none",
			"Sec-Fetch-User":            "?1",
			"Cache-Control":             "max-age=0",
			"DNT":                       "1",
		},
	}
}

// MobileSafariProfile mimics Safari on an iPhone.
func MobileSafariProfile() HeaderProfile {
	return HeaderProfile{
		Name:      "mobile-safari",
		UserAgent: "Mozilla/5.0 (iPhone; CPU iPhone OS 17_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Mobile/15E148 Safari/604.1",
		Headers: map[string]string{
			"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
			"Accept-Language": "en-US,en;q=0.9",
			"Accept-Encoding": "gzip, deflate",
			"Connection":      "keep-alive",
			"Sec-Fetch-Dest":  "document",
			"Sec-Fetch-Mode":  "navigate",
			"Sec-Fetch-Site":  "none",
		},
	}
}

// FirefoxDesktopProfile mimics Firefox on Windows.
func FirefoxDesktopProfile() HeaderProfile {
	return HeaderProfile{
		Name:      "firefox-desktop",
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
		Headers: map[string]string{
			"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
			"Accept-Language":           "en-US,en;q=0.5",
			"Accept-Encoding":           "gzip, deflate",
			"Connection":                "keep-alive",
			"Upgrade-Insecure-Requests": "1",
			"Sec-Fetch-Dest":            "document",
			"Sec-Fetch-Mode":            "navigate",
			"Sec-Fetch-Site":            "none",
			"Sec-Fetch-User":            "?1",
			"DNT":                       "1",
		},
	}
}

// pickUserAgent returns the request override, the profile's fixed agent, or a
// random entry from agents.
func pickUserAgent(override string, profile HeaderProfile, agents []string) string {
	if override != "" {
		return override
	}
	if profile.UserAgent != "" {
		return profile.UserAgent
	}
	if len(agents) == 0 {
		return defaultUserAgents[0]
	}
	return agents[rand.IntN(len(agents))]
}

// buildHeaders assembles the request headers for one attempt.
func buildHeaders(req Request, profile HeaderProfile, cfg *Config) http.Header {
	h := make(http.Header, len(profile.Headers)+3)
	for k, v := range profile.Headers {
		h.Set(k, v)
	}
	h.Set("User-Agent", pickUserAgent(req.UserAgent, profile, cfg.UserAgents))
	if ref := coalesce(req.Referer, cfg.Referer); ref != "" {
		h.Set("Referer", ref)
		// A referer makes the navigation cross-site rather than typed.
		if h.Get("Sec-Fetch-Site") != "" {
			h.Set("Sec-Fetch-Site", "cross-site")
		}
	}
	if req.AuthToken != "" {
		h.Set("Authorization", "Bearer "+req.AuthToken)
	}
	return h
}
