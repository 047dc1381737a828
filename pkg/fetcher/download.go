package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
)

// Downloader fetches page resources such as images over the engine's
// connection pool. It makes a single attempt with no politeness delay;
// pacing is the caller's job.
type Downloader struct {
	cfg       *Config
	transport http.RoundTripper
}

// NewDownloader creates a downloader sharing transport.
func NewDownloader(cfg *Config, transport http.RoundTripper) *Downloader {
	return &Downloader{cfg: cfg, transport: transport}
}

// Download GETs rawURL with image-oriented Accept headers. The referer is
// normally the page the resource was found on. Non-2xx responses are errors.
func (d *Downloader) Download(ctx context.Context, rawURL, referer string, timeout time.Duration, maxBytes int) ([]byte, string, error) {
	c := colly.NewCollector(
		colly.StdlibContext(ctx),
		colly.AllowURLRevisit(),
		colly.ParseHTTPErrorResponse(),
	)
	c.WithTransport(d.transport)
	c.SetRequestTimeout(timeout)
	if maxBytes > 0 {
		c.MaxBodySize = maxBytes
	}

	var (
		status      int
		body        []byte
		contentType string
	)
	c.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		header := http.Header{}
		if r.Headers != nil {
			header = *r.Headers
		}
		contentType = header.Get("Content-Type")
		body = decodeBody(header, r.Body)
	})

	h := http.Header{}
	h.Set("User-Agent", pickUserAgent("", HeaderProfile{}, d.cfg.UserAgents))
	h.Set("Accept", "image/avif,image/webp,image/apng,image/svg+xml,image/*,*/*;q=0.8")
	h.Set("Accept-Encoding", "gzip, deflate")
	h.Set("Sec-Fetch-Dest", "image")
	h.Set("Sec-Fetch-Mode", "no-cors")
	h.Set("Sec-Fetch-Site", "cross-site")
	if referer != "" {
		h.Set("Referer", referer)
	}

	if err := c.Request(http.MethodGet, rawURL, nil, nil, h); err != nil {
		return nil, "", newTransportError("download", rawURL, err)
	}
	if status == 0 {
		return nil, "", newTransportError("download", rawURL, errNoResponse)
	}
	if status < 200 || status > 299 {
		return nil, contentType, fmt.Errorf("download %s: unexpected status %d", rawURL, status)
	}
	return body, contentType, nil
}
