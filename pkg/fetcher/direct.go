package fetcher

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/jmylchreest/docsift/internal/logger"
)

var errNoResponse = errors.New("no response received")

// DirectStrategy fetches with a plain HTTP request dressed as a desktop
// browser. It retries throttled and server-error responses with exponential
// backoff.
type DirectStrategy struct {
	cfg       *Config
	profile   HeaderProfile
	transport http.RoundTripper
}

// NewDirect creates the first rung of the ladder. The transport is shared
// with the other HTTP strategies for connection reuse.
func NewDirect(cfg *Config, transport http.RoundTripper) *DirectStrategy {
	return &DirectStrategy{cfg: cfg, profile: DesktopChromeProfile(), transport: transport}
}

// Name returns the strategy name.
func (s *DirectStrategy) Name() string { return "direct" }

// Eligible is true only as the opening rung.
func (s *DirectStrategy) Eligible(_ Request, p Progress) bool {
	return p.Attempted == 0
}

// Attempt fetches req.URL with retries.
func (s *DirectStrategy) Attempt(ctx context.Context, req Request) (*Outcome, error) {
	return fetchWithRetry(ctx, s.cfg, s.transport, s.Name(), req, s.profile)
}

// fetchWithRetry runs fetchOnce up to cfg.Retry.MaxAttempts times. The
// returned outcome covers the whole sequence; Elapsed includes backoff.
func fetchWithRetry(ctx context.Context, cfg *Config, rt http.RoundTripper, strategy string, req Request, profile HeaderProfile) (*Outcome, error) {
	start := time.Now()
	backoff := cfg.Retry.Backoff

	for attempt := 1; ; attempt++ {
		out, err := fetchOnce(ctx, cfg, rt, strategy, req, profile)
		last := attempt >= cfg.Retry.MaxAttempts

		if err != nil {
			terr := newTransportError(strategy, req.URL, err)
			if last || terr.Unreachable || ctx.Err() != nil {
				return nil, terr
			}
			logger.Debug("transport error, retrying",
				"strategy", strategy, "url", req.URL, "attempt", attempt, "error", err)
		} else {
			if last || !slices.Contains(cfg.Retry.Statuses, out.StatusCode) {
				out.Elapsed = time.Since(start)
				return out, nil
			}
			logger.Debug("retryable status",
				"strategy", strategy, "url", req.URL, "status", out.StatusCode, "attempt", attempt)
		}

		wait := backoff
		if out != nil {
			if ra := retryAfter(out.Header); ra > 0 && ra < 30*time.Second {
				wait = ra
			}
		}
		if err := sleepCtx(ctx, wait); err != nil {
			return nil, newTransportError(strategy, req.URL, err)
		}
		backoff *= 2
	}
}

// fetchOnce performs a single GET through a fresh collector.
func fetchOnce(ctx context.Context, cfg *Config, rt http.RoundTripper, strategy string, req Request, profile HeaderProfile) (*Outcome, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = cfg.Timeout
	}

	c := colly.NewCollector(
		colly.StdlibContext(ctx),
		colly.AllowURLRevisit(),
		colly.ParseHTTPErrorResponse(),
	)
	c.MaxBodySize = cfg.MaxBodySize
	c.WithTransport(rt)
	c.SetRequestTimeout(timeout)

	finalURL := req.URL
	redirects := 0
	c.SetRedirectHandler(func(r *http.Request, via []*http.Request) error {
		if len(via) >= cfg.MaxRedirects {
			return http.ErrUseLastResponse
		}
		redirects = len(via)
		finalURL = r.URL.String()
		return nil
	})

	var out *Outcome
	start := time.Now()
	c.OnResponse(func(r *colly.Response) {
		header := http.Header{}
		if r.Headers != nil {
			header = r.Headers.Clone()
		}
		out = &Outcome{
			RequestURL: req.URL,
			FinalURL:   finalURL,
			StatusCode: r.StatusCode,
			Header:     header,
			Body:       decodeBody(header, r.Body),
			Redirects:  redirects,
			Elapsed:    time.Since(start),
			Strategy:   strategy,
			FetchedAt:  time.Now(),
		}
	})

	var fetchErr error
	c.OnError(func(r *colly.Response, err error) {
		fetchErr = err
	})

	headers := buildHeaders(req, profile, cfg)
	logger.Debug("http fetch",
		"strategy", strategy, "profile", profile.Name, "url", req.URL,
		"user_agent", headers.Get("User-Agent"), "timeout", timeout)

	if err := c.Request(http.MethodGet, req.URL, nil, nil, headers); err != nil {
		return nil, err
	}
	if out == nil {
		if fetchErr != nil {
			return nil, fetchErr
		}
		return nil, errNoResponse
	}

	logger.Debug("http fetch complete",
		"strategy", strategy, "url", req.URL, "final_url", out.FinalURL,
		"status", out.StatusCode, "body_size", len(out.Body), "redirects", out.Redirects)
	return out, nil
}

func retryAfter(h http.Header) time.Duration {
	if h == nil {
		return 0
	}
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		return time.Until(t)
	}
	return 0
}
