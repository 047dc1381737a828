package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/jmylchreest/docsift/internal/logger"
)

// BrowserStrategy renders pages in headless Chrome. Chrome instances come
// from a fixed-size pool; each instance serves one render at a time.
type BrowserStrategy struct {
	cfg      *Config
	pool     *browserPool
	jsHosts  map[string]struct{}
	closeErr error
	once     sync.Once
}

// NewBrowser creates the last rung. Chrome is not started until the first
// render needs it.
func NewBrowser(cfg *Config) *BrowserStrategy {
	hosts := make(map[string]struct{}, len(cfg.Browser.JSDomains))
	for _, d := range cfg.Browser.JSDomains {
		if d = strings.ToLower(strings.TrimSpace(d)); d != "" {
			hosts[strings.TrimPrefix(d, "www.")] = struct{}{}
		}
	}
	return &BrowserStrategy{
		cfg:     cfg,
		pool:    newBrowserPool(cfg.Browser.PoolSize, allocatorOptions(cfg.Browser)),
		jsHosts: hosts,
	}
}

// Name returns the strategy name.
func (s *BrowserStrategy) Name() string { return "browser" }

// Eligible decides whether to render. Forced requests and JavaScript-heavy
// hosts always render; otherwise the escalation switches apply.
func (s *BrowserStrategy) Eligible(req Request, p Progress) bool {
	if req.ForceBrowser {
		return true
	}
	if !s.cfg.Browser.Enabled {
		return false
	}
	switch {
	case s.IsJSHost(req.URL):
		return true
	case p.WantsBrowser && s.cfg.Browser.EscalateOnSPA:
		return true
	case p.Accepted == nil && s.cfg.Browser.EscalateOnBlock:
		return true
	}
	return false
}

// IsJSHost reports whether rawURL's host, or a parent domain of it, is on
// the JavaScript-heavy allow-list.
func (s *BrowserStrategy) IsJSHost(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	for host != "" {
		if _, ok := s.jsHosts[host]; ok {
			return true
		}
		dot := strings.IndexByte(host, '.')
		if dot == -1 {
			break
		}
		host = host[dot+1:]
	}
	return false
}

// Attempt renders req.URL and returns the serialized DOM.
func (s *BrowserStrategy) Attempt(ctx context.Context, req Request) (*Outcome, error) {
	inst, err := s.pool.acquire(ctx)
	if err != nil {
		return nil, err
	}
	healthy := true
	defer func() { s.pool.release(inst, healthy) }()

	out, err := s.render(ctx, inst, req)
	if inst.ctx.Err() != nil {
		healthy = false
	}
	return out, err
}

// documentInfo is what the event listener learns about the main document.
type documentInfo struct {
	mu        sync.Mutex
	seen      bool
	status    int
	header    http.Header
	redirects int
}

func (s *BrowserStrategy) render(ctx context.Context, inst *browserInstance, req Request) (*Outcome, error) {
	bc := s.cfg.Browser
	start := time.Now()

	tabCtx, cancelTab := chromedp.NewContext(inst.ctx)
	defer cancelTab()

	timeout := bc.Timeout
	if req.Timeout > 0 && req.Timeout < timeout {
		timeout = req.Timeout
	}
	runCtx, cancelRun := context.WithTimeout(tabCtx, timeout)
	defer cancelRun()
	stop := context.AfterFunc(ctx, cancelRun)
	defer stop()

	info := &documentInfo{}
	idle := make(chan struct{}, 1)
	chromedp.ListenTarget(tabCtx, func(ev any) {
		switch e := ev.(type) {
		case *network.EventRequestWillBeSent:
			if e.Type == network.ResourceTypeDocument && e.RedirectResponse != nil {
				info.mu.Lock()
				if !info.seen {
					info.redirects++
				}
				info.mu.Unlock()
			}
		case *network.EventResponseReceived:
			if e.Type != network.ResourceTypeDocument || e.Response == nil {
				return
			}
			info.mu.Lock()
			if !info.seen {
				info.seen = true
				info.status = int(e.Response.Status)
				info.header = headersFromCDP(e.Response.Headers, e.Response.MimeType)
			}
			info.mu.Unlock()
		case *page.EventLifecycleEvent:
			if e.Name != "networkIdle" {
				return
			}
			info.mu.Lock()
			seen := info.seen
			info.mu.Unlock()
			if seen {
				select {
				case idle <- struct{}{}:
				default:
				}
			}
		}
	})

	ua := pickUserAgent(req.UserAgent, HeaderProfile{}, s.cfg.UserAgents)
	extra := network.Headers{"Referer": coalesce(req.Referer, s.cfg.Referer)}
	if req.AuthToken != "" {
		extra["Authorization"] = "Bearer " + req.AuthToken
	}

	var (
		html     string
		finalURL string
	)
	actions := chromedp.Tasks{
		network.Enable(),
		page.SetLifecycleEventsEnabled(true),
		emulation.SetUserAgentOverride(ua).WithAcceptLanguage(bc.Locale + ",en;q=0.9"),
		emulation.SetLocaleOverride().WithLocale(bc.Locale),
		emulation.SetDeviceMetricsOverride(int64(bc.Width), int64(bc.Height), 1, false),
		network.SetExtraHTTPHeaders(extra),
		injectStealthScript(),
		chromedp.Navigate(req.URL),
		waitNetworkIdle(idle, bc.IdleWait),
		chromedp.Sleep(bc.Settle),
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	}

	logger.Debug("browser render starting", "url", req.URL, "timeout", timeout, "user_agent", ua)
	if err := chromedp.Run(runCtx, actions); err != nil {
		return nil, s.renderError(ctx, req.URL, err)
	}

	info.mu.Lock()
	status, header, redirects := info.status, info.header, info.redirects
	info.mu.Unlock()
	if status == 0 {
		status = http.StatusOK
	}
	if header == nil {
		header = http.Header{"Content-Type": []string{"text/html; charset=utf-8"}}
	}

	out := &Outcome{
		RequestURL: req.URL,
		FinalURL:   coalesce(finalURL, req.URL),
		StatusCode: status,
		Header:     header,
		Body:       []byte(html),
		Redirects:  redirects,
		Elapsed:    time.Since(start),
		Strategy:   s.Name(),
		FetchedAt:  time.Now(),
	}
	logger.Debug("browser render complete",
		"url", req.URL, "final_url", out.FinalURL, "status", status, "body_size", len(out.Body))
	return out, nil
}

// renderError maps chromedp failures onto the package's error types.
func (s *BrowserStrategy) renderError(ctx context.Context, target string, err error) error {
	msg := err.Error()
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled), ctx.Err() != nil:
		return &TransportError{Strategy: s.Name(), URL: target, Err: err}
	case strings.Contains(msg, "ERR_NAME_NOT_RESOLVED"),
		strings.Contains(msg, "ERR_CONNECTION_REFUSED"),
		strings.Contains(msg, "ERR_CERT_"),
		strings.Contains(msg, "ERR_SSL_"):
		return &TransportError{Strategy: s.Name(), URL: target, Err: err, Unreachable: true}
	case strings.Contains(msg, "net::ERR_"):
		return &TransportError{Strategy: s.Name(), URL: target, Err: err}
	}
	return fmt.Errorf("browser automation failed: %w", err)
}

// waitNetworkIdle blocks until the page reports network idle or max elapses.
// Hitting the cap is not an error; slow trackers never go idle.
func waitNetworkIdle(idle <-chan struct{}, max time.Duration) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		t := time.NewTimer(max)
		defer t.Stop()
		select {
		case <-idle:
		case <-t.C:
			logger.Debug("network idle not reached, continuing", "waited", max)
		case <-ctx.Done():
			return ctx.Err()
		}
		return nil
	})
}

func headersFromCDP(h network.Headers, mimeType string) http.Header {
	out := make(http.Header, len(h)+1)
	for k, v := range h {
		out.Set(k, fmt.Sprint(v))
	}
	if out.Get("Content-Type") == "" && mimeType != "" {
		out.Set("Content-Type", mimeType)
	}
	// Chrome has already decoded the body we read back from the DOM.
	out.Del("Content-Encoding")
	out.Del("Content-Length")
	return out
}

// Close shuts down every Chrome instance in the pool.
func (s *BrowserStrategy) Close() error {
	s.once.Do(func() { s.closeErr = s.pool.close() })
	return s.closeErr
}

// browserInstance is one Chrome process and its root browser context.
type browserInstance struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// browserPool hands out Chrome instances. A nil slot is an instance that has
// not been started yet (or was discarded after a crash).
type browserPool struct {
	slots  chan *browserInstance
	size   int
	opts   []chromedp.ExecAllocatorOption
	mu     sync.Mutex
	closed bool
}

func newBrowserPool(size int, opts []chromedp.ExecAllocatorOption) *browserPool {
	p := &browserPool{slots: make(chan *browserInstance, size), size: size, opts: opts}
	for range size {
		p.slots <- nil
	}
	return p
}

func (p *browserPool) acquire(ctx context.Context) (*browserInstance, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return nil, fmt.Errorf("%w: pool closed", ErrBrowserUnavailable)
	}

	var inst *browserInstance
	select {
	case inst = <-p.slots:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if inst != nil {
		return inst, nil
	}

	inst, err := p.start()
	if err != nil {
		p.slots <- nil
		return nil, err
	}
	return inst, nil
}

func (p *browserPool) start() (*browserInstance, error) {
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), p.opts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(format string, args ...any) {
			logger.Debug("chromedp", "msg", fmt.Sprintf(format, args...))
		}),
	)
	cancel := func() {
		cancelBrowser()
		cancelAlloc()
	}
	if err := chromedp.Run(browserCtx); err != nil {
		cancel()
		return nil, fmt.Errorf("%w: %v", ErrBrowserUnavailable, err)
	}
	logger.Debug("chrome instance started")
	return &browserInstance{ctx: browserCtx, cancel: cancel}, nil
}

func (p *browserPool) release(inst *browserInstance, healthy bool) {
	if inst != nil && !healthy {
		logger.Warn("discarding crashed chrome instance")
		inst.cancel()
		inst = nil
	}
	p.slots <- inst
}

// close waits for in-flight renders to finish and stops every instance.
func (p *browserPool) close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	for range p.size {
		if inst := <-p.slots; inst != nil {
			inst.cancel()
		}
	}
	return nil
}
