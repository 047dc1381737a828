package fetcher

import (
	"bytes"
	"compress/zlib"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

var longPage = "<html><head><title>Article</title></head><body><p>" +
	strings.Repeat("Readable article text. ", 80) + "</p></body></html>"

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Politeness.Disabled = true
	cfg.Retry.Backoff = time.Millisecond
	cfg.Browser.Enabled = false
	cfg.Timeout = 5 * time.Second
	return cfg
}

// --- Detector Tests ---

func TestDetector_Inspect(t *testing.T) {
	d := NewDetector(DefaultConfig().Blocking)
	html := http.Header{"Content-Type": []string{"text/html"}}

	tests := []struct {
		name    string
		outcome *Outcome
		blocked bool
		reason  string
	}{
		{"ok page", &Outcome{StatusCode: 200, Header: html, Body: []byte(longPage)}, false, ""},
		{"forbidden", &Outcome{StatusCode: 403, Header: html, Body: []byte(longPage)}, true, "status 403"},
		{"cdn phrase", &Outcome{StatusCode: 200, Header: html, Body: []byte(longPage + "The request could not be satisfied.")}, true, "phrase: request could not be satisfied"},
		{"phrase case-insensitive", &Outcome{StatusCode: 200, Header: html, Body: []byte(longPage + "ACCESS DENIED")}, true, "phrase: access denied"},
		{"short body", &Outcome{StatusCode: 200, Header: html, Body: []byte("<html>tiny</html>")}, true, "short body"},
		{"challenge", &Outcome{StatusCode: 200, Header: html, Body: []byte(longPage + `<div class="g-recaptcha"></div>`)}, true, "challenge: recaptcha"},
		{"small pdf allowed", &Outcome{StatusCode: 200, Body: []byte("%PDF-1.4 tiny")}, false, ""},
		{"pdf still checks status", &Outcome{StatusCode: 403, Body: []byte("%PDF-1.4 tiny")}, true, "status 403"},
		{"nil", nil, true, "no response"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := d.Inspect(tt.outcome)
			if v.Blocked != tt.blocked {
				t.Errorf("expected blocked=%v, got %v (%s)", tt.blocked, v.Blocked, v.Reason)
			}
			if !strings.HasPrefix(v.Reason, tt.reason) {
				t.Errorf("expected reason prefix %q, got %q", tt.reason, v.Reason)
			}
		})
	}
}

func TestDetector_ThresholdIsConfigurable(t *testing.T) {
	cfg := DefaultConfig().Blocking
	cfg.MinBodyBytes = 10
	d := NewDetector(cfg)
	if d.Blocked(&Outcome{StatusCode: 200, Body: []byte("<p>short but fine</p>")}) {
		t.Error("expected body above custom threshold to pass")
	}
}

func TestLooksLikeShell(t *testing.T) {
	shell := &Outcome{StatusCode: 200, Body: []byte(`<html><body><div id="root"></div><script src="/app.js"></script></body></html>`)}
	if !LooksLikeShell(shell) {
		t.Error("expected empty React root to look like a shell")
	}
	noscript := &Outcome{StatusCode: 200, Body: []byte(`<html><body><noscript>Enable JavaScript to continue</noscript></body></html>`)}
	if !LooksLikeShell(noscript) {
		t.Error("expected enable-javascript notice to look like a shell")
	}
	if LooksLikeShell(&Outcome{StatusCode: 200, Body: []byte(longPage)}) {
		t.Error("expected content page not to look like a shell")
	}
}

// --- Politeness Tests ---

func TestPoliteness_Delay(t *testing.T) {
	p := NewPoliteness(PolitenessConfig{Min: 10 * time.Millisecond, Max: 20 * time.Millisecond})
	for range 50 {
		d := p.Delay(0)
		if d < 10*time.Millisecond || d >= 20*time.Millisecond {
			t.Fatalf("delay %v outside [10ms,20ms)", d)
		}
	}
	if got := p.Delay(time.Second); got != time.Second {
		t.Errorf("expected override to be used, got %v", got)
	}
}

func TestPoliteness_StealthAndDisabled(t *testing.T) {
	cfg := DefaultConfig().Politeness
	cfg.Stealth = true
	p := NewPoliteness(cfg)
	if d := p.Delay(0); d < 2*time.Second || d >= 5*time.Second {
		t.Errorf("stealth delay %v outside [2s,5s)", d)
	}

	off := NewPoliteness(PolitenessConfig{Min: time.Second, Max: 2 * time.Second, Disabled: true})
	if d := off.Delay(0); d != 0 {
		t.Errorf("expected disabled delay 0, got %v", d)
	}
}

func TestPoliteness_WaitHonoursContext(t *testing.T) {
	p := NewPoliteness(PolitenessConfig{Min: time.Hour, Max: time.Hour})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := p.Wait(ctx, 0); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

// --- Header Tests ---

func TestBuildHeaders(t *testing.T) {
	cfg := DefaultConfig()

	h := buildHeaders(Request{URL: "https://example.com"}, DesktopChromeProfile(), &cfg)
	if h.Get("Referer") != "https://www.google.com/" {
		t.Errorf("expected default search referer, got %q", h.Get("Referer"))
	}
	if !slices.Contains(cfg.UserAgents, h.Get("User-Agent")) {
		t.Errorf("expected rotated UA from list, got %q", h.Get("User-Agent"))
	}
	if h.Get("Sec-Fetch-Mode") != "navigate" || h.Get("DNT") != "1" {
		t.Error("expected browser fetch metadata headers")
	}
	if h.Get("Authorization") != "" {
		t.Error("expected no Authorization header without a token")
	}

	h = buildHeaders(Request{UserAgent: "custom/1.0", Referer: "https://ref.example/", AuthToken: "tok"}, DesktopChromeProfile(), &cfg)
	if h.Get("User-Agent") != "custom/1.0" {
		t.Errorf("expected UA override, got %q", h.Get("User-Agent"))
	}
	if h.Get("Referer") != "https://ref.example/" {
		t.Errorf("expected explicit referer, got %q", h.Get("Referer"))
	}
	if h.Get("Authorization") != "Bearer tok" {
		t.Errorf("expected bearer token, got %q", h.Get("Authorization"))
	}

	h = buildHeaders(Request{}, MobileSafariProfile(), &cfg)
	if !strings.Contains(h.Get("User-Agent"), "iPhone") {
		t.Errorf("expected profile UA, got %q", h.Get("User-Agent"))
	}
}

// --- DirectStrategy Tests ---

func TestDirect_RetriesRetryableStatus(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(longPage))
	}))
	defer srv.Close()

	cfg := testConfig().withDefaults()
	out, err := NewDirect(&cfg, newTransport(2)).Attempt(context.Background(), Request{URL: srv.URL})
	if err != nil {
		t.Fatalf("Attempt() error = %v", err)
	}
	if out.StatusCode != 200 {
		t.Errorf("expected status 200, got %d", out.StatusCode)
	}
	if hits.Load() != 3 {
		t.Errorf("expected 3 requests, got %d", hits.Load())
	}
	if out.Strategy != "direct" {
		t.Errorf("expected strategy direct, got %q", out.Strategy)
	}
}

func TestDirect_ExhaustedRetriesReturnLastResponse(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	cfg := testConfig().withDefaults()
	out, err := NewDirect(&cfg, newTransport(2)).Attempt(context.Background(), Request{URL: srv.URL})
	if err != nil {
		t.Fatalf("Attempt() error = %v", err)
	}
	if out.StatusCode != http.StatusBadGateway {
		t.Errorf("expected 502, got %d", out.StatusCode)
	}
	if hits.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", hits.Load())
	}
}

func TestDirect_FollowsRedirects(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) { http.Redirect(w, r, "/b", http.StatusFound) })
	mux.HandleFunc("/b", func(w http.ResponseWriter, r *http.Request) { http.Redirect(w, r, "/c", http.StatusMovedPermanently) })
	mux.HandleFunc("/c", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte(longPage)) })
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := testConfig().withDefaults()
	out, err := NewDirect(&cfg, newTransport(2)).Attempt(context.Background(), Request{URL: srv.URL + "/a"})
	if err != nil {
		t.Fatalf("Attempt() error = %v", err)
	}
	if out.FinalURL != srv.URL+"/c" {
		t.Errorf("expected final URL %s/c, got %s", srv.URL, out.FinalURL)
	}
	if out.Redirects != 2 {
		t.Errorf("expected 2 redirects, got %d", out.Redirects)
	}
	if out.RequestURL != srv.URL+"/a" {
		t.Errorf("expected request URL preserved, got %s", out.RequestURL)
	}
}

func TestDirect_DecodesDeflate(t *testing.T) {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	_, _ = zw.Write([]byte(longPage))
	_ = zw.Close()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "deflate")
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write(buf.Bytes())
	}))
	defer srv.Close()

	cfg := testConfig().withDefaults()
	out, err := NewDirect(&cfg, newTransport(2)).Attempt(context.Background(), Request{URL: srv.URL})
	if err != nil {
		t.Fatalf("Attempt() error = %v", err)
	}
	if string(out.Body) != longPage {
		t.Errorf("expected decoded body, got %d bytes", len(out.Body))
	}
}

func TestDirect_SendsBrowserHeaders(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		_, _ = w.Write([]byte(longPage))
	}))
	defer srv.Close()

	cfg := testConfig().withDefaults()
	_, err := NewDirect(&cfg, newTransport(2)).Attempt(context.Background(), Request{URL: srv.URL, AuthToken: "secret"})
	if err != nil {
		t.Fatalf("Attempt() error = %v", err)
	}
	if got.Get("Authorization") != "Bearer secret" {
		t.Errorf("expected bearer auth, got %q", got.Get("Authorization"))
	}
	if got.Get("Referer") != "https://www.google.com/" {
		t.Errorf("expected google referer, got %q", got.Get("Referer"))
	}
	if got.Get("Accept-Language") == "" || got.Get("Upgrade-Insecure-Requests") != "1" {
		t.Error("expected full browser header set")
	}
}

// --- Engine Tests ---

func TestEngine_AcceptsDirect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(longPage))
	}))
	defer srv.Close()

	e := NewEngine(testConfig())
	defer e.Close()

	out, err := e.Fetch(context.Background(), Request{URL: srv.URL})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if out.Strategy != "direct" {
		t.Errorf("expected direct strategy, got %q", out.Strategy)
	}
	if out.LowConfidence {
		t.Error("expected accepted outcome not to be low confidence")
	}
}

func TestEngine_AlternateProfileRescuesBlockedFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.UserAgent(), "iPhone") {
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte("Access Denied"))
			return
		}
		_, _ = w.Write([]byte(longPage))
	}))
	defer srv.Close()

	e := NewEngine(testConfig())
	defer e.Close()

	out, err := e.Fetch(context.Background(), Request{URL: srv.URL})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if out.Strategy != "alternate-headers" {
		t.Errorf("expected alternate-headers strategy, got %q", out.Strategy)
	}
	if out.StatusCode != 200 || out.LowConfidence {
		t.Errorf("expected accepted 200, got %d (low confidence %v)", out.StatusCode, out.LowConfidence)
	}
}

func TestEngine_AllBlockedReturnsBestEffort(t *testing.T) {
	body := "<html><body><h1>403 ERROR</h1>The request could not be satisfied.</body></html>"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	e := NewEngine(testConfig())
	defer e.Close()

	out, err := e.Fetch(context.Background(), Request{URL: srv.URL})
	if err != nil {
		t.Fatalf("expected best-effort outcome, got error %v", err)
	}
	if !out.LowConfidence {
		t.Error("expected low confidence marker")
	}
	if out.BlockReason == "" {
		t.Error("expected block reason to be recorded")
	}
	if string(out.Body) != body {
		t.Errorf("expected blocked body preserved, got %q", out.Body)
	}
}

func TestEngine_UnreachableFailsFast(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	target := srv.URL
	srv.Close()

	e := NewEngine(testConfig())
	defer e.Close()

	_, err := e.Fetch(context.Background(), Request{URL: target})
	if err == nil {
		t.Fatal("expected error for refused connection")
	}
	if !errors.Is(err, ErrRetrieval) {
		t.Errorf("expected ErrRetrieval, got %v", err)
	}
	if !errors.Is(err, ErrTransport) {
		t.Errorf("expected ErrTransport in chain, got %v", err)
	}
	var terr *TransportError
	if !errors.As(err, &terr) || !terr.Unreachable {
		t.Errorf("expected unreachable transport error, got %v", err)
	}
}

func TestEngine_TimeoutAdvancesLadder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Only the mobile Safari profile gets a prompt answer.
		if !strings.Contains(r.UserAgent(), "iPhone") {
			time.Sleep(300 * time.Millisecond)
		}
		_, _ = w.Write([]byte(longPage))
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.Retry.MaxAttempts = 1
	e := NewEngine(cfg)
	defer e.Close()

	out, err := e.Fetch(context.Background(), Request{URL: srv.URL, Timeout: 100 * time.Millisecond})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if out.Strategy != "alternate-headers" {
		t.Errorf("expected ladder to advance past timed-out direct fetch, got %q", out.Strategy)
	}
}

type stubStrategy struct {
	name     string
	outcome  *Outcome
	err      error
	eligible func(Request, Progress) bool
	calls    int
}

func (s *stubStrategy) Name() string { return s.name }
func (s *stubStrategy) Eligible(req Request, p Progress) bool {
	if s.eligible == nil {
		return true
	}
	return s.eligible(req, p)
}
func (s *stubStrategy) Attempt(context.Context, Request) (*Outcome, error) {
	s.calls++
	return s.outcome, s.err
}

func TestEngine_AllTransportErrorsFail(t *testing.T) {
	a := &stubStrategy{name: "a", err: &TransportError{Strategy: "a", Err: context.DeadlineExceeded}}
	b := &stubStrategy{name: "b", err: &TransportError{Strategy: "b", Err: context.DeadlineExceeded}}

	e := NewEngine(testConfig(), WithStrategies(a, b))
	_, err := e.Fetch(context.Background(), Request{URL: "https://example.com"})
	if !errors.Is(err, ErrRetrieval) {
		t.Fatalf("expected ErrRetrieval, got %v", err)
	}
	if a.calls != 1 || b.calls != 1 {
		t.Errorf("expected both strategies attempted, got %d and %d", a.calls, b.calls)
	}
}

func TestEngine_LaterRenderReplacesAcceptedOutcome(t *testing.T) {
	direct := &stubStrategy{name: "direct", outcome: &Outcome{StatusCode: 200, Body: []byte(longPage), Strategy: "direct"}}
	render := &stubStrategy{
		name:     "render",
		outcome:  &Outcome{StatusCode: 200, Body: []byte(longPage + longPage), Strategy: "render"},
		eligible: func(req Request, _ Progress) bool { return req.ForceBrowser },
	}

	e := NewEngine(testConfig(), WithStrategies(direct, render))
	out, err := e.Fetch(context.Background(), Request{URL: "https://example.com", ForceBrowser: true})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if out.Strategy != "render" {
		t.Errorf("expected forced render to win, got %q", out.Strategy)
	}

	out, err = e.Fetch(context.Background(), Request{URL: "https://example.com"})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if out.Strategy != "direct" {
		t.Errorf("expected direct when render not eligible, got %q", out.Strategy)
	}
}

func TestEngine_FailedRenderFallsBack(t *testing.T) {
	blocked := &Outcome{StatusCode: 403, Body: []byte("denied"), Strategy: "direct"}
	direct := &stubStrategy{name: "direct", outcome: blocked}
	render := &stubStrategy{name: "render", err: ErrBrowserUnavailable}

	e := NewEngine(testConfig(), WithStrategies(direct, render))
	out, err := e.Fetch(context.Background(), Request{URL: "https://example.com"})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if out.Strategy != "direct" || !out.LowConfidence {
		t.Errorf("expected low-confidence direct fallback, got %q (low=%v)", out.Strategy, out.LowConfidence)
	}
	if blocked.LowConfidence {
		t.Error("strategy outcome must not be modified")
	}
}

// --- BrowserStrategy Tests ---

func TestBrowser_Eligible(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Browser.JSDomains = []string{"app.example", "WWW.Spa.test"}
	b := NewBrowser(&cfg)

	accepted := &Outcome{StatusCode: 200}
	tests := []struct {
		name string
		req  Request
		p    Progress
		want bool
	}{
		{"forced", Request{URL: "https://plain.example", ForceBrowser: true}, Progress{Accepted: accepted}, true},
		{"js host", Request{URL: "https://app.example/x"}, Progress{Accepted: accepted}, true},
		{"js subdomain", Request{URL: "https://m.spa.test/"}, Progress{Accepted: accepted}, true},
		{"accepted plain host", Request{URL: "https://plain.example"}, Progress{Accepted: accepted}, false},
		{"all blocked", Request{URL: "https://plain.example"}, Progress{Attempted: 2}, true},
		{"shell", Request{URL: "https://plain.example"}, Progress{Accepted: accepted, WantsBrowser: true}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := b.Eligible(tt.req, tt.p); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}

	cfg.Browser.Enabled = false
	off := NewBrowser(&cfg)
	if off.Eligible(Request{URL: "https://app.example"}, Progress{}) {
		t.Error("expected disabled browser to skip allow-listed hosts")
	}
	if !off.Eligible(Request{URL: "https://plain.example", ForceBrowser: true}, Progress{}) {
		t.Error("expected forced request to render even when disabled")
	}
}

func TestBrowser_RendersJavaScript(t *testing.T) {
	if testing.Short() || FindChromePath() == "" {
		t.Skip("chrome not available")
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body><div id="root"></div>
<script>document.getElementById('root').textContent = 'rendered by script';</script></body></html>`))
	}))
	defer srv.Close()

	cfg := testConfig().withDefaults()
	cfg.Browser.Settle = 0
	cfg.Browser.IdleWait = 2 * time.Second
	b := NewBrowser(&cfg)
	defer b.Close()

	out, err := b.Attempt(context.Background(), Request{URL: srv.URL})
	if err != nil {
		t.Fatalf("Attempt() error = %v", err)
	}
	if !strings.Contains(string(out.Body), "rendered by script") {
		t.Errorf("expected rendered DOM, got %q", out.Body)
	}
	if out.StatusCode != 200 {
		t.Errorf("expected status 200, got %d", out.StatusCode)
	}
}

// --- Downloader Tests ---

func TestDownloader(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\nfake")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/img.png" {
			http.NotFound(w, r)
			return
		}
		if !strings.HasPrefix(r.Header.Get("Accept"), "image/") {
			t.Errorf("expected image Accept header, got %q", r.Header.Get("Accept"))
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(png)
	}))
	defer srv.Close()

	e := NewEngine(testConfig())
	defer e.Close()

	body, ct, err := e.Downloader().Download(context.Background(), srv.URL+"/img.png", srv.URL, time.Second, 0)
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	if !bytes.Equal(body, png) || ct != "image/png" {
		t.Errorf("unexpected download result %q (%s)", body, ct)
	}

	if _, _, err := e.Downloader().Download(context.Background(), srv.URL+"/missing.png", "", time.Second, 0); err == nil {
		t.Error("expected error for 404")
	}
}
