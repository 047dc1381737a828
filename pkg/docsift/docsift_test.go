package docsift

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jung-kurt/gofpdf"

	"github.com/jmylchreest/docsift/pkg/classify"
	"github.com/jmylchreest/docsift/pkg/fetcher"
	"github.com/jmylchreest/docsift/pkg/ocr"
)

var article = "<html><head><title>Quarterly Report</title></head><body><h1>Results</h1><p>" +
	strings.Repeat("Revenue grew across every region this quarter. ", 40) + "</p></body></html>"

func testPipeline(t *testing.T, opts ...Option) *Pipeline {
	t.Helper()
	fc := fetcher.DefaultConfig()
	fc.Politeness.Disabled = true
	fc.Browser.Enabled = false
	fc.Retry.Backoff = time.Millisecond
	fc.Timeout = 5 * time.Second

	oc := ocr.DefaultConfig()
	oc.Delay = 0

	base := []Option{WithFetchConfig(fc), WithOCRConfig(oc)}
	p, err := New(append(base, opts...)...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { p.Close() })
	return p
}

func pdfBytes(t *testing.T, pages ...string) []byte {
	t.Helper()
	doc := gofpdf.New("P", "mm", "A4", "")
	for _, text := range pages {
		doc.AddPage()
		doc.SetFont("Helvetica", "", 14)
		doc.Cell(120, 10, text)
	}
	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		t.Fatalf("gofpdf Output() error = %v", err)
	}
	return buf.Bytes()
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, 16, 16))); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	return buf.Bytes()
}

type fakeEngine struct {
	text  string
	panic bool
}

func (f *fakeEngine) Recognize(context.Context, []byte) (ocr.Recognition, error) {
	if f.panic {
		panic("recognizer crashed")
	}
	return ocr.Recognition{Text: f.text, Confidence: 0.8}, nil
}

func (f *fakeEngine) Name() string { return "fake" }

// --- Retrieve Tests ---

func TestRetrieve_HTMLWithoutImages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(article))
	}))
	defer srv.Close()

	p := testPipeline(t)
	doc, err := p.Retrieve(context.Background(), Request{URL: srv.URL + "/page.html"})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if doc.ContentKind != classify.KindHTML {
		t.Errorf("expected html, got %q", doc.ContentKind)
	}
	if doc.Title != "Quarterly Report" {
		t.Errorf("expected title, got %q", doc.Title)
	}
	if !strings.HasPrefix(doc.PageText, "Results Revenue grew") {
		t.Errorf("unexpected page text %q", doc.PageText[:min(60, len(doc.PageText))])
	}
	if doc.PDFText != "" {
		t.Error("expected no pdf text for html document")
	}
	if doc.ImagesFound != 0 || len(doc.ImageTexts) != 0 {
		t.Errorf("expected no images, got %d found, %d texts", doc.ImagesFound, len(doc.ImageTexts))
	}
	if doc.Strategy != "direct" || doc.LowConfidence || doc.Error != "" {
		t.Errorf("unexpected fetch metadata: strategy=%q low=%v error=%q", doc.Strategy, doc.LowConfidence, doc.Error)
	}
	if len([]rune(doc.ContentPreview)) != 1000 {
		t.Errorf("expected 1000-character preview, got %d", len([]rune(doc.ContentPreview)))
	}
	if doc.ContentLength != len(article) {
		t.Errorf("expected content length %d, got %d", len(article), doc.ContentLength)
	}
}

func TestRetrieve_BlockedEverywhereReturnsBestEffort(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`<html><head><title>ERROR</title></head><body><h1>403 ERROR</h1>
<p>The request could not be satisfied.</p></body></html>`))
	}))
	defer srv.Close()

	p := testPipeline(t)
	doc, err := p.Retrieve(context.Background(), Request{URL: srv.URL})
	if err != nil {
		t.Fatalf("expected best-effort document, got error %v", err)
	}
	if !doc.LowConfidence {
		t.Error("expected low confidence marker")
	}
	if doc.BlockReason == "" {
		t.Error("expected block reason")
	}
	if !strings.Contains(doc.PageText, "could not be satisfied") {
		t.Errorf("expected blocked page text, got %q", doc.PageText)
	}
	if doc.StatusCode != http.StatusForbidden {
		t.Errorf("expected status 403, got %d", doc.StatusCode)
	}
	if doc.Failed() {
		t.Errorf("expected no document error for best-effort content, got %q", doc.Error)
	}
	if len(doc.Warnings) == 0 || !strings.Contains(doc.Warnings[0], "403") {
		t.Errorf("expected 403 recorded as a warning, got %v", doc.Warnings)
	}
}

func TestRetrieve_AcceptedErrorStatusSetsError(t *testing.T) {
	page := `<html><head><title>Not Found</title></head><body><p>` + strings.Repeat("This page does not exist any more. ", 60) + `</p></body></html>`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(page))
	}))
	defer srv.Close()

	p := testPipeline(t)
	doc, err := p.Retrieve(context.Background(), Request{URL: srv.URL})
	if err != nil {
		t.Fatalf("expected document, got error %v", err)
	}
	if doc.LowConfidence {
		t.Fatal("expected the 404 page to be accepted")
	}
	if !strings.Contains(doc.Error, "404") {
		t.Errorf("expected 404 in document error, got %q", doc.Error)
	}
}

func TestRetrieve_PDF(t *testing.T) {
	body := pdfBytes(t, "First page", "Second page")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// A lying header; the magic bytes decide.
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	p := testPipeline(t)
	doc, err := p.Retrieve(context.Background(), Request{URL: srv.URL + "/report.pdf"})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if doc.ContentKind != classify.KindPDF {
		t.Fatalf("expected pdf, got %q", doc.ContentKind)
	}
	if doc.PageCount != 2 {
		t.Errorf("expected 2 pages, got %d", doc.PageCount)
	}
	if doc.ExtractionMethod != "primary" && doc.ExtractionMethod != "fallback" {
		t.Errorf("unexpected extraction method %q", doc.ExtractionMethod)
	}
	if !strings.Contains(doc.PDFText, "First page") || doc.PageText != "" {
		t.Errorf("expected pdf text only, got pdf=%q page=%q", doc.PDFText, doc.PageText)
	}
}

func TestRetrieve_UnsupportedContentKeptVerbatim(t *testing.T) {
	body := []byte(`{"items":"` + strings.Repeat("x", 1200) + `"}`)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	p := testPipeline(t)
	doc, err := p.Retrieve(context.Background(), Request{URL: srv.URL})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if doc.ContentKind != classify.KindOther {
		t.Errorf("expected other, got %q", doc.ContentKind)
	}
	if !bytes.Equal(doc.RawContent, body) {
		t.Error("expected raw content preserved")
	}
	if doc.PageText != "" || doc.PDFText != "" {
		t.Error("expected no extracted text")
	}
	if len(doc.Warnings) == 0 || !strings.Contains(doc.Warnings[0], "unsupported") {
		t.Errorf("expected unsupported warning, got %v", doc.Warnings)
	}
}

func TestRetrieve_NormalizesTrackingURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/a" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(article))
	}))
	defer srv.Close()

	payload := base64.RawURLEncoding.EncodeToString([]byte(`{"url":"` + srv.URL + `/a"}`))
	tracking := "https://links.example.net/track/click?p=" + payload

	p := testPipeline(t)
	doc, err := p.Retrieve(context.Background(), Request{URL: tracking})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if doc.URL != srv.URL+"/a" || doc.OriginalURL != tracking {
		t.Errorf("expected canonical url and original kept, got url=%q original=%q", doc.URL, doc.OriginalURL)
	}
	if doc.Title != "Quarterly Report" {
		t.Errorf("expected target page, got title %q", doc.Title)
	}
}

func TestRetrieve_ImageText(t *testing.T) {
	img := pngBytes(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/chart.png":
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write(img)
		default:
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte(strings.Replace(article, "<h1>", `<img src="/chart.png"><img src="/missing.png"><h1>`, 1)))
		}
	}))
	defer srv.Close()
	srvURL := srv.URL

	p := testPipeline(t, WithOCREngine(&fakeEngine{text: " Sales   by region "}))
	doc, err := p.Retrieve(context.Background(), Request{URL: srvURL, ExtractImages: true})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if doc.ImagesFound != 2 {
		t.Errorf("expected 2 candidates, got %d", doc.ImagesFound)
	}
	if len(doc.ImageTexts) != 1 {
		t.Fatalf("expected 1 image text (missing image skipped), got %+v", doc.ImageTexts)
	}
	if got := doc.ImageTexts[0]; got.URL != srvURL+"/chart.png" || got.Text != "Sales by region" {
		t.Errorf("unexpected image text %+v", got)
	}

	// Without the flag images are still counted but not read.
	doc, _ = p.Retrieve(context.Background(), Request{URL: srvURL})
	if doc.ImagesFound != 2 || len(doc.ImageTexts) != 0 {
		t.Errorf("expected discovery without ocr, got found=%d texts=%d", doc.ImagesFound, len(doc.ImageTexts))
	}
}

func TestRetrieve_PanicBecomesDocumentError(t *testing.T) {
	img := pngBytes(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, ".png") {
			_, _ = w.Write(img)
			return
		}
		_, _ = w.Write([]byte(strings.Replace(article, "<h1>", `<img src="/a.png"><h1>`, 1)))
	}))
	defer srv.Close()

	p := testPipeline(t, WithOCREngine(&fakeEngine{panic: true}))
	doc, err := p.Retrieve(context.Background(), Request{URL: srv.URL, ExtractImages: true})
	if err != nil {
		t.Fatalf("expected panic to be reported as data, got error %v", err)
	}
	if !strings.Contains(doc.Error, "recognizer crashed") {
		t.Errorf("expected panic in error field, got %q", doc.Error)
	}
	if doc.Title != "Quarterly Report" {
		t.Errorf("expected partial document to survive, got title %q", doc.Title)
	}
}

func TestRetrieve_InvalidRequest(t *testing.T) {
	p := testPipeline(t)
	for _, req := range []Request{
		{},
		{URL: "https://example.com", Timeout: -time.Second},
		{URL: "https://example.com", Referer: "not a url"},
	} {
		doc, err := p.Retrieve(context.Background(), req)
		if !errors.Is(err, ErrInvalidRequest) {
			t.Errorf("%+v: expected ErrInvalidRequest, got %v", req, err)
		}
		if doc != nil {
			t.Errorf("%+v: expected no document", req)
		}
	}
}

func TestRetrieve_UnreachableHost(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	p := testPipeline(t)
	doc, err := p.Retrieve(context.Background(), Request{URL: addr})
	if !IsRetrievalError(err) {
		t.Fatalf("expected retrieval error, got %v", err)
	}
	if doc == nil || doc.Error == "" || doc.URL != addr {
		t.Errorf("expected failure document, got %+v", doc)
	}
}

// --- Request Tests ---

func TestRequest_Validate(t *testing.T) {
	if err := (Request{URL: "example.com/path"}).Validate(); err != nil {
		t.Errorf("expected scheme-less URL to validate, got %v", err)
	}
	err := (Request{URL: "", Delay: -1}).Validate()
	var re *RequestError
	if !errors.As(err, &re) {
		t.Fatalf("expected *RequestError, got %T", err)
	}
	if len(re.Fields) != 2 {
		t.Errorf("expected 2 field errors, got %+v", re.Fields)
	}
}

// --- RetrieveMany Tests ---

func TestRetrieveMany_IsolatesFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/slow" {
			time.Sleep(400 * time.Millisecond)
		}
		_, _ = w.Write([]byte(article))
	}))
	defer srv.Close()

	fc := fetcher.DefaultConfig()
	fc.Politeness.Disabled = true
	fc.Browser.Enabled = false
	fc.Retry.MaxAttempts = 1

	p := testPipeline(t, WithFetchConfig(fc))
	reqs := []Request{
		{URL: srv.URL + "/one"},
		{URL: srv.URL + "/slow", Timeout: 100 * time.Millisecond},
		{URL: srv.URL + "/three"},
	}
	res := p.RetrieveMany(context.Background(), reqs, 3)

	if len(res.Documents) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(res.Documents))
	}
	if res.Documents[0].URL != srv.URL+"/one" || res.Documents[1].URL != srv.URL+"/three" {
		t.Errorf("expected request order preserved, got %q, %q", res.Documents[0].URL, res.Documents[1].URL)
	}
	if len(res.Failures) != 1 || res.Failures[0].URL != srv.URL+"/slow" || res.Failures[0].Index != 1 {
		t.Errorf("expected slow URL reported as failure, got %+v", res.Failures)
	}
	if res.BatchID == "" {
		t.Error("expected batch id")
	}
}

func TestRetrieveMany_Empty(t *testing.T) {
	p := testPipeline(t)
	res := p.RetrieveMany(context.Background(), nil, 0)
	if res.Documents == nil || res.Failures == nil || len(res.Documents)+len(res.Failures) != 0 {
		t.Errorf("expected empty non-nil slices, got %+v", res)
	}
}

// --- Probe Tests ---

func TestProbe_ReportsMetadataOnly(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/start" {
			http.Redirect(w, r, "/final", http.StatusFound)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		w.Header().Set("X-Served-By", "test")
		_, _ = w.Write([]byte(article))
	}))
	defer srv.Close()

	p := testPipeline(t)
	doc, err := p.Probe(context.Background(), Request{URL: srv.URL + "/start"})
	if err != nil {
		t.Fatalf("Probe() error = %v", err)
	}
	if doc.FinalURL != srv.URL+"/final" || doc.RedirectCount != 1 {
		t.Errorf("expected redirect tracked, got final=%q count=%d", doc.FinalURL, doc.RedirectCount)
	}
	if doc.Headers["X-Served-By"] != "test" {
		t.Errorf("expected response headers, got %v", doc.Headers)
	}
	if !strings.HasPrefix(doc.ContentPreview, "<html>") || len(doc.ContentPreview) != 1000 {
		t.Errorf("expected raw 1000-character preview, got %d chars", len(doc.ContentPreview))
	}
	if doc.PageText != "" || doc.Title != "" {
		t.Error("expected no extraction")
	}
}
