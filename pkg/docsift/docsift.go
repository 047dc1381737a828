// Package docsift retrieves web resources that resist automated access and
// normalizes them into documents.
//
// A Pipeline de-obfuscates the URL, climbs the fetch strategy ladder,
// classifies the response, extracts HTML or PDF text and, when asked,
// recovers text from the page's images:
//
//	p, err := docsift.New(docsift.WithMarkdown(true))
//	if err != nil {
//		return err
//	}
//	defer p.Close()
//
//	doc, err := p.Retrieve(ctx, docsift.Request{URL: "https://example.com", ExtractImages: true})
package docsift

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jmylchreest/docsift/internal/logger"
	"github.com/jmylchreest/docsift/pkg/classify"
	"github.com/jmylchreest/docsift/pkg/extract"
	"github.com/jmylchreest/docsift/pkg/fetcher"
	"github.com/jmylchreest/docsift/pkg/images"
	"github.com/jmylchreest/docsift/pkg/ocr"
	"github.com/jmylchreest/docsift/pkg/urlnorm"
)

// Pipeline is safe for concurrent use.
type Pipeline struct {
	cfg        Config
	normalizer *urlnorm.Normalizer
	engine     *fetcher.Engine
	html       *extract.HTMLExtractor
	pdf        *extract.PDFExtractor
	ocr        *ocr.Extractor // nil when no recognition engine is available
}

// New creates a pipeline.
func New(opts ...Option) (*Pipeline, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.PreviewLength <= 0 {
		cfg.PreviewLength = DefaultConfig().PreviewLength
	}

	p := &Pipeline{
		cfg:        cfg,
		normalizer: urlnorm.New(cfg.Normalize),
		engine:     fetcher.NewEngine(cfg.Fetch, cfg.FetchOptions...),
		html:       extract.NewHTMLExtractor(cfg.Extract),
		pdf:        extract.NewPDFExtractor(cfg.Extract),
	}

	eng := cfg.OCREngine
	if eng == nil && ocr.Available {
		t, err := ocr.NewTesseract(cfg.OCR)
		if err != nil {
			p.engine.Close()
			return nil, fmt.Errorf("failed to create ocr engine: %w", err)
		}
		eng = t
	}
	if eng != nil {
		dl := cfg.Downloader
		if dl == nil {
			dl = p.engine.Downloader()
		}
		p.ocr = ocr.NewExtractor(cfg.OCR, eng, dl)
	} else {
		logger.Debug("no ocr engine compiled in, image text recovery disabled")
	}
	return p, nil
}

// Config returns the pipeline configuration.
func (p *Pipeline) Config() Config { return p.cfg }

// OCREnabled reports whether image text recovery is available.
func (p *Pipeline) OCREnabled() bool { return p.ocr != nil }

// Normalize returns the canonical form of a possibly obfuscated URL.
func (p *Pipeline) Normalize(raw string) string {
	return p.normalizer.Normalize(withScheme(raw))
}

// Retrieve runs the whole pipeline for one request.
//
// Invalid requests return a nil document and an error wrapping
// ErrInvalidRequest. Otherwise a document is always returned. When no
// strategy could retrieve anything, the document carries the failure in its
// Error field and the same error (wrapping fetcher.ErrRetrieval) is
// returned. Failures after a successful fetch are reported only through the
// document.
func (p *Pipeline) Retrieve(ctx context.Context, req Request) (*Document, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()
	original := withScheme(req.URL)
	canonical := p.normalizer.Normalize(original)

	doc := &Document{URL: canonical, Timestamp: start.UTC(), ImageTexts: []ocr.ImageText{}}
	if canonical != original {
		doc.OriginalURL = original
	}
	log := logger.FromContext(ctx).With("url", canonical)

	out, err := p.engine.Fetch(ctx, p.fetchRequest(canonical, req))
	if err != nil {
		log.Warn("retrieval failed", "error", err, "elapsed", time.Since(start))
		doc.Error = err.Error()
		return doc, err
	}

	p.assemble(ctx, doc, req, out)
	log.Debug("document assembled",
		"kind", doc.ContentKind,
		"strategy", doc.Strategy,
		"status", doc.StatusCode,
		"chars", utf8.RuneCountInString(doc.Text()),
		"images", doc.ImagesFound,
		"image_texts", len(doc.ImageTexts),
		"elapsed", time.Since(start))
	return doc, nil
}

// Probe fetches req and reports fetch metadata and a preview of the raw
// body without extracting text or images. Errors follow Retrieve.
func (p *Pipeline) Probe(ctx context.Context, req Request) (*Document, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()
	original := withScheme(req.URL)
	canonical := p.normalizer.Normalize(original)

	doc := &Document{URL: canonical, Timestamp: start.UTC(), ImageTexts: []ocr.ImageText{}}
	if canonical != original {
		doc.OriginalURL = original
	}
	out, err := p.engine.Fetch(ctx, p.fetchRequest(canonical, req))
	if err != nil {
		doc.Error = err.Error()
		return doc, err
	}

	p.describe(doc, out)
	doc.ContentKind = classify.Classify(doc.ContentType, out.Body)
	doc.Headers = make(map[string]string, len(out.Header))
	for k := range out.Header {
		doc.Headers[k] = out.Header.Get(k)
	}
	if doc.ContentKind != classify.KindPDF && utf8.Valid(out.Body) {
		doc.ContentPreview = preview(string(out.Body), p.cfg.PreviewLength)
	}
	return doc, nil
}

func (p *Pipeline) fetchRequest(canonical string, req Request) fetcher.Request {
	return fetcher.Request{
		URL:          canonical,
		UserAgent:    req.UserAgent,
		AuthToken:    req.AuthToken,
		Referer:      req.Referer,
		Timeout:      req.Timeout,
		ForceBrowser: req.ForceBrowser,
		Delay:        req.Delay,
	}
}

// describe copies fetch metadata onto doc.
func (p *Pipeline) describe(doc *Document, out *fetcher.Outcome) {
	doc.FinalURL = out.FinalURL
	doc.StatusCode = out.StatusCode
	doc.ContentType = out.ContentType()
	doc.ContentLength = len(out.Body)
	doc.Strategy = out.Strategy
	doc.LowConfidence = out.LowConfidence
	doc.BlockReason = out.BlockReason
	doc.RedirectCount = out.Redirects
	doc.ResponseTimeMS = out.Elapsed.Milliseconds()
	if out.StatusCode < http.StatusBadRequest {
		return
	}
	status := fmt.Sprintf("unexpected status %d %s", out.StatusCode, http.StatusText(out.StatusCode))
	// A blocked best-effort response still carries usable content.
	if out.LowConfidence {
		doc.Warnings = append(doc.Warnings, status)
		return
	}
	doc.Error = status
}

// assemble fills doc from a fetch outcome. Panics in any extraction stage
// are converted into the document's Error field.
func (p *Pipeline) assemble(ctx context.Context, doc *Document, req Request, out *fetcher.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorContext(ctx, "panic while assembling document", "url", doc.URL, "panic", r, "stack", string(debug.Stack()))
			doc.Error = fmt.Sprintf("internal error: %v", r)
		}
	}()

	p.describe(doc, out)
	doc.ContentKind = classify.Classify(doc.ContentType, out.Body)
	switch doc.ContentKind {
	case classify.KindPDF:
		p.assemblePDF(doc, out)
	case classify.KindHTML:
		p.assembleHTML(ctx, doc, req, out)
	default:
		doc.RawContent = out.Body
		doc.warn(fmt.Errorf("%w: %s", classify.ErrUnsupported, coalesce(doc.ContentType, "unknown type")))
	}
	doc.ContentPreview = preview(doc.Text(), p.cfg.PreviewLength)
}

func (p *Pipeline) assemblePDF(doc *Document, out *fetcher.Outcome) {
	res := p.pdf.Extract(out.Body)
	doc.PDFText = res.Text
	doc.PageCount = res.PageCount
	doc.ExtractionMethod = res.Method
	if res.Err != nil {
		doc.warn(res.Err)
	}
}

func (p *Pipeline) assembleHTML(ctx context.Context, doc *Document, req Request, out *fetcher.Outcome) {
	parsed, err := extract.ParseHTML(out.Body, doc.ContentType)
	if err != nil {
		doc.warn(err)
		return
	}
	res, err := p.html.Extract(parsed)
	if err != nil {
		doc.warn(err)
		return
	}
	doc.Title = res.Title
	doc.PageText = res.Text
	doc.Markdown = res.Markdown
	doc.ExtractionMethod = "html"

	pageURL := coalesce(out.FinalURL, doc.URL)
	doc.Images = images.Discover(parsed, pageURL)
	doc.ImagesFound = len(doc.Images)
	if !req.ExtractImages || doc.ImagesFound == 0 {
		return
	}
	if p.ocr == nil {
		doc.warn(ocr.ErrEngineUnavailable)
		return
	}
	doc.ImageTexts = p.ocr.ExtractAll(ctx, doc.Images, pageURL)
}

func (d *Document) warn(err error) {
	d.Warnings = append(d.Warnings, err.Error())
}

// RetrieveMany retrieves every request with at most concurrency in flight
// (the configured default when concurrency < 1). One request's failure
// never cancels the others; failed requests are listed in Failures and the
// successful documents keep the order of reqs.
func (p *Pipeline) RetrieveMany(ctx context.Context, reqs []Request, concurrency int) BatchResult {
	if concurrency < 1 {
		concurrency = p.cfg.Concurrency
	}
	batchID := uuid.NewString()
	log := logger.With("batch_id", batchID)
	log.Info("starting batch", "requests", len(reqs), "concurrency", concurrency)

	docs := make([]*Document, len(reqs))
	errs := make([]error, len(reqs))

	var g errgroup.Group
	g.SetLimit(concurrency)
	for i, req := range reqs {
		g.Go(func() error {
			docs[i], errs[i] = p.Retrieve(logger.WithContext(ctx, "batch_id", batchID, "index", i), req)
			return nil
		})
	}
	_ = g.Wait()

	res := BatchResult{BatchID: batchID, Documents: []*Document{}, Failures: []Failure{}}
	for i, doc := range docs {
		if errs[i] != nil {
			res.Failures = append(res.Failures, Failure{Index: i, URL: reqs[i].URL, Error: errs[i].Error()})
			continue
		}
		res.Documents = append(res.Documents, doc)
	}
	log.Info("batch complete", "documents", len(res.Documents), "failures", len(res.Failures))
	return res
}

// Close releases pooled connections and browser instances.
func (p *Pipeline) Close() error {
	return p.engine.Close()
}

// IsRetrievalError reports whether err means nothing could be retrieved.
func IsRetrievalError(err error) bool {
	return errors.Is(err, fetcher.ErrRetrieval)
}

func preview(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}

func coalesce(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
