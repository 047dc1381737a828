package extract

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/jmylchreest/docsift/internal/logger"
)

// PDF extraction method names recorded on results.
const (
	MethodPrimary  = "primary"
	MethodFallback = "fallback"
	MethodFailed   = "failed"
)

// PDFFailureText is the text reported when no method produced any text.
const PDFFailureText = "[PDF text extraction failed]"

// PDFResult is the outcome of PDF extraction. Err holds the last method
// error when Method is MethodFailed.
type PDFResult struct {
	Text      string
	PageCount int
	Method    string
	Err       error
}

// pdfBackend is one way of pulling text out of a PDF. PageCount is the
// number of pages the backend actually walked.
type pdfBackend interface {
	name() string
	extract(r *pdf.Reader, maxPages int) (text string, pages int, err error)
}

// PDFExtractor tries its backends in order until one yields text.
type PDFExtractor struct {
	backends []pdfBackend
	maxPages int
}

// NewPDFExtractor creates an extractor using the layout-aware row method
// first and per-page plain text second.
func NewPDFExtractor(cfg Config) *PDFExtractor {
	return &PDFExtractor{
		backends: []pdfBackend{rowBackend{}, plainBackend{}},
		maxPages: cfg.PDFMaxPages,
	}
}

// PDFText extracts with the default configuration.
func PDFText(body []byte) PDFResult {
	return NewPDFExtractor(DefaultConfig()).Extract(body)
}

// Extract never fails outright; when every backend fails the result carries
// PDFFailureText, a zero page count and the last error.
func (x *PDFExtractor) Extract(body []byte) PDFResult {
	r, err := openPDF(body)
	if err != nil {
		logger.Warn("pdf could not be opened", "error", err)
		return failed(&ExtractionError{Method: "pdf-open", Err: err})
	}

	var lastErr error
	for i, b := range x.backends {
		method := MethodPrimary
		if i > 0 {
			method = MethodFallback
		}

		text, pages, err := runBackend(b, r, x.maxPages)
		switch {
		case err != nil:
			lastErr = &ExtractionError{Method: b.name(), Err: err}
			logger.Warn("pdf extraction method failed", "method", b.name(), "error", err)
			continue
		case strings.TrimSpace(text) == "":
			lastErr = &ExtractionError{Method: b.name(), Err: errors.New("no text found")}
			logger.Debug("pdf extraction method found no text", "method", b.name(), "pages", pages)
			continue
		}

		logger.Debug("pdf extracted", "method", b.name(), "pages", pages, "text_size", len(text))
		return PDFResult{Text: tidyLines(text), PageCount: pages, Method: method}
	}
	return failed(lastErr)
}

func failed(err error) PDFResult {
	return PDFResult{Text: PDFFailureText, Method: MethodFailed, Err: err}
}

func openPDF(body []byte) (r *pdf.Reader, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r, err = nil, fmt.Errorf("panic: %v", rec)
		}
	}()
	return pdf.NewReader(bytes.NewReader(body), int64(len(body)))
}

// runBackend converts panics from malformed documents into errors.
func runBackend(b pdfBackend, r *pdf.Reader, maxPages int) (text string, pages int, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			text, pages, err = "", 0, fmt.Errorf("panic: %v", rec)
		}
	}()
	return b.extract(r, maxPages)
}

func pageLimit(r *pdf.Reader, maxPages int) int {
	n := r.NumPage()
	if maxPages > 0 && maxPages < n {
		return maxPages
	}
	return n
}

// rowBackend rebuilds lines from glyph positions, keeping reading order.
type rowBackend struct{}

func (rowBackend) name() string { return "rows" }

func (rowBackend) extract(r *pdf.Reader, maxPages int) (string, int, error) {
	var sb strings.Builder
	pages := 0
	for i := 1; i <= pageLimit(r, maxPages); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		rows, err := p.GetTextByRow()
		if err != nil {
			return "", pages, fmt.Errorf("page %d: %w", i, err)
		}
		pages++
		for _, row := range rows {
			if line := joinRow(row.Content); line != "" {
				sb.WriteString(line)
				sb.WriteByte('\n')
			}
		}
		sb.WriteByte('\n')
	}
	return sb.String(), pages, nil
}

// joinRow orders glyphs left to right and inserts a space where the gap
// between two glyphs is wider than a fraction of the font size.
func joinRow(texts []pdf.Text) string {
	sorted := append([]pdf.Text(nil), texts...)
	sort.SliceStable(sorted, func(a, b int) bool { return sorted[a].X < sorted[b].X })

	var sb strings.Builder
	for i, t := range sorted {
		if i > 0 {
			prev := sorted[i-1]
			gap := t.X - (prev.X + prev.W)
			if prev.W > 0 && gap > prev.FontSize*0.3 &&
				!strings.HasSuffix(prev.S, " ") && !strings.HasPrefix(t.S, " ") {
				sb.WriteByte(' ')
			}
		}
		sb.WriteString(t.S)
	}
	return strings.TrimSpace(sb.String())
}

// plainBackend asks the library for each page's plain text.
type plainBackend struct{}

func (plainBackend) name() string { return "plain" }

func (plainBackend) extract(r *pdf.Reader, maxPages int) (string, int, error) {
	var sb strings.Builder
	pages := 0
	for i := 1; i <= pageLimit(r, maxPages); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		fonts := make(map[string]*pdf.Font)
		for _, name := range p.Fonts() {
			f := p.Font(name)
			fonts[name] = &f
		}
		text, err := p.GetPlainText(fonts)
		if err != nil {
			return "", pages, fmt.Errorf("page %d: %w", i, err)
		}
		pages++
		sb.WriteString(text)
		sb.WriteString("\n\n")
	}
	return sb.String(), pages, nil
}

// tidyLines trims each line and squeezes runs of blank lines.
func tidyLines(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := 0
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			blank++
			if blank > 1 {
				continue
			}
		} else {
			blank = 0
		}
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
