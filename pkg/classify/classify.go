// Package classify decides whether a fetched body is HTML, PDF or something
// the extractors do not handle.
package classify

import (
	"bytes"
	"errors"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/gabriel-vasile/mimetype"
)

// Kind is the content kind of a retrieved resource.
type Kind string

const (
	KindHTML  Kind = "html"
	KindPDF   Kind = "pdf"
	KindOther Kind = "other"
)

// ErrUnsupported marks content that is neither HTML nor PDF.
var ErrUnsupported = errors.New("unsupported content")

var pdfMagic = []byte("%PDF")

// Classify inspects the declared content type and the body. The PDF magic
// bytes win over a header that claims otherwise.
func Classify(contentType string, body []byte) Kind {
	ct := strings.ToLower(contentType)

	if strings.Contains(ct, "application/pdf") || bytes.HasPrefix(body, pdfMagic) {
		return KindPDF
	}
	if strings.Contains(ct, "text/html") || strings.Contains(ct, "xhtml") || strings.Contains(ct, "text") {
		return KindHTML
	}
	if definitive(ct) {
		return KindOther
	}
	if looksLikeHTML(body) {
		return KindHTML
	}
	return KindOther
}

// definitive reports whether the header names a concrete non-text type. An
// empty or generic binary type leaves the decision to the body.
func definitive(ct string) bool {
	if ct == "" {
		return false
	}
	for _, generic := range []string{"application/octet-stream", "binary/octet-stream", "application/unknown"} {
		if strings.HasPrefix(ct, generic) {
			return false
		}
	}
	return true
}

// looksLikeHTML sniffs the body and, failing that, checks that a parse
// yields real elements rather than a bare text node.
func looksLikeHTML(body []byte) bool {
	if len(bytes.TrimSpace(body)) == 0 {
		return false
	}
	mt := mimetype.Detect(body)
	if mt.Is("text/html") || mt.Is("application/xhtml+xml") {
		return true
	}
	if !strings.HasPrefix(mt.String(), "text/") {
		return false
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return false
	}
	return doc.Find("body *, head title").Length() > 0
}
