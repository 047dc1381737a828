package docsift

import (
	"time"

	"github.com/jmylchreest/docsift/pkg/classify"
	"github.com/jmylchreest/docsift/pkg/images"
	"github.com/jmylchreest/docsift/pkg/ocr"
)

// Document is the normalized result of one retrieval. Exactly one of
// PageText and PDFText is populated, depending on ContentKind. Error is set
// when the retrieval or extraction failed; the rest of the document then
// holds whatever was recovered.
type Document struct {
	URL         string `json:"url" yaml:"url"`
	OriginalURL string `json:"original_url,omitempty" yaml:"original_url,omitempty"`
	FinalURL    string `json:"final_url,omitempty" yaml:"final_url,omitempty"`
	StatusCode  int    `json:"status_code,omitempty" yaml:"status_code,omitempty"`

	ContentKind   classify.Kind `json:"content_kind,omitempty" yaml:"content_kind,omitempty"`
	ContentType   string        `json:"content_type,omitempty" yaml:"content_type,omitempty"`
	ContentLength int           `json:"content_length" yaml:"content_length"`

	Title            string `json:"title,omitempty" yaml:"title,omitempty"`
	PageText         string `json:"page_text,omitempty" yaml:"page_text,omitempty"`
	PDFText          string `json:"pdf_text,omitempty" yaml:"pdf_text,omitempty"`
	PageCount        int    `json:"page_count,omitempty" yaml:"page_count,omitempty"`
	ExtractionMethod string `json:"extraction_method,omitempty" yaml:"extraction_method,omitempty"`
	Markdown         string `json:"markdown,omitempty" yaml:"markdown,omitempty"`
	ContentPreview   string `json:"content_preview,omitempty" yaml:"content_preview,omitempty"`
	// Headers are the response headers; only Probe fills them in.
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	// RawContent holds the body of content that is neither HTML nor PDF.
	RawContent []byte `json:"raw_content,omitempty" yaml:"raw_content,omitempty"`

	ImageTexts  []ocr.ImageText    `json:"image_texts" yaml:"image_texts"`
	Images      []images.Candidate `json:"images,omitempty" yaml:"images,omitempty"`
	ImagesFound int                `json:"images_found" yaml:"images_found"`

	Strategy       string `json:"strategy,omitempty" yaml:"strategy,omitempty"`
	LowConfidence  bool   `json:"low_confidence,omitempty" yaml:"low_confidence,omitempty"`
	BlockReason    string `json:"block_reason,omitempty" yaml:"block_reason,omitempty"`
	RedirectCount  int    `json:"redirect_count" yaml:"redirect_count"`
	ResponseTimeMS int64  `json:"response_time_ms" yaml:"response_time_ms"`

	Warnings  []string  `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
	Error     string    `json:"error,omitempty" yaml:"error,omitempty"`
}

// Text returns the extracted text regardless of content kind.
func (d *Document) Text() string {
	if d.ContentKind == classify.KindPDF {
		return d.PDFText
	}
	return d.PageText
}

// Failed reports whether the document carries an error.
func (d *Document) Failed() bool { return d.Error != "" }

// Failure is a batch entry that produced no usable document.
type Failure struct {
	Index int    `json:"index" yaml:"index"`
	URL   string `json:"url" yaml:"url"`
	Error string `json:"error" yaml:"error"`
}

// BatchResult holds the documents of a batch in request order, plus the
// requests that failed. Documents only contains successful retrievals.
type BatchResult struct {
	BatchID   string      `json:"batch_id" yaml:"batch_id"`
	Documents []*Document `json:"documents" yaml:"documents"`
	Failures  []Failure   `json:"failures" yaml:"failures"`
}
