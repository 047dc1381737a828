// Package output writes documents in the CLI's output formats.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jmylchreest/docsift/pkg/docsift"
)

// Format is an output encoding.
type Format string

const (
	FormatJSON  Format = "json"
	FormatJSONL Format = "jsonl"
	FormatYAML  Format = "yaml"
)

// ParseFormat accepts a format name case-insensitively; "yml" and "ndjson"
// are aliases.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, nil
	case "jsonl", "ndjson":
		return FormatJSONL, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", s)
	}
}

// Writer serializes documents. Buffered formats only emit on Close.
type Writer interface {
	Write(doc *docsift.Document) error
	Close() error
}

// WriterOption configures a writer.
type WriterOption func(*writerConfig)

type writerConfig struct {
	pretty  bool
	indent  string
	dropRaw bool
}

// WithPretty toggles indented JSON.
func WithPretty(enabled bool) WriterOption {
	return func(c *writerConfig) {
		c.pretty = enabled
	}
}

// WithIndent sets the JSON indentation string.
func WithIndent(indent string) WriterOption {
	return func(c *writerConfig) {
		c.indent = indent
	}
}

// WithoutRawContent omits the verbatim body of unsupported content.
func WithoutRawContent() WriterOption {
	return func(c *writerConfig) {
		c.dropRaw = true
	}
}

// NewWriter creates a writer for format.
func NewWriter(w io.Writer, format Format, opts ...WriterOption) (Writer, error) {
	cfg := &writerConfig{pretty: true, indent: "  "}
	for _, opt := range opts {
		opt(cfg)
	}

	switch format {
	case FormatJSON:
		return &jsonWriter{w: w, cfg: cfg}, nil
	case FormatJSONL:
		return &jsonlWriter{w: w, cfg: cfg}, nil
	case FormatYAML:
		return newYAMLWriter(w, cfg), nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}

// Open returns stdout for "" or "-", otherwise creates path.
func Open(path string) (io.WriteCloser, error) {
	if path == "" || path == "-" {
		return nopCloser{os.Stdout}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, nil
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

func (c *writerConfig) prepare(doc *docsift.Document) *docsift.Document {
	if !c.dropRaw || doc == nil || doc.RawContent == nil {
		return doc
	}
	cp := *doc
	cp.RawContent = nil
	return &cp
}
