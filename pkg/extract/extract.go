// Package extract turns fetched HTML and PDF bodies into plain text.
package extract

import (
	"errors"
	"fmt"
)

// ErrExtraction is wrapped by every ExtractionError.
var ErrExtraction = errors.New("extraction failed")

// ExtractionError reports a failed extraction method.
type ExtractionError struct {
	Method string
	Err    error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrExtraction, e.Method, e.Err)
}

func (e *ExtractionError) Unwrap() []error { return []error{ErrExtraction, e.Err} }

// Config controls optional extraction output.
type Config struct {
	// Markdown also renders HTML pages as Markdown.
	Markdown bool `mapstructure:"markdown"`
	// PDFMaxPages stops PDF extraction after this many pages; 0 means all.
	PDFMaxPages int `mapstructure:"pdf_max_pages"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{}
}
