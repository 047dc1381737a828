//go:build !ocr

package ocr

import "context"

// Available reports whether a recognition engine is compiled in.
const Available = false

// TesseractEngine is a placeholder when built without the ocr tag.
// Build with -tags ocr (and libtesseract installed) to enable recognition.
type TesseractEngine struct{}

// NewTesseract returns ErrEngineUnavailable.
func NewTesseract(Config) (*TesseractEngine, error) {
	return nil, ErrEngineUnavailable
}

// Recognize returns ErrEngineUnavailable.
func (e *TesseractEngine) Recognize(context.Context, []byte) (Recognition, error) {
	return Recognition{}, ErrEngineUnavailable
}

// Name returns the engine name.
func (e *TesseractEngine) Name() string { return "tesseract" }
