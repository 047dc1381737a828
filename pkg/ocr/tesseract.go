//go:build ocr

package ocr

import (
	"context"

	"github.com/otiai10/gosseract/v2"
)

// Available reports whether a recognition engine is compiled in.
const Available = true

// TesseractEngine recognizes text with libtesseract.
type TesseractEngine struct {
	language string
	psm      gosseract.PageSegMode
}

// NewTesseract creates a Tesseract engine for cfg.Language and
// cfg.PageSegMode.
func NewTesseract(cfg Config) (*TesseractEngine, error) {
	cfg = cfg.withDefaults()
	return &TesseractEngine{
		language: cfg.Language,
		psm:      gosseract.PageSegMode(cfg.PageSegMode),
	}, nil
}

// Recognize runs Tesseract over img. A client is created per call because
// gosseract clients are not safe for concurrent use.
func (e *TesseractEngine) Recognize(ctx context.Context, img []byte) (Recognition, error) {
	if err := ctx.Err(); err != nil {
		return Recognition{}, err
	}

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(e.language); err != nil {
		return Recognition{}, err
	}
	if err := client.SetPageSegMode(e.psm); err != nil {
		return Recognition{}, err
	}
	if err := client.SetImageFromBytes(img); err != nil {
		return Recognition{}, err
	}

	text, err := client.Text()
	if err != nil {
		return Recognition{}, err
	}

	rec := Recognition{Text: text}
	if boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD); err == nil && len(boxes) > 0 {
		var sum float64
		for _, b := range boxes {
			sum += b.Confidence
		}
		rec.Confidence = sum / float64(len(boxes)) / 100
	}
	return rec, nil
}

// Name returns the engine name.
func (e *TesseractEngine) Name() string { return "tesseract" }
