// Package ocr recovers text from images found on fetched pages.
//
// An Extractor downloads each candidate, normalizes the bitmap and hands it
// to an Engine. Failures are per image: a candidate that cannot be
// downloaded, decoded or read is skipped and the rest are still processed.
package ocr

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"github.com/jmylchreest/docsift/internal/logger"
	"github.com/jmylchreest/docsift/pkg/extract"
	"github.com/jmylchreest/docsift/pkg/images"
)

// ErrEngineUnavailable is returned when no recognition engine is compiled in.
var ErrEngineUnavailable = errors.New("ocr engine unavailable")

// Config controls image text recovery.
type Config struct {
	// MaxImages caps how many candidates are processed per page.
	MaxImages int `mapstructure:"max_images"`
	// Timeout bounds each image download.
	Timeout time.Duration `mapstructure:"timeout"`
	// Delay separates successive image downloads.
	Delay time.Duration `mapstructure:"delay"`
	// MinTextLength drops recognized text shorter than this many characters.
	MinTextLength int `mapstructure:"min_text_length"`
	// PageSegMode is the Tesseract page segmentation mode.
	PageSegMode int `mapstructure:"page_seg_mode"`
	// Grayscale converts images to 8-bit gray before recognition; otherwise
	// they are converted to RGBA.
	Grayscale bool `mapstructure:"grayscale"`
	// Language is the Tesseract language code.
	Language string `mapstructure:"language"`
	// MaxImageBytes limits downloaded image size.
	MaxImageBytes int `mapstructure:"max_image_bytes"`
	// UpscaleBelow doubles images narrower than this many pixels; 0 disables.
	UpscaleBelow int `mapstructure:"upscale_below"`
	// MaxPixels rejects images whose width times height exceeds it, before
	// the pixels are decoded.
	MaxPixels int `mapstructure:"max_pixels"`
}

// DefaultMaxPixels is the decoded size limit used when MaxPixels is unset.
const DefaultMaxPixels = 40_000_000

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxImages:     10,
		Timeout:       15 * time.Second,
		Delay:         time.Second,
		MinTextLength: 3,
		PageSegMode:   6,
		Grayscale:     true,
		Language:      "eng",
		MaxImageBytes: 10 * 1024 * 1024,
		MaxPixels:     DefaultMaxPixels,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxImages <= 0 {
		c.MaxImages = d.MaxImages
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.Delay < 0 {
		c.Delay = 0
	}
	if c.MinTextLength <= 0 {
		c.MinTextLength = d.MinTextLength
	}
	if c.PageSegMode <= 0 {
		c.PageSegMode = d.PageSegMode
	}
	if c.Language == "" {
		c.Language = d.Language
	}
	if c.MaxImageBytes <= 0 {
		c.MaxImageBytes = d.MaxImageBytes
	}
	if c.MaxPixels <= 0 {
		c.MaxPixels = d.MaxPixels
	}
	return c
}

// ImageText is the text recognized in one image.
type ImageText struct {
	URL        string  `json:"url" yaml:"url"`
	Text       string  `json:"text" yaml:"text"`
	Confidence float64 `json:"confidence,omitempty" yaml:"confidence,omitempty"`
}

// Recognition is the raw output of an Engine.
type Recognition struct {
	Text string
	// Confidence is in [0,1]; 0 means the engine did not report one.
	Confidence float64
}

// Engine recognizes text in an encoded image.
type Engine interface {
	Recognize(ctx context.Context, img []byte) (Recognition, error)
	Name() string
}

// Downloader fetches image bytes. *fetcher.Downloader satisfies it.
type Downloader interface {
	Download(ctx context.Context, rawURL, referer string, timeout time.Duration, maxBytes int) ([]byte, string, error)
}

// Extractor runs OCR over image candidates.
type Extractor struct {
	cfg        Config
	engine     Engine
	downloader Downloader
}

// NewExtractor creates an extractor. Zero config fields take defaults.
func NewExtractor(cfg Config, engine Engine, downloader Downloader) *Extractor {
	return &Extractor{cfg: cfg.withDefaults(), engine: engine, downloader: downloader}
}

// Config returns the effective configuration.
func (x *Extractor) Config() Config { return x.cfg }

// Extract recognizes text in one candidate. A nil result with a nil error
// means the image held no readable text.
func (x *Extractor) Extract(ctx context.Context, c images.Candidate, referer string) (*ImageText, error) {
	if x.engine == nil {
		return nil, ErrEngineUnavailable
	}

	data, err := x.load(ctx, c.URL, referer)
	if err != nil {
		return nil, &extract.ExtractionError{Method: "ocr-download", Err: err}
	}
	img, err := Prepare(data, x.cfg)
	if err != nil {
		return nil, &extract.ExtractionError{Method: "ocr-decode", Err: err}
	}
	rec, err := x.engine.Recognize(ctx, img)
	if err != nil {
		return nil, &extract.ExtractionError{Method: "ocr-" + x.engine.Name(), Err: err}
	}

	text := strings.Join(strings.Fields(rec.Text), " ")
	if utf8.RuneCountInString(text) < x.cfg.MinTextLength {
		logger.DebugContext(ctx, "discarding short ocr text", "url", c.URL, "chars", utf8.RuneCountInString(text))
		return nil, nil
	}
	return &ImageText{URL: c.URL, Text: text, Confidence: rec.Confidence}, nil
}

func (x *Extractor) load(ctx context.Context, ref, referer string) ([]byte, error) {
	if IsDataURI(ref) {
		// Base64 grows data by a third; reject oversized payloads undecoded.
		if len(ref)/4*3 > x.cfg.MaxImageBytes+64 {
			return nil, fmt.Errorf("data URI of %d bytes exceeds %d byte limit", len(ref), x.cfg.MaxImageBytes)
		}
		data, _, err := DecodeDataURI(ref)
		if err != nil {
			return nil, err
		}
		if len(data) > x.cfg.MaxImageBytes {
			return nil, fmt.Errorf("data URI payload of %d bytes exceeds %d byte limit", len(data), x.cfg.MaxImageBytes)
		}
		return data, nil
	}
	if x.downloader == nil {
		return nil, fmt.Errorf("no downloader configured for %s", ref)
	}
	data, _, err := x.downloader.Download(ctx, ref, referer, x.cfg.Timeout, x.cfg.MaxImageBytes)
	return data, err
}

// ExtractAll runs Extract over up to MaxImages candidates, waiting Delay
// between network downloads. Failed candidates are logged and skipped. The
// returned slice is never nil.
func (x *Extractor) ExtractAll(ctx context.Context, cands []images.Candidate, referer string) []ImageText {
	results := make([]ImageText, 0)
	if len(cands) > x.cfg.MaxImages {
		logger.DebugContext(ctx, "capping ocr candidates", "found", len(cands), "max", x.cfg.MaxImages)
		cands = cands[:x.cfg.MaxImages]
	}

	// A fresh limiter per page keeps pacing local to one retrieval.
	var pace *rate.Limiter
	if x.cfg.Delay > 0 {
		pace = rate.NewLimiter(rate.Every(x.cfg.Delay), 1)
	}

	for i, c := range cands {
		if ctx.Err() != nil {
			logger.WarnContext(ctx, "ocr cancelled", "processed", i, "remaining", len(cands)-i)
			break
		}
		if pace != nil && !IsDataURI(c.URL) {
			if err := pace.Wait(ctx); err != nil {
				break
			}
		}

		it, err := x.Extract(ctx, c, referer)
		if err != nil {
			logger.WarnContext(ctx, "skipping image", "url", truncate(c.URL, 120), "signal", c.Signal, "error", err)
			continue
		}
		if it != nil {
			logger.DebugContext(ctx, "recognized image text", "url", truncate(c.URL, 120), "chars", len(it.Text))
			results = append(results, *it)
		}
	}
	return results
}

// truncate shortens s to at most n runes.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
