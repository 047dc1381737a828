package docsift

import (
	"time"

	"github.com/jmylchreest/docsift/pkg/extract"
	"github.com/jmylchreest/docsift/pkg/fetcher"
	"github.com/jmylchreest/docsift/pkg/ocr"
	"github.com/jmylchreest/docsift/pkg/urlnorm"
)

// Config holds all pipeline configuration. It is built once at startup and
// never modified by the pipeline.
type Config struct {
	Fetch     fetcher.Config `mapstructure:"fetch"`
	Normalize urlnorm.Config `mapstructure:"normalize"`
	Extract   extract.Config `mapstructure:"extract"`
	OCR       ocr.Config     `mapstructure:"ocr"`

	// Concurrency is the default parallelism of RetrieveMany.
	Concurrency int `mapstructure:"concurrency"`
	// PreviewLength is how many characters of text go into ContentPreview.
	PreviewLength int `mapstructure:"preview_length"`

	// Collaborators injected by callers and tests.
	OCREngine    ocr.Engine       `mapstructure:"-"`
	Downloader   ocr.Downloader   `mapstructure:"-"`
	FetchOptions []fetcher.Option `mapstructure:"-"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Fetch:         fetcher.DefaultConfig(),
		Normalize:     urlnorm.DefaultConfig(),
		Extract:       extract.DefaultConfig(),
		OCR:           ocr.DefaultConfig(),
		Concurrency:   4,
		PreviewLength: 1000,
	}
}

// Option configures a Pipeline.
type Option func(*Config)

// WithConfig replaces the whole configuration, typically one loaded from a
// config file. Later options still apply on top of it.
func WithConfig(cfg Config) Option {
	return func(c *Config) {
		*c = cfg
	}
}

// WithFetchConfig sets the fetch ladder configuration.
func WithFetchConfig(fc fetcher.Config) Option {
	return func(c *Config) {
		c.Fetch = fc
	}
}

// WithOCRConfig sets the image text recovery configuration.
func WithOCRConfig(oc ocr.Config) Option {
	return func(c *Config) {
		c.OCR = oc
	}
}

// WithMarkdown enables Markdown rendering of HTML pages.
func WithMarkdown(enabled bool) Option {
	return func(c *Config) {
		c.Extract.Markdown = enabled
	}
}

// WithBrowser enables or disables the headless browser rung.
func WithBrowser(enabled bool) Option {
	return func(c *Config) {
		c.Fetch.Browser.Enabled = enabled
	}
}

// WithStealth switches to the longer stealth politeness delays.
func WithStealth(enabled bool) Option {
	return func(c *Config) {
		c.Fetch.Politeness.Stealth = enabled
	}
}

// WithoutPoliteness disables the randomized pre-fetch delay. Intended for
// tests and local targets.
func WithoutPoliteness() Option {
	return func(c *Config) {
		c.Fetch.Politeness.Disabled = true
	}
}

// WithTimeout sets the per-request network timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.Fetch.Timeout = d
	}
}

// WithConcurrency sets the default batch parallelism.
func WithConcurrency(n int) Option {
	return func(c *Config) {
		c.Concurrency = n
	}
}

// WithOCREngine injects a recognition engine instead of Tesseract.
func WithOCREngine(e ocr.Engine) Option {
	return func(c *Config) {
		c.OCREngine = e
	}
}

// WithDownloader injects the image downloader used by OCR.
func WithDownloader(d ocr.Downloader) Option {
	return func(c *Config) {
		c.Downloader = d
	}
}

// WithFetchOptions passes options through to the fetch engine, for example
// fetcher.WithStrategies.
func WithFetchOptions(opts ...fetcher.Option) Option {
	return func(c *Config) {
		c.FetchOptions = append(c.FetchOptions, opts...)
	}
}
