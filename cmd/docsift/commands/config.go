package commands

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/viper"

	"github.com/jmylchreest/docsift/pkg/docsift"
)

// envKeys are config keys that can be set from DOCSIFT_* variables without
// appearing in a config file. AutomaticEnv only resolves keys viper
// already knows about.
var envKeys = []string{
	"concurrency",
	"fetch.referer",
	"fetch.timeout",
	"fetch.max_redirects",
	"fetch.max_body_size",
	"fetch.pool_size",
	"fetch.retry.max_attempts",
	"fetch.retry.backoff",
	"fetch.blocking.min_body_bytes",
	"fetch.blocking.detect_challenges",
	"fetch.politeness.min",
	"fetch.politeness.max",
	"fetch.politeness.stealth",
	"fetch.politeness.disabled",
	"fetch.browser.enabled",
	"fetch.browser.chrome_path",
	"fetch.browser.pool_size",
	"fetch.browser.timeout",
	"fetch.browser.settle",
	"fetch.browser.escalate_on_block",
	"fetch.browser.escalate_on_spa",
	"extract.markdown",
	"extract.pdf_max_pages",
	"ocr.max_images",
	"ocr.timeout",
	"ocr.delay",
	"ocr.min_text_length",
	"ocr.language",
	"ocr.max_image_bytes",
	"ocr.max_pixels",
}

func bindEnvKeys() {
	for _, k := range envKeys {
		_ = viper.BindEnv(k)
	}
}

// byteKeys accept human sizes such as "10MB".
var byteKeys = []string{"fetch.max_body_size", "ocr.max_image_bytes"}

// loadConfig layers config file, environment and flag values over
// docsift.DefaultConfig.
func loadConfig() (docsift.Config, error) {
	cfg := docsift.DefaultConfig()

	for _, k := range byteKeys {
		raw := viper.GetString(k)
		if raw == "" {
			continue
		}
		n, err := parseSize(raw)
		if err != nil {
			return cfg, fmt.Errorf("%s: %w", k, err)
		}
		viper.Set(k, n)
	}

	if err := viper.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// parseSize accepts "10MB", "512KiB" or a plain byte count.
func parseSize(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "0" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	return int(n), nil
}
