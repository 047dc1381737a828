package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jmylchreest/docsift/internal/logger"
	"github.com/jmylchreest/docsift/pkg/docsift"
)

// addPipelineFlags registers the flags shared by every command that builds
// a pipeline. They are bound to viper in bindPipelineFlags, from PreRunE,
// so only the running command's flags take effect.
func addPipelineFlags(cmd *cobra.Command) {
	def := docsift.DefaultConfig()
	flags := cmd.Flags()

	flags.Duration("timeout", def.Fetch.Timeout, "per-request network timeout")
	flags.String("max-body-size", "10MB", "largest response body kept (e.g. 512KB, 10MB)")
	flags.Bool("stealth", def.Fetch.Politeness.Stealth, "use longer politeness delays")
	flags.Bool("no-delay", false, "disable the randomized delay before each fetch")
	flags.Bool("no-browser", false, "never render pages in headless Chrome")
	flags.String("chrome-path", "", "path to the Chrome binary (default: auto-detect)")
	flags.Bool("markdown", def.Extract.Markdown, "render HTML pages as Markdown")
	flags.IntP("concurrency", "c", def.Concurrency, "parallel retrievals in a batch")
}

var pipelineKeys = map[string]string{
	"timeout":       "fetch.timeout",
	"max-body-size": "fetch.max_body_size",
	"stealth":       "fetch.politeness.stealth",
	"chrome-path":   "fetch.browser.chrome_path",
	"markdown":      "extract.markdown",
	"concurrency":   "concurrency",
}

func bindPipelineFlags(cmd *cobra.Command, _ []string) error {
	for flag, key := range pipelineKeys {
		if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return fmt.Errorf("binding --%s: %w", flag, err)
		}
	}
	return nil
}

// newPipeline loads configuration, applies the negating flags and builds
// the pipeline. The caller must Close it.
func newPipeline(cmd *cobra.Command) (*docsift.Pipeline, docsift.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, cfg, err
	}

	var opts []docsift.Option
	opts = append(opts, docsift.WithConfig(cfg))
	if noBrowser, _ := cmd.Flags().GetBool("no-browser"); noBrowser {
		opts = append(opts, docsift.WithBrowser(false))
	}
	if noDelay, _ := cmd.Flags().GetBool("no-delay"); noDelay {
		opts = append(opts, docsift.WithoutPoliteness())
	}

	p, err := docsift.New(opts...)
	if err != nil {
		return nil, cfg, err
	}
	cfg = p.Config()
	logger.Debug("pipeline ready",
		"browser", cfg.Fetch.Browser.Enabled,
		"ocr", p.OCREnabled(),
		"markdown", cfg.Extract.Markdown,
		"concurrency", cfg.Concurrency)
	return p, cfg, nil
}
