package commands

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jmylchreest/docsift/internal/logger"
	"github.com/jmylchreest/docsift/internal/output"
	"github.com/jmylchreest/docsift/pkg/docsift"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch [url...]",
	Short: "Retrieve URLs and print their documents",
	Long: `Retrieve one or more URLs and write one document per URL.

URLs come from the arguments and from --file (one per line, "-" for
stdin). Blank lines and lines starting with # are ignored. Several URLs
are retrieved in parallel and written in input order.

Examples:
  docsift fetch https://example.com/report.pdf
  docsift fetch --images --markdown https://example.com/post
  cat urls.txt | docsift fetch -f - --format jsonl
  docsift fetch --probe https://example.com/`,
	PreRunE: bindPipelineFlags,
	RunE:    runFetch,
}

func init() {
	rootCmd.AddCommand(fetchCmd)
	addPipelineFlags(fetchCmd)

	flags := fetchCmd.Flags()

	// Inputs
	flags.StringP("file", "f", "", "read URLs from a file, one per line (- for stdin)")

	// Per-request settings
	flags.Bool("images", false, "recover text from images with OCR")
	flags.Bool("browser", false, "always render in headless Chrome")
	flags.String("user-agent", "", "User-Agent to send instead of a rotated one")
	flags.String("auth-token", "", "bearer token sent with every request")
	flags.String("referer", "", "Referer to send")
	flags.Duration("delay", 0, "fixed politeness delay instead of a random one")
	flags.Bool("probe", false, "only report status, headers and a raw preview")

	// Output
	flags.StringP("output", "o", "", "output file (default: stdout)")
	flags.String("format", "json", "output format: json, jsonl, yaml")
	flags.Bool("pretty", true, "indent JSON output")
	flags.Bool("raw", false, "include raw page content in the output")
}

func runFetch(cmd *cobra.Command, args []string) error {
	initLogger()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	urls, err := collectURLs(cmd, args)
	if err != nil {
		return err
	}
	if len(urls) == 0 {
		return cmd.Help()
	}
	logger.Debug("URLs to process", "count", len(urls))

	formatStr, _ := cmd.Flags().GetString("format")
	format, err := output.ParseFormat(formatStr)
	if err != nil {
		return err
	}

	p, cfg, err := newPipeline(cmd)
	if err != nil {
		logger.Error("failed to create pipeline", "error", err)
		return err
	}
	defer p.Close()

	reqs := make([]docsift.Request, len(urls))
	for i, u := range urls {
		reqs[i] = requestFromFlags(cmd, u)
	}

	outPath, _ := cmd.Flags().GetString("output")
	dst, err := output.Open(outPath)
	if err != nil {
		return err
	}
	defer dst.Close()

	pretty, _ := cmd.Flags().GetBool("pretty")
	raw, _ := cmd.Flags().GetBool("raw")
	wopts := []output.WriterOption{output.WithPretty(pretty)}
	if !raw {
		wopts = append(wopts, output.WithoutRawContent())
	}
	w, err := output.NewWriter(dst, format, wopts...)
	if err != nil {
		return err
	}

	start := time.Now()
	failures := 0
	probe, _ := cmd.Flags().GetBool("probe")

	switch {
	case probe || len(reqs) == 1:
		for _, req := range reqs {
			var doc *docsift.Document
			if probe {
				doc, err = p.Probe(ctx, req)
			} else {
				doc, err = p.Retrieve(ctx, req)
			}
			if err != nil {
				failures++
				logError("%s: %v", req.URL, err)
			}
			if doc == nil {
				continue
			}
			if werr := w.Write(doc); werr != nil {
				return werr
			}
		}
	default:
		concurrency, _ := cmd.Flags().GetInt("concurrency")
		if concurrency < 1 {
			concurrency = cfg.Concurrency
		}
		res := p.RetrieveMany(ctx, reqs, concurrency)
		for _, doc := range res.Documents {
			if werr := w.Write(doc); werr != nil {
				return werr
			}
		}
		for _, f := range res.Failures {
			logError("%s: %s", f.URL, f.Error)
		}
		failures = len(res.Failures)
	}

	if err := w.Close(); err != nil {
		return err
	}

	logger.Info("fetch complete",
		"urls", len(reqs),
		"failures", failures,
		"elapsed", time.Since(start).Round(time.Millisecond))
	if outPath != "" && outPath != "-" {
		if st, err := os.Stat(outPath); err == nil {
			logger.Info("output written", "path", outPath, "size", humanize.Bytes(uint64(st.Size())))
		}
	}

	if failures > 0 {
		return fmt.Errorf("%d of %d URLs failed", failures, len(reqs))
	}
	return nil
}

func requestFromFlags(cmd *cobra.Command, url string) docsift.Request {
	flags := cmd.Flags()
	images, _ := flags.GetBool("images")
	browser, _ := flags.GetBool("browser")
	ua, _ := flags.GetString("user-agent")
	token, _ := flags.GetString("auth-token")
	referer, _ := flags.GetString("referer")
	timeout, _ := flags.GetDuration("timeout")
	delay, _ := flags.GetDuration("delay")

	req := docsift.Request{
		URL:           url,
		UserAgent:     ua,
		AuthToken:     token,
		Referer:       referer,
		ForceBrowser:  browser,
		ExtractImages: images,
		Delay:         delay,
	}
	if flags.Changed("timeout") {
		req.Timeout = timeout
	}
	return req
}

// collectURLs merges positional arguments with the --file list.
func collectURLs(cmd *cobra.Command, args []string) ([]string, error) {
	urls := append([]string(nil), args...)

	path, _ := cmd.Flags().GetString("file")
	if path == "" {
		return urls, nil
	}

	var r io.Reader
	if path == "-" {
		r = cmd.InOrStdin()
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open URL list: %w", err)
		}
		defer f.Close()
		r = f
	}

	listed, err := readURLs(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read URL list: %w", err)
	}
	return append(urls, listed...), nil
}

func readURLs(r io.Reader) ([]string, error) {
	var urls []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	return urls, sc.Err()
}
