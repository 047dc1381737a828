package commands

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/docsift/internal/logger"
	"github.com/jmylchreest/docsift/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the retrieval pipeline over HTTP",
	Long: `Start the REST API.

Routes:
  GET  /health          liveness and capabilities
  POST /smart-scrape    retrieve with image text recovery on by default
  POST /scrape          retrieve without image text recovery
  POST /batch           retrieve several URLs in parallel
  POST /fetch           status, headers and a raw preview only`,
	PreRunE: bindPipelineFlags,
	RunE:    runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	addPipelineFlags(serveCmd)

	flags := serveCmd.Flags()
	flags.String("addr", ":8080", "listen address")
	flags.Int("max-batch", 50, "most URLs accepted by one /batch call")
	flags.String("max-request-size", "1MB", "largest accepted request body")
}

func runServe(cmd *cobra.Command, _ []string) error {
	initLogger()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	p, cfg, err := newPipeline(cmd)
	if err != nil {
		logger.Error("failed to create pipeline", "error", err)
		return err
	}
	defer p.Close()

	addr, _ := cmd.Flags().GetString("addr")
	maxBatch, _ := cmd.Flags().GetInt("max-batch")
	sizeStr, _ := cmd.Flags().GetString("max-request-size")
	maxBody, err := parseSize(sizeStr)
	if err != nil {
		return err
	}

	srv := server.New(p, server.Options{
		MaxBatch:     maxBatch,
		MaxBodyBytes: int64(maxBody),
		OCR:          p.OCREnabled(),
		Browser:      cfg.Fetch.Browser.Enabled,
	})
	return srv.Run(ctx, addr)
}
