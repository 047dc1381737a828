package commands

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/docsift/internal/logger"
	"github.com/jmylchreest/docsift/internal/toolbridge"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Expose retrieval as MCP tools over stdio",
	Long: `Run a Model Context Protocol server on stdin/stdout.

Tools:
  fetch_document   retrieve a URL and return its document as JSON
  normalize_url    decode a tracking redirect link

Logs go to stderr so they never corrupt the protocol stream.`,
	PreRunE: bindPipelineFlags,
	RunE:    runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
	addPipelineFlags(mcpCmd)
}

func runMCP(cmd *cobra.Command, _ []string) error {
	initLogger()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	p, _, err := newPipeline(cmd)
	if err != nil {
		logger.Error("failed to create pipeline", "error", err)
		return err
	}
	defer p.Close()

	logger.Info("mcp server starting", "transport", "stdio")
	return toolbridge.New(p).Run(ctx)
}
