package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/docsift/internal/logger"
	"github.com/jmylchreest/docsift/pkg/urlnorm"
)

var normalizeCmd = &cobra.Command{
	Use:   "normalize <url>...",
	Short: "Decode tracking redirect links",
	Long: `Print the destination of tracking redirect links without fetching them.

URLs that are not tracking links, or that cannot be decoded, are printed
unchanged.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runNormalize,
}

func init() {
	rootCmd.AddCommand(normalizeCmd)
}

func runNormalize(cmd *cobra.Command, args []string) error {
	initLogger()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	n := urlnorm.New(cfg.Normalize)

	for _, raw := range args {
		resolved, err := n.Resolve(raw)
		if err != nil {
			logger.Debug("url left unchanged", "url", raw, "error", err)
			resolved = raw
		}
		fmt.Fprintln(cmd.OutOrStdout(), resolved)
	}
	return nil
}
