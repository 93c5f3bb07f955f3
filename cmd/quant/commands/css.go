package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// cssCmd builds cross-section statistics
var cssCmd = &cobra.Command{
	Use:   "css",
	Short: "Build cross-section statistics",
	Long: `Cross-sectional volatility, dispersion, higher moments, their moving
averages and the eigenvalue based regime measures.

Example:
  go run ./cmd/quant css --bgn 20240102`,
	RunE: runCSS,
}

func init() {
	rootCmd.AddCommand(cssCmd)
}

func runCSS(cmd *cobra.Command, args []string) error {
	d, bgn, stp, err := withRange(cmd.Context())
	if err != nil {
		return err
	}
	defer d.Close()

	start := time.Now()
	PrintStageHeader("Cross-Section Statistics", bgn, stp)
	if err := d.runner.CSS(cmd.Context(), bgn, stp); err != nil {
		return fmt.Errorf("css: %w", err)
	}
	PrintStageCompletion("css", start)
	return nil
}
