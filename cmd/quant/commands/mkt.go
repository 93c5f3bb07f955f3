package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// mktCmd builds the market index
var mktCmd = &cobra.Command{
	Use:   "mkt",
	Short: "Build the market index",
	Long: `Amount-weighted market and sector returns plus the configured external
index columns.

Example:
  go run ./cmd/quant mkt --bgn 20240102`,
	RunE: runMarket,
}

func init() {
	rootCmd.AddCommand(mktCmd)
}

func runMarket(cmd *cobra.Command, args []string) error {
	d, bgn, stp, err := withRange(cmd.Context())
	if err != nil {
		return err
	}
	defer d.Close()

	start := time.Now()
	PrintStageHeader("Market Index", bgn, stp)
	if err := d.runner.Market(cmd.Context(), bgn, stp); err != nil {
		return fmt.Errorf("mkt: %w", err)
	}
	PrintStageCompletion("mkt", start)
	return nil
}
