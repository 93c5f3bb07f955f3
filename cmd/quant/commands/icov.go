package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// icovCmd builds instrument covariances
var icovCmd = &cobra.Command{
	Use:   "icov",
	Short: "Build instrument covariances",
	Long: `Rolling covariance of every instrument pair over the icov window.

Example:
  go run ./cmd/quant icov --bgn 20240102`,
	RunE: runICov,
}

func init() {
	rootCmd.AddCommand(icovCmd)
}

func runICov(cmd *cobra.Command, args []string) error {
	d, bgn, stp, err := withRange(cmd.Context())
	if err != nil {
		return err
	}
	defer d.Close()

	start := time.Now()
	PrintStageHeader("Instrument Covariance", bgn, stp)
	if err := d.runner.ICov(cmd.Context(), bgn, stp); err != nil {
		return fmt.Errorf("icov: %w", err)
	}
	PrintStageCompletion("icov", start)
	return nil
}
