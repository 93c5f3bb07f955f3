package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// dailyCmd runs the incremental pipeline over an explicit range
var dailyCmd = &cobra.Command{
	Use:   "daily",
	Short: "Run every daily stage over a date range",
	Long: `Runs avlb, mkt, css, icov, then factors and signals of every configured class,
the same chain the scheduler runs for the current trade date.

Example:
  go run ./cmd/quant daily --bgn 20240102 --stp 20240110`,
	RunE: runDaily,
}

func init() {
	rootCmd.AddCommand(dailyCmd)
}

func runDaily(cmd *cobra.Command, args []string) error {
	d, bgn, stp, err := withRange(cmd.Context())
	if err != nil {
		return err
	}
	defer d.Close()

	start := time.Now()
	PrintStageHeader("Daily Pipeline", bgn, stp)
	result, err := d.runner.Daily(cmd.Context(), bgn, stp)
	if result != nil {
		PrintKeyValue("Stages", strings.Join(result.CompletedStages, " → "), 7)
		if result.Quality != nil {
			PrintKeyValue("Quality", fmt.Sprintf("%.3f", result.Quality.Score), 7)
		}
		if err == nil || result.Report.Failed() > 0 {
			if perr := PrintPoolReport(result.Report); perr != nil {
				return perr
			}
		}
	}
	if err != nil {
		return err
	}
	PrintStageCompletion("daily", start)
	return nil
}
