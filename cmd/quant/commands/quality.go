package commands

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

// qualityCmd checks source coverage
var qualityCmd = &cobra.Command{
	Use:   "quality",
	Short: "Check source data coverage",
	Long: `Measures, per source kind, the share of (date, instrument) cells with data
and stores the daily scores in the quality table.

Example:
  go run ./cmd/quant quality --bgn 20240102 --stp 20240201`,
	RunE: runQuality,
}

func init() {
	rootCmd.AddCommand(qualityCmd)
}

func runQuality(cmd *cobra.Command, args []string) error {
	d, bgn, stp, err := withRange(cmd.Context())
	if err != nil {
		return err
	}
	defer d.Close()

	PrintStageHeader("Data Quality", bgn, stp)
	snap, err := d.runner.Quality(cmd.Context(), bgn, stp)
	if err != nil {
		return err
	}

	kinds := make([]string, 0, len(snap.Coverage))
	for kind := range snap.Coverage {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	widths := []int{12, 10, 40}
	PrintTableHeader([]string{"source", "coverage", "missing"}, widths)
	for _, kind := range kinds {
		PrintTableRow([]string{
			kind,
			fmt.Sprintf("%.1f%%", snap.Coverage[kind]*100),
			strings.Join(snap.Missing[kind], ","),
		}, widths)
	}
	fmt.Println()
	PrintKeyValue("Score", fmt.Sprintf("%.3f", snap.Score), 6)
	if !snap.Passed {
		return fmt.Errorf("quality check failed: score %.3f", snap.Score)
	}
	PrintSuccess("Quality check passed")
	return nil
}
