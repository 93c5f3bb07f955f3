package commands

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// signalsCmd builds the raw, ewa and sig stages
var signalsCmd = &cobra.Command{
	Use:   "signals",
	Short: "Build available factor stages",
	Long: `Joins factors with the available universe, then winsorizes and z-scores
them (raw), decays them (ewa) and re-normalizes the decayed values (sig).

Example:
  go run ./cmd/quant signals --class REOC --bgn 20240102`,
	RunE: runSignals,
}

var signalClasses []string

func init() {
	rootCmd.AddCommand(signalsCmd)
	signalsCmd.Flags().StringSliceVar(&signalClasses, "class", nil, "factor classes (default: every configured class)")
}

func runSignals(cmd *cobra.Command, args []string) error {
	d, bgn, stp, err := withRange(cmd.Context())
	if err != nil {
		return err
	}
	defer d.Close()

	classes := classesOrAll(d, signalClasses)
	start := time.Now()
	PrintStageHeader("Signals", bgn, stp, "Classes", strings.Join(classes, ","))

	widths := []int{10, 8, 24}
	PrintTableHeader([]string{"class", "rows", "written"}, widths)
	for _, class := range classes {
		summary, err := d.runner.Signals(cmd.Context(), class, bgn, stp)
		if err != nil {
			return fmt.Errorf("signals %s: %w", class, err)
		}
		stages := make([]string, 0, len(summary.Written))
		for stage, ok := range summary.Written {
			if ok {
				stages = append(stages, stage)
			}
		}
		sort.Strings(stages)
		PrintTableRow([]string{class, fmt.Sprint(summary.Rows), strings.Join(stages, ",")}, widths)
	}
	PrintStageCompletion("signals", start)
	return nil
}
