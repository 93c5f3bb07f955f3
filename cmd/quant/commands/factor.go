package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/factorlab/internal/workerpool"
)

// factorCmd computes factors by instrument
var factorCmd = &cobra.Command{
	Use:   "factor",
	Short: "Compute factors per instrument",
	Long: `Runs each configured factor class over every instrument in the worker pool
and appends the results to factors_by_instru/<CLASS>/<instrument>.

Failures of single instruments do not stop the others; they are listed at the
end and make the command exit non-zero.

Example:
  go run ./cmd/quant factor --class REOC --bgn 20240102
  go run ./cmd/quant factor --bgn 20240102 --nomp`,
	RunE: runFactor,
}

var factorClasses []string

func init() {
	rootCmd.AddCommand(factorCmd)
	factorCmd.Flags().StringSliceVar(&factorClasses, "class", nil, "factor classes (default: every configured class)")
}

// classesOrAll falls back to every configured class
func classesOrAll(d *deps, classes []string) []string {
	if len(classes) > 0 {
		return classes
	}
	return d.project.FactorClasses()
}

func runFactor(cmd *cobra.Command, args []string) error {
	d, bgn, stp, err := withRange(cmd.Context())
	if err != nil {
		return err
	}
	defer d.Close()

	classes := classesOrAll(d, factorClasses)
	start := time.Now()
	PrintStageHeader("Factors", bgn, stp, "Classes", strings.Join(classes, ","))

	total := &workerpool.Report{Name: "factor"}
	for _, class := range classes {
		report, err := d.runner.Factors(cmd.Context(), class, bgn, stp)
		if err != nil {
			return fmt.Errorf("factor %s: %w", class, err)
		}
		total.Merge(report)
	}
	if err := PrintPoolReport(total); err != nil {
		return err
	}
	PrintStageCompletion("factor", start)
	return nil
}
