package commands

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"
)

// avlbCmd builds the available universe
var avlbCmd = &cobra.Command{
	Use:   "avlb",
	Short: "Build the available universe",
	Long: `Keeps the (date, instrument) pairs whose rolling traded amount clears the
threshold, with each instrument's return, amount and rolling volatility.

Example:
  go run ./cmd/quant avlb --bgn 20240102 --stp 20240201`,
	RunE: runAvailable,
}

func init() {
	rootCmd.AddCommand(avlbCmd)
}

func runAvailable(cmd *cobra.Command, args []string) error {
	d, bgn, stp, err := withRange(cmd.Context())
	if err != nil {
		return err
	}
	defer d.Close()

	start := time.Now()
	PrintStageHeader("Available Universe", bgn, stp)
	summary, err := d.runner.Available(cmd.Context(), bgn, stp)
	if err != nil {
		return fmt.Errorf("avlb: %w", err)
	}

	PrintKeyValue("Rows", fmt.Sprint(summary.Rows), 8)
	PrintKeyValue("Written", fmt.Sprint(summary.Written), 8)
	if len(summary.Excluded) > 0 {
		insts := make([]string, 0, len(summary.Excluded))
		for inst := range summary.Excluded {
			insts = append(insts, inst)
		}
		sort.Strings(insts)
		fmt.Println("\n  Excluded on the last date:")
		PrintTableHeader([]string{"instrument", "reason"}, []int{12, 40})
		for _, inst := range insts {
			PrintTableRow([]string{inst, summary.Excluded[inst]}, []int{12, 40})
		}
	}
	PrintStageCompletion("avlb", start)
	return nil
}
