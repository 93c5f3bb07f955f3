package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/factorlab/internal/store"
)

// corrCmd correlates two factors
var corrCmd = &cobra.Command{
	Use:   "corr",
	Short: "Correlate two factors day by day",
	Long: `Daily Pearson correlation of two factors over the instruments both cover,
with its cumulative sum, written to <reports_dir>/corr/ic_<f0>_<f1>_<raw|ema>.csv.

Example:
  go run ./cmd/quant corr --f0 REOC001 --f1 CORR003L05 --stage raw --bgn 20230103 --stp 20240102`,
	RunE: runCorr,
}

var (
	corrF0    string
	corrF1    string
	corrStage string
)

func init() {
	rootCmd.AddCommand(corrCmd)
	corrCmd.Flags().StringVar(&corrF0, "f0", "", "first factor name")
	corrCmd.Flags().StringVar(&corrF1, "f1", "", "second factor name")
	corrCmd.Flags().StringVar(&corrStage, "stage", store.StageRaw, "factor stage: raw or ewa")
	_ = corrCmd.MarkFlagRequired("f0")
	_ = corrCmd.MarkFlagRequired("f1")
}

func runCorr(cmd *cobra.Command, args []string) error {
	if corrStage != store.StageRaw && corrStage != store.StageEWA {
		return fmt.Errorf("--stage must be %s or %s, got %q", store.StageRaw, store.StageEWA, corrStage)
	}
	d, bgn, stp, err := withRange(cmd.Context())
	if err != nil {
		return err
	}
	defer d.Close()

	start := time.Now()
	PrintStageHeader("Factor Correlation", bgn, stp, "Factors", corrF0+" / "+corrF1, "Stage", corrStage)
	path, err := d.runner.Corr(cmd.Context(), corrF0, corrF1, corrStage, bgn, stp)
	if err != nil {
		return fmt.Errorf("corr: %w", err)
	}
	PrintSuccess("Written " + path)
	PrintStageCompletion("corr", start)
	return nil
}
