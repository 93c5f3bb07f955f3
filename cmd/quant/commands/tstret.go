package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/factorlab/internal/s4_tests"
)

// tstretCmd builds forward test returns
var tstretCmd = &cobra.Command{
	Use:   "tstret",
	Short: "Build forward test returns",
	Long: `Computes the open and close forward returns of every configured window per
instrument, then joins them with the available universe.

Example:
  go run ./cmd/quant tstret --bgn 20240102 --stp 20240201
  go run ./cmd/quant tstret --ret Cls005L1,Opn001L1 --bgn 20240102`,
	RunE: runTestReturns,
}

var tstretNames []string

func init() {
	rootCmd.AddCommand(tstretCmd)
	tstretCmd.Flags().StringSliceVar(&tstretNames, "ret", nil, "return names such as Cls005L1 (default: tst.wins)")
}

// parseRets parses names, defaulting to Rets(wins)
func parseRets(names []string, wins []int) ([]s4_tests.Ret, error) {
	if len(names) == 0 {
		return s4_tests.Rets(wins), nil
	}
	rets := make([]s4_tests.Ret, 0, len(names))
	for _, name := range names {
		ret, err := s4_tests.ParseRet(name)
		if err != nil {
			return nil, err
		}
		rets = append(rets, ret)
	}
	return rets, nil
}

func retNames(rets []s4_tests.Ret) string {
	names := make([]string, len(rets))
	for i, r := range rets {
		names[i] = r.Name()
	}
	return strings.Join(names, ",")
}

func runTestReturns(cmd *cobra.Command, args []string) error {
	d, bgn, stp, err := withRange(cmd.Context())
	if err != nil {
		return err
	}
	defer d.Close()

	rets, err := parseRets(tstretNames, d.project.Tst.Wins)
	if err != nil {
		return err
	}
	start := time.Now()
	PrintStageHeader("Test Returns", bgn, stp, "Returns", retNames(rets))

	report, err := d.runner.TestReturns(cmd.Context(), rets, bgn, stp)
	if err != nil {
		return fmt.Errorf("tstret: %w", err)
	}
	if err := PrintPoolReport(report); err != nil {
		return err
	}
	PrintStageCompletion("tstret", start)
	return nil
}
