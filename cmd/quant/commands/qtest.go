package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/factorlab/internal/s4_tests"
	"github.com/wonny/factorlab/internal/workerpool"
)

// qtestCmd runs IC or VT tests
var qtestCmd = &cobra.Command{
	Use:   "qtest",
	Short: "Run IC or VT factor tests",
	Long: `Tests the factor stages of a class against the available test returns.

  ic  daily Spearman rank correlation, yearly IC and IR report
  vt  daily value of a factor-weighted book net of turnover cost, yearly Sharpe report

Reports are written to <reports_dir>/<kind>_tests/<stage>/<save_id>.csv.

Example:
  go run ./cmd/quant qtest --kind ic --class REOC --bgn 20230103 --stp 20240102
  go run ./cmd/quant qtest --kind vt --stage sig --ret Cls001L1 --bgn 20230103 --stp 20240102`,
	RunE: runQTest,
}

var (
	qtestKind    string
	qtestClasses []string
	qtestRets    []string
	qtestStages  []string
)

func init() {
	rootCmd.AddCommand(qtestCmd)
	qtestCmd.Flags().StringVar(&qtestKind, "kind", string(s4_tests.KindIC), "test kind: ic or vt")
	qtestCmd.Flags().StringSliceVar(&qtestClasses, "class", nil, "factor classes (default: every configured class)")
	qtestCmd.Flags().StringSliceVar(&qtestRets, "ret", nil, "return names (default: tst.wins_ic or tst.wins_vt)")
	qtestCmd.Flags().StringSliceVar(&qtestStages, "stage", nil, "factor stages (default depends on kind)")
}

func runQTest(cmd *cobra.Command, args []string) error {
	kind := s4_tests.Kind(qtestKind)
	if kind != s4_tests.KindIC && kind != s4_tests.KindVT {
		return fmt.Errorf("--kind must be ic or vt, got %q", qtestKind)
	}

	d, bgn, stp, err := withRange(cmd.Context())
	if err != nil {
		return err
	}
	defer d.Close()

	wins := d.project.Tst.WinsIC
	if kind == s4_tests.KindVT {
		wins = d.project.Tst.WinsVT
	}
	rets, err := parseRets(qtestRets, wins)
	if err != nil {
		return err
	}
	stages := qtestStages
	if len(stages) == 0 {
		stages = s4_tests.DefaultStages(kind)
	}
	classes := classesOrAll(d, qtestClasses)

	start := time.Now()
	PrintStageHeader(strings.ToUpper(qtestKind)+" Tests", bgn, stp,
		"Classes", strings.Join(classes, ","),
		"Returns", retNames(rets),
		"Stages", strings.Join(stages, ","))

	total := &workerpool.Report{Name: qtestKind}
	for _, class := range classes {
		report, err := d.runner.QTests(cmd.Context(), kind, class, rets, stages, bgn, stp)
		if err != nil {
			return fmt.Errorf("qtest %s %s: %w", qtestKind, class, err)
		}
		total.Merge(report)
	}
	if err := PrintPoolReport(total); err != nil {
		return err
	}
	PrintInfo("Reports under " + d.project.Path.ReportsDir)
	PrintStageCompletion("qtest", start)
	return nil
}
