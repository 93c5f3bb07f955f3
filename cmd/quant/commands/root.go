package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wonny/factorlab/internal/calendar"
)

var (
	// Global flags
	projectConfig string
	bgnFlag       string
	stpFlag       string
	nomp          bool
	processes     int
	verbose       bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "quant",
	Short: "factorlab - futures factor research pipeline",
	Long: `factorlab Unified CLI

Builds the available universe, market statistics, factors and signals of a
futures universe, then tests the factors against forward returns.

Usage:
  go run ./cmd/quant [command]

Examples:
  go run ./cmd/quant avlb --bgn 20240102
  go run ./cmd/quant factor --class REOC --bgn 20240102 --stp 20240201
  go run ./cmd/quant qtest --kind ic --class REOC --bgn 20230103 --stp 20240102
  go run ./cmd/quant scheduler start`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
// Ctrl+C cancels the command context so pooled stages stop taking new instruments.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&projectConfig, "config", "", "project YAML (default PROJECT_CONFIG or config.yaml)")
	rootCmd.PersistentFlags().StringVar(&bgnFlag, "bgn", "", "first trade date, YYYYMMDD")
	rootCmd.PersistentFlags().StringVar(&stpFlag, "stp", "", "stop trade date, exclusive (default: the trade date after --bgn)")
	rootCmd.PersistentFlags().BoolVar(&nomp, "nomp", false, "run instruments sequentially")
	rootCmd.PersistentFlags().IntVar(&processes, "processes", 0, "worker pool size (default WORKERS or core count)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// dateRange resolves --bgn and --stp against the calendar
func dateRange(cal *calendar.Calendar, bgn, stp string) (string, string, error) {
	if bgn == "" {
		return "", "", fmt.Errorf("--bgn is required")
	}
	if !cal.Contains(bgn) {
		return "", "", fmt.Errorf("--bgn: %w: %s", calendar.ErrDateNotFound, bgn)
	}
	if stp != "" {
		if stp <= bgn {
			return "", "", fmt.Errorf("--stp %s must be after --bgn %s", stp, bgn)
		}
		return bgn, stp, nil
	}
	next, err := cal.NextDate(bgn, 1)
	if err != nil {
		return "", "", fmt.Errorf("--stp default: %w", err)
	}
	return bgn, next, nil
}
