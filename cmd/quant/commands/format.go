package commands

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/wonny/factorlab/internal/workerpool"
)

// Console output shared by every command, so stage runs read the same way

// PrintStageHeader prints the banner of a stage run
func PrintStageHeader(stage, bgn, stp string, extra ...string) {
	fmt.Println()
	PrintDoubleSeparator()
	fmt.Printf("  %s\n", stage)
	PrintSeparator()
	fmt.Printf("  Period    : %s ~ %s\n", bgn, stp)
	for i := 0; i+1 < len(extra); i += 2 {
		fmt.Printf("  %-9s : %s\n", extra[i], extra[i+1])
	}
	PrintSeparator()
}

// PrintStageCompletion prints the elapsed time of a stage
func PrintStageCompletion(stage string, start time.Time) {
	fmt.Println()
	fmt.Printf("✅ %s completed in %.2fs\n", stage, time.Since(start).Seconds())
}

// PrintPoolReport prints the partial-failure summary of a pooled run and returns its error
func PrintPoolReport(report *workerpool.Report) error {
	if report == nil {
		return nil
	}
	fmt.Printf("  %s: %d/%d tasks succeeded\n", report.Name, report.Succeeded, report.Total)
	if report.Failed() == 0 {
		return nil
	}

	PrintWarning(fmt.Sprintf("%d task(s) failed", report.Failed()))
	failures := make([]string, 0, report.Failed())
	for _, f := range report.Failures {
		failures = append(failures, f.Error())
	}
	sort.Strings(failures)
	PrintList(failures)
	return report.Err()
}

// PrintSeparator prints a visual separator
func PrintSeparator() {
	fmt.Println("───────────────────────────────────────────────────────────")
}

// PrintDoubleSeparator prints a double-line separator
func PrintDoubleSeparator() {
	fmt.Println("═══════════════════════════════════════════════════════════")
}

// PrintWarning prints a warning message
func PrintWarning(message string) {
	fmt.Println()
	fmt.Printf("⚠️  %s\n", message)
}

// PrintSuccess prints a success message
func PrintSuccess(message string) {
	fmt.Printf("✅ %s\n", message)
}

// PrintInfo prints an info message
func PrintInfo(message string) {
	fmt.Printf("ℹ️  %s\n", message)
}

// PrintTableHeader prints a table header
func PrintTableHeader(columns []string, widths []int) {
	PrintTableRow(columns, widths)

	totalWidth := 0
	for i, width := range widths {
		totalWidth += width
		if i < len(widths)-1 {
			totalWidth += 2 // spacing
		}
	}
	fmt.Println(strings.Repeat("─", totalWidth))
}

// PrintTableRow prints a table row
func PrintTableRow(values []string, widths []int) {
	for i, val := range values {
		fmt.Printf("%-*s", widths[i], val)
		if i < len(values)-1 {
			fmt.Print("  ")
		}
	}
	fmt.Println()
}

// PrintList prints a bulleted list
func PrintList(items []string) {
	for _, item := range items {
		fmt.Printf("   • %s\n", item)
	}
}

// PrintKeyValue prints key-value pairs
func PrintKeyValue(key string, value string, keyWidth int) {
	fmt.Printf("   %-*s : %s\n", keyWidth, key, value)
}
