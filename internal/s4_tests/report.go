package s4_tests

import (
	"context"
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/wonny/factorlab/internal/stats"
	"github.com/wonny/factorlab/internal/store"
)

const (
	retScale = 100.0
	annRate  = 250.0
)

// ReportRow is one (factor, year) line of a test report
type ReportRow struct {
	Factor string
	Year   string
	Values []float64
}

// ReportHeader returns the CSV header of kind
func ReportHeader(kind Kind) []string {
	if kind == KindVT {
		return []string{"factor", "trade_year", "mean", "std", "ann_ret", "ann_vol", "sharpe"}
	}
	return []string{"factor", "trade_year", "IC", "IR"}
}

// Summarize groups daily test values by year
func Summarize(kind Kind, names []string, rows []store.Record) []ReportRow {
	var years []string
	byYear := map[string][]store.Record{}
	for _, r := range rows {
		y := r.TradeDate[0:4]
		if _, ok := byYear[y]; !ok {
			years = append(years, y)
		}
		byYear[y] = append(byYear[y], r)
	}

	var out []ReportRow
	for _, y := range years {
		for _, name := range names {
			xs := make([]float64, len(byYear[y]))
			for i, r := range byYear[y] {
				xs[i] = r.Value(name)
			}
			mean, std := stats.Mean(xs), stats.Std(xs)
			row := ReportRow{Factor: name, Year: y}
			if kind == KindVT {
				mean, std = mean*retScale, std*retScale
				annRet, annVol := mean*annRate, std*math.Sqrt(annRate)
				row.Values = []float64{mean, std, annRet, annVol, annRet / annVol}
			} else {
				row.Values = []float64{mean, mean / std}
			}
			out = append(out, row)
		}
	}
	return out
}

// ReportPath is where the report of q is written
func (qt *QTests) ReportPath(q QTest) string {
	return filepath.Join(qt.reportsDir, string(q.Kind)+"_tests", q.Stage, q.SaveID()+".csv")
}

// Report summarizes the stored values of q over [bgn, stp) into its CSV report
func (qt *QTests) Report(ctx context.Context, q QTest, bgn, stp string) (string, error) {
	rows, err := qt.Load(ctx, q, bgn, stp)
	if err != nil {
		return "", err
	}
	path := qt.ReportPath(q)
	if err := WriteReport(path, q.Kind, Summarize(q.Kind, q.Names, rows)); err != nil {
		return "", err
	}
	return path, nil
}

// WriteReport writes rows as CSV with six decimals; NaN is an empty cell
func WriteReport(path string, kind Kind, rows []ReportRow) error {
	lines := make([][]string, 0, len(rows)+1)
	lines = append(lines, ReportHeader(kind))
	for _, r := range rows {
		line := []string{r.Factor, r.Year}
		for _, v := range r.Values {
			line = append(line, formatFloat(v))
		}
		lines = append(lines, line)
	}
	return writeCSV(path, lines)
}

func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', 6, 64)
}

func writeCSV(path string, lines [][]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	w := csv.NewWriter(f)
	if err := w.WriteAll(lines); err != nil {
		_ = f.Close()
		return fmt.Errorf("write report: %w", err)
	}
	return f.Close()
}
