// Package market builds the cross-sectional market tables: the market index (mkt),
// cross-section statistics (css) and instrument covariances (icov).
package market

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/wonny/factorlab/internal/store"
)

var (
	ErrNoIndexWorkbook = errors.New("market index workbook not configured")
	ErrIndexColumn     = errors.New("market index column not found")
)

// IndexTable maps trade date to the external index values of that date
type IndexTable map[string]map[string]float64

// Value returns the index value of column at date, NaN when absent
func (t IndexTable) Value(date, column string) float64 {
	row, ok := t[date]
	if !ok {
		return math.NaN()
	}
	v, ok := row[column]
	if !ok {
		return math.NaN()
	}
	return v
}

// ReadIndexWorkbook reads columns from the first sheet of the workbook at path.
// The header is the first row holding a trade_date cell; dates may carry dashes.
func ReadIndexWorkbook(path string, columns []string) (IndexTable, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open market index: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("market index %s has no sheets", path)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read market index: %w", err)
	}

	header := -1
	for i, row := range rows {
		for _, cell := range row {
			if strings.TrimSpace(cell) == store.TradeDateColumn {
				header = i
				break
			}
		}
		if header >= 0 {
			break
		}
	}
	if header < 0 {
		return nil, fmt.Errorf("%w: %s", ErrIndexColumn, store.TradeDateColumn)
	}

	pos := map[string]int{}
	for j, cell := range rows[header] {
		pos[strings.TrimSpace(cell)] = j
	}
	dateCol := pos[store.TradeDateColumn]
	for _, c := range columns {
		if _, ok := pos[c]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrIndexColumn, c)
		}
	}

	out := IndexTable{}
	for _, row := range rows[header+1:] {
		if dateCol >= len(row) {
			continue
		}
		date := strings.ReplaceAll(strings.TrimSpace(row[dateCol]), "-", "")
		if date == "" {
			continue
		}
		values := make(map[string]float64, len(columns))
		for _, c := range columns {
			values[c] = parseCell(row, pos[c])
		}
		out[date] = values
	}
	return out, nil
}

func parseCell(row []string, j int) float64 {
	if j >= len(row) {
		return math.NaN()
	}
	s := strings.ReplaceAll(strings.TrimSpace(row[j]), ",", "")
	if s == "" {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}
