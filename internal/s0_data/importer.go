package s0_data

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/wonny/factorlab/internal/calendar"
	"github.com/wonny/factorlab/internal/store"
	"github.com/wonny/factorlab/pkg/logger"
	"github.com/wonny/factorlab/pkg/metrics"
)

// ErrBadInput marks a malformed import file
var ErrBadInput = errors.New("bad import input")

// ImportResult summarizes one import
type ImportResult struct {
	Table   string
	Rows    int
	Written bool
}

// Importer seeds source tables from CSV files
type Importer struct {
	sources *Sources
	cal     *calendar.Calendar
	metrics *metrics.Metrics
	log     *logger.Logger
}

func NewImporter(sources *Sources, cal *calendar.Calendar, m *metrics.Metrics, log *logger.Logger) *Importer {
	return &Importer{sources: sources, cal: cal, metrics: m, log: log.WithComponent("import")}
}

// Import reads CSV rows with a trade_date column into the table of kind.
// Empty cells are stored as NaN. A ticker column missing from the file is filled with instrument.
func (im *Importer) Import(ctx context.Context, kind, instrument string, r io.Reader) (*ImportResult, error) {
	t, err := im.sources.Table(kind, instrument)
	if err != nil {
		return nil, err
	}
	schema := t.Schema()

	rows, err := parseCSV(r, schema, instrument, im.cal)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", schema.Name, err)
	}
	res := &ImportResult{Table: schema.Name, Rows: len(rows)}
	if len(rows) == 0 {
		im.log.WithField("table", schema.Name).Warn("no rows to import")
		return res, nil
	}

	written, err := store.AppendIfContinuous(ctx, t, rows, im.cal, im.metrics, im.log)
	if err != nil {
		return nil, err
	}
	res.Written = written
	im.log.WithFields(map[string]interface{}{
		"table":   schema.Name,
		"rows":    len(rows),
		"bgn":     rows[0].TradeDate,
		"stp":     rows[len(rows)-1].TradeDate,
		"written": written,
	}).Info("import finished")
	return res, nil
}

func parseCSV(r io.Reader, schema store.Schema, instrument string, cal *calendar.Calendar) ([]store.Record, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: empty file", ErrBadInput)
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	index := map[string]int{}
	for i, h := range header {
		index[strings.TrimSpace(strings.TrimPrefix(h, "\uFEFF"))] = i
	}
	dateCol, ok := index[store.TradeDateColumn]
	if !ok {
		return nil, fmt.Errorf("%w: no %s column", ErrBadInput, store.TradeDateColumn)
	}

	var fill []string
	for _, l := range schema.Labels {
		if _, ok := index[l]; ok {
			continue
		}
		if strings.HasPrefix(l, "ticker") && instrument != "" {
			fill = append(fill, l)
			continue
		}
		return nil, fmt.Errorf("%w: no %s column", ErrBadInput, l)
	}

	var rows []store.Record
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		date := strings.ReplaceAll(strings.TrimSpace(rec[dateCol]), "-", "")
		if !cal.Contains(date) {
			return nil, fmt.Errorf("line %d: %w: %s", line, calendar.ErrDateNotFound, date)
		}
		row := store.NewRecord(date)
		for _, l := range schema.Labels {
			if i, ok := index[l]; ok {
				row.Labels[l] = strings.TrimSpace(rec[i])
			}
		}
		for _, l := range fill {
			row.Labels[l] = instrument
		}
		for _, v := range schema.Values {
			i, ok := index[v]
			if !ok {
				row.Values[v] = math.NaN()
				continue
			}
			f, err := parseValue(rec[i])
			if err != nil {
				return nil, fmt.Errorf("line %d column %s: %w", line, v, err)
			}
			row.Values[v] = f
		}
		rows = append(rows, row)
	}

	// intraday order inside a date is kept
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].TradeDate < rows[j].TradeDate })
	return rows, nil
}

func parseValue(s string) (float64, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "nan", "null", "none":
		return math.NaN(), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrBadInput, s)
	}
	return f, nil
}
