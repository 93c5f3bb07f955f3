// Package store is the partitioned, append-only time-series store.
// Each table is keyed by name (for example "factors_avlb_raw/REOC") and holds rows
// ordered by trade date. Backends only differ in where the rows live.
package store

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/wonny/factorlab/internal/calendar"
	"github.com/wonny/factorlab/pkg/logger"
	"github.com/wonny/factorlab/pkg/metrics"
)

var (
	ErrUnknownBackend = errors.New("unknown store backend")
	ErrUnknownColumn  = errors.New("unknown column")
	ErrNotAppendOnly  = errors.New("rows do not append after the last stored date")
	ErrUnsorted       = errors.New("rows are not sorted by trade date")
	ErrMissingLabel   = errors.New("row is missing a label column")
)

// TradeDateColumn is implicit in every schema
const TradeDateColumn = "trade_date"

// Record is one stored row. Missing or null values are NaN.
type Record struct {
	TradeDate string
	Labels    map[string]string
	Values    map[string]float64
}

// NewRecord creates an empty record for date
func NewRecord(date string) Record {
	return Record{TradeDate: date, Labels: map[string]string{}, Values: map[string]float64{}}
}

// Value returns the named value, NaN when absent
func (r Record) Value(name string) float64 {
	v, ok := r.Values[name]
	if !ok {
		return math.NaN()
	}
	return v
}

// Label returns the named label, "" when absent
func (r Record) Label(name string) string {
	return r.Labels[name]
}

// Clone returns a deep copy
func (r Record) Clone() Record {
	out := Record{
		TradeDate: r.TradeDate,
		Labels:    make(map[string]string, len(r.Labels)),
		Values:    make(map[string]float64, len(r.Values)),
	}
	for k, v := range r.Labels {
		out.Labels[k] = v
	}
	for k, v := range r.Values {
		out.Values[k] = v
	}
	return out
}

// Schema describes a table: its name, label (string) columns and value (float) columns
type Schema struct {
	Name   string
	Labels []string
	Values []string
}

func (s Schema) hasLabel(name string) bool {
	for _, l := range s.Labels {
		if l == name {
			return true
		}
	}
	return false
}

func (s Schema) hasValue(name string) bool {
	for _, v := range s.Values {
		if v == name {
			return true
		}
	}
	return false
}

// Continuity is the result of CheckContinuity
type Continuity int

const (
	// ContinuityOK means rows starting at bgn may be appended
	ContinuityOK Continuity = 0
	// ContinuityGap means trading days between the last stored date and bgn are missing
	ContinuityGap Continuity = 1
	// ContinuityOverlap means bgn is already, possibly partially, populated
	ContinuityOverlap Continuity = 2
)

func (c Continuity) String() string {
	switch c {
	case ContinuityOK:
		return "ok"
	case ContinuityGap:
		return "gap"
	case ContinuityOverlap:
		return "overlap"
	default:
		return fmt.Sprintf("continuity(%d)", int(c))
	}
}

// Table is one append-only partition
type Table interface {
	Schema() Schema
	// ReadByRange returns rows with bgn <= trade_date < stp, optionally projected to columns
	ReadByRange(ctx context.Context, bgn, stp string, columns ...string) ([]Record, error)
	// LastDate returns the latest stored date; ok is false for an empty table
	LastDate(ctx context.Context) (date string, ok bool, err error)
	CheckContinuity(ctx context.Context, bgn string, cal *calendar.Calendar) (Continuity, error)
	// Update appends rows sorted by trade date
	Update(ctx context.Context, rows []Record) error
}

// Backend opens tables
type Backend interface {
	Table(schema Schema) Table
	Close() error
}

func checkContinuity(last string, ok bool, bgn string, cal *calendar.Calendar) (Continuity, error) {
	if !ok {
		return ContinuityOK, nil
	}
	expected, err := cal.NextDate(last, 1)
	if err != nil {
		if errors.Is(err, calendar.ErrOutOfRange) {
			return ContinuityOverlap, nil
		}
		return 0, fmt.Errorf("continuity after %s: %w", last, err)
	}
	switch {
	case expected == bgn:
		return ContinuityOK, nil
	case expected < bgn:
		return ContinuityGap, nil
	default:
		return ContinuityOverlap, nil
	}
}

// prepareRows validates rows against schema and projects them onto its columns
func prepareRows(schema Schema, rows []Record, last string, hasLast bool) ([]Record, error) {
	out := make([]Record, len(rows))
	for i, r := range rows {
		if i > 0 && r.TradeDate < rows[i-1].TradeDate {
			return nil, fmt.Errorf("%s: %w at %s", schema.Name, ErrUnsorted, r.TradeDate)
		}
		p := Record{
			TradeDate: r.TradeDate,
			Labels:    make(map[string]string, len(schema.Labels)),
			Values:    make(map[string]float64, len(schema.Values)),
		}
		for _, l := range schema.Labels {
			v, ok := r.Labels[l]
			if !ok {
				return nil, fmt.Errorf("%s: %w %q at %s", schema.Name, ErrMissingLabel, l, r.TradeDate)
			}
			p.Labels[l] = v
		}
		for _, v := range schema.Values {
			p.Values[v] = r.Value(v)
		}
		out[i] = p
	}
	if len(out) > 0 && hasLast && out[0].TradeDate <= last {
		return nil, fmt.Errorf("%s: %w (%s <= %s)", schema.Name, ErrNotAppendOnly, out[0].TradeDate, last)
	}
	return out, nil
}

// project keeps the requested columns; no columns keeps everything
func project(schema Schema, rows []Record, columns []string) ([]Record, error) {
	if len(columns) == 0 {
		return rows, nil
	}
	var labels, values []string
	for _, c := range columns {
		switch {
		case c == TradeDateColumn:
		case schema.hasLabel(c):
			labels = append(labels, c)
		case schema.hasValue(c):
			values = append(values, c)
		default:
			return nil, fmt.Errorf("%s: %w %q", schema.Name, ErrUnknownColumn, c)
		}
	}
	for i, r := range rows {
		p := Record{
			TradeDate: r.TradeDate,
			Labels:    make(map[string]string, len(labels)),
			Values:    make(map[string]float64, len(values)),
		}
		for _, l := range labels {
			p.Labels[l] = r.Labels[l]
		}
		for _, v := range values {
			p.Values[v] = r.Value(v)
		}
		rows[i] = p
	}
	return rows, nil
}

// AppendIfContinuous appends rows when the table continues exactly at the first row's date.
// A failed continuity check is not an error: the write is skipped and written is false.
func AppendIfContinuous(ctx context.Context, t Table, rows []Record, cal *calendar.Calendar, m *metrics.Metrics, log *logger.Logger) (bool, error) {
	if len(rows) == 0 {
		return false, nil
	}
	return AppendIfContinuousAt(ctx, t, rows[0].TradeDate, rows, cal, m, log)
}

// AppendIfContinuousAt is AppendIfContinuous with an explicit continuity date
func AppendIfContinuousAt(ctx context.Context, t Table, bgn string, rows []Record, cal *calendar.Calendar, m *metrics.Metrics, log *logger.Logger) (bool, error) {
	name := t.Schema().Name
	c, err := t.CheckContinuity(ctx, bgn, cal)
	if err != nil {
		return false, err
	}
	if c != ContinuityOK {
		log.WithFields(map[string]interface{}{
			"table":      name,
			"bgn":        bgn,
			"continuity": c.String(),
		}).Info("continuity check failed, write skipped")
		m.SkipWrite(name)
		return false, nil
	}
	if len(rows) == 0 {
		return false, nil
	}
	if err := t.Update(ctx, rows); err != nil {
		return false, fmt.Errorf("update %s: %w", name, err)
	}
	m.AddRows(name, len(rows))
	return true, nil
}

// SortRecords stable-sorts rows by trade date, then by the given labels
func SortRecords(rows []Record, labels ...string) {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].TradeDate != rows[j].TradeDate {
			return rows[i].TradeDate < rows[j].TradeDate
		}
		for _, l := range labels {
			a, b := rows[i].Labels[l], rows[j].Labels[l]
			if a != b {
				return a < b
			}
		}
		return false
	})
}
