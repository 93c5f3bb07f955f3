// Package s0_data reads the optional input sources every factor draws on.
package s0_data

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/wonny/factorlab/internal/projectconfig"
	"github.com/wonny/factorlab/internal/store"
)

// ErrSourceNotConfigured is returned when a computation reads a source the project does not provide
var ErrSourceNotConfigured = errors.New("data source not configured")

// ErrUnknownKind is returned for a source kind outside the Kind* constants
var ErrUnknownKind = errors.New("unknown source kind")

// Sources gives read access to the input tables
type Sources struct {
	backend store.Backend
	cfg     projectconfig.SourcesConfig
	market  *store.Schema
}

// NewSources creates a Sources reader over backend
func NewSources(backend store.Backend, cfg projectconfig.SourcesConfig) *Sources {
	return &Sources{backend: backend, cfg: cfg}
}

// WithMarket makes the market index table readable through Market
func (s *Sources) WithMarket(schema store.Schema) *Sources {
	s.market = &schema
	return s
}

func (s *Sources) prefix(kind string) (string, error) {
	var p string
	switch kind {
	case KindPreprocess:
		p = s.cfg.Preprocess
	case KindMinuteBar:
		p = s.cfg.MinuteBar
	case KindPosition:
		p = s.cfg.Position
	case KindForex:
		p = s.cfg.Forex
	case KindMacro:
		p = s.cfg.Macro
	case KindMarket:
		if s.market != nil {
			p = s.market.Name
		}
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if p == "" {
		return "", fmt.Errorf("%w: %s", ErrSourceNotConfigured, kind)
	}
	return p, nil
}

// Configured reports whether kind has a table prefix
func (s *Sources) Configured(kind string) bool {
	_, err := s.prefix(kind)
	return err == nil
}

// Table opens the table of kind, for writers such as the importer
func (s *Sources) Table(kind, instrument string) (store.Table, error) {
	schema, err := s.SchemaFor(kind, instrument)
	if err != nil {
		return nil, err
	}
	return s.backend.Table(schema), nil
}

func (s *Sources) read(ctx context.Context, kind, instrument, bgn, stp string, columns []string) ([]store.Record, error) {
	t, err := s.Table(kind, instrument)
	if err != nil {
		return nil, err
	}
	rows, err := t.ReadByRange(ctx, bgn, stp, columns...)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", kind, err)
	}
	return rows, nil
}

// Preprocess loads the daily major-contract series of instrument over [bgn, stp)
func (s *Sources) Preprocess(ctx context.Context, instrument, bgn, stp string, columns ...string) ([]store.Record, error) {
	return s.read(ctx, KindPreprocess, instrument, bgn, stp, columns)
}

// MinuteBar loads intraday bars of instrument over [bgn, stp)
func (s *Sources) MinuteBar(ctx context.Context, instrument, bgn, stp string, columns ...string) ([]store.Record, error) {
	return s.read(ctx, KindMinuteBar, instrument, bgn, stp, columns)
}

// Position loads member positions of instrument over [bgn, stp)
func (s *Sources) Position(ctx context.Context, instrument, bgn, stp string, columns ...string) ([]store.Record, error) {
	return s.read(ctx, KindPosition, instrument, bgn, stp, columns)
}

func (s *Sources) Forex(ctx context.Context, bgn, stp string, columns ...string) ([]store.Record, error) {
	return s.read(ctx, KindForex, "", bgn, stp, columns)
}

func (s *Sources) Macro(ctx context.Context, bgn, stp string, columns ...string) ([]store.Record, error) {
	return s.read(ctx, KindMacro, "", bgn, stp, columns)
}

// Market loads the market and sector index returns over [bgn, stp)
func (s *Sources) Market(ctx context.Context, bgn, stp string, columns ...string) ([]store.Record, error) {
	return s.read(ctx, KindMarket, "", bgn, stp, columns)
}

// Align places column of rows onto dates; dates without a row are NaN.
// When a date has several rows the last one wins.
func Align(rows []store.Record, dates []string, column string) []float64 {
	byDate := make(map[string]float64, len(rows))
	for _, r := range rows {
		byDate[r.TradeDate] = r.Value(column)
	}
	out := make([]float64, len(dates))
	for i, d := range dates {
		v, ok := byDate[d]
		if !ok {
			v = math.NaN()
		}
		out[i] = v
	}
	return out
}
