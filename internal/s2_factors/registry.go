package s2_factors

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"

	"github.com/wonny/factorlab/internal/calendar"
	"github.com/wonny/factorlab/internal/projectconfig"
	"github.com/wonny/factorlab/internal/s0_data"
	"github.com/wonny/factorlab/internal/store"
)

// ErrUnknownClass is returned for a factor class missing from the registry
var ErrUnknownClass = errors.New("unknown factor class")

// ColTicker labels per-instrument factor rows
const ColTicker = "ticker"

// Env is what a calculator may read
type Env struct {
	Sources *s0_data.Sources
	Cal     *calendar.Calendar
}

// Market loads the market index table, ErrSourceNotConfigured when the run has none
func (e Env) Market(ctx context.Context, bgn, stp string, columns ...string) ([]store.Record, error) {
	return e.Sources.Market(ctx, bgn, stp, columns...)
}

// Calculator computes one factor group for one instrument.
// Rows carry ColTicker and every name of Names, restricted to trade_date >= bgn.
type Calculator interface {
	Class() string
	Args() Args
	Names() []string
	Calculate(ctx context.Context, env Env, instrument, bgn, stp string) ([]store.Record, error)
}

type entry struct {
	shape Shape
	new   func(class string, args Args) Calculator
}

var registry = map[string]entry{
	"REOC": {shape: ShapeWin, new: func(class string, args Args) Calculator {
		return &REOCCalculator{class: class, args: args.(WinArgs)}
	}},
	"CORR": {shape: ShapeWinLbd, new: func(class string, args Args) Calculator {
		return &CORRCalculator{class: class, args: args.(WinLbdArgs)}
	}},
}

// Classes returns the registered classes in sorted order
func Classes() []string {
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// New builds the calculator of class from its configuration
func New(class string, cfg projectconfig.FactorConfig) (Calculator, error) {
	e, ok := registry[class]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownClass, class)
	}
	args, err := NewArgs(e.shape, cfg.Args)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", class, err)
	}
	return e.new(class, args), nil
}

// FactorNames lists the factor names of a configured class
func FactorNames(cfg *projectconfig.Config, class string) ([]string, error) {
	fc, ok := cfg.Factors[class]
	if !ok {
		return nil, fmt.Errorf("%w: %s is not configured", ErrUnknownClass, class)
	}
	c, err := New(class, fc)
	if err != nil {
		return nil, err
	}
	return c.Names(), nil
}

// MatchClass resolves a factor name to the configured class that produces it
func MatchClass(cfg *projectconfig.Config, name string) (string, error) {
	for _, class := range cfg.FactorClasses() {
		names, err := FactorNames(cfg, class)
		if err != nil {
			return "", err
		}
		if slices.Contains(names, name) {
			return class, nil
		}
	}
	return "", fmt.Errorf("%w: no configured class produces %s", ErrUnknownClass, name)
}

// Schema is the per-instrument table of c
func Schema(c Calculator, instrument string) store.Schema {
	return store.Schema{
		Name:   store.FactorsByInstrumentTable(c.Class(), instrument),
		Labels: []string{ColTicker},
		Values: c.Names(),
	}
}
