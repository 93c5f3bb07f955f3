// Package s2_factors computes per-instrument factor groups and persists them by instrument.
package s2_factors

import (
	"fmt"
	"math"
	"slices"

	"github.com/wonny/factorlab/internal/calendar"
	"github.com/wonny/factorlab/internal/projectconfig"
)

// Shape is the parameter shape of a factor class
type Shape int

const (
	ShapeWin    Shape = iota // window list
	ShapeWinLbd              // window list × lambda list
	ShapeLbd                 // lambda list
)

func (s Shape) String() string {
	switch s {
	case ShapeWin:
		return "win"
	case ShapeWinLbd:
		return "win_lbd"
	case ShapeLbd:
		return "lbd"
	default:
		return fmt.Sprintf("shape(%d)", int(s))
	}
}

// Suffixes of the derived window factors
const (
	SuffixVOL   = "VOL"
	SuffixDelay = "D"
	SuffixRES   = "RES"
	SuffixALPHA = "ALPHA"
	SuffixPA    = "PA"
	SuffixLA    = "LA"
	SuffixDIF   = "DIF"
)

// Args is the parameter set of a factor group. Each shape names its factors.
type Args interface {
	Shape() Shape
	// Vanilla returns the base factor names of class
	Vanilla(class string) []string
	// BufferBgnDate is the first date to load so that bgn is fully warmed up
	BufferBgnDate(cal *calendar.Calendar, bgn string) (string, error)
}

// WinArgs is the window-list shape
type WinArgs struct {
	Wins []int
}

func (WinArgs) Shape() Shape { return ShapeWin }

func (a WinArgs) Vanilla(class string) []string {
	out := make([]string, len(a.Wins))
	for i, w := range a.Wins {
		out[i] = winName(class, w)
	}
	return out
}

// Suffixed appends suffix to every vanilla name (VOL, D, RES, ALPHA, PA, LA)
func (a WinArgs) Suffixed(class, suffix string) []string {
	return suffixed(a.Vanilla(class), suffix)
}

// Dif is the single difference factor of the group
func (WinArgs) Dif(class string) string { return class + SuffixDIF }

func (a WinArgs) BufferBgnDate(cal *calendar.Calendar, bgn string) (string, error) {
	return cal.BufferStart(bgn, slices.Max(a.Wins)+5)
}

// WinLbdArgs is the window × lambda shape; names follow wins-major order
type WinLbdArgs struct {
	Wins []int
	Lbds []float64
}

func (WinLbdArgs) Shape() Shape { return ShapeWinLbd }

func (a WinLbdArgs) Vanilla(class string) []string {
	out := make([]string, 0, len(a.Wins)*len(a.Lbds))
	for _, w := range a.Wins {
		for _, l := range a.Lbds {
			out = append(out, winLbdName(class, w, l))
		}
	}
	return out
}

// Lambda returns one name per lambda
func (a WinLbdArgs) Lambda(class string) []string {
	return lbdNames(class, a.Lbds)
}

func (a WinLbdArgs) Delay(class string) []string {
	return suffixed(a.Vanilla(class), SuffixDelay)
}

func (WinLbdArgs) Dif(class string) string { return class + SuffixDIF }

func (a WinLbdArgs) BufferBgnDate(cal *calendar.Calendar, bgn string) (string, error) {
	return cal.BufferStart(bgn, slices.Max(a.Wins)+5)
}

// LbdArgs is the lambda-only shape
type LbdArgs struct {
	Lbds []float64
}

func (LbdArgs) Shape() Shape { return ShapeLbd }

func (a LbdArgs) Vanilla(class string) []string { return lbdNames(class, a.Lbds) }

func (LbdArgs) BufferBgnDate(cal *calendar.Calendar, bgn string) (string, error) {
	if !cal.Contains(bgn) {
		return "", fmt.Errorf("%w: %s", calendar.ErrDateNotFound, bgn)
	}
	return bgn, nil
}

func winName(class string, w int) string { return fmt.Sprintf("%s%03d", class, w) }

func winLbdName(class string, w int, l float64) string {
	return fmt.Sprintf("%s%03dL%02d", class, w, lbdCode(l))
}

// lbdCode truncates like the stored names do: 0.29 -> 28
func lbdCode(l float64) int { return int(l * 100) }

func lbdNames(class string, lbds []float64) []string {
	out := make([]string, len(lbds))
	for i, l := range lbds {
		out[i] = fmt.Sprintf("%sL%02d", class, lbdCode(l))
	}
	return out
}

func suffixed(names []string, suffix string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = n + suffix
	}
	return out
}

// NewArgs builds the Args of shape from the configured lists, dropping duplicates
func NewArgs(shape Shape, cfg projectconfig.ArgsConfig) (Args, error) {
	wins := dedupe(cfg.Wins)
	lbds := dedupe(cfg.Lbds)
	switch shape {
	case ShapeWin:
		if len(wins) == 0 {
			return nil, fmt.Errorf("%s shape needs wins", shape)
		}
		return WinArgs{Wins: wins}, nil
	case ShapeWinLbd:
		if len(wins) == 0 || len(lbds) == 0 {
			return nil, fmt.Errorf("%s shape needs wins and lbds", shape)
		}
		return WinLbdArgs{Wins: wins, Lbds: lbds}, nil
	case ShapeLbd:
		if len(lbds) == 0 {
			return nil, fmt.Errorf("%s shape needs lbds", shape)
		}
		return LbdArgs{Lbds: lbds}, nil
	default:
		return nil, fmt.Errorf("unknown shape %s", shape)
	}
}

func dedupe[T comparable](xs []T) []T {
	seen := make(map[T]bool, len(xs))
	var out []T
	for _, x := range xs {
		if !seen[x] {
			seen[x] = true
			out = append(out, x)
		}
	}
	return out
}

// Decay is the exponential weighting applied by the EWA stage
type Decay struct {
	Rate float64
	Win  int
}

// NewDecay converts the configured decay
func NewDecay(cfg projectconfig.DecayConfig) Decay {
	return Decay{Rate: cfg.Rate, Win: cfg.Win}
}

// Rou is the per-step decay factor
func (d Decay) Rou() float64 {
	if d.Win <= 1 {
		return 1
	}
	return math.Pow(d.Rate, 1/float64(d.Win-1))
}

// Weights are ordered oldest to newest and sum to 1
func (d Decay) Weights() []float64 {
	if d.Win <= 1 {
		return []float64{1}
	}
	rou := d.Rou()
	w := make([]float64, d.Win)
	sum := 0.0
	for i := range w {
		w[i] = math.Pow(rou, float64(d.Win-i))
		sum += w[i]
	}
	for i := range w {
		w[i] /= sum
	}
	return w
}

func (d Decay) String() string {
	return fmt.Sprintf("CDecayR%02dW%02d", int(d.Rate*10), d.Win)
}
