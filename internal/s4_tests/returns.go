// Package s4_tests builds forward test returns and scores factors against them.
package s4_tests

import (
	"errors"
	"fmt"
	"strconv"
)

// ErrBadReturnName is returned by ParseRet
var ErrBadReturnName = errors.New("bad test return name")

// Return classes: open-to-open and close-to-close
const (
	ClassOpn = "Opn"
	ClassCls = "Cls"
)

// DefaultLag separates the signal date from the first return day
const DefaultLag = 1

// Ret is a forward return of win days starting lag days after the signal date
type Ret struct {
	Class string
	Win   int
	Lag   int
}

// Name is like "Cls001L1"
func (r Ret) Name() string { return fmt.Sprintf("%s%03dL%d", r.Class, r.Win, r.Lag) }

func (r Ret) String() string { return r.Name() }

// Shift is how far the return reaches past the signal date
func (r Ret) Shift() int { return r.Win + r.Lag }

// Column is the preprocess column the return sums
func (r Ret) Column() string {
	if r.Class == ClassOpn {
		return "return_o_major"
	}
	return "return_c_major"
}

// ParseRet parses names like "Cls001L1" or "Opn010L1"
func ParseRet(name string) (Ret, error) {
	if len(name) != 8 || name[6] != 'L' {
		return Ret{}, fmt.Errorf("%w: %q", ErrBadReturnName, name)
	}
	class := name[0:3]
	if class != ClassOpn && class != ClassCls {
		return Ret{}, fmt.Errorf("%w: class %q", ErrBadReturnName, class)
	}
	win, err := strconv.Atoi(name[3:6])
	if err != nil || win < 1 {
		return Ret{}, fmt.Errorf("%w: window %q", ErrBadReturnName, name[3:6])
	}
	lag, err := strconv.Atoi(name[7:])
	if err != nil {
		return Ret{}, fmt.Errorf("%w: lag %q", ErrBadReturnName, name[7:])
	}
	return Ret{Class: class, Win: win, Lag: lag}, nil
}

// Rets expands windows into both return classes with the default lag
func Rets(wins []int) []Ret {
	out := make([]Ret, 0, 2*len(wins))
	for _, class := range []string{ClassOpn, ClassCls} {
		for _, w := range wins {
			out = append(out, Ret{Class: class, Win: w, Lag: DefaultLag})
		}
	}
	return out
}
