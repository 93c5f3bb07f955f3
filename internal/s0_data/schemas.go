package s0_data

import (
	"fmt"

	"github.com/wonny/factorlab/internal/store"
)

// Source kinds accepted by the importer and the loaders
const (
	KindPreprocess = "preprocess"
	KindMinuteBar  = "minute_bar"
	KindPosition   = "position"
	KindForex      = "forex"
	KindMacro      = "macro"
	KindMarket     = "market"
)

// Preprocess holds the daily major-contract series of one instrument
var preprocessColumns = store.Schema{
	Labels: []string{"ticker_major"},
	Values: []string{
		"open_major", "high_major", "low_major", "close_major", "closeI",
		"vol_major", "amount_major", "oi_major",
		"return_c_major", "return_o_major",
	},
}

// minuteBarColumns are intraday bars; rows keep their insertion order within a date
var minuteBarColumns = store.Schema{
	Labels: []string{"ticker", "timestamp"},
	Values: []string{"open", "high", "low", "close", "pre_close", "vol", "amount", "oi"},
}

var positionColumns = store.Schema{
	Labels: []string{"ticker", "member"},
	Values: []string{"long_pos", "long_chg", "short_pos", "short_chg"},
}

var forexColumns = store.Schema{
	Labels: []string{"ticker"},
	Values: []string{"pre_close", "open", "high", "low", "close"},
}

var macroColumns = store.Schema{
	Values: []string{"cpi_rate", "m2_rate", "ppi_rate"},
}

func withName(s store.Schema, name string) store.Schema {
	s.Name = name
	return s
}

// PreprocessSchema is the preprocess table of instrument under prefix
func PreprocessSchema(prefix, instrument string) store.Schema {
	return withName(preprocessColumns, prefix+"/"+instrument)
}

func MinuteBarSchema(prefix, instrument string) store.Schema {
	return withName(minuteBarColumns, prefix+"/"+instrument)
}

func PositionSchema(prefix, instrument string) store.Schema {
	return withName(positionColumns, prefix+"/"+instrument)
}

func ForexSchema(prefix string) store.Schema { return withName(forexColumns, prefix) }
func MacroSchema(prefix string) store.Schema { return withName(macroColumns, prefix) }

// SchemaFor resolves a source kind to its table. instrument is ignored for forex and macro.
func (s *Sources) SchemaFor(kind, instrument string) (store.Schema, error) {
	prefix, err := s.prefix(kind)
	if err != nil {
		return store.Schema{}, err
	}
	switch kind {
	case KindPreprocess, KindMinuteBar, KindPosition:
		if instrument == "" {
			return store.Schema{}, fmt.Errorf("%s requires an instrument", kind)
		}
	}
	switch kind {
	case KindPreprocess:
		return PreprocessSchema(prefix, instrument), nil
	case KindMinuteBar:
		return MinuteBarSchema(prefix, instrument), nil
	case KindPosition:
		return PositionSchema(prefix, instrument), nil
	case KindForex:
		return ForexSchema(prefix), nil
	case KindMarket:
		return *s.market, nil
	default:
		return MacroSchema(prefix), nil
	}
}
