// Package projectconfig holds the research parameters loaded from the project YAML.
package projectconfig

import "sort"

// Config is the root of the project YAML
type Config struct {
	Path               PathConfig              `yaml:"path" json:"path"`
	Sources            SourcesConfig           `yaml:"sources" json:"sources"`
	Universe           map[string]Instrument   `yaml:"universe" json:"universe"`
	Available          AvailableConfig         `yaml:"available" json:"available"`
	CSS                CSSConfig               `yaml:"css" json:"css"`
	ICov               ICovConfig              `yaml:"icov" json:"icov"`
	Mkt                MktConfig               `yaml:"mkt" json:"mkt"`
	Tst                TstConfig               `yaml:"tst" json:"tst"`
	Const              ConstConfig             `yaml:"const" json:"const"`
	FactorDecayDefault DecayConfig             `yaml:"factor_decay_default" json:"factor_decay_default"`
	Factors            map[string]FactorConfig `yaml:"factors" json:"factors"`
}

// PathConfig locates files outside the store
type PathConfig struct {
	Calendar    string `yaml:"calendar" json:"calendar"`
	MarketIndex string `yaml:"market_index" json:"market_index"`
	ReportsDir  string `yaml:"reports_dir" json:"reports_dir"`
}

// SourcesConfig holds the table prefix of each optional input source; empty means not configured
type SourcesConfig struct {
	Preprocess string `yaml:"preprocess" json:"preprocess"`
	MinuteBar  string `yaml:"minute_bar" json:"minute_bar"`
	Position   string `yaml:"position" json:"position"`
	Forex      string `yaml:"forex" json:"forex"`
	Macro      string `yaml:"macro" json:"macro"`
}

// Instrument is one universe member's sector classification
type Instrument struct {
	SectorL0 string `yaml:"sectorL0" json:"sectorL0"`
	SectorL1 string `yaml:"sectorL1" json:"sectorL1"`
}

// AvailableConfig drives the liquidity admission filter
type AvailableConfig struct {
	Win             int     `yaml:"win" json:"win"`
	AmountThreshold float64 `yaml:"amount_threshold" json:"amount_threshold"`
	WinVol          int     `yaml:"win_vol" json:"win_vol"`
	WinVolMin       int     `yaml:"win_vol_min" json:"win_vol_min"`
}

// BufferWin is the look-back needed before the first computed date
func (a AvailableConfig) BufferWin() int {
	return max(a.Win, a.WinVol, a.WinVolMin)
}

type CSSConfig struct {
	VMAWin       int     `yaml:"vma_win" json:"vma_win"`
	VMAThreshold float64 `yaml:"vma_threshold" json:"vma_threshold"`
	VMAWgt       float64 `yaml:"vma_wgt" json:"vma_wgt"`
	SEVWin       int     `yaml:"sev_win" json:"sev_win"`
}

// BufferWin is the look-back needed before the first computed date
func (c CSSConfig) BufferWin() int {
	return max(c.VMAWin, c.SEVWin)
}

type ICovConfig struct {
	Win int `yaml:"win" json:"win"`
}

// MktConfig names the external index columns copied from the market-index workbook
type MktConfig struct {
	Equity    string `yaml:"equity" json:"equity"`
	Commodity string `yaml:"commodity" json:"commodity"`
}

// Indexes returns the configured index columns
func (m MktConfig) Indexes() []string {
	var out []string
	for _, s := range []string{m.Equity, m.Commodity} {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// TstConfig lists the test-return windows
type TstConfig struct {
	Wins   []int `yaml:"wins" json:"wins"`
	WinsIC []int `yaml:"wins_ic" json:"wins_ic"`
	WinsVT []int `yaml:"wins_vt" json:"wins_vt"`
}

type ConstConfig struct {
	CostRate float64 `yaml:"cost_rate" json:"cost_rate"`
}

type DecayConfig struct {
	Rate float64 `yaml:"rate" json:"rate"`
	Win  int     `yaml:"win" json:"win"`
}

// FactorConfig is one factor class entry; Decay overrides factor_decay_default
type FactorConfig struct {
	Args  ArgsConfig   `yaml:"args" json:"args"`
	Decay *DecayConfig `yaml:"decay,omitempty" json:"decay,omitempty"`
}

type ArgsConfig struct {
	Wins []int     `yaml:"wins,omitempty" json:"wins,omitempty"`
	Lbds []float64 `yaml:"lbds,omitempty" json:"lbds,omitempty"`
}

// Instruments returns the universe in sorted order
func (c *Config) Instruments() []string {
	out := make([]string, 0, len(c.Universe))
	for k := range c.Universe {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Sectors returns the distinct sectorL1 values in sorted order
func (c *Config) Sectors() []string {
	seen := map[string]bool{}
	var out []string
	for _, inst := range c.Universe {
		if !seen[inst.SectorL1] {
			seen[inst.SectorL1] = true
			out = append(out, inst.SectorL1)
		}
	}
	sort.Strings(out)
	return out
}

// FactorClasses returns the configured classes in sorted order
func (c *Config) FactorClasses() []string {
	out := make([]string, 0, len(c.Factors))
	for k := range c.Factors {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// DecayFor returns the class decay, falling back to the default
func (c *Config) DecayFor(class string) DecayConfig {
	if f, ok := c.Factors[class]; ok && f.Decay != nil {
		return *f.Decay
	}
	return c.FactorDecayDefault
}
