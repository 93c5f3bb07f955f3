package projectconfig

import "fmt"

// ValidationError is a fatal configuration error
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks all required constraints
func Validate(cfg *Config) error {
	// === Path ===
	if cfg.Path.Calendar == "" {
		return ValidationError{"path.calendar", "required"}
	}

	// === Universe ===
	if len(cfg.Universe) == 0 {
		return ValidationError{"universe", "at least one instrument required"}
	}
	for name, inst := range cfg.Universe {
		if inst.SectorL0 == "" || inst.SectorL1 == "" {
			return ValidationError{fmt.Sprintf("universe.%s", name), "sectorL0 and sectorL1 are required"}
		}
	}

	// === Available ===
	a := cfg.Available
	if a.Win < 1 {
		return ValidationError{"available.win", "must be >= 1"}
	}
	if a.WinVol < 2 {
		return ValidationError{"available.win_vol", "must be >= 2"}
	}
	if a.WinVolMin < 2 || a.WinVolMin > a.WinVol {
		return ValidationError{"available.win_vol_min", "must be in [2, win_vol]"}
	}
	if a.AmountThreshold < 0 {
		return ValidationError{"available.amount_threshold", "must be >= 0"}
	}

	// === CSS / ICov ===
	if cfg.CSS.VMAWin < 1 {
		return ValidationError{"css.vma_win", "must be >= 1"}
	}
	if cfg.CSS.SEVWin < 2 {
		return ValidationError{"css.sev_win", "must be >= 2"}
	}
	if cfg.ICov.Win < 2 {
		return ValidationError{"icov.win", "must be >= 2"}
	}

	// === Tests ===
	for field, wins := range map[string][]int{"tst.wins": cfg.Tst.Wins, "tst.wins_ic": cfg.Tst.WinsIC, "tst.wins_vt": cfg.Tst.WinsVT} {
		if err := validateWins(field, wins, false); err != nil {
			return err
		}
	}
	if cfg.Const.CostRate < 0 {
		return ValidationError{"const.cost_rate", "must be >= 0"}
	}

	// === Factors ===
	if err := validateDecay("factor_decay_default", cfg.FactorDecayDefault); err != nil {
		return err
	}
	for class, f := range cfg.Factors {
		field := fmt.Sprintf("factors.%s", class)
		if f.Decay != nil {
			if err := validateDecay(field+".decay", *f.Decay); err != nil {
				return err
			}
		}
		if len(f.Args.Wins) == 0 && len(f.Args.Lbds) == 0 {
			return ValidationError{field + ".args", "wins or lbds required"}
		}
		if err := validateWins(field+".args.wins", f.Args.Wins, true); err != nil {
			return err
		}
		for i, l := range f.Args.Lbds {
			if l <= 0 || l > 1 {
				return ValidationError{fmt.Sprintf("%s.args.lbds[%d]", field, i), "must be in (0, 1]"}
			}
		}
	}

	return nil
}

func validateDecay(field string, d DecayConfig) error {
	if d.Rate <= 0 || d.Rate > 1 {
		return ValidationError{field + ".rate", "must be in (0, 1]"}
	}
	if d.Win < 1 {
		return ValidationError{field + ".win", "must be >= 1"}
	}
	return nil
}

func validateWins(field string, wins []int, allowEmpty bool) error {
	if len(wins) == 0 && !allowEmpty {
		return ValidationError{field, "at least one window required"}
	}
	seen := map[int]bool{}
	for i, w := range wins {
		if w < 1 || w > 999 {
			return ValidationError{fmt.Sprintf("%s[%d]", field, i), "must be in [1, 999]"}
		}
		if seen[w] {
			return ValidationError{fmt.Sprintf("%s[%d]", field, i), fmt.Sprintf("duplicate window %d", w)}
		}
		seen[w] = true
	}
	return nil
}
