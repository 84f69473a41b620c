package strategy

import (
	"math"

	"golang-rotation/config"
)

// Exit reasons recorded on the trade ledger.
const (
	ReasonStopLoss        = "stop_loss"
	ReasonATRStop         = "atr_stop"
	ReasonTakeProfit      = "take_profit"
	ReasonSuperProfitLock = "super_profit_lock"
	ReasonTrailingStrong  = "trailing_stop_strong"
	ReasonTrailingWeak    = "trailing_stop_weak"
	ReasonTimeStopProfit  = "time_stop_profit"
	ReasonTimeStopLoss    = "time_stop_loss"
)

// ExitContext is the per-date view of one open position that exit rules
// evaluate against. All percentage fields are fractions, not percents.
type ExitContext struct {
	Price        float64
	EntryPrice   float64
	PnlPct       float64
	MaxPnlPct    float64 // (highest - entry) / entry
	DropFromPeak float64 // (price - highest) / highest, <= 0
	StopPrice    float64 // 0 when no ATR stop is armed
	DaysHeld     int
	EMA20        float64 // NaN when the indicator has not warmed up
}

// ExitRule is one (predicate, reason) pair. Rules are evaluated in list
// order; the first rule that triggers wins and evaluation stops.
type ExitRule struct {
	Name      string
	Triggered func(ExitContext) (bool, string)
}

// NewExitRules builds the ordered rule list for a strategy variant. The
// precedence is fixed for every variant: hard stop first, then the variant's
// profit-taking rule, then the time stop. Unknown variants fall back to
// "trailing".
func NewExitRules(cfg config.Strategy, variant string) []ExitRule {
	rules := []ExitRule{hardStopRule(cfg)}

	switch variant {
	case VariantClassic:
		rules = append(rules, takeProfitRule(cfg))
	case VariantSuper:
		rules = append(rules, superProfitLockRule(cfg))
	default:
		rules = append(rules, trailingStopRule(cfg))
	}

	return append(rules, timeStopRule(cfg))
}

// EvaluateExit runs the rule list in precedence order and returns the reason
// of the first rule that fires.
func EvaluateExit(rules []ExitRule, ctx ExitContext) (string, bool) {
	for _, r := range rules {
		if ok, reason := r.Triggered(ctx); ok {
			return reason, true
		}
	}
	return "", false
}

// IsStopLossReason reports whether an exit reason puts the symbol on the
// re-entry cooldown list.
func IsStopLossReason(reason string) bool {
	return reason == ReasonStopLoss || reason == ReasonATRStop
}

func hardStopRule(cfg config.Strategy) ExitRule {
	return ExitRule{
		Name: "hard_stop",
		Triggered: func(c ExitContext) (bool, string) {
			if cfg.StopLossPct > 0 && c.PnlPct <= -cfg.StopLossPct {
				return true, ReasonStopLoss
			}
			if c.StopPrice > 0 && c.Price <= c.StopPrice {
				return true, ReasonATRStop
			}
			return false, ""
		},
	}
}

func takeProfitRule(cfg config.Strategy) ExitRule {
	return ExitRule{
		Name: "take_profit",
		Triggered: func(c ExitContext) (bool, string) {
			if cfg.TakeProfitPct > 0 && c.PnlPct >= cfg.TakeProfitPct {
				return true, ReasonTakeProfit
			}
			return false, ""
		},
	}
}

func superProfitLockRule(cfg config.Strategy) ExitRule {
	return ExitRule{
		Name: "super_profit_lock",
		Triggered: func(c ExitContext) (bool, string) {
			if c.MaxPnlPct >= cfg.SuperProfitPct && c.DropFromPeak <= -cfg.SuperDropPct {
				return true, ReasonSuperProfitLock
			}
			return false, ""
		},
	}
}

// trailingStopRule activates once the position has been up by the activation
// threshold, then exits on retracement from the peak. The drop tolerance is
// wider while price holds above EMA20 (strong regime) and tighter below it.
func trailingStopRule(cfg config.Strategy) ExitRule {
	return ExitRule{
		Name: "trailing_stop",
		Triggered: func(c ExitContext) (bool, string) {
			if c.MaxPnlPct < cfg.TrailingActivationPct {
				return false, ""
			}
			strong := !math.IsNaN(c.EMA20) && c.Price > c.EMA20
			if strong {
				if c.DropFromPeak <= -cfg.StrongDropTolerance {
					return true, ReasonTrailingStrong
				}
				return false, ""
			}
			if c.DropFromPeak <= -cfg.WeakDropTolerance {
				return true, ReasonTrailingWeak
			}
			return false, ""
		},
	}
}

func timeStopRule(cfg config.Strategy) ExitRule {
	return ExitRule{
		Name: "time_stop",
		Triggered: func(c ExitContext) (bool, string) {
			if cfg.TimeStopDays <= 0 || c.DaysHeld < cfg.TimeStopDays {
				return false, ""
			}
			if c.PnlPct > 0 {
				return true, ReasonTimeStopProfit
			}
			return true, ReasonTimeStopLoss
		},
	}
}
