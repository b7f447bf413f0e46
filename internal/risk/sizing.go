package risk

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"fx-trader/internal/config"
	"fx-trader/internal/errors"
	"fx-trader/internal/models"
)

// SizingInput is the account and market context for one sizing decision.
type SizingInput struct {
	Equity   float64
	Price    float64
	StopPips float64 // zero uses the configured default
	Leverage float64
	Live     bool
	// Score is the expectancy score driving the regime boost.
	Score float64
}

// Size is the outcome of position sizing.
type Size struct {
	Volume     float64
	StopPips   float64
	RiskAmount float64
	Raw        float64
	Cap        float64
	BoostPct   float64
}

// ComputeSize turns an equity risk budget into a lot size. The result is
// always inside [MinLot, min(MaxLot, margin cap, capital cap)] and on the
// instrument's volume step, or the order is rejected.
func ComputeSize(r config.RiskConfig, inst models.Instrument, in SizingInput) (Size, error) {
	if in.Equity <= 0 {
		return Size{}, errors.NewRiskError(errors.RuleMinBalance, in.Equity, 0, "no equity to risk")
	}
	if in.Price <= 0 {
		return Size{}, errors.NewValidationError("price", in.Price, "must be positive")
	}

	s := Size{StopPips: in.StopPips}
	if s.StopPips <= 0 {
		s.StopPips = r.DefaultStopPips
	}
	s.StopPips = clamp(s.StopPips, r.MinStopPips, r.MaxStopPips)
	s.RiskAmount = in.Equity * r.RiskPerTradePercent / 100

	s.Raw = s.RiskAmount / (s.StopPips * inst.PipValuePerLot)
	if in.Live {
		s.Raw *= r.LiveConservatism
	} else {
		s.Raw *= r.DemoConservatism
	}

	s.BoostPct = BoostPercent(r.RegimeBoost, in.Score)
	s.Raw *= 1 + s.BoostPct/100

	leverage := in.Leverage
	if leverage <= 0 {
		leverage = r.MaxLeverage
	}
	marginMax := math.Inf(1)
	if perLot := inst.Notional(1, in.Price); perLot > 0 {
		marginMax = in.Equity * r.MaxMarginPerTradePercent / 100 * leverage / perLot
	}
	capitalMax := in.Equity / 1000 * r.LotsPerThousandEquity

	s.Cap = min(r.MaxLot, marginMax, capitalMax)
	if inst.MaxVolume > 0 {
		s.Cap = min(s.Cap, inst.MaxVolume)
	}
	floor := max(r.MinLot, inst.MinVolume)
	if s.Cap < floor {
		return s, errors.NewRiskError(errors.RuleVolumeBounds, s.Cap, floor,
			fmt.Sprintf("size cap %.4f is below the minimum lot", s.Cap))
	}

	s.Volume = RoundToStep(clamp(s.Raw, floor, s.Cap), inst.VolumeStep)
	if s.Volume < floor {
		return s, errors.NewRiskError(errors.RuleVolumeBounds, s.Volume, floor,
			"size rounds below the minimum lot")
	}
	return s, nil
}

// BoostPercent returns the regime boost for an expectancy score. It is
// zero at or below the threshold and grows linearly to the maximum at the
// full score.
func BoostPercent(b config.RegimeBoostConfig, score float64) float64 {
	if !b.Enabled || score <= b.Threshold || b.FullScore <= b.Threshold {
		return 0
	}
	frac := math.Min(1, (score-b.Threshold)/(b.FullScore-b.Threshold))
	return b.MinBoostPercent + frac*(b.MaxBoostPercent-b.MinBoostPercent)
}

// RoundToStep rounds volume down to a multiple of step.
func RoundToStep(volume, step float64) float64 {
	if step <= 0 {
		return volume
	}
	v := decimal.NewFromFloat(volume).Round(8)
	st := decimal.NewFromFloat(step)
	out, _ := v.Div(st).Floor().Mul(st).Float64()
	return out
}

// RequiredMargin returns the margin needed to hold volume lots at price.
func RequiredMargin(inst models.Instrument, volume, price, leverage float64) float64 {
	if leverage <= 0 {
		return inst.Notional(volume, price)
	}
	return inst.Notional(volume, price) / leverage
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
