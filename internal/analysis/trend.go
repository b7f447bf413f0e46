package analysis

import (
	"fx-trader/internal/analysis/indicators"
	"fx-trader/internal/models"
)

// Trend is a directional read of one bar window.
type Trend struct {
	Direction models.Direction
	ADX       float64
	PlusDI    float64
	MinusDI   float64
}

// Strong reports whether ADX is at or above threshold.
func (t Trend) Strong(threshold float64) bool {
	return t.Direction != models.DirectionNeutral && t.ADX >= threshold
}

// TrendOf reads direction from the directional indicators and strength from ADX.
func TrendOf(bars []models.Bar, period int) (Trend, error) {
	res, err := indicators.ADX(bars, period)
	if err != nil {
		return Trend{Direction: models.DirectionNeutral}, err
	}
	t := Trend{
		ADX:     indicators.Last(res.ADX),
		PlusDI:  indicators.Last(res.PlusDI),
		MinusDI: indicators.Last(res.MinusDI),
	}
	switch {
	case t.PlusDI > t.MinusDI:
		t.Direction = models.DirectionBuy
	case t.MinusDI > t.PlusDI:
		t.Direction = models.DirectionSell
	default:
		t.Direction = models.DirectionNeutral
	}
	return t, nil
}

// emaBias returns +1 when fast EMA is above slow EMA and price above fast,
// -1 for the mirror case, 0 otherwise.
func emaBias(bars []models.Bar, fast, slow int) int {
	closes := indicators.Closes(bars)
	f, err := indicators.EMA(closes, fast)
	if err != nil {
		return 0
	}
	s, err := indicators.EMA(closes, slow)
	if err != nil {
		return 0
	}
	price := indicators.Last(closes)
	fv, sv := indicators.Last(f), indicators.Last(s)
	switch {
	case fv > sv && price > fv:
		return 1
	case fv < sv && price < fv:
		return -1
	}
	return 0
}
