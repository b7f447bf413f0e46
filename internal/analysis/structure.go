package analysis

import (
	"context"
	"fmt"

	"fx-trader/internal/analysis/indicators"
	"fx-trader/internal/models"
)

// StructureAnalyzer reads market structure from swing points: higher
// highs and higher lows are bullish, lower highs and lower lows bearish.
type StructureAnalyzer struct {
	strength int
}

// NewStructureAnalyzer creates a structure analyzer using 2-bar swings.
func NewStructureAnalyzer() *StructureAnalyzer {
	return &StructureAnalyzer{strength: 2}
}

func (s *StructureAnalyzer) Name() string { return "structure" }

func (s *StructureAnalyzer) Analyze(_ context.Context, in Input) (models.Verdict, error) {
	bars := in.EntryBars()
	if len(bars) < 4*s.strength+2 {
		return models.Verdict{}, fmt.Errorf("structure: %w", indicators.ErrInsufficientData)
	}

	highs, lows := indicators.SwingPoints(bars, s.strength)
	if len(highs) < 2 || len(lows) < 2 {
		return models.Neutral(s.Name(), "no swing structure"), nil
	}

	lastHigh, prevHigh := bars[highs[len(highs)-1]].High, bars[highs[len(highs)-2]].High
	lastLow, prevLow := bars[lows[len(lows)-1]].Low, bars[lows[len(lows)-2]].Low
	price := in.Tick.Mid()
	if price == 0 {
		price = bars[len(bars)-1].Close
	}

	var dir models.Direction
	switch {
	case lastHigh > prevHigh && lastLow > prevLow:
		dir = models.DirectionBuy
		if price < lastLow {
			return models.Neutral(s.Name(), "bullish structure broken"), nil
		}
	case lastHigh < prevHigh && lastLow < prevLow:
		dir = models.DirectionSell
		if price > lastHigh {
			return models.Neutral(s.Name(), "bearish structure broken"), nil
		}
	default:
		return models.Neutral(s.Name(), "ranging structure"), nil
	}

	confidence := 55.0
	bias := emaBias(bars, 20, 50)
	if (dir == models.DirectionBuy && bias > 0) || (dir == models.DirectionSell && bias < 0) {
		confidence += 15
	} else if bias != 0 {
		confidence -= 15
	}
	confidence += 10 * float64(s.legs(bars, highs, lows, dir))

	mid := lastLow + (lastHigh-lastLow)/2
	v := models.Verdict{
		Direction:  dir,
		Confidence: confidence,
	}
	if dir == models.DirectionBuy {
		inv := lastLow
		v.EntryZone = &models.PriceZone{Lower: lastLow, Upper: mid}
		v.Invalidation = &inv
		v.Reason = fmt.Sprintf("higher high %.5f and higher low %.5f", lastHigh, lastLow)
	} else {
		inv := lastHigh
		v.EntryZone = &models.PriceZone{Lower: mid, Upper: lastHigh}
		v.Invalidation = &inv
		v.Reason = fmt.Sprintf("lower high %.5f and lower low %.5f", lastHigh, lastLow)
	}
	return v, nil
}

// legs counts additional consecutive swing pairs confirming dir, up to 2.
func (s *StructureAnalyzer) legs(bars []models.Bar, highs, lows []int, dir models.Direction) int {
	n := 0
	for k := 2; k < len(highs) && k < len(lows) && n < 2; k++ {
		h1, h0 := bars[highs[len(highs)-k]].High, bars[highs[len(highs)-k-1]].High
		l1, l0 := bars[lows[len(lows)-k]].Low, bars[lows[len(lows)-k-1]].Low
		if dir == models.DirectionBuy && h1 > h0 && l1 > l0 {
			n++
		} else if dir == models.DirectionSell && h1 < h0 && l1 < l0 {
			n++
		} else {
			break
		}
	}
	return n
}
