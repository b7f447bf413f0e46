package analysis

import (
	"fmt"
	"strings"

	"fx-trader/internal/analysis/indicators"
	"fx-trader/internal/models"
)

// ReversalDetector looks for a turn against the prevailing move by
// combining a structure break, a MACD histogram flip and an RSI exit
// from an extreme. It backs the gate override, the lifecycle profit
// exit and the hedge monitor.
type ReversalDetector struct {
	StructureWeight  float64
	MomentumWeight   float64
	OscillatorWeight float64
	Lookback         int
}

// NewReversalDetector creates a detector with 40/30/30 weights.
func NewReversalDetector() *ReversalDetector {
	return &ReversalDetector{StructureWeight: 40, MomentumWeight: 30, OscillatorWeight: 30, Lookback: 5}
}

// Detect returns a reversal verdict. Confidence is the net weight of the
// agreeing components.
func (r *ReversalDetector) Detect(in Input) models.Verdict {
	bars := in.EntryBars()
	if len(bars) < 35 {
		return models.Neutral("reversal", "insufficient bars")
	}

	var bull, bear float64
	var why []string

	highs, lows := indicators.SwingPoints(bars[:len(bars)-1], 2)
	last := bars[len(bars)-1].Close
	if len(highs) > 0 && last > bars[highs[len(highs)-1]].High {
		bull += r.StructureWeight
		why = append(why, "broke swing high")
	}
	if len(lows) > 0 && last < bars[lows[len(lows)-1]].Low {
		bear += r.StructureWeight
		why = append(why, "broke swing low")
	}

	if macd, err := indicators.MACD(bars, 12, 26, 9); err == nil {
		h := macd.Histogram
		n := len(h)
		recentMin, recentMax := h[n-1], h[n-1]
		for _, v := range h[n-r.Lookback : n-1] {
			recentMin = min(recentMin, v)
			recentMax = max(recentMax, v)
		}
		if h[n-1] > 0 && recentMin < 0 {
			bull += r.MomentumWeight
			why = append(why, "macd turned up")
		}
		if h[n-1] < 0 && recentMax > 0 {
			bear += r.MomentumWeight
			why = append(why, "macd turned down")
		}
	}

	if rsi, err := indicators.RSI(bars, 14); err == nil {
		n := len(rsi)
		recentMin, recentMax := rsi[n-1], rsi[n-1]
		for _, v := range rsi[n-r.Lookback : n-1] {
			recentMin = min(recentMin, v)
			recentMax = max(recentMax, v)
		}
		if recentMin < 30 && rsi[n-1] > 35 {
			bull += r.OscillatorWeight
			why = append(why, fmt.Sprintf("rsi left oversold (%.1f)", rsi[n-1]))
		}
		if recentMax > 70 && rsi[n-1] < 65 {
			bear += r.OscillatorWeight
			why = append(why, fmt.Sprintf("rsi left overbought (%.1f)", rsi[n-1]))
		}
	}

	reason := strings.Join(why, ", ")
	switch {
	case bull > bear:
		return models.Verdict{Analyzer: "reversal", Direction: models.DirectionBuy, Confidence: bull - bear, Reason: reason}
	case bear > bull:
		return models.Verdict{Analyzer: "reversal", Direction: models.DirectionSell, Confidence: bear - bull, Reason: reason}
	}
	return models.Neutral("reversal", "no reversal")
}
