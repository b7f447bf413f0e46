package analysis

import (
	"context"
	"fmt"
	"math"

	"fx-trader/internal/analysis/indicators"
	"fx-trader/internal/models"
)

// MomentumAnalyzer combines RSI, MACD histogram and recent candle
// direction. Outside a trading session it stays neutral.
type MomentumAnalyzer struct {
	sessions SessionChecker
	lookback int
}

// NewMomentumAnalyzer creates a momentum analyzer. sessions may be nil.
func NewMomentumAnalyzer(sessions SessionChecker) *MomentumAnalyzer {
	return &MomentumAnalyzer{sessions: sessions, lookback: 5}
}

func (m *MomentumAnalyzer) Name() string { return "momentum" }

func (m *MomentumAnalyzer) Analyze(_ context.Context, in Input) (models.Verdict, error) {
	if m.sessions != nil {
		if _, ok := m.sessions.ActiveSession(in.Now); !ok {
			return models.Neutral(m.Name(), "outside trading session"), nil
		}
	}

	bars := in.EntryBars()
	rsiSeries, err := indicators.RSI(bars, 14)
	if err != nil {
		return models.Verdict{}, fmt.Errorf("momentum rsi: %w", err)
	}
	macd, err := indicators.MACD(bars, 12, 26, 9)
	if err != nil {
		return models.Verdict{}, fmt.Errorf("momentum macd: %w", err)
	}

	rsi := indicators.Last(rsiSeries)
	hist := macd.Histogram
	h1, h0 := hist[len(hist)-1], hist[len(hist)-2]

	score := 0
	switch {
	case rsi > 50:
		score++
	case rsi < 50:
		score--
	}
	switch {
	case h1 > 0 && h1 >= h0:
		score++
	case h1 < 0 && h1 <= h0:
		score--
	}
	candles := 0
	for _, d := range indicators.CandleDirections(bars, m.lookback) {
		candles += d
	}
	switch {
	case candles > 0:
		score++
	case candles < 0:
		score--
	}

	reason := fmt.Sprintf("rsi %.1f macd hist %.6f candles %+d", rsi, h1, candles)
	if abs(score) < 2 {
		return models.Neutral(m.Name(), "mixed momentum: "+reason), nil
	}

	dir := models.DirectionBuy
	if score < 0 {
		dir = models.DirectionSell
	}
	confidence := 50 + 15*float64(abs(score)) + math.Abs(rsi-50)/2
	return models.Verdict{Direction: dir, Confidence: confidence, Reason: reason}, nil
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
