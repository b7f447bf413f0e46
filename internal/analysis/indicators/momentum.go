package indicators

import (
	"fx-trader/internal/models"
)

// RSI calculates the Relative Strength Index with Wilder smoothing.
func RSI(bars []models.Bar, period int) ([]float64, error) {
	if period <= 0 {
		return nil, ErrInvalidPeriod
	}
	if len(bars) < period+1 {
		return nil, ErrInsufficientData
	}

	n := len(bars)
	result := make([]float64, n)
	gains := make([]float64, n)
	losses := make([]float64, n)

	for i := 1; i < n; i++ {
		change := bars[i].Close - bars[i-1].Close
		if change > 0 {
			gains[i] = change
		} else {
			losses[i] = -change
		}
	}

	avgGain := mean(gains[1 : period+1])
	avgLoss := mean(losses[1 : period+1])
	result[period] = rsiValue(avgGain, avgLoss)

	for i := period + 1; i < n; i++ {
		avgGain = (avgGain*float64(period-1) + gains[i]) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + losses[i]) / float64(period)
		result[i] = rsiValue(avgGain, avgLoss)
	}

	return result, nil
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		if avgGain == 0 {
			return 50
		}
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// CandleDirections returns +1, -1 or 0 for each of the last n bars, oldest first.
func CandleDirections(bars []models.Bar, n int) []int {
	if n > len(bars) {
		n = len(bars)
	}
	out := make([]int, n)
	for i, b := range bars[len(bars)-n:] {
		switch {
		case b.Bullish():
			out[i] = 1
		case b.Bearish():
			out[i] = -1
		}
	}
	return out
}
