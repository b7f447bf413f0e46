package indicators

import (
	"fx-trader/internal/models"
)

// ATR calculates the Average True Range.
func ATR(bars []models.Bar, period int) ([]float64, error) {
	if period <= 0 {
		return nil, ErrInvalidPeriod
	}
	if len(bars) < period+1 {
		return nil, ErrInsufficientData
	}

	n := len(bars)
	tr := make([]float64, n)
	tr[0] = bars[0].High - bars[0].Low
	for i := 1; i < n; i++ {
		tr[i] = trueRange(bars[i], bars[i-1])
	}

	result := make([]float64, n)
	result[period-1] = mean(tr[:period])
	for i := period; i < n; i++ {
		result[i] = (result[i-1]*float64(period-1) + tr[i]) / float64(period)
	}
	return result, nil
}

// SwingPoints returns the indices of local highs and lows: bars whose high
// (low) is strictly above (below) the strength bars on either side.
func SwingPoints(bars []models.Bar, strength int) (highs, lows []int) {
	if strength < 1 {
		strength = 1
	}
	for i := strength; i < len(bars)-strength; i++ {
		isHigh, isLow := true, true
		for j := i - strength; j <= i+strength; j++ {
			if j == i {
				continue
			}
			if bars[j].High >= bars[i].High {
				isHigh = false
			}
			if bars[j].Low <= bars[i].Low {
				isLow = false
			}
		}
		if isHigh {
			highs = append(highs, i)
		}
		if isLow {
			lows = append(lows, i)
		}
	}
	return highs, lows
}
