package indicators

import (
	"fx-trader/internal/models"
)

// SMA calculates the simple moving average of values.
func SMA(values []float64, period int) ([]float64, error) {
	if period <= 0 {
		return nil, ErrInvalidPeriod
	}
	if len(values) < period {
		return nil, ErrInsufficientData
	}

	result := make([]float64, len(values))
	for i := period - 1; i < len(values); i++ {
		result[i] = mean(values[i-period+1 : i+1])
	}
	return result, nil
}

// EMA calculates the exponential moving average of values, seeded by an SMA.
func EMA(values []float64, period int) ([]float64, error) {
	if period <= 0 {
		return nil, ErrInvalidPeriod
	}
	if len(values) < period {
		return nil, ErrInsufficientData
	}

	result := make([]float64, len(values))
	multiplier := 2.0 / float64(period+1)
	result[period-1] = mean(values[:period])
	for i := period; i < len(values); i++ {
		result[i] = (values[i]-result[i-1])*multiplier + result[i-1]
	}
	return result, nil
}

// MACDResult holds the MACD line, signal and histogram.
type MACDResult struct {
	MACD      []float64
	Signal    []float64
	Histogram []float64
}

// MACD calculates Moving Average Convergence Divergence on closes.
func MACD(bars []models.Bar, fast, slow, signal int) (*MACDResult, error) {
	if fast <= 0 || slow <= fast || signal <= 0 {
		return nil, ErrInvalidPeriod
	}
	warmup := slow + signal - 1
	if len(bars) < warmup {
		return nil, ErrInsufficientData
	}

	closes := Closes(bars)
	fastEMA, _ := EMA(closes, fast)
	slowEMA, _ := EMA(closes, slow)

	n := len(bars)
	res := &MACDResult{
		MACD:      make([]float64, n),
		Signal:    make([]float64, n),
		Histogram: make([]float64, n),
	}
	for i := slow - 1; i < n; i++ {
		res.MACD[i] = fastEMA[i] - slowEMA[i]
	}

	sig, err := EMA(res.MACD[slow-1:], signal)
	if err != nil {
		return nil, err
	}
	for i, v := range sig {
		res.Signal[slow-1+i] = v
	}
	for i := warmup - 1; i < n; i++ {
		res.Histogram[i] = res.MACD[i] - res.Signal[i]
	}
	return res, nil
}

// ADXResult holds the Average Directional Index and the directional indicators.
type ADXResult struct {
	ADX     []float64
	PlusDI  []float64
	MinusDI []float64
}

// ADX calculates the Average Directional Index with +DI and -DI.
func ADX(bars []models.Bar, period int) (*ADXResult, error) {
	if period <= 0 {
		return nil, ErrInvalidPeriod
	}
	if len(bars) < period*2 {
		return nil, ErrInsufficientData
	}

	n := len(bars)
	plusDM := make([]float64, n)
	minusDM := make([]float64, n)
	tr := make([]float64, n)

	for i := 1; i < n; i++ {
		up := bars[i].High - bars[i-1].High
		down := bars[i-1].Low - bars[i].Low
		if up > down && up > 0 {
			plusDM[i] = up
		}
		if down > up && down > 0 {
			minusDM[i] = down
		}
		tr[i] = trueRange(bars[i], bars[i-1])
	}

	smoothPlus := wilderSmooth(plusDM, period)
	smoothMinus := wilderSmooth(minusDM, period)
	smoothTR := wilderSmooth(tr, period)

	res := &ADXResult{
		ADX:     make([]float64, n),
		PlusDI:  make([]float64, n),
		MinusDI: make([]float64, n),
	}
	dx := make([]float64, n)
	for i := period; i < n; i++ {
		if smoothTR[i] != 0 {
			res.PlusDI[i] = 100 * smoothPlus[i] / smoothTR[i]
			res.MinusDI[i] = 100 * smoothMinus[i] / smoothTR[i]
		}
		if s := res.PlusDI[i] + res.MinusDI[i]; s != 0 {
			dx[i] = 100 * abs(res.PlusDI[i]-res.MinusDI[i]) / s
		}
	}

	adx := wilderSmooth(dx[period:], period)
	for i, v := range adx {
		res.ADX[period+i] = v
	}
	return res, nil
}
