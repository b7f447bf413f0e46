// Package indicators computes technical indicators over bar windows.
// Every series is aligned with its input: index i belongs to bar i, and
// warm-up positions hold zero.
package indicators

import (
	"errors"

	"fx-trader/internal/models"
)

var (
	// ErrInsufficientData is returned when there's not enough data for calculation.
	ErrInsufficientData = errors.New("insufficient data for calculation")
	// ErrInvalidPeriod is returned when the period is invalid.
	ErrInvalidPeriod = errors.New("invalid period")
)

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var total float64
	for _, v := range values {
		total += v
	}
	return total / float64(len(values))
}

func trueRange(current, previous models.Bar) float64 {
	highLow := current.High - current.Low
	highClose := abs(current.High - previous.Close)
	lowClose := abs(current.Low - previous.Close)
	return max(highLow, max(highClose, lowClose))
}

// Closes extracts close prices.
func Closes(bars []models.Bar) []float64 {
	prices := make([]float64, len(bars))
	for i, b := range bars {
		prices[i] = b.Close
	}
	return prices
}

// Last returns the final element of a series, or zero when empty.
func Last(series []float64) float64 {
	if len(series) == 0 {
		return 0
	}
	return series[len(series)-1]
}

// wilderSmooth applies Wilder's smoothing, seeded by an SMA of the first period values.
func wilderSmooth(values []float64, period int) []float64 {
	if len(values) < period {
		return nil
	}
	result := make([]float64, len(values))
	result[period-1] = mean(values[:period])

	k := 1.0 / float64(period)
	for i := period; i < len(values); i++ {
		result[i] = result[i-1] + k*(values[i]-result[i-1])
	}
	return result
}
