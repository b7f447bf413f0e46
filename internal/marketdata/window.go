// Package marketdata caches the latest tick and rolling bar windows per
// instrument and timeframe.
package marketdata

import (
	"fmt"
	"time"

	"fx-trader/internal/models"
)

// Window is a fixed-capacity ring buffer of bars ordered oldest first.
// Timestamps strictly increase; a gap larger than the tolerance restarts
// the window so indicators never straddle missing data.
type Window struct {
	tf        models.Timeframe
	bars      []models.Bar
	start     int
	size      int
	tolerance time.Duration
}

// NewWindow creates a window for tf holding up to capacity bars. Gaps of
// up to maxGapBars missing bars are tolerated; weekend closures always are.
func NewWindow(tf models.Timeframe, capacity, maxGapBars int) *Window {
	if capacity < 1 {
		capacity = 1
	}
	if maxGapBars < 0 {
		maxGapBars = 0
	}
	return &Window{
		tf:        tf,
		bars:      make([]models.Bar, capacity),
		tolerance: time.Duration(maxGapBars+1) * tf.Duration(),
	}
}

// Timeframe returns the window's timeframe.
func (w *Window) Timeframe() models.Timeframe { return w.tf }

// Len returns the number of bars held.
func (w *Window) Len() int { return w.size }

// Cap returns the capacity.
func (w *Window) Cap() int { return len(w.bars) }

// Last returns the newest bar.
func (w *Window) Last() (models.Bar, bool) {
	if w.size == 0 {
		return models.Bar{}, false
	}
	return w.at(w.size - 1), true
}

func (w *Window) at(i int) models.Bar {
	return w.bars[(w.start+i)%len(w.bars)]
}

// Append adds a bar. A bar with the newest bar's timestamp replaces it
// (the forming candle); an older timestamp is rejected.
func (w *Window) Append(bar models.Bar) error {
	if bar.High < bar.Low {
		return fmt.Errorf("bar %s: high %.5f below low %.5f", bar.Time.Format(time.RFC3339), bar.High, bar.Low)
	}

	if last, ok := w.Last(); ok {
		switch {
		case bar.Time.Equal(last.Time):
			w.bars[(w.start+w.size-1)%len(w.bars)] = bar
			return nil
		case bar.Time.Before(last.Time):
			return fmt.Errorf("bar %s precedes newest %s", bar.Time.Format(time.RFC3339), last.Time.Format(time.RFC3339))
		case w.tolerance > 0 && bar.Time.Sub(last.Time) > w.tolerance && !spansWeekend(last.Time, bar.Time):
			w.Reset()
		}
	}

	if w.size < len(w.bars) {
		w.bars[(w.start+w.size)%len(w.bars)] = bar
		w.size++
		return nil
	}
	w.bars[w.start] = bar
	w.start = (w.start + 1) % len(w.bars)
	return nil
}

// Replace rebuilds the window from bars, which must be sorted ascending.
// Only the newest Cap() bars are kept.
func (w *Window) Replace(bars []models.Bar) error {
	w.Reset()
	if len(bars) > len(w.bars) {
		bars = bars[len(bars)-len(w.bars):]
	}
	for _, b := range bars {
		if err := w.Append(b); err != nil {
			w.Reset()
			return err
		}
	}
	return nil
}

// Reset empties the window.
func (w *Window) Reset() {
	w.start = 0
	w.size = 0
}

// Bars returns a copy of the bars, oldest first.
func (w *Window) Bars() []models.Bar {
	out := make([]models.Bar, w.size)
	for i := 0; i < w.size; i++ {
		out[i] = w.at(i)
	}
	return out
}

// spansWeekend reports whether the interval covers a Saturday, when the
// FX market is shut.
func spansWeekend(from, to time.Time) bool {
	from, to = from.UTC(), to.UTC()
	if to.Sub(from) >= 7*24*time.Hour {
		return false
	}
	for d := from; !d.After(to); d = d.Add(24 * time.Hour) {
		if d.Weekday() == time.Saturday {
			return true
		}
	}
	return to.Weekday() == time.Saturday
}
