package performance

import (
	"sync"
)

// Expectancy tracks the R-multiples of recently closed trades. Its score
// feeds the regime boost in position sizing.
type Expectancy struct {
	mu         sync.RWMutex
	window     []float64
	next       int
	filled     bool
	minSamples int
}

// NewExpectancy keeps the last size results and reports a zero score until
// at least minSamples trades have closed.
func NewExpectancy(size, minSamples int) *Expectancy {
	if size < 1 {
		size = 1
	}
	if minSamples < 1 {
		minSamples = 1
	}
	if minSamples > size {
		minSamples = size
	}
	return &Expectancy{window: make([]float64, size), minSamples: minSamples}
}

// Record adds a closed trade's R-multiple.
func (e *Expectancy) Record(r float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.window[e.next] = r
	e.next = (e.next + 1) % len(e.window)
	if e.next == 0 {
		e.filled = true
	}
}

func (e *Expectancy) samples() []float64 {
	if e.filled {
		return e.window
	}
	return e.window[:e.next]
}

// Count returns the number of trades in the window.
func (e *Expectancy) Count() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.samples())
}

// Score returns the mean R-multiple per trade, or zero with too few samples.
func (e *Expectancy) Score() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()

	s := e.samples()
	if len(s) < e.minSamples {
		return 0
	}
	var sum float64
	for _, r := range s {
		sum += r
	}
	return sum / float64(len(s))
}

// WinRate returns the fraction of trades with a positive R-multiple.
func (e *Expectancy) WinRate() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()

	s := e.samples()
	if len(s) == 0 {
		return 0
	}
	wins := 0
	for _, r := range s {
		if r > 0 {
			wins++
		}
	}
	return float64(wins) / float64(len(s))
}
