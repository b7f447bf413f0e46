package resilience

import (
	"fmt"
	"sync"
	"time"
)

// Execution is one order placement as seen by the venue.
type Execution struct {
	Ticket string  `json:"ticket,omitempty"`
	Symbol string  `json:"symbol"`
	Side   string  `json:"side"`
	Quoted float64 `json:"quoted,omitempty"`
	Filled float64 `json:"filled,omitempty"`
	// SlippagePips is positive when the fill was worse than the quote.
	SlippagePips float64       `json:"slippage_pips"`
	Latency      time.Duration `json:"latency"`
	Timestamp    time.Time     `json:"timestamp"`
	Rejected     bool          `json:"rejected,omitempty"`
	RejectReason string        `json:"reject_reason,omitempty"`
}

// ExecutionTrackerConfig holds configuration for execution tracking.
type ExecutionTrackerConfig struct {
	SlippageAlertPips float64
	LatencyAlert      time.Duration
	WindowSize        int
}

// DefaultExecutionTrackerConfig returns default configuration.
func DefaultExecutionTrackerConfig() ExecutionTrackerConfig {
	return ExecutionTrackerConfig{
		SlippageAlertPips: 2,
		LatencyAlert:      time.Second,
		WindowSize:        100,
	}
}

// ExecutionAlertType represents the type of execution alert.
type ExecutionAlertType string

const (
	AlertHighSlippage  ExecutionAlertType = "HIGH_SLIPPAGE"
	AlertHighLatency   ExecutionAlertType = "HIGH_LATENCY"
	AlertOrderRejected ExecutionAlertType = "ORDER_REJECTED"
)

// ExecutionAlert is raised when a placement breaches a threshold.
type ExecutionAlert struct {
	Type      ExecutionAlertType
	Ticket    string
	Symbol    string
	Value     float64
	Threshold float64
	Message   string
}

// ExecutionStats summarises the recent window.
type ExecutionStats struct {
	Fills             int           `json:"fills"`
	Rejections        int           `json:"rejections"`
	AvgSlippagePips   float64       `json:"avg_slippage_pips"`
	WorstSlippagePips float64       `json:"worst_slippage_pips"`
	AvgLatency        time.Duration `json:"avg_latency"`
	MaxLatency        time.Duration `json:"max_latency"`
}

// ExecutionQualityTracker keeps a rolling window of placements and raises
// alerts on slow or badly slipped fills.
type ExecutionQualityTracker struct {
	mu      sync.RWMutex
	cfg     ExecutionTrackerConfig
	window  []Execution
	onAlert func(ExecutionAlert)
	now     func() time.Time
}

// NewExecutionQualityTracker creates a tracker.
func NewExecutionQualityTracker(cfg ExecutionTrackerConfig) *ExecutionQualityTracker {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = DefaultExecutionTrackerConfig().WindowSize
	}
	return &ExecutionQualityTracker{
		cfg:    cfg,
		window: make([]Execution, 0, cfg.WindowSize),
		now:    time.Now,
	}
}

// SetAlertCallback sets the callback for execution alerts.
func (t *ExecutionQualityTracker) SetAlertCallback(callback func(ExecutionAlert)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onAlert = callback
}

// RecordFill records a filled order. pipSize converts the price
// difference to pips.
func (t *ExecutionQualityTracker) RecordFill(ticket, symbol, side string, quoted, filled, pipSize float64, latency time.Duration) Execution {
	exec := Execution{
		Ticket:    ticket,
		Symbol:    symbol,
		Side:      side,
		Quoted:    quoted,
		Filled:    filled,
		Latency:   latency,
		Timestamp: t.now(),
	}
	if quoted > 0 && pipSize > 0 {
		diff := filled - quoted
		if side == "SELL" {
			diff = -diff
		}
		exec.SlippagePips = diff / pipSize
	}

	var alerts []ExecutionAlert
	if t.cfg.SlippageAlertPips > 0 && exec.SlippagePips > t.cfg.SlippageAlertPips {
		alerts = append(alerts, ExecutionAlert{
			Type:      AlertHighSlippage,
			Ticket:    ticket,
			Symbol:    symbol,
			Value:     exec.SlippagePips,
			Threshold: t.cfg.SlippageAlertPips,
			Message:   fmt.Sprintf("slippage %.1f pips (threshold %.1f)", exec.SlippagePips, t.cfg.SlippageAlertPips),
		})
	}
	if t.cfg.LatencyAlert > 0 && latency > t.cfg.LatencyAlert {
		alerts = append(alerts, ExecutionAlert{
			Type:      AlertHighLatency,
			Ticket:    ticket,
			Symbol:    symbol,
			Value:     float64(latency.Milliseconds()),
			Threshold: float64(t.cfg.LatencyAlert.Milliseconds()),
			Message:   fmt.Sprintf("placement took %v (threshold %v)", latency.Round(time.Millisecond), t.cfg.LatencyAlert),
		})
	}
	t.push(exec, alerts)
	return exec
}

// RecordRejection records an order the venue refused.
func (t *ExecutionQualityTracker) RecordRejection(symbol, side, reason string) {
	t.push(Execution{
		Symbol:       symbol,
		Side:         side,
		Rejected:     true,
		RejectReason: reason,
		Timestamp:    t.now(),
	}, []ExecutionAlert{{
		Type:    AlertOrderRejected,
		Symbol:  symbol,
		Message: "order rejected: " + reason,
	}})
}

func (t *ExecutionQualityTracker) push(exec Execution, alerts []ExecutionAlert) {
	t.mu.Lock()
	t.window = append(t.window, exec)
	if len(t.window) > t.cfg.WindowSize {
		t.window = t.window[len(t.window)-t.cfg.WindowSize:]
	}
	onAlert := t.onAlert
	t.mu.Unlock()

	if onAlert != nil {
		for _, a := range alerts {
			onAlert(a)
		}
	}
}

// Stats summarises the window.
func (t *ExecutionQualityTracker) Stats() ExecutionStats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var s ExecutionStats
	var slip float64
	var latency time.Duration
	for _, e := range t.window {
		if e.Rejected {
			s.Rejections++
			continue
		}
		s.Fills++
		slip += e.SlippagePips
		latency += e.Latency
		if s.Fills == 1 || e.SlippagePips > s.WorstSlippagePips {
			s.WorstSlippagePips = e.SlippagePips
		}
		if e.Latency > s.MaxLatency {
			s.MaxLatency = e.Latency
		}
	}
	if s.Fills > 0 {
		s.AvgSlippagePips = slip / float64(s.Fills)
		s.AvgLatency = latency / time.Duration(s.Fills)
	}
	return s
}

// Recent returns up to limit placements, newest first.
func (t *ExecutionQualityTracker) Recent(limit int) []Execution {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if limit <= 0 || limit > len(t.window) {
		limit = len(t.window)
	}
	out := make([]Execution, 0, limit)
	for i := len(t.window) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, t.window[i])
	}
	return out
}
