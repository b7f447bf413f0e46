package gate

import (
	"sync"
	"time"

	"fx-trader/internal/models"
)

// Cooldowns records entry and loss times per instrument and the current
// losing streak. It is shared by the scheduler and the lifecycle close
// callback.
type Cooldowns struct {
	mu                sync.RWMutex
	lastEntry         map[string]time.Time
	lastLoss          map[string]time.Time
	consecutiveLosses int
}

// NewCooldowns creates an empty cooldown book.
func NewCooldowns() *Cooldowns {
	return &Cooldowns{
		lastEntry: make(map[string]time.Time),
		lastLoss:  make(map[string]time.Time),
	}
}

// RecordEntry marks an order placed on symbol at t.
func (c *Cooldowns) RecordEntry(symbol string, t time.Time) {
	c.mu.Lock()
	c.lastEntry[symbol] = t
	c.mu.Unlock()
}

// RecordClose updates the loss book from a closed trade.
func (c *Cooldowns) RecordClose(trade models.ClosedTrade) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if trade.Profit < 0 {
		c.lastLoss[trade.Symbol] = trade.ClosedAt
		c.consecutiveLosses++
		return
	}
	c.consecutiveLosses = 0
}

// Fill copies the cooldown state for in.Symbol into in.
func (c *Cooldowns) Fill(in *Input) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	in.LastEntry = c.lastEntry[in.Symbol]
	in.LastLoss = c.lastLoss[in.Symbol]
	in.ConsecutiveLosses = c.consecutiveLosses
}

// ConsecutiveLosses returns the current losing streak.
func (c *Cooldowns) ConsecutiveLosses() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.consecutiveLosses
}
