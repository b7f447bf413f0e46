package marketdata

import (
	"fmt"
	"math"
	"sync"
	"time"

	"fx-trader/internal/errors"
	"fx-trader/internal/models"
)

// CacheConfig configures the cache.
type CacheConfig struct {
	TickTTL    time.Duration
	Capacity   int
	MinBars    int
	MaxGapBars int
}

type symbolData struct {
	tick        models.Tick
	hasTick     bool
	windows     map[models.Timeframe]*Window
	analyzedAt  float64
	analyzed    bool
	barsRefresh time.Time
}

// Cache holds the latest tick and bar windows per instrument. Ticks are
// replaced wholesale. Safe for concurrent use.
type Cache struct {
	mu   sync.RWMutex
	cfg  CacheConfig
	data map[string]*symbolData
	now  func() time.Time
}

// NewCache creates a cache.
func NewCache(cfg CacheConfig) *Cache {
	if cfg.Capacity < cfg.MinBars {
		cfg.Capacity = cfg.MinBars
	}
	return &Cache{
		cfg:  cfg,
		data: make(map[string]*symbolData),
		now:  time.Now,
	}
}

// SetLimits updates TTL and minimum window length on config reload.
func (c *Cache) SetLimits(ttl time.Duration, minBars int) {
	c.mu.Lock()
	c.cfg.TickTTL = ttl
	c.cfg.MinBars = minBars
	c.mu.Unlock()
}

func (c *Cache) entry(symbol string) *symbolData {
	d, ok := c.data[symbol]
	if !ok {
		d = &symbolData{windows: make(map[models.Timeframe]*Window)}
		c.data[symbol] = d
	}
	return d
}

// OnTick stores a tick if it is newer than the held one. It lets the
// cache consume a stream hub directly.
func (c *Cache) OnTick(tick models.Tick) {
	c.UpdateTick(tick)
}

// UpdateTick stores tick unless an equal or newer one is already held.
func (c *Cache) UpdateTick(tick models.Tick) bool {
	if tick.Bid <= 0 || tick.Ask <= 0 || tick.Ask < tick.Bid {
		return false
	}
	if tick.Time.IsZero() {
		tick.Time = c.now()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	d := c.entry(tick.Symbol)
	if d.hasTick && !tick.Time.After(d.tick.Time) {
		return false
	}
	d.tick = tick
	d.hasTick = true
	return true
}

// Tick returns the latest tick regardless of age.
func (c *Cache) Tick(symbol string) (models.Tick, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.data[symbol]
	if !ok || !d.hasTick {
		return models.Tick{}, false
	}
	return d.tick, true
}

// FreshTick returns the latest tick if it is within the TTL.
func (c *Cache) FreshTick(symbol string) (models.Tick, error) {
	tick, ok := c.Tick(symbol)
	if !ok {
		return models.Tick{}, errors.NewDataError("tick", symbol, "no tick", errors.ErrInsufficientData)
	}
	c.mu.RLock()
	ttl := c.cfg.TickTTL
	c.mu.RUnlock()
	if ttl > 0 {
		if age := c.now().Sub(tick.Time); age > ttl {
			return models.Tick{}, errors.NewDataError("tick", symbol, fmt.Sprintf("tick is %s old", age.Round(time.Millisecond)), errors.ErrStaleData)
		}
	}
	return tick, nil
}

// SetBars replaces the window for symbol and tf.
func (c *Cache) SetBars(symbol string, tf models.Timeframe, bars []models.Bar) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	d := c.entry(symbol)
	w, ok := d.windows[tf]
	if !ok {
		w = NewWindow(tf, c.cfg.Capacity, c.cfg.MaxGapBars)
		d.windows[tf] = w
	}
	if err := w.Replace(bars); err != nil {
		return errors.NewDataError("bars", symbol, string(tf), err)
	}
	d.barsRefresh = c.now()
	return nil
}

// Bars returns a copy of the window, or ErrInsufficientData if it holds
// fewer than the minimum bars.
func (c *Cache) Bars(symbol string, tf models.Timeframe) ([]models.Bar, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	d, ok := c.data[symbol]
	if !ok {
		return nil, errors.NewDataError("bars", symbol, string(tf)+": none", errors.ErrInsufficientData)
	}
	w, ok := d.windows[tf]
	if !ok || w.Len() < c.cfg.MinBars {
		n := 0
		if ok {
			n = w.Len()
		}
		return nil, errors.NewDataError("bars", symbol, fmt.Sprintf("%s: %d of %d bars", tf, n, c.cfg.MinBars), errors.ErrInsufficientData)
	}
	return w.Bars(), nil
}

// HasMinimumBars reports whether every listed timeframe is usable.
func (c *Cache) HasMinimumBars(symbol string, tfs ...models.Timeframe) bool {
	for _, tf := range tfs {
		if _, err := c.Bars(symbol, tf); err != nil {
			return false
		}
	}
	return true
}

// MovedSinceAnalysis reports whether price differs from the last analyzed
// price by at least epsilon. The first call for a symbol always reports true.
func (c *Cache) MovedSinceAnalysis(symbol string, price, epsilon float64) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.data[symbol]
	if !ok || !d.analyzed {
		return true
	}
	return math.Abs(price-d.analyzedAt) >= epsilon
}

// MarkAnalyzed records the price at which symbol was last analyzed.
func (c *Cache) MarkAnalyzed(symbol string, price float64) {
	c.mu.Lock()
	d := c.entry(symbol)
	d.analyzedAt = price
	d.analyzed = true
	c.mu.Unlock()
}

// Snapshot is a point-in-time summary for status output.
type Snapshot struct {
	Symbol        string
	Tick          models.Tick
	HasTick       bool
	BarCounts     map[models.Timeframe]int
	BarsRefreshed time.Time
}

// Snapshots returns summaries for all cached symbols.
func (c *Cache) Snapshots() []Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Snapshot, 0, len(c.data))
	for sym, d := range c.data {
		s := Snapshot{Symbol: sym, Tick: d.tick, HasTick: d.hasTick, BarsRefreshed: d.barsRefresh, BarCounts: make(map[models.Timeframe]int)}
		for tf, w := range d.windows {
			s.BarCounts[tf] = w.Len()
		}
		out = append(out, s)
	}
	return out
}
