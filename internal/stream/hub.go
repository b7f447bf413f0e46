// Package stream fans price ticks out from a single source to many consumers.
package stream

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"fx-trader/internal/models"
)

// HubConfig holds configuration for the Stream Hub.
type HubConfig struct {
	// BufferSize is the size of the internal tick channel buffer.
	BufferSize int
}

// DefaultHubConfig returns the default hub configuration.
func DefaultHubConfig() HubConfig {
	return HubConfig{BufferSize: 1000}
}

// Source produces ticks until ctx ends, handing each one to publish.
type Source interface {
	Run(ctx context.Context, publish func(models.Tick)) error
}

// Consumer processes ticks synchronously on the hub goroutine, in order.
// Implementations must not block.
type Consumer interface {
	OnTick(tick models.Tick)
}

// ConsumerFunc adapts a function to Consumer.
type ConsumerFunc func(models.Tick)

// OnTick implements Consumer.
func (f ConsumerFunc) OnTick(tick models.Tick) { f(tick) }

// Hub distributes ticks from one source to registered consumers. When
// consumers fall behind, ticks are dropped at Publish rather than block
// the source.
type Hub struct {
	config HubConfig

	mu        sync.RWMutex
	consumers []Consumer
	started   bool
	done      chan struct{}

	tickChan chan models.Tick

	ticksReceived  atomic.Uint64
	ticksDelivered atomic.Uint64
	ticksDropped   atomic.Uint64
	lastTick       atomic.Int64
}

// NewHub creates a new stream hub with default configuration.
func NewHub() *Hub {
	return NewHubWithConfig(DefaultHubConfig())
}

// NewHubWithConfig creates a new stream hub with custom configuration.
func NewHubWithConfig(config HubConfig) *Hub {
	return &Hub{
		config:   config,
		tickChan: make(chan models.Tick, config.BufferSize),
		done:     make(chan struct{}),
	}
}

// Start begins the distribution loop. If src is non-nil it is run in the
// background and its ticks are published; its exit error goes to onErr.
func (h *Hub) Start(ctx context.Context, src Source, onErr func(error)) {
	h.mu.Lock()
	if h.started {
		h.mu.Unlock()
		return
	}
	h.started = true
	h.mu.Unlock()

	go h.broadcastLoop(ctx)

	if src != nil {
		go func() {
			if err := src.Run(ctx, h.Publish); err != nil && onErr != nil && ctx.Err() == nil {
				onErr(err)
			}
		}()
	}
}

func (h *Hub) broadcastLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case tick := <-h.tickChan:
			h.ticksReceived.Add(1)
			h.lastTick.Store(time.Now().UnixNano())
			h.broadcast(tick)
		}
	}
}

// Stop stops the distribution loop.
func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.started {
		return
	}
	close(h.done)
	h.started = false
}

// RegisterConsumer adds a consumer that sees every tick.
func (h *Hub) RegisterConsumer(c Consumer) {
	h.mu.Lock()
	h.consumers = append(h.consumers, c)
	h.mu.Unlock()
}

// Publish hands a tick to the hub. It never blocks; if the buffer is full
// the tick is dropped.
func (h *Hub) Publish(tick models.Tick) {
	select {
	case h.tickChan <- tick:
	default:
		h.ticksDropped.Add(1)
	}
}

func (h *Hub) broadcast(tick models.Tick) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, c := range h.consumers {
		c.OnTick(tick)
		h.ticksDelivered.Add(1)
	}
}

// HubMetrics contains hub performance metrics.
type HubMetrics struct {
	TicksReceived  uint64    `json:"ticks_received"`
	TicksDelivered uint64    `json:"ticks_delivered"`
	TicksDropped   uint64    `json:"ticks_dropped"`
	Consumers      int       `json:"consumers"`
	LastTickAt     time.Time `json:"last_tick_at"`
}

// Metrics returns hub metrics.
func (h *Hub) Metrics() HubMetrics {
	h.mu.RLock()
	count := len(h.consumers)
	h.mu.RUnlock()

	m := HubMetrics{
		TicksReceived:  h.ticksReceived.Load(),
		TicksDelivered: h.ticksDelivered.Load(),
		TicksDropped:   h.ticksDropped.Load(),
		Consumers:      count,
	}
	if ns := h.lastTick.Load(); ns > 0 {
		m.LastTickAt = time.Unix(0, ns)
	}
	return m
}
