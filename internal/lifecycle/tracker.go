// Package lifecycle manages open positions from entry to exit: break-even,
// trailing stop, partial profit and the protective, time and reversal
// exits.
package lifecycle

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"fx-trader/internal/audit"
	"fx-trader/internal/broker"
	"fx-trader/internal/config"
	"fx-trader/internal/errors"
	"fx-trader/internal/logging"
	"fx-trader/internal/models"
)

// Close reasons.
const (
	ReasonStopLoss   = "stop_loss"
	ReasonTakeProfit = "take_profit"
	ReasonMaxHold    = "max_hold"
	ReasonReversal   = "reversal"
	ReasonVenue      = "closed_at_venue"
	ReasonForcedExit = "forced_exit"
)

// eps absorbs float noise in price comparisons.
const eps = 1e-9

// CloseFunc is called once for every position that leaves the book.
type CloseFunc func(trade models.ClosedTrade)

// Tracker owns the managed positions. All mutation goes through it.
type Tracker struct {
	cfg         config.Provider
	gateway     broker.Gateway
	instruments map[string]models.Instrument
	sink        audit.Sink
	logger      zerolog.Logger
	now         func() time.Time

	mu        sync.RWMutex
	positions map[string]*models.ActivePosition
	// stops the venue has not acknowledged yet, by ticket
	unsynced map[string]float64
	onClose  []CloseFunc
}

// NewTracker creates an empty tracker.
func NewTracker(cfg config.Provider, gateway broker.Gateway, instruments map[string]models.Instrument, sink audit.Sink, logger zerolog.Logger) *Tracker {
	if sink == nil {
		sink = audit.Discard{}
	}
	return &Tracker{
		cfg:         cfg,
		gateway:     gateway,
		instruments: instruments,
		sink:        sink,
		logger:      logging.WithComponent(logger, "lifecycle"),
		now:         func() time.Time { return time.Now().UTC() },
		positions:   make(map[string]*models.ActivePosition),
		unsynced:    make(map[string]float64),
	}
}

// SetClock overrides the clock.
func (t *Tracker) SetClock(now func() time.Time) {
	t.now = now
}

// OnClose registers a close callback.
func (t *Tracker) OnClose(fn CloseFunc) {
	t.mu.Lock()
	t.onClose = append(t.onClose, fn)
	t.mu.Unlock()
}

// Register starts managing a position.
func (t *Tracker) Register(pos models.ActivePosition) {
	p := pos.Clone()
	if p.StopLoss == 0 {
		p.StopLoss = p.InitialStopLoss
	}
	if p.TakeProfit == 0 {
		p.TakeProfit = p.InitialTakeProfit
	}
	t.mu.Lock()
	t.positions[p.Ticket] = &p
	t.mu.Unlock()
	t.logger.Info().Str("ticket", p.Ticket).Str("symbol", p.Symbol).Msg("Tracking position")
}

// Count returns the number of managed positions.
func (t *Tracker) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.positions)
}

// CountSymbol returns the number of managed positions on symbol.
func (t *Tracker) CountSymbol(symbol string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for _, p := range t.positions {
		if p.Symbol == symbol {
			n++
		}
	}
	return n
}

// Get returns a copy of one position.
func (t *Tracker) Get(ticket string) (models.ActivePosition, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.positions[ticket]
	if !ok {
		return models.ActivePosition{}, false
	}
	return p.Clone(), true
}

// Snapshot returns copies of all positions, oldest first.
func (t *Tracker) Snapshot() []models.ActivePosition {
	t.mu.RLock()
	out := make([]models.ActivePosition, 0, len(t.positions))
	for _, p := range t.positions {
		out = append(out, p.Clone())
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].OpenedAt.Equal(out[j].OpenedAt) {
			return out[i].Ticket < out[j].Ticket
		}
		return out[i].OpenedAt.Before(out[j].OpenedAt)
	})
	return out
}

// MarkHedged sets or clears the hedge flag.
func (t *Tracker) MarkHedged(ticket string, hedged bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.positions[ticket]
	if !ok {
		return errors.ErrPositionNotFound
	}
	p.HedgeOpened = hedged
	return nil
}

// stopMove is a managed stop change waiting to be pushed to the venue.
// A retry re-sends a stop the venue has not acknowledged.
type stopMove struct {
	ticket   string
	from, to models.PositionState
	sl, tp   float64
	retry    bool
}

// OnTick re-derives profit for every position on tick.Symbol and applies
// the state machine. reversal is the latest reversal verdict for the
// symbol, or nil.
func (t *Tracker) OnTick(ctx context.Context, tick models.Tick, reversal *models.Verdict) []models.ClosedTrade {
	cfg := t.cfg.Current().Lifecycle
	now := t.now()

	var moves []stopMove
	var exits []struct{ ticket, reason string }

	t.mu.Lock()
	for _, p := range t.positions {
		if p.Symbol != tick.Symbol {
			continue
		}
		inst, ok := t.instruments[p.Symbol]
		if !ok {
			continue
		}
		if reason := t.update(cfg, inst, p, tick, reversal, now); reason != "" {
			exits = append(exits, struct{ ticket, reason string }{p.Ticket, reason})
			continue
		}
		// nothing at the venue enforces an unacknowledged stop
		if _, unacked := t.unsynced[p.Ticket]; unacked && p.Side.Sign()*(p.CurrentPrice-p.StopLoss) <= eps {
			exits = append(exits, struct{ ticket, reason string }{p.Ticket, ReasonStopLoss})
			continue
		}
		from := p.State()
		sl := p.StopLoss
		t.advance(cfg, inst, p)
		_, pending := t.unsynced[p.Ticket]
		switch {
		case p.StopLoss != sl:
			moves = append(moves, stopMove{ticket: p.Ticket, from: from, to: p.State(), sl: p.StopLoss, tp: p.TakeProfit})
		case pending:
			moves = append(moves, stopMove{ticket: p.Ticket, to: p.State(), sl: p.StopLoss, tp: p.TakeProfit, retry: true})
		}
	}
	t.mu.Unlock()

	for _, mv := range moves {
		t.pushStop(ctx, mv)
	}

	var closed []models.ClosedTrade
	for _, ex := range exits {
		trade, err := t.Close(ctx, ex.ticket, ex.reason)
		if err != nil {
			t.logger.Error().Err(err).Str("ticket", ex.ticket).Str("reason", ex.reason).Msg("Close failed, retrying next cycle")
			continue
		}
		closed = append(closed, trade)
	}
	return closed
}

// update refreshes price-derived fields and returns an exit reason, if any.
// Called with t.mu held.
func (t *Tracker) update(cfg config.LifecycleConfig, inst models.Instrument, p *models.ActivePosition,
	tick models.Tick, reversal *models.Verdict, now time.Time) string {
	price := tick.ExitPrice(p.Side)
	p.CurrentPrice = price
	p.Profit = inst.Profit(p.Side, p.Volume, p.EntryPrice, price)
	if risk := p.RiskDistance(); risk > 0 {
		p.RMultiple = p.PriceProfit(price) / risk
	}
	p.PeakProfit = math.Max(p.PeakProfit, p.Profit)

	sign := p.Side.Sign()
	if p.InitialStopLoss > 0 && sign*(price-p.InitialStopLoss) <= eps {
		return ReasonStopLoss
	}
	if p.InitialTakeProfit > 0 && sign*(p.InitialTakeProfit-price) <= eps {
		return ReasonTakeProfit
	}
	if cfg.MaxHold > 0 && !p.OpenedAt.IsZero() && now.Sub(p.OpenedAt) >= cfg.MaxHold {
		return ReasonMaxHold
	}
	if reversal != nil && p.Profit > 0 && !p.BreakEvenMoved &&
		reversal.Direction == models.DirectionOf(p.Side).Opposite() &&
		reversal.Confidence >= cfg.ReversalExitConfidence {
		return ReasonReversal
	}
	return ""
}

// advance applies break-even, trailing and partial-profit transitions.
// Called with t.mu held.
func (t *Tracker) advance(cfg config.LifecycleConfig, inst models.Instrument, p *models.ActivePosition) {
	risk := p.RiskDistance()
	if risk <= 0 {
		return
	}
	sign := p.Side.Sign()
	move := p.PriceProfit(p.CurrentPrice)
	breakEven := p.EntryPrice + sign*inst.Price(cfg.BreakEvenBufferPips)

	if !p.BreakEvenMoved && move >= cfg.BreakEvenTriggerR*risk-eps {
		tightenStop(p, breakEven)
		p.BreakEvenMoved = true
	}

	if p.BreakEvenMoved && !p.TrailingActive && move >= cfg.TrailingTriggerR*risk-eps {
		p.TrailingActive = true
		tightenStop(p, p.CurrentPrice-sign*inst.Price(cfg.TrailingBufferPips))
	} else if p.TrailingActive {
		candidate := p.CurrentPrice - sign*inst.Price(cfg.TrailingBufferPips)
		if sign*(candidate-p.StopLoss) >= cfg.TrailingStepR*risk-eps {
			tightenStop(p, candidate)
		}
	}

	if !p.PartialTaken && cfg.PartialProfitAmount > 0 && p.Profit >= cfg.PartialProfitAmount {
		p.PartialTaken = true
		p.BreakEvenMoved = true
		tightenStop(p, breakEven)
	}
}

// tightenStop moves the stop toward price, never away from it and never
// through the current price.
func tightenStop(p *models.ActivePosition, sl float64) {
	sign := p.Side.Sign()
	if sign*(sl-p.StopLoss) <= eps {
		return
	}
	if sign*(p.CurrentPrice-sl) <= eps {
		return
	}
	p.StopLoss = sl
}

// pushStop sends a managed stop to the venue. A stop the venue refuses is
// kept pending and re-sent on every tick until it is acknowledged.
func (t *Tracker) pushStop(ctx context.Context, mv stopMove) {
	log := logging.WithTicket(t.logger, mv.ticket)
	if !mv.retry {
		logging.LogTransition(log, mv.ticket, string(mv.from), string(mv.to), mv.sl)
		t.sink.Record(ctx, models.AuditEvent{
			Type:    models.AuditStopMoved,
			Ticket:  mv.ticket,
			Message: fmt.Sprintf("stop moved to %.5f", mv.sl),
			Details: map[string]interface{}{"from": string(mv.from), "to": string(mv.to), "sl": mv.sl},
		})
	}

	pm, ok := t.gateway.(broker.PositionModifier)
	if !ok {
		return
	}
	err := pm.ModifyPosition(ctx, mv.ticket, mv.sl, mv.tp)

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, open := t.positions[mv.ticket]; !open {
		delete(t.unsynced, mv.ticket)
		return
	}
	if err == nil || errors.Is(err, errors.ErrNotSupported) {
		delete(t.unsynced, mv.ticket)
		return
	}
	t.unsynced[mv.ticket] = mv.sl
	log.Warn().Err(err).Float64("sl", mv.sl).Bool("retry", mv.retry).Msg("Failed to push stop to venue")
}


// Close closes a managed position at the venue and removes it. A ticket
// the venue no longer knows counts as closed.
func (t *Tracker) Close(ctx context.Context, ticket, reason string) (models.ClosedTrade, error) {
	p, ok := t.Get(ticket)
	if !ok {
		return models.ClosedTrade{}, errors.ErrPositionNotFound
	}

	closed, err := t.gateway.ClosePosition(ctx, ticket)
	if err != nil && !errors.Is(err, errors.ErrPositionNotFound) {
		return models.ClosedTrade{}, errors.NewOrderError(ticket, p.Symbol, "close", reason, err)
	}
	if err == nil && !closed {
		return models.ClosedTrade{}, errors.NewOrderError(ticket, p.Symbol, "close", reason, errors.ErrOrderRejected)
	}

	trade, ok := t.remove(ctx, ticket, reason)
	if !ok {
		return models.ClosedTrade{}, errors.ErrPositionNotFound
	}
	return trade, nil
}

// Reconcile drops every local position the venue no longer reports and
// returns the dropped trades. Positions opened after asOf, the time the
// venue list was fetched, are kept.
func (t *Tracker) Reconcile(ctx context.Context, venue []models.GatewayPosition, asOf time.Time) []models.ClosedTrade {
	live := make(map[string]models.GatewayPosition, len(venue))
	for _, p := range venue {
		live[p.Ticket] = p
	}

	var gone []string
	t.mu.Lock()
	for ticket, p := range t.positions {
		vp, ok := live[ticket]
		if !ok {
			if !asOf.IsZero() && p.OpenedAt.After(asOf) {
				continue
			}
			gone = append(gone, ticket)
			continue
		}
		if vp.CurrentPrice > 0 {
			p.CurrentPrice = vp.CurrentPrice
			p.Profit = vp.Profit
		}
	}
	t.mu.Unlock()

	sort.Strings(gone)
	var out []models.ClosedTrade
	for _, ticket := range gone {
		if trade, ok := t.remove(ctx, ticket, ReasonVenue); ok {
			out = append(out, trade)
		}
	}
	if len(out) > 0 {
		t.logger.Info().Int("dropped", len(out)).Msg("Reconciled positions with venue")
	}
	return out
}

func (t *Tracker) remove(ctx context.Context, ticket, reason string) (models.ClosedTrade, bool) {
	t.mu.Lock()
	p, ok := t.positions[ticket]
	if ok {
		delete(t.positions, ticket)
		delete(t.unsynced, ticket)
	}
	callbacks := append([]CloseFunc(nil), t.onClose...)
	t.mu.Unlock()
	if !ok {
		return models.ClosedTrade{}, false
	}

	trade := models.ClosedTrade{
		Ticket:    p.Ticket,
		Symbol:    p.Symbol,
		Side:      p.Side,
		Profit:    p.Profit,
		RMultiple: p.RMultiple,
		Reason:    reason,
		ClosedAt:  t.now(),
	}

	logging.LogTransition(logging.WithTicket(t.logger, ticket), ticket, string(p.State()), string(models.StateClosed), p.StopLoss)
	t.sink.Record(ctx, models.AuditEvent{
		Type:    models.AuditPositionClosed,
		Symbol:  p.Symbol,
		Ticket:  ticket,
		Message: fmt.Sprintf("closed (%s) profit %.2f", reason, p.Profit),
		Details: map[string]interface{}{"reason": reason, "profit": p.Profit, "r_multiple": p.RMultiple},
	})

	for _, fn := range callbacks {
		fn(trade)
	}
	return trade, true
}
