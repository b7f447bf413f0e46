// Package hedge watches managed positions for adverse excursion and opens
// or retires offsetting positions against them.
package hedge

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"fx-trader/internal/audit"
	"fx-trader/internal/broker"
	"fx-trader/internal/config"
	"fx-trader/internal/errors"
	"fx-trader/internal/lifecycle"
	"fx-trader/internal/logging"
	"fx-trader/internal/models"
	"fx-trader/internal/risk"
)

// Positions is the lifecycle view the monitor works against.
type Positions interface {
	Snapshot() []models.ActivePosition
	MarkHedged(ticket string, hedged bool) error
	Close(ctx context.Context, ticket, reason string) (models.ClosedTrade, error)
}

// Placer places hedge orders through the risk checks.
type Placer interface {
	PlaceHedge(ctx context.Context, req risk.HedgeRequest) (*broker.OrderResult, error)
}

// Prices supplies the latest tick per symbol. Ticks older than the cache
// TTL are refused.
type Prices interface {
	FreshTick(symbol string) (models.Tick, error)
}

// ReversalSource runs reversal detection for a symbol.
type ReversalSource interface {
	Reversal(symbol string) (models.Verdict, bool)
}

// ReversalFunc adapts a function to ReversalSource.
type ReversalFunc func(symbol string) (models.Verdict, bool)

// Reversal calls f.
func (f ReversalFunc) Reversal(symbol string) (models.Verdict, bool) { return f(symbol) }

// Monitor owns every hedge position.
type Monitor struct {
	cfg       config.Provider
	positions Positions
	placer    Placer
	gateway   broker.Gateway
	prices    Prices
	reversals ReversalSource
	sink      audit.Sink
	logger    zerolog.Logger
	now       func() time.Time

	mu     sync.Mutex
	hedges map[string][]*models.HedgePosition // by origin ticket
}

// NewMonitor creates a hedge monitor.
func NewMonitor(cfg config.Provider, positions Positions, placer Placer, gateway broker.Gateway,
	prices Prices, reversals ReversalSource, sink audit.Sink, logger zerolog.Logger) *Monitor {
	if sink == nil {
		sink = audit.Discard{}
	}
	return &Monitor{
		cfg:       cfg,
		positions: positions,
		placer:    placer,
		gateway:   gateway,
		prices:    prices,
		reversals: reversals,
		sink:      sink,
		logger:    logging.WithComponent(logger, "hedge"),
		now:       func() time.Time { return time.Now().UTC() },
		hedges:    make(map[string][]*models.HedgePosition),
	}
}

// SetClock overrides the clock.
func (m *Monitor) SetClock(now func() time.Time) {
	m.now = now
}

// Excursion returns the adverse move as a fraction of the position's risk
// distance. Favourable moves give zero.
func Excursion(p models.ActivePosition, price float64) float64 {
	r := p.RiskDistance()
	if r <= 0 {
		return 0
	}
	loss := -p.PriceProfit(price)
	if loss <= 0 {
		return 0
	}
	return loss / r
}

// Evaluate runs one monitoring pass over all managed positions.
func (m *Monitor) Evaluate(ctx context.Context) {
	cfg := m.cfg.Current().Hedge
	if !cfg.Enabled {
		return
	}

	open := m.positions.Snapshot()
	tracked := make(map[string]bool, len(open))
	for _, p := range open {
		tracked[p.Ticket] = true
	}
	m.closeOrphans(ctx, tracked)

	for _, p := range open {
		if err := ctx.Err(); err != nil {
			return
		}
		tick, err := m.prices.FreshTick(p.Symbol)
		if err != nil {
			log := logging.WithTicket(m.logger, p.Ticket)
			log.Debug().Err(err).Msg("No fresh price, position skipped")
			continue
		}
		m.evaluatePosition(ctx, cfg, p, tick)
	}
}

func (m *Monitor) evaluatePosition(ctx context.Context, cfg config.HedgeConfig, p models.ActivePosition, tick models.Tick) {
	log := logging.WithTicket(m.logger, p.Ticket)
	exc := Excursion(p, tick.ExitPrice(p.Side))
	active := m.Active(p.Ticket)

	switch {
	case exc >= cfg.ForcedExitExcursion:
		log.Warn().Float64("excursion", exc).Int("hedges", len(active)).Msg("Forced exit")
		m.closeHedges(ctx, p.Ticket, "forced_exit")
		if _, err := m.positions.Close(ctx, p.Ticket, lifecycle.ReasonForcedExit); err != nil {
			log.Error().Err(err).Msg("Forced exit of origin failed")
		}
		return

	case len(active) > 0 && exc <= cfg.RecoveryExcursion:
		log.Info().Float64("excursion", exc).Msg("Position recovered, retiring hedges")
		if m.closeHedges(ctx, p.Ticket, "recovered") == 0 {
			if err := m.positions.MarkHedged(p.Ticket, false); err != nil {
				log.Warn().Err(err).Msg("Failed to clear hedge flag")
			}
		}
		return
	}

	if p.HedgeOpened || exc < cfg.TriggerExcursion {
		return
	}
	if n := m.count(p.Ticket); n >= cfg.MaxHedgesPerPosition {
		log.Debug().Int("hedges", n).Msg("Hedge limit reached")
		return
	}

	v, ok := m.reversals.Reversal(p.Symbol)
	if !ok || v.Direction != models.DirectionOf(p.Side).Opposite() || v.Confidence < cfg.ReversalConfidence {
		return
	}
	m.open(ctx, cfg, p, tick, exc, v)
}

func (m *Monitor) open(ctx context.Context, cfg config.HedgeConfig, p models.ActivePosition, tick models.Tick, exc float64, v models.Verdict) {
	side := p.Side.Opposite()
	sign := side.Sign()
	dist := p.RiskDistance()
	entry := tick.EntryPrice(side)

	req := risk.HedgeRequest{
		OriginTicket: p.Ticket,
		Symbol:       p.Symbol,
		Side:         side,
		Volume:       p.Volume * cfg.Ratio,
		Price:        entry,
		StopLoss:     entry - sign*dist*cfg.StopFraction,
		TakeProfit:   entry + sign*dist*cfg.TargetFraction,
	}
	res, err := m.placer.PlaceHedge(ctx, req)
	if err != nil {
		m.logger.Warn().Err(err).Str("origin", p.Ticket).Msg("Hedge not placed")
		return
	}

	price := entry
	if res.Price > 0 {
		price = res.Price
	}
	volume := req.Volume
	if res.Volume > 0 {
		volume = res.Volume
	}
	h := &models.HedgePosition{
		Ticket:       res.Ticket,
		OriginTicket: p.Ticket,
		Symbol:       p.Symbol,
		Side:         side,
		Volume:       volume,
		OpenPrice:    price,
		StopLoss:     req.StopLoss,
		TakeProfit:   req.TakeProfit,
		Status:       models.HedgeActive,
		OpenedAt:     m.now(),
	}
	m.mu.Lock()
	m.hedges[p.Ticket] = append(m.hedges[p.Ticket], h)
	m.mu.Unlock()

	if err := m.positions.MarkHedged(p.Ticket, true); err != nil {
		m.logger.Warn().Err(err).Str("origin", p.Ticket).Msg("Failed to set hedge flag")
	}
	logging.LogHedge(m.logger, "open", p.Ticket, h.Ticket, h.Volume)
	m.sink.Record(ctx, models.AuditEvent{
		Type:    models.AuditHedgeOpened,
		Symbol:  p.Symbol,
		Ticket:  h.Ticket,
		Message: fmt.Sprintf("%s %.2f against %s", side, h.Volume, p.Ticket),
		Details: map[string]interface{}{
			"origin":     p.Ticket,
			"excursion":  exc,
			"confidence": v.Confidence,
			"reason":     v.Reason,
		},
	})
}

// closeHedges closes every active hedge of origin and returns how many
// are still open afterwards.
func (m *Monitor) closeHedges(ctx context.Context, origin, reason string) int {
	remaining := 0
	for _, h := range m.Active(origin) {
		ok, err := m.gateway.ClosePosition(ctx, h.Ticket)
		if err != nil && !errors.Is(err, errors.ErrPositionNotFound) {
			m.logger.Error().Err(err).Str("hedge", h.Ticket).Msg("Failed to close hedge")
			remaining++
			continue
		}
		if err == nil && !ok {
			remaining++
			continue
		}
		m.markClosed(origin, h.Ticket)
		logging.LogHedge(m.logger, "close", origin, h.Ticket, h.Volume)
		m.sink.Record(ctx, models.AuditEvent{
			Type:    models.AuditHedgeClosed,
			Symbol:  h.Symbol,
			Ticket:  h.Ticket,
			Message: "hedge closed: " + reason,
			Details: map[string]interface{}{"origin": origin, "reason": reason},
		})
	}
	return remaining
}

// closeOrphans retires hedges whose origin has left the book.
func (m *Monitor) closeOrphans(ctx context.Context, tracked map[string]bool) {
	m.mu.Lock()
	var orphans []string
	for origin := range m.hedges {
		if !tracked[origin] {
			orphans = append(orphans, origin)
		}
	}
	m.mu.Unlock()
	sort.Strings(orphans)

	for _, origin := range orphans {
		if m.closeHedges(ctx, origin, "origin_closed") == 0 {
			m.mu.Lock()
			delete(m.hedges, origin)
			m.mu.Unlock()
		}
	}
}

func (m *Monitor) markClosed(origin, ticket string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, h := range m.hedges[origin] {
		if h.Ticket == ticket && h.Status == models.HedgeActive {
			h.Status = models.HedgeClosed
			h.ClosedAt = m.now()
		}
	}
}

// Reconcile marks hedges the venue no longer reports as closed and clears
// the origin's flag once none remain active.
func (m *Monitor) Reconcile(ctx context.Context, venue []models.GatewayPosition) {
	live := make(map[string]bool, len(venue))
	for _, p := range venue {
		live[p.Ticket] = true
	}

	var cleared []string
	m.mu.Lock()
	for origin, hs := range m.hedges {
		changed, active := false, 0
		for _, h := range hs {
			if h.Status != models.HedgeActive {
				continue
			}
			if !live[h.Ticket] {
				h.Status = models.HedgeClosed
				h.ClosedAt = m.now()
				changed = true
				continue
			}
			active++
		}
		if changed && active == 0 {
			cleared = append(cleared, origin)
		}
	}
	m.mu.Unlock()

	for _, origin := range cleared {
		if err := m.positions.MarkHedged(origin, false); err != nil && !errors.Is(err, errors.ErrPositionNotFound) {
			m.logger.Warn().Err(err).Str("origin", origin).Msg("Failed to clear hedge flag")
		}
	}
}

// Active returns copies of the active hedges of origin.
func (m *Monitor) Active(origin string) []models.HedgePosition {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.HedgePosition
	for _, h := range m.hedges[origin] {
		if h.Status == models.HedgeActive {
			out = append(out, *h)
		}
	}
	return out
}

// Hedges returns copies of every hedge, active and closed.
func (m *Monitor) Hedges() []models.HedgePosition {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.HedgePosition
	for _, hs := range m.hedges {
		for _, h := range hs {
			out = append(out, *h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpenedAt.Before(out[j].OpenedAt) })
	return out
}

// Tickets reports every active hedge ticket.
func (m *Monitor) Tickets() map[string]bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]bool)
	for _, hs := range m.hedges {
		for _, h := range hs {
			if h.Status == models.HedgeActive {
				out[h.Ticket] = true
			}
		}
	}
	return out
}

func (m *Monitor) count(origin string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.hedges[origin])
}
