// Package risk sizes orders and guards every order with a battery of
// account checks. It owns the drawdown and daily-loss breakers and the
// emergency stop.
package risk

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"fx-trader/internal/audit"
	"fx-trader/internal/broker"
	"fx-trader/internal/config"
	"fx-trader/internal/errors"
	"fx-trader/internal/logging"
	"fx-trader/internal/models"
	"fx-trader/internal/resilience"
)

// PositionBook is the view of managed positions the manager needs.
type PositionBook interface {
	Count() int
	CountSymbol(symbol string) int
	Register(pos models.ActivePosition)
}

// Disabler turns the agent off and persists that state.
type Disabler interface {
	Disable(ctx context.Context, reason string) error
}

// Scorer reports the recent expectancy score.
type Scorer interface {
	Score() float64
}

// CircuitReporter is implemented by gateways that expose a circuit breaker.
type CircuitReporter interface {
	Breaker() *resilience.CircuitBreaker
}

// OrderIntent is an approved decision ready for sizing.
type OrderIntent struct {
	Symbol   string
	Side     models.Side
	Quality  float64
	Tick     models.Tick
	StopLoss float64 // optional absolute stop price
	Reason   string
}

// Fill is a placed and registered order.
type Fill struct {
	Ticket   string
	Request  models.OrderRequest
	Price    float64
	Size     Size
	Position models.ActivePosition
}

// HedgeRequest is an offsetting order against an open position.
type HedgeRequest struct {
	OriginTicket string
	Symbol       string
	Side         models.Side
	Volume       float64
	Price        float64
	StopLoss     float64
	TakeProfit   float64
}

// Status is a snapshot of breaker state.
type Status struct {
	Halted       bool
	Emergency    bool
	PeakEquity   float64
	DayStart     float64
	Day          string
	DrawdownPct  float64
	DailyLossPct float64
	DailyTrades  int
	Pending      int
	Tripped      string // rule of the breaker that halted trading
	Account      *models.AccountSnapshot
}

// Manager implements the order path: checks, sizing, placement and
// registration.
type Manager struct {
	cfg         config.Provider
	gateway     broker.Gateway
	instruments map[string]models.Instrument
	book        PositionBook
	disabler    Disabler
	sink        audit.Sink
	scorer      Scorer
	execution   *resilience.ExecutionQualityTracker
	logger      zerolog.Logger
	now         func() time.Time

	halted          atomic.Bool
	drawdownTripped atomic.Bool
	emergency       atomic.Bool

	mu         sync.Mutex
	peakEquity float64
	dayStart   float64
	day        string
	dayTrades  int
	tripped    *errors.RiskError
	account    *models.AccountSnapshot
	pending    int
	lastOrder  map[string]time.Time
	symbolLock map[string]*sync.Mutex
}

// Option configures a Manager.
type Option func(*Manager)

// WithScorer sets the expectancy source for the regime boost.
func WithScorer(s Scorer) Option {
	return func(m *Manager) { m.scorer = s }
}

// WithExecutionTracker records slippage and latency of every placement.
func WithExecutionTracker(t *resilience.ExecutionQualityTracker) Option {
	return func(m *Manager) { m.execution = t }
}

// WithClock overrides the clock.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a risk manager.
func NewManager(cfg config.Provider, gateway broker.Gateway, instruments map[string]models.Instrument,
	book PositionBook, disabler Disabler, sink audit.Sink, logger zerolog.Logger, opts ...Option) *Manager {
	m := &Manager{
		cfg:         cfg,
		gateway:     gateway,
		instruments: instruments,
		book:        book,
		disabler:    disabler,
		sink:        sink,
		logger:      logging.WithComponent(logger, "risk"),
		now:         func() time.Time { return time.Now().UTC() },
		lastOrder:   make(map[string]time.Time),
		symbolLock:  make(map[string]*sync.Mutex),
	}
	if m.sink == nil {
		m.sink = audit.Discard{}
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ExecuteOrder validates, sizes and places an order, then registers the
// position. Nothing is registered if placement fails.
func (m *Manager) ExecuteOrder(ctx context.Context, intent OrderIntent) (*Fill, error) {
	cfg := m.cfg.Current()
	log := logging.WithSymbol(m.logger, intent.Symbol)

	fill, err := m.executeOrder(ctx, cfg, intent)
	if err != nil {
		var re *errors.RiskError
		if errors.As(err, &re) {
			logging.LogRejection(log, intent.Symbol, "risk", string(re.Rule), re.Message)
			m.sink.Record(ctx, models.AuditEvent{
				Type:    models.AuditRejection,
				Symbol:  intent.Symbol,
				Message: re.Error(),
				Details: map[string]interface{}{"rule": string(re.Rule), "current": re.Current, "limit": re.Limit},
			})
		}
		return nil, err
	}
	return fill, nil
}

func (m *Manager) executeOrder(ctx context.Context, cfg *config.Config, intent OrderIntent) (*Fill, error) {
	acct, err := m.preflight(ctx, cfg)
	if err != nil {
		return nil, err
	}
	r := cfg.Risk

	inst, ok := m.instruments[intent.Symbol]
	if !ok {
		return nil, errors.NewRiskError(errors.RuleUnknownInstrument, 0, 0, "no reference data for "+intent.Symbol)
	}

	lock := m.lockFor(intent.Symbol)
	lock.Lock()
	defer lock.Unlock()

	if err := m.reserveSlot(r, intent.Symbol); err != nil {
		return nil, err
	}
	defer m.releaseSlot()

	now := m.now()
	m.mu.Lock()
	last := m.lastOrder[intent.Symbol]
	m.mu.Unlock()
	if !last.IsZero() && now.Sub(last) < r.OrderCooldown {
		return nil, errors.NewRiskError(errors.RuleOrderCooldown, now.Sub(last).Seconds(), r.OrderCooldown.Seconds(),
			"order cooldown active")
	}

	price := intent.Tick.EntryPrice(intent.Side)
	if price <= 0 {
		return nil, errors.NewDataError("tick", intent.Symbol, "no entry price", errors.ErrInsufficientData)
	}

	var stopPips float64
	if intent.StopLoss > 0 {
		stopPips = inst.Pips(price - intent.StopLoss)
	}
	var score float64
	if m.scorer != nil {
		score = m.scorer.Score()
	}
	size, err := ComputeSize(r, inst, SizingInput{
		Equity:   acct.Equity,
		Price:    price,
		StopPips: stopPips,
		Leverage: acct.Leverage,
		Live:     cfg.IsLive(),
		Score:    score,
	})
	if err != nil {
		return nil, err
	}

	if err := m.checkExposure(r, inst, acct, size.Volume, price); err != nil {
		return nil, err
	}

	// stop and target are derived from the clamped stop distance
	dist := inst.Price(size.StopPips)
	sign := intent.Side.Sign()
	req := models.OrderRequest{
		Symbol:     intent.Symbol,
		Side:       intent.Side,
		Volume:     size.Volume,
		StopLoss:   price - sign*dist,
		TakeProfit: price + sign*dist*r.RewardRatio,
		Tag:        uuid.NewString(),
	}

	sent := time.Now()
	res, err := m.gateway.PlaceOrder(ctx, &req)
	if err != nil {
		if m.execution != nil {
			m.execution.RecordRejection(intent.Symbol, string(intent.Side), err.Error())
		}
		oerr := errors.NewOrderError("", intent.Symbol, string(intent.Side), "placement failed", err)
		m.sink.Record(ctx, models.AuditEvent{
			Type:    models.AuditOrderFailed,
			Symbol:  intent.Symbol,
			Message: oerr.Error(),
			Details: map[string]interface{}{"volume": req.Volume, "tag": req.Tag},
		})
		return nil, oerr
	}

	fillPrice := price
	if res.Price > 0 {
		fillPrice = res.Price
	}
	volume := req.Volume
	if res.Volume > 0 {
		volume = res.Volume
	}
	if m.execution != nil {
		m.execution.RecordFill(res.Ticket, intent.Symbol, string(intent.Side), price, fillPrice, inst.PipSize, time.Since(sent))
	}
	pos := models.ActivePosition{
		Ticket:            res.Ticket,
		Symbol:            intent.Symbol,
		Side:              intent.Side,
		Volume:            volume,
		EntryPrice:        fillPrice,
		OpenedAt:          now,
		InitialStopLoss:   req.StopLoss,
		InitialTakeProfit: req.TakeProfit,
		StopLoss:          req.StopLoss,
		TakeProfit:        req.TakeProfit,
		CurrentPrice:      fillPrice,
	}
	m.book.Register(pos)

	m.mu.Lock()
	m.lastOrder[intent.Symbol] = now
	m.dayTrades++
	m.mu.Unlock()

	logging.LogOrder(m.logger, res.Ticket, intent.Symbol, string(intent.Side), volume, fillPrice)
	m.sink.Record(ctx, models.AuditEvent{
		Type:    models.AuditOrderPlaced,
		Symbol:  intent.Symbol,
		Ticket:  res.Ticket,
		Message: fmt.Sprintf("%s %.2f lots at %.5f", intent.Side, volume, fillPrice),
		Details: map[string]interface{}{
			"sl":        req.StopLoss,
			"tp":        req.TakeProfit,
			"stop_pips": size.StopPips,
			"risk":      size.RiskAmount,
			"boost_pct": size.BoostPct,
			"quality":   intent.Quality,
			"tag":       req.Tag,
		},
	})

	return &Fill{Ticket: res.Ticket, Request: req, Price: fillPrice, Size: size, Position: pos}, nil
}

// PlaceHedge places an offsetting order. Concurrency caps and cooldowns
// do not apply to hedges; everything else does.
func (m *Manager) PlaceHedge(ctx context.Context, h HedgeRequest) (*broker.OrderResult, error) {
	cfg := m.cfg.Current()
	acct, err := m.preflight(ctx, cfg)
	if err != nil {
		return nil, err
	}

	inst, ok := m.instruments[h.Symbol]
	if !ok {
		return nil, errors.NewRiskError(errors.RuleUnknownInstrument, 0, 0, "no reference data for "+h.Symbol)
	}
	volume := RoundToStep(h.Volume, inst.VolumeStep)
	floor := max(cfg.Risk.MinLot, inst.MinVolume)
	if volume < floor {
		return nil, errors.NewRiskError(errors.RuleVolumeBounds, volume, floor, "hedge volume below the minimum lot")
	}
	if inst.MaxVolume > 0 && volume > inst.MaxVolume {
		volume = RoundToStep(inst.MaxVolume, inst.VolumeStep)
	}

	lock := m.lockFor(h.Symbol)
	lock.Lock()
	defer lock.Unlock()

	if err := m.checkExposure(cfg.Risk, inst, acct, volume, h.Price); err != nil {
		return nil, err
	}

	req := models.OrderRequest{
		Symbol:     h.Symbol,
		Side:       h.Side,
		Volume:     volume,
		StopLoss:   h.StopLoss,
		TakeProfit: h.TakeProfit,
		Tag:        "hedge:" + h.OriginTicket + ":" + uuid.NewString()[:8],
	}
	res, err := m.gateway.PlaceOrder(ctx, &req)
	if err != nil {
		return nil, errors.NewOrderError(h.OriginTicket, h.Symbol, string(h.Side), "hedge placement failed", err)
	}
	logging.LogOrder(m.logger, res.Ticket, h.Symbol, string(h.Side), volume, res.Price)
	return res, nil
}

// preflight runs the account-level checks shared by orders and hedges.
func (m *Manager) preflight(ctx context.Context, cfg *config.Config) (*models.AccountSnapshot, error) {
	if err := m.trippedBreaker(); err != nil {
		return nil, err
	}
	if !cfg.Agent.Enabled || m.halted.Load() {
		return nil, errors.NewRiskError(errors.RuleTradingDisabled, 0, 0, "trading is disabled")
	}
	if cr, ok := m.gateway.(CircuitReporter); ok && cr.Breaker().State() == resilience.CircuitOpen {
		return nil, errors.NewRiskError(errors.RuleConnectivity, 0, 0, "gateway circuit is open")
	}

	acct, err := m.Account(ctx)
	if err != nil {
		return nil, err
	}
	if !acct.TradeAllowed {
		return nil, errors.NewRiskError(errors.RuleTradingDisabled, 0, 0, "gateway reports trading not allowed")
	}
	if err := m.evaluate(ctx, cfg, acct); err != nil {
		return nil, err
	}

	r := cfg.Risk
	if acct.MarginUsed > 0 && acct.MarginLevel < r.MinMarginLevel {
		return nil, errors.NewRiskError(errors.RuleMarginLevel, acct.MarginLevel, r.MinMarginLevel, "margin level too low")
	}
	if acct.Balance < r.MinBalance {
		return nil, errors.NewRiskError(errors.RuleMinBalance, acct.Balance, r.MinBalance, "balance below minimum")
	}
	return acct, nil
}

func (m *Manager) checkExposure(r config.RiskConfig, inst models.Instrument, acct *models.AccountSnapshot, volume, price float64) error {
	if volume < r.MinLot || volume > r.MaxLot || (inst.MaxVolume > 0 && volume > inst.MaxVolume) {
		return errors.NewRiskError(errors.RuleVolumeBounds, volume, r.MaxLot, "volume outside bounds")
	}
	leverage := acct.Leverage
	if leverage <= 0 {
		leverage = r.MaxLeverage
	}
	required := RequiredMargin(inst, volume, price, leverage)
	available := acct.FreeMargin * r.MaxFreeMarginUsagePercent / 100
	if required > available {
		return errors.NewRiskError(errors.RuleRequiredMargin, required, available, "required margin exceeds free margin allowance")
	}
	if acct.Equity > 0 {
		if lev := inst.Notional(volume, price) / acct.Equity; lev > r.MaxLeverage {
			return errors.NewRiskError(errors.RuleLeverage, lev, r.MaxLeverage, "effective leverage too high")
		}
	}
	return nil
}

func (m *Manager) reserveSlot(r config.RiskConfig, symbol string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if open := m.book.Count() + m.pending; open >= r.MaxConcurrentPositions {
		return errors.NewRiskError(errors.RuleConcurrency, float64(open), float64(r.MaxConcurrentPositions),
			"too many open positions")
	}
	if open := m.book.CountSymbol(symbol); open >= r.MaxPositionsPerInstrument {
		return errors.NewRiskError(errors.RuleConcurrency, float64(open), float64(r.MaxPositionsPerInstrument),
			"too many positions on "+symbol)
	}
	// in-flight placements count against the day until they fail
	if r.MaxDailyTrades > 0 && m.dayTrades+m.pending >= r.MaxDailyTrades {
		return errors.NewRiskError(errors.RuleDailyTrades, float64(m.dayTrades+m.pending), float64(r.MaxDailyTrades),
			"daily trade limit reached")
	}
	m.pending++
	return nil
}

func (m *Manager) releaseSlot() {
	m.mu.Lock()
	m.pending--
	m.mu.Unlock()
}

func (m *Manager) lockFor(symbol string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.symbolLock[symbol]
	if !ok {
		l = &sync.Mutex{}
		m.symbolLock[symbol] = l
	}
	return l
}

// Account returns the account snapshot, refetching it when it is older
// than one tick interval.
func (m *Manager) Account(ctx context.Context) (*models.AccountSnapshot, error) {
	now := m.now()
	ttl := m.cfg.Current().Agent.TickInterval

	m.mu.Lock()
	cached := m.account
	m.mu.Unlock()
	if cached != nil && cached.Age(now) < ttl {
		return cached, nil
	}

	acct, err := m.gateway.GetAccountInfo(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "fetching account")
	}
	snap := *acct
	snap.FetchedAt = now

	m.mu.Lock()
	m.account = &snap
	m.mu.Unlock()
	return &snap, nil
}

// CheckBreakers refreshes the account and evaluates the drawdown and
// daily-loss breakers. The scheduler calls it once per cycle.
func (m *Manager) CheckBreakers(ctx context.Context) error {
	cfg := m.cfg.Current()
	m.mu.Lock()
	m.account = nil
	m.mu.Unlock()

	acct, err := m.Account(ctx)
	if err != nil {
		return err
	}
	return m.evaluate(ctx, cfg, acct)
}

// evaluate rolls the trading day, tracks peak equity and trips breakers.
func (m *Manager) evaluate(ctx context.Context, cfg *config.Config, acct *models.AccountSnapshot) error {
	day := m.now().Format("2006-01-02")

	m.mu.Lock()
	if day != m.day {
		m.day = day
		m.dayStart = acct.Equity
		m.dayTrades = 0
	}
	if acct.Equity > m.peakEquity {
		m.peakEquity = acct.Equity
	}
	drawdown := pctBelow(m.peakEquity, acct.Equity)
	dailyLoss := pctBelow(m.dayStart, acct.Equity)
	m.mu.Unlock()

	r := cfg.Risk
	if drawdown >= r.MaxDrawdownPercent {
		err := errors.NewRiskError(errors.RuleDrawdown, drawdown, r.MaxDrawdownPercent, "equity drawdown from peak")
		m.tripDrawdown(ctx, err)
		return err
	}
	if dailyLoss >= r.DailyLossCapPercent {
		err := errors.NewRiskError(errors.RuleDailyLoss, dailyLoss, r.DailyLossCapPercent, "daily loss cap reached")
		m.latch(err)
		reason := fmt.Sprintf("daily loss %.2f%% reached cap %.2f%%", dailyLoss, r.DailyLossCapPercent)
		if stopErr := m.EmergencyStop(ctx, reason); stopErr != nil {
			m.logger.Error().Err(stopErr).Msg("Emergency stop incomplete")
		}
		return err
	}
	return nil
}

// tripDrawdown records the breaker once and hands over to the emergency
// stop, which closes every position.
func (m *Manager) tripDrawdown(ctx context.Context, breach *errors.RiskError) {
	m.latch(breach)
	if !m.drawdownTripped.CompareAndSwap(false, true) {
		return
	}
	logging.LogBreaker(m.logger, "drawdown", breach.Current, breach.Limit)
	reason := fmt.Sprintf("drawdown %.2f%% reached limit %.2f%%", breach.Current, breach.Limit)
	m.sink.Record(ctx, models.AuditEvent{
		Type:    models.AuditBreaker,
		Message: reason,
		Details: map[string]interface{}{"breaker": "drawdown", "current": breach.Current, "limit": breach.Limit},
	})
	if err := m.EmergencyStop(ctx, reason); err != nil {
		m.logger.Error().Err(err).Msg("Emergency stop incomplete")
	}
}

// latch keeps the first breach so later orders are rejected citing it.
func (m *Manager) latch(breach *errors.RiskError) {
	m.mu.Lock()
	if m.tripped == nil {
		m.tripped = breach
	}
	m.mu.Unlock()
	m.halted.Store(true)
}

func (m *Manager) trippedBreaker() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tripped == nil {
		return nil
	}
	breach := *m.tripped
	return &breach
}

// EmergencyStop disables trading, closes every open position and persists
// the disabled state. Only the first call acts.
func (m *Manager) EmergencyStop(ctx context.Context, reason string) error {
	m.halted.Store(true)
	if !m.emergency.CompareAndSwap(false, true) {
		return nil
	}
	m.logger.Error().Str("reason", reason).Msg("EMERGENCY STOP")

	var failed []string
	positions, err := m.gateway.GetPositions(ctx)
	if err != nil {
		failed = append(failed, "listing positions: "+err.Error())
	}
	closed := 0
	for _, p := range positions {
		ok, err := m.gateway.ClosePosition(ctx, p.Ticket)
		if err != nil || !ok {
			failed = append(failed, fmt.Sprintf("closing %s: %v", p.Ticket, err))
			continue
		}
		closed++
	}

	m.sink.Record(ctx, models.AuditEvent{
		Type:    models.AuditEmergencyStop,
		Message: reason,
		Details: map[string]interface{}{"closed": closed, "failed": len(failed)},
	})

	if m.disabler != nil {
		if err := m.disabler.Disable(ctx, reason); err != nil {
			failed = append(failed, "persisting disabled state: "+err.Error())
		}
	}

	if len(failed) > 0 {
		return fmt.Errorf("emergency stop: %s", strings.Join(failed, "; "))
	}
	return nil
}

// Resume clears the breakers after the operator re-enables the agent.
// Peak equity and the day's starting equity are recaptured on the next
// account fetch.
func (m *Manager) Resume() {
	m.mu.Lock()
	m.peakEquity = 0
	m.day = ""
	m.dayStart = 0
	m.account = nil
	m.tripped = nil
	m.mu.Unlock()

	m.drawdownTripped.Store(false)
	m.emergency.Store(false)
	m.halted.Store(false)
	m.logger.Info().Msg("Risk breakers reset")
}

// Halted reports whether a breaker has stopped trading.
func (m *Manager) Halted() bool {
	return m.halted.Load()
}

// Status returns a snapshot of breaker state.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Status{
		Halted:      m.halted.Load(),
		Emergency:   m.emergency.Load(),
		PeakEquity:  m.peakEquity,
		DayStart:    m.dayStart,
		Day:         m.day,
		DailyTrades: m.dayTrades,
		Pending:     m.pending,
	}
	if m.tripped != nil {
		s.Tripped = string(m.tripped.Rule)
	}
	if m.account != nil {
		acct := *m.account
		s.Account = &acct
		s.DrawdownPct = pctBelow(m.peakEquity, acct.Equity)
		s.DailyLossPct = pctBelow(m.dayStart, acct.Equity)
	}
	return s
}

func pctBelow(ref, v float64) float64 {
	if ref <= 0 || v >= ref {
		return 0
	}
	return (ref - v) / ref * 100
}
