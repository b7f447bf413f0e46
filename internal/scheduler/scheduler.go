// Package scheduler drives the trading loop: a fast tick cycle that
// analyzes instruments and manages open positions, a slower bar refresh
// and the hedge monitor. Each loop has its own in-flight guard so a slow
// pass is skipped rather than stacked.
package scheduler

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"fx-trader/internal/analysis"
	"fx-trader/internal/audit"
	"fx-trader/internal/broker"
	"fx-trader/internal/config"
	"fx-trader/internal/errors"
	"fx-trader/internal/gate"
	"fx-trader/internal/hedge"
	"fx-trader/internal/lifecycle"
	"fx-trader/internal/logging"
	"fx-trader/internal/marketdata"
	"fx-trader/internal/models"
	"fx-trader/internal/performance"
	"fx-trader/internal/risk"
)

// SignalRecorder persists gate decisions.
type SignalRecorder interface {
	RecordSignal(ctx context.Context, d models.Decision)
}

// SessionUpdater accepts new session windows on reload.
type SessionUpdater interface {
	SetWindows(windows []config.SessionWindow)
}

// Deps are the collaborators of a Scheduler.
type Deps struct {
	Config       config.Provider
	Gateway      broker.Gateway
	Instruments  map[string]models.Instrument
	Cache        *marketdata.Cache
	Streaming    bool
	Registry     *analysis.Registry
	AnalysisDeps analysis.Deps
	Reversals    *ReversalScanner
	Gate         *gate.Gate
	Cooldowns    *gate.Cooldowns
	Risk         *risk.Manager
	Tracker      *lifecycle.Tracker
	Hedger       *hedge.Monitor
	Expectancy   *performance.Expectancy
	Sessions     SessionUpdater
	Switch       *Switch
	Signals      SignalRecorder
	Sink         audit.Sink
	Logger       zerolog.Logger
}

// Stats counts scheduler activity since start.
type Stats struct {
	Cycles        uint64
	SkippedCycles uint64
	Analyses      uint64
	Approved      uint64
	Orders        uint64
	Rejections    uint64
	Closed        uint64
	LastCycle     time.Time
}

// Scheduler owns the periodic loops.
type Scheduler struct {
	cfg          config.Provider
	gateway      broker.Gateway
	instruments  map[string]models.Instrument
	cache        *marketdata.Cache
	streaming    bool
	registry     *analysis.Registry
	analysisDeps analysis.Deps
	reversal     *ReversalScanner
	gate         *gate.Gate
	cooldowns    *gate.Cooldowns
	risk         *risk.Manager
	tracker      *lifecycle.Tracker
	hedger       *hedge.Monitor
	expectancy   *performance.Expectancy
	sessions     SessionUpdater
	sw           *Switch
	signals      SignalRecorder
	sink         audit.Sink
	logger       zerolog.Logger
	now          func() time.Time

	pool *performance.WorkerPool

	cycleBusy atomic.Bool
	barsBusy  atomic.Bool
	hedgeBusy atomic.Bool

	amu       sync.RWMutex
	analyzers []analysis.Analyzer

	mu        sync.Mutex
	analyzing map[string]bool
	reversals map[string]cycleVerdict

	cycles        atomic.Uint64
	skippedCycles atomic.Uint64
	analyses      atomic.Uint64
	approved      atomic.Uint64
	orders        atomic.Uint64
	rejections    atomic.Uint64
	closed        atomic.Uint64
	lastCycle     atomic.Int64
}

// New creates a scheduler, builds the analyzer set and subscribes the
// cooldown book and expectancy window to position closes.
func New(d Deps) (*Scheduler, error) {
	if d.Sink == nil {
		d.Sink = audit.Discard{}
	}
	if d.Registry == nil {
		d.Registry = analysis.NewRegistry()
	}
	if d.Cooldowns == nil {
		d.Cooldowns = gate.NewCooldowns()
	}
	if d.Reversals == nil {
		d.Reversals = NewReversalScanner(d.Config, d.Cache, d.Instruments)
	}
	s := &Scheduler{
		cfg:          d.Config,
		gateway:      d.Gateway,
		instruments:  d.Instruments,
		cache:        d.Cache,
		streaming:    d.Streaming,
		registry:     d.Registry,
		analysisDeps: d.AnalysisDeps,
		reversal:     d.Reversals,
		gate:         d.Gate,
		cooldowns:    d.Cooldowns,
		risk:         d.Risk,
		tracker:      d.Tracker,
		hedger:       d.Hedger,
		expectancy:   d.Expectancy,
		sessions:     d.Sessions,
		sw:           d.Switch,
		signals:      d.Signals,
		sink:         d.Sink,
		logger:       logging.WithComponent(d.Logger, "scheduler"),
		now:          func() time.Time { return time.Now().UTC() },
		analyzing:    make(map[string]bool),
		reversals:    make(map[string]cycleVerdict),
	}
	s.analysisDeps.Logger = d.Logger

	analyzers, err := s.registry.Build(s.cfg.Current(), s.analysisDeps)
	if err != nil {
		return nil, err
	}
	s.analyzers = analyzers

	s.tracker.OnClose(func(t models.ClosedTrade) {
		s.closed.Add(1)
		s.cooldowns.RecordClose(t)
		if s.expectancy != nil {
			s.expectancy.Record(t.RMultiple)
		}
	})
	return s, nil
}

// SetClock overrides the clock.
func (s *Scheduler) SetClock(now func() time.Time) {
	s.now = now
}

// SetAnalyzers replaces the analyzer set.
func (s *Scheduler) SetAnalyzers(analyzers []analysis.Analyzer) {
	s.amu.Lock()
	s.analyzers = analyzers
	s.amu.Unlock()
}

func (s *Scheduler) currentAnalyzers() []analysis.Analyzer {
	s.amu.RLock()
	defer s.amu.RUnlock()
	return s.analyzers
}

// Active reports whether the agent may trade.
func (s *Scheduler) Active() bool {
	return s.cfg.Current().Agent.Enabled && !s.risk.Halted()
}

// Run starts the loops and blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	cfg := s.cfg.Current()
	s.pool = performance.NewWorkerPool(cfg.Agent.Workers)
	s.pool.Start()
	defer s.pool.Stop()

	if s.sw != nil {
		if err := s.sw.Sync(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("Settings sync failed")
		}
	}
	s.RefreshBars(ctx)

	s.logger.Info().
		Strs("instruments", cfg.Agent.Instruments).
		Str("mode", cfg.Agent.Mode).
		Bool("enabled", cfg.Agent.Enabled).
		Dur("tick", cfg.Agent.TickInterval).
		Msg("Scheduler started")

	var wg sync.WaitGroup
	loop := func(name string, interval func(*config.Config) time.Duration, fn func(context.Context)) {
		defer wg.Done()
		every := interval(s.cfg.Current())
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fn(ctx)
				if next := interval(s.cfg.Current()); next != every {
					every = next
					ticker.Reset(every)
					s.logger.Debug().Str("loop", name).Dur("interval", every).Msg("Interval changed")
				}
			}
		}
	}

	wg.Add(3)
	go loop("tick", func(c *config.Config) time.Duration { return c.Agent.TickInterval }, func(ctx context.Context) { s.RunCycle(ctx) })
	go loop("bars", func(c *config.Config) time.Duration { return c.Agent.BarRefreshInterval }, func(ctx context.Context) {
		s.RefreshBars(ctx)
		if s.sw != nil {
			if err := s.sw.Sync(ctx); err != nil {
				s.logger.Warn().Err(err).Msg("Settings sync failed")
			}
		}
	})
	go loop("hedge", func(c *config.Config) time.Duration { return c.Hedge.Interval }, s.HedgeCycle)
	wg.Wait()

	s.logger.Info().Msg("Scheduler stopped")
	return ctx.Err()
}

// RunCycle runs one tick cycle: breakers, per-instrument analysis and
// orders, position management and reconciliation.
func (s *Scheduler) RunCycle(ctx context.Context) {
	if !s.cycleBusy.CompareAndSwap(false, true) {
		s.skippedCycles.Add(1)
		s.logger.Debug().Msg("Previous cycle still running")
		return
	}
	defer s.cycleBusy.Store(false)

	if !s.Active() {
		return
	}
	s.cycles.Add(1)
	s.lastCycle.Store(s.now().UnixNano())

	entries := true
	if err := s.risk.CheckBreakers(ctx); err != nil {
		if errors.IsRiskRule(err, errors.RuleDrawdown) || errors.IsRiskRule(err, errors.RuleDailyLoss) {
			s.logger.Error().Err(err).Msg("Breaker tripped, cycle aborted")
			s.reconcile(ctx)
			return
		}
		s.logger.Warn().Err(err).Msg("Account check failed, entries skipped this cycle")
		entries = false
	}

	cfg := s.cfg.Current()
	if entries {
		s.fanOut(ctx, cfg)
	}
	s.manage(ctx)
	s.reconcile(ctx)
}

func (s *Scheduler) fanOut(ctx context.Context, cfg *config.Config) {
	tasks := make([]func(context.Context) error, 0, len(cfg.Agent.Instruments))
	for _, symbol := range cfg.Agent.Instruments {
		symbol := symbol
		tasks = append(tasks, func(ctx context.Context) error {
			return s.analyzeInstrument(ctx, cfg, symbol)
		})
	}

	var errs []error
	if s.pool != nil {
		errs = s.pool.RunAll(ctx, tasks)
	} else {
		for _, t := range tasks {
			errs = append(errs, t(ctx))
		}
	}
	for i, err := range errs {
		if err != nil {
			log := logging.WithSymbol(s.logger, cfg.Agent.Instruments[i])
			log.Debug().Err(err).Msg("Instrument skipped")
		}
	}
}

// analyzeInstrument runs tick, bars, analyzers, gate and order placement
// for one instrument. Only one analysis per instrument runs at a time.
func (s *Scheduler) analyzeInstrument(ctx context.Context, cfg *config.Config, symbol string) error {
	if !s.tryBegin(symbol) {
		return fmt.Errorf("analysis already in progress")
	}
	defer s.end(symbol)

	inst, ok := s.instruments[symbol]
	if !ok {
		return errors.NewDataError("instrument", symbol, "no reference data", errors.ErrSymbolNotFound)
	}
	log := logging.WithSymbol(s.logger, symbol)

	tick, err := s.latestTick(ctx, symbol)
	if err != nil {
		return err
	}
	mid := tick.Mid()
	if !s.cache.MovedSinceAnalysis(symbol, mid, inst.Price(cfg.Agent.PriceEpsilonPips)) {
		return nil
	}

	in, err := s.reversal.Input(cfg, inst, tick)
	if err != nil {
		return err
	}

	verdicts := analysis.RunAll(ctx, s.currentAnalyzers(), in)
	rev := s.reversal.Detect(in)
	s.setReversal(symbol, rev)
	s.cache.MarkAnalyzed(symbol, mid)
	s.analyses.Add(1)

	gin := gate.Input{
		Symbol:    symbol,
		Now:       s.now(),
		Active:    s.Active(),
		Verdicts:  verdicts,
		EntryBars: in.Bars[in.EntryTF],
		TrendBars: in.Bars[in.TrendTF],
		Positions: s.tracker.Snapshot(),
	}
	if rev.Direction != models.DirectionNeutral {
		gin.Reversal = &rev
	}
	s.cooldowns.Fill(&gin)

	d := s.gate.Evaluate(gin)
	if d.Direction != models.DirectionNeutral && s.signals != nil {
		s.signals.RecordSignal(ctx, d)
	}
	if !d.Approved {
		return nil
	}
	s.approved.Add(1)

	side, ok := d.Direction.Side()
	if !ok {
		return nil
	}
	fill, err := s.risk.ExecuteOrder(ctx, risk.OrderIntent{
		Symbol:  symbol,
		Side:    side,
		Quality: d.Quality,
		Tick:    tick,
		Reason:  d.Reason,
	})
	if err != nil {
		if errors.Is(err, errors.ErrOrderRejected) {
			s.rejections.Add(1)
			return nil
		}
		log.Error().Err(err).Msg("Order failed")
		return nil
	}
	s.orders.Add(1)
	s.cooldowns.RecordEntry(symbol, s.now())
	log.Info().Str("ticket", fill.Ticket).Msg("Entry placed")
	return nil
}

// latestTick returns the tick to act on. With a price stream the cache is
// authoritative and the gateway is polled only when the cached tick is
// stale; without one the gateway is polled every cycle.
func (s *Scheduler) latestTick(ctx context.Context, symbol string) (models.Tick, error) {
	if s.streaming {
		if tick, err := s.cache.FreshTick(symbol); err == nil {
			return tick, nil
		}
	}
	t, err := s.gateway.GetCurrentPrice(ctx, symbol)
	if err != nil {
		if !s.streaming {
			if tick, ferr := s.cache.FreshTick(symbol); ferr == nil {
				return tick, nil
			}
		}
		return models.Tick{}, fmt.Errorf("polling price: %w", err)
	}
	s.cache.UpdateTick(*t)
	return s.cache.FreshTick(symbol)
}

// manage drives the lifecycle tracker once per symbol holding positions.
func (s *Scheduler) manage(ctx context.Context) {
	symbols := make(map[string]bool)
	for _, p := range s.tracker.Snapshot() {
		symbols[p.Symbol] = true
	}
	ordered := make([]string, 0, len(symbols))
	for sym := range symbols {
		ordered = append(ordered, sym)
	}
	sort.Strings(ordered)

	for _, symbol := range ordered {
		tick, err := s.latestTick(ctx, symbol)
		if err != nil {
			log := logging.WithSymbol(s.logger, symbol)
			log.Warn().Err(err).Msg("No price for open positions")
			continue
		}
		var rev *models.Verdict
		if v, ok := s.cycleReversal(symbol); ok {
			rev = &v
		}
		s.tracker.OnTick(ctx, tick, rev)
	}
}

// reconcile drops local positions the gateway no longer reports.
func (s *Scheduler) reconcile(ctx context.Context) {
	asOf := s.now()
	venue, err := s.gateway.GetPositions(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Position reconciliation skipped")
		return
	}
	s.tracker.Reconcile(ctx, venue, asOf)
	if s.hedger != nil {
		s.hedger.Reconcile(ctx, venue)
	}
}

// RefreshBars reloads the entry and trend windows for every instrument.
func (s *Scheduler) RefreshBars(ctx context.Context) {
	if !s.barsBusy.CompareAndSwap(false, true) {
		s.logger.Debug().Msg("Previous bar refresh still running")
		return
	}
	defer s.barsBusy.Store(false)

	cfg := s.cfg.Current()
	tfs := []models.Timeframe{models.Timeframe(cfg.Agent.EntryTimeframe), models.Timeframe(cfg.Agent.TrendTimeframe)}

	var tasks []func(context.Context) error
	for _, symbol := range cfg.Agent.Instruments {
		for _, tf := range tfs {
			symbol, tf := symbol, tf
			tasks = append(tasks, func(ctx context.Context) error {
				bars, err := s.gateway.GetHistoricalBars(ctx, symbol, tf, cfg.Agent.BarCount)
				if err != nil {
					return fmt.Errorf("%s %s: %w", symbol, tf, err)
				}
				return s.cache.SetBars(symbol, tf, bars)
			})
		}
	}

	var errs []error
	if s.pool != nil {
		errs = s.pool.RunAll(ctx, tasks)
	} else {
		for _, t := range tasks {
			errs = append(errs, t(ctx))
		}
	}
	for _, err := range errs {
		if err != nil {
			s.logger.Warn().Err(err).Msg("Bar refresh failed")
		}
	}
}

// HedgeCycle runs one hedge monitoring pass.
func (s *Scheduler) HedgeCycle(ctx context.Context) {
	if s.hedger == nil {
		return
	}
	if !s.hedgeBusy.CompareAndSwap(false, true) {
		s.logger.Debug().Msg("Previous hedge pass still running")
		return
	}
	defer s.hedgeBusy.Store(false)

	if !s.Active() {
		return
	}
	s.hedger.Evaluate(ctx)
}

// OnConfigChange applies a new configuration snapshot. Enabling the agent
// clears a tripped breaker.
func (s *Scheduler) OnConfigChange(old, updated *config.Config) {
	if !old.Agent.Enabled && updated.Agent.Enabled {
		s.risk.Resume()
		s.logger.Info().Msg("Agent enabled")
	}
	if old.Agent.Enabled && !updated.Agent.Enabled {
		s.logger.Warn().Msg("Agent disabled, new entries stop at the next cycle")
	}
	if s.sessions != nil && !reflect.DeepEqual(old.Gate.Sessions, updated.Gate.Sessions) {
		s.sessions.SetWindows(updated.Gate.Sessions)
	}
	if old.Agent.TickTTL != updated.Agent.TickTTL || old.Agent.MinBars != updated.Agent.MinBars {
		s.cache.SetLimits(updated.Agent.TickTTL, updated.Agent.MinBars)
	}
	if !reflect.DeepEqual(old.Analyzers, updated.Analyzers) {
		analyzers, err := s.registry.Build(updated, s.analysisDeps)
		if err != nil {
			s.logger.Error().Err(err).Msg("Analyzer rebuild failed, keeping previous set")
			return
		}
		s.SetAnalyzers(analyzers)
		s.logger.Info().Int("analyzers", len(analyzers)).Msg("Analyzers rebuilt")
	}
}

// Stats returns activity counters.
func (s *Scheduler) Stats() Stats {
	st := Stats{
		Cycles:        s.cycles.Load(),
		SkippedCycles: s.skippedCycles.Load(),
		Analyses:      s.analyses.Load(),
		Approved:      s.approved.Load(),
		Orders:        s.orders.Load(),
		Rejections:    s.rejections.Load(),
		Closed:        s.closed.Load(),
	}
	if ns := s.lastCycle.Load(); ns > 0 {
		st.LastCycle = time.Unix(0, ns).UTC()
	}
	return st
}

func (s *Scheduler) tryBegin(symbol string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.analyzing[symbol] {
		return false
	}
	s.analyzing[symbol] = true
	return true
}

func (s *Scheduler) end(symbol string) {
	s.mu.Lock()
	delete(s.analyzing, symbol)
	s.mu.Unlock()
}

// cycleVerdict is a reversal verdict stamped with the cycle that computed it.
type cycleVerdict struct {
	models.Verdict
	cycle uint64
}

func (s *Scheduler) setReversal(symbol string, v models.Verdict) {
	s.mu.Lock()
	s.reversals[symbol] = cycleVerdict{Verdict: v, cycle: s.cycles.Load()}
	s.mu.Unlock()
}

// cycleReversal returns the reversal computed during the current cycle.
// A verdict kept from an earlier cycle is not acted on.
func (s *Scheduler) cycleReversal(symbol string) (models.Verdict, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.reversals[symbol]
	if !ok || v.cycle != s.cycles.Load() || v.Direction == models.DirectionNeutral {
		return models.Verdict{}, false
	}
	return v.Verdict, true
}
