package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"fx-trader/internal/analysis"
	"fx-trader/internal/audit"
	"fx-trader/internal/broker"
	"fx-trader/internal/config"
	"fx-trader/internal/gate"
	"fx-trader/internal/hedge"
	"fx-trader/internal/lifecycle"
	"fx-trader/internal/marketdata"
	"fx-trader/internal/models"
	"fx-trader/internal/notify"
	"fx-trader/internal/performance"
	"fx-trader/internal/resilience"
	"fx-trader/internal/risk"
	"fx-trader/internal/scheduler"
	"fx-trader/internal/security"
	"fx-trader/internal/store"
	"fx-trader/internal/stream"
)

const (
	expectancyWindow     = 50
	expectancyMinSamples = 10

	slowGateway      = 2 * time.Second
	streamStaleAfter = 5 * time.Minute
)

// AgentOptions replaces parts of the configured wiring.
type AgentOptions struct {
	// Gateway replaces the configured venue. A *broker.PaperGateway is
	// used directly as the paper venue.
	Gateway broker.Gateway
	// Store replaces the configured backend.
	Store store.Store
	// Notifier replaces the webhook notifier.
	Notifier notify.Notifier
	// Reversals replaces the bar-based reversal detector for hedging.
	Reversals hedge.ReversalSource
}

// Agent is the fully wired trading agent.
type Agent struct {
	Config      *config.Manager
	Instruments map[string]models.Instrument
	Store       store.Store
	Recorder    *audit.Recorder
	Gateway     broker.Gateway
	Paper       *broker.PaperGateway
	Cache       *marketdata.Cache
	Tracker     *lifecycle.Tracker
	Risk        *risk.Manager
	Hedger      *hedge.Monitor
	Switch      *scheduler.Switch
	Scheduler   *scheduler.Scheduler
	Health      *resilience.HealthMonitor
	Execution   *resilience.ExecutionQualityTracker

	hub      *stream.Hub
	streamer *broker.StreamClient
	breaker  *resilience.CircuitBreaker
	logger   zerolog.Logger
}

// NewAgent builds every component from the current configuration.
func NewAgent(ctx context.Context, mgr *config.Manager, logger zerolog.Logger, opts AgentOptions) (*Agent, error) {
	cfg := mgr.Current()

	insts, err := loadInstruments(cfg)
	if err != nil {
		return nil, err
	}

	st := opts.Store
	if st == nil {
		st, err = store.Open(ctx, cfg.Store, logger)
		if err != nil {
			return nil, fmt.Errorf("opening store: %w", err)
		}
	}
	safe := store.NewBestEffort(st, logger)

	notifier := opts.Notifier
	if notifier == nil {
		notifier = notify.NewMultiNotifier(cfg.Notifications)
	}
	auditCfg := audit.Config{}
	if cfg.Store.AuditFile != "" {
		auditCfg = audit.DefaultConfig(cfg.Store.AuditFile)
	}
	rec, err := audit.NewRecorder(auditCfg, safe, notifier, logger)
	if err != nil {
		st.Close()
		return nil, err
	}

	a := &Agent{
		Config:      mgr,
		Instruments: insts,
		Store:       st,
		Recorder:    rec,
		logger:      logger,
	}
	if err := a.buildGateway(cfg, opts.Gateway); err != nil {
		a.Close()
		return nil, err
	}

	a.Cache = marketdata.NewCache(marketdata.CacheConfig{
		TickTTL:  cfg.Agent.TickTTL,
		Capacity: cfg.Agent.BarCount,
		MinBars:  cfg.Agent.MinBars,
	})
	sessions := resilience.NewSessionClock(cfg.Gate.Sessions)
	cooldowns := gate.NewCooldowns()
	expectancy := performance.NewExpectancy(expectancyWindow, expectancyMinSamples)

	a.Switch = scheduler.NewSwitch(mgr, safe, rec, logger)
	a.Switch.SetSealer(security.SealerFromEnv())
	a.Tracker = lifecycle.NewTracker(mgr, a.Gateway, insts, rec, logger)
	a.Execution = resilience.NewExecutionQualityTracker(resilience.DefaultExecutionTrackerConfig())
	a.Execution.SetAlertCallback(func(al resilience.ExecutionAlert) {
		logger.Warn().Str("alert", string(al.Type)).Str("symbol", al.Symbol).Str("ticket", al.Ticket).Msg(al.Message)
	})
	a.Risk = risk.NewManager(mgr, a.Gateway, insts, a.Tracker, a.Switch, rec, logger,
		risk.WithScorer(expectancy), risk.WithExecutionTracker(a.Execution))
	scanner := scheduler.NewReversalScanner(mgr, a.Cache, insts)
	var reversals hedge.ReversalSource = scanner
	if opts.Reversals != nil {
		reversals = opts.Reversals
	}
	a.Hedger = hedge.NewMonitor(mgr, a.Tracker, a.Risk, a.Gateway, a.Cache, reversals, rec, logger)

	if cfg.Gateway.StreamURL != "" {
		a.hub = stream.NewHub()
		a.streamer = broker.NewStreamClient(broker.StreamClientConfig{
			URL:     cfg.Gateway.StreamURL,
			Token:   cfg.Gateway.Token,
			Symbols: cfg.Agent.Instruments,
			Logger:  logger,
		})
		if a.Paper != nil {
			a.hub.RegisterConsumer(a.Paper)
		}
		a.hub.RegisterConsumer(stream.ConsumerFunc(a.Cache.OnTick))
	}

	a.Scheduler, err = scheduler.New(scheduler.Deps{
		Config:       mgr,
		Gateway:      a.Gateway,
		Instruments:  insts,
		Cache:        a.Cache,
		Streaming:    a.hub != nil,
		Registry:     analysis.NewRegistry(),
		AnalysisDeps: analysis.Deps{Sessions: sessions, Logger: logger},
		Reversals:    scanner,
		Gate:         gate.New(mgr, sessions, logger, gate.DefaultVetoes()...),
		Cooldowns:    cooldowns,
		Risk:         a.Risk,
		Tracker:      a.Tracker,
		Hedger:       a.Hedger,
		Expectancy:   expectancy,
		Sessions:     sessions,
		Switch:       a.Switch,
		Signals:      rec,
		Sink:         rec,
		Logger:       logger,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	mgr.OnChange(a.Scheduler.OnConfigChange)
	a.buildHealth()
	return a, nil
}

func (a *Agent) buildHealth() {
	a.Health = resilience.NewHealthMonitor(resilience.DefaultHealthMonitorConfig())
	a.Health.RegisterComponent("gateway", resilience.APIHealthCheck(func(ctx context.Context) error {
		_, err := a.Gateway.GetAccountInfo(ctx)
		return err
	}, slowGateway))
	if a.breaker != nil {
		a.Health.RegisterComponent("circuit", resilience.BreakerHealthCheck(a.breaker))
	}
	if a.streamer != nil {
		a.Health.RegisterComponent("stream", resilience.StreamHealthCheck(a.streamer.IsConnected, a.streamer.LastMessage, streamStaleAfter))
	}
	a.Health.SetAlertCallback(func(h resilience.ComponentHealth) {
		a.logger.Warn().Str("component", h.Name).Str("status", string(h.Status)).Msg(h.Message)
	})
}

func (a *Agent) buildGateway(cfg *config.Config, override broker.Gateway) error {
	var venue broker.Gateway
	switch gw := override.(type) {
	case *broker.PaperGateway:
		a.Paper = gw
		a.Gateway = gw
		return nil
	case nil:
	default:
		venue = gw
	}

	if venue == nil && cfg.Gateway.BaseURL != "" {
		g := cfg.Gateway
		resilient := broker.NewResilient(broker.NewHTTPGateway(broker.HTTPGatewayConfig{
			BaseURL:   g.BaseURL,
			Token:     g.Token,
			Timeout:   g.Timeout,
			RateLimit: g.RateLimit,
			RateBurst: g.RateBurst,
			Logger:    a.logger,
		}), broker.ResilientConfig{
			Timeout:         g.Timeout,
			MaxRetries:      g.MaxRetries,
			InitialBackoff:  g.InitialBackoff,
			MaxBackoff:      g.MaxBackoff,
			BreakerFailures: g.BreakerFailures,
			BreakerCooldown: g.BreakerCooldown,
		}, a.logger)
		a.breaker = resilient.Breaker()
		venue = resilient
	}

	if cfg.IsPaperMode() {
		a.Paper = broker.NewPaperGateway(broker.PaperGatewayConfig{
			DataGateway:    venue,
			InitialBalance: cfg.Agent.PaperBalance,
			Instruments:    a.Instruments,
		})
		a.Gateway = a.Paper
		return nil
	}
	if venue == nil {
		return fmt.Errorf("gateway.base_url is required in %s mode", cfg.Agent.Mode)
	}
	a.Gateway = venue
	return nil
}

func loadInstruments(cfg *config.Config) (map[string]models.Instrument, error) {
	insts := config.DefaultInstruments()
	if cfg.Agent.InstrumentsFile != "" {
		loaded, err := config.LoadInstruments(cfg.Agent.InstrumentsFile)
		if err != nil {
			return nil, err
		}
		insts = loaded
	}
	for _, sym := range cfg.Agent.Instruments {
		if _, ok := insts[sym]; !ok {
			return nil, fmt.Errorf("instrument %s has no contract definition", sym)
		}
	}
	return insts, nil
}

// Run starts the price stream, if configured, and blocks in the
// scheduler until ctx is cancelled.
func (a *Agent) Run(ctx context.Context) error {
	if a.hub != nil {
		a.hub.Start(ctx, a.streamer, func(err error) {
			a.logger.Error().Err(err).Msg("Price stream stopped; falling back to polling")
		})
		defer a.hub.Stop()
	}
	a.Config.Watch()
	go a.Health.Run(ctx)
	return a.Scheduler.Run(ctx)
}

// StreamMetrics reports the price hub counters. ok is false when no price
// stream is configured.
func (a *Agent) StreamMetrics() (m stream.HubMetrics, ok bool) {
	if a.hub == nil {
		return stream.HubMetrics{}, false
	}
	return a.hub.Metrics(), true
}

// Close flushes the audit trail and closes the store.
func (a *Agent) Close() error {
	var first error
	if a.Recorder != nil {
		first = a.Recorder.Close()
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
