// Package config provides configuration management for the trading agent.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"fx-trader/internal/errors"
)

// Config holds all application configuration.
type Config struct {
	Agent         AgentConfig        `mapstructure:"agent"`
	Gateway       GatewayConfig      `mapstructure:"gateway"`
	Risk          RiskConfig         `mapstructure:"risk"`
	Gate          GateConfig         `mapstructure:"gate"`
	Lifecycle     LifecycleConfig    `mapstructure:"lifecycle"`
	Hedge         HedgeConfig        `mapstructure:"hedge"`
	Analyzers     AnalyzersConfig    `mapstructure:"analyzers"`
	Store         StoreConfig        `mapstructure:"store"`
	Logging       LoggingConfig      `mapstructure:"logging"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	Profiling     ProfilingConfig    `mapstructure:"profiling"`
}

// AgentConfig holds scheduler and basket configuration.
type AgentConfig struct {
	Enabled            bool          `mapstructure:"enabled"`
	Mode               string        `mapstructure:"mode"` // live, demo, paper
	Instruments        []string      `mapstructure:"instruments"`
	InstrumentsFile    string        `mapstructure:"instruments_file"`
	TickInterval       time.Duration `mapstructure:"tick_interval"`
	BarRefreshInterval time.Duration `mapstructure:"bar_refresh_interval"`
	TickTTL            time.Duration `mapstructure:"tick_ttl"`
	PriceEpsilonPips   float64       `mapstructure:"price_epsilon_pips"`
	EntryTimeframe     string        `mapstructure:"entry_timeframe"`
	TrendTimeframe     string        `mapstructure:"trend_timeframe"`
	BarCount           int           `mapstructure:"bar_count"`
	MinBars            int           `mapstructure:"min_bars"`
	Workers            int           `mapstructure:"workers"`
	PaperBalance       float64       `mapstructure:"paper_balance"`
}

// GatewayConfig holds broker gateway connection settings.
type GatewayConfig struct {
	BaseURL         string        `mapstructure:"base_url"`
	Token           string        `mapstructure:"token"`
	StreamURL       string        `mapstructure:"stream_url"`
	Timeout         time.Duration `mapstructure:"timeout"`
	MaxRetries      int           `mapstructure:"max_retries"`
	InitialBackoff  time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff      time.Duration `mapstructure:"max_backoff"`
	RateLimit       float64       `mapstructure:"rate_limit"`
	RateBurst       int           `mapstructure:"rate_burst"`
	BreakerFailures int           `mapstructure:"breaker_failures"`
	BreakerCooldown time.Duration `mapstructure:"breaker_cooldown"`
}

// RiskConfig holds risk management configuration.
type RiskConfig struct {
	RiskPerTradePercent       float64           `mapstructure:"risk_per_trade_percent"`
	DailyLossCapPercent       float64           `mapstructure:"daily_loss_cap_percent"`
	MaxDrawdownPercent        float64           `mapstructure:"max_drawdown_percent"`
	MaxConcurrentPositions    int               `mapstructure:"max_concurrent_positions"`
	MaxPositionsPerInstrument int               `mapstructure:"max_positions_per_instrument"`
	MaxDailyTrades            int               `mapstructure:"max_daily_trades"` // 0 disables the cap
	MinBalance                float64           `mapstructure:"min_balance"`
	MinMarginLevel            float64           `mapstructure:"min_margin_level"`
	MaxLeverage               float64           `mapstructure:"max_leverage"`
	MaxMarginPerTradePercent  float64           `mapstructure:"max_margin_per_trade_percent"`
	MaxFreeMarginUsagePercent float64           `mapstructure:"max_free_margin_usage_percent"`
	MinLot                    float64           `mapstructure:"min_lot"`
	MaxLot                    float64           `mapstructure:"max_lot"`
	LotsPerThousandEquity     float64           `mapstructure:"lots_per_thousand_equity"`
	MinStopPips               float64           `mapstructure:"min_stop_pips"`
	MaxStopPips               float64           `mapstructure:"max_stop_pips"`
	DefaultStopPips           float64           `mapstructure:"default_stop_pips"`
	RewardRatio               float64           `mapstructure:"reward_ratio"`
	LiveConservatism          float64           `mapstructure:"live_conservatism"`
	DemoConservatism          float64           `mapstructure:"demo_conservatism"`
	OrderCooldown             time.Duration     `mapstructure:"order_cooldown"`
	RegimeBoost               RegimeBoostConfig `mapstructure:"regime_boost"`
}

// RegimeBoostConfig controls expectancy-driven size increases.
type RegimeBoostConfig struct {
	Enabled         bool    `mapstructure:"enabled"`
	Threshold       float64 `mapstructure:"threshold"`
	FullScore       float64 `mapstructure:"full_score"`
	MinBoostPercent float64 `mapstructure:"min_boost_percent"`
	MaxBoostPercent float64 `mapstructure:"max_boost_percent"`
}

// SessionWindow is a UTC trading window, "HH:MM" to "HH:MM".
type SessionWindow struct {
	Name  string `mapstructure:"name"`
	Start string `mapstructure:"start"`
	End   string `mapstructure:"end"`
}

// GateConfig holds Decision Gate thresholds.
type GateConfig struct {
	MinConfidence              float64            `mapstructure:"min_confidence"`
	ReducedMinConfidence       float64            `mapstructure:"reduced_min_confidence"`
	ReducedInstruments         []string           `mapstructure:"reduced_instruments"`
	Sessions                   []SessionWindow    `mapstructure:"sessions"`
	MomentumLookback           int                `mapstructure:"momentum_lookback"`
	ConsecutiveOverride        int                `mapstructure:"consecutive_override"`
	TrendStrengthADX           float64            `mapstructure:"trend_strength_adx"`
	EntryCooldown              time.Duration      `mapstructure:"entry_cooldown"`
	LossCooldown               time.Duration      `mapstructure:"loss_cooldown"`
	ReversalOverrideConfidence float64            `mapstructure:"reversal_override_confidence"`
	BuyRSIMin                  float64            `mapstructure:"buy_rsi_min"`
	BuyRSIMax                  float64            `mapstructure:"buy_rsi_max"`
	SellRSIMin                 float64            `mapstructure:"sell_rsi_min"`
	SellRSIMax                 float64            `mapstructure:"sell_rsi_max"`
	Weights                    map[string]float64 `mapstructure:"weights"`
}

// LifecycleConfig holds position management thresholds.
type LifecycleConfig struct {
	BreakEvenTriggerR      float64       `mapstructure:"break_even_trigger_r"`
	BreakEvenBufferPips    float64       `mapstructure:"break_even_buffer_pips"`
	TrailingTriggerR       float64       `mapstructure:"trailing_trigger_r"`
	TrailingBufferPips     float64       `mapstructure:"trailing_buffer_pips"`
	TrailingStepR          float64       `mapstructure:"trailing_step_r"`
	PartialProfitAmount    float64       `mapstructure:"partial_profit_amount"`
	MaxHold                time.Duration `mapstructure:"max_hold"`
	ReversalExitConfidence float64       `mapstructure:"reversal_exit_confidence"`
}

// HedgeConfig holds hedging monitor thresholds. Excursions are fractions of the risk distance.
type HedgeConfig struct {
	Enabled              bool          `mapstructure:"enabled"`
	Interval             time.Duration `mapstructure:"interval"`
	TriggerExcursion     float64       `mapstructure:"trigger_excursion"`
	ReversalConfidence   float64       `mapstructure:"reversal_confidence"`
	Ratio                float64       `mapstructure:"ratio"`
	MaxHedgesPerPosition int           `mapstructure:"max_hedges_per_position"`
	StopFraction         float64       `mapstructure:"stop_fraction"`
	TargetFraction       float64       `mapstructure:"target_fraction"`
	ForcedExitExcursion  float64       `mapstructure:"forced_exit_excursion"`
	RecoveryExcursion    float64       `mapstructure:"recovery_excursion"`
}

// AnalyzersConfig selects the registered analyzers.
type AnalyzersConfig struct {
	Enabled []string   `mapstructure:"enabled"`
	Stub    StubConfig `mapstructure:"stub"`
	LLM     LLMConfig  `mapstructure:"llm"`
}

// StubConfig configures the seeded stand-in analyzer.
type StubConfig struct {
	Enabled bool  `mapstructure:"enabled"`
	Seed    int64 `mapstructure:"seed"`
}

// LLMConfig configures the optional language-model sentiment analyzer.
type LLMConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Model   string        `mapstructure:"model"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// StoreConfig selects and configures the persistence backend.
type StoreConfig struct {
	Backend       string `mapstructure:"backend"` // sqlite, redis, postgres
	Path          string `mapstructure:"path"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	RedisPrefix   string `mapstructure:"redis_prefix"`
	PostgresDSN   string `mapstructure:"postgres_dsn"`
	AuditFile     string `mapstructure:"audit_file"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level    string `mapstructure:"level"`
	Console  bool   `mapstructure:"console"`
	File     bool   `mapstructure:"file"`
	FilePath string `mapstructure:"file_path"`
}

// NotificationConfig holds notification configuration.
type NotificationConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	WebhookURL string `mapstructure:"webhook_url"`
	Level      string `mapstructure:"level"` // all, trades_only, errors_only
}

// ProfilingConfig holds continuous profiling configuration.
type ProfilingConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	ServerAddress string `mapstructure:"server_address"`
	AppName       string `mapstructure:"app_name"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/fx-trader"
	}
	return filepath.Join(home, ".config", "fx-trader")
}

// Default returns the built-in conservative configuration.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		// defaults are static; failing here is a programming error
		panic(fmt.Sprintf("decoding default config: %v", err))
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	configDir := DefaultConfigDir()

	v.SetDefault("agent.enabled", false)
	v.SetDefault("agent.mode", "paper")
	v.SetDefault("agent.instruments", []string{"EURUSD", "GBPUSD", "USDJPY"})
	v.SetDefault("agent.instruments_file", "")
	v.SetDefault("agent.tick_interval", time.Second)
	v.SetDefault("agent.bar_refresh_interval", 30*time.Second)
	v.SetDefault("agent.tick_ttl", 10*time.Second)
	v.SetDefault("agent.price_epsilon_pips", 0.1)
	v.SetDefault("agent.entry_timeframe", "M5")
	v.SetDefault("agent.trend_timeframe", "H1")
	v.SetDefault("agent.bar_count", 200)
	v.SetDefault("agent.min_bars", 50)
	v.SetDefault("agent.workers", 4)
	v.SetDefault("agent.paper_balance", 10000.0)

	v.SetDefault("gateway.base_url", "http://127.0.0.1:5000")
	v.SetDefault("gateway.token", "")
	v.SetDefault("gateway.stream_url", "")
	v.SetDefault("gateway.timeout", 5*time.Second)
	v.SetDefault("gateway.max_retries", 3)
	v.SetDefault("gateway.initial_backoff", 200*time.Millisecond)
	v.SetDefault("gateway.max_backoff", 2*time.Second)
	v.SetDefault("gateway.rate_limit", 20.0)
	v.SetDefault("gateway.rate_burst", 40)
	v.SetDefault("gateway.breaker_failures", 5)
	v.SetDefault("gateway.breaker_cooldown", 30*time.Second)

	v.SetDefault("risk.risk_per_trade_percent", 1.0)
	v.SetDefault("risk.daily_loss_cap_percent", 5.0)
	v.SetDefault("risk.max_drawdown_percent", 10.0)
	v.SetDefault("risk.max_concurrent_positions", 3)
	v.SetDefault("risk.max_daily_trades", 20)
	v.SetDefault("risk.max_positions_per_instrument", 1)
	v.SetDefault("risk.min_balance", 100.0)
	v.SetDefault("risk.min_margin_level", 200.0)
	v.SetDefault("risk.max_leverage", 30.0)
	v.SetDefault("risk.max_margin_per_trade_percent", 20.0)
	v.SetDefault("risk.max_free_margin_usage_percent", 50.0)
	v.SetDefault("risk.min_lot", 0.01)
	v.SetDefault("risk.max_lot", 1.0)
	v.SetDefault("risk.lots_per_thousand_equity", 0.5)
	v.SetDefault("risk.min_stop_pips", 5.0)
	v.SetDefault("risk.max_stop_pips", 100.0)
	v.SetDefault("risk.default_stop_pips", 20.0)
	v.SetDefault("risk.reward_ratio", 2.0)
	v.SetDefault("risk.live_conservatism", 0.5)
	v.SetDefault("risk.demo_conservatism", 1.0)
	v.SetDefault("risk.order_cooldown", time.Minute)
	v.SetDefault("risk.regime_boost.enabled", false)
	v.SetDefault("risk.regime_boost.threshold", 0.3)
	v.SetDefault("risk.regime_boost.full_score", 1.0)
	v.SetDefault("risk.regime_boost.min_boost_percent", 5.0)
	v.SetDefault("risk.regime_boost.max_boost_percent", 25.0)

	v.SetDefault("gate.min_confidence", 60.0)
	v.SetDefault("gate.reduced_min_confidence", 50.0)
	v.SetDefault("gate.reduced_instruments", []string{})
	v.SetDefault("gate.sessions", []map[string]interface{}{
		{"name": "london", "start": "07:00", "end": "11:00"},
		{"name": "new_york", "start": "12:00", "end": "16:00"},
	})
	v.SetDefault("gate.momentum_lookback", 5)
	v.SetDefault("gate.consecutive_override", 3)
	v.SetDefault("gate.trend_strength_adx", 25.0)
	v.SetDefault("gate.entry_cooldown", 15*time.Minute)
	v.SetDefault("gate.loss_cooldown", 30*time.Minute)
	v.SetDefault("gate.reversal_override_confidence", 75.0)
	v.SetDefault("gate.buy_rsi_min", 40.0)
	v.SetDefault("gate.buy_rsi_max", 70.0)
	v.SetDefault("gate.sell_rsi_min", 30.0)
	v.SetDefault("gate.sell_rsi_max", 60.0)
	v.SetDefault("gate.weights", map[string]float64{
		"structure":  0.40,
		"confluence": 0.35,
		"momentum":   0.25,
	})

	v.SetDefault("lifecycle.break_even_trigger_r", 0.25)
	v.SetDefault("lifecycle.break_even_buffer_pips", 1.0)
	v.SetDefault("lifecycle.trailing_trigger_r", 1.0)
	v.SetDefault("lifecycle.trailing_buffer_pips", 10.0)
	v.SetDefault("lifecycle.trailing_step_r", 0.25)
	v.SetDefault("lifecycle.partial_profit_amount", 50.0)
	v.SetDefault("lifecycle.max_hold", time.Duration(0))
	v.SetDefault("lifecycle.reversal_exit_confidence", 80.0)

	v.SetDefault("hedge.enabled", true)
	v.SetDefault("hedge.interval", 5*time.Second)
	v.SetDefault("hedge.trigger_excursion", 0.05)
	v.SetDefault("hedge.reversal_confidence", 40.0)
	v.SetDefault("hedge.ratio", 0.5)
	v.SetDefault("hedge.max_hedges_per_position", 2)
	v.SetDefault("hedge.stop_fraction", 0.5)
	v.SetDefault("hedge.target_fraction", 1.0)
	v.SetDefault("hedge.forced_exit_excursion", 0.9)
	v.SetDefault("hedge.recovery_excursion", 0.02)

	v.SetDefault("analyzers.enabled", []string{"structure", "confluence", "momentum"})
	v.SetDefault("analyzers.stub.enabled", false)
	v.SetDefault("analyzers.stub.seed", 42)
	v.SetDefault("analyzers.llm.enabled", false)
	v.SetDefault("analyzers.llm.model", "gpt-4o-mini")
	v.SetDefault("analyzers.llm.api_key", "")
	v.SetDefault("analyzers.llm.timeout", 10*time.Second)

	v.SetDefault("store.backend", "sqlite")
	v.SetDefault("store.path", filepath.Join(configDir, "agent.db"))
	v.SetDefault("store.redis_addr", "localhost:6379")
	v.SetDefault("store.redis_password", "")
	v.SetDefault("store.redis_db", 0)
	v.SetDefault("store.redis_prefix", "fxt:")
	v.SetDefault("store.postgres_dsn", "")
	v.SetDefault("store.audit_file", filepath.Join(configDir, "audit", "audit.jsonl"))

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.console", true)
	v.SetDefault("logging.file", true)
	v.SetDefault("logging.file_path", filepath.Join(configDir, "logs", "agent.log"))

	v.SetDefault("notifications.enabled", false)
	v.SetDefault("notifications.webhook_url", "")
	v.SetDefault("notifications.level", "all")

	v.SetDefault("profiling.enabled", false)
	v.SetDefault("profiling.server_address", "http://localhost:4040")
	v.SetDefault("profiling.app_name", "fx-trader")
}

func applyEnvOverrides(v *viper.Viper) {
	if val := os.Getenv("FXT_GATEWAY_URL"); val != "" {
		v.Set("gateway.base_url", val)
	}
	if val := os.Getenv("FXT_GATEWAY_TOKEN"); val != "" {
		v.Set("gateway.token", val)
	}
	if val := os.Getenv("FXT_MODE"); val != "" {
		v.Set("agent.mode", val)
	}
	if val := os.Getenv("OPENAI_API_KEY"); val != "" {
		v.Set("analyzers.llm.api_key", val)
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch c.Agent.Mode {
	case "live", "demo", "paper":
	default:
		return errors.NewValidationError("agent.mode", c.Agent.Mode, "must be live, demo or paper")
	}
	if len(c.Agent.Instruments) == 0 {
		return errors.NewValidationError("agent.instruments", c.Agent.Instruments, "at least one instrument is required")
	}
	if c.Agent.TickInterval <= 0 {
		return errors.NewValidationError("agent.tick_interval", c.Agent.TickInterval, "must be positive")
	}
	if c.Agent.BarRefreshInterval < c.Agent.TickInterval {
		return errors.NewValidationError("agent.bar_refresh_interval", c.Agent.BarRefreshInterval, "must not be shorter than tick_interval")
	}
	if c.Agent.MinBars <= 0 || c.Agent.MinBars > c.Agent.BarCount {
		return errors.NewValidationError("agent.min_bars", c.Agent.MinBars, "must be in (0, bar_count]")
	}

	r := c.Risk
	if r.RiskPerTradePercent <= 0 || r.RiskPerTradePercent > 10 {
		return errors.NewValidationError("risk.risk_per_trade_percent", r.RiskPerTradePercent, "must be in (0, 10]")
	}
	if r.DailyLossCapPercent <= 0 || r.DailyLossCapPercent > 100 {
		return errors.NewValidationError("risk.daily_loss_cap_percent", r.DailyLossCapPercent, "must be in (0, 100]")
	}
	if r.MaxDrawdownPercent <= 0 || r.MaxDrawdownPercent > 100 {
		return errors.NewValidationError("risk.max_drawdown_percent", r.MaxDrawdownPercent, "must be in (0, 100]")
	}
	if r.MaxConcurrentPositions <= 0 {
		return errors.NewValidationError("risk.max_concurrent_positions", r.MaxConcurrentPositions, "must be positive")
	}
	if r.MaxPositionsPerInstrument <= 0 || r.MaxPositionsPerInstrument > r.MaxConcurrentPositions {
		return errors.NewValidationError("risk.max_positions_per_instrument", r.MaxPositionsPerInstrument, "must be in (0, max_concurrent_positions]")
	}
	if r.MaxDailyTrades < 0 {
		return errors.NewValidationError("risk.max_daily_trades", r.MaxDailyTrades, "must not be negative")
	}
	if r.MinLot <= 0 || r.MinLot > r.MaxLot {
		return errors.NewValidationError("risk.min_lot", r.MinLot, "must be positive and not exceed max_lot")
	}
	if r.MinStopPips <= 0 || r.MinStopPips > r.MaxStopPips {
		return errors.NewValidationError("risk.min_stop_pips", r.MinStopPips, "must be positive and not exceed max_stop_pips")
	}
	if r.DefaultStopPips < r.MinStopPips || r.DefaultStopPips > r.MaxStopPips {
		return errors.NewValidationError("risk.default_stop_pips", r.DefaultStopPips, "must be within [min_stop_pips, max_stop_pips]")
	}
	if r.LiveConservatism <= 0 || r.LiveConservatism > 1 || r.DemoConservatism <= 0 || r.DemoConservatism > 1 {
		return errors.NewValidationError("risk.conservatism", r.LiveConservatism, "multipliers must be in (0, 1]")
	}
	if r.MaxMarginPerTradePercent <= 0 || r.MaxMarginPerTradePercent > 100 {
		return errors.NewValidationError("risk.max_margin_per_trade_percent", r.MaxMarginPerTradePercent, "must be in (0, 100]")
	}
	if r.MaxFreeMarginUsagePercent <= 0 || r.MaxFreeMarginUsagePercent > 100 {
		return errors.NewValidationError("risk.max_free_margin_usage_percent", r.MaxFreeMarginUsagePercent, "must be in (0, 100]")
	}
	if b := r.RegimeBoost; b.Enabled {
		if b.MinBoostPercent < 0 || b.MinBoostPercent > b.MaxBoostPercent {
			return errors.NewValidationError("risk.regime_boost.min_boost_percent", b.MinBoostPercent, "must be in [0, max_boost_percent]")
		}
		if b.FullScore <= b.Threshold {
			return errors.NewValidationError("risk.regime_boost.full_score", b.FullScore, "must exceed threshold")
		}
	}

	g := c.Gate
	if g.MinConfidence < 0 || g.MinConfidence > 100 {
		return errors.NewValidationError("gate.min_confidence", g.MinConfidence, "must be between 0 and 100")
	}
	if g.ReducedMinConfidence < 0 || g.ReducedMinConfidence > g.MinConfidence {
		return errors.NewValidationError("gate.reduced_min_confidence", g.ReducedMinConfidence, "must be in [0, min_confidence]")
	}
	if g.BuyRSIMin > g.BuyRSIMax || g.SellRSIMin > g.SellRSIMax {
		return errors.NewValidationError("gate.rsi", fmt.Sprintf("buy %v-%v sell %v-%v", g.BuyRSIMin, g.BuyRSIMax, g.SellRSIMin, g.SellRSIMax), "min must not exceed max")
	}
	if g.MomentumLookback <= 0 {
		return errors.NewValidationError("gate.momentum_lookback", g.MomentumLookback, "must be positive")
	}
	for _, s := range g.Sessions {
		if _, _, err := ParseSessionWindow(s); err != nil {
			return err
		}
	}

	l := c.Lifecycle
	if l.BreakEvenTriggerR <= 0 || l.TrailingTriggerR < l.BreakEvenTriggerR {
		return errors.NewValidationError("lifecycle.trailing_trigger_r", l.TrailingTriggerR, "must be positive and not below break_even_trigger_r")
	}

	h := c.Hedge
	if h.Enabled {
		if h.Ratio <= 0 || h.Ratio > 1 {
			return errors.NewValidationError("hedge.ratio", h.Ratio, "must be in (0, 1]")
		}
		if !(h.RecoveryExcursion < h.TriggerExcursion && h.TriggerExcursion < h.ForcedExitExcursion) {
			return errors.NewValidationError("hedge.trigger_excursion", h.TriggerExcursion, "must satisfy recovery < trigger < forced_exit")
		}
		if h.MaxHedgesPerPosition <= 0 {
			return errors.NewValidationError("hedge.max_hedges_per_position", h.MaxHedgesPerPosition, "must be positive")
		}
		if h.Interval <= 0 {
			return errors.NewValidationError("hedge.interval", h.Interval, "must be positive")
		}
	}

	switch c.Store.Backend {
	case "sqlite", "redis", "postgres", "memory":
	default:
		return errors.NewValidationError("store.backend", c.Store.Backend, "must be sqlite, redis, postgres or memory")
	}
	if c.Store.Backend == "postgres" && c.Store.PostgresDSN == "" {
		return errors.NewValidationError("store.postgres_dsn", "", "required for the postgres backend")
	}

	return nil
}

// IsPaperMode returns true if paper trading mode is enabled.
func (c *Config) IsPaperMode() bool {
	return c.Agent.Mode == "paper"
}

// IsLive returns true when trading real money.
func (c *Config) IsLive() bool {
	return c.Agent.Mode == "live"
}

// IsReducedInstrument reports whether the symbol uses the relaxed confidence minimum.
func (c *Config) IsReducedInstrument(symbol string) bool {
	for _, s := range c.Gate.ReducedInstruments {
		if strings.EqualFold(s, symbol) {
			return true
		}
	}
	return false
}

// ParseSessionWindow parses a window's bounds into minutes since UTC midnight.
func ParseSessionWindow(s SessionWindow) (start, end int, err error) {
	start, err = parseClock(s.Start)
	if err != nil {
		return 0, 0, errors.NewValidationError("gate.sessions."+s.Name+".start", s.Start, err.Error())
	}
	end, err = parseClock(s.End)
	if err != nil {
		return 0, 0, errors.NewValidationError("gate.sessions."+s.Name+".end", s.End, err.Error())
	}
	return start, end, nil
}

func parseClock(v string) (int, error) {
	t, err := time.Parse("15:04", v)
	if err != nil {
		return 0, fmt.Errorf("expected HH:MM")
	}
	return t.Hour()*60 + t.Minute(), nil
}
