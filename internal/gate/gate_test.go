package gate

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fx-trader/internal/config"
	"fx-trader/internal/models"
)

var now = time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)

type openSessions struct{}

func (openSessions) IsMarketOpen(time.Time) bool { return true }
func (openSessions) ActiveSession(time.Time) (string, bool) { return "london", true }

type closedSessions struct{}

func (closedSessions) IsMarketOpen(time.Time) bool { return false }
func (closedSessions) ActiveSession(time.Time) (string, bool) { return "", false }

// permissive returns a config where only the rule under test can reject.
func permissive() *config.Config {
	cfg := config.Default()
	cfg.Agent.Enabled = true
	cfg.Gate.MinConfidence = 0
	cfg.Gate.ReducedMinConfidence = 0
	cfg.Gate.BuyRSIMin, cfg.Gate.BuyRSIMax = 0, 100
	cfg.Gate.SellRSIMin, cfg.Gate.SellRSIMax = 0, 100
	cfg.Gate.TrendStrengthADX = 101
	return cfg
}

func barsFromDirs(dirs []int) []models.Bar {
	bars := make([]models.Bar, len(dirs))
	price := 1.1
	for i, d := range dirs {
		open := price
		price += float64(d) * 0.0005
		bars[i] = models.Bar{
			Time:  now.Add(time.Duration(i-len(dirs)) * 5 * time.Minute),
			Open:  open,
			High:  max(open, price) + 0.0001,
			Low:   min(open, price) - 0.0001,
			Close: price,
		}
	}
	return bars
}

func trendBars(n, dir int) []models.Bar {
	dirs := make([]int, n)
	for i := range dirs {
		dirs[i] = dir
	}
	return barsFromDirs(dirs)
}

func verdicts(dir models.Direction) []models.Verdict {
	return []models.Verdict{
		{Analyzer: "structure", Direction: dir, Confidence: 80},
		{Analyzer: "confluence", Direction: dir, Confidence: 70},
		{Analyzer: "momentum", Direction: dir, Confidence: 60},
	}
}

func baseInput(dir models.Direction, barDir int) Input {
	return Input{
		Symbol:    "EURUSD",
		Now:       now,
		Active:    true,
		Verdicts:  verdicts(dir),
		EntryBars: trendBars(40, barDir),
		TrendBars: trendBars(60, barDir),
	}
}

func newGate(cfg *config.Config) *Gate {
	return New(config.NewStatic(cfg), openSessions{}, zerolog.Nop())
}

func TestApprovesAlignedBuy(t *testing.T) {
	d := newGate(permissive()).Evaluate(baseInput(models.DirectionBuy, 1))

	require.True(t, d.Approved, d.Reason)
	assert.Equal(t, models.DirectionBuy, d.Direction)
	assert.InDelta(t, 71.5, d.Quality, 1e-9)
	assert.Empty(t, d.ChecksFailed)
	assert.Equal(t, newGate(permissive()).Vetoes(), d.ChecksPassed)
	assert.False(t, d.Overridden)
}

func TestVetoOrder(t *testing.T) {
	tests := []struct {
		name   string
		cfg    func(*config.Config)
		input  func(*Input)
		gate   func(*config.Config) *Gate
		failed string
	}{
		{
			name:   "inactive agent",
			input:  func(in *Input) { in.Active = false },
			failed: "kill_switch",
		},
		{
			name:   "disabled in config",
			cfg:    func(c *config.Config) { c.Agent.Enabled = false },
			failed: "kill_switch",
		},
		{
			name: "outside session",
			gate: func(c *config.Config) *Gate {
				return New(config.NewStatic(c), closedSessions{}, zerolog.Nop())
			},
			failed: "session",
		},
		{
			name: "all neutral",
			input: func(in *Input) {
				in.Verdicts = []models.Verdict{models.Neutral("structure", "")}
			},
			failed: "bias",
		},
		{
			name:   "against candle majority",
			input:  func(in *Input) { in.EntryBars = trendBars(40, -1) },
			failed: "momentum_alignment",
		},
		{
			name:   "strong higher timeframe downtrend",
			cfg:    func(c *config.Config) { c.Gate.TrendStrengthADX = 25 },
			input:  func(in *Input) { in.TrendBars = trendBars(60, -1) },
			failed: "trend_conflict",
		},
		{
			name: "opposite position open",
			input: func(in *Input) {
				in.Positions = []models.ActivePosition{{Ticket: "1", Symbol: "EURUSD", Side: models.SideSell}}
			},
			failed: "opposite_position",
		},
		{
			name: "global cap reached",
			input: func(in *Input) {
				in.Positions = []models.ActivePosition{
					{Ticket: "1", Symbol: "GBPUSD", Side: models.SideBuy},
					{Ticket: "2", Symbol: "USDJPY", Side: models.SideBuy},
					{Ticket: "3", Symbol: "AUDUSD", Side: models.SideSell},
				}
			},
			failed: "concurrency",
		},
		{
			name: "per-instrument cap reached",
			input: func(in *Input) {
				in.Positions = []models.ActivePosition{{Ticket: "1", Symbol: "EURUSD", Side: models.SideBuy}}
			},
			failed: "concurrency",
		},
		{
			name:   "entry cooldown",
			input:  func(in *Input) { in.LastEntry = now.Add(-5 * time.Minute) },
			failed: "cooldown",
		},
		{
			name: "post-loss cooldown scaled by streak",
			input: func(in *Input) {
				in.LastLoss = now.Add(-45 * time.Minute)
				in.ConsecutiveLosses = 2
			},
			failed: "cooldown",
		},
		{
			name:   "quality below minimum",
			cfg:    func(c *config.Config) { c.Gate.MinConfidence = 80 },
			failed: "quality",
		},
		{
			name: "rsi overbought for buy",
			cfg: func(c *config.Config) {
				c.Gate.BuyRSIMin, c.Gate.BuyRSIMax = 40, 70
			},
			failed: "rsi_range",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := permissive()
			if tt.cfg != nil {
				tt.cfg(cfg)
			}
			in := baseInput(models.DirectionBuy, 1)
			if tt.input != nil {
				tt.input(&in)
			}
			g := newGate(cfg)
			if tt.gate != nil {
				g = tt.gate(cfg)
			}

			d := g.Evaluate(in)
			assert.False(t, d.Approved)
			assert.Equal(t, []string{tt.failed}, d.ChecksFailed)
			assert.NotEmpty(t, d.Reason)
			assert.NotContains(t, d.ChecksPassed, tt.failed)
		})
	}
}

func TestCooldownExpires(t *testing.T) {
	in := baseInput(models.DirectionBuy, 1)
	in.LastEntry = now.Add(-20 * time.Minute)
	in.LastLoss = now.Add(-31 * time.Minute)
	in.ConsecutiveLosses = 1

	d := newGate(permissive()).Evaluate(in)
	assert.True(t, d.Approved, d.Reason)
}

func TestReducedInstrumentMinimum(t *testing.T) {
	cfg := permissive()
	cfg.Gate.MinConfidence = 80
	cfg.Gate.ReducedMinConfidence = 60
	cfg.Gate.ReducedInstruments = []string{"eurusd"}

	d := newGate(cfg).Evaluate(baseInput(models.DirectionBuy, 1))
	assert.True(t, d.Approved, d.Reason)
}

func TestReversalOverride(t *testing.T) {
	g := newGate(permissive())

	// Buy proposal into falling candles; a strong sell reversal takes over.
	in := baseInput(models.DirectionBuy, -1)
	in.Reversal = &models.Verdict{Analyzer: "reversal", Direction: models.DirectionSell, Confidence: 80}
	d := g.Evaluate(in)
	require.True(t, d.Approved, d.Reason)
	assert.True(t, d.Overridden)
	assert.Equal(t, models.DirectionSell, d.Direction)
	assert.InDelta(t, 80, d.Quality, 1e-9)

	// Below the override threshold the proposal stands and fails momentum.
	in.Reversal = &models.Verdict{Analyzer: "reversal", Direction: models.DirectionSell, Confidence: 70}
	d = g.Evaluate(in)
	assert.False(t, d.Approved)
	assert.False(t, d.Overridden)
	assert.Equal(t, []string{"momentum_alignment"}, d.ChecksFailed)

	// An override never bypasses momentum alignment.
	in = baseInput(models.DirectionBuy, 1)
	in.Reversal = &models.Verdict{Analyzer: "reversal", Direction: models.DirectionSell, Confidence: 95}
	d = g.Evaluate(in)
	require.True(t, d.Approved, d.Reason)
	assert.False(t, d.Overridden)
	assert.Equal(t, models.DirectionBuy, d.Direction)
}

func TestMomentumAlignedConsecutiveOverride(t *testing.T) {
	bars := barsFromDirs([]int{1, 1, 1, 1, -1, -1, -1})

	ok, _ := MomentumAligned(bars, models.DirectionBuy, 7, 0)
	assert.True(t, ok)

	ok, reason := MomentumAligned(bars, models.DirectionBuy, 7, 3)
	assert.False(t, ok)
	assert.Contains(t, reason, "consecutive")

	ok, _ = MomentumAligned(bars, models.DirectionSell, 7, 3)
	assert.False(t, ok)
}

func TestPropose(t *testing.T) {
	c := Propose([]models.Verdict{models.Neutral("a", ""), models.Neutral("b", "")}, nil)
	assert.Equal(t, models.DirectionNeutral, c.Direction)

	c = Propose([]models.Verdict{
		{Analyzer: "structure", Direction: models.DirectionSell, Confidence: 90},
		{Analyzer: "momentum", Direction: models.DirectionBuy, Confidence: 90},
	}, map[string]float64{"structure": 0.6, "momentum": 0.4})
	assert.Equal(t, models.DirectionSell, c.Direction)
	assert.InDelta(t, 54, c.Quality, 1e-9)

	// Unweighted analyzers fall back to the default weight.
	c = Propose([]models.Verdict{{Analyzer: "llm", Direction: models.DirectionBuy, Confidence: 50}}, nil)
	assert.InDelta(t, 50, c.Quality, 1e-9)
}

func TestCooldowns(t *testing.T) {
	c := NewCooldowns()
	c.RecordEntry("EURUSD", now)
	c.RecordClose(models.ClosedTrade{Symbol: "EURUSD", Profit: -10, ClosedAt: now})
	c.RecordClose(models.ClosedTrade{Symbol: "GBPUSD", Profit: -5, ClosedAt: now})
	assert.Equal(t, 2, c.ConsecutiveLosses())

	in := Input{Symbol: "EURUSD"}
	c.Fill(&in)
	assert.Equal(t, now, in.LastEntry)
	assert.Equal(t, now, in.LastLoss)
	assert.Equal(t, 2, in.ConsecutiveLosses)

	c.RecordClose(models.ClosedTrade{Symbol: "GBPUSD", Profit: 12, ClosedAt: now})
	assert.Equal(t, 0, c.ConsecutiveLosses())

	assert.Equal(t, 30*time.Minute, LossCooldown(30*time.Minute, 0))
	assert.Equal(t, 90*time.Minute, LossCooldown(30*time.Minute, 7))
}

func TestProperty_NoOppositeExposure(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	cfg := permissive()
	cfg.Risk.MaxPositionsPerInstrument = 3
	g := newGate(cfg)

	dirGen := gen.OneConstOf(models.DirectionBuy, models.DirectionSell, models.DirectionNeutral)
	sideGen := gen.OneConstOf(models.SideBuy, models.SideSell)

	properties.Property("never approves against an open position on the same instrument", prop.ForAll(
		func(d1, d2, d3 models.Direction, c1, c2, c3 float64, open models.Side, barDirs []int, reversal models.Direction, revConf float64) bool {
			in := Input{
				Symbol: "EURUSD",
				Now:    now,
				Active: true,
				Verdicts: []models.Verdict{
					{Analyzer: "structure", Direction: d1, Confidence: c1},
					{Analyzer: "confluence", Direction: d2, Confidence: c2},
					{Analyzer: "momentum", Direction: d3, Confidence: c3},
				},
				Reversal:  &models.Verdict{Analyzer: "reversal", Direction: reversal, Confidence: revConf},
				EntryBars: barsFromDirs(barDirs),
				Positions: []models.ActivePosition{{Ticket: "7", Symbol: "EURUSD", Side: open}},
			}
			d := g.Evaluate(in)
			if !d.Approved {
				return true
			}
			return d.Direction != models.DirectionOf(open.Opposite())
		},
		dirGen, dirGen, dirGen,
		gen.Float64Range(0, 100), gen.Float64Range(0, 100), gen.Float64Range(0, 100),
		sideGen,
		gen.SliceOfN(30, gen.IntRange(-1, 1)),
		dirGen,
		gen.Float64Range(0, 100),
	))

	properties.TestingRun(t)
}
