package gate

import (
	"fmt"
	"time"

	"fx-trader/internal/analysis"
	"fx-trader/internal/analysis/indicators"
	"fx-trader/internal/config"
	"fx-trader/internal/models"
)

// Env is what a veto may consult besides the candidate.
type Env struct {
	Config   *config.Config
	Sessions SessionChecker
	Input    *Input
}

// Veto is one rule in the chain. It can reject but never approve.
type Veto struct {
	Name  string
	Check func(env *Env, c *Candidate) (ok bool, reason string)
}

// DefaultVetoes returns the standard chain in precedence order.
func DefaultVetoes() []Veto {
	return []Veto{
		{Name: "kill_switch", Check: checkKillSwitch},
		{Name: "session", Check: checkSession},
		{Name: "bias", Check: checkBias},
		{Name: "momentum_alignment", Check: checkMomentum},
		{Name: "trend_conflict", Check: checkTrendConflict},
		{Name: "opposite_position", Check: checkOppositePosition},
		{Name: "concurrency", Check: checkConcurrency},
		{Name: "cooldown", Check: checkCooldown},
		{Name: "quality", Check: checkQuality},
		{Name: "rsi_range", Check: checkRSIRange},
	}
}

func checkKillSwitch(env *Env, _ *Candidate) (bool, string) {
	if !env.Input.Active || !env.Config.Agent.Enabled {
		return false, "agent not active"
	}
	return true, ""
}

func checkSession(env *Env, _ *Candidate) (bool, string) {
	if env.Sessions == nil {
		return true, ""
	}
	now := env.Input.Now
	if !env.Sessions.IsMarketOpen(now) {
		return false, "market closed"
	}
	if _, ok := env.Sessions.ActiveSession(now); !ok {
		return false, fmt.Sprintf("outside trading sessions at %s UTC", now.UTC().Format("15:04"))
	}
	return true, ""
}

func checkBias(_ *Env, c *Candidate) (bool, string) {
	if c.Direction == models.DirectionNeutral {
		return false, "no directional bias"
	}
	return true, ""
}

func checkMomentum(env *Env, c *Candidate) (bool, string) {
	g := env.Config.Gate
	return MomentumAligned(env.Input.EntryBars, c.Direction, g.MomentumLookback, g.ConsecutiveOverride)
}

// MomentumAligned rejects a direction that contradicts the majority of the
// last lookback candles. A run of consecutive opposing candles at the end
// rejects even when the majority agrees.
func MomentumAligned(bars []models.Bar, dir models.Direction, lookback, consecutive int) (bool, string) {
	if len(bars) == 0 {
		return false, "no bars for momentum check"
	}
	want := 1
	if dir == models.DirectionSell {
		want = -1
	}

	dirs := indicators.CandleDirections(bars, lookback)
	with, against := 0, 0
	for _, d := range dirs {
		switch d {
		case want:
			with++
		case -want:
			against++
		}
	}
	if against > with {
		return false, fmt.Sprintf("%s against candle majority (%d of %d opposing)", dir, against, len(dirs))
	}

	if consecutive > 0 && len(dirs) >= consecutive {
		run := 0
		for i := len(dirs) - 1; i >= 0 && dirs[i] == -want; i-- {
			run++
		}
		if run >= consecutive {
			return false, fmt.Sprintf("%s against %d consecutive opposing candles", dir, run)
		}
	}
	return true, ""
}

func checkTrendConflict(env *Env, c *Candidate) (bool, string) {
	trend, err := analysis.TrendOf(env.Input.TrendBars, 14)
	if err != nil {
		// Too little higher-timeframe history disqualifies the check, not the trade.
		return true, ""
	}
	if trend.Strong(env.Config.Gate.TrendStrengthADX) && trend.Direction == c.Direction.Opposite() {
		return false, fmt.Sprintf("higher timeframe trending %s (ADX %.1f)", trend.Direction, trend.ADX)
	}
	return true, ""
}

func checkOppositePosition(env *Env, c *Candidate) (bool, string) {
	side, _ := c.Direction.Side()
	for _, p := range env.Input.Positions {
		if p.Symbol == env.Input.Symbol && p.Side == side.Opposite() {
			return false, fmt.Sprintf("opposite %s position %s already open", p.Side, p.Ticket)
		}
	}
	return true, ""
}

func checkConcurrency(env *Env, _ *Candidate) (bool, string) {
	r := env.Config.Risk
	total, onSymbol := len(env.Input.Positions), 0
	for _, p := range env.Input.Positions {
		if p.Symbol == env.Input.Symbol {
			onSymbol++
		}
	}
	if total >= r.MaxConcurrentPositions {
		return false, fmt.Sprintf("%d positions open, limit %d", total, r.MaxConcurrentPositions)
	}
	if onSymbol >= r.MaxPositionsPerInstrument {
		return false, fmt.Sprintf("%d positions open on %s, limit %d", onSymbol, env.Input.Symbol, r.MaxPositionsPerInstrument)
	}
	return true, ""
}

func checkCooldown(env *Env, _ *Candidate) (bool, string) {
	g := env.Config.Gate
	in := env.Input

	if !in.LastEntry.IsZero() {
		if since := in.Now.Sub(in.LastEntry); since < g.EntryCooldown {
			return false, fmt.Sprintf("entry cooldown, %s remaining", (g.EntryCooldown - since).Round(time.Second))
		}
	}
	if !in.LastLoss.IsZero() {
		window := LossCooldown(g.LossCooldown, in.ConsecutiveLosses)
		if since := in.Now.Sub(in.LastLoss); since < window {
			return false, fmt.Sprintf("post-loss cooldown, %s remaining", (window - since).Round(time.Second))
		}
	}
	return true, ""
}

// LossCooldown scales the post-loss window with the losing streak, up to
// three times the base.
func LossCooldown(base time.Duration, consecutiveLosses int) time.Duration {
	n := min(max(consecutiveLosses, 1), 3)
	return base * time.Duration(n)
}

func checkQuality(env *Env, c *Candidate) (bool, string) {
	minimum := env.Config.Gate.MinConfidence
	if env.Config.IsReducedInstrument(env.Input.Symbol) {
		minimum = env.Config.Gate.ReducedMinConfidence
	}
	if c.Quality < minimum {
		return false, fmt.Sprintf("quality %.1f below minimum %.1f", c.Quality, minimum)
	}
	return true, ""
}

func checkRSIRange(env *Env, c *Candidate) (bool, string) {
	values, err := indicators.RSI(env.Input.EntryBars, 14)
	if err != nil {
		return false, "rsi unavailable"
	}
	rsi := indicators.Last(values)

	g := env.Config.Gate
	lo, hi := g.BuyRSIMin, g.BuyRSIMax
	if c.Direction == models.DirectionSell {
		lo, hi = g.SellRSIMin, g.SellRSIMax
	}
	if rsi < lo || rsi > hi {
		return false, fmt.Sprintf("rsi %.1f outside %s range [%.0f, %.0f]", rsi, c.Direction, lo, hi)
	}
	return true, ""
}
