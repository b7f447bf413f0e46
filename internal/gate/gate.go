// Package gate turns analyzer verdicts into a trade decision. It applies
// an ordered chain of veto rules; the first failing rule rejects the
// candidate and later rules are not consulted. The gate never talks to
// the gateway.
package gate

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"fx-trader/internal/config"
	"fx-trader/internal/logging"
	"fx-trader/internal/models"
)

// defaultWeight applies to analyzers without a configured weight.
const defaultWeight = 0.2

// SessionChecker reports market hours and active trading sessions.
type SessionChecker interface {
	IsMarketOpen(t time.Time) bool
	ActiveSession(t time.Time) (string, bool)
}

// Input is everything the gate looks at for one instrument in one cycle.
type Input struct {
	Symbol   string
	Now      time.Time
	Active   bool
	Verdicts []models.Verdict

	// Reversal is the independently detected reversal signal, if any.
	Reversal *models.Verdict

	EntryBars []models.Bar
	TrendBars []models.Bar

	// Positions are the open, non-hedge positions across all instruments.
	Positions []models.ActivePosition

	LastEntry         time.Time
	LastLoss          time.Time
	ConsecutiveLosses int
}

// Candidate is the proposal under evaluation.
type Candidate struct {
	Direction  models.Direction
	Quality    float64
	Overridden bool
}

// Gate evaluates candidates against an ordered veto chain.
type Gate struct {
	cfg      config.Provider
	sessions SessionChecker
	vetoes   []Veto
	logger   zerolog.Logger
}

// New creates a gate. With no vetoes the default chain is used.
func New(cfg config.Provider, sessions SessionChecker, logger zerolog.Logger, vetoes ...Veto) *Gate {
	if len(vetoes) == 0 {
		vetoes = DefaultVetoes()
	}
	return &Gate{
		cfg:      cfg,
		sessions: sessions,
		vetoes:   vetoes,
		logger:   logging.WithComponent(logger, "gate"),
	}
}

// Register appends a veto to the end of the chain.
func (g *Gate) Register(v Veto) {
	g.vetoes = append(g.vetoes, v)
}

// Vetoes returns the names of the chain in evaluation order.
func (g *Gate) Vetoes() []string {
	names := make([]string, len(g.vetoes))
	for i, v := range g.vetoes {
		names[i] = v.Name
	}
	return names
}

// Evaluate runs the chain for one instrument.
func (g *Gate) Evaluate(in Input) models.Decision {
	cfg := g.cfg.Current()
	if in.Now.IsZero() {
		in.Now = time.Now()
	}

	cand := Propose(in.Verdicts, cfg.Gate.Weights)
	if ok, why := g.reversalOverride(cfg, in, cand); ok {
		cand = Candidate{Direction: in.Reversal.Direction, Quality: in.Reversal.Confidence, Overridden: true}
		g.logger.Info().
			Str("symbol", in.Symbol).
			Str("direction", string(cand.Direction)).
			Float64("confidence", cand.Quality).
			Msg(why)
	}

	d := models.Decision{
		Symbol:       in.Symbol,
		Direction:    cand.Direction,
		Quality:      cand.Quality,
		Overridden:   cand.Overridden,
		ChecksPassed: []string{},
		ChecksFailed: []string{},
		Verdicts:     in.Verdicts,
		Timestamp:    in.Now,
	}

	env := &Env{Config: cfg, Sessions: g.sessions, Input: &in}
	for _, v := range g.vetoes {
		if ok, reason := v.Check(env, &cand); !ok {
			d.ChecksFailed = append(d.ChecksFailed, v.Name)
			d.Reason = reason
			logging.LogRejection(g.logger, in.Symbol, "gate", v.Name, reason)
			return d
		}
		d.ChecksPassed = append(d.ChecksPassed, v.Name)
	}

	d.Approved = true
	d.Reason = fmt.Sprintf("%s quality %.1f passed %s", cand.Direction, cand.Quality, strings.Join(d.ChecksPassed, ","))
	return d
}

// reversalOverride reports whether the reversal signal replaces the
// proposal. The replacement must pass momentum alignment by itself.
func (g *Gate) reversalOverride(cfg *config.Config, in Input, cand Candidate) (bool, string) {
	r := in.Reversal
	if r == nil || cand.Direction == models.DirectionNeutral {
		return false, ""
	}
	if r.Direction != cand.Direction.Opposite() || r.Confidence < cfg.Gate.ReversalOverrideConfidence {
		return false, ""
	}
	if ok, _ := MomentumAligned(in.EntryBars, r.Direction, cfg.Gate.MomentumLookback, cfg.Gate.ConsecutiveOverride); !ok {
		return false, ""
	}
	return true, "Reversal override"
}

// Propose combines verdicts into a direction and a weighted quality in
// [0, 100]. Neutral verdicts count toward the weight total, so abstaining
// analyzers dilute the quality.
func Propose(verdicts []models.Verdict, weights map[string]float64) Candidate {
	var buy, sell, total float64
	for _, v := range verdicts {
		w, ok := weights[v.Analyzer]
		if !ok {
			w = defaultWeight
		}
		total += w
		switch v.Direction {
		case models.DirectionBuy:
			buy += w * v.Confidence
		case models.DirectionSell:
			sell += w * v.Confidence
		}
	}
	if total == 0 || buy == sell {
		return Candidate{Direction: models.DirectionNeutral}
	}
	if buy > sell {
		return Candidate{Direction: models.DirectionBuy, Quality: buy / total}
	}
	return Candidate{Direction: models.DirectionSell, Quality: sell / total}
}
