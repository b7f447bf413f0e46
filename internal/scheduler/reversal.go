package scheduler

import (
	"time"

	"fx-trader/internal/analysis"
	"fx-trader/internal/config"
	"fx-trader/internal/marketdata"
	"fx-trader/internal/models"
)

// ReversalScanner runs reversal detection over cached market data. The
// tick cycle and the hedge monitor share one.
type ReversalScanner struct {
	cfg         config.Provider
	cache       *marketdata.Cache
	instruments map[string]models.Instrument
	detector    *analysis.ReversalDetector
	now         func() time.Time
}

// NewReversalScanner creates a scanner.
func NewReversalScanner(cfg config.Provider, cache *marketdata.Cache, instruments map[string]models.Instrument) *ReversalScanner {
	return &ReversalScanner{
		cfg:         cfg,
		cache:       cache,
		instruments: instruments,
		detector:    analysis.NewReversalDetector(),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Input builds the analyzer input for inst at tick from the cached windows.
func (r *ReversalScanner) Input(cfg *config.Config, inst models.Instrument, tick models.Tick) (analysis.Input, error) {
	entryTF := models.Timeframe(cfg.Agent.EntryTimeframe)
	trendTF := models.Timeframe(cfg.Agent.TrendTimeframe)

	entry, err := r.cache.Bars(inst.Symbol, entryTF)
	if err != nil {
		return analysis.Input{}, err
	}
	trend, err := r.cache.Bars(inst.Symbol, trendTF)
	if err != nil {
		return analysis.Input{}, err
	}
	return analysis.Input{
		Symbol:     inst.Symbol,
		Instrument: inst,
		Tick:       tick,
		Bars:       map[models.Timeframe][]models.Bar{entryTF: entry, trendTF: trend},
		EntryTF:    entryTF,
		TrendTF:    trendTF,
		Now:        r.now(),
	}, nil
}

// Detect runs the detector on a prepared input.
func (r *ReversalScanner) Detect(in analysis.Input) models.Verdict {
	return r.detector.Detect(in)
}

// Reversal detects a reversal on symbol from the latest cached tick. The
// flag is false when data is missing or the verdict is neutral.
func (r *ReversalScanner) Reversal(symbol string) (models.Verdict, bool) {
	inst, ok := r.instruments[symbol]
	if !ok {
		return models.Verdict{}, false
	}
	tick, ok := r.cache.Tick(symbol)
	if !ok {
		return models.Verdict{}, false
	}
	in, err := r.Input(r.cfg.Current(), inst, tick)
	if err != nil {
		return models.Verdict{}, false
	}
	v := r.Detect(in)
	return v, v.Direction != models.DirectionNeutral
}
