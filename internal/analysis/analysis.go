// Package analysis turns cached ticks and bar windows into directional
// verdicts. Analyzers are side-effect free apart from the optional
// language-model analyzer, which calls out over the network.
package analysis

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"fx-trader/internal/config"
	"fx-trader/internal/models"
)

// Input is everything an analyzer may look at for one instrument.
type Input struct {
	Symbol     string
	Instrument models.Instrument
	Tick       models.Tick
	Bars       map[models.Timeframe][]models.Bar
	EntryTF    models.Timeframe
	TrendTF    models.Timeframe
	Now        time.Time
}

// EntryBars returns the entry timeframe window.
func (in Input) EntryBars() []models.Bar {
	return in.Bars[in.EntryTF]
}

// Analyzer produces a verdict for one instrument.
type Analyzer interface {
	Name() string
	Analyze(ctx context.Context, in Input) (models.Verdict, error)
}

// Factory builds an analyzer from configuration. It may return nil when
// the analyzer is disabled.
type Factory func(cfg *config.Config, deps Deps) (Analyzer, error)

// Deps are shared collaborators available to factories.
type Deps struct {
	Sessions SessionChecker
	Logger   zerolog.Logger
}

// SessionChecker reports whether a trading session is active.
type SessionChecker interface {
	ActiveSession(t time.Time) (string, bool)
}

// Registry maps analyzer names to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns a registry holding the built-in analyzers.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.Register("structure", func(*config.Config, Deps) (Analyzer, error) { return NewStructureAnalyzer(), nil })
	r.Register("confluence", func(*config.Config, Deps) (Analyzer, error) { return NewConfluenceAnalyzer(), nil })
	r.Register("momentum", func(_ *config.Config, d Deps) (Analyzer, error) { return NewMomentumAnalyzer(d.Sessions), nil })
	r.Register("stub", func(cfg *config.Config, _ Deps) (Analyzer, error) {
		if !cfg.Analyzers.Stub.Enabled {
			return nil, nil
		}
		return NewStubAnalyzer(cfg.Analyzers.Stub.Seed), nil
	})
	r.Register("llm", func(cfg *config.Config, d Deps) (Analyzer, error) {
		if !cfg.Analyzers.LLM.Enabled {
			return nil, nil
		}
		if cfg.Analyzers.LLM.APIKey == "" {
			return nil, fmt.Errorf("llm analyzer enabled without an api key")
		}
		client := NewOpenAIClient(cfg.Analyzers.LLM.APIKey, cfg.Analyzers.LLM.Model)
		return NewLLMAnalyzer(client, cfg.Analyzers.LLM.Timeout, d.Logger), nil
	})
	return r
}

// Register adds or replaces a factory.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	r.factories[strings.ToLower(name)] = f
	r.mu.Unlock()
}

// Build instantiates the analyzers enabled in cfg. The stub and llm
// analyzers are also added when their own sections enable them.
func (r *Registry) Build(cfg *config.Config, deps Deps) ([]Analyzer, error) {
	names := append([]string{}, cfg.Analyzers.Enabled...)
	if cfg.Analyzers.Stub.Enabled {
		names = append(names, "stub")
	}
	if cfg.Analyzers.LLM.Enabled {
		names = append(names, "llm")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool)
	var out []Analyzer
	for _, name := range names {
		name = strings.ToLower(name)
		if seen[name] {
			continue
		}
		seen[name] = true

		f, ok := r.factories[name]
		if !ok {
			return nil, fmt.Errorf("unknown analyzer %q", name)
		}
		a, err := f(cfg, deps)
		if err != nil {
			return nil, fmt.Errorf("building analyzer %s: %w", name, err)
		}
		if a != nil {
			out = append(out, a)
		}
	}
	return out, nil
}

// Names lists the registered analyzers.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// RunAll runs every analyzer. A failing analyzer contributes a neutral
// verdict carrying the error so one bad input cannot veto the others.
func RunAll(ctx context.Context, analyzers []Analyzer, in Input) []models.Verdict {
	out := make([]models.Verdict, 0, len(analyzers))
	for _, a := range analyzers {
		v, err := a.Analyze(ctx, in)
		if err != nil {
			out = append(out, models.Neutral(a.Name(), err.Error()))
			continue
		}
		v.Analyzer = a.Name()
		v.Confidence = clampConfidence(v.Confidence)
		out = append(out, v)
	}
	return out
}

func clampConfidence(c float64) float64 {
	switch {
	case c < 0:
		return 0
	case c > 100:
		return 100
	}
	return c
}
