package analysis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fx-trader/internal/config"
	"fx-trader/internal/models"
)

var testStart = time.Date(2026, 3, 4, 8, 0, 0, 0, time.UTC)

// barsFromCloses builds bars whose open sits just past the previous close,
// so consecutive turning points produce strict swing highs and lows.
func barsFromCloses(tf models.Timeframe, closes []float64) []models.Bar {
	const wick = 0.0001
	bars := make([]models.Bar, len(closes))
	prev := closes[0]
	for i, c := range closes {
		open := prev + (c-prev)*0.1
		bars[i] = models.Bar{
			Time:  testStart.Add(time.Duration(i) * tf.Duration()),
			Open:  open,
			High:  max(open, c) + wick,
			Low:   min(open, c) - wick,
			Close: c,
		}
		prev = c
	}
	return bars
}

func walk(n int, step func(i int) float64) []float64 {
	out := make([]float64, n)
	price := 1.1
	for i := range out {
		price += step(i)
		out[i] = price
	}
	return out
}

func steady(n int, move float64) []float64 {
	return walk(n, func(int) float64 { return move })
}

func zigzagUp(n int) []float64 {
	const u = 0.0005
	return walk(n, func(i int) float64 {
		if i%6 < 3 {
			return 3 * u
		}
		return -2 * u
	})
}

func input(bars map[models.Timeframe][]models.Bar) Input {
	return Input{
		Symbol:  "EURUSD",
		Bars:    bars,
		EntryTF: models.TimeframeM5,
		TrendTF: models.TimeframeH1,
		Now:     testStart,
	}
}

type fixedSession bool

func (f fixedSession) ActiveSession(time.Time) (string, bool) {
	if f {
		return "london", true
	}
	return "", false
}

func TestStructureAnalyzerUptrend(t *testing.T) {
	bars := barsFromCloses(models.TimeframeM5, zigzagUp(60))
	v, err := NewStructureAnalyzer().Analyze(context.Background(), input(map[models.Timeframe][]models.Bar{models.TimeframeM5: bars}))
	require.NoError(t, err)

	assert.Equal(t, models.DirectionBuy, v.Direction)
	require.NotNil(t, v.Invalidation)
	assert.Less(t, *v.Invalidation, bars[len(bars)-1].Close)
	require.NotNil(t, v.EntryZone)
	assert.Greater(t, v.Confidence, 0.0)
}

func TestStructureAnalyzerInsufficientBars(t *testing.T) {
	bars := barsFromCloses(models.TimeframeM5, steady(5, 0.0001))
	_, err := NewStructureAnalyzer().Analyze(context.Background(), input(map[models.Timeframe][]models.Bar{models.TimeframeM5: bars}))
	assert.Error(t, err)
}

func TestConfluenceAnalyzer(t *testing.T) {
	c := NewConfluenceAnalyzer()

	v, err := c.Analyze(context.Background(), input(map[models.Timeframe][]models.Bar{
		models.TimeframeM5: barsFromCloses(models.TimeframeM5, steady(60, 0.0002)),
		models.TimeframeH1: barsFromCloses(models.TimeframeH1, steady(60, 0.0005)),
	}))
	require.NoError(t, err)
	assert.Equal(t, models.DirectionBuy, v.Direction)
	assert.InDelta(t, 100, v.Confidence, 1e-9)

	// The higher timeframe outweighs the entry timeframe.
	v, err = c.Analyze(context.Background(), input(map[models.Timeframe][]models.Bar{
		models.TimeframeM5: barsFromCloses(models.TimeframeM5, steady(60, 0.0002)),
		models.TimeframeH1: barsFromCloses(models.TimeframeH1, steady(60, -0.0005)),
	}))
	require.NoError(t, err)
	assert.Equal(t, models.DirectionSell, v.Direction)
	assert.InDelta(t, 200.0/3, v.Confidence, 1e-9)

	v, err = c.Analyze(context.Background(), input(map[models.Timeframe][]models.Bar{
		models.TimeframeM5: barsFromCloses(models.TimeframeM5, steady(60, 0.0002)),
	}))
	require.NoError(t, err)
	assert.Equal(t, models.DirectionNeutral, v.Direction)
}

func TestMomentumAnalyzer(t *testing.T) {
	bars := map[models.Timeframe][]models.Bar{
		models.TimeframeM5: barsFromCloses(models.TimeframeM5, steady(60, 0.0003)),
	}

	v, err := NewMomentumAnalyzer(fixedSession(true)).Analyze(context.Background(), input(bars))
	require.NoError(t, err)
	assert.Equal(t, models.DirectionBuy, v.Direction)
	assert.GreaterOrEqual(t, v.Confidence, 80.0)

	v, err = NewMomentumAnalyzer(fixedSession(false)).Analyze(context.Background(), input(bars))
	require.NoError(t, err)
	assert.Equal(t, models.DirectionNeutral, v.Direction)
}

func TestReversalDetector(t *testing.T) {
	d := NewReversalDetector()

	v := d.Detect(input(map[models.Timeframe][]models.Bar{
		models.TimeframeM5: barsFromCloses(models.TimeframeM5, steady(60, 0.0003)),
	}))
	assert.Equal(t, models.DirectionNeutral, v.Direction)

	closes := walk(45, func(i int) float64 {
		if i < 40 {
			return -0.0005
		}
		return 0.002
	})
	v = d.Detect(input(map[models.Timeframe][]models.Bar{
		models.TimeframeM5: barsFromCloses(models.TimeframeM5, closes),
	}))
	assert.Equal(t, models.DirectionBuy, v.Direction)
	assert.GreaterOrEqual(t, v.Confidence, 30.0)
	assert.Equal(t, "reversal", v.Analyzer)

	v = d.Detect(input(map[models.Timeframe][]models.Bar{
		models.TimeframeM5: barsFromCloses(models.TimeframeM5, steady(10, 0.0003)),
	}))
	assert.Equal(t, models.DirectionNeutral, v.Direction)
}

func TestStubAnalyzerIsDeterministic(t *testing.T) {
	a, b := NewStubAnalyzer(7), NewStubAnalyzer(7)
	for i := 0; i < 10; i++ {
		va, err := a.Analyze(context.Background(), Input{})
		require.NoError(t, err)
		vb, err := b.Analyze(context.Background(), Input{})
		require.NoError(t, err)
		assert.Equal(t, va, vb)
		assert.Contains(t, va.Reason, "synthetic")
	}
}

type fakeCompleter struct {
	reply string
	err   error
	calls int
}

func (f *fakeCompleter) CompleteWithSystem(ctx context.Context, system, user string) (string, error) {
	f.calls++
	if _, ok := ctx.Deadline(); !ok {
		return "", errors.New("missing deadline")
	}
	return f.reply, f.err
}

func TestLLMAnalyzer(t *testing.T) {
	bars := map[models.Timeframe][]models.Bar{
		models.TimeframeM5: barsFromCloses(models.TimeframeM5, steady(40, 0.0001)),
	}

	fc := &fakeCompleter{reply: "```json\n{\"direction\": \"sell\", \"confidence\": 72, \"reason\": \"lower highs\"}\n```"}
	v, err := NewLLMAnalyzer(fc, time.Second, zerolog.Nop()).Analyze(context.Background(), input(bars))
	require.NoError(t, err)
	assert.Equal(t, models.DirectionSell, v.Direction)
	assert.InDelta(t, 72, v.Confidence, 1e-9)
	assert.Equal(t, 1, fc.calls)

	fc.reply = `{"direction": "SIDEWAYS"}`
	_, err = NewLLMAnalyzer(fc, time.Second, zerolog.Nop()).Analyze(context.Background(), input(bars))
	assert.Error(t, err)

	fc.reply = "not json"
	_, err = NewLLMAnalyzer(fc, time.Second, zerolog.Nop()).Analyze(context.Background(), input(bars))
	assert.Error(t, err)
}

type failingAnalyzer struct{}

func (failingAnalyzer) Name() string { return "broken" }
func (failingAnalyzer) Analyze(context.Context, Input) (models.Verdict, error) {
	return models.Verdict{}, errors.New("boom")
}

type loudAnalyzer struct{}

func (loudAnalyzer) Name() string { return "loud" }
func (loudAnalyzer) Analyze(context.Context, Input) (models.Verdict, error) {
	return models.Verdict{Direction: models.DirectionBuy, Confidence: 140}, nil
}

func TestRunAll(t *testing.T) {
	verdicts := RunAll(context.Background(), []Analyzer{failingAnalyzer{}, loudAnalyzer{}}, Input{})
	require.Len(t, verdicts, 2)

	assert.Equal(t, models.DirectionNeutral, verdicts[0].Direction)
	assert.Equal(t, "broken", verdicts[0].Analyzer)
	assert.Equal(t, "boom", verdicts[0].Reason)

	assert.Equal(t, "loud", verdicts[1].Analyzer)
	assert.InDelta(t, 100, verdicts[1].Confidence, 1e-9)
}

func TestRegistryBuild(t *testing.T) {
	r := NewRegistry()
	cfg := config.Default()

	analyzers, err := r.Build(cfg, Deps{Logger: zerolog.Nop()})
	require.NoError(t, err)
	require.Len(t, analyzers, 3)
	assert.Equal(t, "structure", analyzers[0].Name())

	cfg.Analyzers.Stub.Enabled = true
	analyzers, err = r.Build(cfg, Deps{Logger: zerolog.Nop()})
	require.NoError(t, err)
	assert.Len(t, analyzers, 4)

	cfg.Analyzers.LLM.Enabled = true
	_, err = r.Build(cfg, Deps{Logger: zerolog.Nop()})
	assert.Error(t, err)

	cfg = config.Default()
	cfg.Analyzers.Enabled = []string{"astrology"}
	_, err = r.Build(cfg, Deps{})
	assert.Error(t, err)

	assert.Contains(t, r.Names(), "llm")
}
