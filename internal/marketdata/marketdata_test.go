package marketdata

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fx-trader/internal/errors"
	"fx-trader/internal/models"
)

// Wednesday, so weekend handling stays out of the way.
var base = time.Date(2026, 3, 4, 8, 0, 0, 0, time.UTC)

func bar(i int, tf models.Timeframe) models.Bar {
	p := 1.1 + float64(i)*0.0001
	return models.Bar{Time: base.Add(time.Duration(i) * tf.Duration()), Open: p, High: p + 0.0002, Low: p - 0.0002, Close: p + 0.0001}
}

func TestWindowEvictsOldest(t *testing.T) {
	w := NewWindow(models.TimeframeM5, 3, 2)
	for i := 0; i < 5; i++ {
		require.NoError(t, w.Append(bar(i, models.TimeframeM5)))
	}
	bars := w.Bars()
	require.Len(t, bars, 3)
	assert.Equal(t, bar(2, models.TimeframeM5).Time, bars[0].Time)
	assert.Equal(t, bar(4, models.TimeframeM5).Time, bars[2].Time)
}

func TestWindowRejectsOutOfOrderAndReplacesForming(t *testing.T) {
	w := NewWindow(models.TimeframeM5, 10, 2)
	require.NoError(t, w.Append(bar(1, models.TimeframeM5)))
	assert.Error(t, w.Append(bar(0, models.TimeframeM5)))

	updated := bar(1, models.TimeframeM5)
	updated.Close = 1.2
	require.NoError(t, w.Append(updated))
	last, ok := w.Last()
	require.True(t, ok)
	assert.Equal(t, 1, w.Len())
	assert.InDelta(t, 1.2, last.Close, 1e-12)
}

func TestWindowGapRestarts(t *testing.T) {
	w := NewWindow(models.TimeframeM5, 10, 2)
	require.NoError(t, w.Append(bar(0, models.TimeframeM5)))
	require.NoError(t, w.Append(bar(3, models.TimeframeM5))) // two missing bars, tolerated
	assert.Equal(t, 2, w.Len())
	require.NoError(t, w.Append(bar(10, models.TimeframeM5)))
	assert.Equal(t, 1, w.Len())
}

func TestWindowToleratesWeekend(t *testing.T) {
	w := NewWindow(models.TimeframeH1, 10, 0)
	friday := time.Date(2026, 3, 6, 21, 0, 0, 0, time.UTC)
	sunday := time.Date(2026, 3, 8, 22, 0, 0, 0, time.UTC)
	require.NoError(t, w.Append(models.Bar{Time: friday, Open: 1, High: 1, Low: 1, Close: 1}))
	require.NoError(t, w.Append(models.Bar{Time: sunday, Open: 1, High: 1, Low: 1, Close: 1}))
	assert.Equal(t, 2, w.Len())
}

func TestProperty_WindowTimestampsIncrease(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("bars stay strictly ordered and within capacity", prop.ForAll(
		func(offsets []int, capacity int) bool {
			w := NewWindow(models.TimeframeM1, capacity, 3)
			for _, o := range offsets {
				_ = w.Append(bar(o, models.TimeframeM1))
			}
			bars := w.Bars()
			if len(bars) > capacity {
				return false
			}
			for i := 1; i < len(bars); i++ {
				if !bars[i].Time.After(bars[i-1].Time) {
					return false
				}
			}
			return true
		},
		gen.SliceOfN(40, gen.IntRange(0, 60)),
		gen.IntRange(1, 20),
	))

	properties.TestingRun(t)
}

func TestCacheTicksAndBars(t *testing.T) {
	c := NewCache(CacheConfig{TickTTL: 5 * time.Second, Capacity: 20, MinBars: 3, MaxGapBars: 2})
	now := base
	c.now = func() time.Time { return now }

	_, err := c.FreshTick("EURUSD")
	assert.ErrorIs(t, err, errors.ErrInsufficientData)

	assert.True(t, c.UpdateTick(models.Tick{Symbol: "EURUSD", Bid: 1.1, Ask: 1.1001, Time: now}))
	assert.False(t, c.UpdateTick(models.Tick{Symbol: "EURUSD", Bid: 1.2, Ask: 1.2001, Time: now.Add(-time.Second)}))
	assert.False(t, c.UpdateTick(models.Tick{Symbol: "EURUSD", Bid: 1.2, Ask: 1.1, Time: now.Add(time.Second)}))

	tick, err := c.FreshTick("EURUSD")
	require.NoError(t, err)
	assert.InDelta(t, 1.1, tick.Bid, 1e-12)

	now = now.Add(10 * time.Second)
	_, err = c.FreshTick("EURUSD")
	assert.ErrorIs(t, err, errors.ErrStaleData)

	_, err = c.Bars("EURUSD", models.TimeframeM5)
	assert.ErrorIs(t, err, errors.ErrInsufficientData)

	require.NoError(t, c.SetBars("EURUSD", models.TimeframeM5, []models.Bar{bar(0, models.TimeframeM5), bar(1, models.TimeframeM5)}))
	assert.False(t, c.HasMinimumBars("EURUSD", models.TimeframeM5))

	require.NoError(t, c.SetBars("EURUSD", models.TimeframeM5, []models.Bar{bar(0, models.TimeframeM5), bar(1, models.TimeframeM5), bar(2, models.TimeframeM5)}))
	bars, err := c.Bars("EURUSD", models.TimeframeM5)
	require.NoError(t, err)
	assert.Len(t, bars, 3)
}

func TestCacheEpsilon(t *testing.T) {
	c := NewCache(CacheConfig{MinBars: 1})
	assert.True(t, c.MovedSinceAnalysis("EURUSD", 1.1, 0.00001))
	c.MarkAnalyzed("EURUSD", 1.1)
	assert.False(t, c.MovedSinceAnalysis("EURUSD", 1.100005, 0.00001))
	assert.True(t, c.MovedSinceAnalysis("EURUSD", 1.10002, 0.00001))
}
