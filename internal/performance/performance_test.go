package performance

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerPoolRunAll(t *testing.T) {
	pool := NewWorkerPool(3)
	pool.Start()
	defer pool.Stop()

	var ran atomic.Int32
	boom := errors.New("boom")
	tasks := []func(context.Context) error{
		func(context.Context) error { ran.Add(1); return nil },
		func(context.Context) error { ran.Add(1); return boom },
		func(context.Context) error { ran.Add(1); panic("bad instrument") },
		func(context.Context) error { ran.Add(1); return nil },
	}

	errs := pool.RunAll(context.Background(), tasks)
	require.Len(t, errs, 4)
	assert.EqualValues(t, 4, ran.Load())
	assert.NoError(t, errs[0])
	assert.ErrorIs(t, errs[1], boom)
	assert.Error(t, errs[2])
	assert.NoError(t, errs[3])
}

func TestWorkerPoolRunAllWhenStopped(t *testing.T) {
	pool := NewWorkerPool(2)
	var ran atomic.Int32
	errs := pool.RunAll(context.Background(), []func(context.Context) error{
		func(context.Context) error { ran.Add(1); return nil },
	})
	assert.Len(t, errs, 1)
	assert.EqualValues(t, 1, ran.Load())
}

func TestWorkerPoolSubmitWait(t *testing.T) {
	pool := NewWorkerPool(1)
	assert.False(t, pool.Submit(func() {}))

	pool.Start()
	defer pool.Stop()
	done := false
	assert.True(t, pool.SubmitWait(func() { done = true }))
	assert.True(t, done)
}

func TestRateLimiter(t *testing.T) {
	limiter := NewRateLimiter(1000, 2)
	assert.True(t, limiter.Allow())
	assert.True(t, limiter.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, limiter.Wait(ctx))

	slow := NewRateLimiter(0.001, 1)
	assert.True(t, slow.Allow())
	ctx2, cancel2 := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel2()
	assert.ErrorIs(t, slow.Wait(ctx2), context.DeadlineExceeded)

	unlimited := NewRateLimiter(0, 1)
	for i := 0; i < 10; i++ {
		assert.True(t, unlimited.Allow())
	}
}

func TestExpectancyWindow(t *testing.T) {
	e := NewExpectancy(3, 2)
	e.Record(2)
	assert.Zero(t, e.Score())

	e.Record(-1)
	assert.InDelta(t, 0.5, e.Score(), 1e-9)

	e.Record(1)
	e.Record(3) // evicts 2
	assert.Equal(t, 3, e.Count())
	assert.InDelta(t, 1.0, e.Score(), 1e-9)
	assert.InDelta(t, 2.0/3.0, e.WinRate(), 1e-9)
}

func TestExpectancyScoreBoundedByInputs(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("score lies between the smallest and largest recorded R", prop.ForAll(
		func(rs []float64) bool {
			e := NewExpectancy(len(rs), 1)
			lo, hi := rs[0], rs[0]
			for _, r := range rs {
				e.Record(r)
				if r < lo {
					lo = r
				}
				if r > hi {
					hi = r
				}
			}
			s := e.Score()
			return s >= lo-1e-9 && s <= hi+1e-9
		},
		gen.SliceOfN(20, gen.Float64Range(-3, 5)),
	))

	properties.TestingRun(t)
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", FormatBytes(512))
	assert.Equal(t, "1.5 KB", FormatBytes(1536))
	assert.Equal(t, "3.0 MB", FormatBytes(3*1024*1024))
	assert.Positive(t, MemoryStats().Goroutines)
}
