package hedge

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"fx-trader/internal/broker"
	"fx-trader/internal/config"
	"fx-trader/internal/errors"
	"fx-trader/internal/lifecycle"
	"fx-trader/internal/mocks"
	"fx-trader/internal/models"
	"fx-trader/internal/risk"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type fakePlacer struct {
	reqs []risk.HedgeRequest
	err  error
}

func (f *fakePlacer) PlaceHedge(ctx context.Context, req risk.HedgeRequest) (*broker.OrderResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.reqs = append(f.reqs, req)
	return &broker.OrderResult{
		Ticket: fmt.Sprintf("H%d", len(f.reqs)),
		Price:  req.Price,
		Volume: req.Volume,
	}, nil
}

type fakePrices map[string]models.Tick

// FreshTick treats ticks more than a minute older than t0 as stale.
func (f fakePrices) FreshTick(symbol string) (models.Tick, error) {
	t, ok := f[symbol]
	if !ok {
		return models.Tick{}, errors.NewDataError("tick", symbol, "no tick", errors.ErrInsufficientData)
	}
	if t0.Sub(t.Time) > time.Minute {
		return models.Tick{}, errors.NewDataError("tick", symbol, "stale", errors.ErrStaleData)
	}
	return t, nil
}

type harness struct {
	mon     *Monitor
	tracker *lifecycle.Tracker
	gw      *mocks.MockGateway
	placer  *fakePlacer
	prices  fakePrices
	verdict models.Verdict
}

func newHarness(t *testing.T, mutate func(*config.Config)) *harness {
	t.Helper()
	cfg := config.Default()
	if mutate != nil {
		mutate(cfg)
	}
	require.NoError(t, cfg.Validate())
	provider := config.NewStatic(cfg)

	h := &harness{
		gw:     &mocks.MockGateway{},
		placer: &fakePlacer{},
		prices: fakePrices{},
	}
	h.tracker = lifecycle.NewTracker(provider, h.gw, config.DefaultInstruments(), nil, zerolog.Nop())
	h.tracker.SetClock(func() time.Time { return t0 })
	rev := ReversalFunc(func(symbol string) (models.Verdict, bool) {
		return h.verdict, h.verdict.Direction != ""
	})
	h.mon = NewMonitor(provider, h.tracker, h.placer, h.gw, h.prices, rev, nil, zerolog.Nop())
	h.mon.SetClock(func() time.Time { return t0 })

	h.tracker.Register(models.ActivePosition{
		Ticket:            "T1",
		Symbol:            "EURUSD",
		Side:              models.SideBuy,
		Volume:            0.2,
		EntryPrice:        1.1000,
		InitialStopLoss:   1.0980,
		InitialTakeProfit: 1.1040,
		OpenedAt:          t0,
	})
	return h
}

func (h *harness) at(price float64) {
	h.prices["EURUSD"] = models.Tick{Symbol: "EURUSD", Bid: price, Ask: price, Time: t0}
}

func TestExcursion(t *testing.T) {
	p := models.ActivePosition{Side: models.SideBuy, EntryPrice: 1.1000, InitialStopLoss: 1.0980}
	assert.InDelta(t, 0.5, Excursion(p, 1.0990), 1e-9)
	assert.Zero(t, Excursion(p, 1.1010))

	s := models.ActivePosition{Side: models.SideSell, EntryPrice: 1.1000, InitialStopLoss: 1.1020}
	assert.InDelta(t, 0.25, Excursion(s, 1.1005), 1e-9)

	assert.Zero(t, Excursion(models.ActivePosition{EntryPrice: 1.1}, 1.0))
}

func TestHedgeOpenAndRecoveryScenario(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	h.verdict = models.Verdict{Analyzer: "reversal", Direction: models.DirectionSell, Confidence: 65}

	// 6% of the risk distance against a BUY
	h.at(1.09988)
	h.mon.Evaluate(ctx)

	require.Len(t, h.placer.reqs, 1)
	req := h.placer.reqs[0]
	assert.Equal(t, "T1", req.OriginTicket)
	assert.Equal(t, models.SideSell, req.Side)
	assert.InDelta(t, 0.1, req.Volume, 1e-9)
	assert.InDelta(t, 1.09988+0.0010, req.StopLoss, 1e-9)
	assert.InDelta(t, 1.09988-0.0020, req.TakeProfit, 1e-9)

	p, ok := h.tracker.Get("T1")
	require.True(t, ok)
	assert.True(t, p.HedgeOpened)
	active := h.mon.Active("T1")
	require.Len(t, active, 1)
	assert.Equal(t, "H1", active[0].Ticket)

	// already hedged, no second hedge
	h.mon.Evaluate(ctx)
	assert.Len(t, h.placer.reqs, 1)

	h.gw.On("ClosePosition", mock.Anything, "H1").Return(true, nil).Once()
	h.at(1.09998)
	h.mon.Evaluate(ctx)

	h.gw.AssertExpectations(t)
	assert.Empty(t, h.mon.Active("T1"))
	p, ok = h.tracker.Get("T1")
	require.True(t, ok)
	assert.False(t, p.HedgeOpened)
	hs := h.mon.Hedges()
	require.Len(t, hs, 1)
	assert.Equal(t, models.HedgeClosed, hs[0].Status)
}

func TestNoHedgeWithoutQualifyingReversal(t *testing.T) {
	tests := []struct {
		name    string
		verdict models.Verdict
		price   float64
	}{
		{"same direction", models.Verdict{Direction: models.DirectionBuy, Confidence: 90}, 1.09988},
		{"neutral", models.Verdict{Direction: models.DirectionNeutral, Confidence: 90}, 1.09988},
		{"weak", models.Verdict{Direction: models.DirectionSell, Confidence: 30}, 1.09988},
		{"below trigger", models.Verdict{Direction: models.DirectionSell, Confidence: 90}, 1.09995},
		{"no detection", models.Verdict{}, 1.09988},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			h.verdict = tt.verdict
			h.at(tt.price)
			h.mon.Evaluate(context.Background())
			assert.Empty(t, h.placer.reqs)
			p, _ := h.tracker.Get("T1")
			assert.False(t, p.HedgeOpened)
		})
	}
}

func TestDisabledMonitorDoesNothing(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.Hedge.Enabled = false })
	h.verdict = models.Verdict{Direction: models.DirectionSell, Confidence: 90}
	h.at(1.0985)
	h.mon.Evaluate(context.Background())
	assert.Empty(t, h.placer.reqs)
}

func TestPlacementFailureLeavesPositionUnhedged(t *testing.T) {
	h := newHarness(t, nil)
	h.placer.err = fmt.Errorf("margin")
	h.verdict = models.Verdict{Direction: models.DirectionSell, Confidence: 90}
	h.at(1.09988)
	h.mon.Evaluate(context.Background())

	p, _ := h.tracker.Get("T1")
	assert.False(t, p.HedgeOpened)
	assert.Empty(t, h.mon.Hedges())
}

func TestForcedExitClosesOriginAndHedges(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	h.verdict = models.Verdict{Direction: models.DirectionSell, Confidence: 90}
	h.at(1.09988)
	h.mon.Evaluate(ctx)
	require.Len(t, h.mon.Active("T1"), 1)

	h.gw.On("ClosePosition", mock.Anything, "H1").Return(true, nil).Once()
	h.gw.On("ClosePosition", mock.Anything, "T1").Return(true, nil).Once()
	h.at(1.0981)
	h.mon.Evaluate(ctx)

	h.gw.AssertExpectations(t)
	_, ok := h.tracker.Get("T1")
	assert.False(t, ok)
	assert.Empty(t, h.mon.Tickets())
}

func TestStalePriceNeverForcesExit(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	h.verdict = models.Verdict{Direction: models.DirectionSell, Confidence: 90}
	h.prices["EURUSD"] = models.Tick{Symbol: "EURUSD", Bid: 1.0981, Ask: 1.0981, Time: t0.Add(-time.Hour)}

	h.mon.Evaluate(ctx)

	h.gw.AssertNotCalled(t, "ClosePosition", mock.Anything, mock.Anything)
	assert.Empty(t, h.placer.reqs)
	_, ok := h.tracker.Get("T1")
	assert.True(t, ok)
}

func TestHedgeLimitCountsClosedHedges(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, func(c *config.Config) { c.Hedge.MaxHedgesPerPosition = 1 })
	h.verdict = models.Verdict{Direction: models.DirectionSell, Confidence: 90}
	h.at(1.09988)
	h.mon.Evaluate(ctx)
	require.Len(t, h.placer.reqs, 1)

	// the hedge hit its own stop at the venue
	h.mon.Reconcile(ctx, []models.GatewayPosition{{Ticket: "T1"}})
	p, _ := h.tracker.Get("T1")
	assert.False(t, p.HedgeOpened)
	assert.Empty(t, h.mon.Active("T1"))

	h.mon.Evaluate(ctx)
	assert.Len(t, h.placer.reqs, 1)
}

func TestOrphanedHedgeIsClosed(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	h.verdict = models.Verdict{Direction: models.DirectionSell, Confidence: 90}
	h.at(1.09988)
	h.mon.Evaluate(ctx)
	require.Len(t, h.mon.Active("T1"), 1)

	h.gw.On("ClosePosition", mock.Anything, "T1").Return(true, nil).Once()
	_, err := h.tracker.Close(ctx, "T1", lifecycle.ReasonStopLoss)
	require.NoError(t, err)

	h.gw.On("ClosePosition", mock.Anything, "H1").Return(true, nil).Once()
	h.mon.Evaluate(ctx)
	h.gw.AssertExpectations(t)
	assert.Empty(t, h.mon.Hedges())
}

func TestFailedHedgeCloseIsRetried(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	h.verdict = models.Verdict{Direction: models.DirectionSell, Confidence: 90}
	h.at(1.09988)
	h.mon.Evaluate(ctx)

	h.gw.On("ClosePosition", mock.Anything, "H1").Return(false, fmt.Errorf("timeout")).Once()
	h.at(1.1000)
	h.mon.Evaluate(ctx)
	assert.Len(t, h.mon.Active("T1"), 1)
	p, _ := h.tracker.Get("T1")
	assert.True(t, p.HedgeOpened)

	h.gw.On("ClosePosition", mock.Anything, "H1").Return(true, nil).Once()
	h.mon.Evaluate(ctx)
	assert.Empty(t, h.mon.Active("T1"))
	p, _ = h.tracker.Get("T1")
	assert.False(t, p.HedgeOpened)
}
