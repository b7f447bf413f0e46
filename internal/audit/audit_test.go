package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"fx-trader/internal/errors"
	"fx-trader/internal/mocks"
	"fx-trader/internal/models"
	"fx-trader/internal/notify"
	"fx-trader/internal/store"
)

type captureNotifier struct {
	sent []notify.Notification
}

func (c *captureNotifier) Send(_ context.Context, n notify.Notification) error {
	c.sent = append(c.sent, n)
	return nil
}

func TestRecorderWritesStoreAndFile(t *testing.T) {
	ctx := context.Background()
	file := filepath.Join(t.TempDir(), "audit", "audit.jsonl")
	st := store.NewMemoryStore()
	n := &captureNotifier{}

	r, err := NewRecorder(DefaultConfig(file), st, n, zerolog.Nop())
	require.NoError(t, err)

	r.Record(ctx, models.AuditEvent{Type: models.AuditOrderPlaced, Symbol: "EURUSD", Ticket: "1", Message: "placed"})
	r.Record(ctx, models.AuditEvent{Type: models.AuditBreaker, Message: "drawdown"})
	require.NoError(t, r.Close())

	events, err := st.ListAudit(ctx, store.AuditFilter{})
	require.NoError(t, err)
	require.Len(t, events, 2)
	for _, ev := range events {
		assert.Len(t, ev.ID, 26)
		assert.False(t, ev.Timestamp.IsZero())
	}

	f, err := os.Open(file)
	require.NoError(t, err)
	defer f.Close()
	var lines []models.AuditEvent
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var ev models.AuditEvent
		require.NoError(t, json.Unmarshal(sc.Bytes(), &ev))
		lines = append(lines, ev)
	}
	require.Len(t, lines, 2)
	assert.Equal(t, models.AuditOrderPlaced, lines[0].Type)

	// only the breaker is notification-worthy
	require.Len(t, n.sent, 1)
	assert.Equal(t, notify.NotificationBreaker, n.sent[0].Type)
}

func TestRecorderSurvivesStoreFailure(t *testing.T) {
	ctx := context.Background()
	st := &mocks.MockStore{}
	st.On("AppendAudit", mock.Anything, mock.Anything).Return(errors.New("disk full"))
	st.On("SaveSignal", mock.Anything, mock.Anything).Return(errors.New("disk full"))

	r, err := NewRecorder(Config{}, st, nil, zerolog.Nop())
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		r.Record(ctx, models.AuditEvent{Type: models.AuditSignal})
		r.RecordSignal(ctx, models.Decision{Symbol: "EURUSD"})
	})
	st.AssertNumberOfCalls(t, "AppendAudit", 1)
	st.AssertNumberOfCalls(t, "SaveSignal", 1)
}

func TestRecordSignal(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	r, err := NewRecorder(Config{}, st, nil, zerolog.Nop())
	require.NoError(t, err)

	ts := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	r.RecordSignal(ctx, models.Decision{
		Symbol:    "GBPUSD",
		Approved:  true,
		Direction: models.DirectionSell,
		Quality:   72,
		Timestamp: ts,
		Verdicts:  []models.Verdict{{Analyzer: "structure", Direction: models.DirectionSell, Confidence: 80}},
	})

	recs, err := st.ListSignals(ctx, store.SignalFilter{Symbol: "GBPUSD"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.True(t, recs[0].Approved)
	assert.Equal(t, ts, recs[0].Timestamp)
	assert.Len(t, recs[0].Verdicts, 1)
}
