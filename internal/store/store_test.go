package store

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fx-trader/internal/config"
	"fx-trader/internal/errors"
	"fx-trader/internal/models"
)

func newSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "agent.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

var base = time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)

func TestSQLiteSettings(t *testing.T) {
	s := newSQLite(t)
	ctx := context.Background()

	require.NoError(t, s.SaveSetting(ctx, "agent.enabled", "true"))
	require.NoError(t, s.SaveSetting(ctx, "gate.min_confidence", "65"))
	require.NoError(t, s.SaveSetting(ctx, "agent.enabled", "false"))

	settings, err := s.LoadSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"agent.enabled": "false", "gate.min_confidence": "65"}, settings)
}

func TestSQLiteSignals(t *testing.T) {
	s := newSQLite(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		require.NoError(t, s.SaveSignal(ctx, &models.SignalRecord{
			ID:        fmt.Sprintf("sig-%d", i),
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Symbol:    "EURUSD",
			Direction: models.DirectionBuy,
			Quality:   60 + float64(i),
			Approved:  i%2 == 0,
			Reason:    "approved",
			Verdicts:  []models.Verdict{{Analyzer: "structure", Direction: models.DirectionBuy, Confidence: 70}},
		}))
	}

	all, err := s.ListSignals(ctx, SignalFilter{Symbol: "EURUSD"})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "sig-3", all[0].ID)
	require.Len(t, all[0].Verdicts, 1)
	assert.Equal(t, "structure", all[0].Verdicts[0].Analyzer)

	approved, err := s.ListSignals(ctx, SignalFilter{ApprovedOnly: true, Limit: 1})
	require.NoError(t, err)
	require.Len(t, approved, 1)
	assert.Equal(t, "sig-2", approved[0].ID)

	none, err := s.ListSignals(ctx, SignalFilter{Symbol: "GBPUSD"})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestProperty_AuditListedNewestFirst(t *testing.T) {
	s := newSQLite(t)
	mem := NewMemoryStore()

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	types := []models.AuditEventType{models.AuditSignal, models.AuditRejection, models.AuditOrderPlaced}
	run := 0

	properties.Property("audit events come back filtered and newest first", prop.ForAll(
		func(offsets []int, typeIdx int) bool {
			ctx := context.Background()
			run++
			symbol := fmt.Sprintf("SYM%d", run)
			want := types[typeIdx%len(types)]

			wantCount := 0
			for i, off := range offsets {
				ev := &models.AuditEvent{
					ID:        fmt.Sprintf("%s-%03d", symbol, i),
					Timestamp: base.Add(time.Duration(off) * time.Second),
					Type:      types[i%len(types)],
					Symbol:    symbol,
					Message:   "event",
					Details:   map[string]interface{}{"i": float64(i)},
				}
				if ev.Type == want {
					wantCount++
				}
				if s.AppendAudit(ctx, ev) != nil || mem.AppendAudit(ctx, ev) != nil {
					return false
				}
			}

			for _, st := range []Store{s, mem} {
				events, err := st.ListAudit(ctx, AuditFilter{Symbol: symbol})
				if err != nil || len(events) != len(offsets) {
					return false
				}
				if !sort.SliceIsSorted(events, func(i, j int) bool {
					return events[i].Timestamp.After(events[j].Timestamp)
				}) {
					return false
				}
				typed, err := st.ListAudit(ctx, AuditFilter{Symbol: symbol, Type: want})
				if err != nil || len(typed) != wantCount {
					return false
				}
			}
			return true
		},
		gen.SliceOfN(8, gen.IntRange(0, 3600)),
		gen.IntRange(0, 2),
	))

	properties.TestingRun(t)
}

func TestAuditDetailsAndDateRange(t *testing.T) {
	s := newSQLite(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, s.AppendAudit(ctx, &models.AuditEvent{
			ID:        fmt.Sprintf("a%d", i),
			Timestamp: base.Add(time.Duration(i) * time.Hour),
			Type:      models.AuditBreaker,
			Message:   "drawdown",
			Details:   map[string]interface{}{"limit": 10.0},
		}))
	}

	events, err := s.ListAudit(ctx, AuditFilter{StartDate: base.Add(30 * time.Minute), EndDate: base.Add(90 * time.Minute)})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "a1", events[0].ID)
	assert.InDelta(t, 10.0, events[0].Details["limit"], 1e-9)
}

func TestMemoryStoreSignalsUpsert(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, m.SaveSignal(ctx, &models.SignalRecord{ID: "x", Symbol: "EURUSD", Timestamp: base}))
	require.NoError(t, m.SaveSignal(ctx, &models.SignalRecord{ID: "x", Symbol: "EURUSD", Timestamp: base, Approved: true}))

	signals, err := m.ListSignals(ctx, SignalFilter{ApprovedOnly: true})
	require.NoError(t, err)
	assert.Len(t, signals, 1)
}

type failingStore struct{ MemoryStore }

func (*failingStore) LoadSettings(context.Context) (map[string]string, error) {
	return nil, errors.New("disk gone")
}

func (*failingStore) SaveSetting(context.Context, string, string) error {
	return errors.New("disk gone")
}

func (*failingStore) AppendAudit(context.Context, *models.AuditEvent) error {
	return errors.New("disk gone")
}

func (*failingStore) SaveSignal(context.Context, *models.SignalRecord) error {
	return errors.New("disk gone")
}

func TestBestEffortSwallowsWriteFailures(t *testing.T) {
	b := NewBestEffort(&failingStore{}, zerolog.Nop())
	ctx := context.Background()

	settings, err := b.LoadSettings(ctx)
	require.NoError(t, err)
	assert.Empty(t, settings)

	assert.NoError(t, b.SaveSetting(ctx, "agent.enabled", "false"))
	assert.NoError(t, b.AppendAudit(ctx, &models.AuditEvent{ID: "1"}))
	assert.NoError(t, b.SaveSignal(ctx, &models.SignalRecord{ID: "1"}))
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, config.StoreConfig{Backend: "memory"}, zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	path := filepath.Join(t.TempDir(), "nested", "agent.db")
	s, err = Open(ctx, config.StoreConfig{Backend: "sqlite", Path: path}, zerolog.Nop())
	require.NoError(t, err)
	defer s.Close()
	assert.IsType(t, &SQLiteStore{}, s)

	_, err = Open(ctx, config.StoreConfig{Backend: "etcd"}, zerolog.Nop())
	assert.Error(t, err)
}

func TestPostgresRowConversion(t *testing.T) {
	ev := &models.AuditEvent{ID: "1", Timestamp: base, Type: models.AuditHedgeOpened, Ticket: "42", Message: "hedge", Details: map[string]interface{}{"volume": 0.05}}
	row, err := toAuditRow(ev)
	require.NoError(t, err)
	assert.Equal(t, "HEDGE_OPENED", row.Type)

	back := fromAuditRow(row)
	assert.Equal(t, ev.Ticket, back.Ticket)
	assert.InDelta(t, 0.05, back.Details["volume"], 1e-12)
}
