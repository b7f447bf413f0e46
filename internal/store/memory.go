package store

import (
	"context"
	"sort"
	"sync"

	"fx-trader/internal/models"
)

// MemoryStore keeps everything in process memory. Used for paper runs
// without a database and in tests.
type MemoryStore struct {
	mu       sync.RWMutex
	settings map[string]string
	audit    []models.AuditEvent
	signals  []models.SignalRecord
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{settings: make(map[string]string)}
}

func (s *MemoryStore) LoadSettings(ctx context.Context) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.settings))
	for k, v := range s.settings {
		out[k] = v
	}
	return out, nil
}

func (s *MemoryStore) SaveSetting(ctx context.Context, key, value string) error {
	s.mu.Lock()
	s.settings[key] = value
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) AppendAudit(ctx context.Context, event *models.AuditEvent) error {
	s.mu.Lock()
	s.audit = append(s.audit, *event)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) ListAudit(ctx context.Context, filter AuditFilter) ([]models.AuditEvent, error) {
	s.mu.RLock()
	var out []models.AuditEvent
	for i := range s.audit {
		if filter.Match(&s.audit[i]) {
			out = append(out, s.audit[i])
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].ID > out[j].ID
		}
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *MemoryStore) SaveSignal(ctx context.Context, signal *models.SignalRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.signals {
		if s.signals[i].ID == signal.ID {
			s.signals[i] = *signal
			return nil
		}
	}
	s.signals = append(s.signals, *signal)
	return nil
}

func (s *MemoryStore) ListSignals(ctx context.Context, filter SignalFilter) ([]models.SignalRecord, error) {
	s.mu.RLock()
	var out []models.SignalRecord
	for i := range s.signals {
		if filter.Match(&s.signals[i]) {
			out = append(out, s.signals[i])
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].ID > out[j].ID
		}
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }

var _ Store = (*MemoryStore)(nil)
