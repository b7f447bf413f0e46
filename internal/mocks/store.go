package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"fx-trader/internal/models"
	"fx-trader/internal/store"
)

// MockStore is a mock store.Store.
type MockStore struct {
	mock.Mock
}

func (m *MockStore) LoadSettings(ctx context.Context) (map[string]string, error) {
	args := m.Called(ctx)
	settings, _ := args.Get(0).(map[string]string)
	return settings, args.Error(1)
}

func (m *MockStore) SaveSetting(ctx context.Context, key, value string) error {
	return m.Called(ctx, key, value).Error(0)
}

func (m *MockStore) AppendAudit(ctx context.Context, event *models.AuditEvent) error {
	return m.Called(ctx, event).Error(0)
}

func (m *MockStore) ListAudit(ctx context.Context, filter store.AuditFilter) ([]models.AuditEvent, error) {
	args := m.Called(ctx, filter)
	events, _ := args.Get(0).([]models.AuditEvent)
	return events, args.Error(1)
}

func (m *MockStore) SaveSignal(ctx context.Context, signal *models.SignalRecord) error {
	return m.Called(ctx, signal).Error(0)
}

func (m *MockStore) ListSignals(ctx context.Context, filter store.SignalFilter) ([]models.SignalRecord, error) {
	args := m.Called(ctx, filter)
	signals, _ := args.Get(0).([]models.SignalRecord)
	return signals, args.Error(1)
}

func (m *MockStore) Close() error {
	return m.Called().Error(0)
}

var _ store.Store = (*MockStore)(nil)
