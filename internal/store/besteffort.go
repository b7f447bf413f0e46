package store

import (
	"context"

	"github.com/rs/zerolog"

	"fx-trader/internal/models"
)

// BestEffort wraps a Store so that persistence failures never stop
// trading. Failed writes are logged and dropped; a failed settings load
// yields an empty map so configuration falls back to defaults. Reads of
// the audit trail and signals still return their errors.
type BestEffort struct {
	inner  Store
	logger zerolog.Logger
}

// NewBestEffort wraps inner.
func NewBestEffort(inner Store, logger zerolog.Logger) *BestEffort {
	return &BestEffort{inner: inner, logger: logger.With().Str("component", "store").Logger()}
}

// Unwrap returns the wrapped store.
func (b *BestEffort) Unwrap() Store {
	return b.inner
}

func (b *BestEffort) LoadSettings(ctx context.Context) (map[string]string, error) {
	settings, err := b.inner.LoadSettings(ctx)
	if err != nil {
		b.logger.Warn().Err(err).Msg("Loading persisted settings failed, using defaults")
		return map[string]string{}, nil
	}
	return settings, nil
}

func (b *BestEffort) SaveSetting(ctx context.Context, key, value string) error {
	if err := b.inner.SaveSetting(ctx, key, value); err != nil {
		b.logger.Warn().Err(err).Str("key", key).Msg("Persisting setting failed")
	}
	return nil
}

func (b *BestEffort) AppendAudit(ctx context.Context, event *models.AuditEvent) error {
	if err := b.inner.AppendAudit(ctx, event); err != nil {
		b.logger.Warn().Err(err).Str("type", string(event.Type)).Msg("Persisting audit event failed")
	}
	return nil
}

func (b *BestEffort) ListAudit(ctx context.Context, filter AuditFilter) ([]models.AuditEvent, error) {
	return b.inner.ListAudit(ctx, filter)
}

func (b *BestEffort) SaveSignal(ctx context.Context, signal *models.SignalRecord) error {
	if err := b.inner.SaveSignal(ctx, signal); err != nil {
		b.logger.Warn().Err(err).Str("symbol", signal.Symbol).Msg("Persisting signal failed")
	}
	return nil
}

func (b *BestEffort) ListSignals(ctx context.Context, filter SignalFilter) ([]models.SignalRecord, error) {
	return b.inner.ListSignals(ctx, filter)
}

func (b *BestEffort) Close() error {
	return b.inner.Close()
}

var _ Store = (*BestEffort)(nil)
