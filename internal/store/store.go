// Package store provides persistence for settings, the audit trail and
// gate decisions.
package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"fx-trader/internal/config"
	"fx-trader/internal/models"
)

// Store defines the interface for data persistence.
type Store interface {
	// Settings
	LoadSettings(ctx context.Context) (map[string]string, error)
	SaveSetting(ctx context.Context, key, value string) error

	// Audit trail
	AppendAudit(ctx context.Context, event *models.AuditEvent) error
	ListAudit(ctx context.Context, filter AuditFilter) ([]models.AuditEvent, error)

	// Gate decisions
	SaveSignal(ctx context.Context, signal *models.SignalRecord) error
	ListSignals(ctx context.Context, filter SignalFilter) ([]models.SignalRecord, error)

	// Lifecycle
	Close() error
}

// AuditFilter represents filters for querying audit events. Results are
// newest first.
type AuditFilter struct {
	Type      models.AuditEventType
	Symbol    string
	StartDate time.Time
	EndDate   time.Time
	Limit     int
}

// Match reports whether ev passes the filter, ignoring Limit.
func (f AuditFilter) Match(ev *models.AuditEvent) bool {
	if f.Type != "" && ev.Type != f.Type {
		return false
	}
	if f.Symbol != "" && ev.Symbol != f.Symbol {
		return false
	}
	return inRange(ev.Timestamp, f.StartDate, f.EndDate)
}

// SignalFilter represents filters for querying gate decisions. Results
// are newest first.
type SignalFilter struct {
	Symbol       string
	ApprovedOnly bool
	StartDate    time.Time
	EndDate      time.Time
	Limit        int
}

// Match reports whether s passes the filter, ignoring Limit.
func (f SignalFilter) Match(s *models.SignalRecord) bool {
	if f.Symbol != "" && s.Symbol != f.Symbol {
		return false
	}
	if f.ApprovedOnly && !s.Approved {
		return false
	}
	return inRange(s.Timestamp, f.StartDate, f.EndDate)
}

func inRange(t, start, end time.Time) bool {
	if !start.IsZero() && t.Before(start) {
		return false
	}
	if !end.IsZero() && t.After(end) {
		return false
	}
	return true
}

// Open builds the configured backend.
func Open(ctx context.Context, cfg config.StoreConfig, logger zerolog.Logger) (Store, error) {
	switch cfg.Backend {
	case "sqlite", "":
		if dir := filepath.Dir(cfg.Path); dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("creating store directory: %w", err)
			}
		}
		return NewSQLiteStore(cfg.Path)
	case "redis":
		return NewRedisStore(ctx, RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.RedisPrefix,
		})
	case "postgres":
		return NewPostgresStore(cfg.PostgresDSN, logger)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
