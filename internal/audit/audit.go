// Package audit records the agent's audit trail. Every event is written
// to the persistence backend and appended to a rotating JSONL file;
// breaker trips, emergency stops and closed trades are also forwarded to
// the notifier.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	"fx-trader/internal/logging"
	"fx-trader/internal/models"
	"fx-trader/internal/notify"
	"fx-trader/internal/store"
)

// Sink accepts audit events. Recording never fails the caller.
type Sink interface {
	Record(ctx context.Context, ev models.AuditEvent)
}

// Config holds audit file configuration.
type Config struct {
	File       string
	MaxSize    int // megabytes
	MaxBackups int
	MaxAge     int // days
	Compress   bool
}

// DefaultConfig returns the default rotation settings for file.
func DefaultConfig(file string) Config {
	return Config{
		File:       file,
		MaxSize:    50,
		MaxBackups: 30,
		MaxAge:     365,
		Compress:   true,
	}
}

// Recorder is the audit Sink used by the agent.
type Recorder struct {
	store    store.Store
	notifier notify.Notifier
	logger   zerolog.Logger

	mu     sync.Mutex
	writer *lumberjack.Logger
	now    func() time.Time
}

// NewRecorder creates a recorder. An empty cfg.File disables the file copy
// and a nil notifier disables forwarding.
func NewRecorder(cfg Config, st store.Store, notifier notify.Notifier, logger zerolog.Logger) (*Recorder, error) {
	r := &Recorder{
		store:    st,
		notifier: notifier,
		logger:   logging.WithComponent(logger, "audit"),
		now:      func() time.Time { return time.Now().UTC() },
	}
	if r.notifier == nil {
		r.notifier = notify.NewNoOpNotifier()
	}

	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0700); err != nil {
			return nil, fmt.Errorf("creating audit directory: %w", err)
		}
		r.writer = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		}
	}
	return r, nil
}

// NewID returns a lexically sortable event id.
func NewID() string {
	return ulid.Make().String()
}

// Record stamps, persists and forwards an event.
func (r *Recorder) Record(ctx context.Context, ev models.AuditEvent) {
	if ev.ID == "" {
		ev.ID = NewID()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = r.now()
	}

	if r.store != nil {
		if err := r.store.AppendAudit(ctx, &ev); err != nil {
			r.logger.Warn().Err(err).Str("type", string(ev.Type)).Msg("Failed to persist audit event")
		}
	}
	if err := r.writeLine(ev); err != nil {
		r.logger.Warn().Err(err).Str("type", string(ev.Type)).Msg("Failed to write audit file")
	}

	if n, ok := notify.FromAuditEvent(ev); ok {
		if err := r.notifier.Send(ctx, n); err != nil {
			r.logger.Warn().Err(err).Str("type", string(ev.Type)).Msg("Notification failed")
		}
	}
}

// RecordSignal persists a gate decision as a signal record.
func (r *Recorder) RecordSignal(ctx context.Context, d models.Decision) {
	rec := &models.SignalRecord{
		ID:         NewID(),
		Timestamp:  d.Timestamp,
		Symbol:     d.Symbol,
		Direction:  d.Direction,
		Quality:    d.Quality,
		Approved:   d.Approved,
		Reason:     d.Reason,
		Overridden: d.Overridden,
		Verdicts:   d.Verdicts,
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = r.now()
	}
	if r.store == nil {
		return
	}
	if err := r.store.SaveSignal(ctx, rec); err != nil {
		r.logger.Warn().Err(err).Str("symbol", d.Symbol).Msg("Failed to persist signal")
	}
}

func (r *Recorder) writeLine(ev models.AuditEvent) error {
	if r.writer == nil {
		return nil
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("serializing audit event: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.writer.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("writing audit event: %w", err)
	}
	return nil
}

// Close closes the audit file.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.writer == nil {
		return nil
	}
	return r.writer.Close()
}

// Discard is a Sink that drops everything.
type Discard struct{}

// Record does nothing.
func (Discard) Record(context.Context, models.AuditEvent) {}
