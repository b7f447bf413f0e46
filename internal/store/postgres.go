package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"fx-trader/internal/models"
)

type settingRow struct {
	Key       string `gorm:"primaryKey"`
	Value     string
	UpdatedAt time.Time
}

func (settingRow) TableName() string { return "settings" }

type auditRow struct {
	ID        string    `gorm:"primaryKey"`
	Timestamp time.Time `gorm:"index"`
	Type      string    `gorm:"index"`
	Symbol    string    `gorm:"index"`
	Ticket    string
	Message   string
	Details   string
}

func (auditRow) TableName() string { return "audit_events" }

type signalRow struct {
	ID         string    `gorm:"primaryKey"`
	Timestamp  time.Time `gorm:"index"`
	Symbol     string    `gorm:"index"`
	Direction  string
	Quality    float64
	Approved   bool
	Reason     string
	Overridden bool
	Verdicts   string
}

func (signalRow) TableName() string { return "signals" }

// PostgresStore implements Store on PostgreSQL through gorm.
type PostgresStore struct {
	db *gorm.DB
}

// NewPostgresStore opens the database and migrates the schema.
func NewPostgresStore(dsn string, logger zerolog.Logger) (*PostgresStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening postgres: %w", err)
	}
	if err := db.AutoMigrate(&settingRow{}, &auditRow{}, &signalRow{}); err != nil {
		return nil, fmt.Errorf("migrating postgres schema: %w", err)
	}
	logger.Debug().Str("component", "store").Msg("Postgres schema migrated")
	return &PostgresStore{db: db}, nil
}

// Close closes the underlying connection pool.
func (s *PostgresStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// LoadSettings returns every persisted setting.
func (s *PostgresStore) LoadSettings(ctx context.Context) (map[string]string, error) {
	var rows []settingRow
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("loading settings: %w", err)
	}
	settings := make(map[string]string, len(rows))
	for _, r := range rows {
		settings[r.Key] = r.Value
	}
	return settings, nil
}

// SaveSetting upserts a setting.
func (s *PostgresStore) SaveSetting(ctx context.Context, key, value string) error {
	row := settingRow{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("saving setting: %w", err)
	}
	return nil
}

// AppendAudit saves an audit event.
func (s *PostgresStore) AppendAudit(ctx context.Context, event *models.AuditEvent) error {
	row, err := toAuditRow(event)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("appending audit event: %w", err)
	}
	return nil
}

// ListAudit retrieves audit events, newest first.
func (s *PostgresStore) ListAudit(ctx context.Context, filter AuditFilter) ([]models.AuditEvent, error) {
	q := s.db.WithContext(ctx).Model(&auditRow{})
	if filter.Type != "" {
		q = q.Where("type = ?", string(filter.Type))
	}
	if filter.Symbol != "" {
		q = q.Where("symbol = ?", filter.Symbol)
	}
	if !filter.StartDate.IsZero() {
		q = q.Where("timestamp >= ?", filter.StartDate)
	}
	if !filter.EndDate.IsZero() {
		q = q.Where("timestamp <= ?", filter.EndDate)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	var rows []auditRow
	if err := q.Order("timestamp DESC").Order("id DESC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("listing audit events: %w", err)
	}
	events := make([]models.AuditEvent, 0, len(rows))
	for _, r := range rows {
		events = append(events, fromAuditRow(r))
	}
	return events, nil
}

// SaveSignal saves a gate decision.
func (s *PostgresStore) SaveSignal(ctx context.Context, signal *models.SignalRecord) error {
	row, err := toSignalRow(signal)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Save(&row).Error; err != nil {
		return fmt.Errorf("saving signal: %w", err)
	}
	return nil
}

// ListSignals retrieves gate decisions, newest first.
func (s *PostgresStore) ListSignals(ctx context.Context, filter SignalFilter) ([]models.SignalRecord, error) {
	q := s.db.WithContext(ctx).Model(&signalRow{})
	if filter.Symbol != "" {
		q = q.Where("symbol = ?", filter.Symbol)
	}
	if filter.ApprovedOnly {
		q = q.Where("approved = ?", true)
	}
	if !filter.StartDate.IsZero() {
		q = q.Where("timestamp >= ?", filter.StartDate)
	}
	if !filter.EndDate.IsZero() {
		q = q.Where("timestamp <= ?", filter.EndDate)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	var rows []signalRow
	if err := q.Order("timestamp DESC").Order("id DESC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("listing signals: %w", err)
	}
	signals := make([]models.SignalRecord, 0, len(rows))
	for _, r := range rows {
		signals = append(signals, fromSignalRow(r))
	}
	return signals, nil
}

func toAuditRow(ev *models.AuditEvent) (auditRow, error) {
	details, err := json.Marshal(ev.Details)
	if err != nil {
		return auditRow{}, fmt.Errorf("encoding audit details: %w", err)
	}
	return auditRow{
		ID:        ev.ID,
		Timestamp: ev.Timestamp.UTC(),
		Type:      string(ev.Type),
		Symbol:    ev.Symbol,
		Ticket:    ev.Ticket,
		Message:   ev.Message,
		Details:   string(details),
	}, nil
}

func fromAuditRow(r auditRow) models.AuditEvent {
	ev := models.AuditEvent{
		ID:        r.ID,
		Timestamp: r.Timestamp,
		Type:      models.AuditEventType(r.Type),
		Symbol:    r.Symbol,
		Ticket:    r.Ticket,
		Message:   r.Message,
	}
	if r.Details != "" && r.Details != "null" {
		json.Unmarshal([]byte(r.Details), &ev.Details)
	}
	return ev
}

func toSignalRow(s *models.SignalRecord) (signalRow, error) {
	verdicts, err := json.Marshal(s.Verdicts)
	if err != nil {
		return signalRow{}, fmt.Errorf("encoding verdicts: %w", err)
	}
	return signalRow{
		ID:         s.ID,
		Timestamp:  s.Timestamp.UTC(),
		Symbol:     s.Symbol,
		Direction:  string(s.Direction),
		Quality:    s.Quality,
		Approved:   s.Approved,
		Reason:     s.Reason,
		Overridden: s.Overridden,
		Verdicts:   string(verdicts),
	}, nil
}

func fromSignalRow(r signalRow) models.SignalRecord {
	s := models.SignalRecord{
		ID:         r.ID,
		Timestamp:  r.Timestamp,
		Symbol:     r.Symbol,
		Direction:  models.Direction(r.Direction),
		Quality:    r.Quality,
		Approved:   r.Approved,
		Reason:     r.Reason,
		Overridden: r.Overridden,
	}
	if r.Verdicts != "" && r.Verdicts != "null" {
		json.Unmarshal([]byte(r.Verdicts), &s.Verdicts)
	}
	return s
}

var _ Store = (*PostgresStore)(nil)
