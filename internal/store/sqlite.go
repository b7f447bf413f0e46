package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"fx-trader/internal/models"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-based store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool for concurrent access
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- Persisted runtime settings (dotted config keys)
	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Audit trail
	CREATE TABLE IF NOT EXISTS audit_events (
		id TEXT PRIMARY KEY,
		timestamp DATETIME NOT NULL,
		type TEXT NOT NULL,
		symbol TEXT,
		ticket TEXT,
		message TEXT NOT NULL,
		details TEXT
	);

	-- Gate decisions
	CREATE TABLE IF NOT EXISTS signals (
		id TEXT PRIMARY KEY,
		timestamp DATETIME NOT NULL,
		symbol TEXT NOT NULL,
		direction TEXT NOT NULL,
		quality REAL NOT NULL,
		approved INTEGER NOT NULL,
		reason TEXT,
		overridden INTEGER DEFAULT 0,
		verdicts TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_events(timestamp);
	CREATE INDEX IF NOT EXISTS idx_audit_type ON audit_events(type);
	CREATE INDEX IF NOT EXISTS idx_audit_symbol ON audit_events(symbol);
	CREATE INDEX IF NOT EXISTS idx_signals_timestamp ON signals(timestamp);
	CREATE INDEX IF NOT EXISTS idx_signals_symbol ON signals(symbol);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// LoadSettings returns every persisted setting.
func (s *SQLiteStore) LoadSettings(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return nil, fmt.Errorf("failed to query settings: %w", err)
	}
	defer rows.Close()

	settings := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("failed to scan setting: %w", err)
		}
		settings[k] = v
	}
	return settings, rows.Err()
}

// SaveSetting upserts a setting.
func (s *SQLiteStore) SaveSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO settings (key, value, updated_at)
		VALUES (?, ?, ?)
	`, key, value, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save setting: %w", err)
	}
	return nil
}

// AppendAudit saves an audit event.
func (s *SQLiteStore) AppendAudit(ctx context.Context, event *models.AuditEvent) error {
	details, err := json.Marshal(event.Details)
	if err != nil {
		return fmt.Errorf("failed to encode audit details: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_events (id, timestamp, type, symbol, ticket, message, details)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, event.ID, event.Timestamp.UTC(), event.Type, event.Symbol, event.Ticket, event.Message, string(details))
	if err != nil {
		return fmt.Errorf("failed to append audit event: %w", err)
	}
	return nil
}

// ListAudit retrieves audit events, newest first.
func (s *SQLiteStore) ListAudit(ctx context.Context, filter AuditFilter) ([]models.AuditEvent, error) {
	query := "SELECT id, timestamp, type, symbol, ticket, message, details FROM audit_events WHERE 1=1"
	args := []interface{}{}

	if filter.Type != "" {
		query += " AND type = ?"
		args = append(args, filter.Type)
	}
	if filter.Symbol != "" {
		query += " AND symbol = ?"
		args = append(args, filter.Symbol)
	}
	if !filter.StartDate.IsZero() {
		query += " AND timestamp >= ?"
		args = append(args, filter.StartDate.UTC())
	}
	if !filter.EndDate.IsZero() {
		query += " AND timestamp <= ?"
		args = append(args, filter.EndDate.UTC())
	}

	query += " ORDER BY timestamp DESC, id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer rows.Close()

	var events []models.AuditEvent
	for rows.Next() {
		var ev models.AuditEvent
		var symbol, ticket, details sql.NullString
		if err := rows.Scan(&ev.ID, &ev.Timestamp, &ev.Type, &symbol, &ticket, &ev.Message, &details); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		ev.Symbol = symbol.String
		ev.Ticket = ticket.String
		if details.Valid && details.String != "" && details.String != "null" {
			json.Unmarshal([]byte(details.String), &ev.Details)
		}
		events = append(events, ev)
	}

	return events, rows.Err()
}

// SaveSignal saves a gate decision.
func (s *SQLiteStore) SaveSignal(ctx context.Context, signal *models.SignalRecord) error {
	verdicts, err := json.Marshal(signal.Verdicts)
	if err != nil {
		return fmt.Errorf("failed to encode verdicts: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO signals (id, timestamp, symbol, direction, quality, approved, reason, overridden, verdicts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, signal.ID, signal.Timestamp.UTC(), signal.Symbol, signal.Direction, signal.Quality,
		boolToInt(signal.Approved), signal.Reason, boolToInt(signal.Overridden), string(verdicts))
	if err != nil {
		return fmt.Errorf("failed to save signal: %w", err)
	}
	return nil
}

// ListSignals retrieves gate decisions, newest first.
func (s *SQLiteStore) ListSignals(ctx context.Context, filter SignalFilter) ([]models.SignalRecord, error) {
	query := "SELECT id, timestamp, symbol, direction, quality, approved, reason, overridden, verdicts FROM signals WHERE 1=1"
	args := []interface{}{}

	if filter.Symbol != "" {
		query += " AND symbol = ?"
		args = append(args, filter.Symbol)
	}
	if filter.ApprovedOnly {
		query += " AND approved = 1"
	}
	if !filter.StartDate.IsZero() {
		query += " AND timestamp >= ?"
		args = append(args, filter.StartDate.UTC())
	}
	if !filter.EndDate.IsZero() {
		query += " AND timestamp <= ?"
		args = append(args, filter.EndDate.UTC())
	}

	query += " ORDER BY timestamp DESC, id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query signals: %w", err)
	}
	defer rows.Close()

	var signals []models.SignalRecord
	for rows.Next() {
		var sig models.SignalRecord
		var approved, overridden int
		var reason, verdicts sql.NullString
		if err := rows.Scan(&sig.ID, &sig.Timestamp, &sig.Symbol, &sig.Direction, &sig.Quality, &approved, &reason, &overridden, &verdicts); err != nil {
			return nil, fmt.Errorf("failed to scan signal: %w", err)
		}
		sig.Approved = approved == 1
		sig.Overridden = overridden == 1
		sig.Reason = reason.String
		if verdicts.Valid && verdicts.String != "" && verdicts.String != "null" {
			json.Unmarshal([]byte(verdicts.String), &sig.Verdicts)
		}
		signals = append(signals, sig)
	}

	return signals, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var _ Store = (*SQLiteStore)(nil)
