package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"fx-trader/internal/models"
)

// Redis key suffixes
const (
	keySettings = "settings"
	keyAudit    = "audit"
	keySignals  = "signals"

	// Lists are trimmed to this many entries
	defaultListCap = 10000
)

// RedisOptions configures the redis backend.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	ListCap  int
}

// RedisStore implements Store on redis: a settings hash plus capped lists
// of JSON-encoded audit events and signals, newest at the head.
type RedisStore struct {
	client  *redis.Client
	prefix  string
	listCap int64
}

// NewRedisStore connects and pings the server.
func NewRedisStore(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	addr := opts.Addr
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", addr, err)
	}

	return newRedisStore(client, opts), nil
}

func newRedisStore(client *redis.Client, opts RedisOptions) *RedisStore {
	listCap := opts.ListCap
	if listCap <= 0 {
		listCap = defaultListCap
	}
	return &RedisStore{client: client, prefix: opts.Prefix, listCap: int64(listCap)}
}

func (s *RedisStore) key(name string) string {
	return s.prefix + name
}

// Close closes the redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// LoadSettings returns every persisted setting.
func (s *RedisStore) LoadSettings(ctx context.Context) (map[string]string, error) {
	settings, err := s.client.HGetAll(ctx, s.key(keySettings)).Result()
	if err != nil {
		return nil, fmt.Errorf("loading settings: %w", err)
	}
	return settings, nil
}

// SaveSetting upserts a setting.
func (s *RedisStore) SaveSetting(ctx context.Context, key, value string) error {
	if err := s.client.HSet(ctx, s.key(keySettings), key, value).Err(); err != nil {
		return fmt.Errorf("saving setting: %w", err)
	}
	return nil
}

func (s *RedisStore) push(ctx context.Context, list string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, s.key(list), data)
	pipe.LTrim(ctx, s.key(list), 0, s.listCap-1)
	_, err = pipe.Exec(ctx)
	return err
}

// AppendAudit pushes an audit event.
func (s *RedisStore) AppendAudit(ctx context.Context, event *models.AuditEvent) error {
	if err := s.push(ctx, keyAudit, event); err != nil {
		return fmt.Errorf("appending audit event: %w", err)
	}
	return nil
}

// ListAudit scans the audit list, newest first.
func (s *RedisStore) ListAudit(ctx context.Context, filter AuditFilter) ([]models.AuditEvent, error) {
	raw, err := s.client.LRange(ctx, s.key(keyAudit), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("listing audit events: %w", err)
	}

	var events []models.AuditEvent
	for _, item := range raw {
		var ev models.AuditEvent
		if err := json.Unmarshal([]byte(item), &ev); err != nil {
			continue
		}
		if !filter.Match(&ev) {
			continue
		}
		events = append(events, ev)
		if filter.Limit > 0 && len(events) >= filter.Limit {
			break
		}
	}
	return events, nil
}

// SaveSignal pushes a gate decision.
func (s *RedisStore) SaveSignal(ctx context.Context, signal *models.SignalRecord) error {
	if err := s.push(ctx, keySignals, signal); err != nil {
		return fmt.Errorf("saving signal: %w", err)
	}
	return nil
}

// ListSignals scans the signal list, newest first.
func (s *RedisStore) ListSignals(ctx context.Context, filter SignalFilter) ([]models.SignalRecord, error) {
	raw, err := s.client.LRange(ctx, s.key(keySignals), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("listing signals: %w", err)
	}

	var signals []models.SignalRecord
	for _, item := range raw {
		var sig models.SignalRecord
		if err := json.Unmarshal([]byte(item), &sig); err != nil {
			continue
		}
		if !filter.Match(&sig) {
			continue
		}
		signals = append(signals, sig)
		if filter.Limit > 0 && len(signals) >= filter.Limit {
			break
		}
	}
	return signals, nil
}

var _ Store = (*RedisStore)(nil)
