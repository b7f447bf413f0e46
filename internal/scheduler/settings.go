package scheduler

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/rs/zerolog"

	"fx-trader/internal/audit"
	"fx-trader/internal/config"
	"fx-trader/internal/logging"
	"fx-trader/internal/models"
	"fx-trader/internal/security"
	"fx-trader/internal/store"
)

// KeyEnabled is the persisted kill switch.
const KeyEnabled = "agent.enabled"

// Settings is the writable side of the configuration.
type Settings interface {
	ApplyUpdate(updates map[string]any) (*config.Config, error)
	Get(key string) any
}

// Switch turns the agent on and off and keeps persisted settings in step
// with the live configuration. It satisfies risk.Disabler.
type Switch struct {
	settings Settings
	store    store.Store
	sink     audit.Sink
	logger   zerolog.Logger
	sealer   *security.Sealer

	mu      sync.Mutex
	applied map[string]string
}

// NewSwitch creates a switch.
func NewSwitch(settings Settings, st store.Store, sink audit.Sink, logger zerolog.Logger) *Switch {
	if sink == nil {
		sink = audit.Discard{}
	}
	return &Switch{
		settings: settings,
		store:    st,
		sink:     sink,
		logger:   logging.WithComponent(logger, "settings"),
		applied:  make(map[string]string),
	}
}

// SetSealer enables persisting credential settings, which are stored
// encrypted. Without a sealer they are refused.
func (s *Switch) SetSealer(sealer *security.Sealer) {
	s.sealer = sealer
}

// Disable turns trading off and persists the state.
func (s *Switch) Disable(ctx context.Context, reason string) error {
	return s.set(ctx, false, reason)
}

// Enable turns trading on and persists the state.
func (s *Switch) Enable(ctx context.Context, reason string) error {
	return s.set(ctx, true, reason)
}

func (s *Switch) set(ctx context.Context, enabled bool, reason string) error {
	value := strconv.FormatBool(enabled)
	if _, err := s.settings.ApplyUpdate(map[string]any{KeyEnabled: value}); err != nil {
		return fmt.Errorf("applying %s: %w", KeyEnabled, err)
	}
	s.mu.Lock()
	s.applied[KeyEnabled] = value
	s.mu.Unlock()

	if err := s.store.SaveSetting(ctx, KeyEnabled, value); err != nil {
		return fmt.Errorf("persisting %s: %w", KeyEnabled, err)
	}

	state := "disabled"
	if enabled {
		state = "enabled"
	}
	s.logger.Warn().Bool("enabled", enabled).Str("reason", reason).Msg("Agent " + state)
	s.sink.Record(ctx, models.AuditEvent{
		Type:    models.AuditAgentState,
		Message: "agent " + state + ": " + reason,
		Details: map[string]interface{}{"enabled": enabled},
	})
	return nil
}

// Set validates and applies one setting, then persists it.
func (s *Switch) Set(ctx context.Context, key, value string) error {
	if err := security.ValidateSettingKey(key); err != nil {
		return err
	}
	stored := value
	if security.IsSecretKey(key) {
		if s.sealer == nil {
			return fmt.Errorf("%s is a credential; set %s to persist it", key, security.PassphraseEnv)
		}
		sealed, err := s.sealer.Seal(value)
		if err != nil {
			return fmt.Errorf("sealing %s: %w", key, err)
		}
		stored = sealed
	}

	if _, err := s.settings.ApplyUpdate(map[string]any{key: value}); err != nil {
		return err
	}
	s.mu.Lock()
	s.applied[key] = stored
	s.mu.Unlock()

	if err := s.store.SaveSetting(ctx, key, stored); err != nil {
		return fmt.Errorf("persisting %s: %w", key, err)
	}
	shown := fmt.Sprint(security.Redact(key, value))
	s.sink.Record(ctx, models.AuditEvent{
		Type:    models.AuditConfigChanged,
		Message: fmt.Sprintf("%s = %s", key, shown),
		Details: map[string]interface{}{"key": key, "value": shown},
	})
	return nil
}

// Sync loads persisted settings and applies those that changed since the
// last sync. Invalid values are logged once and skipped until they change.
func (s *Switch) Sync(ctx context.Context) error {
	persisted, err := s.store.LoadSettings(ctx)
	if err != nil {
		return fmt.Errorf("loading settings: %w", err)
	}

	keys := make([]string, 0, len(persisted))
	for k := range persisted {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		raw := persisted[k]
		s.mu.Lock()
		prev, seen := s.applied[k]
		s.mu.Unlock()
		if seen && prev == raw {
			continue
		}
		s.mu.Lock()
		s.applied[k] = raw
		s.mu.Unlock()

		v, err := s.open(k, raw)
		if err != nil {
			s.logger.Warn().Err(err).Str("key", k).Msg("Persisted setting unreadable")
			continue
		}
		if !seen && fmt.Sprint(s.settings.Get(k)) == v {
			continue
		}
		shown := fmt.Sprint(security.Redact(k, v))
		if _, err := s.settings.ApplyUpdate(map[string]any{k: v}); err != nil {
			s.logger.Warn().Err(err).Str("key", k).Str("value", shown).Msg("Persisted setting rejected")
			continue
		}
		s.logger.Info().Str("key", k).Str("value", shown).Msg("Setting applied")
	}
	return nil
}

func (s *Switch) open(key, raw string) (string, error) {
	if !security.IsSealed(raw) {
		return raw, nil
	}
	if s.sealer == nil {
		return "", fmt.Errorf("%s is sealed and %s is not set", key, security.PassphraseEnv)
	}
	return s.sealer.Open(raw)
}
