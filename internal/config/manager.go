package config

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"fx-trader/internal/errors"
)

// Provider hands out the current immutable configuration snapshot.
// Callers must treat the returned value as read-only.
type Provider interface {
	Current() *Config
}

// ChangeFunc is called after a new snapshot has been swapped in.
type ChangeFunc func(old, updated *Config)

// Manager owns the live configuration. Every update is validated before
// it replaces the snapshot, so readers never observe an invalid config.
type Manager struct {
	mu          sync.Mutex
	v           *viper.Viper
	current     atomic.Pointer[Config]
	subscribers []ChangeFunc
	logger      zerolog.Logger
	path        string
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory.
func Load(configDir string) (*Manager, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("loading config.toml: %w", err)
		}
		path, err := createTemplateConfig(configDir, "config")
		if err != nil {
			return nil, err
		}
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("loading config template: %w", err)
		}
	}

	applyEnvOverrides(v)

	m := &Manager{v: v, logger: zerolog.Nop(), path: v.ConfigFileUsed()}
	cfg, err := m.decode(v)
	if err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	m.current.Store(cfg)
	return m, nil
}

// NewManager builds a manager around defaults plus the given overrides.
// Used where no config file is involved.
func NewManager(overrides map[string]any) (*Manager, error) {
	v := viper.New()
	setDefaults(v)
	for k, val := range overrides {
		v.Set(k, val)
	}
	m := &Manager{v: v, logger: zerolog.Nop()}
	cfg, err := m.decode(v)
	if err != nil {
		return nil, err
	}
	m.current.Store(cfg)
	return m, nil
}

// SetLogger sets the logger used for reload reporting.
func (m *Manager) SetLogger(logger zerolog.Logger) {
	m.mu.Lock()
	m.logger = logger.With().Str("component", "config").Logger()
	m.mu.Unlock()
}

// Current returns the current snapshot.
func (m *Manager) Current() *Config {
	return m.current.Load()
}

// Path returns the config file in use, if any.
func (m *Manager) Path() string {
	return m.path
}

// OnChange registers a subscriber notified after every successful swap.
func (m *Manager) OnChange(fn ChangeFunc) {
	m.mu.Lock()
	m.subscribers = append(m.subscribers, fn)
	m.mu.Unlock()
}

// Watch reloads the snapshot whenever the config file changes on disk.
// An invalid file is logged and the previous snapshot stays in effect.
func (m *Manager) Watch() {
	if m.path == "" {
		return
	}
	m.v.OnConfigChange(func(e fsnotify.Event) {
		if err := m.Reload(); err != nil {
			m.logger.Error().Err(err).Str("file", e.Name).Msg("Config reload rejected")
			return
		}
		m.logger.Info().Str("file", e.Name).Msg("Config reloaded")
	})
	m.v.WatchConfig()
}

// Reload re-reads the config file and swaps in the result if it validates.
func (m *Manager) Reload() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.path != "" {
		if err := m.v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config: %w", err)
		}
	}
	cfg, err := m.decode(m.v)
	if err != nil {
		return err
	}
	m.swap(cfg)
	return nil
}

// ApplyUpdate applies a partial update of dotted keys. The candidate is
// validated first; on error nothing changes. Values may be strings, which
// are decoded into the target field's type.
func (m *Manager) ApplyUpdate(updates map[string]any) (*Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	known := make(map[string]bool)
	for _, k := range m.v.AllKeys() {
		known[k] = true
	}

	candidate := viper.New()
	if err := candidate.MergeConfigMap(m.v.AllSettings()); err != nil {
		return nil, fmt.Errorf("copying settings: %w", err)
	}
	for k, val := range updates {
		key := strings.ToLower(k)
		if !known[key] {
			return nil, errors.NewValidationError(key, val, "unknown setting")
		}
		candidate.Set(key, val)
	}

	cfg, err := m.decode(candidate)
	if err != nil {
		return nil, err
	}

	for k, val := range updates {
		m.v.Set(strings.ToLower(k), val)
	}
	m.swap(cfg)
	return cfg, nil
}

// Keys returns every known setting key, sorted.
func (m *Manager) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := m.v.AllKeys()
	sort.Strings(keys)
	return keys
}

// Get returns the effective value for a key.
func (m *Manager) Get(key string) any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.v.Get(key)
}

func (m *Manager) decode(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(errors.ErrConfigInvalid, err.Error())
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// swap must be called with m.mu held.
func (m *Manager) swap(cfg *Config) {
	old := m.current.Swap(cfg)
	for _, fn := range m.subscribers {
		fn(old, cfg)
	}
}

// Static is a fixed Provider, mostly for tests.
type Static struct {
	cfg atomic.Pointer[Config]
}

// NewStatic returns a Provider that always yields cfg until Set is called.
func NewStatic(cfg *Config) *Static {
	s := &Static{}
	s.cfg.Store(cfg)
	return s
}

// Current returns the stored snapshot.
func (s *Static) Current() *Config {
	return s.cfg.Load()
}

// Set replaces the stored snapshot.
func (s *Static) Set(cfg *Config) {
	s.cfg.Store(cfg)
}
