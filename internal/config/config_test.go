package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fx-trader/internal/errors"
)

func TestDefaultIsValidAndFailClosed(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.False(t, cfg.Agent.Enabled)
	assert.True(t, cfg.IsPaperMode())
	assert.Len(t, cfg.Gate.Sessions, 2)
	assert.InDelta(t, 0.40, cfg.Gate.Weights["structure"], 1e-9)
	assert.Equal(t, time.Second, cfg.Agent.TickInterval)
}

func TestLoadCreatesTemplate(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("FXT_MODE", "demo")

	m, err := Load(dir)
	require.NoError(t, err)

	_, statErr := os.Stat(filepath.Join(dir, "config.toml"))
	assert.NoError(t, statErr)
	assert.Equal(t, "demo", m.Current().Agent.Mode)
	assert.Equal(t, 15*time.Minute, m.Current().Gate.EntryCooldown)
	assert.Equal(t, "london", m.Current().Gate.Sessions[0].Name)
}

func TestApplyUpdate(t *testing.T) {
	m, err := NewManager(nil)
	require.NoError(t, err)

	var notified int
	m.OnChange(func(old, updated *Config) {
		notified++
		assert.False(t, old.Agent.Enabled)
		assert.True(t, updated.Agent.Enabled)
	})

	cfg, err := m.ApplyUpdate(map[string]any{
		"agent.enabled":       "true",
		"gate.min_confidence": "70",
		"gate.entry_cooldown": "5m",
	})
	require.NoError(t, err)
	assert.True(t, cfg.Agent.Enabled)
	assert.InDelta(t, 70.0, m.Current().Gate.MinConfidence, 1e-9)
	assert.Equal(t, 5*time.Minute, m.Current().Gate.EntryCooldown)
	assert.Equal(t, 1, notified)
}

func TestApplyUpdateRejectsInvalid(t *testing.T) {
	m, err := NewManager(nil)
	require.NoError(t, err)
	before := m.Current()

	_, err = m.ApplyUpdate(map[string]any{"risk.min_lot": 5.0})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrConfigInvalid))
	assert.Same(t, before, m.Current())

	_, err = m.ApplyUpdate(map[string]any{"risk.no_such_thing": 1})
	require.Error(t, err)
	assert.Same(t, before, m.Current())
}

func TestValidateBounds(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad mode", func(c *Config) { c.Agent.Mode = "yolo" }},
		{"no instruments", func(c *Config) { c.Agent.Instruments = nil }},
		{"stop bounds inverted", func(c *Config) { c.Risk.MinStopPips = 200 }},
		{"lot bounds inverted", func(c *Config) { c.Risk.MaxLot = 0.001 }},
		{"hedge thresholds unordered", func(c *Config) { c.Hedge.RecoveryExcursion = 0.5 }},
		{"bad session", func(c *Config) { c.Gate.Sessions[0].Start = "7am" }},
		{"postgres without dsn", func(c *Config) { c.Store.Backend = "postgres" }},
		{"reduced above min", func(c *Config) { c.Gate.ReducedMinConfidence = 90 }},
		{"negative daily trades", func(c *Config) { c.Risk.MaxDailyTrades = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadInstruments(t *testing.T) {
	path := filepath.Join(t.TempDir(), "instruments.yaml")
	content := `instruments:
  - symbol: xauusd
    pip_size: 0.1
    contract_size: 100
    min_volume: 0.01
    max_volume: 50
    volume_step: 0.01
    pip_value_per_lot: 10
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	insts, err := LoadInstruments(path)
	require.NoError(t, err)
	assert.Contains(t, insts, "EURUSD")
	gold, ok := insts["XAUUSD"]
	require.True(t, ok)
	assert.InDelta(t, 0.1, gold.PipSize, 1e-12)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("instruments:\n  - symbol: X\n"), 0644))
	_, err = LoadInstruments(bad)
	assert.Error(t, err)
}

func TestParseSessionWindow(t *testing.T) {
	start, end, err := ParseSessionWindow(SessionWindow{Name: "x", Start: "07:30", End: "11:00"})
	require.NoError(t, err)
	assert.Equal(t, 450, start)
	assert.Equal(t, 660, end)
}
