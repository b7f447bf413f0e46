package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fx-trader/internal/resilience"
	"fx-trader/internal/security"
)

func writeConfig(t *testing.T, extra string) string {
	t.Helper()
	dir := t.TempDir()
	body := fmt.Sprintf(`[agent]
mode = "paper"
instruments = ["EURUSD", "USDJPY"]

[gateway]
token = "s3cret"

[store]
backend = "sqlite"
path = %q
audit_file = ""

[logging]
console = false
file = false
%s`, filepath.Join(dir, "agent.db"), extra)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(body), 0644))
	return dir
}

func run(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", dir}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, t.TempDir(), "version")
	require.NoError(t, err)
	assert.Contains(t, out, "fxtrader v"+Version)
}

func TestConfigValidate(t *testing.T) {
	dir := writeConfig(t, "")
	out, err := run(t, dir, "config", "validate", "--json")
	require.NoError(t, err)

	var got map[string]bool
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.True(t, got["valid"])
}

func TestConfigValidateUnknownInstrument(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(`[agent]
instruments = ["EURXYZ"]
[logging]
console = false
file = false
`), 0644))

	_, err := run(t, dir, "config", "validate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "EURXYZ")
}

func TestConfigShowRedactsSecrets(t *testing.T) {
	dir := writeConfig(t, "")
	out, err := run(t, dir, "config", "show", "--json")
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "********", got["gateway.token"])
	assert.Equal(t, "paper", got["agent.mode"])
	assert.NotContains(t, out, "s3cret")
}

func TestConfigPath(t *testing.T) {
	dir := writeConfig(t, "")
	out, err := run(t, dir, "config", "path")
	require.NoError(t, err)
	assert.Contains(t, out, filepath.Join(dir, "config.toml"))
}

func TestSettingsSetAndList(t *testing.T) {
	dir := writeConfig(t, "")

	_, err := run(t, dir, "settings", "set", "risk.risk_per_trade_percent", "0.5")
	require.NoError(t, err)

	out, err := run(t, dir, "settings", "list", "--json")
	require.NoError(t, err)
	var rows []settingRow
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "risk.risk_per_trade_percent", rows[0].Key)
	assert.Equal(t, "0.5", rows[0].Persisted)

	out, err = run(t, dir, "audit", "list", "--type", "config_changed", "--json")
	require.NoError(t, err)
	var events []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &events))
	require.Len(t, events, 1)
	assert.Equal(t, "risk.risk_per_trade_percent = 0.5", events[0]["message"])
}

func TestSettingsSetRejectsInvalidValues(t *testing.T) {
	dir := writeConfig(t, "")

	_, err := run(t, dir, "settings", "set", "risk.risk_per_trade_percent", "25")
	require.Error(t, err)
	_, err = run(t, dir, "settings", "set", "risk.no_such_key", "1")
	require.Error(t, err)
	_, err = run(t, dir, "settings", "set", "agent.enabled", "maybe")
	require.Error(t, err)

	out, err := run(t, dir, "settings", "list", "--json")
	require.NoError(t, err)
	var rows []settingRow
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	assert.Empty(t, rows)
}

func TestSettingsSetCredential(t *testing.T) {
	dir := writeConfig(t, "")

	t.Setenv(security.PassphraseEnv, "")
	_, err := run(t, dir, "settings", "set", "gateway.token", "new-token")
	require.Error(t, err)

	t.Setenv(security.PassphraseEnv, "pw")
	out, err := run(t, dir, "settings", "set", "gateway.token", "new-token", "--json")
	require.NoError(t, err)
	assert.NotContains(t, out, "new-token")

	out, err = run(t, dir, "settings", "list", "--json")
	require.NoError(t, err)
	var rows []settingRow
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, security.Masked, rows[0].Persisted)
	assert.NotContains(t, out, "new-token")
}

func TestRecordsRejectBadSymbol(t *testing.T) {
	dir := writeConfig(t, "")
	_, err := run(t, dir, "audit", "list", "--symbol", "EUR/USD")
	require.Error(t, err)
	_, err = run(t, dir, "signals", "list", "--symbol", "eurusd")
	require.NoError(t, err)
}

func TestEnableShowsInStatus(t *testing.T) {
	dir := writeConfig(t, "")

	out, err := run(t, dir, "agent", "status", "--json")
	require.NoError(t, err)
	var before statusReport
	require.NoError(t, json.Unmarshal([]byte(out), &before))
	assert.False(t, before.Enabled)
	assert.Empty(t, before.Recent)

	_, err = run(t, dir, "settings", "set", "agent.enabled", "true")
	require.NoError(t, err)

	out, err = run(t, dir, "agent", "status", "--json")
	require.NoError(t, err)
	var after statusReport
	require.NoError(t, json.Unmarshal([]byte(out), &after))
	assert.True(t, after.Enabled)
	assert.Equal(t, "paper", after.Mode)
	assert.Equal(t, []string{"EURUSD", "USDJPY"}, after.Instruments)
	require.Len(t, after.Recent, 1)
	assert.Equal(t, "AGENT_STATE", string(after.Recent[0].Type))
	assert.Nil(t, after.Account)
}

func TestSignalsListEmpty(t *testing.T) {
	dir := writeConfig(t, "")
	out, err := run(t, dir, "signals", "list", "--approved")
	require.NoError(t, err)
	assert.Contains(t, out, "No signals")
}

func TestDescribeExecution(t *testing.T) {
	fill := resilience.Execution{
		Ticket: "T7", Symbol: "EURUSD", Side: "BUY",
		Filled: 1.10031, SlippagePips: 1.1, Latency: 42 * time.Millisecond,
	}
	assert.Equal(t, "T7 EURUSD BUY at 1.10031 (+1.1 pips, 42ms)", describeExecution(fill))

	rejected := resilience.Execution{Symbol: "GBPUSD", Side: "SELL", Rejected: true, RejectReason: "market closed"}
	assert.Equal(t, "GBPUSD SELL rejected: market closed", describeExecution(rejected))
}
