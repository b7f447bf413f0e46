package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# FX Trader Configuration

[agent]
# The agent starts disabled; enable it with "fxtrader settings set agent.enabled true"
enabled = false
# Trading mode: "live", "demo" or "paper"
mode = "paper"
instruments = ["EURUSD", "GBPUSD", "USDJPY"]
# Optional instrument reference data (yaml); built-in majors are used otherwise
instruments_file = ""
tick_interval = "1s"
bar_refresh_interval = "30s"
tick_ttl = "10s"
# Moves smaller than this skip analysis
price_epsilon_pips = 0.1
entry_timeframe = "M5"
trend_timeframe = "H1"
bar_count = 200
min_bars = 50
workers = 4
paper_balance = 10000.0

[gateway]
base_url = "http://127.0.0.1:5000"
# Prefer FXT_GATEWAY_TOKEN over storing the token here
token = ""
stream_url = ""
timeout = "5s"
max_retries = 3
initial_backoff = "200ms"
max_backoff = "2s"
rate_limit = 20.0
rate_burst = 40
breaker_failures = 5
breaker_cooldown = "30s"

[risk]
risk_per_trade_percent = 1.0
daily_loss_cap_percent = 5.0
max_drawdown_percent = 10.0
max_concurrent_positions = 3
max_positions_per_instrument = 1
max_daily_trades = 20
min_balance = 100.0
min_margin_level = 200.0
max_leverage = 30.0
max_margin_per_trade_percent = 20.0
max_free_margin_usage_percent = 50.0
min_lot = 0.01
max_lot = 1.0
lots_per_thousand_equity = 0.5
min_stop_pips = 5.0
max_stop_pips = 100.0
default_stop_pips = 20.0
reward_ratio = 2.0
# Size multipliers per account type
live_conservatism = 0.5
demo_conservatism = 1.0
order_cooldown = "1m"

[risk.regime_boost]
enabled = false
threshold = 0.3
full_score = 1.0
min_boost_percent = 5.0
max_boost_percent = 25.0

[gate]
min_confidence = 60.0
reduced_min_confidence = 50.0
reduced_instruments = []
momentum_lookback = 5
consecutive_override = 3
trend_strength_adx = 25.0
entry_cooldown = "15m"
loss_cooldown = "30m"
reversal_override_confidence = 75.0
buy_rsi_min = 40.0
buy_rsi_max = 70.0
sell_rsi_min = 30.0
sell_rsi_max = 60.0

[[gate.sessions]]
name = "london"
start = "07:00"
end = "11:00"

[[gate.sessions]]
name = "new_york"
start = "12:00"
end = "16:00"

[gate.weights]
structure = 0.40
confluence = 0.35
momentum = 0.25

[lifecycle]
# Multiples of the initial risk distance
break_even_trigger_r = 0.25
break_even_buffer_pips = 1.0
trailing_trigger_r = 1.0
trailing_buffer_pips = 10.0
trailing_step_r = 0.25
# Account currency
partial_profit_amount = 50.0
# "0s" disables the max hold exit
max_hold = "0s"
reversal_exit_confidence = 80.0

[hedge]
enabled = true
interval = "5s"
# Fractions of the original risk distance
trigger_excursion = 0.05
reversal_confidence = 40.0
ratio = 0.5
max_hedges_per_position = 2
stop_fraction = 0.5
target_fraction = 1.0
forced_exit_excursion = 0.9
recovery_excursion = 0.02

[analyzers]
enabled = ["structure", "confluence", "momentum"]

[analyzers.stub]
# Seeded random stand-in, never enable against a live account
enabled = false
seed = 42

[analyzers.llm]
enabled = false
model = "gpt-4o-mini"
# Prefer OPENAI_API_KEY
api_key = ""
timeout = "10s"

[store]
# sqlite, redis, postgres or memory
backend = "sqlite"
redis_addr = "localhost:6379"
redis_prefix = "fxt:"
postgres_dsn = ""

[logging]
level = "info"
console = true
file = true

[notifications]
enabled = false
webhook_url = ""
# all, trades_only or errors_only
level = "all"

[profiling]
enabled = false
server_address = "http://localhost:4040"
app_name = "fx-trader"
`

func createTemplateConfig(configDir, name string) (string, error) {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return "", fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, name+".toml")
	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return "", fmt.Errorf("writing config template: %w", err)
	}

	return path, nil
}
