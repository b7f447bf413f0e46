package cli

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"fx-trader/internal/broker"
	"fx-trader/internal/models"
	"fx-trader/internal/performance"
	"fx-trader/internal/resilience"
	"fx-trader/internal/scheduler"
	"fx-trader/internal/store"
)

func newAgentCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Run and inspect the trading agent",
	}
	cmd.AddCommand(newAgentRunCmd(app))
	cmd.AddCommand(newAgentStatusCmd(app))
	return cmd
}

func newAgentRunCmd(app *App) *cobra.Command {
	var enable bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the agent in the foreground",
		Long: `Run the agent until interrupted. SIGINT or SIGTERM stop the loops;
open positions are left with their venue-side stops.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
			defer stop()

			agent, err := NewAgent(ctx, app.Config, app.Logger, AgentOptions{})
			if err != nil {
				return err
			}
			defer agent.Close()

			if enable {
				if err := agent.Switch.Enable(ctx, "started with --enable"); err != nil {
					return err
				}
			}

			cfg := app.Config.Current()
			if !output.IsJSON() {
				output.Info("Agent starting in %s mode on %v", cfg.Agent.Mode, cfg.Agent.Instruments)
				if !cfg.Agent.Enabled {
					output.Warning("Trading is disabled; run 'fxtrader settings set agent.enabled true' to enable it")
				}
			}

			err = agent.Run(ctx)
			if err != nil && !stderrors.Is(err, context.Canceled) {
				return err
			}

			stats := agent.Scheduler.Stats()
			execution := agent.Execution.Stats()
			recent := agent.Execution.Recent(recentExecutions)
			hub, streaming := agent.StreamMetrics()
			mem := performance.MemoryStats()
			if output.IsJSON() {
				summary := map[string]any{"session": stats, "execution": execution, "recent_executions": recent, "memory": mem}
				if streaming {
					summary["stream"] = hub
				}
				return output.JSON(summary)
			}
			output.Success("Agent stopped")
			output.KeyValues("Session", [][2]string{
				{"cycles", strconv.FormatUint(stats.Cycles, 10)},
				{"skipped", strconv.FormatUint(stats.SkippedCycles, 10)},
				{"analyses", strconv.FormatUint(stats.Analyses, 10)},
				{"approved", strconv.FormatUint(stats.Approved, 10)},
				{"orders", strconv.FormatUint(stats.Orders, 10)},
				{"rejections", strconv.FormatUint(stats.Rejections, 10)},
				{"closed", strconv.FormatUint(stats.Closed, 10)},
			})
			if execution.Fills+execution.Rejections > 0 {
				output.KeyValues("Execution", [][2]string{
					{"fills", strconv.Itoa(execution.Fills)},
					{"rejected", strconv.Itoa(execution.Rejections)},
					{"avg slippage", fmt.Sprintf("%.1f pips", execution.AvgSlippagePips)},
					{"avg latency", execution.AvgLatency.Round(time.Millisecond).String()},
					{"last", describeExecution(recent[0])},
				})
			}
			if streaming {
				output.KeyValues("Stream", [][2]string{
					{"received", strconv.FormatUint(hub.TicksReceived, 10)},
					{"dropped", strconv.FormatUint(hub.TicksDropped, 10)},
				})
			}
			output.Dim("heap %s, %d goroutines", performance.FormatBytes(mem.HeapAlloc), mem.Goroutines)
			return nil
		},
	}

	cmd.Flags().BoolVar(&enable, "enable", false, "enable trading at startup and persist the switch")
	return cmd
}

// statusReport is what 'agent status' shows.
type statusReport struct {
	Enabled      bool                         `json:"enabled"`
	Mode         string                       `json:"mode"`
	Instruments  []string                     `json:"instruments"`
	Account      *models.AccountSnapshot      `json:"account,omitempty"`
	Positions    []models.GatewayPosition     `json:"positions,omitempty"`
	GatewayError string                       `json:"gateway_error,omitempty"`
	Health       []resilience.ComponentHealth `json:"health,omitempty"`
	Recent       []models.AuditEvent          `json:"recent_events"`
}

var stateEvents = []models.AuditEventType{
	models.AuditAgentState,
	models.AuditBreaker,
	models.AuditEmergencyStop,
}

func newAgentStatusCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the agent switch, venue account and recent state changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := commandContext(cmd)

			st, err := app.openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			cfg := app.Config.Current()
			report := statusReport{
				Enabled:     cfg.Agent.Enabled,
				Mode:        cfg.Agent.Mode,
				Instruments: cfg.Agent.Instruments,
			}
			settings, err := st.LoadSettings(ctx)
			if err != nil {
				return err
			}
			if v, ok := settings[scheduler.KeyEnabled]; ok {
				report.Enabled, _ = strconv.ParseBool(v)
			}

			if !cfg.IsPaperMode() && cfg.Gateway.BaseURL != "" {
				gw := broker.NewHTTPGateway(broker.HTTPGatewayConfig{
					BaseURL: cfg.Gateway.BaseURL,
					Token:   cfg.Gateway.Token,
					Timeout: cfg.Gateway.Timeout,
					Logger:  app.Logger,
				})
				mon := resilience.NewHealthMonitor(resilience.HealthMonitorConfig{CheckTimeout: cfg.Gateway.Timeout})
				mon.RegisterComponent("gateway", resilience.APIHealthCheck(func(ctx context.Context) error {
					acct, err := gw.GetAccountInfo(ctx)
					report.Account = acct
					return err
				}, slowGateway))
				for _, h := range mon.CheckNow(ctx).Components {
					if h.Name == "gateway" {
						report.Health = append(report.Health, h)
					}
				}
				if report.Account == nil {
					report.GatewayError = report.Health[0].Message
				} else if report.Positions, err = gw.GetPositions(ctx); err != nil {
					report.GatewayError = err.Error()
				}
			}

			report.Recent, err = recentStateEvents(ctx, st, 10)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(report)
			}
			printStatus(output, report)
			return nil
		},
	}
}

func recentStateEvents(ctx context.Context, st store.Store, limit int) ([]models.AuditEvent, error) {
	var events []models.AuditEvent
	for _, t := range stateEvents {
		evs, err := st.ListAudit(ctx, store.AuditFilter{Type: t, Limit: limit})
		if err != nil {
			return nil, err
		}
		events = append(events, evs...)
	}
	sortEventsNewestFirst(events)
	if len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

func sortEventsNewestFirst(events []models.AuditEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.After(events[j].Timestamp)
	})
}

const recentExecutions = 10

func describeExecution(e resilience.Execution) string {
	if e.Rejected {
		return fmt.Sprintf("%s %s rejected: %s", e.Symbol, e.Side, e.RejectReason)
	}
	return fmt.Sprintf("%s %s %s at %.5f (%+.1f pips, %v)", e.Ticket, e.Symbol, e.Side, e.Filled, e.SlippagePips, e.Latency.Round(time.Millisecond))
}

func printStatus(output *Output, r statusReport) {
	output.KeyValues("Agent", [][2]string{
		{"trading", output.Flag(r.Enabled, "enabled", "disabled")},
		{"mode", r.Mode},
		{"instruments", fmt.Sprint(r.Instruments)},
	})

	if len(r.Health) > 0 {
		rows := make([][2]string, 0, len(r.Health))
		for _, h := range r.Health {
			rows = append(rows, [2]string{h.Name, fmt.Sprintf("%s  %s", h.Status, h.Message)})
		}
		output.Println()
		output.KeyValues("Health", rows)
	}
	if r.GatewayError != "" {
		output.Println()
		output.Error("Gateway unreachable: %s", r.GatewayError)
	}
	if r.Account != nil {
		output.Println()
		output.KeyValues("Account", [][2]string{
			{"balance", FormatMoney(r.Account.Balance)},
			{"equity", FormatMoney(r.Account.Equity)},
			{"free margin", FormatMoney(r.Account.FreeMargin)},
			{"margin level", fmt.Sprintf("%.0f%%", r.Account.MarginLevel)},
			{"trade allowed", output.Flag(r.Account.TradeAllowed, "yes", "no")},
		})
	}
	if len(r.Positions) > 0 {
		output.Println()
		table := NewTable(output, "TICKET", "SYMBOL", "SIDE", "LOTS", "OPEN", "SL", "TP", "P/L")
		for _, p := range r.Positions {
			table.AddRow(p.Ticket, p.Symbol, output.Side(string(p.Side)), FormatLots(p.Volume),
				fmt.Sprintf("%.5f", p.OpenPrice), fmt.Sprintf("%.5f", p.StopLoss), fmt.Sprintf("%.5f", p.TakeProfit),
				output.PnL(p.Profit))
		}
		table.Render()
	}

	output.Println()
	if len(r.Recent) == 0 {
		output.Dim("No state changes recorded")
		return
	}
	output.Bold("Recent state changes")
	for _, ev := range r.Recent {
		output.Printf("  %s  %-14s %s\n", output.DimText(FormatDateTime(ev.Timestamp)), ev.Type, ev.Message)
	}
}
