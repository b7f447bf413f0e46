package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"fx-trader/internal/models"
	"fx-trader/internal/security"
	"fx-trader/internal/store"
)

func newAuditCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the audit trail",
	}

	var (
		eventType string
		symbol    string
		since     time.Duration
		limit     int
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List audit events, newest first",
		Example: `  fxtrader audit list --type ORDER_PLACED --since 24h
  fxtrader audit list --symbol EURUSD --limit 20`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := commandContext(cmd)

			st, err := app.openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			filter := store.AuditFilter{
				Type:   models.AuditEventType(strings.ToUpper(eventType)),
				Symbol: strings.ToUpper(symbol),
				Limit:  limit,
			}
			if filter.Symbol != "" {
				if err := security.ValidateSymbol(filter.Symbol); err != nil {
					return err
				}
			}
			if since > 0 {
				filter.StartDate = time.Now().Add(-since)
			}
			events, err := st.ListAudit(ctx, filter)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(events)
			}
			if len(events) == 0 {
				output.Dim("No audit events")
				return nil
			}
			table := NewTable(output, "TIME", "TYPE", "SYMBOL", "TICKET", "MESSAGE")
			for _, ev := range events {
				table.AddRow(FormatDateTime(ev.Timestamp), colorEventType(output, ev.Type), ev.Symbol, ev.Ticket,
					TruncateString(ev.Message, 80))
			}
			table.Render()
			return nil
		},
	}
	list.Flags().StringVar(&eventType, "type", "", "event type, e.g. ORDER_PLACED")
	list.Flags().StringVar(&symbol, "symbol", "", "instrument symbol")
	list.Flags().DurationVar(&since, "since", 0, "only events newer than this")
	list.Flags().IntVar(&limit, "limit", 50, "maximum number of events")
	cmd.AddCommand(list)
	return cmd
}

func colorEventType(output *Output, t models.AuditEventType) string {
	switch t {
	case models.AuditBreaker, models.AuditEmergencyStop, models.AuditOrderFailed:
		return output.Red(string(t))
	case models.AuditOrderPlaced, models.AuditHedgeOpened:
		return output.Green(string(t))
	case models.AuditRejection:
		return output.Yellow(string(t))
	}
	return string(t)
}

func newSignalsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "signals",
		Short: "Inspect gate decisions",
	}

	var (
		symbol   string
		approved bool
		since    time.Duration
		limit    int
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List gate decisions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := commandContext(cmd)

			st, err := app.openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			filter := store.SignalFilter{
				Symbol:       strings.ToUpper(symbol),
				ApprovedOnly: approved,
				Limit:        limit,
			}
			if filter.Symbol != "" {
				if err := security.ValidateSymbol(filter.Symbol); err != nil {
					return err
				}
			}
			if since > 0 {
				filter.StartDate = time.Now().Add(-since)
			}
			signals, err := st.ListSignals(ctx, filter)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(signals)
			}
			if len(signals) == 0 {
				output.Dim("No signals")
				return nil
			}
			table := NewTable(output, "TIME", "SYMBOL", "DIRECTION", "QUALITY", "GATE", "REASON")
			for _, s := range signals {
				verdict := output.Flag(s.Approved, "approved", "rejected")
				if s.Overridden {
					verdict += output.Cyan(" (override)")
				}
				table.AddRow(FormatDateTime(s.Timestamp), s.Symbol, output.Side(string(s.Direction)),
					fmt.Sprintf("%.1f", s.Quality), verdict, TruncateString(s.Reason, 60))
			}
			table.Render()
			return nil
		},
	}
	list.Flags().StringVar(&symbol, "symbol", "", "instrument symbol")
	list.Flags().BoolVar(&approved, "approved", false, "only approved decisions")
	list.Flags().DurationVar(&since, "since", 0, "only decisions newer than this")
	list.Flags().IntVar(&limit, "limit", 50, "maximum number of decisions")
	cmd.AddCommand(list)
	return cmd
}
