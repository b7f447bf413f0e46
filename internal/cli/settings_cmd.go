package cli

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"fx-trader/internal/audit"
	"fx-trader/internal/scheduler"
	"fx-trader/internal/security"
)

func newSettingsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Persisted runtime settings",
		Long: `Settings override config keys at runtime. They are validated against
the full configuration, stored, and picked up by a running agent on its
next bar refresh.`,
	}
	cmd.AddCommand(newSettingsListCmd(app))
	cmd.AddCommand(newSettingsSetCmd(app))
	return cmd
}

type settingRow struct {
	Key       string `json:"key"`
	Persisted string `json:"persisted"`
	Effective string `json:"effective"`
}

func newSettingsListCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List persisted settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := commandContext(cmd)

			st, err := app.openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			persisted, err := st.LoadSettings(ctx)
			if err != nil {
				return err
			}
			keys := make([]string, 0, len(persisted))
			for k := range persisted {
				keys = append(keys, k)
			}
			sort.Strings(keys)

			rows := make([]settingRow, 0, len(keys))
			for _, k := range keys {
				rows = append(rows, settingRow{
					Key:       k,
					Persisted: fmt.Sprint(security.Redact(k, persisted[k])),
					Effective: fmt.Sprint(security.Redact(k, app.Config.Get(k))),
				})
			}

			if output.IsJSON() {
				return output.JSON(rows)
			}
			if len(rows) == 0 {
				output.Dim("No persisted settings")
				return nil
			}
			table := NewTable(output, "KEY", "PERSISTED", "CONFIG FILE")
			for _, r := range rows {
				table.AddRow(r.Key, r.Persisted, output.DimText(r.Effective))
			}
			table.Render()
			return nil
		},
	}
}

func newSettingsSetCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Validate, apply and persist a setting",
		Example: `  fxtrader settings set agent.enabled true
  fxtrader settings set risk.risk_per_trade_percent 0.5
  FXT_SETTINGS_KEY=... fxtrader settings set gateway.token <token>`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := commandContext(cmd)
			key, value := strings.ToLower(args[0]), args[1]

			st, err := app.openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			rec, err := audit.NewRecorder(audit.Config{}, st, nil, app.Logger)
			if err != nil {
				return err
			}
			defer rec.Close()

			sw := scheduler.NewSwitch(app.Config, st, rec, app.Logger)
			sw.SetSealer(security.SealerFromEnv())
			if key == scheduler.KeyEnabled {
				enabled, perr := strconv.ParseBool(value)
				if perr != nil {
					return fmt.Errorf("%s must be true or false", key)
				}
				value = strconv.FormatBool(enabled)
				if enabled {
					err = sw.Enable(ctx, "set from command line")
				} else {
					err = sw.Disable(ctx, "set from command line")
				}
			} else {
				err = sw.Set(ctx, key, value)
			}
			if err != nil {
				if !output.IsJSON() {
					output.Error("✗ %s rejected: %v", key, err)
				}
				return err
			}

			if output.IsJSON() {
				return output.JSON(settingRow{Key: key, Persisted: fmt.Sprint(security.Redact(key, value)), Effective: fmt.Sprint(security.Redact(key, app.Config.Get(key)))})
			}
			output.Success("✓ %s = %v", key, security.Redact(key, value))
			return nil
		},
	}
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
