package cli

import (
	"context"
	"fmt"

	"github.com/grafana/pyroscope-go"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"fx-trader/internal/config"
	"fx-trader/internal/logging"
	"fx-trader/internal/security"
	"fx-trader/internal/store"
)

// Version information
const (
	Version   = "0.3.0"
	BuildDate = "2026-10-01"
)

// App holds the application dependencies shared by every command.
type App struct {
	Config   *config.Manager
	Logger   zerolog.Logger
	profiler *pyroscope.Profiler
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd() *cobra.Command {
	app := &App{Logger: zerolog.Nop()}

	rootCmd := &cobra.Command{
		Use:   "fxtrader",
		Short: "Automated FX trading agent",
		Long: `fxtrader runs an automated FX trading agent against a broker gateway.

It analyzes a basket of currency pairs on a fixed tick, filters signals
through a decision gate, sizes and places orders under hard risk limits,
manages open positions and hedges adverse moves.

Use 'fxtrader agent run' to start the agent in the foreground.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return app.init(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if app.profiler != nil {
				return app.profiler.Stop()
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/fx-trader)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	rootCmd.PersistentFlags().Bool("profile", false, "send continuous profiles to pyroscope")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
	rootCmd.AddCommand(newAgentCmd(app))
	rootCmd.AddCommand(newSettingsCmd(app))
	rootCmd.AddCommand(newAuditCmd(app))
	rootCmd.AddCommand(newSignalsCmd(app))

	return rootCmd
}

func (app *App) init(cmd *cobra.Command) error {
	dir, _ := cmd.Flags().GetString("config")
	mgr, err := config.Load(dir)
	if err != nil {
		return err
	}
	app.Config = mgr
	cfg := mgr.Current()

	logCfg := logging.DefaultLogConfig()
	logCfg.Level = cfg.Logging.Level
	logCfg.Console = cfg.Logging.Console
	logCfg.File = cfg.Logging.File
	logCfg.FilePath = cfg.Logging.FilePath
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		logCfg.Level = "debug"
		logging.SetDebugLevel()
	}
	app.Logger = logging.NewLoggerWithConfig(logCfg)
	mgr.SetLogger(app.Logger)

	profile, _ := cmd.Flags().GetBool("profile")
	if profile || cfg.Profiling.Enabled {
		p, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: cfg.Profiling.AppName,
			ServerAddress:   cfg.Profiling.ServerAddress,
			Tags:            map[string]string{"mode": cfg.Agent.Mode},
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileAllocSpace,
				pyroscope.ProfileInuseObjects,
				pyroscope.ProfileInuseSpace,
				pyroscope.ProfileGoroutines,
			},
		})
		if err != nil {
			return fmt.Errorf("starting profiler: %w", err)
		}
		app.profiler = p
		app.Logger.Info().Str("server", cfg.Profiling.ServerAddress).Msg("Profiling enabled")
	}
	return nil
}

// openStore opens the configured backend for one-shot commands.
func (app *App) openStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, app.Config.Current().Store, app.Logger)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	return st, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			} else {
				output.Printf("fxtrader v%s\n", Version)
				output.Dim("Build date: %s", BuildDate)
			}
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and validate the agent configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				values := make(map[string]any)
				for _, k := range app.Config.Keys() {
					values[k] = security.Redact(k, app.Config.Get(k))
				}
				return output.JSON(values)
			}
			showConfig(output, app.Config)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show the configuration file in use",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{"path": app.Config.Path()})
			} else {
				output.Println(app.Config.Path())
			}
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration and instrument definitions",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			cfg := app.Config.Current()
			err := cfg.Validate()
			if err == nil {
				_, err = loadInstruments(cfg)
			}
			if err != nil {
				if output.IsJSON() {
					output.JSON(map[string]any{"valid": false, "error": err.Error()})
				} else {
					output.Error("✗ Configuration is invalid: %v", err)
				}
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]bool{"valid": true})
			}
			output.Success("✓ Configuration is valid")
			return nil
		},
	})

	return cmd
}

func showConfig(output *Output, mgr *config.Manager) {
	cfg := mgr.Current()
	output.KeyValues("Agent", [][2]string{
		{"enabled", output.Flag(cfg.Agent.Enabled, "yes", "no")},
		{"mode", cfg.Agent.Mode},
		{"instruments", fmt.Sprint(cfg.Agent.Instruments)},
		{"tick interval", cfg.Agent.TickInterval.String()},
		{"bar refresh", cfg.Agent.BarRefreshInterval.String()},
		{"timeframes", cfg.Agent.EntryTimeframe + " / " + cfg.Agent.TrendTimeframe},
	})
	output.Println()
	output.KeyValues("Risk", [][2]string{
		{"risk per trade", FormatPercent(cfg.Risk.RiskPerTradePercent)},
		{"daily loss cap", FormatPercent(cfg.Risk.DailyLossCapPercent)},
		{"max drawdown", FormatPercent(cfg.Risk.MaxDrawdownPercent)},
		{"max positions", fmt.Sprint(cfg.Risk.MaxConcurrentPositions)},
		{"lots", FormatLots(cfg.Risk.MinLot) + " - " + FormatLots(cfg.Risk.MaxLot)},
	})
	output.Println()

	output.Bold("All keys")
	for _, k := range mgr.Keys() {
		output.Printf("  %s = %v\n", output.DimText(k), security.Redact(k, mgr.Get(k)))
	}
	if path := mgr.Path(); path != "" {
		output.Println()
		output.Dim("Loaded from %s", path)
	}
}
