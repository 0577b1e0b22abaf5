package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"stockledger/internal/app"
	"stockledger/internal/config"
	"stockledger/internal/logging"
	"stockledger/internal/printer"
)

var (
	version = "dev"
	commit  string
	date    string

	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "stockledger",
	Short: "Stockledger - in-memory inventory ledger",
	Long: `Stockledger keeps a product catalog, suppliers, a stock movement ledger
and sales orders in a single in-memory store. Every change is a command
reduced into a new state; configured sinks (SQL journal, Redis, Kafka)
observe each committed transition.

Session scripts drive the store from YAML; see "stockledger replay --help".`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
	FParseErrWhitelist: cobra.FParseErrWhitelist{},
}

// Execute runs the root command.
func Execute() error {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	return rootCmd.Execute()
}

// SetVersionInfo sets the version information for the CLI.
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to stockledger.yml (defaults plus STOCKLEDGER_* env when omitted)")
}

// bootstrap loads configuration and builds the application for a command.
func bootstrap(cmd *cobra.Command) (*app.App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, printer.Error(cmd.ErrOrStderr(), "Invalid configuration", err.Error())
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, printer.Error(cmd.ErrOrStderr(), "Logger setup failed", err.Error())
	}
	a, err := app.New(cmd.Context(), cfg, logger, app.WithVersion(version))
	if err != nil {
		_ = logger.Sync()
		return nil, printer.Error(cmd.ErrOrStderr(), "Startup failed", err.Error())
	}
	return a, nil
}

func shutdown(a *app.App) {
	if err := a.Close(context.Background()); err != nil {
		a.Logger.Warn("shutdown", zap.Error(err))
	}
	_ = a.Logger.Sync()
}
