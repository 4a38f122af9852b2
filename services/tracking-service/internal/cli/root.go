// Package cli is the command line front end of the tracking service.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/quangdang46/shipment-tracker/services/tracking-service/internal/app"
	"github.com/quangdang46/shipment-tracker/services/tracking-service/internal/config"
	"github.com/quangdang46/shipment-tracker/shared/env"
	"github.com/quangdang46/shipment-tracker/shared/logging"
)

// runtime carries what PersistentPreRunE loaded to the subcommands
type runtime struct {
	configFile string
	logLevel   string
	prettyLogs bool

	cfg    *config.Config
	logger *logging.Logger
}

// NewRootCommand builds the command tree. Each call returns a fresh tree.
func NewRootCommand() *cobra.Command {
	rt := &runtime{}

	root := &cobra.Command{
		Use:           "shiptrack",
		Short:         "Follow on-chain shipments from a wallet session",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return rt.load(cmd)
		},
	}

	root.PersistentFlags().StringVar(&rt.configFile, "config", "", "config file (yaml, json, toml or .env)")
	root.PersistentFlags().StringVar(&rt.logLevel, "log-level", "", "override LOG_LEVEL (debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&rt.prettyLogs, "pretty", false, "human readable logs")

	root.AddCommand(
		newServeCommand(rt),
		newSessionCommand(rt),
		newShipmentsCommand(rt),
		newStatusCommand(rt),
		newDashboardCommand(rt),
		newWatchCommand(rt),
	)
	return root
}

// Execute runs the command tree. Exits with code 1 on error.
func Execute() {
	root := NewRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("error: ")+err.Error())
		os.Exit(1)
	}
}

func (rt *runtime) load(cmd *cobra.Command) error {
	if err := env.Load(rt.configFile); err != nil {
		return fmt.Errorf("loading config file: %w", err)
	}

	cfg, err := config.NewConfig()
	if err != nil {
		return err
	}
	if rt.logLevel != "" {
		cfg.LogLevel = rt.logLevel
	}
	rt.cfg = cfg

	rt.logger = logging.NewLogger(&logging.Config{
		Level:       logging.LogLevel(cfg.LogLevel),
		Service:     cfg.ServiceName,
		Environment: cfg.Environment,
		Version:     cfg.Sentry.Release,
		Output:      cmd.ErrOrStderr(),
		PrettyLog:   rt.prettyLogs,
	})
	return nil
}

// open wires the service for one command run
func (rt *runtime) open(ctx context.Context) (*app.App, error) {
	return app.New(ctx, rt.cfg, rt.logger)
}
