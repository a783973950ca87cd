package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"mcpreg/internal/infra/config"
	"mcpreg/internal/infra/events"
	"mcpreg/internal/infra/process"
	"mcpreg/internal/infra/registry"
	"mcpreg/internal/infra/store"
)

type cliOptions struct {
	configPath     string
	databasePath   string
	hostConfigPath string
	jsonOutput     bool

	settings config.Settings
	logger   *zap.Logger
}

func newRootCommand() *cobra.Command {
	opts := cliOptions{logger: zap.NewNop()}

	root := &cobra.Command{
		Use:           "mcpregctl",
		Short:         "Manage the MCP server registry",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			if opts.databasePath != "" {
				settings.DatabasePath = opts.databasePath
			}
			if opts.hostConfigPath != "" {
				settings.HostConfigPath = opts.hostConfigPath
			}
			opts.settings = settings

			logger, err := buildLogger(settings.LogLevel)
			if err != nil {
				return err
			}
			opts.logger = logger
			return nil
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			_ = opts.logger.Sync()
		},
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "settings file (yaml)")
	root.PersistentFlags().StringVar(&opts.databasePath, "db", "", "registry database path")
	root.PersistentFlags().StringVar(&opts.hostConfigPath, "host-config", "", "host application config file")
	root.PersistentFlags().BoolVar(&opts.jsonOutput, "json", false, "output JSON")

	root.AddCommand(
		newListCmd(&opts),
		newShowCmd(&opts),
		newCreateCmd(&opts),
		newUpdateCmd(&opts),
		newDeleteCmd(&opts),
		newStartCmd(&opts),
		newStopCmd(&opts),
		newRestartCmd(&opts),
		newEventsCmd(&opts),
		newSyncCmd(&opts),
		newExportCmd(&opts),
		newImportCmd(&opts),
		newServeCmd(&opts),
	)

	return root
}

func buildLogger(level string) (*zap.Logger, error) {
	parsed, err := zapcore.ParseLevel(level)
	if err != nil {
		parsed = zapcore.InfoLevel
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(parsed)
	cfg.OutputPaths = []string{"stderr"}
	return cfg.Build()
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// withService opens the store, wires the service and hands it to fn, closing
// everything afterwards. Every command goes through here so wiring stays in
// one place.
func withService(opts *cliOptions, fn func(ctx context.Context, svc *registry.Service, st *store.Store) error) error {
	ctx, cancel := signalContext()
	defer cancel()

	st, err := store.Open(opts.settings.StoreOptions(), opts.logger)
	if err != nil {
		return renderError(err, opts.jsonOutput)
	}
	defer st.Close()

	svc := registry.NewService(registry.Options{
		Repository:     st,
		ProcessManager: process.NewManager(process.Options{Logger: opts.logger}),
		EventBus:       events.NewBus(opts.logger),
		Logger:         opts.logger,
		SettleDelay:    opts.settings.SettleDelay(),
	})

	if err := fn(ctx, svc, st); err != nil {
		return renderError(err, opts.jsonOutput)
	}
	return nil
}
