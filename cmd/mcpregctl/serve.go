package main

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"mcpreg/internal/domain"
	"mcpreg/internal/infra/events"
	"mcpreg/internal/infra/process"
	"mcpreg/internal/infra/registry"
	"mcpreg/internal/infra/store"
	"mcpreg/internal/infra/telemetry"
)

const gaugeRefreshInterval = 10 * time.Second

// newServeCmd runs the registry as a long-lived supervisor: it exposes
// metrics, reacts to unexpected process exits, and mirrors host config
// changes into the log until interrupted.
func newServeCmd(opts *cliOptions) *cobra.Command {
	var watchHost bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the registry supervisor",
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			st, err := store.Open(opts.settings.StoreOptions(), opts.logger)
			if err != nil {
				return renderError(err, opts.jsonOutput)
			}
			defer st.Close()

			promRegistry := prometheus.NewRegistry()
			metrics := telemetry.NewPrometheusMetrics(promRegistry)
			bus := events.NewBus(opts.logger)
			defer bus.Close()

			svc := registry.NewService(registry.Options{
				Repository:     st,
				ProcessManager: process.NewManager(process.Options{Logger: opts.logger}),
				EventBus:       bus,
				Logger:         opts.logger,
				Metrics:        metrics,
				SettleDelay:    opts.settings.SettleDelay(),
			})

			group, groupCtx := errgroup.WithContext(ctx)
			group.Go(func() error {
				return telemetry.StartHTTPServer(groupCtx, telemetry.HTTPServerOptions{
					Addr:     opts.settings.MetricsAddress,
					Registry: promRegistry,
					Health:   st.HealthCheck,
				}, opts.logger)
			})
			group.Go(func() error {
				svc.MonitorExits(groupCtx)
				return nil
			})
			group.Go(func() error {
				refreshGauges(groupCtx, st, metrics, opts.logger)
				return nil
			})
			if watchHost {
				group.Go(func() error {
					return watchHostConfig(groupCtx, opts)
				})
			}

			opts.logger.Info("registry supervisor running",
				zap.String("metrics", opts.settings.MetricsAddress),
				zap.String("db", opts.settings.DatabasePath),
			)
			if err := group.Wait(); err != nil {
				return renderError(err, opts.jsonOutput)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&watchHost, "watch-host-config", false, "log host config file changes")
	return cmd
}

func refreshGauges(ctx context.Context, st *store.Store, metrics *telemetry.PrometheusMetrics, logger *zap.Logger) {
	ticker := time.NewTicker(gaugeRefreshInterval)
	defer ticker.Stop()
	for {
		registered, err := st.Count(ctx, domain.ListFilter{})
		if err == nil {
			metrics.SetRegistered(registered)
		}
		running, err := st.Count(ctx, domain.ListFilter{Status: domain.StatusRunning})
		if err == nil {
			metrics.SetRunning(running)
		} else {
			logger.Debug("gauge refresh failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func watchHostConfig(ctx context.Context, opts *cliOptions) error {
	adapter, err := hostAdapter(opts)
	if err != nil {
		return err
	}
	changes := make(chan struct{}, 1)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-changes:
				opts.logger.Info("host config changed on disk",
					zap.String("path", adapter.Path()),
				)
			}
		}
	}()
	return adapter.Watch(ctx, changes)
}
