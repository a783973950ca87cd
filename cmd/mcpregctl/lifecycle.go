package main

import (
	"context"

	"github.com/spf13/cobra"

	"mcpreg/internal/infra/registry"
	"mcpreg/internal/infra/store"
)

func newStartCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "start <id|name>...",
		Short: "Start server processes",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return withService(opts, func(ctx context.Context, svc *registry.Service, _ *store.Store) error {
				ids, err := resolveAll(ctx, svc, args)
				if err != nil {
					return err
				}
				if len(ids) == 1 {
					server, err := svc.StartServer(ctx, ids[0])
					if err != nil {
						return err
					}
					return printServer(server, opts.jsonOutput)
				}
				return printBatch(svc.StartServers(ctx, ids), opts.jsonOutput)
			})
		},
	}
}

func newStopCmd(opts *cliOptions) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "stop <id|name>...",
		Short: "Stop server processes",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return withService(opts, func(ctx context.Context, svc *registry.Service, _ *store.Store) error {
				ids, err := resolveAll(ctx, svc, args)
				if err != nil {
					return err
				}
				if len(ids) == 1 {
					server, err := svc.StopServer(ctx, ids[0], reason)
					if err != nil {
						return err
					}
					return printServer(server, opts.jsonOutput)
				}
				return printBatch(svc.StopServers(ctx, ids, reason), opts.jsonOutput)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "manual", "stop reason recorded on the server")
	return cmd
}

func newRestartCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "restart <id|name>",
		Short: "Restart a server process",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return withService(opts, func(ctx context.Context, svc *registry.Service, _ *store.Store) error {
				server, err := resolveServer(ctx, svc, args[0])
				if err != nil {
					return err
				}
				restarted, err := svc.RestartServer(ctx, server.ID)
				if err != nil {
					return err
				}
				return printServer(restarted, opts.jsonOutput)
			})
		},
	}
}
