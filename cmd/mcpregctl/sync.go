package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mcpreg/internal/domain"
	"mcpreg/internal/infra/hostconfig"
	"mcpreg/internal/infra/registry"
	"mcpreg/internal/infra/store"
)

func hostAdapter(opts *cliOptions) (*hostconfig.Adapter, error) {
	path := opts.settings.HostConfigPath
	if path == "" {
		resolved, err := hostconfig.ResolvePath()
		if err != nil {
			return nil, err
		}
		path = resolved
	}
	return hostconfig.NewAdapter(path, opts.logger), nil
}

func newSyncCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Synchronize with the host application config",
	}
	cmd.AddCommand(newSyncSaveCmd(opts), newSyncLoadCmd(opts))
	return cmd
}

func newSyncSaveCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "save",
		Short: "Write every registered server into the host config",
		RunE: func(_ *cobra.Command, _ []string) error {
			return withService(opts, func(ctx context.Context, svc *registry.Service, _ *store.Store) error {
				adapter, err := hostAdapter(opts)
				if err != nil {
					return err
				}
				result, err := svc.ListServers(ctx, domain.ListQuery{})
				if err != nil {
					return err
				}
				if err := adapter.Save(ctx, result.Servers); err != nil {
					return err
				}
				fmt.Printf("saved %d servers to %s\n", len(result.Servers), adapter.Path())
				return nil
			})
		},
	}
}

func newSyncLoadCmd(opts *cliOptions) *cobra.Command {
	var skipExisting bool
	cmd := &cobra.Command{
		Use:   "load",
		Short: "Register every server found in the host config",
		RunE: func(_ *cobra.Command, _ []string) error {
			return withService(opts, func(ctx context.Context, svc *registry.Service, _ *store.Store) error {
				adapter, err := hostAdapter(opts)
				if err != nil {
					return err
				}
				inputs, err := adapter.Load(ctx)
				if err != nil {
					return err
				}
				imported, skipped := 0, 0
				for _, input := range inputs {
					if _, err := svc.CreateServer(ctx, input); err != nil {
						if code, ok := domain.CodeFrom(err); ok && code == domain.CodeDuplicateName && skipExisting {
							skipped++
							continue
						}
						opts.logger.Warn("host config entry rejected",
							zap.String("name", input.Name),
							zap.Error(err),
						)
						continue
					}
					imported++
				}
				fmt.Printf("loaded %d servers (%d skipped) from %s\n", imported, skipped, adapter.Path())
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&skipExisting, "skip-existing", true, "skip entries whose name is already registered")
	return cmd
}

func newExportCmd(opts *cliOptions) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the registry as a JSON snapshot",
		RunE: func(_ *cobra.Command, _ []string) error {
			return withService(opts, func(ctx context.Context, _ *registry.Service, st *store.Store) error {
				snapshot, err := st.Export(ctx)
				if err != nil {
					return err
				}
				if out == "" || out == "-" {
					fmt.Println(string(snapshot))
					return nil
				}
				if err := os.WriteFile(out, snapshot, 0o600); err != nil {
					return domain.E(domain.CodeConfigIO, "cli.export", out, err)
				}
				fmt.Printf("exported to %s\n", out)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "-", "destination file (- for stdout)")
	return cmd
}

func newImportCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Import a JSON snapshot into the registry",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return withService(opts, func(ctx context.Context, _ *registry.Service, st *store.Store) error {
				raw, err := os.ReadFile(args[0])
				if err != nil {
					return domain.E(domain.CodeConfigIO, "cli.import", args[0], err)
				}
				result, err := st.Import(ctx, raw)
				if err != nil {
					return err
				}
				return printBatch(result, opts.jsonOutput)
			})
		},
	}
}
