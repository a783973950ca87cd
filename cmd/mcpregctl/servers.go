package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"mcpreg/internal/domain"
	"mcpreg/internal/infra/registry"
	"mcpreg/internal/infra/store"
)

// resolveServer accepts either a server id or an exact name.
func resolveServer(ctx context.Context, svc *registry.Service, ref string) (domain.Server, error) {
	if id, err := domain.ParseServerID(ref); err == nil {
		return svc.GetServer(ctx, id)
	}
	matches, err := svc.ListServers(ctx, domain.ListQuery{Filter: domain.ListFilter{Search: ref}})
	if err != nil {
		return domain.Server{}, err
	}
	for _, server := range matches.Servers {
		if server.Name == ref {
			return server, nil
		}
	}
	return domain.Server{}, domain.E(domain.CodeNotFound, "cli.resolve", fmt.Sprintf("no server %q", ref), domain.ErrNotFound)
}

func newListCmd(opts *cliOptions) *cobra.Command {
	var (
		status   string
		tags     []string
		allTags  bool
		search   string
		sortBy   string
		order    string
		page     int
		pageSize int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered servers",
		RunE: func(_ *cobra.Command, _ []string) error {
			return withService(opts, func(ctx context.Context, svc *registry.Service, _ *store.Store) error {
				query := domain.ListQuery{
					Filter: domain.ListFilter{
						Status:       domain.StatusKind(status),
						Tags:         tags,
						MatchAllTags: allTags,
						Search:       search,
					},
					Sort:  domain.SortField(sortBy),
					Order: domain.SortOrder(order),
					Page:  domain.Page{Number: page, Limit: pageSize},
				}
				result, err := svc.ListServers(ctx, query)
				if err != nil {
					return err
				}
				return printServerList(result, opts.jsonOutput)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status (idle|running|stopped|error|updating)")
	cmd.Flags().StringArrayVar(&tags, "tag", nil, "filter by tag (repeatable)")
	cmd.Flags().BoolVar(&allTags, "all-tags", false, "require every --tag instead of any")
	cmd.Flags().StringVar(&search, "search", "", "substring match on name and description")
	cmd.Flags().StringVar(&sortBy, "sort", "name", "sort field (name|createdAt|updatedAt|status)")
	cmd.Flags().StringVar(&order, "order", "asc", "sort order (asc|desc)")
	cmd.Flags().IntVar(&page, "page", 0, "page number (1-indexed, 0 = all)")
	cmd.Flags().IntVar(&pageSize, "limit", 0, "page size")
	return cmd
}

func newShowCmd(opts *cliOptions) *cobra.Command {
	var withEvents bool
	cmd := &cobra.Command{
		Use:   "show <id|name>",
		Short: "Show one server",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return withService(opts, func(ctx context.Context, svc *registry.Service, _ *store.Store) error {
				server, err := resolveServer(ctx, svc, args[0])
				if err != nil {
					return err
				}
				if err := printServerDetail(server, opts.jsonOutput); err != nil {
					return err
				}
				if !withEvents {
					return nil
				}
				eventList, err := svc.ServerEvents(ctx, server.ID)
				if err != nil {
					return err
				}
				return printEvents(eventList, opts.jsonOutput)
			})
		},
	}
	cmd.Flags().BoolVar(&withEvents, "events", false, "include the server's event log")
	return cmd
}

func newCreateCmd(opts *cliOptions) *cobra.Command {
	var (
		description string
		command     string
		args        []string
		env         map[string]string
		workdir     string
		timeoutMs   int
		retryLimit  int
		autoRestart bool
		tags        []string
	)
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Register a new server",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, posArgs []string) error {
			return withService(opts, func(ctx context.Context, svc *registry.Service, _ *store.Store) error {
				input := domain.CreateServerInput{
					Name:        posArgs[0],
					Description: description,
					Configuration: domain.ServerConfiguration{
						Command:          command,
						Args:             args,
						Environment:      env,
						WorkingDirectory: workdir,
						TimeoutMs:        timeoutMs,
						RetryLimit:       retryLimit,
						AutoRestart:      autoRestart,
					},
					Tags: tags,
				}
				created, err := svc.CreateServer(ctx, input)
				if err != nil {
					return err
				}
				return printServerDetail(created, opts.jsonOutput)
			})
		},
	}
	cmd.Flags().StringVar(&command, "command", "", "executable to launch (required)")
	cmd.Flags().StringArrayVar(&args, "arg", nil, "process argument (repeatable)")
	cmd.Flags().StringToStringVar(&env, "env", nil, "environment entry KEY=VALUE (repeatable)")
	cmd.Flags().StringVar(&workdir, "workdir", "", "working directory")
	cmd.Flags().StringVar(&description, "description", "", "free-form description")
	cmd.Flags().IntVar(&timeoutMs, "timeout-ms", 0, "startup timeout in milliseconds")
	cmd.Flags().IntVar(&retryLimit, "retry-limit", 0, "start retry limit (0 = unlimited)")
	cmd.Flags().BoolVar(&autoRestart, "auto-restart", false, "restart on unexpected exit")
	cmd.Flags().StringArrayVar(&tags, "tag", nil, "tag (repeatable)")
	_ = cmd.MarkFlagRequired("command")
	return cmd
}

func newUpdateCmd(opts *cliOptions) *cobra.Command {
	var (
		name        string
		description string
		tags        []string
	)
	cmd := &cobra.Command{
		Use:   "update <id|name>",
		Short: "Update server fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(opts, func(ctx context.Context, svc *registry.Service, _ *store.Store) error {
				server, err := resolveServer(ctx, svc, args[0])
				if err != nil {
					return err
				}
				var delta domain.ServerDelta
				if cmd.Flags().Changed("name") {
					delta.Name = &name
				}
				if cmd.Flags().Changed("description") {
					delta.Description = &description
				}
				if cmd.Flags().Changed("tag") {
					delta.Tags = tags
				}
				if delta.IsEmpty() {
					return domain.E(domain.CodeValidation, "cli.update", "no fields to update", nil)
				}
				updated, err := svc.UpdateServer(ctx, server.ID, delta)
				if err != nil {
					return err
				}
				return printServerDetail(updated, opts.jsonOutput)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "new name")
	cmd.Flags().StringVar(&description, "description", "", "new description")
	cmd.Flags().StringArrayVar(&tags, "tag", nil, "replacement tag set (repeatable)")
	return cmd
}

func newDeleteCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id|name>...",
		Short: "Delete servers, stopping running ones first",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return withService(opts, func(ctx context.Context, svc *registry.Service, _ *store.Store) error {
				ids, err := resolveAll(ctx, svc, args)
				if err != nil {
					return err
				}
				if len(ids) == 1 {
					if err := svc.DeleteServer(ctx, ids[0]); err != nil {
						return err
					}
					fmt.Printf("deleted\t%s\n", ids[0])
					return nil
				}
				return printBatch(svc.DeleteServers(ctx, ids), opts.jsonOutput)
			})
		},
	}
	return cmd
}

func newEventsCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "events <id|name>",
		Short: "Show a server's event log",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return withService(opts, func(ctx context.Context, svc *registry.Service, _ *store.Store) error {
				server, err := resolveServer(ctx, svc, args[0])
				if err != nil {
					return err
				}
				eventList, err := svc.ServerEvents(ctx, server.ID)
				if err != nil {
					return err
				}
				return printEvents(eventList, opts.jsonOutput)
			})
		},
	}
}

func resolveAll(ctx context.Context, svc *registry.Service, refs []string) ([]domain.ServerID, error) {
	ids := make([]domain.ServerID, 0, len(refs))
	for _, ref := range refs {
		server, err := resolveServer(ctx, svc, ref)
		if err != nil {
			return nil, err
		}
		ids = append(ids, server.ID)
	}
	return ids, nil
}
