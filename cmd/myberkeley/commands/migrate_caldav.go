package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ets-berkeley-edu/myberkeley/caldav"
	"github.com/ets-berkeley-edu/myberkeley/dynamiclist"
)

func migrateCalDAVCmd() *cobra.Command {
	var (
		sourceServer   string
		sourcePassword string
		userIDs        []string
	)
	cmd := &cobra.Command{
		Use:   "migrate-caldav",
		Short: "Copy every task and event from another CalDAV server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			repo, err := openRepository(cfg.Repository)
			if err != nil {
				return err
			}
			defer closeRepository(repo)
			index, err := openIndex(cfg.Solr)
			if err != nil {
				return err
			}
			searcher := searcherOf(index)

			lists, err := dynamiclist.NewService(repo, searcher, logger.With("component", "dynamiclist"))
			if err != nil {
				return err
			}
			target, err := caldav.NewProvider(caldav.ProviderConfig{
				AdminUsername:  cfg.CalDAV.AdminUsername,
				AdminPassword:  cfg.CalDAV.AdminPassword,
				ServerRoot:     cfg.CalDAV.ServerRoot,
				Timeout:        cfg.CalDAV.Timeout,
				Embedded:       cfg.CalDAV.Embedded,
				EmbeddedSearch: cfg.CalDAV.EmbeddedSearch,
			}, repo, searcher, logger.With("component", "caldav"))
			if err != nil {
				return err
			}
			m := caldav.NewMigrator(target, lists, caldav.MigratorConfig{
				Workers: cfg.CalDAV.MigrationWorkers,
				Rate:    cfg.CalDAV.MigrationRate,
				Timeout: cfg.CalDAV.Timeout,
			}, logger.With("component", "caldav-migrator"))

			if len(userIDs) == 1 && userIDs[0] == caldav.AllUserIDs {
				if userIDs, err = lists.AllUserIDs(ctx); err != nil {
					return fmt.Errorf("failed to list users: %w", err)
				}
			}
			source, err := m.SourceProvider(sourceServer, sourcePassword)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			m.Migrate(ctx, source, userIDs, func(line string) {
				fmt.Fprintln(out, line)
			})
			return nil
		},
	}
	cmd.Flags().StringVar(&sourceServer, "server", "", "root URL of the CalDAV server to copy from")
	cmd.Flags().StringVar(&sourcePassword, "password", "", "admin password of the source server")
	cmd.Flags().StringSliceVar(&userIDs, "users", []string{caldav.AllUserIDs}, "user ids to migrate, or ALL")
	_ = cmd.MarkFlagRequired("server")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}
