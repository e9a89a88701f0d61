package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ets-berkeley-edu/myberkeley/dynamiclist"
	"github.com/ets-berkeley-edu/myberkeley/migrators"
	"github.com/ets-berkeley-edu/myberkeley/search"
)

func migrateCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:       "migrate files|missing-content|pubspace",
		Short:     "Run a repository migrator and print its report",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"files", "missing-content", "pubspace"},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			repo, err := openRepository(cfg.Repository)
			if err != nil {
				return err
			}
			defer closeRepository(repo)

			log := logger.With("component", "migrators")
			runner := migrators.NewRunner(repo, log)
			var report any

			switch args[0] {
			case "files":
				m := migrators.NewForcedFileMigrator(repo, log)
				if _, err := runner.Run(ctx, "a:", m); err != nil {
					return err
				}
				count, err := m.MigrateCandidates(ctx, dryRun)
				if err != nil {
					return err
				}
				report = map[string]int{"candidateCount": len(m.Candidates()), "migratedCount": count}
			case "missing-content":
				m := migrators.NewMissingContentMigrator(repo, log)
				if _, err := runner.Run(ctx, "", m); err != nil {
					return err
				}
				report = m.Report()
			case "pubspace":
				lists, err := dynamiclist.NewService(repo, nil, logger.With("component", "dynamiclist"))
				if err != nil {
					return err
				}
				stats, err := migrators.NewPubspaceMigrator(repo, lists, cfg.Migrators.PubspacePagesPerSecond, log).Migrate(ctx)
				if err != nil {
					return err
				}
				report = stats
			default:
				return fmt.Errorf("unknown migrator %q", args[0])
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "count file candidates without changing them")
	return cmd
}

// searcherOf keeps a missing index a nil interface.
func searcherOf(index search.Index) search.Searcher {
	if index == nil {
		return nil
	}
	return index
}
