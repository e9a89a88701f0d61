package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ets-berkeley-edu/myberkeley/dynamiclist"
	"github.com/ets-berkeley-edu/myberkeley/provision"
)

type provisionLine struct {
	UserID               string         `json:"userId"`
	SynchronizationState string         `json:"synchronizationState"`
	User                 map[string]any `json:"user,omitempty"`
}

func provisionCmd() *cobra.Command {
	var workers int
	cmd := &cobra.Command{
		Use:   "provision [personId...]",
		Short: "Create or refresh users from the campus data warehouse",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if !cfg.Oracle.Enabled() {
				return fmt.Errorf("no oracle connection is configured")
			}
			people, closePeople, err := openPeople(ctx, cfg.Oracle)
			if err != nil {
				return err
			}
			defer closePeople()

			repo, err := openRepository(cfg.Repository)
			if err != nil {
				return err
			}
			defer closeRepository(repo)
			index, err := openIndex(cfg.Solr)
			if err != nil {
				return err
			}
			lists, err := dynamiclist.NewService(repo, searcherOf(index), logger.With("component", "dynamiclist"))
			if err != nil {
				return err
			}

			if workers <= 0 {
				workers = cfg.Provision.Workers
			}
			accounts := provision.NewAuthorizableService(repo, lists, logger.With("component", "provision"))
			results := accounts.LoadUsers(ctx, people, args, workers)

			enc := json.NewEncoder(cmd.OutOrStdout())
			for i, r := range results {
				if err := enc.Encode(provisionLine{
					UserID:               args[i],
					SynchronizationState: string(r.State),
					User:                 r.UserProperties(),
				}); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "concurrent lookups (default from config)")
	return cmd
}
