package commands

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ets-berkeley-edu/myberkeley/internal/config"
	"github.com/ets-berkeley-edu/myberkeley/server"
)

func serveCmd() *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server and background jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			repo, err := openRepository(cfg.Repository)
			if err != nil {
				return err
			}
			defer closeRepository(repo)

			index, err := openIndex(cfg.Solr)
			if err != nil {
				return err
			}
			people, closePeople, err := openPeople(ctx, cfg.Oracle)
			if err != nil {
				logger.Error("person provisioning disabled", "error", err)
			}
			defer closePeople()

			srv, err := server.New(server.Options{
				Config: cfg,
				Repo:   repo,
				Index:  index,
				People: people,
				Logger: logger,
			})
			if err != nil {
				return err
			}

			if watch {
				go func() {
					err := config.Watch(ctx, configPath, func(next *config.Config) {
						srv.Reload(context.WithoutCancel(ctx), next)
					}, logger.With("component", "config"))
					if err != nil {
						logger.Error("config watcher stopped", "error", err)
					}
				}()
			}
			return srv.Run(ctx)
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", true, "reload root and SMTP settings when the config file changes")
	return cmd
}
