package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/ets-berkeley-edu/myberkeley/internal/config"
	"github.com/ets-berkeley-edu/myberkeley/internal/logging"
)

var (
	configPath string
	cfg        *config.Config
	logger     *slog.Logger
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "myberkeley",
		Short:         "MyBerkeley portal services",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.LoadFromFile(configPath)
			if err != nil {
				return err
			}
			logger, err = logging.New(cfg.Log.Level, cfg.Log.Format)
			if err != nil {
				return fmt.Errorf("failed to create logger: %w", err)
			}
			slog.SetDefault(logger)
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "myberkeley.yaml", "path to the YAML configuration")

	root.AddCommand(serveCmd(), migrateCalDAVCmd(), provisionCmd(), migrateCmd())
	return root
}

func Execute() error {
	return newRootCmd().Execute()
}
