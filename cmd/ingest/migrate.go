package main

import (
	"github.com/spf13/cobra"

	"mediaingest/internal/config"
	"mediaingest/internal/database"
	"mediaingest/internal/log"
)

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := log.New(cfg.Environment, cfg.Logging.Level)
			return database.Migrate(cfg.Postgres.DSN, logger)
		},
	}
}
