package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"schoolrecords_backend/internals/configs"
	database "schoolrecords_backend/internals/databases"
	"schoolrecords_backend/internals/store/gormstore"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the documents table",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := configs.LoadEnv()
			if err != nil {
				return err
			}
			if cfg.DBDriver == "memory" {
				return errors.New("nothing to migrate for DB_DRIVER=memory")
			}
			log, err := configs.NewLogger(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			db, err := database.ConnectDB(cfg, log)
			if err != nil {
				return err
			}
			defer database.Close(db)
			if err := gormstore.Migrate(db); err != nil {
				return err
			}
			log.Info("✅ migration complete")
			return nil
		},
	}
}
