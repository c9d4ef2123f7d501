package commands

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/v-starostin/tacbridge/internal/application"
)

var errNoDatabase = errors.New("no database configured, set DATABASE_URI or --database")

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending Postgres migrations and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.DatabaseURI == "" {
				return errNoDatabase
			}

			db, err := application.ConnectDB(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			logger.Info("Migrations applied")
			return nil
		},
	}
}
