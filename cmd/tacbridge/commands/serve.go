package commands

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/v-starostin/tacbridge/internal/application"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the gRPC health endpoint and the event broadcaster",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := application.New(cmd.Context(), logger, cfg)
			if err != nil {
				logger.Info("Configuration error", slog.String("error", err.Error()))
				return err
			}
			return app.Run(cmd.Context())
		},
	}
}
