package commands

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/v-starostin/tacbridge/internal/config"
)

var (
	cfg    *config.Config
	logger *slog.Logger
)

func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	return NewRootCommand().ExecuteContext(ctx)
}

func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "tacbridge",
		Short:        "Converts TAC into KOII at a fixed rate and keeps an audit log of every conversion",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.New(cmd.Flags())
			if err != nil {
				return err
			}
			cfg = c
			logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
			return nil
		},
	}

	config.RegisterFlags(root.PersistentFlags())

	root.AddCommand(serveCmd(), migrateCmd(), watchCmd())
	return root
}
