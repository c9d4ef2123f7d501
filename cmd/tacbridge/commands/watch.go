package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/segmentio/kafka-go"
	"github.com/spf13/cobra"

	"github.com/v-starostin/tacbridge/internal/currency"
	"github.com/v-starostin/tacbridge/internal/model"
)

var errNoBrokers = errors.New("no brokers configured, set KAFKA_BROKERS or --kafka-brokers")

func watchCmd() *cobra.Command {
	var group string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print conversion events as they are published",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(cfg.KafkaBrokers) == 0 {
				return errNoBrokers
			}

			r := kafka.NewReader(kafka.ReaderConfig{
				Brokers:     cfg.KafkaBrokers,
				Topic:       cfg.KafkaTopic,
				GroupID:     group,
				StartOffset: kafka.FirstOffset,
				MinBytes:    1,
				MaxBytes:    10e6,
			})
			defer r.Close()

			for {
				msg, err := r.ReadMessage(cmd.Context())
				if err != nil {
					if cmd.Context().Err() != nil {
						return nil
					}
					return err
				}

				if err := printEvent(cmd.OutOrStdout(), msg.Value); err != nil {
					logger.Info("Skipping malformed event", slog.Int64("offset", msg.Offset), slog.String("error", err.Error()))
				}
			}
		},
	}

	cmd.Flags().StringVar(&group, "group", "tacbridge-watch", "consumer group")
	return cmd
}

func printEvent(w io.Writer, payload []byte) error {
	var e model.Event
	if err := json.Unmarshal(payload, &e); err != nil {
		return err
	}
	if e.Type != model.EventConversion {
		return fmt.Errorf("unknown event type %q", e.Type)
	}

	_, err := fmt.Fprintf(w, "#%d %s %s -> %s at %s\n",
		e.Seq,
		e.Caller,
		currency.TAC.Format(e.SourceAmount),
		currency.KOII.Format(e.TargetAmount),
		e.OccurredAt.Format("2006-01-02 15:04:05"),
	)
	return err
}
