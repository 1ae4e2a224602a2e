package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/alfredjeanlab/reflex/internal/bus"
	"github.com/alfredjeanlab/reflex/internal/ui"
	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:     "watch [topic]",
	Short:   "Watch live bus activity (requires REFLEX_NATS_URL)",
	GroupID: "system",
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		natsURL := os.Getenv("REFLEX_NATS_URL")
		if natsURL != "" {
			if u, _ := cmd.Flags().GetString("nats-url"); u != "" {
				natsURL = u
			}
		} else {
			natsURL, _ = cmd.Flags().GetString("nats-url")
		}
		if natsURL == "" {
			return fmt.Errorf("watch needs a NATS URL (REFLEX_NATS_URL or --nats-url)")
		}

		topic := "reflex.>"
		if len(args) == 1 {
			topic = args[0]
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		sub, err := bus.NewNATSSubscriber(natsURL,
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				log.Printf("nats: disconnected: %v", err)
			}),
			nats.ReconnectHandler(func(_ *nats.Conn) {
				log.Printf("nats: reconnected")
			}),
		)
		if err != nil {
			return fmt.Errorf("connecting to NATS: %w", err)
		}
		defer sub.Close()

		ch, cancel, err := sub.Subscribe(topic)
		if err != nil {
			return fmt.Errorf("subscribing to %s: %w", topic, err)
		}
		defer cancel()

		fmt.Fprintf(os.Stderr, "watching %s (ctrl-c to stop)\n", topic)
		for {
			select {
			case <-ctx.Done():
				return nil
			case payload, ok := <-ch:
				if !ok {
					return nil
				}
				if jsonOutput {
					fmt.Println(string(payload))
				} else {
					fmt.Printf("%s %s\n",
						ui.RenderMuted(time.Now().Format("15:04:05")),
						string(payload))
				}
			}
		}
	},
}

func init() {
	watchCmd.Flags().String("nats-url", "", "NATS server URL")
}
