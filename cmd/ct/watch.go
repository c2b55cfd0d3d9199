package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/alfredjeanlab/contokens/internal/events"
	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
)

var watchCount int

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print token events as other ct processes publish them",
	Long: `Subscribe to the token events published on events.nats_url and print each
one as it arrives, until interrupted or until --count events have been seen.`,
	GroupID:     "system",
	Args:        exactArgs(0),
	Annotations: map[string]string{annotationNoStore: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		if watchCount < 0 {
			return usageErrorf("--count must not be negative")
		}
		if cfg.Events.NATSURL == "" {
			return errors.New("events.nats_url not set in config")
		}
		return watchEvents(cmd.Context(), cmd.OutOrStdout(), cfg.Events.NATSURL, watchCount)
	},
}

func init() {
	watchCmd.Flags().IntVar(&watchCount, "count", 0, "exit after this many events (0 = run until interrupted)")
}

// watchEvents prints events from natsURL to w until ctx is done or limit
// events have been printed.
func watchEvents(ctx context.Context, w io.Writer, natsURL string, limit int) error {
	// The handlers run on NATS goroutines that can outlive this command.
	log := logger
	sub, err := events.NewNATSSubscriber(natsURL,
		nats.Name("ct watch"),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", "err", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Info("nats reconnected")
		}),
	)
	if err != nil {
		return err
	}
	defer func() {
		if n := sub.Malformed(); n > 0 {
			log.Warn("skipped malformed events", "count", n)
		}
		sub.Close()
	}()

	ch, cancel, err := sub.Subscribe(events.TopicAll)
	if err != nil {
		return err
	}
	defer cancel()
	log.Debug("watching events", "topic", events.TopicAll)

	seen := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case env, ok := <-ch:
			if !ok {
				return nil
			}
			if err := printEvent(w, env); err != nil {
				return err
			}
			seen++
			if limit > 0 && seen >= limit {
				return nil
			}
		}
	}
}

func printEvent(w io.Writer, env *events.Envelope) error {
	if jsonOutput {
		return printJSON(w, env)
	}
	_, err := fmt.Fprintln(w, formatEvent(env))
	return err
}

// formatEvent renders an envelope as one line: time, topic, payload.
func formatEvent(env *events.Envelope) string {
	return fmt.Sprintf("%s  %-16s  %s", env.Time.Local().Format("15:04:05"), env.Topic, env.Payload)
}
