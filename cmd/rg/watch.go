package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/refguard/internal/events"
	"github.com/alfredjeanlab/refguard/internal/ui"
)

var watchTopics = []string{
	events.TopicDocumentCreated,
	events.TopicDocumentUpdated,
	events.TopicDocumentDeleted,
	events.TopicDocumentRejected,
}

// topicEvent is a raw payload tagged with the topic it arrived on.
type topicEvent struct {
	topic   string
	payload []byte
}

var watchCmd = &cobra.Command{
	Use:               "watch",
	Short:             "Stream document and rejection events from NATS",
	GroupID:           "system",
	Args:              cobra.NoArgs,
	PersistentPreRunE: noClient,
	RunE: func(cmd *cobra.Command, args []string) error {
		natsURL, _ := cmd.Flags().GetString("nats-url")
		if natsURL == "" {
			return fmt.Errorf("no NATS URL (set --nats-url or REFGUARD_NATS_URL)")
		}
		rejectedOnly, _ := cmd.Flags().GetBool("rejected")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		sub, err := events.NewNATSSubscriber(natsURL,
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				slog.Warn("nats: disconnected", "err", err)
			}),
			nats.ReconnectHandler(func(_ *nats.Conn) {
				slog.Info("nats: reconnected")
			}),
		)
		if err != nil {
			return fmt.Errorf("connecting to NATS: %w", err)
		}
		defer sub.Close()

		topics := watchTopics
		if rejectedOnly {
			topics = []string{events.TopicDocumentRejected}
		}
		return watchEvents(ctx, sub, topics, os.Stdout)
	},
}

// watchEvents prints every event published on topics until ctx is done.
func watchEvents(ctx context.Context, sub events.Subscriber, topics []string, w io.Writer) error {
	merged := make(chan topicEvent)
	for _, topic := range topics {
		ch, cancel, err := sub.Subscribe(topic)
		if err != nil {
			return fmt.Errorf("subscribing to events: %w", err)
		}
		defer cancel()
		go func() {
			for payload := range ch {
				select {
				case merged <- topicEvent{topic: topic, payload: payload}:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-merged:
			if jsonOutput {
				fmt.Fprintf(w, "{\"topic\":%q,\"event\":%s}\n", ev.topic, ev.payload)
				continue
			}
			fmt.Fprintln(w, formatEvent(ev.topic, ev.payload))
		}
	}
}

// formatEvent renders one event as a single human-readable line.
func formatEvent(topic string, payload []byte) string {
	action := strings.TrimPrefix(topic, "refguard.document.")
	switch topic {
	case events.TopicDocumentRejected:
		var ev events.DocumentRejected
		if err := json.Unmarshal(payload, &ev); err != nil {
			break
		}
		line := fmt.Sprintf("%s %s %s", ui.RenderFail(action), ev.Model, ev.Operation)
		if ev.Field != "" {
			line += fmt.Sprintf(" %s -> %s %q", ev.Field, ev.RefModel, ev.RefID)
		}
		return line + " " + ui.RenderMuted("("+ev.Reason+")")
	case events.TopicDocumentDeleted:
		var ev events.DocumentDeleted
		if err := json.Unmarshal(payload, &ev); err != nil {
			break
		}
		return fmt.Sprintf("%s %s %s", ui.RenderAccent(action), ev.Model, ev.DocumentID)
	default:
		var ev struct {
			Model    string `json:"model"`
			Document struct {
				ID string `json:"_id"`
			} `json:"document"`
		}
		if err := json.Unmarshal(payload, &ev); err != nil {
			break
		}
		return fmt.Sprintf("%s %s %s", ui.RenderOK(action), ev.Model, ev.Document.ID)
	}
	return fmt.Sprintf("%s %s", action, payload)
}

func init() {
	watchCmd.Flags().String("nats-url", os.Getenv("REFGUARD_NATS_URL"), "NATS server URL")
	watchCmd.Flags().Bool("rejected", false, "only show rejected writes")
}
