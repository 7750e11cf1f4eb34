package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"StakeVault/internal/event"
	"StakeVault/internal/observability"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

// OutboundPublisher drains the event log's publish channel and republishes
// each event to NATS for downstream consumers. Subjects follow
// sv.events.{event_type}. Publishing is best effort: a failed publish is
// logged and skipped, since the event log in Postgres is the durable copy.
type OutboundPublisher struct {
	js        jetstream.JetStream
	inputChan <-chan event.Event
	log       zerolog.Logger
}

// outboundEventJSON is the wire envelope for published events.
type outboundEventJSON struct {
	Sequence    uint64      `json:"sequence"`
	EventType   string      `json:"event_type"`
	Payload     interface{} `json:"payload"`
	TimestampUs int64       `json:"timestamp_us"`
}

func NewOutboundPublisher(js jetstream.JetStream, inputChan <-chan event.Event) *OutboundPublisher {
	return &OutboundPublisher{
		js:        js,
		inputChan: inputChan,
		log:       observability.NewLogger("publisher"),
	}
}

// Run starts the outbound publisher loop.
func (op *OutboundPublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case evt, ok := <-op.inputChan:
			if !ok {
				return nil
			}

			if err := op.publish(ctx, evt); err != nil {
				op.log.Warn().
					Uint64("seq", evt.Seq).
					Str("type", evt.Type.String()).
					Err(err).
					Msg("outbound publish failed")
			}
		}
	}
}

func (op *OutboundPublisher) publish(ctx context.Context, evt event.Event) error {
	data, err := json.Marshal(outboundEventJSON{
		Sequence:    evt.Seq,
		EventType:   evt.Type.String(),
		Payload:     evt.Payload,
		TimestampUs: evt.At.UnixMicro(),
	})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	subject := fmt.Sprintf("sv.events.%s", evt.Type.String())
	_, err = op.js.Publish(ctx, subject, data)
	return err
}

// EnsureOutboundStream creates the outbound events stream.
func EnsureOutboundStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      "SV_EVENTS",
		Subjects:  []string{"sv.events.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create outbound stream: %w", err)
	}
	return nil
}
