package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"CoverPool/internal/event"
	"CoverPool/internal/observability"
	"CoverPool/internal/persistence"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

const (
	EventStream        = "COVERPOOL_EVENTS"
	EventSubjectPrefix = "coverpool.events"
)

// Publisher is the subset of jetstream.JetStream the outbound publisher uses.
type Publisher interface {
	Publish(ctx context.Context, subject string, payload []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// OutboundPublisher publishes pool events to NATS for external indexers.
// Events are published only after the command that produced them is durable.
type OutboundPublisher struct {
	js      Publisher
	queue   chan PublishableEvent
	metrics *observability.Metrics
	logger  zerolog.Logger
}

// PublishableEvent is one pool event plus the position of its command in
// the log.
type PublishableEvent struct {
	Sequence       int64           `json:"sequence"`
	CommandType    string          `json:"command_type"`
	IdempotencyKey string          `json:"idempotency_key"`
	PoolID         uint64          `json:"pool_id"`
	Index          int             `json:"index"` // position among the command's events
	Name           string          `json:"name"`
	Event          event.PoolEvent `json:"event"`
	StateHash      []byte          `json:"state_hash"`
	Timestamp      time.Time       `json:"timestamp"`
}

func NewOutboundPublisher(js Publisher, bufferSize int, metrics *observability.Metrics, logger zerolog.Logger) *OutboundPublisher {
	return &OutboundPublisher{
		js:      js,
		queue:   make(chan PublishableEvent, bufferSize),
		metrics: metrics,
		logger:  logger.With().Str("component", "publisher").Logger(),
	}
}

// EventSubject is coverpool.events.<EventName>.
func EventSubject(evt event.PoolEvent) string {
	return fmt.Sprintf("%s.%s", EventSubjectPrefix, evt.EventName())
}

// Committed queues the events of durable outputs. It never blocks the
// persistence worker: when the queue is full the event is dropped and
// counted, and consumers can fall back to the event log.
func (op *OutboundPublisher) Committed(_ context.Context, outputs []persistence.CoreOutput) {
	for _, o := range outputs {
		row := o.EventRow
		if len(row.Events) == 0 {
			continue
		}
		events, err := event.UnmarshalEvents(row.Events)
		if err != nil {
			op.logger.Error().Err(err).Int64("sequence", row.Sequence).Msg("decode events for publish")
			continue
		}
		for i, evt := range events {
			pe := PublishableEvent{
				Sequence:       row.Sequence,
				CommandType:    row.CommandType,
				IdempotencyKey: row.IdempotencyKey,
				PoolID:         row.PoolID,
				Index:          i,
				Name:           evt.EventName(),
				Event:          evt,
				StateHash:      row.StateHash,
				Timestamp:      row.Timestamp,
			}
			select {
			case op.queue <- pe:
			default:
				if op.metrics != nil {
					op.metrics.PublishDrops.Inc()
				}
			}
		}
	}
}

// Run starts the outbound publisher loop.
func (op *OutboundPublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case evt := <-op.queue:
			if err := op.publish(ctx, evt); err != nil {
				// Non-fatal: downstream consumers can query the event log directly
				op.logger.Warn().Err(err).Int64("sequence", evt.Sequence).Str("event", evt.Name).
					Msg("outbound publish failed")
			}
			if op.metrics != nil {
				op.metrics.ChannelSize.WithLabelValues("publish").Set(float64(len(op.queue)))
			}
		}
	}
}

func (op *OutboundPublisher) publish(ctx context.Context, evt PublishableEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	// Dedup on the JetStream side: one message per (sequence, event index).
	msgID := fmt.Sprintf("%d:%d", evt.Sequence, evt.Index)
	_, err = op.js.Publish(ctx, EventSubject(evt.Event), data, jetstream.WithMsgID(msgID))
	return err
}

// EnsureOutboundStream creates the outbound events stream.
func EnsureOutboundStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:       EventStream,
		Subjects:   []string{EventSubjectPrefix + ".>"},
		Storage:    jetstream.FileStorage,
		Retention:  jetstream.LimitsPolicy,
		MaxAge:     72 * time.Hour,
		Duplicates: 2 * time.Minute,
		Replicas:   1,
	})
	if err != nil {
		return fmt.Errorf("create outbound stream: %w", err)
	}
	return nil
}
