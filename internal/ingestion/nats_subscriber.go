package ingestion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"CoverPool/internal/core"
	"CoverPool/internal/observability"
	"CoverPool/internal/pool"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

const (
	CommandStream  = "COVERPOOL_COMMANDS"
	CommandSubject = "coverpool.cmd"
)

// RawCommand is a command received from NATS, not yet parsed.
type RawCommand struct {
	Subject    string
	Data       []byte
	ReceivedAt time.Time
	AckFunc    func() // ACK once the command reached a final outcome
	NakFunc    func() // NAK to have it redelivered
	TermFunc   func() // terminate: the message can never succeed
}

// NATSSubscriber subscribes to the JetStream command subjects and hands
// raw commands to the Ingestor over cmdChan.
type NATSSubscriber struct {
	js        jetstream.JetStream
	cmdChan   chan<- RawCommand
	consumers []jetstream.ConsumeContext
	logger    zerolog.Logger
}

// SubjectConfig maps a NATS subject filter to a durable consumer.
type SubjectConfig struct {
	Subject      string
	ConsumerName string
	StreamName   string
}

// DefaultSubjects returns one consumer per command type so a slow command
// kind never starves the others. Rule is absent: rulings only enter through
// the arbitrator.
func DefaultSubjects() []SubjectConfig {
	types := []string{
		"Deposit", "RequestWithdrawal", "ExecuteWithdrawal",
		"BuyCoverage", "ReleaseExpiredCoverage", "AdjustCoverage",
		"CreateClaim", "SetRisk", "SetGovTokenAPR", "Faucet",
	}
	subjects := make([]SubjectConfig, 0, len(types))
	for _, t := range types {
		subjects = append(subjects, SubjectConfig{
			Subject:      fmt.Sprintf("%s.%s.>", CommandSubject, t),
			ConsumerName: "coverpool-" + strings.ToLower(t),
			StreamName:   CommandStream,
		})
	}
	return subjects
}

// CommandTypeFromSubject extracts the command type from
// "coverpool.cmd.<Type>[.<suffix>...]". Returns "" for other subjects.
func CommandTypeFromSubject(subject string) string {
	rest, ok := strings.CutPrefix(subject, CommandSubject+".")
	if !ok || rest == "" {
		return ""
	}
	commandType, _, _ := strings.Cut(rest, ".")
	return commandType
}

func NewNATSSubscriber(js jetstream.JetStream, cmdChan chan<- RawCommand, logger zerolog.Logger) *NATSSubscriber {
	return &NATSSubscriber{
		js:      js,
		cmdChan: cmdChan,
		logger:  logger.With().Str("component", "nats_subscriber").Logger(),
	}
}

// Subscribe creates JetStream consumers for all configured subjects.
// Consumers use explicit ACK, max_deliver=5, ack_wait=30s.
func (ns *NATSSubscriber) Subscribe(ctx context.Context, subjects []SubjectConfig) error {
	for _, cfg := range subjects {
		consumer, err := ns.js.CreateOrUpdateConsumer(ctx, cfg.StreamName, jetstream.ConsumerConfig{
			Durable:       cfg.ConsumerName,
			FilterSubject: cfg.Subject,
			AckPolicy:     jetstream.AckExplicitPolicy,
			AckWait:       30 * time.Second,
			MaxDeliver:    5,
			DeliverPolicy: jetstream.DeliverAllPolicy,
		})
		if err != nil {
			return fmt.Errorf("create consumer %s: %w", cfg.ConsumerName, err)
		}

		consumerContext, err := consumer.Consume(func(msg jetstream.Msg) {
			raw := RawCommand{
				Subject:    msg.Subject(),
				Data:       msg.Data(),
				ReceivedAt: time.Now(),
				AckFunc:    func() { msg.Ack() },
				NakFunc:    func() { msg.Nak() },
				TermFunc:   func() { msg.Term() },
			}

			select {
			case ns.cmdChan <- raw:
			case <-ctx.Done():
				msg.Nak()
			}
		})
		if err != nil {
			return fmt.Errorf("consume %s: %w", cfg.ConsumerName, err)
		}

		ns.consumers = append(ns.consumers, consumerContext)
		ns.logger.Info().Str("subject", cfg.Subject).Str("consumer", cfg.ConsumerName).Msg("subscribed")
	}

	return nil
}

// EnsureStreams creates the command stream if it doesn't exist.
func EnsureStreams(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      CommandStream,
		Subjects:  []string{CommandSubject + ".>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create stream %s: %w", CommandStream, err)
	}
	return nil
}

// Stop gracefully stops all consumers.
func (ns *NATSSubscriber) Stop() {
	for _, cc := range ns.consumers {
		cc.Stop()
	}
	ns.logger.Info().Msg("NATS subscribers stopped")
}

// Ingestor parses raw commands and submits them to the processor loop.
type Ingestor struct {
	parser  *Parser
	submit  chan<- core.Submission
	metrics *observability.Metrics
	logger  zerolog.Logger
}

func NewIngestor(parser *Parser, submit chan<- core.Submission, metrics *observability.Metrics, logger zerolog.Logger) *Ingestor {
	return &Ingestor{
		parser:  parser,
		submit:  submit,
		metrics: metrics,
		logger:  logger.With().Str("component", "ingestor").Logger(),
	}
}

// Run drains in until ctx is cancelled or in is closed.
func (ig *Ingestor) Run(ctx context.Context, in <-chan RawCommand) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw, ok := <-in:
			if !ok {
				return nil
			}
			ig.handle(ctx, raw)
		}
	}
}

func (ig *Ingestor) handle(ctx context.Context, raw RawCommand) {
	if ig.metrics != nil {
		ig.metrics.IngestReceived.WithLabelValues("nats").Inc()
	}

	cmd, err := ig.parser.Parse(CommandTypeFromSubject(raw.Subject), raw.Data)
	if err != nil {
		if ig.metrics != nil {
			ig.metrics.IngestInvalid.WithLabelValues("nats").Inc()
		}
		ig.logger.Warn().Err(err).Str("subject", raw.Subject).Msg("dropping invalid command")
		call(raw.TermFunc)
		return
	}

	res, err := core.Submit(ctx, ig.submit, cmd)
	switch {
	case err == nil:
		ig.logger.Debug().Str("request_id", cmd.IdempotencyKey()).Int64("sequence", res.Sequence).
			Bool("duplicate", res.Duplicate).Msg("command applied")
		call(raw.AckFunc)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		call(raw.NakFunc)
	default:
		// Rejected by the pool. Redelivery would be rejected again unless
		// the state changed, and the sender can resubmit with a new id.
		ig.logger.Info().Err(err).Str("kind", pool.ErrorKind(err)).
			Str("command", cmd.CommandType().String()).Str("request_id", cmd.IdempotencyKey()).
			Msg("command rejected")
		call(raw.AckFunc)
	}
}

func call(fn func()) {
	if fn != nil {
		fn()
	}
}

// ConnectNATS establishes a NATS connection and returns a JetStream context.
func ConnectNATS(url string, logger zerolog.Logger) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.Name("coverpool"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info().Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}

	return nc, js, nil
}
