package ingestion_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"CoverPool/internal/core"
	"CoverPool/internal/event"
	"CoverPool/internal/ingestion"
	"CoverPool/internal/persistence"
	"CoverPool/internal/pool"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

// fakeLoop answers every submission with reply.
func fakeLoop(t *testing.T, reply func(event.Command) core.Reply) (chan core.Submission, *int32) {
	t.Helper()
	in := make(chan core.Submission)
	var count int32
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case sub := <-in:
				atomic.AddInt32(&count, 1)
				sub.Reply <- reply(sub.Command)
			}
		}
	}()
	return in, &count
}

type outcome struct {
	acked, naked, termed int32
}

func (o *outcome) raw(subject string, data []byte) ingestion.RawCommand {
	return ingestion.RawCommand{
		Subject:    subject,
		Data:       data,
		ReceivedAt: time.Now(),
		AckFunc:    func() { atomic.AddInt32(&o.acked, 1) },
		NakFunc:    func() { atomic.AddInt32(&o.naked, 1) },
		TermFunc:   func() { atomic.AddInt32(&o.termed, 1) },
	}
}

func runOne(t *testing.T, ig *ingestion.Ingestor, raw ingestion.RawCommand) {
	t.Helper()
	ch := make(chan ingestion.RawCommand, 1)
	ch <- raw
	close(ch)
	if err := ig.Run(context.Background(), ch); err != nil {
		t.Fatalf("run: %v", err)
	}
}

// ============================================================================
// Test: Ingestor acknowledgement
// ============================================================================

func TestIngestor_AcksAppliedCommand(t *testing.T) {
	in, count := fakeLoop(t, func(event.Command) core.Reply {
		return core.Reply{Result: core.Result{Sequence: 7}}
	})
	ig := ingestion.NewIngestor(ingestion.NewParser(false), in, nil, zerolog.Nop())

	var o outcome
	runOne(t, ig, o.raw("coverpool.cmd.Deposit.x", payload(t, map[string]any{"amount": 10})))

	if atomic.LoadInt32(count) != 1 || o.acked != 1 || o.naked != 0 || o.termed != 0 {
		t.Errorf("expected one submit and ack, got submits=%d %+v", *count, o)
	}
}

func TestIngestor_AcksRejectedCommand(t *testing.T) {
	in, _ := fakeLoop(t, func(event.Command) core.Reply {
		return core.Reply{Err: pool.ErrInsufficientBalance}
	})
	ig := ingestion.NewIngestor(ingestion.NewParser(false), in, nil, zerolog.Nop())

	var o outcome
	runOne(t, ig, o.raw("coverpool.cmd.BuyCoverage.x", payload(t, map[string]any{"cover_amount": 1, "duration_days": 1})))

	if o.acked != 1 || o.naked != 0 {
		t.Errorf("a rejected command should be acked, got %+v", o)
	}
}

func TestIngestor_TerminatesInvalidCommand(t *testing.T) {
	in, count := fakeLoop(t, func(event.Command) core.Reply { return core.Reply{} })
	ig := ingestion.NewIngestor(ingestion.NewParser(false), in, nil, zerolog.Nop())

	var o outcome
	runOne(t, ig, o.raw("coverpool.cmd.Deposit.x", []byte(`not json`)))

	if atomic.LoadInt32(count) != 0 || o.termed != 1 || o.acked != 0 {
		t.Errorf("invalid command should be terminated without submit, got submits=%d %+v", *count, o)
	}
}

func TestIngestor_NaksOnShutdown(t *testing.T) {
	in, _ := fakeLoop(t, func(event.Command) core.Reply {
		return core.Reply{Err: context.Canceled}
	})
	ig := ingestion.NewIngestor(ingestion.NewParser(false), in, nil, zerolog.Nop())

	var o outcome
	runOne(t, ig, o.raw("coverpool.cmd.Deposit.x", payload(t, map[string]any{"amount": 10})))

	if o.naked != 1 || o.acked != 0 {
		t.Errorf("cancelled submit should be naked, got %+v", o)
	}
}

func TestGatewayIngest_SubmitsParsedCommand(t *testing.T) {
	in, _ := fakeLoop(t, func(cmd event.Command) core.Reply {
		if _, ok := cmd.(*event.Deposit); !ok {
			return core.Reply{Err: errors.New("unexpected command")}
		}
		return core.Reply{Result: core.Result{Sequence: 3}}
	})
	svc := ingestion.NewGatewayIngestService(ingestion.NewParser(false), in, nil)

	res, err := svc.Submit(context.Background(), "Deposit", payload(t, map[string]any{"amount": 10}))
	if err != nil || res.Sequence != 3 {
		t.Fatalf("submit: res=%+v err=%v", res, err)
	}
	if _, err := svc.Submit(context.Background(), "Faucet", payload(t, map[string]any{"amount": 10})); !errors.Is(err, core.ErrFaucetDisabled) {
		t.Errorf("expected ErrFaucetDisabled, got %v", err)
	}
}

// ============================================================================
// Test: Outbound publisher
// ============================================================================

type recordingPublisher struct {
	subjects []string
}

func (r *recordingPublisher) Publish(_ context.Context, subject string, _ []byte, _ ...jetstream.PublishOpt) (*jetstream.PubAck, error) {
	r.subjects = append(r.subjects, subject)
	return &jetstream.PubAck{}, nil
}

func TestPublisher_PublishesCommittedEvents(t *testing.T) {
	events, err := event.MarshalEvents([]event.PoolEvent{
		event.Ruling{DisputeID: 1},
		event.ClaimPaid{DisputeID: 1, Amount: 100},
	})
	if err != nil {
		t.Fatal(err)
	}

	rec := &recordingPublisher{}
	pub := ingestion.NewOutboundPublisher(rec, 8, nil, zerolog.Nop())
	pub.Committed(context.Background(), []persistence.CoreOutput{
		{EventRow: persistence.EventRow{Sequence: 5, CommandType: "Rule", Events: events}},
		{EventRow: persistence.EventRow{Sequence: 6, CommandType: "SetRisk"}},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_ = pub.Run(ctx)

	if len(rec.subjects) != 2 {
		t.Fatalf("expected 2 published events, got %d", len(rec.subjects))
	}
	if rec.subjects[0] != "coverpool.events.Ruling" || rec.subjects[1] != "coverpool.events.ClaimPaid" {
		t.Errorf("unexpected subjects: %v", rec.subjects)
	}
}

func TestPublisher_DropsWhenQueueFull(t *testing.T) {
	events, _ := event.MarshalEvents([]event.PoolEvent{
		event.RiskUpdated{Risk: 3},
		event.RiskUpdated{Risk: 4},
	})

	rec := &recordingPublisher{}
	pub := ingestion.NewOutboundPublisher(rec, 1, nil, zerolog.Nop())
	pub.Committed(context.Background(), []persistence.CoreOutput{
		{EventRow: persistence.EventRow{Sequence: 1, Events: events}},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_ = pub.Run(ctx)

	if len(rec.subjects) != 1 {
		t.Errorf("expected the overflow event to be dropped, published %d", len(rec.subjects))
	}
}
