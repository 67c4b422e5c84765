package core

import (
	"context"
	"fmt"
	"time"

	"CoverPool/internal/event"
	"CoverPool/internal/state"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// Submission is one command waiting for the processor goroutine.
type Submission struct {
	Command event.Command
	Reply   chan<- Reply // buffered; may be nil for fire-and-forget
}

// Reply is the processor's answer to a Submission.
type Reply struct {
	Result Result
	Err    error
}

// Run is the processor loop. All commands, whatever their source, are applied
// here one at a time.
func (p *Processor) Run(ctx context.Context, in <-chan Submission) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sub, ok := <-in:
			if !ok {
				return nil
			}
			res, err := p.ProcessCommand(ctx, sub.Command)
			if sub.Reply != nil {
				sub.Reply <- Reply{Result: res, Err: err}
			}
			if err == nil && !res.Duplicate {
				p.maybeSnapshot()
			}
		}
	}
}

// SnapshotEvery makes Run capture a checkpoint once interval commands have
// been accepted since the last one. Checkpoints are taken on the processor
// goroutine and handed to sink; when sink is full the checkpoint is skipped
// and retried after the next command. Must be called before Run.
func (p *Processor) SnapshotEvery(interval int64, sink chan<- *SnapshotState) {
	p.snapshotInterval = interval
	p.snapshotSink = sink
	p.lastSnapshotSeq = p.sequence - 1
}

func (p *Processor) maybeSnapshot() {
	if p.snapshotSink == nil || p.snapshotInterval <= 0 {
		return
	}
	if p.sequence-1-p.lastSnapshotSeq < p.snapshotInterval {
		return
	}
	snap, err := p.CreateSnapshotState()
	if err != nil {
		p.logger.Error().Err(err).Msg("snapshot capture failed")
		return
	}
	select {
	case p.snapshotSink <- snap:
		p.lastSnapshotSeq = snap.Sequence
	default:
	}
}

// Submit hands cmd to the processor loop and waits for its result.
func Submit(ctx context.Context, in chan<- Submission, cmd event.Command) (Result, error) {
	reply := make(chan Reply, 1)
	select {
	case in <- Submission{Command: cmd, Reply: reply}:
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}

	select {
	case r := <-reply:
		return r.Result, r.Err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// RuleForwarder receives rulings from the arbitrator and feeds them through
// the command log as Rule commands, so rulings replay like any other input.
type RuleForwarder struct {
	in    chan<- Submission
	clock func() time.Time
}

func NewRuleForwarder(in chan<- Submission, clock func() time.Time) *RuleForwarder {
	if clock == nil {
		clock = time.Now
	}
	return &RuleForwarder{in: in, clock: clock}
}

// RuleRequestID is the request id of the Rule command for a dispute. It is
// derived from the dispute id so a re-delivered ruling is deduplicated.
func RuleRequestID(disputeID uint64) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("coverpool:rule:%d", disputeID)))
}

// Rule submits the ruling and waits for the pool to apply it. A ruling that
// was already logged counts as delivered.
func (f *RuleForwarder) Rule(ctx context.Context, caller common.Address, disputeID uint64, ruling state.Ruling) error {
	cmd := &event.Rule{
		Meta: event.Meta{
			RequestID:   RuleRequestID(disputeID),
			Sender:      caller,
			SubmittedAt: f.clock(),
		},
		DisputeID: disputeID,
		Ruling:    ruling,
	}
	_, err := Submit(ctx, f.in, cmd)
	return err
}
