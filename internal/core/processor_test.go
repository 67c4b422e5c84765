package core_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"CoverPool/internal/core"
	"CoverPool/internal/event"
	"CoverPool/internal/inmem"
	"CoverPool/internal/ledger"
	"CoverPool/internal/pool"
	"CoverPool/internal/state"
	"CoverPool/internal/testutil"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// --- Test helpers ---

type harness struct {
	f          *testutil.PoolFixture
	proc       *core.Processor
	persistCh  chan core.CoreOutput
	projectCh  chan core.CoreOutput
	submitCh   chan core.Submission
	cancelLoop context.CancelFunc
}

// newHarness wires a processor with buffered channels in front of a fresh
// pool fixture.
func newHarness(t *testing.T) *harness {
	t.Helper()
	f := testutil.NewPoolFixture(t, testutil.DefaultParams())
	persistCh := make(chan core.CoreOutput, 1024)
	projectCh := make(chan core.CoreOutput, 1024)
	proc := core.NewProcessor(f.Engine, persistCh, projectCh, core.ProcessorConfig{
		DedupCapacity: 1024,
		Coverage:      f.World.Registry,
		Faucet:        inmem.NewFaucet(f.Token, f.Address),
		Logger:        zerolog.Nop(),
	})
	return &harness{f: f, proc: proc, persistCh: persistCh, projectCh: projectCh}
}

func (h *harness) meta(sender common.Address) event.Meta {
	return event.Meta{RequestID: uuid.New(), Sender: sender, SubmittedAt: h.f.Now()}
}

func (h *harness) mustProcess(t *testing.T, cmd event.Command) core.Result {
	t.Helper()
	res, err := h.proc.ProcessCommand(context.Background(), cmd)
	if err != nil {
		t.Fatalf("%s: %v", cmd.CommandType(), err)
	}
	return res
}

// drain returns every output persisted so far.
func (h *harness) drain() []core.CoreOutput {
	var out []core.CoreOutput
	for {
		select {
		case o := <-h.persistCh:
			out = append(out, o)
		default:
			return out
		}
	}
}

// startLoop runs the processor loop in the background.
func (h *harness) startLoop(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	h.submitCh = make(chan core.Submission)
	h.cancelLoop = cancel
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = h.proc.Run(ctx, h.submitCh)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

// seedScenario funds an LP and an insured, deposits and buys coverage.
func (h *harness) seedScenario(t *testing.T) pool.CoverageResult {
	t.Helper()
	h.mustProcess(t, &event.Faucet{Meta: h.meta(testutil.Insurer), Amount: 10_000})
	h.mustProcess(t, &event.Deposit{Meta: h.meta(testutil.Insurer), Amount: 10_000})
	h.mustProcess(t, &event.Faucet{Meta: h.meta(testutil.Insured), Amount: 1_000})
	h.f.Advance(time.Hour)
	res := h.mustProcess(t, &event.BuyCoverage{Meta: h.meta(testutil.Insured), CoverAmount: 1_000, DurationDays: 30})
	cov, ok := res.Value.(pool.CoverageResult)
	if !ok {
		t.Fatalf("BuyCoverage returned %T", res.Value)
	}
	return cov
}

// ============================================================================
// Test: Sequencing and hash chain
// ============================================================================

func TestProcessor_AssignsSequenceAndChainsHashes(t *testing.T) {
	h := newHarness(t)
	h.seedScenario(t)

	outputs := h.drain()
	if len(outputs) != 4 {
		t.Fatalf("expected 4 logged commands, got %d", len(outputs))
	}

	prev := core.GenesisHash()
	for i, o := range outputs {
		env := o.Envelope
		if env.Sequence != int64(i) {
			t.Errorf("output %d: sequence %d", i, env.Sequence)
		}
		if env.PrevHash != prev {
			t.Errorf("output %d: prev hash does not chain", i)
		}
		if env.StateHash == env.PrevHash {
			t.Errorf("output %d: state hash did not advance", i)
		}
		prev = env.StateHash
	}
	if h.proc.GetSequence() != 4 {
		t.Errorf("expected next sequence 4, got %d", h.proc.GetSequence())
	}
	if h.proc.GetStateHash() != prev {
		t.Error("chain tip differs from last logged hash")
	}
}

func TestProcessor_BatchStampedWithSequenceAndRequest(t *testing.T) {
	h := newHarness(t)
	h.mustProcess(t, &event.Faucet{Meta: h.meta(testutil.Insurer), Amount: 500})
	deposit := &event.Deposit{Meta: h.meta(testutil.Insurer), Amount: 500}
	h.mustProcess(t, deposit)

	outputs := h.drain()
	if outputs[0].Batch != nil {
		t.Error("faucet moves nothing through the pool and should carry no batch")
	}
	o := outputs[1]
	if o.Batch == nil || len(o.Batch.Journals) != 1 {
		t.Fatalf("expected one deposit journal, got %+v", o.Batch)
	}
	j := o.Batch.Journals[0]
	if j.JournalType != ledger.JournalTypeDeposit || j.Amount != 500 {
		t.Errorf("unexpected journal: %+v", j)
	}
	if j.Sequence != 1 || j.EventRef != deposit.IdempotencyKey() {
		t.Errorf("journal not stamped: seq=%d ref=%s", j.Sequence, j.EventRef)
	}
	if o.Envelope.CommandType != event.CommandTypeDeposit || o.Envelope.Caller != testutil.Insurer {
		t.Errorf("unexpected envelope: %+v", o.Envelope)
	}
	if len(o.Envelope.Events) != 1 {
		t.Fatalf("expected LiquidityProvided, got %v", o.Envelope.Events)
	}
	if lp, ok := o.Envelope.Events[0].(event.LiquidityProvided); !ok || lp.Shares != 500 {
		t.Errorf("unexpected event: %#v", o.Envelope.Events[0])
	}
}

// ============================================================================
// Test: Idempotency and rejection
// ============================================================================

func TestProcessor_DuplicateRequestIgnored(t *testing.T) {
	h := newHarness(t)
	drip := &event.Faucet{Meta: h.meta(testutil.Insurer), Amount: 100}

	h.mustProcess(t, drip)
	res := h.mustProcess(t, drip)

	if !res.Duplicate {
		t.Error("expected second submission to be reported as duplicate")
	}
	if got := h.f.Token.BalanceOf(testutil.Insurer); got != 100 {
		t.Errorf("expected faucet to pay once, balance %d", got)
	}
	if n := len(h.drain()); n != 1 {
		t.Errorf("expected one logged command, got %d", n)
	}
}

func TestProcessor_RejectedCommandLeavesNoTrace(t *testing.T) {
	h := newHarness(t)
	before := h.proc.GetStateHash()

	_, err := h.proc.ProcessCommand(context.Background(), &event.Deposit{Meta: h.meta(testutil.Insurer), Amount: 1_000})
	if !errors.Is(err, pool.ErrTransferFailed) {
		t.Fatalf("expected ErrTransferFailed for an unfunded deposit, got %v", err)
	}
	if h.proc.GetSequence() != 0 {
		t.Errorf("rejected command consumed sequence %d", h.proc.GetSequence())
	}
	if h.proc.GetStateHash() != before {
		t.Error("rejected command moved the chain tip")
	}
	if n := len(h.drain()); n != 0 {
		t.Errorf("rejected command was logged: %d outputs", n)
	}
}

func TestProcessor_RejectedRequestCanBeRetried(t *testing.T) {
	h := newHarness(t)
	deposit := &event.Deposit{Meta: h.meta(testutil.Insurer), Amount: 1_000}

	if _, err := h.proc.ProcessCommand(context.Background(), deposit); err == nil {
		t.Fatal("expected unfunded deposit to fail")
	}
	h.f.Fund(testutil.Insurer, 1_000)
	res := h.mustProcess(t, deposit)
	if res.Duplicate {
		t.Fatal("a rejected request id must not be remembered")
	}
	if dep := res.Value.(pool.DepositResult); dep.Shares != 1_000 {
		t.Errorf("expected 1000 shares, got %d", dep.Shares)
	}
}

func TestProcessor_FaucetDisabled(t *testing.T) {
	f := testutil.NewPoolFixture(t, testutil.DefaultParams())
	proc := core.NewProcessor(f.Engine, make(chan core.CoreOutput, 8), make(chan core.CoreOutput, 8), core.ProcessorConfig{
		Logger: zerolog.Nop(),
	})

	_, err := proc.ProcessCommand(context.Background(), &event.Faucet{
		Meta:   event.Meta{RequestID: uuid.New(), Sender: testutil.Insurer, SubmittedAt: f.Now()},
		Amount: 10,
	})
	if !errors.Is(err, core.ErrFaucetDisabled) {
		t.Fatalf("expected ErrFaucetDisabled, got %v", err)
	}
}

// ============================================================================
// Test: Projection
// ============================================================================

func TestProcessor_ProjectionCarriesTouchedRows(t *testing.T) {
	h := newHarness(t)
	cov := h.seedScenario(t)

	var last core.CoreOutput
	for _, o := range h.drain() {
		last = o
	}
	proj := last.Projection
	if proj == nil {
		t.Fatal("missing projection")
	}
	if proj.Pool.TotalLocked != 1_000 || proj.Pool.TotalLiquidity != 10_000 {
		t.Errorf("unexpected pool state: %+v", proj.Pool)
	}
	if len(proj.Coverages) != 1 || proj.Coverages[0].TokenID != cov.TokenID {
		t.Fatalf("expected coverage %d in projection, got %+v", cov.TokenID, proj.Coverages)
	}
	if proj.Coverages[0].Status != state.CoverageActive || proj.Coverages[0].Owner != testutil.Insured {
		t.Errorf("unexpected coverage row: %+v", proj.Coverages[0])
	}
	if len(proj.Balances) == 0 {
		t.Error("expected balances of the premium journals")
	}

	select {
	case o := <-h.projectCh:
		if o.Envelope.Sequence != 0 {
			t.Errorf("projection channel out of order: %d", o.Envelope.Sequence)
		}
	default:
		t.Error("projection channel is empty")
	}
}

// ============================================================================
// Test: Replay
// ============================================================================

func TestProcessor_ReplayReproducesHashes(t *testing.T) {
	h := newHarness(t)
	cov := h.seedScenario(t)
	h.f.Advance(24 * time.Hour)
	h.mustProcess(t, &event.CreateClaim{
		Meta:           h.meta(testutil.Insured),
		TokenID:        cov.TokenID,
		EvidenceURI:    "ipfs://evidence",
		ArbitrationFee: testutil.ArbitrationCost,
	})
	h.mustProcess(t, &event.RequestWithdrawal{Meta: h.meta(testutil.Insurer), Shares: 1_000})
	logged := h.drain()

	fresh := newHarness(t)
	for _, o := range logged {
		cmd, err := event.DecodeCommand(o.Envelope.CommandType, o.Envelope.Payload)
		if err != nil {
			t.Fatalf("decode seq %d: %v", o.Envelope.Sequence, err)
		}
		if err := fresh.proc.Replay(context.Background(), cmd, o.Envelope.Sequence, o.Envelope.StateHash); err != nil {
			t.Fatalf("replay: %v", err)
		}
	}

	if fresh.proc.GetStateHash() != h.proc.GetStateHash() {
		t.Error("replayed chain tip differs")
	}
	if fresh.f.Engine.State() != h.f.Engine.State() {
		t.Errorf("replayed pool %+v, original %+v", fresh.f.Engine.State(), h.f.Engine.State())
	}
	if n := len(fresh.drain()); n != 0 {
		t.Errorf("replay must not re-persist, got %d outputs", n)
	}

	// Replayed request ids are known to the dedup cache.
	cmd, _ := event.DecodeCommand(logged[0].Envelope.CommandType, logged[0].Envelope.Payload)
	res, err := fresh.proc.ProcessCommand(context.Background(), cmd)
	if err != nil || !res.Duplicate {
		t.Errorf("expected replayed request to be a duplicate, got %+v, %v", res, err)
	}
}

func TestProcessor_ReplayDetectsDivergence(t *testing.T) {
	h := newHarness(t)
	h.mustProcess(t, &event.Faucet{Meta: h.meta(testutil.Insurer), Amount: 100})
	o := h.drain()[0]

	fresh := newHarness(t)
	cmd, err := event.DecodeCommand(o.Envelope.CommandType, o.Envelope.Payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if err := fresh.proc.Replay(context.Background(), cmd, 5, o.Envelope.StateHash); !errors.Is(err, core.ErrOutOfSequence) {
		t.Errorf("expected ErrOutOfSequence, got %v", err)
	}

	var tampered [32]byte
	copy(tampered[:], o.Envelope.StateHash[:])
	tampered[0] ^= 0xff
	if err := fresh.proc.Replay(context.Background(), cmd, 0, tampered); !errors.Is(err, core.ErrHashMismatch) {
		t.Errorf("expected ErrHashMismatch, got %v", err)
	}
}

// ============================================================================
// Test: Snapshot checkpoint
// ============================================================================

func TestProcessor_SnapshotVerifiesAgainstReplay(t *testing.T) {
	h := newHarness(t)
	h.seedScenario(t)
	logged := h.drain()

	snap, err := h.proc.CreateSnapshotState()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.Sequence != 3 || snap.StateHash != h.proc.GetStateHash() {
		t.Errorf("unexpected snapshot header: seq=%d", snap.Sequence)
	}
	if len(snap.IdempotencyKeys) != 4 {
		t.Errorf("expected 4 idempotency keys, got %d", len(snap.IdempotencyKeys))
	}

	fresh := newHarness(t)
	for _, o := range logged {
		cmd, _ := event.DecodeCommand(o.Envelope.CommandType, o.Envelope.Payload)
		if err := fresh.proc.Replay(context.Background(), cmd, o.Envelope.Sequence, o.Envelope.StateHash); err != nil {
			t.Fatalf("replay: %v", err)
		}
	}
	if err := fresh.proc.VerifySnapshot(snap); err != nil {
		t.Errorf("verify snapshot: %v", err)
	}

	snap.StateHash[0] ^= 0xff
	if err := fresh.proc.VerifySnapshot(snap); !errors.Is(err, core.ErrHashMismatch) {
		t.Errorf("expected ErrHashMismatch for a corrupted snapshot, got %v", err)
	}
}

// ============================================================================
// Test: Processor loop and rulings
// ============================================================================

func TestRun_RulingFlowsThroughLog(t *testing.T) {
	h := newHarness(t)
	cov := h.seedScenario(t)
	h.drain()

	h.startLoop(t)
	h.f.Oracle.Bind(core.NewRuleForwarder(h.submitCh, h.f.Now))
	ctx := context.Background()

	h.f.Advance(24 * time.Hour)
	res, err := core.Submit(ctx, h.submitCh, &event.CreateClaim{
		Meta:           h.meta(testutil.Insured),
		TokenID:        cov.TokenID,
		EvidenceURI:    "ipfs://evidence",
		ArbitrationFee: testutil.ArbitrationCost,
	})
	if err != nil {
		t.Fatalf("create claim: %v", err)
	}
	claim := res.Value.(pool.ClaimResult)

	before := h.f.Token.BalanceOf(testutil.Insured)
	if err := h.f.Resolve(claim.DisputeID, state.RulingYes); err != nil {
		t.Fatalf("execute ruling: %v", err)
	}

	got, ok := h.f.Engine.Claim(claim.DisputeID)
	if !ok || !got.Ruled || got.Ruling != state.RulingYes {
		t.Fatalf("claim not ruled: %+v", got)
	}
	if paid := h.f.Token.BalanceOf(testutil.Insured) - before; paid != 1_000 {
		t.Errorf("expected payout of 1000, got %d", paid)
	}

	outputs := h.drain()
	if len(outputs) != 2 {
		t.Fatalf("expected claim and rule to be logged, got %d", len(outputs))
	}
	rule := outputs[1].Envelope
	if rule.CommandType != event.CommandTypeRule || rule.Caller != h.f.Arbitrator.Address() {
		t.Errorf("unexpected rule envelope: %+v", rule)
	}
	if rule.IdempotencyKey != core.RuleRequestID(claim.DisputeID).String() {
		t.Errorf("rule request id %s is not derived from the dispute", rule.IdempotencyKey)
	}

	// A re-delivered ruling is absorbed by dedup.
	fwd := core.NewRuleForwarder(h.submitCh, h.f.Now)
	if err := fwd.Rule(ctx, h.f.Arbitrator.Address(), claim.DisputeID, state.RulingYes); err != nil {
		t.Errorf("re-delivered ruling: %v", err)
	}
	if n := len(h.drain()); n != 0 {
		t.Errorf("re-delivered ruling was logged again")
	}
}

func TestSubmit_HonoursContext(t *testing.T) {
	in := make(chan core.Submission) // nobody reading
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := core.Submit(ctx, in, &event.ExecuteWithdrawal{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

// ============================================================================
// Test: Full projection for rebuilds
// ============================================================================

func TestProcessor_FullProjectionCoversState(t *testing.T) {
	h := newHarness(t)
	h.seedScenario(t)
	h.drain()

	proj := h.proc.FullProjection(context.Background())
	if proj.Pool.TotalLiquidity != h.proc.Engine().State().TotalLiquidity {
		t.Errorf("pool row mismatch")
	}
	if len(proj.Positions) != 1 {
		t.Errorf("expected 1 position, got %d", len(proj.Positions))
	}
	if len(proj.Coverages) != 1 {
		t.Errorf("expected 1 coverage, got %d", len(proj.Coverages))
	}
	if len(proj.Balances) == 0 {
		t.Error("expected balances in the full projection")
	}
}

// ============================================================================
// Test: Periodic checkpoints
// ============================================================================

func TestProcessor_SnapshotEvery(t *testing.T) {
	h := newHarness(t)
	sink := make(chan *core.SnapshotState, 4)
	h.proc.SnapshotEvery(2, sink)
	h.startLoop(t)

	ctx := context.Background()
	cmds := []event.Command{
		&event.Faucet{Meta: h.meta(testutil.Insurer), Amount: 10_000},
		&event.Deposit{Meta: h.meta(testutil.Insurer), Amount: 10_000},
		&event.Faucet{Meta: h.meta(testutil.Insured), Amount: 500},
	}
	for _, cmd := range cmds {
		if _, err := core.Submit(ctx, h.submitCh, cmd); err != nil {
			t.Fatalf("%s: %v", cmd.CommandType(), err)
		}
	}

	select {
	case snap := <-sink:
		if snap.Sequence != 1 {
			t.Errorf("expected checkpoint at seq 1, got %d", snap.Sequence)
		}
		if len(snap.IdempotencyKeys) != 2 {
			t.Errorf("expected 2 idempotency keys, got %d", len(snap.IdempotencyKeys))
		}
	case <-time.After(time.Second):
		t.Fatal("no checkpoint captured")
	}

	select {
	case snap := <-sink:
		t.Errorf("unexpected second checkpoint at seq %d", snap.Sequence)
	case <-time.After(20 * time.Millisecond):
	}
}
