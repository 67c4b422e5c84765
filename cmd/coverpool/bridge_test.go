package main

import (
	"testing"
	"time"

	"CoverPool/internal/core"
	"CoverPool/internal/event"
	"CoverPool/internal/ledger"
	"CoverPool/internal/projection"
	"CoverPool/internal/state"

	"github.com/ethereum/go-ethereum/common"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob   = common.HexToAddress("0x00000000000000000000000000000000000000b2")
)

func mustAssetID(t *testing.T, asset string) ledger.AssetID {
	t.Helper()
	id, ok := ledger.GetAssetID(asset)
	if !ok {
		t.Fatalf("unknown asset %s", asset)
	}
	return id
}

func depositOutput(t *testing.T) core.CoreOutput {
	t.Helper()
	asset := mustAssetID(t, "USDC")
	ts := time.Unix(1_700_000_000, 0).UTC()

	bb := ledger.NewBatchBuilder(ts.UnixMicro())
	bb.Move(ledger.NewWalletAccountKey(alice, asset), ledger.NewCustodyAccountKey(1, asset), 500, ledger.JournalTypeDeposit)
	batch := bb.Build()
	batch.Stamp(7, "dep-1")

	return core.CoreOutput{
		Envelope: &event.EventEnvelope{
			Sequence:       7,
			IdempotencyKey: "dep-1",
			CommandType:    event.CommandTypeDeposit,
			PoolID:         1,
			Caller:         alice,
			Timestamp:      ts,
			Payload:        []byte(`{"amount":500}`),
			Events: []event.PoolEvent{
				event.LiquidityProvided{PoolID: 1, Provider: alice, Amount: 500, Shares: 500},
			},
			StateHash: [32]byte{1},
			PrevHash:  [32]byte{2},
		},
		Batch: batch,
		Projection: &core.Projection{
			Pool:      state.PoolState{PoolID: 1, Asset: "USDC", TotalLiquidity: 500, TotalShares: 500},
			Positions: []state.LPPosition{{Provider: alice, Shares: 500, DepositTimestamp: ts.Unix()}},
			Balances:  map[ledger.AccountKey]int64{ledger.NewCustodyAccountKey(1, asset): 500},
		},
	}
}

// ============================================================================
// Test: Persistence rows
// ============================================================================

func TestToPersistence_CopiesEnvelopeAndJournals(t *testing.T) {
	out := depositOutput(t)

	row, err := toPersistence(out)
	if err != nil {
		t.Fatalf("toPersistence: %v", err)
	}
	if row.EventRow.Sequence != 7 || row.EventRow.IdempotencyKey != "dep-1" {
		t.Fatalf("unexpected event row %+v", row.EventRow)
	}
	if row.EventRow.Caller != alice.Hex() {
		t.Errorf("caller = %s, want %s", row.EventRow.Caller, alice.Hex())
	}
	if row.EventRow.StateHash[0] != 1 || row.EventRow.PrevHash[0] != 2 {
		t.Error("hashes not copied")
	}

	events, err := event.UnmarshalEvents(row.EventRow.Events)
	if err != nil {
		t.Fatalf("decode events: %v", err)
	}
	if len(events) != 1 || events[0].EventName() != "LiquidityProvided" {
		t.Fatalf("unexpected events %v", events)
	}

	if len(row.JournalRows) != 1 {
		t.Fatalf("expected 1 journal row, got %d", len(row.JournalRows))
	}
	j := row.JournalRows[0]
	if j.Sequence != 7 || j.EventRef != "dep-1" || j.Amount != 500 {
		t.Errorf("unexpected journal row %+v", j)
	}
	if j.JournalType != int32(ledger.JournalTypeDeposit) {
		t.Errorf("journal type = %d", j.JournalType)
	}
}

func TestToPersistence_NoBatch(t *testing.T) {
	out := depositOutput(t)
	out.Batch = nil

	row, err := toPersistence(out)
	if err != nil {
		t.Fatalf("toPersistence: %v", err)
	}
	if row.JournalRows != nil {
		t.Errorf("expected no journal rows, got %d", len(row.JournalRows))
	}
}

// ============================================================================
// Test: Projection rows
// ============================================================================

func TestPositionRow_PendingWithdrawal(t *testing.T) {
	row := positionRow(1, state.LPPosition{
		Provider: bob,
		Shares:   40,
		Pending:  &state.PendingWithdrawal{Shares: 10, UnlockAt: 99},
	})
	if row.PendingShares == nil || *row.PendingShares != 10 {
		t.Fatalf("pending shares not copied: %+v", row)
	}
	if row.UnlockAt == nil || *row.UnlockAt != 99 {
		t.Fatalf("unlock time not copied: %+v", row)
	}

	plain := positionRow(1, state.LPPosition{Provider: bob, Shares: 40})
	if plain.PendingShares != nil || plain.UnlockAt != nil {
		t.Error("position without a pending withdrawal has pending fields")
	}
}

func TestBridgeProjection_DropsWhenFull(t *testing.T) {
	in := make(chan core.CoreOutput, 3)
	out := make(chan projection.ProjectionOutput, 1)

	in <- depositOutput(t)
	in <- depositOutput(t)
	in <- core.CoreOutput{Envelope: depositOutput(t).Envelope}
	close(in)

	drops := 0
	bridgeProjection(in, out, func() { drops++ })

	if drops != 1 {
		t.Errorf("drops = %d, want 1", drops)
	}
	got, ok := <-out
	if !ok {
		t.Fatal("expected one projection")
	}
	if got.Sequence != 7 || len(got.Positions) != 1 || len(got.Activity) != 1 {
		t.Errorf("unexpected projection %+v", got)
	}
	if _, ok := <-out; ok {
		t.Error("output should be closed")
	}
}
