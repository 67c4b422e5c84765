package ledger_test

import (
	"CoverPool/internal/ledger"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

var (
	provider = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	treasury = common.HexToAddress("0x00000000000000000000000000000000000000f1")
	reserve  = common.HexToAddress("0x00000000000000000000000000000000000000f2")
)

func mustAssetID(t *testing.T, asset string) ledger.AssetID {
	t.Helper()
	id, ok := ledger.GetAssetID(asset)
	if !ok {
		t.Fatalf("unknown asset %s", asset)
	}
	return id
}

// ============================================================================
// Test: AccountKey
// ============================================================================

func TestAccountKey_WalletPath(t *testing.T) {
	key := ledger.NewWalletAccountKey(provider, mustAssetID(t, "USDC"))

	expected := "participant:" + provider.Hex() + ":wallet:USDC"
	if path := key.AccountPath(); path != expected {
		t.Errorf("got %q, want %q", path, expected)
	}
}

func TestAccountKey_CustodyPath(t *testing.T) {
	key := ledger.NewCustodyAccountKey(3, mustAssetID(t, "USDT"))

	if path := key.AccountPath(); path != "pool:3:custody:USDT" {
		t.Errorf("got %q, want %q", path, "pool:3:custody:USDT")
	}
}

func TestAccountKey_ExternalPath(t *testing.T) {
	key := ledger.NewExternalAccountKey(reserve, ledger.SubTypeReserveFund, mustAssetID(t, "WBTC"))

	expected := "external:reserve:" + reserve.Hex() + ":WBTC"
	if path := key.AccountPath(); path != expected {
		t.Errorf("got %q, want %q", path, expected)
	}
}

func TestGetAssetID_Unknown(t *testing.T) {
	if _, ok := ledger.GetAssetID("DOGE"); ok {
		t.Error("DOGE should not be a known asset")
	}
}

// ============================================================================
// Test: BatchBuilder
// ============================================================================

func TestBatchBuilder_SkipsZeroAmounts(t *testing.T) {
	usdc := mustAssetID(t, "USDC")
	bb := ledger.NewBatchBuilder(1_000)
	bb.Move(ledger.NewWalletAccountKey(provider, usdc), ledger.NewCustodyAccountKey(0, usdc), 0, ledger.JournalTypeDeposit)
	bb.Move(ledger.NewWalletAccountKey(provider, usdc), ledger.NewCustodyAccountKey(0, usdc), 10, ledger.JournalTypeDeposit)

	if bb.Len() != 1 {
		t.Fatalf("journals = %d, want 1", bb.Len())
	}
	batch := bb.Build()
	if err := batch.Validate(); err != nil {
		t.Fatalf("batch invalid: %v", err)
	}
	if batch.Journals[0].Timestamp != 1_000 {
		t.Errorf("timestamp = %d, want 1000", batch.Journals[0].Timestamp)
	}
}

func TestBatch_Stamp(t *testing.T) {
	usdc := mustAssetID(t, "USDC")
	bb := ledger.NewBatchBuilder(0)
	bb.Move(ledger.NewWalletAccountKey(provider, usdc), ledger.NewCustodyAccountKey(0, usdc), 10, ledger.JournalTypeDeposit)
	batch := bb.Build()

	batch.Stamp(42, "key-1")
	if batch.Sequence != 42 || batch.Journals[0].Sequence != 42 || batch.Journals[0].EventRef != "key-1" {
		t.Errorf("stamp not propagated: %+v", batch.Journals[0])
	}
}

func TestBuilder_Reset(t *testing.T) {
	usdc := mustAssetID(t, "USDC")
	bb := ledger.NewBatchBuilder(0)
	bb.Move(ledger.NewWalletAccountKey(provider, usdc), ledger.NewCustodyAccountKey(0, usdc), 10, ledger.JournalTypeDeposit)
	bb.Reset()
	if bb.Len() != 0 {
		t.Errorf("journals after reset = %d", bb.Len())
	}
}

// ============================================================================
// Test: BalanceTracker
// ============================================================================

func TestBalanceTracker_DepositWithdrawFlows(t *testing.T) {
	usdc := mustAssetID(t, "USDC")
	bt := ledger.NewBalanceTracker()
	wallet := ledger.NewWalletAccountKey(provider, usdc)
	custody := ledger.NewCustodyAccountKey(0, usdc)

	bb := ledger.NewBatchBuilder(0)
	bb.Move(wallet, custody, 10_000, ledger.JournalTypeDeposit)
	if err := bt.ApplyBatch(bb.Build()); err != nil {
		t.Fatalf("ApplyBatch failed: %v", err)
	}

	if got := bt.Balance(custody); got != 10_000 {
		t.Errorf("custody = %d, want 10000", got)
	}
	if got := bt.WalletFlow(provider, usdc); got != -10_000 {
		t.Errorf("wallet flow = %d, want -10000", got)
	}
}

func TestBalanceTracker_ReserveDebt(t *testing.T) {
	usdc := mustAssetID(t, "USDC")
	bt := ledger.NewBalanceTracker()
	v := ledger.NewInvariantValidator(bt)
	reserveKey := ledger.NewExternalAccountKey(reserve, ledger.SubTypeReserveFund, usdc)
	wallet := ledger.NewWalletAccountKey(provider, usdc)

	borrow := ledger.NewBatchBuilder(0)
	borrow.Move(reserveKey, wallet, 7_500, ledger.JournalTypeWithdrawalFromReserve)
	if err := bt.ApplyBatch(borrow.Build()); err != nil {
		t.Fatal(err)
	}
	if err := v.ValidateReserveDebt(reserve, usdc, 7_500); err != nil {
		t.Errorf("after borrow: %v", err)
	}

	repay := ledger.NewBatchBuilder(0)
	repay.Move(wallet, reserveKey, 2_500, ledger.JournalTypeReserveRepay)
	if err := bt.ApplyBatch(repay.Build()); err != nil {
		t.Fatal(err)
	}
	if err := v.ValidateReserveDebt(reserve, usdc, 5_000); err != nil {
		t.Errorf("after repay: %v", err)
	}
	if err := v.ValidateReserveDebt(reserve, usdc, 7_500); err == nil {
		t.Error("expected mismatch error")
	}
}

func TestBalanceTracker_GlobalBalanceZeroSum(t *testing.T) {
	usdc := mustAssetID(t, "USDC")
	bt := ledger.NewBalanceTracker()
	v := ledger.NewInvariantValidator(bt)

	bb := ledger.NewBatchBuilder(0)
	bb.Move(ledger.NewWalletAccountKey(provider, usdc), ledger.NewCustodyAccountKey(0, usdc), 900, ledger.JournalTypePremium)
	bb.Move(ledger.NewWalletAccountKey(provider, usdc), ledger.NewExternalAccountKey(treasury, ledger.SubTypeTreasury, usdc), 100, ledger.JournalTypeTreasuryFee)
	if err := bt.ApplyBatch(bb.Build()); err != nil {
		t.Fatal(err)
	}

	if err := v.ValidateGlobalBalance(); err != nil {
		t.Error(err)
	}
	if err := v.ValidateTreasuryNonNegative(treasury, usdc); err != nil {
		t.Error(err)
	}
}

func TestBalanceTracker_BalancesIsCopy(t *testing.T) {
	usdc := mustAssetID(t, "USDC")
	bt := ledger.NewBalanceTracker()
	custody := ledger.NewCustodyAccountKey(0, usdc)
	bb := ledger.NewBatchBuilder(0)
	bb.Move(ledger.NewWalletAccountKey(common.HexToAddress("0x01"), usdc), custody, 999, ledger.JournalTypeDeposit)
	if err := bt.ApplyBatch(bb.Build()); err != nil {
		t.Fatal(err)
	}

	snap := bt.Balances()
	for k := range snap {
		snap[k] = 0
	}

	if bt.Balance(custody) != 999 {
		t.Error("mutating the copy changed the tracker")
	}
}

// ============================================================================
// Test: Batch Validation
// ============================================================================

func TestBatch_ValidateRejectsEmpty(t *testing.T) {
	b := &ledger.Batch{BatchID: uuid.New()}
	if err := b.Validate(); err == nil {
		t.Error("expected error for empty batch")
	}
}

func TestBatch_ValidateRejectsSelfTransfer(t *testing.T) {
	usdc := mustAssetID(t, "USDC")
	batchID := uuid.New()
	key := ledger.NewCustodyAccountKey(0, usdc)
	b := &ledger.Batch{
		BatchID: batchID,
		Journals: []ledger.Journal{{
			JournalID:     uuid.New(),
			BatchID:       batchID,
			DebitAccount:  key,
			CreditAccount: key,
			AssetID:       usdc,
			Amount:        1,
		}},
	}
	if err := b.Validate(); err == nil {
		t.Error("expected error for self transfer")
	}
}

func TestBatch_ValidateRejectsMixedAssets(t *testing.T) {
	usdc := mustAssetID(t, "USDC")
	usdt := mustAssetID(t, "USDT")
	batchID := uuid.New()
	b := &ledger.Batch{
		BatchID: batchID,
		Journals: []ledger.Journal{{
			JournalID:     uuid.New(),
			BatchID:       batchID,
			DebitAccount:  ledger.NewCustodyAccountKey(0, usdc),
			CreditAccount: ledger.NewWalletAccountKey(provider, usdt),
			AssetID:       usdc,
			Amount:        1,
		}},
	}
	if err := b.Validate(); err == nil {
		t.Error("expected error for mixed assets")
	}
}

func TestBatch_ValidateRejectsNonPositive(t *testing.T) {
	usdc := mustAssetID(t, "USDC")
	batchID := uuid.New()
	b := &ledger.Batch{
		BatchID: batchID,
		Journals: []ledger.Journal{{
			JournalID:     uuid.New(),
			BatchID:       batchID,
			DebitAccount:  ledger.NewCustodyAccountKey(0, usdc),
			CreditAccount: ledger.NewWalletAccountKey(provider, usdc),
			AssetID:       usdc,
			Amount:        -5,
		}},
	}
	if err := b.Validate(); err == nil {
		t.Error("expected error for negative amount")
	}
}
