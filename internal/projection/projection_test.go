package projection_test

import (
	"testing"

	"CoverPool/internal/event"
	"CoverPool/internal/projection"

	"github.com/ethereum/go-ethereum/common"
)

// ============================================================================
// Test: Activity feed
// ============================================================================

func TestActivityFeed_QueryNewestFirst(t *testing.T) {
	feed := projection.NewActivityFeed(10)
	feed.AddEntry(projection.ActivityEntry{Sequence: 1, Account: "0xA", Kind: "LiquidityProvided"})
	feed.AddEntry(projection.ActivityEntry{Sequence: 2, Account: "0xB", Kind: "CoveragePurchased"})
	feed.AddEntry(projection.ActivityEntry{Sequence: 3, Account: "0xA", Kind: "WithdrawalRequested"})

	got := feed.QueryByAccount("0xA", 10)
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
	if got[0].Sequence != 3 || got[1].Sequence != 1 {
		t.Errorf("expected newest first, got seqs %d, %d", got[0].Sequence, got[1].Sequence)
	}
}

func TestActivityFeed_Limit(t *testing.T) {
	feed := projection.NewActivityFeed(10)
	for i := int64(0); i < 5; i++ {
		feed.AddEntry(projection.ActivityEntry{Sequence: i, Account: "0xA"})
	}
	if got := feed.QueryByAccount("0xA", 2); len(got) != 2 || got[0].Sequence != 4 {
		t.Errorf("unexpected limited result: %+v", got)
	}
}

func TestActivityFeed_EvictsOldest(t *testing.T) {
	feed := projection.NewActivityFeed(3)
	for i := int64(0); i < 5; i++ {
		feed.AddEntry(projection.ActivityEntry{Sequence: i, Account: "0xA"})
	}
	if feed.Len() != 3 {
		t.Fatalf("expected 3 retained entries, got %d", feed.Len())
	}
	got := feed.QueryByAccount("0xA", 10)
	if got[len(got)-1].Sequence != 2 {
		t.Errorf("expected oldest retained seq 2, got %d", got[len(got)-1].Sequence)
	}
}

// ============================================================================
// Test: Position rows
// ============================================================================

func TestPositionRow_Empty(t *testing.T) {
	pending := int64(5)
	cases := []struct {
		name string
		row  projection.PositionRow
		want bool
	}{
		{"no shares no pending", projection.PositionRow{}, true},
		{"shares", projection.PositionRow{Shares: 1}, false},
		{"pending only", projection.PositionRow{PendingShares: &pending}, false},
	}
	for _, tc := range cases {
		if got := tc.row.Empty(); got != tc.want {
			t.Errorf("%s: Empty() = %v, want %v", tc.name, got, tc.want)
		}
	}
}

// ============================================================================
// Test: Activity derivation
// ============================================================================

func TestActivityFromEvents(t *testing.T) {
	provider := common.HexToAddress("0x0000000000000000000000000000000000001001")
	insured := common.HexToAddress("0x0000000000000000000000000000000000002001")

	entries := projection.ActivityFromEvents(7, 1_700_000_000, []event.PoolEvent{
		event.LiquidityProvided{Provider: provider, Amount: 500, Shares: 500},
		event.RiskUpdated{Risk: 4},
		event.CoveragePurchased{Insured: insured, CoverAmount: 1_000, TokenID: 3},
	})

	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Account != provider.Hex() || entries[0].Amount != 500 || entries[0].Kind != "LiquidityProvided" {
		t.Errorf("unexpected deposit entry: %+v", entries[0])
	}
	if entries[1].Account != insured.Hex() || entries[1].TokenID != 3 || entries[1].Sequence != 7 {
		t.Errorf("unexpected coverage entry: %+v", entries[1])
	}
}
