package ledger

import (
	"fmt"
	"maps"

	"github.com/ethereum/go-ethereum/common"
)

// BalanceTracker holds the running balance of every account the pool
// journals touch. Balances are signed: external accounts go negative as they
// pay into the pool.
type BalanceTracker struct {
	balances map[AccountKey]int64
}

func NewBalanceTracker() *BalanceTracker {
	return &BalanceTracker{balances: make(map[AccountKey]int64)}
}

// ApplyBatch validates a batch and posts all of its legs, or none.
func (bt *BalanceTracker) ApplyBatch(batch *Batch) error {
	if err := batch.Validate(); err != nil {
		return fmt.Errorf("invalid batch: %w", err)
	}
	for _, j := range batch.Journals {
		bt.balances[j.DebitAccount] += j.Amount
		bt.balances[j.CreditAccount] -= j.Amount
	}
	return nil
}

func (bt *BalanceTracker) Balance(key AccountKey) int64 {
	return bt.balances[key]
}

// WalletFlow is the net amount a participant has received from the pool,
// negative when they have paid in more than they took out.
func (bt *BalanceTracker) WalletFlow(owner common.Address, assetID AssetID) int64 {
	return bt.Balance(NewWalletAccountKey(owner, assetID))
}

// ReserveDebt is what the pool owes a reserve fund according to the
// journals: borrows credit the reserve account, repayments debit it.
func (bt *BalanceTracker) ReserveDebt(fund common.Address, assetID AssetID) int64 {
	return -bt.Balance(NewExternalAccountKey(fund, SubTypeReserveFund, assetID))
}

// NetByAsset sums balances per asset. Every entry is zero on a sound ledger.
func (bt *BalanceTracker) NetByAsset() map[AssetID]int64 {
	net := make(map[AssetID]int64)
	for key, balance := range bt.balances {
		net[key.AssetID] += balance
	}
	return net
}

func (bt *BalanceTracker) RequireNonNegative(key AccountKey) error {
	if balance := bt.Balance(key); balance < 0 {
		return fmt.Errorf("account %s is negative: %d", key.AccountPath(), balance)
	}
	return nil
}

// Balances returns a copy of every balance.
func (bt *BalanceTracker) Balances() map[AccountKey]int64 {
	return maps.Clone(bt.balances)
}
