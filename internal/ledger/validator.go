package ledger

import (
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

// InvariantValidator runs the post-command ledger checks against a tracker.
type InvariantValidator struct {
	tracker *BalanceTracker
}

func NewInvariantValidator(tracker *BalanceTracker) *InvariantValidator {
	return &InvariantValidator{tracker: tracker}
}

func (v *InvariantValidator) ValidateBatchBalance(batch *Batch) error {
	return batch.Validate()
}

// ValidateReserveDebt checks that the journaled reserve position agrees with
// the pool's borrow counter.
func (v *InvariantValidator) ValidateReserveDebt(fund common.Address, assetID AssetID, totalFromReserve int64) error {
	if debt := v.tracker.ReserveDebt(fund, assetID); debt != totalFromReserve {
		return fmt.Errorf("reserve debt mismatch: journals=%d, pool=%d", debt, totalFromReserve)
	}
	return nil
}

// ValidateTreasuryNonNegative fails if the treasury ever paid out through the pool.
func (v *InvariantValidator) ValidateTreasuryNonNegative(treasury common.Address, assetID AssetID) error {
	return v.tracker.RequireNonNegative(NewExternalAccountKey(treasury, SubTypeTreasury, assetID))
}

// ValidateGlobalBalance reports every asset whose accounts do not net to zero.
func (v *InvariantValidator) ValidateGlobalBalance() error {
	var unbalanced []string
	for assetID, net := range v.tracker.NetByAsset() {
		if net == 0 {
			continue
		}
		name, ok := GetAssetName(assetID)
		if !ok {
			name = fmt.Sprintf("asset#%d", assetID)
		}
		unbalanced = append(unbalanced, fmt.Sprintf("%s=%d", name, net))
	}
	if len(unbalanced) == 0 {
		return nil
	}
	sort.Strings(unbalanced)
	return fmt.Errorf("ledger not zero-sum: %v", unbalanced)
}
