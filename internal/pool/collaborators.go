package pool

import (
	"context"

	"CoverPool/internal/state"

	"github.com/ethereum/go-ethereum/common"
)

// AssetLedger moves the pool asset. Implementations are bound to the pool's
// own address: TransferFrom pulls from owner into the pool, Transfer pays out
// of the pool.
type AssetLedger interface {
	TransferFrom(ctx context.Context, owner common.Address, amount int64) error
	Transfer(ctx context.Context, recipient common.Address, amount int64) error
}

// YieldCustodian holds idle pool capital and accrues yield on it.
// Withdraw may return less than requested when the custodian's own
// liquidity is constrained.
type YieldCustodian interface {
	Supply(ctx context.Context, amount int64) error
	Withdraw(ctx context.Context, amount int64) (int64, error)
	BalanceOf(ctx context.Context) (int64, error)
}

// CoverageRegistry mints and tracks coverage proofs.
type CoverageRegistry interface {
	Mint(ctx context.Context, owner common.Address, value, start, end int64, poolID uint64) (uint64, error)
	SetStatus(ctx context.Context, tokenID uint64, status state.CoverageStatus) error
	SetValue(ctx context.Context, tokenID uint64, value int64) error
	Info(ctx context.Context, tokenID uint64) (state.CoverageProof, error)
}

// DisputeRequest is what the pool submits when opening a dispute.
type DisputeRequest struct {
	Choices        uint8
	MetaEvidenceID uint64
	EvidenceURI    string
	Fee            int64
}

// ArbitrationOracle adjudicates claims. Rulings come back asynchronously
// through Engine.Rule, called with the oracle's Address as caller.
type ArbitrationOracle interface {
	Address() common.Address
	ArbitrationCost(ctx context.Context) (int64, error)
	CreateDispute(ctx context.Context, req DisputeRequest) (uint64, error)
}

// ReserveFund is the companion capital pool the engine borrows from.
type ReserveFund interface {
	Address() common.Address
	Balance(ctx context.Context) (int64, error)
	// TransferFund sends amount of the pool asset from the fund to target.
	TransferFund(ctx context.Context, target common.Address, amount int64) error
}

// RewardMinter issues governance reward tokens.
type RewardMinter interface {
	Mint(ctx context.Context, to common.Address, amount int64) error
}
