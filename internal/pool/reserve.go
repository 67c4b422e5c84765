package pool

import (
	"context"
	"fmt"

	"CoverPool/internal/event"
	"CoverPool/internal/state"
)

// borrow draws amount from the reserve fund into the pool. A reserve that
// cannot cover the full amount fails the whole operation.
func (t *tx) borrow(amount int64) error {
	if amount <= 0 {
		return nil
	}
	fund := t.e.deps.Reserve

	available, err := fund.Balance(t.ctx)
	if err != nil {
		return fmt.Errorf("%w: balance: %w", ErrReserveFailed, err)
	}
	if !state.CanCoverDeficit(available, amount) {
		return fmt.Errorf("%w: need %d, reserve holds %d", ErrReserveExhausted, amount, available)
	}

	t.e.state.RecordBorrow(amount)

	if err := fund.TransferFund(t.ctx, t.e.address, amount); err != nil {
		return fmt.Errorf("%w: transfer %d: %w", ErrReserveFailed, amount, err)
	}
	asset := t.e.deps.Asset
	t.compensate("reserve return", func(ctx context.Context) error {
		return asset.Transfer(ctx, fund.Address(), amount)
	})

	t.emit(event.ReserveBorrowed{PoolID: t.e.params.PoolID, Amount: amount})
	return nil
}

// repay returns amount of borrowed capital, held by the pool, to the reserve.
func (t *tx) repay(amount int64) error {
	if amount <= 0 {
		return nil
	}
	fund := t.e.deps.Reserve

	t.e.state.RecordRepay(amount)

	if err := t.e.deps.Asset.Transfer(t.ctx, fund.Address(), amount); err != nil {
		return fmt.Errorf("%w: repay %d: %w", ErrTransferFailed, amount, err)
	}
	pool := t.e.address
	t.compensate("reserve refund", func(ctx context.Context) error {
		return fund.TransferFund(ctx, pool, amount)
	})

	t.emit(event.ReserveRepaid{PoolID: t.e.params.PoolID, Amount: amount})
	return nil
}
