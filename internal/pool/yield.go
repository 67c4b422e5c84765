package pool

import (
	"context"
	"fmt"

	fpmath "CoverPool/internal/math"
)

// custodyBalance is the pool's claim on the custodian, yield included.
func (t *tx) custodyBalance() (int64, error) {
	bal, err := t.e.deps.Custodian.BalanceOf(t.ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: balance: %w", ErrCustodianFailed, err)
	}
	return bal, nil
}

// poolValue is what the LP shares are worth: custodied capital net of the
// reserve debt. Yield accrued by the custodian shows up here without any
// rebasing elsewhere.
func (t *tx) poolValue() (value int64, custody int64, err error) {
	custody, err = t.custodyBalance()
	if err != nil {
		return 0, 0, err
	}
	return custody - t.e.state.TotalFromReserve, custody, nil
}

// supply deploys idle capital held by the pool to the custodian.
func (t *tx) supply(amount int64) error {
	if amount <= 0 {
		return nil
	}
	custodian := t.e.deps.Custodian
	if err := custodian.Supply(t.ctx, amount); err != nil {
		return fmt.Errorf("%w: supply %d: %w", ErrCustodianFailed, amount, err)
	}
	t.compensate("custodian withdraw", func(ctx context.Context) error {
		got, err := custodian.Withdraw(ctx, amount)
		if err == nil && got != amount {
			err = fmt.Errorf("custodian returned %d of %d", got, amount)
		}
		return err
	})
	return nil
}

// redeem pulls up to amount back from the custodian and returns what
// actually arrived.
func (t *tx) redeem(amount int64) (int64, error) {
	if amount <= 0 {
		return 0, nil
	}
	custodian := t.e.deps.Custodian
	actual, err := custodian.Withdraw(t.ctx, amount)
	if err != nil {
		return 0, fmt.Errorf("%w: withdraw %d: %w", ErrCustodianFailed, amount, err)
	}
	actual = fpmath.Max(0, fpmath.Min(actual, amount))
	if actual > 0 {
		t.compensate("custodian resupply", func(ctx context.Context) error {
			return custodian.Supply(ctx, actual)
		})
	}
	return actual, nil
}
