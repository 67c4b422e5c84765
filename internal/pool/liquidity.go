package pool

import (
	"context"
	"fmt"

	"CoverPool/internal/event"
	"CoverPool/internal/ledger"
	fpmath "CoverPool/internal/math"
	"CoverPool/internal/state"

	"github.com/ethereum/go-ethereum/common"
)

// DepositResult reports a successful deposit.
type DepositResult struct {
	Shares int64
	Repaid int64 // portion routed to the reserve
}

// Deposit takes amount of the pool asset from the provider and mints LP
// shares at the prevailing exchange rate. While the pool owes the reserve,
// the deposit repays the debt first, except for the part still backing
// locked capital above capacity.
func (e *Engine) Deposit(ctx context.Context, provider common.Address, amount int64) (DepositResult, error) {
	var res DepositResult
	if amount <= 0 {
		return res, fmt.Errorf("deposit: %w: %d", ErrInvalidAmount, amount)
	}

	err := e.run(ctx, "deposit", func(t *tx) error {
		value, _, err := t.poolValue()
		if err != nil {
			return err
		}
		shares := fpmath.SharesForDeposit(amount, e.state.TotalShares, value)
		if shares <= 0 {
			return fmt.Errorf("%w: %d at %d/%d", ErrDepositTooSmall, amount, value, e.state.TotalShares)
		}

		pos := t.position(provider)
		pos.Shares += shares
		pos.DepositTimestamp = t.now
		e.state.MintShares(shares)
		e.state.AddLiquidity(amount)

		// Debt carrying locked capital above capacity stays outstanding.
		repayable := fpmath.Max(0, e.state.TotalFromReserve-e.state.CapacityDeficit())
		repay := fpmath.Min(amount, repayable)

		asset := e.deps.Asset
		if err := asset.TransferFrom(t.ctx, provider, amount); err != nil {
			return fmt.Errorf("%w: pull %d from %s: %w", ErrTransferFailed, amount, provider.Hex(), err)
		}
		t.compensate("deposit refund", func(ctx context.Context) error {
			return asset.Transfer(ctx, provider, amount)
		})

		if err := t.supply(amount - repay); err != nil {
			return err
		}
		if err := t.repay(repay); err != nil {
			return err
		}

		t.journal.Move(t.walletKey(provider), t.custodyKey(), amount-repay, ledger.JournalTypeDeposit)
		t.journal.Move(t.walletKey(provider), t.reserveKey(), repay, ledger.JournalTypeReserveRepay)
		t.emit(event.LiquidityProvided{
			PoolID:   e.params.PoolID,
			Provider: provider,
			Amount:   amount,
			Shares:   shares,
			Repaid:   repay,
		})

		res = DepositResult{Shares: shares, Repaid: repay}
		return nil
	})
	if err != nil {
		return DepositResult{}, err
	}
	return res, nil
}

// RequestWithdrawal starts the cooldown for redeeming shares. Only one
// request per provider may be pending.
func (e *Engine) RequestWithdrawal(ctx context.Context, provider common.Address, shares int64) (int64, error) {
	var unlockAt int64
	if shares <= 0 {
		return 0, fmt.Errorf("request withdrawal: %w: %d", ErrInsufficientWithdrawal, shares)
	}

	err := e.run(ctx, "request_withdrawal", func(t *tx) error {
		current, ok := e.positions[provider]
		if !ok || shares > current.Shares {
			have := int64(0)
			if ok {
				have = current.Shares
			}
			return fmt.Errorf("%w: requested %d, holds %d", ErrInsufficientBalance, shares, have)
		}
		if current.Pending != nil {
			return fmt.Errorf("%w: request for %d shares pending until %d",
				ErrWithdrawRequestNotAllowed, current.Pending.Shares, current.Pending.UnlockAt)
		}

		unlockAt = t.now + int64(e.params.WithdrawalDelay.Seconds())
		pos := t.position(provider)
		pos.Pending = &state.PendingWithdrawal{Shares: shares, UnlockAt: unlockAt}

		t.emit(event.WithdrawalRequested{
			PoolID:   e.params.PoolID,
			Provider: provider,
			Shares:   shares,
			UnlockAt: unlockAt,
		})
		return nil
	})
	if err != nil {
		return 0, err
	}
	return unlockAt, nil
}

// WithdrawalResult reports an executed withdrawal.
type WithdrawalResult struct {
	Shares      int64
	Amount      int64
	FromReserve int64
	Reward      int64
}

// ExecuteWithdrawal redeems the provider's unlocked request. Capital locked
// against coverage stays with the custodian; any shortfall is borrowed from
// the reserve so the provider always receives the full amount owed.
func (e *Engine) ExecuteWithdrawal(ctx context.Context, provider common.Address) (WithdrawalResult, error) {
	var res WithdrawalResult

	err := e.run(ctx, "execute_withdrawal", func(t *tx) error {
		current, ok := e.positions[provider]
		if !ok || current.Pending == nil {
			return ErrNoPendingWithdrawal
		}
		if t.now < current.Pending.UnlockAt {
			return fmt.Errorf("%w: unlocks at %d, now %d", ErrWithdrawalNotReady, current.Pending.UnlockAt, t.now)
		}
		shares := current.Pending.Shares
		if shares > current.Shares {
			return fmt.Errorf("%w: pending %d, holds %d", ErrInsufficientBalance, shares, current.Shares)
		}

		value, custody, err := t.poolValue()
		if err != nil {
			return err
		}
		owed := fpmath.AssetsForShares(shares, e.state.TotalShares, value)

		var held int64
		if current.DepositTimestamp > 0 {
			held = t.now - current.DepositTimestamp
		}

		pos := t.position(provider)
		pos.Shares -= shares
		pos.Pending = nil
		if pos.Shares == 0 {
			pos.DepositTimestamp = 0
		}
		e.state.BurnShares(shares)
		e.state.RemoveLiquidity(owed)

		// Locked capital pushed over capacity by this withdrawal is
		// borrowed rather than redeemed.
		mustBorrow := fpmath.Min(owed, fpmath.Max(0, e.state.CapacityDeficit()-e.state.TotalFromReserve))
		redeemable := fpmath.Max(0, custody-e.state.TotalLocked)
		fromCustodian, _ := state.ComputeFunding(redeemable, owed-mustBorrow)

		actual, err := t.redeem(fromCustodian)
		if err != nil {
			return err
		}
		shortfall := owed - actual
		if err := t.borrow(shortfall); err != nil {
			return err
		}

		if err := t.verify(); err != nil {
			return err
		}
		if owed > 0 {
			if err := e.deps.Asset.Transfer(t.ctx, provider, owed); err != nil {
				return fmt.Errorf("%w: pay %d to %s: %w", ErrTransferFailed, owed, provider.Hex(), err)
			}
		}

		reward := fpmath.ComputeReward(owed, e.state.GovTokenAPR, held)
		if reward > 0 && e.deps.Rewards != nil {
			if err := e.deps.Rewards.Mint(t.ctx, provider, reward); err != nil {
				e.logger.Warn().
					Str("provider", provider.Hex()).
					Int64("reward", reward).
					Err(err).
					Msg("reward mint failed")
				reward = 0
			}
		}

		t.journal.Move(t.custodyKey(), t.walletKey(provider), actual, ledger.JournalTypeWithdrawal)
		t.journal.Move(t.reserveKey(), t.walletKey(provider), shortfall, ledger.JournalTypeWithdrawalFromReserve)
		t.emit(event.WithdrawalExecuted{
			PoolID:      e.params.PoolID,
			Provider:    provider,
			Shares:      shares,
			Amount:      owed,
			FromReserve: shortfall,
			Reward:      reward,
		})

		res = WithdrawalResult{Shares: shares, Amount: owed, FromReserve: shortfall, Reward: reward}
		return nil
	})
	if err != nil {
		return WithdrawalResult{}, err
	}
	return res, nil
}
