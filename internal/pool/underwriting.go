package pool

import (
	"context"
	"fmt"

	"CoverPool/internal/access"
	"CoverPool/internal/event"
	"CoverPool/internal/ledger"
	fpmath "CoverPool/internal/math"
	"CoverPool/internal/state"

	"github.com/ethereum/go-ethereum/common"
)

const secondsPerDay = 24 * 60 * 60

// ComputePremium prices coverAmount for durationDays at the current risk and
// utilization.
func (e *Engine) ComputePremium(coverAmount, durationDays int64) (int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if coverAmount <= 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidCoverageAmount, coverAmount)
	}
	if err := e.validateDuration(durationDays); err != nil {
		return 0, err
	}
	return e.premium(coverAmount, durationDays), nil
}

func (e *Engine) validateDuration(days int64) error {
	if days <= 0 || days > e.params.MaxCoverageDays {
		return fmt.Errorf("%w: %d days, allowed 1..%d", ErrInvalidDuration, days, e.params.MaxCoverageDays)
	}
	return nil
}

func (e *Engine) premium(coverAmount, durationDays int64) int64 {
	return fpmath.ComputePremium(fpmath.PremiumInput{
		CoverAmount:  coverAmount,
		DurationDays: durationDays,
		Risk:         int64(e.state.Risk),
		Capacity:     e.state.Capacity(),
		TotalLocked:  e.state.TotalLocked,
	})
}

// CoverageResult reports a purchased coverage.
type CoverageResult struct {
	TokenID uint64
	Premium int64
	Start   int64
	End     int64
}

// BuyCoverage underwrites coverAmount for durationDays. The premium is split
// between the custodian (earning for LPs) and the treasury; the covered value
// is locked until the coverage is paid out or released.
func (e *Engine) BuyCoverage(ctx context.Context, insured common.Address, coverAmount, durationDays int64) (CoverageResult, error) {
	var res CoverageResult

	err := e.run(ctx, "buy_coverage", func(t *tx) error {
		if err := e.validateDuration(durationDays); err != nil {
			return err
		}
		if coverAmount <= 0 || coverAmount > e.state.FreeLiquidity() {
			return fmt.Errorf("%w: %d, free liquidity %d", ErrInvalidCoverageAmount, coverAmount, e.state.FreeLiquidity())
		}

		premium := e.premium(coverAmount, durationDays)
		fee := int64(0)
		if e.params.Treasury != (common.Address{}) {
			fee = fpmath.ApplyBps(premium, e.params.TreasuryFeeBps)
		}
		start := t.now
		end := start + durationDays*secondsPerDay

		e.state.Lock(coverAmount)

		asset := e.deps.Asset
		if err := asset.TransferFrom(t.ctx, insured, premium); err != nil {
			return fmt.Errorf("%w: premium %d from %s: %w", ErrTransferFailed, premium, insured.Hex(), err)
		}
		t.compensate("premium refund", func(ctx context.Context) error {
			return asset.Transfer(ctx, insured, premium)
		})

		if err := t.supply(premium - fee); err != nil {
			return err
		}

		registry := e.deps.Registry
		tokenID, err := registry.Mint(t.ctx, insured, coverAmount, start, end, e.params.PoolID)
		if err != nil {
			return fmt.Errorf("%w: mint: %w", ErrRegistryFailed, err)
		}
		t.compensate("void coverage proof", func(ctx context.Context) error {
			return registry.SetStatus(ctx, tokenID, state.CoverageExpired)
		})
		t.setCovered(tokenID, coverAmount)

		if fee > 0 {
			if err := asset.Transfer(t.ctx, e.params.Treasury, fee); err != nil {
				return fmt.Errorf("%w: treasury fee %d: %w", ErrTransferFailed, fee, err)
			}
		}

		t.journal.Move(t.walletKey(insured), t.custodyKey(), premium-fee, ledger.JournalTypePremium)
		t.journal.Move(t.walletKey(insured), t.treasuryKey(), fee, ledger.JournalTypeTreasuryFee)
		t.emit(event.CoveragePurchased{
			PoolID:       e.params.PoolID,
			Insured:      insured,
			CoverAmount:  coverAmount,
			DurationDays: durationDays,
			Premium:      premium,
			TokenID:      tokenID,
		})

		res = CoverageResult{TokenID: tokenID, Premium: premium, Start: start, End: end}
		return nil
	})
	if err != nil {
		return CoverageResult{}, err
	}
	return res, nil
}

// ReleaseExpiredCoverage frees the capital locked by a coverage proof whose
// period has ended with no claim open, and marks the proof Expired. Anyone
// may call it.
func (e *Engine) ReleaseExpiredCoverage(ctx context.Context, caller common.Address, tokenID uint64) error {
	return e.run(ctx, "release_expired_coverage", func(t *tx) error {
		proof, err := t.coverage(tokenID)
		if err != nil {
			return err
		}
		locked, ok := e.covered[tokenID]
		if !ok {
			return fmt.Errorf("%w: coverage %d holds no locked capital", ErrInvalidStatus, tokenID)
		}
		if disputeID, open := e.openClaims[tokenID]; open {
			return fmt.Errorf("%w: coverage %d has open dispute %d", ErrInvalidStatus, tokenID, disputeID)
		}
		if proof.Status != state.CoverageActive && proof.Status != state.CoverageClaimed {
			return fmt.Errorf("%w: coverage %d is %s", ErrInvalidStatus, tokenID, proof.Status)
		}
		if !proof.Ended(t.now) {
			return fmt.Errorf("%w: coverage %d ends at %d", ErrCoverageNotEnded, tokenID, proof.End)
		}

		e.state.Unlock(locked)
		t.setCovered(tokenID, 0)

		if err := e.deps.Registry.SetStatus(t.ctx, tokenID, state.CoverageExpired); err != nil {
			return fmt.Errorf("%w: expire %d: %w", ErrRegistryFailed, tokenID, err)
		}

		e.logger.Debug().
			Str("caller", caller.Hex()).
			Uint64("token_id", tokenID).
			Int64("released", locked).
			Msg("coverage released")
		t.emit(event.CoverageExpired{PoolID: e.params.PoolID, TokenID: tokenID, Value: locked})
		return nil
	})
}

// AdjustCoverage changes the covered value of an active proof and moves the
// locked capital with it. Increases must fit in free liquidity.
func (e *Engine) AdjustCoverage(ctx context.Context, caller common.Address, tokenID uint64, newValue int64) error {
	return e.run(ctx, "adjust_coverage", func(t *tx) error {
		if err := e.requireRole(access.InsurancePoolAdminRole, caller); err != nil {
			return err
		}
		if newValue < 0 {
			return fmt.Errorf("%w: %d", ErrInvalidCoverageAmount, newValue)
		}
		proof, err := t.coverage(tokenID)
		if err != nil {
			return err
		}
		if proof.Status != state.CoverageActive {
			return fmt.Errorf("%w: coverage %d is %s", ErrInvalidStatus, tokenID, proof.Status)
		}
		old, ok := e.covered[tokenID]
		if !ok {
			return fmt.Errorf("%w: coverage %d holds no locked capital", ErrInvalidStatus, tokenID)
		}

		delta := newValue - old
		if delta > e.state.FreeLiquidity() {
			return fmt.Errorf("%w: increase %d exceeds free liquidity %d", ErrInvalidCoverageAmount, delta, e.state.FreeLiquidity())
		}
		if delta > 0 {
			e.state.Lock(delta)
		} else {
			e.state.Unlock(-delta)
		}
		t.setCovered(tokenID, newValue)

		registry := e.deps.Registry
		if err := registry.SetValue(t.ctx, tokenID, newValue); err != nil {
			return fmt.Errorf("%w: set value %d: %w", ErrRegistryFailed, tokenID, err)
		}

		t.emit(event.CoverageAdjusted{PoolID: e.params.PoolID, TokenID: tokenID, OldValue: old, NewValue: newValue})
		return nil
	})
}

// coverage loads a proof and checks it belongs to this pool.
func (t *tx) coverage(tokenID uint64) (state.CoverageProof, error) {
	proof, err := t.e.deps.Registry.Info(t.ctx, tokenID)
	if err != nil {
		return proof, fmt.Errorf("%w: info %d: %w", ErrRegistryFailed, tokenID, err)
	}
	if proof.PoolID != t.e.params.PoolID {
		return proof, fmt.Errorf("%w: coverage %d is in pool %d", ErrWrongPool, tokenID, proof.PoolID)
	}
	return proof, nil
}
