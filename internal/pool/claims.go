package pool

import (
	"context"
	"fmt"

	"CoverPool/internal/event"
	"CoverPool/internal/ledger"
	"CoverPool/internal/state"

	"github.com/ethereum/go-ethereum/common"
)

// rulingChoices is the number of non-abstain options offered to the
// arbitrator (Yes, No).
const rulingChoices = 2

// ClaimResult identifies a filed claim.
type ClaimResult struct {
	ClaimID   uint64
	DisputeID uint64
}

// CreateClaim files a claim on an active coverage proof held by claimant and
// opens a dispute with the arbitration oracle. The claim is keyed by the
// dispute id the oracle returns.
func (e *Engine) CreateClaim(ctx context.Context, claimant common.Address, tokenID uint64, evidenceURI string, fee int64) (ClaimResult, error) {
	var res ClaimResult

	err := e.run(ctx, "create_claim", func(t *tx) error {
		proof, err := t.coverage(tokenID)
		if err != nil {
			return err
		}
		if proof.Owner != claimant {
			return fmt.Errorf("%w: coverage %d held by %s", ErrNotCoverHolder, tokenID, proof.Owner.Hex())
		}
		if proof.Status != state.CoverageActive {
			return fmt.Errorf("%w: coverage %d is %s", ErrInvalidStatus, tokenID, proof.Status)
		}
		if proof.Ended(t.now) {
			return fmt.Errorf("%w: coverage %d ended at %d", ErrCoverageEnded, tokenID, proof.End)
		}

		oracle := e.deps.Oracle
		cost, err := oracle.ArbitrationCost(t.ctx)
		if err != nil {
			return fmt.Errorf("%w: arbitration cost: %w", ErrOracleFailed, err)
		}
		if fee < cost {
			return fmt.Errorf("%w: paid %d, cost %d", ErrInsufficientArbitrationFee, fee, cost)
		}

		// The fee passes through the pool: pulled from the claimant now,
		// forwarded to the arbitrator once the dispute exists.
		asset := e.deps.Asset
		if fee > 0 {
			if err := asset.TransferFrom(t.ctx, claimant, fee); err != nil {
				return fmt.Errorf("%w: arbitration fee %d from %s: %w", ErrTransferFailed, fee, claimant.Hex(), err)
			}
			t.compensate("arbitration fee refund", func(ctx context.Context) error {
				return asset.Transfer(ctx, claimant, fee)
			})
		}

		claimID := e.nextClaimID
		e.nextClaimID++
		claim := &state.Claim{
			ClaimID:     claimID,
			Claimant:    claimant,
			TokenID:     tokenID,
			PoolID:      e.params.PoolID,
			Value:       proof.Value,
			Asset:       e.params.Asset,
			EvidenceURI: evidenceURI,
			FiledAt:     t.now,
		}

		registry := e.deps.Registry
		if err := registry.SetStatus(t.ctx, tokenID, state.CoverageClaimed); err != nil {
			return fmt.Errorf("%w: mark claimed %d: %w", ErrRegistryFailed, tokenID, err)
		}
		t.compensate("reopen coverage", func(ctx context.Context) error {
			return registry.SetStatus(ctx, tokenID, state.CoverageActive)
		})

		disputeID, err := oracle.CreateDispute(t.ctx, DisputeRequest{
			Choices:        rulingChoices,
			MetaEvidenceID: e.params.PoolID,
			EvidenceURI:    evidenceURI,
			Fee:            fee,
		})
		if err != nil {
			return fmt.Errorf("%w: create dispute: %w", ErrOracleFailed, err)
		}
		if _, taken := e.claims[disputeID]; taken {
			return fmt.Errorf("%w: %d", ErrDuplicateDispute, disputeID)
		}

		if fee > 0 {
			if err := asset.Transfer(t.ctx, oracle.Address(), fee); err != nil {
				return fmt.Errorf("%w: forward arbitration fee %d: %w", ErrTransferFailed, fee, err)
			}
		}

		claim.DisputeID = disputeID
		e.claims[disputeID] = claim
		e.openClaims[tokenID] = disputeID
		t.onUndo(func() {
			delete(e.claims, disputeID)
			delete(e.openClaims, tokenID)
		})

		t.journal.Move(t.walletKey(claimant), t.arbitratorKey(), fee, ledger.JournalTypeArbitrationFee)
		t.emit(event.Evidence{
			Arbitrator:      oracle.Address(),
			EvidenceGroupID: claimID,
			Party:           claimant,
			EvidenceURI:     evidenceURI,
		})
		t.emit(event.Dispute{
			Arbitrator:      oracle.Address(),
			DisputeID:       disputeID,
			MetaEvidenceID:  e.params.PoolID,
			EvidenceGroupID: claimID,
		})

		res = ClaimResult{ClaimID: claimID, DisputeID: disputeID}
		return nil
	})
	if err != nil {
		return ClaimResult{}, err
	}
	return res, nil
}

// Rule applies the oracle's ruling to the claim opened under disputeID.
// A Yes ruling pays the full claim value, drawing on the reserve for any
// part the custodian cannot return; Abstain and No only record the ruling
// and leave the coverage proof Claimed.
func (e *Engine) Rule(ctx context.Context, caller common.Address, disputeID uint64, ruling state.Ruling) error {
	return e.run(ctx, "rule", func(t *tx) error {
		oracle := e.deps.Oracle
		if caller != oracle.Address() {
			return fmt.Errorf("%w: %s", ErrNotArbitrator, caller.Hex())
		}
		if err := state.ValidateRuling(ruling); err != nil {
			return err
		}
		claim, ok := e.claims[disputeID]
		if !ok {
			return fmt.Errorf("%w: %d", ErrUnknownDispute, disputeID)
		}
		if claim.Ruled {
			return fmt.Errorf("%w: %d ruled %s", ErrAlreadyRuled, disputeID, claim.Ruling)
		}

		t.saveClaim(claim)
		claim.Ruled = true
		claim.Ruling = ruling
		claim.RuledAt = t.now
		delete(e.openClaims, claim.TokenID)
		t.onUndo(func() { e.openClaims[claim.TokenID] = disputeID })

		t.emit(event.Ruling{Arbitrator: oracle.Address(), DisputeID: disputeID, Ruling: ruling})

		if ruling != state.RulingYes {
			return nil
		}
		return t.payClaim(claim)
	})
}

// payClaim releases claim.Value to the claimant. The payout is a realized
// loss: both locked capital and total liquidity drop by the claim value.
func (t *tx) payClaim(claim *state.Claim) error {
	e := t.e
	value := claim.Value

	e.state.Unlock(value)
	e.state.RemoveLiquidity(value)
	t.setCovered(claim.TokenID, 0)

	custody, err := t.custodyBalance()
	if err != nil {
		return err
	}
	fromPool, _ := state.ComputeFunding(custody, value)
	actual, err := t.redeem(fromPool)
	if err != nil {
		return err
	}
	deficit := value - actual
	if err := t.borrow(deficit); err != nil {
		return err
	}

	registry := e.deps.Registry
	if err := registry.SetStatus(t.ctx, claim.TokenID, state.CoveragePaidOut); err != nil {
		return fmt.Errorf("%w: mark paid %d: %w", ErrRegistryFailed, claim.TokenID, err)
	}
	t.compensate("restore claimed status", func(ctx context.Context) error {
		return registry.SetStatus(ctx, claim.TokenID, state.CoverageClaimed)
	})

	if err := t.verify(); err != nil {
		return err
	}
	if value > 0 {
		if err := e.deps.Asset.Transfer(t.ctx, claim.Claimant, value); err != nil {
			return fmt.Errorf("%w: payout %d to %s: %w", ErrTransferFailed, value, claim.Claimant.Hex(), err)
		}
	}

	t.journal.Move(t.custodyKey(), t.walletKey(claim.Claimant), actual, ledger.JournalTypeClaimPayout)
	t.journal.Move(t.reserveKey(), t.walletKey(claim.Claimant), deficit, ledger.JournalTypeClaimFromReserve)
	t.emit(event.ClaimPaid{
		PoolID:      e.params.PoolID,
		DisputeID:   claim.DisputeID,
		Claimant:    claim.Claimant,
		Amount:      value,
		FromReserve: deficit,
	})
	return nil
}
