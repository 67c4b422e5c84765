package core

import (
	"context"
	"fmt"

	"CoverPool/internal/ledger"
	"CoverPool/internal/pool"
)

// SnapshotState is a verification checkpoint of the processor: the chain tip
// at a sequence plus the state that produced it.
type SnapshotState struct {
	Sequence        int64 // last processed sequence
	StateHash       [32]byte
	Pool            pool.Snapshot
	Balances        map[string]int64 // by account path
	IdempotencyKeys []string
}

// CreateSnapshotState captures the current in-memory state for persistence.
// It refuses to checkpoint a ledger that is not zero-sum.
func (p *Processor) CreateSnapshotState() (*SnapshotState, error) {
	if err := p.validator.ValidateGlobalBalance(); err != nil {
		return nil, fmt.Errorf("snapshot at seq %d: %w", p.sequence-1, err)
	}
	return &SnapshotState{
		Sequence:        p.sequence - 1,
		StateHash:       p.chain.Tip(),
		Pool:            p.engine.Snapshot(),
		Balances:        balancesByPath(p.balanceTracker.Balances()),
		IdempotencyKeys: p.idempotency.lru.GetAllKeys(),
	}, nil
}

// VerifySnapshot checks a stored checkpoint against the state rebuilt by
// replay. Call it once the processor has replayed up to snap.Sequence.
func (p *Processor) VerifySnapshot(snap *SnapshotState) error {
	if snap.Sequence != p.sequence-1 {
		return fmt.Errorf("snapshot at seq %d, processor at %d", snap.Sequence, p.sequence-1)
	}
	if snap.StateHash != p.chain.Tip() {
		return fmt.Errorf("%w at snapshot seq %d", ErrHashMismatch, snap.Sequence)
	}
	if snap.Pool.State.Asset != "" && snap.Pool.State != p.engine.State() {
		return fmt.Errorf("snapshot pool state at seq %d: stored %+v, replayed %+v",
			snap.Sequence, snap.Pool.State, p.engine.State())
	}
	replayed := balancesByPath(p.balanceTracker.Balances())
	for path, balance := range snap.Balances {
		if got := replayed[path]; got != balance {
			return fmt.Errorf("snapshot balance %s: stored %d, replayed %d", path, balance, got)
		}
	}
	for path, got := range replayed {
		if _, ok := snap.Balances[path]; !ok && got != 0 {
			return fmt.Errorf("snapshot balance %s: missing, replayed %d", path, got)
		}
	}
	return nil
}

func balancesByPath(balances map[ledger.AccountKey]int64) map[string]int64 {
	out := make(map[string]int64, len(balances))
	for key, balance := range balances {
		out[key.AccountPath()] = balance
	}
	return out
}

// FullProjection builds the read model of the entire current state, used to
// rebuild projection tables after replay.
func (p *Processor) FullProjection(ctx context.Context) *Projection {
	snap := p.engine.Snapshot()
	proj := &Projection{
		Pool:      snap.State,
		Positions: snap.Positions,
		Claims:    snap.Claims,
		Balances:  p.balanceTracker.Balances(),
	}

	tokens := make(map[uint64]bool, len(snap.Covered)+len(snap.Claims))
	for id := range snap.Covered {
		tokens[id] = true
	}
	for _, c := range snap.Claims {
		tokens[c.TokenID] = true
	}
	if p.coverage != nil {
		for _, id := range sortedIDs(tokens) {
			proof, err := p.coverage.Info(ctx, id)
			if err != nil {
				p.logger.Warn().Err(err).Uint64("token_id", id).Msg("coverage lookup for rebuild failed")
				continue
			}
			proj.Coverages = append(proj.Coverages, proof)
		}
	}
	return proj
}
