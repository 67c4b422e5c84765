package pool

import (
	"context"
	"fmt"

	"CoverPool/internal/event"
	"CoverPool/internal/ledger"
	"CoverPool/internal/state"

	"github.com/ethereum/go-ethereum/common"
)

type operationKey struct{}

// compensation reverses an external call that already succeeded.
type compensation struct {
	name string
	fn   func(ctx context.Context) error
}

// tx is the unit of work behind one engine operation. Internal mutations are
// reversible through the saved state and undo log; external calls register a
// compensation. Either everything commits or everything is reversed.
type tx struct {
	e   *Engine
	ctx context.Context
	op  string
	now int64

	savedState    state.PoolState
	savedClaimSeq uint64
	touched       map[common.Address]*state.LPPosition
	undo          []func()
	compensations []compensation

	events  []event.PoolEvent
	journal *ledger.BatchBuilder
}

// run executes fn as one atomic operation.
func (e *Engine) run(ctx context.Context, op string, fn func(t *tx) error) error {
	if owner, _ := ctx.Value(operationKey{}).(*Engine); owner == e {
		return fmt.Errorf("%s: %w", op, ErrReentrantCall)
	}
	// A collaborator calling back with a fresh context would otherwise
	// block on mu forever. Readers hold mu only briefly, so wait for them.
	if !e.mu.TryLock() {
		if e.inOp.Load() {
			return fmt.Errorf("%s: %w: operation in flight", op, ErrReentrantCall)
		}
		e.mu.Lock()
	}
	defer e.mu.Unlock()
	e.inOp.Store(true)
	defer e.inOp.Store(false)

	now := e.now(ctx)
	t := &tx{
		e:             e,
		ctx:           context.WithValue(ctx, operationKey{}, e),
		op:            op,
		now:           now.Unix(),
		savedState:    e.state,
		savedClaimSeq: e.nextClaimID,
		touched:       make(map[common.Address]*state.LPPosition),
		journal:       ledger.NewBatchBuilder(now.UnixMicro()),
	}

	err := fn(t)
	if err == nil {
		err = e.state.CheckInvariants()
	}
	if err != nil {
		t.rollback(err)
		return fmt.Errorf("%s: %w", op, err)
	}

	t.commit()
	return nil
}

// verify checks invariants ahead of an irreversible final payout.
func (t *tx) verify() error {
	return t.e.state.CheckInvariants()
}

func (t *tx) onUndo(fn func()) {
	t.undo = append(t.undo, fn)
}

func (t *tx) compensate(name string, fn func(ctx context.Context) error) {
	t.compensations = append(t.compensations, compensation{name: name, fn: fn})
}

func (t *tx) emit(evt event.PoolEvent) {
	t.events = append(t.events, evt)
}

// position returns the caller's mutable position, creating it if needed.
// The original is kept so rollback can restore it.
func (t *tx) position(provider common.Address) *state.LPPosition {
	pos, exists := t.e.positions[provider]
	if _, seen := t.touched[provider]; !seen {
		if exists {
			t.touched[provider] = pos.Clone()
		} else {
			t.touched[provider] = nil
		}
	}
	if !exists {
		pos = &state.LPPosition{Provider: provider}
		t.e.positions[provider] = pos
	}
	return pos
}

// saveClaim snapshots a claim before it is mutated.
func (t *tx) saveClaim(c *state.Claim) {
	saved := *c
	t.onUndo(func() { *c = saved })
}

func (t *tx) setCovered(tokenID uint64, value int64) {
	prev, existed := t.e.covered[tokenID]
	t.onUndo(func() {
		if existed {
			t.e.covered[tokenID] = prev
		} else {
			delete(t.e.covered, tokenID)
		}
	})
	if value == 0 {
		delete(t.e.covered, tokenID)
		return
	}
	t.e.covered[tokenID] = value
}

func (t *tx) walletKey(owner common.Address) ledger.AccountKey {
	return ledger.NewWalletAccountKey(owner, t.e.assetID)
}

func (t *tx) custodyKey() ledger.AccountKey {
	return ledger.NewCustodyAccountKey(t.e.params.PoolID, t.e.assetID)
}

func (t *tx) reserveKey() ledger.AccountKey {
	return ledger.NewExternalAccountKey(t.e.deps.Reserve.Address(), ledger.SubTypeReserveFund, t.e.assetID)
}

func (t *tx) arbitratorKey() ledger.AccountKey {
	return ledger.NewExternalAccountKey(t.e.deps.Oracle.Address(), ledger.SubTypeArbitrator, t.e.assetID)
}

func (t *tx) treasuryKey() ledger.AccountKey {
	return ledger.NewExternalAccountKey(t.e.params.Treasury, ledger.SubTypeTreasury, t.e.assetID)
}

func (t *tx) rollback(cause error) {
	e := t.e

	for i := len(t.compensations) - 1; i >= 0; i-- {
		c := t.compensations[i]
		if err := c.fn(t.ctx); err != nil {
			e.logger.Error().
				Str("op", t.op).
				Str("compensation", c.name).
				Err(err).
				Msg("compensation failed; external state may diverge")
		}
	}

	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	for provider, prev := range t.touched {
		if prev == nil {
			delete(e.positions, provider)
		} else {
			e.positions[provider] = prev
		}
	}
	e.state = t.savedState
	e.nextClaimID = t.savedClaimSeq

	evt := e.logger.Debug()
	if len(t.compensations) > 0 {
		evt = e.logger.Warn()
	}
	evt.Str("op", t.op).
		Int("compensations", len(t.compensations)).
		Err(cause).
		Msg("operation rolled back")
}

func (t *tx) commit() {
	e := t.e
	for provider := range t.touched {
		if pos, ok := e.positions[provider]; ok && pos.IsEmpty() {
			delete(e.positions, provider)
		}
	}

	if e.emitter != nil {
		e.emitter.Emit(Receipt{
			Operation: t.op,
			Events:    t.events,
			Batch:     t.journal.Build(),
		})
	}
}
