package pool

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"CoverPool/internal/access"
	"CoverPool/internal/event"
	"CoverPool/internal/ledger"
	"CoverPool/internal/state"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
)

// Receipt describes one committed operation.
type Receipt struct {
	Operation string
	Events    []event.PoolEvent
	Batch     *ledger.Batch
}

// Emitter receives a receipt for every committed operation.
type Emitter interface {
	Emit(Receipt)
}

// Config is the static identity of an engine.
type Config struct {
	Params  state.PoolParams
	Address common.Address // the pool's own account
}

// Deps are the external collaborators.
type Deps struct {
	Asset     AssetLedger
	Custodian YieldCustodian
	Registry  CoverageRegistry
	Oracle    ArbitrationOracle
	Reserve   ReserveFund
	Rewards   RewardMinter // optional
	Roles     access.RoleChecker
	Clock     func() time.Time
	Logger    zerolog.Logger
}

// Engine is the insurance pool: liquidity ledger, underwriting, claims,
// reserve backstop and yield custody over one shared PoolState.
// Operations are serialized; each one commits fully or not at all. The
// engine has a single writer: an operation started while another is in
// flight fails with ErrReentrantCall instead of waiting for it.
type Engine struct {
	mu   sync.Mutex
	inOp atomic.Bool // an operation holds mu

	params  state.PoolParams
	address common.Address
	assetID ledger.AssetID
	deps    Deps
	logger  zerolog.Logger
	emitter Emitter

	state       state.PoolState
	positions   map[common.Address]*state.LPPosition
	claims      map[uint64]*state.Claim // by dispute id
	openClaims  map[uint64]uint64       // token id -> dispute id of the unruled claim
	covered     map[uint64]int64        // token id -> capital locked for it
	nextClaimID uint64
}

func NewEngine(cfg Config, deps Deps) (*Engine, error) {
	params := cfg.Params.WithDefaults()
	if err := state.ValidatePoolParams(params); err != nil {
		return nil, err
	}
	assetID, ok := ledger.GetAssetID(params.Asset)
	if !ok {
		return nil, fmt.Errorf("pool %d: unknown asset %s", params.PoolID, params.Asset)
	}
	if deps.Asset == nil || deps.Custodian == nil || deps.Registry == nil ||
		deps.Oracle == nil || deps.Reserve == nil || deps.Roles == nil {
		return nil, fmt.Errorf("pool %d: missing collaborator", params.PoolID)
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}

	return &Engine{
		params:  params,
		address: cfg.Address,
		assetID: assetID,
		deps:    deps,
		logger:  deps.Logger.With().Uint64("pool_id", params.PoolID).Logger(),
		state: state.PoolState{
			PoolID:      params.PoolID,
			Asset:       params.Asset,
			Risk:        params.Risk,
			GovTokenAPR: params.GovTokenAPR,
		},
		positions:  make(map[common.Address]*state.LPPosition),
		claims:     make(map[uint64]*state.Claim),
		openClaims: make(map[uint64]uint64),
		covered:    make(map[uint64]int64),
	}, nil
}

// SetEmitter installs the receipt sink. Must be called before any operation.
func (e *Engine) SetEmitter(emitter Emitter) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.emitter = emitter
}

type timestampKey struct{}

// WithTimestamp pins the time an operation takes effect at. Replayed and
// queued commands carry their own timestamp instead of reading the clock.
func WithTimestamp(ctx context.Context, ts time.Time) context.Context {
	return context.WithValue(ctx, timestampKey{}, ts)
}

func (e *Engine) now(ctx context.Context) time.Time {
	if ts, ok := ctx.Value(timestampKey{}).(time.Time); ok {
		return ts
	}
	return e.deps.Clock()
}

func (e *Engine) requireRole(role common.Hash, caller common.Address) error {
	if !e.deps.Roles.HasRole(role, caller) {
		return fmt.Errorf("%w: %s for %s", ErrUnauthorized, access.RoleName(role), caller.Hex())
	}
	return nil
}

// --- Read-only views ---

func (e *Engine) Params() state.PoolParams {
	return e.params
}

func (e *Engine) Address() common.Address {
	return e.address
}

// ReserveAddress is the account of the reserve fund the pool borrows from.
func (e *Engine) ReserveAddress() common.Address {
	return e.deps.Reserve.Address()
}

func (e *Engine) AssetID() ledger.AssetID {
	return e.assetID
}

// State returns a copy of the pool counters.
func (e *Engine) State() state.PoolState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Position returns a copy of a provider's position.
func (e *Engine) Position(provider common.Address) (state.LPPosition, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	pos, ok := e.positions[provider]
	if !ok {
		return state.LPPosition{Provider: provider}, false
	}
	return *pos.Clone(), true
}

// Claim returns a copy of the claim opened under disputeID.
func (e *Engine) Claim(disputeID uint64) (state.Claim, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.claims[disputeID]
	if !ok {
		return state.Claim{}, false
	}
	return *c, true
}

// LockedFor returns the capital locked against a coverage proof.
func (e *Engine) LockedFor(tokenID uint64) (int64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.covered[tokenID]
	return v, ok
}

// Snapshot is a deep copy of the engine state.
type Snapshot struct {
	State       state.PoolState
	Positions   []state.LPPosition
	Claims      []state.Claim
	Covered     map[uint64]int64
	NextClaimID uint64
}

// Snapshot captures all engine state, ordered deterministically.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap := Snapshot{
		State:       e.state,
		Positions:   make([]state.LPPosition, 0, len(e.positions)),
		Claims:      make([]state.Claim, 0, len(e.claims)),
		Covered:     make(map[uint64]int64, len(e.covered)),
		NextClaimID: e.nextClaimID,
	}
	for _, p := range e.positions {
		snap.Positions = append(snap.Positions, *p.Clone())
	}
	sort.Slice(snap.Positions, func(i, j int) bool {
		return snap.Positions[i].Provider.Cmp(snap.Positions[j].Provider) < 0
	})
	for _, c := range e.claims {
		snap.Claims = append(snap.Claims, *c)
	}
	sort.Slice(snap.Claims, func(i, j int) bool {
		return snap.Claims[i].ClaimID < snap.Claims[j].ClaimID
	})
	for k, v := range e.covered {
		snap.Covered[k] = v
	}
	return snap
}

// Digest returns canonical bytes of the whole engine state for hashing.
func (e *Engine) Digest() []byte {
	snap := e.Snapshot()

	digest := snap.State.CanonicalBytes()
	for i := range snap.Positions {
		digest = append(digest, snap.Positions[i].CanonicalBytes()...)
	}
	for i := range snap.Claims {
		digest = append(digest, snap.Claims[i].CanonicalBytes()...)
	}

	tokens := make([]uint64, 0, len(snap.Covered))
	for id := range snap.Covered {
		tokens = append(tokens, id)
	}
	sort.Slice(tokens, func(i, j int) bool { return tokens[i] < tokens[j] })
	for _, id := range tokens {
		digest = appendUint64LE(digest, id)
		digest = appendUint64LE(digest, uint64(snap.Covered[id]))
	}
	return digest
}

func appendUint64LE(buf []byte, v uint64) []byte {
	return append(buf,
		byte(v),
		byte(v>>8),
		byte(v>>16),
		byte(v>>24),
		byte(v>>32),
		byte(v>>40),
		byte(v>>48),
		byte(v>>56),
	)
}
