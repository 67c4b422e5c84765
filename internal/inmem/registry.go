package inmem

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"CoverPool/internal/state"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrUnknownToken   = errors.New("unknown coverage token")
	ErrStatusTerminal = errors.New("coverage status is terminal")
	ErrInvalidStatus  = errors.New("invalid coverage status")
	ErrZeroDuration   = errors.New("duration must be positive")
	ErrNotOwner       = errors.New("not token owner")
)

const secondsPerDay = 24 * 60 * 60

// CoverageRegistry mints coverage proofs as sequentially numbered tokens.
type CoverageRegistry struct {
	mu     sync.Mutex
	tokens map[uint64]*state.CoverageProof
	next   uint64
}

func NewCoverageRegistry() *CoverageRegistry {
	return &CoverageRegistry{tokens: make(map[uint64]*state.CoverageProof)}
}

func (r *CoverageRegistry) Mint(_ context.Context, owner common.Address, value, start, end int64, poolID uint64) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if owner == (common.Address{}) {
		return 0, fmt.Errorf("%w: mint to zero address", ErrInvalidTransfer)
	}
	id := r.next
	r.next++
	r.tokens[id] = &state.CoverageProof{
		TokenID: id,
		Owner:   owner,
		Value:   value,
		Start:   start,
		End:     end,
		PoolID:  poolID,
		Status:  state.CoverageActive,
	}
	return id, nil
}

func (r *CoverageRegistry) get(tokenID uint64) (*state.CoverageProof, error) {
	proof, ok := r.tokens[tokenID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownToken, tokenID)
	}
	return proof, nil
}

func (r *CoverageRegistry) SetStatus(_ context.Context, tokenID uint64, status state.CoverageStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	proof, err := r.get(tokenID)
	if err != nil {
		return err
	}
	if !status.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidStatus, status)
	}
	if !proof.Status.CanTransitionTo(status) {
		return fmt.Errorf("%w: token %d is %s", ErrStatusTerminal, tokenID, proof.Status)
	}
	proof.Status = status
	return nil
}

// SetValue changes the covered value. Zeroing the value marks the proof
// Claimed.
func (r *CoverageRegistry) SetValue(_ context.Context, tokenID uint64, value int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	proof, err := r.get(tokenID)
	if err != nil {
		return err
	}
	if proof.Status == state.CoverageExpired {
		return fmt.Errorf("%w: token %d", ErrStatusTerminal, tokenID)
	}
	proof.Value = value
	if value == 0 {
		proof.Status = state.CoverageClaimed
	}
	return nil
}

func (r *CoverageRegistry) Info(_ context.Context, tokenID uint64) (state.CoverageProof, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	proof, err := r.get(tokenID)
	if err != nil {
		return state.CoverageProof{}, err
	}
	return *proof, nil
}

// ExtendDuration pushes the end of coverage out by days.
func (r *CoverageRegistry) ExtendDuration(tokenID uint64, days int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if days <= 0 {
		return ErrZeroDuration
	}
	proof, err := r.get(tokenID)
	if err != nil {
		return err
	}
	if proof.Status == state.CoverageExpired {
		return fmt.Errorf("%w: token %d", ErrStatusTerminal, tokenID)
	}
	proof.End += days * secondsPerDay
	return nil
}

// Transfer hands a proof to a new holder.
func (r *CoverageRegistry) Transfer(from, to common.Address, tokenID uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	proof, err := r.get(tokenID)
	if err != nil {
		return err
	}
	if proof.Owner != from {
		return fmt.Errorf("%w: %s does not hold %d", ErrNotOwner, from.Hex(), tokenID)
	}
	if to == (common.Address{}) {
		return fmt.Errorf("%w: transfer to zero address", ErrInvalidTransfer)
	}
	proof.Owner = to
	return nil
}

func (r *CoverageRegistry) OwnerOf(tokenID uint64) (common.Address, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	proof, err := r.get(tokenID)
	if err != nil {
		return common.Address{}, err
	}
	return proof.Owner, nil
}
