package inmem

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"CoverPool/internal/access"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrNonTransferable    = errors.New("governance token is non-transferable")
	ErrUnauthorizedMinter = errors.New("unauthorized minter")
)

// RewardToken is the governance reward. It can be minted by MINTER_ROLE
// holders and never moves afterwards.
type RewardToken struct {
	mu       sync.Mutex
	roles    access.RoleChecker
	balances map[common.Address]int64
	supply   int64
}

func NewRewardToken(roles access.RoleChecker) *RewardToken {
	return &RewardToken{roles: roles, balances: make(map[common.Address]int64)}
}

func (r *RewardToken) BalanceOf(owner common.Address) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.balances[owner]
}

func (r *RewardToken) TotalSupply() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.supply
}

func (r *RewardToken) Transfer(from, to common.Address, amount int64) error {
	return ErrNonTransferable
}

// MinterFor binds the token to the account that mints through it.
func (r *RewardToken) MinterFor(minter common.Address) *RewardMinter {
	return &RewardMinter{token: r, minter: minter}
}

// RewardMinter mints on behalf of one account.
type RewardMinter struct {
	token  *RewardToken
	minter common.Address
}

func (m *RewardMinter) Mint(_ context.Context, to common.Address, amount int64) error {
	r := m.token
	if !r.roles.HasRole(access.MinterRole, m.minter) {
		return fmt.Errorf("%w: %s lacks MINTER_ROLE", ErrUnauthorizedMinter, m.minter.Hex())
	}
	if amount <= 0 || to == (common.Address{}) {
		return fmt.Errorf("%w: mint %d to %s", ErrInvalidTransfer, amount, to.Hex())
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.balances[to] += amount
	r.supply += amount
	return nil
}
