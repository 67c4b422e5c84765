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
	ErrZeroAddress          = errors.New("zero address")
	ErrAlreadyWhitelisted   = errors.New("already whitelisted")
	ErrNotWhitelisted       = errors.New("not whitelisted")
	ErrTargetNotWhitelisted = errors.New("target not whitelisted")
	ErrAssetNotWhitelisted  = errors.New("asset not whitelisted")
	ErrFundUnauthorized     = errors.New("caller lacks FUND_ADMIN_ROLE")
)

// WhitelistType separates the address lists a fund keeps.
type WhitelistType uint8

const (
	WhitelistAsset WhitelistType = iota
	WhitelistReserve
	WhitelistTreasury
)

func (w WhitelistType) String() string {
	switch w {
	case WhitelistAsset:
		return "asset"
	case WhitelistReserve:
		return "reserve"
	case WhitelistTreasury:
		return "treasury"
	default:
		return fmt.Sprintf("whitelist(%d)", uint8(w))
	}
}

// Whitelist holds one address set per WhitelistType.
type Whitelist struct {
	mu      sync.RWMutex
	entries map[WhitelistType]map[common.Address]bool
}

func NewWhitelist() *Whitelist {
	return &Whitelist{entries: make(map[WhitelistType]map[common.Address]bool)}
}

func (w *Whitelist) Add(kind WhitelistType, addr common.Address) error {
	if addr == (common.Address{}) {
		return fmt.Errorf("%w: %s whitelist", ErrZeroAddress, kind)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.entries[kind][addr] {
		return fmt.Errorf("%w: %s in %s whitelist", ErrAlreadyWhitelisted, addr.Hex(), kind)
	}
	if w.entries[kind] == nil {
		w.entries[kind] = make(map[common.Address]bool)
	}
	w.entries[kind][addr] = true
	return nil
}

func (w *Whitelist) Remove(kind WhitelistType, addr common.Address) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.entries[kind][addr] {
		return fmt.Errorf("%w: %s in %s whitelist", ErrNotWhitelisted, addr.Hex(), kind)
	}
	delete(w.entries[kind], addr)
	return nil
}

func (w *Whitelist) Contains(kind WhitelistType, addr common.Address) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.entries[kind][addr]
}

// Fund is a reserve or treasury account. Only FUND_ADMIN_ROLE holders can
// move money out, and only to whitelisted targets.
type Fund struct {
	address   common.Address
	kind      WhitelistType
	roles     access.RoleChecker
	whitelist *Whitelist
}

// NewFund creates a fund of the given kind; kind selects which whitelist
// targets are checked against.
func NewFund(address common.Address, kind WhitelistType, roles access.RoleChecker, whitelist *Whitelist) *Fund {
	return &Fund{address: address, kind: kind, roles: roles, whitelist: whitelist}
}

func (f *Fund) Address() common.Address {
	return f.address
}

func (f *Fund) Whitelist() *Whitelist {
	return f.whitelist
}

// As binds the fund to a caller and an asset.
func (f *Fund) As(caller common.Address, asset *Token) *FundAccount {
	return &FundAccount{fund: f, caller: caller, asset: asset}
}

// FundAccount is the fund seen by one caller for one asset.
type FundAccount struct {
	fund   *Fund
	caller common.Address
	asset  *Token
}

func (a *FundAccount) Address() common.Address {
	return a.fund.address
}

func (a *FundAccount) Balance(context.Context) (int64, error) {
	return a.asset.BalanceOf(a.fund.address), nil
}

func (a *FundAccount) TransferFund(_ context.Context, target common.Address, amount int64) error {
	f := a.fund
	if !f.roles.HasRole(access.FundAdminRole, a.caller) {
		return fmt.Errorf("%w: %s", ErrFundUnauthorized, a.caller.Hex())
	}
	if !f.whitelist.Contains(f.kind, target) {
		return fmt.Errorf("%w: %s", ErrTargetNotWhitelisted, target.Hex())
	}
	if !f.whitelist.Contains(WhitelistAsset, a.asset.Address()) {
		return fmt.Errorf("%w: %s", ErrAssetNotWhitelisted, a.asset.Symbol())
	}
	if amount == 0 {
		return nil
	}
	return a.asset.Move(f.address, target, amount)
}
