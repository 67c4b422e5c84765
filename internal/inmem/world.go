package inmem

import (
	"fmt"
	"sync"
	"time"

	"CoverPool/internal/access"
	"CoverPool/internal/pool"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"
)

// WorldConfig names the fixed accounts of an in-memory deployment.
type WorldConfig struct {
	Admin           common.Address
	ArbitratorOwner common.Address
	ArbitrationCost int64
	AppealPeriod    time.Duration
	Clock           func() time.Time
}

// World is a complete in-memory deployment of every contract the pools talk
// to: one token and custodian per asset, a shared registry, arbitrator,
// reserve fund and reward token.
type World struct {
	mu sync.Mutex

	Roles      *Roles
	Whitelist  *Whitelist
	Registry   *CoverageRegistry
	Arbitrator *Arbitrator
	Reserve    *Fund
	Rewards    *RewardToken

	tokens     map[string]*Token
	custodians map[string]*Custodian
}

// DeriveAddress returns a stable address for a named system account.
func DeriveAddress(name string) common.Address {
	return common.BytesToAddress(crypto.Keccak256([]byte(name))[12:])
}

func NewWorld(cfg WorldConfig) *World {
	roles := NewRoles()
	whitelist := NewWhitelist()
	if cfg.Admin != (common.Address{}) {
		roles.Grant(access.InsurancePoolAdminRole, cfg.Admin)
		roles.Grant(access.FundAdminRole, cfg.Admin)
		roles.Grant(access.CoverageProofAdminRole, cfg.Admin)
	}

	return &World{
		Roles:      roles,
		Whitelist:  whitelist,
		Registry:   NewCoverageRegistry(),
		Arbitrator: NewArbitrator(DeriveAddress("coverpool:arbitrator"), cfg.ArbitratorOwner, cfg.ArbitrationCost, cfg.AppealPeriod, cfg.Clock),
		Reserve:    NewFund(DeriveAddress("coverpool:reserve"), WhitelistReserve, roles, whitelist),
		Rewards:    NewRewardToken(roles),
		tokens:     make(map[string]*Token),
		custodians: make(map[string]*Custodian),
	}
}

// Token returns the asset token for symbol, deploying it on first use.
func (w *World) Token(symbol string) *Token {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.tokenLocked(symbol)
}

func (w *World) tokenLocked(symbol string) *Token {
	token, ok := w.tokens[symbol]
	if !ok {
		token = NewToken(symbol, DeriveAddress("coverpool:token:"+symbol))
		w.tokens[symbol] = token
		// Whitelist only fails for duplicates, which the map rules out.
		_ = w.Whitelist.Add(WhitelistAsset, token.Address())
	}
	return token
}

// Custodian returns the yield custodian for symbol.
func (w *World) Custodian(symbol string) *Custodian {
	w.mu.Lock()
	defer w.mu.Unlock()
	cust, ok := w.custodians[symbol]
	if !ok {
		cust = NewCustodian(w.tokenLocked(symbol), DeriveAddress("coverpool:custodian:"+symbol))
		w.custodians[symbol] = cust
	}
	return cust
}

// PoolAddress is the account a pool id is deployed at.
func PoolAddress(poolID uint64) common.Address {
	return DeriveAddress(fmt.Sprintf("coverpool:pool:%d", poolID))
}

// Deps wires a pool at poolAddr into the world: it gets its asset, custody,
// the reserve and minting rights. The returned account must be bound to the
// engine once it exists.
func (w *World) Deps(poolAddr common.Address, asset string, clock func() time.Time, logger zerolog.Logger) (pool.Deps, *ArbitratorAccount, error) {
	if err := w.Whitelist.Add(WhitelistReserve, poolAddr); err != nil {
		return pool.Deps{}, nil, fmt.Errorf("whitelist pool %s: %w", poolAddr.Hex(), err)
	}
	w.Roles.Grant(access.FundAdminRole, poolAddr)
	w.Roles.Grant(access.MinterRole, poolAddr)
	w.Roles.Grant(access.CoverageProofAdminRole, poolAddr)

	token := w.Token(asset)
	arb := w.Arbitrator.Account()

	return pool.Deps{
		Asset:     token.As(poolAddr),
		Custodian: w.Custodian(asset).As(poolAddr),
		Registry:  w.Registry,
		Oracle:    arb,
		Reserve:   w.Reserve.As(poolAddr, token),
		Rewards:   w.Rewards.MinterFor(poolAddr),
		Roles:     w.Roles,
		Clock:     clock,
		Logger:    logger,
	}, arb, nil
}
