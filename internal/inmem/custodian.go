package inmem

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

var ErrCustodianPaused = errors.New("custodian paused")

// Custodian is a lending-market style yield custodian. Suppliers earn yield
// credited through Accrue; withdrawals are limited by the market's available
// liquidity, so a caller may receive less than requested.
type Custodian struct {
	mu       sync.Mutex
	token    *Token
	address  common.Address
	supplied map[common.Address]int64
	// liquidityLimit caps a single withdrawal; negative means unlimited.
	liquidityLimit int64
	paused         bool
	hook           func(ctx context.Context)
}

func NewCustodian(token *Token, address common.Address) *Custodian {
	return &Custodian{
		token:          token,
		address:        address,
		supplied:       make(map[common.Address]int64),
		liquidityLimit: -1,
	}
}

func (c *Custodian) Address() common.Address {
	return c.address
}

// SetLiquidityLimit caps what a single withdrawal returns. Negative lifts
// the cap.
func (c *Custodian) SetLiquidityLimit(limit int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.liquidityLimit = limit
}

// SetPaused makes every call fail.
func (c *Custodian) SetPaused(paused bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = paused
}

// SetHook registers a callback run on every Supply and Withdraw, before any
// funds move. Tests use it to play a hostile counterparty.
func (c *Custodian) SetHook(fn func(ctx context.Context)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hook = fn
}

// Accrue credits yield to a supplier.
func (c *Custodian) Accrue(supplier common.Address, amount int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.supplied[supplier] += amount
	c.token.Mint(c.address, amount)
}

func (c *Custodian) Supplied(supplier common.Address) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.supplied[supplier]
}

func (c *Custodian) runHook(ctx context.Context) {
	c.mu.Lock()
	hook := c.hook
	c.mu.Unlock()
	if hook != nil {
		hook(ctx)
	}
}

// As binds the custodian to a supplier.
func (c *Custodian) As(supplier common.Address) *CustodianAccount {
	return &CustodianAccount{custodian: c, supplier: supplier}
}

// CustodianAccount is the custodian seen from one supplier.
type CustodianAccount struct {
	custodian *Custodian
	supplier  common.Address
}

func (a *CustodianAccount) Supply(ctx context.Context, amount int64) error {
	c := a.custodian
	c.runHook(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.paused {
		return ErrCustodianPaused
	}
	if amount <= 0 {
		return fmt.Errorf("%w: supply %d", ErrInvalidTransfer, amount)
	}
	if err := c.token.Move(a.supplier, c.address, amount); err != nil {
		return err
	}
	c.supplied[a.supplier] += amount
	return nil
}

func (a *CustodianAccount) Withdraw(ctx context.Context, amount int64) (int64, error) {
	c := a.custodian
	c.runHook(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.paused {
		return 0, ErrCustodianPaused
	}

	actual := amount
	if bal := c.supplied[a.supplier]; actual > bal {
		actual = bal
	}
	if c.liquidityLimit >= 0 && actual > c.liquidityLimit {
		actual = c.liquidityLimit
	}
	if actual <= 0 {
		return 0, nil
	}
	if err := c.token.Move(c.address, a.supplier, actual); err != nil {
		return 0, err
	}
	c.supplied[a.supplier] -= actual
	return actual, nil
}

func (a *CustodianAccount) BalanceOf(context.Context) (int64, error) {
	c := a.custodian
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.paused {
		return 0, ErrCustodianPaused
	}
	return c.supplied[a.supplier], nil
}
