package inmem

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrInsufficientFunds     = errors.New("insufficient funds")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrInvalidTransfer       = errors.New("invalid transfer")
)

// Token is a fungible asset ledger with ERC-20 style allowances.
type Token struct {
	mu         sync.Mutex
	symbol     string
	address    common.Address
	balances   map[common.Address]int64
	allowances map[common.Address]map[common.Address]int64
	fault      func(from, to common.Address, amount int64) error
}

func NewToken(symbol string, address common.Address) *Token {
	return &Token{
		symbol:     symbol,
		address:    address,
		balances:   make(map[common.Address]int64),
		allowances: make(map[common.Address]map[common.Address]int64),
	}
}

func (t *Token) Symbol() string {
	return t.symbol
}

func (t *Token) Address() common.Address {
	return t.address
}

// Mint creates amount out of thin air for to.
func (t *Token) Mint(to common.Address, amount int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.balances[to] += amount
}

func (t *Token) BalanceOf(owner common.Address) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.balances[owner]
}

func (t *Token) Approve(owner, spender common.Address, amount int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.allowances[owner] == nil {
		t.allowances[owner] = make(map[common.Address]int64)
	}
	t.allowances[owner][spender] = amount
}

func (t *Token) Allowance(owner, spender common.Address) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.allowances[owner][spender]
}

// InjectFault makes every subsequent move consult fn first; a non-nil error
// fails the move. Pass nil to clear.
func (t *Token) InjectFault(fn func(from, to common.Address, amount int64) error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fault = fn
}

// Move transfers between two holders without allowance checks.
func (t *Token) Move(from, to common.Address, amount int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.moveLocked(from, to, amount)
}

func (t *Token) moveLocked(from, to common.Address, amount int64) error {
	if amount < 0 || to == (common.Address{}) {
		return fmt.Errorf("%w: %d %s to %s", ErrInvalidTransfer, amount, t.symbol, to.Hex())
	}
	if t.fault != nil {
		if err := t.fault(from, to, amount); err != nil {
			return err
		}
	}
	if t.balances[from] < amount {
		return fmt.Errorf("%w: %s holds %d %s, needs %d", ErrInsufficientFunds, from.Hex(), t.balances[from], t.symbol, amount)
	}
	t.balances[from] -= amount
	t.balances[to] += amount
	return nil
}

// As binds the token to a holder, giving the view a contract has of the
// asset when it calls as msg.sender.
func (t *Token) As(holder common.Address) *TokenAccount {
	return &TokenAccount{token: t, holder: holder}
}

// TokenAccount is a Token seen from one holder.
type TokenAccount struct {
	token  *Token
	holder common.Address
}

// TransferFrom pulls amount from owner into the holder, spending allowance.
func (a *TokenAccount) TransferFrom(_ context.Context, owner common.Address, amount int64) error {
	if amount == 0 {
		return nil
	}
	t := a.token
	t.mu.Lock()
	defer t.mu.Unlock()

	allowed := t.allowances[owner][a.holder]
	if allowed < amount {
		return fmt.Errorf("%w: %s allows %s %d, needs %d", ErrInsufficientAllowance, owner.Hex(), a.holder.Hex(), allowed, amount)
	}
	if err := t.moveLocked(owner, a.holder, amount); err != nil {
		return err
	}
	t.allowances[owner][a.holder] = allowed - amount
	return nil
}

// Transfer sends amount from the holder to recipient.
func (a *TokenAccount) Transfer(_ context.Context, recipient common.Address, amount int64) error {
	return a.token.Move(a.holder, recipient, amount)
}
