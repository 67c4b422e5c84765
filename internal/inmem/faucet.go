package inmem

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Faucet hands out test funds of one asset and pre-approves the pool to pull
// them, so a fresh account can deposit or buy coverage straight away.
type Faucet struct {
	token   *Token
	spender common.Address
}

func NewFaucet(token *Token, spender common.Address) *Faucet {
	return &Faucet{token: token, spender: spender}
}

// Drip mints amount to `to` and raises its allowance for the pool by the same
// amount.
func (f *Faucet) Drip(_ context.Context, to common.Address, amount int64) error {
	if amount <= 0 || to == (common.Address{}) {
		return fmt.Errorf("%w: faucet %d %s to %s", ErrInvalidTransfer, amount, f.token.Symbol(), to.Hex())
	}
	f.token.Mint(to, amount)
	f.token.Approve(to, f.spender, f.token.Allowance(to, f.spender)+amount)
	return nil
}
