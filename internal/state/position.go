package state

import "github.com/ethereum/go-ethereum/common"

// PendingWithdrawal is the single outstanding withdrawal request of a provider.
type PendingWithdrawal struct {
	Shares   int64
	UnlockAt int64 // unix seconds
}

// LPPosition is a liquidity provider's stake in the pool
type LPPosition struct {
	Provider         common.Address
	Shares           int64
	DepositTimestamp int64 // unix seconds of the last deposit; 0 once fully withdrawn
	Pending          *PendingWithdrawal
}

// IsEmpty reports whether the position can be dropped from state.
func (p *LPPosition) IsEmpty() bool {
	return p.Shares == 0 && p.Pending == nil
}

// Clone returns a deep copy.
func (p *LPPosition) Clone() *LPPosition {
	cp := *p
	if p.Pending != nil {
		pending := *p.Pending
		cp.Pending = &pending
	}
	return &cp
}

// CanonicalBytes returns deterministic serialization for hashing
func (p *LPPosition) CanonicalBytes() []byte {
	buf := make([]byte, 0, 64)
	buf = append(buf, p.Provider.Bytes()...)
	buf = appendInt64LE(buf, p.Shares)
	buf = appendInt64LE(buf, p.DepositTimestamp)
	if p.Pending != nil {
		buf = append(buf, 1)
		buf = appendInt64LE(buf, p.Pending.Shares)
		buf = appendInt64LE(buf, p.Pending.UnlockAt)
	} else {
		buf = append(buf, 0)
	}
	return buf
}
