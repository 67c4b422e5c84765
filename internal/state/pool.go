package state

import (
	"errors"
	"fmt"

	fpmath "CoverPool/internal/math"
)

// MaxUtilizationBps bounds locked capital to 75% of total liquidity.
const MaxUtilizationBps int64 = 7_500

var ErrInvariantViolated = errors.New("pool invariant violated")

// PoolState holds the pool-level counters shared by every component of the
// engine. All mutation goes through the methods below; callers check
// CheckInvariants once the whole operation has been applied.
type PoolState struct {
	PoolID uint64
	Asset  string

	TotalLiquidity   int64 // capital deposited, net of withdrawals and paid claims
	TotalLocked      int64 // capital reserved against open coverage and claims
	TotalFromReserve int64 // outstanding borrow from the reserve fund
	TotalShares      int64 // LP shares in circulation

	Risk        RiskScore
	GovTokenAPR int64 // reward rate, bps per year
}

// Capacity is the most capital that may be locked at once.
func (s PoolState) Capacity() int64 {
	return fpmath.ApplyBps(s.TotalLiquidity, MaxUtilizationBps)
}

// FreeLiquidity is capital available to underwrite new coverage.
func (s PoolState) FreeLiquidity() int64 {
	return fpmath.Max(0, s.Capacity()-s.TotalLocked)
}

// CapacityDeficit is locked capital above capacity. The reserve debt must
// carry at least this much.
func (s PoolState) CapacityDeficit() int64 {
	return fpmath.Max(0, s.TotalLocked-s.Capacity())
}

// UtilizationBps is locked over total liquidity, in basis points.
func (s PoolState) UtilizationBps() int64 {
	if s.TotalLiquidity <= 0 {
		return 0
	}
	return fpmath.MulDiv(s.TotalLocked, fpmath.BpsScale, s.TotalLiquidity, fpmath.RoundDown)
}

func (s *PoolState) AddLiquidity(amount int64) {
	s.TotalLiquidity += amount
}

// RemoveLiquidity lowers total liquidity by amount, clamped at zero, and
// returns the amount actually removed.
func (s *PoolState) RemoveLiquidity(amount int64) int64 {
	removed := fpmath.Min(amount, s.TotalLiquidity)
	s.TotalLiquidity -= removed
	return removed
}

func (s *PoolState) Lock(amount int64) {
	s.TotalLocked += amount
}

// Unlock releases locked capital, clamped at zero.
func (s *PoolState) Unlock(amount int64) int64 {
	released := fpmath.Min(amount, s.TotalLocked)
	s.TotalLocked -= released
	return released
}

func (s *PoolState) RecordBorrow(amount int64) {
	s.TotalFromReserve += amount
}

// RecordRepay lowers the reserve debt, clamped at zero.
func (s *PoolState) RecordRepay(amount int64) int64 {
	repaid := fpmath.Min(amount, s.TotalFromReserve)
	s.TotalFromReserve -= repaid
	return repaid
}

func (s *PoolState) MintShares(shares int64) {
	s.TotalShares += shares
}

func (s *PoolState) BurnShares(shares int64) {
	s.TotalShares -= shares
}

// CheckInvariants validates the counters after an operation.
// Locked capital may exceed capacity only by what the reserve debt carries.
func (s *PoolState) CheckInvariants() error {
	if s.TotalLiquidity < 0 {
		return fmt.Errorf("%w: total liquidity negative: %d", ErrInvariantViolated, s.TotalLiquidity)
	}
	if s.TotalLocked < 0 {
		return fmt.Errorf("%w: total locked negative: %d", ErrInvariantViolated, s.TotalLocked)
	}
	if s.TotalFromReserve < 0 {
		return fmt.Errorf("%w: reserve debt negative: %d", ErrInvariantViolated, s.TotalFromReserve)
	}
	if s.TotalShares < 0 {
		return fmt.Errorf("%w: total shares negative: %d", ErrInvariantViolated, s.TotalShares)
	}
	if deficit := s.CapacityDeficit(); deficit > s.TotalFromReserve {
		return fmt.Errorf("%w: locked %d exceeds capacity %d by more than reserve debt %d",
			ErrInvariantViolated, s.TotalLocked, s.Capacity(), s.TotalFromReserve)
	}
	if err := ValidateRisk(s.Risk); err != nil {
		return fmt.Errorf("%w: %v", ErrInvariantViolated, err)
	}
	return nil
}

// CanonicalBytes returns deterministic serialization for hashing
func (s *PoolState) CanonicalBytes() []byte {
	buf := make([]byte, 0, 64+len(s.Asset))
	buf = appendInt64LE(buf, int64(s.PoolID))
	buf = append(buf, byte(len(s.Asset)))
	buf = append(buf, []byte(s.Asset)...)
	buf = appendInt64LE(buf, s.TotalLiquidity)
	buf = appendInt64LE(buf, s.TotalLocked)
	buf = appendInt64LE(buf, s.TotalFromReserve)
	buf = appendInt64LE(buf, s.TotalShares)
	buf = append(buf, byte(s.Risk))
	buf = appendInt64LE(buf, s.GovTokenAPR)
	return buf
}

func appendInt64LE(buf []byte, v int64) []byte {
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
