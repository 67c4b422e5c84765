package math

import (
	"math"
	"math/big"
	"sync"
)

// BpsScale is the denominator of every basis-point quantity in the pool
// (utilization bound, treasury fee, reward APR).
const BpsScale int64 = 10_000

// Int128 is a pooled big.Int for intermediate calculations
var int128Pool = &sync.Pool{
	New: func() interface{} {
		return new(big.Int)
	},
}

func getInt128() *big.Int {
	return int128Pool.Get().(*big.Int)
}

func putInt128(v *big.Int) {
	v.SetInt64(0)
	int128Pool.Put(v)
}

type RoundingMode int

const (
	RoundDown RoundingMode = iota
	RoundUp
)

// MultiplyInt128 performs a * b without overflow. The result comes from the
// pool and goes back with putInt128.
func MultiplyInt128(a, b int64) *big.Int {
	result := getInt128()
	result.Mul(big.NewInt(a), big.NewInt(b))
	return result
}

// DivideInt128 performs numerator / denominator with the given rounding.
// Operands are expected to be non-negative; the quotient saturates at MaxInt64.
func DivideInt128(numerator *big.Int, denominator int64, roundingMode RoundingMode) int64 {
	denom := big.NewInt(denominator)
	quotient := getInt128()
	remainder := getInt128()
	defer putInt128(quotient)
	defer putInt128(remainder)

	quotient.DivMod(numerator, denom, remainder)

	if !quotient.IsInt64() {
		return math.MaxInt64
	}
	result := quotient.Int64()

	if remainder.Sign() == 0 {
		return result
	}

	if roundingMode == RoundUp {
		result++
	}
	return result
}

// MulDiv returns a * b / denominator with a 128-bit intermediate.
// A non-positive denominator yields zero.
func MulDiv(a, b, denominator int64, roundingMode RoundingMode) int64 {
	if denominator <= 0 {
		return 0
	}
	product := MultiplyInt128(a, b)
	defer putInt128(product)
	return DivideInt128(product, denominator, roundingMode)
}

// ApplyBps returns amount * bps / 10_000, rounded down.
func ApplyBps(amount, bps int64) int64 {
	return MulDiv(amount, bps, BpsScale, RoundDown)
}

// SharesForDeposit converts an asset amount to LP shares at the prevailing
// exchange rate. The first deposit, or any deposit into a pool whose value is
// exhausted, mints 1:1. Rounds down so that late entrants never dilute
// existing holders.
func SharesForDeposit(amount, totalShares, poolValue int64) int64 {
	if totalShares == 0 || poolValue <= 0 {
		return amount
	}
	return MulDiv(amount, totalShares, poolValue, RoundDown)
}

// AssetsForShares converts burned LP shares back to an asset amount, rounded
// down.
func AssetsForShares(shares, totalShares, poolValue int64) int64 {
	if totalShares <= 0 || poolValue <= 0 {
		return 0
	}
	return MulDiv(shares, poolValue, totalShares, RoundDown)
}

func Min(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func Max(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
