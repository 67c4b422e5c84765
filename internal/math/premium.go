package math

import "math/big"

const (
	// DaysPerYear annualizes the risk rate.
	DaysPerYear int64 = 365

	// RiskRateBps is the annual premium rate contributed by one point of risk
	// score (risk 3 prices at 3% a year before the utilization surcharge).
	RiskRateBps int64 = 100

	// UtilizationSlope scales the quadratic surcharge: at full utilization the
	// premium is (1 + UtilizationSlope) times the base rate.
	UtilizationSlope int64 = 3
)

// PremiumInput carries everything the premium curve depends on.
type PremiumInput struct {
	CoverAmount  int64
	DurationDays int64
	Risk         int64
	// Capacity is the locked-capital ceiling (max utilization of total liquidity).
	Capacity    int64
	TotalLocked int64
}

// UtilizationBps returns the post-purchase utilization of capacity in basis
// points, capped at 10_000. An empty pool counts as fully utilized.
func UtilizationBps(totalLocked, coverAmount, capacity int64) int64 {
	if capacity <= 0 {
		return BpsScale
	}
	u := MulDiv(totalLocked+coverAmount, BpsScale, capacity, RoundDown)
	return Min(u, BpsScale)
}

// UtilizationMultiplierBps is 1 + slope*u^2 expressed in basis points.
func UtilizationMultiplierBps(utilBps int64) int64 {
	return BpsScale + UtilizationSlope*MulDiv(utilBps, utilBps, BpsScale, RoundDown)
}

// ComputePremium prices coverage:
//
//	premium = cover * risk*RiskRateBps * days * multiplier / (365 * 10^4 * 10^4)
//
// rounded up, so any non-zero cover costs at least one unit.
func ComputePremium(in PremiumInput) int64 {
	if in.CoverAmount <= 0 || in.DurationDays <= 0 || in.Risk <= 0 {
		return 0
	}

	multiplier := UtilizationMultiplierBps(UtilizationBps(in.TotalLocked, in.CoverAmount, in.Capacity))

	numerator := MultiplyInt128(in.CoverAmount, in.Risk*RiskRateBps)
	defer putInt128(numerator)
	numerator.Mul(numerator, big.NewInt(in.DurationDays))
	numerator.Mul(numerator, big.NewInt(multiplier))

	premium := DivideInt128(numerator, DaysPerYear*BpsScale*BpsScale, RoundUp)
	if premium < 1 {
		premium = 1
	}
	return premium
}

// ComputeReward returns the governance-token reward for capital that stayed in
// the pool for elapsedSeconds at aprBps, rounded down.
func ComputeReward(amount, aprBps, elapsedSeconds int64) int64 {
	if amount <= 0 || aprBps <= 0 || elapsedSeconds <= 0 {
		return 0
	}
	numerator := MultiplyInt128(amount, aprBps)
	defer putInt128(numerator)
	numerator.Mul(numerator, big.NewInt(elapsedSeconds))
	return DivideInt128(numerator, BpsScale*DaysPerYear*24*3600, RoundDown)
}
