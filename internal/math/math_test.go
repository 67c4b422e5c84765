package math_test

import (
	fpmath "CoverPool/internal/math"
	"math"
	"testing"
)

// ============================================================================
// Test: MulDiv rounding
// ============================================================================

func TestMulDiv_Rounding(t *testing.T) {
	cases := []struct {
		name    string
		a, b, d int64
		mode    fpmath.RoundingMode
		want    int64
	}{
		{"exact", 10, 10, 4, fpmath.RoundDown, 25},
		{"down", 10, 1, 3, fpmath.RoundDown, 3},
		{"up", 10, 1, 3, fpmath.RoundUp, 4},
		{"up on exact stays", 10, 10, 4, fpmath.RoundUp, 25},
		{"zero denominator", 10, 10, 0, fpmath.RoundDown, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := fpmath.MulDiv(tc.a, tc.b, tc.d, tc.mode)
			if got != tc.want {
				t.Errorf("MulDiv(%d, %d, %d) = %d, want %d", tc.a, tc.b, tc.d, got, tc.want)
			}
		})
	}
}

func TestMulDiv_NoOverflow(t *testing.T) {
	got := fpmath.MulDiv(math.MaxInt64, 3, 3, fpmath.RoundDown)
	if got != math.MaxInt64 {
		t.Errorf("got %d, want MaxInt64", got)
	}
}

// ============================================================================
// Test: Share conversion
// ============================================================================

func TestSharesForDeposit_FirstDepositOneToOne(t *testing.T) {
	if got := fpmath.SharesForDeposit(10_000, 0, 0); got != 10_000 {
		t.Errorf("first deposit shares = %d, want 10000", got)
	}
}

func TestSharesForDeposit_RoundsDown(t *testing.T) {
	// 100 shares backed by 300 units: 10 units buys 3.33 shares.
	if got := fpmath.SharesForDeposit(10, 100, 300); got != 3 {
		t.Errorf("shares = %d, want 3", got)
	}
}

func TestAssetsForShares_RoundsDown(t *testing.T) {
	// 3 shares of 100 backed by 301 units is worth 9.03 units.
	if got := fpmath.AssetsForShares(3, 100, 301); got != 9 {
		t.Errorf("assets = %d, want 9", got)
	}
}

func TestShareRoundTrip_NeverGainsValue(t *testing.T) {
	totalShares, value := int64(1_000_003), int64(1_700_011)
	for _, amount := range []int64{1, 7, 999, 123_456_789} {
		shares := fpmath.SharesForDeposit(amount, totalShares, value)
		back := fpmath.AssetsForShares(shares, totalShares+shares, value+amount)
		if back > amount {
			t.Errorf("deposit %d redeemed for %d", amount, back)
		}
	}
}

// ============================================================================
// Test: Premium curve
// ============================================================================

func TestComputePremium_KnownValue(t *testing.T) {
	got := fpmath.ComputePremium(fpmath.PremiumInput{
		CoverAmount:  1_000,
		DurationDays: 30,
		Risk:         3,
		Capacity:     7_500,
	})
	if got != 3 {
		t.Errorf("premium = %d, want 3", got)
	}
}

func TestComputePremium_PositiveForTinyCover(t *testing.T) {
	got := fpmath.ComputePremium(fpmath.PremiumInput{
		CoverAmount:  1,
		DurationDays: 1,
		Risk:         1,
		Capacity:     1_000_000_000,
	})
	if got <= 0 {
		t.Errorf("premium = %d, want > 0", got)
	}
}

func TestComputePremium_SuperlinearInUtilization(t *testing.T) {
	price := func(locked int64) int64 {
		return fpmath.ComputePremium(fpmath.PremiumInput{
			CoverAmount:  1_000_000,
			DurationDays: 365,
			Risk:         5,
			Capacity:     10_000_000,
			TotalLocked:  locked,
		})
	}

	low, mid, high := price(0), price(4_000_000), price(8_000_000)
	if !(low < mid && mid < high) {
		t.Fatalf("premium not increasing: %d %d %d", low, mid, high)
	}
	if high-mid <= mid-low {
		t.Errorf("premium growth not superlinear: steps %d then %d", mid-low, high-mid)
	}
}

func TestComputePremium_ZeroCover(t *testing.T) {
	if got := fpmath.ComputePremium(fpmath.PremiumInput{DurationDays: 30, Risk: 3, Capacity: 100}); got != 0 {
		t.Errorf("premium = %d, want 0", got)
	}
}

func TestComputeReward(t *testing.T) {
	// 10% a year on 365_000 units for one day.
	got := fpmath.ComputeReward(365_000, 1_000, 24*3600)
	if got != 100 {
		t.Errorf("reward = %d, want 100", got)
	}
}
