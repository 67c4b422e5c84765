package state

import (
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

var ErrInvalidRisk = errors.New("invalid risk")

// RiskScore drives premium pricing. Valid scores are 1 through 9.
type RiskScore uint8

const (
	MinRisk     RiskScore = 1
	MaxRisk     RiskScore = 9
	DefaultRisk RiskScore = 5
)

func ValidateRisk(r RiskScore) error {
	if r < MinRisk || r > MaxRisk {
		return fmt.Errorf("%w: %d not in [%d, %d]", ErrInvalidRisk, r, MinRisk, MaxRisk)
	}
	return nil
}

// PoolParams is the static configuration of one insurance pool.
type PoolParams struct {
	PoolID          uint64
	Name            string
	Asset           string
	Risk            RiskScore
	MetaEvidence    string
	WithdrawalDelay time.Duration
	TreasuryFeeBps  int64
	MaxCoverageDays int64
	GovTokenAPR     int64
	Treasury        common.Address
}

const (
	DefaultWithdrawalDelay = 60 * time.Second
	DefaultTreasuryFeeBps  = 1_000
	DefaultMaxCoverageDays = 365
	DefaultGovTokenAPR     = 1_000
)

// DefaultPools is the pool catalogue used when no file is configured.
var DefaultPools = map[uint64]PoolParams{
	0: {PoolID: 0, Name: "Stablecoin depeg", Asset: "USDC", Risk: 3, MetaEvidence: "ipfs://meta-evidence/usdc-depeg.json"},
	1: {PoolID: 1, Name: "Wrapped bitcoin custody", Asset: "WBTC", Risk: 5, MetaEvidence: "ipfs://meta-evidence/wbtc-custody.json"},
	2: {PoolID: 2, Name: "Euro stablecoin depeg", Asset: "EURS", Risk: 7, MetaEvidence: "ipfs://meta-evidence/eurs-depeg.json"},
	3: {PoolID: 3, Name: "Tether depeg", Asset: "USDT", Risk: 2, MetaEvidence: "ipfs://meta-evidence/usdt-depeg.json"},
}

// WithDefaults fills zero-valued tunables.
func (p PoolParams) WithDefaults() PoolParams {
	if p.Risk == 0 {
		p.Risk = DefaultRisk
	}
	if p.WithdrawalDelay == 0 {
		p.WithdrawalDelay = DefaultWithdrawalDelay
	}
	if p.TreasuryFeeBps == 0 {
		p.TreasuryFeeBps = DefaultTreasuryFeeBps
	}
	if p.MaxCoverageDays == 0 {
		p.MaxCoverageDays = DefaultMaxCoverageDays
	}
	if p.GovTokenAPR == 0 {
		p.GovTokenAPR = DefaultGovTokenAPR
	}
	return p
}

// ValidatePoolParams checks that pool parameters are within valid ranges.
func ValidatePoolParams(p PoolParams) error {
	if p.Asset == "" {
		return fmt.Errorf("pool %d: asset must be set", p.PoolID)
	}
	if err := ValidateRisk(p.Risk); err != nil {
		return fmt.Errorf("pool %d: %w", p.PoolID, err)
	}
	if p.WithdrawalDelay < 0 {
		return fmt.Errorf("pool %d: withdrawal delay must be >= 0, got %s", p.PoolID, p.WithdrawalDelay)
	}
	if p.TreasuryFeeBps < 0 || p.TreasuryFeeBps > 10_000 {
		return fmt.Errorf("pool %d: treasury fee must be in [0, 10000] bps, got %d", p.PoolID, p.TreasuryFeeBps)
	}
	if p.MaxCoverageDays <= 0 {
		return fmt.Errorf("pool %d: max coverage days must be > 0, got %d", p.PoolID, p.MaxCoverageDays)
	}
	if p.GovTokenAPR < 0 {
		return fmt.Errorf("pool %d: governance token apr must be >= 0, got %d", p.PoolID, p.GovTokenAPR)
	}
	return nil
}
