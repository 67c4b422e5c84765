package config

import (
	"fmt"
	"time"

	"CoverPool/internal/state"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
)

// poolFile is the TOML layout of a pool catalogue:
//
//	[[pool]]
//	pool_id = 0
//	name = "Stablecoin depeg"
//	asset = "USDC"
//	risk = 3
//	meta_evidence = "ipfs://..."
type poolFile struct {
	Pools []poolEntry `toml:"pool"`
}

type poolEntry struct {
	PoolID          uint64 `toml:"pool_id"`
	Name            string `toml:"name"`
	Asset           string `toml:"asset"`
	Risk            uint8  `toml:"risk"`
	MetaEvidence    string `toml:"meta_evidence"`
	WithdrawalDelay string `toml:"withdrawal_delay"`
	TreasuryFeeBps  int64  `toml:"treasury_fee_bps"`
	MaxCoverageDays int64  `toml:"max_coverage_days"`
	GovTokenAPR     int64  `toml:"gov_token_apr"`
	Treasury        string `toml:"treasury"`
}

// LoadPools reads a pool catalogue file.
func LoadPools(path string) (map[uint64]state.PoolParams, error) {
	var f poolFile
	meta, err := toml.DecodeFile(path, &f)
	if err != nil {
		return nil, fmt.Errorf("pool catalogue %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("pool catalogue %s: unknown key %s", path, undecoded[0])
	}
	return f.params()
}

// DecodePools parses a pool catalogue from TOML text.
func DecodePools(data string) (map[uint64]state.PoolParams, error) {
	var f poolFile
	if _, err := toml.Decode(data, &f); err != nil {
		return nil, fmt.Errorf("pool catalogue: %w", err)
	}
	return f.params()
}

func (f poolFile) params() (map[uint64]state.PoolParams, error) {
	if len(f.Pools) == 0 {
		return nil, fmt.Errorf("pool catalogue has no pools")
	}

	out := make(map[uint64]state.PoolParams, len(f.Pools))
	for _, p := range f.Pools {
		if _, dup := out[p.PoolID]; dup {
			return nil, fmt.Errorf("pool catalogue: duplicate pool_id %d", p.PoolID)
		}
		params := state.PoolParams{
			PoolID:          p.PoolID,
			Name:            p.Name,
			Asset:           p.Asset,
			Risk:            state.RiskScore(p.Risk),
			MetaEvidence:    p.MetaEvidence,
			TreasuryFeeBps:  p.TreasuryFeeBps,
			MaxCoverageDays: p.MaxCoverageDays,
			GovTokenAPR:     p.GovTokenAPR,
		}
		if p.WithdrawalDelay != "" {
			d, err := time.ParseDuration(p.WithdrawalDelay)
			if err != nil {
				return nil, fmt.Errorf("pool %d: withdrawal_delay: %w", p.PoolID, err)
			}
			params.WithdrawalDelay = d
		}
		if p.Treasury != "" {
			if !common.IsHexAddress(p.Treasury) {
				return nil, fmt.Errorf("pool %d: treasury %q is not a hex address", p.PoolID, p.Treasury)
			}
			params.Treasury = common.HexToAddress(p.Treasury)
		}
		out[p.PoolID] = params
	}
	return out, nil
}
