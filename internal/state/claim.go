package state

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

var ErrInvalidRuling = errors.New("invalid ruling")

// Ruling is the arbitrator's decision on a claim
type Ruling uint8

const (
	RulingAbstain Ruling = iota
	RulingYes
	RulingNo
)

func (r Ruling) String() string {
	switch r {
	case RulingAbstain:
		return "Abstain"
	case RulingYes:
		return "Yes"
	case RulingNo:
		return "No"
	default:
		return "Unknown"
	}
}

// ValidateRuling rejects values outside the closed ruling set.
func ValidateRuling(r Ruling) error {
	if r > RulingNo {
		return fmt.Errorf("%w: %d", ErrInvalidRuling, r)
	}
	return nil
}

// Claim is filed against a coverage proof and keyed by the dispute id the
// arbitrator issued for it. Value is the covered value at filing time.
type Claim struct {
	ClaimID     uint64
	DisputeID   uint64
	Claimant    common.Address
	TokenID     uint64
	PoolID      uint64
	Value       int64
	Asset       string
	EvidenceURI string
	Ruling      Ruling
	Ruled       bool
	FiledAt     int64
	RuledAt     int64
}

// Outcome names the claim state machine position.
func (c *Claim) Outcome() string {
	if !c.Ruled {
		return "Filed"
	}
	switch c.Ruling {
	case RulingYes:
		return "PaidOut"
	case RulingNo:
		return "Rejected"
	default:
		return "Abstain"
	}
}

// CanonicalBytes returns deterministic serialization for hashing
func (c *Claim) CanonicalBytes() []byte {
	buf := make([]byte, 0, 96)
	buf = appendInt64LE(buf, int64(c.ClaimID))
	buf = appendInt64LE(buf, int64(c.DisputeID))
	buf = append(buf, c.Claimant.Bytes()...)
	buf = appendInt64LE(buf, int64(c.TokenID))
	buf = appendInt64LE(buf, c.Value)
	buf = append(buf, byte(c.Ruling))
	if c.Ruled {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	return buf
}
