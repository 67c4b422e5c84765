package state

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// CoverageStatus is the lifecycle state of a coverage proof
type CoverageStatus uint8

const (
	CoverageActive CoverageStatus = iota
	CoverageClaimed
	CoveragePaidOut
	CoverageExpired
)

func (s CoverageStatus) String() string {
	switch s {
	case CoverageActive:
		return "Active"
	case CoverageClaimed:
		return "Claimed"
	case CoveragePaidOut:
		return "PaidOut"
	case CoverageExpired:
		return "Expired"
	default:
		return "Unknown"
	}
}

func (s CoverageStatus) Valid() bool {
	return s <= CoverageExpired
}

// CanTransitionTo validates status transitions. Expired is terminal.
func (s CoverageStatus) CanTransitionTo(next CoverageStatus) bool {
	if !next.Valid() {
		return false
	}
	return s != CoverageExpired
}

// ParseCoverageStatus maps a status name back to its value.
func ParseCoverageStatus(name string) (CoverageStatus, error) {
	for s := CoverageActive; s <= CoverageExpired; s++ {
		if s.String() == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown coverage status %q", name)
}

// CoverageProof is the registry's record of one coverage instance.
type CoverageProof struct {
	TokenID uint64
	Owner   common.Address
	Value   int64
	Start   int64 // unix seconds
	End     int64 // unix seconds
	PoolID  uint64
	Status  CoverageStatus
}

// Ended reports whether the coverage window has closed at now.
func (c *CoverageProof) Ended(now int64) bool {
	return now > c.End
}
