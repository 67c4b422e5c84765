package event

import "CoverPool/internal/state"

// CreateClaim files a claim against a coverage proof and opens a dispute.
type CreateClaim struct {
	Meta
	TokenID        uint64 `json:"token_id"`
	EvidenceURI    string `json:"evidence_uri"`
	ArbitrationFee int64  `json:"arbitration_fee"`
}

func (c *CreateClaim) CommandType() CommandType {
	return CommandTypeCreateClaim
}

// Rule delivers the arbitrator's ruling for a dispute.
type Rule struct {
	Meta
	DisputeID uint64       `json:"dispute_id"`
	Ruling    state.Ruling `json:"ruling"`
}

func (r *Rule) CommandType() CommandType {
	return CommandTypeRule
}
