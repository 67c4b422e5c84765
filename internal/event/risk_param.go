package event

import "CoverPool/internal/state"

// SetRisk updates the pool risk score (admin).
type SetRisk struct {
	Meta
	Risk state.RiskScore `json:"risk"`
}

func (s *SetRisk) CommandType() CommandType {
	return CommandTypeSetRisk
}

// SetGovTokenAPR updates the reward rate, in bps per year (admin).
type SetGovTokenAPR struct {
	Meta
	APR int64 `json:"apr"`
}

func (s *SetGovTokenAPR) CommandType() CommandType {
	return CommandTypeSetGovTokenAPR
}
