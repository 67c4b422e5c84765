package event

// BuyCoverage purchases coverage of CoverAmount for DurationDays.
type BuyCoverage struct {
	Meta
	CoverAmount  int64 `json:"cover_amount"`
	DurationDays int64 `json:"duration_days"`
}

func (b *BuyCoverage) CommandType() CommandType {
	return CommandTypeBuyCoverage
}

// ReleaseExpiredCoverage frees the capital locked by a lapsed coverage proof.
type ReleaseExpiredCoverage struct {
	Meta
	TokenID uint64 `json:"token_id"`
}

func (r *ReleaseExpiredCoverage) CommandType() CommandType {
	return CommandTypeReleaseExpiredCoverage
}

// AdjustCoverage changes the covered value of an active proof (admin).
type AdjustCoverage struct {
	Meta
	TokenID  uint64 `json:"token_id"`
	NewValue int64  `json:"new_value"`
}

func (a *AdjustCoverage) CommandType() CommandType {
	return CommandTypeAdjustCoverage
}
