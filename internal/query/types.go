package query

// PoolResponse is the projected pool plus values derived at query time.
type PoolResponse struct {
	PoolID           uint64 `json:"pool_id"`
	Asset            string `json:"asset"`
	TotalLiquidity   int64  `json:"total_liquidity"`
	TotalLocked      int64  `json:"total_locked"`
	TotalFromReserve int64  `json:"total_from_reserve"`
	TotalShares      int64  `json:"total_shares"`
	Risk             uint8  `json:"risk"`
	GovTokenAPR      int64  `json:"gov_token_apr"`

	// Derived values (computed at query time)
	Capacity       int64 `json:"capacity"`
	FreeLiquidity  int64 `json:"free_liquidity"`
	UtilizationBps int64 `json:"utilization_bps"`

	AsOfSequence int64 `json:"as_of_sequence"`
}

// PositionResponse represents an LP position for API queries.
type PositionResponse struct {
	PoolID           uint64 `json:"pool_id"`
	Provider         string `json:"provider"`
	Shares           int64  `json:"shares"`
	DepositTimestamp int64  `json:"deposit_timestamp"`
	PendingShares    *int64 `json:"pending_shares,omitempty"`
	UnlockAt         *int64 `json:"unlock_at,omitempty"`
	AsOfSequence     int64  `json:"as_of_sequence"`
}

// CoverageResponse represents a coverage proof for API queries.
type CoverageResponse struct {
	TokenID      uint64 `json:"token_id"`
	PoolID       uint64 `json:"pool_id"`
	Owner        string `json:"owner"`
	Value        int64  `json:"value"`
	Start        int64  `json:"start"`
	End          int64  `json:"end"`
	Status       string `json:"status"`
	AsOfSequence int64  `json:"as_of_sequence"`
}

// ClaimResponse represents a claim for API queries.
type ClaimResponse struct {
	DisputeID    uint64 `json:"dispute_id"`
	ClaimID      uint64 `json:"claim_id"`
	PoolID       uint64 `json:"pool_id"`
	TokenID      uint64 `json:"token_id"`
	Claimant     string `json:"claimant"`
	Value        int64  `json:"value"`
	EvidenceURI  string `json:"evidence_uri"`
	Outcome      string `json:"outcome"`
	Ruled        bool   `json:"ruled"`
	FiledAt      int64  `json:"filed_at"`
	RuledAt      int64  `json:"ruled_at"`
	AsOfSequence int64  `json:"as_of_sequence"`
}

// BalanceResponse is one ledger account. A participant wallet balance is its
// net flow with the pool: negative when the participant has paid in more
// than it has received.
type BalanceResponse struct {
	AccountPath  string `json:"account_path"`
	AssetID      uint16 `json:"asset_id"`
	Balance      int64  `json:"balance"`
	AsOfSequence int64  `json:"as_of_sequence"`
}

// JournalHistoryEntry represents a journal entry for API queries.
type JournalHistoryEntry struct {
	JournalID     string `json:"journal_id"`
	BatchID       string `json:"batch_id"`
	EventRef      string `json:"event_ref"`
	Sequence      int64  `json:"sequence"`
	DebitAccount  string `json:"debit_account"`
	CreditAccount string `json:"credit_account"`
	AssetID       uint16 `json:"asset_id"`
	Amount        int64  `json:"amount"`
	JournalType   int32  `json:"journal_type"`
	Timestamp     int64  `json:"timestamp"`
}

// IntegrityReport is the result of an integrity verification check.
type IntegrityReport struct {
	IsHealthy        bool              `json:"is_healthy"`
	HashChainBreaks  []int64           `json:"hash_chain_breaks,omitempty"`
	UnbalancedAssets []UnbalancedAsset `json:"unbalanced_assets,omitempty"`
}

// UnbalancedAsset represents an asset with non-zero global balance sum.
type UnbalancedAsset struct {
	AssetID   uint16 `json:"asset_id"`
	Imbalance int64  `json:"imbalance"`
}
