package query

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"CoverPool/internal/projection"
	"CoverPool/internal/state"

	"github.com/ethereum/go-ethereum/common"
)

var ErrNotFound = errors.New("not found")

// QueryService provides read-only access to projection tables. Queries are
// served over HTTP/JSON via the gateway mux; all responses include
// as_of_sequence for freshness semantics.
type QueryService struct {
	db       *sql.DB
	activity *projection.ActivityFeed
}

func NewQueryService(db *sql.DB, activity *projection.ActivityFeed) *QueryService {
	return &QueryService{db: db, activity: activity}
}

// GetPool returns the projected pool with capacity and utilization derived
// from it.
func (qs *QueryService) GetPool(ctx context.Context, poolID uint64) (*PoolResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	var (
		p    PoolResponse
		risk int16
	)
	err = qs.db.QueryRowContext(ctx, `
		SELECT asset, total_liquidity, total_locked, total_from_reserve, total_shares, risk, gov_token_apr
		FROM projections.pools
		WHERE pool_id = $1
	`, int64(poolID)).Scan(
		&p.Asset, &p.TotalLiquidity, &p.TotalLocked, &p.TotalFromReserve,
		&p.TotalShares, &risk, &p.GovTokenAPR,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("pool %d: %w", poolID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	p.PoolID = poolID
	p.Risk = uint8(risk)
	p.AsOfSequence = asOfSeq
	deriveCapacity(&p)
	return &p, nil
}

func deriveCapacity(p *PoolResponse) {
	st := state.PoolState{TotalLiquidity: p.TotalLiquidity, TotalLocked: p.TotalLocked}
	p.Capacity = st.Capacity()
	p.FreeLiquidity = st.FreeLiquidity()
	p.UtilizationBps = st.UtilizationBps()
}

// GetPosition returns a provider's LP position.
func (qs *QueryService) GetPosition(ctx context.Context, poolID uint64, provider common.Address) (*PositionResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	var (
		p                 PositionResponse
		pending, unlockAt sql.NullInt64
	)
	err = qs.db.QueryRowContext(ctx, `
		SELECT shares, deposit_timestamp, pending_shares, unlock_at
		FROM projections.positions
		WHERE pool_id = $1 AND provider = $2
	`, int64(poolID), provider.Hex()).Scan(&p.Shares, &p.DepositTimestamp, &pending, &unlockAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("position %s: %w", provider.Hex(), ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	p.PoolID = poolID
	p.Provider = provider.Hex()
	p.AsOfSequence = asOfSeq
	if pending.Valid {
		p.PendingShares = &pending.Int64
	}
	if unlockAt.Valid {
		p.UnlockAt = &unlockAt.Int64
	}
	return &p, nil
}

// GetCoverage returns one coverage proof by token id.
func (qs *QueryService) GetCoverage(ctx context.Context, tokenID uint64) (*CoverageResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	c := CoverageResponse{TokenID: tokenID, AsOfSequence: asOfSeq}
	var poolID int64
	err = qs.db.QueryRowContext(ctx, `
		SELECT pool_id, owner, value, start_ts, end_ts, status
		FROM projections.coverages
		WHERE token_id = $1
	`, int64(tokenID)).Scan(&poolID, &c.Owner, &c.Value, &c.Start, &c.End, &c.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("coverage %d: %w", tokenID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	c.PoolID = uint64(poolID)
	return &c, nil
}

// ListCoverages returns an owner's coverage proofs, newest first.
func (qs *QueryService) ListCoverages(ctx context.Context, owner common.Address, limit int) ([]CoverageResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := qs.db.QueryContext(ctx, `
		SELECT token_id, pool_id, value, start_ts, end_ts, status
		FROM projections.coverages
		WHERE owner = $1
		ORDER BY token_id DESC
		LIMIT $2
	`, owner.Hex(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CoverageResponse
	for rows.Next() {
		c := CoverageResponse{Owner: owner.Hex(), AsOfSequence: asOfSeq}
		var tokenID, poolID int64
		if err := rows.Scan(&tokenID, &poolID, &c.Value, &c.Start, &c.End, &c.Status); err != nil {
			return nil, err
		}
		c.TokenID = uint64(tokenID)
		c.PoolID = uint64(poolID)
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetClaim returns one claim by dispute id.
func (qs *QueryService) GetClaim(ctx context.Context, disputeID uint64) (*ClaimResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := qs.db.QueryContext(ctx, claimSelect+` WHERE dispute_id = $1`, int64(disputeID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	claims, err := scanClaims(rows, asOfSeq)
	if err != nil {
		return nil, err
	}
	if len(claims) == 0 {
		return nil, fmt.Errorf("claim %d: %w", disputeID, ErrNotFound)
	}
	return &claims[0], nil
}

// ListClaims returns a claimant's claims, newest first.
func (qs *QueryService) ListClaims(ctx context.Context, claimant common.Address, limit int) ([]ClaimResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := qs.db.QueryContext(ctx,
		claimSelect+` WHERE claimant = $1 ORDER BY dispute_id DESC LIMIT $2`,
		claimant.Hex(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanClaims(rows, asOfSeq)
}

const claimSelect = `
	SELECT dispute_id, claim_id, pool_id, token_id, claimant, value,
	       evidence_uri, outcome, ruled, filed_at, ruled_at
	FROM projections.claims`

func scanClaims(rows *sql.Rows, asOfSeq int64) ([]ClaimResponse, error) {
	var out []ClaimResponse
	for rows.Next() {
		c := ClaimResponse{AsOfSequence: asOfSeq}
		var disputeID, claimID, poolID, tokenID int64
		if err := rows.Scan(
			&disputeID, &claimID, &poolID, &tokenID, &c.Claimant, &c.Value,
			&c.EvidenceURI, &c.Outcome, &c.Ruled, &c.FiledAt, &c.RuledAt,
		); err != nil {
			return nil, err
		}
		c.DisputeID = uint64(disputeID)
		c.ClaimID = uint64(claimID)
		c.PoolID = uint64(poolID)
		c.TokenID = uint64(tokenID)
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetBalances returns every projected ledger account of a participant.
func (qs *QueryService) GetBalances(ctx context.Context, owner common.Address) ([]BalanceResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := qs.db.QueryContext(ctx, `
		SELECT account_path, asset_id, balance
		FROM projections.balances
		WHERE account_path LIKE $1
		ORDER BY account_path
	`, participantPrefix(owner))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []BalanceResponse
	for rows.Next() {
		b := BalanceResponse{AsOfSequence: asOfSeq}
		var assetID int16
		if err := rows.Scan(&b.AccountPath, &assetID, &b.Balance); err != nil {
			return nil, err
		}
		b.AssetID = uint16(assetID)
		out = append(out, b)
	}
	return out, rows.Err()
}

// GetJournalHistory returns journal entries touching a participant, newest
// first, with cursor pagination on sequence.
func (qs *QueryService) GetJournalHistory(
	ctx context.Context,
	owner common.Address,
	limit int,
	beforeSequence *int64,
) ([]JournalHistoryEntry, error) {
	query := `
		SELECT journal_id, batch_id, event_ref, sequence,
		       debit_account, credit_account, asset_id, amount, journal_type, timestamp
		FROM event_log.journal
		WHERE (debit_account LIKE $1 OR credit_account LIKE $1)
	`
	args := []any{participantPrefix(owner)}
	argIdx := 2

	if beforeSequence != nil {
		query += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, *beforeSequence)
		argIdx++
	}

	query += " ORDER BY sequence DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []JournalHistoryEntry
	for rows.Next() {
		var e JournalHistoryEntry
		if err := rows.Scan(
			&e.JournalID, &e.BatchID, &e.EventRef, &e.Sequence,
			&e.DebitAccount, &e.CreditAccount, &e.AssetID, &e.Amount,
			&e.JournalType, &e.Timestamp,
		); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// GetActivity returns the recent in-memory activity of an account.
func (qs *QueryService) GetActivity(owner common.Address, limit int) []projection.ActivityEntry {
	if qs.activity == nil {
		return nil
	}
	return qs.activity.QueryByAccount(owner.Hex(), limit)
}

// --- Admin APIs ---

// VerifyIntegrity checks hash chain continuity of the log and that projected
// balances sum to zero per asset.
func (qs *QueryService) VerifyIntegrity(ctx context.Context) (*IntegrityReport, error) {
	report := &IntegrityReport{}

	rows, err := qs.db.QueryContext(ctx, `
		SELECT e1.sequence
		FROM event_log.events e1
		LEFT JOIN event_log.events e2 ON e2.sequence = e1.sequence - 1
		WHERE e1.sequence > 0 AND (e2.sequence IS NULL OR e1.prev_hash != e2.state_hash)
		ORDER BY e1.sequence
		LIMIT 10
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var seq int64
		if err := rows.Scan(&seq); err != nil {
			return nil, err
		}
		report.HashChainBreaks = append(report.HashChainBreaks, seq)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	balanceRows, err := qs.db.QueryContext(ctx, `
		SELECT asset_id, SUM(balance) AS total
		FROM projections.balances
		GROUP BY asset_id
		HAVING SUM(balance) != 0
	`)
	if err != nil {
		return nil, err
	}
	defer balanceRows.Close()

	for balanceRows.Next() {
		var assetID int16
		var total int64
		if err := balanceRows.Scan(&assetID, &total); err != nil {
			return nil, err
		}
		report.UnbalancedAssets = append(report.UnbalancedAssets, UnbalancedAsset{
			AssetID:   uint16(assetID),
			Imbalance: total,
		})
	}
	if err := balanceRows.Err(); err != nil {
		return nil, err
	}

	report.IsHealthy = len(report.HashChainBreaks) == 0 && len(report.UnbalancedAssets) == 0
	return report, nil
}

// --- helpers ---

func (qs *QueryService) getWatermark(ctx context.Context) (int64, error) {
	var seq int64
	err := qs.db.QueryRowContext(ctx, `
		SELECT last_sequence FROM projections.watermark WHERE worker_id = 'main'
	`).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return -1, nil
	}
	return seq, err
}

// participantPrefix matches every account path of a participant.
func participantPrefix(owner common.Address) string {
	return fmt.Sprintf("participant:%s:%%", owner.Hex())
}
