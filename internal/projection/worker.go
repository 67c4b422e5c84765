package projection

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"CoverPool/internal/observability"

	"github.com/rs/zerolog"
)

// ProjectionOutput mirrors the data needed by projection workers.
// The orchestrator bridges between core.CoreOutput and this.
type ProjectionOutput struct {
	Sequence  int64
	Pool      PoolRow
	Positions []PositionRow
	Coverages []CoverageRow
	Claims    []ClaimRow
	Balances  []BalanceRow
	Activity  []ActivityEntry
}

type PoolRow struct {
	PoolID           uint64
	Asset            string
	TotalLiquidity   int64
	TotalLocked      int64
	TotalFromReserve int64
	TotalShares      int64
	Risk             uint8
	GovTokenAPR      int64
}

// PositionRow is a provider's post-command position. An empty row (no shares,
// nothing pending) removes the provider from the projection.
type PositionRow struct {
	PoolID           uint64
	Provider         string
	Shares           int64
	DepositTimestamp int64
	PendingShares    *int64
	UnlockAt         *int64
}

func (r PositionRow) Empty() bool {
	return r.Shares == 0 && r.PendingShares == nil
}

type CoverageRow struct {
	TokenID uint64
	PoolID  uint64
	Owner   string
	Value   int64
	Start   int64
	End     int64
	Status  string
}

type ClaimRow struct {
	DisputeID   uint64
	ClaimID     uint64
	PoolID      uint64
	TokenID     uint64
	Claimant    string
	Value       int64
	EvidenceURI string
	Outcome     string
	Ruled       bool
	FiledAt     int64
	RuledAt     int64
}

// BalanceRow is the absolute balance of an account after the command.
type BalanceRow struct {
	AccountPath string
	AssetID     uint16
	Balance     int64
}

// ProjectionWorker updates projection tables from processed commands.
// The projection channel is non-blocking with drop: projections are
// eventually consistent and every row carries absolute values, so the next
// update for the same key repairs a dropped one.
type ProjectionWorker struct {
	db        *sql.DB
	inputChan <-chan ProjectionOutput
	activity  *ActivityFeed
	metrics   *observability.Metrics
	logger    zerolog.Logger
	lastSeq   int64
}

func NewProjectionWorker(
	db *sql.DB,
	inputChan <-chan ProjectionOutput,
	activity *ActivityFeed,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *ProjectionWorker {
	return &ProjectionWorker{
		db:        db,
		inputChan: inputChan,
		activity:  activity,
		metrics:   metrics,
		logger:    logger.With().Str("component", "projection").Logger(),
		lastSeq:   -1,
	}
}

// Run starts the projection worker loop.
func (pw *ProjectionWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case output, ok := <-pw.inputChan:
			if !ok {
				return nil
			}

			if pw.activity != nil {
				for _, a := range output.Activity {
					pw.activity.AddEntry(a)
				}
			}

			start := time.Now()
			if err := pw.processOutput(ctx, output); err != nil {
				pw.logger.Warn().Err(err).Int64("sequence", output.Sequence).Msg("projection update failed")
				continue
			}
			if pw.metrics != nil {
				pw.metrics.ProjectionUpdateDur.WithLabelValues("main").Observe(time.Since(start).Seconds())
				pw.metrics.ProjectionSequence.Set(float64(output.Sequence))
				pw.metrics.ChannelSize.WithLabelValues("projection").Set(float64(len(pw.inputChan)))
			}

			pw.lastSeq = output.Sequence
		}
	}
}

// LastSequence returns the sequence of the last applied update.
func (pw *ProjectionWorker) LastSequence() int64 {
	return pw.lastSeq
}

func (pw *ProjectionWorker) processOutput(ctx context.Context, output ProjectionOutput) error {
	tx, err := pw.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := upsertPool(ctx, tx, output.Sequence, output.Pool); err != nil {
		return fmt.Errorf("pool projection: %w", err)
	}
	for _, p := range output.Positions {
		if err := upsertPosition(ctx, tx, output.Sequence, p); err != nil {
			return fmt.Errorf("position projection: %w", err)
		}
	}
	for _, c := range output.Coverages {
		if err := upsertCoverage(ctx, tx, output.Sequence, c); err != nil {
			return fmt.Errorf("coverage projection: %w", err)
		}
	}
	for _, c := range output.Claims {
		if err := upsertClaim(ctx, tx, output.Sequence, c); err != nil {
			return fmt.Errorf("claim projection: %w", err)
		}
	}
	for _, b := range output.Balances {
		if err := upsertBalance(ctx, tx, output.Sequence, b); err != nil {
			return fmt.Errorf("balance projection: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.watermark (worker_id, last_sequence, updated_at)
		VALUES ('main', $1, NOW())
		ON CONFLICT (worker_id) DO UPDATE SET last_sequence = $1, updated_at = NOW()
	`, output.Sequence); err != nil {
		return fmt.Errorf("watermark update: %w", err)
	}

	return tx.Commit()
}

func upsertPool(ctx context.Context, tx *sql.Tx, seq int64, p PoolRow) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.pools
			(pool_id, asset, total_liquidity, total_locked, total_from_reserve, total_shares, risk, gov_token_apr, last_sequence)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (pool_id) DO UPDATE SET
			total_liquidity = $3, total_locked = $4, total_from_reserve = $5,
			total_shares = $6, risk = $7, gov_token_apr = $8, last_sequence = $9
	`, int64(p.PoolID), p.Asset, p.TotalLiquidity, p.TotalLocked, p.TotalFromReserve,
		p.TotalShares, int16(p.Risk), p.GovTokenAPR, seq)
	return err
}

func upsertPosition(ctx context.Context, tx *sql.Tx, seq int64, p PositionRow) error {
	if p.Empty() {
		_, err := tx.ExecContext(ctx, `
			DELETE FROM projections.positions WHERE pool_id = $1 AND provider = $2
		`, int64(p.PoolID), p.Provider)
		return err
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.positions
			(pool_id, provider, shares, deposit_timestamp, pending_shares, unlock_at, last_sequence)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (pool_id, provider) DO UPDATE SET
			shares = $3, deposit_timestamp = $4, pending_shares = $5, unlock_at = $6, last_sequence = $7
	`, int64(p.PoolID), p.Provider, p.Shares, p.DepositTimestamp, p.PendingShares, p.UnlockAt, seq)
	return err
}

func upsertCoverage(ctx context.Context, tx *sql.Tx, seq int64, c CoverageRow) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.coverages
			(token_id, pool_id, owner, value, start_ts, end_ts, status, last_sequence)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (token_id) DO UPDATE SET
			owner = $3, value = $4, status = $7, last_sequence = $8
	`, int64(c.TokenID), int64(c.PoolID), c.Owner, c.Value, c.Start, c.End, c.Status, seq)
	return err
}

func upsertClaim(ctx context.Context, tx *sql.Tx, seq int64, c ClaimRow) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.claims
			(dispute_id, claim_id, pool_id, token_id, claimant, value, evidence_uri, outcome, ruled, filed_at, ruled_at, last_sequence)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (dispute_id) DO UPDATE SET
			outcome = $8, ruled = $9, ruled_at = $11, last_sequence = $12
	`, int64(c.DisputeID), int64(c.ClaimID), int64(c.PoolID), int64(c.TokenID), c.Claimant,
		c.Value, c.EvidenceURI, c.Outcome, c.Ruled, c.FiledAt, c.RuledAt, seq)
	return err
}

func upsertBalance(ctx context.Context, tx *sql.Tx, seq int64, b BalanceRow) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, asset_id, balance, last_sequence)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (account_path, asset_id)
		DO UPDATE SET balance = $3, last_sequence = $4
	`, b.AccountPath, int16(b.AssetID), b.Balance, seq)
	return err
}

// RebuildProjections truncates every projection table and writes a full
// read model of the replayed state in one transaction.
func RebuildProjections(ctx context.Context, db *sql.DB, full ProjectionOutput, logger zerolog.Logger) error {
	truncateStatements := []string{
		`TRUNCATE projections.pools`,
		`TRUNCATE projections.positions`,
		`TRUNCATE projections.coverages`,
		`TRUNCATE projections.claims`,
		`TRUNCATE projections.balances`,
		`DELETE FROM projections.watermark WHERE worker_id = 'main'`,
	}

	for _, stmt := range truncateStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("truncate failed: %w", err)
		}
	}

	if full.Sequence < 0 {
		logger.Info().Msg("projection rebuild complete (empty log)")
		return nil
	}

	pw := &ProjectionWorker{db: db, logger: logger}
	if err := pw.processOutput(ctx, full); err != nil {
		return fmt.Errorf("rebuild: %w", err)
	}

	logger.Info().Int64("sequence", full.Sequence).
		Int("positions", len(full.Positions)).
		Int("coverages", len(full.Coverages)).
		Int("claims", len(full.Claims)).
		Msg("projection rebuild complete")
	return nil
}
