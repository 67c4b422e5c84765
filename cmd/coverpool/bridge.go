package main

import (
	"CoverPool/internal/core"
	"CoverPool/internal/event"
	"CoverPool/internal/ledger"
	"CoverPool/internal/persistence"
	"CoverPool/internal/projection"
	"CoverPool/internal/state"

	"github.com/rs/zerolog"
)

// The core package cannot import persistence or projection, so its outputs
// are converted to their row types here.

// toPersistence always returns a writable row; an event encoding error
// leaves the row without events.
func toPersistence(output core.CoreOutput) (persistence.CoreOutput, error) {
	env := output.Envelope
	events, err := event.MarshalEvents(env.Events)

	out := persistence.CoreOutput{
		EventRow: persistence.EventRow{
			Sequence:       env.Sequence,
			CommandType:    env.CommandType.String(),
			IdempotencyKey: env.IdempotencyKey,
			PoolID:         env.PoolID,
			Caller:         env.Caller.Hex(),
			Payload:        env.Payload,
			Events:         events,
			StateHash:      env.StateHash[:],
			PrevHash:       env.PrevHash[:],
			Timestamp:      env.Timestamp,
		},
	}
	if output.Batch != nil {
		out.JournalRows = journalRows(output.Batch)
	}
	return out, err
}

func journalRows(batch *ledger.Batch) []persistence.JournalRow {
	rows := make([]persistence.JournalRow, 0, len(batch.Journals))
	for _, j := range batch.Journals {
		rows = append(rows, persistence.JournalRow{
			JournalID:     j.JournalID.String(),
			BatchID:       j.BatchID.String(),
			EventRef:      j.EventRef,
			Sequence:      j.Sequence,
			DebitAccount:  j.DebitAccount.AccountPath(),
			CreditAccount: j.CreditAccount.AccountPath(),
			AssetID:       uint16(j.AssetID),
			Amount:        j.Amount,
			JournalType:   int32(j.JournalType),
			Timestamp:     j.Timestamp,
		})
	}
	return rows
}

// toProjection converts a read model into projection rows. activity may be
// nil, as it is for full rebuilds.
func toProjection(sequence int64, p *core.Projection, activity []projection.ActivityEntry) projection.ProjectionOutput {
	out := projection.ProjectionOutput{
		Sequence: sequence,
		Pool: projection.PoolRow{
			PoolID:           p.Pool.PoolID,
			Asset:            p.Pool.Asset,
			TotalLiquidity:   p.Pool.TotalLiquidity,
			TotalLocked:      p.Pool.TotalLocked,
			TotalFromReserve: p.Pool.TotalFromReserve,
			TotalShares:      p.Pool.TotalShares,
			Risk:             uint8(p.Pool.Risk),
			GovTokenAPR:      p.Pool.GovTokenAPR,
		},
		Activity: activity,
	}

	for _, pos := range p.Positions {
		out.Positions = append(out.Positions, positionRow(p.Pool.PoolID, pos))
	}
	for _, c := range p.Coverages {
		out.Coverages = append(out.Coverages, projection.CoverageRow{
			TokenID: c.TokenID,
			PoolID:  c.PoolID,
			Owner:   c.Owner.Hex(),
			Value:   c.Value,
			Start:   c.Start,
			End:     c.End,
			Status:  c.Status.String(),
		})
	}
	for _, c := range p.Claims {
		out.Claims = append(out.Claims, projection.ClaimRow{
			DisputeID:   c.DisputeID,
			ClaimID:     c.ClaimID,
			PoolID:      c.PoolID,
			TokenID:     c.TokenID,
			Claimant:    c.Claimant.Hex(),
			Value:       c.Value,
			EvidenceURI: c.EvidenceURI,
			Outcome:     c.Outcome(),
			Ruled:       c.Ruled,
			FiledAt:     c.FiledAt,
			RuledAt:     c.RuledAt,
		})
	}
	for key, balance := range p.Balances {
		out.Balances = append(out.Balances, projection.BalanceRow{
			AccountPath: key.AccountPath(),
			AssetID:     uint16(key.AssetID),
			Balance:     balance,
		})
	}
	return out
}

func positionRow(poolID uint64, pos state.LPPosition) projection.PositionRow {
	row := projection.PositionRow{
		PoolID:           poolID,
		Provider:         pos.Provider.Hex(),
		Shares:           pos.Shares,
		DepositTimestamp: pos.DepositTimestamp,
	}
	if pos.Pending != nil {
		shares, unlock := pos.Pending.Shares, pos.Pending.UnlockAt
		row.PendingShares = &shares
		row.UnlockAt = &unlock
	}
	return row
}

// bridgePersistence converts core outputs for the persistence worker. The
// send blocks so the log never loses an accepted command. It closes out
// once in is closed.
func bridgePersistence(in <-chan core.CoreOutput, out chan<- persistence.CoreOutput, logger zerolog.Logger) {
	defer close(out)
	for output := range in {
		row, err := toPersistence(output)
		if err != nil {
			logger.Error().Err(err).Int64("sequence", output.Envelope.Sequence).Msg("encode events")
		}
		out <- row
	}
}

// bridgeProjection converts core outputs for the projection worker, dropping
// when the worker falls behind.
func bridgeProjection(in <-chan core.CoreOutput, out chan<- projection.ProjectionOutput, onDrop func()) {
	defer close(out)
	for output := range in {
		if output.Projection == nil {
			continue
		}
		env := output.Envelope
		activity := projection.ActivityFromEvents(env.Sequence, env.Timestamp.Unix(), env.Events)
		select {
		case out <- toProjection(env.Sequence, output.Projection, activity):
		default:
			if onDrop != nil {
				onDrop()
			}
		}
	}
}
