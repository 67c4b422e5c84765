package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"CoverPool/internal/core"
	"CoverPool/internal/event"
	"CoverPool/internal/observability"
	"CoverPool/internal/persistence"
	"CoverPool/internal/projection"

	"github.com/rs/zerolog"
)

const replayPageSize = 1000

// recoverState rebuilds in-memory state by replaying the whole command log. A
// stored checkpoint is verified when replay passes its sequence.
func recoverState(
	ctx context.Context,
	snapMgr *persistence.SnapshotManager,
	proc *core.Processor,
	activity *projection.ActivityFeed,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) error {
	start := time.Now()

	head, err := snapMgr.GetLatestSequence(ctx)
	if err != nil {
		return fmt.Errorf("read log head: %w", err)
	}
	snap, err := snapMgr.LoadLatestSnapshot(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to load snapshot, replaying without checkpoint")
		snap = nil
	}
	logger.Info().Int64("log_head", head).Bool("checkpoint", snap != nil).Msg("replaying command log")

	if snap != nil && snap.Sequence <= head {
		if err := replayRange(ctx, snapMgr, proc, activity, 0, snap.Sequence); err != nil {
			return err
		}
		if err := proc.VerifySnapshot(toCoreSnapshot(snap)); err != nil {
			return fmt.Errorf("verify checkpoint at seq %d: %w", snap.Sequence, err)
		}
		if err := snapMgr.MarkVerified(ctx, snap.Sequence); err != nil {
			logger.Warn().Err(err).Int64("sequence", snap.Sequence).Msg("mark checkpoint verified")
		}
		logger.Info().Int64("sequence", snap.Sequence).Msg("checkpoint verified against replay")
	} else if snap != nil {
		logger.Warn().Int64("checkpoint", snap.Sequence).Int64("log_head", head).
			Msg("checkpoint is ahead of the log, skipping verification")
	}

	if err := replayRange(ctx, snapMgr, proc, activity, proc.GetSequence(), head); err != nil {
		return err
	}

	if metrics != nil {
		metrics.ReplayDuration.Set(time.Since(start).Seconds())
	}
	logger.Info().Int64("next_sequence", proc.GetSequence()).Dur("took", time.Since(start)).Msg("replay complete")
	return nil
}

// replayRange replays logged commands from..until inclusive.
func replayRange(
	ctx context.Context,
	snapMgr *persistence.SnapshotManager,
	proc *core.Processor,
	activity *projection.ActivityFeed,
	from, until int64,
) error {
	for from <= until {
		rows, err := snapMgr.LoadEventsFrom(ctx, from, replayPageSize)
		if err != nil {
			return fmt.Errorf("load log from seq %d: %w", from, err)
		}
		if len(rows) == 0 {
			return nil
		}

		for _, row := range rows {
			if row.Sequence > until {
				return nil
			}
			if err := replayRow(ctx, proc, row); err != nil {
				return err
			}
			if activity != nil && len(row.Events) > 0 {
				if events, err := event.UnmarshalEvents(row.Events); err == nil {
					for _, a := range projection.ActivityFromEvents(row.Sequence, row.Timestamp.Unix(), events) {
						activity.AddEntry(a)
					}
				}
			}
		}
		from = rows[len(rows)-1].Sequence + 1
	}
	return nil
}

func replayRow(ctx context.Context, proc *core.Processor, row persistence.EventRow) error {
	ct := event.ParseCommandType(row.CommandType)
	cmd, err := event.DecodeCommand(ct, row.Payload)
	if err != nil {
		return fmt.Errorf("decode seq %d: %w", row.Sequence, err)
	}
	var expected [32]byte
	copy(expected[:], row.StateHash)
	return proc.Replay(ctx, cmd, row.Sequence, expected)
}

func toCoreSnapshot(snap *persistence.SnapshotData) *core.SnapshotState {
	cs := &core.SnapshotState{
		Sequence:        snap.Sequence,
		Balances:        snap.Balances,
		IdempotencyKeys: snap.IdempotencyKeys,
	}
	copy(cs.StateHash[:], snap.StateHash)
	if len(snap.Pool) > 0 {
		// An undecodable pool section only loses the pool state comparison.
		_ = json.Unmarshal(snap.Pool, &cs.Pool)
	}
	return cs
}

// saveSnapshot persists a checkpoint captured by the processor.
func saveSnapshot(
	ctx context.Context,
	snapMgr *persistence.SnapshotManager,
	snap *core.SnapshotState,
	metrics *observability.Metrics,
) error {
	start := time.Now()

	poolJSON, err := json.Marshal(snap.Pool)
	if err != nil {
		return fmt.Errorf("encode pool snapshot: %w", err)
	}
	data := &persistence.SnapshotData{
		Sequence:        snap.Sequence,
		StateHash:       snap.StateHash[:],
		Pool:            poolJSON,
		Balances:        snap.Balances,
		IdempotencyKeys: snap.IdempotencyKeys,
		CreatedAt:       time.Now().UTC(),
	}
	size, err := snapMgr.SaveSnapshot(ctx, data)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}

	if metrics != nil {
		metrics.SnapshotTaken.Inc()
		metrics.SnapshotDuration.Observe(time.Since(start).Seconds())
		metrics.SnapshotSizeBytes.Set(float64(size))
		metrics.SnapshotLastSeq.Set(float64(snap.Sequence))
	}
	return nil
}

// runSnapshotSaver writes checkpoints handed over by the processor loop.
func runSnapshotSaver(
	ctx context.Context,
	in <-chan *core.SnapshotState,
	snapMgr *persistence.SnapshotManager,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case snap := <-in:
			if err := saveSnapshot(ctx, snapMgr, snap, metrics); err != nil {
				logger.Warn().Err(err).Int64("sequence", snap.Sequence).Msg("periodic snapshot failed")
				continue
			}
			logger.Info().Int64("sequence", snap.Sequence).Msg("periodic snapshot saved")
		}
	}
}
