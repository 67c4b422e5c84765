package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for CoverPool.
type Metrics struct {
	// --- Core processing ---
	CoreCommandsApplied  *prometheus.CounterVec
	CoreCommandsRejected *prometheus.CounterVec
	CoreCommandDuration  *prometheus.HistogramVec
	CoreJournals         *prometheus.CounterVec
	CoreStateHashDur     prometheus.Histogram
	CoreSequence         prometheus.Gauge

	// --- Pool ---
	PoolTotalLiquidity prometheus.Gauge
	PoolTotalLocked    prometheus.Gauge
	PoolFromReserve    prometheus.Gauge
	PoolUtilization    prometheus.Gauge
	PoolTotalShares    prometheus.Gauge
	PremiumsCollected  prometheus.Counter
	ClaimsFiled        prometheus.Counter
	ClaimsRuled        *prometheus.CounterVec
	ClaimsPaidAmount   prometheus.Counter
	ReserveBorrowed    prometheus.Counter
	ReserveRepaid      prometheus.Counter

	// --- Channel & backpressure ---
	ChannelSize         *prometheus.GaugeVec
	ProjectionDrops     prometheus.Counter
	PublishDrops        prometheus.Counter
	PersistBackpressure prometheus.Counter

	// --- Idempotency ---
	IdempotencyDuplicates *prometheus.CounterVec
	DedupLRUSize          prometheus.Gauge
	DedupTier2Errors      prometheus.Counter

	// --- Persistence ---
	PersistEventsWritten   prometheus.Counter
	PersistJournalsWritten prometheus.Counter
	PersistBatchDur        prometheus.Histogram
	PersistBatchSize       prometheus.Histogram
	PersistErrors          *prometheus.CounterVec
	PersistRetry           prometheus.Counter
	PersistLastSequence    prometheus.Gauge

	// --- Projection ---
	ProjectionUpdateDur *prometheus.HistogramVec
	ProjectionSequence  prometheus.Gauge

	// --- Snapshot & replay ---
	SnapshotTaken     prometheus.Counter
	SnapshotDuration  prometheus.Histogram
	SnapshotSizeBytes prometheus.Gauge
	SnapshotLastSeq   prometheus.Gauge
	ReplayEventsTotal prometheus.Counter
	ReplayDuration    prometheus.Gauge

	// --- Ingestion ---
	IngestReceived    *prometheus.CounterVec
	IngestInvalid     *prometheus.CounterVec
	IngestRateLimited prometheus.Counter

	// --- Query API ---
	QueryRequests *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
	QueryErrors   *prometheus.CounterVec
}

// NewMetrics creates all metrics and registers them with reg. Pass
// prometheus.DefaultRegisterer in production and a fresh registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	latencyBuckets := []float64{
		0.000001, 0.000005, 0.00001, 0.000025, 0.00005,
		0.0001, 0.00025, 0.0005, 0.001, 0.002, 0.005, 0.01,
	}
	dbBuckets := []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25}

	return &Metrics{
		// Core processing
		CoreCommandsApplied: f.NewCounterVec(prometheus.CounterOpts{
			Name: "coverpool_core_commands_applied_total",
			Help: "Commands successfully applied by core",
		}, []string{"command"}),

		CoreCommandsRejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "coverpool_core_commands_rejected_total",
			Help: "Commands rejected (duplicate or by error kind)",
		}, []string{"command", "reason"}),

		CoreCommandDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "coverpool_core_command_apply_duration_seconds",
			Help:    "Time to apply a single command in core",
			Buckets: latencyBuckets,
		}, []string{"command"}),

		CoreJournals: f.NewCounterVec(prometheus.CounterOpts{
			Name: "coverpool_core_journals_generated_total",
			Help: "Journal entries generated",
		}, []string{"journal_type"}),

		CoreStateHashDur: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "coverpool_core_state_hash_duration_seconds",
			Help:    "Time to compute state hash",
			Buckets: latencyBuckets,
		}),

		CoreSequence: f.NewGauge(prometheus.GaugeOpts{
			Name: "coverpool_core_sequence",
			Help: "Next global sequence number",
		}),

		// Pool
		PoolTotalLiquidity: f.NewGauge(prometheus.GaugeOpts{
			Name: "coverpool_pool_total_liquidity",
			Help: "Capital contributed by liquidity providers",
		}),

		PoolTotalLocked: f.NewGauge(prometheus.GaugeOpts{
			Name: "coverpool_pool_total_locked",
			Help: "Capital locked against active coverage",
		}),

		PoolFromReserve: f.NewGauge(prometheus.GaugeOpts{
			Name: "coverpool_pool_total_from_reserve",
			Help: "Outstanding borrow from the reserve fund",
		}),

		PoolUtilization: f.NewGauge(prometheus.GaugeOpts{
			Name: "coverpool_pool_utilization_bps",
			Help: "Locked capital over capacity, in basis points",
		}),

		PoolTotalShares: f.NewGauge(prometheus.GaugeOpts{
			Name: "coverpool_pool_total_shares",
			Help: "Outstanding LP shares",
		}),

		PremiumsCollected: f.NewCounter(prometheus.CounterOpts{
			Name: "coverpool_premiums_collected_total",
			Help: "Premium paid by insured parties, in asset units",
		}),

		ClaimsFiled: f.NewCounter(prometheus.CounterOpts{
			Name: "coverpool_claims_filed_total",
			Help: "Claims filed",
		}),

		ClaimsRuled: f.NewCounterVec(prometheus.CounterOpts{
			Name: "coverpool_claims_ruled_total",
			Help: "Rulings applied",
		}, []string{"ruling"}),

		ClaimsPaidAmount: f.NewCounter(prometheus.CounterOpts{
			Name: "coverpool_claims_paid_amount_total",
			Help: "Claim payouts, in asset units",
		}),

		ReserveBorrowed: f.NewCounter(prometheus.CounterOpts{
			Name: "coverpool_reserve_borrowed_total",
			Help: "Capital drawn from the reserve fund",
		}),

		ReserveRepaid: f.NewCounter(prometheus.CounterOpts{
			Name: "coverpool_reserve_repaid_total",
			Help: "Capital returned to the reserve fund",
		}),

		// Channel & backpressure
		ChannelSize: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "coverpool_channel_size",
			Help: "Current items in channel",
		}, []string{"name"}),

		ProjectionDrops: f.NewCounter(prometheus.CounterOpts{
			Name: "coverpool_projection_drops_total",
			Help: "Outputs dropped due to full projection channel",
		}),

		PublishDrops: f.NewCounter(prometheus.CounterOpts{
			Name: "coverpool_publish_drops_total",
			Help: "Events dropped due to full publish channel",
		}),

		PersistBackpressure: f.NewCounter(prometheus.CounterOpts{
			Name: "coverpool_persist_backpressure_total",
			Help: "Times core blocked on persist channel",
		}),

		// Idempotency
		IdempotencyDuplicates: f.NewCounterVec(prometheus.CounterOpts{
			Name: "coverpool_idempotency_duplicates_total",
			Help: "Duplicates caught (lru/postgres)",
		}, []string{"command", "tier"}),

		DedupLRUSize: f.NewGauge(prometheus.GaugeOpts{
			Name: "coverpool_dedup_lru_size",
			Help: "Entries in the idempotency LRU",
		}),

		DedupTier2Errors: f.NewCounter(prometheus.CounterOpts{
			Name: "coverpool_dedup_tier2_errors_total",
			Help: "Postgres idempotency lookups that failed",
		}),

		// Persistence
		PersistEventsWritten: f.NewCounter(prometheus.CounterOpts{
			Name: "coverpool_persist_events_written_total",
			Help: "Event log rows written",
		}),

		PersistJournalsWritten: f.NewCounter(prometheus.CounterOpts{
			Name: "coverpool_persist_journals_written_total",
			Help: "Journal rows written",
		}),

		PersistBatchDur: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "coverpool_persist_batch_duration_seconds",
			Help:    "Postgres batch write duration",
			Buckets: dbBuckets,
		}),

		PersistBatchSize: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "coverpool_persist_batch_size",
			Help:    "Outputs per persisted batch",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100},
		}),

		PersistErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "coverpool_persist_errors_total",
			Help: "Persistence failures",
		}, []string{"stage"}),

		PersistRetry: f.NewCounter(prometheus.CounterOpts{
			Name: "coverpool_persist_retry_total",
			Help: "Persisted batch retries",
		}),

		PersistLastSequence: f.NewGauge(prometheus.GaugeOpts{
			Name: "coverpool_persist_last_sequence",
			Help: "Last sequence committed to Postgres",
		}),

		// Projection
		ProjectionUpdateDur: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "coverpool_projection_update_duration_seconds",
			Help:    "Projection table update duration",
			Buckets: dbBuckets,
		}, []string{"projection"}),

		ProjectionSequence: f.NewGauge(prometheus.GaugeOpts{
			Name: "coverpool_projection_sequence",
			Help: "Last sequence applied to projections",
		}),

		// Snapshot & replay
		SnapshotTaken: f.NewCounter(prometheus.CounterOpts{
			Name: "coverpool_snapshot_taken_total",
			Help: "Snapshots written",
		}),

		SnapshotDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "coverpool_snapshot_duration_seconds",
			Help:    "Time to capture and write a snapshot",
			Buckets: dbBuckets,
		}),

		SnapshotSizeBytes: f.NewGauge(prometheus.GaugeOpts{
			Name: "coverpool_snapshot_size_bytes",
			Help: "Encoded size of the last snapshot",
		}),

		SnapshotLastSeq: f.NewGauge(prometheus.GaugeOpts{
			Name: "coverpool_snapshot_last_sequence",
			Help: "Sequence of the last snapshot",
		}),

		ReplayEventsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "coverpool_replay_events_total",
			Help: "Commands replayed at startup",
		}),

		ReplayDuration: f.NewGauge(prometheus.GaugeOpts{
			Name: "coverpool_replay_duration_seconds",
			Help: "Duration of the startup replay",
		}),

		// Ingestion
		IngestReceived: f.NewCounterVec(prometheus.CounterOpts{
			Name: "coverpool_ingest_received_total",
			Help: "Commands received by source",
		}, []string{"source"}),

		IngestInvalid: f.NewCounterVec(prometheus.CounterOpts{
			Name: "coverpool_ingest_invalid_total",
			Help: "Commands that failed to parse",
		}, []string{"source"}),

		IngestRateLimited: f.NewCounter(prometheus.CounterOpts{
			Name: "coverpool_ingest_rate_limited_total",
			Help: "HTTP requests rejected by the rate limiter",
		}),

		// Query API
		QueryRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "coverpool_query_requests_total",
			Help: "Query requests",
		}, []string{"endpoint"}),

		QueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "coverpool_query_duration_seconds",
			Help:    "Query latency",
			Buckets: dbBuckets,
		}, []string{"endpoint"}),

		QueryErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "coverpool_query_errors_total",
			Help: "Query failures",
		}, []string{"endpoint"}),
	}
}
