package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"CoverPool/internal/event"
	"CoverPool/internal/ledger"
	"CoverPool/internal/observability"
	"CoverPool/internal/pool"
	"CoverPool/internal/state"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
)

var (
	ErrFaucetDisabled = errors.New("faucet disabled")
	ErrOutOfSequence  = errors.New("replay out of sequence")
	ErrHashMismatch   = errors.New("state hash mismatch")
)

// Faucet funds accounts with the pool asset outside the pool's own books.
type Faucet interface {
	Drip(ctx context.Context, to common.Address, amount int64) error
}

// CoverageLookup reads coverage proofs for projections.
type CoverageLookup interface {
	Info(ctx context.Context, tokenID uint64) (state.CoverageProof, error)
}

// CoreOutput is everything downstream workers need about one logged command.
type CoreOutput struct {
	Envelope   *event.EventEnvelope
	Batch      *ledger.Batch // nil when no asset moved through the pool
	StateDelta []byte
	Projection *Projection
}

// Projection is the post-command read model of everything the command touched.
type Projection struct {
	Pool      state.PoolState
	Positions []state.LPPosition // an empty position means the provider left the pool
	Coverages []state.CoverageProof
	Claims    []state.Claim
	Balances  map[ledger.AccountKey]int64
}

// Result is what a caller learns about its command.
type Result struct {
	Sequence  int64
	StateHash [32]byte
	Value     any // the engine result (DepositResult, CoverageResult, ...)
	Duplicate bool
}

// ProcessorConfig carries the optional collaborators of a Processor.
type ProcessorConfig struct {
	StartSequence int64
	DedupCapacity int
	DBChecker     DBIdempotencyChecker
	Coverage      CoverageLookup
	Faucet        Faucet
	Metrics       *observability.Metrics
	Logger        zerolog.Logger
}

// Processor is the single-threaded command pipeline in front of the pool
// engine. Every accepted command gets a global sequence number, a balanced
// journal batch and a chained state hash before it is handed to persistence.
type Processor struct {
	sequence       int64
	chain          *hashChain
	balanceTracker *ledger.BalanceTracker
	validator      *ledger.InvariantValidator
	engine         *pool.Engine
	coverage       CoverageLookup
	faucet         Faucet
	idempotency    *IdempotencyChecker
	metrics        *observability.Metrics
	logger         zerolog.Logger

	receipts []pool.Receipt

	snapshotInterval int64
	snapshotSink     chan<- *SnapshotState
	lastSnapshotSeq  int64

	persistChan    chan<- CoreOutput
	projectionChan chan<- CoreOutput
}

func NewProcessor(engine *pool.Engine, persistChan, projectionChan chan<- CoreOutput, cfg ProcessorConfig) *Processor {
	if cfg.DedupCapacity <= 0 {
		cfg.DedupCapacity = 1_000_000
	}
	balanceTracker := ledger.NewBalanceTracker()
	logger := cfg.Logger.With().Str("component", "processor").Logger()

	p := &Processor{
		sequence:       cfg.StartSequence,
		chain:          newHashChain(),
		balanceTracker: balanceTracker,
		validator:      ledger.NewInvariantValidator(balanceTracker),
		engine:         engine,
		coverage:       cfg.Coverage,
		faucet:         cfg.Faucet,
		idempotency:    NewIdempotencyChecker(cfg.DedupCapacity, cfg.DBChecker, cfg.Metrics, logger),
		metrics:        cfg.Metrics,
		logger:         logger,
		persistChan:    persistChan,
		projectionChan: projectionChan,
	}
	engine.SetEmitter(p)
	return p
}

// Emit collects engine receipts for the command being processed.
func (p *Processor) Emit(r pool.Receipt) {
	p.receipts = append(p.receipts, r)
}

// ProcessCommand runs one command through the pipeline. Rejected commands
// leave no trace: no sequence number, no log entry, no state change.
func (p *Processor) ProcessCommand(ctx context.Context, cmd event.Command) (Result, error) {
	start := time.Now()
	commandType := cmd.CommandType().String()
	idempotencyKey := cmd.IdempotencyKey()

	// Step 1: Idempotency check (two-tier)
	if p.idempotency.IsDuplicate(commandType, idempotencyKey) {
		if p.metrics != nil {
			p.metrics.CoreCommandsRejected.WithLabelValues(commandType, "duplicate").Inc()
		}
		return Result{Duplicate: true}, nil
	}

	// Step 2-6: Dispatch, journal, hash
	output, value, err := p.apply(ctx, cmd)
	if err != nil {
		if p.metrics != nil {
			p.metrics.CoreCommandsRejected.WithLabelValues(commandType, pool.ErrorKind(err)).Inc()
		}
		p.logger.Debug().Err(err).Str("command", commandType).Str("request_id", idempotencyKey).
			Msg("command rejected")
		return Result{}, err
	}

	// Step 7: Emit outputs. Persistence blocks (backpressure); projections
	// drop on full and catch up from the next output.
	select {
	case p.persistChan <- output:
	default:
		if p.metrics != nil {
			p.metrics.PersistBackpressure.Inc()
		}
		p.persistChan <- output
	}

	select {
	case p.projectionChan <- output:
	default:
		if p.metrics != nil {
			p.metrics.ProjectionDrops.Inc()
		}
	}

	// Step 8: Mark as processed (add to LRU)
	p.idempotency.MarkProcessed(commandType, idempotencyKey)

	if p.metrics != nil {
		p.metrics.CoreCommandsApplied.WithLabelValues(commandType).Inc()
		p.metrics.CoreCommandDuration.WithLabelValues(commandType).Observe(time.Since(start).Seconds())
		p.metrics.CoreSequence.Set(float64(p.sequence))
		p.observe(output)
	}

	return Result{
		Sequence:  output.Envelope.Sequence,
		StateHash: output.Envelope.StateHash,
		Value:     value,
	}, nil
}

// Replay re-applies a logged command at its original sequence and checks that
// it reproduces the logged state hash. Nothing is emitted.
func (p *Processor) Replay(ctx context.Context, cmd event.Command, sequence int64, expected [32]byte) error {
	if sequence != p.sequence {
		return fmt.Errorf("%w: log has %d, processor expects %d", ErrOutOfSequence, sequence, p.sequence)
	}
	output, _, err := p.apply(ctx, cmd)
	if err != nil {
		return fmt.Errorf("replay seq %d (%s): %w", sequence, cmd.CommandType(), err)
	}
	if output.Envelope.StateHash != expected {
		return fmt.Errorf("%w at seq %d: replayed %x, logged %x", ErrHashMismatch, sequence,
			output.Envelope.StateHash[:8], expected[:8])
	}
	p.idempotency.MarkProcessed(cmd.CommandType().String(), cmd.IdempotencyKey())
	if p.metrics != nil {
		p.metrics.ReplayEventsTotal.Inc()
		p.metrics.CoreSequence.Set(float64(p.sequence))
		p.observe(output)
	}
	return nil
}

func (p *Processor) apply(ctx context.Context, cmd event.Command) (CoreOutput, any, error) {
	payload, err := event.EncodeCommand(cmd)
	if err != nil {
		return CoreOutput{}, nil, err
	}

	p.receipts = p.receipts[:0]
	ctx = pool.WithTimestamp(ctx, cmd.Timestamp())

	value, err := p.dispatch(ctx, cmd)
	if err != nil {
		return CoreOutput{}, nil, err
	}

	events, batch := mergeReceipts(p.receipts, cmd.Timestamp())
	p.receipts = p.receipts[:0]

	if batch != nil {
		if err := p.validator.ValidateBatchBalance(batch); err != nil {
			panic(fmt.Sprintf("FATAL: unbalanced batch: %v", err))
		}
		if err := p.balanceTracker.ApplyBatch(batch); err != nil {
			panic(fmt.Sprintf("FATAL: apply batch: %v", err))
		}
		batch.Stamp(p.sequence, cmd.IdempotencyKey())
	}

	if err := p.postCheckInvariants(); err != nil {
		panic(fmt.Sprintf("FATAL: invariant violated: %v", err))
	}

	hashStart := time.Now()
	digest := p.computeStateDigest(batch)
	prevHash := p.chain.Tip()
	stateHash := p.chain.Link(p.sequence, digest)
	if p.metrics != nil {
		p.metrics.CoreStateHashDur.Observe(time.Since(hashStart).Seconds())
	}

	envelope := &event.EventEnvelope{
		Sequence:       p.sequence,
		IdempotencyKey: cmd.IdempotencyKey(),
		CommandType:    cmd.CommandType(),
		PoolID:         p.engine.Params().PoolID,
		Caller:         cmd.Caller(),
		Timestamp:      cmd.Timestamp(),
		Payload:        payload,
		Events:         events,
		StateHash:      stateHash,
		PrevHash:       prevHash,
	}

	output := CoreOutput{
		Envelope:   envelope,
		Batch:      batch,
		StateDelta: digest,
		Projection: p.project(ctx, cmd, events, batch),
	}
	p.sequence++

	return output, value, nil
}

// dispatch routes a command to the engine.
func (p *Processor) dispatch(ctx context.Context, cmd event.Command) (any, error) {
	caller := cmd.Caller()

	switch c := cmd.(type) {
	case *event.Deposit:
		return p.engine.Deposit(ctx, caller, c.Amount)
	case *event.RequestWithdrawal:
		unlockAt, err := p.engine.RequestWithdrawal(ctx, caller, c.Shares)
		return unlockAt, err
	case *event.ExecuteWithdrawal:
		return p.engine.ExecuteWithdrawal(ctx, caller)
	case *event.BuyCoverage:
		return p.engine.BuyCoverage(ctx, caller, c.CoverAmount, c.DurationDays)
	case *event.CreateClaim:
		return p.engine.CreateClaim(ctx, caller, c.TokenID, c.EvidenceURI, c.ArbitrationFee)
	case *event.Rule:
		return nil, p.engine.Rule(ctx, caller, c.DisputeID, c.Ruling)
	case *event.SetRisk:
		return nil, p.engine.SetRisk(ctx, caller, c.Risk)
	case *event.SetGovTokenAPR:
		return nil, p.engine.SetGovTokenAPR(ctx, caller, c.APR)
	case *event.ReleaseExpiredCoverage:
		return nil, p.engine.ReleaseExpiredCoverage(ctx, caller, c.TokenID)
	case *event.AdjustCoverage:
		return nil, p.engine.AdjustCoverage(ctx, caller, c.TokenID, c.NewValue)
	case *event.Faucet:
		if p.faucet == nil {
			return nil, ErrFaucetDisabled
		}
		if c.Amount <= 0 {
			return nil, fmt.Errorf("%w: faucet amount %d", pool.ErrInvalidAmount, c.Amount)
		}
		return nil, p.faucet.Drip(ctx, caller, c.Amount)
	default:
		return nil, fmt.Errorf("unknown command type: %T", cmd)
	}
}

// mergeReceipts folds the receipts of one command into a single event list
// and at most one batch.
func mergeReceipts(receipts []pool.Receipt, ts time.Time) ([]event.PoolEvent, *ledger.Batch) {
	var events []event.PoolEvent
	var batches []*ledger.Batch
	for _, r := range receipts {
		events = append(events, r.Events...)
		if r.Batch != nil && len(r.Batch.Journals) > 0 {
			batches = append(batches, r.Batch)
		}
	}

	switch len(batches) {
	case 0:
		return events, nil
	case 1:
		return events, batches[0]
	}

	merged := ledger.NewBatchBuilder(ts.UnixMicro()).Build()
	for _, b := range batches {
		for _, j := range b.Journals {
			j.BatchID = merged.BatchID
			merged.Journals = append(merged.Journals, j)
		}
	}
	return events, merged
}

// computeStateDigest creates canonical bytes for the state hash: the whole
// engine state followed by the balances of every account the batch touched.
func (p *Processor) computeStateDigest(batch *ledger.Batch) []byte {
	digest := p.engine.Digest()

	for _, key := range affectedAccounts(batch) {
		balance := p.balanceTracker.Balance(key)

		path := key.AccountPath()
		digest = append(digest, byte(len(path)))
		digest = append(digest, []byte(path)...)
		digest = appendInt64LE(digest, balance)
	}

	return digest
}

// affectedAccounts returns the accounts of a batch sorted by AccountPath.
func affectedAccounts(batch *ledger.Batch) []ledger.AccountKey {
	if batch == nil {
		return nil
	}
	seen := make(map[ledger.AccountKey]bool)
	for _, j := range batch.Journals {
		seen[j.DebitAccount] = true
		seen[j.CreditAccount] = true
	}

	accounts := make([]ledger.AccountKey, 0, len(seen))
	for key := range seen {
		accounts = append(accounts, key)
	}
	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].AccountPath() < accounts[j].AccountPath()
	})
	return accounts
}

func appendInt64LE(buf []byte, v int64) []byte {
	return append(buf,
		byte(v),
		byte(v>>8),
		byte(v>>16),
		byte(v>>24),
		byte(v>>32),
		byte(v>>40),
		byte(v>>48),
		byte(v>>56),
	)
}

// postCheckInvariants cross-checks the journals against the pool counters.
func (p *Processor) postCheckInvariants() error {
	st := p.engine.State()
	if err := st.CheckInvariants(); err != nil {
		return err
	}
	if err := p.validator.ValidateReserveDebt(p.engine.ReserveAddress(), p.engine.AssetID(), st.TotalFromReserve); err != nil {
		return err
	}
	if treasury := p.engine.Params().Treasury; treasury != (common.Address{}) {
		if err := p.validator.ValidateTreasuryNonNegative(treasury, p.engine.AssetID()); err != nil {
			return err
		}
	}

	// Periodic zero-sum check
	if p.sequence > 0 && p.sequence%1000 == 0 {
		if err := p.validator.ValidateGlobalBalance(); err != nil {
			return fmt.Errorf("at seq %d: %w", p.sequence, err)
		}
	}
	return nil
}

// project collects the read model rows a command changed.
func (p *Processor) project(ctx context.Context, cmd event.Command, events []event.PoolEvent, batch *ledger.Batch) *Projection {
	proj := &Projection{
		Pool:     p.engine.State(),
		Balances: make(map[ledger.AccountKey]int64),
	}

	providers := map[common.Address]bool{}
	tokens := map[uint64]bool{}
	disputes := map[uint64]bool{}

	switch cmd.(type) {
	case *event.Deposit, *event.RequestWithdrawal, *event.ExecuteWithdrawal:
		providers[cmd.Caller()] = true
	}
	for _, evt := range events {
		switch e := evt.(type) {
		case event.LiquidityProvided:
			providers[e.Provider] = true
		case event.WithdrawalExecuted:
			providers[e.Provider] = true
		case event.CoveragePurchased:
			tokens[e.TokenID] = true
		case event.CoverageExpired:
			tokens[e.TokenID] = true
		case event.CoverageAdjusted:
			tokens[e.TokenID] = true
		case event.Dispute:
			disputes[e.DisputeID] = true
		case event.Ruling:
			disputes[e.DisputeID] = true
		case event.ClaimPaid:
			disputes[e.DisputeID] = true
		}
	}

	for _, provider := range sortedAddresses(providers) {
		pos, _ := p.engine.Position(provider)
		proj.Positions = append(proj.Positions, pos)
	}

	for _, id := range sortedIDs(disputes) {
		claim, ok := p.engine.Claim(id)
		if !ok {
			continue
		}
		proj.Claims = append(proj.Claims, claim)
		tokens[claim.TokenID] = true
	}

	if p.coverage != nil {
		for _, id := range sortedIDs(tokens) {
			proof, err := p.coverage.Info(ctx, id)
			if err != nil {
				p.logger.Warn().Err(err).Uint64("token_id", id).Msg("coverage lookup for projection failed")
				continue
			}
			proj.Coverages = append(proj.Coverages, proof)
		}
	}

	for _, key := range affectedAccounts(batch) {
		proj.Balances[key] = p.balanceTracker.Balance(key)
	}

	return proj
}

// observe refreshes the pool gauges and flow counters from an output.
func (p *Processor) observe(output CoreOutput) {
	m := p.metrics
	if proj := output.Projection; proj != nil {
		st := proj.Pool
		m.PoolTotalLiquidity.Set(float64(st.TotalLiquidity))
		m.PoolTotalLocked.Set(float64(st.TotalLocked))
		m.PoolFromReserve.Set(float64(st.TotalFromReserve))
		m.PoolUtilization.Set(float64(st.UtilizationBps()))
		m.PoolTotalShares.Set(float64(st.TotalShares))
	}
	if output.Batch != nil {
		for _, j := range output.Batch.Journals {
			m.CoreJournals.WithLabelValues(j.JournalType.String()).Inc()
		}
	}
	for _, evt := range output.Envelope.Events {
		switch e := evt.(type) {
		case event.CoveragePurchased:
			m.PremiumsCollected.Add(float64(e.Premium))
		case event.Dispute:
			m.ClaimsFiled.Inc()
		case event.Ruling:
			m.ClaimsRuled.WithLabelValues(e.Ruling.String()).Inc()
		case event.ClaimPaid:
			m.ClaimsPaidAmount.Add(float64(e.Amount))
		case event.ReserveBorrowed:
			m.ReserveBorrowed.Add(float64(e.Amount))
		case event.ReserveRepaid:
			m.ReserveRepaid.Add(float64(e.Amount))
		}
	}
}

func sortedAddresses(set map[common.Address]bool) []common.Address {
	out := make([]common.Address, 0, len(set))
	for addr := range set {
		out = append(out, addr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Cmp(out[j]) < 0 })
	return out
}

func sortedIDs(set map[uint64]bool) []uint64 {
	out := make([]uint64, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// GetSequence returns the next sequence number to assign.
func (p *Processor) GetSequence() int64 {
	return p.sequence
}

// GetStateHash returns the current state hash (chain tip).
func (p *Processor) GetStateHash() [32]byte {
	return p.chain.Tip()
}

// Engine exposes the pool for read-only queries.
func (p *Processor) Engine() *pool.Engine {
	return p.engine
}
