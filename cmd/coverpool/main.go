package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"CoverPool/internal/config"
	"CoverPool/internal/core"
	"CoverPool/internal/ingestion"
	"CoverPool/internal/inmem"
	"CoverPool/internal/observability"
	"CoverPool/internal/persistence"
	"CoverPool/internal/pool"
	"CoverPool/internal/projection"
	"CoverPool/internal/query"
	"CoverPool/internal/server"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	drainTimeout   = 30 * time.Second
	publishBuffer  = 4096
	activityWindow = 100_000
)

func main() {
	logger := observability.NewRootLogger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}
	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("coverpool exited")
	}
	logger.Info().Msg("coverpool shutdown complete")
}

func run(cfg config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info().Uint64("pool_id", cfg.Pool.PoolID).Str("asset", cfg.Pool.Asset).Msg("coverpool starting")

	// --- Postgres ---
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("postgres open: %w", err)
	}
	defer db.Close()

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("postgres ping: %w", err)
	}

	if err := persistence.NewMigrator(db, cfg.MigrationsDir, logger).Up(ctx); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
	health := observability.NewHealthChecker()

	// --- Pool and its collaborators ---
	world := inmem.NewWorld(inmem.WorldConfig{
		Admin:           cfg.Admin,
		ArbitratorOwner: cfg.ArbitratorOwner,
		ArbitrationCost: cfg.ArbitrationCost,
		AppealPeriod:    cfg.AppealPeriod,
		Clock:           time.Now,
	})
	if err := world.Whitelist.Add(inmem.WhitelistTreasury, cfg.Pool.Treasury); err != nil {
		return fmt.Errorf("whitelist treasury: %w", err)
	}
	token := world.Token(cfg.Pool.Asset)
	if cfg.ReserveFunding > 0 {
		token.Mint(world.Reserve.Address(), cfg.ReserveFunding)
	}

	poolAddr := inmem.PoolAddress(cfg.Pool.PoolID)
	deps, oracle, err := world.Deps(poolAddr, cfg.Pool.Asset, time.Now, logger)
	if err != nil {
		return err
	}
	engine, err := pool.NewEngine(pool.Config{Params: cfg.Pool, Address: poolAddr}, deps)
	if err != nil {
		return fmt.Errorf("new engine: %w", err)
	}

	// --- Processor ---
	persistCore := make(chan core.CoreOutput, cfg.PersistChanSize)
	projectionCore := make(chan core.CoreOutput, cfg.ProjectionChanSize)
	submitCh := make(chan core.Submission, cfg.SubmitChanSize)

	snapMgr := persistence.NewSnapshotManager(db)
	proc := core.NewProcessor(engine, persistCore, projectionCore, core.ProcessorConfig{
		DedupCapacity: cfg.IdempotencyLRUCapacity,
		DBChecker:     persistence.NewPostgresIdempotencyChecker(db),
		Coverage:      world.Registry,
		Faucet:        inmem.NewFaucet(token, poolAddr),
		Metrics:       metrics,
		Logger:        logger,
	})
	// Rulings re-enter through the command log.
	oracle.Bind(core.NewRuleForwarder(submitCh, time.Now))

	// --- Recovery ---
	activity := projection.NewActivityFeed(activityWindow)
	health.SetPhase(observability.PhaseReplaying)
	if err := recoverState(ctx, snapMgr, proc, activity, metrics, logger); err != nil {
		return err
	}
	health.SetRecoveredSequence(proc.GetSequence() - 1)
	rebuild := toProjection(proc.GetSequence()-1, proc.FullProjection(ctx), nil)
	if err := projection.RebuildProjections(ctx, db, rebuild, logger); err != nil {
		return fmt.Errorf("rebuild projections: %w", err)
	}

	snapCh := make(chan *core.SnapshotState, 1)
	proc.SnapshotEvery(cfg.SnapshotInterval, snapCh)

	// --- NATS ---
	nc, js, err := ingestion.ConnectNATS(cfg.NATSURL, logger)
	if err != nil {
		return err
	}
	defer nc.Close()

	if err := ingestion.EnsureStreams(ctx, js); err != nil {
		return fmt.Errorf("ensure command stream: %w", err)
	}
	if err := ingestion.EnsureOutboundStream(ctx, js); err != nil {
		return fmt.Errorf("ensure event stream: %w", err)
	}

	rawCh := make(chan ingestion.RawCommand, cfg.SubmitChanSize)
	subscriber := ingestion.NewNATSSubscriber(js, rawCh, logger)
	if err := subscriber.Subscribe(ctx, ingestion.DefaultSubjects()); err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	parser := ingestion.NewParser(cfg.FaucetEnabled)
	ingestor := ingestion.NewIngestor(parser, submitCh, metrics, logger)
	publisher := ingestion.NewOutboundPublisher(js, publishBuffer, metrics, logger)

	// --- Downstream workers ---
	// They outlive the front end so that everything the processor accepted
	// is flushed before exit.
	persistRows := make(chan persistence.CoreOutput, cfg.PersistChanSize)
	projectionRows := make(chan projection.ProjectionOutput, cfg.ProjectionChanSize)

	persistWorker := persistence.NewPersistenceWorker(db, persistRows, cfg.PersistBatchSize, cfg.PersistFlushTimeout, metrics, logger)
	persistWorker.SetCommitter(publisher)
	projWorker := projection.NewProjectionWorker(db, projectionRows, activity, metrics, logger)

	drainCtx, cancelDrain := context.WithCancel(context.Background())
	defer cancelDrain()

	var back errgroup.Group
	persistDone := make(chan struct{})
	back.Go(func() error {
		defer close(persistDone)
		return persistWorker.Run(drainCtx)
	})
	back.Go(func() error { return projWorker.Run(drainCtx) })
	back.Go(func() error { return publisher.Run(drainCtx) })
	back.Go(func() error {
		bridgePersistence(persistCore, persistRows, logger)
		return nil
	})
	back.Go(func() error {
		bridgeProjection(projectionCore, projectionRows, metrics.ProjectionDrops.Inc)
		return nil
	})

	// --- Front end ---
	srv := server.NewServer(cfg.GRPCAddr, cfg.HTTPAddr, server.Deps{
		Commands:    ingestion.NewGatewayIngestService(parser, submitCh, metrics),
		Queries:     query.NewQueryService(db, activity),
		Quoter:      engine,
		Arbitrator:  world.Arbitrator,
		RateLimiter: server.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, metrics),
		Health:      health,
		Metrics:     metrics,
		Logger:      logger,
	})

	front, fctx := errgroup.WithContext(ctx)
	front.Go(func() error { return proc.Run(fctx, submitCh) })
	front.Go(func() error { return ingestor.Run(fctx, rawCh) })
	front.Go(func() error { return runSnapshotSaver(fctx, snapCh, snapMgr, metrics, logger) })
	front.Go(func() error { return srv.StartGRPC(fctx) })
	front.Go(func() error { return srv.StartHTTP(fctx) })
	front.Go(func() error { return serveMetrics(fctx, cfg.MetricsAddr, logger) })

	srv.SetReady(true)
	logger.Info().
		Int64("next_sequence", proc.GetSequence()).
		Str("grpc", cfg.GRPCAddr).
		Str("http", cfg.HTTPAddr).
		Str("metrics", cfg.MetricsAddr).
		Msg("coverpool ready")

	frontErr := front.Wait()
	if frontErr != nil && !errors.Is(frontErr, context.Canceled) {
		logger.Error().Err(frontErr).Msg("front end failed, shutting down")
	} else {
		frontErr = nil
		logger.Info().Msg("shutdown requested")
	}

	// --- Graceful shutdown ---
	srv.SetReady(false)
	subscriber.Stop()

	// The processor has returned; closing its outputs lets the bridges and
	// the persistence worker drain.
	close(persistCore)
	close(projectionCore)

	select {
	case <-persistDone:
	case <-time.After(drainTimeout):
		logger.Error().Msg("persistence did not drain in time")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if snap, err := proc.CreateSnapshotState(); err != nil {
		logger.Error().Err(err).Msg("final snapshot capture failed")
	} else if err := saveSnapshot(shutdownCtx, snapMgr, snap, metrics); err != nil {
		logger.Error().Err(err).Msg("final snapshot failed")
	} else {
		logger.Info().Int64("sequence", snap.Sequence).Msg("final snapshot saved")
	}

	cancelDrain()
	if err := back.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Warn().Err(err).Msg("worker exited with error")
	}
	logger.Info().Int64("projection_sequence", projWorker.LastSequence()).Msg("workers stopped")
	return frontErr
}

func serveMetrics(ctx context.Context, addr string, logger zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		metricsServer.Shutdown(shutCtx)
	}()

	logger.Info().Str("addr", addr).Msg("metrics server listening")
	if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
