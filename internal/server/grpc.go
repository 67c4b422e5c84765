package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"CoverPool/internal/core"
	"CoverPool/internal/observability"
	"CoverPool/internal/projection"
	"CoverPool/internal/query"
	"CoverPool/internal/state"

	"github.com/ethereum/go-ethereum/common"
	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// Commands submits client commands to the processor.
type Commands interface {
	Submit(ctx context.Context, commandType string, body []byte) (core.Result, error)
}

// Queries serves the projected read model.
type Queries interface {
	GetPool(ctx context.Context, poolID uint64) (*query.PoolResponse, error)
	GetPosition(ctx context.Context, poolID uint64, provider common.Address) (*query.PositionResponse, error)
	GetCoverage(ctx context.Context, tokenID uint64) (*query.CoverageResponse, error)
	ListCoverages(ctx context.Context, owner common.Address, limit int) ([]query.CoverageResponse, error)
	GetClaim(ctx context.Context, disputeID uint64) (*query.ClaimResponse, error)
	ListClaims(ctx context.Context, claimant common.Address, limit int) ([]query.ClaimResponse, error)
	GetBalances(ctx context.Context, owner common.Address) ([]query.BalanceResponse, error)
	GetJournalHistory(ctx context.Context, owner common.Address, limit int, beforeSequence *int64) ([]query.JournalHistoryEntry, error)
	GetActivity(owner common.Address, limit int) []projection.ActivityEntry
	VerifyIntegrity(ctx context.Context) (*query.IntegrityReport, error)
}

// Quoter prices coverage against live pool state.
type Quoter interface {
	Params() state.PoolParams
	ComputePremium(coverAmount, durationDays int64) (int64, error)
}

// Arbitrator is the operator surface of the arbitration service.
type Arbitrator interface {
	GiveRuling(caller common.Address, disputeID uint64, ruling state.Ruling) error
	ExecuteRuling(ctx context.Context, disputeID uint64) error
}

// Deps holds everything the API needs. Any of Quoter and Arbitrator may be
// nil, which disables their routes.
type Deps struct {
	Commands    Commands
	Queries     Queries
	Quoter      Quoter
	Arbitrator  Arbitrator
	RateLimiter *RateLimiter
	Health      *observability.HealthChecker
	Metrics     *observability.Metrics
	Logger      zerolog.Logger
}

// Server runs the gRPC endpoint (health and reflection) and the HTTP/JSON
// gateway.
type Server struct {
	grpcServer *grpc.Server
	health     *health.Server
	httpServer *http.Server
	grpcAddr   string
	httpAddr   string
	deps       Deps
	logger     zerolog.Logger
}

func NewServer(grpcAddr, httpAddr string, deps Deps) *Server {
	grpcServer := grpc.NewServer()

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)

	// Reflection for grpcurl / grpcui
	reflection.Register(grpcServer)

	if deps.Health == nil {
		deps.Health = observability.NewHealthChecker()
	}

	return &Server{
		grpcServer: grpcServer,
		health:     healthServer,
		grpcAddr:   grpcAddr,
		httpAddr:   httpAddr,
		deps:       deps,
		logger:     deps.Logger.With().Str("component", "server").Logger(),
	}
}

// SetReady flips both the HTTP readiness probe and the gRPC health status.
func (s *Server) SetReady(ready bool) {
	s.deps.Health.SetReady(ready)
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if ready {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
}

// StartGRPC serves gRPC until ctx is cancelled.
func (s *Server) StartGRPC(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.grpcAddr)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}

	go func() {
		<-ctx.Done()
		s.logger.Info().Msg("gRPC server shutting down")
		s.health.Shutdown()
		s.grpcServer.GracefulStop()
	}()

	s.logger.Info().Str("addr", s.grpcAddr).Msg("gRPC server listening")
	return s.grpcServer.Serve(lis)
}

// StartHTTP serves the JSON API until ctx is cancelled.
func (s *Server) StartHTTP(ctx context.Context) error {
	handler, err := s.Handler()
	if err != nil {
		return err
	}
	s.httpServer = &http.Server{
		Addr:              s.httpAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info().Msg("HTTP gateway shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	s.logger.Info().Str("addr", s.httpAddr).Msg("HTTP gateway listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Handler builds the HTTP handler: health probes plus the gateway routes.
func (s *Server) Handler() (http.Handler, error) {
	gw := runtime.NewServeMux()
	if err := s.registerRoutes(gw); err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.deps.Health.LivenessHandler)
	mux.HandleFunc("/readyz", s.deps.Health.ReadinessHandler)
	mux.Handle("/", gw)
	return mux, nil
}
