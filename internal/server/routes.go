package server

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"CoverPool/internal/ingestion"
	"CoverPool/internal/query"
	"CoverPool/internal/state"

	"github.com/ethereum/go-ethereum/common"
	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
	maxCommandBody  = 64 << 10
)

type route struct {
	method   string
	pattern  string
	endpoint string
	handler  runtime.HandlerFunc
}

func (s *Server) registerRoutes(mux *runtime.ServeMux) error {
	routes := []route{
		{"POST", "/v1/commands/{type}", "submit_command", s.rateLimited(s.handleCommand)},

		{"GET", "/v1/pools/{pool_id}", "get_pool", s.handleGetPool},
		{"GET", "/v1/pools/{pool_id}/positions/{provider}", "get_position", s.handleGetPosition},
		{"GET", "/v1/coverages/{token_id}", "get_coverage", s.handleGetCoverage},
		{"GET", "/v1/claims/{dispute_id}", "get_claim", s.handleGetClaim},
		{"GET", "/v1/accounts/{owner}/coverages", "list_coverages", s.handleListCoverages},
		{"GET", "/v1/accounts/{owner}/claims", "list_claims", s.handleListClaims},
		{"GET", "/v1/accounts/{owner}/balances", "get_balances", s.handleGetBalances},
		{"GET", "/v1/accounts/{owner}/journals", "get_journals", s.handleGetJournals},
		{"GET", "/v1/accounts/{owner}/activity", "get_activity", s.handleGetActivity},

		{"POST", "/v1/admin/integrity", "verify_integrity", s.handleVerifyIntegrity},
	}
	if s.deps.Quoter != nil {
		routes = append(routes, route{"GET", "/v1/pools/{pool_id}/quote", "quote", s.handleQuote})
	}
	if s.deps.Arbitrator != nil {
		routes = append(routes,
			route{"POST", "/v1/arbitrator/disputes/{dispute_id}/ruling", "give_ruling", s.handleGiveRuling},
			route{"POST", "/v1/arbitrator/disputes/{dispute_id}/execute", "execute_ruling", s.handleExecuteRuling},
		)
	}

	for _, rt := range routes {
		if err := mux.HandlePath(rt.method, rt.pattern, s.instrument(rt.endpoint, rt.handler)); err != nil {
			return fmt.Errorf("register %s %s: %w", rt.method, rt.pattern, err)
		}
	}
	return nil
}

// statusRecorder captures the response code for metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) instrument(endpoint string, h runtime.HandlerFunc) runtime.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request, params map[string]string) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h(rec, r, params)

		if m := s.deps.Metrics; m != nil {
			m.QueryRequests.WithLabelValues(endpoint).Inc()
			m.QueryDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
			if rec.status >= http.StatusInternalServerError {
				m.QueryErrors.WithLabelValues(endpoint).Inc()
			}
		}
		if rec.status >= http.StatusInternalServerError {
			s.logger.Error().Str("endpoint", endpoint).Int("status", rec.status).Msg("request failed")
		}
	}
}

func (s *Server) rateLimited(h runtime.HandlerFunc) runtime.HandlerFunc {
	if s.deps.RateLimiter == nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request, params map[string]string) {
		s.deps.RateLimiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h(w, r, params)
		})).ServeHTTP(w, r)
	}
}

// --- Commands ---

type commandResponse struct {
	Sequence  int64  `json:"sequence"`
	StateHash string `json:"state_hash"`
	Duplicate bool   `json:"duplicate"`
	Result    any    `json:"result,omitempty"`
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request, params map[string]string) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxCommandBody+1))
	if err != nil {
		writeError(w, fmt.Errorf("%w: read body: %v", ingestion.ErrInvalidCommand, err))
		return
	}
	if len(body) > maxCommandBody {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{Error: "command body too large", Kind: "invalid_command"})
		return
	}

	res, err := s.deps.Commands.Submit(r.Context(), params["type"], body)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, commandResponse{
		Sequence:  res.Sequence,
		StateHash: hex.EncodeToString(res.StateHash[:]),
		Duplicate: res.Duplicate,
		Result:    res.Value,
	})
}

// --- Queries ---

func (s *Server) handleGetPool(w http.ResponseWriter, r *http.Request, params map[string]string) {
	poolID, err := uintParam(params, "pool_id")
	if err != nil {
		writeError(w, err)
		return
	}
	v, err := s.deps.Queries.GetPool(r.Context(), poolID)
	respond(w, v, err)
}

func (s *Server) handleGetPosition(w http.ResponseWriter, r *http.Request, params map[string]string) {
	poolID, err := uintParam(params, "pool_id")
	if err != nil {
		writeError(w, err)
		return
	}
	provider, err := addressParam(params, "provider")
	if err != nil {
		writeError(w, err)
		return
	}
	v, err := s.deps.Queries.GetPosition(r.Context(), poolID, provider)
	respond(w, v, err)
}

func (s *Server) handleGetCoverage(w http.ResponseWriter, r *http.Request, params map[string]string) {
	tokenID, err := uintParam(params, "token_id")
	if err != nil {
		writeError(w, err)
		return
	}
	v, err := s.deps.Queries.GetCoverage(r.Context(), tokenID)
	respond(w, v, err)
}

func (s *Server) handleGetClaim(w http.ResponseWriter, r *http.Request, params map[string]string) {
	disputeID, err := uintParam(params, "dispute_id")
	if err != nil {
		writeError(w, err)
		return
	}
	v, err := s.deps.Queries.GetClaim(r.Context(), disputeID)
	respond(w, v, err)
}

func (s *Server) handleListCoverages(w http.ResponseWriter, r *http.Request, params map[string]string) {
	owner, limit, err := ownerAndLimit(r, params)
	if err != nil {
		writeError(w, err)
		return
	}
	v, err := s.deps.Queries.ListCoverages(r.Context(), owner, limit)
	respond(w, v, err)
}

func (s *Server) handleListClaims(w http.ResponseWriter, r *http.Request, params map[string]string) {
	owner, limit, err := ownerAndLimit(r, params)
	if err != nil {
		writeError(w, err)
		return
	}
	v, err := s.deps.Queries.ListClaims(r.Context(), owner, limit)
	respond(w, v, err)
}

func (s *Server) handleGetBalances(w http.ResponseWriter, r *http.Request, params map[string]string) {
	owner, err := addressParam(params, "owner")
	if err != nil {
		writeError(w, err)
		return
	}
	v, err := s.deps.Queries.GetBalances(r.Context(), owner)
	respond(w, v, err)
}

func (s *Server) handleGetJournals(w http.ResponseWriter, r *http.Request, params map[string]string) {
	owner, limit, err := ownerAndLimit(r, params)
	if err != nil {
		writeError(w, err)
		return
	}

	var before *int64
	if v := r.URL.Query().Get("before_sequence"); v != "" {
		seq, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, fmt.Errorf("%w: before_sequence %q", ingestion.ErrInvalidCommand, v))
			return
		}
		before = &seq
	}
	v, err := s.deps.Queries.GetJournalHistory(r.Context(), owner, limit, before)
	respond(w, v, err)
}

func (s *Server) handleGetActivity(w http.ResponseWriter, r *http.Request, params map[string]string) {
	owner, limit, err := ownerAndLimit(r, params)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Queries.GetActivity(owner, limit))
}

type quoteResponse struct {
	PoolID       uint64 `json:"pool_id"`
	CoverAmount  int64  `json:"cover_amount"`
	DurationDays int64  `json:"duration_days"`
	Premium      int64  `json:"premium"`
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request, params map[string]string) {
	poolID, err := uintParam(params, "pool_id")
	if err != nil {
		writeError(w, err)
		return
	}
	if poolID != s.deps.Quoter.Params().PoolID {
		writeError(w, fmt.Errorf("%w: pool %d is not served here", query.ErrNotFound, poolID))
		return
	}

	q := r.URL.Query()
	amount, err1 := strconv.ParseInt(q.Get("cover_amount"), 10, 64)
	days, err2 := strconv.ParseInt(q.Get("duration_days"), 10, 64)
	if err1 != nil || err2 != nil {
		writeError(w, fmt.Errorf("%w: cover_amount and duration_days must be integers", ingestion.ErrInvalidCommand))
		return
	}

	premium, err := s.deps.Quoter.ComputePremium(amount, days)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quoteResponse{
		PoolID:       poolID,
		CoverAmount:  amount,
		DurationDays: days,
		Premium:      premium,
	})
}

// --- Admin ---

func (s *Server) handleVerifyIntegrity(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	v, err := s.deps.Queries.VerifyIntegrity(r.Context())
	respond(w, v, err)
}

type rulingRequest struct {
	Caller common.Address `json:"caller"`
	Ruling state.Ruling   `json:"ruling"`
}

func (s *Server) handleGiveRuling(w http.ResponseWriter, r *http.Request, params map[string]string) {
	disputeID, err := uintParam(params, "dispute_id")
	if err != nil {
		writeError(w, err)
		return
	}
	var req rulingRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxCommandBody)).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("%w: %v", ingestion.ErrInvalidCommand, err))
		return
	}
	if err := s.deps.Arbitrator.GiveRuling(req.Caller, disputeID, req.Ruling); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"dispute_id": disputeID, "ruling": req.Ruling.String()})
}

func (s *Server) handleExecuteRuling(w http.ResponseWriter, r *http.Request, params map[string]string) {
	disputeID, err := uintParam(params, "dispute_id")
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.deps.Arbitrator.ExecuteRuling(r.Context(), disputeID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"dispute_id": disputeID, "executed": true})
}

// --- Helpers ---

// respond writes v as JSON, or the error.
func respond(w http.ResponseWriter, v any, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func uintParam(params map[string]string, name string) (uint64, error) {
	v, err := strconv.ParseUint(params[name], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q", ingestion.ErrInvalidCommand, name, params[name])
	}
	return v, nil
}

func addressParam(params map[string]string, name string) (common.Address, error) {
	v := params[name]
	if !common.IsHexAddress(v) {
		return common.Address{}, fmt.Errorf("%w: %s %q is not a hex address", ingestion.ErrInvalidCommand, name, v)
	}
	return common.HexToAddress(v), nil
}

func ownerAndLimit(r *http.Request, params map[string]string) (common.Address, int, error) {
	owner, err := addressParam(params, "owner")
	if err != nil {
		return common.Address{}, 0, err
	}
	limit := defaultPageSize
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return common.Address{}, 0, fmt.Errorf("%w: limit %q", ingestion.ErrInvalidCommand, v)
		}
		limit = min(n, maxPageSize)
	}
	return owner, limit, nil
}
