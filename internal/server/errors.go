package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"CoverPool/internal/core"
	"CoverPool/internal/ingestion"
	"CoverPool/internal/inmem"
	"CoverPool/internal/pool"
	"CoverPool/internal/query"
)

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// classify maps an error to an HTTP status and a stable kind label.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, ingestion.ErrInvalidCommand):
		return http.StatusBadRequest, "invalid_command"
	case errors.Is(err, core.ErrFaucetDisabled):
		return http.StatusForbidden, "faucet_disabled"
	case errors.Is(err, query.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, inmem.ErrNotArbitratorOwner):
		return http.StatusForbidden, pool.KindUnauthorized
	case errors.Is(err, inmem.ErrUnknownDispute):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, inmem.ErrDisputeNotRuled),
		errors.Is(err, inmem.ErrAppealPeriod),
		errors.Is(err, inmem.ErrDisputeSolved):
		return http.StatusConflict, pool.KindPrecondition
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, "canceled"
	}

	kind := pool.ErrorKind(err)
	switch kind {
	case pool.KindInvalidInput:
		return http.StatusBadRequest, kind
	case pool.KindCapacity:
		return http.StatusUnprocessableEntity, kind
	case pool.KindPrecondition:
		return http.StatusConflict, kind
	case pool.KindUnauthorized:
		return http.StatusForbidden, kind
	case pool.KindExternal:
		return http.StatusBadGateway, kind
	default:
		return http.StatusInternalServerError, kind
	}
}

func writeError(w http.ResponseWriter, err error) {
	code, kind := classify(err)
	writeJSON(w, code, errorBody{Error: err.Error(), Kind: kind})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
