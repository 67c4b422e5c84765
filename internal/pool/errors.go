package pool

import (
	"errors"

	"CoverPool/internal/state"
)

// Invalid input.
var (
	ErrInvalidAmount              = errors.New("invalid amount")
	ErrDepositTooSmall            = errors.New("deposit too small to mint a share")
	ErrInsufficientWithdrawal     = errors.New("insufficient withdrawal")
	ErrInvalidCoverageAmount      = errors.New("invalid coverage amount")
	ErrInvalidDuration            = errors.New("invalid coverage duration")
	ErrInvalidRisk                = state.ErrInvalidRisk
	ErrInvalidRuling              = state.ErrInvalidRuling
	ErrInsufficientArbitrationFee = errors.New("insufficient arbitration fee")
)

// Insufficient capacity.
var (
	ErrInsufficientBalance = errors.New("insufficient balance")
)

// Precondition violated.
var (
	ErrWithdrawRequestNotAllowed = errors.New("withdraw request not allowed")
	ErrNoPendingWithdrawal       = errors.New("no pending withdrawal")
	ErrWithdrawalNotReady        = errors.New("withdrawal not ready")
	ErrNotCoverHolder            = errors.New("not cover holder")
	ErrInvalidStatus             = errors.New("invalid status")
	ErrCoverageEnded             = errors.New("coverage period ended")
	ErrCoverageNotEnded          = errors.New("coverage period not ended")
	ErrWrongPool                 = errors.New("coverage belongs to another pool")
	ErrUnknownDispute            = errors.New("unknown dispute")
	ErrAlreadyRuled              = errors.New("dispute already ruled")
	ErrDuplicateDispute          = errors.New("dispute id already in use")
	ErrReentrantCall             = errors.New("reentrant call")
)

// Unauthorized caller.
var (
	ErrNotArbitrator = errors.New("not arbitrator")
	ErrUnauthorized  = errors.New("missing role")
)

// External-call failure.
var (
	ErrTransferFailed   = errors.New("asset transfer failed")
	ErrCustodianFailed  = errors.New("yield custodian call failed")
	ErrRegistryFailed   = errors.New("coverage registry call failed")
	ErrOracleFailed     = errors.New("arbitration oracle call failed")
	ErrReserveFailed    = errors.New("reserve fund call failed")
	ErrReserveExhausted = errors.New("reserve exhausted")
)

// Error kinds, used as metric labels and to pick API status codes.
const (
	KindInvalidInput = "invalid_input"
	KindCapacity     = "insufficient_capacity"
	KindPrecondition = "precondition"
	KindUnauthorized = "unauthorized"
	KindExternal     = "external"
	KindInvariant    = "invariant"
	KindInternal     = "internal"
)

var errorKinds = []struct {
	err  error
	kind string
}{
	{ErrInvalidAmount, KindInvalidInput},
	{ErrDepositTooSmall, KindInvalidInput},
	{ErrInsufficientWithdrawal, KindInvalidInput},
	{ErrInvalidCoverageAmount, KindInvalidInput},
	{ErrInvalidDuration, KindInvalidInput},
	{ErrInvalidRisk, KindInvalidInput},
	{ErrInvalidRuling, KindInvalidInput},
	{ErrInsufficientArbitrationFee, KindInvalidInput},
	{ErrInsufficientBalance, KindCapacity},
	{ErrWithdrawRequestNotAllowed, KindPrecondition},
	{ErrNoPendingWithdrawal, KindPrecondition},
	{ErrWithdrawalNotReady, KindPrecondition},
	{ErrNotCoverHolder, KindPrecondition},
	{ErrInvalidStatus, KindPrecondition},
	{ErrCoverageEnded, KindPrecondition},
	{ErrCoverageNotEnded, KindPrecondition},
	{ErrWrongPool, KindPrecondition},
	{ErrUnknownDispute, KindPrecondition},
	{ErrAlreadyRuled, KindPrecondition},
	{ErrDuplicateDispute, KindPrecondition},
	{ErrReentrantCall, KindPrecondition},
	{ErrNotArbitrator, KindUnauthorized},
	{ErrUnauthorized, KindUnauthorized},
	{ErrTransferFailed, KindExternal},
	{ErrCustodianFailed, KindExternal},
	{ErrRegistryFailed, KindExternal},
	{ErrOracleFailed, KindExternal},
	{ErrReserveFailed, KindExternal},
	{ErrReserveExhausted, KindExternal},
	{state.ErrInvariantViolated, KindInvariant},
}

// ErrorKind classifies an error returned by the engine.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	for _, ek := range errorKinds {
		if errors.Is(err, ek.err) {
			return ek.kind
		}
	}
	return KindInternal
}
