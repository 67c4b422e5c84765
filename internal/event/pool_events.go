package event

import (
	"encoding/json"
	"fmt"

	"CoverPool/internal/state"

	"github.com/ethereum/go-ethereum/common"
)

// PoolEvent is an observable fact emitted by the engine, published for
// external indexers. Events never drive internal control flow.
type PoolEvent interface {
	EventName() string
}

type LiquidityProvided struct {
	PoolID   uint64         `json:"pool_id"`
	Provider common.Address `json:"provider"`
	Amount   int64          `json:"amount"`
	Shares   int64          `json:"shares"`
	Repaid   int64          `json:"repaid_to_reserve"`
}

func (LiquidityProvided) EventName() string { return "LiquidityProvided" }

type WithdrawalRequested struct {
	PoolID   uint64         `json:"pool_id"`
	Provider common.Address `json:"provider"`
	Shares   int64          `json:"shares"`
	UnlockAt int64          `json:"unlock_at"`
}

func (WithdrawalRequested) EventName() string { return "WithdrawalRequested" }

type WithdrawalExecuted struct {
	PoolID      uint64         `json:"pool_id"`
	Provider    common.Address `json:"provider"`
	Shares      int64          `json:"shares"`
	Amount      int64          `json:"amount"`
	FromReserve int64          `json:"from_reserve"`
	Reward      int64          `json:"reward"`
}

func (WithdrawalExecuted) EventName() string { return "WithdrawalExecuted" }

type CoveragePurchased struct {
	PoolID       uint64         `json:"pool_id"`
	Insured      common.Address `json:"insured"`
	CoverAmount  int64          `json:"cover_amount"`
	DurationDays int64          `json:"duration_days"`
	Premium      int64          `json:"premium"`
	TokenID      uint64         `json:"token_id"`
}

func (CoveragePurchased) EventName() string { return "CoveragePurchased" }

type CoverageExpired struct {
	PoolID  uint64 `json:"pool_id"`
	TokenID uint64 `json:"token_id"`
	Value   int64  `json:"value"`
}

func (CoverageExpired) EventName() string { return "CoverageExpired" }

type CoverageAdjusted struct {
	PoolID   uint64 `json:"pool_id"`
	TokenID  uint64 `json:"token_id"`
	OldValue int64  `json:"old_value"`
	NewValue int64  `json:"new_value"`
}

func (CoverageAdjusted) EventName() string { return "CoverageAdjusted" }

type RiskUpdated struct {
	PoolID uint64          `json:"pool_id"`
	Risk   state.RiskScore `json:"risk"`
}

func (RiskUpdated) EventName() string { return "RiskUpdated" }

type GovernanceTokenAprUpdated struct {
	PoolID uint64 `json:"pool_id"`
	APR    int64  `json:"apr"`
}

func (GovernanceTokenAprUpdated) EventName() string { return "GovernanceTokenAprUpdated" }

// Evidence groups evidence under the claim id.
type Evidence struct {
	Arbitrator      common.Address `json:"arbitrator"`
	EvidenceGroupID uint64         `json:"evidence_group_id"`
	Party           common.Address `json:"party"`
	EvidenceURI     string         `json:"evidence_uri"`
}

func (Evidence) EventName() string { return "Evidence" }

type Dispute struct {
	Arbitrator      common.Address `json:"arbitrator"`
	DisputeID       uint64         `json:"dispute_id"`
	MetaEvidenceID  uint64         `json:"meta_evidence_id"`
	EvidenceGroupID uint64         `json:"evidence_group_id"`
}

func (Dispute) EventName() string { return "Dispute" }

type Ruling struct {
	Arbitrator common.Address `json:"arbitrator"`
	DisputeID  uint64         `json:"dispute_id"`
	Ruling     state.Ruling   `json:"ruling"`
}

func (Ruling) EventName() string { return "Ruling" }

type ClaimPaid struct {
	PoolID      uint64         `json:"pool_id"`
	DisputeID   uint64         `json:"dispute_id"`
	Claimant    common.Address `json:"claimant"`
	Amount      int64          `json:"amount"`
	FromReserve int64          `json:"from_reserve"`
}

func (ClaimPaid) EventName() string { return "ClaimPaid" }

type ReserveBorrowed struct {
	PoolID uint64 `json:"pool_id"`
	Amount int64  `json:"amount"`
}

func (ReserveBorrowed) EventName() string { return "ReserveBorrowed" }

type ReserveRepaid struct {
	PoolID uint64 `json:"pool_id"`
	Amount int64  `json:"amount"`
}

func (ReserveRepaid) EventName() string { return "ReserveRepaid" }

// namedEvent is the wire form of a PoolEvent.
type namedEvent struct {
	Name string          `json:"name"`
	Data json.RawMessage `json:"data"`
}

// MarshalEvents encodes events with their names so they can be decoded back
// into concrete types.
func MarshalEvents(events []PoolEvent) ([]byte, error) {
	wire := make([]namedEvent, 0, len(events))
	for _, evt := range events {
		data, err := json.Marshal(evt)
		if err != nil {
			return nil, fmt.Errorf("marshal %s: %w", evt.EventName(), err)
		}
		wire = append(wire, namedEvent{Name: evt.EventName(), Data: data})
	}
	return json.Marshal(wire)
}

// UnmarshalEvents is the inverse of MarshalEvents.
func UnmarshalEvents(data []byte) ([]PoolEvent, error) {
	var wire []namedEvent
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("unmarshal events: %w", err)
	}

	events := make([]PoolEvent, 0, len(wire))
	for _, w := range wire {
		evt, err := decodeEvent(w.Name, w.Data)
		if err != nil {
			return nil, err
		}
		events = append(events, evt)
	}
	return events, nil
}

func decodeEvent(name string, data json.RawMessage) (PoolEvent, error) {
	switch name {
	case "LiquidityProvided":
		return decodeAs[LiquidityProvided](name, data)
	case "WithdrawalRequested":
		return decodeAs[WithdrawalRequested](name, data)
	case "WithdrawalExecuted":
		return decodeAs[WithdrawalExecuted](name, data)
	case "CoveragePurchased":
		return decodeAs[CoveragePurchased](name, data)
	case "CoverageExpired":
		return decodeAs[CoverageExpired](name, data)
	case "CoverageAdjusted":
		return decodeAs[CoverageAdjusted](name, data)
	case "RiskUpdated":
		return decodeAs[RiskUpdated](name, data)
	case "GovernanceTokenAprUpdated":
		return decodeAs[GovernanceTokenAprUpdated](name, data)
	case "Evidence":
		return decodeAs[Evidence](name, data)
	case "Dispute":
		return decodeAs[Dispute](name, data)
	case "Ruling":
		return decodeAs[Ruling](name, data)
	case "ClaimPaid":
		return decodeAs[ClaimPaid](name, data)
	case "ReserveBorrowed":
		return decodeAs[ReserveBorrowed](name, data)
	case "ReserveRepaid":
		return decodeAs[ReserveRepaid](name, data)
	default:
		return nil, fmt.Errorf("unknown pool event %q", name)
	}
}

// decodeAs decodes into a value of T, matching what the engine emits.
func decodeAs[T PoolEvent](name string, data json.RawMessage) (PoolEvent, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	return v, nil
}
