package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// CommandType discriminator for inbound pool commands
type CommandType int32

const (
	CommandTypeUnknown CommandType = iota
	CommandTypeDeposit
	CommandTypeRequestWithdrawal
	CommandTypeExecuteWithdrawal
	CommandTypeBuyCoverage
	CommandTypeCreateClaim
	CommandTypeRule
	CommandTypeSetRisk
	CommandTypeSetGovTokenAPR
	CommandTypeReleaseExpiredCoverage
	CommandTypeAdjustCoverage
	CommandTypeFaucet
)

var commandTypeNames = map[CommandType]string{
	CommandTypeDeposit:                "Deposit",
	CommandTypeRequestWithdrawal:      "RequestWithdrawal",
	CommandTypeExecuteWithdrawal:      "ExecuteWithdrawal",
	CommandTypeBuyCoverage:            "BuyCoverage",
	CommandTypeCreateClaim:            "CreateClaim",
	CommandTypeRule:                   "Rule",
	CommandTypeSetRisk:                "SetRisk",
	CommandTypeSetGovTokenAPR:         "SetGovTokenAPR",
	CommandTypeReleaseExpiredCoverage: "ReleaseExpiredCoverage",
	CommandTypeAdjustCoverage:         "AdjustCoverage",
	CommandTypeFaucet:                 "Faucet",
}

func (ct CommandType) String() string {
	if name, ok := commandTypeNames[ct]; ok {
		return name
	}
	return "Unknown"
}

// ParseCommandType maps a name back to its CommandType.
func ParseCommandType(name string) CommandType {
	for ct, n := range commandTypeNames {
		if n == name {
			return ct
		}
	}
	return CommandTypeUnknown
}

// EventEnvelope wraps every accepted command in the log
type EventEnvelope struct {
	// Global monotonic sequence assigned by core
	Sequence int64

	// Stable idempotency key from upstream
	IdempotencyKey string

	CommandType CommandType
	PoolID      uint64
	Caller      common.Address

	// Versioned input timestamp (NOT wall-clock)
	Timestamp time.Time

	// JSON-encoded command
	Payload []byte

	// Pool events emitted while applying the command
	Events []PoolEvent

	// SHA-256 of state AFTER applying this command
	StateHash [32]byte

	// Previous command's state hash (chain integrity)
	PrevHash [32]byte
}

// Command is the interface all inbound pool commands implement
type Command interface {
	// IdempotencyKey returns the stable dedup key
	IdempotencyKey() string

	// CommandType returns the discriminator
	CommandType() CommandType

	// Caller is the account the command acts for
	Caller() common.Address

	// Timestamp is the versioned time the command takes effect at
	Timestamp() time.Time
}

// Meta carries the fields every command shares.
type Meta struct {
	RequestID   uuid.UUID      `json:"request_id"`
	Sender      common.Address `json:"sender"`
	SubmittedAt time.Time      `json:"submitted_at"`
}

func (m Meta) IdempotencyKey() string {
	return m.RequestID.String()
}

func (m Meta) Caller() common.Address {
	return m.Sender
}

func (m Meta) Timestamp() time.Time {
	return m.SubmittedAt
}

// NewCommand returns an empty command of the given type, ready to be decoded
// into.
func NewCommand(ct CommandType) (Command, error) {
	switch ct {
	case CommandTypeDeposit:
		return &Deposit{}, nil
	case CommandTypeRequestWithdrawal:
		return &RequestWithdrawal{}, nil
	case CommandTypeExecuteWithdrawal:
		return &ExecuteWithdrawal{}, nil
	case CommandTypeBuyCoverage:
		return &BuyCoverage{}, nil
	case CommandTypeCreateClaim:
		return &CreateClaim{}, nil
	case CommandTypeRule:
		return &Rule{}, nil
	case CommandTypeSetRisk:
		return &SetRisk{}, nil
	case CommandTypeSetGovTokenAPR:
		return &SetGovTokenAPR{}, nil
	case CommandTypeReleaseExpiredCoverage:
		return &ReleaseExpiredCoverage{}, nil
	case CommandTypeAdjustCoverage:
		return &AdjustCoverage{}, nil
	case CommandTypeFaucet:
		return &Faucet{}, nil
	default:
		return nil, fmt.Errorf("unknown command type %d", ct)
	}
}

// DecodeCommand decodes a JSON payload written by EncodeCommand (or sent by a
// client) into the concrete command type.
func DecodeCommand(ct CommandType, payload []byte) (Command, error) {
	cmd, err := NewCommand(ct)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(payload, cmd); err != nil {
		return nil, fmt.Errorf("decode %s: %w", ct, err)
	}
	return cmd, nil
}

// EncodeCommand is the log payload of a command.
func EncodeCommand(cmd Command) ([]byte, error) {
	data, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", cmd.CommandType(), err)
	}
	return data, nil
}
