package ingestion

import (
	"errors"
	"fmt"

	"CoverPool/internal/core"
	"CoverPool/internal/event"

	"github.com/google/uuid"
)

var ErrInvalidCommand = errors.New("invalid command")

// Parser converts raw JSON commands into typed event.Command values before
// they reach the deterministic core. It only checks structure; business
// rules are enforced by the pool engine.
type Parser struct {
	faucetEnabled bool
}

func NewParser(faucetEnabled bool) *Parser {
	return &Parser{faucetEnabled: faucetEnabled}
}

// Parse decodes data as the named command type and validates the fields
// every command carries.
func (p *Parser) Parse(commandType string, data []byte) (event.Command, error) {
	ct := event.ParseCommandType(commandType)
	if ct == event.CommandTypeUnknown {
		return nil, fmt.Errorf("%w: unknown command type %q", ErrInvalidCommand, commandType)
	}
	if ct == event.CommandTypeFaucet && !p.faucetEnabled {
		return nil, core.ErrFaucetDisabled
	}
	// Rulings only enter through the arbitrator.
	if ct == event.CommandTypeRule {
		return nil, fmt.Errorf("%w: %s is not accepted from clients", ErrInvalidCommand, commandType)
	}

	cmd, err := event.DecodeCommand(ct, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCommand, err)
	}
	if err := validateMeta(cmd); err != nil {
		return nil, err
	}
	return cmd, nil
}

func validateMeta(cmd event.Command) error {
	if cmd.IdempotencyKey() == uuid.Nil.String() {
		return fmt.Errorf("%w: request_id is required", ErrInvalidCommand)
	}
	if cmd.Caller() == (event.Meta{}).Sender {
		return fmt.Errorf("%w: sender is required", ErrInvalidCommand)
	}
	if cmd.Timestamp().IsZero() {
		return fmt.Errorf("%w: submitted_at is required", ErrInvalidCommand)
	}
	return nil
}
