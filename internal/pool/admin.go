package pool

import (
	"context"
	"fmt"

	"CoverPool/internal/access"
	"CoverPool/internal/event"
	"CoverPool/internal/state"

	"github.com/ethereum/go-ethereum/common"
)

// SetRisk updates the risk score used for pricing.
func (e *Engine) SetRisk(ctx context.Context, caller common.Address, risk state.RiskScore) error {
	return e.run(ctx, "set_risk", func(t *tx) error {
		if err := e.requireRole(access.InsurancePoolAdminRole, caller); err != nil {
			return err
		}
		if err := state.ValidateRisk(risk); err != nil {
			return err
		}
		e.state.Risk = risk
		t.emit(event.RiskUpdated{PoolID: e.params.PoolID, Risk: risk})
		return nil
	})
}

// SetGovTokenAPR updates the reward rate paid on withdrawal, in bps a year.
func (e *Engine) SetGovTokenAPR(ctx context.Context, caller common.Address, apr int64) error {
	return e.run(ctx, "set_gov_token_apr", func(t *tx) error {
		if err := e.requireRole(access.InsurancePoolAdminRole, caller); err != nil {
			return err
		}
		if apr < 0 {
			return fmt.Errorf("%w: apr %d", ErrInvalidAmount, apr)
		}
		e.state.GovTokenAPR = apr
		t.emit(event.GovernanceTokenAprUpdated{PoolID: e.params.PoolID, APR: apr})
		return nil
	})
}
