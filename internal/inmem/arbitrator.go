package inmem

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"CoverPool/internal/pool"
	"CoverPool/internal/state"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrInsufficientFee    = errors.New("insufficient arbitration fee")
	ErrUnknownDispute     = errors.New("unknown dispute")
	ErrNotArbitratorOwner = errors.New("not arbitrator owner")
	ErrDisputeNotRuled    = errors.New("dispute not ruled")
	ErrAppealPeriod       = errors.New("appeal period not over")
	ErrDisputeSolved      = errors.New("dispute already solved")
	ErrNoArbitrable       = errors.New("no arbitrable bound")
)

// DisputeStatus follows the arbitrator's dispute lifecycle.
type DisputeStatus uint8

const (
	DisputeWaiting DisputeStatus = iota
	DisputeAppealable
	DisputeSolved
)

// Arbitrable receives executed rulings.
type Arbitrable interface {
	Rule(ctx context.Context, caller common.Address, disputeID uint64, ruling state.Ruling) error
}

type dispute struct {
	account *ArbitratorAccount
	choices uint8
	fee     int64
	status  DisputeStatus
	ruling  state.Ruling
	ruledAt time.Time
}

// Arbitrator is a centralized arbitrator: the owner gives rulings, which
// become executable once the appeal period has passed.
type Arbitrator struct {
	mu           sync.Mutex
	address      common.Address
	owner        common.Address
	cost         int64
	appealPeriod time.Duration
	clock        func() time.Time
	disputes     map[uint64]*dispute
	next         uint64
	collected    int64
}

func NewArbitrator(address, owner common.Address, cost int64, appealPeriod time.Duration, clock func() time.Time) *Arbitrator {
	if clock == nil {
		clock = time.Now
	}
	return &Arbitrator{
		address:      address,
		owner:        owner,
		cost:         cost,
		appealPeriod: appealPeriod,
		clock:        clock,
		disputes:     make(map[uint64]*dispute),
	}
}

func (a *Arbitrator) Address() common.Address {
	return a.address
}

func (a *Arbitrator) ArbitrationCost(context.Context) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cost, nil
}

func (a *Arbitrator) SetArbitrationCost(cost int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cost = cost
}

// GiveRuling records the owner's decision; it can be executed once the
// appeal period has passed.
func (a *Arbitrator) GiveRuling(caller common.Address, disputeID uint64, ruling state.Ruling) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if caller != a.owner {
		return fmt.Errorf("%w: %s", ErrNotArbitratorOwner, caller.Hex())
	}
	d, ok := a.disputes[disputeID]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownDispute, disputeID)
	}
	if d.status == DisputeSolved {
		return fmt.Errorf("%w: %d", ErrDisputeSolved, disputeID)
	}
	if uint8(ruling) > d.choices {
		return fmt.Errorf("%w: %d of %d choices", state.ErrInvalidRuling, ruling, d.choices)
	}
	d.ruling = ruling
	d.ruledAt = a.clock()
	d.status = DisputeAppealable
	return nil
}

// ExecuteRuling delivers a final ruling to the arbitrable.
func (a *Arbitrator) ExecuteRuling(ctx context.Context, disputeID uint64) error {
	a.mu.Lock()
	d, ok := a.disputes[disputeID]
	switch {
	case !ok:
		a.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrUnknownDispute, disputeID)
	case d.status == DisputeSolved:
		a.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrDisputeSolved, disputeID)
	case d.status != DisputeAppealable:
		a.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrDisputeNotRuled, disputeID)
	case a.clock().Before(d.ruledAt.Add(a.appealPeriod)):
		a.mu.Unlock()
		return fmt.Errorf("%w: %d executable at %s", ErrAppealPeriod, disputeID, d.ruledAt.Add(a.appealPeriod))
	case d.account.target == nil:
		a.mu.Unlock()
		return ErrNoArbitrable
	}
	target, ruling := d.account.target, d.ruling
	a.mu.Unlock()

	if err := target.Rule(ctx, a.address, disputeID, ruling); err != nil {
		return fmt.Errorf("deliver ruling %d: %w", disputeID, err)
	}

	a.mu.Lock()
	d.status = DisputeSolved
	a.mu.Unlock()
	return nil
}

func (a *Arbitrator) DisputeStatus(disputeID uint64) (DisputeStatus, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	d, ok := a.disputes[disputeID]
	if !ok {
		return 0, false
	}
	return d.status, true
}

// Collected returns the total arbitration fees received.
func (a *Arbitrator) Collected() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.collected
}

// Account returns a view of the arbitrator for one arbitrable contract.
// Disputes created through it deliver their rulings to the bound target.
func (a *Arbitrator) Account() *ArbitratorAccount {
	return &ArbitratorAccount{arbitrator: a}
}

// ArbitratorAccount is the arbitrator as seen by one arbitrable.
type ArbitratorAccount struct {
	arbitrator *Arbitrator
	target     Arbitrable
}

// Bind sets where rulings are delivered. The arbitrable usually exists only
// after the account has been handed to it, hence the late binding.
func (acct *ArbitratorAccount) Bind(target Arbitrable) {
	a := acct.arbitrator
	a.mu.Lock()
	defer a.mu.Unlock()
	acct.target = target
}

func (acct *ArbitratorAccount) Address() common.Address {
	return acct.arbitrator.Address()
}

func (acct *ArbitratorAccount) ArbitrationCost(ctx context.Context) (int64, error) {
	return acct.arbitrator.ArbitrationCost(ctx)
}

func (acct *ArbitratorAccount) CreateDispute(_ context.Context, req pool.DisputeRequest) (uint64, error) {
	a := acct.arbitrator
	a.mu.Lock()
	defer a.mu.Unlock()
	if req.Fee < a.cost {
		return 0, fmt.Errorf("%w: paid %d, cost %d", ErrInsufficientFee, req.Fee, a.cost)
	}
	id := a.next
	a.next++
	a.disputes[id] = &dispute{account: acct, choices: req.Choices, fee: req.Fee}
	a.collected += req.Fee
	return id, nil
}
