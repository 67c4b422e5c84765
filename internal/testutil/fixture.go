package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"CoverPool/internal/inmem"
	"CoverPool/internal/pool"
	"CoverPool/internal/state"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
)

// Well-known test accounts.
var (
	Admin     = common.HexToAddress("0x000000000000000000000000000000000000ad01")
	Owner     = common.HexToAddress("0x000000000000000000000000000000000000ad02")
	Treasury  = common.HexToAddress("0x000000000000000000000000000000000000f001")
	Insurer   = common.HexToAddress("0x0000000000000000000000000000000000001001")
	Insurer2  = common.HexToAddress("0x0000000000000000000000000000000000001002")
	Insured   = common.HexToAddress("0x0000000000000000000000000000000000002001")
	Stranger  = common.HexToAddress("0x0000000000000000000000000000000000003001")
	GenesisTS = time.Unix(1_700_000_000, 0)
)

const (
	ArbitrationCost = 10
	AppealPeriod    = time.Hour
)

// PoolFixture is one pool deployed into an in-memory world with a
// controllable clock. Receipts emitted by the engine are collected.
type PoolFixture struct {
	T          *testing.T
	World      *inmem.World
	Engine     *pool.Engine
	Token      *inmem.Token
	Custodian  *inmem.Custodian
	Arbitrator *inmem.Arbitrator
	Oracle     *inmem.ArbitratorAccount // the pool's arbitrator account; rulings go to its bound target
	Address    common.Address

	mu       sync.Mutex
	now      time.Time
	receipts []pool.Receipt
}

// DefaultParams is a USDC pool at risk 3 that pays the treasury.
func DefaultParams() state.PoolParams {
	return state.PoolParams{
		PoolID:   0,
		Name:     "Stablecoin depeg",
		Asset:    "USDC",
		Risk:     3,
		Treasury: Treasury,
	}
}

// NewPoolFixture deploys a pool with params; a zero Asset selects
// DefaultParams.
func NewPoolFixture(t *testing.T, params state.PoolParams) *PoolFixture {
	t.Helper()
	if params.Asset == "" {
		params = DefaultParams()
	}

	f := &PoolFixture{T: t, now: GenesisTS}
	f.World = inmem.NewWorld(inmem.WorldConfig{
		Admin:           Admin,
		ArbitratorOwner: Owner,
		ArbitrationCost: ArbitrationCost,
		AppealPeriod:    AppealPeriod,
		Clock:           f.Now,
	})
	f.Address = inmem.PoolAddress(params.PoolID)
	f.Token = f.World.Token(params.Asset)
	f.Custodian = f.World.Custodian(params.Asset)
	f.Arbitrator = f.World.Arbitrator
	if params.Treasury != (common.Address{}) {
		if err := f.World.Whitelist.Add(inmem.WhitelistTreasury, params.Treasury); err != nil {
			t.Fatalf("whitelist treasury: %v", err)
		}
	}

	deps, arb, err := f.World.Deps(f.Address, params.Asset, f.Now, zerolog.Nop())
	if err != nil {
		t.Fatalf("wire pool: %v", err)
	}
	engine, err := pool.NewEngine(pool.Config{Params: params, Address: f.Address}, deps)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	arb.Bind(engine)
	engine.SetEmitter(f)
	f.Oracle = arb
	f.Engine = engine
	return f
}

func (f *PoolFixture) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *PoolFixture) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func (f *PoolFixture) Emit(r pool.Receipt) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.receipts = append(f.receipts, r)
}

// Receipts returns the receipts collected so far.
func (f *PoolFixture) Receipts() []pool.Receipt {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]pool.Receipt(nil), f.receipts...)
}

// Fund mints amount to account and approves the pool to pull it.
func (f *PoolFixture) Fund(account common.Address, amount int64) {
	f.Token.Mint(account, amount)
	f.Token.Approve(account, f.Address, f.Token.Allowance(account, f.Address)+amount)
}

// FundReserve credits the reserve fund with amount of the pool asset.
func (f *PoolFixture) FundReserve(amount int64) {
	f.Token.Mint(f.World.Reserve.Address(), amount)
}

func (f *PoolFixture) ReserveBalance() int64 {
	return f.Token.BalanceOf(f.World.Reserve.Address())
}

func (f *PoolFixture) CustodyBalance() int64 {
	return f.Custodian.Supplied(f.Address)
}

// MustDeposit funds provider and deposits amount.
func (f *PoolFixture) MustDeposit(provider common.Address, amount int64) pool.DepositResult {
	f.T.Helper()
	f.Fund(provider, amount)
	res, err := f.Engine.Deposit(context.Background(), provider, amount)
	if err != nil {
		f.T.Fatalf("deposit %d: %v", amount, err)
	}
	return res
}

// MustBuyCoverage funds the insured with enough for the premium and buys.
func (f *PoolFixture) MustBuyCoverage(insured common.Address, cover, days int64) pool.CoverageResult {
	f.T.Helper()
	premium, err := f.Engine.ComputePremium(cover, days)
	if err != nil {
		f.T.Fatalf("premium: %v", err)
	}
	f.Fund(insured, premium)
	res, err := f.Engine.BuyCoverage(context.Background(), insured, cover, days)
	if err != nil {
		f.T.Fatalf("buy coverage %d for %d days: %v", cover, days, err)
	}
	return res
}

// MustCreateClaim funds claimant with the arbitration cost and files a claim
// paying exactly that.
func (f *PoolFixture) MustCreateClaim(claimant common.Address, tokenID uint64) pool.ClaimResult {
	f.T.Helper()
	f.Fund(claimant, ArbitrationCost)
	res, err := f.Engine.CreateClaim(context.Background(), claimant, tokenID, "ipfs://evidence", ArbitrationCost)
	if err != nil {
		f.T.Fatalf("create claim on %d: %v", tokenID, err)
	}
	return res
}

// Resolve has the arbitrator rule, waits out the appeal period and delivers
// the ruling to the pool.
func (f *PoolFixture) Resolve(disputeID uint64, ruling state.Ruling) error {
	f.T.Helper()
	if err := f.Arbitrator.GiveRuling(Owner, disputeID, ruling); err != nil {
		f.T.Fatalf("give ruling: %v", err)
	}
	f.Advance(AppealPeriod)
	return f.Arbitrator.ExecuteRuling(context.Background(), disputeID)
}
