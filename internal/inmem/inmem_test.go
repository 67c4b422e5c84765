package inmem_test

import (
	"context"
	"testing"
	"time"

	"CoverPool/internal/access"
	"CoverPool/internal/inmem"
	"CoverPool/internal/pool"
	"CoverPool/internal/state"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

var (
	alice    = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob      = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	poolAddr = common.HexToAddress("0x0000000000000000000000000000000000000c01")
	fundAddr = common.HexToAddress("0x0000000000000000000000000000000000000f01")
	usdcAddr = common.HexToAddress("0x0000000000000000000000000000000000000d01")
	arbAddr  = common.HexToAddress("0x0000000000000000000000000000000000000e01")
	custAddr = common.HexToAddress("0x0000000000000000000000000000000000000e02")
)

// ============================================================================
// Test: Token
// ============================================================================

func TestToken_TransferFromSpendsAllowance(t *testing.T) {
	ctx := context.Background()
	token := inmem.NewToken("USDC", usdcAddr)
	token.Mint(alice, 100)
	token.Approve(alice, poolAddr, 60)

	require.NoError(t, token.As(poolAddr).TransferFrom(ctx, alice, 40))
	require.Equal(t, int64(60), token.BalanceOf(alice))
	require.Equal(t, int64(40), token.BalanceOf(poolAddr))
	require.Equal(t, int64(20), token.Allowance(alice, poolAddr))

	err := token.As(poolAddr).TransferFrom(ctx, alice, 21)
	require.ErrorIs(t, err, inmem.ErrInsufficientAllowance)
}

func TestToken_RejectsOverdraftAndZeroRecipient(t *testing.T) {
	ctx := context.Background()
	token := inmem.NewToken("USDC", usdcAddr)
	token.Mint(poolAddr, 10)

	require.ErrorIs(t, token.As(poolAddr).Transfer(ctx, alice, 11), inmem.ErrInsufficientFunds)
	require.ErrorIs(t, token.As(poolAddr).Transfer(ctx, common.Address{}, 1), inmem.ErrInvalidTransfer)
	require.Equal(t, int64(10), token.BalanceOf(poolAddr))
}

func TestToken_InjectFault(t *testing.T) {
	ctx := context.Background()
	token := inmem.NewToken("USDC", usdcAddr)
	token.Mint(poolAddr, 10)
	token.InjectFault(func(from, to common.Address, amount int64) error {
		if to == bob {
			return inmem.ErrInvalidTransfer
		}
		return nil
	})

	require.Error(t, token.As(poolAddr).Transfer(ctx, bob, 1))
	require.NoError(t, token.As(poolAddr).Transfer(ctx, alice, 1))

	token.InjectFault(nil)
	require.NoError(t, token.As(poolAddr).Transfer(ctx, bob, 1))
}

// ============================================================================
// Test: Custodian
// ============================================================================

func TestCustodian_SupplyWithdrawAccrue(t *testing.T) {
	ctx := context.Background()
	token := inmem.NewToken("USDC", usdcAddr)
	token.Mint(poolAddr, 1000)
	cust := inmem.NewCustodian(token, custAddr)
	acct := cust.As(poolAddr)

	require.NoError(t, acct.Supply(ctx, 1000))
	cust.Accrue(poolAddr, 50)

	bal, err := acct.BalanceOf(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1050), bal)

	got, err := acct.Withdraw(ctx, 2000)
	require.NoError(t, err)
	require.Equal(t, int64(1050), got)
	require.Equal(t, int64(1050), token.BalanceOf(poolAddr))
}

func TestCustodian_LiquidityLimitAndPause(t *testing.T) {
	ctx := context.Background()
	token := inmem.NewToken("USDC", usdcAddr)
	token.Mint(poolAddr, 1000)
	cust := inmem.NewCustodian(token, custAddr)
	acct := cust.As(poolAddr)
	require.NoError(t, acct.Supply(ctx, 1000))

	cust.SetLiquidityLimit(300)
	got, err := acct.Withdraw(ctx, 500)
	require.NoError(t, err)
	require.Equal(t, int64(300), got)

	cust.SetPaused(true)
	_, err = acct.Withdraw(ctx, 1)
	require.ErrorIs(t, err, inmem.ErrCustodianPaused)
	require.ErrorIs(t, acct.Supply(ctx, 1), inmem.ErrCustodianPaused)
}

// ============================================================================
// Test: CoverageRegistry
// ============================================================================

func TestCoverageRegistry_Lifecycle(t *testing.T) {
	ctx := context.Background()
	reg := inmem.NewCoverageRegistry()

	first, err := reg.Mint(ctx, alice, 1000, 100, 200, 0)
	require.NoError(t, err)
	second, err := reg.Mint(ctx, alice, 500, 100, 200, 0)
	require.NoError(t, err)
	require.Equal(t, uint64(0), first)
	require.Equal(t, uint64(1), second)

	require.NoError(t, reg.SetStatus(ctx, first, state.CoverageClaimed))
	require.NoError(t, reg.SetStatus(ctx, first, state.CoverageExpired))
	require.ErrorIs(t, reg.SetStatus(ctx, first, state.CoverageActive), inmem.ErrStatusTerminal)
	require.ErrorIs(t, reg.SetValue(ctx, first, 10), inmem.ErrStatusTerminal)

	require.NoError(t, reg.SetValue(ctx, second, 0))
	info, err := reg.Info(ctx, second)
	require.NoError(t, err)
	require.Equal(t, state.CoverageClaimed, info.Status)

	_, err = reg.Info(ctx, 99)
	require.ErrorIs(t, err, inmem.ErrUnknownToken)
}

func TestCoverageRegistry_ExtendAndTransfer(t *testing.T) {
	ctx := context.Background()
	reg := inmem.NewCoverageRegistry()
	id, err := reg.Mint(ctx, alice, 1000, 0, 86400, 2)
	require.NoError(t, err)

	require.ErrorIs(t, reg.ExtendDuration(id, 0), inmem.ErrZeroDuration)
	require.NoError(t, reg.ExtendDuration(id, 2))
	info, err := reg.Info(ctx, id)
	require.NoError(t, err)
	require.Equal(t, int64(3*86400), info.End)

	require.ErrorIs(t, reg.Transfer(bob, alice, id), inmem.ErrNotOwner)
	require.NoError(t, reg.Transfer(alice, bob, id))
	owner, err := reg.OwnerOf(id)
	require.NoError(t, err)
	require.Equal(t, bob, owner)
}

// ============================================================================
// Test: Arbitrator
// ============================================================================

type recordingArbitrable struct {
	calls []state.Ruling
}

func (r *recordingArbitrable) Rule(_ context.Context, _ common.Address, _ uint64, ruling state.Ruling) error {
	r.calls = append(r.calls, ruling)
	return nil
}

func TestArbitrator_RulingAfterAppealPeriod(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1_000, 0)
	clock := func() time.Time { return now }
	arb := inmem.NewArbitrator(arbAddr, bob, 5, time.Hour, clock)
	target := &recordingArbitrable{}
	acct := arb.Account()
	acct.Bind(target)

	_, err := acct.CreateDispute(ctx, pool.DisputeRequest{Choices: 2, Fee: 4})
	require.ErrorIs(t, err, inmem.ErrInsufficientFee)

	id, err := acct.CreateDispute(ctx, pool.DisputeRequest{Choices: 2, Fee: 5})
	require.NoError(t, err)
	require.Equal(t, int64(5), arb.Collected())

	require.ErrorIs(t, arb.ExecuteRuling(ctx, id), inmem.ErrDisputeNotRuled)
	require.ErrorIs(t, arb.GiveRuling(alice, id, state.RulingYes), inmem.ErrNotArbitratorOwner)
	require.NoError(t, arb.GiveRuling(bob, id, state.RulingYes))
	require.ErrorIs(t, arb.ExecuteRuling(ctx, id), inmem.ErrAppealPeriod)

	now = now.Add(time.Hour)
	require.NoError(t, arb.ExecuteRuling(ctx, id))
	require.Equal(t, []state.Ruling{state.RulingYes}, target.calls)

	status, ok := arb.DisputeStatus(id)
	require.True(t, ok)
	require.Equal(t, inmem.DisputeSolved, status)
	require.ErrorIs(t, arb.ExecuteRuling(ctx, id), inmem.ErrDisputeSolved)
}

func TestArbitrator_CostChangeAppliesToNewDisputes(t *testing.T) {
	ctx := context.Background()
	arb := inmem.NewArbitrator(arbAddr, bob, 5, time.Hour, time.Now)
	acct := arb.Account()

	arb.SetArbitrationCost(8)
	cost, err := acct.ArbitrationCost(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(8), cost)

	_, err = acct.CreateDispute(ctx, pool.DisputeRequest{Choices: 2, Fee: 5})
	require.ErrorIs(t, err, inmem.ErrInsufficientFee)
}

func TestRoles_GrantRevoke(t *testing.T) {
	roles := inmem.NewRoles()
	roles.Grant(access.FundAdminRole, alice)
	require.True(t, roles.HasRole(access.FundAdminRole, alice))
	require.False(t, roles.HasRole(access.InsurancePoolAdminRole, alice))

	roles.Revoke(access.FundAdminRole, alice)
	require.False(t, roles.HasRole(access.FundAdminRole, alice))
}

// ============================================================================
// Test: Fund and Whitelist
// ============================================================================

func TestWhitelist_AddRemove(t *testing.T) {
	wl := inmem.NewWhitelist()

	require.ErrorIs(t, wl.Add(inmem.WhitelistReserve, common.Address{}), inmem.ErrZeroAddress)
	require.NoError(t, wl.Add(inmem.WhitelistReserve, poolAddr))
	require.ErrorIs(t, wl.Add(inmem.WhitelistReserve, poolAddr), inmem.ErrAlreadyWhitelisted)
	require.True(t, wl.Contains(inmem.WhitelistReserve, poolAddr))
	require.False(t, wl.Contains(inmem.WhitelistTreasury, poolAddr))

	require.NoError(t, wl.Remove(inmem.WhitelistReserve, poolAddr))
	require.ErrorIs(t, wl.Remove(inmem.WhitelistReserve, poolAddr), inmem.ErrNotWhitelisted)
}

func TestFund_TransferFundChecks(t *testing.T) {
	ctx := context.Background()
	token := inmem.NewToken("USDC", usdcAddr)
	token.Mint(fundAddr, 500)
	roles := inmem.NewRoles()
	wl := inmem.NewWhitelist()
	fund := inmem.NewFund(fundAddr, inmem.WhitelistReserve, roles, wl)
	acct := fund.As(poolAddr, token)

	require.ErrorIs(t, acct.TransferFund(ctx, poolAddr, 100), inmem.ErrFundUnauthorized)

	roles.Grant(access.FundAdminRole, poolAddr)
	require.ErrorIs(t, acct.TransferFund(ctx, poolAddr, 100), inmem.ErrTargetNotWhitelisted)

	require.NoError(t, wl.Add(inmem.WhitelistReserve, poolAddr))
	require.ErrorIs(t, acct.TransferFund(ctx, poolAddr, 100), inmem.ErrAssetNotWhitelisted)

	require.NoError(t, wl.Add(inmem.WhitelistAsset, usdcAddr))
	require.NoError(t, acct.TransferFund(ctx, poolAddr, 100))

	bal, err := acct.Balance(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(400), bal)
	require.Equal(t, int64(100), token.BalanceOf(poolAddr))
}

// ============================================================================
// Test: RewardToken
// ============================================================================

func TestRewardToken_MintRequiresRoleAndNeverMoves(t *testing.T) {
	ctx := context.Background()
	roles := inmem.NewRoles()
	reward := inmem.NewRewardToken(roles)
	minter := reward.MinterFor(poolAddr)

	require.ErrorIs(t, minter.Mint(ctx, alice, 10), inmem.ErrUnauthorizedMinter)

	roles.Grant(access.MinterRole, poolAddr)
	require.NoError(t, minter.Mint(ctx, alice, 10))
	require.Equal(t, int64(10), reward.BalanceOf(alice))
	require.Equal(t, int64(10), reward.TotalSupply())

	require.ErrorIs(t, reward.Transfer(alice, bob, 1), inmem.ErrNonTransferable)
}
