package lending

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"creditpool/core/events"
	nativecommon "creditpool/native/common"
)

const halfTerm = 15 * 24 * 60 * 60

func (h *harness) borrowToken(t *testing.T, amount, collateral uint64) uint64 {
	t.Helper()
	index, err := h.engine.Borrow(h.ctx, tokenCall(bob), BorrowRequest{
		Asset:            token,
		Amount:           u(amount),
		CollateralAsset:  token,
		CollateralAmount: u(collateral),
	})
	require.NoError(t, err)
	return index
}

func TestBorrowRequiresConfiguredCollateral(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CollateralTiers = []CollateralTier{
		{MinScore: 800, RatioBps: 11_000},
		{MinScore: 600, RatioBps: 13_000},
		{MinScore: 400, RatioBps: 15_000},
	}
	h := newHarness(t, cfg)
	h.deposit(t, alice, 1000)

	_, err := h.engine.Borrow(h.ctx, tokenCall(bob), BorrowRequest{Asset: token, Amount: u(10), CollateralAsset: token, CollateralAmount: u(19)})
	require.ErrorIs(t, err, ErrInsufficientCollateral)
	require.Equal(t, nativecommon.KindPolicyViolation, nativecommon.KindOf(err))

	index, err := h.engine.Borrow(h.ctx, tokenCall(bob), BorrowRequest{Asset: token, Amount: u(10), CollateralAsset: token, CollateralAmount: u(20)})
	require.NoError(t, err)
	require.Equal(t, uint64(0), index)
}

func TestDefaultTiersAtDefaultScore(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.deposit(t, alice, 1000)

	_, err := h.engine.Borrow(h.ctx, tokenCall(bob), BorrowRequest{Asset: token, Amount: u(10), CollateralAsset: token, CollateralAmount: u(17)})
	require.ErrorIs(t, err, ErrInsufficientCollateral)
	require.Equal(t, uint64(0), h.borrowToken(t, 10, 18))
	require.Equal(t, uint64(1), h.borrowToken(t, 10, 18))
}

func TestBorrowOpensPositionAndPaysOut(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.deposit(t, alice, 10_000_000)

	index := h.borrowToken(t, 1_000_000, 1_800_000)
	require.Equal(t, []Transfer{
		{Kind: TransferPull, Asset: token, Account: bob, Amount: u(1_800_000)},
		{Kind: TransferPush, Asset: token, Account: bob, Amount: u(1_000_000)},
	}, h.vault.last())

	positions, err := h.engine.Positions(bob)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	pos := positions[index]
	require.True(t, pos.IsActive())
	require.Equal(t, uint64(470), pos.InterestRateBps)
	require.Equal(t, uint64(startTime), pos.BorrowTime)
	require.Equal(t, uint64(startTime+DefaultLoanDurationSeconds), pos.DueDate)
	require.Equal(t, u(1_800_000), pos.CollateralAmount)

	profile, err := h.engine.Profile(bob)
	require.NoError(t, err)
	require.True(t, profile.Active)
	require.Equal(t, uint64(300), profile.Score)
	require.Equal(t, u(1_000_000), profile.TotalBorrowed)

	pool := h.pool(t, token)
	require.Equal(t, u(10_000_000), pool.TotalReserves)
	require.Equal(t, u(1_000_000), pool.TotalBorrowed)
	require.Equal(t, u(9_000_000), pool.AvailableLiquidity())
}

func TestBorrowRejections(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.deposit(t, alice, 1000)
	req := func(asset, collateralAsset common.Address, amount, collateral uint64) BorrowRequest {
		return BorrowRequest{Asset: asset, Amount: u(amount), CollateralAsset: collateralAsset, CollateralAmount: u(collateral)}
	}

	_, err := h.engine.Borrow(h.ctx, tokenCall(bob), BorrowRequest{Asset: token, CollateralAsset: token, CollateralAmount: u(10)})
	require.ErrorIs(t, err, ErrInvalidAmount)
	_, err = h.engine.Borrow(h.ctx, tokenCall(bob), req(otherToken, token, 10, 20))
	require.ErrorIs(t, err, ErrUnsupportedAsset)
	_, err = h.engine.Borrow(h.ctx, tokenCall(bob), req(token, otherToken, 10, 20))
	require.ErrorIs(t, err, ErrUnsupportedAsset)
	_, err = h.engine.Borrow(h.ctx, tokenCall(bob), req(token, NativeAsset, 10, 20))
	require.ErrorIs(t, err, ErrCrossAssetCollateral)
	_, err = h.engine.Borrow(h.ctx, tokenCall(bob), req(token, token, 1001, 2000))
	require.ErrorIs(t, err, ErrInsufficientLiquidity)
	_, err = h.engine.Borrow(h.ctx, nativeCall(bob, 20), req(token, token, 10, 20))
	require.ErrorIs(t, err, ErrUnexpectedValue)

	require.NoError(t, h.engine.SetMaxBorrowLimit(h.ctx, owner, token, u(100)))
	_, err = h.engine.Borrow(h.ctx, tokenCall(bob), req(token, token, 101, 200))
	require.ErrorIs(t, err, ErrBorrowLimitExceeded)
	h.borrowToken(t, 100, 180)
	_, err = h.engine.Borrow(h.ctx, tokenCall(bob), req(token, token, 1, 2))
	require.ErrorIs(t, err, ErrBorrowLimitExceeded)
}

func TestRepayInFullOnTimeRaisesScore(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.deposit(t, alice, 10_000_000)
	h.borrowToken(t, 1_000_000, 1_800_000)
	h.clock.advance(halfTerm)

	debt, err := h.engine.PositionDebt(bob, 0)
	require.NoError(t, err)
	require.Equal(t, u(1_931), debt.Interest)
	require.Equal(t, u(1_001_931), debt.Total)

	res, err := h.engine.Repay(h.ctx, tokenCall(bob), 0, u(2_000_000))
	require.NoError(t, err)
	require.True(t, res.Closed)
	require.True(t, res.OnTime)
	require.Equal(t, u(1_001_931), res.Collected)
	require.Equal(t, u(1_931), res.InterestPaid)
	require.Equal(t, u(1_000_000), res.PrincipalPaid)
	require.Equal(t, []Transfer{
		{Kind: TransferPull, Asset: token, Account: bob, Amount: u(1_001_931)},
		{Kind: TransferPush, Asset: token, Account: bob, Amount: u(1_800_000)},
	}, h.vault.last())

	profile, err := h.engine.Profile(bob)
	require.NoError(t, err)
	require.Equal(t, uint64(310), profile.Score)
	require.Equal(t, uint64(1), profile.OnTimePayments)
	require.Equal(t, u(1_001_931), profile.TotalRepaid)

	pool := h.pool(t, token)
	require.True(t, pool.TotalBorrowed.IsZero())
	require.Equal(t, u(9), pool.AccumulatedProtocolFee)
	require.Equal(t, u(10_001_922), pool.TotalReserves)
	value, err := h.engine.RedeemableValue(token, alice)
	require.NoError(t, err)
	require.Equal(t, u(10_001_922), value)

	positions, err := h.engine.Positions(bob)
	require.NoError(t, err)
	require.Equal(t, PositionRepaid, positions[0].Status)
	require.Equal(t, u(1_931), positions[0].AccruedInterestPaid)

	updates := h.emitter.ofType(events.TypeCreditScoreUpdated)
	require.Len(t, updates, 1)
	require.Equal(t, events.CreditScoreUpdated{Borrower: bob, Previous: 300, Current: 310, Reason: reasonOnTime}, updates[0])

	_, err = h.engine.Repay(h.ctx, tokenCall(bob), 0, u(1))
	require.ErrorIs(t, err, ErrPositionInactive)
	_, err = h.engine.Repay(h.ctx, tokenCall(bob), 1, u(1))
	require.ErrorIs(t, err, ErrPositionIndex)
	require.Equal(t, nativecommon.KindInvalidInput, nativecommon.KindOf(err))
}

func TestPartialRepayPaysInterestFirst(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.deposit(t, alice, 10_000_000)
	h.borrowToken(t, 1_000_000, 1_800_000)
	h.clock.advance(halfTerm)

	res, err := h.engine.Repay(h.ctx, tokenCall(bob), 0, u(1_000))
	require.NoError(t, err)
	require.False(t, res.Closed)
	require.Equal(t, u(1_000), res.InterestPaid)
	require.True(t, res.PrincipalPaid.IsZero())

	positions, err := h.engine.Positions(bob)
	require.NoError(t, err)
	require.Equal(t, u(1_000_000), positions[0].BorrowedAmount)
	require.Equal(t, u(931), positions[0].UnpaidInterest)

	res, err = h.engine.Repay(h.ctx, tokenCall(bob), 0, u(1_431))
	require.NoError(t, err)
	require.Equal(t, u(931), res.InterestPaid)
	require.Equal(t, u(500), res.PrincipalPaid)
	require.Equal(t, u(999_500), res.Remaining)

	pool := h.pool(t, token)
	require.Equal(t, u(999_500), pool.TotalBorrowed)
	require.Equal(t, u(9), pool.AccumulatedProtocolFee)
	require.Equal(t, u(10_001_922), pool.TotalReserves)

	profile, err := h.engine.Profile(bob)
	require.NoError(t, err)
	require.Equal(t, uint64(300), profile.Score)
	require.Zero(t, profile.OnTimePayments)
	require.Equal(t, u(2_431), profile.TotalRepaid)
	require.Empty(t, h.emitter.ofType(events.TypeCreditScoreUpdated))
}

func TestLateRepaymentLowersScore(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.deposit(t, alice, 10_000_000)
	h.borrowToken(t, 1_000_000, 1_800_000)
	h.clock.advance(DefaultLoanDurationSeconds + 1)

	debt, err := h.engine.PositionDebt(bob, 0)
	require.NoError(t, err)
	res, err := h.engine.Repay(h.ctx, tokenCall(bob), 0, debt.Total)
	require.NoError(t, err)
	require.True(t, res.Closed)
	require.False(t, res.OnTime)

	profile, err := h.engine.Profile(bob)
	require.NoError(t, err)
	require.Equal(t, uint64(270), profile.Score)
	require.Equal(t, uint64(1), profile.LatePayments)
}

func TestLiquidationAfterDueDate(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.deposit(t, alice, 10_000_000)
	h.borrowToken(t, 1_000_000, 1_800_000)

	h.clock.advance(DefaultLoanDurationSeconds)
	_, err := h.engine.Liquidate(h.ctx, tokenCall(carol), bob, 0)
	require.ErrorIs(t, err, ErrNotYetDue)

	h.clock.advance(1)
	res, err := h.engine.Liquidate(h.ctx, tokenCall(carol), bob, 0)
	require.NoError(t, err)
	require.Equal(t, u(1_000_000), res.Principal)
	require.Equal(t, u(3_863), res.Interest)
	require.Equal(t, []Transfer{
		{Kind: TransferPull, Asset: token, Account: carol, Amount: u(1_003_863)},
		{Kind: TransferPush, Asset: token, Account: carol, Amount: u(1_800_000)},
	}, h.vault.last())

	pool := h.pool(t, token)
	require.True(t, pool.TotalBorrowed.IsZero())
	require.Equal(t, u(19), pool.AccumulatedProtocolFee)
	require.Equal(t, u(10_003_844), pool.TotalReserves)

	profile, err := h.engine.Profile(bob)
	require.NoError(t, err)
	require.Equal(t, uint64(100), profile.Score)
	require.Equal(t, u(1_000_000), profile.LiquidatedPrincipal)
	require.False(t, profile.Blacklisted)

	positions, err := h.engine.Positions(bob)
	require.NoError(t, err)
	require.Equal(t, PositionLiquidated, positions[0].Status)
	_, err = h.engine.Liquidate(h.ctx, tokenCall(carol), bob, 0)
	require.ErrorIs(t, err, ErrPositionInactive)

	canBorrow, err := h.engine.CanBorrow(bob)
	require.NoError(t, err)
	require.True(t, canBorrow)
}

func TestLiquidationPastThresholdBlacklists(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BlacklistThreshold = "999999"
	h := newHarness(t, cfg)
	h.deposit(t, alice, 10_000_000)
	h.borrowToken(t, 1_000_000, 1_800_000)
	h.clock.advance(DefaultLoanDurationSeconds + 1)

	_, err := h.engine.Liquidate(h.ctx, tokenCall(carol), bob, 0)
	require.NoError(t, err)

	profile, err := h.engine.Profile(bob)
	require.NoError(t, err)
	require.True(t, profile.Blacklisted)
	canBorrow, err := h.engine.CanBorrow(bob)
	require.NoError(t, err)
	require.False(t, canBorrow)
	require.Len(t, h.emitter.ofType(events.TypeBorrowerBlacklisted), 1)

	_, err = h.engine.Borrow(h.ctx, tokenCall(bob), BorrowRequest{Asset: token, Amount: u(10), CollateralAsset: token, CollateralAmount: u(100)})
	require.ErrorIs(t, err, ErrBlacklisted)
}

func TestNativeRepayRefundsExcess(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	_, err := h.engine.Deposit(h.ctx, nativeCall(alice, 10_000_000), NativeAsset, nil)
	require.NoError(t, err)

	_, err = h.engine.Borrow(h.ctx, nativeCall(bob, 1_700_000), BorrowRequest{Asset: NativeAsset, Amount: u(1_000_000), CollateralAsset: NativeAsset, CollateralAmount: u(1_800_000)})
	require.ErrorIs(t, err, ErrNativeValueMismatch)
	_, err = h.engine.Borrow(h.ctx, nativeCall(bob, 1_800_000), BorrowRequest{Asset: NativeAsset, Amount: u(1_000_000), CollateralAsset: NativeAsset, CollateralAmount: u(1_800_000)})
	require.NoError(t, err)

	_, err = h.engine.Repay(h.ctx, nativeCall(bob, 1_000), 0, u(2_000_000))
	require.ErrorIs(t, err, ErrNativeValueMismatch)

	res, err := h.engine.Repay(h.ctx, nativeCall(bob, 2_000_000), 0, u(2_000_000))
	require.NoError(t, err)
	require.True(t, res.Closed)
	require.Equal(t, u(1_000_000), res.Refunded)
	require.Equal(t, []Transfer{
		{Kind: TransferPull, Asset: NativeAsset, Account: bob, Amount: u(2_000_000)},
		{Kind: TransferPush, Asset: NativeAsset, Account: bob, Amount: u(1_000_000)},
		{Kind: TransferPush, Asset: NativeAsset, Account: bob, Amount: u(1_800_000)},
	}, h.vault.last())
}

func TestNativeLiquidationRequiresFullDebt(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	_, err := h.engine.Deposit(h.ctx, nativeCall(alice, 10_000_000), NativeAsset, nil)
	require.NoError(t, err)
	_, err = h.engine.Borrow(h.ctx, nativeCall(bob, 1_800_000), BorrowRequest{Asset: NativeAsset, Amount: u(1_000_000), CollateralAsset: NativeAsset, CollateralAmount: u(1_800_000)})
	require.NoError(t, err)
	h.clock.advance(DefaultLoanDurationSeconds + 1)

	_, err = h.engine.Liquidate(h.ctx, nativeCall(carol, 1_003_862), bob, 0)
	require.ErrorIs(t, err, ErrInsufficientPayment)

	res, err := h.engine.Liquidate(h.ctx, nativeCall(carol, 1_100_000), bob, 0)
	require.NoError(t, err)
	require.Equal(t, u(96_137), res.Refunded)
	require.Equal(t, []Transfer{
		{Kind: TransferPull, Asset: NativeAsset, Account: carol, Amount: u(1_100_000)},
		{Kind: TransferPush, Asset: NativeAsset, Account: carol, Amount: u(96_137)},
		{Kind: TransferPush, Asset: NativeAsset, Account: carol, Amount: u(1_800_000)},
	}, h.vault.last())
}

func TestWithdrawProtocolFees(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.deposit(t, alice, 10_000_000)
	h.borrowToken(t, 1_000_000, 1_800_000)
	h.clock.advance(halfTerm)
	_, err := h.engine.Repay(h.ctx, tokenCall(bob), 0, u(2_000_000))
	require.NoError(t, err)

	require.ErrorIs(t, h.engine.WithdrawProtocolFees(h.ctx, owner, token, owner, u(10)), ErrInsufficientFees)
	require.NoError(t, h.engine.WithdrawProtocolFees(h.ctx, owner, token, owner, u(9)))
	require.Equal(t, []Transfer{{Kind: TransferPush, Asset: token, Account: owner, Amount: u(9)}}, h.vault.last())
	require.True(t, h.pool(t, token).AccumulatedProtocolFee.IsZero())
}

func TestPositionDebtForClosedPositionIsZero(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.deposit(t, alice, 1000)
	h.borrowToken(t, 100, 180)
	_, err := h.engine.Repay(h.ctx, tokenCall(bob), 0, u(100))
	require.NoError(t, err)

	debt, err := h.engine.PositionDebt(bob, 0)
	require.NoError(t, err)
	require.True(t, debt.Total.IsZero())
	_, err = h.engine.PositionDebt(bob, 3)
	require.ErrorIs(t, err, ErrPositionIndex)
}
