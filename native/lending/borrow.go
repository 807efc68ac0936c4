package lending

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"creditpool/core/events"
	nativecommon "creditpool/native/common"
)

// Borrow opens a collateralised position for the caller and pays out the
// borrowed amount. The interest rate is fixed from the caller's score at
// origination. It returns the index of the new position.
func (e *Engine) Borrow(ctx context.Context, call Call, req BorrowRequest) (uint64, error) {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return 0, err
	}
	var index uint64
	err := e.execute(ctx, "borrow", func(tx *txn) error {
		if err := requireSender(call); err != nil {
			return err
		}
		profile, err := tx.profileOrCreate(call.Sender, e.policy.DefaultScore)
		if err != nil {
			return err
		}
		if isZero(req.Amount) {
			return ErrInvalidAmount
		}
		if profile.Blacklisted {
			return ErrBlacklisted
		}
		pool, err := tx.pool(req.Asset)
		if err != nil {
			return err
		}
		if _, err := tx.pool(req.CollateralAsset); err != nil {
			return err
		}
		borrowed, err := addAmount(pool.TotalBorrowed, req.Amount)
		if err != nil || borrowed.Gt(amountOrZero(pool.MaxBorrowLimit)) {
			return ErrBorrowLimitExceeded
		}
		if req.Asset != req.CollateralAsset {
			return ErrCrossAssetCollateral
		}
		required, err := e.policy.RequiredCollateral(req.Amount, profile.Score)
		if err != nil {
			return err
		}
		collateral := amountOrZero(req.CollateralAmount)
		if collateral.Lt(required) {
			return ErrInsufficientCollateral
		}
		if req.Amount.Gt(pool.AvailableLiquidity()) {
			return ErrInsufficientLiquidity
		}
		if req.CollateralAsset == NativeAsset {
			if !call.value().Eq(collateral) {
				return ErrNativeValueMismatch
			}
		} else if err := requireNoValue(call); err != nil {
			return err
		}
		profileBorrowed, err := addAmount(profile.TotalBorrowed, req.Amount)
		if err != nil {
			return err
		}

		now := e.now()
		rate := e.policy.BorrowInterestRate(profile.Score)
		pos := &BorrowPosition{
			BorrowedAsset:       req.Asset,
			BorrowedAmount:      copyAmount(req.Amount),
			InterestRateBps:     rate,
			AccruedInterestPaid: new(uint256.Int),
			UnpaidInterest:      new(uint256.Int),
			LastAccrual:         now,
			CollateralAsset:     req.CollateralAsset,
			CollateralAmount:    copyAmount(collateral),
			BorrowTime:          now,
			DueDate:             now + e.policy.LoanDuration,
			Status:              PositionActive,
		}
		idx, err := tx.appendPosition(call.Sender, pos)
		if err != nil {
			return err
		}
		pool.TotalBorrowed = borrowed
		profile.TotalBorrowed = profileBorrowed
		profile.activate()

		tx.pull(req.CollateralAsset, call.Sender, collateral)
		tx.push(req.Asset, call.Sender, req.Amount)
		tx.emit(events.Borrowed{
			Borrower:         call.Sender,
			Index:            idx,
			Asset:            req.Asset,
			Amount:           copyAmount(req.Amount),
			CollateralAsset:  req.CollateralAsset,
			CollateralAmount: copyAmount(collateral),
			RateBps:          rate,
			DueDate:          pos.DueDate,
		})
		index = idx
		return nil
	})
	if err != nil {
		return 0, err
	}
	return index, nil
}

// Repay pays down the caller's position, interest first. Overpayment beyond
// the outstanding debt is not collected; for native repayments the attached
// value must equal amount and the excess is refunded. Repaying the full debt
// closes the position, releases the collateral and updates the credit score.
func (e *Engine) Repay(ctx context.Context, call Call, index uint64, amount *uint256.Int) (*RepayResult, error) {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	var result *RepayResult
	err := e.execute(ctx, "repay", func(tx *txn) error {
		if err := requireSender(call); err != nil {
			return err
		}
		pos, err := tx.position(call.Sender, index)
		if err != nil {
			return err
		}
		if !pos.IsActive() {
			return ErrPositionInactive
		}
		if isZero(amount) {
			return ErrInvalidAmount
		}
		pool, err := tx.pool(pos.BorrowedAsset)
		if err != nil {
			return err
		}
		if pos.BorrowedAsset == NativeAsset {
			if !call.value().Eq(amount) {
				return ErrNativeValueMismatch
			}
		} else if err := requireNoValue(call); err != nil {
			return err
		}
		profile, err := tx.profile(call.Sender)
		if err != nil {
			return err
		}
		if profile == nil {
			return errNoProfile
		}

		now := e.now()
		debt, err := e.policy.debt(pos, now)
		if err != nil {
			return err
		}
		collected := minAmount(amount, debt.Total)
		interestPaid := minAmount(collected, debt.Interest)
		principalPaid := new(uint256.Int).Sub(collected, interestPaid)
		repaid, err := addAmount(profile.TotalRepaid, collected)
		if err != nil {
			return err
		}
		interestTotal, err := addAmount(pos.AccruedInterestPaid, interestPaid)
		if err != nil {
			return err
		}

		pos.UnpaidInterest = new(uint256.Int).Sub(debt.Interest, interestPaid)
		pos.LastAccrual = now
		pos.AccruedInterestPaid = interestTotal
		pos.BorrowedAmount = new(uint256.Int).Sub(debt.Principal, principalPaid)
		pool.TotalBorrowed = subFloor(pool.TotalBorrowed, principalPaid)
		profile.TotalRepaid = repaid
		if err := e.policy.distributeInterest(e.address, pool, interestPaid, &tx.events); err != nil {
			return err
		}

		res := &RepayResult{
			Collected:     collected,
			InterestPaid:  interestPaid,
			PrincipalPaid: principalPaid,
			Refunded:      new(uint256.Int),
			Remaining:     copyAmount(pos.BorrowedAmount),
		}
		if pos.BorrowedAsset == NativeAsset {
			tx.pull(NativeAsset, call.Sender, amount)
			res.Refunded = new(uint256.Int).Sub(amount, collected)
			tx.push(NativeAsset, call.Sender, res.Refunded)
		} else {
			tx.pull(pos.BorrowedAsset, call.Sender, collected)
		}

		if pos.BorrowedAmount.IsZero() {
			res.Closed = true
			res.OnTime = now <= pos.DueDate
			pos.close(PositionRepaid)
			tx.push(pos.CollateralAsset, call.Sender, pos.CollateralAmount)
			e.policy.recordRepayment(profile, res.OnTime, &tx.events)
		}
		tx.emit(events.Repaid{
			Borrower:      call.Sender,
			Index:         index,
			Asset:         pos.BorrowedAsset,
			Collected:     copyAmount(collected),
			InterestPaid:  copyAmount(interestPaid),
			PrincipalPaid: copyAmount(principalPaid),
			Remaining:     copyAmount(pos.BorrowedAmount),
			Closed:        res.Closed,
			OnTime:        res.OnTime,
		})
		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Liquidate settles an overdue position on the borrower's behalf. The caller
// pays the full debt and receives the position's collateral. Native
// liquidations must attach at least the debt; the excess is refunded.
func (e *Engine) Liquidate(ctx context.Context, call Call, borrower common.Address, index uint64) (*LiquidationResult, error) {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	var result *LiquidationResult
	err := e.execute(ctx, "liquidate", func(tx *txn) error {
		if err := requireSender(call); err != nil {
			return err
		}
		if borrower == (common.Address{}) {
			return ErrNullAddress
		}
		pos, err := tx.position(borrower, index)
		if err != nil {
			return err
		}
		if !pos.IsActive() {
			return ErrPositionInactive
		}
		now := e.now()
		if now <= pos.DueDate {
			return ErrNotYetDue
		}
		pool, err := tx.pool(pos.BorrowedAsset)
		if err != nil {
			return err
		}
		profile, err := tx.profile(borrower)
		if err != nil {
			return err
		}
		if profile == nil {
			return errNoProfile
		}
		debt, err := e.policy.debt(pos, now)
		if err != nil {
			return err
		}

		refund := new(uint256.Int)
		if pos.BorrowedAsset == NativeAsset {
			if call.value().Lt(debt.Total) {
				return ErrInsufficientPayment
			}
			refund.Sub(call.value(), debt.Total)
		} else if err := requireNoValue(call); err != nil {
			return err
		}
		interestTotal, err := addAmount(pos.AccruedInterestPaid, debt.Interest)
		if err != nil {
			return err
		}

		pool.TotalBorrowed = subFloor(pool.TotalBorrowed, debt.Principal)
		if err := e.policy.distributeInterest(e.address, pool, debt.Interest, &tx.events); err != nil {
			return err
		}
		if err := e.policy.recordLiquidation(profile, debt.Principal, &tx.events); err != nil {
			return err
		}
		pos.AccruedInterestPaid = interestTotal
		pos.UnpaidInterest = new(uint256.Int)
		pos.BorrowedAmount = new(uint256.Int)
		pos.LastAccrual = now
		pos.close(PositionLiquidated)

		if pos.BorrowedAsset == NativeAsset {
			tx.pull(NativeAsset, call.Sender, call.value())
			tx.push(NativeAsset, call.Sender, refund)
		} else {
			tx.pull(pos.BorrowedAsset, call.Sender, debt.Total)
		}
		tx.push(pos.CollateralAsset, call.Sender, pos.CollateralAmount)
		tx.emit(events.Liquidated{
			Liquidator:       call.Sender,
			Borrower:         borrower,
			Index:            index,
			Asset:            pos.BorrowedAsset,
			Principal:        copyAmount(debt.Principal),
			Interest:         copyAmount(debt.Interest),
			CollateralAsset:  pos.CollateralAsset,
			CollateralAmount: copyAmount(pos.CollateralAmount),
		})
		result = &LiquidationResult{
			Principal:        debt.Principal,
			Interest:         debt.Interest,
			Refunded:         refund,
			CollateralAsset:  pos.CollateralAsset,
			CollateralAmount: copyAmount(pos.CollateralAmount),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
