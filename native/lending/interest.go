package lending

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"creditpool/core/events"
)

// accrue returns the interest owed on the position at now: the carried
// unpaid balance plus simple linear interest on the outstanding principal
// since the last accrual.
func (p Policy) accrue(pos *BorrowPosition, now uint64) (*uint256.Int, error) {
	carried := copyAmount(pos.UnpaidInterest)
	principal := amountOrZero(pos.BorrowedAmount)
	dt := elapsed(now, pos.LastAccrual)
	if principal.IsZero() || dt == 0 || pos.InterestRateBps == 0 {
		return carried, nil
	}
	numerator, overflow := new(uint256.Int).MulOverflow(uint256.NewInt(pos.InterestRateBps), uint256.NewInt(dt))
	if overflow {
		return nil, ErrAmountOverflow
	}
	denominator, overflow := new(uint256.Int).MulOverflow(uint256.NewInt(p.SecondsPerYear), uint256.NewInt(basisPoints))
	if overflow {
		return nil, ErrAmountOverflow
	}
	fresh, err := mulDiv(principal, numerator, denominator)
	if err != nil {
		return nil, err
	}
	return addAmount(carried, fresh)
}

// debt returns the principal, interest and total owed on pos at now.
func (p Policy) debt(pos *BorrowPosition, now uint64) (Debt, error) {
	interest, err := p.accrue(pos, now)
	if err != nil {
		return Debt{}, err
	}
	principal := copyAmount(pos.BorrowedAmount)
	total, err := addAmount(principal, interest)
	if err != nil {
		return Debt{}, err
	}
	return Debt{Principal: principal, Interest: interest, Total: total}, nil
}

// distributeInterest splits collected interest between the protocol fee and
// the lenders, and rebases the share ledger so depositors realise the yield.
func (p Policy) distributeInterest(controller common.Address, pool *AssetPool, interest *uint256.Int, emitter events.Emitter) error {
	if isZero(interest) {
		return nil
	}
	if pool == nil || pool.Ledger == nil {
		return errNilPool
	}
	fee, err := bpsOf(interest, p.ProtocolFeeBps)
	if err != nil {
		return err
	}
	lenderShare := new(uint256.Int).Sub(interest, fee)
	fees, err := addAmount(pool.AccumulatedProtocolFee, fee)
	if err != nil {
		return err
	}
	reserves, err := addAmount(pool.TotalReserves, lenderShare)
	if err != nil {
		return err
	}
	if err := pool.Ledger.Rebase(controller, reserves); err != nil {
		return err
	}
	pool.AccumulatedProtocolFee = fees
	pool.TotalReserves = reserves
	emitter.Emit(events.InterestDistributed{
		Asset:         pool.Asset,
		Interest:      copyAmount(interest),
		ProtocolFee:   fee,
		LenderShare:   lenderShare,
		TotalReserves: copyAmount(reserves),
	})
	return nil
}
