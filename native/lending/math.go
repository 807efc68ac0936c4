package lending

import "github.com/holiman/uint256"

const basisPoints = 10_000

func copyAmount(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(v)
}

func amountOrZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v
}

func isZero(v *uint256.Int) bool {
	return v == nil || v.IsZero()
}

func addAmount(a, b *uint256.Int) (*uint256.Int, error) {
	sum, overflow := new(uint256.Int).AddOverflow(amountOrZero(a), amountOrZero(b))
	if overflow {
		return nil, ErrAmountOverflow
	}
	return sum, nil
}

// subFloor subtracts b from a, saturating at zero.
func subFloor(a, b *uint256.Int) *uint256.Int {
	a, b = amountOrZero(a), amountOrZero(b)
	if a.Lt(b) {
		return new(uint256.Int)
	}
	return new(uint256.Int).Sub(a, b)
}

func minAmount(a, b *uint256.Int) *uint256.Int {
	if a.Lt(b) {
		return new(uint256.Int).Set(a)
	}
	return new(uint256.Int).Set(b)
}

// mulDiv computes floor(a*b/d) with a full-width intermediate product.
func mulDiv(a, b, d *uint256.Int) (*uint256.Int, error) {
	if d.IsZero() {
		return new(uint256.Int), nil
	}
	out, overflow := new(uint256.Int).MulDivOverflow(a, b, d)
	if overflow {
		return nil, ErrAmountOverflow
	}
	return out, nil
}

func bpsOf(amount *uint256.Int, bps uint64) (*uint256.Int, error) {
	return mulDiv(amountOrZero(amount), uint256.NewInt(bps), uint256.NewInt(basisPoints))
}

// elapsed returns now-since, or zero if the clock has not advanced.
func elapsed(now, since uint64) uint64 {
	if now <= since {
		return 0
	}
	return now - since
}
