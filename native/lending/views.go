package lending

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Pool returns a snapshot of the asset's pool.
func (e *Engine) Pool(asset common.Address) (*AssetPool, error) {
	if e.state == nil {
		return nil, errNilState
	}
	pool, err := e.state.GetPool(asset)
	if err != nil {
		return nil, fmt.Errorf("lending engine: load pool %s: %w", asset.Hex(), err)
	}
	if pool == nil {
		return nil, ErrUnsupportedAsset
	}
	return pool, nil
}

// Assets lists the registered assets in address order.
func (e *Engine) Assets() ([]common.Address, error) {
	if e.state == nil {
		return nil, errNilState
	}
	return e.state.ListAssets()
}

// Profile returns the borrower's credit profile, or nil if they never
// borrowed.
func (e *Engine) Profile(addr common.Address) (*CreditProfile, error) {
	if e.state == nil {
		return nil, errNilState
	}
	return e.state.GetProfile(addr)
}

// Positions returns every position the borrower ever opened, indexed as on
// creation.
func (e *Engine) Positions(addr common.Address) ([]*BorrowPosition, error) {
	if e.state == nil {
		return nil, errNilState
	}
	return e.state.GetPositions(addr)
}

// PositionDebt returns what it would cost to close the position now.
// Inactive positions owe nothing.
func (e *Engine) PositionDebt(addr common.Address, index uint64) (Debt, error) {
	positions, err := e.Positions(addr)
	if err != nil {
		return Debt{}, err
	}
	if index >= uint64(len(positions)) {
		return Debt{}, ErrPositionIndex
	}
	pos := positions[index]
	if !pos.IsActive() {
		return Debt{Principal: new(uint256.Int), Interest: new(uint256.Int), Total: new(uint256.Int)}, nil
	}
	return e.policy.debt(pos, e.now())
}

// AvailableLiquidity returns the asset's unborrowed reserves.
func (e *Engine) AvailableLiquidity(asset common.Address) (*uint256.Int, error) {
	pool, err := e.Pool(asset)
	if err != nil {
		return nil, err
	}
	return pool.AvailableLiquidity(), nil
}

// RedeemableValue returns the value of the account's shares in the pool.
func (e *Engine) RedeemableValue(asset, account common.Address) (*uint256.Int, error) {
	pool, err := e.Pool(asset)
	if err != nil {
		return nil, err
	}
	return pool.Ledger.RedeemableValue(account), nil
}

// SharesOf returns the account's share balance in the pool.
func (e *Engine) SharesOf(asset, account common.Address) (*uint256.Int, error) {
	pool, err := e.Pool(asset)
	if err != nil {
		return nil, err
	}
	return pool.Ledger.SharesOf(account), nil
}

// CanBorrow reports whether the address may open new positions.
func (e *Engine) CanBorrow(addr common.Address) (bool, error) {
	profile, err := e.Profile(addr)
	if err != nil {
		return false, err
	}
	return profile == nil || !profile.Blacklisted, nil
}

// CollateralRatio returns the collateral requirement in basis points for the
// score.
func (e *Engine) CollateralRatio(score uint64) uint64 {
	return e.policy.CollateralRatio(score)
}

// BorrowInterestRate returns the annual rate in basis points for the score.
func (e *Engine) BorrowInterestRate(score uint64) uint64 {
	return e.policy.BorrowInterestRate(score)
}
