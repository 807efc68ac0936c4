package lending

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"creditpool/core/events"
	nativecommon "creditpool/native/common"
)

// AddAsset registers a pool for asset with an empty share ledger controlled
// by the engine.
func (e *Engine) AddAsset(ctx context.Context, caller, asset common.Address, maxBorrowLimit *uint256.Int) error {
	if err := nativecommon.RequireOwner(e.owners, caller); err != nil {
		return err
	}
	return e.execute(ctx, "add_asset", func(tx *txn) error {
		existing, err := tx.loadPool(asset)
		if err != nil {
			return err
		}
		if existing != nil {
			return ErrAssetExists
		}
		pool := newAssetPool(asset, e.address, maxBorrowLimit)
		tx.putPool(pool)
		tx.emit(events.AssetAdded{Asset: asset, MaxBorrowLimit: copyAmount(maxBorrowLimit)})
		return nil
	})
}

// RemoveAsset deregisters a pool that holds no reserves and no borrows.
func (e *Engine) RemoveAsset(ctx context.Context, caller, asset common.Address) error {
	if err := nativecommon.RequireOwner(e.owners, caller); err != nil {
		return err
	}
	return e.execute(ctx, "remove_asset", func(tx *txn) error {
		pool, err := tx.pool(asset)
		if err != nil {
			return err
		}
		if !isZero(pool.TotalReserves) || !isZero(pool.TotalBorrowed) {
			return ErrAssetInUse
		}
		tx.removePool(asset)
		tx.emit(events.AssetRemoved{Asset: asset})
		return nil
	})
}

// SetMaxBorrowLimit replaces the ceiling on total borrowed principal. Existing
// borrows above a lowered limit are unaffected.
func (e *Engine) SetMaxBorrowLimit(ctx context.Context, caller, asset common.Address, limit *uint256.Int) error {
	if err := nativecommon.RequireOwner(e.owners, caller); err != nil {
		return err
	}
	return e.execute(ctx, "set_borrow_limit", func(tx *txn) error {
		pool, err := tx.pool(asset)
		if err != nil {
			return err
		}
		previous := copyAmount(pool.MaxBorrowLimit)
		pool.MaxBorrowLimit = copyAmount(limit)
		tx.emit(events.BorrowLimitUpdated{Asset: asset, Previous: previous, Current: copyAmount(limit)})
		return nil
	})
}

// WithdrawProtocolFees pays accumulated protocol fees to the recipient.
func (e *Engine) WithdrawProtocolFees(ctx context.Context, caller, asset, to common.Address, amount *uint256.Int) error {
	if err := nativecommon.RequireOwner(e.owners, caller); err != nil {
		return err
	}
	return e.execute(ctx, "withdraw_fees", func(tx *txn) error {
		if to == (common.Address{}) {
			return ErrNullAddress
		}
		if isZero(amount) {
			return ErrInvalidAmount
		}
		pool, err := tx.pool(asset)
		if err != nil {
			return err
		}
		if amountOrZero(pool.AccumulatedProtocolFee).Lt(amount) {
			return ErrInsufficientFees
		}
		pool.AccumulatedProtocolFee = new(uint256.Int).Sub(pool.AccumulatedProtocolFee, amount)
		tx.push(asset, to, amount)
		tx.emit(events.ProtocolFeeWithdrawn{Asset: asset, To: to, Amount: copyAmount(amount)})
		return nil
	})
}

// RegisterAssets adds every configured asset that is not yet registered.
func (e *Engine) RegisterAssets(ctx context.Context, caller common.Address, assets []AssetConfig) error {
	for _, cfg := range assets {
		addr, limit, err := cfg.Parse()
		if err != nil {
			return err
		}
		if err := e.AddAsset(ctx, caller, addr, limit); err != nil && !errors.Is(err, ErrAssetExists) {
			return err
		}
	}
	return nil
}
