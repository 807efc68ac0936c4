// Package shares implements the rebasing claim ledger backing a single asset
// pool. Holders own shares; the value of a share is totalAssets/totalShares
// and grows whenever the controller rebases the ledger upwards.
package shares

import (
	"encoding/json"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"creditpool/core/events"
)

// Ledger tracks share balances for one asset pool. All mutations must be
// issued by the controller address configured at construction.
type Ledger struct {
	asset       common.Address
	controller  common.Address
	totalShares *uint256.Int
	totalAssets *uint256.Int
	balances    map[common.Address]*uint256.Int
	emitter     events.Emitter
}

// New creates an empty ledger for the asset, mutable only by controller.
func New(asset, controller common.Address) *Ledger {
	return &Ledger{
		asset:       asset,
		controller:  controller,
		totalShares: new(uint256.Int),
		totalAssets: new(uint256.Int),
		balances:    make(map[common.Address]*uint256.Int),
	}
}

// SetEmitter routes ledger events to the supplied emitter. A nil emitter
// discards events.
func (l *Ledger) SetEmitter(emitter events.Emitter) {
	l.emitter = emitter
}

func (l *Ledger) emit(evt events.Event) {
	if l.emitter != nil {
		l.emitter.Emit(evt)
	}
}

// Asset returns the identifier of the underlying asset.
func (l *Ledger) Asset() common.Address { return l.asset }

// Controller returns the only address permitted to mutate the ledger.
func (l *Ledger) Controller() common.Address { return l.controller }

// TotalShares returns a copy of the outstanding share supply.
func (l *Ledger) TotalShares() *uint256.Int { return new(uint256.Int).Set(l.totalShares) }

// TotalAssets returns a copy of the value backing all shares.
func (l *Ledger) TotalAssets() *uint256.Int { return new(uint256.Int).Set(l.totalAssets) }

// SharesOf returns a copy of the account's share balance.
func (l *Ledger) SharesOf(account common.Address) *uint256.Int {
	if bal, ok := l.balances[account]; ok {
		return new(uint256.Int).Set(bal)
	}
	return new(uint256.Int)
}

// Holders returns the number of accounts with a non-zero balance.
func (l *Ledger) Holders() int { return len(l.balances) }

// RedeemableValue converts the account's shares to assets at the current
// rate, rounding down.
func (l *Ledger) RedeemableValue(account common.Address) *uint256.Int {
	if l.totalShares.IsZero() {
		return new(uint256.Int)
	}
	value, _ := l.sharesToAssets(l.SharesOf(account))
	return value
}

// ConvertToShares returns how many shares the amount of assets is worth at
// the current rate, rounding down. Zero when no shares exist.
func (l *Ledger) ConvertToShares(assets *uint256.Int) (*uint256.Int, error) {
	if l.totalShares.IsZero() {
		return new(uint256.Int), nil
	}
	if l.totalAssets.IsZero() {
		return nil, ErrEmptyBacking
	}
	shares, overflow := new(uint256.Int).MulDivOverflow(assets, l.totalShares, l.totalAssets)
	if overflow {
		return nil, ErrOverflow
	}
	return shares, nil
}

func (l *Ledger) sharesToAssets(shares *uint256.Int) (*uint256.Int, error) {
	if l.totalShares.IsZero() {
		return new(uint256.Int), nil
	}
	assets, overflow := new(uint256.Int).MulDivOverflow(shares, l.totalAssets, l.totalShares)
	if overflow {
		return nil, ErrOverflow
	}
	return assets, nil
}

func (l *Ledger) authorize(caller common.Address) error {
	if caller != l.controller {
		return ErrUnauthorized
	}
	return nil
}

func (l *Ledger) setBalance(account common.Address, balance *uint256.Int) {
	if balance.IsZero() {
		delete(l.balances, account)
	} else {
		l.balances[account] = balance
	}
	l.emit(events.ShareBalanceChanged{Asset: l.asset, Account: account, Balance: new(uint256.Int).Set(balance)})
}

// Mint issues shares to the account for the deposited assets. The first mint
// bootstraps the rate at one share per asset; later mints round down in the
// pool's favour.
func (l *Ledger) Mint(caller, to common.Address, assets *uint256.Int) (*uint256.Int, error) {
	if err := l.authorize(caller); err != nil {
		return nil, err
	}
	if to == (common.Address{}) {
		return nil, ErrNullAccount
	}
	if assets == nil || assets.IsZero() {
		return nil, ErrZeroAmount
	}

	var minted *uint256.Int
	if l.totalShares.IsZero() {
		minted = new(uint256.Int).Set(assets)
	} else {
		if l.totalAssets.IsZero() {
			return nil, ErrEmptyBacking
		}
		var overflow bool
		minted, overflow = new(uint256.Int).MulDivOverflow(assets, l.totalShares, l.totalAssets)
		if overflow {
			return nil, ErrOverflow
		}
		if minted.IsZero() {
			return nil, ErrZeroShares
		}
	}

	newShares, overflow := new(uint256.Int).AddOverflow(l.totalShares, minted)
	if overflow {
		return nil, ErrOverflow
	}
	newAssets, overflow := new(uint256.Int).AddOverflow(l.totalAssets, assets)
	if overflow {
		return nil, ErrOverflow
	}
	balance := new(uint256.Int).Add(l.SharesOf(to), minted)

	l.totalShares = newShares
	l.totalAssets = newAssets
	l.emit(events.SharesMinted{Asset: l.asset, To: to, Assets: new(uint256.Int).Set(assets), Shares: new(uint256.Int).Set(minted)})
	l.setBalance(to, balance)
	return minted, nil
}

// Burn destroys shares held by the account and returns the assets they were
// worth, rounded down so the remainder stays in the pool.
func (l *Ledger) Burn(caller, from common.Address, shares *uint256.Int) (*uint256.Int, error) {
	if err := l.authorize(caller); err != nil {
		return nil, err
	}
	if from == (common.Address{}) {
		return nil, ErrNullAccount
	}
	if shares == nil || shares.IsZero() {
		return nil, ErrZeroAmount
	}
	balance := l.SharesOf(from)
	if balance.Lt(shares) {
		return nil, ErrInsufficientShares
	}
	assets, err := l.sharesToAssets(shares)
	if err != nil {
		return nil, err
	}

	l.totalShares = new(uint256.Int).Sub(l.totalShares, shares)
	l.totalAssets = new(uint256.Int).Sub(l.totalAssets, assets)
	l.emit(events.SharesBurned{Asset: l.asset, From: from, Shares: new(uint256.Int).Set(shares), Assets: new(uint256.Int).Set(assets)})
	l.setBalance(from, balance.Sub(balance, shares))
	return assets, nil
}

// Rebase raises the value backing all shares. Lowering it is rejected for
// every caller: losses are never socialised through the ledger.
func (l *Ledger) Rebase(caller common.Address, newTotalAssets *uint256.Int) error {
	if newTotalAssets == nil || newTotalAssets.Lt(l.totalAssets) {
		return ErrRebaseDecrease
	}
	if err := l.authorize(caller); err != nil {
		return err
	}
	if newTotalAssets.Eq(l.totalAssets) {
		return nil
	}
	previous := l.totalAssets
	l.totalAssets = new(uint256.Int).Set(newTotalAssets)
	l.emit(events.SharesRebased{Asset: l.asset, Previous: previous, Current: new(uint256.Int).Set(newTotalAssets)})
	return nil
}

// TransferValue moves the share equivalent of amount, computed at the current
// rate, from one holder to another. The conversion is redone on every call so
// many small transfers may lose more to rounding than one large transfer.
func (l *Ledger) TransferValue(caller, from, to common.Address, amount *uint256.Int) (*uint256.Int, error) {
	if err := l.authorize(caller); err != nil {
		return nil, err
	}
	if from == (common.Address{}) || to == (common.Address{}) {
		return nil, ErrNullAccount
	}
	if amount == nil || amount.IsZero() {
		return nil, ErrZeroAmount
	}
	moved, err := l.ConvertToShares(amount)
	if err != nil {
		return nil, err
	}
	fromBalance := l.SharesOf(from)
	if fromBalance.Lt(moved) {
		return nil, ErrInsufficientShares
	}
	if from == to {
		return moved, nil
	}
	toBalance := l.SharesOf(to)
	l.emit(events.SharesTransferred{Asset: l.asset, From: from, To: to, Value: new(uint256.Int).Set(amount), Shares: new(uint256.Int).Set(moved)})
	l.setBalance(from, fromBalance.Sub(fromBalance, moved))
	l.setBalance(to, toBalance.Add(toBalance, moved))
	return moved, nil
}

// Clone returns a deep copy without the emitter.
func (l *Ledger) Clone() *Ledger {
	if l == nil {
		return nil
	}
	clone := New(l.asset, l.controller)
	clone.totalShares.Set(l.totalShares)
	clone.totalAssets.Set(l.totalAssets)
	for account, bal := range l.balances {
		clone.balances[account] = new(uint256.Int).Set(bal)
	}
	return clone
}

type ledgerJSON struct {
	Asset       common.Address                  `json:"asset"`
	Controller  common.Address                  `json:"controller"`
	TotalShares *uint256.Int                    `json:"totalShares"`
	TotalAssets *uint256.Int                    `json:"totalAssets"`
	Balances    map[common.Address]*uint256.Int `json:"balances"`
}

// MarshalJSON encodes the ledger for persistence.
func (l *Ledger) MarshalJSON() ([]byte, error) {
	return json.Marshal(ledgerJSON{
		Asset:       l.asset,
		Controller:  l.controller,
		TotalShares: l.totalShares,
		TotalAssets: l.totalAssets,
		Balances:    l.balances,
	})
}

// UnmarshalJSON restores a persisted ledger.
func (l *Ledger) UnmarshalJSON(data []byte) error {
	var raw ledgerJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	restored := New(raw.Asset, raw.Controller)
	if raw.TotalShares != nil {
		restored.totalShares.Set(raw.TotalShares)
	}
	if raw.TotalAssets != nil {
		restored.totalAssets.Set(raw.TotalAssets)
	}
	for account, bal := range raw.Balances {
		if bal != nil && !bal.IsZero() {
			restored.balances[account] = new(uint256.Int).Set(bal)
		}
	}
	*l = *restored
	return nil
}
