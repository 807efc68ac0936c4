package events

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"creditpool/core/types"
)

const (
	TypeSharesMinted        = "shares.minted"
	TypeSharesBurned        = "shares.burned"
	TypeShareBalanceChanged = "shares.balance_changed"
	TypeSharesRebased       = "shares.rebased"
	TypeSharesTransferred   = "shares.transferred"
)

// SharesMinted is emitted when claim shares are issued against deposited assets.
type SharesMinted struct {
	Asset  common.Address
	To     common.Address
	Assets *uint256.Int
	Shares *uint256.Int
}

func (SharesMinted) EventType() string { return TypeSharesMinted }

func (e SharesMinted) Event() *types.Event {
	return types.NewEvent(TypeSharesMinted).
		Set("asset", addressString(e.Asset)).
		Set("to", addressString(e.To)).
		Set("assets", amountString(e.Assets)).
		Set("shares", amountString(e.Shares))
}

// SharesBurned is emitted when claim shares are redeemed.
type SharesBurned struct {
	Asset  common.Address
	From   common.Address
	Shares *uint256.Int
	Assets *uint256.Int
}

func (SharesBurned) EventType() string { return TypeSharesBurned }

func (e SharesBurned) Event() *types.Event {
	return types.NewEvent(TypeSharesBurned).
		Set("asset", addressString(e.Asset)).
		Set("from", addressString(e.From)).
		Set("shares", amountString(e.Shares)).
		Set("assets", amountString(e.Assets))
}

// ShareBalanceChanged reports the new share balance of an account.
type ShareBalanceChanged struct {
	Asset   common.Address
	Account common.Address
	Balance *uint256.Int
}

func (ShareBalanceChanged) EventType() string { return TypeShareBalanceChanged }

func (e ShareBalanceChanged) Event() *types.Event {
	return types.NewEvent(TypeShareBalanceChanged).
		Set("asset", addressString(e.Asset)).
		Set("account", addressString(e.Account)).
		Set("balance", amountString(e.Balance))
}

// SharesRebased is emitted when the backing value of a ledger grows.
type SharesRebased struct {
	Asset    common.Address
	Previous *uint256.Int
	Current  *uint256.Int
}

func (SharesRebased) EventType() string { return TypeSharesRebased }

func (e SharesRebased) Event() *types.Event {
	return types.NewEvent(TypeSharesRebased).
		Set("asset", addressString(e.Asset)).
		Set("previous", amountString(e.Previous)).
		Set("current", amountString(e.Current))
}

// SharesTransferred is emitted when redeemable value moves between holders.
type SharesTransferred struct {
	Asset  common.Address
	From   common.Address
	To     common.Address
	Value  *uint256.Int
	Shares *uint256.Int
}

func (SharesTransferred) EventType() string { return TypeSharesTransferred }

func (e SharesTransferred) Event() *types.Event {
	return types.NewEvent(TypeSharesTransferred).
		Set("asset", addressString(e.Asset)).
		Set("from", addressString(e.From)).
		Set("to", addressString(e.To)).
		Set("value", amountString(e.Value)).
		Set("shares", amountString(e.Shares))
}
