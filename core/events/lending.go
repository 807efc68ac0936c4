package events

import (
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"creditpool/core/types"
)

const (
	TypeDeposit              = "lending.deposit"
	TypeWithdraw             = "lending.withdraw"
	TypeBorrow               = "lending.borrow"
	TypeRepay                = "lending.repay"
	TypeLiquidate            = "lending.liquidate"
	TypeInterestDistributed  = "lending.interest_distributed"
	TypeCreditScoreUpdated   = "lending.credit_score_updated"
	TypeBorrowerBlacklisted  = "lending.blacklisted"
	TypeAssetAdded           = "lending.asset_added"
	TypeAssetRemoved         = "lending.asset_removed"
	TypeBorrowLimitUpdated   = "lending.borrow_limit_updated"
	TypeProtocolFeeWithdrawn = "lending.protocol_fee_withdrawn"
)

// Deposited is emitted when a lender supplies liquidity to a pool.
type Deposited struct {
	Asset   common.Address
	Account common.Address
	Amount  *uint256.Int
	Shares  *uint256.Int
}

func (Deposited) EventType() string { return TypeDeposit }

func (e Deposited) Event() *types.Event {
	return types.NewEvent(TypeDeposit).
		Set("asset", addressString(e.Asset)).
		Set("account", addressString(e.Account)).
		Set("amount", amountString(e.Amount)).
		Set("shares", amountString(e.Shares))
}

// Withdrawn is emitted when a lender redeems shares for pool assets.
type Withdrawn struct {
	Asset   common.Address
	Account common.Address
	Shares  *uint256.Int
	Amount  *uint256.Int
}

func (Withdrawn) EventType() string { return TypeWithdraw }

func (e Withdrawn) Event() *types.Event {
	return types.NewEvent(TypeWithdraw).
		Set("asset", addressString(e.Asset)).
		Set("account", addressString(e.Account)).
		Set("shares", amountString(e.Shares)).
		Set("amount", amountString(e.Amount))
}

// Borrowed is emitted when a new borrow position is opened.
type Borrowed struct {
	Borrower         common.Address
	Index            uint64
	Asset            common.Address
	Amount           *uint256.Int
	CollateralAsset  common.Address
	CollateralAmount *uint256.Int
	RateBps          uint64
	DueDate          uint64
}

func (Borrowed) EventType() string { return TypeBorrow }

func (e Borrowed) Event() *types.Event {
	return types.NewEvent(TypeBorrow).
		Set("borrower", addressString(e.Borrower)).
		Set("index", uintString(e.Index)).
		Set("asset", addressString(e.Asset)).
		Set("amount", amountString(e.Amount)).
		Set("collateralAsset", addressString(e.CollateralAsset)).
		Set("collateralAmount", amountString(e.CollateralAmount)).
		Set("rateBps", uintString(e.RateBps)).
		Set("dueDate", uintString(e.DueDate))
}

// Repaid is emitted for every accepted repayment, partial or full.
type Repaid struct {
	Borrower      common.Address
	Index         uint64
	Asset         common.Address
	Collected     *uint256.Int
	InterestPaid  *uint256.Int
	PrincipalPaid *uint256.Int
	Remaining     *uint256.Int
	Closed        bool
	OnTime        bool
}

func (Repaid) EventType() string { return TypeRepay }

func (e Repaid) Event() *types.Event {
	return types.NewEvent(TypeRepay).
		Set("borrower", addressString(e.Borrower)).
		Set("index", uintString(e.Index)).
		Set("asset", addressString(e.Asset)).
		Set("collected", amountString(e.Collected)).
		Set("interestPaid", amountString(e.InterestPaid)).
		Set("principalPaid", amountString(e.PrincipalPaid)).
		Set("remaining", amountString(e.Remaining)).
		Set("closed", strconv.FormatBool(e.Closed)).
		Set("onTime", strconv.FormatBool(e.OnTime))
}

// Liquidated is emitted when an overdue position is closed by a liquidator.
type Liquidated struct {
	Liquidator       common.Address
	Borrower         common.Address
	Index            uint64
	Asset            common.Address
	Principal        *uint256.Int
	Interest         *uint256.Int
	CollateralAsset  common.Address
	CollateralAmount *uint256.Int
}

func (Liquidated) EventType() string { return TypeLiquidate }

func (e Liquidated) Event() *types.Event {
	return types.NewEvent(TypeLiquidate).
		Set("liquidator", addressString(e.Liquidator)).
		Set("borrower", addressString(e.Borrower)).
		Set("index", uintString(e.Index)).
		Set("asset", addressString(e.Asset)).
		Set("principal", amountString(e.Principal)).
		Set("interest", amountString(e.Interest)).
		Set("collateralAsset", addressString(e.CollateralAsset)).
		Set("collateralAmount", amountString(e.CollateralAmount))
}

// InterestDistributed is emitted when collected interest is split between the
// protocol fee and lenders.
type InterestDistributed struct {
	Asset         common.Address
	Interest      *uint256.Int
	ProtocolFee   *uint256.Int
	LenderShare   *uint256.Int
	TotalReserves *uint256.Int
}

func (InterestDistributed) EventType() string { return TypeInterestDistributed }

func (e InterestDistributed) Event() *types.Event {
	return types.NewEvent(TypeInterestDistributed).
		Set("asset", addressString(e.Asset)).
		Set("interest", amountString(e.Interest)).
		Set("protocolFee", amountString(e.ProtocolFee)).
		Set("lenderShare", amountString(e.LenderShare)).
		Set("totalReserves", amountString(e.TotalReserves))
}

// CreditScoreUpdated is emitted only when a borrower's score actually moved.
type CreditScoreUpdated struct {
	Borrower common.Address
	Previous uint64
	Current  uint64
	Reason   string
}

func (CreditScoreUpdated) EventType() string { return TypeCreditScoreUpdated }

func (e CreditScoreUpdated) Event() *types.Event {
	return types.NewEvent(TypeCreditScoreUpdated).
		Set("borrower", addressString(e.Borrower)).
		Set("previous", uintString(e.Previous)).
		Set("current", uintString(e.Current)).
		Set("reason", e.Reason)
}

// BorrowerBlacklisted is emitted once, when the blacklist latch closes.
type BorrowerBlacklisted struct {
	Borrower            common.Address
	LiquidatedPrincipal *uint256.Int
}

func (BorrowerBlacklisted) EventType() string { return TypeBorrowerBlacklisted }

func (e BorrowerBlacklisted) Event() *types.Event {
	return types.NewEvent(TypeBorrowerBlacklisted).
		Set("borrower", addressString(e.Borrower)).
		Set("liquidatedPrincipal", amountString(e.LiquidatedPrincipal))
}

type AssetAdded struct {
	Asset          common.Address
	MaxBorrowLimit *uint256.Int
}

func (AssetAdded) EventType() string { return TypeAssetAdded }

func (e AssetAdded) Event() *types.Event {
	return types.NewEvent(TypeAssetAdded).
		Set("asset", addressString(e.Asset)).
		Set("maxBorrowLimit", amountString(e.MaxBorrowLimit))
}

type AssetRemoved struct {
	Asset common.Address
}

func (AssetRemoved) EventType() string { return TypeAssetRemoved }

func (e AssetRemoved) Event() *types.Event {
	return types.NewEvent(TypeAssetRemoved).Set("asset", addressString(e.Asset))
}

type BorrowLimitUpdated struct {
	Asset    common.Address
	Previous *uint256.Int
	Current  *uint256.Int
}

func (BorrowLimitUpdated) EventType() string { return TypeBorrowLimitUpdated }

func (e BorrowLimitUpdated) Event() *types.Event {
	return types.NewEvent(TypeBorrowLimitUpdated).
		Set("asset", addressString(e.Asset)).
		Set("previous", amountString(e.Previous)).
		Set("current", amountString(e.Current))
}

type ProtocolFeeWithdrawn struct {
	Asset  common.Address
	To     common.Address
	Amount *uint256.Int
}

func (ProtocolFeeWithdrawn) EventType() string { return TypeProtocolFeeWithdrawn }

func (e ProtocolFeeWithdrawn) Event() *types.Event {
	return types.NewEvent(TypeProtocolFeeWithdrawn).
		Set("asset", addressString(e.Asset)).
		Set("to", addressString(e.To)).
		Set("amount", amountString(e.Amount))
}
