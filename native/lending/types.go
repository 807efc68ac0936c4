package lending

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"creditpool/native/shares"
)

// NativeAsset identifies the chain's native currency. Every other registered
// asset is a token address.
var NativeAsset = common.Address{}

// AssetPool captures the accounting for a single registered asset. Reserves
// track the full pool value (idle and lent out); borrowed principal is tracked
// separately and liquidity is the difference between the two.
type AssetPool struct {
	Asset                  common.Address `json:"asset"`
	TotalReserves          *uint256.Int   `json:"totalReserves"`
	TotalBorrowed          *uint256.Int   `json:"totalBorrowed"`
	AccumulatedProtocolFee *uint256.Int   `json:"accumulatedProtocolFee"`
	MaxBorrowLimit         *uint256.Int   `json:"maxBorrowLimit"`
	Ledger                 *shares.Ledger `json:"ledger"`
}

func newAssetPool(asset, controller common.Address, limit *uint256.Int) *AssetPool {
	return &AssetPool{
		Asset:                  asset,
		TotalReserves:          new(uint256.Int),
		TotalBorrowed:          new(uint256.Int),
		AccumulatedProtocolFee: new(uint256.Int),
		MaxBorrowLimit:         copyAmount(limit),
		Ledger:                 shares.New(asset, controller),
	}
}

// AvailableLiquidity returns reserves minus borrowed principal, or zero when
// borrows exceed reserves.
func (p *AssetPool) AvailableLiquidity() *uint256.Int {
	if p == nil || p.TotalReserves == nil {
		return new(uint256.Int)
	}
	borrowed := amountOrZero(p.TotalBorrowed)
	if p.TotalReserves.Lt(borrowed) {
		return new(uint256.Int)
	}
	return new(uint256.Int).Sub(p.TotalReserves, borrowed)
}

// Clone returns a deep copy of the pool, including its share ledger.
func (p *AssetPool) Clone() *AssetPool {
	if p == nil {
		return nil
	}
	return &AssetPool{
		Asset:                  p.Asset,
		TotalReserves:          copyAmount(p.TotalReserves),
		TotalBorrowed:          copyAmount(p.TotalBorrowed),
		AccumulatedProtocolFee: copyAmount(p.AccumulatedProtocolFee),
		MaxBorrowLimit:         copyAmount(p.MaxBorrowLimit),
		Ledger:                 p.Ledger.Clone(),
	}
}

// CreditProfile is the borrower's lifetime credit record. Active and
// Blacklisted only ever move from false to true.
type CreditProfile struct {
	Address             common.Address `json:"address"`
	Score               uint64         `json:"score"`
	TotalBorrowed       *uint256.Int   `json:"totalBorrowed"`
	TotalRepaid         *uint256.Int   `json:"totalRepaid"`
	OnTimePayments      uint64         `json:"onTimePayments"`
	LatePayments        uint64         `json:"latePayments"`
	LiquidatedPrincipal *uint256.Int   `json:"liquidatedPrincipal"`
	Active              bool           `json:"isActive"`
	Blacklisted         bool           `json:"isBlacklisted"`
}

func newCreditProfile(addr common.Address, score uint64) *CreditProfile {
	return &CreditProfile{
		Address:             addr,
		Score:               score,
		TotalBorrowed:       new(uint256.Int),
		TotalRepaid:         new(uint256.Int),
		LiquidatedPrincipal: new(uint256.Int),
	}
}

func (p *CreditProfile) activate() { p.Active = true }

func (p *CreditProfile) blacklist() { p.Blacklisted = true }

// Clone returns a deep copy of the profile.
func (p *CreditProfile) Clone() *CreditProfile {
	if p == nil {
		return nil
	}
	clone := *p
	clone.TotalBorrowed = copyAmount(p.TotalBorrowed)
	clone.TotalRepaid = copyAmount(p.TotalRepaid)
	clone.LiquidatedPrincipal = copyAmount(p.LiquidatedPrincipal)
	return &clone
}

// PositionStatus enumerates the lifecycle of a borrow position. Closed states
// are terminal.
type PositionStatus string

const (
	PositionActive     PositionStatus = "active"
	PositionRepaid     PositionStatus = "repaid"
	PositionLiquidated PositionStatus = "liquidated"
)

// BorrowPosition is a single loan. Positions are append-only per borrower and
// addressed by their index for the lifetime of the system.
type BorrowPosition struct {
	BorrowedAsset       common.Address `json:"borrowedAsset"`
	BorrowedAmount      *uint256.Int   `json:"borrowedAmount"`
	InterestRateBps     uint64         `json:"interestRateBps"`
	AccruedInterestPaid *uint256.Int   `json:"accruedInterestPaid"`
	UnpaidInterest      *uint256.Int   `json:"unpaidInterest"`
	LastAccrual         uint64         `json:"lastAccrual"`
	CollateralAsset     common.Address `json:"collateralAsset"`
	CollateralAmount    *uint256.Int   `json:"collateralAmount"`
	BorrowTime          uint64         `json:"borrowTime"`
	DueDate             uint64         `json:"dueDate"`
	Status              PositionStatus `json:"status"`
}

// IsActive reports whether the position can still be repaid or liquidated.
func (p *BorrowPosition) IsActive() bool {
	return p != nil && p.Status == PositionActive
}

func (p *BorrowPosition) close(status PositionStatus) {
	if p.Status == PositionActive {
		p.Status = status
	}
}

// Clone returns a deep copy of the position.
func (p *BorrowPosition) Clone() *BorrowPosition {
	if p == nil {
		return nil
	}
	clone := *p
	clone.BorrowedAmount = copyAmount(p.BorrowedAmount)
	clone.AccruedInterestPaid = copyAmount(p.AccruedInterestPaid)
	clone.UnpaidInterest = copyAmount(p.UnpaidInterest)
	clone.CollateralAmount = copyAmount(p.CollateralAmount)
	return &clone
}

func clonePositions(positions []*BorrowPosition) []*BorrowPosition {
	if positions == nil {
		return nil
	}
	out := make([]*BorrowPosition, len(positions))
	for i, pos := range positions {
		out[i] = pos.Clone()
	}
	return out
}

// Debt is the amount owed on a position at a point in time.
type Debt struct {
	Principal *uint256.Int `json:"principal"`
	Interest  *uint256.Int `json:"interest"`
	Total     *uint256.Int `json:"total"`
}

// BorrowRequest describes a new loan.
type BorrowRequest struct {
	Asset            common.Address
	Amount           *uint256.Int
	CollateralAsset  common.Address
	CollateralAmount *uint256.Int
}

// RepayResult reports how a repayment was allocated.
type RepayResult struct {
	Collected     *uint256.Int
	InterestPaid  *uint256.Int
	PrincipalPaid *uint256.Int
	Refunded      *uint256.Int
	Remaining     *uint256.Int
	Closed        bool
	OnTime        bool
}

// LiquidationResult reports the debt settled by a liquidator.
type LiquidationResult struct {
	Principal        *uint256.Int
	Interest         *uint256.Int
	Refunded         *uint256.Int
	CollateralAsset  common.Address
	CollateralAmount *uint256.Int
}
