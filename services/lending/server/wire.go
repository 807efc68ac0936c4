package server

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"lukechampine.com/blake3"

	"creditpool/native/lending"
)

const nativeAssetLabel = "native"

type depositRequest struct {
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
	Value  string `json:"value"`
}

type withdrawRequest struct {
	Asset  string `json:"asset"`
	Shares string `json:"shares"`
}

type transferRequest struct {
	Asset  string `json:"asset"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

type borrowRequest struct {
	Asset            string `json:"asset"`
	Amount           string `json:"amount"`
	CollateralAsset  string `json:"collateralAsset"`
	CollateralAmount string `json:"collateralAmount"`
	Value            string `json:"value"`
}

type repayRequest struct {
	Index  uint64 `json:"index"`
	Amount string `json:"amount"`
	Value  string `json:"value"`
}

type liquidateRequest struct {
	Borrower string `json:"borrower"`
	Index    uint64 `json:"index"`
	Value    string `json:"value"`
}

type addAssetRequest struct {
	Asset          string `json:"asset"`
	MaxBorrowLimit string `json:"maxBorrowLimit"`
}

type limitRequest struct {
	MaxBorrowLimit string `json:"maxBorrowLimit"`
}

type feeWithdrawRequest struct {
	Asset  string `json:"asset"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

type receiptResponse struct {
	Receipt string `json:"receipt"`
}

type amountResponse struct {
	Receipt string `json:"receipt"`
	Amount  string `json:"amount"`
}

type borrowResponse struct {
	Receipt string `json:"receipt"`
	Index   uint64 `json:"index"`
}

type repayResponse struct {
	Receipt       string `json:"receipt"`
	Collected     string `json:"collected"`
	InterestPaid  string `json:"interestPaid"`
	PrincipalPaid string `json:"principalPaid"`
	Refunded      string `json:"refunded"`
	Remaining     string `json:"remaining"`
	Closed        bool   `json:"closed"`
	OnTime        bool   `json:"onTime"`
}

type liquidateResponse struct {
	Receipt          string `json:"receipt"`
	Principal        string `json:"principal"`
	Interest         string `json:"interest"`
	Refunded         string `json:"refunded"`
	CollateralAsset  string `json:"collateralAsset"`
	CollateralAmount string `json:"collateralAmount"`
}

type poolView struct {
	Asset                  string `json:"asset"`
	TotalReserves          string `json:"totalReserves"`
	TotalBorrowed          string `json:"totalBorrowed"`
	AvailableLiquidity     string `json:"availableLiquidity"`
	AccumulatedProtocolFee string `json:"accumulatedProtocolFee"`
	MaxBorrowLimit         string `json:"maxBorrowLimit"`
	TotalShares            string `json:"totalShares"`
}

type profileView struct {
	Address             string `json:"address"`
	Score               uint64 `json:"score"`
	TotalBorrowed       string `json:"totalBorrowed"`
	TotalRepaid         string `json:"totalRepaid"`
	OnTimePayments      uint64 `json:"onTimePayments"`
	LatePayments        uint64 `json:"latePayments"`
	LiquidatedPrincipal string `json:"liquidatedPrincipal"`
	Active              bool   `json:"isActive"`
	Blacklisted         bool   `json:"isBlacklisted"`
	CanBorrow           bool   `json:"canBorrow"`
}

type positionView struct {
	Index               uint64 `json:"index"`
	BorrowedAsset       string `json:"borrowedAsset"`
	BorrowedAmount      string `json:"borrowedAmount"`
	InterestRateBps     uint64 `json:"interestRateBps"`
	AccruedInterestPaid string `json:"accruedInterestPaid"`
	CollateralAsset     string `json:"collateralAsset"`
	CollateralAmount    string `json:"collateralAmount"`
	BorrowTime          uint64 `json:"borrowTime"`
	DueDate             uint64 `json:"dueDate"`
	Status              string `json:"status"`
}

type debtView struct {
	Principal string `json:"principal"`
	Interest  string `json:"interest"`
	Total     string `json:"total"`
}

type balanceView struct {
	Asset           string `json:"asset"`
	Account         string `json:"account"`
	Shares          string `json:"shares"`
	RedeemableValue string `json:"redeemableValue"`
}

func toPoolView(pool *lending.AssetPool) poolView {
	view := poolView{
		Asset:                  formatAsset(pool.Asset),
		TotalReserves:          formatAmount(pool.TotalReserves),
		TotalBorrowed:          formatAmount(pool.TotalBorrowed),
		AvailableLiquidity:     formatAmount(pool.AvailableLiquidity()),
		AccumulatedProtocolFee: formatAmount(pool.AccumulatedProtocolFee),
		MaxBorrowLimit:         formatAmount(pool.MaxBorrowLimit),
		TotalShares:            "0",
	}
	if pool.Ledger != nil {
		view.TotalShares = formatAmount(pool.Ledger.TotalShares())
	}
	return view
}

func toProfileView(profile *lending.CreditProfile, canBorrow bool) profileView {
	return profileView{
		Address:             profile.Address.Hex(),
		Score:               profile.Score,
		TotalBorrowed:       formatAmount(profile.TotalBorrowed),
		TotalRepaid:         formatAmount(profile.TotalRepaid),
		OnTimePayments:      profile.OnTimePayments,
		LatePayments:        profile.LatePayments,
		LiquidatedPrincipal: formatAmount(profile.LiquidatedPrincipal),
		Active:              profile.Active,
		Blacklisted:         profile.Blacklisted,
		CanBorrow:           canBorrow,
	}
}

func toPositionView(index uint64, pos *lending.BorrowPosition) positionView {
	return positionView{
		Index:               index,
		BorrowedAsset:       formatAsset(pos.BorrowedAsset),
		BorrowedAmount:      formatAmount(pos.BorrowedAmount),
		InterestRateBps:     pos.InterestRateBps,
		AccruedInterestPaid: formatAmount(pos.AccruedInterestPaid),
		CollateralAsset:     formatAsset(pos.CollateralAsset),
		CollateralAmount:    formatAmount(pos.CollateralAmount),
		BorrowTime:          pos.BorrowTime,
		DueDate:             pos.DueDate,
		Status:              string(pos.Status),
	}
}

func toDebtView(d lending.Debt) debtView {
	return debtView{
		Principal: formatAmount(d.Principal),
		Interest:  formatAmount(d.Interest),
		Total:     formatAmount(d.Total),
	}
}

func formatAmount(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}

func formatAsset(asset common.Address) string {
	if asset == lending.NativeAsset {
		return nativeAssetLabel
	}
	return asset.Hex()
}

func parseAsset(raw string) (common.Address, error) {
	trimmed := strings.TrimSpace(raw)
	if strings.EqualFold(trimmed, nativeAssetLabel) {
		return lending.NativeAsset, nil
	}
	if !common.IsHexAddress(trimmed) {
		return common.Address{}, fmt.Errorf("%w: asset %q", errInvalidRequest, raw)
	}
	return common.HexToAddress(trimmed), nil
}

func parseAddress(field, raw string) (common.Address, error) {
	trimmed := strings.TrimSpace(raw)
	if !common.IsHexAddress(trimmed) {
		return common.Address{}, fmt.Errorf("%w: %s %q", errInvalidRequest, field, raw)
	}
	return common.HexToAddress(trimmed), nil
}

// parseAmount decodes a decimal amount; an empty string yields nil so the
// engine can apply its own zero-amount rules.
func parseAmount(field, raw string) (*uint256.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, nil
	}
	value, err := uint256.FromDecimal(trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %q", errInvalidRequest, field, raw)
	}
	return value, nil
}

func parseIndex(raw string) (uint64, error) {
	index, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: index %q", errInvalidRequest, raw)
	}
	return index, nil
}

// newReceipt returns the receipt of a committed operation. Each call draws a
// fresh nonce, so repeated identical requests get distinct receipts.
func newReceipt(op string, caller common.Address, body []byte) string {
	return receiptID(op, caller, uuid.New(), body)
}

// receiptID commits to the operation, the caller, the nonce and the exact
// request body.
func receiptID(op string, caller common.Address, nonce uuid.UUID, body []byte) string {
	buf := make([]byte, 0, len(op)+1+common.AddressLength+len(nonce)+len(body))
	buf = append(buf, op...)
	buf = append(buf, 0)
	buf = append(buf, caller.Bytes()...)
	buf = append(buf, nonce[:]...)
	buf = append(buf, body...)
	sum := blake3.Sum256(buf)
	return hex.EncodeToString(sum[:])
}
