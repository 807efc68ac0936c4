package lending

import (
	"errors"

	nativecommon "creditpool/native/common"
)

var (
	errNilState  = errors.New("lending engine: state not configured")
	errNilVault  = errors.New("lending engine: vault not configured")
	errNilPool   = errors.New("lending engine: pool not initialised")
	errNoProfile = errors.New("lending engine: position without credit profile")
)

var (
	ErrInvalidAmount       = nativecommon.NewError(nativecommon.KindInvalidInput, "lending engine: amount must be positive")
	ErrNullAddress         = nativecommon.NewError(nativecommon.KindInvalidInput, "lending engine: null address")
	ErrPositionIndex       = nativecommon.NewError(nativecommon.KindInvalidInput, "lending engine: position index out of range")
	ErrAmountOverflow      = nativecommon.NewError(nativecommon.KindInvalidInput, "lending engine: amount overflow")
	ErrNativeValueMismatch = nativecommon.NewError(nativecommon.KindInvalidInput, "lending engine: attached value does not match amount")
	ErrUnexpectedValue     = nativecommon.NewError(nativecommon.KindInvalidInput, "lending engine: native value attached to token operation")

	ErrUnsupportedAsset       = nativecommon.NewError(nativecommon.KindPolicyViolation, "lending engine: asset not supported")
	ErrAssetExists            = nativecommon.NewError(nativecommon.KindPolicyViolation, "lending engine: asset already registered")
	ErrAssetInUse             = nativecommon.NewError(nativecommon.KindPolicyViolation, "lending engine: asset has outstanding reserves or borrows")
	ErrInsufficientLiquidity  = nativecommon.NewError(nativecommon.KindPolicyViolation, "lending engine: insufficient liquidity")
	ErrInsufficientCollateral = nativecommon.NewError(nativecommon.KindPolicyViolation, "lending engine: insufficient collateral")
	ErrBorrowLimitExceeded    = nativecommon.NewError(nativecommon.KindPolicyViolation, "lending engine: borrow limit exceeded")
	ErrCrossAssetCollateral   = nativecommon.NewError(nativecommon.KindPolicyViolation, "lending engine: cross-asset collateral not supported")
	ErrBlacklisted            = nativecommon.NewError(nativecommon.KindPolicyViolation, "lending engine: borrower is blacklisted")
	ErrPositionInactive       = nativecommon.NewError(nativecommon.KindPolicyViolation, "lending engine: position is not active")
	ErrNotYetDue              = nativecommon.NewError(nativecommon.KindPolicyViolation, "lending engine: position is not past its due date")
	ErrInsufficientPayment    = nativecommon.NewError(nativecommon.KindPolicyViolation, "lending engine: payment does not cover outstanding debt")
	ErrInsufficientFees       = nativecommon.NewError(nativecommon.KindPolicyViolation, "lending engine: amount exceeds accumulated protocol fees")
	ErrReentrantCall          = nativecommon.NewError(nativecommon.KindPolicyViolation, "lending engine: re-entrant call rejected")
)
