package shares

import nativecommon "creditpool/native/common"

var (
	ErrNullAccount        = nativecommon.NewError(nativecommon.KindInvalidInput, "shares: null account")
	ErrZeroAmount         = nativecommon.NewError(nativecommon.KindInvalidInput, "shares: amount must be positive")
	ErrZeroShares         = nativecommon.NewError(nativecommon.KindInvalidInput, "shares: amount too small to mint a share")
	ErrOverflow           = nativecommon.NewError(nativecommon.KindInvalidInput, "shares: amount overflow")
	ErrInsufficientShares = nativecommon.NewError(nativecommon.KindPolicyViolation, "shares: insufficient share balance")
	ErrRebaseDecrease     = nativecommon.NewError(nativecommon.KindPolicyViolation, "shares: total assets cannot decrease")
	ErrEmptyBacking       = nativecommon.NewError(nativecommon.KindPolicyViolation, "shares: outstanding shares have no backing assets")
	ErrUnauthorized       = nativecommon.NewError(nativecommon.KindUnauthorized, "shares: caller is not the ledger controller")
)
