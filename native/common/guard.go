package common

import ethcommon "github.com/ethereum/go-ethereum/common"

var (
	ErrModulePaused = NewError(KindPolicyViolation, "module paused")
	ErrNotOwner     = NewError(KindUnauthorized, "caller is not the protocol owner")
)

type PauseView interface {
	IsPaused(module string) bool
}

// OwnerView answers whether an address holds the protocol owner role.
type OwnerView interface {
	IsOwner(addr ethcommon.Address) bool
}

func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}

// RequireOwner fails closed: a missing owner view rejects every caller.
func RequireOwner(o OwnerView, caller ethcommon.Address) error {
	if o == nil || !o.IsOwner(caller) {
		return ErrNotOwner
	}
	return nil
}
