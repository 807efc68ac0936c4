package common

import "errors"

// Kind classifies a rejection so callers can decide whether to correct the
// request, wait, or give up.
type Kind uint8

const (
	// KindUnknown marks errors that did not originate from a policy decision,
	// such as storage or collaborator failures.
	KindUnknown Kind = iota
	// KindInvalidInput covers zero amounts, null identities and out of range
	// indices.
	KindInvalidInput
	// KindPolicyViolation covers requests that are well formed but not
	// permitted in the current state.
	KindPolicyViolation
	// KindUnauthorized covers callers lacking the required role.
	KindUnauthorized
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindPolicyViolation:
		return "policy_violation"
	case KindUnauthorized:
		return "unauthorized"
	default:
		return "unknown"
	}
}

// Error is a classified sentinel error. Values are compared by identity with
// errors.Is.
type Error struct {
	kind Kind
	msg  string
}

// NewError constructs a classified error.
func NewError(kind Kind, msg string) *Error {
	return &Error{kind: kind, msg: msg}
}

func (e *Error) Error() string { return e.msg }

// Kind reports the classification of the error.
func (e *Error) Kind() Kind {
	if e == nil {
		return KindUnknown
	}
	return e.kind
}

// KindOf unwraps err until a classified error is found.
func KindOf(err error) Kind {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Kind()
	}
	return KindUnknown
}
