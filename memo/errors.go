package memo

import "errors"

// Kind is a stable category for programmatic error handling.
//
// Callers should branch on Kind rather than matching error strings.
type Kind string

const (
	// Verification failures.
	KindMissingSignature  Kind = "MissingSignature"
	KindInvalidIssuer     Kind = "InvalidIssuer"
	KindSignatureMismatch Kind = "SignatureMismatch"
	KindNotYetValid       Kind = "NotYetValid"
	KindExpired           Kind = "Expired"
	KindContentMismatch   Kind = "ContentMismatch"

	// Signing-time contract failures.
	KindMissingField   Kind = "MissingField"
	KindIssuerMismatch Kind = "IssuerMismatch"
	KindSigner         Kind = "Signer"

	// KindInvalidHeader reports a header with the wrong type or shape.
	KindInvalidHeader Kind = "InvalidHeader"

	KindSupersession Kind = "Supersession"
)

// Error is the package's structured error type.
//
// Message is intended for humans; do not match on it.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause != nil {
		return "memo: " + e.Message + ": " + e.Cause.Error()
	}
	return "memo: " + e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func newError(kind Kind, msg string) error {
	return &Error{Kind: kind, Message: msg}
}

func wrapError(kind Kind, msg string, cause error) error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// IsKind reports whether err is (or wraps) a *Error with the given Kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// KindOf returns the Kind of a structured error, or "" if err is not one.
func KindOf(err error) Kind {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.Kind
}
