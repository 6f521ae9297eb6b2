package did

import "errors"

// Kind is a stable category for programmatic error handling.
type Kind string

const (
	KindUnsupportedMethod  Kind = "UnsupportedMethod"
	KindUnsupportedKeyType Kind = "UnsupportedKeyType"
	KindInvalidLength      Kind = "InvalidLength"
	// KindInvalidEncoding covers a multibase other than base58btc, bad
	// base58 characters and malformed multicodec varints.
	KindInvalidEncoding Kind = "InvalidEncoding"
)

// Error is returned for every identifier that cannot be decoded.
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
	return "did: " + e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func newError(kind Kind, msg string, cause error) error {
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
