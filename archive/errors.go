package archive

import (
	"errors"
	"fmt"
)

// Kind is a stable category for programmatic error handling.
//
// Callers should branch on Kind rather than matching error strings.
type Kind string

const (
	// Path rules.
	KindEmptyPath       Kind = "EmptyPath"
	KindPathNotAbsolute Kind = "PathNotAbsolute"
	KindPathEscapesRoot Kind = "PathEscapesRoot"
	KindInvalidPath     Kind = "InvalidPath"
	KindDuplicatePath   Kind = "DuplicatePath"

	// KindInvalidManifest reports a header that is not a well-formed
	// manifest memo and manifest pair.
	KindInvalidManifest Kind = "InvalidManifest"
	// KindContentMismatch reports a body whose digest or record length
	// differs from its manifest entry.
	KindContentMismatch Kind = "ContentMismatch"
	// KindMissingResource reports a stream that ended before every listed
	// body was read.
	KindMissingResource Kind = "MissingResource"
	KindNotFound        Kind = "NotFound"
)

// Error is the package's structured error type.
//
// Index is the resource position the error refers to, or -1. Message is
// intended for humans; do not match on it.
type Error struct {
	Kind    Kind
	Index   int
	Path    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := "archive: " + e.Message
	if e.Path != "" {
		msg = fmt.Sprintf("%s (path %q)", msg, e.Path)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func newError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Index: -1, Message: msg}
}

func wrapError(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Index: -1, Message: msg, Cause: cause}
}

func (e *Error) at(i int, path string) *Error {
	e.Index = i
	e.Path = path
	return e
}

// IsKind reports whether err is (or wraps) a *Error with the given Kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}
