package codec

import (
	"errors"
	"fmt"
)

// Rule identifies which canonical-encoding constraint an input violated.
//
// Rules are stable and intended for programmatic handling (including fuzz
// oracles). Do not match on Error() strings.
type Rule string

const (
	RuleTruncated         Rule = "Truncated"
	RuleMalformed         Rule = "Malformed"
	RuleIndefiniteLength  Rule = "IndefiniteLength"
	RuleNonMinimalInteger Rule = "NonMinimalInteger"
	RuleNonMinimalLength  Rule = "NonMinimalLength"
	RuleDuplicateMapKey   Rule = "DuplicateMapKey"
	RuleUnsortedMapKeys   Rule = "UnsortedMapKeys"
	RuleNonTextMapKey     Rule = "NonTextMapKey"
	RuleInvalidUTF8       Rule = "InvalidUTF8"
	RuleUnsupportedType   Rule = "UnsupportedType"
	RuleNestingTooDeep    Rule = "NestingTooDeep"
	RuleRecordTooLarge    Rule = "RecordTooLarge"
	RuleTrailingBytes     Rule = "TrailingBytes"
)

// Framed reports whether an item that violated r could still be measured.
//
// When true, the decoder knows where the offending item ends and has already
// moved past it; callers scanning a sequence can simply continue.
func (r Rule) Framed() bool {
	switch r {
	case RuleTruncated, RuleMalformed, RuleNestingTooDeep, RuleRecordTooLarge:
		return false
	default:
		return true
	}
}

// Error is a decode (or encode-validation) failure.
//
// Offset is the absolute byte offset at which the violation was detected.
type Error struct {
	Rule    Rule
	Offset  int64
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("codec: %s at offset %d: %s", e.Rule, e.Offset, e.Message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// RuleOf returns the Rule of a codec error, or "" if err is not one.
func RuleOf(err error) Rule {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.Rule
}

// IsRule reports whether err is (or wraps) a *Error with the given Rule.
func IsRule(err error, rule Rule) bool {
	return RuleOf(err) == rule
}
