package archive

import "fmt"

// Mode selects how a reader treats bodies that fail verification.
//
// Strict stops at the first failure. Permissive reports each failure and
// moves on to the next resource. Header failures (signature, timestamps,
// manifest digest) are fatal in both modes.
type Mode int

const (
	Strict Mode = iota
	Permissive
)

func (m Mode) String() string {
	switch m {
	case Strict:
		return "strict"
	case Permissive:
		return "permissive"
	default:
		return "unknown"
	}
}

// ParseMode parses "strict" or "permissive".
func ParseMode(s string) (Mode, error) {
	switch s {
	case "strict", "":
		return Strict, nil
	case "permissive":
		return Permissive, nil
	default:
		return Strict, fmt.Errorf("archive: unknown mode %q", s)
	}
}
