package keys

import (
	"crypto/ed25519"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const deriveInfo = "szdt-keys-v1 role:"

// DeriveRoleSeed deterministically derives a role-specific Ed25519 seed from
// a root seed with HKDF-SHA256. The same root and role always give the same
// seed; different roles give unrelated seeds.
func DeriveRoleSeed(rootSeed []byte, role string) ([]byte, error) {
	if len(rootSeed) != ed25519.SeedSize {
		return nil, fmt.Errorf("keys: root seed must be %d bytes", ed25519.SeedSize)
	}
	if err := CheckRole(role); err != nil {
		return nil, err
	}
	out := make([]byte, ed25519.SeedSize)
	r := hkdf.New(sha256.New, rootSeed, nil, []byte(deriveInfo+role))
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, err
	}
	return out, nil
}

// CheckRole accepts ASCII letters, digits, '-' and '_'.
func CheckRole(role string) error {
	if role == "" {
		return fmt.Errorf("keys: role cannot be empty")
	}
	for _, char := range role {
		if (char >= 'a' && char <= 'z') || (char >= 'A' && char <= 'Z') || (char >= '0' && char <= '9') || char == '-' || char == '_' {
			continue
		}
		return fmt.Errorf("keys: invalid character %q in role", char)
	}
	return nil
}
