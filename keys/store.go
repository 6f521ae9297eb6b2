package keys

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"xdao.co/szdt/did"
	"xdao.co/szdt/memo"
)

var (
	ErrNotFound      = errors.New("keys: no such nickname")
	ErrExists        = errors.New("keys: nickname already exists")
	ErrNicknameTaken = errors.New("keys: nickname is taken and could not be made unique")
	ErrNoPrivateKey  = errors.New("keys: contact has no private key")
)

const (
	rootKeyFile = "root.key"
	didFile     = "did.txt"
	rolesDir    = "roles"
)

// KeyStore is a filesystem-backed map from nicknames to identities.
type KeyStore struct {
	Directory string
}

// Contact is one nickname in the store.
type Contact struct {
	Nickname string
	DID      did.Key
	// HasPrivateKey is false for contacts known only by their DID.
	HasPrivateKey bool
	Roles         []string
}

// DefaultDirectory returns the keystore root under the user's config
// directory.
func DefaultDirectory() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "szdt", "keys"), nil
}

// Open returns a KeyStore rooted at directory, or at DefaultDirectory when
// directory is empty. The directory is created lazily on first write.
func Open(directory string) (*KeyStore, error) {
	if directory == "" {
		var err error
		directory, err = DefaultDirectory()
		if err != nil {
			return nil, err
		}
	}
	return &KeyStore{Directory: directory}, nil
}

func (ks *KeyStore) dir(nickname string) string {
	return filepath.Join(ks.Directory, nickname)
}

func (ks *KeyStore) exists(nickname string) bool {
	_, err := os.Stat(ks.dir(nickname))
	return err == nil
}

// checkNickname requires nickname to already be in normal form.
func checkNickname(nickname string) error {
	parsed, err := ParseNickname(nickname)
	if err != nil {
		return err
	}
	if parsed != nickname {
		return fmt.Errorf("keys: invalid nickname %q (normal form %q)", nickname, parsed)
	}
	return nil
}

// ParseSeedHex decodes a 32-byte hex seed, tolerating surrounding space and
// a 0x prefix.
func ParseSeedHex(seedHex string) ([]byte, error) {
	seedHex = strings.TrimSpace(seedHex)
	seedHex = strings.TrimPrefix(seedHex, "0x")
	data, err := hex.DecodeString(seedHex)
	if err != nil {
		return nil, err
	}
	if len(data) != ed25519.SeedSize {
		return nil, fmt.Errorf("keys: expected seed length of %d bytes, got %d", ed25519.SeedSize, len(data))
	}
	return data, nil
}

// Create stores a new identity under nickname. A nil seed generates a
// random one.
func (ks *KeyStore) Create(nickname string, seed []byte) (Contact, error) {
	if err := checkNickname(nickname); err != nil {
		return Contact{}, err
	}
	if seed == nil {
		seed = make([]byte, ed25519.SeedSize)
		if _, err := rand.Read(seed); err != nil {
			return Contact{}, err
		}
	}
	if err := ks.claim(nickname); err != nil {
		return Contact{}, err
	}
	if err := saveSeed(filepath.Join(ks.dir(nickname), rootKeyFile), seed); err != nil {
		_ = os.RemoveAll(ks.dir(nickname))
		return Contact{}, err
	}
	return ks.Contact(nickname)
}

// AddContact stores a public identity, typically an archive issuer.
func (ks *KeyStore) AddContact(nickname string, key did.Key) (Contact, error) {
	if err := checkNickname(nickname); err != nil {
		return Contact{}, err
	}
	if err := ks.claim(nickname); err != nil {
		return Contact{}, err
	}
	path := filepath.Join(ks.dir(nickname), didFile)
	if err := os.WriteFile(path, []byte(key.String()+"\n"), 0o600); err != nil {
		_ = os.RemoveAll(ks.dir(nickname))
		return Contact{}, err
	}
	return ks.Contact(nickname)
}

// claim creates the nickname directory, failing if it exists.
func (ks *KeyStore) claim(nickname string) error {
	if err := os.MkdirAll(ks.Directory, 0o700); err != nil {
		return err
	}
	if err := os.Mkdir(ks.dir(nickname), 0o700); err != nil {
		if os.IsExist(err) {
			return fmt.Errorf("%w: %s", ErrExists, nickname)
		}
		return err
	}
	return nil
}

// Derive stores the seed for role, derived from nickname's root seed.
// Deriving an existing role again is a no-op.
func (ks *KeyStore) Derive(nickname, role string) (did.Key, error) {
	root, err := ks.rootSeed(nickname)
	if err != nil {
		return did.Key{}, err
	}
	seed, err := DeriveRoleSeed(root, role)
	if err != nil {
		return did.Key{}, err
	}
	path := filepath.Join(ks.dir(nickname), rolesDir, role+".key")
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return did.Key{}, err
	}
	if err := saveSeed(path, seed); err != nil && !os.IsExist(err) {
		return did.Key{}, err
	}
	return keyFromSeed(seed), nil
}

// Signer returns the signing capability for nickname.
func (ks *KeyStore) Signer(nickname string) (*memo.Ed25519Signer, error) {
	seed, err := ks.rootSeed(nickname)
	if err != nil {
		return nil, err
	}
	return memo.NewEd25519SignerFromSeed(seed)
}

// RoleSigner returns the signing capability for a derived role key.
func (ks *KeyStore) RoleSigner(nickname, role string) (*memo.Ed25519Signer, error) {
	if err := checkNickname(nickname); err != nil {
		return nil, err
	}
	if err := CheckRole(role); err != nil {
		return nil, err
	}
	seed, err := loadSeed(filepath.Join(ks.dir(nickname), rolesDir, role+".key"))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, nickname, role)
		}
		return nil, err
	}
	return memo.NewEd25519SignerFromSeed(seed)
}

func (ks *KeyStore) rootSeed(nickname string) ([]byte, error) {
	if err := checkNickname(nickname); err != nil {
		return nil, err
	}
	if !ks.exists(nickname) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, nickname)
	}
	seed, err := loadSeed(filepath.Join(ks.dir(nickname), rootKeyFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNoPrivateKey, nickname)
	}
	return seed, err
}

// Contact reads one nickname.
func (ks *KeyStore) Contact(nickname string) (Contact, error) {
	if err := checkNickname(nickname); err != nil {
		return Contact{}, err
	}
	dir := ks.dir(nickname)
	c := Contact{Nickname: nickname}

	seed, err := loadSeed(filepath.Join(dir, rootKeyFile))
	switch {
	case err == nil:
		c.DID = keyFromSeed(seed)
		c.HasPrivateKey = true
	case errors.Is(err, os.ErrNotExist):
		data, derr := os.ReadFile(filepath.Join(dir, didFile))
		if errors.Is(derr, os.ErrNotExist) {
			return Contact{}, fmt.Errorf("%w: %s", ErrNotFound, nickname)
		}
		if derr != nil {
			return Contact{}, derr
		}
		if c.DID, derr = did.Parse(strings.TrimSpace(string(data))); derr != nil {
			return Contact{}, derr
		}
	default:
		return Contact{}, err
	}

	entries, err := os.ReadDir(filepath.Join(dir, rolesDir))
	if err == nil {
		for _, e := range entries {
			if !e.IsDir() && strings.HasSuffix(e.Name(), ".key") {
				c.Roles = append(c.Roles, strings.TrimSuffix(e.Name(), ".key"))
			}
		}
		sort.Strings(c.Roles)
	}
	return c, nil
}

// Contacts lists every nickname, sorted.
func (ks *KeyStore) Contacts() ([]Contact, error) {
	entries, err := os.ReadDir(ks.Directory)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []Contact
	for _, e := range entries {
		if !e.IsDir() || checkNickname(e.Name()) != nil {
			continue
		}
		c, err := ks.Contact(e.Name())
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Nickname < out[j].Nickname })
	return out, nil
}

// ContactForDID finds the contact whose identity is key. It returns
// ErrNotFound if there is none.
func (ks *KeyStore) ContactForDID(key did.Key) (Contact, error) {
	contacts, err := ks.Contacts()
	if err != nil {
		return Contact{}, err
	}
	for _, c := range contacts {
		if c.DID == key {
			return c, nil
		}
	}
	return Contact{}, fmt.Errorf("%w: %s", ErrNotFound, key)
}

// Delete removes nickname and any derived role keys.
func (ks *KeyStore) Delete(nickname string) error {
	if err := checkNickname(nickname); err != nil {
		return err
	}
	if !ks.exists(nickname) {
		return fmt.Errorf("%w: %s", ErrNotFound, nickname)
	}
	return os.RemoveAll(ks.dir(nickname))
}

func keyFromSeed(seed []byte) did.Key {
	var k did.Key
	copy(k[:], ed25519.NewKeyFromSeed(seed).Public().(ed25519.PublicKey))
	return k
}

func saveSeed(path string, seed []byte) error {
	if len(seed) != ed25519.SeedSize {
		return fmt.Errorf("keys: expected seed length of %d bytes", ed25519.SeedSize)
	}
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return err
	}
	defer file.Close()
	if _, err := file.WriteString(hex.EncodeToString(seed) + "\n"); err != nil {
		return err
	}
	return file.Close()
}

func loadSeed(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseSeedHex(string(data))
}
