package security

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// ErrUnsupportedHash is returned when asked to produce a hash in a verify-only format.
var ErrUnsupportedHash = errors.New("unsupported password hash format")

// Hasher hashes and verifies passwords. Verify is a pure function of the stored hash and the
// submitted secret: a mismatch, a malformed hash, or an unknown format all yield false.
// Callers must not log or persist plaintext passwords.
type Hasher interface {
	Hash(password []byte) (string, error)
	Verify(storedHash string, password []byte) bool
	NeedsRehash(storedHash string) bool
}

// BcryptHasher hashes passwords with bcrypt at a fixed cost.
type BcryptHasher struct {
	Cost int
}

// NewBcryptHasher returns a BcryptHasher with the given cost clamped to bcrypt's 4–31 range.
// Cost 12 is a reasonable default for interactive login.
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}
	return &BcryptHasher{Cost: cost}
}

// Hash produces a bcrypt hash of password.
func (h *BcryptHasher) Hash(password []byte) (string, error) {
	b, err := bcrypt.GenerateFromPassword(password, h.Cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Verify reports whether password matches the bcrypt hash.
func (h *BcryptHasher) Verify(storedHash string, password []byte) bool {
	return bcrypt.CompareHashAndPassword([]byte(storedHash), password) == nil
}

// NeedsRehash is true when the stored hash is not bcrypt or was produced at a different cost.
func (h *BcryptHasher) NeedsRehash(storedHash string) bool {
	cost, err := bcrypt.Cost([]byte(storedHash))
	return err != nil || cost != h.Cost
}

func isBcrypt(hash string) bool {
	return strings.HasPrefix(hash, "$2a$") || strings.HasPrefix(hash, "$2b$") || strings.HasPrefix(hash, "$2y$")
}

// MultiHasher hashes with a primary algorithm and verifies any supported stored format:
// argon2id PHC strings, bcrypt, and legacy format-v3 PBKDF2 hashes.
type MultiHasher struct {
	primary Hasher
	argon2  *Argon2Hasher
	bcrypt  *BcryptHasher
	pbkdf2  PBKDF2Hasher
}

// NewPasswordHasher returns a MultiHasher whose new hashes use algo ("argon2id" or "bcrypt").
func NewPasswordHasher(algo string, bcryptCost int, argonParams *Argon2Params) (*MultiHasher, error) {
	m := &MultiHasher{
		argon2: NewArgon2Hasher(argonParams),
		bcrypt: NewBcryptHasher(bcryptCost),
	}
	switch algo {
	case "argon2id", "":
		m.primary = m.argon2
	case "bcrypt":
		m.primary = m.bcrypt
	default:
		return nil, fmt.Errorf("unsupported password hash algorithm %q", algo)
	}
	return m, nil
}

// Hash hashes password with the primary algorithm.
func (m *MultiHasher) Hash(password []byte) (string, error) {
	return m.primary.Hash(password)
}

// Verify detects the stored format and verifies password against it.
func (m *MultiHasher) Verify(storedHash string, password []byte) bool {
	switch {
	case storedHash == "":
		return false
	case strings.HasPrefix(storedHash, argon2Prefix):
		return m.argon2.Verify(storedHash, password)
	case isBcrypt(storedHash):
		return m.bcrypt.Verify(storedHash, password)
	default:
		return m.pbkdf2.Verify(storedHash, password)
	}
}

// NeedsRehash is true for any hash the primary algorithm would not produce with its current parameters.
func (m *MultiHasher) NeedsRehash(storedHash string) bool {
	return m.primary.NeedsRehash(storedHash)
}

// NewDummyHash hashes a fixed throwaway secret with h. Verifying against it lets lookups for
// unknown users spend the same work as real verifications.
func NewDummyHash(h Hasher) (string, error) {
	return h.Hash([]byte("dummy-password-never-matches"))
}
