package security

import (
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base64"
	"encoding/binary"
	"hash"

	"golang.org/x/crypto/pbkdf2"
)

// PBKDF2Hasher verifies legacy format-v3 PBKDF2 password hashes imported from the previous blog.
// Layout (base64 std): 0x01 | prf u32 | iterations u32 | salt length u32 | salt | subkey, big-endian.
// It never produces new hashes; NeedsRehash is always true.
type PBKDF2Hasher struct{}

const (
	pbkdf2FormatV3   = 0x01
	pbkdf2HeaderLen  = 13
	pbkdf2MinSaltLen = 16
	pbkdf2MinKeyLen  = 16
	pbkdf2MaxIter    = 10_000_000
	pbkdf2PRFSHA1    = 0
	pbkdf2PRFSHA256  = 1
	pbkdf2PRFSHA512  = 2
)

// Hash is unsupported for the legacy format.
func (PBKDF2Hasher) Hash([]byte) (string, error) {
	return "", ErrUnsupportedHash
}

// Verify decodes the legacy payload and compares the derived subkey in constant time.
func (PBKDF2Hasher) Verify(storedHash string, password []byte) bool {
	raw, err := base64.StdEncoding.DecodeString(storedHash)
	if err != nil || len(raw) < pbkdf2HeaderLen || raw[0] != pbkdf2FormatV3 {
		return false
	}
	prf := binary.BigEndian.Uint32(raw[1:5])
	iter := binary.BigEndian.Uint32(raw[5:9])
	saltLen := binary.BigEndian.Uint32(raw[9:13])

	var h func() hash.Hash
	switch prf {
	case pbkdf2PRFSHA1:
		h = sha1.New
	case pbkdf2PRFSHA256:
		h = sha256.New
	case pbkdf2PRFSHA512:
		h = sha512.New
	default:
		return false
	}
	if iter == 0 || iter > pbkdf2MaxIter || saltLen < pbkdf2MinSaltLen {
		return false
	}
	rest := raw[pbkdf2HeaderLen:]
	if uint64(len(rest)) < uint64(saltLen)+pbkdf2MinKeyLen {
		return false
	}
	salt := rest[:saltLen]
	expected := rest[saltLen:]
	actual := pbkdf2.Key(password, salt, int(iter), len(expected), h)
	return subtle.ConstantTimeCompare(expected, actual) == 1
}

// NeedsRehash is always true: legacy hashes are upgraded on the next successful login.
func (PBKDF2Hasher) NeedsRehash(string) bool { return true }
