// Package encryption derives the per-user key and seals task text with it.
// Nothing in this package persists or logs key material.
package encryption

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"

	"task-sync/internal/errors"
)

const (
	// KeySize is the AES-256 key length in bytes.
	KeySize = 32
	// DefaultIterations is the PBKDF2 work factor and also its floor.
	DefaultIterations = 100_000
	// SaltSize is the length of a freshly generated salt in bytes.
	SaltSize = 16
	// SaltMetadataKey is the metadata entry holding the base64 salt.
	SaltMetadataKey = "encryption-salt"
)

// Key is a derived AES-256 key. It has no exported bytes and refuses to be
// serialized; formatting it prints a redacted marker.
type Key struct {
	b [KeySize]byte
}

// Derive derives a key from password and a base64 salt with DefaultIterations.
func Derive(password, salt string) (*Key, error) {
	return DeriveWithIterations(password, salt, DefaultIterations)
}

// DeriveWithIterations derives a key with the given PBKDF2 iteration count.
// Counts below DefaultIterations are raised to it. The only failure is a
// malformed salt.
func DeriveWithIterations(password, salt string, iterations int) (*Key, error) {
	if salt == "" {
		return nil, errors.NewKeyDerivationError("salt is empty", nil)
	}
	raw, err := base64.StdEncoding.DecodeString(salt)
	if err != nil {
		return nil, errors.NewKeyDerivationError("salt is not valid base64", err)
	}
	if len(raw) == 0 {
		return nil, errors.NewKeyDerivationError("salt is empty", nil)
	}
	if iterations < DefaultIterations {
		iterations = DefaultIterations
	}

	k := &Key{}
	copy(k.b[:], pbkdf2.Key([]byte(password), raw, iterations, KeySize, sha256.New))
	return k, nil
}

// NewSalt returns SaltSize random bytes encoded as base64.
func NewSalt() (string, error) {
	return newSaltFrom(rand.Reader)
}

func newSaltFrom(r io.Reader) (string, error) {
	raw := make([]byte, SaltSize)
	if _, err := io.ReadFull(r, raw); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// Equal compares two keys in constant time.
func (k *Key) Equal(other *Key) bool {
	if k == nil || other == nil {
		return k == other
	}
	return subtle.ConstantTimeCompare(k.b[:], other.b[:]) == 1
}

var errNotSerializable = fmt.Errorf("encryption key cannot be serialized")

func (Key) String() string   { return "encryption.Key(redacted)" }
func (Key) GoString() string { return "encryption.Key(redacted)" }

// Format keeps %v, %+v, %x and friends from printing the key bytes.
func (k Key) Format(f fmt.State, _ rune) {
	_, _ = io.WriteString(f, k.String())
}

func (Key) MarshalJSON() ([]byte, error)   { return nil, errNotSerializable }
func (Key) MarshalText() ([]byte, error)   { return nil, errNotSerializable }
func (Key) MarshalBinary() ([]byte, error) { return nil, errNotSerializable }
