package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"

	"task-sync/internal/domain"
	"task-sync/internal/errors"
)

// NonceSize is the GCM IV length. A fresh IV is drawn for every Encrypt call.
const NonceSize = 12

// Codec seals and opens task text with one key. It is safe for concurrent use.
type Codec struct {
	gcm  cipher.AEAD
	rand io.Reader
}

// NewCodec builds a codec bound to key.
func NewCodec(key *Key) (*Codec, error) {
	if key == nil {
		return nil, errors.NewLockedError("encrypting")
	}
	gcm, err := newGCM(key.b[:])
	if err != nil {
		return nil, err
	}
	return &Codec{gcm: gcm, rand: rand.Reader}, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, NonceSize)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	return gcm, nil
}

// Encrypt returns base64(iv || ciphertext || tag).
func (c *Codec) Encrypt(plaintext string) (domain.EncryptedPayload, error) {
	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(c.rand, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := c.gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return domain.EncryptedPayload(base64.StdEncoding.EncodeToString(sealed)), nil
}

// Decrypt authenticates and opens payload. Any failure, including a wrong
// key or a single flipped bit, yields a decryption error and no plaintext.
func (c *Codec) Decrypt(payload domain.EncryptedPayload) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(string(payload))
	if err != nil {
		return "", errors.NewDecryptionError(err)
	}
	if len(raw) < NonceSize+c.gcm.Overhead() {
		return "", errors.NewDecryptionError(fmt.Errorf("payload too short: %d bytes", len(raw)))
	}
	nonce, ct := raw[:NonceSize], raw[NonceSize:]
	plaintext, err := c.gcm.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", errors.NewDecryptionError(err)
	}
	return string(plaintext), nil
}

// Encrypt seals plaintext with key.
func Encrypt(plaintext string, key *Key) (domain.EncryptedPayload, error) {
	c, err := NewCodec(key)
	if err != nil {
		return "", err
	}
	return c.Encrypt(plaintext)
}

// Decrypt opens payload with key.
func Decrypt(payload domain.EncryptedPayload, key *Key) (string, error) {
	c, err := NewCodec(key)
	if err != nil {
		return "", err
	}
	return c.Decrypt(payload)
}
