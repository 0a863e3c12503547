package store

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
)

// cipherBox seals and opens embedding payloads with AES-256-GCM. The random
// nonce is prefixed to the ciphertext. A nil *cipherBox means encryption is
// disabled and payloads pass through untouched, so callers never branch on
// the setting.
type cipherBox struct {
	aead cipher.AEAD
}

// newCipherBox builds a cipherBox from a hex-encoded 32-byte key.
// An empty key returns nil (encryption disabled).
func newCipherBox(hexKey string) (*cipherBox, error) {
	if hexKey == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("decode encryption key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init gcm: %w", err)
	}
	return &cipherBox{aead: aead}, nil
}

func (c *cipherBox) seal(plaintext []byte) ([]byte, error) {
	if c == nil {
		return plaintext, nil
	}
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return c.aead.Seal(nonce, nonce, plaintext, nil), nil
}

func (c *cipherBox) open(sealed []byte) ([]byte, error) {
	if c == nil {
		return sealed, nil
	}
	ns := c.aead.NonceSize()
	if len(sealed) < ns {
		return nil, fmt.Errorf("sealed payload too short: %d bytes", len(sealed))
	}
	plaintext, err := c.aead.Open(nil, sealed[:ns], sealed[ns:], nil)
	if err != nil {
		return nil, fmt.Errorf("open payload: %w", err)
	}
	return plaintext, nil
}

func (c *cipherBox) enabled() bool { return c != nil }

// hashName returns the SHA-256 hex digest of an identity name, used for
// integrity lookups when name hashing is enabled.
func hashName(name string) string {
	sum := sha256.Sum256([]byte(name))
	return hex.EncodeToString(sum[:])
}
