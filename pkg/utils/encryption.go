package utils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"
	"math/big"
	"strings"
)

var (
	// ErrInvalidCiphertext indicates the ciphertext is malformed or too short
	ErrInvalidCiphertext = errors.New("invalid ciphertext")
	// ErrInvalidKeyLength indicates the encryption key is not 32 bytes
	ErrInvalidKeyLength = errors.New("encryption key must be 32 bytes for AES-256")
	// ErrKeyRequired indicates a sealed value was read without a key
	ErrKeyRequired = errors.New("value is encrypted but no encryption key is configured")
)

// sealedPrefix marks ciphertext so values stored before a key was
// configured can still be told apart and read
const sealedPrefix = "enc:v1:"

// SecretBox seals short secrets (TOTP seeds) at rest with AES-256-GCM.
// A SecretBox built from an empty key stores values unchanged. Open returns
// unmarked values as they are, so plaintext rows keep working once a key is
// set and can be re-sealed on their next write.
type SecretBox struct {
	aead cipher.AEAD
}

// NewSecretBox creates a SecretBox for the given key
func NewSecretBox(key string) (*SecretBox, error) {
	if key == "" {
		return &SecretBox{}, nil
	}

	keyBytes := []byte(key)
	if len(keyBytes) != 32 {
		return nil, ErrInvalidKeyLength
	}

	block, err := aes.NewCipher(keyBytes)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	return &SecretBox{aead: gcm}, nil
}

// Enabled reports whether values are actually encrypted
func (b *SecretBox) Enabled() bool {
	return b != nil && b.aead != nil
}

// IsSealed reports whether v was produced by Seal with a key
func IsSealed(v string) bool {
	return strings.HasPrefix(v, sealedPrefix)
}

// Seal returns marked, base64-encoded ciphertext with the nonce prepended
func (b *SecretBox) Seal(plaintext string) (string, error) {
	if plaintext == "" || !b.Enabled() {
		return plaintext, nil
	}

	nonce := make([]byte, b.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	ciphertext := b.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return sealedPrefix + base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Open reverses Seal. Unmarked values are returned unchanged.
func (b *SecretBox) Open(sealed string) (string, error) {
	if !IsSealed(sealed) {
		return sealed, nil
	}
	if !b.Enabled() {
		return "", ErrKeyRequired
	}

	ciphertext, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(sealed, sealedPrefix))
	if err != nil {
		return "", err
	}

	nonceSize := b.aead.NonceSize()
	if len(ciphertext) < nonceSize {
		return "", ErrInvalidCiphertext
	}

	plaintext, err := b.aead.Open(nil, ciphertext[:nonceSize], ciphertext[nonceSize:], nil)
	if err != nil {
		return "", err
	}

	return string(plaintext), nil
}

const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// RandomCode returns a random code of length n drawn from an alphabet
// without look-alike characters
func RandomCode(n int) (string, error) {
	if n <= 0 {
		return "", errors.New("code length must be positive")
	}

	max := big.NewInt(int64(len(codeAlphabet)))
	out := make([]byte, n)
	for i := range out {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = codeAlphabet[idx.Int64()]
	}
	return string(out), nil
}
