// Package secretbox seals vault secrets before they hit the database.
// Plaintext only ever exists in memory during a create or reveal call.
package secretbox

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

var ErrInvalidCiphertext = errors.New("secretbox: invalid ciphertext")

// Box seals and opens secrets under a single master key.
type Box struct {
	key [32]byte
}

// New derives a sealing key from the configured master secret. The
// master secret is free-form (an env var), so it is hashed down to the
// 32 bytes XChaCha20-Poly1305 wants.
func New(masterKey string) (*Box, error) {
	if masterKey == "" {
		return nil, errors.New("secretbox: master key is empty")
	}
	b := &Box{key: sha256.Sum256([]byte(masterKey))}
	return b, nil
}

// Seal encrypts plaintext and returns a base64 token safe to store in a
// text column. The nonce is prepended to the ciphertext.
func (b *Box) Seal(plaintext string) (string, error) {
	aead, err := chacha20poly1305.NewX(b.key[:])
	if err != nil {
		return "", err
	}

	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a token produced by Seal.
func (b *Box) Open(token string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return "", ErrInvalidCiphertext
	}
	if len(raw) < chacha20poly1305.NonceSizeX {
		return "", ErrInvalidCiphertext
	}

	aead, err := chacha20poly1305.NewX(b.key[:])
	if err != nil {
		return "", err
	}

	nonce, ciphertext := raw[:chacha20poly1305.NonceSizeX], raw[chacha20poly1305.NonceSizeX:]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrInvalidCiphertext
	}
	return string(plaintext), nil
}
