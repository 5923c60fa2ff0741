// Package security provides symmetric encryption for tenant provider
// credentials at rest. Keys are derived from the master secret, ciphertexts
// are nonce-prefixed secretbox payloads encoded as base64.
package security

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/nacl/secretbox"
)

var ErrDecryptFailed = errors.New("security: decrypt failed")

const nonceSize = 24

// Box encrypts and decrypts short secrets under one master key.
type Box struct {
	key [32]byte
}

// NewBox derives the secretbox key from the master secret.
func NewBox(masterSecret string) (*Box, error) {
	if masterSecret == "" {
		return nil, errors.New("security: empty master secret")
	}
	return &Box{key: sha256.Sum256([]byte(masterSecret))}, nil
}

func (b *Box) Encrypt(plaintext string) (string, error) {
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", fmt.Errorf("security: nonce: %w", err)
	}
	sealed := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &b.key)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (b *Box) Decrypt(ciphertext string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", ErrDecryptFailed
	}
	if len(raw) < nonceSize {
		return "", ErrDecryptFailed
	}
	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])
	plain, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, &b.key)
	if !ok {
		return "", ErrDecryptFailed
	}
	return string(plain), nil
}
