// internal/auth/sealer.go
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
)

var (
	ErrSealingKeyMissing  = errors.New("token sealing key is not configured")
	ErrSealedTokenCorrupt = errors.New("sealed token cannot be opened")
)

const nonceSize = 24

// TokenSealer encrypts Notion tokens before they are stored.
type TokenSealer struct {
	key [32]byte
}

// NewTokenSealer derives the secretbox key from a passphrase.
func NewTokenSealer(passphrase string) (*TokenSealer, error) {
	if passphrase == "" {
		return nil, ErrSealingKeyMissing
	}
	return &TokenSealer{key: sha256.Sum256([]byte(passphrase))}, nil
}

// Seal encrypts plaintext with a random nonce and returns base64 text.
func (s *TokenSealer) Seal(plaintext string) (string, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}
	sealed := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &s.key)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal.
func (s *TokenSealer) Open(sealed string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil || len(raw) < nonceSize+secretbox.Overhead {
		return "", ErrSealedTokenCorrupt
	}
	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])

	plaintext, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, &s.key)
	if !ok {
		customLog.Warnln("TokenSealer: sealed token failed authentication")
		return "", ErrSealedTokenCorrupt
	}
	return string(plaintext), nil
}
