// Package cipher seals message bodies with XChaCha20-Poly1305.
//
// Sealed layout:
//
//	[version: 1 byte] [nonce: 24 bytes] [ciphertext+tag]
//
// The version byte is authenticated as additional data.
package cipher

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/dkeye/Duet/internal/domain"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const KeySize = chacha20poly1305.KeySize

const sealedVersion byte = 0x01

const overhead = 1 + chacha20poly1305.NonceSizeX + chacha20poly1305.Overhead

var hkdfInfo = []byte("duet.message.v1")

type AEAD struct {
	key []byte
}

func New(key []byte) (*AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("cipher key is %d bytes, want %d", len(key), KeySize)
	}
	return &AEAD{key: append([]byte(nil), key...)}, nil
}

// ParseKey decodes a standard base64 key.
func ParseKey(encoded string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode cipher key: %w", err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("cipher key is %d bytes, want %d", len(key), KeySize)
	}
	return key, nil
}

// DeriveKey stretches a shared secret into a message key with HKDF-SHA256.
func DeriveKey(secret string) ([]byte, error) {
	if secret == "" {
		return nil, fmt.Errorf("derive cipher key: empty secret")
	}
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, hkdfInfo), key); err != nil {
		return nil, fmt.Errorf("derive cipher key: %w", err)
	}
	return key, nil
}

func (c *AEAD) Encrypt(plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCipherFailure, err)
	}

	out := make([]byte, 1+chacha20poly1305.NonceSizeX, overhead+len(plaintext))
	out[0] = sealedVersion
	if _, err := io.ReadFull(rand.Reader, out[1:]); err != nil {
		return nil, fmt.Errorf("%w: nonce: %v", domain.ErrCipherFailure, err)
	}
	nonce := out[1 : 1+chacha20poly1305.NonceSizeX]
	return aead.Seal(out, nonce, plaintext, out[:1]), nil
}

func (c *AEAD) Decrypt(sealed []byte) ([]byte, error) {
	if len(sealed) < overhead {
		return nil, fmt.Errorf("%w: sealed body is %d bytes, minimum is %d", domain.ErrCipherFailure, len(sealed), overhead)
	}
	if sealed[0] != sealedVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", domain.ErrCipherFailure, sealed[0])
	}
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCipherFailure, err)
	}
	nonce := sealed[1 : 1+chacha20poly1305.NonceSizeX]
	plaintext, err := aead.Open(nil, nonce, sealed[1+chacha20poly1305.NonceSizeX:], sealed[:1])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCipherFailure, err)
	}
	return plaintext, nil
}
