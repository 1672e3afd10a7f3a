package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
)

// sealedPrefix marks a TOTP secret encrypted at rest. Values without it are
// read as plaintext, so a key can be introduced on an existing registry.
const sealedPrefix = "enc:v1:"

// secretBox encrypts TOTP secrets with AES-256-GCM. A nil box stores them
// as plaintext.
type secretBox struct {
	aead cipher.AEAD
}

// newSecretBox derives an AES-256 key from key with SHA-256. An empty key
// yields a nil box.
func newSecretBox(key string) (*secretBox, error) {
	if key == "" {
		return nil, nil
	}
	sum := sha256.Sum256([]byte(key))
	block, err := aes.NewCipher(sum[:])
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}
	return &secretBox{aead: aead}, nil
}

// seal encrypts plaintext as prefix + base64([nonce][ciphertext+tag]).
func (b *secretBox) seal(plaintext string) (string, error) {
	if b == nil || plaintext == "" {
		return plaintext, nil
	}
	nonce := make([]byte, b.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}
	sealed := b.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return sealedPrefix + base64.RawStdEncoding.EncodeToString(sealed), nil
}

func (b *secretBox) open(stored string) (string, error) {
	if !strings.HasPrefix(stored, sealedPrefix) {
		return stored, nil
	}
	if b == nil {
		return "", fmt.Errorf("secret is encrypted but no key is configured")
	}
	raw, err := base64.RawStdEncoding.DecodeString(strings.TrimPrefix(stored, sealedPrefix))
	if err != nil {
		return "", fmt.Errorf("decoding secret: %w", err)
	}
	n := b.aead.NonceSize()
	if len(raw) < n {
		return "", fmt.Errorf("ciphertext too short")
	}
	plain, err := b.aead.Open(nil, raw[:n], raw[n:], nil)
	if err != nil {
		return "", fmt.Errorf("decrypting secret: %w", err)
	}
	return string(plain), nil
}
