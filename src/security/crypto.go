package security

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/nacl/secretbox"
)

const nonceSize = 24

var errCiphertextTooShort = errors.New("ciphertext too short")

func loadKey() ([32]byte, error) {
	var key [32]byte

	config := GetConfig()
	if config.ExchangeCRKey == "" {
		return key, errors.New("EXCHANGE_CREDENTIALS_KEY not set")
	}

	raw, err := base64.StdEncoding.DecodeString(config.ExchangeCRKey)
	if err != nil {
		return key, fmt.Errorf("base64 decode credentials key failed: %w", err)
	}
	if len(raw) != 32 {
		return key, fmt.Errorf("credentials key must be 32 bytes, got %d", len(raw))
	}

	copy(key[:], raw)
	return key, nil
}

// EncryptString seals a plaintext credential with the configured key. The
// random nonce is prepended to the ciphertext.
func EncryptString(plaintext string) (string, error) {
	key, err := loadKey()
	if err != nil {
		return "", err
	}

	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", fmt.Errorf("nonce generation failed: %w", err)
	}

	sealed := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &key)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// DecryptString opens a credential sealed by EncryptString.
func DecryptString(ciphertext string) (string, error) {
	key, err := loadKey()
	if err != nil {
		return "", err
	}

	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("base64 decode ciphertext failed: %w", err)
	}
	if len(raw) < nonceSize {
		return "", errCiphertextTooShort
	}

	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])

	plaintext, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, &key)
	if !ok {
		return "", errors.New("credential decryption failed")
	}

	return string(plaintext), nil
}
