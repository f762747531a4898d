package security

import (
	"encoding/base64"
	"testing"
)

func setTestKey(t *testing.T) {
	t.Helper()
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	t.Setenv("EXCHANGE_CREDENTIALS_KEY", base64.StdEncoding.EncodeToString(key))
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	setTestKey(t)

	plaintext := "api-secret-xyz-123"
	sealed, err := EncryptString(plaintext)
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}
	if sealed == plaintext {
		t.Fatalf("ciphertext equals plaintext")
	}

	opened, err := DecryptString(sealed)
	if err != nil {
		t.Fatalf("decrypt failed: %v", err)
	}
	if opened != plaintext {
		t.Fatalf("round trip mismatch: got %q, want %q", opened, plaintext)
	}
}

func TestEncryptProducesFreshNonce(t *testing.T) {
	setTestKey(t)

	first, err := EncryptString("same input")
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}
	second, err := EncryptString("same input")
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}
	if first == second {
		t.Fatalf("two encryptions of the same plaintext must differ")
	}
}

func TestDecryptRejectsTamperedCiphertext(t *testing.T) {
	setTestKey(t)

	sealed, err := EncryptString("credential")
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}

	raw, _ := base64.StdEncoding.DecodeString(sealed)
	raw[len(raw)-1] ^= 0xff
	tampered := base64.StdEncoding.EncodeToString(raw)

	if _, err := DecryptString(tampered); err == nil {
		t.Fatalf("expected tampered ciphertext to fail decryption")
	}
}

func TestDecryptRejectsShortCiphertext(t *testing.T) {
	setTestKey(t)

	short := base64.StdEncoding.EncodeToString([]byte("tiny"))
	if _, err := DecryptString(short); err == nil {
		t.Fatalf("expected short ciphertext to be rejected")
	}
}

func TestMissingKeyFails(t *testing.T) {
	t.Setenv("EXCHANGE_CREDENTIALS_KEY", "")
	if _, err := EncryptString("anything"); err == nil {
		t.Fatalf("expected error with no key configured")
	}
}
