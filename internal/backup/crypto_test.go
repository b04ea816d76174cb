package backup

import (
	"bytes"
	"testing"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	plaintext := []byte("the quick brown fox")

	encrypted, err := Encrypt(plaintext, "correct horse battery staple")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if bytes.Contains(encrypted, plaintext) {
		t.Error("ciphertext contains plaintext")
	}

	decrypted, err := Decrypt(encrypted, "correct horse battery staple")
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if !bytes.Equal(decrypted, plaintext) {
		t.Errorf("round trip = %q, want %q", decrypted, plaintext)
	}
}

func TestDecryptWrongPassphrase(t *testing.T) {
	encrypted, err := Encrypt([]byte("secret"), "right")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	if _, err := Decrypt(encrypted, "wrong"); err == nil {
		t.Error("expected decryption failure with wrong passphrase")
	}
}

func TestDecryptTruncated(t *testing.T) {
	if _, err := Decrypt([]byte("short"), "pass"); err == nil {
		t.Error("expected error on truncated payload")
	}
}

func TestEncryptUniqueSaltPerCall(t *testing.T) {
	a, err := Encrypt([]byte("same input"), "pass")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	b, err := Encrypt([]byte("same input"), "pass")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if bytes.Equal(a[:saltSize], b[:saltSize]) {
		t.Error("expected a fresh salt per encryption")
	}
	if bytes.Equal(a, b) {
		t.Error("expected distinct ciphertexts for identical input")
	}
}
