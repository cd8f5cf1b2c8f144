// Octomirror - GitHub Mirror and Synchronization Engine
// Copyright 2026 Octomirror Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/octomirror/octomirror

package config

import (
	"errors"
	"strings"
	"testing"
)

func TestCredentialEncryptorRoundTrip(t *testing.T) {
	enc, err := NewCredentialEncryptor("master-secret")
	if err != nil {
		t.Fatalf("NewCredentialEncryptor() error: %v", err)
	}

	tests := []struct {
		name      string
		plaintext string
	}{
		{name: "api token", plaintext: "ghp_abcdef0123456789"},
		{name: "webhook secret", plaintext: "hunter2"},
		{name: "unicode", plaintext: "sécrét-日本語"},
		{name: "long value", plaintext: strings.Repeat("x", 4096)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ciphertext, err := enc.Encrypt(tt.plaintext)
			if err != nil {
				t.Fatalf("Encrypt() error: %v", err)
			}
			if ciphertext == tt.plaintext {
				t.Fatal("ciphertext equals plaintext")
			}

			got, err := enc.Decrypt(ciphertext)
			if err != nil {
				t.Fatalf("Decrypt() error: %v", err)
			}
			if got != tt.plaintext {
				t.Errorf("round trip = %q, want %q", got, tt.plaintext)
			}
		})
	}
}

func TestCredentialEncryptorNonceUniqueness(t *testing.T) {
	enc, err := NewCredentialEncryptor("master-secret")
	if err != nil {
		t.Fatalf("NewCredentialEncryptor() error: %v", err)
	}

	a, _ := enc.Encrypt("same-plaintext")
	b, _ := enc.Encrypt("same-plaintext")
	if a == b {
		t.Error("two encryptions of the same plaintext produced identical ciphertexts")
	}
}

func TestCredentialEncryptorErrors(t *testing.T) {
	enc, err := NewCredentialEncryptor("master-secret")
	if err != nil {
		t.Fatalf("NewCredentialEncryptor() error: %v", err)
	}

	if _, err := NewCredentialEncryptor(""); !errors.Is(err, ErrEmptySecret) {
		t.Errorf("empty secret: got %v, want ErrEmptySecret", err)
	}

	if _, err := enc.Encrypt(""); !errors.Is(err, ErrEmptyPlaintext) {
		t.Errorf("empty plaintext: got %v, want ErrEmptyPlaintext", err)
	}

	if _, err := enc.Decrypt(""); !errors.Is(err, ErrEmptyCiphertext) {
		t.Errorf("empty ciphertext: got %v, want ErrEmptyCiphertext", err)
	}

	if _, err := enc.Decrypt("not-base64!!!"); !errors.Is(err, ErrInvalidCiphertext) {
		t.Errorf("bad base64: got %v, want ErrInvalidCiphertext", err)
	}

	if _, err := enc.Decrypt("c2hvcnQ="); !errors.Is(err, ErrCiphertextTooShort) {
		t.Errorf("short ciphertext: got %v, want ErrCiphertextTooShort", err)
	}

	// Tampering with the ciphertext must fail authentication.
	ciphertext, err := enc.Encrypt("payload")
	if err != nil {
		t.Fatalf("Encrypt() error: %v", err)
	}
	other, err := NewCredentialEncryptor("different-secret")
	if err != nil {
		t.Fatalf("NewCredentialEncryptor() error: %v", err)
	}
	if _, err := other.Decrypt(ciphertext); !errors.Is(err, ErrDecryptionFailed) {
		t.Errorf("wrong key: got %v, want ErrDecryptionFailed", err)
	}
}

func TestMaskCredential(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "", want: ""},
		{in: "abc", want: "****"},
		{in: "abcd", want: "****"},
		{in: "ghp_abcdef1234", want: "****...1234"},
	}

	for _, tt := range tests {
		if got := MaskCredential(tt.in); got != tt.want {
			t.Errorf("MaskCredential(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
