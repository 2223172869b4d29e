package main

import (
	"encoding/hex"
	"testing"
)

func TestGenerateSecureToken_HexShape(t *testing.T) {
	token, err := GenerateSecureToken()
	if err != nil {
		t.Fatalf("GenerateSecureToken: %v", err)
	}

	raw, err := hex.DecodeString(token)
	if err != nil {
		t.Fatalf("token %q is not valid hex: %v", token, err)
	}
	if len(raw) != tokenByteLength {
		t.Errorf("decoded length = %d bytes, want %d", len(raw), tokenByteLength)
	}
}

func TestGenerateSecureToken_NoRepeats(t *testing.T) {
	seen := make(map[string]bool, 100)
	for i := 0; i < 100; i++ {
		token, err := GenerateSecureToken()
		if err != nil {
			t.Fatalf("GenerateSecureToken: %v", err)
		}
		if seen[token] {
			t.Fatalf("duplicate token on iteration %d", i)
		}
		seen[token] = true
	}
}
