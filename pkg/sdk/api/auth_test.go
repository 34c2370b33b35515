package api

import (
	"strings"
	"testing"
)

func TestNewAuthFromKey(t *testing.T) {
	auth, err := NewAuthFromKey(testPrivateKey)
	if err != nil {
		t.Fatalf("NewAuthFromKey: %v", err)
	}

	// Address derived from the hardhat #0 key is a fixed constant.
	want := "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	if auth.GetAddress().Hex() != want {
		t.Errorf("address got %s, want %s", auth.GetAddress().Hex(), want)
	}
}

func TestNewAuthFromKeyStripsPrefix(t *testing.T) {
	a, err := NewAuthFromKey("0x" + testPrivateKey)
	if err != nil {
		t.Fatalf("NewAuthFromKey with 0x prefix: %v", err)
	}
	b, err := NewAuthFromKey(testPrivateKey)
	if err != nil {
		t.Fatalf("NewAuthFromKey without prefix: %v", err)
	}
	if a.GetAddress() != b.GetAddress() {
		t.Error("0x prefix should not change the derived address")
	}
}

func TestNewAuthFromKeyRejectsGarbage(t *testing.T) {
	if _, err := NewAuthFromKey("not-hex"); err == nil {
		t.Fatal("expected error for invalid key")
	}
	if _, err := NewAuthFromKey(""); err == nil {
		t.Fatal("expected error for empty key")
	}
}

func TestSignRequestHeaders(t *testing.T) {
	auth, err := NewAuthFromKey(testPrivateKey)
	if err != nil {
		t.Fatalf("NewAuthFromKey: %v", err)
	}

	headers, err := auth.SignRequest()
	if err != nil {
		t.Fatalf("SignRequest: %v", err)
	}

	for _, key := range []string{"POLY_ADDRESS", "POLY_SIGNATURE", "POLY_TIMESTAMP", "POLY_NONCE"} {
		if headers[key] == "" {
			t.Errorf("missing header %s", key)
		}
	}
	if headers["POLY_ADDRESS"] != auth.GetAddress().Hex() {
		t.Errorf("POLY_ADDRESS got %s", headers["POLY_ADDRESS"])
	}
	if !strings.HasPrefix(headers["POLY_SIGNATURE"], "0x") {
		t.Errorf("signature should be 0x-prefixed: %s", headers["POLY_SIGNATURE"])
	}
}
