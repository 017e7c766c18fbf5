package utils

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

func TestNewAccessTokenClaims(t *testing.T) {
	tok, err := NewAccessToken("secret", "acme-events", "ORGANIZER", time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	parsed, err := jwt.Parse(tok.Token, func(*jwt.Token) (interface{}, error) { return []byte("secret"), nil })
	if err != nil || !parsed.Valid {
		t.Fatalf("parse: %v", err)
	}
	claims := parsed.Claims.(jwt.MapClaims)
	if claims["sub"] != "acme-events" || claims["role"] != "ORGANIZER" {
		t.Fatalf("unexpected claims %v", claims)
	}
	if _, err := NewAccessToken("", "x", "ORGANIZER", time.Hour); err == nil {
		t.Fatal("expected error for empty secret")
	}
}

func TestRandomHex(t *testing.T) {
	a, err := RandomHex(16)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := RandomHex(16)
	if len(a) != 32 || a == b {
		t.Fatalf("random hex %q %q", a, b)
	}
}

func TestFingerprintHashing(t *testing.T) {
	long := strings.Repeat("device-", 40)
	hash, err := HashFingerprint(long, bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !VerifyFingerprint(hash, long) {
		t.Fatal("same fingerprint rejected")
	}
	if VerifyFingerprint(hash, long+"x") {
		t.Fatal("different fingerprint accepted")
	}
	if VerifyFingerprint("not-a-hash", long) {
		t.Fatal("garbage hash accepted")
	}
}
