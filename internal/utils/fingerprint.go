package utils

import (
	"crypto/sha256"
	"encoding/hex"

	"golang.org/x/crypto/bcrypt"
)

// HashFingerprint returns a bcrypt hash of a device fingerprint.  The
// fingerprint is reduced with SHA-256 first because bcrypt rejects inputs
// longer than 72 bytes.
func HashFingerprint(fingerprint string, cost int) (string, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	b, err := bcrypt.GenerateFromPassword(digest(fingerprint), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// VerifyFingerprint compares a presented fingerprint against a stored hash.
func VerifyFingerprint(hash, fingerprint string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), digest(fingerprint)) == nil
}

func digest(s string) []byte {
	sum := sha256.Sum256([]byte(s))
	return []byte(hex.EncodeToString(sum[:]))
}
