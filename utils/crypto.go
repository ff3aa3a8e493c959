package utils

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// GenerateSecureToken returns a URL-safe random token built from length random bytes
func GenerateSecureToken(length int) (string, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// HashShareToken hashes a share-link secret for storage
func HashShareToken(token string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash share token: %w", err)
	}
	return string(hash), nil
}

// VerifyShareToken checks a presented share-link secret against its stored hash
func VerifyShareToken(token, hash string) bool {
	if token == "" || hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)) == nil
}

// IsExpired reports whether expiration is strictly before now
func IsExpired(expiration, now time.Time) bool {
	return now.After(expiration)
}
