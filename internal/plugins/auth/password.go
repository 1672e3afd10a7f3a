package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// HashPassword creates a bcrypt hash of password at the given cost.
func HashPassword(password string, cost int) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(hash), nil
}

// compareHash is bcrypt's comparison, replaceable in tests.
var compareHash = bcrypt.CompareHashAndPassword

// verifyPassword checks a plaintext password against a bcrypt hash. The
// comparison is constant-time.
func verifyPassword(password, hash string) bool {
	err := compareHash([]byte(hash), []byte(password))
	if err != nil && !errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		// Malformed hashes fail closed.
		return false
	}
	return err == nil
}
