// Package security provides the small set of cryptographic and defensive
// helpers the admin API and its credential-provisioning tooling need:
// password hashing for the single operator account, a constant-time
// comparison for credential checks, the standard defensive response
// headers, and a password-strength gate for the bootstrap CLI.
package security

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// HashPassword creates a bcrypt hash of a password for storage in
// AuthConfig.OperatorPassHash.
func HashPassword(password string) (string, error) {
	if len(password) == 0 {
		return "", errors.New("password cannot be empty")
	}

	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}

	return string(bytes), nil
}

// VerifyPassword verifies a password against its bcrypt hash.
func VerifyPassword(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// SecureCompare performs a constant-time string comparison, used for the
// login handler's username check so a byte-by-byte diff can't leak which
// prefix matched through response timing.
func SecureCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// GetSecurityHeaders returns the defensive response headers the admin API
// attaches to every response.
func GetSecurityHeaders() map[string]string {
	return map[string]string{
		"X-Content-Type-Options":    "nosniff",
		"X-Frame-Options":           "DENY",
		"X-XSS-Protection":          "1; mode=block",
		"Strict-Transport-Security": "max-age=31536000; includeSubDomains",
		"Content-Security-Policy":   "default-src 'self'",
		"Referrer-Policy":           "strict-origin-when-cross-origin",
	}
}

// ValidatePasswordStrength reports whether password meets the minimum bar
// the `bfsched passwd` bootstrap command requires before hashing an
// operator credential: at least 8 characters and 3 of {digit, lowercase,
// uppercase, special character}.
func ValidatePasswordStrength(password string) bool {
	if len(password) < 8 {
		return false
	}

	var hasDigit, hasLower, hasUpper, hasSpecial bool
	const specialChars = "!@#$%^&*()_+-=[]{}|;:,.<>?"

	for _, char := range password {
		switch {
		case char >= '0' && char <= '9':
			hasDigit = true
		case char >= 'a' && char <= 'z':
			hasLower = true
		case char >= 'A' && char <= 'Z':
			hasUpper = true
		case strings.ContainsRune(specialChars, char):
			hasSpecial = true
		}
	}

	criteria := 0
	for _, ok := range []bool{hasDigit, hasLower, hasUpper, hasSpecial} {
		if ok {
			criteria++
		}
	}
	return criteria >= 3
}
