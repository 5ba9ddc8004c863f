// Package auth handles password hashing, cookie sessions and the request
// identity carried through handlers.
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/scrypt"
)

// scrypt parameters. The salt is used in its hex form so hashes written by
// earlier deployments still verify.
const (
	scryptN      = 16384
	scryptR      = 8
	scryptP      = 1
	scryptKeyLen = 64
	saltBytes    = 16
)

// ErrMalformedHash is returned when a stored hash is not "hash.salt".
var ErrMalformedHash = errors.New("malformed password hash")

// HashPassword returns hex(scrypt(password, salt)).salt.
func HashPassword(password string) (string, error) {
	raw := make([]byte, saltBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	salt := hex.EncodeToString(raw)
	key, err := scrypt.Key([]byte(password), []byte(salt), scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return "", fmt.Errorf("scrypt: %w", err)
	}
	return hex.EncodeToString(key) + "." + salt, nil
}

// VerifyPassword reports whether password matches stored.
func VerifyPassword(password, stored string) (bool, error) {
	hashed, salt, ok := strings.Cut(stored, ".")
	if !ok || hashed == "" || salt == "" {
		return false, ErrMalformedHash
	}
	want, err := hex.DecodeString(hashed)
	if err != nil {
		return false, ErrMalformedHash
	}
	got, err := scrypt.Key([]byte(password), []byte(salt), scryptN, scryptR, scryptP, len(want))
	if err != nil {
		return false, fmt.Errorf("scrypt: %w", err)
	}
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}
