// Package idgen provides URL-safe random identifiers backed by nanoid.
package idgen

import (
	"fmt"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// Alphabet defines the character set used for the random portion of an ID.
var Alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// SessionTokenLength is long enough that tokens cannot be guessed.
const SessionTokenLength = 48

// SessionToken returns a new opaque session token.
func SessionToken() (string, error) {
	return GenerateWithPrefix("", SessionTokenLength)
}

// GenerateWithPrefix returns prefix followed by n random characters.
func GenerateWithPrefix(prefix string, n int) (string, error) {
	id, err := nanoid.Generate(Alphabet, n)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return prefix + id, nil
}
