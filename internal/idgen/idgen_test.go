package idgen

import (
	"regexp"
	"strings"
	"testing"
)

func TestSessionToken_Length(t *testing.T) {
	tok, err := SessionToken()
	if err != nil {
		t.Fatalf("SessionToken() error: %v", err)
	}
	if len(tok) != SessionTokenLength {
		t.Errorf("SessionToken() length = %d, want %d (tok=%q)", len(tok), SessionTokenLength, tok)
	}
}

func TestSessionToken_Charset(t *testing.T) {
	pattern := regexp.MustCompile(`^[a-zA-Z0-9]+$`)
	for i := 0; i < 100; i++ {
		tok, err := SessionToken()
		if err != nil {
			t.Fatalf("SessionToken() error on iteration %d: %v", i, err)
		}
		if !pattern.MatchString(tok) {
			t.Fatalf("SessionToken() = %q, does not match expected charset pattern", tok)
		}
	}
}

func TestSessionToken_Uniqueness(t *testing.T) {
	const count = 10_000
	seen := make(map[string]struct{}, count)
	for i := 0; i < count; i++ {
		tok, err := SessionToken()
		if err != nil {
			t.Fatalf("SessionToken() error on iteration %d: %v", i, err)
		}
		if _, dup := seen[tok]; dup {
			t.Fatalf("duplicate token after %d generations: %q", i, tok)
		}
		seen[tok] = struct{}{}
	}
}

func TestGenerateWithPrefix(t *testing.T) {
	id, err := GenerateWithPrefix("test-", 8)
	if err != nil {
		t.Fatalf("GenerateWithPrefix() error: %v", err)
	}
	if !strings.HasPrefix(id, "test-") || len(id) != 13 {
		t.Errorf("GenerateWithPrefix() = %q", id)
	}
}
