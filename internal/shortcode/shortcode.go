// Package shortcode generates and validates the short identifiers that
// address links.
package shortcode

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
)

const (
	// charset is the URL-safe alphabet codes are drawn from. Custom
	// aliases are validated against the same set.
	charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789_-"

	// DefaultLength is the length of generated codes.
	DefaultLength = 6

	MinLength = 3
	MaxLength = 20
)

var (
	ErrInvalidLength  = errors.New("code must be 3-20 characters")
	ErrInvalidCharset = errors.New("code can only contain letters, numbers, hyphens, and underscores")
)

// Generate produces a random code of DefaultLength characters.
func Generate() (string, error) {
	return GenerateN(DefaultLength)
}

// GenerateN produces a random code of n characters using crypto/rand.
func GenerateN(n int) (string, error) {
	code := make([]byte, n)
	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", fmt.Errorf("failed to generate random number: %w", err)
		}
		code[i] = charset[idx.Int64()]
	}
	return string(code), nil
}

// Validate checks that code satisfies the charset and length rules shared
// by generated codes and caller-supplied aliases.
func Validate(code string) error {
	if len(code) < MinLength || len(code) > MaxLength {
		return ErrInvalidLength
	}
	for _, char := range code {
		if !((char >= 'a' && char <= 'z') ||
			(char >= 'A' && char <= 'Z') ||
			(char >= '0' && char <= '9') ||
			char == '-' || char == '_') {
			return ErrInvalidCharset
		}
	}
	return nil
}
