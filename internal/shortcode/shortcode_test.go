package shortcode

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerate_Length(t *testing.T) {
	code, err := Generate()
	assert.NoError(t, err)
	assert.Len(t, code, DefaultLength)
}

func TestGenerate_Charset(t *testing.T) {
	for i := 0; i < 100; i++ {
		code, err := Generate()
		assert.NoError(t, err)
		for _, char := range code {
			assert.True(t, strings.ContainsRune(charset, char),
				"unexpected character %q in code %q", char, code)
		}
	}
}

func TestGenerate_Uniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		code, err := Generate()
		assert.NoError(t, err)
		assert.False(t, seen[code], "duplicate code %q after %d generations", code, i)
		seen[code] = true
	}
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name string
		code string
		err  error
	}{
		{"valid generated", "aB3x_9", nil},
		{"valid with hyphen", "my-link", nil},
		{"minimum length", "abc", nil},
		{"maximum length", strings.Repeat("a", 20), nil},
		{"too short", "ab", ErrInvalidLength},
		{"too long", strings.Repeat("a", 21), ErrInvalidLength},
		{"empty", "", ErrInvalidLength},
		{"space", "ab cd", ErrInvalidCharset},
		{"slash", "ab/cd", ErrInvalidCharset},
		{"unicode", "abcé", ErrInvalidCharset},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := Validate(tc.code)
			if tc.err == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tc.err)
			}
		})
	}
}
