package cache

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateKey(t *testing.T) {
	tests := []struct {
		name string
		key  string
		want error
	}{
		{"valid", "/users/1", nil},
		{"absolute url", "https://api.example.com/users", nil},
		{"max length", strings.Repeat("a", MaxKeyLength), nil},
		{"empty", "", ErrInvalidKey},
		{"whitespace", " \t", ErrInvalidKey},
		{"newline", "/users\n", ErrInvalidKey},
		{"carriage return", "/users\r", ErrInvalidKey},
		{"too long", strings.Repeat("a", MaxKeyLength+1), ErrKeyTooLong},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidateKey(tt.key); !errors.Is(err, tt.want) {
				t.Errorf("ValidateKey() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSentinelErrors(t *testing.T) {
	for _, err := range []error{ErrUninitialized, ErrInvalidKey, ErrKeyTooLong, ErrInvalidConfig} {
		if !strings.HasPrefix(err.Error(), "cache: ") {
			t.Errorf("%q should carry the package prefix", err)
		}
	}
}
