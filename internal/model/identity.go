package model

import (
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"
)

const MaxIdentityLength = 128

var ErrInvalidIdentity = errors.New("invalid identity")

// ValidateIdentity accepts any non-blank printable string up to
// MaxIdentityLength bytes.
func ValidateIdentity(identity string) error {
	if strings.TrimSpace(identity) == "" {
		return ErrInvalidIdentity
	}
	if len(identity) > MaxIdentityLength || !utf8.ValidString(identity) {
		return ErrInvalidIdentity
	}
	for _, r := range identity {
		if unicode.IsControl(r) {
			return ErrInvalidIdentity
		}
	}
	return nil
}
