// Package email derives human-readable names from email addresses, used as
// the last-resort display name when a provider profile carries no usable one.
package email

import (
	"strings"
	"unicode"
)

// Local-part separators that commonly delimit name components.
const separators = "._-+"

// DeriveNameFromEmail splits the local part of email on common separators and
// returns (first, last) name guesses, title-cased. Missing components fall
// back to "User" so callers always get a non-empty pair.
func DeriveNameFromEmail(email string) (first, last string) {
	local := email
	if at := strings.IndexByte(email, '@'); at > 0 {
		local = email[:at]
	}

	parts := strings.FieldsFunc(local, func(r rune) bool {
		return strings.ContainsRune(separators, r)
	})

	switch len(parts) {
	case 0:
		return "User", "User"
	case 1:
		return titleCase(parts[0]), "User"
	default:
		return titleCase(parts[0]), titleCase(parts[len(parts)-1])
	}
}

func titleCase(s string) string {
	if s == "" {
		return s
	}

	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
