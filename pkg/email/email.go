// Package email derives fallback name parts from email addresses. Some
// source exports carry a contact email but no name at all; a readable guess
// beats an empty display name in the review queue.
package email

import (
	"strings"
	"unicode"
)

// DeriveName splits the local part of an email on common separators and
// title-cases the first and last pieces. Returns empty strings when nothing
// name-like can be extracted, so callers can tell a guess from a blank.
func DeriveName(email string) (first, last string) {
	localPart := email
	if at := strings.IndexByte(email, '@'); at >= 0 {
		localPart = email[:at]
	}
	if localPart == "" {
		return "", ""
	}

	parts := strings.FieldsFunc(localPart, func(r rune) bool {
		return r == '.' || r == '_' || r == '-' || r == '+' || unicode.IsDigit(r)
	})
	if len(parts) == 0 {
		return "", ""
	}

	first = capitalize(parts[0])
	if len(parts) > 1 {
		last = capitalize(parts[len(parts)-1])
	}
	return first, last
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
