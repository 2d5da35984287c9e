// Package normalize holds the deterministic value normalizers shared by
// extraction, blocking, and identifier storage. Every function here is
// idempotent: applying it to its own output returns the same value.
package normalize

import (
	"regexp"
	"strings"
)

var (
	nonDigitRE   = regexp.MustCompile(`\D+`)
	whitespaceRE = regexp.MustCompile(`\s+`)
)

// Email lower-cases and trims an email address. Empty in, empty out.
func Email(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Phone reduces a phone number to bare digits and strips the leading country
// "1" when the result is 11 digits long.
func Phone(s string) string {
	digits := nonDigitRE.ReplaceAllString(s, "")
	if len(digits) == 11 && strings.HasPrefix(digits, "1") {
		digits = digits[1:]
	}
	return digits
}

// Name lower-cases a display name and collapses runs of whitespace.
func Name(s string) string {
	return whitespaceRE.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), " ")
}

// NameSimilarity returns a Levenshtein ratio in [0,1] between two normalized
// names. Either side empty yields 0.
func NameSimilarity(a, b string) float64 {
	na, nb := Name(a), Name(b)
	if na == "" || nb == "" {
		return 0
	}
	maxLen := len(na)
	if len(nb) > maxLen {
		maxLen = len(nb)
	}
	dist := levenshtein(na, nb)
	sim := 1.0 - float64(dist)/float64(maxLen)
	if sim < 0 {
		return 0
	}
	return sim
}

// levenshtein computes edit distance with a two-row dynamic program.
func levenshtein(a, b string) int {
	if len(a) < len(b) {
		a, b = b, a
	}
	if len(b) == 0 {
		return len(a)
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 0; i < len(a); i++ {
		curr[0] = i + 1
		for j := 0; j < len(b); j++ {
			cost := 0
			if a[i] != b[j] {
				cost = 1
			}
			ins := prev[j+1] + 1
			del := curr[j] + 1
			sub := prev[j] + cost
			curr[j+1] = min3(ins, del, sub)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
