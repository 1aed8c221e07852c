// Package utils provides shared helpers for logging, vectors, and text.
package utils

import (
	"strings"
	"unicode"
)

// Truncate returns s cut to at most maxRunes runes, with "..." appended if it was cut.
// It counts runes rather than bytes so Vietnamese diacritics are never split.
// If maxRunes is 0 or negative, s is returned unchanged.
func Truncate(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return s
	}
	n := 0
	for i := range s {
		if n == maxRunes {
			return s[:i] + "..."
		}
		n++
	}
	return s
}

// CollapseSpace trims s and replaces every run of whitespace with a single space.
func CollapseSpace(s string) string {
	s = strings.TrimSpace(s)
	var b strings.Builder
	b.Grow(len(s))
	wasSpace := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			if !wasSpace {
				b.WriteByte(' ')
				wasSpace = true
			}
			continue
		}
		b.WriteRune(r)
		wasSpace = false
	}
	return b.String()
}
