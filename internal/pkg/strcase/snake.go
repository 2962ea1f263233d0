// Package strcase converts Go identifiers into the snake_case keys used in
// JSON error bodies.
package strcase

import (
	"strings"
	"unicode"
)

// ToLowerSnake splits s on case changes and keeps initialisms together:
// SessionID becomes session_id and TOTPCode becomes totp_code.
func ToLowerSnake(s string) string {
	rs := []rune(s)
	var b strings.Builder
	b.Grow(len(s) + 4)

	for i, r := range rs {
		if i > 0 && unicode.IsUpper(r) && wordStart(rs, i) {
			b.WriteByte('_')
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// wordStart reports whether the upper-case rune at i opens a new word.
func wordStart(rs []rune, i int) bool {
	prev := rs[i-1]
	if unicode.IsLower(prev) || unicode.IsDigit(prev) {
		return true
	}
	// Last capital of an initialism followed by a lower-case word.
	return unicode.IsUpper(prev) && i+1 < len(rs) && unicode.IsLower(rs[i+1])
}
