package shared

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// NormalizeEmail trims surrounding whitespace and lowercases an address so it
// can be used as a lookup key. Characters without a single lowercase form,
// such as ß, are kept as written.
func NormalizeEmail(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	return cases.Lower(language.Und).String(trimmed)
}

// EmailLocalPart returns the portion of the address before '@'.
func EmailLocalPart(email string) string {
	if i := strings.IndexByte(email, '@'); i >= 0 {
		return email[:i]
	}
	return email
}

// SameEmail compares two addresses after normalization.
func SameEmail(a, b string) bool {
	na := NormalizeEmail(a)
	return na != "" && na == NormalizeEmail(b)
}
