package validation

import (
	"errors"
	"strings"
	"unicode"
)

// ErrNameEmpty is returned when a species name is empty or whitespace-only after trim.
var ErrNameEmpty = errors.New("name is required")

// ErrNameTooLong is returned when a species name exceeds the maximum length.
var ErrNameTooLong = errors.New("name too long")

// ErrNameInvalidChars is returned when a species name contains disallowed characters.
var ErrNameInvalidChars = errors.New("name contains invalid characters")

// ValidateSpeciesName trims and lower-cases the input, joins inner spaces with hyphens
// ("Mr Mime" becomes "mr-mime") and restricts to letters, digits, hyphen, period and
// apostrophe. maxLen is in runes; 0 disables the check.
func ValidateSpeciesName(input string, maxLen int) (string, error) {
	s := strings.ToLower(strings.TrimSpace(input))
	if s == "" {
		return "", ErrNameEmpty
	}
	s = strings.Join(strings.Fields(s), "-")
	r := []rune(s)
	if maxLen > 0 && len(r) > maxLen {
		return "", ErrNameTooLong
	}
	for _, c := range r {
		if !isAllowedNameRune(c) {
			return "", ErrNameInvalidChars
		}
	}
	return s, nil
}

func isAllowedNameRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsDigit(r) {
		return true
	}
	switch r {
	case '-', '.', '\'':
		return true
	}
	return false
}

// NormalizeCountryCode trims and upper-cases a country code. Codes are matched against
// the cache as-is, so unknown shapes simply miss.
func NormalizeCountryCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// NormalizeQuery lower-cases an autocomplete query. Whitespace is significant.
func NormalizeQuery(q string) string {
	return strings.ToLower(q)
}
