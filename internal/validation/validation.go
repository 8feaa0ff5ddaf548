package validation

import (
	"errors"
	"math"
	"strings"
	"unicode"
)

// ErrQueryEmpty is returned when the search text is empty or whitespace-only after trim.
var ErrQueryEmpty = errors.New("search query is required")

// ErrQueryTooShort is returned when the search text length is below the minimum.
var ErrQueryTooShort = errors.New("search query too short")

// ErrQueryTooLong is returned when the search text length exceeds the maximum.
var ErrQueryTooLong = errors.New("search query too long")

// ErrQueryInvalidChars is returned when the search text contains disallowed characters.
var ErrQueryInvalidChars = errors.New("search query contains invalid characters")

var (
	ErrLatitudeOutOfRange  = errors.New("latitude must be between -90 and 90")
	ErrLongitudeOutOfRange = errors.New("longitude must be between -180 and 180")
)

// ValidateSearchQuery trims the input, enforces length bounds (minLen, maxLen in runes),
// and restricts to allowed characters: letters (Unicode), digits, space, comma, hyphen,
// period, apostrophe. Returns the trimmed string or an error suitable for 400
// INVALID_QUERY responses. An empty query is reported separately so callers can
// treat it as "clear results".
func ValidateSearchQuery(input string, minLen, maxLen int) (string, error) {
	s := strings.TrimSpace(input)
	r := []rune(s)
	n := len(r)
	if n == 0 {
		return "", ErrQueryEmpty
	}
	if minLen > 0 && n < minLen {
		return "", ErrQueryTooShort
	}
	if maxLen > 0 && n > maxLen {
		return "", ErrQueryTooLong
	}
	for _, c := range r {
		if !isAllowedQueryRune(c) {
			return "", ErrQueryInvalidChars
		}
	}
	return s, nil
}

// isAllowedQueryRune returns true for letters (Unicode), marks, digits, space,
// comma, hyphen, period, apostrophe.
func isAllowedQueryRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsMark(r) || unicode.IsNumber(r) {
		return true
	}
	switch r {
	case ' ', ',', '-', '.', '\'':
		return true
	}
	return false
}

// ValidateCoordinate checks latitude and longitude ranges in degrees.
func ValidateCoordinate(lat, lon float64) error {
	if math.IsNaN(lat) || lat < -90 || lat > 90 {
		return ErrLatitudeOutOfRange
	}
	if math.IsNaN(lon) || lon < -180 || lon > 180 {
		return ErrLongitudeOutOfRange
	}
	return nil
}
