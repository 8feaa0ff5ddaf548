package validation

import (
	"errors"
	"math"
	"strings"
	"testing"
)

func TestValidateSearchQuery_EmptyAndWhitespace(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"spaces", "   "},
		{"tab", "\t"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ValidateSearchQuery(tc.input, 1, 100)
			if !errors.Is(err, ErrQueryEmpty) {
				t.Errorf("error = %v, want ErrQueryEmpty", err)
			}
		})
	}
}

func TestValidateSearchQuery_TooShort(t *testing.T) {
	_, err := ValidateSearchQuery("x", 2, 100)
	if !errors.Is(err, ErrQueryTooShort) {
		t.Errorf("error = %v, want ErrQueryTooShort", err)
	}
}

func TestValidateSearchQuery_TooLong(t *testing.T) {
	_, err := ValidateSearchQuery(strings.Repeat("a", 101), 1, 100)
	if !errors.Is(err, ErrQueryTooLong) {
		t.Errorf("error = %v, want ErrQueryTooLong", err)
	}
}

func TestValidateSearchQuery_InvalidChars(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"slash", "par/is"},
		{"backslash", "par\\is"},
		{"angle bracket", "<script>"},
		{"semicolon", "paris;drop"},
		{"control", "par\x00is"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ValidateSearchQuery(tc.input, 1, 100)
			if !errors.Is(err, ErrQueryInvalidChars) {
				t.Errorf("error = %v, want ErrQueryInvalidChars", err)
			}
		})
	}
}

func TestValidateSearchQuery_Valid(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"simple", "Paris", "Paris"},
		{"trimmed", "  London ", "London"},
		{"comma and country", "Portland, US", "Portland, US"},
		{"hyphen", "Stratford-upon-Avon", "Stratford-upon-Avon"},
		{"period", "St. Louis", "St. Louis"},
		{"apostrophe", "L'Aquila", "L'Aquila"},
		{"unicode", "São Paulo", "São Paulo"},
		{"digits", "Area 51", "Area 51"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ValidateSearchQuery(tc.input, 1, 100)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestValidateCoordinate(t *testing.T) {
	tests := []struct {
		name    string
		lat     float64
		lon     float64
		wantErr error
	}{
		{"origin", 0, 0, nil},
		{"bounds", -90, 180, nil},
		{"lat too high", 90.1, 0, ErrLatitudeOutOfRange},
		{"lat NaN", math.NaN(), 0, ErrLatitudeOutOfRange},
		{"lon too low", 0, -180.5, ErrLongitudeOutOfRange},
		{"lon NaN", 0, math.NaN(), ErrLongitudeOutOfRange},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if err := ValidateCoordinate(tc.lat, tc.lon); !errors.Is(err, tc.wantErr) {
				t.Errorf("ValidateCoordinate(%v, %v) = %v, want %v", tc.lat, tc.lon, err, tc.wantErr)
			}
		})
	}
}
