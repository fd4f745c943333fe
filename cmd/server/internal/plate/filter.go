package plate

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/width"
)

var (
	// legacyPattern matches the pre-2018 format: ABC-1234.
	legacyPattern = regexp.MustCompile(`^[A-Z]{3}-\d{4}$`)
	// mercosulPattern matches the Mercosul format: ABC1D23.
	mercosulPattern = regexp.MustCompile(`^[A-Z]{3}\d[A-Z]\d{2}$`)
)

// Normalize folds full-width characters, drops every whitespace rune and uppercases.
func Normalize(text string) string {
	folded := width.Fold.String(text)
	return strings.ToUpper(strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, folded))
}

// ExtractLicensePlate returns the first candidate that, once normalized, is a
// legacy or Mercosul plate.
func ExtractLicensePlate(texts []string) (string, bool) {
	for _, text := range texts {
		candidate := Normalize(text)
		if legacyPattern.MatchString(candidate) || mercosulPattern.MatchString(candidate) {
			return candidate, true
		}
	}
	return "", false
}
