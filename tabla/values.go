package tabla

import "regexp"

// valuePatterns recognise the cell contents that count as a tariff value.
// Order does not matter; the first match wins.
var valuePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\d+`),                        // bare digit sequence
	regexp.MustCompile(`\$\s*\d+`),                   // currency-prefixed
	regexp.MustCompile(`\d+\s*,\s*\d+`),              // thousands grouping
	regexp.MustCompile(`\d+\.\d+`),                   // decimals
	regexp.MustCompile(`\d+\s*%`),                    // percentages
	regexp.MustCompile(`(?i)\d+\s*(m3|m²|km|kg|lt|uf)`), // physical units
	regexp.MustCompile(`(?i)\b(si|no)\b`),            // yes/no tokens
}

// LooksLikeValue reports whether text reads as a numeric, price, percentage,
// unit, or boolean value rather than a label. It is a pure predicate and
// never errors; empty text is never a value.
func LooksLikeValue(text string) bool {
	if text == "" {
		return false
	}
	for _, re := range valuePatterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}
