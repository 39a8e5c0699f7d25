package core

import (
	"strings"
	"unicode"
)

// SearchTerms splits a keyword query into lower-cased, de-duplicated
// terms. Any run of letters or digits is a term.
func SearchTerms(keyword string) []string {
	fields := strings.FieldsFunc(strings.ToLower(keyword), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]struct{}, len(fields))
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		terms = append(terms, f)
	}
	return terms
}
