// utils/search.go
package utils

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var foldTransformer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// NormalizeSearchTerm lowercases and strips diacritics so "Nguyễn" matches
// a search for "nguyen".
func NormalizeSearchTerm(s string) string {
	folded, _, err := transform.String(foldTransformer, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(strings.TrimSpace(folded))
}

// MatchesSearch reports whether the candidate contains the query after both
// are normalized. An empty query matches everything.
func MatchesSearch(candidate, query string) bool {
	q := NormalizeSearchTerm(query)
	if q == "" {
		return true
	}
	return strings.Contains(NormalizeSearchTerm(candidate), q)
}
