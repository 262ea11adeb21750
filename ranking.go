// Package tripflow - ranking.go
// Text matching shared by the in-memory store: case/diacritics folding,
// tokenization with light stemming, and the full-text + substring scoring
// that mirrors what the Postgres store does with tsvector and ILIKE.

package tripflow

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// foldText lowercases and strips diacritics so "Bogotá" matches "bogota".
func foldText(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		return strings.ToLower(s)
	}
	return strings.ToLower(folded)
}

// stemToken trims the common English inflection suffixes. It is a rough
// stand-in for the database's stemmer, enough to make "destinations"
// match "destination".
func stemToken(tok string) string {
	switch {
	case len(tok) > 4 && strings.HasSuffix(tok, "ies"):
		return tok[:len(tok)-3] + "y"
	case len(tok) > 4 && strings.HasSuffix(tok, "ing"):
		return tok[:len(tok)-3]
	case len(tok) > 3 && strings.HasSuffix(tok, "ed"):
		return tok[:len(tok)-2]
	case len(tok) > 3 && strings.HasSuffix(tok, "es"):
		return tok[:len(tok)-2]
	case len(tok) > 2 && strings.HasSuffix(tok, "s"):
		return tok[:len(tok)-1]
	}
	return tok
}

// tokenize folds the text and splits it on natural-language boundaries,
// stemming each token.
func tokenize(s string) []string {
	fields := strings.FieldsFunc(foldText(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		tokens = append(tokens, stemToken(f))
	}
	return tokens
}

// textScore ranks a document against a query the way the SQL search does:
// a positive full-text score when stemmed query tokens appear in the
// document, zero for substring-only matches (the bottom tier).
// matched reports whether the document matches at all.
func textScore(key, value, query string) (rank float64, matched bool) {
	folded := foldText(query)
	substring := folded != "" &&
		(strings.Contains(foldText(key), folded) || strings.Contains(foldText(value), folded))

	queryTokens := tokenize(query)
	if len(queryTokens) == 0 {
		return 0, substring
	}

	docTokens := tokenize(key + " " + value)
	counts := make(map[string]int, len(docTokens))
	for _, t := range docTokens {
		counts[t]++
	}

	seen := make(map[string]bool, len(queryTokens))
	hits, freq := 0, 0
	for _, qt := range queryTokens {
		if seen[qt] {
			continue
		}
		seen[qt] = true
		if c := counts[qt]; c > 0 {
			hits++
			freq += c
		}
	}
	if hits > 0 {
		// Frequency-weighted overlap, normalized by document length so
		// short precise memories outrank long rambling ones.
		rank = (float64(hits) + 0.1*float64(freq)) / (1 + float64(len(docTokens)))
		return rank, true
	}
	return 0, substring
}
