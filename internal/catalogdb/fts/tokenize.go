// Package fts holds the UTF-8 tokenizer shared by every dialect's full-text
// search support: PostgreSQL's to_tsvector pre-pass and the cross-dialect
// FTS match-predicate generator both tokenize names the same way (spec.md
// §4.2).
package fts

import "unicode"

// Tokenize splits s into tokens by iterating its runes: letters and digits
// (including non-ASCII ones) are kept, runs of any other character are
// collapsed into a single token boundary. Empty input yields no tokens.
func Tokenize(s string) []string {
	var tokens []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			tokens = append(tokens, string(cur))
			cur = cur[:0]
		}
	}
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			cur = append(cur, r)
			continue
		}
		flush()
	}
	flush()
	return tokens
}

// NormalizedForm joins the tokens of s with single spaces, the form
// PostgreSQL's to_tsvector pre-pass inserts in place of the raw name.
func NormalizedForm(s string) string {
	tokens := Tokenize(s)
	out := ""
	for i, t := range tokens {
		if i > 0 {
			out += " "
		}
		out += t
	}
	return out
}
