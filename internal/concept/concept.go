// Package concept normalizes and matches the free-form concept labels that
// flow between the evaluation oracle, the catalog's skill tags and the
// mastery ledger.
//
// Matching is deliberately loose. Oracle output names the same idea in many
// ways ("INNER JOIN", "inner join keyword", "JOIN syntax"), so every call
// site goes through FuzzyMatch rather than comparing strings directly.
package concept

import (
	"strings"
	"unicode"
)

// genericWords carry no identity on their own. Two labels that only share
// one of these ("WHERE clause" / "ON clause usage") are not the same concept.
var genericWords = map[string]bool{
	"a": true, "an": true, "and": true, "the": true, "of": true, "in": true,
	"to": true, "for": true, "with": true, "using": true, "use": true,
	"usage": true, "clause": true, "clauses": true, "syntax": true, "operation": true,
	"keyword": true, "concept": true, "basic": true, "basics": true,
	"understanding": true, "statement": true, "correct": true, "proper": true,
	"query": true, "sql": true, "by": true,
}

// Normalize returns the identity form of a concept label: trimmed,
// lower-cased, inner whitespace collapsed to single spaces.
func Normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Equal reports whether a and b name the same concept.
func Equal(a, b string) bool {
	na := Normalize(a)
	return na != "" && na == Normalize(b)
}

// FuzzyMatch reports whether a and b refer to overlapping concepts.
//
// The labels match when either normalized string contains the other.
// Failing that, they match when the significant tokens of one label, i.e.
// the words not in the generic filler list, are all present in the other.
// Trailing plural "s" is folded, so "JOIN operations" matches "INNER JOIN"
// through "join", while "LEFT JOIN" and "INNER JOIN" stay apart.
func FuzzyMatch(a, b string) bool {
	na, nb := Normalize(a), Normalize(b)
	if na == "" || nb == "" {
		return false
	}
	if strings.Contains(na, nb) || strings.Contains(nb, na) {
		return true
	}

	ta, tb := significantTokens(na), significantTokens(nb)
	if len(ta) == 0 || len(tb) == 0 {
		return false
	}
	if len(ta) > len(tb) {
		ta, tb = tb, ta
	}
	for tok := range ta {
		if !tb[tok] {
			return false
		}
	}
	return true
}

// Contains reports whether free text (a problem description, an answer)
// mentions the concept, either verbatim or through all of its significant
// tokens.
func Contains(text, c string) bool {
	nt, nc := Normalize(text), Normalize(c)
	if nt == "" || nc == "" {
		return false
	}
	if strings.Contains(nt, nc) {
		return true
	}

	want := significantTokens(nc)
	if len(want) == 0 {
		return false
	}
	have := make(map[string]bool)
	for tok := range significantTokens(nt) {
		have[tok] = true
	}
	for tok := range want {
		if !have[tok] {
			return false
		}
	}
	return true
}

// Tokens splits a label into its significant tokens in order of appearance,
// without duplicates.
func Tokens(s string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, w := range splitWords(Normalize(s)) {
		tok := fold(w)
		if tok == "" || genericWords[w] || genericWords[tok] || seen[tok] {
			continue
		}
		seen[tok] = true
		out = append(out, tok)
	}
	return out
}

func significantTokens(normalized string) map[string]bool {
	toks := Tokens(normalized)
	set := make(map[string]bool, len(toks))
	for _, t := range toks {
		set[t] = true
	}
	return set
}

func splitWords(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// fold strips a plural suffix from words long enough to carry one.
func fold(w string) string {
	if len(w) <= 3 {
		return w
	}
	for _, suf := range []string{"sses", "ses", "xes", "ches", "shes"} {
		if strings.HasSuffix(w, suf) {
			return w[:len(w)-2]
		}
	}
	for _, keep := range []string{"ss", "us", "is", "as"} {
		if strings.HasSuffix(w, keep) {
			return w
		}
	}
	return strings.TrimSuffix(w, "s")
}
