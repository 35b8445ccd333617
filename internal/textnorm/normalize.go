// Package textnorm canonicalizes Vietnamese symptom text into diacritic-free,
// lower-cased terms. Normalize works on a single token and also strips a
// fixed list of generic suffixes; Text works on whole descriptions and only
// folds case and diacritics so that substring checks line up with terms.
package textnorm

import (
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// minStemLength is the shortest remainder a suffix strip may leave behind.
const minStemLength = 3

// suffixes are checked longest first so that "es" is reachable before "s".
var suffixes = []string{
	"ment", "ness", "tion", "sion",
	"ing", "est",
	"es", "ed", "er", "ly",
	"s",
}

var foldTable = buildFoldTable(map[rune]string{
	'a': "àáạảãâầấậẩẫăằắặẳẵ",
	'e': "èéẹẻẽêềếệểễ",
	'i': "ìíịỉĩ",
	'o': "òóọỏõôồốộổỗơờớợởỡ",
	'u': "ùúụủũưừứựửữ",
	'y': "ỳýỵỷỹ",
	'd': "đ",
})

func buildFoldTable(groups map[rune]string) map[rune]rune {
	table := make(map[rune]rune)
	for base, marked := range groups {
		for _, r := range marked {
			table[r] = base
		}
	}
	return table
}

// Normalize returns the canonical Term for a single token, or "" when the
// token is empty or whitespace. The result is stable under repeated calls.
func Normalize(token string) string {
	term := strings.TrimSpace(Text(token))
	if term == "" {
		return ""
	}
	return stripSuffixes(term)
}

// Text lower-cases s and removes Vietnamese diacritics. Input is composed to
// NFC first so decomposed sequences (base letter + combining mark) fold the
// same way as their precomposed forms.
func Text(s string) string {
	if s == "" {
		return ""
	}
	return strings.Map(func(r rune) rune {
		if folded, ok := foldTable[r]; ok {
			return folded
		}
		return r
	}, Lower(s))
}

// Lower lower-cases s in NFC form and keeps its diacritics. Tone marks are
// the only thing separating words such as "nặng" (severe) and "nắng" (sun).
func Lower(s string) string {
	return strings.ToLower(norm.NFC.String(s))
}

// IsSeparator reports whether r splits two words: any Unicode space or one
// of the ASCII punctuation marks , . ; : ! ? ( ) [ ] { } ' ".
func IsSeparator(r rune) bool {
	if unicode.IsSpace(r) {
		return true
	}
	switch r {
	case ',', '.', ';', ':', '!', '?', '(', ')', '[', ']', '{', '}', '\'', '"':
		return true
	}
	return false
}

// Words splits s into words on IsSeparator.
func Words(s string) []string {
	return strings.FieldsFunc(s, IsSeparator)
}

// HasRun reports whether run occurs in words as consecutive whole words.
// An empty run never matches.
func HasRun(words, run []string) bool {
	if len(run) == 0 {
		return false
	}
	for i := 0; i+len(run) <= len(words); i++ {
		if slices.Equal(words[i:i+len(run)], run) {
			return true
		}
	}
	return false
}

// Phrase normalizes every word of a multi-word entry and rejoins them with
// single spaces, e.g. "Úa  Vàng" -> "ua vang".
func Phrase(s string) string {
	words := strings.Fields(Text(s))
	for i, w := range words {
		words[i] = stripSuffixes(w)
	}
	return strings.Join(words, " ")
}

// Length reports the number of characters in a term.
func Length(term string) int {
	return utf8.RuneCountInString(term)
}

// stripSuffixes removes known suffixes until none applies, never leaving
// fewer than minStemLength characters.
func stripSuffixes(word string) string {
	for {
		stripped := false
		for _, suffix := range suffixes {
			if !strings.HasSuffix(word, suffix) {
				continue
			}
			stem := word[:len(word)-len(suffix)]
			if Length(stem) >= minStemLength {
				word = stem
				stripped = true
				break
			}
		}
		if !stripped {
			return word
		}
	}
}
