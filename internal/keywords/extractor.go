// Package keywords turns a free-text symptom description into the set of
// normalized keywords the scorer consumes. It follows the same pipeline
// shape as a search tokenizer: split, normalize, drop short terms and stop
// words, then expand each survivor through the synonym index.
package keywords

import (
	"github.com/Adithya-Monish-Kumar-K/plant-disease-detection/internal/textnorm"
	"github.com/Adithya-Monish-Kumar-K/plant-disease-detection/internal/vocabulary"
)

// DefaultMinLength is the shortest term kept as a keyword.
const DefaultMinLength = 3

// Set is an ordered, duplicate-free list of normalized terms in first-seen
// order. Synonym phrases may contain spaces.
type Set []string

// Contains reports whether term is in the set.
func (s Set) Contains(term string) bool {
	for _, t := range s {
		if t == term {
			return true
		}
	}
	return false
}

// Extractor is safe for concurrent use; it only reads its dictionaries.
type Extractor struct {
	stops     *vocabulary.StopWords
	synonyms  *vocabulary.SynonymIndex
	minLength int
}

// NewExtractor builds an extractor over vocab. A minLength below 1 falls
// back to DefaultMinLength.
func NewExtractor(vocab *vocabulary.Vocabulary, minLength int) *Extractor {
	if minLength < 1 {
		minLength = DefaultMinLength
	}
	return &Extractor{
		stops:     vocab.StopWords,
		synonyms:  vocab.Synonyms,
		minLength: minLength,
	}
}

// Extract returns the keyword set for text. Empty or whitespace-only input
// yields an empty, non-nil set.
func (e *Extractor) Extract(text string) Set {
	out := make(Set, 0, 8)
	seen := make(map[string]struct{})
	for _, word := range textnorm.Words(text) {
		term := textnorm.Normalize(word)
		if textnorm.Length(term) < e.minLength {
			continue
		}
		if e.stops.Contains(term) {
			continue
		}
		for _, syn := range e.synonyms.SynonymsOf(term) {
			if _, dup := seen[syn]; dup {
				continue
			}
			seen[syn] = struct{}{}
			out = append(out, syn)
		}
	}
	return out
}
