package vocabulary

import "github.com/Adithya-Monish-Kumar-K/plant-disease-detection/internal/textnorm"

// StopWords is the immutable set of terms that carry no diagnostic signal.
type StopWords struct {
	terms map[string]struct{}
}

// NewStopWords normalizes each word and builds the set.
func NewStopWords(words []string) *StopWords {
	terms := make(map[string]struct{}, len(words))
	for _, w := range words {
		if term := textnorm.Normalize(w); term != "" {
			terms[term] = struct{}{}
		}
	}
	return &StopWords{terms: terms}
}

// Contains reports whether term is a stop word. term must already be
// normalized.
func (s *StopWords) Contains(term string) bool {
	_, ok := s.terms[term]
	return ok
}

// Len returns the number of stop words.
func (s *StopWords) Len() int {
	return len(s.terms)
}
