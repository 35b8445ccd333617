package vocabulary

import (
	"strings"

	"github.com/Adithya-Monish-Kumar-K/plant-disease-detection/internal/textnorm"
)

const (
	simExact     = 1.0
	simSynonym   = 0.9
	simSubstring = 0.7
	simPrefix    = 0.5

	prefixLength = 3
)

// SynonymGroup is a canonical term and the terms treated as interchangeable
// with it. Order matters: the first matching synonym wins ties downstream.
type SynonymGroup struct {
	Canonical string   `yaml:"canonical"`
	Variants  []string `yaml:"variants"`
}

// SynonymIndex maps a canonical Term to its ordered synonym Terms. The
// canonical term is always the first entry of its own list. An index is
// read-only once built and safe for concurrent use.
type SynonymIndex struct {
	groups map[string][]string
}

// NewSynonymIndex normalizes and indexes the given groups. A canonical term
// that appears twice has its variants merged in order of appearance.
func NewSynonymIndex(groups []SynonymGroup) *SynonymIndex {
	idx := &SynonymIndex{groups: make(map[string][]string, len(groups))}
	for _, g := range groups {
		canonical := textnorm.Normalize(g.Canonical)
		if canonical == "" {
			continue
		}
		list, ok := idx.groups[canonical]
		if !ok {
			list = []string{canonical}
		}
		for _, v := range g.Variants {
			term := textnorm.Phrase(v)
			if term == "" || containsTerm(list, term) {
				continue
			}
			list = append(list, term)
		}
		idx.groups[canonical] = list
	}
	return idx
}

// SynonymsOf returns the configured synonyms of term, or a single-element
// list holding term itself when it has no group. Callers must not modify the
// returned slice.
func (s *SynonymIndex) SynonymsOf(term string) []string {
	if list, ok := s.groups[term]; ok {
		return list
	}
	return []string{term}
}

// Len returns the number of synonym groups.
func (s *SynonymIndex) Len() int {
	return len(s.groups)
}

// Similarity rates how interchangeable two terms are, in [0,1]:
//
//	1.0  identical
//	0.9  dictionary synonyms (either direction)
//	0.7  one contains the other
//	0.5  both longer than 3 characters and share their first 3
//	0.0  otherwise
func (s *SynonymIndex) Similarity(a, b string) float64 {
	if a == b {
		return simExact
	}
	if containsTerm(s.SynonymsOf(a), b) || containsTerm(s.SynonymsOf(b), a) {
		return simSynonym
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return simSubstring
	}
	if sharePrefix(a, b) {
		return simPrefix
	}
	return 0
}

func sharePrefix(a, b string) bool {
	ra, rb := []rune(a), []rune(b)
	if len(ra) <= prefixLength || len(rb) <= prefixLength {
		return false
	}
	return string(ra[:prefixLength]) == string(rb[:prefixLength])
}

func containsTerm(list []string, term string) bool {
	for _, t := range list {
		if t == term {
			return true
		}
	}
	return false
}
