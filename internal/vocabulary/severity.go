package vocabulary

import (
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/plant-disease-detection/internal/textnorm"
)

// SeverityWeight pairs a severity indicator with its multiplicative weight.
type SeverityWeight struct {
	Term   string  `yaml:"term"`
	Weight float64 `yaml:"weight"`
}

// SeverityTable holds severity indicators in declaration order.
type SeverityTable struct {
	entries []severityEntry
}

// severityEntry keeps the declared spelling next to the folded term. The
// declared words, tone marks included, are what must appear in disease text.
type severityEntry struct {
	SeverityWeight
	surface []string
}

// NewSeverityTable normalizes the indicator terms and validates that every
// weight lies in [0,1].
func NewSeverityTable(weights []SeverityWeight) (*SeverityTable, error) {
	entries := make([]severityEntry, 0, len(weights))
	seen := make(map[string]struct{}, len(weights))
	for _, w := range weights {
		term := textnorm.Phrase(w.Term)
		if term == "" {
			return nil, fmt.Errorf("severity term %q is empty after normalization", w.Term)
		}
		if w.Weight < 0 || w.Weight > 1 {
			return nil, fmt.Errorf("severity weight for %q must be within [0,1], got %v", w.Term, w.Weight)
		}
		if _, dup := seen[term]; dup {
			return nil, fmt.Errorf("duplicate severity term %q", term)
		}
		seen[term] = struct{}{}
		entries = append(entries, severityEntry{
			SeverityWeight: SeverityWeight{Term: term, Weight: w.Weight},
			surface:        textnorm.Words(textnorm.Lower(w.Term)),
		})
	}
	return &SeverityTable{entries: entries}, nil
}

// Matching returns the entries whose declared spelling occurs in text as
// whole words. Case is ignored but diacritics are not, so "nắng" does not
// select "nặng" and "nhện" does not select "nhẹ".
func (t *SeverityTable) Matching(text string) []SeverityWeight {
	words := textnorm.Words(textnorm.Lower(text))
	var out []SeverityWeight
	for _, e := range t.entries {
		if textnorm.HasRun(words, e.surface) {
			out = append(out, e.SeverityWeight)
		}
	}
	return out
}

// InKeyword reports whether the folded term of w occurs in the keyword k as
// whole words.
func InKeyword(w SeverityWeight, k string) bool {
	return textnorm.HasRun(textnorm.Words(k), textnorm.Words(w.Term))
}

// Len returns the number of severity indicators.
func (t *SeverityTable) Len() int {
	return len(t.entries)
}
