// Package scoring rates how well one disease's symptom text matches a
// keyword set. Each keyword earns the best of a direct hit, a synonym hit
// and a fuzzy window hit; the per-keyword scores are averaged, a small bonus
// rewards breadth, and severity qualifiers scale the result.
package scoring

import (
	"strings"

	"github.com/Adithya-Monish-Kumar-K/plant-disease-detection/internal/keywords"
	"github.com/Adithya-Monish-Kumar-K/plant-disease-detection/internal/textnorm"
	"github.com/Adithya-Monish-Kumar-K/plant-disease-detection/internal/vocabulary"
)

const (
	directWeight  = 0.8
	synonymWeight = 0.7
	fuzzyWeight   = 0.6

	bonusPerMatch = 0.05
	maxBonus      = 0.2

	// fuzzyMinLength is the keyword length a fuzzy window scan requires to
	// be exceeded.
	fuzzyMinLength = 3
)

// Config toggles optional scoring passes.
type Config struct {
	// EnableSeverityWeighting multiplies the final score by every severity
	// weight whose term occurs in the disease text.
	EnableSeverityWeighting bool
}

// Scorer is stateless after construction and safe for concurrent use.
type Scorer struct {
	synonyms          *vocabulary.SynonymIndex
	severity          *vocabulary.SeverityTable
	severityWeighting bool
}

// New creates a Scorer over vocab.
func New(vocab *vocabulary.Vocabulary, cfg Config) *Scorer {
	return &Scorer{
		synonyms:          vocab.Synonyms,
		severity:          vocab.Severity,
		severityWeighting: cfg.EnableSeverityWeighting,
	}
}

// Score returns a match score in [0,1] for symptoms against kw. An empty
// keyword set scores 0.
func (s *Scorer) Score(symptoms string, kw keywords.Set) float64 {
	if len(kw) == 0 {
		return 0
	}
	text := textnorm.Text(symptoms)
	textRunes := []rune(text)
	severities := s.severity.Matching(symptoms)

	var total float64
	matched := 0
	for _, k := range kw {
		ks := s.keywordScore(text, textRunes, k, severities)
		if ks > 0 {
			total += ks
			matched++
		}
	}

	final := total / float64(len(kw))
	if matched > 1 {
		final += min(maxBonus, float64(matched)*bonusPerMatch)
	}
	final = min(1.0, final)

	if s.severityWeighting {
		for _, sev := range severities {
			final *= sev.Weight
		}
	}
	return clamp(final)
}

func (s *Scorer) keywordScore(text string, textRunes []rune, k string, severities []vocabulary.SeverityWeight) float64 {
	var best float64
	if strings.Contains(text, k) {
		best = directWeight
	}
	for _, syn := range s.synonyms.SynonymsOf(k) {
		if strings.Contains(text, syn) {
			best = max(best, synonymWeight)
			break
		}
	}
	if n := textnorm.Length(k); n > fuzzyMinLength {
		for i := 0; i+n <= len(textRunes); i++ {
			sim := s.synonyms.Similarity(k, string(textRunes[i:i+n]))
			best = max(best, sim*fuzzyWeight)
		}
	}
	// severities already holds only terms present in the disease text.
	for _, sev := range severities {
		if vocabulary.InKeyword(sev, k) {
			best *= sev.Weight
		}
	}
	return best
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
