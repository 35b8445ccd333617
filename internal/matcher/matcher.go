// Package matcher ranks a disease catalogue against a free-text symptom
// description. A match runs Start -> Extracting -> Scoring -> Decided and
// always produces an Outcome; running out of information is reported as an
// Inconclusive outcome with a Reason, never as an error.
package matcher

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/plant-disease-detection/internal/keywords"
)

// Disease is the read-only view of a catalogue record the matcher needs.
type Disease struct {
	ID       string
	Name     string
	Symptoms string
	Severity string
	Active   bool
}

// KeywordExtractor turns a description into a keyword set.
type KeywordExtractor interface {
	Extract(text string) keywords.Set
}

// Scorer rates one disease's symptom text against a keyword set.
type Scorer interface {
	Score(symptoms string, kw keywords.Set) float64
}

// Status is the overall verdict of one match.
type Status string

const (
	StatusConfident    Status = "confident"
	StatusInconclusive Status = "inconclusive"
)

// Reason explains an Inconclusive outcome.
type Reason string

const (
	ReasonNone             Reason = ""
	ReasonEmptyDescription Reason = "empty_description"
	ReasonNoKeywords       Reason = "no_keywords"
	ReasonEmptyCatalogue   Reason = "empty_catalogue"
	ReasonLowConfidence    Reason = "low_confidence"
)

const (
	// PromptMoreDetail asks the user to describe colour, location and duration.
	PromptMoreDetail = "Chưa đủ thông tin để xác định bệnh. Vui lòng mô tả chi tiết hơn về màu sắc, vị trí và thời gian xuất hiện triệu chứng."
	// possibleLeadFormat names the nearest candidate as a lead.
	possibleLeadFormat = "Có thể là %s. Vui lòng mô tả thêm triệu chứng hoặc gửi ảnh để xác nhận."
	// CatalogueUnavailable is returned when there is nothing to match against.
	CatalogueUnavailable = "Chưa có dữ liệu bệnh để so khớp. Vui lòng thử lại sau."

	leadScoreFloor = 0.2
)

// Config tunes the decision thresholds. Fields left at zero or below take
// the value from DefaultConfig.
type Config struct {
	ConfidenceThreshold   float64
	AlternativeScoreFloor float64
	MaxAlternatives       int
}

// DefaultConfig returns the stock thresholds.
func DefaultConfig() Config {
	return Config{
		ConfidenceThreshold:   0.4,
		AlternativeScoreFloor: 0.4,
		MaxAlternatives:       3,
	}
}

// ScoredCandidate is a disease with the score it earned in one match.
type ScoredCandidate struct {
	Disease Disease
	Score   float64
}

// Outcome is the result of one match. Best is nil unless at least one
// candidate scored above zero. Alternatives is never nil.
type Outcome struct {
	Status       Status
	Reason       Reason
	Best         *ScoredCandidate
	BestScore    float64
	Alternatives []string
	Suggestion   string
	Keywords     keywords.Set
	// Skipped counts malformed records left out of the ranking.
	Skipped int
}

// Confident reports whether the outcome settled on a single disease.
func (o Outcome) Confident() bool {
	return o.Status == StatusConfident
}

// Matcher holds no per-request state and is safe for concurrent use.
type Matcher struct {
	extractor KeywordExtractor
	scorer    Scorer
	cfg       Config
	logger    *slog.Logger
}

// New creates a Matcher. Unset fields of cfg are filled from DefaultConfig.
func New(extractor KeywordExtractor, scorer Scorer, cfg Config) *Matcher {
	def := DefaultConfig()
	if cfg.ConfidenceThreshold <= 0 {
		cfg.ConfidenceThreshold = def.ConfidenceThreshold
	}
	if cfg.AlternativeScoreFloor <= 0 {
		cfg.AlternativeScoreFloor = def.AlternativeScoreFloor
	}
	if cfg.MaxAlternatives <= 0 {
		cfg.MaxAlternatives = def.MaxAlternatives
	}
	return &Matcher{
		extractor: extractor,
		scorer:    scorer,
		cfg:       cfg,
		logger:    slog.Default().With("component", "matcher"),
	}
}

// Keywords exposes the extraction step on its own.
func (m *Matcher) Keywords(text string) keywords.Set {
	return m.extractor.Extract(text)
}

// Match ranks catalogue against description.
func (m *Matcher) Match(description string, catalogue []Disease) Outcome {
	if strings.TrimSpace(description) == "" {
		return inconclusive(ReasonEmptyDescription, 0, nil, PromptMoreDetail, nil)
	}

	kw := m.extractor.Extract(description)
	if len(kw) == 0 {
		return inconclusive(ReasonNoKeywords, 0, nil, PromptMoreDetail, kw)
	}

	active := make([]Disease, 0, len(catalogue))
	for _, d := range catalogue {
		if d.Active {
			active = append(active, d)
		}
	}
	if len(active) == 0 {
		return inconclusive(ReasonEmptyCatalogue, 0, nil, CatalogueUnavailable, kw)
	}

	scored := make([]ScoredCandidate, 0, len(active))
	var best *ScoredCandidate
	for _, d := range active {
		score, ok := m.scoreCandidate(d, kw)
		if !ok {
			continue
		}
		scored = append(scored, ScoredCandidate{Disease: d, Score: score})
		if score > 0 && (best == nil || score > best.Score) {
			c := scored[len(scored)-1]
			best = &c
		}
	}

	skipped := len(active) - len(scored)
	var bestScore float64
	if best != nil {
		bestScore = best.Score
	}
	alternatives := m.alternatives(scored, bestScore)

	m.logger.Debug("match scored",
		"keywords", len(kw),
		"candidates", len(scored),
		"best_score", bestScore,
		"alternatives", len(alternatives),
		"skipped", skipped,
	)

	if best != nil && bestScore > m.cfg.ConfidenceThreshold {
		return Outcome{
			Status:       StatusConfident,
			Reason:       ReasonNone,
			Best:         best,
			BestScore:    bestScore,
			Alternatives: alternatives,
			Keywords:     kw,
			Skipped:      skipped,
		}
	}

	suggestion := PromptMoreDetail
	if best != nil && bestScore > leadScoreFloor {
		suggestion = fmt.Sprintf(possibleLeadFormat, best.Disease.Name)
	}
	out := inconclusive(ReasonLowConfidence, bestScore, best, suggestion, kw, alternatives...)
	out.Skipped = skipped
	return out
}

// Assess applies the confidence rules to a score produced outside the
// engine, such as an image classifier's probability for d.
func (m *Matcher) Assess(d Disease, score float64) Outcome {
	if strings.TrimSpace(d.Name) == "" || math.IsNaN(score) || score <= 0 {
		return inconclusive(ReasonLowConfidence, 0, nil, PromptMoreDetail, nil)
	}
	score = min(score, 1)
	best := &ScoredCandidate{Disease: d, Score: score}
	if score > m.cfg.ConfidenceThreshold {
		return Outcome{
			Status:       StatusConfident,
			Reason:       ReasonNone,
			Best:         best,
			BestScore:    score,
			Alternatives: []string{},
			Keywords:     keywords.Set{},
		}
	}
	suggestion := PromptMoreDetail
	if score > leadScoreFloor {
		suggestion = fmt.Sprintf(possibleLeadFormat, d.Name)
	}
	return inconclusive(ReasonLowConfidence, score, best, suggestion, nil)
}

// scoreCandidate scores one record, reporting false when the record is
// malformed or the scorer panics on it.
func (m *Matcher) scoreCandidate(d Disease, kw keywords.Set) (score float64, ok bool) {
	if strings.TrimSpace(d.Name) == "" || strings.TrimSpace(d.Symptoms) == "" {
		m.logger.Warn("skipping malformed disease record", "id", d.ID, "name", d.Name, "reason", "blank name or symptoms")
		return 0, false
	}
	if !utf8.ValidString(d.Symptoms) {
		m.logger.Warn("skipping malformed disease record", "id", d.ID, "name", d.Name, "reason", "invalid utf-8 in symptoms")
		return 0, false
	}
	defer func() {
		if r := recover(); r != nil {
			m.logger.Warn("skipping disease record after scoring fault", "id", d.ID, "name", d.Name, "panic", r)
			score, ok = 0, false
		}
	}()
	score = m.scorer.Score(d.Symptoms, kw)
	if math.IsNaN(score) || score < 0 || score > 1 {
		m.logger.Warn("skipping disease record with out-of-range score", "id", d.ID, "name", d.Name, "score", score)
		return 0, false
	}
	return score, true
}

func (m *Matcher) alternatives(scored []ScoredCandidate, bestScore float64) []string {
	pool := make([]ScoredCandidate, 0, len(scored))
	for _, c := range scored {
		if c.Score > m.cfg.AlternativeScoreFloor && c.Score < bestScore {
			pool = append(pool, c)
		}
	}
	sort.SliceStable(pool, func(i, j int) bool {
		return pool[i].Score > pool[j].Score
	})
	if len(pool) > m.cfg.MaxAlternatives {
		pool = pool[:m.cfg.MaxAlternatives]
	}
	names := make([]string, 0, len(pool))
	for _, c := range pool {
		names = append(names, c.Disease.Name)
	}
	return names
}

func inconclusive(reason Reason, bestScore float64, best *ScoredCandidate, suggestion string, kw keywords.Set, alternatives ...string) Outcome {
	if alternatives == nil {
		alternatives = []string{}
	}
	if kw == nil {
		kw = keywords.Set{}
	}
	return Outcome{
		Status:       StatusInconclusive,
		Reason:       reason,
		Best:         best,
		BestScore:    bestScore,
		Alternatives: alternatives,
		Suggestion:   suggestion,
		Keywords:     kw,
	}
}
