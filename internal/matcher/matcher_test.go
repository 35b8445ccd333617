package matcher

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/plant-disease-detection/internal/keywords"
	"github.com/Adithya-Monish-Kumar-K/plant-disease-detection/internal/scoring"
	"github.com/Adithya-Monish-Kumar-K/plant-disease-detection/internal/vocabulary"
)

// fixedScorer returns a preset score per symptom text and panics on "boom".
type fixedScorer map[string]float64

func (s fixedScorer) Score(symptoms string, _ keywords.Set) float64 {
	if symptoms == "boom" {
		panic("malformed record")
	}
	return s[symptoms]
}

func newMatcher(t *testing.T, severityWeighting bool) *Matcher {
	t.Helper()
	v, err := vocabulary.Default()
	require.NoError(t, err)
	return New(
		keywords.NewExtractor(v, keywords.DefaultMinLength),
		scoring.New(v, scoring.Config{EnableSeverityWeighting: severityWeighting}),
		DefaultConfig(),
	)
}

func newStubMatcher(t *testing.T, scores fixedScorer) *Matcher {
	t.Helper()
	v, err := vocabulary.Default()
	require.NoError(t, err)
	return New(keywords.NewExtractor(v, keywords.DefaultMinLength), scores, DefaultConfig())
}

func disease(name, symptoms string) Disease {
	return Disease{ID: name, Name: name, Symptoms: symptoms, Severity: "medium", Active: true}
}

func TestMatch_YellowDryLeavesIsConfident(t *testing.T) {
	m := newMatcher(t, true)
	catalogue := []Disease{
		disease("Thối nhũn vi khuẩn", "thối nhũn, chảy nhựa có mùi hôi"),
		disease("Vàng lá chín sớm", "lá vàng, khô, rụng"),
	}

	out := m.Match("lá vàng và khô", catalogue)

	require.True(t, out.Confident())
	require.NotNil(t, out.Best)
	assert.Equal(t, "Vàng lá chín sớm", out.Best.Disease.Name)
	assert.Greater(t, out.BestScore, 0.4)
	assert.Equal(t, ReasonNone, out.Reason)
	assert.NotContains(t, out.Alternatives, "Thối nhũn vi khuẩn")
	assert.Empty(t, out.Suggestion)
}

func TestMatch_UnrecognisedVocabularyPromptsForDetail(t *testing.T) {
	m := newMatcher(t, true)
	out := m.Match("gì đó lạ", []Disease{disease("Vàng lá chín sớm", "lá vàng, khô, rụng")})

	assert.Equal(t, StatusInconclusive, out.Status)
	assert.Equal(t, ReasonNoKeywords, out.Reason)
	assert.Less(t, out.BestScore, 0.2)
	assert.Nil(t, out.Best)
	assert.Equal(t, PromptMoreDetail, out.Suggestion)
	assert.NotNil(t, out.Alternatives)
}

func TestMatch_RunnerUpBecomesAlternative(t *testing.T) {
	m := newStubMatcher(t, fixedScorer{"a": 0.75, "b": 0.42})
	out := m.Match("lá vàng và khô", []Disease{
		disease("Đạo ôn", "a"),
		disease("Khô vằn", "b"),
	})

	require.True(t, out.Confident())
	assert.Equal(t, "Đạo ôn", out.Best.Disease.Name)
	assert.Equal(t, 0.75, out.BestScore)
	assert.Equal(t, []string{"Khô vằn"}, out.Alternatives)
}

func TestMatch_SeverityWeightingChangesScore(t *testing.T) {
	catalogue := []Disease{disease("Cháy bìa lá", "lá vàng nghiêm trọng, cháy từ mép lá")}
	const description = "lá vàng nghiêm trọng"

	off := newMatcher(t, false).Match(description, catalogue)
	on := newMatcher(t, true).Match(description, catalogue)

	require.Greater(t, off.BestScore, 0.0)
	assert.NotEqual(t, off.BestScore, on.BestScore)
	assert.InDelta(t, off.BestScore*0.9, on.BestScore, 1e-9)
}

func TestMatch_Idempotent(t *testing.T) {
	m := newMatcher(t, true)
	catalogue := []Disease{
		disease("Vàng lá chín sớm", "lá vàng, khô, rụng"),
		disease("Đốm nâu", "đốm nâu trên lá, lá vàng dần"),
		disease("Phấn trắng", "lớp phấn trắng phủ mặt lá"),
	}
	first := m.Match("lá vàng, có đốm nâu", catalogue)
	second := m.Match("lá vàng, có đốm nâu", catalogue)
	assert.Equal(t, first, second)
}

func TestMatch_EmptyInputs(t *testing.T) {
	m := newMatcher(t, true)
	catalogue := []Disease{disease("Vàng lá chín sớm", "lá vàng, khô, rụng")}

	tests := []struct {
		name        string
		description string
		catalogue   []Disease
		reason      Reason
		suggestion  string
	}{
		{"blank description", "", catalogue, ReasonEmptyDescription, PromptMoreDetail},
		{"whitespace description", "  \n\t", catalogue, ReasonEmptyDescription, PromptMoreDetail},
		{"nil catalogue", "lá vàng", nil, ReasonEmptyCatalogue, CatalogueUnavailable},
		{"empty catalogue", "lá vàng", []Disease{}, ReasonEmptyCatalogue, CatalogueUnavailable},
		{"only inactive", "lá vàng", []Disease{{Name: "x", Symptoms: "lá vàng"}}, ReasonEmptyCatalogue, CatalogueUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out Outcome
			require.NotPanics(t, func() { out = m.Match(tt.description, tt.catalogue) })
			assert.Equal(t, StatusInconclusive, out.Status)
			assert.Equal(t, tt.reason, out.Reason)
			assert.Equal(t, tt.suggestion, out.Suggestion)
			assert.Zero(t, out.BestScore)
			assert.NotNil(t, out.Alternatives)
			assert.NotNil(t, out.Keywords)
		})
	}
}

func TestMatch_SkipsFaultyCandidates(t *testing.T) {
	m := newStubMatcher(t, fixedScorer{"good": 0.6, "fine": 0.5})
	out := m.Match("lá vàng", []Disease{
		disease("Panics", "boom"),
		disease("", "fine"),
		disease("Blank symptoms", "  "),
		disease("Bad utf8", "\xff\xfe"),
		disease("Good", "good"),
	})

	require.True(t, out.Confident())
	assert.Equal(t, "Good", out.Best.Disease.Name)
	assert.Empty(t, out.Alternatives)
	assert.Equal(t, 4, out.Skipped)
}

func TestMatch_OutOfRangeScoreSkipped(t *testing.T) {
	m := newStubMatcher(t, fixedScorer{"too high": 1.5, "ok": 0.45})
	out := m.Match("lá vàng", []Disease{disease("Broken", "too high"), disease("Ok", "ok")})

	require.True(t, out.Confident())
	assert.Equal(t, "Ok", out.Best.Disease.Name)
}

func TestMatch_TieKeepsFirstSeen(t *testing.T) {
	m := newStubMatcher(t, fixedScorer{"x": 0.6, "y": 0.6})
	out := m.Match("lá vàng", []Disease{disease("First", "x"), disease("Second", "y")})

	assert.Equal(t, "First", out.Best.Disease.Name)
	assert.Empty(t, out.Alternatives, "equal scores are not strictly below the best")
}

func TestMatch_AlternativesRankedAndCapped(t *testing.T) {
	m := newStubMatcher(t, fixedScorer{
		"s90": 0.9, "s50": 0.5, "s80": 0.8, "s45": 0.45, "s60": 0.6, "s41": 0.41, "s40": 0.4,
	})
	out := m.Match("lá vàng", []Disease{
		disease("D90", "s90"), disease("D50", "s50"), disease("D80", "s80"),
		disease("D45", "s45"), disease("D60", "s60"), disease("D41", "s41"), disease("D40", "s40"),
	})

	require.True(t, out.Confident())
	assert.Equal(t, "D90", out.Best.Disease.Name)
	assert.Equal(t, []string{"D80", "D60", "D50"}, out.Alternatives)
}

func TestMatch_LowConfidence(t *testing.T) {
	tests := []struct {
		name       string
		score      float64
		suggestion string
		hasBest    bool
	}{
		{"at threshold offers lead", 0.4, "Có thể là Đạo ôn. Vui lòng mô tả thêm triệu chứng hoặc gửi ảnh để xác nhận.", true},
		{"weak lead", 0.25, "Có thể là Đạo ôn. Vui lòng mô tả thêm triệu chứng hoặc gửi ảnh để xác nhận.", true},
		{"too weak for a lead", 0.2, PromptMoreDetail, true},
		{"nothing scored", 0, PromptMoreDetail, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newStubMatcher(t, fixedScorer{"a": tt.score})
			out := m.Match("lá vàng", []Disease{disease("Đạo ôn", "a")})

			assert.Equal(t, StatusInconclusive, out.Status)
			assert.Equal(t, ReasonLowConfidence, out.Reason)
			assert.Equal(t, tt.score, out.BestScore)
			assert.Equal(t, tt.suggestion, out.Suggestion)
			assert.Equal(t, tt.hasBest, out.Best != nil)
		})
	}
}

func TestMatch_CustomConfig(t *testing.T) {
	v, err := vocabulary.Default()
	require.NoError(t, err)
	m := New(keywords.NewExtractor(v, keywords.DefaultMinLength), fixedScorer{"a": 0.7, "b": 0.65, "c": 0.6}, Config{
		ConfidenceThreshold:   0.8,
		AlternativeScoreFloor: 0.62,
		MaxAlternatives:       5,
	})
	out := m.Match("lá vàng", []Disease{disease("A", "a"), disease("B", "b"), disease("C", "c")})

	assert.Equal(t, StatusInconclusive, out.Status)
	assert.Equal(t, []string{"B"}, out.Alternatives)
}

func TestNew_PartialConfigTakesDefaults(t *testing.T) {
	v, err := vocabulary.Default()
	require.NoError(t, err)
	scores := fixedScorer{"a": 0.3, "b": 0.2, "c": 0.1}
	catalogue := []Disease{disease("A", "a"), disease("B", "b"), disease("C", "c")}

	m := New(keywords.NewExtractor(v, keywords.DefaultMinLength), scores, Config{})
	assert.Equal(t, DefaultConfig(), m.cfg)
	out := m.Match("lá vàng", catalogue)
	assert.Equal(t, StatusInconclusive, out.Status, "0.3 is below the default threshold")
	assert.Empty(t, out.Alternatives)

	m = New(keywords.NewExtractor(v, keywords.DefaultMinLength), scores, Config{ConfidenceThreshold: 0.25})
	assert.Equal(t, 0.25, m.cfg.ConfidenceThreshold)
	assert.Equal(t, DefaultConfig().AlternativeScoreFloor, m.cfg.AlternativeScoreFloor)
	assert.Equal(t, DefaultConfig().MaxAlternatives, m.cfg.MaxAlternatives)
	out = m.Match("lá vàng", catalogue)
	require.True(t, out.Confident())
	assert.Equal(t, "A", out.Best.Disease.Name)
	assert.Empty(t, out.Alternatives, "0.2 is below the default alternative floor")
}

func TestMatch_SpiderMitesOverBacterialBlight(t *testing.T) {
	catalogue := []Disease{
		disease("Bạc lá", "mép lá vàng rồi chuyển trắng bạc, vết bệnh lan dọc gân lá, giọt dịch vi khuẩn màu vàng đục, lá khô cháy từ chóp"),
		disease("Nhện đỏ", "chấm vàng li ti trên mặt lá, mặt dưới có tơ nhện, lá bạc trắng rồi khô và rụng"),
	}
	const description = "lá có tơ nhện và chấm vàng li ti"

	off := newMatcher(t, false).Match(description, catalogue)
	on := newMatcher(t, true).Match(description, catalogue)

	for _, out := range []Outcome{off, on} {
		require.True(t, out.Confident())
		assert.Equal(t, "Nhện đỏ", out.Best.Disease.Name)
	}
	assert.Equal(t, off.BestScore, on.BestScore)
	assert.Equal(t, off.Alternatives, on.Alternatives)
}

func TestAssess(t *testing.T) {
	m := newStubMatcher(t, fixedScorer{})
	d := disease("Bạc lá", "x")

	confident := m.Assess(d, 0.92)
	require.True(t, confident.Confident())
	assert.Equal(t, "Bạc lá", confident.Best.Disease.Name)
	assert.Empty(t, confident.Alternatives)

	lead := m.Assess(d, 0.3)
	assert.Equal(t, ReasonLowConfidence, lead.Reason)
	assert.Equal(t, "Có thể là Bạc lá. Vui lòng mô tả thêm triệu chứng hoặc gửi ảnh để xác nhận.", lead.Suggestion)

	for _, score := range []float64{0, -1, math.NaN()} {
		out := m.Assess(d, score)
		assert.Nil(t, out.Best)
		assert.Equal(t, PromptMoreDetail, out.Suggestion)
	}

	assert.Equal(t, 1.0, m.Assess(d, 7).BestScore)
}

// BenchmarkMatch measures a full match over catalogues of growing size.
func BenchmarkMatch(b *testing.B) {
	v, err := vocabulary.Default()
	require.NoError(b, err)
	m := New(
		keywords.NewExtractor(v, keywords.DefaultMinLength),
		scoring.New(v, scoring.Config{EnableSeverityWeighting: true}),
		DefaultConfig(),
	)
	symptoms := []string{
		"vết đốm hình thoi trên lá, tâm xám trắng, viền nâu đậm",
		"mép lá vàng rồi chuyển trắng bạc, lá khô cháy từ chóp",
		"lớp phấn trắng như bột phủ trên mặt lá, lá vàng, xoăn và khô dần",
		"mô cây thối nhũn, chảy dịch nhầy có mùi hôi, gốc thân úng nước",
	}

	for _, size := range []int{10, 100, 1000} {
		b.Run(fmt.Sprintf("diseases_%d", size), func(b *testing.B) {
			catalogue := make([]Disease, size)
			for i := range catalogue {
				catalogue[i] = disease(fmt.Sprintf("bệnh %d", i), symptoms[i%len(symptoms)])
			}
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				_ = m.Match("lá bị vàng úa, khô héo và có đốm nâu", catalogue)
			}
		})
	}
}
