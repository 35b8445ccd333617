package keywords

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/plant-disease-detection/internal/vocabulary"
)

func newExtractor(t testing.TB, minLength int) *Extractor {
	t.Helper()
	v, err := vocabulary.Default()
	require.NoError(t, err)
	return NewExtractor(v, minLength)
}

func TestExtract(t *testing.T) {
	e := newExtractor(t, DefaultMinLength)

	tests := []struct {
		name string
		text string
		want Set
	}{
		{
			name: "stop words and short tokens dropped",
			text: "lá vàng và khô",
			want: Set{"vang", "ua vang", "vang ua", "chuyen vang", "kho", "kho heo", "kho chay"},
		},
		{
			name: "punctuation splits",
			text: "vàng,khô!",
			want: Set{"vang", "ua vang", "vang ua", "chuyen vang", "kho", "kho heo", "kho chay"},
		},
		{
			name: "overlapping synonym groups deduplicated",
			text: "khô héo",
			want: Set{"kho", "kho heo", "kho chay", "heo", "heo ru", "ru"},
		},
		{
			name: "repeated term kept once",
			text: "VÀNG vàng (vàng)",
			want: Set{"vang", "ua vang", "vang ua", "chuyen vang"},
		},
		{
			name: "term without synonyms",
			text: "nghiêm",
			want: Set{"nghiem"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, e.Extract(tt.text))
		})
	}
}

func TestExtract_Empty(t *testing.T) {
	e := newExtractor(t, DefaultMinLength)

	for _, text := range []string{"", "   \t\n", "gì đó lạ", "của là cây", "!?.,"} {
		got := e.Extract(text)
		assert.NotNil(t, got, "input %q", text)
		assert.Empty(t, got, "input %q", text)
	}
}

func TestExtract_MinLength(t *testing.T) {
	e := newExtractor(t, 5)
	assert.Equal(t, Set{"nghiem"}, e.Extract("vàng nghiêm"))

	e = newExtractor(t, 0)
	assert.Equal(t, DefaultMinLength, e.minLength)
}

func TestSetContains(t *testing.T) {
	s := Set{"vang", "ua vang"}
	assert.True(t, s.Contains("ua vang"))
	assert.False(t, s.Contains("ua"))
}

func BenchmarkExtract(b *testing.B) {
	e := newExtractor(b, DefaultMinLength)
	text := "Lá cây bị vàng úa, khô héo từ mép lá, xuất hiện đốm nâu và lớp phấn trắng ở mặt dưới"
	b.ReportAllocs()
	b.SetBytes(int64(len(text)))
	for i := 0; i < b.N; i++ {
		_ = e.Extract(text)
	}
}
