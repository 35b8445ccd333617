package detection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/plant-disease-detection/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/plant-disease-detection/internal/catalogue"
	"github.com/Adithya-Monish-Kumar-K/plant-disease-detection/internal/keywords"
	"github.com/Adithya-Monish-Kumar-K/plant-disease-detection/internal/matcher"
	"github.com/Adithya-Monish-Kumar-K/plant-disease-detection/internal/scoring"
	"github.com/Adithya-Monish-Kumar-K/plant-disease-detection/internal/vocabulary"
	apperrors "github.com/Adithya-Monish-Kumar-K/plant-disease-detection/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/plant-disease-detection/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/plant-disease-detection/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/plant-disease-detection/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/plant-disease-detection/pkg/resilience"
)

const yellowDry = "lá vàng và khô"

func yellowDryCatalogue() []catalogue.Entry {
	return []catalogue.Entry{
		{ID: "01", Name: "Thối nhũn vi khuẩn", Symptoms: "thối nhũn, chảy nhựa có mùi hôi", Severity: "high", Treatment: "Cắt bỏ phần bệnh", Active: true},
		{ID: "02", Name: "Vàng lá chín sớm", Symptoms: "lá vàng, khô, rụng", Severity: "medium", Treatment: "Bón cân đối NPK", Active: true},
	}
}

// countingCatalogue wraps a store, counting fetches and failing on demand.
type countingCatalogue struct {
	inner   *catalogue.Memory
	fetches atomic.Int64
	err     error
	block   bool
}

func newCountingCatalogue(t *testing.T, entries ...catalogue.Entry) *countingCatalogue {
	t.Helper()
	m, err := catalogue.NewMemory(entries...)
	require.NoError(t, err)
	return &countingCatalogue{inner: m}
}

func (c *countingCatalogue) ActiveDiseases(ctx context.Context) ([]catalogue.Entry, error) {
	c.fetches.Add(1)
	if c.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if c.err != nil {
		return nil, c.err
	}
	return c.inner.ActiveDiseases(ctx)
}

func (c *countingCatalogue) Lookup(ctx context.Context, name string) (catalogue.Entry, error) {
	return c.inner.Lookup(ctx, name)
}

type memoryKV struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemoryKV() *memoryKV {
	return &memoryKV{data: make(map[string]string)}
}

func (kv *memoryKV) Get(_ context.Context, key string) (string, error) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	v, ok := kv.data[key]
	if !ok {
		return "", pkgredis.ErrNil
	}
	return v, nil
}

func (kv *memoryKV) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	switch v := value.(type) {
	case []byte:
		kv.data[key] = string(v)
	default:
		kv.data[key] = fmt.Sprint(v)
	}
	return nil
}

func (kv *memoryKV) FlushByPattern(_ context.Context, pattern string) (int64, error) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	prefix := strings.TrimSuffix(pattern, "*")
	var n int64
	for k := range kv.data {
		if strings.HasPrefix(k, prefix) {
			delete(kv.data, k)
			n++
		}
	}
	return n, nil
}

func (kv *memoryKV) len() int {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	return len(kv.data)
}

type fakeHistory struct {
	mu      sync.Mutex
	results []*Result
}

func (h *fakeHistory) Save(_ context.Context, r *Result) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	cp := *r
	h.results = append(h.results, &cp)
	return nil
}

func (h *fakeHistory) Get(_ context.Context, id string) (*Result, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, r := range h.results {
		if r.ID == id {
			cp := *r
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("detection %s: %w", id, apperrors.ErrDetectionNotFound)
}

func (h *fakeHistory) Recent(_ context.Context, limit int) ([]*Result, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*Result, 0, limit)
	for i := len(h.results) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, h.results[i])
	}
	return out, nil
}

type recordingTracker struct {
	mu     sync.Mutex
	events []analytics.DetectionEvent
}

func (r *recordingTracker) TrackDetection(e analytics.DetectionEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

type fixture struct {
	service   *Service
	catalogue *countingCatalogue
	kv        *memoryKV
	history   *fakeHistory
	tracker   *recordingTracker
	metrics   *metrics.Metrics
}

func newMatcher(t *testing.T) *matcher.Matcher {
	t.Helper()
	v, err := vocabulary.Default()
	require.NoError(t, err)
	return matcher.New(
		keywords.NewExtractor(v, keywords.DefaultMinLength),
		scoring.New(v, scoring.Config{EnableSeverityWeighting: true}),
		matcher.DefaultConfig(),
	)
}

func newFixture(t *testing.T, cfg Config, entries ...catalogue.Entry) *fixture {
	t.Helper()
	f := &fixture{
		catalogue: newCountingCatalogue(t, entries...),
		kv:        newMemoryKV(),
		history:   &fakeHistory{},
		tracker:   &recordingTracker{},
		metrics:   metrics.NewWithRegistry(prometheus.NewRegistry()),
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = resilience.RetryConfig{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
	}
	f.service = NewService(Deps{
		Catalogue: f.catalogue,
		Matcher:   newMatcher(t),
		Cache:     NewCache(f.kv, time.Minute, Variant(true, 0.4), f.metrics),
		History:   f.history,
		Tracker:   f.tracker,
		Metrics:   f.metrics,
	}, cfg)
	return f
}

func counterValue(t *testing.T, c prometheus.Metric) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	if m.Counter != nil {
		return m.Counter.GetValue()
	}
	return m.Gauge.GetValue()
}

func TestDetectSymptoms_Confident(t *testing.T) {
	f := newFixture(t, Config{}, yellowDryCatalogue()...)

	r, err := f.service.DetectSymptoms(context.Background(), yellowDry)
	require.NoError(t, err)

	assert.True(t, r.Confident())
	assert.Equal(t, MethodSymptoms, r.Method)
	assert.Equal(t, "Vàng lá chín sớm", r.DiseaseName)
	assert.InDelta(t, 55.7, r.Confidence, 1e-9)
	assert.Equal(t, "medium", r.Severity)
	assert.Equal(t, "Bón cân đối NPK", r.Treatment)
	assert.NotContains(t, r.Alternatives, "Thối nhũn vi khuẩn")
	assert.Contains(t, r.Keywords, "vang")
	assert.Equal(t, yellowDry, r.Description)
	assert.NotEmpty(t, r.ID)
	assert.False(t, r.CreatedAt.IsZero())

	require.Len(t, f.history.results, 1)
	assert.Equal(t, r.ID, f.history.results[0].ID)
	require.Len(t, f.tracker.events, 1)
	assert.Equal(t, "confident", f.tracker.events[0].Status)
	assert.False(t, f.tracker.events[0].CacheHit)
	assert.Equal(t, 1.0, counterValue(t, f.metrics.DetectionsTotal.WithLabelValues("symptoms", "confident")))
	assert.Equal(t, 2.0, counterValue(t, f.metrics.CatalogueSize))
}

func TestDetectSymptoms_InconclusiveWithoutFetching(t *testing.T) {
	tests := []struct {
		name        string
		description string
		reason      matcher.Reason
	}{
		{"blank", "   ", matcher.ReasonEmptyDescription},
		{"empty", "", matcher.ReasonEmptyDescription},
		{"only stop words and short words", "gì đó lạ", matcher.ReasonNoKeywords},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, Config{}, yellowDryCatalogue()...)

			r, err := f.service.DetectSymptoms(context.Background(), tt.description)
			require.NoError(t, err)

			assert.Equal(t, matcher.StatusInconclusive, r.Status)
			assert.Equal(t, tt.reason, r.Reason)
			assert.Equal(t, matcher.PromptMoreDetail, r.Suggestion)
			assert.Empty(t, r.DiseaseName)
			assert.Zero(t, r.Confidence)
			assert.NotNil(t, r.Alternatives)
			assert.Zero(t, f.catalogue.fetches.Load())
			assert.Equal(t, 1.0, counterValue(t, f.metrics.DetectionReasons.WithLabelValues(string(tt.reason))))
		})
	}
}

func TestDetectSymptoms_TooLong(t *testing.T) {
	f := newFixture(t, Config{MaxDescriptionLength: 10}, yellowDryCatalogue()...)

	_, err := f.service.DetectSymptoms(context.Background(), strings.Repeat("lá ", 5))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	assert.Equal(t, http.StatusBadRequest, apperrors.HTTPStatusCode(err))

	_, err = f.service.DetectSymptoms(context.Background(), "lá vàng hé")
	assert.NoError(t, err, "length counts characters, not bytes")
}

func TestDetectSymptoms_EmptyCatalogueIsNotCached(t *testing.T) {
	f := newFixture(t, Config{}, catalogue.Entry{Name: "Ngộ độc", Symptoms: "rễ đen", Active: false})

	r, err := f.service.DetectSymptoms(context.Background(), yellowDry)
	require.NoError(t, err)

	assert.Equal(t, matcher.ReasonEmptyCatalogue, r.Reason)
	assert.Equal(t, matcher.CatalogueUnavailable, r.Suggestion)
	assert.Zero(t, f.kv.len())
}

func TestDetectSymptoms_CachesByKeywordSet(t *testing.T) {
	f := newFixture(t, Config{}, yellowDryCatalogue()...)
	ctx := context.Background()

	first, err := f.service.DetectSymptoms(ctx, yellowDry)
	require.NoError(t, err)
	second, err := f.service.DetectSymptoms(ctx, "khô và lá vàng")
	require.NoError(t, err)

	assert.Equal(t, int64(1), f.catalogue.fetches.Load())
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, first.DiseaseName, second.DiseaseName)
	assert.Equal(t, first.Confidence, second.Confidence)
	assert.Equal(t, "khô và lá vàng", second.Description)
	assert.True(t, f.tracker.events[1].CacheHit)

	hits, misses, enabled := f.service.CacheStats()
	assert.True(t, enabled)
	assert.Equal(t, int64(1), hits)
	assert.GreaterOrEqual(t, misses, int64(1))

	deleted, err := f.service.InvalidateCache(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = f.service.DetectSymptoms(ctx, yellowDry)
	require.NoError(t, err)
	assert.Equal(t, int64(2), f.catalogue.fetches.Load())
}

func TestDetectSymptoms_ConcurrentIdenticalRequests(t *testing.T) {
	f := newFixture(t, Config{}, yellowDryCatalogue()...)

	var wg sync.WaitGroup
	results := make([]*Result, 16)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := f.service.DetectSymptoms(context.Background(), yellowDry)
			if assert.NoError(t, err) {
				results[i] = r
			}
		}()
	}
	wg.Wait()

	ids := make(map[string]bool)
	for _, r := range results {
		require.NotNil(t, r)
		assert.Equal(t, "Vàng lá chín sớm", r.DiseaseName)
		ids[r.ID] = true
	}
	assert.Len(t, ids, len(results), "every caller gets its own id")
}

func TestDetectSymptoms_CatalogueFailure(t *testing.T) {
	f := newFixture(t, Config{}, yellowDryCatalogue()...)
	f.catalogue.err = errors.New("connection refused")

	_, err := f.service.DetectSymptoms(context.Background(), yellowDry)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrCatalogueUnavailable)
	assert.Equal(t, http.StatusServiceUnavailable, apperrors.HTTPStatusCode(err))
	assert.Equal(t, int64(2), f.catalogue.fetches.Load(), "one retry")
	assert.Empty(t, f.history.results)
}

func TestDetectSymptoms_BreakerOpens(t *testing.T) {
	f := newFixture(t, Config{
		Breaker: resilience.CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Hour},
	}, yellowDryCatalogue()...)
	f.catalogue.err = errors.New("connection refused")
	ctx := context.Background()

	_, err := f.service.DetectSymptoms(ctx, yellowDry)
	require.Error(t, err)
	fetches := f.catalogue.fetches.Load()

	_, err = f.service.DetectSymptoms(ctx, yellowDry)
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.ErrorIs(t, err, apperrors.ErrCatalogueUnavailable)
	assert.Equal(t, fetches, f.catalogue.fetches.Load())
	assert.Equal(t, float64(resilience.StateOpen), counterValue(t, f.metrics.CircuitBreakerState.WithLabelValues(catalogueBreakerName)))
}

func TestDetectSymptoms_CatalogueTimeout(t *testing.T) {
	f := newFixture(t, Config{
		FetchTimeout: 20 * time.Millisecond,
		Retry:        resilience.RetryConfig{MaxAttempts: 1},
	}, yellowDryCatalogue()...)
	f.catalogue.block = true

	_, err := f.service.DetectSymptoms(context.Background(), yellowDry)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrTimeout)
	assert.Equal(t, http.StatusGatewayTimeout, apperrors.HTTPStatusCode(err))
}

func TestDetectImage(t *testing.T) {
	f := newFixture(t, Config{}, yellowDryCatalogue()...)
	ctx := context.Background()

	r, err := f.service.DetectImage(ctx, ImagePrediction{DiseaseName: "VÀNG LÁ CHÍN SỚM", Probability: 0.91, ImageRef: "leaf-1.jpg"})
	require.NoError(t, err)
	assert.True(t, r.Confident())
	assert.Equal(t, MethodImage, r.Method)
	assert.Equal(t, "Vàng lá chín sớm", r.DiseaseName)
	assert.Equal(t, 91.0, r.Confidence)
	assert.Equal(t, "Bón cân đối NPK", r.Treatment)
	assert.Equal(t, "leaf-1.jpg", r.ImageRef)
	assert.Zero(t, f.catalogue.fetches.Load())

	r, err = f.service.DetectImage(ctx, ImagePrediction{DiseaseName: "Vàng lá chín sớm", Probability: 0.3})
	require.NoError(t, err)
	assert.Equal(t, matcher.ReasonLowConfidence, r.Reason)
	assert.Empty(t, r.Treatment)
	assert.Contains(t, r.Suggestion, "Vàng lá chín sớm")

	r, err = f.service.DetectImage(ctx, ImagePrediction{DiseaseName: "Bệnh lạ", Probability: 0.95})
	require.NoError(t, err)
	assert.True(t, r.Confident())
	assert.Equal(t, "Bệnh lạ", r.DiseaseName)
	assert.Empty(t, r.Treatment)

	for _, bad := range []ImagePrediction{{Probability: 0.9}, {DiseaseName: "x", Probability: 1.5}, {DiseaseName: "x", Probability: -0.1}} {
		_, err = f.service.DetectImage(ctx, bad)
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	}
}

func TestDetectBatch(t *testing.T) {
	f := newFixture(t, Config{MaxBatchSize: 3, MaxConcurrent: 2}, yellowDryCatalogue()...)
	ctx := context.Background()

	results, err := f.service.DetectBatch(ctx, []string{yellowDry, "", "thối nhũn, chảy nhựa có mùi hôi"})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "Vàng lá chín sớm", results[0].DiseaseName)
	assert.Equal(t, matcher.ReasonEmptyDescription, results[1].Reason)
	assert.Equal(t, "Thối nhũn vi khuẩn", results[2].DiseaseName)

	_, err = f.service.DetectBatch(ctx, []string{"a", "b", "c", "d"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = f.service.DetectBatch(ctx, nil)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestGetAndRecent(t *testing.T) {
	f := newFixture(t, Config{HistoryLimit: 2}, yellowDryCatalogue()...)
	ctx := context.Background()

	var ids []string
	for _, d := range []string{yellowDry, "", "gì đó lạ"} {
		r, err := f.service.DetectSymptoms(ctx, d)
		require.NoError(t, err)
		ids = append(ids, r.ID)
	}

	got, err := f.service.Get(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, "Vàng lá chín sớm", got.DiseaseName)

	_, err = f.service.Get(ctx, "nope")
	assert.ErrorIs(t, err, apperrors.ErrDetectionNotFound)

	recent, err := f.service.Recent(ctx, 50)
	require.NoError(t, err)
	require.Len(t, recent, 2, "clamped to the history limit")
	assert.Equal(t, ids[2], recent[0].ID)
}

func TestServiceWithoutOptionalDeps(t *testing.T) {
	cat := newCountingCatalogue(t, yellowDryCatalogue()...)
	s := NewService(Deps{Catalogue: cat, Matcher: newMatcher(t)}, Config{})
	ctx := context.Background()

	r, err := s.DetectSymptoms(ctx, yellowDry)
	require.NoError(t, err)
	assert.True(t, r.Confident())

	_, err = s.Get(ctx, r.ID)
	assert.ErrorIs(t, err, apperrors.ErrDetectionNotFound)
	recent, err := s.Recent(ctx, 5)
	require.NoError(t, err)
	assert.Empty(t, recent)
	deleted, err := s.InvalidateCache(ctx)
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func TestHandleCatalogueEvent(t *testing.T) {
	f := newFixture(t, Config{}, yellowDryCatalogue()...)
	ctx := context.Background()

	_, err := f.service.DetectSymptoms(ctx, yellowDry)
	require.NoError(t, err)
	require.Equal(t, 1, f.kv.len())

	handle := f.service.HandleCatalogueEvent()
	require.NoError(t, handle(ctx, kafka.Message{
		Value:   []byte(`{"source":"test"}`),
		Headers: map[string]string{kafka.HeaderEventType: "something_else"},
	}))
	assert.Equal(t, 1, f.kv.len(), "other event types are ignored")

	value, err := json.Marshal(analytics.CatalogueEvent{Disease: "Vàng lá chín sớm", Source: "api", Count: 1})
	require.NoError(t, err)
	require.NoError(t, handle(ctx, kafka.Message{
		Value:   value,
		Headers: map[string]string{kafka.HeaderEventType: string(analytics.EventCatalogueUpdated)},
	}))
	assert.Zero(t, f.kv.len())
}

func TestConfidencePercent(t *testing.T) {
	assert.Equal(t, 0.0, confidencePercent(0))
	assert.Equal(t, 0.0, confidencePercent(-1))
	assert.Equal(t, 55.7, confidencePercent(2.5/7+0.2))
	assert.Equal(t, 100.0, confidencePercent(1.3))
}
