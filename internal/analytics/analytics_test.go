package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/Adithya-Monish-Kumar-K/plant-disease-detection/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/plant-disease-detection/pkg/postgres/postgrestest"
)

type recordingPublisher struct {
	mu      sync.Mutex
	events  []kafka.Event
	batches int
	err     error
}

func (p *recordingPublisher) PublishBatch(_ context.Context, events []kafka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
	p.batches++
	return p.err
}

func (p *recordingPublisher) published() []kafka.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]kafka.Event(nil), p.events...)
}

func TestCollector_PublishesTypedEvents(t *testing.T) {
	defer goleak.VerifyNone(t)

	pub := &recordingPublisher{}
	c := NewCollector(pub, 16)
	c.Start(context.Background())

	c.TrackDetection(DetectionEvent{ID: "01J", Status: "confident", DiseaseName: "Đạo ôn"})
	c.TrackCatalogue(CatalogueEvent{Source: "seed", Count: 12})
	c.Close()

	events := pub.published()
	require.Len(t, events, 2)
	assert.Equal(t, "01J", events[0].Key)
	assert.Equal(t, string(EventDetection), events[0].Type)
	assert.Equal(t, "catalogue", events[1].Key)
	assert.Equal(t, string(EventCatalogueUpdated), events[1].Type)
}

func TestCollector_DrainsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	pub := &recordingPublisher{err: errors.New("broker down")}
	c := NewCollector(pub, 16)
	ctx, cancel := context.WithCancel(context.Background())
	for i := 0; i < 3; i++ {
		c.TrackDetection(DetectionEvent{ID: "x"})
	}
	c.Start(ctx)
	cancel()
	c.Close()

	assert.Len(t, pub.published(), 3, "publish errors are logged, not retried")
}

func TestCollector_DropsWhenFull(t *testing.T) {
	defer goleak.VerifyNone(t)

	pub := &recordingPublisher{}
	c := NewCollector(pub, 1)
	c.TrackDetection(DetectionEvent{ID: "kept"})
	c.TrackDetection(DetectionEvent{ID: "dropped"})
	c.Start(context.Background())
	c.Close()

	events := pub.published()
	require.Len(t, events, 1)
	assert.Equal(t, "kept", events[0].Key)
	assert.Equal(t, int64(1), c.Dropped())
}

func TestCollector_BatchesQueuedEvents(t *testing.T) {
	defer goleak.VerifyNone(t)

	pub := &recordingPublisher{}
	c := NewCollector(pub, 500)
	for i := 0; i < 250; i++ {
		c.TrackDetection(DetectionEvent{ID: "queued"})
	}
	c.Start(context.Background())
	c.Close()

	assert.Len(t, pub.published(), 250)
	pub.mu.Lock()
	defer pub.mu.Unlock()
	assert.Equal(t, 3, pub.batches)
}

func TestAggregator_RecordDetection(t *testing.T) {
	agg := NewAggregator()
	agg.RecordDetection(DetectionEvent{Method: "symptoms", Status: "confident", DiseaseName: "Đạo ôn", Confidence: 80, LatencyMs: 10})
	agg.RecordDetection(DetectionEvent{Method: "symptoms", Status: "confident", DiseaseName: "Đạo ôn", Confidence: 60, LatencyMs: 20, CacheHit: true})
	agg.RecordDetection(DetectionEvent{Method: "image", Status: "inconclusive", Reason: "low_confidence", DiseaseName: "Bạc lá", Confidence: 30, LatencyMs: 30})
	agg.RecordDetection(DetectionEvent{Method: "symptoms", Status: "inconclusive", Reason: "no_keywords", LatencyMs: 40})
	agg.RecordCatalogueUpdate()

	s := agg.Stats()
	assert.Equal(t, int64(4), s.TotalDetections)
	assert.Equal(t, int64(2), s.Confident)
	assert.Equal(t, int64(2), s.Inconclusive)
	assert.Equal(t, map[string]int64{"symptoms": 3, "image": 1}, s.ByMethod)
	assert.Equal(t, map[string]int64{"low_confidence": 1, "no_keywords": 1}, s.Reasons)
	assert.Equal(t, int64(1), s.CacheHits)
	assert.Equal(t, int64(3), s.CacheMisses)
	assert.Equal(t, int64(1), s.CatalogueUpdates)
	assert.InDelta(t, 42.5, s.AvgConfidence, 1e-9)
	assert.InDelta(t, 25.0, s.AvgLatencyMs, 1e-9)
	assert.Equal(t, int64(30), s.P50LatencyMs)
	assert.Equal(t, int64(40), s.P99LatencyMs)
	assert.Equal(t, []DiseaseCount{{Disease: "Đạo ôn", Count: 2}}, s.TopDiseases)
	assert.Equal(t, []DiseaseCount{{Disease: "Bạc lá", Count: 1}}, s.TopLeads)
}

func TestAggregator_LatencyWindowIsBounded(t *testing.T) {
	agg := NewAggregator()
	for i := 0; i < maxLatencySamples+10; i++ {
		agg.RecordDetection(DetectionEvent{Status: "confident", LatencyMs: int64(i)})
	}
	assert.Len(t, agg.latencies, maxLatencySamples)
	assert.Equal(t, int64(maxLatencySamples+10), agg.Stats().TotalDetections)
}

func TestAggregator_Restore(t *testing.T) {
	src := NewAggregator()
	src.RecordDetection(DetectionEvent{Method: "symptoms", Status: "confident", DiseaseName: "Gỉ sắt", Confidence: 70})
	src.RecordCatalogueUpdate()

	dst := NewAggregator()
	dst.Restore(src.Stats())
	dst.RecordDetection(DetectionEvent{Method: "symptoms", Status: "confident", DiseaseName: "Gỉ sắt", Confidence: 50})

	s := dst.Stats()
	assert.Equal(t, int64(2), s.TotalDetections)
	assert.Equal(t, int64(1), s.CatalogueUpdates)
	assert.InDelta(t, 60.0, s.AvgConfidence, 1e-9)
	assert.Equal(t, []DiseaseCount{{Disease: "Gỉ sắt", Count: 2}}, s.TopDiseases)
}

func TestHandleEvent(t *testing.T) {
	agg := NewAggregator()
	handle := HandleEvent(agg)
	ctx := context.Background()

	value, err := json.Marshal(DetectionEvent{Method: "symptoms", Status: "confident", DiseaseName: "Thán thư"})
	require.NoError(t, err)

	require.NoError(t, handle(ctx, kafka.Message{Value: value, Headers: map[string]string{kafka.HeaderEventType: string(EventDetection)}}))
	require.NoError(t, handle(ctx, kafka.Message{Value: value}))
	require.NoError(t, handle(ctx, kafka.Message{Value: []byte("{}"), Headers: map[string]string{kafka.HeaderEventType: string(EventCatalogueUpdated)}}))
	require.NoError(t, handle(ctx, kafka.Message{Value: []byte("not json")}))
	require.NoError(t, handle(ctx, kafka.Message{Value: value, Headers: map[string]string{kafka.HeaderEventType: "other"}}))

	s := agg.Stats()
	assert.Equal(t, int64(2), s.TotalDetections)
	assert.Equal(t, int64(1), s.CatalogueUpdates)
}

func TestHandler_Stats(t *testing.T) {
	agg := NewAggregator()
	agg.RecordDetection(DetectionEvent{Method: "symptoms", Status: "confident", DiseaseName: "Nhện đỏ"})
	mux := http.NewServeMux()
	NewHandler(agg).Register(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var got AggregatedStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, int64(1), got.TotalDetections)
	assert.Equal(t, "Nhện đỏ", got.TopDiseases[0].Disease)
}

func TestSnapshotStore(t *testing.T) {
	client := postgrestest.Open(t)
	ctx := context.Background()
	_, err := client.DB.ExecContext(ctx, `DROP TABLE IF EXISTS analytics_snapshots`)
	require.NoError(t, err)

	store := NewSnapshotStore(client)
	require.NoError(t, store.Migrate(ctx))

	latest, err := store.LatestSnapshot(ctx)
	require.NoError(t, err)
	assert.Nil(t, latest)

	agg := NewAggregator()
	agg.RecordDetection(DetectionEvent{Status: "confident", DiseaseName: "Sương mai"})
	require.NoError(t, store.SaveSnapshot(ctx, agg.Stats()))
	time.Sleep(5 * time.Millisecond)
	agg.RecordDetection(DetectionEvent{Status: "inconclusive", Reason: "no_keywords"})
	require.NoError(t, store.SaveSnapshot(ctx, agg.Stats()))

	latest, err = store.LatestSnapshot(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, int64(2), latest.TotalDetections)
}

func TestHandler_Diseases(t *testing.T) {
	agg := NewAggregator()
	for i := 0; i < 3; i++ {
		agg.RecordDetection(DetectionEvent{Status: "confident", DiseaseName: "Bạc lá"})
	}
	agg.RecordDetection(DetectionEvent{Status: "confident", DiseaseName: "Đạo ôn"})
	agg.RecordDetection(DetectionEvent{Status: "inconclusive", Reason: "low_confidence", DiseaseName: "Sương mai"})
	mux := http.NewServeMux()
	NewHandler(agg).Register(mux)

	get := func(target string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		return rec
	}

	rec := get("/api/v1/analytics/diseases?limit=1")
	require.Equal(t, http.StatusOK, rec.Code)
	var got diseasesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "diagnosed", got.Kind)
	assert.Equal(t, []DiseaseCount{{Disease: "Bạc lá", Count: 3}}, got.Diseases)

	rec = get("/api/v1/analytics/diseases?kind=leads")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, []DiseaseCount{{Disease: "Sương mai", Count: 1}}, got.Diseases)

	assert.Equal(t, http.StatusBadRequest, get("/api/v1/analytics/diseases?limit=0").Code)
	assert.Equal(t, http.StatusBadRequest, get("/api/v1/analytics/diseases?kind=other").Code)
}
