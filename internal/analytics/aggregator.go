package analytics

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/plant-disease-detection/pkg/kafka"
)

// maxLatencySamples bounds the latency window used for percentiles.
const maxLatencySamples = 10000

type AggregatedStats struct {
	TotalDetections     int64            `json:"total_detections"`
	Confident           int64            `json:"confident"`
	Inconclusive        int64            `json:"inconclusive"`
	ByMethod            map[string]int64 `json:"by_method"`
	Reasons             map[string]int64 `json:"reasons"`
	CacheHits           int64            `json:"cache_hits"`
	CacheMisses         int64            `json:"cache_misses"`
	CatalogueUpdates    int64            `json:"catalogue_updates"`
	AvgConfidence       float64          `json:"avg_confidence"`
	AvgLatencyMs        float64          `json:"avg_latency_ms"`
	P50LatencyMs        int64            `json:"p50_latency_ms"`
	P95LatencyMs        int64            `json:"p95_latency_ms"`
	P99LatencyMs        int64            `json:"p99_latency_ms"`
	TopDiseases         []DiseaseCount   `json:"top_diseases"`
	TopLeads            []DiseaseCount   `json:"top_leads"`
	DetectionsPerMinute float64          `json:"detections_per_minute"`
}

type DiseaseCount struct {
	Disease string `json:"disease"`
	Count   int64  `json:"count"`
}

type Aggregator struct {
	mu               sync.RWMutex
	totalDetections  atomic.Int64
	confident        atomic.Int64
	inconclusive     atomic.Int64
	cacheHits        atomic.Int64
	cacheMisses      atomic.Int64
	catalogueUpdates atomic.Int64
	confidenceSum    float64
	latencies        []int64
	latencyNext      int
	byMethod         map[string]int64
	reasons          map[string]int64
	diseaseCounts    map[string]int64
	leadCounts       map[string]int64
	startTime        time.Time

	logger *slog.Logger
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		latencies:     make([]int64, 0, 1024),
		byMethod:      make(map[string]int64),
		reasons:       make(map[string]int64),
		diseaseCounts: make(map[string]int64),
		leadCounts:    make(map[string]int64),
		startTime:     time.Now(),
		logger:        slog.Default().With("component", "analytics-aggregator"),
	}
}

// HandleEvent routes consumed messages on their event-type header. Messages
// without one are read as detection events. Undecodable messages are logged
// and acknowledged.
func HandleEvent(agg *Aggregator) kafka.MessageHandler {
	return func(ctx context.Context, msg kafka.Message) error {
		switch EventType(msg.Type()) {
		case EventCatalogueUpdated:
			agg.RecordCatalogueUpdate()
			return nil
		case EventDetection, "":
			event, err := kafka.DecodeJSON[DetectionEvent](msg.Value)
			if err != nil {
				agg.logger.Error("failed to decode detection event", "error", err)
				return nil
			}
			agg.RecordDetection(event)
			return nil
		default:
			agg.logger.Debug("ignoring unknown analytics event", "type", msg.Type())
			return nil
		}
	}
}

func (a *Aggregator) RecordDetection(event DetectionEvent) {
	a.totalDetections.Add(1)
	confident := event.Status == "confident"
	if confident {
		a.confident.Add(1)
	} else {
		a.inconclusive.Add(1)
	}
	if event.CacheHit {
		a.cacheHits.Add(1)
	} else {
		a.cacheMisses.Add(1)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.confidenceSum += event.Confidence
	if len(a.latencies) < maxLatencySamples {
		a.latencies = append(a.latencies, event.LatencyMs)
	} else {
		a.latencies[a.latencyNext] = event.LatencyMs
		a.latencyNext = (a.latencyNext + 1) % maxLatencySamples
	}
	if event.Method != "" {
		a.byMethod[event.Method]++
	}
	if event.Reason != "" {
		a.reasons[event.Reason]++
	}
	if event.DiseaseName != "" {
		if confident {
			a.diseaseCounts[event.DiseaseName]++
		} else {
			a.leadCounts[event.DiseaseName]++
		}
	}
}

func (a *Aggregator) RecordCatalogueUpdate() {
	a.catalogueUpdates.Add(1)
}

func (a *Aggregator) Stats() AggregatedStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := AggregatedStats{
		TotalDetections:  a.totalDetections.Load(),
		Confident:        a.confident.Load(),
		Inconclusive:     a.inconclusive.Load(),
		ByMethod:         copyCounts(a.byMethod),
		Reasons:          copyCounts(a.reasons),
		CacheHits:        a.cacheHits.Load(),
		CacheMisses:      a.cacheMisses.Load(),
		CatalogueUpdates: a.catalogueUpdates.Load(),
	}
	if stats.TotalDetections > 0 {
		stats.AvgConfidence = a.confidenceSum / float64(stats.TotalDetections)
	}
	if len(a.latencies) > 0 {
		sorted := make([]int64, len(a.latencies))
		copy(sorted, a.latencies)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		var sum int64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = float64(sum) / float64(len(sorted))
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	stats.TopDiseases = topN(a.diseaseCounts, 10)
	stats.TopLeads = topN(a.leadCounts, 10)
	elapsed := time.Since(a.startTime).Minutes()
	if elapsed > 0 {
		stats.DetectionsPerMinute = float64(stats.TotalDetections) / elapsed
	}

	return stats
}

// Restore seeds the counters from a persisted snapshot so totals survive a
// restart. Latency samples and rates start afresh.
func (a *Aggregator) Restore(s AggregatedStats) {
	a.totalDetections.Store(s.TotalDetections)
	a.confident.Store(s.Confident)
	a.inconclusive.Store(s.Inconclusive)
	a.cacheHits.Store(s.CacheHits)
	a.cacheMisses.Store(s.CacheMisses)
	a.catalogueUpdates.Store(s.CatalogueUpdates)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.confidenceSum = s.AvgConfidence * float64(s.TotalDetections)
	for k, v := range s.ByMethod {
		a.byMethod[k] = v
	}
	for k, v := range s.Reasons {
		a.reasons[k] = v
	}
	for _, d := range s.TopDiseases {
		a.diseaseCounts[d.Disease] = d.Count
	}
	for _, d := range s.TopLeads {
		a.leadCounts[d.Disease] = d.Count
	}
}

// TopDiseases ranks diseases by how often they were diagnosed, or, with
// leads set, by how often they led an inconclusive detection.
func (a *Aggregator) TopDiseases(n int, leads bool) []DiseaseCount {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if leads {
		return topN(a.leadCounts, n)
	}
	return topN(a.diseaseCounts, n)
}

func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func topN(counts map[string]int64, n int) []DiseaseCount {
	result := make([]DiseaseCount, 0, len(counts))
	for disease, count := range counts {
		result = append(result, DiseaseCount{Disease: disease, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Disease < result[j].Disease
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}

func copyCounts(src map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
