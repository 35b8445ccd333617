package analytics

import "time"

type EventType string

const (
	EventDetection        EventType = "detection"
	EventCatalogueUpdated EventType = "catalogue_updated"
)

// DetectionEvent is published once per finished detection.
type DetectionEvent struct {
	ID          string    `json:"id"`
	Method      string    `json:"method"`
	Status      string    `json:"status"`
	Reason      string    `json:"reason,omitempty"`
	DiseaseName string    `json:"disease_name,omitempty"`
	Confidence  float64   `json:"confidence"`
	Keywords    int       `json:"keywords"`
	LatencyMs   int64     `json:"latency_ms"`
	CacheHit    bool      `json:"cache_hit"`
	Timestamp   time.Time `json:"timestamp"`
	RequestID   string    `json:"request_id,omitempty"`
}

// CatalogueEvent announces a change to the disease catalogue. Detectors
// drop their cached results when they see one.
type CatalogueEvent struct {
	Disease   string    `json:"disease,omitempty"`
	Source    string    `json:"source"`
	Count     int       `json:"count"`
	Timestamp time.Time `json:"timestamp"`
}
