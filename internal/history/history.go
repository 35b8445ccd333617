// Package history stores finished detections so clients can fetch them by
// id or list the latest ones.
package history

import (
	"context"
	"fmt"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/plant-disease-detection/internal/detection"
	apperrors "github.com/Adithya-Monish-Kumar-K/plant-disease-detection/pkg/errors"
)

// Memory keeps the most recent detections in a fixed-size ring. It backs
// the detector when no PostgreSQL database is configured.
type Memory struct {
	mu    sync.RWMutex
	ring  []*detection.Result
	next  int
	count int
	byID  map[string]*detection.Result
}

func NewMemory(capacity int) *Memory {
	if capacity <= 0 {
		capacity = 1000
	}
	return &Memory{
		ring: make([]*detection.Result, capacity),
		byID: make(map[string]*detection.Result, capacity),
	}
}

func (m *Memory) Save(_ context.Context, r *detection.Result) error {
	cp := *r
	m.mu.Lock()
	defer m.mu.Unlock()
	if old := m.ring[m.next]; old != nil {
		delete(m.byID, old.ID)
	}
	m.ring[m.next] = &cp
	m.byID[cp.ID] = &cp
	m.next = (m.next + 1) % len(m.ring)
	m.count = min(m.count+1, len(m.ring))
	return nil
}

func (m *Memory) Get(_ context.Context, id string) (*detection.Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.byID[id]
	if !ok {
		return nil, fmt.Errorf("detection %s: %w", id, apperrors.ErrDetectionNotFound)
	}
	cp := *r
	return &cp, nil
}

func (m *Memory) Recent(_ context.Context, limit int) ([]*detection.Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := min(limit, m.count)
	out := make([]*detection.Result, 0, max(n, 0))
	for i := 1; i <= n; i++ {
		idx := (m.next - i + len(m.ring)) % len(m.ring)
		cp := *m.ring[idx]
		out = append(out, &cp)
	}
	return out, nil
}
